package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

// ChromedpSession drives a headless chrome over the DevTools protocol.
type ChromedpSession struct {
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
	timeout       time.Duration
	logger        zerolog.Logger
}

var _ Session = (*ChromedpSession)(nil)

// NewChromedp starts chrome and keeps it running until Close. The browser
// process is not bound to ctx.
func NewChromedp(ctx context.Context, opts *Options, logger zerolog.Logger) (*ChromedpSession, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(randomUserAgent(opts.UserAgents)),
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(opts.ViewportWidth, opts.ViewportHeight),
	)
	if opts.BlockImages {
		allocOpts = append(allocOpts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}
	if opts.ProxyServer != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.ProxyServer))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	// The first Run allocates the browser and ties its lifetime to browserCtx.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}

	return &ChromedpSession{
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
		timeout:       opts.Timeout,
		logger:        logger.With().Str("component", "browser").Str("driver", DriverChromedp).Logger(),
	}, nil
}

func (s *ChromedpSession) Fetch(ctx context.Context, url string, opts FetchOptions) (string, error) {
	runCtx, cancel := context.WithTimeout(s.browserCtx, s.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		return "", fmt.Errorf("failed to navigate to %s: %w", url, err)
	}

	if len(opts.WaitSelectors) > 0 {
		waitCtx, cancelWait := context.WithTimeout(runCtx, opts.waitTimeout())
		err := chromedp.Run(waitCtx, chromedp.WaitReady(strings.Join(opts.WaitSelectors, ", "), chromedp.ByQuery))
		cancelWait()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && runCtx.Err() == nil {
				s.logger.Debug().Str("url", url).Msg("wait selectors did not appear")
				return "", ErrContentTimeout
			}
			return "", fmt.Errorf("failed waiting for content on %s: %w", url, err)
		}
	}

	var content string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &content, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to get page content: %w", err)
	}

	return content, nil
}

func (s *ChromedpSession) Close() error {
	err := chromedp.Cancel(s.browserCtx)
	s.cancelBrowser()
	s.cancelAlloc()
	if err != nil {
		return fmt.Errorf("failed to close chrome: %w", err)
	}
	return nil
}

// ForceClose kills the chrome process.
func (s *ChromedpSession) ForceClose() {
	s.cancelAlloc()
}

package browser

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrContentTimeout means none of the wait selectors showed up in time.
	ErrContentTimeout = errors.New("timed out waiting for page content")
	// ErrSessionInit wraps failures to construct a session.
	ErrSessionInit   = errors.New("failed to initialise session")
	ErrUnknownDriver = errors.New("unknown session driver")
)

const DefaultWaitTimeout = 10 * time.Second

// FetchOptions controls a single page load.
type FetchOptions struct {
	// WaitSelectors, when set, are awaited after navigation; the page counts
	// as loaded once any of them matches.
	WaitSelectors []string
	WaitTimeout   time.Duration
}

func (o FetchOptions) waitTimeout() time.Duration {
	if o.WaitTimeout <= 0 {
		return DefaultWaitTimeout
	}
	return o.WaitTimeout
}

// Session loads pages and returns their rendered HTML.
type Session interface {
	Fetch(ctx context.Context, url string, opts FetchOptions) (string, error)
	Close() error
}

// ForceCloser is implemented by sessions that can drop their resources
// without a graceful shutdown.
type ForceCloser interface {
	ForceClose()
}

// Factory creates a session that routes through proxy ("" for direct).
type Factory func(ctx context.Context, proxy string) (Session, error)

// Use acquires a session from factory, runs fn with it and releases it on
// every exit path.
func Use(ctx context.Context, factory Factory, proxy string, logger zerolog.Logger, fn func(Session) error) error {
	s, err := factory(ctx, proxy)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSessionInit, err)
	}
	defer Release(s, logger)

	return fn(s)
}

// Release closes s. A failed close is logged and followed by a forced
// release when the session supports it.
func Release(s Session, logger zerolog.Logger) {
	if err := s.Close(); err != nil {
		logger.Warn().Err(err).Msg("failed to close session, forcing release")
		if fc, ok := s.(ForceCloser); ok {
			fc.ForceClose()
		}
	}
}

// Driver names accepted by NewFactory.
const (
	DriverPlaywright = "playwright"
	DriverChromedp   = "chromedp"
	DriverHTTP       = "http"
)

// NewFactory returns the session factory for the named driver.
func NewFactory(driver string, opts *Options, logger zerolog.Logger) (Factory, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	switch driver {
	case DriverPlaywright, "":
		return func(_ context.Context, proxy string) (Session, error) {
			b, err := New(opts.withProxy(proxy), logger)
			if err != nil {
				return nil, err
			}
			return b, nil
		}, nil
	case DriverChromedp:
		return func(ctx context.Context, proxy string) (Session, error) {
			s, err := NewChromedp(ctx, opts.withProxy(proxy), logger)
			if err != nil {
				return nil, err
			}
			return s, nil
		}, nil
	case DriverHTTP:
		return func(_ context.Context, proxy string) (Session, error) {
			s, err := NewHTTPSession(opts.withProxy(proxy))
			if err != nil {
				return nil, err
			}
			return s, nil
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

// DefaultUserAgents are rotated per session.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

func randomUserAgent(agents []string) string {
	if len(agents) == 0 {
		agents = DefaultUserAgents
	}
	return agents[rand.Intn(len(agents))]
}

package proxy

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultCheckURL     = "https://www.wildberries.ru"
	DefaultCheckTimeout = 5 * time.Second
)

// Pool hands out proxies round robin and skips the ones marked failed.
// The zero value is an empty pool.
type Pool struct {
	mu      sync.Mutex
	proxies []string
	failed  map[string]struct{}
	next    int

	checkURL     string
	checkTimeout time.Duration
	logger       zerolog.Logger
}

func NewPool(proxies []string, logger zerolog.Logger) *Pool {
	cleaned := make([]string, 0, len(proxies))
	seen := make(map[string]struct{}, len(proxies))
	for _, p := range proxies {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		cleaned = append(cleaned, p)
	}

	return &Pool{
		proxies:      cleaned,
		failed:       make(map[string]struct{}),
		checkURL:     DefaultCheckURL,
		checkTimeout: DefaultCheckTimeout,
		logger:       logger.With().Str("component", "proxy_pool").Logger(),
	}
}

// SetCheck overrides the probe target and timeout used by Check.
func (p *Pool) SetCheck(target string, timeout time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkURL = target
	p.checkTimeout = timeout
}

// NextAvailable returns the next working proxy, or false when none is left.
func (p *Pool) NextAvailable() (string, bool) {
	if p == nil {
		return "", false
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < len(p.proxies); i++ {
		candidate := p.proxies[p.next%len(p.proxies)]
		p.next = (p.next + 1) % len(p.proxies)
		if _, bad := p.failed[candidate]; !bad {
			return candidate, true
		}
	}
	return "", false
}

func (p *Pool) MarkFailed(proxy string) {
	if p == nil || proxy == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.failed[proxy]; ok {
		return
	}
	if p.failed == nil {
		p.failed = make(map[string]struct{})
	}
	p.failed[proxy] = struct{}{}
	p.logger.Warn().Str("proxy", proxy).Msg("proxy marked as failed")
}

func (p *Pool) Working() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, 0, len(p.proxies))
	for _, proxy := range p.proxies {
		if _, bad := p.failed[proxy]; !bad {
			out = append(out, proxy)
		}
	}
	return out
}

func (p *Pool) Failed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, 0, len(p.failed))
	for _, proxy := range p.proxies {
		if _, bad := p.failed[proxy]; bad {
			out = append(out, proxy)
		}
	}
	return out
}

func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.proxies)
}

// Check requests the storefront through proxy and reports whether it
// answered 200 within the check timeout.
func (p *Pool) Check(ctx context.Context, proxy string) error {
	p.mu.Lock()
	target, timeout := p.checkURL, p.checkTimeout
	p.mu.Unlock()
	if target == "" {
		target = DefaultCheckURL
	}
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}

	proxyURL, err := url.Parse(proxy)
	if err != nil {
		return fmt.Errorf("invalid proxy %q: %w", proxy, err)
	}

	client := &http.Client{
		Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		Timeout:   timeout,
	}
	defer client.CloseIdleConnections()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("proxy %s unreachable: %w", proxy, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("proxy %s returned status %d", proxy, resp.StatusCode)
	}
	return nil
}

// FilterWorking checks every proxy in parallel, marks the failing ones and
// returns the survivors.
func (p *Pool) FilterWorking(ctx context.Context, concurrency int) []string {
	candidates := p.Working()
	if concurrency <= 0 {
		concurrency = len(candidates)
	}

	var g errgroup.Group
	g.SetLimit(max(concurrency, 1))
	for _, proxy := range candidates {
		g.Go(func() error {
			if err := p.Check(ctx, proxy); err != nil {
				p.logger.Debug().Err(err).Str("proxy", proxy).Msg("proxy check failed")
				p.MarkFailed(proxy)
			}
			return nil
		})
	}
	_ = g.Wait()

	working := p.Working()
	p.logger.Info().Int("working", len(working)).Int("total", len(candidates)).Msg("proxy check finished")
	return working
}

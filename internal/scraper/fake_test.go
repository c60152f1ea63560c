package scraper

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maltedev/wb-deal-scraper/internal/browser"
	"github.com/maltedev/wb-deal-scraper/internal/models"
)

// fakeSession records concurrency and serves pages from fetch.
type fakeSession struct {
	env   *fakeEnv
	fetch func(url string) (string, error)
}

var _ browser.Session = (*fakeSession)(nil)

func (s *fakeSession) Fetch(ctx context.Context, url string, _ browser.FetchOptions) (string, error) {
	n := s.env.inFlight.Add(1)
	defer s.env.inFlight.Add(-1)
	for {
		peak := s.env.peak.Load()
		if n <= peak || s.env.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	s.env.mu.Lock()
	s.env.fetched = append(s.env.fetched, url)
	s.env.mu.Unlock()

	if s.env.delay > 0 {
		time.Sleep(s.env.delay)
	}
	return s.fetch(url)
}

func (s *fakeSession) Close() error {
	s.env.closed.Add(1)
	return nil
}

type fakeEnv struct {
	delay    time.Duration
	fetch    func(url string) (string, error)
	initErr  error
	inFlight atomic.Int32
	peak     atomic.Int32
	created  atomic.Int32
	closed   atomic.Int32

	mu      sync.Mutex
	fetched []string
	proxies []string
}

func (e *fakeEnv) factory() browser.Factory {
	return func(_ context.Context, proxy string) (browser.Session, error) {
		e.mu.Lock()
		e.proxies = append(e.proxies, proxy)
		e.mu.Unlock()
		if e.initErr != nil {
			return nil, e.initErr
		}
		e.created.Add(1)
		return &fakeSession{env: e, fetch: e.fetch}, nil
	}
}

func (e *fakeEnv) fetchedURLs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.fetched...)
}

type panicParser struct{}

func (panicParser) ParseProductPage(string, string) models.PageOutcome {
	panic("selector blew up")
}

var errNoChrome = errors.New("chrome not found")

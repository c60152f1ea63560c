package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/maltedev/wb-deal-scraper/internal/browser"
	"github.com/maltedev/wb-deal-scraper/internal/parser"
	"github.com/rs/zerolog"
)

const keyPrefix = "wb:page:"

// Session serves detail pages from a Store and fills it on misses. Listing
// fetches (those with wait selectors) always go to the wrapped session, and
// challenge pages are never stored.
type Session struct {
	inner  browser.Session
	store  Store
	ttl    time.Duration
	logger zerolog.Logger
}

var (
	_ browser.Session     = (*Session)(nil)
	_ browser.ForceCloser = (*Session)(nil)
)

func NewSession(inner browser.Session, store Store, ttl time.Duration, logger zerolog.Logger) *Session {
	return &Session{
		inner:  inner,
		store:  store,
		ttl:    ttl,
		logger: logger.With().Str("component", "page_cache").Logger(),
	}
}

// WrapFactory makes every session produced by factory cache-backed.
func WrapFactory(factory browser.Factory, store Store, ttl time.Duration, logger zerolog.Logger) browser.Factory {
	return func(ctx context.Context, proxy string) (browser.Session, error) {
		inner, err := factory(ctx, proxy)
		if err != nil {
			return nil, err
		}
		return NewSession(inner, store, ttl, logger), nil
	}
}

func (s *Session) Fetch(ctx context.Context, url string, opts browser.FetchOptions) (string, error) {
	if len(opts.WaitSelectors) > 0 {
		return s.inner.Fetch(ctx, url, opts)
	}

	key := Key(url)
	cached, err := s.store.Get(key)
	switch {
	case err == nil:
		s.logger.Debug().Str("url", url).Msg("page served from cache")
		return string(cached), nil
	case !errors.Is(err, ErrMiss):
		s.logger.Warn().Err(err).Str("url", url).Msg("cache lookup failed")
	}

	html, err := s.inner.Fetch(ctx, url, opts)
	if err != nil {
		return "", err
	}

	if parser.IsCaptchaPage(html) {
		return html, nil
	}
	if err := s.store.Set(key, []byte(html), s.ttl); err != nil {
		s.logger.Debug().Err(err).Str("url", url).Msg("failed to cache page")
	}

	return html, nil
}

func (s *Session) Close() error {
	return s.inner.Close()
}

func (s *Session) ForceClose() {
	if fc, ok := s.inner.(browser.ForceCloser); ok {
		fc.ForceClose()
	}
}

// Key derives a memcached-safe key from a page URL.
func Key(url string) string {
	sum := sha256.Sum256([]byte(parser.CanonicalURL(url)))
	return keyPrefix + hex.EncodeToString(sum[:])
}

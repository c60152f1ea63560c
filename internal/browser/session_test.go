package browser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	closeErr    error
	closed      bool
	forceClosed bool
}

func (f *fakeSession) Fetch(context.Context, string, FetchOptions) (string, error) {
	return "<html></html>", nil
}

func (f *fakeSession) Close() error {
	f.closed = true
	return f.closeErr
}

func (f *fakeSession) ForceClose() {
	f.forceClosed = true
}

func TestUseReleasesSession(t *testing.T) {
	s := &fakeSession{}
	factory := func(context.Context, string) (Session, error) { return s, nil }
	boom := errors.New("boom")

	err := Use(context.Background(), factory, "", zerolog.Nop(), func(Session) error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.True(t, s.closed)
	assert.False(t, s.forceClosed)
}

func TestUseReleasesSessionOnPanic(t *testing.T) {
	s := &fakeSession{}
	factory := func(context.Context, string) (Session, error) { return s, nil }

	assert.Panics(t, func() {
		_ = Use(context.Background(), factory, "", zerolog.Nop(), func(Session) error { panic("worker") })
	})
	assert.True(t, s.closed)
}

func TestUseForcesReleaseWhenCloseFails(t *testing.T) {
	s := &fakeSession{closeErr: errors.New("stuck")}
	factory := func(context.Context, string) (Session, error) { return s, nil }

	err := Use(context.Background(), factory, "", zerolog.Nop(), func(Session) error { return nil })

	require.NoError(t, err)
	assert.True(t, s.forceClosed)
}

func TestUseFactoryError(t *testing.T) {
	factory := func(context.Context, string) (Session, error) { return nil, errors.New("no chrome") }
	called := false

	err := Use(context.Background(), factory, "", zerolog.Nop(), func(Session) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, ErrSessionInit)
	assert.False(t, called)
}

func TestNewFactoryUnknownDriver(t *testing.T) {
	_, err := NewFactory("selenium", nil, zerolog.Nop())
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestHTTPSessionFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=windows-1251")
		// "Маска" in windows-1251
		w.Write([]byte{'<', 'h', '1', '>', 0xCC, 0xE0, 0xF1, 0xEA, 0xE0, '<', '/', 'h', '1', '>'})
		w.Write([]byte("<p>" + r.Header.Get("User-Agent") + "</p>"))
	}))
	defer srv.Close()

	factory, err := NewFactory(DriverHTTP, DefaultOptions(), zerolog.Nop())
	require.NoError(t, err)
	s, err := factory(context.Background(), "")
	require.NoError(t, err)
	defer s.Close()

	content, err := s.Fetch(context.Background(), srv.URL, FetchOptions{})

	require.NoError(t, err)
	assert.Contains(t, content, "<h1>Маска</h1>")
	assert.Contains(t, content, "Mozilla/5.0")
}

func TestHTTPSessionWaitSelectors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if r.URL.Path == "/listing" {
			w.Write([]byte(`<div class="product-card"><a href="/catalog/1/detail.aspx">x</a></div>`))
			return
		}
		w.Write([]byte(`<div>empty</div>`))
	}))
	defer srv.Close()

	s, err := NewHTTPSession(DefaultOptions())
	require.NoError(t, err)
	opts := FetchOptions{WaitSelectors: []string{".product-card__wrapper", ".product-card"}}

	_, err = s.Fetch(context.Background(), srv.URL+"/listing", opts)
	require.NoError(t, err)

	_, err = s.Fetch(context.Background(), srv.URL+"/empty", opts)
	assert.ErrorIs(t, err, ErrContentTimeout)
}

func TestHTTPSessionStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s, err := NewHTTPSession(nil)
	require.NoError(t, err)

	_, err = s.Fetch(context.Background(), srv.URL, FetchOptions{})
	assert.Error(t, err)
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.True(t, opts.Headless)
	assert.True(t, opts.BlockImages)
	assert.Len(t, opts.UserAgents, 3)
	assert.Equal(t, "ru-RU", opts.Locale)

	withProxy := opts.withProxy("http://10.0.0.1:3128")
	assert.Equal(t, "http://10.0.0.1:3128", withProxy.ProxyServer)
	assert.Empty(t, opts.ProxyServer)
}

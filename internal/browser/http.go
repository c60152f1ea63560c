package browser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
)

// HTTPSession fetches static HTML without a browser. Wait selectors are
// checked against the returned markup.
type HTTPSession struct {
	client         *http.Client
	userAgent      string
	acceptLanguage string
}

var _ Session = (*HTTPSession)(nil)

func NewHTTPSession(opts *Options) (*HTTPSession, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.ProxyServer != "" {
		proxyURL, err := url.Parse(opts.ProxyServer)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy %q: %w", opts.ProxyServer, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &HTTPSession{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		userAgent:      randomUserAgent(opts.UserAgents),
		acceptLanguage: opts.AcceptLanguage,
	}, nil
}

func (s *HTTPSession) Fetch(ctx context.Context, url string, opts FetchOptions) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if s.acceptLanguage != "" {
		req.Header.Set("Accept-Language", s.acceptLanguage)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s unexpected status code: %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	content, err := decodeBody(body, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", err
	}

	if len(opts.WaitSelectors) > 0 {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
		if err != nil {
			return "", fmt.Errorf("failed to parse HTML: %w", err)
		}
		if doc.Find(strings.Join(opts.WaitSelectors, ", ")).Length() == 0 {
			return "", ErrContentTimeout
		}
	}

	return content, nil
}

func decodeBody(body []byte, contentType string) (string, error) {
	encoding, name, _ := charset.DetermineEncoding(body, contentType)
	if strings.EqualFold(name, "utf-8") {
		return string(body), nil
	}

	decoded, err := io.ReadAll(encoding.NewDecoder().Reader(bytes.NewReader(body)))
	if err != nil {
		return "", fmt.Errorf("failed to decode %s body: %w", name, err)
	}
	return string(decoded), nil
}

func (s *HTTPSession) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

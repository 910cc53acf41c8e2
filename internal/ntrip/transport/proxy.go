package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/bramburn/rtkcore/internal/ntrip"
)

// Proxy is the §4.4.2 transport: an HTTP GET against
// <proxyBase>/<mountpoint>?host=...&port=..., with GGA pushed to a
// sibling /gga endpoint carrying the same query string. Shares its
// stream handling with Direct; only URL construction differs.
type Proxy struct {
	HTTPClient *http.Client
	Log        *logrus.Entry
}

func NewProxy(log *logrus.Entry) *Proxy {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Proxy{HTTPClient: &http.Client{}, Log: log}
}

func (p *Proxy) Name() string { return "proxy" }

func (p *Proxy) Open(ctx context.Context, cfg ntrip.Config) (ntrip.Session, error) {
	streamURL := p.mountURL(cfg)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return nil, fmt.Errorf("transport.Proxy: building request: %w", err)
	}
	setCommonHeaders(req, cfg)

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport.Proxy: dial: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("transport.Proxy: bridge returned status %d", resp.StatusCode)
	}

	return &httpSession{
		body:       resp.Body,
		postURL:    p.ggaURL(cfg),
		httpClient: p.HTTPClient,
		log:        p.Log,
	}, nil
}

func (p *Proxy) mountURL(cfg ntrip.Config) string {
	base := strings.TrimSuffix(cfg.ProxyURL, "/")
	return fmt.Sprintf("%s/%s?%s", base, strings.TrimPrefix(cfg.Mountpoint, "/"), casterQuery(cfg))
}

func (p *Proxy) ggaURL(cfg ntrip.Config) string {
	base := strings.TrimSuffix(cfg.ProxyURL, "/")
	return fmt.Sprintf("%s/%s/gga?%s", base, strings.TrimPrefix(cfg.Mountpoint, "/"), casterQuery(cfg))
}

func casterQuery(cfg ntrip.Config) string {
	q := url.Values{}
	q.Set("host", cfg.CasterHost)
	q.Set("port", fmt.Sprintf("%d", cfg.CasterPort))
	if cfg.Username != "" {
		q.Set("user", cfg.Username)
		q.Set("password", cfg.Password)
	}
	return q.Encode()
}

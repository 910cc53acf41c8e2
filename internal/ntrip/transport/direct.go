// Package transport implements the three wire protocols an
// internal/ntrip.Client can open a session over: direct HTTP, an HTTP
// proxy bridge, and a WebSocket bridge.
package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/bramburn/rtkcore/internal/ntrip"
)

const userAgent = "NTRIP WebGNSS Client"

// Direct is the §4.4.1 transport: a plain HTTP GET against
// <http|https>://host:port/mountpoint, with GGA pushed via an
// out-of-band POST to the same URL. Grounded on the teacher's
// internal/ntrip/client.go request construction and header set.
type Direct struct {
	HTTPClient *http.Client
	Log        *logrus.Entry
}

// NewDirect returns a Direct transport with a client carrying no
// response timeout — the read path is a long-lived stream, not a
// request/response round trip.
func NewDirect(log *logrus.Entry) *Direct {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Direct{HTTPClient: &http.Client{}, Log: log}
}

func (d *Direct) Name() string { return "direct" }

func (d *Direct) Open(ctx context.Context, cfg ntrip.Config) (ntrip.Session, error) {
	if cfg.AmbientTLS && cfg.CasterPort != 443 {
		return nil, ntrip.ErrMixedContent
	}

	url := casterURL(cfg)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("transport.Direct: building request: %w", err)
	}
	setCommonHeaders(req, cfg)

	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport.Direct: dial: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("transport.Direct: caster returned status %d", resp.StatusCode)
	}

	return &httpSession{
		body:       resp.Body,
		postURL:    url,
		httpClient: d.HTTPClient,
		log:        d.Log,
	}, nil
}

func casterURL(cfg ntrip.Config) string {
	scheme := "http"
	if cfg.CasterPort == 443 {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d/%s", scheme, cfg.CasterHost, cfg.CasterPort, strings.TrimPrefix(cfg.Mountpoint, "/"))
}

func setCommonHeaders(req *http.Request, cfg ntrip.Config) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/octet-stream")
	req.Header.Set("Ntrip-Version", "Ntrip/2.0")
	if cfg.Username != "" {
		req.SetBasicAuth(cfg.Username, cfg.Password)
	}
}

// httpSession adapts an HTTP response body into an ntrip.Session. GGA is
// sent fire-and-forget via a sibling POST, matching spec §4.4.1.
type httpSession struct {
	body       io.ReadCloser
	postURL    string
	httpClient *http.Client
	log        *logrus.Entry
}

func (s *httpSession) Read(p []byte) (int, error) { return s.body.Read(p) }

func (s *httpSession) SendGGA(ctx context.Context, sentence string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.postURL, strings.NewReader(sentence))
	if err != nil {
		return fmt.Errorf("transport.Direct: building GGA POST: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("User-Agent", userAgent)

	go func() {
		resp, err := s.httpClient.Do(req)
		if err != nil {
			s.log.WithError(err).Debug("transport.Direct: GGA POST failed")
			return
		}
		resp.Body.Close()
	}()
	return nil
}

func (s *httpSession) Close() error { return s.body.Close() }

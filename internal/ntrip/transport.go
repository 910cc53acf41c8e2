package ntrip

import (
	"context"
	"fmt"
)

// Config is the per-attempt configuration a Transport needs to open a
// session: which caster, which mountpoint, and how to authenticate.
// NtripConfig (config.go) carries the broader client-facing settings;
// Config is the subset each Transport.Open actually consumes.
type Config struct {
	CasterHost string
	CasterPort int
	Mountpoint string
	Username   string
	Password   string

	// AmbientTLS reports whether the calling context is itself served
	// over HTTPS, for the mixed-content guard of spec §4.4.1.
	AmbientTLS bool

	// ProxyURL and WebsocketURL are only consulted by the proxy and
	// websocket transports respectively.
	ProxyURL     string
	WebsocketURL string
}

// Transport opens sessions against one specific wire protocol (direct
// HTTP, HTTP proxy, or WebSocket bridge).
type Transport interface {
	Name() string
	Open(ctx context.Context, cfg Config) (Session, error)
}

// Session is an established NTRIP stream. Exactly one goroutine may call
// Read at a time; Close is safe to call concurrently with Read and must
// unblock it.
type Session interface {
	Read(p []byte) (int, error)
	SendGGA(ctx context.Context, sentence string) error
	Close() error
}

// ErrMixedContent is returned by a Transport.Open when the ambient
// context is HTTPS and the caster is plain HTTP — the direct transport
// refuses the attempt outright rather than silently downgrading.
var ErrMixedContent = fmt.Errorf("ntrip: mixed-content: HTTPS context, HTTP caster")

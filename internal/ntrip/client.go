// Package ntrip implements the NTRIP client coordinator: mode selection
// across transports, the connect/reconnect state machine, GGA cadence,
// and RTCM forwarding to a device link.
package ntrip

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bramburn/rtkcore/internal/eventbus"
	"github.com/bramburn/rtkcore/internal/gga"
	"github.com/bramburn/rtkcore/internal/position"
	"github.com/bramburn/rtkcore/internal/rtcm"
	"github.com/bramburn/rtkcore/internal/rtkerr"
)

// FrameSink receives validated RTCM frames, one call per frame, in the
// exact byte order the transport delivered them. Implemented by
// internal/devicelink adapters.
type FrameSink interface {
	Send(frame []byte) error
}

// FixSource supplies the last-known position for GGA generation.
// *position.Tracker satisfies this.
type FixSource interface {
	LastFix() (position.Fix, bool)
}

// modeOrder is the auto-mode attempt order of spec §4.5: WebSocket, then
// Direct, then Proxy.
var modeOrder = []string{"websocket", "direct", "proxy"}

// Client is the NTRIP coordinator. Every state transition happens while
// holding mu, matching the teacher's mutex-guarded `connected` flag in
// pkg/ntrip/client.go, generalized from a single bool to the full state
// machine of spec §4.5.
type Client struct {
	bus *eventbus.Bus
	log *logrus.Entry

	framer    *rtcm.Framer
	fixSource FixSource
	frameSink FrameSink

	transports map[string]Transport

	mu       sync.Mutex
	state    State
	cfg      NtripConfig
	session  Session
	attempts int
	stats    Stats

	cancelSession context.CancelFunc
	ggaStop       chan struct{}
	reconnectTmr  *time.Timer

	rng *rand.Rand
}

// NewClient returns an idle Client. fixSource and frameSink may be nil;
// a nil fixSource falls back to the default 0.1/0.1 GGA, a nil frameSink drops
// RTCM frames (recorded in stats, never an error).
func NewClient(bus *eventbus.Bus, fixSource FixSource, frameSink FrameSink, log *logrus.Entry) *Client {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Client{
		bus:        bus,
		log:        log,
		framer:     rtcm.NewFramer(bus, log),
		fixSource:  fixSource,
		frameSink:  frameSink,
		transports: make(map[string]Transport),
		stats:      Stats{MessageTypesSeen: make(map[uint16]int)},
		rng:        rand.New(rand.NewSource(1)),
	}
}

// RegisterTransport makes t available for mode selection under its
// Name(). Registering a transport under a name already in use replaces
// it.
func (c *Client) RegisterTransport(t Transport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transports[t.Name()] = t
}

// State reports the Client's current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns a coherent snapshot of the receive-path counters.
func (c *Client) Stats() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats.snapshot()
}

// Connect validates cfg and drives idle → connecting → connected,
// selecting a transport per spec §4.5's mode-selection rule. It returns
// once a transport has taken ownership of the session or every
// candidate has failed.
func (c *Client) Connect(ctx context.Context, cfg NtripConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.state != Idle {
		c.mu.Unlock()
		return rtkerr.New(rtkerr.Validation, "ntrip.Client.Connect", fmt.Errorf("connect called while in state %s", c.state))
	}
	c.state = Connecting
	c.cfg = cfg
	c.mu.Unlock()

	c.publish(eventbus.KindNtripConnecting, nil)

	session, transportName, err := c.openSession(ctx, cfg)
	if err != nil {
		c.mu.Lock()
		c.state = Idle
		c.mu.Unlock()
		c.publish(eventbus.KindNtripError, eventbus.ErrorPayload{Message: err.Error()})
		return err
	}

	sessionID := uuid.New().String()

	c.mu.Lock()
	c.state = Connected
	c.session = session
	c.attempts = 0
	c.stats.ConnectedAt = time.Now().UTC()
	c.stats.SessionID = sessionID
	sessCtx, cancel := context.WithCancel(ctx)
	c.cancelSession = cancel
	ggaStop := make(chan struct{})
	c.ggaStop = ggaStop
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{"sessionId": sessionID, "transport": transportName, "mountpoint": cfg.Mountpoint}).Info("ntrip: connected")
	c.publish(eventbus.KindNtripConnected, eventbus.NtripConnectedPayload{
		CasterHost: cfg.CasterHost,
		Mountpoint: cfg.Mountpoint,
		Mode:       transportName,
	})

	go c.readLoop(sessCtx, session)
	if cfg.SendGGA {
		go c.ggaLoop(sessCtx, session, ggaStop)
	}
	return nil
}

// openSession attempts the configured transport(s) per the mode
// selection rule: a named, available transport is tried alone; auto
// mode tries websocket, direct, proxy in order, skipping direct when the
// mixed-content guard applies.
func (c *Client) openSession(ctx context.Context, cfg NtripConfig) (Session, string, error) {
	tcfg := cfg.transportConfig()

	if cfg.ConnectionMode != ModeAuto {
		t, ok := c.transportFor(string(cfg.ConnectionMode))
		if !ok {
			return nil, "", rtkerr.New(rtkerr.Validation, "ntrip.Client.Connect", fmt.Errorf("transport %q is not registered", cfg.ConnectionMode))
		}
		s, err := t.Open(ctx, tcfg)
		if err != nil {
			return nil, "", rtkerr.New(rtkerr.Transient, "ntrip.Client.Connect", err)
		}
		return s, t.Name(), nil
	}

	var lastErr error
	for _, name := range modeOrder {
		if name == "direct" && cfg.AmbientTLS && cfg.CasterPort != 443 {
			c.publish(eventbus.KindNtripError, eventbus.ErrorPayload{Message: "mixed-content: skipping direct transport"})
			continue
		}
		t, ok := c.transportFor(name)
		if !ok {
			continue
		}
		s, err := t.Open(ctx, tcfg)
		if err == nil {
			return s, t.Name(), nil
		}
		if errors.Is(err, ErrMixedContent) {
			continue
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no transport available")
	}
	return nil, "", rtkerr.New(rtkerr.Fatal, "ntrip.Client.Connect", lastErr)
}

func (c *Client) transportFor(name string) (Transport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.transports[name]
	return t, ok
}

// Disconnect is idempotent: it stops the GGA timer, cancels the session
// read, releases the session, cancels any pending reconnect timer, and
// transitions to idle.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.state != Connected && c.state != Connecting {
		if c.reconnectTmr != nil {
			c.reconnectTmr.Stop()
		}
		c.state = Idle
		c.mu.Unlock()
		return
	}
	c.state = Closing
	session := c.session
	cancel := c.cancelSession
	ggaStop := c.ggaStop
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ggaStop != nil {
		close(ggaStop)
	}
	if session != nil {
		session.Close()
	}

	c.mu.Lock()
	c.session = nil
	c.state = Idle
	c.mu.Unlock()

	c.publish(eventbus.KindNtripDisconnected, eventbus.NtripDisconnectedPayload{Reason: "user disconnect"})
}

// readLoop pumps bytes from the session into the RTCM framer, forwards
// completed frames to the device link, and republishes them on the bus.
// It ends the connection (closing → idle) on EOF or any read error,
// matching spec §4.5's "connected → closing on ... stream EOF, transport
// error" transition, and schedules a reconnect if enabled.
func (c *Client) readLoop(ctx context.Context, session Session) {
	buf := make([]byte, 4096)

	for {
		n, err := session.Read(buf)
		if n > 0 {
			c.ingest(buf[:n])
		}
		if err != nil {
			c.handleSessionEnd(ctx, fmt.Errorf("ntrip: session read: %w", err))
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (c *Client) ingest(data []byte) {
	c.mu.Lock()
	c.stats.BytesReceived += int64(len(data))
	c.mu.Unlock()

	frames := c.framer.Feed(data)
	for _, f := range frames {
		raw := f.Bytes()

		c.mu.Lock()
		c.stats.FramesReceived++
		c.stats.LastFrameAt = time.Now().UTC()
		c.stats.MessageTypesSeen[f.Type]++
		sink := c.frameSink
		c.mu.Unlock()

		if sink != nil {
			if err := sink.Send(raw); err != nil {
				c.log.WithError(err).Warn("ntrip: device link send failed, dropping frame")
			}
		}
		c.publish(eventbus.KindNtripRTCM, eventbus.NtripRTCMPayload{Bytes: raw, Type: f.Type})
	}
}

// handleSessionEnd transitions connected → closing → idle and, if
// autoReconnect is enabled and attempts remain, schedules a reconnect
// per the exponential-backoff ladder.
func (c *Client) handleSessionEnd(ctx context.Context, cause error) {
	c.mu.Lock()
	if c.state == Closing || c.state == Idle {
		c.mu.Unlock()
		return
	}
	c.state = Closing
	cfg := c.cfg
	c.session = nil
	ggaStop := c.ggaStop
	cancel := c.cancelSession
	c.mu.Unlock()

	if ggaStop != nil {
		close(ggaStop)
	}
	if cancel != nil {
		cancel()
	}

	c.publish(eventbus.KindNtripDisconnected, eventbus.NtripDisconnectedPayload{Reason: cause.Error()})

	c.mu.Lock()
	c.state = Idle
	attempts := c.attempts
	c.mu.Unlock()

	if !cfg.AutoReconnect || attempts >= maxAttempts(cfg) {
		c.publish(eventbus.KindNtripError, eventbus.ErrorPayload{Message: "fatal: reconnect attempts exhausted"})
		return
	}

	c.scheduleReconnect(ctx, cfg)
}

func maxAttempts(cfg NtripConfig) int {
	if cfg.MaxAttempts > 0 {
		return cfg.MaxAttempts
	}
	return 5
}

func (c *Client) scheduleReconnect(ctx context.Context, cfg NtripConfig) {
	c.mu.Lock()
	c.state = Reconnecting
	c.attempts++
	attempts := c.attempts
	c.stats.ReconnectCount++
	delay := backoffDelay(attempts, c.rng)
	c.reconnectTmr = time.AfterFunc(delay, func() {
		c.mu.Lock()
		if c.state != Reconnecting {
			c.mu.Unlock()
			return
		}
		c.state = Idle
		c.mu.Unlock()
		if err := c.Connect(ctx, cfg); err != nil {
			c.log.WithError(err).Warn("ntrip: reconnect attempt failed")
			c.mu.Lock()
			retry := c.state == Idle && c.attempts < maxAttempts(cfg)
			c.mu.Unlock()
			if retry {
				c.scheduleReconnect(ctx, cfg)
			}
		}
	})
	c.mu.Unlock()
}

// ggaLoop implements the GGA cadence of spec §4.5: an immediate send on
// connect (falling back to the default/sentinel GGA with a warning if no
// fix is cached), retries at +1s/+3s if that initial send failed, then
// one send every cfg.GGAUpdateInterval.
func (c *Client) ggaLoop(ctx context.Context, session Session, stop chan struct{}) {
	interval := c.cfg.GGAUpdateInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	if !c.sendGGA(ctx, session) {
		c.retryGGA(ctx, session, stop, 1*time.Second)
		c.retryGGA(ctx, session, stop, 3*time.Second)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			c.sendScheduledGGA(ctx, session)
		}
	}
}

// sendScheduledGGA is the periodic-tick path of the §4.5 cadence. Unlike
// the immediate-on-connect send, it must not push a GGA built from a
// cached quality=0 fix (spec §3, §8): a quality=0 fix is reported but
// never used as a GGA source for NTRIP.
func (c *Client) sendScheduledGGA(ctx context.Context, session Session) bool {
	if c.fixSource != nil {
		if fix, ok := c.fixSource.LastFix(); ok && !fix.UsableForGGA() {
			c.log.Debug("ntrip: suppressing scheduled GGA, cached fix has quality 0")
			return true
		}
	}
	return c.sendGGA(ctx, session)
}

func (c *Client) retryGGA(ctx context.Context, session Session, stop chan struct{}, after time.Duration) {
	select {
	case <-ctx.Done():
		return
	case <-stop:
		return
	case <-time.After(after):
		c.sendGGA(ctx, session)
	}
}

// sendGGA formats the current fix (or, with no cached fix, a default
// position of 0.1/0.1 degrees with gga's default quality, satellites and
// HDOP) and pushes it through the session, recording success/failure in
// stats. The §4.3 sentinel is sent only if gga.Generate's self-check fails.
func (c *Client) sendGGA(ctx context.Context, session Session) bool {
	fix := position.Fix{Latitude: 0.1, Longitude: 0.1}
	if c.fixSource != nil {
		if f, ok := c.fixSource.LastFix(); ok {
			fix = f
		} else {
			c.log.Warn("ntrip: no cached fix, sending default GGA")
		}
	}

	sentence, _, err := gga.Generate(fix, time.Now().UTC())
	if err != nil {
		c.log.WithError(err).Warn("ntrip: gga generation fell back to sentinel")
	}

	sendErr := session.SendGGA(ctx, sentence)

	c.mu.Lock()
	if sendErr != nil {
		c.stats.GGAFailures++
	} else {
		c.stats.GGASent++
	}
	c.mu.Unlock()

	return sendErr == nil
}

func (c *Client) publish(kind eventbus.Kind, payload interface{}) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(eventbus.Event{Kind: kind, Payload: payload})
}

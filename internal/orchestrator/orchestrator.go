// Package orchestrator implements the device-side connection registry of
// spec §4.6: register transports, pick one by priority (or by explicit
// method name), and republish its byte stream on the event bus.
//
// Grounded on the teacher's internal/device.GNSSDevice capability
// interface (Connect/Disconnect/IsConnected/ReadRaw), generalized from a
// single concrete serial device into a transport-agnostic registry with
// more than one backend competing for the active slot.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/bramburn/rtkcore/internal/devicelink"
	"github.com/bramburn/rtkcore/internal/eventbus"
)

// ConnectOptions parameterizes a connect attempt. Method, when non-empty,
// pins the orchestrator to that one registered transport with no fallback.
type ConnectOptions struct {
	Method              string
	PreferredMethod     string
	RememberedDeviceID  string
	KnownDeviceProfile  bool
	RememberedPort      string
}

// Transport is the capability interface a connection backend implements.
// Grounded on the teacher's GNSSDevice interface, generalized to drop
// GNSS-specific methods (ChangeBaudRate, WriteCommand) in favor of the
// symmetric devicelink.Link contract returned by Connect.
type Transport interface {
	// Name identifies this transport for ConnectOptions.Method matching
	// and for connection-record bookkeeping.
	Name() string

	// IsAvailable reports whether this transport can currently be
	// attempted at all (e.g. the OS enumerates at least one matching
	// device). An unavailable transport is skipped during priority scan.
	IsAvailable() bool

	// Priority scores this transport for the given connect options.
	// Higher wins; ties broken by registration order.
	Priority(opts ConnectOptions) int

	// Connect opens a device link. ctx bounds the connect attempt only,
	// not the lifetime of the returned Link.
	Connect(ctx context.Context, opts ConnectOptions) (devicelink.Link, error)
}

// record is the per-transport bookkeeping entry of spec §4.6: {name,
// available, priority}. registered at Register time, never removed.
type record struct {
	transport Transport
	order     int
}

// Orchestrator owns the transport registry and the single active
// connection slot. All state transitions run under mu, matching the
// single-logical-event-loop model of spec §5.
type Orchestrator struct {
	mu        sync.Mutex
	bus       *eventbus.Bus
	log       *logrus.Entry
	records   []record
	active    devicelink.Link
	activeTr  string
	readDone  chan struct{}
}

// New returns an Orchestrator publishing to bus. log defaults to a fresh
// entry when nil, matching this module's convention of never touching the
// global logrus logger.
func New(bus *eventbus.Bus, log *logrus.Entry) *Orchestrator {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Orchestrator{bus: bus, log: log}
}

// Register adds t to the registry. Registration order is the tie-break
// for equal-priority transports and is never re-sorted.
func (o *Orchestrator) Register(t Transport) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records = append(o.records, record{transport: t, order: len(o.records)})
}

// Connect selects a transport per spec §4.6 and attempts it. If
// opts.Method names a registered transport, only that one is tried, with
// no fallback to others even if it fails. Otherwise every available
// transport is tried in priority order (ties broken by registration
// order) until one succeeds.
func (o *Orchestrator) Connect(ctx context.Context, opts ConnectOptions) bool {
	candidates := o.candidates(opts)
	if len(candidates) == 0 {
		o.publishError(fmt.Sprintf("no available transport for method %q", opts.Method))
		return false
	}

	for _, t := range candidates {
		link, err := t.Connect(ctx, opts)
		if err != nil {
			o.log.WithFields(logrus.Fields{"transport": t.Name(), "err": err}).Warn("orchestrator: connect attempt failed")
			continue
		}
		o.activate(t.Name(), link)
		return true
	}

	o.publishError("all candidate transports failed to connect")
	return false
}

// candidates returns the ordered list of transports Connect should try.
func (o *Orchestrator) candidates(opts ConnectOptions) []Transport {
	o.mu.Lock()
	defer o.mu.Unlock()

	if opts.Method != "" {
		for _, r := range o.records {
			if r.transport.Name() == opts.Method && r.transport.IsAvailable() {
				return []Transport{r.transport}
			}
		}
		return nil
	}

	available := make([]record, 0, len(o.records))
	for _, r := range o.records {
		if r.transport.IsAvailable() {
			available = append(available, r)
		}
	}
	sort.SliceStable(available, func(i, j int) bool {
		pi := available[i].transport.Priority(opts)
		pj := available[j].transport.Priority(opts)
		if pi != pj {
			return pi > pj
		}
		return available[i].order < available[j].order
	})

	out := make([]Transport, len(available))
	for i, r := range available {
		out[i] = r.transport
	}
	return out
}

// activate installs link as the active connection and starts its read
// loop. Any previously active link is closed first.
func (o *Orchestrator) activate(name string, link devicelink.Link) {
	o.mu.Lock()
	if o.active != nil {
		o.active.Close()
		close(o.readDone)
	}
	o.active = link
	o.activeTr = name
	o.readDone = make(chan struct{})
	done := o.readDone
	o.mu.Unlock()

	o.bus.Publish(eventbus.Event{
		Kind:    eventbus.KindConnectionConnected,
		Payload: eventbus.ConnectionPayload{Transport: name},
	})

	go o.readLoop(link, done)
}

// readLoop pulls bytes from link until it errors or the slot is
// superseded, republishing each batch as device:data.
func (o *Orchestrator) readLoop(link devicelink.Link, done chan struct{}) {
	for {
		data, err := link.Receive()
		if err != nil {
			select {
			case <-done:
				return // superseded by a newer connect or an explicit Disconnect
			default:
			}
			o.clearActive(link, fmt.Sprintf("read error: %v", err))
			return
		}
		if len(data) == 0 {
			continue
		}
		o.bus.Publish(eventbus.Event{
			Kind:    eventbus.KindDeviceData,
			Payload: eventbus.DeviceDataPayload{Bytes: data},
		})
	}
}

// clearActive drops the active slot if link is still the current one and
// publishes connection:disconnected.
func (o *Orchestrator) clearActive(link devicelink.Link, reason string) {
	o.mu.Lock()
	if o.active != link {
		o.mu.Unlock()
		return
	}
	name := o.activeTr
	o.active = nil
	o.activeTr = ""
	o.mu.Unlock()

	o.bus.Publish(eventbus.Event{
		Kind:    eventbus.KindConnectionDisconnected,
		Payload: eventbus.ConnectionPayload{Transport: name, Reason: reason},
	})
}

// SendData delegates to the active transport. Returns false if none is
// active. A send error is logged as a warning, per spec §4.6, and does
// not tear down the connection.
func (o *Orchestrator) SendData(data []byte) bool {
	o.mu.Lock()
	active := o.active
	name := o.activeTr
	o.mu.Unlock()

	if active == nil {
		return false
	}
	if err := active.Send(data); err != nil {
		o.log.WithFields(logrus.Fields{"transport": name, "err": err}).Warn("orchestrator: send failed")
	}
	return true
}

// Disconnect closes the active link, if any, and clears the slot.
func (o *Orchestrator) Disconnect() {
	o.mu.Lock()
	active := o.active
	done := o.readDone
	name := o.activeTr
	o.active = nil
	o.activeTr = ""
	o.mu.Unlock()

	if active == nil {
		return
	}
	close(done)
	active.Close()

	o.bus.Publish(eventbus.Event{
		Kind:    eventbus.KindConnectionDisconnected,
		Payload: eventbus.ConnectionPayload{Transport: name, Reason: "disconnect requested"},
	})
}

// Active reports the name of the currently active transport, if any.
func (o *Orchestrator) Active() (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return "", false
	}
	return o.activeTr, true
}

func (o *Orchestrator) publishError(message string) {
	o.bus.Publish(eventbus.Event{
		Kind:    eventbus.KindConnectionError,
		Payload: eventbus.ErrorPayload{Message: message},
	})
}

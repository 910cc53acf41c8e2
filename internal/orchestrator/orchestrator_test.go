package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bramburn/rtkcore/internal/devicelink"
	"github.com/bramburn/rtkcore/internal/eventbus"
)

// fakeLink is a controllable devicelink.Link: Receive drains a channel of
// chunks and returns an error once closed.
type fakeLink struct {
	mu      sync.Mutex
	chunks  chan []byte
	closed  bool
	sent    [][]byte
	sendErr error
}

func newFakeLink() *fakeLink {
	return &fakeLink{chunks: make(chan []byte, 16)}
}

func (l *fakeLink) Send(data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, append([]byte(nil), data...))
	return l.sendErr
}

func (l *fakeLink) Receive() ([]byte, error) {
	chunk, ok := <-l.chunks
	if !ok {
		return nil, errors.New("fakeLink: closed")
	}
	return chunk, nil
}

func (l *fakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	close(l.chunks)
	return nil
}

// fakeTransport is a Transport with scriptable availability/priority/link.
type fakeTransport struct {
	name      string
	available bool
	priority  int
	link      devicelink.Link
	connErr   error
	connected int
}

func (t *fakeTransport) Name() string                       { return t.name }
func (t *fakeTransport) IsAvailable() bool                   { return t.available }
func (t *fakeTransport) Priority(opts ConnectOptions) int    { return t.priority }
func (t *fakeTransport) Connect(ctx context.Context, opts ConnectOptions) (devicelink.Link, error) {
	t.connected++
	if t.connErr != nil {
		return nil, t.connErr
	}
	return t.link, nil
}

func TestOrchestratorPrefersHigherPriorityTransport(t *testing.T) {
	bus := eventbus.New()
	o := New(bus, nil)

	low := &fakeTransport{name: "low", available: true, priority: 3, link: newFakeLink()}
	high := &fakeTransport{name: "high", available: true, priority: 9, link: newFakeLink()}
	o.Register(low)
	o.Register(high)

	ok := o.Connect(context.Background(), ConnectOptions{})
	require.True(t, ok)
	assert.Equal(t, 1, high.connected)
	assert.Equal(t, 0, low.connected)

	name, active := o.Active()
	assert.True(t, active)
	assert.Equal(t, "high", name)
}

func TestOrchestratorHonorsExplicitMethodWithNoFallback(t *testing.T) {
	bus := eventbus.New()
	o := New(bus, nil)

	failing := &fakeTransport{name: "serial", available: true, priority: 5, connErr: errors.New("no device")}
	preferred := &fakeTransport{name: "bluetooth", available: true, priority: 100, link: newFakeLink()}
	o.Register(failing)
	o.Register(preferred)

	ok := o.Connect(context.Background(), ConnectOptions{Method: "serial"})
	assert.False(t, ok)
	assert.Equal(t, 1, failing.connected)
	assert.Equal(t, 0, preferred.connected) // no fallback even though it would have succeeded
}

func TestOrchestratorFallsThroughOnFailure(t *testing.T) {
	bus := eventbus.New()
	o := New(bus, nil)

	failing := &fakeTransport{name: "a", available: true, priority: 10, connErr: errors.New("dial failed")}
	succeeding := &fakeTransport{name: "b", available: true, priority: 5, link: newFakeLink()}
	o.Register(failing)
	o.Register(succeeding)

	ok := o.Connect(context.Background(), ConnectOptions{})
	assert.True(t, ok)
	assert.Equal(t, 1, failing.connected)
	assert.Equal(t, 1, succeeding.connected)
}

func TestOrchestratorSkipsUnavailableTransports(t *testing.T) {
	bus := eventbus.New()
	o := New(bus, nil)

	unavailable := &fakeTransport{name: "a", available: false, priority: 100}
	available := &fakeTransport{name: "b", available: true, priority: 1, link: newFakeLink()}
	o.Register(unavailable)
	o.Register(available)

	ok := o.Connect(context.Background(), ConnectOptions{})
	assert.True(t, ok)
	assert.Equal(t, 0, unavailable.connected)
	assert.Equal(t, 1, available.connected)
}

func TestOrchestratorRepublishesReceivedBytesAsDeviceData(t *testing.T) {
	bus := eventbus.New()
	o := New(bus, nil)

	received := make(chan []byte, 4)
	bus.Subscribe(eventbus.KindDeviceData, func(evt eventbus.Event) {
		received <- evt.Payload.(eventbus.DeviceDataPayload).Bytes
	})

	link := newFakeLink()
	tr := &fakeTransport{name: "serial", available: true, priority: 1, link: link}
	o.Register(tr)
	require.True(t, o.Connect(context.Background(), ConnectOptions{}))

	link.chunks <- []byte("hello")

	select {
	case data := <-received:
		assert.Equal(t, "hello", string(data))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for device:data republish")
	}
}

func TestOrchestratorDisconnectClearsActiveSlotAndPublishes(t *testing.T) {
	bus := eventbus.New()
	o := New(bus, nil)

	disconnected := make(chan eventbus.ConnectionPayload, 1)
	bus.Subscribe(eventbus.KindConnectionDisconnected, func(evt eventbus.Event) {
		disconnected <- evt.Payload.(eventbus.ConnectionPayload)
	})

	link := newFakeLink()
	tr := &fakeTransport{name: "serial", available: true, priority: 1, link: link}
	o.Register(tr)
	require.True(t, o.Connect(context.Background(), ConnectOptions{}))

	o.Disconnect()

	_, active := o.Active()
	assert.False(t, active)

	select {
	case payload := <-disconnected:
		assert.Equal(t, "serial", payload.Transport)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for connection:disconnected")
	}
}

func TestOrchestratorSendDataDelegatesToActiveTransport(t *testing.T) {
	bus := eventbus.New()
	o := New(bus, nil)

	link := newFakeLink()
	tr := &fakeTransport{name: "serial", available: true, priority: 1, link: link}
	o.Register(tr)
	require.True(t, o.Connect(context.Background(), ConnectOptions{}))

	ok := o.SendData([]byte("cmd"))
	assert.True(t, ok)
	assert.Equal(t, [][]byte{[]byte("cmd")}, link.sent)
}

func TestOrchestratorSendDataReturnsFalseWithNoActiveTransport(t *testing.T) {
	o := New(eventbus.New(), nil)
	assert.False(t, o.SendData([]byte("cmd")))
}

func TestSerialTransportPriorityScoring(t *testing.T) {
	s := NewSerialTransport("/dev/ttyUSB0")
	assert.Equal(t, serialBasePriority, s.Priority(ConnectOptions{}))
	assert.Equal(t, serialBasePriority+serialPreferredBonus, s.Priority(ConnectOptions{PreferredMethod: "serial"}))
	assert.Equal(t, serialBasePriority+serialRememberedBonus, s.Priority(ConnectOptions{RememberedPort: "/dev/ttyUSB0"}))
}

func TestBluetoothTransportPriorityScoring(t *testing.T) {
	b := NewBluetoothTransport(true)
	assert.Equal(t, bluetoothBasePriority, b.Priority(ConnectOptions{}))
	full := b.Priority(ConnectOptions{PreferredMethod: "bluetooth", RememberedDeviceID: "dev-1", KnownDeviceProfile: true})
	assert.Equal(t, bluetoothBasePriority+bluetoothPreferredBonus+bluetoothRememberedBonus+bluetoothProfileBonus, full)
}

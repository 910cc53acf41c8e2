// Package devicelink defines the abstract bidirectional byte transport a
// connection orchestrator drives, plus one concrete implementation over a
// serial port.
package devicelink

// Link is the contract spec §4.7 treats as external: something the
// orchestrator can send bytes to and receive bytes from, symmetrically
// with the NTRIP Session of internal/ntrip, but device-facing rather than
// caster-facing.
type Link interface {
	// Send writes data to the device. Implementations must not coalesce
	// or fragment the caller's byte slice.
	Send(data []byte) error

	// Receive blocks until at least one byte is available, or returns an
	// error (including a timeout configured by the implementation).
	Receive() ([]byte, error)

	// Close releases the underlying transport. Close must be safe to call
	// more than once.
	Close() error
}

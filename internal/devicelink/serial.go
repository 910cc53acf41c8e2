package devicelink

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// SerialConfig holds the port parameters a SerialLink opens with. Grounded
// on the teacher's internal/port.SerialConfig, generalized away from a
// TOPGNSS-specific default baud rate.
type SerialConfig struct {
	BaudRate    int
	DataBits    int
	Parity      serial.Parity
	StopBits    serial.StopBits
	ReadTimeout time.Duration
}

// DefaultSerialConfig returns 38400-8-N-1 with a 500ms read timeout, the
// teacher's default for a TOPGNSS TOP708 receiver.
func DefaultSerialConfig() SerialConfig {
	return SerialConfig{
		BaudRate:    38400,
		DataBits:    8,
		Parity:      serial.NoParity,
		StopBits:    serial.OneStopBit,
		ReadTimeout: 500 * time.Millisecond,
	}
}

// PortDescriptor describes one enumerated serial port, generalized from the
// teacher's device.PortDetail.
type PortDescriptor struct {
	Name    string
	IsUSB   bool
	VID     uint16
	PID     uint16
	Product string
}

// SerialLink is a Link over a physical or USB-CDC serial port. Grounded on
// the teacher's internal/port.GNSSSerialPort, adapted from the SerialPort
// interface (Open/Read/Write/SetReadTimeout) to the Link contract
// (Send/Receive/Close) and generalized to any serial device, not just a
// GNSS receiver.
type SerialLink struct {
	mu       sync.Mutex
	port     serial.Port
	portName string
	config   SerialConfig
	closed   bool

	readBuf []byte
}

// OpenSerialLink opens portName with cfg and returns a ready-to-use
// SerialLink.
func OpenSerialLink(portName string, cfg SerialConfig) (*SerialLink, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		Parity:   cfg.Parity,
		StopBits: cfg.StopBits,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("devicelink: opening serial port %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("devicelink: setting read timeout: %w", err)
	}

	return &SerialLink{
		port:     port,
		portName: portName,
		config:   cfg,
		readBuf:  make([]byte, 1024),
	}, nil
}

func (l *SerialLink) Send(data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("devicelink: send on closed link")
	}
	n, err := l.port.Write(data)
	if err != nil {
		return fmt.Errorf("devicelink: write: %w", err)
	}
	if n != len(data) {
		return fmt.Errorf("devicelink: short write: wrote %d of %d bytes", n, len(data))
	}
	return nil
}

// Receive reads one batch of bytes, retrying past read-timeout zero-byte
// returns (go.bug.st/serial's signal for "no data within ReadTimeout, port
// still healthy") until data arrives or the port errors.
func (l *SerialLink) Receive() ([]byte, error) {
	for {
		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			return nil, fmt.Errorf("devicelink: receive on closed link")
		}
		port := l.port
		buf := l.readBuf
		l.mu.Unlock()

		n, err := port.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("devicelink: read: %w", err)
		}
		if n > 0 {
			out := make([]byte, n)
			copy(out, buf[:n])
			return out, nil
		}
		// n == 0, err == nil: read timeout elapsed, try again.
	}
}

func (l *SerialLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.port.Close()
}

// ChangeBaudRate closes and reopens the port at a new baud rate, since
// go.bug.st/serial has no in-place baud change.
func (l *SerialLink) ChangeBaudRate(baudRate int) error {
	l.mu.Lock()
	portName := l.portName
	cfg := l.config
	l.mu.Unlock()

	if err := l.Close(); err != nil {
		return fmt.Errorf("devicelink: closing before baud change: %w", err)
	}

	cfg.BaudRate = baudRate
	reopened, err := OpenSerialLink(portName, cfg)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.port = reopened.port
	l.config = cfg
	l.closed = false
	l.mu.Unlock()
	return nil
}

// ListSerialPorts returns the names of every serial port the OS currently
// enumerates.
func ListSerialPorts() ([]string, error) {
	details, err := SerialPortDetails()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(details))
	for _, d := range details {
		names = append(names, d.Name)
	}
	return names, nil
}

// SerialPortDetails returns per-port identification (USB vendor/product
// IDs, product string) for every enumerated serial port.
func SerialPortDetails() ([]PortDescriptor, error) {
	raw, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("devicelink: enumerating ports: %w", err)
	}

	details := make([]PortDescriptor, 0, len(raw))
	for _, p := range raw {
		d := PortDescriptor{Name: p.Name, IsUSB: p.IsUSB, Product: p.Product}
		if p.IsUSB {
			if vid, err := parseHexToUint16(p.VID); err == nil {
				d.VID = vid
			}
			if pid, err := parseHexToUint16(p.PID); err == nil {
				d.PID = pid
			}
		}
		details = append(details, d)
	}
	return details, nil
}

// parseHexToUint16 parses a hex VID/PID string as reported by the OS's
// serial-port enumerator, with or without a 0x prefix.
func parseHexToUint16(hexStr string) (uint16, error) {
	hexStr = strings.TrimPrefix(strings.TrimPrefix(hexStr, "0x"), "0X")
	v, err := strconv.ParseUint(hexStr, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("devicelink: parsing hex id %q: %w", hexStr, err)
	}
	return uint16(v), nil
}

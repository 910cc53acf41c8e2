package orchestrator

import (
	"context"
	"fmt"

	"github.com/bramburn/rtkcore/internal/devicelink"
)

// serialBasePriority and serialPreferredBonus implement spec §4.6's serial
// scoring rule: base 5; +5 if preferredMethod=="serial"; +2 if a
// remembered port descriptor is present.
const (
	serialBasePriority     = 5
	serialPreferredBonus   = 5
	serialRememberedBonus  = 2
)

// SerialTransport is the one concrete Transport this module ships,
// grounded on the teacher's internal/port.GNSSSerialPort via
// devicelink.SerialLink. PortName, when set, pins which port Connect
// opens; otherwise Connect uses opts.RememberedPort, falling back to the
// first enumerated port.
type SerialTransport struct {
	PortName string
	Config   devicelink.SerialConfig
}

// NewSerialTransport returns a transport that opens PortName (if set) or
// whichever port ConnectOptions names, at DefaultSerialConfig.
func NewSerialTransport(portName string) *SerialTransport {
	return &SerialTransport{PortName: portName, Config: devicelink.DefaultSerialConfig()}
}

func (s *SerialTransport) Name() string { return "serial" }

func (s *SerialTransport) IsAvailable() bool {
	if s.PortName != "" {
		return true
	}
	ports, err := devicelink.ListSerialPorts()
	return err == nil && len(ports) > 0
}

func (s *SerialTransport) Priority(opts ConnectOptions) int {
	score := serialBasePriority
	if opts.PreferredMethod == "serial" {
		score += serialPreferredBonus
	}
	if opts.RememberedPort != "" {
		score += serialRememberedBonus
	}
	return score
}

func (s *SerialTransport) Connect(ctx context.Context, opts ConnectOptions) (devicelink.Link, error) {
	portName := s.PortName
	if portName == "" {
		portName = opts.RememberedPort
	}
	if portName == "" {
		ports, err := devicelink.ListSerialPorts()
		if err != nil {
			return nil, fmt.Errorf("orchestrator: enumerating serial ports: %w", err)
		}
		if len(ports) == 0 {
			return nil, fmt.Errorf("orchestrator: no serial ports available")
		}
		portName = ports[0]
	}
	return devicelink.OpenSerialLink(portName, s.Config)
}

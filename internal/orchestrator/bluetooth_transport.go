package orchestrator

import (
	"context"
	"fmt"

	"github.com/bramburn/rtkcore/internal/devicelink"
)

// bluetoothBasePriority and its bonuses implement spec §4.6's Bluetooth
// scoring rule: base 7; +3 if preferredMethod=="bluetooth"; +2 if a
// remembered device id is present; +1 for a known device profile hint.
const (
	bluetoothBasePriority    = 7
	bluetoothPreferredBonus  = 3
	bluetoothRememberedBonus = 2
	bluetoothProfileBonus    = 1
)

// BluetoothTransport is the priority-scoring half of spec §4.7's
// externally-supplied Bluetooth GATT device link. This module carries no
// GATT stack in its dependency corpus, so Connect reports unavailable
// rather than fabricating one; the scoring and registration behavior
// (the part the orchestrator itself owns) is fully implemented and
// exercised by TestBluetoothTransportPriorityScoring.
type BluetoothTransport struct {
	available bool
}

// NewBluetoothTransport returns a transport that participates in priority
// selection but never successfully connects, since no GATT driver backs
// it in this build.
func NewBluetoothTransport(available bool) *BluetoothTransport {
	return &BluetoothTransport{available: available}
}

func (b *BluetoothTransport) Name() string { return "bluetooth" }

func (b *BluetoothTransport) IsAvailable() bool { return b.available }

func (b *BluetoothTransport) Priority(opts ConnectOptions) int {
	score := bluetoothBasePriority
	if opts.PreferredMethod == "bluetooth" {
		score += bluetoothPreferredBonus
	}
	if opts.RememberedDeviceID != "" {
		score += bluetoothRememberedBonus
	}
	if opts.KnownDeviceProfile {
		score += bluetoothProfileBonus
	}
	return score
}

func (b *BluetoothTransport) Connect(ctx context.Context, opts ConnectOptions) (devicelink.Link, error) {
	return nil, fmt.Errorf("orchestrator: bluetooth device link not available in this build")
}

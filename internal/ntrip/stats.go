package ntrip

import "time"

// Stats is the Client's receive-path counters, grounded on the teacher's
// RTKStats snapshot pattern in pkg/ntrip/rtk_processor.go, adapted from
// RTK solution counts to RTCM message/byte counters.
type Stats struct {
	SessionID        string
	BytesReceived    int64
	FramesReceived   int
	GGASent          int
	GGAFailures      int
	ReconnectCount   int
	LastFrameAt      time.Time
	ConnectedAt      time.Time
	MessageTypesSeen map[uint16]int
}

// Snapshot is a value copy of Stats safe to read without the Client's
// lock, satisfying the field-group-atomicity requirement of spec §5.
type Snapshot struct {
	SessionID        string
	BytesReceived    int64
	FramesReceived   int
	GGASent          int
	GGAFailures      int
	ReconnectCount   int
	LastFrameAt      time.Time
	ConnectedAt      time.Time
	MessageTypesSeen map[uint16]int
}

// CorrectionAge returns the time since the last RTCM frame was received,
// or zero if none has been received yet.
func (s Snapshot) CorrectionAge(now time.Time) time.Duration {
	if s.LastFrameAt.IsZero() {
		return 0
	}
	return now.Sub(s.LastFrameAt)
}

func (s *Stats) snapshot() Snapshot {
	types := make(map[uint16]int, len(s.MessageTypesSeen))
	for k, v := range s.MessageTypesSeen {
		types[k] = v
	}
	return Snapshot{
		SessionID:        s.SessionID,
		BytesReceived:    s.BytesReceived,
		FramesReceived:   s.FramesReceived,
		GGASent:          s.GGASent,
		GGAFailures:      s.GGAFailures,
		ReconnectCount:   s.ReconnectCount,
		LastFrameAt:      s.LastFrameAt,
		ConnectedAt:      s.ConnectedAt,
		MessageTypesSeen: types,
	}
}

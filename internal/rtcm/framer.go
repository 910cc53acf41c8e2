package rtcm

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/bramburn/rtkcore/internal/eventbus"
)

// Stats is a snapshot of the framer's receive-path counters. Stats are
// mutated only by Feed and read only via Snapshot, so observers always see
// a coherent, field-group-atomic view.
type Stats struct {
	MessagesReceived int
	BytesReceived    int64
	LastMessageAt    time.Time
	MessageTypesSeen map[uint16]int
}

// CorrectionAge returns the time elapsed since the last valid frame, or
// zero if none has been received.
func (s Stats) CorrectionAge(now time.Time) time.Duration {
	if s.LastMessageAt.IsZero() {
		return 0
	}
	return now.Sub(s.LastMessageAt)
}

// Framer scans a byte stream for RTCM 3 frames. It owns the partial-frame
// buffer (single-writer via Feed) and the receive statistics.
type Framer struct {
	buf []byte

	mu    sync.Mutex
	stats Stats

	bus *eventbus.Bus
	log *logrus.Entry
}

// NewFramer returns a Framer that publishes ntrip:sourcetable events onto
// bus when the stream turns out to be an HTML sourcetable rather than
// binary RTCM.
func NewFramer(bus *eventbus.Bus, log *logrus.Entry) *Framer {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Framer{
		bus:   bus,
		log:   log,
		stats: Stats{MessageTypesSeen: make(map[uint16]int)},
	}
}

// Feed appends data to the internal buffer and returns every RTCM frame
// completed by it, in byte order. Non-RTCM bytes are dropped; if they look
// like an NTRIP sourcetable response, ntrip:sourcetable is published once
// per contiguous run and the bytes are not returned to the caller.
func (f *Framer) Feed(data []byte) []Frame {
	f.buf = append(f.buf, data...)

	var out []Frame
	for len(f.buf) > 0 {
		if f.buf[0] != preamble {
			skip := f.consumeNonRTCM()
			if skip == 0 {
				break
			}
			continue
		}

		if len(f.buf) < headerLen {
			break // wait for more data
		}

		length := int(f.buf[1]&0x03)<<8 | int(f.buf[2])
		if !validLength(length) {
			f.log.Debug("rtcm: preamble with out-of-range length, dropping byte")
			f.buf = f.buf[1:]
			continue
		}

		total := totalLength(length)
		if len(f.buf) < total {
			break // wait for more data
		}

		payload := f.buf[headerLen : headerLen+length]
		msgType := uint16(payload[0])<<4 | uint16(payload[1])>>4

		frame := Frame{
			Type:   msgType,
			Length: uint16(length),
			raw:    append([]byte(nil), f.buf[:total]...),
		}
		f.recordStats(frame)
		out = append(out, frame)

		f.buf = f.buf[total:]
	}

	return out
}

// consumeNonRTCM drops the contiguous run of non-preamble bytes at the
// front of the buffer, checking it for NTRIP sourcetable markers before
// discarding it. It returns the number of bytes consumed.
func (f *Framer) consumeNonRTCM() int {
	end := 1
	for end < len(f.buf) && f.buf[end] != preamble {
		end++
	}
	chunk := f.buf[:end]
	f.buf = f.buf[end:]

	if utf8.Valid(chunk) {
		text := string(chunk)
		if strings.Contains(text, "SOURCETABLE") || strings.Contains(text, "STR;") {
			if f.bus != nil {
				f.bus.Publish(eventbus.Event{Kind: eventbus.KindNtripSourcetable})
			}
		}
	}
	return end
}

func (f *Framer) recordStats(frame Frame) {
	f.mu.Lock()
	f.stats.MessagesReceived++
	f.stats.BytesReceived += int64(len(frame.raw))
	f.stats.LastMessageAt = time.Now().UTC()
	f.stats.MessageTypesSeen[frame.Type]++
	f.mu.Unlock()
}

// Snapshot returns a coherent copy of the current statistics.
func (f *Framer) Snapshot() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make(map[uint16]int, len(f.stats.MessageTypesSeen))
	for k, v := range f.stats.MessageTypesSeen {
		types[k] = v
	}
	return Stats{
		MessagesReceived: f.stats.MessagesReceived,
		BytesReceived:    f.stats.BytesReceived,
		LastMessageAt:    f.stats.LastMessageAt,
		MessageTypesSeen: types,
	}
}

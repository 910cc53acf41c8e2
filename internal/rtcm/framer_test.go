package rtcm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bramburn/rtkcore/internal/eventbus"
)

func TestFeedValidatesMinimalFrame(t *testing.T) {
	f := NewFramer(eventbus.New(), nil)

	// Preamble D3, reserved+length = 3, payload 4C C0 00 encodes message
	// type 1228 in its first 12 bits, followed by a 3-byte CRC trailer.
	data := []byte{0xD3, 0x00, 0x03, 0x4C, 0xC0, 0x00, 0xAA, 0xBB, 0xCC}

	frames := f.Feed(data)

	require.Len(t, frames, 1)
	assert.EqualValues(t, 1228, frames[0].Type)
	assert.EqualValues(t, 3, frames[0].Length)
	assert.Equal(t, data, frames[0].Bytes())
}

func TestFeedRejectsLengthBelowMinimum(t *testing.T) {
	f := NewFramer(eventbus.New(), nil)

	// Length field of 2 is below the 3-byte floor; the preamble byte is
	// dropped and scanning resumes.
	data := []byte{0xD3, 0x00, 0x02, 0x01, 0x02, 0xAA, 0xBB, 0xCC}

	frames := f.Feed(data)
	assert.Empty(t, frames)
}

func TestFeedAcceptsMaximumLength(t *testing.T) {
	f := NewFramer(eventbus.New(), nil)

	payload := make([]byte, maxPayloadLen)
	data := append([]byte{0xD3, 0x03, 0xFF}, payload...)
	data = append(data, 0, 0, 0) // CRC trailer, not validated

	frames := f.Feed(data)
	require.Len(t, frames, 1)
	assert.EqualValues(t, maxPayloadLen, frames[0].Length)
}

func TestValidLengthBoundaries(t *testing.T) {
	assert.True(t, validLength(3))
	assert.True(t, validLength(1023))
	assert.False(t, validLength(2))
	assert.False(t, validLength(1024))
}

func TestFeedAssemblesFrameAcrossMultipleFeeds(t *testing.T) {
	f := NewFramer(eventbus.New(), nil)
	data := []byte{0xD3, 0x00, 0x03, 0x4C, 0xC0, 0x00, 0xAA, 0xBB, 0xCC}

	first := f.Feed(data[:4])
	assert.Empty(t, first)

	second := f.Feed(data[4:])
	require.Len(t, second, 1)
	assert.Equal(t, data, second[0].Bytes())
}

func TestFeedPreservesByteOrderAcrossMultipleFrames(t *testing.T) {
	f := NewFramer(eventbus.New(), nil)

	frame1 := []byte{0xD3, 0x00, 0x03, 0x4C, 0xC0, 0x00, 0xAA, 0xBB, 0xCC}
	frame2 := []byte{0xD3, 0x00, 0x03, 0x3E, 0x80, 0x00, 0x11, 0x22, 0x33}
	data := append(append([]byte{}, frame1...), frame2...)

	frames := f.Feed(data)
	require.Len(t, frames, 2)
	assert.Equal(t, frame1, frames[0].Bytes())
	assert.Equal(t, frame2, frames[1].Bytes())
}

func TestFeedDetectsSourcetableFallthrough(t *testing.T) {
	bus := eventbus.New()
	var gotSourcetable bool
	bus.Subscribe(eventbus.KindNtripSourcetable, func(eventbus.Event) { gotSourcetable = true })

	f := NewFramer(bus, nil)
	frames := f.Feed([]byte("SOURCETABLE 200 OK\r\nSTR;MOUNT1;...\r\nENDSOURCETABLE\r\n"))

	assert.Empty(t, frames)
	assert.True(t, gotSourcetable)
}

func TestStatsSnapshotTracksReceivedFrames(t *testing.T) {
	f := NewFramer(eventbus.New(), nil)
	data := []byte{0xD3, 0x00, 0x03, 0x4C, 0xC0, 0x00, 0xAA, 0xBB, 0xCC}

	f.Feed(data)
	f.Feed(data)

	snap := f.Snapshot()
	assert.Equal(t, 2, snap.MessagesReceived)
	assert.EqualValues(t, len(data)*2, snap.BytesReceived)
	assert.Equal(t, 2, snap.MessageTypesSeen[1228])
	assert.False(t, snap.LastMessageAt.IsZero())
}

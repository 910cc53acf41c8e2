package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscribeAndPublish(t *testing.T) {
	bus := New()

	var got []Event
	bus.Subscribe(KindPosition, func(evt Event) {
		got = append(got, evt)
	})

	bus.Publish(Event{Kind: KindPosition, Payload: PositionPayload{Latitude: 1.5}})

	assert.Len(t, got, 1)
	payload, ok := got[0].Payload.(PositionPayload)
	assert.True(t, ok)
	assert.Equal(t, 1.5, payload.Latitude)
}

func TestPublishOnlyReachesMatchingKind(t *testing.T) {
	bus := New()

	var positionCalls, satelliteCalls int
	bus.Subscribe(KindPosition, func(Event) { positionCalls++ })
	bus.Subscribe(KindSatellites, func(Event) { satelliteCalls++ })

	bus.Publish(Event{Kind: KindPosition})

	assert.Equal(t, 1, positionCalls)
	assert.Equal(t, 0, satelliteCalls)
}

func TestMultipleSubscribersAllInvoked(t *testing.T) {
	bus := New()

	var calls int
	bus.Subscribe(KindNtripError, func(Event) { calls++ })
	bus.Subscribe(KindNtripError, func(Event) { calls++ })

	bus.Publish(Event{Kind: KindNtripError, Payload: ErrorPayload{Message: "boom"}})

	assert.Equal(t, 2, calls)
}

func TestKindStringNamesAreStable(t *testing.T) {
	assert.Equal(t, "ntrip:rtcm", KindNtripRTCM.String())
	assert.Equal(t, "connection:disconnected", KindConnectionDisconnected.String())
}

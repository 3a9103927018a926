package ari

import (
	"testing"
	"time"

	"github.com/CyCoreSystems/ari/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClareAI/astra-call-bridge/internal/telephony"
)

type fakeSubscription struct {
	events    chan ari.Event
	cancelled chan struct{}
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{
		events:    make(chan ari.Event, 8),
		cancelled: make(chan struct{}),
	}
}

func (s *fakeSubscription) Events() <-chan ari.Event { return s.events }
func (s *fakeSubscription) Cancel()                  { close(s.cancelled) }

func TestSnoopOptionsCarryAppArgs(t *testing.T) {
	opts, err := snoopOptions("audio-control", telephony.MonitorInject, []string{"whisper-playback"})
	require.NoError(t, err)

	// Without app args the snoop channel would enter Stasis with an
	// empty arg list and be routed as a fresh inbound call.
	assert.Equal(t, "audio-control", opts.App)
	assert.Equal(t, "whisper-playback", opts.AppArgs)
}

func TestSnoopOptionsDirections(t *testing.T) {
	inject, err := snoopOptions("app", telephony.MonitorInject, []string{"whisper-playback"})
	require.NoError(t, err)
	assert.Equal(t, ari.Direction("none"), inject.Spy)
	assert.Equal(t, ari.Direction("out"), inject.Whisper)

	listen, err := snoopOptions("app", telephony.MonitorListen, []string{"transcribe"})
	require.NoError(t, err)
	assert.Equal(t, ari.Direction("in"), listen.Spy)
	assert.Equal(t, ari.Direction("none"), listen.Whisper)
}

func TestSnoopOptionsUnknownMode(t *testing.T) {
	_, err := snoopOptions("app", telephony.MonitorMode("both"), nil)
	require.Error(t, err)
}

func TestPlaybackWatchResolvesOnFinished(t *testing.T) {
	sub := newFakeSubscription()
	pb := &playback{id: "pb-1", done: make(chan struct{})}
	go pb.watch(sub)

	// Events for other playbacks and of other types are ignored.
	sub.events <- &ari.PlaybackStarted{Playback: ari.PlaybackData{ID: "pb-1"}}
	sub.events <- &ari.PlaybackFinished{Playback: ari.PlaybackData{ID: "pb-other"}}
	select {
	case <-pb.Done():
		t.Fatal("playback resolved on an unrelated event")
	case <-time.After(20 * time.Millisecond):
	}

	sub.events <- &ari.PlaybackFinished{Playback: ari.PlaybackData{ID: "pb-1"}}
	select {
	case <-pb.Done():
	case <-time.After(time.Second):
		t.Fatal("playback did not resolve on its finished event")
	}
	assert.NoError(t, pb.Err())

	select {
	case <-sub.cancelled:
	case <-time.After(time.Second):
		t.Fatal("subscription was not cancelled after resolution")
	}
}

func TestPlaybackWatchClosedStream(t *testing.T) {
	sub := newFakeSubscription()
	pb := &playback{id: "pb-1", done: make(chan struct{})}
	go pb.watch(sub)

	close(sub.events)
	select {
	case <-pb.Done():
	case <-time.After(time.Second):
		t.Fatal("playback did not resolve on stream close")
	}
	require.Error(t, pb.Err())
}

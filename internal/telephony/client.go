// Package telephony defines the control-plane contract the bridging core
// is written against. The concrete implementation (Asterisk ARI) lives in
// internal/adapters/ari; tests use the fake in telephonytest.
package telephony

import (
	"context"
	"errors"
	"time"
)

// LegStateUp is the leg state reported once the far end has fully answered.
const LegStateUp = "Up"

// MonitorMode selects the audio direction of a monitor leg. A monitor leg
// either injects audio into its target (whisper) or listens to it
// (capture), never both.
type MonitorMode string

const (
	// MonitorInject attaches the monitor leg for one-way playback into
	// the target leg.
	MonitorInject MonitorMode = "inject"
	// MonitorListen attaches the monitor leg for one-way capture of the
	// target leg's inbound audio.
	MonitorListen MonitorMode = "listen"
)

// ErrTapUnavailable is returned by TapAudio when no media gateway has
// been configured to deliver raw frames from a monitor leg.
var ErrTapUnavailable = errors.New("telephony: audio tap not available")

// OriginateRequest describes a new outbound leg to be dialed by the
// control plane.
type OriginateRequest struct {
	Endpoint   string
	AppArgs    []string
	CallerID   string
	Timeout    time.Duration
	Variables  map[string]string
	EarlyMedia bool
}

// PlaybackTarget is a tagged variant selecting where media is played:
// on a bridge (all parties) or on a single leg.
type PlaybackTarget struct {
	bridgeID string
	legID    string
}

// BridgeTarget addresses playback at a whole bridge.
func BridgeTarget(bridgeID string) PlaybackTarget {
	return PlaybackTarget{bridgeID: bridgeID}
}

// LegTarget addresses playback at a single leg.
func LegTarget(legID string) PlaybackTarget {
	return PlaybackTarget{legID: legID}
}

// BridgeID returns the bridge id and whether the target is a bridge.
func (t PlaybackTarget) BridgeID() (string, bool) {
	return t.bridgeID, t.bridgeID != ""
}

// LegID returns the leg id and whether the target is a leg.
func (t PlaybackTarget) LegID() (string, bool) {
	return t.legID, t.legID != ""
}

// Playback is a handle for an in-flight playback operation. Done is
// closed when the control plane reports the playback finished or failed;
// Err is valid only after Done is closed and is nil on success.
type Playback interface {
	Done() <-chan struct{}
	Err() error
}

// MediaTap delivers raw audio frames captured from a monitor leg. How
// frames physically leave the telephony plane is an external capability;
// implementations are injected into the ARI adapter.
type MediaTap interface {
	// Frames returns an ordered stream of PCM frames. The channel is
	// closed when the tap ends.
	Frames() <-chan []byte
	Close() error
}

// Event is a leg lifecycle notification from the control plane.
type Event interface{ isEvent() }

// LegEntered reports a leg entering the application, with the structured
// argument list it was started with.
type LegEntered struct {
	LegID string
	Args  []string
}

// LegStateChanged reports a leg state transition ("Ringing", "Up", ...).
type LegStateChanged struct {
	LegID string
	State string
}

// LegLeft reports a leg leaving the application.
type LegLeft struct {
	LegID string
}

func (LegEntered) isEvent()      {}
func (LegStateChanged) isEvent() {}
func (LegLeft) isEvent()         {}

// Client executes commands against the telephony control plane and
// delivers leg lifecycle events. All methods block for at most one
// network round-trip; long-running outcomes (playback completion, leg
// answer) surface through Playback handles and Events.
type Client interface {
	// Events returns the stream of leg lifecycle events. The channel is
	// closed when the underlying connection goes away.
	Events() <-chan Event

	CreateBridge(ctx context.Context) (bridgeID string, err error)
	AddLegs(ctx context.Context, bridgeID string, legIDs ...string) error
	DestroyBridge(ctx context.Context, bridgeID string) error

	// Originate dials a new leg and returns its id immediately; answer
	// progress is reported via LegStateChanged events.
	Originate(ctx context.Context, req OriginateRequest) (legID string, err error)
	Answer(ctx context.Context, legID string) error
	Hangup(ctx context.Context, legID string) error

	Play(ctx context.Context, target PlaybackTarget, mediaURI string) (Playback, error)

	// CreateMonitorLeg attaches a one-way monitor leg to an existing leg.
	// monitorID is caller-chosen so the caller can correlate the leg's
	// LegEntered event before the command even returns.
	CreateMonitorLeg(ctx context.Context, legID string, mode MonitorMode, monitorID string, appArgs ...string) error

	// TapAudio opens a raw audio frame stream for a listen-mode monitor
	// leg. Returns ErrTapUnavailable when no media gateway is wired.
	TapAudio(ctx context.Context, legID string) (MediaTap, error)

	// Connected reports whether the control-plane connection is alive.
	Connected() bool

	Close() error
}

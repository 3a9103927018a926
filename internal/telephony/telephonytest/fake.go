// Package telephonytest provides an in-memory telephony.Client for
// exercising the bridging core without a control plane.
package telephonytest

import (
	"context"
	"fmt"
	"sync"

	"github.com/ClareAI/astra-call-bridge/internal/telephony"
)

// PlayCall records one Play invocation together with its resolvable
// handle.
type PlayCall struct {
	Target   telephony.PlaybackTarget
	MediaURI string
	Playback *Playback
}

// MonitorCall records one CreateMonitorLeg invocation.
type MonitorCall struct {
	LegID     string
	Mode      telephony.MonitorMode
	MonitorID string
	Args      []string
}

// Playback is a manually resolvable playback handle.
type Playback struct {
	done chan struct{}
	once sync.Once
	err  error
}

// NewPlayback returns an unresolved playback handle.
func NewPlayback() *Playback {
	return &Playback{done: make(chan struct{})}
}

// Finish resolves the playback successfully.
func (p *Playback) Finish() { p.resolve(nil) }

// Fail resolves the playback with an error.
func (p *Playback) Fail(err error) { p.resolve(err) }

func (p *Playback) resolve(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

func (p *Playback) Done() <-chan struct{} { return p.done }
func (p *Playback) Err() error            { return p.err }

// Tap is a manually fed media tap.
type Tap struct {
	frames    chan []byte
	closeOnce sync.Once
}

// NewTap returns a tap with a buffered frame channel.
func NewTap() *Tap {
	return &Tap{frames: make(chan []byte, 16)}
}

// Push feeds one frame to the consumer.
func (t *Tap) Push(frame []byte) { t.frames <- frame }

func (t *Tap) Frames() <-chan []byte { return t.frames }

func (t *Tap) Close() error {
	t.closeOnce.Do(func() { close(t.frames) })
	return nil
}

// Fake is an in-memory telephony.Client. Error fields inject failures
// for the corresponding commands; the zero value of each means success.
type Fake struct {
	mu sync.Mutex

	events     chan telephony.Event
	nextBridge int
	nextLeg    int

	bridgeLegs map[string][]string
	destroyed  []string
	answered   []string
	hungup     []string
	originated []telephony.OriginateRequest
	monitors   []MonitorCall
	plays      []PlayCall

	CreateBridgeErr error
	AddLegsErr      error
	DestroyErr      error
	OriginateErr    error
	AnswerErr       error
	HangupErr       map[string]error
	PlayErr         error
	MonitorErr      error

	// TapFunc implements TapAudio; nil means ErrTapUnavailable.
	TapFunc func(ctx context.Context, legID string) (telephony.MediaTap, error)

	// Disconnected flips Connected() to false.
	Disconnected bool

	// OnOriginate, when set, runs after a successful originate has been
	// recorded, before the leg id is returned. It lets tests interleave
	// a teardown with an in-flight origination.
	OnOriginate func(legID string)
}

// New creates a fake with a buffered event stream.
func New() *Fake {
	return &Fake{
		events:     make(chan telephony.Event, 64),
		bridgeLegs: make(map[string][]string),
	}
}

// Emit delivers an event to the dispatcher, as the control plane would.
func (f *Fake) Emit(e telephony.Event) { f.events <- e }

// CloseEvents ends the event stream.
func (f *Fake) CloseEvents() { close(f.events) }

func (f *Fake) Events() <-chan telephony.Event { return f.events }

func (f *Fake) CreateBridge(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateBridgeErr != nil {
		return "", f.CreateBridgeErr
	}
	f.nextBridge++
	id := fmt.Sprintf("b%d", f.nextBridge)
	f.bridgeLegs[id] = nil
	return id, nil
}

func (f *Fake) AddLegs(ctx context.Context, bridgeID string, legIDs ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AddLegsErr != nil {
		return f.AddLegsErr
	}
	f.bridgeLegs[bridgeID] = append(f.bridgeLegs[bridgeID], legIDs...)
	return nil
}

func (f *Fake) DestroyBridge(ctx context.Context, bridgeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = append(f.destroyed, bridgeID)
	return f.DestroyErr
}

func (f *Fake) Originate(ctx context.Context, req telephony.OriginateRequest) (string, error) {
	f.mu.Lock()
	if f.OriginateErr != nil {
		f.mu.Unlock()
		return "", f.OriginateErr
	}
	f.nextLeg++
	id := fmt.Sprintf("leg-%d", f.nextLeg)
	f.originated = append(f.originated, req)
	hook := f.OnOriginate
	f.mu.Unlock()
	if hook != nil {
		hook(id)
	}
	return id, nil
}

func (f *Fake) Answer(ctx context.Context, legID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AnswerErr != nil {
		return f.AnswerErr
	}
	f.answered = append(f.answered, legID)
	return nil
}

func (f *Fake) Hangup(ctx context.Context, legID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hungup = append(f.hungup, legID)
	if f.HangupErr != nil {
		return f.HangupErr[legID]
	}
	return nil
}

func (f *Fake) Play(ctx context.Context, target telephony.PlaybackTarget, mediaURI string) (telephony.Playback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PlayErr != nil {
		return nil, f.PlayErr
	}
	pb := NewPlayback()
	f.plays = append(f.plays, PlayCall{Target: target, MediaURI: mediaURI, Playback: pb})
	return pb, nil
}

func (f *Fake) CreateMonitorLeg(ctx context.Context, legID string, mode telephony.MonitorMode, monitorID string, appArgs ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.MonitorErr != nil {
		return f.MonitorErr
	}
	f.monitors = append(f.monitors, MonitorCall{LegID: legID, Mode: mode, MonitorID: monitorID, Args: appArgs})
	return nil
}

func (f *Fake) TapAudio(ctx context.Context, legID string) (telephony.MediaTap, error) {
	if f.TapFunc == nil {
		return nil, telephony.ErrTapUnavailable
	}
	return f.TapFunc(ctx, legID)
}

func (f *Fake) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.Disconnected
}

func (f *Fake) Close() error { return nil }

// --- inspection helpers ---

// BridgeLegs returns the legs added to a bridge so far.
func (f *Fake) BridgeLegs(bridgeID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.bridgeLegs[bridgeID]...)
}

// Destroyed returns destroyed bridge ids in order.
func (f *Fake) Destroyed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.destroyed...)
}

// Answered returns answered leg ids in order.
func (f *Fake) Answered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.answered...)
}

// Hungup returns hung-up leg ids in order.
func (f *Fake) Hungup() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.hungup...)
}

// Originated returns recorded originate requests.
func (f *Fake) Originated() []telephony.OriginateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]telephony.OriginateRequest(nil), f.originated...)
}

// Monitors returns recorded monitor-leg requests.
func (f *Fake) Monitors() []MonitorCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]MonitorCall(nil), f.monitors...)
}

// Plays returns recorded playbacks.
func (f *Fake) Plays() []PlayCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]PlayCall(nil), f.plays...)
}

var _ telephony.Client = (*Fake)(nil)

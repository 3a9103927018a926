package transcribe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClareAI/astra-call-bridge/internal/core/registry"
	"github.com/ClareAI/astra-call-bridge/internal/domain"
	"github.com/ClareAI/astra-call-bridge/internal/telephony"
	"github.com/ClareAI/astra-call-bridge/internal/telephony/telephonytest"
	pkgtranscribe "github.com/ClareAI/astra-call-bridge/pkg/transcribe"
)

type fakeSpawner struct {
	mu     sync.Mutex
	calls  []string
	modes  []telephony.MonitorMode
	legID  string
	err    error
	nextID int
}

func (f *fakeSpawner) SpawnMonitorLeg(ctx context.Context, targetLegID string, mode telephony.MonitorMode, tag string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.calls = append(f.calls, targetLegID)
	f.modes = append(f.modes, mode)
	f.nextID++
	f.legID = tag + "-leg"
	return f.legID, nil
}

type fakeStream struct {
	mu      sync.Mutex
	sent    [][]byte
	results chan pkgtranscribe.Result
	once    sync.Once
	err     error
}

func newFakeStream() *fakeStream {
	return &fakeStream{results: make(chan pkgtranscribe.Result, 16)}
}

func (s *fakeStream) Send(ctx context.Context, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, frame)
	return nil
}

func (s *fakeStream) Results() <-chan pkgtranscribe.Result { return s.results }

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.results) })
	return nil
}

func (s *fakeStream) Err() error { return s.err }

func (s *fakeStream) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type fakeStreamer struct {
	stream  *fakeStream
	openErr error
	cfg     pkgtranscribe.StreamConfig
}

func (f *fakeStreamer) Open(ctx context.Context, cfg pkgtranscribe.StreamConfig) (pkgtranscribe.Stream, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.cfg = cfg
	return f.stream, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	channels []string
	messages []interface{}
}

func (p *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, channel)
	p.messages = append(p.messages, message)
	return nil
}

func (p *fakePublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.channels...)
}

func newTestSetup(t *testing.T) (*Service, *telephonytest.Fake, *registry.Registry, *fakeSpawner, *fakeStreamer, *fakePublisher, *telephonytest.Tap) {
	t.Helper()
	fake := telephonytest.New()
	reg := registry.New()
	spawner := &fakeSpawner{}
	streamer := &fakeStreamer{stream: newFakeStream()}
	pub := &fakePublisher{}
	tap := telephonytest.NewTap()
	fake.TapFunc = func(ctx context.Context, legID string) (telephony.MediaTap, error) {
		return tap, nil
	}

	svc := NewService(reg, fake, spawner, streamer, pub, Config{
		LanguageCode: "en-US",
		SampleRateHz: 8000,
	})

	reg.Create(domain.NewSession("b1", "caller-1"))
	return svc, fake, reg, spawner, streamer, pub, tap
}

func TestStartCapturesCallerLeg(t *testing.T) {
	svc, _, _, spawner, streamer, _, tap := newTestSetup(t)
	ctx := context.Background()

	require.NoError(t, svc.Start(ctx, "b1"))
	assert.True(t, svc.Active("b1"))

	require.Equal(t, []string{"caller-1"}, spawner.calls)
	require.Equal(t, []telephony.MonitorMode{telephony.MonitorListen}, spawner.modes)
	assert.Equal(t, "en-US", streamer.cfg.LanguageCode)
	assert.Equal(t, int32(8000), streamer.cfg.SampleRateHz)

	// Tapped frames flow into the speech stream.
	tap.Push([]byte{1, 2, 3})
	tap.Push([]byte{4, 5, 6})
	require.Eventually(t, func() bool {
		return streamer.stream.sentCount() == 2
	}, time.Second, time.Millisecond)
}

func TestResultsAreRetainedAndPublished(t *testing.T) {
	svc, _, _, _, streamer, pub, _ := newTestSetup(t)
	ctx := context.Background()

	require.NoError(t, svc.Start(ctx, "b1"))

	streamer.stream.results <- pkgtranscribe.Result{Text: "hello", IsFinal: false}
	streamer.stream.results <- pkgtranscribe.Result{Text: "hello there", IsFinal: true}

	require.Eventually(t, func() bool {
		transcript, ok := svc.Transcript("b1")
		return ok && len(transcript) == 2
	}, time.Second, time.Millisecond)

	transcript, ok := svc.Transcript("b1")
	require.True(t, ok)
	assert.Equal(t, "hello there", transcript[1].Text)
	assert.True(t, transcript[1].IsFinal)

	require.Eventually(t, func() bool {
		return len(pub.published()) == 2
	}, time.Second, time.Millisecond)
	assert.Equal(t, "astra:call:transcript:b1", pub.published()[0])
}

func TestStartUnknownSession(t *testing.T) {
	svc, _, _, _, _, _, _ := newTestSetup(t)

	err := svc.Start(context.Background(), "nope")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestStartTwiceConflicts(t *testing.T) {
	svc, _, _, _, _, _, _ := newTestSetup(t)
	ctx := context.Background()

	require.NoError(t, svc.Start(ctx, "b1"))
	err := svc.Start(ctx, "b1")
	require.ErrorIs(t, err, domain.ErrTranscriptionActive)
}

func TestStartReleasesLegWhenTapFails(t *testing.T) {
	svc, fake, _, spawner, _, _, _ := newTestSetup(t)
	fake.TapFunc = func(ctx context.Context, legID string) (telephony.MediaTap, error) {
		return nil, telephony.ErrTapUnavailable
	}

	err := svc.Start(context.Background(), "b1")
	require.ErrorIs(t, err, domain.ErrTranscription)
	assert.False(t, svc.Active("b1"))
	assert.Contains(t, fake.Hungup(), spawner.legID)
}

func TestStartFailsWhenSpawnerFails(t *testing.T) {
	svc, _, _, spawner, _, _, _ := newTestSetup(t)
	spawner.err = errors.New("no such leg")

	err := svc.Start(context.Background(), "b1")
	require.ErrorIs(t, err, domain.ErrTranscription)
	assert.False(t, svc.Active("b1"))
}

func TestStopReleasesEverything(t *testing.T) {
	svc, fake, _, spawner, _, _, _ := newTestSetup(t)
	ctx := context.Background()

	require.NoError(t, svc.Start(ctx, "b1"))
	require.NoError(t, svc.Stop(ctx, "b1"))

	assert.False(t, svc.Active("b1"))
	assert.Contains(t, fake.Hungup(), spawner.legID)

	// A second stop is a clean no-op.
	require.NoError(t, svc.Stop(ctx, "b1"))

	// The capture can be restarted after a stop.
	require.NoError(t, svc.Start(ctx, "b1"))
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	svc, fake, _, _, _, _, _ := newTestSetup(t)

	require.NoError(t, svc.Stop(context.Background(), "b1"))
	assert.Empty(t, fake.Hungup())
}

func TestStartWithoutStreamer(t *testing.T) {
	fake := telephonytest.New()
	reg := registry.New()
	reg.Create(domain.NewSession("b1", "caller-1"))
	svc := NewService(reg, fake, &fakeSpawner{}, nil, nil, Config{})

	err := svc.Start(context.Background(), "b1")
	require.ErrorIs(t, err, domain.ErrTranscription)
}

// Package call implements the session/bridge lifecycle: answering the
// first leg, originating the second leg to the configured destination,
// joining both into a mixing bridge once the second leg is Up, cascading
// teardown, and bridge-wide or isolated (whisper) playback.
//
// Control-plane events arrive on independent goroutines, so every
// handler re-validates session existence and the terminating/joined
// flags after each remote round-trip before mutating anything.
package call

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ClareAI/astra-call-bridge/internal/config"
	"github.com/ClareAI/astra-call-bridge/internal/core/registry"
	"github.com/ClareAI/astra-call-bridge/internal/telephony"
	"github.com/ClareAI/astra-call-bridge/pkg/logger"
)

const (
	// OriginateTimeout bounds how long the destination may ring.
	OriginateTimeout = 30 * time.Second

	// PlaybackTimeout bounds every playback operation, bridge-wide and
	// isolated alike. Firing the timer reports a timeout but does not
	// cancel the remote playback.
	PlaybackTimeout = 10 * time.Second

	// FailureGrace is how long a surviving leg keeps hearing the failure
	// announcement before it is released.
	FailureGrace = 3 * time.Second
)

const (
	holdMedia    = "sound:queue-thankyou"
	failureMedia = "sound:call-failed"
	warmupMedia  = "sound:silence/1"

	monitorArgWhisper    = "whisper-playback"
	monitorArgTranscribe = "transcribe"
)

// Transcriber stops an active capture for a session during teardown.
// Stopping a session with no active capture is a no-op.
type Transcriber interface {
	Stop(ctx context.Context, sessionID string) error
}

// Service coordinates sessions against the telephony control plane.
type Service struct {
	cfg *config.Config
	tel telephony.Client
	reg *registry.Registry

	transcriber Transcriber

	originateTimeout time.Duration
	playbackTimeout  time.Duration
	failureGrace     time.Duration

	monitorMu      sync.Mutex
	monitorWaiters map[string]chan struct{}
}

// NewService creates the call service.
func NewService(cfg *config.Config, tel telephony.Client, reg *registry.Registry) *Service {
	return &Service{
		cfg:              cfg,
		tel:              tel,
		reg:              reg,
		originateTimeout: OriginateTimeout,
		playbackTimeout:  PlaybackTimeout,
		failureGrace:     FailureGrace,
		monitorWaiters:   make(map[string]chan struct{}),
	}
}

// SetTranscriber wires the transcription manager in after construction
// (the two services reference each other).
func (s *Service) SetTranscriber(t Transcriber) { s.transcriber = t }

// SpawnMonitorLeg attaches a one-way monitor leg to targetLegID and
// blocks until the new leg has entered the application and been
// answered, or the playback window elapses. The returned id is the
// monitor leg's channel id; the caller owns its hangup.
func (s *Service) SpawnMonitorLeg(ctx context.Context, targetLegID string, mode telephony.MonitorMode, tag string) (string, error) {
	monitorID := fmt.Sprintf("%s-%s", tag, uuid.NewString())

	// Register the waiter before issuing the command: the LegEntered
	// event can arrive before CreateMonitorLeg returns.
	ready := s.registerMonitor(monitorID)
	defer s.dropMonitor(monitorID)

	if err := s.tel.CreateMonitorLeg(ctx, targetLegID, mode, monitorID, tag); err != nil {
		return "", fmt.Errorf("create monitor leg for %s: %w", targetLegID, err)
	}

	select {
	case <-ready:
		return monitorID, nil
	case <-time.After(s.playbackTimeout):
		s.hangupQuiet(ctx, monitorID)
		return "", fmt.Errorf("monitor leg %s never entered the application", monitorID)
	case <-ctx.Done():
		s.hangupQuiet(context.Background(), monitorID)
		return "", ctx.Err()
	}
}

func (s *Service) registerMonitor(monitorID string) chan struct{} {
	s.monitorMu.Lock()
	defer s.monitorMu.Unlock()
	ch := make(chan struct{})
	s.monitorWaiters[monitorID] = ch
	return ch
}

func (s *Service) dropMonitor(monitorID string) {
	s.monitorMu.Lock()
	defer s.monitorMu.Unlock()
	delete(s.monitorWaiters, monitorID)
}

func (s *Service) signalMonitor(monitorID string) {
	s.monitorMu.Lock()
	defer s.monitorMu.Unlock()
	if ch, ok := s.monitorWaiters[monitorID]; ok {
		close(ch)
		delete(s.monitorWaiters, monitorID)
	}
}

// hangupQuiet hangs a leg up best-effort; failures are logged, never
// propagated.
func (s *Service) hangupQuiet(ctx context.Context, legID string) {
	if legID == "" {
		return
	}
	if err := s.tel.Hangup(ctx, legID); err != nil {
		logger.Base().Warn("hangup failed",
			zap.String("leg_id", legID),
			zap.Error(err),
		)
	}
}

// Shutdown tears down every active session, best-effort. Used on
// process exit so no bridge outlives the controller.
func (s *Service) Shutdown(ctx context.Context) {
	for _, sess := range s.reg.List() {
		s.Teardown(ctx, sess, "")
	}
}

// Package transcribe manages live transcription of a session's first
// leg: a listen-only monitor leg taps the caller's audio, frames are
// streamed to the speech service, and recognized utterances are kept on
// the handle and broadcast to subscribers.
package transcribe

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ClareAI/astra-call-bridge/internal/core/registry"
	"github.com/ClareAI/astra-call-bridge/internal/domain"
	"github.com/ClareAI/astra-call-bridge/internal/telephony"
	"github.com/ClareAI/astra-call-bridge/pkg/logger"
	pkgredis "github.com/ClareAI/astra-call-bridge/pkg/redis"
	pkgtranscribe "github.com/ClareAI/astra-call-bridge/pkg/transcribe"
)

// maxTranscript bounds the utterances retained per active capture.
const maxTranscript = 200

const monitorTag = "transcribe"

// LegSpawner creates a monitor leg and waits for it to be answered.
// Implemented by the call service.
type LegSpawner interface {
	SpawnMonitorLeg(ctx context.Context, targetLegID string, mode telephony.MonitorMode, tag string) (string, error)
}

// Publisher broadcasts recognized utterances; nil disables broadcasting.
// Implemented by pkg/redis.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// Config carries the audio parameters sent to the speech service.
type Config struct {
	LanguageCode string
	SampleRateHz int32
}

// Service owns the per-session capture handles.
type Service struct {
	reg      *registry.Registry
	tel      telephony.Client
	spawner  LegSpawner
	streamer pkgtranscribe.Streamer
	pub      Publisher
	cfg      Config

	mu       sync.Mutex
	captures map[string]*capture
}

type capture struct {
	sessionID string
	legID     string
	cancel    context.CancelFunc
	tap       telephony.MediaTap
	stream    pkgtranscribe.Stream

	mu         sync.Mutex
	transcript []pkgtranscribe.Result
}

// NewService creates the transcription manager. pub may be nil.
func NewService(reg *registry.Registry, tel telephony.Client, spawner LegSpawner, streamer pkgtranscribe.Streamer, pub Publisher, cfg Config) *Service {
	return &Service{
		reg:      reg,
		tel:      tel,
		spawner:  spawner,
		streamer: streamer,
		pub:      pub,
		cfg:      cfg,
		captures: make(map[string]*capture),
	}
}

// Start begins capturing and transcribing the session's first leg.
func (s *Service) Start(ctx context.Context, sessionID string) error {
	if s.streamer == nil {
		return fmt.Errorf("%w: no speech streamer configured", domain.ErrTranscription)
	}
	sess, ok := s.reg.Get(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}

	// Reserve the slot before any round-trip so two concurrent starts
	// cannot both spawn capture legs.
	c := &capture{sessionID: sessionID}
	s.mu.Lock()
	if _, exists := s.captures[sessionID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrTranscriptionActive, sessionID)
	}
	s.captures[sessionID] = c
	s.mu.Unlock()

	if err := s.establish(ctx, sess.LegA(), c); err != nil {
		s.mu.Lock()
		delete(s.captures, sessionID)
		s.mu.Unlock()
		return err
	}

	logger.Base().Info("transcription started",
		zap.String("session_id", sessionID),
		zap.String("capture_leg", c.legID),
	)
	return nil
}

func (s *Service) establish(ctx context.Context, targetLeg string, c *capture) error {
	legID, err := s.spawner.SpawnMonitorLeg(ctx, targetLeg, telephony.MonitorListen, monitorTag)
	if err != nil {
		return fmt.Errorf("%w: spawn capture leg: %v", domain.ErrTranscription, err)
	}
	c.legID = legID

	tap, err := s.tel.TapAudio(ctx, legID)
	if err != nil {
		s.hangupQuiet(ctx, legID)
		return fmt.Errorf("%w: tap audio: %v", domain.ErrTranscription, err)
	}

	stream, err := s.streamer.Open(ctx, pkgtranscribe.StreamConfig{
		LanguageCode: s.cfg.LanguageCode,
		SampleRateHz: s.cfg.SampleRateHz,
	})
	if err != nil {
		_ = tap.Close()
		s.hangupQuiet(ctx, legID)
		return fmt.Errorf("%w: open stream: %v", domain.ErrTranscription, err)
	}

	capCtx, cancel := context.WithCancel(context.Background())
	c.tap = tap
	c.stream = stream
	c.cancel = cancel

	go s.pumpAudio(capCtx, c)
	go s.pumpResults(capCtx, c)
	return nil
}

// Stop tears the capture down. Stopping a session with no active
// capture is a no-op, not an error; teardown relies on that.
func (s *Service) Stop(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	c, ok := s.captures[sessionID]
	if ok {
		delete(s.captures, sessionID)
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}

	if c.cancel != nil {
		c.cancel()
	}
	if c.tap != nil {
		_ = c.tap.Close()
	}
	if c.stream != nil {
		_ = c.stream.Close()
	}
	s.hangupQuiet(ctx, c.legID)

	logger.Base().Info("transcription stopped", zap.String("session_id", sessionID))
	return nil
}

// Transcript returns the retained utterances for an active capture.
func (s *Service) Transcript(sessionID string) ([]pkgtranscribe.Result, bool) {
	s.mu.Lock()
	c, ok := s.captures[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]pkgtranscribe.Result(nil), c.transcript...), true
}

// Active reports whether a capture is running for the session.
func (s *Service) Active(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.captures[sessionID]
	return ok
}

// pumpAudio forwards tapped frames to the speech service until the tap
// closes or the capture is cancelled.
func (s *Service) pumpAudio(ctx context.Context, c *capture) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-c.tap.Frames():
			if !ok {
				// Capture leg is gone; end the audio input so the
				// service flushes its final results.
				_ = c.stream.Close()
				return
			}
			if err := c.stream.Send(ctx, frame); err != nil {
				logger.Base().Warn("sending audio frame failed",
					zap.String("session_id", c.sessionID),
					zap.Error(err),
				)
				return
			}
		}
	}
}

// pumpResults consumes recognized utterances until the service ends the
// stream.
func (s *Service) pumpResults(ctx context.Context, c *capture) {
	for result := range c.stream.Results() {
		logger.Base().Info("transcription",
			zap.String("session_id", c.sessionID),
			zap.String("text", result.Text),
			zap.Bool("is_final", result.IsFinal),
		)

		c.mu.Lock()
		c.transcript = append(c.transcript, result)
		if len(c.transcript) > maxTranscript {
			c.transcript = c.transcript[len(c.transcript)-maxTranscript:]
		}
		c.mu.Unlock()

		if s.pub != nil {
			if err := s.pub.Publish(ctx, pkgredis.TranscriptChannel(c.sessionID), result); err != nil {
				logger.Base().Warn("publishing transcript failed",
					zap.String("session_id", c.sessionID),
					zap.Error(err),
				)
			}
		}
	}

	if err := c.stream.Err(); err != nil {
		logger.Base().Error("transcription stream failed",
			zap.String("session_id", c.sessionID),
			zap.Error(fmt.Errorf("%w: %v", domain.ErrTranscription, err)),
		)
	}
}

func (s *Service) hangupQuiet(ctx context.Context, legID string) {
	if legID == "" {
		return
	}
	if err := s.tel.Hangup(ctx, legID); err != nil {
		logger.Base().Warn("hangup of capture leg failed",
			zap.String("leg_id", legID),
			zap.Error(err),
		)
	}
}

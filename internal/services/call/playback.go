package call

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ClareAI/astra-call-bridge/internal/domain"
	"github.com/ClareAI/astra-call-bridge/internal/telephony"
	"github.com/ClareAI/astra-call-bridge/pkg/logger"
)

// Playback target names accepted by PlayAudio.
const (
	TargetAll       = "all"       // bridge-wide, every party hears it
	TargetPSTN      = "pstn"      // whisper to leg A only
	TargetFixedPSTN = "fixedPstn" // whisper to leg B only
)

// PlayAudio plays audioFile into a session. The empty target defaults to
// bridge-wide; an unrecognized target is a validation error and never
// reaches the control plane. Whisper targets spawn an injection-only
// monitor leg so the other party and the conference stay undisturbed.
//
// The operation races the playback window: on timeout a distinct error
// is returned but the remote playback is not cancelled, and any late
// completion lands against re-validated state.
func (s *Service) PlayAudio(ctx context.Context, sessionID, audioFile, target string) error {
	if target == "" {
		target = TargetAll
	}
	switch target {
	case TargetAll, TargetPSTN, TargetFixedPSTN:
	default:
		return fmt.Errorf("%w: %q", domain.ErrInvalidTarget, target)
	}

	sess, ok := s.reg.Get(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}

	media := "sound:" + audioFile

	var op func(context.Context) error
	switch target {
	case TargetPSTN:
		legID := sess.LegA()
		op = func(opCtx context.Context) error { return s.playIsolated(opCtx, legID, media) }
	case TargetFixedPSTN:
		legID := sess.LegB()
		if legID == "" {
			return fmt.Errorf("session %s has no second leg yet", sessionID)
		}
		op = func(opCtx context.Context) error { return s.playIsolated(opCtx, legID, media) }
	default:
		bridgeID := sess.BridgeID()
		op = func(opCtx context.Context) error {
			return s.startAndWait(opCtx, telephony.BridgeTarget(bridgeID), media)
		}
	}

	return s.raceTimeout(op)
}

// raceTimeout runs op against the playback window. The timer is
// advisory: op keeps running on a background context and must tolerate
// completing against a session that has since terminated.
func (s *Service) raceTimeout(op func(context.Context) error) error {
	done := make(chan error, 1)
	go func() { done <- op(context.Background()) }()

	select {
	case err := <-done:
		return err
	case <-time.After(s.playbackTimeout):
		return domain.ErrPlaybackTimeout
	}
}

// playIsolated whispers media into a single leg through an
// injection-only monitor leg. The monitor leg is released on success and
// failure alike.
func (s *Service) playIsolated(ctx context.Context, legID, media string) error {
	monitorID, err := s.SpawnMonitorLeg(ctx, legID, telephony.MonitorInject, monitorArgWhisper)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPlaybackFailed, err)
	}
	defer s.hangupQuiet(ctx, monitorID)

	logger.Base().Info("whisper playback started",
		zap.String("target_leg", legID),
		zap.String("monitor_leg", monitorID),
		zap.String("media", media),
	)
	return s.startAndWait(ctx, telephony.LegTarget(monitorID), media)
}

// startAndWait issues a playback and blocks until the control plane
// reports it finished or failed.
func (s *Service) startAndWait(ctx context.Context, target telephony.PlaybackTarget, media string) error {
	pb, err := s.tel.Play(ctx, target, media)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRemoteCommand, err)
	}

	select {
	case <-pb.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := pb.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPlaybackFailed, err)
	}
	return nil
}

// playAndWait is startAndWait under the playback window, for internal
// best-effort playbacks.
func (s *Service) playAndWait(ctx context.Context, target telephony.PlaybackTarget, media string) error {
	return s.raceTimeout(func(opCtx context.Context) error {
		return s.startAndWait(opCtx, target, media)
	})
}

// playDetached fires a playback without waiting for its outcome;
// failures are logged only.
func (s *Service) playDetached(target telephony.PlaybackTarget, media string) {
	go func() {
		if err := s.playAndWait(context.Background(), target, media); err != nil {
			logger.Base().Warn("announcement playback failed",
				zap.String("media", media),
				zap.Error(err),
			)
		}
	}()
}

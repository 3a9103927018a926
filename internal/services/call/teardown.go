package call

import (
	"context"

	"go.uber.org/zap"

	"github.com/ClareAI/astra-call-bridge/internal/domain"
	"github.com/ClareAI/astra-call-bridge/pkg/logger"
)

// Teardown shuts a session down: hang up every known leg except the one
// that departed, destroy the bridge, stop any active transcription, and
// remove the session from the registry.
//
// The terminating flag is taken synchronously before any command is
// issued, so a concurrently triggered second teardown observes it and
// exits immediately. Every step afterwards is best-effort: one leg's
// hangup failure never blocks the rest of the cleanup.
func (s *Service) Teardown(ctx context.Context, sess *domain.Session, departedLeg string) {
	if !sess.BeginTerminate() {
		return
	}
	logger.Base().Info("tearing down session",
		zap.String("bridge_id", sess.BridgeID()),
		zap.String("departed_leg", departedLeg),
	)

	for _, legID := range sess.Legs() {
		if legID == departedLeg {
			continue
		}
		s.hangupQuiet(ctx, legID)
	}

	if err := s.tel.DestroyBridge(ctx, sess.BridgeID()); err != nil {
		logger.Base().Warn("destroying bridge failed",
			zap.String("bridge_id", sess.BridgeID()),
			zap.Error(err),
		)
	}

	if s.transcriber != nil {
		if err := s.transcriber.Stop(ctx, sess.BridgeID()); err != nil {
			logger.Base().Warn("stopping transcription failed",
				zap.String("bridge_id", sess.BridgeID()),
				zap.Error(err),
			)
		}
	}

	// Removal also sweeps any pending entries still owned by the
	// session; only the teardown path removes sessions.
	s.reg.Remove(sess.BridgeID())
	logger.Base().Info("session removed", zap.String("bridge_id", sess.BridgeID()))
}

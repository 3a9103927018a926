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

// handleInbound answers the first leg and bridges it to the configured
// destination.
func (s *Service) handleInbound(ctx context.Context, legID string) error {
	logger.Base().Info("inbound call", zap.String("leg_id", legID))

	if err := s.tel.Answer(ctx, legID); err != nil {
		return fmt.Errorf("answer inbound leg: %w", err)
	}
	return s.bridgeToDestination(ctx, legID)
}

// handleOutbound is the outbound-initiated variant. A request to dial
// the fixed destination itself would bridge the destination to itself,
// so it is rejected with an immediate hangup.
func (s *Service) handleOutbound(ctx context.Context, legID, destination string) error {
	logger.Base().Info("outbound call",
		zap.String("leg_id", legID),
		zap.String("destination", destination),
	)

	if destination == s.cfg.FixedDestination {
		logger.Base().Error("cannot dial the fixed destination as the second party",
			zap.String("leg_id", legID),
			zap.String("destination", destination),
		)
		s.hangupQuiet(ctx, legID)
		return nil
	}

	if err := s.tel.Answer(ctx, legID); err != nil {
		return fmt.Errorf("answer outbound leg: %w", err)
	}
	return s.bridgeToDestination(ctx, legID)
}

// handleCallee validates and answers the originated second leg once it
// enters the application carrying its session id.
func (s *Service) handleCallee(ctx context.Context, legID, sessionID string) error {
	sess, ok := s.reg.Get(sessionID)
	if !ok || sess.Terminating() {
		logger.Base().Error("no session or session terminating for callee leg",
			zap.String("leg_id", legID),
			zap.String("session_id", sessionID),
		)
		s.hangupQuiet(ctx, legID)
		return nil
	}

	if err := s.tel.Answer(ctx, legID); err != nil {
		return fmt.Errorf("answer callee leg: %w", err)
	}
	logger.Base().Info("answered callee leg",
		zap.String("leg_id", legID),
		zap.String("session_id", sessionID),
	)
	return nil
}

// bridgeToDestination creates the bridge and session for an answered
// first leg, starts the hold announcement, and originates the second
// leg.
func (s *Service) bridgeToDestination(ctx context.Context, legA string) error {
	bridgeID, err := s.tel.CreateBridge(ctx)
	if err != nil {
		return fmt.Errorf("create bridge: %w", err)
	}
	logger.Base().Info("created bridge",
		zap.String("bridge_id", bridgeID),
		zap.String("leg_a", legA),
	)

	sess := domain.NewSession(bridgeID, legA)
	s.reg.Create(sess)

	// The caller hears hold music while the destination rings; a failed
	// announcement must not block the origination.
	s.playDetached(telephony.LegTarget(legA), holdMedia)

	s.originateSecondLeg(ctx, sess, legA)
	return nil
}

// originateSecondLeg dials the fixed destination, encoding the session
// id into the new leg's entry arguments so the dispatcher can correlate
// it without a separate destination-keyed table.
func (s *Service) originateSecondLeg(ctx context.Context, sess *domain.Session, legA string) {
	req := telephony.OriginateRequest{
		Endpoint:   fmt.Sprintf("PJSIP/%s@%s", s.cfg.FixedDestination, s.cfg.Trunk),
		AppArgs:    []string{"callee", sess.BridgeID()},
		CallerID:   s.cfg.CallerID,
		Timeout:    s.originateTimeout,
		Variables:  map[string]string{"CHANNEL(language)": "en"},
		EarlyMedia: true,
	}

	legB, err := s.tel.Originate(ctx, req)
	if err != nil {
		logger.Base().Error("origination to fixed destination failed",
			zap.String("bridge_id", sess.BridgeID()),
			zap.Error(fmt.Errorf("%w: %v", domain.ErrOriginationFailed, err)),
		)
		s.failSetup(ctx, legA)
		return
	}

	// The first leg may have hung up while the originate round-trip was
	// in flight; re-check the registry before touching the session so a
	// completed teardown wins and the fresh leg is released, not leaked.
	cur, ok := s.reg.Get(sess.BridgeID())
	if !ok || !cur.SetLegB(legB) {
		logger.Base().Warn("session gone after origination, releasing new leg",
			zap.String("bridge_id", sess.BridgeID()),
			zap.String("leg_b", legB),
		)
		s.hangupQuiet(ctx, legB)
		return
	}

	s.reg.AddPending(legB, sess.BridgeID())
	logger.Base().Info("originated second leg",
		zap.String("bridge_id", sess.BridgeID()),
		zap.String("leg_b", legB),
	)
}

// failSetup plays the failure announcement to the surviving leg and
// releases it after the grace delay, so callers hear why before the
// line drops.
func (s *Service) failSetup(ctx context.Context, legID string) {
	s.playDetached(telephony.LegTarget(legID), failureMedia)
	time.AfterFunc(s.failureGrace, func() {
		s.hangupQuiet(context.Background(), legID)
	})
}

// completeCallSetup performs the Bridged transition: both legs join the
// mixing bridge exactly once, and only if teardown has not begun.
func (s *Service) completeCallSetup(ctx context.Context, sess *domain.Session, legB string) {
	if !sess.MarkJoined() {
		// Already joined, or terminating won the race.
		return
	}

	if err := s.tel.AddLegs(ctx, sess.BridgeID(), sess.Legs()...); err != nil {
		logger.Base().Error("adding legs to bridge failed",
			zap.String("bridge_id", sess.BridgeID()),
			zap.Error(err),
		)
		// The leg already reported ready; its pending entry must not
		// linger until teardown.
		s.reg.DropPending(legB)
		return
	}
	logger.Base().Info("both legs joined",
		zap.String("bridge_id", sess.BridgeID()),
		zap.Strings("legs", sess.Legs()),
	)

	// Warm up the audio path with a short silence; failure is logged,
	// never fatal.
	if err := s.playAndWait(ctx, telephony.BridgeTarget(sess.BridgeID()), warmupMedia); err != nil {
		logger.Base().Warn("audio path warm-up failed",
			zap.String("bridge_id", sess.BridgeID()),
			zap.Error(err),
		)
	}

	s.reg.DropPending(legB)
}

package call

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ClareAI/astra-call-bridge/internal/telephony"
	"github.com/ClareAI/astra-call-bridge/pkg/logger"
)

// Run consumes the control-plane event stream until the context ends or
// the stream closes. Each event is handled on its own goroutine;
// correctness comes from the guarded session state, not from event
// ordering.
func (s *Service) Run(ctx context.Context) {
	events := s.tel.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				logger.Base().Warn("control plane event stream closed")
				return
			}
			go s.dispatch(ctx, ev)
		}
	}
}

func (s *Service) dispatch(ctx context.Context, ev telephony.Event) {
	switch e := ev.(type) {
	case telephony.LegEntered:
		s.handleLegEntered(ctx, e)
	case telephony.LegStateChanged:
		s.handleLegStateChanged(ctx, e)
	case telephony.LegLeft:
		s.handleLegLeft(ctx, e)
	}
}

// handleLegEntered routes a leg entering the application by the shape of
// its argument list. An unrecognized shape gets a warning and a hangup:
// no leg is ever left unacknowledged.
func (s *Service) handleLegEntered(ctx context.Context, e telephony.LegEntered) {
	logger.Base().Info("leg entered application",
		zap.String("leg_id", e.LegID),
		zap.Strings("args", e.Args),
	)

	var err error
	switch {
	case len(e.Args) == 0:
		err = s.handleInbound(ctx, e.LegID)
	case len(e.Args) == 2 && e.Args[0] == "outbound":
		err = s.handleOutbound(ctx, e.LegID, e.Args[1])
	case len(e.Args) == 2 && e.Args[0] == "callee":
		err = s.handleCallee(ctx, e.LegID, e.Args[1])
	case len(e.Args) == 1 && (e.Args[0] == monitorArgWhisper || e.Args[0] == monitorArgTranscribe):
		err = s.handleMonitorEntered(ctx, e.LegID)
	default:
		logger.Base().Warn("unhandled leg arguments, hanging up",
			zap.String("leg_id", e.LegID),
			zap.Strings("args", e.Args),
		)
		s.hangupQuiet(ctx, e.LegID)
		return
	}

	if err != nil {
		logger.Base().Error("leg setup failed, hanging up",
			zap.String("leg_id", e.LegID),
			zap.Error(err),
		)
		s.hangupQuiet(ctx, e.LegID)
	}
}

// handleLegStateChanged drives the AwaitingSecondLegUp -> Bridged
// transition: a pending leg reporting Up completes the call setup.
func (s *Service) handleLegStateChanged(ctx context.Context, e telephony.LegStateChanged) {
	logger.Base().Debug("leg state changed",
		zap.String("leg_id", e.LegID),
		zap.String("state", e.State),
	)
	if e.State != telephony.LegStateUp {
		return
	}

	bridgeID, ok := s.reg.PendingBridge(e.LegID)
	if !ok {
		return
	}
	sess, ok := s.reg.Get(bridgeID)
	if !ok {
		// Session already torn down; the pending entry is stale.
		s.reg.DropPending(e.LegID)
		return
	}
	s.completeCallSetup(ctx, sess, e.LegID)
}

// handleLegLeft enters Terminating for the departed leg's session.
func (s *Service) handleLegLeft(ctx context.Context, e telephony.LegLeft) {
	logger.Base().Info("leg left application", zap.String("leg_id", e.LegID))

	s.reg.DropPending(e.LegID)

	sess, ok := s.reg.FindByLeg(e.LegID)
	if !ok {
		return
	}
	s.Teardown(ctx, sess, e.LegID)
}

// handleMonitorEntered answers an auxiliary monitor leg and releases
// whoever is waiting on it. Monitor legs get no further routing.
func (s *Service) handleMonitorEntered(ctx context.Context, legID string) error {
	if err := s.tel.Answer(ctx, legID); err != nil {
		return fmt.Errorf("answer monitor leg %s: %w", legID, err)
	}
	s.signalMonitor(legID)
	return nil
}

package call

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClareAI/astra-call-bridge/internal/domain"
	"github.com/ClareAI/astra-call-bridge/internal/telephony"
	"github.com/ClareAI/astra-call-bridge/internal/telephony/telephonytest"
)

// answerMonitors answers every monitor leg the fake records, as the
// dispatcher would when the snoop channel enters the application.
func answerMonitors(ctx context.Context, svc *Service, fake *telephonytest.Fake) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		seen := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Millisecond):
			}
			monitors := fake.Monitors()
			for ; seen < len(monitors); seen++ {
				svc.handleLegEntered(ctx, telephony.LegEntered{
					LegID: monitors[seen].MonitorID,
					Args:  []string{monitors[seen].Args[0]},
				})
			}
		}
	}()
	return cancel
}

// resolvePlays finishes (or fails) every playback the fake records.
func resolvePlays(ctx context.Context, fake *telephonytest.Fake, failWith error) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		seen := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Millisecond):
			}
			plays := fake.Plays()
			for ; seen < len(plays); seen++ {
				if failWith != nil {
					plays[seen].Playback.Fail(failWith)
				} else {
					plays[seen].Playback.Finish()
				}
			}
		}
	}()
	return cancel
}

func seedSession(reg interface{ Create(*domain.Session) }, bridgeID, legA, legB string) *domain.Session {
	sess := domain.NewSession(bridgeID, legA)
	if legB != "" {
		sess.SetLegB(legB)
	}
	reg.Create(sess)
	return sess
}

func TestPlayAudioInvalidTargetNeverReachesControlPlane(t *testing.T) {
	svc, fake, reg := newTestService(t)
	seedSession(reg, "b1", "caller-1", "")

	err := svc.PlayAudio(context.Background(), "b1", "greeting", "everyone")
	require.ErrorIs(t, err, domain.ErrInvalidTarget)

	assert.Empty(t, fake.Plays())
	assert.Empty(t, fake.Monitors())
}

func TestPlayAudioUnknownSession(t *testing.T) {
	svc, _, _ := newTestService(t)

	err := svc.PlayAudio(context.Background(), "nope", "greeting", TargetAll)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestPlayAudioBridgeWide(t *testing.T) {
	svc, fake, reg := newTestService(t)
	seedSession(reg, "b1", "caller-1", "leg-1")

	stop := resolvePlays(context.Background(), fake, nil)
	defer stop()

	err := svc.PlayAudio(context.Background(), "b1", "greeting", "")
	require.NoError(t, err)

	plays := fake.Plays()
	require.Len(t, plays, 1)
	bridgeID, ok := plays[0].Target.BridgeID()
	require.True(t, ok, "default target must address the bridge")
	assert.Equal(t, "b1", bridgeID)
	assert.Equal(t, "sound:greeting", plays[0].MediaURI)
}

func TestPlayAudioBridgeWideFailure(t *testing.T) {
	svc, fake, reg := newTestService(t)
	seedSession(reg, "b1", "caller-1", "leg-1")

	stop := resolvePlays(context.Background(), fake, errors.New("media missing"))
	defer stop()

	err := svc.PlayAudio(context.Background(), "b1", "greeting", TargetAll)
	require.ErrorIs(t, err, domain.ErrPlaybackFailed)
}

func TestPlayAudioTimesOut(t *testing.T) {
	svc, fake, reg := newTestService(t)
	seedSession(reg, "b1", "caller-1", "leg-1")

	// Nothing resolves the playback.
	err := svc.PlayAudio(context.Background(), "b1", "greeting", TargetAll)
	require.ErrorIs(t, err, domain.ErrPlaybackTimeout)
	require.Len(t, fake.Plays(), 1)
}

func TestPlayAudioWhisperToCaller(t *testing.T) {
	svc, fake, reg := newTestService(t)
	seedSession(reg, "b1", "caller-1", "leg-1")

	stopMonitors := answerMonitors(context.Background(), svc, fake)
	defer stopMonitors()
	stopPlays := resolvePlays(context.Background(), fake, nil)
	defer stopPlays()

	err := svc.PlayAudio(context.Background(), "b1", "agent-joining", TargetPSTN)
	require.NoError(t, err)

	monitors := fake.Monitors()
	require.Len(t, monitors, 1)
	assert.Equal(t, "caller-1", monitors[0].LegID)
	assert.Equal(t, telephony.MonitorInject, monitors[0].Mode)

	// The whisper went to the monitor leg, not the caller's leg or the
	// bridge.
	plays := fake.Plays()
	require.Len(t, plays, 1)
	legID, ok := plays[0].Target.LegID()
	require.True(t, ok)
	assert.Equal(t, monitors[0].MonitorID, legID)

	// The monitor leg is released afterwards.
	assert.Contains(t, fake.Hungup(), monitors[0].MonitorID)
}

func TestPlayAudioWhisperToFixedLeg(t *testing.T) {
	svc, fake, reg := newTestService(t)
	seedSession(reg, "b1", "caller-1", "leg-1")

	stopMonitors := answerMonitors(context.Background(), svc, fake)
	defer stopMonitors()
	stopPlays := resolvePlays(context.Background(), fake, nil)
	defer stopPlays()

	err := svc.PlayAudio(context.Background(), "b1", "hold-note", TargetFixedPSTN)
	require.NoError(t, err)

	monitors := fake.Monitors()
	require.Len(t, monitors, 1)
	assert.Equal(t, "leg-1", monitors[0].LegID)
}

func TestPlayAudioWhisperReleasesMonitorOnFailure(t *testing.T) {
	svc, fake, reg := newTestService(t)
	seedSession(reg, "b1", "caller-1", "leg-1")

	stopMonitors := answerMonitors(context.Background(), svc, fake)
	defer stopMonitors()
	fake.PlayErr = errors.New("playback rejected")

	err := svc.PlayAudio(context.Background(), "b1", "agent-joining", TargetPSTN)
	require.Error(t, err)

	monitors := fake.Monitors()
	require.Len(t, monitors, 1)
	assert.Contains(t, fake.Hungup(), monitors[0].MonitorID)
}

func TestPlayAudioFixedLegRequiresSecondLeg(t *testing.T) {
	svc, fake, reg := newTestService(t)
	seedSession(reg, "b1", "caller-1", "")

	err := svc.PlayAudio(context.Background(), "b1", "hold-note", TargetFixedPSTN)
	require.Error(t, err)
	assert.Empty(t, fake.Monitors())
}

func TestPlayAudioMonitorSpawnFailure(t *testing.T) {
	svc, fake, reg := newTestService(t)
	seedSession(reg, "b1", "caller-1", "leg-1")

	fake.MonitorErr = errors.New("snoop refused")

	err := svc.PlayAudio(context.Background(), "b1", "agent-joining", TargetPSTN)
	require.ErrorIs(t, err, domain.ErrPlaybackFailed)
	assert.Empty(t, fake.Plays())
}

// Package ari adapts the Asterisk REST Interface to the telephony
// contract the services are written against: Stasis events become leg
// events, bridges and snoop channels become bridges and monitor legs.
package ari

import (
	"context"
	"fmt"
	"strings"

	"github.com/CyCoreSystems/ari/v5"
	"github.com/CyCoreSystems/ari/v5/client/native"
	"github.com/CyCoreSystems/ari/v5/rid"
	"go.uber.org/zap"

	"github.com/ClareAI/astra-call-bridge/internal/telephony"
	"github.com/ClareAI/astra-call-bridge/pkg/logger"
)

// TapProvider supplies raw audio frames for a leg. Asterisk does not
// expose channel media over REST, so taps come from an external media
// component when one is deployed.
type TapProvider interface {
	TapAudio(ctx context.Context, legID string) (telephony.MediaTap, error)
}

// Options configures the connection to the Asterisk REST Interface.
type Options struct {
	URL          string
	WebsocketURL string
	Username     string
	Password     string
	Application  string

	// Taps is optional; without it TapAudio reports unavailable.
	Taps TapProvider
}

// Client implements telephony.Client on top of an ARI connection.
type Client struct {
	cl     ari.Client
	app    string
	taps   TapProvider
	events chan telephony.Event
	cancel context.CancelFunc
}

var _ telephony.Client = (*Client)(nil)

// Connect dials Asterisk and starts the event pump.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	cl, err := native.Connect(&native.Options{
		Application:  opts.Application,
		Username:     opts.Username,
		Password:     opts.Password,
		URL:          opts.URL,
		WebsocketURL: opts.WebsocketURL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to ARI: %w", err)
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	a := &Client{
		cl:     cl,
		app:    opts.Application,
		taps:   opts.Taps,
		events: make(chan telephony.Event, 64),
		cancel: cancel,
	}
	go a.pump(pumpCtx)

	logger.Base().Info("connected to ARI",
		zap.String("url", opts.URL),
		zap.String("application", opts.Application),
	)
	return a, nil
}

// pump translates the Stasis event stream into telephony events.
func (a *Client) pump(ctx context.Context) {
	sub := a.cl.Bus().Subscribe(nil,
		ari.Events.StasisStart,
		ari.Events.StasisEnd,
		ari.Events.ChannelStateChange,
	)
	defer sub.Cancel()
	defer close(a.events)

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-sub.Events():
			if !ok {
				logger.Base().Warn("ARI event subscription closed")
				return
			}

			var ev telephony.Event
			switch e := raw.(type) {
			case *ari.StasisStart:
				ev = telephony.LegEntered{LegID: e.Channel.ID, Args: e.Args}
			case *ari.StasisEnd:
				ev = telephony.LegLeft{LegID: e.Channel.ID}
			case *ari.ChannelStateChange:
				ev = telephony.LegStateChanged{LegID: e.Channel.ID, State: e.Channel.State}
			default:
				continue
			}

			select {
			case a.events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Events returns the translated event stream.
func (a *Client) Events() <-chan telephony.Event {
	return a.events
}

// CreateBridge creates an empty mixing bridge and returns its id.
func (a *Client) CreateBridge(ctx context.Context) (string, error) {
	key := ari.NewKey(ari.BridgeKey, rid.New(rid.Bridge))
	if _, err := a.cl.Bridge().Create(key, "mixing", key.ID); err != nil {
		return "", fmt.Errorf("create bridge: %w", err)
	}
	return key.ID, nil
}

// AddLegs places the given legs into the bridge.
func (a *Client) AddLegs(ctx context.Context, bridgeID string, legIDs ...string) error {
	key := ari.NewKey(ari.BridgeKey, bridgeID)
	for _, legID := range legIDs {
		if err := a.cl.Bridge().AddChannel(key, legID); err != nil {
			return fmt.Errorf("add leg %s to bridge %s: %w", legID, bridgeID, err)
		}
	}
	return nil
}

// DestroyBridge deletes the bridge.
func (a *Client) DestroyBridge(ctx context.Context, bridgeID string) error {
	if err := a.cl.Bridge().Delete(ari.NewKey(ari.BridgeKey, bridgeID)); err != nil {
		return fmt.Errorf("destroy bridge %s: %w", bridgeID, err)
	}
	return nil
}

// Originate dials a new leg into the application. Early media needs no
// REST parameter in ARI, so the request flag is not mapped.
func (a *Client) Originate(ctx context.Context, req telephony.OriginateRequest) (string, error) {
	oreq := ari.OriginateRequest{
		Endpoint:  req.Endpoint,
		Timeout:   int(req.Timeout.Seconds()),
		CallerID:  req.CallerID,
		App:       a.app,
		AppArgs:   strings.Join(req.AppArgs, ","),
		Variables: req.Variables,
		ChannelID: rid.New(rid.Channel),
	}

	h, err := a.cl.Channel().Originate(nil, oreq)
	if err != nil {
		return "", fmt.Errorf("originate %s: %w", req.Endpoint, err)
	}
	return h.ID(), nil
}

// Answer answers the leg.
func (a *Client) Answer(ctx context.Context, legID string) error {
	if err := a.cl.Channel().Answer(ari.NewKey(ari.ChannelKey, legID)); err != nil {
		return fmt.Errorf("answer leg %s: %w", legID, err)
	}
	return nil
}

// Hangup releases the leg with normal clearing.
func (a *Client) Hangup(ctx context.Context, legID string) error {
	if err := a.cl.Channel().Hangup(ari.NewKey(ari.ChannelKey, legID), "normal"); err != nil {
		return fmt.Errorf("hangup leg %s: %w", legID, err)
	}
	return nil
}

// Play starts a playback on a bridge or a single leg and returns a
// handle that resolves when Asterisk reports the playback finished.
// Asterisk emits no failure event for playbacks, so a playback that
// never finishes is left to the caller's playback window; failures at
// start time surface as the request error.
func (a *Client) Play(ctx context.Context, target telephony.PlaybackTarget, mediaURI string) (telephony.Playback, error) {
	playbackID := rid.New(rid.Playback)

	// Subscribe before starting so a fast completion cannot be missed.
	sub := a.cl.Bus().Subscribe(nil, ari.Events.PlaybackFinished)

	var err error
	switch {
	case isBridge(target):
		bridgeID, _ := target.BridgeID()
		_, err = a.cl.Bridge().Play(ari.NewKey(ari.BridgeKey, bridgeID), playbackID, mediaURI)
	case isLeg(target):
		legID, _ := target.LegID()
		_, err = a.cl.Channel().Play(ari.NewKey(ari.ChannelKey, legID), playbackID, mediaURI)
	default:
		err = fmt.Errorf("playback target is empty")
	}
	if err != nil {
		sub.Cancel()
		return nil, fmt.Errorf("start playback %s: %w", mediaURI, err)
	}

	pb := &playback{id: playbackID, done: make(chan struct{})}
	go pb.watch(sub)
	return pb, nil
}

func isBridge(t telephony.PlaybackTarget) bool { _, ok := t.BridgeID(); return ok }
func isLeg(t telephony.PlaybackTarget) bool    { _, ok := t.LegID(); return ok }

type playback struct {
	id   string
	done chan struct{}
	err  error
}

func (p *playback) Done() <-chan struct{} { return p.done }
func (p *playback) Err() error            { return p.err }

// watch resolves the playback from the event bus. err is written before
// done closes and read only after, so no lock is needed.
func (p *playback) watch(sub ari.Subscription) {
	defer sub.Cancel()
	for raw := range sub.Events() {
		e, ok := raw.(*ari.PlaybackFinished)
		if !ok || e.Playback.ID != p.id {
			continue
		}
		close(p.done)
		return
	}
	p.err = fmt.Errorf("event stream closed before playback %s resolved", p.id)
	close(p.done)
}

// CreateMonitorLeg snoops on a leg. Inject mode whispers audio to the
// monitored party without spying; listen mode spies on the party's
// inbound audio without whispering.
func (a *Client) CreateMonitorLeg(ctx context.Context, legID string, mode telephony.MonitorMode, monitorID string, appArgs ...string) error {
	opts, err := snoopOptions(a.app, mode, appArgs)
	if err != nil {
		return err
	}

	if _, err := a.cl.Channel().Snoop(ari.NewKey(ari.ChannelKey, legID), monitorID, opts); err != nil {
		return fmt.Errorf("snoop leg %s: %w", legID, err)
	}
	return nil
}

// snoopOptions builds the snoop request. The app args are what let the
// dispatcher recognize the new channel as a monitor leg instead of a
// fresh inbound call, so they must always be carried.
func snoopOptions(app string, mode telephony.MonitorMode, appArgs []string) (*ari.SnoopOptions, error) {
	opts := &ari.SnoopOptions{
		App:     app,
		AppArgs: strings.Join(appArgs, ","),
	}
	switch mode {
	case telephony.MonitorInject:
		opts.Spy = ari.Direction("none")
		opts.Whisper = ari.Direction("out")
	case telephony.MonitorListen:
		opts.Spy = ari.Direction("in")
		opts.Whisper = ari.Direction("none")
	default:
		return nil, fmt.Errorf("unknown monitor mode %q", mode)
	}
	return opts, nil
}

// TapAudio delegates to the configured tap provider.
func (a *Client) TapAudio(ctx context.Context, legID string) (telephony.MediaTap, error) {
	if a.taps == nil {
		return nil, telephony.ErrTapUnavailable
	}
	return a.taps.TapAudio(ctx, legID)
}

// Connected reports whether the ARI websocket is up.
func (a *Client) Connected() bool {
	return a.cl.Connected()
}

// Close stops the event pump and drops the connection.
func (a *Client) Close() error {
	a.cancel()
	a.cl.Close()
	return nil
}

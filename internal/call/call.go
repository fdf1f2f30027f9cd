// Package call orchestrates the lifecycle of one voice connection:
// join/leave/mute/deafen against the gateway, reconciliation of the two
// asynchronous handshake fragments, and hand-off of the completed
// handshake to the connection engine.
package call

import (
	"context"

	"github.com/dkeye/voicelink/internal/domain"
	"github.com/dkeye/voicelink/internal/handshake"
	"github.com/pion/rtp"
	"github.com/rs/zerolog/log"
)

// attempt tracks one in-flight join from request to resolution or
// replacement. Exactly one of infoSink/connSink is set, depending on
// whether the caller drives the engine or wants raw connection info.
type attempt struct {
	channel  domain.ChannelID
	progress *handshake.Progress
	infoSink *oneshot[domain.ConnectionInfo]
	connSink *oneshot[ConnectOutcome]
}

// discard invalidates the attempt's sink; a held stage-2 future
// observes ErrAttemptDiscarded. This is the only cancellation path.
func (a *attempt) discard() {
	if a.infoSink != nil {
		a.infoSink.discard()
	}
	if a.connSink != nil {
		a.connSink.discard()
	}
}

// Call supervises a single guild's voice connection. It is not
// self-synchronizing: concurrent callers must serialize access with an
// external lock (the manager does this), and must release that lock
// before awaiting a stage-2 future.
type Call struct {
	guildID  domain.GuildID
	userID   domain.UserID
	selfDeaf bool
	selfMute bool

	// Set by New, absent for Standalone; shared handle, not owned.
	ws SignalChannel

	// Optional, chosen at construction; exclusively owned when present.
	engine ConnectionEngine

	attempt *attempt
}

type Option func(*Call)

// WithEngine attaches a connection engine the call will drive on Join.
func WithEngine(e ConnectionEngine) Option {
	return func(c *Call) { c.engine = e }
}

// New creates a call that sends voice state updates through ws.
func New(guildID domain.GuildID, ws SignalChannel, userID domain.UserID, opts ...Option) *Call {
	c := &Call{guildID: guildID, userID: userID, ws: ws}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Standalone creates a call with no gateway attached. Join fails with
// ErrNoSender; leave, mute and deafen only update local state.
func Standalone(guildID domain.GuildID, userID domain.UserID, opts ...Option) *Call {
	return New(guildID, nil, userID, opts...)
}

// Join connects or switches to the given channel, driving the owned
// engine once the handshake completes. Stage 1 (this method) replaces
// any previous attempt and sends the gateway update; stage 2 is the
// returned future, resolved with the engine's connect outcome.
func (c *Call) Join(ctx context.Context, channel domain.ChannelID) (*Future[ConnectOutcome], error) {
	if c.ws == nil {
		return nil, ErrNoSender
	}
	if c.engine == nil {
		return nil, ErrNoEngine
	}

	sink := newOneshot[ConnectOutcome]()
	c.replaceAttempt(&attempt{
		channel:  channel,
		progress: handshake.NewProgress(c.guildID, channel, c.userID),
		connSink: sink,
	})

	if err := c.sendUpdate(ctx); err != nil {
		return nil, err
	}
	return sink.future(), nil
}

// JoinGateway joins the channel without starting the engine; the
// returned future resolves with the raw connection info, for callers
// that manage their own media transport.
func (c *Call) JoinGateway(ctx context.Context, channel domain.ChannelID) (*Future[domain.ConnectionInfo], error) {
	if c.ws == nil {
		return nil, ErrNoSender
	}

	sink := newOneshot[domain.ConnectionInfo]()
	c.replaceAttempt(&attempt{
		channel:  channel,
		progress: handshake.NewProgress(c.guildID, channel, c.userID),
		infoSink: sink,
	})

	if err := c.sendUpdate(ctx); err != nil {
		return nil, err
	}
	return sink.future(), nil
}

func (c *Call) replaceAttempt(next *attempt) {
	if c.attempt != nil {
		c.attempt.discard()
		log.Debug().Str("module", "call").Str("guild", c.guildID.String()).Msg("replaced join attempt")
	}
	c.attempt = next
}

// Leave clears the active attempt, disconnects the engine if one is
// owned, and reports "no channel" to the gateway. Settings like
// self-mute are kept. Local-only on a standalone call.
func (c *Call) Leave(ctx context.Context) error {
	if c.attempt != nil {
		c.attempt.discard()
		c.attempt = nil
	}
	if c.engine != nil {
		c.engine.Disconnect()
	}
	return c.sendUpdate(ctx)
}

// Mute updates the self-mute flag, forwards it to the engine, and
// reports the new state to the gateway. Local-only on a standalone
// call, without error.
func (c *Call) Mute(ctx context.Context, mute bool) error {
	c.selfMute = mute
	if c.engine != nil {
		c.engine.SetMute(mute)
	}
	return c.sendUpdate(ctx)
}

func (c *Call) IsMute() bool { return c.selfMute }

// Deafen updates the self-deaf flag and reports it to the gateway.
// Deafening is independent of muting.
func (c *Call) Deafen(ctx context.Context, deaf bool) error {
	c.selfDeaf = deaf
	return c.sendUpdate(ctx)
}

func (c *Call) IsDeaf() bool { return c.selfDeaf }

// UpdateServer feeds the endpoint/token fragment into the active
// attempt. Called by the gateway receive loop; no effect without an
// attempt.
func (c *Call) UpdateServer(endpoint, token string) {
	if c.attempt == nil {
		return
	}
	if c.attempt.progress.ApplyServerUpdate(endpoint, token) {
		c.doConnect()
	}
}

// UpdateState feeds the session-id fragment, symmetric to UpdateServer.
func (c *Call) UpdateState(sessionID string) {
	if c.attempt == nil {
		return
	}
	if c.attempt.progress.ApplyStateUpdate(sessionID) {
		c.doConnect()
	}
}

// doConnect delivers a completed handshake through the attempt's sink:
// either the raw info to the caller, or into the engine together with
// the outcome slot. Delivery into an abandoned sink is a no-op.
func (c *Call) doConnect() {
	a := c.attempt
	if a == nil {
		return
	}
	info, ok := a.progress.ConnectionInfo()
	if !ok {
		return
	}

	log.Info().
		Str("module", "call").
		Str("guild", c.guildID.String()).
		Str("channel", a.channel.String()).
		Str("endpoint", info.Endpoint).
		Msg("handshake complete")

	switch {
	case a.infoSink != nil:
		a.infoSink.deliver(info)
	case a.connSink != nil && c.engine != nil:
		sink := a.connSink
		c.engine.Connect(info, sink.deliver)
	}
}

// CurrentConnection returns the connection info of the active attempt,
// present only once its handshake is complete.
func (c *Call) CurrentConnection() (domain.ConnectionInfo, bool) {
	if c.attempt == nil {
		return domain.ConnectionInfo{}, false
	}
	return c.attempt.progress.ConnectionInfo()
}

// CurrentChannel returns the channel the call last attempted to join.
func (c *Call) CurrentChannel() (domain.ChannelID, bool) {
	if c.attempt == nil {
		return 0, false
	}
	return c.attempt.channel, true
}

// sendUpdate reports the current voice state over the gateway. Nothing
// is sent on a standalone call; the state change stays local.
func (c *Call) sendUpdate(ctx context.Context) error {
	if c.ws == nil {
		return nil
	}
	upd := VoiceUpdate{
		GuildID:  c.guildID,
		SelfDeaf: c.selfDeaf,
		SelfMute: c.selfMute,
	}
	if c.attempt != nil {
		ch := c.attempt.channel
		upd.ChannelID = &ch
	}
	return c.ws.SendVoiceUpdate(ctx, upd)
}

// Engine playback surface, forwarded so callers never reach into the
// owned engine directly. All are no-ops without an engine.

func (c *Call) Play(src <-chan *rtp.Packet) {
	if c.engine != nil {
		c.engine.Play(src)
	}
}

func (c *Call) Stop() {
	if c.engine != nil {
		c.engine.Stop()
	}
}

func (c *Call) SetVolume(v float64) {
	if c.engine != nil {
		c.engine.SetVolume(v)
	}
}

func (c *Call) Volume() float64 {
	if c.engine != nil {
		return c.engine.Volume()
	}
	return 0
}

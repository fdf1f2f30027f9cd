package call

import (
	"context"
	"errors"

	"github.com/dkeye/voicelink/internal/domain"
	"github.com/pion/rtp"
)

var (
	// ErrNoSender is returned when a gateway-dependent operation is
	// invoked on a standalone call.
	ErrNoSender = errors.New("call has no signaling channel")

	// ErrNoEngine is returned by Join when the call was built without a
	// connection engine; use JoinGateway instead.
	ErrNoEngine = errors.New("call has no connection engine")

	// ErrAttemptDiscarded is observed by a stage-2 future whose attempt
	// was replaced by a later join or cleared by leave.
	ErrAttemptDiscarded = errors.New("join attempt discarded")
)

// VoiceUpdate is the voice state update sent over the gateway on every
// join, leave, mute and deafen. A nil ChannelID encodes "no channel".
type VoiceUpdate struct {
	GuildID   domain.GuildID
	ChannelID *domain.ChannelID
	SelfDeaf  bool
	SelfMute  bool
}

// SignalChannel is the one-way capability the call needs from the
// gateway connection. Owned by the adapter; the call only sends.
type SignalChannel interface {
	SendVoiceUpdate(ctx context.Context, upd VoiceUpdate) error
}

// ConnectOutcome carries the engine's connect result for one attempt.
// Failure travels as a value here, never as a separate error channel.
type ConnectOutcome struct {
	Err error
}

func (o ConnectOutcome) Ok() bool { return o.Err == nil }

// ConnectionEngine owns the media transport. Connect must invoke
// deliver exactly once; delivering into an abandoned attempt is
// harmless.
type ConnectionEngine interface {
	Connect(info domain.ConnectionInfo, deliver func(ConnectOutcome))
	Disconnect()
	SetMute(mute bool)

	// Playback surface, forwarded verbatim by Call.
	Play(src <-chan *rtp.Packet)
	Stop()
	SetVolume(v float64)
	Volume() float64
}

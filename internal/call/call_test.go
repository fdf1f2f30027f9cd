package call

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/voicelink/internal/domain"
	"github.com/pion/rtp"
)

type fakeSignal struct {
	updates []VoiceUpdate
	err     error
}

func (f *fakeSignal) SendVoiceUpdate(_ context.Context, upd VoiceUpdate) error {
	if f.err != nil {
		return f.err
	}
	f.updates = append(f.updates, upd)
	return nil
}

func (f *fakeSignal) last(t *testing.T) VoiceUpdate {
	t.Helper()
	if len(f.updates) == 0 {
		t.Fatalf("no voice updates sent")
	}
	return f.updates[len(f.updates)-1]
}

type fakeEngine struct {
	connects    []domain.ConnectionInfo
	outcome     ConnectOutcome
	disconnects int
	muted       bool
	volume      float64
	playing     bool
}

func (f *fakeEngine) Connect(info domain.ConnectionInfo, deliver func(ConnectOutcome)) {
	f.connects = append(f.connects, info)
	deliver(f.outcome)
}

func (f *fakeEngine) Disconnect()             { f.disconnects++ }
func (f *fakeEngine) SetMute(m bool)          { f.muted = m }
func (f *fakeEngine) Play(<-chan *rtp.Packet) { f.playing = true }
func (f *fakeEngine) Stop()                   { f.playing = false }
func (f *fakeEngine) SetVolume(v float64)     { f.volume = v }
func (f *fakeEngine) Volume() float64         { return f.volume }

func awaitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestJoinHandshakeConnectsOnce(t *testing.T) {
	ws := &fakeSignal{}
	eng := &fakeEngine{}
	c := New(1, ws, 7, WithEngine(eng))

	fut, err := c.Join(context.Background(), 42)
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	upd := ws.last(t)
	if upd.ChannelID == nil || *upd.ChannelID != 42 || upd.GuildID != 1 {
		t.Fatalf("unexpected voice update: %+v", upd)
	}

	c.UpdateServer("host:1234", "tok")
	c.UpdateState("sess-1")

	out, err := fut.Await(awaitCtx(t))
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if !out.Ok() {
		t.Fatalf("connect outcome: %v", out.Err)
	}

	if len(eng.connects) != 1 {
		t.Fatalf("engine connected %d times, want 1", len(eng.connects))
	}
	info := eng.connects[0]
	if info.ChannelID != 42 || info.Endpoint != "host:1234" || info.Token != "tok" || info.SessionID != "sess-1" {
		t.Fatalf("unexpected connection info: %+v", info)
	}

	// Redundant fragments after completion must not reconnect.
	c.UpdateServer("host:1234", "tok")
	c.UpdateState("sess-1")
	if len(eng.connects) != 1 {
		t.Fatalf("redundant fragments re-triggered connect")
	}
}

func TestSecondJoinDiscardsFirstFuture(t *testing.T) {
	ws := &fakeSignal{}
	c := New(1, ws, 7, WithEngine(&fakeEngine{}))

	fut1, err := c.Join(context.Background(), 42)
	if err != nil {
		t.Fatalf("first join: %v", err)
	}
	if _, err := c.Join(context.Background(), 43); err != nil {
		t.Fatalf("second join: %v", err)
	}

	if _, err := fut1.Await(awaitCtx(t)); !errors.Is(err, ErrAttemptDiscarded) {
		t.Fatalf("first future = %v, want ErrAttemptDiscarded", err)
	}

	if ch, ok := c.CurrentChannel(); !ok || ch != 43 {
		t.Fatalf("current channel = %v %v, want 43", ch, ok)
	}
}

func TestJoinGatewayDeliversInfoDirectly(t *testing.T) {
	ws := &fakeSignal{}
	c := New(1, ws, 7)

	fut, err := c.JoinGateway(context.Background(), 42)
	if err != nil {
		t.Fatalf("join gateway: %v", err)
	}

	c.UpdateState("sess-1")
	c.UpdateServer("host:1234", "tok")

	info, err := fut.Await(awaitCtx(t))
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if info.Endpoint != "host:1234" || info.SessionID != "sess-1" || info.GuildID != 1 || info.UserID != 7 {
		t.Fatalf("unexpected info: %+v", info)
	}

	if got, ok := c.CurrentConnection(); !ok || got != info {
		t.Fatalf("current connection = %+v %v", got, ok)
	}
}

func TestStandaloneJoinFailsBeforeMutating(t *testing.T) {
	c := Standalone(1, 7, WithEngine(&fakeEngine{}))

	if _, err := c.Join(context.Background(), 42); !errors.Is(err, ErrNoSender) {
		t.Fatalf("join = %v, want ErrNoSender", err)
	}
	if _, ok := c.CurrentChannel(); ok {
		t.Fatalf("failed join must not leave an attempt behind")
	}
}

func TestJoinWithoutEngine(t *testing.T) {
	c := New(1, &fakeSignal{}, 7)
	if _, err := c.Join(context.Background(), 42); !errors.Is(err, ErrNoEngine) {
		t.Fatalf("join = %v, want ErrNoEngine", err)
	}
}

func TestLeaveClearsAttemptAndDisconnects(t *testing.T) {
	ws := &fakeSignal{}
	eng := &fakeEngine{}
	c := New(1, ws, 7, WithEngine(eng))

	fut, err := c.Join(context.Background(), 42)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := c.Leave(context.Background()); err != nil {
		t.Fatalf("leave: %v", err)
	}

	if eng.disconnects != 1 {
		t.Fatalf("engine disconnects = %d, want 1", eng.disconnects)
	}
	if upd := ws.last(t); upd.ChannelID != nil {
		t.Fatalf("leave must report no channel, got %+v", upd)
	}
	if _, err := fut.Await(awaitCtx(t)); !errors.Is(err, ErrAttemptDiscarded) {
		t.Fatalf("future after leave = %v, want ErrAttemptDiscarded", err)
	}

	// Late fragments for the cleared attempt are ignored.
	c.UpdateServer("host:1234", "tok")
	c.UpdateState("sess-1")
	if len(eng.connects) != 0 {
		t.Fatalf("fragments after leave must not connect")
	}
}

func TestLeaveWithoutAttempt(t *testing.T) {
	ws := &fakeSignal{}
	c := New(1, ws, 7)

	if err := c.Leave(context.Background()); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if upd := ws.last(t); upd.ChannelID != nil {
		t.Fatalf("leave update must carry null channel")
	}
}

func TestMuteDeafenSendUpdates(t *testing.T) {
	ws := &fakeSignal{}
	eng := &fakeEngine{}
	c := New(1, ws, 7, WithEngine(eng))

	if err := c.Mute(context.Background(), true); err != nil {
		t.Fatalf("mute: %v", err)
	}
	if !c.IsMute() || !eng.muted {
		t.Fatalf("mute not applied")
	}
	if upd := ws.last(t); !upd.SelfMute || upd.SelfDeaf {
		t.Fatalf("unexpected update after mute: %+v", upd)
	}

	if err := c.Deafen(context.Background(), true); err != nil {
		t.Fatalf("deafen: %v", err)
	}
	if upd := ws.last(t); !upd.SelfDeaf || !upd.SelfMute {
		t.Fatalf("unexpected update after deafen: %+v", upd)
	}
}

func TestMuteStandaloneIsLocalOnly(t *testing.T) {
	c := Standalone(1, 7)

	if err := c.Mute(context.Background(), true); err != nil {
		t.Fatalf("standalone mute must not error: %v", err)
	}
	if !c.IsMute() {
		t.Fatalf("mute flag not set")
	}
}

func TestFragmentsWithoutAttemptAreIgnored(t *testing.T) {
	c := New(1, &fakeSignal{}, 7, WithEngine(&fakeEngine{}))

	c.UpdateServer("host:1234", "tok")
	c.UpdateState("sess-1")

	if _, ok := c.CurrentConnection(); ok {
		t.Fatalf("no attempt, no connection")
	}
}

func TestDroppedFutureDoesNotBlockDelivery(t *testing.T) {
	eng := &fakeEngine{}
	c := New(1, &fakeSignal{}, 7, WithEngine(eng))

	if _, err := c.Join(context.Background(), 42); err != nil {
		t.Fatalf("join: %v", err)
	}
	// The caller dropped the future; completion must still drive the
	// engine and must not block.
	c.UpdateServer("host:1234", "tok")
	c.UpdateState("sess-1")

	if len(eng.connects) != 1 {
		t.Fatalf("engine connects = %d, want 1", len(eng.connects))
	}
}

func TestEngineDelegation(t *testing.T) {
	eng := &fakeEngine{}
	c := Standalone(1, 7, WithEngine(eng))

	c.SetVolume(0.5)
	if c.Volume() != 0.5 || eng.volume != 0.5 {
		t.Fatalf("volume not forwarded")
	}

	src := make(chan *rtp.Packet)
	c.Play(src)
	if !eng.playing {
		t.Fatalf("play not forwarded")
	}
	c.Stop()
	if eng.playing {
		t.Fatalf("stop not forwarded")
	}

	// All delegations are safe without an engine.
	bare := Standalone(1, 7)
	bare.Play(src)
	bare.Stop()
	bare.SetVolume(1)
	if bare.Volume() != 0 {
		t.Fatalf("engineless volume must read zero")
	}
}

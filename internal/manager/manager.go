// Package manager keeps one call per guild and provides the external
// serialization the call package requires: every call is guarded by its
// own mutex, and the join helpers release that mutex before awaiting
// stage-2 results so delivery can never deadlock against it.
package manager

import (
	"context"
	"sync"

	"github.com/dkeye/voicelink/internal/call"
	"github.com/dkeye/voicelink/internal/domain"
	"github.com/dkeye/voicelink/internal/taskstat"
	"github.com/rs/zerolog/log"
)

// Handle pairs a call with its guard. All access goes through WithLock.
type Handle struct {
	mu sync.Mutex
	c  *call.Call
}

// WithLock runs fn with exclusive access to the call. Do not await a
// stage-2 future inside fn.
func (h *Handle) WithLock(fn func(*call.Call)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(h.c)
}

// EngineFactory builds the optional connection engine for a new call.
type EngineFactory func() call.ConnectionEngine

type Manager struct {
	userID domain.UserID
	ws     call.SignalChannel
	engine EngineFactory

	mu    sync.RWMutex
	calls map[domain.GuildID]*Handle
}

type Option func(*Manager)

// WithEngineFactory makes every new call own an engine, enabling Join.
func WithEngineFactory(f EngineFactory) Option {
	return func(m *Manager) { m.engine = f }
}

// New creates a manager sending through ws. A nil ws makes every call
// standalone.
func New(userID domain.UserID, ws call.SignalChannel, opts ...Option) *Manager {
	m := &Manager{
		userID: userID,
		ws:     ws,
		calls:  make(map[domain.GuildID]*Handle),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Bind attaches the signaling channel after construction, for wiring
// orders where the gateway connection needs the manager as its event
// handler. Calls created before Bind stay standalone.
func (m *Manager) Bind(ws call.SignalChannel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ws = ws
}

func (m *Manager) Get(guild domain.GuildID) (*Handle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.calls[guild]
	return h, ok
}

func (m *Manager) GetOrCreate(guild domain.GuildID) *Handle {
	m.mu.RLock()
	h, ok := m.calls[guild]
	m.mu.RUnlock()
	if ok {
		return h
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok = m.calls[guild]; ok {
		return h
	}
	var opts []call.Option
	if m.engine != nil {
		opts = append(opts, call.WithEngine(m.engine()))
	}
	h = &Handle{c: call.New(guild, m.ws, m.userID, opts...)}
	m.calls[guild] = h
	log.Info().Str("module", "manager").Str("guild", guild.String()).Msg("created call")
	return h
}

// Join connects the guild's call to the channel and waits for the
// engine's connect outcome. Stage 1 runs under the call lock, the lock
// is released, then stage 2 is awaited; an outcome carrying an engine
// failure is returned as that error.
func (m *Manager) Join(ctx context.Context, guild domain.GuildID, channel domain.ChannelID) error {
	h := m.GetOrCreate(guild)

	h.mu.Lock()
	fut, err := h.c.Join(ctx, channel)
	h.mu.Unlock()
	if err != nil {
		return err
	}

	out, err := fut.Await(ctx)
	if err != nil {
		return err
	}
	return out.Err
}

// JoinGateway joins without driving the engine and waits for the raw
// connection info.
func (m *Manager) JoinGateway(ctx context.Context, guild domain.GuildID, channel domain.ChannelID) (domain.ConnectionInfo, error) {
	h := m.GetOrCreate(guild)

	h.mu.Lock()
	fut, err := h.c.JoinGateway(ctx, channel)
	h.mu.Unlock()
	if err != nil {
		return domain.ConnectionInfo{}, err
	}

	return fut.Await(ctx)
}

// Leave disconnects the guild's call if one exists.
func (m *Manager) Leave(ctx context.Context, guild domain.GuildID) error {
	h, ok := m.Get(guild)
	if !ok {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.c.Leave(ctx)
}

func (m *Manager) Mute(ctx context.Context, guild domain.GuildID, mute bool) error {
	h := m.GetOrCreate(guild)

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.c.Mute(ctx, mute)
}

func (m *Manager) Deafen(ctx context.Context, guild domain.GuildID, deaf bool) error {
	h := m.GetOrCreate(guild)

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.c.Deafen(ctx, deaf)
}

// ServerUpdate routes a voice-server fragment from the gateway receive
// loop to the guild's call. Unknown guilds are ignored.
func (m *Manager) ServerUpdate(guild domain.GuildID, endpoint, token string) {
	tok := taskstat.Acquire(taskstat.Event)
	defer tok.Release()

	h, ok := m.Get(guild)
	if !ok {
		log.Debug().Str("module", "manager").Str("guild", guild.String()).Msg("server update for unknown guild")
		return
	}
	h.WithLock(func(c *call.Call) {
		c.UpdateServer(endpoint, token)
	})
}

// StateUpdate routes a voice-state fragment, symmetric to ServerUpdate.
func (m *Manager) StateUpdate(guild domain.GuildID, sessionID string) {
	tok := taskstat.Acquire(taskstat.Event)
	defer tok.Release()

	h, ok := m.Get(guild)
	if !ok {
		log.Debug().Str("module", "manager").Str("guild", guild.String()).Msg("state update for unknown guild")
		return
	}
	h.WithLock(func(c *call.Call) {
		c.UpdateState(sessionID)
	})
}

// CallState is a read-only snapshot of one call for diagnostics.
type CallState struct {
	GuildID   domain.GuildID    `json:"guild_id"`
	ChannelID *domain.ChannelID `json:"channel_id"`
	SelfMute  bool              `json:"self_mute"`
	SelfDeaf  bool              `json:"self_deaf"`
	Connected bool              `json:"connected"`
}

func (m *Manager) Snapshot() []CallState {
	m.mu.RLock()
	handles := make(map[domain.GuildID]*Handle, len(m.calls))
	for g, h := range m.calls {
		handles[g] = h
	}
	m.mu.RUnlock()

	out := make([]CallState, 0, len(handles))
	for guild, h := range handles {
		state := CallState{GuildID: guild}
		h.WithLock(func(c *call.Call) {
			if ch, ok := c.CurrentChannel(); ok {
				state.ChannelID = &ch
			}
			_, state.Connected = c.CurrentConnection()
			state.SelfMute = c.IsMute()
			state.SelfDeaf = c.IsDeaf()
		})
		out = append(out, state)
	}
	return out
}

// Package engine owns the media transport behind a call. It implements
// call.ConnectionEngine on top of a pion PeerConnection; the handshake
// descriptor it receives is treated as opaque connect parameters.
package engine

import (
	"fmt"
	"sync"

	"github.com/dkeye/voicelink/internal/call"
	"github.com/dkeye/voicelink/internal/domain"
	"github.com/dkeye/voicelink/internal/taskstat"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type Config struct {
	ICEServers []string
}

func DefaultConfig() Config {
	return Config{
		ICEServers: []string{"stun:stun.l.google.com:19302"},
	}
}

func (c Config) webrtc() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: c.ICEServers},
		},
	}
}

// Engine drives one voice transport at a time. Connect replaces any
// previous transport; Disconnect tears it down asynchronously.
type Engine struct {
	cfg Config

	mu     sync.Mutex
	pc     *webrtc.PeerConnection
	track  *webrtc.TrackLocalStaticRTP
	muted  bool
	volume float64
	stop   chan struct{} // transport lifetime
	play   chan struct{} // current playback, nil when idle
}

func New(cfg Config) *Engine {
	return &Engine{cfg: cfg, volume: 1}
}

// Connect establishes the transport for a completed handshake on a
// worker task and reports the result through deliver exactly once.
func (e *Engine) Connect(info domain.ConnectionInfo, deliver func(call.ConnectOutcome)) {
	go func() {
		tok := taskstat.Acquire(taskstat.Core)
		defer tok.Release()

		err := e.connect(info)
		if err != nil {
			log.Error().Err(err).
				Str("module", "engine").
				Str("guild", info.GuildID.String()).
				Str("endpoint", info.Endpoint).
				Msg("connect failed")
		}
		deliver(call.ConnectOutcome{Err: err})
	}()
}

func (e *Engine) connect(info domain.ConnectionInfo) error {
	pc, err := webrtc.NewPeerConnection(e.cfg.webrtc())
	if err != nil {
		return fmt.Errorf("new peer connection: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", "voicelink-"+info.GuildID.String(),
	)
	if err != nil {
		_ = pc.Close()
		return fmt.Errorf("new local track: %w", err)
	}
	sender, err := pc.AddTrack(track)
	if err != nil {
		_ = pc.Close()
		return fmt.Errorf("add track: %w", err)
	}

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "engine").Str("guild", info.GuildID.String()).Str("ice_state", s.String()).Msg("ICE state")
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "engine").Str("guild", info.GuildID.String()).Str("peer_state", s.String()).Msg("peer state")
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		_ = pc.Close()
		return fmt.Errorf("create offer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		_ = pc.Close()
		return fmt.Errorf("set local description: %w", err)
	}
	<-gathered

	e.mu.Lock()
	old := e.pc
	e.pc = pc
	e.track = track
	stop := make(chan struct{})
	e.stop = stop
	e.mu.Unlock()
	if old != nil {
		e.dispose(old)
	}

	go e.drainRTCP(sender, stop)
	go e.keepalive(track, stop)

	log.Info().
		Str("module", "engine").
		Str("guild", info.GuildID.String()).
		Str("endpoint", info.Endpoint).
		Str("session", info.SessionID).
		Msg("transport ready")
	return nil
}

// drainRTCP keeps the sender's feedback path from backing up.
func (e *Engine) drainRTCP(sender *webrtc.RTPSender, stop <-chan struct{}) {
	tok := taskstat.Acquire(taskstat.UdpRx)
	defer tok.Release()

	buf := make([]byte, 1500)
	for {
		select {
		case <-stop:
			return
		default:
		}
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// Disconnect drops the current transport. Teardown of the peer
// connection happens on a disposal task so callers never wait on it.
func (e *Engine) Disconnect() {
	e.mu.Lock()
	pc := e.pc
	stop := e.stop
	play := e.play
	e.pc = nil
	e.track = nil
	e.stop = nil
	e.play = nil
	e.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if play != nil {
		close(play)
	}
	if pc != nil {
		e.dispose(pc)
	}
}

func (e *Engine) dispose(pc *webrtc.PeerConnection) {
	go func() {
		tok := taskstat.Acquire(taskstat.Disposal)
		defer tok.Release()

		if err := pc.Close(); err != nil {
			log.Error().Err(err).Str("module", "engine").Msg("close peer connection")
		}
	}()
}

// SetMute gates outbound audio without touching the transport.
func (e *Engine) SetMute(mute bool) {
	e.mu.Lock()
	e.muted = mute
	e.mu.Unlock()
}

func (e *Engine) SetVolume(v float64) {
	e.mu.Lock()
	e.volume = v
	e.mu.Unlock()
}

// Volume is applied by the mixer when frames are rendered; the engine
// only carries the setting.
func (e *Engine) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

var _ call.ConnectionEngine = (*Engine)(nil)

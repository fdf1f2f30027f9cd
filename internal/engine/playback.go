package engine

import (
	"time"

	"github.com/dkeye/voicelink/internal/taskstat"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// silenceFrame is the opus frame transmitted while muted or idle so the
// remote side keeps the stream warm.
var silenceFrame = []byte{0xF8, 0xFF, 0xFE}

const keepaliveInterval = 5 * time.Second

// Play feeds packets from src to the current track until src closes,
// Stop is called, or the transport is replaced. Muted playback consumes
// the source but transmits silence payloads.
func (e *Engine) Play(src <-chan *rtp.Packet) {
	e.mu.Lock()
	track := e.track
	stop := e.stop
	if track == nil {
		e.mu.Unlock()
		log.Warn().Str("module", "engine").Msg("play without a connected transport")
		return
	}
	if e.play != nil {
		close(e.play)
	}
	play := make(chan struct{})
	e.play = play
	e.mu.Unlock()

	go func() {
		tok := taskstat.Acquire(taskstat.Mixer)
		defer tok.Release()

		for {
			select {
			case <-stop:
				return
			case <-play:
				return
			case pkt, ok := <-src:
				if !ok {
					return
				}
				e.mu.Lock()
				muted := e.muted
				e.mu.Unlock()
				if muted {
					pkt.Payload = silenceFrame
				}
				if err := track.WriteRTP(pkt); err != nil {
					log.Error().Err(err).Str("module", "engine").Msg("write rtp")
					return
				}
			}
		}
	}()
}

// Stop ends the current playback without disconnecting the transport.
func (e *Engine) Stop() {
	e.mu.Lock()
	play := e.play
	e.play = nil
	e.mu.Unlock()

	if play != nil {
		close(play)
	}
}

// keepalive transmits periodic silence so NAT bindings and the remote
// jitter buffer stay alive between plays.
func (e *Engine) keepalive(track *webrtc.TrackLocalStaticRTP, stop <-chan struct{}) {
	tok := taskstat.Acquire(taskstat.UdpTx)
	defer tok.Release()

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	var seq uint16
	var ts uint32
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			pkt := &rtp.Packet{
				Header: rtp.Header{
					Version:        2,
					PayloadType:    120,
					SequenceNumber: seq,
					Timestamp:      ts,
				},
				Payload: silenceFrame,
			}
			seq++
			ts += 960
			if err := track.WriteRTP(pkt); err != nil {
				return
			}
		}
	}
}

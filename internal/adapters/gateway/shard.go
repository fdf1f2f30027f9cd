// Package gateway connects to the signaling gateway over a websocket:
// outbound voice state updates for the call layer, and the receive loop
// that feeds handshake fragments back into the call manager.
package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/voicelink/internal/call"
	"github.com/dkeye/voicelink/internal/domain"
	"github.com/dkeye/voicelink/internal/taskstat"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrBackpressure = errors.New("gateway send buffer full")

const (
	sendBuffer   = 32
	writeTimeout = 5 * time.Second
)

// Handler consumes the handshake fragments the receive loop extracts.
type Handler interface {
	ServerUpdate(guild domain.GuildID, endpoint, token string)
	StateUpdate(guild domain.GuildID, sessionID string)
}

func domainGuild(id uint64) domain.GuildID { return domain.GuildID(id) }

// Shard is one gateway connection. It is a shared handle: calls send
// through it but do not control its lifecycle.
type Shard struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// Dial opens the gateway connection and starts the read/write pumps.
// Inbound handshake fragments are routed to h.
func Dial(ctx context.Context, url string, h Handler) (*Shard, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	s := &Shard{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	log.Info().Str("module", "gateway").Str("shard", s.id).Str("url", url).Msg("gateway connected")

	go s.writePump(ctx)
	go s.readPump(ctx, h)
	return s, nil
}

// SendVoiceUpdate queues the op-4 payload for the write pump. It fails
// fast on a full buffer rather than blocking the call layer.
func (s *Shard) SendVoiceUpdate(ctx context.Context, upd call.VoiceUpdate) error {
	b, err := encodeVoiceUpdate(upd)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case s.send <- b:
		return nil
	default:
		return ErrBackpressure
	}
}

func (s *Shard) Close() {
	s.once.Do(func() {
		close(s.send)
		_ = s.conn.Close()
	})
}

func (s *Shard) writePump(ctx context.Context) {
	tok := taskstat.Acquire(taskstat.Signaling)
	defer tok.Release()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "gateway").Str("shard", s.id).Msg("write pump ctx done")
			return
		case data, ok := <-s.send:
			if !ok {
				return
			}
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				log.Error().Err(err).Str("module", "gateway").Str("shard", s.id).Msg("set write deadline")
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "gateway").Str("shard", s.id).Msg("write")
				return
			}
		}
	}
}

func (s *Shard) readPump(ctx context.Context, h Handler) {
	tok := taskstat.Acquire(taskstat.Signaling)
	defer func() {
		tok.Release()
		s.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "gateway").Str("shard", s.id).Msg("read pump ctx done")
			return
		default:
			_, data, err := s.conn.ReadMessage()
			if err != nil {
				log.Error().Err(err).Str("module", "gateway").Str("shard", s.id).Msg("read")
				return
			}
			dispatchEvent(h, data)
		}
	}
}

package gateway

import (
	"encoding/json"

	"github.com/dkeye/voicelink/internal/call"
	"github.com/rs/zerolog/log"
)

// opVoiceStateUpdate is the gateway operation id for "voice state
// update".
const opVoiceStateUpdate = 4

type voiceStateBody struct {
	GuildID   uint64  `json:"guild_id"`
	ChannelID *uint64 `json:"channel_id"`
	SelfDeaf  bool    `json:"self_deaf"`
	SelfMute  bool    `json:"self_mute"`
}

type voiceStateEnvelope struct {
	Op int            `json:"op"`
	D  voiceStateBody `json:"d"`
}

func encodeVoiceUpdate(upd call.VoiceUpdate) ([]byte, error) {
	body := voiceStateBody{
		GuildID:  uint64(upd.GuildID),
		SelfDeaf: upd.SelfDeaf,
		SelfMute: upd.SelfMute,
	}
	if upd.ChannelID != nil {
		ch := uint64(*upd.ChannelID)
		body.ChannelID = &ch
	}
	return json.Marshal(voiceStateEnvelope{Op: opVoiceStateUpdate, D: body})
}

// Inbound dispatch events carrying the two handshake fragments.
const (
	eventVoiceServerUpdate = "VOICE_SERVER_UPDATE"
	eventVoiceStateUpdate  = "VOICE_STATE_UPDATE"
)

type eventEnvelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d"`
}

type voiceServerUpdate struct {
	GuildID  uint64 `json:"guild_id"`
	Endpoint string `json:"endpoint"`
	Token    string `json:"token"`
}

type voiceStateUpdate struct {
	GuildID   uint64 `json:"guild_id"`
	SessionID string `json:"session_id"`
}

// dispatchEvent parses one inbound gateway message and routes handshake
// fragments to the handler. Anything else is ignored.
func dispatchEvent(h Handler, data []byte) {
	var env eventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "gateway").Msg("bad gateway payload")
		return
	}

	switch env.T {
	case eventVoiceServerUpdate:
		var ev voiceServerUpdate
		if err := json.Unmarshal(env.D, &ev); err != nil {
			log.Warn().Err(err).Str("module", "gateway").Msg("bad voice server update")
			return
		}
		h.ServerUpdate(domainGuild(ev.GuildID), ev.Endpoint, ev.Token)
	case eventVoiceStateUpdate:
		var ev voiceStateUpdate
		if err := json.Unmarshal(env.D, &ev); err != nil {
			log.Warn().Err(err).Str("module", "gateway").Msg("bad voice state update")
			return
		}
		h.StateUpdate(domainGuild(ev.GuildID), ev.SessionID)
	}
}

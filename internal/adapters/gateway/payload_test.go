package gateway

import (
	"encoding/json"
	"testing"

	"github.com/dkeye/voicelink/internal/call"
	"github.com/dkeye/voicelink/internal/domain"
)

func TestEncodeVoiceUpdateWithChannel(t *testing.T) {
	ch := domain.ChannelID(42)
	b, err := encodeVoiceUpdate(call.VoiceUpdate{
		GuildID:   1,
		ChannelID: &ch,
		SelfDeaf:  true,
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var got struct {
		Op int `json:"op"`
		D  struct {
			GuildID   uint64  `json:"guild_id"`
			ChannelID *uint64 `json:"channel_id"`
			SelfDeaf  bool    `json:"self_deaf"`
			SelfMute  bool    `json:"self_mute"`
		} `json:"d"`
	}
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Op != 4 || got.D.GuildID != 1 || got.D.ChannelID == nil || *got.D.ChannelID != 42 {
		t.Fatalf("unexpected payload: %s", b)
	}
	if !got.D.SelfDeaf || got.D.SelfMute {
		t.Fatalf("flags wrong: %s", b)
	}
}

func TestEncodeVoiceUpdateNullChannel(t *testing.T) {
	b, err := encodeVoiceUpdate(call.VoiceUpdate{GuildID: 1})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var d map[string]json.RawMessage
	if err := json.Unmarshal(raw["d"], &d); err != nil {
		t.Fatalf("unmarshal d: %v", err)
	}
	if string(d["channel_id"]) != "null" {
		t.Fatalf("leave must encode channel_id as null, got %s", d["channel_id"])
	}
}

type recordingHandler struct {
	serverGuild domain.GuildID
	endpoint    string
	token       string
	stateGuild  domain.GuildID
	sessionID   string
}

func (r *recordingHandler) ServerUpdate(g domain.GuildID, endpoint, token string) {
	r.serverGuild, r.endpoint, r.token = g, endpoint, token
}

func (r *recordingHandler) StateUpdate(g domain.GuildID, sessionID string) {
	r.stateGuild, r.sessionID = g, sessionID
}

func TestDispatchServerUpdate(t *testing.T) {
	h := &recordingHandler{}
	dispatchEvent(h, []byte(`{"t":"VOICE_SERVER_UPDATE","d":{"guild_id":1,"endpoint":"host:1234","token":"tok"}}`))

	if h.serverGuild != 1 || h.endpoint != "host:1234" || h.token != "tok" {
		t.Fatalf("server update not routed: %+v", h)
	}
}

func TestDispatchStateUpdate(t *testing.T) {
	h := &recordingHandler{}
	dispatchEvent(h, []byte(`{"t":"VOICE_STATE_UPDATE","d":{"guild_id":1,"session_id":"sess-1"}}`))

	if h.stateGuild != 1 || h.sessionID != "sess-1" {
		t.Fatalf("state update not routed: %+v", h)
	}
}

func TestDispatchIgnoresUnknownAndMalformed(t *testing.T) {
	h := &recordingHandler{}
	dispatchEvent(h, []byte(`{"t":"PRESENCE_UPDATE","d":{}}`))
	dispatchEvent(h, []byte(`not json`))
	dispatchEvent(h, []byte(`{"t":"VOICE_SERVER_UPDATE","d":"bad"}`))

	if h.serverGuild != 0 || h.stateGuild != 0 {
		t.Fatalf("unexpected routing: %+v", h)
	}
}

// Package handshake assembles the two independently-delivered gateway
// fragments (server update, state update) into a ConnectionInfo.
package handshake

import "github.com/dkeye/voicelink/internal/domain"

// Progress is the per-attempt latch. It starts incomplete, accepts
// fragments in either order, and transitions to complete exactly once.
// After completion the stored info is immutable.
type Progress struct {
	info      domain.ConnectionInfo
	hasServer bool
	hasState  bool
}

func NewProgress(guild domain.GuildID, channel domain.ChannelID, user domain.UserID) *Progress {
	return &Progress{
		info: domain.ConnectionInfo{
			ChannelID: channel,
			GuildID:   guild,
			UserID:    user,
		},
	}
}

// ApplyServerUpdate stores the endpoint/token fragment. It reports true
// iff this call caused the incomplete→complete transition; once complete
// it always reports false and leaves the info untouched.
func (p *Progress) ApplyServerUpdate(endpoint, token string) bool {
	if p.Complete() {
		return false
	}
	p.info.Endpoint = endpoint
	p.info.Token = token
	p.hasServer = true
	return p.hasState
}

// ApplyStateUpdate stores the session-id fragment, symmetric to
// ApplyServerUpdate.
func (p *Progress) ApplyStateUpdate(sessionID string) bool {
	if p.Complete() {
		return false
	}
	p.info.SessionID = sessionID
	p.hasState = true
	return p.hasServer
}

func (p *Progress) Complete() bool {
	return p.hasServer && p.hasState
}

// ConnectionInfo returns the assembled descriptor once both fragments
// are present.
func (p *Progress) ConnectionInfo() (domain.ConnectionInfo, bool) {
	if !p.Complete() {
		return domain.ConnectionInfo{}, false
	}
	return p.info, true
}

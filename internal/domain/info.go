package domain

// ConnectionInfo is the complete descriptor needed to open a voice
// connection: both handshake fragments plus the identity the session
// was created with.
type ConnectionInfo struct {
	ChannelID ChannelID `json:"channel_id"`
	GuildID   GuildID   `json:"guild_id"`
	Endpoint  string    `json:"endpoint"`
	SessionID string    `json:"session_id"`
	Token     string    `json:"token"`
	UserID    UserID    `json:"user_id"`
}

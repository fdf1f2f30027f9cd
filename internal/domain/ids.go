// Package domain contains entity without logic, just meta-data
package domain

import "strconv"

type (
	GuildID   uint64
	ChannelID uint64
	UserID    uint64
)

func (id GuildID) String() string   { return strconv.FormatUint(uint64(id), 10) }
func (id ChannelID) String() string { return strconv.FormatUint(uint64(id), 10) }
func (id UserID) String() string    { return strconv.FormatUint(uint64(id), 10) }

// ParseGuildID converts a decimal id as it appears in URLs and payloads.
func ParseGuildID(s string) (GuildID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	return GuildID(v), err
}

func ParseChannelID(s string) (ChannelID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	return ChannelID(v), err
}

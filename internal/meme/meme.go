// Package meme holds the memeverse domain model: catalog records, user
// uploads, the profile singleton, leaderboard entries and the error taxonomy
// shared by every engine component.
package meme

import (
	"strings"
	"time"
)

// UnknownUser is the username uploads without one are ranked under.
const UnknownUser = "Unknown User"

// Record is a meme from the remote catalog. Identity is ID; records are
// never mutated locally.
type Record struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Upload is a user-uploaded meme. ImageURL doubles as the engagement key for
// its likes; ID is a stable identifier that is not used as a key.
type Upload struct {
	ID        string    `json:"id,omitempty"`
	ImageURL  string    `json:"image" validate:"required"`
	Caption   string    `json:"caption"`
	Username  string    `json:"username,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// RankUsername returns the username the upload is ranked under.
func (u Upload) RankUsername() string {
	if name := strings.TrimSpace(u.Username); name != "" {
		return name
	}
	return UnknownUser
}

// Profile is the single editable user profile.
type Profile struct {
	AvatarURL   string `json:"avatar_url" validate:"omitempty,uri"`
	DisplayName string `json:"display_name" validate:"required,max=64"`
	Bio         string `json:"bio" validate:"max=280"`
}

// DefaultProfile is returned until the profile is edited.
func DefaultProfile() Profile {
	return Profile{
		AvatarURL:   "https://i.pravatar.cc/150?img=3",
		DisplayName: "Meme Lord",
		Bio:         "Professional meme curator.",
	}
}

// MemeRankEntry is a row of the top memes leaderboard.
type MemeRankEntry struct {
	Meme      Record `json:"meme"`
	LikeCount int    `json:"like_count"`
}

// UserRankEntry is a row of the top users leaderboard.
type UserRankEntry struct {
	Username   string `json:"username"`
	TotalLikes int    `json:"total_likes"`
}

// LikeRecord is a persisted like counter.
type LikeRecord struct {
	MemeID    string `json:"meme_id"`
	LikeCount int    `json:"like_count"`
}

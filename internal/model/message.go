package model

import "time"

// Message is one append-only chat entry attached to an application.
// IsRead is computed per viewer and never stored on the row.
type Message struct {
	ID            uint64    `json:"id"`
	ApplicationID uint64    `json:"applicationId"`
	SenderID      uint64    `json:"senderId"`
	SenderRole    Role      `json:"senderRole"`
	Content       string    `json:"content"`
	CreatedAt     time.Time `json:"createdAt"`
	IsRead        bool      `json:"isRead"`
}

// PasswordReset is the single active forgot-password code of a user.
type PasswordReset struct {
	UserID    uint64
	CodeHash  string
	ExpiresAt time.Time
	Attempts  int
	CreatedAt time.Time
}

func (p PasswordReset) Expired(now time.Time) bool { return !now.Before(p.ExpiresAt) }

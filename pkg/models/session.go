package models

import "time"

// SessionSnapshot is the persisted form of a session: enough to reconstruct
// a Conversation's message list and cumulative usage in a fresh process.
// Stored as JSON at <data-dir>/sessions/<id>.json and, for checkpoints, at
// <data-dir>/checkpoints/<id>_<timestamp>.json.
type SessionSnapshot struct {
	ID         string     `json:"id"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	TurnCount  int        `json:"turn_count"`
	Messages   []*Message `json:"messages"`
	TotalUsage TokenUsage `json:"total_usage"`
}

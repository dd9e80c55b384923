package domain

import "time"

// RoundResult is the archived outcome of one resolved spy round.
type RoundResult struct {
	RoundID     string        `json:"round_id"`
	Room        string        `json:"room"`
	Word        string        `json:"word"`
	SpyID       int64         `json:"spy_id"`
	SpyName     string        `json:"spy_name"`
	SuspectID   int64         `json:"suspect_id,omitempty"`
	SuspectName string        `json:"suspect_name,omitempty"`
	Caught      bool          `json:"caught"`
	SpyKicked   bool          `json:"spy_kicked,omitempty"`
	Players     []RoundPlayer `json:"players"`
	StartedAt   time.Time     `json:"started_at"`
	EndedAt     time.Time     `json:"ended_at"`
}

// RoundPlayer is one participant's scoring line in a RoundResult.
type RoundPlayer struct {
	ID         int64  `json:"id"`
	Nickname   string `json:"nickname"`
	Membership string `json:"membership"`
	Delta      int    `json:"delta"`
	Points     int    `json:"points"`
}

package models

import (
	"time"
)

const (
	ModeNormal = "normal"
	ModeSurge  = "surge"
)

// AdmissionToken is a single-use permission slip for entering the
// reservation flow while an event is in surge mode. It is consumed exactly
// once; replay of the same token fails.
type AdmissionToken struct {
	Token    string    `json:"token"`
	EventID  string    `json:"event_id"`
	UserID   string    `json:"user_id"`
	IssuedAt time.Time `json:"issued_at"`
}

type QueueStatus struct {
	EventID  string `json:"event_id"`
	Mode     string `json:"mode"`
	Position int64  `json:"position"` // 0 when not waiting
	Waiting  int64  `json:"waiting"`
}

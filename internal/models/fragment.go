package models

import "time"

// TypingFragment is one deduplicated intent entry in the typing history.
// For a given (user, app context, fingerprint) with a non-null fingerprint
// at most one row exists; repeat sightings bump frequency instead.
type TypingFragment struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"userId"`
	AppContext  string    `json:"appContext"`
	Content     string    `json:"content"`
	Fingerprint string    `json:"fingerprint,omitempty"` // empty when fingerprinting failed
	Frequency   int64     `json:"frequency"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TypingEvent is the inbound event shape consumed by the ingestion engine.
type TypingEvent struct {
	UserID         string `json:"user_id"`
	AppContext     string `json:"app_context"`
	Text           string `json:"text"`
	IsFullSnapshot bool   `json:"is_full_context"`
}

// Key returns the serialization key for the per-key ingestion worker.
func (e TypingEvent) Key() string {
	return e.UserID + "\x00" + e.AppContext
}

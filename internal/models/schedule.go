package models

import "time"

// Recurrence values: "Everyday", a weekday name ("Monday" .. "Sunday"),
// or a specific calendar date "YYYY-MM-DD".
const RecurrenceEveryday = "Everyday"

// Schedule represents a user-defined trigger for scheduled insight generation
type Schedule struct {
	ID                int64      `json:"id"`
	UserID            string     `json:"userId"`
	Title             string     `json:"title"`
	ActionDescription string     `json:"actionDescription,omitempty"`
	Timezone          string     `json:"timezone"` // IANA name, e.g. "America/New_York"
	Recurrence        string     `json:"recurrence"`
	TimeOfDay         string     `json:"timeOfDay"` // "HH:mm" local to Timezone
	LastFiredAt       *time.Time `json:"lastFiredAt,omitempty"` // UTC

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CreateScheduleRequest represents a request to create a schedule
type CreateScheduleRequest struct {
	Title             string `json:"title" validate:"required"`
	ActionDescription string `json:"actionDescription,omitempty"`
	Timezone          string `json:"timezone" validate:"required"`
	Recurrence        string `json:"recurrence" validate:"required"`
	TimeOfDay         string `json:"timeOfDay" validate:"required"`
}

// UpdateScheduleRequest represents a request to update a schedule
type UpdateScheduleRequest struct {
	Title             *string `json:"title,omitempty"`
	ActionDescription *string `json:"actionDescription,omitempty"`
	Timezone          *string `json:"timezone,omitempty"`
	Recurrence        *string `json:"recurrence,omitempty"`
	TimeOfDay         *string `json:"timeOfDay,omitempty"`
}

// ScheduleResponse represents the API response for a schedule
type ScheduleResponse struct {
	ID                int64      `json:"id"`
	Title             string     `json:"title"`
	ActionDescription string     `json:"actionDescription,omitempty"`
	Timezone          string     `json:"timezone"`
	Recurrence        string     `json:"recurrence"`
	TimeOfDay         string     `json:"timeOfDay"`
	LastFiredAt       *time.Time `json:"lastFiredAt,omitempty"`
	NextRunAt         *time.Time `json:"nextRunAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// ToResponse converts a Schedule to ScheduleResponse. NextRunAt is filled in
// by the schedule service, which knows how to evaluate recurrence.
func (s *Schedule) ToResponse() *ScheduleResponse {
	return &ScheduleResponse{
		ID:                s.ID,
		Title:             s.Title,
		ActionDescription: s.ActionDescription,
		Timezone:          s.Timezone,
		Recurrence:        s.Recurrence,
		TimeOfDay:         s.TimeOfDay,
		LastFiredAt:       s.LastFiredAt,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
}

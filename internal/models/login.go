package models

import (
	"fmt"
	"time"
)

// LoginEvent records a successful sign-in reported by a client.
type LoginEvent struct {
	id        string
	sequence  int
	UserID    string
	At        time.Time
	createdAt time.Time
	updatedAt time.Time
	deletedAt *time.Time
}

// NewLoginEvent creates an unsaved event for userID at t.
func NewLoginEvent(userID string, t time.Time) *LoginEvent {
	now := time.Now()
	return &LoginEvent{UserID: userID, At: t, createdAt: now, updatedAt: now}
}

func (e *LoginEvent) ID() string {
	return e.id
}

func (e *LoginEvent) Sequence() int {
	return e.sequence
}

func (e *LoginEvent) CreatedAt() time.Time {
	return e.createdAt
}

func (e *LoginEvent) UpdatedAt() time.Time {
	return e.updatedAt
}

func (e *LoginEvent) DeletedAt() *time.Time {
	return e.deletedAt
}

func (e *LoginEvent) SetID(id string) {
	e.id = id
}

func (e *LoginEvent) SetSequence(s int) {
	e.sequence = s
}

func (e *LoginEvent) SetCreatedAt(t time.Time) {
	e.createdAt = t
}

func (e *LoginEvent) SetUpdatedAt(t time.Time) {
	e.updatedAt = t
}

func (e *LoginEvent) SetDeletedAt(t *time.Time) {
	e.deletedAt = t
}

// Validate requires a user and a timestamp.
func (e *LoginEvent) Validate() error {
	if e.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	if e.At.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}

// Analytics summarises recorded logins.
type Analytics struct {
	Configured  bool      `json:"configured"`
	Message     string    `json:"message,omitempty"`
	TotalLogins int       `json:"total_logins"`
	UniqueUsers int       `json:"unique_users"`
	LoginsToday int       `json:"logins_today"`
	LastLoginAt time.Time `json:"last_login_at,omitzero"`
}

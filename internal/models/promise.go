package models

import "time"

// PromiseStatus enumerates the promise lifecycle states.
type PromiseStatus string

const (
	StatusOngoing   PromiseStatus = "ongoing"
	StatusCompleted PromiseStatus = "completed"
	StatusOverdue   PromiseStatus = "overdue"
	StatusDeclined  PromiseStatus = "declined"
	StatusNotMade   PromiseStatus = "not_made"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s PromiseStatus) Valid() bool {
	switch s {
	case StatusOngoing, StatusCompleted, StatusOverdue, StatusDeclined, StatusNotMade:
		return true
	}
	return false
}

// Terminal reports whether no further status transition is defined from s.
// Overdue promises can still be completed, declined, or written off.
func (s PromiseStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusDeclined, StatusNotMade:
		return true
	}
	return false
}

// Promise is a tracked commitment made by an owner, optionally to a promisee
// and observed by a mentor. Promisee and mentor each hold either a resolved
// user id or a placeholder email for a not-yet-registered participant, never
// both at once.
type Promise struct {
	BaseModel

	OwnerID string `gorm:"type:uuid;not null;index" json:"owner_id"`
	Owner   *User  `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`

	PromiseeID    *string `gorm:"type:uuid;index" json:"promisee_id,omitempty"`
	PromiseeEmail *string `gorm:"index" json:"promisee_email,omitempty"`
	MentorID      *string `gorm:"type:uuid;index" json:"mentor_id,omitempty"`
	MentorEmail   *string `gorm:"index" json:"mentor_email,omitempty"`

	Title       string     `gorm:"type:varchar(255);not null" json:"title"`
	Description string     `gorm:"type:text" json:"description,omitempty"`
	Deadline    *time.Time `gorm:"index" json:"deadline,omitempty"`

	Status PromiseStatus `gorm:"type:varchar(32);not null;default:'ongoing';index" json:"status"`

	Milestones []Milestone `gorm:"foreignKey:PromiseID" json:"milestones,omitempty"`
	Notes      []Note      `gorm:"foreignKey:PromiseID" json:"notes,omitempty"`
}

// ParticipantIDs returns the resolved user ids attached to the promise:
// owner first, then promisee and mentor when present. Placeholder emails
// have no user row and are excluded.
func (p *Promise) ParticipantIDs() []string {
	ids := []string{p.OwnerID}
	if p.PromiseeID != nil && *p.PromiseeID != "" {
		ids = append(ids, *p.PromiseeID)
	}
	if p.MentorID != nil && *p.MentorID != "" {
		ids = append(ids, *p.MentorID)
	}
	return ids
}

// HasParticipant reports whether userID is the owner, promisee, or mentor.
func (p *Promise) HasParticipant(userID string) bool {
	if userID == "" {
		return false
	}
	for _, id := range p.ParticipantIDs() {
		if id == userID {
			return true
		}
	}
	return false
}

// IsPromisee reports whether userID is the resolved promisee.
func (p *Promise) IsPromisee(userID string) bool {
	return userID != "" && p.PromiseeID != nil && *p.PromiseeID == userID
}

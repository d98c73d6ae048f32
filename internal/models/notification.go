package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification types emitted by the promise core.
const (
	NotificationPromiseInvitation    = "promise_invitation"
	NotificationMentorshipInvitation = "mentorship_invitation"
	NotificationMilestoneCompleted   = "milestone_completed"
	NotificationNoteAdded            = "note_added"
	NotificationPromiseCompleted     = "promise_completed"
	NotificationPromiseDeclined      = "promise_declined"
	NotificationPromiseOverdue       = "promise_overdue"
	NotificationDeadlineNear         = "deadline_near"
)

// Notification represents an in-app notification for a user.
type Notification struct {
	BaseModel

	UserID string `gorm:"type:uuid;not null;index" json:"user_id"`
	Type   string `gorm:"type:varchar(64);not null;index" json:"type"`

	Title   string `gorm:"type:varchar(255)" json:"title"`
	Message string `gorm:"type:text" json:"message"`

	RelatedPromiseID *string        `gorm:"type:uuid;index" json:"related_promise_id,omitempty"`
	Metadata         datatypes.JSON `json:"metadata,omitempty"`

	IsRead bool       `gorm:"default:false;index" json:"is_read"`
	ReadAt *time.Time `json:"read_at,omitempty"`
}

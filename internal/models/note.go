package models

// Note is an append-only check-in written by a promise participant.
// Notes are never edited; deletion is restricted to the author.
type Note struct {
	BaseModel

	PromiseID string `gorm:"type:uuid;not null;index" json:"promise_id"`
	UserID    string `gorm:"type:uuid;not null;index" json:"user_id"`

	Text string `gorm:"type:text;not null" json:"text"`
}

package models

// Milestone is an ordered step toward a promise. OrderIndex drives display
// ordering only and is not unique per promise.
type Milestone struct {
	BaseModel

	PromiseID string `gorm:"type:uuid;not null;index" json:"promise_id"`

	Title       string `gorm:"type:varchar(255);not null" json:"title"`
	Description string `gorm:"type:text" json:"description,omitempty"`
	Completed   bool   `gorm:"default:false" json:"completed"`
	OrderIndex  int    `gorm:"default:0" json:"order_index"`
}

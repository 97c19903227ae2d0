package models

import "time"

// Author is the publishing profile of a user. Holding one is what lets a
// user create stories.
type Author struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    *uint     `gorm:"uniqueIndex" json:"user_id"`
	PenName   string    `gorm:"size:50;not null;index" json:"pen_name"`
	Banned    bool      `gorm:"not null;default:false" json:"ban_status"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateAuthorRequest struct {
	PenName string `json:"pen_name" binding:"required,max=50"`
}

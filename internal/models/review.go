package models

import "time"

type Review struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_reviews_user_story" json:"user_id"`
	StoryID   uint      `gorm:"not null;uniqueIndex:idx_reviews_user_story;uniqueIndex:idx_reviews_story_alias" json:"story_id"`
	Alias     string    `gorm:"size:50;not null;uniqueIndex:idx_reviews_story_alias" json:"alias"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CreateReviewRequest struct {
	Content string  `json:"content" binding:"required"`
	Alias   *string `json:"alias"`
}

type UpdateReviewRequest struct {
	Content string `json:"content" binding:"required"`
}

package models

import "time"

type ReactionKind string

const (
	ReactionLike    ReactionKind = "like"
	ReactionDislike ReactionKind = "dislike"
)

func (k ReactionKind) Valid() bool {
	return k == ReactionLike || k == ReactionDislike
}

// Opposite returns the other reaction kind.
func (k ReactionKind) Opposite() ReactionKind {
	if k == ReactionLike {
		return ReactionDislike
	}
	return ReactionLike
}

// CounterColumn is the stories column holding the count for this kind.
func (k ReactionKind) CounterColumn() string {
	if k == ReactionLike {
		return "likes"
	}
	return "dislikes"
}

// Reaction tracks a single user's like or dislike on a story
type Reaction struct {
	ID        uint         `gorm:"primaryKey" json:"id"`
	UserID    uint         `gorm:"not null;uniqueIndex:idx_reactions_user_story" json:"user_id"`
	StoryID   uint         `gorm:"not null;uniqueIndex:idx_reactions_user_story;index" json:"story_id"`
	Reaction  ReactionKind `gorm:"size:7;not null" json:"reaction"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

type ReactionRequest struct {
	Reaction ReactionKind `json:"reaction" binding:"required"`
}

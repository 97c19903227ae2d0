package models

import "time"

type Genre string

const (
	GenreMystery Genre = "mystery"
	GenreFiction Genre = "fiction"
	GenreComedy  Genre = "comedy"
	GenreOthers  Genre = "others"
)

// Valid reports whether g is one of the known genres.
func (g Genre) Valid() bool {
	switch g {
	case GenreMystery, GenreFiction, GenreComedy, GenreOthers:
		return true
	}
	return false
}

// Story is the aggregate root for reactions, ratings and reviews. Likes,
// Dislikes, AverageRating and TotalRatings are denormalized from the child
// rows and only ever written by the engagement engines.
type Story struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Title         string    `gorm:"size:250;not null" json:"title"`
	Content       string    `gorm:"type:text;not null" json:"content"`
	Genre         Genre     `gorm:"size:7;not null;default:others;index" json:"genre"`
	AuthorID      *uint     `gorm:"index" json:"author_id"`
	Author        *Author   `gorm:"constraint:OnDelete:SET NULL" json:"author,omitempty"`
	CreatedAt     time.Time `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Likes         int       `gorm:"not null;default:0;check:likes >= 0" json:"likes"`
	Dislikes      int       `gorm:"not null;default:0;check:dislikes >= 0" json:"dislikes"`
	AverageRating float64   `gorm:"type:decimal(3,2);not null;default:0" json:"average_rating"`
	TotalRatings  int       `gorm:"not null;default:0;check:total_ratings >= 0" json:"total_ratings"`

	Reactions []Reaction `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Ratings   []Rating   `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Reviews   []Review   `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

type CreateStoryRequest struct {
	Title   string `json:"title" binding:"required"`
	Content string `json:"content" binding:"required"`
	Genre   Genre  `json:"genre"`
}

// UpdateStoryRequest is a partial update; nil fields are left untouched.
type UpdateStoryRequest struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
	Genre   *Genre  `json:"genre"`
}

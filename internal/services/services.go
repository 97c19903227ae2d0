// Package services implements the story catalogue and the engagement engines
// (reactions, ratings, reviews). Every mutation runs in one transaction; cache
// invalidation and event publishing happen after the commit.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/storytime/backend/internal/apperr"
	"github.com/storytime/backend/internal/events"
	"github.com/storytime/backend/internal/models"
)

// Outcome describes what a mutation did to the targeted row.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeDeleted Outcome = "deleted"
)

var (
	ErrStoryNotFound = apperr.NotFound("story not found")
	ErrForbidden     = apperr.Forbidden("you do not have permission to perform this action")
)

// Counters is a snapshot of a story's denormalized engagement columns.
type Counters struct {
	Likes         int     `json:"likes"`
	Dislikes      int     `json:"dislikes"`
	AverageRating float64 `json:"average_rating"`
	TotalRatings  int     `json:"total_ratings"`
}

func countersOf(s models.Story) Counters {
	return Counters{
		Likes:         s.Likes,
		Dislikes:      s.Dislikes,
		AverageRating: s.AverageRating,
		TotalRatings:  s.TotalRatings,
	}
}

// lookupStory loads a story or returns ErrStoryNotFound.
func lookupStory(tx *gorm.DB, storyID uint, preload ...string) (models.Story, error) {
	var story models.Story
	q := tx
	for _, rel := range preload {
		q = q.Preload(rel)
	}
	if err := q.First(&story, storyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return story, ErrStoryNotFound
		}
		return story, fmt.Errorf("load story %d: %w", storyID, err)
	}
	return story, nil
}

// lockStory takes a row lock on the story for the rest of the transaction so
// mutations that re-aggregate its children run one at a time. SQLite has no
// row locks; its single writer gives the same ordering.
func lockStory(tx *gorm.DB, storyID uint) (models.Story, error) {
	return lookupStory(tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id", "author_id"), storyID)
}

func readCounters(tx *gorm.DB, storyID uint) (Counters, error) {
	var story models.Story
	err := tx.Select("id", "likes", "dislikes", "average_rating", "total_ratings").First(&story, storyID).Error
	if err != nil {
		return Counters{}, fmt.Errorf("read counters for story %d: %w", storyID, err)
	}
	return countersOf(story), nil
}

// adjustCounter applies delta to one counter column with a single
// UPDATE ... SET col = col + delta. Decrements are guarded so the column never
// goes negative; a guarded miss means the row and counter disagree and the
// transaction is aborted.
func adjustCounter(tx *gorm.DB, storyID uint, column string, delta int) error {
	q := tx.Model(&models.Story{}).Where("id = ?", storyID)
	if delta < 0 {
		q = q.Where(column+" >= ?", -delta)
	}
	res := q.UpdateColumn(column, gorm.Expr(column+" + ?", delta))
	if res.Error != nil {
		return fmt.Errorf("adjust %s on story %d: %w", column, storyID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("adjust %s on story %d by %d: no row updated", column, storyID, delta)
	}
	return nil
}

func publish(ctx context.Context, pub events.Publisher, subject string, event events.Event) {
	if pub == nil {
		return
	}
	event.Timestamp = time.Now().UTC()
	if err := pub.Publish(ctx, subject, event); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"subject":  subject,
			"story_id": event.StoryID,
		}).Warn("event publish failed")
	}
}

// Page is a 1-based page request.
type Page struct {
	Number int
	Size   int
}

func (p Page) normalize(defaultSize int) Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 || p.Size > 100 {
		p.Size = defaultSize
	}
	return p
}

func (p Page) offset() int { return (p.Number - 1) * p.Size }

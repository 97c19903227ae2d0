// Package events publishes engagement notifications after a mutation commits.
package events

import (
	"context"
	"sync"
	"time"
)

// Subjects published by the engagement services.
const (
	SubjectStoryCreated = "story.created"
	SubjectStoryDeleted = "story.deleted"
	SubjectReaction     = "story.reaction"
	SubjectRating       = "story.rating"
	SubjectReview       = "story.review"
)

// Event is the JSON body of every message.
type Event struct {
	StoryID       uint      `json:"story_id"`
	UserID        uint      `json:"user_id"`
	Action        string    `json:"action"`
	Reaction      string    `json:"reaction,omitempty"`
	Rating        int       `json:"rating,omitempty"`
	ReviewID      uint      `json:"review_id,omitempty"`
	Likes         int       `json:"likes"`
	Dislikes      int       `json:"dislikes"`
	AverageRating float64   `json:"average_rating"`
	TotalRatings  int       `json:"total_ratings"`
	Timestamp     time.Time `json:"timestamp"`
}

type Publisher interface {
	Publish(ctx context.Context, subject string, event Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, string, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events map[string][]Event
}

func NewRecorder() *Recorder {
	return &Recorder{events: make(map[string][]Event)}
}

func (r *Recorder) Publish(_ context.Context, subject string, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[subject] = append(r.events[subject], event)
	return nil
}

// Events returns a copy of what was published on subject.
func (r *Recorder) Events(subject string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events[subject]...)
}

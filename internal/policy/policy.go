// Package policy holds the capability checks applied before a mutation. The
// checks are plain predicates over an Actor and a resource; they never touch
// storage.
package policy

import "github.com/storytime/backend/internal/models"

// Actor is the authenticated caller.
type Actor struct {
	ID          uint
	Username    string
	AuthorID    *uint
	IsModerator bool
}

// IsAuthor reports whether the actor holds an author profile.
func (a Actor) IsAuthor() bool { return a.AuthorID != nil }

// NewActor builds an Actor from a loaded user.
func NewActor(u models.User) Actor {
	actor := Actor{ID: u.ID, Username: u.Username, IsModerator: u.IsModerator()}
	if u.Author != nil {
		id := u.Author.ID
		actor.AuthorID = &id
	}
	return actor
}

// Check decides whether actor may modify resource.
type Check[T any] func(actor Actor, resource T) bool

// OwnsStory is true when the actor is the story's author.
func OwnsStory(actor Actor, story models.Story) bool {
	return actor.AuthorID != nil && story.AuthorID != nil && *actor.AuthorID == *story.AuthorID
}

// OwnsStoryOrModerates extends OwnsStory to moderators.
func OwnsStoryOrModerates(actor Actor, story models.Story) bool {
	return actor.IsModerator || OwnsStory(actor, story)
}

func OwnsReview(actor Actor, review models.Review) bool {
	return actor.ID == review.UserID
}

func OwnsReviewOrModerates(actor Actor, review models.Review) bool {
	return actor.IsModerator || OwnsReview(actor, review)
}

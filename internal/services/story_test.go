package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storytime/backend/internal/apperr"
	"github.com/storytime/backend/internal/cache"
	"github.com/storytime/backend/internal/database/dbtest"
	"github.com/storytime/backend/internal/events"
	"github.com/storytime/backend/internal/models"
	"github.com/storytime/backend/internal/policy"
)

const storyBody = "A body comfortably past the minimum length."

func TestStoryService_Create(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewStoryService(f.db, f.listing, f.events, 0)
	writer := f.author(t, "writer")

	view, err := svc.Create(ctx, writer, models.CreateStoryRequest{Title: "  Salt Roads ", Content: storyBody})
	require.NoError(t, err)
	assert.Equal(t, "Salt Roads", view.Title)
	assert.Equal(t, models.GenreOthers, view.Genre)
	require.NotNil(t, view.Author)
	assert.Equal(t, "pen-writer", *view.Author)

	view, err = svc.Create(ctx, writer, models.CreateStoryRequest{Title: "Case Files", Content: storyBody, Genre: "Mystery"})
	require.NoError(t, err)
	assert.Equal(t, models.GenreMystery, view.Genre)

	assert.Len(t, f.events.Events(events.SubjectStoryCreated), 2)
}

func TestStoryService_CreateRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewStoryService(f.db, f.listing, f.events, 0)
	writer := f.author(t, "writer")

	tests := []struct {
		name  string
		actor policy.Actor
		req   models.CreateStoryRequest
		want  error
	}{
		{"reader", f.reader(t, "reader"), models.CreateStoryRequest{Title: "Title", Content: storyBody}, ErrNotAuthor},
		{"short title", writer, models.CreateStoryRequest{Title: " ab ", Content: storyBody}, ErrStoryTitle},
		{"long title", writer, models.CreateStoryRequest{Title: strings.Repeat("t", MaxTitleLength+1), Content: storyBody}, ErrStoryTitle},
		{"short content", writer, models.CreateStoryRequest{Title: "Title", Content: "too short"}, ErrStoryContent},
		{"bad genre", writer, models.CreateStoryRequest{Title: "Title", Content: storyBody, Genre: "horror"}, ErrInvalidGenre},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.actor, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	require.NoError(t, f.db.Model(&models.Author{}).Where("id = ?", *writer.AuthorID).Update("banned", true).Error)
	_, err := svc.Create(ctx, writer, models.CreateStoryRequest{Title: "Title", Content: storyBody})
	assert.ErrorIs(t, err, ErrAuthorBanned)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestStoryService_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewStoryService(f.db, f.listing, f.events, 0)
	reactions := NewReactionEngine(f.db, f.listing, f.events)

	writer, other := f.author(t, "writer"), f.author(t, "other")
	moderator := f.userWithRole(t, "mod", models.RoleModerator)
	story := f.story(t, writer, "Original")

	_, err := svc.Update(ctx, other, story.ID, models.UpdateStoryRequest{Title: ptr("Taken over")}, policy.OwnsStory)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Update(ctx, writer, story.ID, models.UpdateStoryRequest{}, policy.OwnsStory)
	assert.ErrorIs(t, err, ErrEmptyUpdate)

	genre := models.GenreComedy
	view, err := svc.Update(ctx, writer, story.ID, models.UpdateStoryRequest{Title: ptr("Revised"), Genre: &genre}, policy.OwnsStory)
	require.NoError(t, err)
	assert.Equal(t, "Revised", view.Title)
	assert.Equal(t, models.GenreComedy, view.Genre)

	_, err = reactions.SetReaction(ctx, f.reader(t, "reader").ID, story.ID, models.ReactionLike)
	require.NoError(t, err)

	err = svc.Delete(ctx, other, story.ID, policy.OwnsStoryOrModerates)
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, svc.Delete(ctx, moderator, story.ID, policy.OwnsStoryOrModerates))

	var reactionRows int64
	require.NoError(t, f.db.Model(&models.Reaction{}).Where("story_id = ?", story.ID).Count(&reactionRows).Error)
	assert.Zero(t, reactionRows)

	_, err = svc.Get(ctx, story.ID)
	assert.ErrorIs(t, err, ErrStoryNotFound)
	assert.Len(t, f.events.Events(events.SubjectStoryDeleted), 1)
}

func TestStoryService_AuthorRemovalKeepsStory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewStoryService(f.db, f.listing, f.events, 0)

	writer := f.author(t, "writer")
	story := f.story(t, writer, "Orphaned")
	require.NoError(t, f.db.Delete(&models.Author{}, *writer.AuthorID).Error)

	payload, err := svc.Get(ctx, story.ID)
	require.NoError(t, err)

	var view StoryView
	require.NoError(t, json.Unmarshal(payload, &view))
	assert.Nil(t, view.AuthorID)
	assert.Nil(t, view.Author)
}

func TestStoryService_ListingCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewStoryService(f.db, f.listing, f.events, 0)
	writer := f.author(t, "writer")
	f.story(t, writer, "First")

	queries := dbtest.CountQueries(t, f.db)

	first, err := svc.List(ctx, ListQuery{})
	require.NoError(t, err)
	assert.Positive(t, queries.Count(), "a miss reads the store")

	queries.Reset()
	second, err := svc.List(ctx, ListQuery{})
	require.NoError(t, err)
	assert.Zero(t, queries.Count(), "a hit does not touch the store")
	assert.Equal(t, first, second)

	_, err = svc.Create(ctx, writer, models.CreateStoryRequest{Title: "Second", Content: storyBody})
	require.NoError(t, err)
	_, err = f.store.Get(ctx, cache.ListKey)
	assert.ErrorIs(t, err, cache.ErrMiss)

	queries.Reset()
	third, err := svc.List(ctx, ListQuery{})
	require.NoError(t, err)
	assert.Positive(t, queries.Count())

	var list StoryList
	require.NoError(t, json.Unmarshal(third, &list))
	assert.EqualValues(t, 2, list.Count)
	require.Len(t, list.Results, 2)
	assert.Equal(t, "Second", list.Results[0].Title)
}

func TestStoryService_ListFiltersBypassCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewStoryService(f.db, f.listing, f.events, 2)

	ann, bob := f.author(t, "ann"), f.author(t, "bob")
	for i := range 3 {
		f.story(t, ann, fmt.Sprintf("Ann Tale %d", i))
	}
	mystery := f.story(t, bob, "Bob Mystery")
	require.NoError(t, f.db.Model(&mystery).Update("genre", models.GenreMystery).Error)

	decode := func(q ListQuery) StoryList {
		t.Helper()
		payload, err := svc.List(ctx, q)
		require.NoError(t, err)
		var list StoryList
		require.NoError(t, json.Unmarshal(payload, &list))
		return list
	}

	list := decode(ListQuery{Genre: "MYSTERY"})
	require.Len(t, list.Results, 1)
	assert.Equal(t, "Bob Mystery", list.Results[0].Title)

	list = decode(ListQuery{Author: "PEN-ANN"})
	assert.EqualValues(t, 3, list.Count)
	assert.Len(t, list.Results, 2)

	list = decode(ListQuery{Author: "pen-ann", Page: Page{Number: 2}})
	assert.Len(t, list.Results, 1)

	list = decode(ListQuery{Search: "tale 1"})
	require.Len(t, list.Results, 1)
	assert.Equal(t, "Ann Tale 1", list.Results[0].Title)

	_, err := f.store.Get(ctx, cache.ListKey)
	assert.ErrorIs(t, err, cache.ErrMiss, "filtered queries are not cached")
}

func TestStoryService_SearchMatchesWildcardsLiterally(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewStoryService(f.db, f.listing, f.events, 0)

	writer := f.author(t, "writer")
	for _, title := range []string{"100% True", "Snake_Case", "Back\\slash", "Plain Title"} {
		f.story(t, writer, title)
	}

	titles := func(search string) []string {
		t.Helper()
		payload, err := svc.List(ctx, ListQuery{Search: search})
		require.NoError(t, err)
		var list StoryList
		require.NoError(t, json.Unmarshal(payload, &list))
		out := make([]string, 0, len(list.Results))
		for _, v := range list.Results {
			out = append(out, v.Title)
		}
		return out
	}

	assert.Equal(t, []string{"100% True"}, titles("%"))
	assert.Equal(t, []string{"Snake_Case"}, titles("_"))
	assert.Equal(t, []string{"Back\\slash"}, titles("\\"))
	assert.Equal(t, []string{"100% True"}, titles("0% t"))
	assert.Empty(t, titles("snake%case"))
}

func TestStoryService_DetailCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewStoryService(f.db, f.listing, f.events, 0)
	reactions := NewReactionEngine(f.db, f.listing, f.events)

	story := f.story(t, f.author(t, "writer"), "Cached")
	queries := dbtest.CountQueries(t, f.db)

	_, err := svc.Get(ctx, story.ID)
	require.NoError(t, err)
	queries.Reset()
	_, err = svc.Get(ctx, story.ID)
	require.NoError(t, err)
	assert.Zero(t, queries.Count())

	_, err = reactions.SetReaction(ctx, f.reader(t, "reader").ID, story.ID, models.ReactionLike)
	require.NoError(t, err)

	payload, err := svc.Get(ctx, story.ID)
	require.NoError(t, err)
	var view StoryView
	require.NoError(t, json.Unmarshal(payload, &view))
	assert.Equal(t, 1, view.Likes)
}

package database_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/storytime/backend/internal/database"
	"github.com/storytime/backend/internal/database/dbtest"
	"github.com/storytime/backend/internal/models"
)

func TestPostgres_SchemaConstraints(t *testing.T) {
	db := dbtest.OpenPostgres(t)

	user := models.User{Username: "reader", Email: "reader@example.com", Password: "x", Role: models.RoleUser}
	require.NoError(t, db.Create(&user).Error)
	story := models.Story{Title: "Night Train", Content: "A long enough story body.", Genre: models.GenreMystery}
	require.NoError(t, db.Create(&story).Error)

	require.NoError(t, db.Create(&models.Reaction{UserID: user.ID, StoryID: story.ID, Reaction: models.ReactionLike}).Error)
	err := db.Create(&models.Reaction{UserID: user.ID, StoryID: story.ID, Reaction: models.ReactionDislike}).Error
	assert.True(t, database.IsUniqueViolation(err))

	require.NoError(t, db.Create(&models.Review{UserID: user.ID, StoryID: story.ID, Alias: "reader", Content: "Nice"}).Error)
	err = db.Create(&models.Review{UserID: user.ID + 1, StoryID: story.ID, Alias: "reader", Content: "Again"}).Error
	assert.True(t, database.ViolatesConstraint(err, "idx_reviews_story_alias", "reviews.story_id", "reviews.alias"))

	err = db.Create(&models.Rating{UserID: user.ID, StoryID: story.ID, Rating: 6}).Error
	assert.Error(t, err, "rating check constraint")

	// Deleting the story cascades to its children.
	require.NoError(t, db.Delete(&story).Error)
	var remaining int64
	db.Model(&models.Reaction{}).Where("story_id = ?", story.ID).Count(&remaining)
	assert.Zero(t, remaining)
}

func TestPostgres_AtomicCounterUnderContention(t *testing.T) {
	db := dbtest.OpenPostgres(t)

	story := models.Story{Title: "Crowded", Content: "A long enough story body.", Genre: models.GenreOthers}
	require.NoError(t, db.Create(&story).Error)

	const writers = 25
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			err := db.WithContext(ctx).Model(&models.Story{}).
				Where("id = ?", story.ID).
				UpdateColumn("likes", gorm.Expr("likes + ?", 1)).Error
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var got models.Story
	require.NoError(t, db.First(&got, story.ID).Error)
	assert.Equal(t, writers, got.Likes)
}

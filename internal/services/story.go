package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/storytime/backend/internal/apperr"
	"github.com/storytime/backend/internal/cache"
	"github.com/storytime/backend/internal/events"
	"github.com/storytime/backend/internal/models"
	"github.com/storytime/backend/internal/policy"
)

const (
	MinTitleLength   = 3
	MaxTitleLength   = 250
	MinContentLength = 20
	MaxContentLength = 10000

	DefaultPageSize = 20
)

var (
	ErrNotAuthor    = apperr.Forbidden("only authors can publish stories")
	ErrAuthorBanned = apperr.Forbidden("this author is banned from publishing")
	ErrStoryTitle   = apperr.Validation("title must be between %d and %d characters", MinTitleLength, MaxTitleLength)
	ErrStoryContent = apperr.Validation("content must be between %d and %d characters", MinContentLength, MaxContentLength)
	ErrInvalidGenre = apperr.Validation("genre must be one of mystery, fiction, comedy, others")
	ErrEmptyUpdate  = apperr.Validation("no fields to update")
)

// StoryView is the public representation of a story. Author is the pen
// name, nil once the author profile is gone.
type StoryView struct {
	ID            uint         `json:"id"`
	Title         string       `json:"title"`
	Content       string       `json:"content"`
	Genre         models.Genre `json:"genre"`
	AuthorID      *uint        `json:"author_id"`
	Author        *string      `json:"author"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
	Likes         int          `json:"likes"`
	Dislikes      int          `json:"dislikes"`
	AverageRating float64      `json:"average_rating"`
	TotalRatings  int          `json:"total_ratings"`
}

func viewOf(s models.Story) StoryView {
	v := StoryView{
		ID:            s.ID,
		Title:         s.Title,
		Content:       s.Content,
		Genre:         s.Genre,
		AuthorID:      s.AuthorID,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
		Likes:         s.Likes,
		Dislikes:      s.Dislikes,
		AverageRating: s.AverageRating,
		TotalRatings:  s.TotalRatings,
	}
	if s.Author != nil && s.Author.ID != 0 {
		name := s.Author.PenName
		v.Author = &name
	}
	return v
}

// StoryList is the serialized listing payload.
type StoryList struct {
	Count    int64       `json:"count"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Results  []StoryView `json:"results"`
}

type ListQuery struct {
	Page   Page
	Genre  string
	Author string
	Search string
}

// cacheable reports whether q is the default listing, the only one cached.
func (q ListQuery) cacheable() bool {
	return q.Page.Number == 1 && q.Genre == "" && q.Author == "" && q.Search == ""
}

// likeEscaper makes user search text match literally inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

type StoryService struct {
	db       *gorm.DB
	listing  *cache.Listing
	events   events.Publisher
	pageSize int
}

func NewStoryService(db *gorm.DB, listing *cache.Listing, pub events.Publisher, pageSize int) *StoryService {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	return &StoryService{db: db, listing: listing, events: pub, pageSize: pageSize}
}

// Create publishes a story under the actor's author profile.
func (s *StoryService) Create(ctx context.Context, actor policy.Actor, req models.CreateStoryRequest) (*StoryView, error) {
	if !actor.IsAuthor() {
		return nil, ErrNotAuthor
	}
	title, err := storyTitle(req.Title)
	if err != nil {
		return nil, err
	}
	content, err := storyContent(req.Content)
	if err != nil {
		return nil, err
	}
	genre, err := storyGenre(req.Genre)
	if err != nil {
		return nil, err
	}

	story := models.Story{Title: title, Content: content, Genre: genre, AuthorID: actor.AuthorID}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var author models.Author
		if err := tx.First(&author, *actor.AuthorID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotAuthor
			}
			return fmt.Errorf("load author %d: %w", *actor.AuthorID, err)
		}
		if author.Banned {
			return ErrAuthorBanned
		}
		if err := tx.Create(&story).Error; err != nil {
			return fmt.Errorf("create story: %w", err)
		}
		story.Author = &author
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateListing(ctx)
	publish(ctx, s.events, events.SubjectStoryCreated, events.Event{
		StoryID: story.ID,
		UserID:  actor.ID,
		Action:  string(OutcomeCreated),
	})

	view := viewOf(story)
	return &view, nil
}

// Update applies a partial update. check decides who may edit.
func (s *StoryService) Update(ctx context.Context, actor policy.Actor, storyID uint, req models.UpdateStoryRequest, check policy.Check[models.Story]) (*StoryView, error) {
	changes := map[string]any{}
	if req.Title != nil {
		title, err := storyTitle(*req.Title)
		if err != nil {
			return nil, err
		}
		changes["title"] = title
	}
	if req.Content != nil {
		content, err := storyContent(*req.Content)
		if err != nil {
			return nil, err
		}
		changes["content"] = content
	}
	if req.Genre != nil {
		genre, err := storyGenre(*req.Genre)
		if err != nil {
			return nil, err
		}
		changes["genre"] = genre
	}
	if len(changes) == 0 {
		return nil, ErrEmptyUpdate
	}

	var story models.Story
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		story, err = lookupStory(tx, storyID)
		if err != nil {
			return err
		}
		if check != nil && !check(actor, story) {
			return ErrForbidden
		}
		if err := tx.Model(&models.Story{}).Where("id = ?", storyID).Updates(changes).Error; err != nil {
			return fmt.Errorf("update story %d: %w", storyID, err)
		}
		story, err = lookupStory(tx, storyID, "Author")
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, storyID)
	view := viewOf(story)
	return &view, nil
}

// Delete removes a story and, through the foreign keys, its reactions,
// ratings and reviews.
func (s *StoryService) Delete(ctx context.Context, actor policy.Actor, storyID uint, check policy.Check[models.Story]) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		story, err := lookupStory(tx, storyID)
		if err != nil {
			return err
		}
		if check != nil && !check(actor, story) {
			return ErrForbidden
		}
		if err := tx.Delete(&story).Error; err != nil {
			return fmt.Errorf("delete story %d: %w", storyID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, storyID)
	publish(ctx, s.events, events.SubjectStoryDeleted, events.Event{
		StoryID: storyID,
		UserID:  actor.ID,
		Action:  string(OutcomeDeleted),
	})
	return nil
}

// List returns the serialized listing for q. The default listing is served
// through the cache; filtered or later pages always read the store.
func (s *StoryService) List(ctx context.Context, q ListQuery) ([]byte, error) {
	q.Page = q.Page.normalize(s.pageSize)
	load := func(ctx context.Context) ([]byte, error) {
		list, err := s.query(ctx, q)
		if err != nil {
			return nil, err
		}
		return json.Marshal(list)
	}

	if s.listing == nil || !q.cacheable() || q.Page.Size != s.pageSize {
		return load(ctx)
	}
	payload, _, err := s.listing.Fetch(ctx, cache.ListKey, load)
	return payload, err
}

func (s *StoryService) query(ctx context.Context, q ListQuery) (*StoryList, error) {
	base := s.db.WithContext(ctx).Model(&models.Story{})
	if q.Genre != "" {
		base = base.Where("LOWER(stories.genre) = LOWER(?)", q.Genre)
	}
	if q.Author != "" {
		base = base.Where("stories.author_id IN (?)",
			s.db.WithContext(ctx).Model(&models.Author{}).Select("id").Where("LOWER(pen_name) = LOWER(?)", q.Author))
	}
	if q.Search != "" {
		base = base.Where(`LOWER(stories.title) LIKE ? ESCAPE '\'`, "%"+likeEscaper.Replace(strings.ToLower(q.Search))+"%")
	}

	list := StoryList{Page: q.Page.Number, PageSize: q.Page.Size}
	if err := base.Session(&gorm.Session{}).Count(&list.Count).Error; err != nil {
		return nil, fmt.Errorf("count stories: %w", err)
	}

	var stories []models.Story
	err := base.Session(&gorm.Session{}).
		Joins("Author").
		Order("stories.created_at desc, stories.id desc").
		Limit(q.Page.Size).Offset(q.Page.offset()).
		Find(&stories).Error
	if err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}

	list.Results = make([]StoryView, 0, len(stories))
	for _, story := range stories {
		list.Results = append(list.Results, viewOf(story))
	}
	return &list, nil
}

// Get returns one serialized story, cached under its detail key.
func (s *StoryService) Get(ctx context.Context, storyID uint) ([]byte, error) {
	load := func(ctx context.Context) ([]byte, error) {
		var story models.Story
		err := s.db.WithContext(ctx).Joins("Author").First(&story, "stories.id = ?", storyID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStoryNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("load story %d: %w", storyID, err)
		}
		return json.Marshal(viewOf(story))
	}

	if s.listing == nil {
		return load(ctx)
	}
	payload, _, err := s.listing.Fetch(ctx, cache.DetailKey(storyID), load)
	return payload, err
}

func (s *StoryService) invalidateListing(ctx context.Context) {
	if s.listing != nil {
		s.listing.InvalidateListing(ctx)
	}
}

func (s *StoryService) invalidate(ctx context.Context, storyID uint) {
	if s.listing != nil {
		s.listing.InvalidateAll(ctx, storyID)
	}
}

func storyTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if n := utf8.RuneCountInString(title); n < MinTitleLength || n > MaxTitleLength {
		return "", ErrStoryTitle
	}
	return title, nil
}

func storyContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if n := utf8.RuneCountInString(content); n < MinContentLength || n > MaxContentLength {
		return "", ErrStoryContent
	}
	return content, nil
}

func storyGenre(genre models.Genre) (models.Genre, error) {
	if genre == "" {
		return models.GenreOthers, nil
	}
	genre = models.Genre(strings.ToLower(string(genre)))
	if !genre.Valid() {
		return "", ErrInvalidGenre
	}
	return genre, nil
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storytime/backend/internal/database/dbtest"
	"github.com/storytime/backend/internal/models"
)

var secret = []byte("test-secret")

func TestToken_RoundTrip(t *testing.T) {
	token, err := GenerateToken(secret, models.User{ID: 7, Username: "reader"}, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(secret, token)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "reader", claims.Username)

	_, err = ParseToken([]byte("other"), token)
	assert.Error(t, err)

	expired, err := GenerateToken(secret, models.User{ID: 7}, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(secret, expired)
	assert.Error(t, err)
}

func TestAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := dbtest.OpenSQLite(t)

	user := models.User{Username: "writer", Email: "writer@example.com", Password: "hash", Role: models.RoleAdmin}
	require.NoError(t, db.Create(&user).Error)
	require.NoError(t, db.Create(&models.Author{UserID: &user.ID, PenName: "Quill"}).Error)

	r := gin.New()
	r.GET("/me", Auth(db, secret), func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{
			"id":        actor.ID,
			"author":    actor.IsAuthor(),
			"moderator": actor.IsModerator,
		})
	})

	valid, err := GenerateToken(secret, user, time.Hour)
	require.NoError(t, err)
	ghost, err := GenerateToken(secret, models.User{ID: user.ID + 50}, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Token " + valid, http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"unknown user", "Bearer " + ghost, http.StatusUnauthorized},
		{"valid", "Bearer " + valid, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.JSONEq(t, `{"id":1,"author":true,"moderator":true}`, w.Body.String())
			} else {
				assert.Contains(t, w.Body.String(), `"error":"unauthorized"`)
			}
		})
	}
}

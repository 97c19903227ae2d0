package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/storytime/backend/internal/apperr"
	"github.com/storytime/backend/internal/services"
)

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"conflict", services.ErrAlreadyReacted, http.StatusConflict, `{"error":"conflict","message":"you have already reacted to this story"}`},
		{"forbidden", services.ErrEditWindowClosed, http.StatusForbidden, `{"error":"forbidden","message":"the edit window for this review has closed"}`},
		{"wrapped", apperr.Wrap(services.ErrNoRating, errors.New("boom")), http.StatusNotFound, `{"error":"not_found","message":"you have not rated this story"}`},
		{"internal", errors.New("connection reset"), http.StatusInternalServerError, `{"error":"internal_error","message":"internal server error"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			respondError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			assert.JSONEq(t, tt.body, w.Body.String())
		})
	}
}

func TestParamIDAndPage(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/?page=3&page_size=5", nil)
	c.Params = gin.Params{{Key: "id", Value: "42"}, {Key: "bad", Value: "0"}}

	id, ok := paramID(c, "id")
	assert.True(t, ok)
	assert.Equal(t, uint(42), id)
	assert.Equal(t, services.Page{Number: 3, Size: 5}, pageFrom(c, 20))

	_, ok = paramID(c, "bad")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

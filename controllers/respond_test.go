package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/princinho/adminportal/apperror"
	"github.com/princinho/adminportal/dto"
	"github.com/princinho/adminportal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func bind(t *testing.T, body string, out any) error {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return c.ShouldBindJSON(out)
}

func TestBindingErrorMessages(t *testing.T) {
	var login dto.LoginDTO
	err := bindingError(bind(t, `{"email":"a@x.com"}`, &login))
	assert.True(t, errors.Is(err, apperror.ErrValidation))
	assert.Equal(t, "password is required", apperror.PublicMessage(err))

	var create dto.CreateAccountDTO
	err = bindingError(bind(t, `{"name":"A","email":"nope","password":"short"}`, &create))
	msg := apperror.PublicMessage(err)
	assert.Contains(t, msg, "email must be a valid email")
	assert.Contains(t, msg, "password must be at least 8 characters")

	err = bindingError(bind(t, `{`, &login))
	assert.Equal(t, "malformed request body", apperror.PublicMessage(err))
}

func TestRespondError(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		status     int
		message    string
		retryAfter string
	}{
		{"invalid credentials", apperror.ErrInvalidCredentials, http.StatusUnauthorized, "invalid credentials", ""},
		{"internal hides cause", apperror.Internal(errors.New("dial tcp: refused"), "find account"), http.StatusInternalServerError, "internal server error", ""},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError, "internal server error", ""},
		{"rate limited", &services.RateLimitedError{RetryAfter: 1500 * time.Millisecond}, http.StatusTooManyRequests, apperror.ErrRateLimited.Message, "2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			respondError(c, zap.NewNop(), tc.err)

			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.retryAfter, w.Header().Get("Retry-After"))
			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tc.message, body["message"])
		})
	}
}

func TestRetryAfterSecondsFloorsAtOne(t *testing.T) {
	assert.Equal(t, "1", retryAfterSeconds(0))
	assert.Equal(t, "1", retryAfterSeconds(0.2))
	assert.Equal(t, "900", retryAfterSeconds(900))
}

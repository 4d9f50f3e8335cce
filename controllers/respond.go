package controllers

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/princinho/adminportal/apperror"
	"github.com/princinho/adminportal/middleware"
	"github.com/princinho/adminportal/models"
	"github.com/princinho/adminportal/ratelimit"
	"github.com/princinho/adminportal/services"
	"go.uber.org/zap"
)

// respondError writes {success:false, message}. Internal errors are logged
// with their cause and shown as a generic message.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	status := apperror.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	var limited *services.RateLimitedError
	if errors.As(err, &limited) {
		c.Header("Retry-After", retryAfterSeconds(limited.RetryAfter.Seconds()))
	}
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": apperror.PublicMessage(err)})
}

func retryAfterSeconds(s float64) string {
	return strconv.Itoa(int(math.Max(1, math.Ceil(s))))
}

func writeRateLimitHeaders(c *gin.Context, d ratelimit.Decision) {
	if d.Limit == 0 {
		return
	}
	c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
}

// bindingError turns a gin binding failure into a readable 400.
func bindingError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperror.Validation("malformed request body")
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field()[:1]) + fe.Field()[1:]
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "email":
			msgs = append(msgs, fmt.Sprintf("%s must be a valid email", field))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s characters", field, fe.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", field))
		}
	}
	return apperror.Validation(strings.Join(msgs, "; "))
}

func principalOrAbort(c *gin.Context, log *zap.Logger) (models.Principal, bool) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		respondError(c, log, apperror.New(apperror.CodeInvalidToken, "missing auth context"))
	}
	return p, ok
}

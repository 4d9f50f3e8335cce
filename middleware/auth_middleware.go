package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/princinho/adminportal/apperror"
	"github.com/princinho/adminportal/metrics"
	"github.com/princinho/adminportal/models"
	"github.com/princinho/adminportal/utils"
	"go.uber.org/zap"
)

const principalKey = "principal"

type principalCtxKey struct{}

// AccessVerifier checks an access token without touching storage.
type AccessVerifier interface {
	VerifyAccess(token string) (*utils.Claims, error)
}

// AccountLoader loads the account a verified token points at.
type AccountLoader interface {
	FindByID(ctx context.Context, id string) (*models.Account, error)
}

func abort(c *gin.Context, status int, message string) {
	metrics.AuthRejections.WithLabelValues(strconv.Itoa(status)).Inc()
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": message})
}

// AuthMiddleware requires "Authorization: Bearer <accessToken>". The token is
// verified, the account loaded and checked active, and a read-only Principal
// is attached for downstream handlers. Every failure before that is a 401.
func AuthMiddleware(tokens AccessVerifier, accounts AccountLoader, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		raw, ok := utils.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			abort(c, http.StatusUnauthorized, "missing token")
			return
		}

		claims, err := tokens.VerifyAccess(raw)
		if err != nil {
			abort(c, http.StatusUnauthorized, apperror.ErrInvalidToken.Message)
			return
		}

		acc, err := accounts.FindByID(c.Request.Context(), claims.AccountID)
		switch {
		case errors.Is(err, apperror.ErrNotFound):
			abort(c, http.StatusUnauthorized, apperror.ErrInvalidToken.Message)
			return
		case err != nil:
			log.Error("load account for token", zap.String("account_id", claims.AccountID), zap.Error(err))
			abort(c, http.StatusInternalServerError, apperror.ErrInternal.Message)
			return
		case !acc.IsActive:
			abort(c, http.StatusUnauthorized, apperror.ErrInvalidToken.Message)
			return
		}

		principal := models.NewPrincipal(acc)
		c.Set(principalKey, principal)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), principalCtxKey{}, principal))
		c.Next()
	}
}

// GetPrincipal returns a copy of the authenticated caller.
func GetPrincipal(c *gin.Context) (models.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return models.Principal{}, false
	}
	p, ok := v.(models.Principal)
	if !ok {
		return models.Principal{}, false
	}
	p.Permissions = p.Permissions.Clone()
	return p, true
}

// PrincipalFromContext is GetPrincipal for code that only sees a context.Context.
func PrincipalFromContext(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(principalCtxKey{}).(models.Principal)
	if !ok {
		return models.Principal{}, false
	}
	p.Permissions = p.Permissions.Clone()
	return p, true
}

// RequirePermission gates a route on (resource, action). It must run after
// AuthMiddleware: no principal is a 401, a denied check a 403.
func RequirePermission(resource models.Resource, action models.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "missing token")
			return
		}
		if !p.Can(resource, action) {
			abort(c, http.StatusForbidden, apperror.ErrForbidden.Message)
			return
		}
		c.Next()
	}
}

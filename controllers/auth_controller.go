package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/princinho/adminportal/apperror"
	"github.com/princinho/adminportal/dto"
	"github.com/princinho/adminportal/services"
	"github.com/princinho/adminportal/utils"
	"go.uber.org/zap"
)

type AuthController struct {
	auth       *services.AuthService
	cookies    utils.CookieSettings
	refreshTTL time.Duration
	log        *zap.Logger
}

func NewAuthController(auth *services.AuthService, cookies utils.CookieSettings, refreshTTL time.Duration, log *zap.Logger) *AuthController {
	return &AuthController{auth: auth, cookies: cookies, refreshTTL: refreshTTL, log: log}
}

// refreshTokenFrom reads the refresh token from the JSON body, falling back
// to the refresh cookie.
func refreshTokenFrom(c *gin.Context) string {
	var body dto.RefreshDTO
	if c.Request.ContentLength != 0 {
		_ = c.ShouldBindJSON(&body)
	}
	if body.RefreshToken != "" {
		return body.RefreshToken
	}
	token, _ := c.Cookie(utils.RefreshCookieName)
	return token
}

// POST /auth/login
func (ac *AuthController) Login() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.LoginDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			respondError(c, ac.log, apperror.Validation("email and password are required"))
			return
		}

		res, decision, err := ac.auth.Login(c.Request.Context(), services.LoginInput{
			Email:    body.Email,
			Password: body.Password,
			ClientIP: c.ClientIP(),
		})
		writeRateLimitHeaders(c, decision)
		if err != nil {
			respondError(c, ac.log, err)
			return
		}

		utils.SetRefreshCookie(c, ac.cookies, res.Tokens.RefreshToken, int(ac.refreshTTL.Seconds()))
		c.JSON(http.StatusOK, dto.LoginResponse{
			Success:      true,
			AccessToken:  res.Tokens.AccessToken,
			RefreshToken: res.Tokens.RefreshToken,
			Account:      res.Account,
		})
	}
}

// POST /auth/refresh
func (ac *AuthController) Refresh() gin.HandlerFunc {
	return func(c *gin.Context) {
		pair, err := ac.auth.Refresh(c.Request.Context(), refreshTokenFrom(c))
		if err != nil {
			if apperror.CodeOf(err) == apperror.CodeInvalidToken {
				utils.ClearRefreshCookie(c, ac.cookies)
			}
			respondError(c, ac.log, err)
			return
		}
		if pair.RefreshToken != "" {
			utils.SetRefreshCookie(c, ac.cookies, pair.RefreshToken, int(ac.refreshTTL.Seconds()))
		}
		c.JSON(http.StatusOK, dto.RefreshResponse{
			Success:      true,
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
		})
	}
}

// POST /auth/logout
func (ac *AuthController) Logout() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := principalOrAbort(c, ac.log)
		if !ok {
			return
		}
		if err := ac.auth.Logout(c.Request.Context(), principal, refreshTokenFrom(c)); err != nil {
			respondError(c, ac.log, err)
			return
		}
		utils.ClearRefreshCookie(c, ac.cookies)
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// POST /auth/logout-all
func (ac *AuthController) LogoutAll() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := principalOrAbort(c, ac.log)
		if !ok {
			return
		}
		if err := ac.auth.LogoutAll(c.Request.Context(), principal); err != nil {
			respondError(c, ac.log, err)
			return
		}
		utils.ClearRefreshCookie(c, ac.cookies)
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// GET /auth/me
func (ac *AuthController) Me() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := principalOrAbort(c, ac.log)
		if !ok {
			return
		}
		acc, err := ac.auth.Me(c.Request.Context(), principal)
		if err != nil {
			respondError(c, ac.log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "account": acc})
	}
}

// POST /auth/me/password
func (ac *AuthController) ChangeMyPassword() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.ChangeMyPasswordDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			respondError(c, ac.log, bindingError(err))
			return
		}
		principal, ok := principalOrAbort(c, ac.log)
		if !ok {
			return
		}
		if err := ac.auth.ChangePassword(c.Request.Context(), principal, body.CurrentPassword, body.NewPassword); err != nil {
			respondError(c, ac.log, err)
			return
		}
		utils.ClearRefreshCookie(c, ac.cookies)
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

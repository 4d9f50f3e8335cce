package dto

import "github.com/princinho/adminportal/models"

type LoginDTO struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshDTO is optional on /auth/refresh and /auth/logout; the refresh
// cookie is used when the body carries no token.
type RefreshDTO struct {
	RefreshToken string `json:"refreshToken"`
}

type LoginResponse struct {
	Success      bool            `json:"success"`
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
	Account      *models.Account `json:"account"`
}

type RefreshResponse struct {
	Success      bool   `json:"success"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

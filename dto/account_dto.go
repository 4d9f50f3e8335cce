package dto

import "github.com/princinho/adminportal/models"

type CreateAccountDTO struct {
	Name        string                  `json:"name" binding:"required,max=120"`
	Email       string                  `json:"email" binding:"required,email"`
	Password    string                  `json:"password" binding:"required,min=8,max=72"`
	Role        models.Role             `json:"role" binding:"omitempty,oneof=super-admin admin moderator"`
	Permissions models.PermissionMatrix `json:"permissions"`
}

// UpdateAccountDTO fields are all optional.
type UpdateAccountDTO struct {
	Name        *string                 `json:"name" binding:"omitempty,max=120"`
	Role        *models.Role            `json:"role" binding:"omitempty,oneof=super-admin admin moderator"`
	Permissions models.PermissionMatrix `json:"permissions"`
	IsActive    *bool                   `json:"isActive"`
}

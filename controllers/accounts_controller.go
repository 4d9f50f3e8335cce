package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/princinho/adminportal/apperror"
	"github.com/princinho/adminportal/dto"
	"github.com/princinho/adminportal/models"
	"github.com/princinho/adminportal/services"
	"go.uber.org/zap"
)

var errOnlySuperAdmin = apperror.New(apperror.CodeForbidden, "only a super-admin can grant that role or custom permissions")

// AccountsController serves /admin/accounts. Permission checks are applied
// by the router; role-sensitive rules live in the credential store.
type AccountsController struct {
	store *services.CredentialStore
	log   *zap.Logger
}

func NewAccountsController(store *services.CredentialStore, log *zap.Logger) *AccountsController {
	return &AccountsController{store: store, log: log}
}

// GET /admin/accounts
func (ac *AccountsController) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		accounts, err := ac.store.List(c.Request.Context())
		if err != nil {
			respondError(c, ac.log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "accounts": accounts})
	}
}

// GET /admin/accounts/:id
func (ac *AccountsController) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		acc, err := ac.store.FindByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, ac.log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "account": acc.Sanitized()})
	}
}

// POST /admin/accounts
func (ac *AccountsController) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.CreateAccountDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			respondError(c, ac.log, bindingError(err))
			return
		}
		principal, ok := principalOrAbort(c, ac.log)
		if !ok {
			return
		}
		if (body.Role == models.RoleSuperAdmin || body.Permissions != nil) && !principal.IsSuperAdmin() {
			respondError(c, ac.log, errOnlySuperAdmin)
			return
		}

		acc, err := ac.store.Create(c.Request.Context(), services.NewAccount{
			Name:        body.Name,
			Email:       body.Email,
			Password:    body.Password,
			Role:        body.Role,
			Permissions: body.Permissions,
		})
		if err != nil {
			respondError(c, ac.log, err)
			return
		}
		ac.log.Info("account created by admin",
			zap.String("account_id", acc.ID.Hex()),
			zap.String("actor_id", principal.AccountID),
		)
		c.JSON(http.StatusCreated, gin.H{"success": true, "account": acc})
	}
}

// PATCH /admin/accounts/:id
func (ac *AccountsController) Update() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.UpdateAccountDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			respondError(c, ac.log, bindingError(err))
			return
		}
		principal, ok := principalOrAbort(c, ac.log)
		if !ok {
			return
		}
		acc, err := ac.store.Update(c.Request.Context(), principal, c.Param("id"), services.AccountUpdate{
			Name:        body.Name,
			Role:        body.Role,
			Permissions: body.Permissions,
			IsActive:    body.IsActive,
		})
		if err != nil {
			respondError(c, ac.log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "account": acc})
	}
}

// DELETE /admin/accounts/:id
func (ac *AccountsController) Delete() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := principalOrAbort(c, ac.log)
		if !ok {
			return
		}
		acc, err := ac.store.Deactivate(c.Request.Context(), principal, c.Param("id"))
		if err != nil {
			respondError(c, ac.log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "account": acc})
	}
}

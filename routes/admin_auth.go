package routes

import (
	"errors"
	"time"

	"kyc-verification-server/models"
	"kyc-verification-server/storage"
	"kyc-verification-server/utils"

	"github.com/kataras/golog"
	"github.com/kataras/iris/v12"
)

const msgAdminOnly = "Access denied. Admin privileges required."

type AdminAuthRoutes struct {
	invites *storage.InviteStore
}

func NewAdminAuthRoutes(invites *storage.InviteStore) *AdminAuthRoutes {
	return &AdminAuthRoutes{invites: invites}
}

type AdminSignupInput struct {
	Email      string `json:"email" validate:"required"`
	Password   string `json:"password" validate:"required"`
	InviteCode string `json:"invite_code" validate:"required"`
}

type InviteCodeInput struct {
	Code string `json:"code" validate:"required"`
}

type CreateInviteInput struct {
	Code      string     `json:"code"`
	MaxUses   int        `json:"max_uses"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// POST /api/admin/auth/login. Valid credentials without the admin role get
// no tokens.
func (r *AdminAuthRoutes) Login(ctx iris.Context) {
	var input LoginUserInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}
	user, ok := authenticate(ctx, input)
	if !ok {
		return
	}
	if !user.IsAdmin() {
		utils.JSONError(ctx, iris.StatusForbidden, "forbidden", msgAdminOnly)
		return
	}
	returnUser(*user, ctx)
}

// POST /api/admin/auth/signup
func (r *AdminAuthRoutes) Signup(ctx iris.Context) {
	var input AdminSignupInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}
	email, ok := validateCredentials(ctx, input.Email, input.Password)
	if !ok {
		return
	}
	reqCtx := ctx.Request().Context()
	usable, err := r.invites.Validate(reqCtx, input.InviteCode)
	if err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if !usable {
		utils.JSONError(ctx, iris.StatusForbidden, "invalid_invite", storage.ErrInviteInvalid.Error())
		return
	}

	user, ok := createUser(ctx, email, input.Password)
	if !ok {
		return
	}
	if err := r.invites.AssignAdminRole(reqCtx, user.ID, input.InviteCode); err != nil {
		// the code was used up between the check and the redeem
		if delErr := storage.DB.WithContext(reqCtx).Delete(user).Error; delErr != nil {
			golog.Warnf("remove user %s after failed invite: %v", user.ID, delErr)
		}
		if errors.Is(err, storage.ErrInviteInvalid) {
			utils.JSONError(ctx, iris.StatusForbidden, "invalid_invite", err.Error())
			return
		}
		utils.CreateInternalServerError(ctx)
		return
	}
	user.Role = models.RoleAdmin
	ctx.StatusCode(iris.StatusCreated)
	returnUser(*user, ctx)
}

// POST /api/admin/auth/invite/validate
func (r *AdminAuthRoutes) ValidateInvite(ctx iris.Context) {
	var input InviteCodeInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}
	usable, err := r.invites.Validate(ctx.Request().Context(), input.Code)
	if err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(iris.Map{"data": iris.Map{"valid": usable}})
}

// POST /api/admin/invite-codes
func (r *AdminAuthRoutes) CreateInvite(ctx iris.Context) {
	var input CreateInviteInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}
	creator := utils.CurrentUserID(ctx)
	invite := models.InviteCode{Code: input.Code, MaxUses: input.MaxUses, ExpiresAt: input.ExpiresAt, CreatedBy: &creator}
	if err := r.invites.Create(ctx.Request().Context(), &invite); err != nil {
		golog.Errorf("create invite code: %v", err)
		utils.CreateInternalServerError(ctx)
		return
	}

	utils.Audit(ctx, "invite.create", "invite_code", invite.Code, nil, invite)

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(iris.Map{"data": invite})
}

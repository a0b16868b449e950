package routes

import (
	"errors"
	"net/http"
	"strings"

	"kyc-verification-server/models"
	"kyc-verification-server/storage"
	"kyc-verification-server/utils"

	"github.com/kataras/iris/v12"
	"gorm.io/gorm"
)

// GET /admin/users?role=&q=&page=&per_page=
func AdminListUsers(ctx iris.Context) {
	page := ctx.URLParamIntDefault("page", 1)
	if page < 1 {
		page = 1
	}
	perPage := ctx.URLParamIntDefault("per_page", 25)
	if perPage <= 0 || perPage > 100 {
		perPage = 25
	}

	q := strings.TrimSpace(ctx.URLParamDefault("q", ""))
	role := strings.TrimSpace(ctx.URLParamDefault("role", ""))

	query := storage.DB.WithContext(ctx.Request().Context()).Model(&models.User{})
	if role != "" {
		query = query.Where("role = ?", role)
	}
	if q != "" {
		query = query.Where("lower(email) LIKE ?", "%"+strings.ToLower(q)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	var users []models.User
	if err := query.Order("created_at DESC").Offset((page - 1) * perPage).Limit(perPage).Find(&users).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	utils.JSONPage(ctx, users, page, perPage, total)
}

// GET /admin/users/{id} returns the user, their KYC records and, for admins,
// their recent review actions.
func AdminGetUser(ctx iris.Context) {
	id, ok := uuidParam(ctx, "id")
	if !ok {
		return
	}
	db := storage.DB.WithContext(ctx.Request().Context())

	var user models.User
	err := db.First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		utils.JSONError(ctx, http.StatusNotFound, "not_found", "user not found")
		return
	}
	if err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	var records []models.Customer
	if err := db.Where("user_id = ?", id).Order("created_at DESC").Find(&records).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	var actions []models.AuditLog
	if err := db.Where("admin_user_id = ?", id).Order("created_at DESC").Limit(50).Find(&actions).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(iris.Map{
		"data": iris.Map{
			"user":               user,
			"kycRecords":         renderCustomers(records),
			"recentAdminActions": renderAuditLogs(actions),
		},
		"meta":  iris.Map{},
		"links": iris.Map{},
	})
}

package routes

import (
	"kyc-verification-server/models"
	"kyc-verification-server/storage"
	"kyc-verification-server/utils"

	"github.com/kataras/iris/v12"
)

// GET /admin/kyc/stats
func (r *AdminKycRoutes) Stats(ctx iris.Context) {
	stats, err := r.review.Stats(ctx.Request().Context())
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	data := iris.Map{"total": stats.Total}
	for _, st := range models.KycStatuses {
		data[string(st)] = stats.ByStatus[st]
	}
	ctx.JSON(iris.Map{
		"data":  data,
		"meta":  iris.Map{},
		"links": iris.Map{},
	})
}

// GET /admin/activity
func AdminActivity(ctx iris.Context) {
	var logs []models.AuditLog
	q := storage.DB.WithContext(ctx.Request().Context()).Order("created_at DESC").Limit(100)
	if rt := ctx.URLParamDefault("resource_type", ""); rt != "" {
		q = q.Where("resource_type = ?", rt)
	}
	if err := q.Find(&logs).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(iris.Map{"data": renderAuditLogs(logs), "meta": iris.Map{}, "links": iris.Map{}})
}

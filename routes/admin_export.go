package routes

import (
	"errors"

	"kyc-verification-server/models"
	"kyc-verification-server/services"
	"kyc-verification-server/utils"

	"github.com/kataras/iris/v12"
)

// POST /admin/export { status: string, q: string }
func (r *AdminKycRoutes) CreateExport(ctx iris.Context) {
	var body struct {
		Status string `json:"status"`
		Query  string `json:"q"`
	}
	if err := ctx.ReadJSON(&body); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}
	filter := services.ExportFilter{Query: body.Query}
	if body.Status != "" && body.Status != "all" {
		st, err := models.ParseKycStatus(body.Status)
		if err != nil {
			utils.JSONError(ctx, iris.StatusUnprocessableEntity, "invalid_status", err.Error())
			return
		}
		filter.Status = st
	}

	job := r.exports.Start(utils.CurrentUserID(ctx), filter)
	utils.Audit(ctx, "kyc.export", "export", job.ID, nil, job)

	ctx.StatusCode(iris.StatusAccepted)
	ctx.JSON(iris.Map{"data": iris.Map{"id": job.ID, "status": job.Status}})
}

// GET /admin/export/{id}
func (r *AdminKycRoutes) GetExport(ctx iris.Context) {
	job, url, err := r.exports.Get(ctx.Params().GetString("id"))
	if errors.Is(err, services.ErrNotFound) {
		utils.JSONError(ctx, iris.StatusNotFound, "not_found", "job not found")
		return
	}
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	ctx.JSON(iris.Map{"data": iris.Map{"job": job, "download_url": url}})
}

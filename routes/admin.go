package routes

import (
	"strings"

	"kyc-verification-server/models"
	"kyc-verification-server/services"
	"kyc-verification-server/storage"
	"kyc-verification-server/utils"

	"github.com/kataras/iris/v12"
)

type AdminKycRoutes struct {
	review  *services.ReviewService
	exports *services.ExportService
}

func NewAdminKycRoutes(review *services.ReviewService, exports *services.ExportService) *AdminKycRoutes {
	return &AdminKycRoutes{review: review, exports: exports}
}

func statusParam(ctx iris.Context) (models.KycStatus, bool) {
	raw := strings.TrimSpace(ctx.URLParamDefault("status", ""))
	if raw == "" || raw == "all" {
		return "", true
	}
	st, err := models.ParseKycStatus(raw)
	if err != nil {
		utils.JSONError(ctx, iris.StatusUnprocessableEntity, "invalid_status", err.Error())
		return "", false
	}
	return st, true
}

// GET /admin/kyc?status=&q=&page=&per_page=
func (r *AdminKycRoutes) List(ctx iris.Context) {
	status, ok := statusParam(ctx)
	if !ok {
		return
	}
	filter := storage.CustomerFilter{
		Status:  status,
		Query:   ctx.URLParamDefault("q", ""),
		Page:    ctx.URLParamIntDefault("page", 1),
		PerPage: ctx.URLParamIntDefault("per_page", 25),
	}
	filter.Normalize()

	customers, total, err := r.review.List(ctx.Request().Context(), filter)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	utils.JSONPage(ctx, renderCustomers(customers), filter.Page, filter.PerPage, total)
}

// GET /admin/kyc/{id}
func (r *AdminKycRoutes) Get(ctx iris.Context) {
	id, ok := uuidParam(ctx, "id")
	if !ok {
		return
	}
	detail, err := r.review.Get(ctx.Request().Context(), id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	ctx.JSON(iris.Map{
		"data": iris.Map{
			"customer":            renderCustomer(detail.Customer, true),
			"urls":                detail.URLs,
			"allowed_transitions": detail.Transitions,
		},
		"meta":  iris.Map{},
		"links": iris.Map{},
	})
}

// PATCH /admin/kyc/{id}/review
func (r *AdminKycRoutes) Review(ctx iris.Context) {
	id, ok := uuidParam(ctx, "id")
	if !ok {
		return
	}
	var input services.ReviewInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}
	before, after, err := r.review.Review(ctx.Request().Context(), id, utils.CurrentUserID(ctx), input)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}

	utils.Audit(ctx, "kyc.review", "customer", id.String(), before, after)

	ctx.JSON(iris.Map{"data": renderCustomer(&after, true)})
}

func (r *AdminKycRoutes) Register(party iris.Party) {
	party.Get("/kyc", r.List)
	party.Get("/kyc/stats", r.Stats)
	party.Get("/kyc/{id:uuid}", r.Get)
	party.Patch("/kyc/{id:uuid}/review", r.Review)
	party.Post("/export", r.CreateExport)
	party.Get("/export/{id:string}", r.GetExport)
}

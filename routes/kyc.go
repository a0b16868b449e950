package routes

import (
	"kyc-verification-server/services"
	"kyc-verification-server/utils"

	"github.com/kataras/iris/v12"
)

type KycRoutes struct {
	svc *services.KycService
}

func NewKycRoutes(svc *services.KycService) *KycRoutes {
	return &KycRoutes{svc: svc}
}

type VerifyInput struct {
	DocumentNumber string `json:"document_number"`
}

type MarkReadInput struct {
	IDs []uint `json:"ids" validate:"required,min=1"`
}

// POST /api/kyc/verify
func (r *KycRoutes) Verify(ctx iris.Context) {
	var input VerifyInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}
	res, err := r.svc.Verify(ctx.Request().Context(), utils.CurrentUserID(ctx), input.DocumentNumber)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	ctx.JSON(iris.Map{"data": res})
}

// GET /api/kyc/progress?doc=
func (r *KycRoutes) Progress(ctx iris.Context) {
	res, err := r.svc.Progress(ctx.Request().Context(), utils.CurrentUserID(ctx), ctx.URLParam("doc"))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	ctx.JSON(iris.Map{"data": iris.Map{
		"customer":     renderCustomer(res.Customer, false),
		"current_step": res.Step,
	}})
}

// POST /api/kyc/capture
func (r *KycRoutes) Capture(ctx iris.Context) {
	var input services.CaptureInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}
	res, err := r.svc.Capture(ctx.Request().Context(), utils.CurrentUserID(ctx), input)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	res.DocumentType = utils.Sanitize(res.DocumentType)
	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(iris.Map{"data": res})
}

// GET /api/kyc/preview?doc=
func (r *KycRoutes) Preview(ctx iris.Context) {
	res, err := r.svc.Preview(ctx.Request().Context(), utils.CurrentUserID(ctx), ctx.URLParam("doc"))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	ctx.JSON(iris.Map{"data": iris.Map{
		"customer":  renderCustomer(res.Customer, false),
		"extracted": renderExtracted(res.Extracted),
	}})
}

// POST /api/kyc/submit
func (r *KycRoutes) Submit(ctx iris.Context) {
	var input services.SubmitInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}
	c, err := r.svc.Submit(ctx.Request().Context(), utils.CurrentUserID(ctx), input)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	ctx.JSON(iris.Map{"data": renderCustomer(c, false)})
}

// GET /api/kyc/notifications
func (r *KycRoutes) Notifications(ctx iris.Context) {
	ns, err := r.svc.Notifications(ctx.Request().Context(), utils.CurrentUserID(ctx))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	ctx.JSON(iris.Map{"data": renderNotifications(ns)})
}

// POST /api/kyc/notifications/read
func (r *KycRoutes) MarkNotificationsRead(ctx iris.Context) {
	var input MarkReadInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}
	if err := r.svc.MarkNotificationsRead(ctx.Request().Context(), utils.CurrentUserID(ctx), input.IDs); err != nil {
		writeServiceError(ctx, err)
		return
	}
	ctx.StatusCode(iris.StatusNoContent)
}

// Register mounts the KYC endpoints on a party that already verified the
// access token.
func (r *KycRoutes) Register(party iris.Party) {
	party.Post("/verify", r.Verify)
	party.Get("/progress", r.Progress)
	party.Post("/capture", r.Capture)
	party.Get("/preview", r.Preview)
	party.Post("/submit", r.Submit)
	party.Get("/notifications", r.Notifications)
	party.Post("/notifications/read", r.MarkNotificationsRead)
}

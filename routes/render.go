package routes

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"kyc-verification-server/models"
	"kyc-verification-server/services"
	"kyc-verification-server/storage"
	"kyc-verification-server/utils"

	"github.com/google/uuid"
	"github.com/kataras/golog"
	"github.com/kataras/iris/v12"
	"gorm.io/datatypes"
)

const statusClientClosedRequest = 499

// CustomerView is the wire form of a KYC record. Free text is escaped here
// and nowhere else.
type CustomerView struct {
	ID                   uuid.UUID        `json:"id"`
	UserID               uuid.UUID        `json:"user_id"`
	DocumentNumber       string           `json:"document_number"`
	KycStatus            models.KycStatus `json:"kyc_status"`
	CurrentStep          models.Step      `json:"current_step"`
	IdentityDocumentURL  string           `json:"identity_document_url"`
	IdentityDocumentType string           `json:"identity_document_type"`
	AddressDocumentURL   string           `json:"address_document_url"`
	AddressDocumentType  string           `json:"address_document_type"`
	FaceVideoURL         string           `json:"face_video_url"`
	Address              string           `json:"address"`
	FailureReason        string           `json:"failure_reason"`
	AdminNotes           string           `json:"admin_notes,omitempty"`
	ReviewedBy           *uuid.UUID       `json:"reviewed_by"`
	ReviewedAt           *time.Time       `json:"reviewed_at"`
	KycCompletedAt       *time.Time       `json:"kyc_completed_at"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

func renderCustomer(c *models.Customer, includeNotes bool) *CustomerView {
	if c == nil {
		return nil
	}
	v := &CustomerView{
		ID:                   c.ID,
		UserID:               c.UserID,
		DocumentNumber:       c.DocumentNumber,
		KycStatus:            c.KycStatus,
		CurrentStep:          c.CurrentStep,
		IdentityDocumentURL:  c.IdentityDocumentURL,
		IdentityDocumentType: utils.Sanitize(c.IdentityDocumentType),
		AddressDocumentURL:   c.AddressDocumentURL,
		AddressDocumentType:  utils.Sanitize(c.AddressDocumentType),
		FaceVideoURL:         c.FaceVideoURL,
		Address:              utils.Sanitize(c.Address),
		FailureReason:        utils.Sanitize(c.FailureReason),
		ReviewedBy:           c.ReviewedBy,
		ReviewedAt:           c.ReviewedAt,
		KycCompletedAt:       c.KycCompletedAt,
		CreatedAt:            c.CreatedAt,
		UpdatedAt:            c.UpdatedAt,
	}
	if parsed, err := models.ParseKycStatus(string(c.KycStatus)); err == nil {
		v.KycStatus = parsed
	}
	if includeNotes {
		v.AdminNotes = utils.Sanitize(c.AdminNotes)
	}
	return v
}

func renderCustomers(cs []models.Customer) []*CustomerView {
	out := make([]*CustomerView, 0, len(cs))
	for i := range cs {
		out = append(out, renderCustomer(&cs[i], true))
	}
	return out
}

func renderExtracted(d services.ExtractedData) services.ExtractedData {
	d.Name = utils.Sanitize(d.Name)
	d.Address = utils.Sanitize(d.Address)
	d.DocumentNumber = utils.Sanitize(d.DocumentNumber)
	return d
}

func renderNotifications(ns []models.Notification) []models.Notification {
	out := make([]models.Notification, len(ns))
	for i, n := range ns {
		n.Body = utils.Sanitize(n.Body)
		out[i] = n
	}
	return out
}

// renderAuditLogs escapes the strings inside stored before/after snapshots.
// Snapshots hold raw record text like every other column.
func renderAuditLogs(logs []models.AuditLog) []models.AuditLog {
	out := make([]models.AuditLog, len(logs))
	for i, l := range logs {
		l.BeforeJSON = sanitizeJSON(l.BeforeJSON)
		l.AfterJSON = sanitizeJSON(l.AfterJSON)
		l.IPAddress = utils.Sanitize(l.IPAddress)
		out[i] = l
	}
	return out
}

func sanitizeJSON(raw datatypes.JSON) datatypes.JSON {
	if len(raw) == 0 {
		return raw
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	b, err := json.Marshal(sanitizeValue(v))
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

func sanitizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case string:
		return utils.Sanitize(t)
	case map[string]interface{}:
		for k, x := range t {
			t[k] = sanitizeValue(x)
		}
	case []interface{}:
		for i, x := range t {
			t[i] = sanitizeValue(x)
		}
	}
	return v
}

// writeServiceError maps service errors onto the JSON error envelope.
func writeServiceError(ctx iris.Context, err error) {
	var verr *services.ValidationError
	var qerr *services.QualityError
	switch {
	case errors.As(err, &verr):
		ctx.StopWithJSON(iris.StatusUnprocessableEntity, iris.Map{
			"error":   "validation_error",
			"message": verr.Message,
			"fields":  iris.Map{verr.Field: verr.Message},
		})
	case errors.As(err, &qerr):
		ctx.StopWithJSON(iris.StatusUnprocessableEntity, iris.Map{
			"error":   "quality_rejected",
			"message": qerr.Error(),
			"quality": qerr.Report,
		})
	case errors.Is(err, services.ErrNotFound), errors.Is(err, storage.ErrRecordNotFound):
		utils.JSONError(ctx, iris.StatusNotFound, "not_found", "KYC record not found")
	case errors.Is(err, services.ErrStepOutOfOrder):
		utils.JSONError(ctx, iris.StatusConflict, "step_out_of_order", err.Error())
	case errors.Is(err, services.ErrNotEditable):
		utils.JSONError(ctx, iris.StatusConflict, "not_editable", err.Error())
	case errors.Is(err, services.ErrNotReady):
		utils.JSONError(ctx, iris.StatusConflict, "not_ready", err.Error())
	case errors.Is(err, services.ErrInvalidTransition):
		utils.JSONError(ctx, iris.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, services.ErrConfirmationRequired):
		utils.JSONError(ctx, iris.StatusBadRequest, "confirmation_required", err.Error())
	case errors.Is(err, context.Canceled):
		ctx.StopWithStatus(statusClientClosedRequest)
	default:
		golog.Errorf("%s %s: %v", ctx.Method(), ctx.Path(), err)
		utils.CreateInternalServerError(ctx)
	}
}

func uuidParam(ctx iris.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(ctx.Params().GetString(name))
	if err != nil {
		utils.JSONError(ctx, iris.StatusBadRequest, "invalid_id", "id must be a uuid")
		return uuid.Nil, false
	}
	return id, true
}

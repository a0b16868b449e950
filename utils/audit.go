package utils

import (
	"encoding/json"

	"kyc-verification-server/models"
	"kyc-verification-server/storage"

	"github.com/kataras/golog"
	"github.com/kataras/iris/v12"
	"gorm.io/datatypes"
)

// Audit records an admin action. Failures are logged and never block the
// request that triggered them.
func Audit(ctx iris.Context, action, resourceType, resourceID string, before interface{}, after interface{}) {
	if storage.DB == nil {
		return
	}
	entry := models.AuditLog{
		AdminUserID:  CurrentUserID(ctx),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		BeforeJSON:   marshalAudit(before),
		AfterJSON:    marshalAudit(after),
		IPAddress:    clientIP(ctx),
	}
	if err := storage.DB.WithContext(ctx.Request().Context()).Create(&entry).Error; err != nil {
		golog.Warnf("audit %s on %s/%s: %v", action, resourceType, resourceID, err)
	}
}

func marshalAudit(v interface{}) datatypes.JSON {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

func clientIP(ctx iris.Context) string {
	if ip := ctx.GetHeader("X-Forwarded-For"); ip != "" {
		return ip
	}
	return ctx.RemoteAddr()
}

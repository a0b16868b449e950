package routes

import (
	"encoding/json"
	"net/http"
	"testing"

	"kyc-verification-server/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminActivityEscapesStoredSnapshots(t *testing.T) {
	env := newTestEnv(t, nil)
	db := useTestDB(t)
	c := env.customers.add(models.Customer{UserID: uuid.New(), DocumentNumber: "ABCDE1234F", KycStatus: models.KycStatusInReview})
	adminID := uuid.New()
	token := signTestToken(t, adminID, models.RoleAdmin)

	resp := env.do(http.MethodPatch, "/api/admin/kyc/"+c.ID.String()+"/review", token, `{"status":"rejected","failure_reason":"<img src=x>"}`)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	// the audit row keeps the raw text
	var stored models.AuditLog
	require.NoError(t, db.First(&stored).Error)
	assert.Equal(t, "kyc.review", stored.Action)
	assert.Equal(t, adminID, stored.AdminUserID)
	assert.Contains(t, string(stored.AfterJSON), "<img src=x>")

	resp = env.do(http.MethodGet, "/api/admin/activity?resource_type=customer", token, "")
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Data []struct {
			Action    string                 `json:"action"`
			AfterJSON map[string]interface{} `json:"afterJSON"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "&lt;img src=x&gt;", body.Data[0].AfterJSON["failure_reason"])
	assert.Equal(t, "rejected", body.Data[0].AfterJSON["kyc_status"])
}

func TestAdminGetUser(t *testing.T) {
	env := newTestEnv(t, nil)
	db := useTestDB(t)
	token := signTestToken(t, uuid.New(), models.RoleAdmin)

	user := models.User{Email: "someone@example.com", Password: "hash"}
	require.NoError(t, db.Create(&user).Error)
	record := models.Customer{UserID: user.ID, DocumentNumber: "ABCDE1234F", Address: "12 <b>Road</b>"}
	require.NoError(t, db.Create(&record).Error)

	resp := env.do(http.MethodGet, "/api/admin/users/"+user.ID.String(), token, "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.NotContains(t, resp.Body.String(), "hash")

	var body struct {
		Data struct {
			User       models.User    `json:"user"`
			KycRecords []CustomerView `json:"kycRecords"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "someone@example.com", body.Data.User.Email)
	require.Len(t, body.Data.KycRecords, 1)
	assert.Equal(t, "12 &lt;b&gt;Road&lt;&#x2F;b&gt;", body.Data.KycRecords[0].Address)

	resp = env.do(http.MethodGet, "/api/admin/users/"+uuid.NewString(), token, "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestAdminListUsers(t *testing.T) {
	env := newTestEnv(t, nil)
	db := useTestDB(t)
	token := signTestToken(t, uuid.New(), models.RoleAdmin)
	for _, email := range []string{"ann@example.com", "bob@example.com"} {
		require.NoError(t, db.Create(&models.User{Email: email, Password: "hash"}).Error)
	}

	resp := env.do(http.MethodGet, "/api/admin/users?q=ANN", token, "")
	require.Equal(t, http.StatusOK, resp.Code)
	var body struct {
		Data []models.User `json:"data"`
		Meta struct {
			Total int64 `json:"total"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.EqualValues(t, 1, body.Meta.Total)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "ann@example.com", body.Data[0].Email)
}

func TestAdminUsersReportDatabaseFailures(t *testing.T) {
	env := newTestEnv(t, nil)
	db := useTestDB(t)
	token := signTestToken(t, uuid.New(), models.RoleAdmin)
	user := models.User{Email: "someone@example.com", Password: "hash"}
	require.NoError(t, db.Create(&user).Error)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	resp := env.do(http.MethodGet, "/api/admin/users", token, "")
	assert.Equal(t, http.StatusInternalServerError, resp.Code)

	resp = env.do(http.MethodGet, "/api/admin/users/"+user.ID.String(), token, "")
	assert.Equal(t, http.StatusInternalServerError, resp.Code)

	resp = env.do(http.MethodGet, "/api/admin/activity", token, "")
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}

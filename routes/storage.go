package routes

import (
	"errors"

	"kyc-verification-server/storage"
	"kyc-verification-server/utils"

	"github.com/kataras/iris/v12"
)

type StorageRoutes struct {
	signer *storage.URLSigner
	store  storage.ObjectStore
}

func NewStorageRoutes(signer *storage.URLSigner, store storage.ObjectStore) *StorageRoutes {
	return &StorageRoutes{signer: signer, store: store}
}

// GET /api/storage/object?token=
func (r *StorageRoutes) Object(ctx iris.Context) {
	claims, err := r.signer.Verify(ctx.URLParam("token"))
	if err != nil {
		utils.JSONError(ctx, iris.StatusForbidden, "invalid_signature", "link is invalid or has expired")
		return
	}
	data, contentType, err := r.store.Get(ctx.Request().Context(), claims.Path)
	if errors.Is(err, storage.ErrObjectNotFound) {
		utils.CreateNotFound(ctx)
		return
	}
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	ctx.ContentType(contentType)
	ctx.Header("Cache-Control", "private, max-age=3600")
	ctx.Header("X-Content-Type-Options", "nosniff")
	ctx.Write(data)
}

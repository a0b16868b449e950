package utils

import (
	"context"
	"errors"
	"time"

	"kyc-verification-server/models"
	"kyc-verification-server/storage"

	"github.com/google/uuid"
	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
)

const (
	AccessTokenTTL  = 24 * time.Hour
	RefreshTokenTTL = 365 * 24 * time.Hour
)

var (
	accessTokenSecret  []byte
	refreshTokenSecret []byte
)

// ConfigureTokens sets the HMAC secrets used by CreateTokenPair.
func ConfigureTokens(accessSecret, refreshSecret string) {
	accessTokenSecret = []byte(accessSecret)
	refreshTokenSecret = []byte(refreshSecret)
}

func AccessTokenSecret() []byte  { return accessTokenSecret }
func RefreshTokenSecret() []byte { return refreshTokenSecret }

type AccessToken struct {
	ID   string `json:"ID"`
	Role string `json:"role"`
}

func (t *AccessToken) UserID() (uuid.UUID, error) { return uuid.Parse(t.ID) }

type RefreshTokenInput struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

func refreshKey(token string) string { return "refresh:" + token }

// CreateTokenPair signs an access token carrying the user's current role and a
// refresh token that is allow-listed in Redis.
func CreateTokenPair(ctx context.Context, id uuid.UUID) (*jwt.TokenPair, error) {
	if len(accessTokenSecret) == 0 || len(refreshTokenSecret) == 0 {
		return nil, errors.New("token secrets are not configured")
	}
	accessTokenSigner := jwt.NewSigner(jwt.HS256, accessTokenSecret, AccessTokenTTL)
	refreshTokenSigner := jwt.NewSigner(jwt.HS256, refreshTokenSecret, RefreshTokenTTL)

	refreshClaims := jwt.Claims{Subject: id.String()}

	// Load role for embedding into access token
	var u models.User
	role := models.RoleUser
	if err := storage.DB.WithContext(ctx).Select("id, role").First(&u, "id = ?", id).Error; err == nil && u.Role != "" {
		role = u.Role
	}

	accessToken, err := accessTokenSigner.Sign(AccessToken{ID: id.String(), Role: role})
	if err != nil {
		return nil, err
	}

	refreshToken, err := refreshTokenSigner.Sign(refreshClaims)
	if err != nil {
		return nil, err
	}

	if err := storage.Redis.Set(ctx, refreshKey(string(refreshToken)), "true", RefreshTokenTTL+5*time.Minute).Err(); err != nil {
		return nil, err
	}

	return &jwt.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// RevokeRefreshToken removes a refresh token from the allow-list.
func RevokeRefreshToken(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return storage.Redis.Del(ctx, refreshKey(token)).Err()
}

func RefreshToken(ctx iris.Context) {
	reqCtx := ctx.Request().Context()
	token := jwt.GetVerifiedToken(ctx)
	tokenStr := string(token.Token)
	validToken, tokenErr := storage.Redis.Get(reqCtx, refreshKey(tokenStr)).Result()

	if tokenErr != nil {
		CreateNotFound(ctx)
		return
	}

	if validToken != "true" {
		ctx.StatusCode(iris.StatusForbidden)
		return
	}

	storage.Redis.Del(reqCtx, refreshKey(tokenStr))
	userID, parseErr := uuid.Parse(token.StandardClaims.Subject)
	if parseErr != nil {
		CreateInternalServerError(ctx)
		return
	}

	tokenPair, tokenPairErr := CreateTokenPair(reqCtx, userID)
	if tokenPairErr != nil {
		CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(iris.Map{
		"accessToken":  string(tokenPair.AccessToken),
		"refreshToken": string(tokenPair.RefreshToken),
	})
}

package main

import (
	"kyc-verification-server/config"
	"kyc-verification-server/ocr/tesseract"
	"kyc-verification-server/routes"
	"kyc-verification-server/services"
	"kyc-verification-server/storage"
	"kyc-verification-server/utils"

	"github.com/go-playground/validator/v10"
	"github.com/kataras/golog"
	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
)

// captured frames arrive as base64 data URLs
const maxRequestBody = 16 << 20

func main() {
	cfg, err := config.Load()
	if err != nil {
		golog.Fatalf("config: %v", err)
	}
	golog.SetLevel(cfg.LogLevel)

	db, err := storage.InitializeDB(cfg.DatabaseURL)
	if err != nil {
		golog.Fatalf("database: %v", err)
	}
	if err := storage.InitializeRedis(cfg.RedisURL); err != nil {
		golog.Fatalf("redis: %v", err)
	}
	utils.ConfigureTokens(cfg.AccessTokenSecret, cfg.RefreshTokenSecret)

	objects, err := storage.NewDiskStore(cfg.StorageRoot, cfg.StorageBucket)
	if err != nil {
		golog.Fatalf("object store: %v", err)
	}
	signer := storage.NewURLSigner([]byte(cfg.StorageURLSecret), cfg.PublicBaseURL, objects.Bucket(), storage.SignedURLTTL)
	documents := storage.NewDocuments(objects, signer)
	customers := storage.NewCustomerStore(db)
	invites := storage.NewInviteStore(db)

	logger := golog.Default
	engine := tesseract.New(cfg.OCRLanguages...)
	extractor := services.NewExtractor(engine, documents, cfg.OCRLanguages, logger)
	notifier := services.NewNotificationService(db, logger)
	kyc := services.NewKycService(customers, documents, extractor, notifier, logger)
	review := services.NewReviewService(customers, documents, notifier, logger)
	exports := services.NewExportService(customers, objects, signer, logger)

	app := iris.New()
	app.Logger().SetLevel(cfg.LogLevel)
	app.Validator = validator.New()

	app.AllowMethods(iris.MethodOptions)
	app.UseRouter(func(ctx iris.Context) {
		origin := cfg.CORSOrigin
		if origin == "" {
			origin = ctx.GetHeader("Origin")
		}
		ctx.Header("Access-Control-Allow-Origin", origin)
		ctx.Header("Vary", "Origin")
		ctx.Header("Access-Control-Allow-Credentials", "true")
		ctx.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Requested-With")
		ctx.Header("Access-Control-Allow-Methods", "GET,POST,PATCH,PUT,DELETE,OPTIONS")
		if ctx.Method() == iris.MethodOptions {
			ctx.StatusCode(iris.StatusNoContent)
			return
		}
		ctx.Next()
	})

	// Add only essential middleware, skip request logging
	app.Use(iris.Compression)
	app.Use(iris.LimitRequestBodySize(maxRequestBody))

	accessTokenVerifier := jwt.NewVerifier(jwt.HS256, utils.AccessTokenSecret())
	accessTokenVerifier.WithDefaultBlocklist()
	accessTokenVerifierMiddleware := accessTokenVerifier.Verify(func() interface{} {
		return new(utils.AccessToken)
	})

	refreshTokenVerifier := jwt.NewVerifier(jwt.HS256, utils.RefreshTokenSecret())
	refreshTokenVerifier.WithDefaultBlocklist()
	refreshTokenVerifierMiddleware := refreshTokenVerifier.Verify(func() interface{} {
		return new(jwt.Claims)
	})

	refreshTokenVerifier.Extractors = append(refreshTokenVerifier.Extractors, func(ctx iris.Context) string {
		var tokenInput utils.RefreshTokenInput
		err := ctx.ReadJSON(&tokenInput)
		if err != nil {
			return ""
		}

		return tokenInput.RefreshToken
	})

	app.Get("/health", func(ctx iris.Context) {
		ctx.JSON(iris.Map{"status": "ok"})
	})

	auth := app.Party("/api/auth")
	{
		auth.Post("/signup", routes.Signup)
		auth.Post("/login", routes.Login)
		auth.Post("/logout", accessTokenVerifierMiddleware, routes.Logout)
		auth.Post("/refresh", refreshTokenVerifierMiddleware, utils.RefreshToken)
		auth.Get("/me", accessTokenVerifierMiddleware, utils.UserIDFromTokenMiddleware, routes.GetMe)
		auth.Get("/role", accessTokenVerifierMiddleware, utils.UserIDFromTokenMiddleware, routes.GetRole)
	}

	adminAuthRoutes := routes.NewAdminAuthRoutes(invites)
	adminAuth := app.Party("/api/admin/auth")
	{
		adminAuth.Post("/login", adminAuthRoutes.Login)
		adminAuth.Post("/signup", adminAuthRoutes.Signup)
		adminAuth.Post("/invite/validate", adminAuthRoutes.ValidateInvite)
	}

	kycParty := app.Party("/api/kyc", accessTokenVerifierMiddleware, utils.UserIDFromTokenMiddleware)
	routes.NewKycRoutes(kyc).Register(kycParty)

	app.Get(storage.ObjectRoute, routes.NewStorageRoutes(signer, objects).Object)

	admin := app.Party("/api/admin", accessTokenVerifierMiddleware, utils.AdminOnlyMiddleware)
	{
		routes.NewAdminKycRoutes(review, exports).Register(admin)
		admin.Get("/activity", routes.AdminActivity)
		admin.Get("/users", routes.AdminListUsers)
		admin.Get("/users/{id:uuid}", routes.AdminGetUser)
		admin.Post("/invite-codes", adminAuthRoutes.CreateInvite)
	}

	port := cfg.Port
	golog.Infof("listening on :%s", port)
	if err := app.Listen(":" + port); err != nil {
		golog.Errorf("server stopped: %v", err)
	}
	exports.Wait()
}

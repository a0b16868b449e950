package routes

import (
	"kyc-verification-server/models"
	"kyc-verification-server/storage"
	"kyc-verification-server/utils"

	"github.com/kataras/golog"
	"github.com/kataras/iris/v12"
	"golang.org/x/crypto/bcrypt"
)

const invalidCredentials = "Invalid email or password."

type SignupInput struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginUserInput struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// validateCredentials normalizes the email and checks both fields, writing a
// 422 on failure.
func validateCredentials(ctx iris.Context, email, password string) (string, bool) {
	e := utils.ValidateEmail(email)
	if !e.Valid {
		ctx.StopWithJSON(iris.StatusUnprocessableEntity, iris.Map{
			"error": "validation_error", "message": e.Reason, "fields": iris.Map{"email": e.Reason},
		})
		return "", false
	}
	p := utils.ValidatePassword(password)
	if !p.Valid {
		ctx.StopWithJSON(iris.StatusUnprocessableEntity, iris.Map{
			"error": "validation_error", "message": p.Reason, "fields": iris.Map{"password": p.Reason},
		})
		return "", false
	}
	return e.Value, true
}

func createUser(ctx iris.Context, email, password string) (*models.User, bool) {
	var existing models.User
	exists, err := getAndHandleUserExists(&existing, email)
	if err != nil {
		utils.CreateInternalServerError(ctx)
		return nil, false
	}
	if exists {
		utils.CreateEmailAlreadyRegistered(ctx)
		return nil, false
	}
	hashed, err := hashAndSaltPassword(password)
	if err != nil {
		utils.CreateInternalServerError(ctx)
		return nil, false
	}
	user := models.User{Email: email, Password: hashed}
	if err := storage.DB.WithContext(ctx.Request().Context()).Create(&user).Error; err != nil {
		golog.Errorf("create user: %v", err)
		utils.CreateInternalServerError(ctx)
		return nil, false
	}
	return &user, true
}

// POST /api/auth/signup
func Signup(ctx iris.Context) {
	var input SignupInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}
	email, ok := validateCredentials(ctx, input.Email, input.Password)
	if !ok {
		return
	}
	user, ok := createUser(ctx, email, input.Password)
	if !ok {
		return
	}
	ctx.StatusCode(iris.StatusCreated)
	returnUser(*user, ctx)
}

// authenticate checks email and password without revealing which one was
// wrong.
func authenticate(ctx iris.Context, input LoginUserInput) (*models.User, bool) {
	var user models.User
	exists, err := getAndHandleUserExists(&user, input.Email)
	if err != nil {
		utils.CreateInternalServerError(ctx)
		return nil, false
	}
	if !exists {
		utils.CreateError(iris.StatusUnauthorized, "Credentials Error", invalidCredentials, ctx)
		return nil, false
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)); err != nil {
		utils.CreateError(iris.StatusUnauthorized, "Credentials Error", invalidCredentials, ctx)
		return nil, false
	}
	return &user, true
}

// POST /api/auth/login
func Login(ctx iris.Context) {
	var input LoginUserInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}
	user, ok := authenticate(ctx, input)
	if !ok {
		return
	}
	returnUser(*user, ctx)
}

// POST /api/auth/logout
func Logout(ctx iris.Context) {
	var input utils.RefreshTokenInput
	_ = ctx.ReadJSON(&input)
	if err := utils.RevokeRefreshToken(ctx.Request().Context(), input.RefreshToken); err != nil {
		golog.Warnf("revoke refresh token: %v", err)
	}
	// blocks the access token until it expires
	if err := ctx.Logout(); err != nil {
		golog.Debugf("logout: %v", err)
	}
	ctx.StatusCode(iris.StatusNoContent)
}

// GET /api/auth/me
func GetMe(ctx iris.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	ctx.JSON(iris.Map{"data": user})
}

// GET /api/auth/role
func GetRole(ctx iris.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	ctx.JSON(iris.Map{"data": iris.Map{"role": user.Role}})
}

func currentUser(ctx iris.Context) (*models.User, bool) {
	var user models.User
	res := storage.DB.WithContext(ctx.Request().Context()).Where("id = ?", utils.CurrentUserID(ctx)).Limit(1).Find(&user)
	if res.Error != nil {
		utils.CreateInternalServerError(ctx)
		return nil, false
	}
	if res.RowsAffected == 0 {
		utils.CreateError(iris.StatusNotFound, "Not Found", "User not found", ctx)
		return nil, false
	}
	return &user, true
}

func getAndHandleUserExists(user *models.User, email string) (exists bool, err error) {
	userExistsQuery := storage.DB.Where("email = ?", utils.ValidateEmail(email).Value).Limit(1).Find(user)
	if userExistsQuery.Error != nil {
		return false, userExistsQuery.Error
	}
	return userExistsQuery.RowsAffected > 0, nil
}

func hashAndSaltPassword(password string) (hashedPassword string, err error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func returnUser(user models.User, ctx iris.Context) {
	tokenPair, tokenErr := utils.CreateTokenPair(ctx.Request().Context(), user.ID)
	if tokenErr != nil {
		golog.Errorf("create token pair: %v", tokenErr)
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(iris.Map{
		"ID":           user.ID,
		"email":        user.Email,
		"role":         user.Role,
		"accessToken":  string(tokenPair.AccessToken),
		"refreshToken": string(tokenPair.RefreshToken),
	})
}

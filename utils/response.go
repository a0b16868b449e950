package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kataras/iris/v12"
)

type PageMeta struct {
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
	Total   int64 `json:"total"`
}

func JSONPage(ctx iris.Context, data interface{}, page, perPage int, total int64) {
	ctx.JSON(iris.Map{
		"data":  data,
		"meta":  PageMeta{Page: page, PerPage: perPage, Total: total},
		"links": iris.Map{},
	})
}

func JSONError(ctx iris.Context, status int, code, message string) {
	ctx.StopWithJSON(status, iris.Map{"error": code, "message": message})
}

func CreateError(status int, title, detail string, ctx iris.Context) {
	ctx.StopWithJSON(status, iris.Map{"error": title, "message": detail})
}

func CreateInternalServerError(ctx iris.Context) {
	CreateError(iris.StatusInternalServerError, "server_error", "Something went wrong. Please try again.", ctx)
}

func CreateNotFound(ctx iris.Context) {
	CreateError(iris.StatusNotFound, "not_found", "Not found", ctx)
}

func CreateEmailAlreadyRegistered(ctx iris.Context) {
	CreateError(iris.StatusConflict, "conflict", "An account with this email already exists", ctx)
}

// HandleValidationErrors turns a ReadJSON failure into a 400/422 response.
// Validator failures list one message per offending field.
func HandleValidationErrors(err error, ctx iris.Context) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		CreateError(iris.StatusBadRequest, "invalid_payload", "Invalid JSON body", ctx)
		return
	}
	fields := make(iris.Map, len(verrs))
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fieldErrorMessage(fe)
		fields[fe.Field()] = msg
		msgs = append(msgs, msg)
	}
	ctx.StopWithJSON(iris.StatusUnprocessableEntity, iris.Map{
		"error":   "validation_error",
		"message": strings.Join(msgs, "; "),
		"fields":  fields,
	})
}

func fieldErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "email":
		return "Please enter a valid email address"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}

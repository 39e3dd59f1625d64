// Package httpx holds the request binding and error rendering shared by handlers.
package httpx

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/tsheringkof667-bot/Bank/internal/apperrors"
)

// CallerKey is the fiber Locals key holding the authenticated caller id.
const CallerKey = "caller_id"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && d.IsPositive() && d.Equal(d.Round(2))
	})
	return v
}

// Bind parses the JSON body into dst and validates its struct tags.
func Bind(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return apperrors.Validation("malformed request body: %v", err)
	}
	return Validate(dst)
}

// Validate checks struct tags and reports the first failing field.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperrors.Validation("field %s failed %s", fe.Field(), describe(fe))
	}
	return apperrors.Validation("%v", err)
}

func describe(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fmt.Sprintf("%s=%s", fe.Tag(), fe.Param())
}

// Caller returns the caller id stored by the identity middleware.
func Caller(c *fiber.Ctx) string {
	id, _ := c.Locals(CallerKey).(string)
	return id
}

// Status maps an application error onto an HTTP status code.
func Status(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrInsufficientFunds), errors.Is(err, apperrors.ErrLimitExceeded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperrors.ErrDuplicate), errors.Is(err, apperrors.ErrAlreadyProcessed),
		errors.Is(err, apperrors.ErrDuplicateTransactionID):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrContention):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorHandler renders errors as {"error": {"kind", "message"}}. Fiber errors keep
// their own status code.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{
				"error": fiber.Map{"kind": http.StatusText(fe.Code), "message": fe.Message},
			})
		}

		status := Status(err)
		kind := apperrors.Kind(err)
		message := err.Error()
		if status == http.StatusInternalServerError {
			logger.Error("request failed", slog.String("path", c.Path()), slog.Any("error", err))
			if kind == "Internal" {
				message = "internal error"
			}
		}
		if status == http.StatusServiceUnavailable {
			c.Set(fiber.HeaderRetryAfter, "1")
		}
		return c.Status(status).JSON(fiber.Map{
			"error": fiber.Map{"kind": kind, "message": message},
		})
	}
}

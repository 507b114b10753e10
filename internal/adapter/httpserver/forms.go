package httpserver

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"slices"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type registerForm struct {
	Email           string `form:"Email" validate:"required,email"`
	Password        string `form:"Password" validate:"required,min=6,max=100"`
	ConfirmPassword string `form:"ConfirmPassword" validate:"eqfield=Password"`
}

type loginForm struct {
	Email      string `form:"Email" validate:"required,email"`
	Password   string `form:"Password" validate:"required"`
	RememberMe bool   `form:"RememberMe"`
}

type emailForm struct {
	Email string `form:"Email" validate:"required,email"`
}

type resetPasswordForm struct {
	Code            string `form:"Code" validate:"required"`
	Email           string `form:"Email" validate:"required,email"`
	Password        string `form:"Password" validate:"required,min=6,max=100"`
	ConfirmPassword string `form:"ConfirmPassword" validate:"eqfield=Password"`
}

type profileForm struct {
	PhoneNumber string `form:"PhoneNumber" validate:"omitempty,phone"`
}

type changePasswordForm struct {
	OldPassword     string `form:"OldPassword" validate:"required"`
	NewPassword     string `form:"NewPassword" validate:"required,min=6,max=100"`
	ConfirmPassword string `form:"ConfirmPassword" validate:"eqfield=NewPassword"`
}

var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 ()./-]{2,29}$`)

var fieldLabels = map[string]string{
	"ConfirmPassword": "Confirm password",
	"OldPassword":     "Current password",
	"NewPassword":     "New password",
	"PhoneNumber":     "Phone number",
}

type formValidator struct {
	validate *validator.Validate
}

func newFormValidator() *formValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		if name := field.Tag.Get("form"); name != "" && name != "-" {
			return name
		}
		return field.Name
	})
	// Only fails on a malformed tag name, which is a constant here.
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	return &formValidator{validate: v}
}

// bind decodes the request form into dst and validates it. Field errors
// come back keyed by form field name; a nil map means the form is valid.
func (f *formValidator) bind(c echo.Context, dst any) (map[string]string, error) {
	if err := (&echo.DefaultBinder{}).BindBody(c, dst); err != nil {
		return map[string]string{"": "The submitted form could not be read."}, nil
	}

	err := f.validate.Struct(dst)
	if err == nil {
		return nil, nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return nil, fmt.Errorf("failed to validate form: %w", err)
	}

	errs := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		if _, seen := errs[fe.Field()]; !seen {
			errs[fe.Field()] = fieldMessage(fe)
		}
	}
	return errs, nil
}

func fieldMessage(fe validator.FieldError) string {
	label := fe.Field()
	if l, ok := fieldLabels[label]; ok {
		label = l
	}

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", label)
	case "email":
		return fmt.Sprintf("The %s field is not a valid e-mail address.", label)
	case "min":
		return fmt.Sprintf("The %s must be at least %s characters long.", label, fe.Param())
	case "max":
		return fmt.Sprintf("The %s must be at max %s characters long.", label, fe.Param())
	case "eqfield":
		if fe.Param() == "NewPassword" {
			return "The new password and confirmation password do not match."
		}
		return "The password and confirmation password do not match."
	case "phone":
		return fmt.Sprintf("The %s field is not a valid phone number.", label)
	default:
		return fmt.Sprintf("The %s field is invalid.", label)
	}
}

// summaryOf returns, sorted, the errors that have no field on the page.
func summaryOf(errs map[string]string, fields ...string) []string {
	var summary []string
	for key, msg := range errs {
		if !slices.Contains(fields, key) {
			summary = append(summary, msg)
		}
	}
	slices.Sort(summary)
	return summary
}

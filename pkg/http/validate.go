package http

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = validator.New()

// ReadAndValidateRequest binds the request into req, fills struct
// defaults and validates it. Returns nil on success, otherwise a
// JSON-serializable payload describing what failed.
func ReadAndValidateRequest(c echo.Context, req interface{}) interface{} {
	if err := c.Bind(req); err != nil {
		return validationPayload(err)
	}
	if err := defaults.Set(req); err != nil {
		return validationPayload(err)
	}
	if err := validate.StructCtx(c.Request().Context(), req); err != nil {
		return validationPayload(err)
	}
	return nil
}

func validationPayload(err error) interface{} {
	var ves validator.ValidationErrors
	if errors.As(err, &ves) {
		out := make([]ValidationError, 0, len(ves))
		for _, fe := range ves {
			out = append(out, fieldError(fe))
		}
		return out
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		return []ValidationError{{Code: "ERR_UNKNOWN", Message: fmt.Sprintf("%v", he.Message)}}
	}
	return []ValidationError{{Code: "ERR_UNKNOWN", Message: err.Error()}}
}

// tagMessages renders one human-readable message per validator tag.
// Tags missing here fall back to a generic message in fieldError.
var tagMessages = map[string]func(field, param string, kind reflect.Kind) string{
	"required": func(f, _ string, _ reflect.Kind) string {
		return f + " is required"
	},
	"email": func(f, _ string, _ reflect.Kind) string {
		return f + " must be a valid email"
	},
	"min": func(f, p string, k reflect.Kind) string {
		if k == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", f, p)
		}
		return fmt.Sprintf("%s must be at least %s", f, p)
	},
	"max": func(f, p string, k reflect.Kind) string {
		if k == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", f, p)
		}
		return fmt.Sprintf("%s must be at most %s", f, p)
	},
	"oneof": func(f, p string, _ reflect.Kind) string {
		return fmt.Sprintf("%s must be one of: %s", f, strings.ReplaceAll(p, " ", ", "))
	},
	"gt": func(f, p string, _ reflect.Kind) string {
		return fmt.Sprintf("%s must be greater than %s", f, p)
	},
	"gte": func(f, p string, _ reflect.Kind) string {
		return fmt.Sprintf("%s must be greater than or equal to %s", f, p)
	},
	"lt": func(f, p string, _ reflect.Kind) string {
		return fmt.Sprintf("%s must be less than %s", f, p)
	},
	"lte": func(f, p string, _ reflect.Kind) string {
		return fmt.Sprintf("%s must be less than or equal to %s", f, p)
	},
}

// tagParamKey names the params entry carrying fe.Param() for a tag.
var tagParamKey = map[string]string{
	"min": "min",
	"gte": "min",
	"max": "max",
	"lte": "max",
	"gt":  "value",
	"lt":  "value",
}

func fieldError(fe validator.FieldError) ValidationError {
	ve := ValidationError{
		Code:  "ERR_" + strings.ToUpper(fe.Tag()),
		Field: fe.Field(),
	}

	if render, ok := tagMessages[fe.Tag()]; ok {
		ve.Message = render(fe.Field(), fe.Param(), fe.Type().Kind())
	} else {
		ve.Message = fmt.Sprintf("%s failed validation: %s", fe.Field(), fe.Tag())
	}

	if fe.Tag() == "oneof" {
		ve.Params = map[string]interface{}{"options": strings.Split(fe.Param(), " ")}
	} else if key, ok := tagParamKey[fe.Tag()]; ok {
		ve.Params = map[string]interface{}{key: fe.Param()}
	}
	return ve
}

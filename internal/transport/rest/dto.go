package rest

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type upsertOptionRequest struct {
	Capacity         *int       `json:"capacity" validate:"required,min=0"`
	OverflowCapacity int        `json:"overflow_capacity" validate:"min=0"`
	ClosingTime      *time.Time `json:"closing_time"`
}

type bookForRequest struct {
	UserIDs       []string `json:"user_ids" validate:"required,min=1,max=500,dive,uuid"`
	AllowOverbook bool     `json:"allow_overbook"`
}

type cancelManyRequest struct {
	UserIDs []string `json:"user_ids" validate:"required,min=1,max=500,dive,uuid"`
}

// validationMeta turns validator errors into {"field": "rule"} pairs.
func validationMeta(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	meta := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		meta[field] = rule
	}
	return meta
}

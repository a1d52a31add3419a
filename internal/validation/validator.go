// Nemotron Home Security Intelligence - Alert Decision Engine
// Copyright 2026 Mike Svoboda (mikesvoboda)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019

// Package validation wraps go-playground/validator v10 behind a
// thread-safe singleton with custom validators for the alerting domain:
// "clocktime" for strict HH:MM strings and "dedupkey" for the cooldown
// key charset.
package validation

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is a single field validation failure.
type FieldError struct {
	Field   string
	Tag     string
	Message string
}

func (e FieldError) Error() string { return e.Message }

// RequestError is a collection of validation failures for one request.
type RequestError struct {
	fields []FieldError
}

// Fields returns the individual field errors.
func (e *RequestError) Fields() []FieldError { return e.fields }

func (e *RequestError) Error() string {
	if len(e.fields) == 0 {
		return "validation failed"
	}
	messages := make([]string, len(e.fields))
	for i, f := range e.fields {
		messages[i] = f.Message
	}
	return strings.Join(messages, "; ")
}

// GetValidator returns the singleton validator.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// HH:MM 24-hour clock, two digits each.
		_ = validate.RegisterValidation("clocktime", func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			if len(s) != 5 || s[2] != ':' {
				return false
			}
			hh := int(s[0]-'0')*10 + int(s[1]-'0')
			mm := int(s[3]-'0')*10 + int(s[4]-'0')
			for _, c := range []byte{s[0], s[1], s[3], s[4]} {
				if c < '0' || c > '9' {
					return false
				}
			}
			return hh <= 23 && mm <= 59
		})

		// Cooldown key charset: [A-Za-z0-9_:-].
		_ = validate.RegisterValidation("dedupkey", func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			if s == "" {
				return false
			}
			for i := 0; i < len(s); i++ {
				c := s[i]
				switch {
				case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
				case c == '_', c == '-', c == ':':
				default:
					return false
				}
			}
			return true
		})
	})
	return validate
}

// ValidateStruct validates v with the singleton validator. Returns nil on
// success, *RequestError otherwise.
func ValidateStruct(v interface{}) *RequestError {
	err := GetValidator().Struct(v)
	if err == nil {
		return nil
	}

	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return &RequestError{fields: []FieldError{{
			Field:   "unknown",
			Tag:     "unknown",
			Message: err.Error(),
		}}}
	}

	fields := make([]FieldError, 0, len(validationErrs))
	for _, fe := range validationErrs {
		fields = append(fields, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Message: fieldMessage(fe),
		})
	}
	return &RequestError{fields: fields}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "gte", "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "lte", "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "clocktime":
		return fmt.Sprintf("%s must be a HH:MM clock string", fe.Field())
	case "dedupkey":
		return fmt.Sprintf("%s contains characters outside [A-Za-z0-9_:-]", fe.Field())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/validation"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/datatypes"
)

var registerOnce sync.Once

// RegisterValidators installs the portal's custom binding tags on gin's
// validator. Safe to call more than once; it must run before the first
// request that binds a struct using them.
//
// Tags: nationalcode, personnelcode, mobile, code, acyear, role. Values
// are checked after Persian and Arabic digits are normalized, so the
// handlers still sanitize before storing.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}

		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				name, _, _ = strings.Cut(fld.Tag.Get("form"), ",")
			}
			if name == "" {
				return fld.Name
			}
			return name
		})

		stringRule := func(check func(string) error) validator.Func {
			return func(fl validator.FieldLevel) bool {
				return check(fl.Field().String()) == nil
			}
		}
		rules := map[string]validator.Func{
			"nationalcode": stringRule(func(s string) error {
				_, err := validation.SanitizeNationalCode(s)
				return err
			}),
			"personnelcode": stringRule(func(s string) error {
				_, err := validation.SanitizePersonnelCode(s)
				return err
			}),
			"mobile": stringRule(func(s string) error {
				_, err := validation.SanitizePhone(s)
				return err
			}),
			"code": stringRule(func(s string) error {
				_, err := validation.SanitizeCode(s)
				return err
			}),
			"acyear": stringRule(func(s string) error {
				_, err := datatypes.NormalizeAcademicYearName(s)
				return err
			}),
			"role": func(fl validator.FieldLevel) bool {
				return datatypes.IsValidRole(fl.Field().String())
			},
		}
		if err := registerRules(v, rules); err != nil {
			panic(err)
		}
	})
}

// registerRules registers every rule and reports all failures. A tag that
// fails to register would otherwise panic later on the first bind using it.
func registerRules(v *validator.Validate, rules map[string]validator.Func) error {
	var errs []error
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			errs = append(errs, fmt.Errorf("register validator %q: %w", tag, err))
		}
	}
	return errors.Join(errs...)
}

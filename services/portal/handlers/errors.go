// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/extensions"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/datatypes"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/middleware"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/storage"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/uploads"
)

// Error codes returned in the "error" field.
const (
	CodeInvalidRequest    = "invalid_request"
	CodeValidationFailed  = "validation_failed"
	CodeUnauthorized      = "unauthorized"
	CodeForbidden         = "forbidden"
	CodeNotFound          = "not_found"
	CodeDuplicate         = "duplicate"
	CodeConflict          = "conflict"
	CodeInvalidTransition = "invalid_transition"
	CodeNotEditable       = "not_editable"
	CodeCommentRequired   = "comment_required"
	CodeTooLarge          = "file_too_large"
	CodeUnsupportedType   = "unsupported_file_type"
	CodeInternal          = "internal_error"
)

// errorMapping pairs a sentinel with its HTTP status and code.
type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// errorMappings is checked in order with errors.Is.
var errorMappings = []errorMapping{
	{extensions.ErrUnauthorized, http.StatusUnauthorized, CodeUnauthorized, "authentication required"},
	{extensions.ErrForbidden, http.StatusForbidden, CodeForbidden, "you are not allowed to perform this action"},
	{storage.ErrNotFound, http.StatusNotFound, CodeNotFound, "resource not found"},
	{uploads.ErrObjectNotFound, http.StatusNotFound, CodeNotFound, "file not found"},
	{storage.ErrDuplicate, http.StatusConflict, CodeDuplicate, ""},
	{storage.ErrConflict, http.StatusConflict, CodeConflict, "the resource was modified concurrently, retry"},
	{datatypes.ErrInvalidTransition, http.StatusConflict, CodeInvalidTransition, ""},
	{datatypes.ErrNotEditable, http.StatusConflict, CodeNotEditable, "the resource cannot be changed in its current status"},
	{datatypes.ErrCommentRequired, http.StatusBadRequest, CodeCommentRequired, "a comment is required for this status"},
	{uploads.ErrTooLarge, http.StatusRequestEntityTooLarge, CodeTooLarge, "the file exceeds the size limit"},
	{uploads.ErrUnsupportedType, http.StatusUnsupportedMediaType, CodeUnsupportedType, "this file type is not accepted"},
	{uploads.ErrEmptyFile, http.StatusBadRequest, CodeValidationFailed, "the file is empty"},
}

// respondError maps err to a status code and a uniform JSON body.
//
// # Description
//
// The body is always {"error": code, "message": text}; validation errors
// add "field". Unknown errors become 500 with a generic message and are
// logged with the request ID. Internal details never reach the client.
func (d *Deps) respondError(c *gin.Context, err error) {
	var verr *datatypes.ValidationError
	if errors.As(err, &verr) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":   CodeValidationFailed,
			"message": verr.Message,
			"field":   verr.Field,
		})
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			message := m.message
			if message == "" {
				message = err.Error()
			}
			if m.status >= http.StatusInternalServerError || m.target == storage.ErrConflict {
				d.logger().WarnContext(c.Request.Context(), "request failed",
					"request_id", middleware.GetRequestID(c), "error", err)
			}
			c.AbortWithStatusJSON(m.status, gin.H{"error": m.code, "message": message})
			return
		}
	}

	d.logger().ErrorContext(c.Request.Context(), "unexpected error",
		"request_id", middleware.GetRequestID(c),
		"method", c.Request.Method,
		"path", c.FullPath(),
		"error", err,
	)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error":   CodeInternal,
		"message": "an unexpected error occurred",
	})
}

// respondBindError answers 400 for a body or query that failed binding.
func respondBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]gin.H, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, gin.H{"field": jsonFieldName(fe), "rule": fe.Tag()})
		}
		msg := "invalid value for " + jsonFieldName(verrs[0])
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":   CodeValidationFailed,
			"message": msg,
			"field":   jsonFieldName(verrs[0]),
			"fields":  fields,
		})
		return
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	message := "malformed request"
	switch {
	case errors.As(err, &syntaxErr):
		message = "request body is not valid JSON"
	case errors.As(err, &typeErr):
		message = "wrong type for field " + typeErr.Field
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":   CodeInvalidRequest,
		"message": message,
	})
}

// jsonFieldName returns the namespace of fe without the struct name,
// using the json names registered in RegisterValidators.
func jsonFieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	for i := 0; i < len(ns); i++ {
		if ns[i] == '.' {
			return ns[i+1:]
		}
	}
	return fe.Field()
}

// respondBindOrError picks respondBindError when binding failed and
// respondError otherwise.
func (d *Deps) respondBindOrError(c *gin.Context, bindFailed bool, err error) {
	if bindFailed {
		respondBindError(c, err)
		return
	}
	d.respondError(c, err)
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package auth

import (
	"errors"
	"fmt"

	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/datatypes"
	"golang.org/x/crypto/bcrypt"
)

// ErrWrongPassword is returned by CheckPassword on mismatch.
var ErrWrongPassword = errors.New("wrong password")

// bcryptCost is lowered by tests.
var bcryptCost = bcrypt.DefaultCost

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	if len(password) < datatypes.MinPasswordLength {
		return "", datatypes.Invalid("password", "must be at least %d characters", datatypes.MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares password with hash.
func CheckPassword(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrWrongPassword
	}
	return err
}

// dummyHash is compared against when the username is unknown so that
// login timing does not reveal which usernames exist.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("sanjesh-timing-equalizer"), bcrypt.DefaultCost)

// BurnCompare performs a throwaway bcrypt comparison.
func BurnCompare(password string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package auth issues and validates portal session tokens and decides
// which roles may perform which actions.
//
// Tokens are HS256 JWTs carrying the user's role and scope codes. The
// validating provider still loads the user on every request so that
// deactivating an account takes effect immediately, before the token
// expires.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/extensions"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/datatypes"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/storage"
)

// MinSecretLength is the minimum HMAC secret size in bytes.
const MinSecretLength = 32

// Claims is the JWT payload.
type Claims struct {
	Role           string `json:"role"`
	ProvinceCode   string `json:"prv,omitempty"`
	DistrictCode   string `json:"dst,omitempty"`
	ExamCenterCode string `json:"exc,omitempty"`
	Username       string `json:"usr"`
	jwt.RegisteredClaims
}

// TokenConfig configures token signing and validation.
type TokenConfig struct {
	Secret []byte
	Issuer string
	TTL    time.Duration

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// TokenIssuer signs and parses portal tokens.
//
// # Thread Safety
//
// Safe for concurrent use; it holds no mutable state.
type TokenIssuer struct {
	cfg TokenConfig
}

// NewTokenIssuer validates cfg and returns an issuer.
func NewTokenIssuer(cfg TokenConfig) (*TokenIssuer, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLength)
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "sanjesh"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 12 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &TokenIssuer{cfg: cfg}, nil
}

// TTL returns the token lifetime.
func (i *TokenIssuer) TTL() time.Duration {
	return i.cfg.TTL
}

// Issue signs a token for user.
//
// # Outputs
//
//   - string: The compact JWT.
//   - time.Time: When it expires.
//   - error: Non-nil only if signing fails.
func (i *TokenIssuer) Issue(user datatypes.User) (string, time.Time, error) {
	now := i.cfg.Now().UTC()
	expiresAt := now.Add(i.cfg.TTL)

	claims := Claims{
		Role:           user.Role,
		ProvinceCode:   user.ProvinceCode,
		DistrictCode:   user.DistrictCode,
		ExamCenterCode: user.ExamCenterCode,
		Username:       user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.cfg.Issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        storage.NewID(),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.cfg.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return token, expiresAt, nil
}

// Parse verifies the signature, issuer and expiry of token.
//
// Every failure is reported as extensions.ErrUnauthorized wrapping the
// library error.
func (i *TokenIssuer) Parse(token string) (*Claims, error) {
	if token == "" {
		return nil, extensions.ErrUnauthorized
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return i.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.cfg.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", extensions.ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", extensions.ErrUnauthorized)
	}
	return &claims, nil
}

// UserGetter loads users by ID. *storage.Collection[datatypes.User]
// satisfies it.
type UserGetter interface {
	Get(ctx context.Context, id string) (datatypes.User, error)
}

// JWTAuthProvider validates portal tokens against the user store.
type JWTAuthProvider struct {
	issuer *TokenIssuer
	users  UserGetter
}

// NewJWTAuthProvider returns a provider backed by issuer and users.
func NewJWTAuthProvider(issuer *TokenIssuer, users UserGetter) *JWTAuthProvider {
	return &JWTAuthProvider{issuer: issuer, users: users}
}

// Validate parses token and resolves the current state of its user.
//
// # Description
//
// Scope codes come from the stored user rather than the claims, so an
// admin changing a user's district takes effect on the next request.
//
// # Outputs
//
//   - *extensions.AuthInfo: The caller.
//   - error: extensions.ErrUnauthorized for bad tokens, unknown users and
//     deactivated users. Store failures are returned as-is.
func (p *JWTAuthProvider) Validate(ctx context.Context, token string) (*extensions.AuthInfo, error) {
	claims, err := p.issuer.Parse(token)
	if err != nil {
		return nil, err
	}

	user, err := p.users.Get(ctx, claims.Subject)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: user no longer exists", extensions.ErrUnauthorized)
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !user.IsActive {
		return nil, fmt.Errorf("%w: user is deactivated", extensions.ErrUnauthorized)
	}
	return user.AuthInfo(), nil
}

var _ extensions.AuthProvider = (*JWTAuthProvider)(nil)

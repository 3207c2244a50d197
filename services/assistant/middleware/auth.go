// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the assistant service.
//
// # Authentication Flow
//
// The auth middleware extracts a bearer token from the Authorization header,
// validates it using the configured SessionValidator, and stores the
// resulting Session in the Gin context for downstream handlers.
//
// With NopValidator (the default), every request is authenticated as an
// anonymous local session, so the service runs without any identity
// infrastructure. Setting ASSISTANT_API_TOKEN switches on the static token
// validator.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/minbar-platform/minbar/services/assistant/datatypes"
)

// sessionKey is the context key for storing the Session.
const sessionKey = "minbar_session"

// Session identifies the authenticated caller of one request.
type Session struct {
	UserID    string
	Anonymous bool
}

// SessionValidator checks a bearer token and resolves it to a session.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type SessionValidator interface {
	// Validate resolves a token to a session. A missing or invalid token
	// yields datatypes.ErrUnauthorized.
	Validate(ctx context.Context, token string) (*Session, error)
}

// NopValidator accepts every request as an anonymous session.
type NopValidator struct{}

// Validate implements SessionValidator.
func (NopValidator) Validate(_ context.Context, _ string) (*Session, error) {
	return &Session{UserID: "anonymous", Anonymous: true}, nil
}

// StaticTokenValidator accepts exactly one pre-shared token.
type StaticTokenValidator struct {
	Token string
}

// Validate implements SessionValidator.
func (v StaticTokenValidator) Validate(_ context.Context, token string) (*Session, error) {
	if token == "" || token != v.Token {
		return nil, datatypes.ErrUnauthorized
	}
	return &Session{UserID: "api-client"}, nil
}

// SetSession stores the caller's session in the Gin context.
func SetSession(c *gin.Context, session *Session) {
	c.Set(sessionKey, session)
}

// GetSession retrieves the caller's session, or nil when the request was not
// authenticated.
func GetSession(c *gin.Context) *Session {
	if v, exists := c.Get(sessionKey); exists {
		if session, ok := v.(*Session); ok {
			return session
		}
	}
	return nil
}

// AuthMiddleware creates a Gin middleware that authenticates requests.
//
// # Description
//
// Extracts the bearer token from the Authorization header, validates it with
// the given SessionValidator, and stores the session for handlers. Failures
// abort with 401 and the platform's JSON error shape.
//
// # Inputs
//
//   - validator: SessionValidator to check tokens. Must not be nil.
//
// # Outputs
//
//   - gin.HandlerFunc: Ready for use on a route group.
func AuthMiddleware(validator SessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)

		session, err := validator.Validate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, datatypes.ErrUnauthorized) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "unauthorized",
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication failed",
			})
			return
		}

		SetSession(c, session)
		c.Next()
	}
}

// extractBearerToken parses "Authorization: Bearer <token>". Returns the
// empty string when the header is missing or malformed. The "Bearer" prefix
// is case-insensitive per RFC 7235.
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

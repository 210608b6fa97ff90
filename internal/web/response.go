// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LoginGuard Contributors

package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/loginguard/loginguard/internal/auth"
)

// User-facing messages. Infrastructure failures get a generic message; the
// details go to the log.
const (
	MsgLoginSuccess       = "Login successful"
	MsgInvalidCredentials = "Invalid credentials"
	MsgChallengeRequired  = "Too many failed attempts. Please complete CAPTCHA verification."
	MsgChallengeRejected  = "CAPTCHA verification failed"
	MsgLocked             = "Too many failed attempts. Try again later."
	MsgUnavailable        = "Verification service unavailable. Please try again later."
	MsgInternal           = "Internal server error"
	MsgInvalidBody        = "Invalid request body"
	MsgResetDone          = "Attempt counter reset"
	MsgUnauthorized       = "Unauthorized"
	MsgRouteNotFound      = "Not found"
)

// StatusChallengeFailure answers a rejected CAPTCHA token. The browser client
// keys its retry flow on 402.
const StatusChallengeFailure = http.StatusPaymentRequired

// loginResponse is the body of every /login answer. Optional fields appear
// only for the outcomes that carry them.
type loginResponse struct {
	Success         bool      `json:"success"`
	Message         string    `json:"message"`
	FailedAttempts  *int      `json:"failedAttempts,omitempty"`
	CaptchaRequired bool      `json:"captchaRequired,omitempty"`
	Errors          *[]string `json:"errors,omitempty"`
}

type resetResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	FailedAttempts int    `json:"failedAttempts"`
}

// errorResponse mirrors loginResponse for non-login failures.
func errorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, loginResponse{Success: false, Message: message})
}

// writeLoginResult maps a service result onto status code and body.
func writeLoginResult(c *gin.Context, res auth.Result) {
	switch res.Outcome {
	case auth.OutcomeSuccess:
		c.JSON(http.StatusOK, loginResponse{Success: true, Message: MsgLoginSuccess})
	case auth.OutcomeInvalidCredentials:
		failed := res.FailedAttempts
		c.JSON(http.StatusBadRequest, loginResponse{Message: MsgInvalidCredentials, FailedAttempts: &failed})
	case auth.OutcomeChallengeRequired:
		c.JSON(http.StatusForbidden, loginResponse{Message: MsgChallengeRequired, CaptchaRequired: true})
	case auth.OutcomeChallengeRejected:
		codes := res.ErrorCodes
		if codes == nil {
			codes = []string{}
		}
		c.JSON(StatusChallengeFailure, loginResponse{Message: MsgChallengeRejected, Errors: &codes})
	case auth.OutcomeLocked:
		c.JSON(http.StatusTooManyRequests, loginResponse{Message: MsgLocked})
	case auth.OutcomeVerificationUnavailable:
		errorResponse(c, http.StatusInternalServerError, MsgUnavailable)
	default:
		errorResponse(c, http.StatusInternalServerError, MsgInternal)
	}
}

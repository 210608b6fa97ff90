// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LoginGuard Contributors

package web

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/loginguard/loginguard/internal/attempt"
	"github.com/loginguard/loginguard/internal/auth"
	"github.com/loginguard/loginguard/pkg/errutil"
)

// LoginService is what the API needs from auth.Service.
type LoginService interface {
	Login(ctx context.Context, req auth.LoginRequest) (auth.Result, error)
	Status() attempt.Snapshot
	Reset(ctx context.Context, source string)
}

// loginRequest is the /login body. challengeToken is accepted as an alias of
// captchaToken; captchaToken wins when both are set.
type loginRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	CaptchaToken   string `json:"captchaToken"`
	ChallengeToken string `json:"challengeToken"`
}

func (r loginRequest) token() string {
	if r.CaptchaToken != "" {
		return r.CaptchaToken
	}
	return r.ChallengeToken
}

type handlers struct {
	service    LoginService
	adminToken string
}

func (h *handlers) login(c *gin.Context) {
	var body loginRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		loggerFrom(c).DebugContext(c.Request.Context(), "rejecting malformed login body", "error", err)
		errorResponse(c, http.StatusBadRequest, MsgInvalidBody)
		return
	}

	ctx := c.Request.Context()
	res, err := h.service.Login(ctx, auth.LoginRequest{
		Email:          body.Email,
		Password:       body.Password,
		ChallengeToken: body.token(),
		RemoteIP:       c.ClientIP(),
	})
	if err != nil {
		errutil.LogErrorContext(ctx, loggerFrom(c), "login failed", err,
			"outcome", string(res.Outcome),
		)
	}
	writeLoginResult(c, res)
}

func (h *handlers) status(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Status())
}

// reset is only routed when an admin token is configured.
func (h *handlers) reset(c *gin.Context) {
	if !h.authorized(c.GetHeader("Authorization")) {
		c.Header("WWW-Authenticate", `Bearer realm="loginguard"`)
		errorResponse(c, http.StatusUnauthorized, MsgUnauthorized)
		return
	}
	h.service.Reset(c.Request.Context(), "http")
	c.JSON(http.StatusOK, resetResponse{Success: true, Message: MsgResetDone, FailedAttempts: 0})
}

func (h *handlers) authorized(header string) bool {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(h.adminToken)) == 1
}

func healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

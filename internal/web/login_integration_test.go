// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LoginGuard Contributors

//go:build integration

package web_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/loginguard/loginguard/internal/attempt"
	"github.com/loginguard/loginguard/internal/auth"
	"github.com/loginguard/loginguard/internal/captcha"
	"github.com/loginguard/loginguard/internal/web"
)

const (
	testEmail    = "admin@example.com"
	testPassword = "correct horse battery staple"
	adminToken   = "reset-me"
)

// Provider tokens understood by the fake siteverify endpoint.
const (
	tokenGood = "good-token"
	tokenBad  = "bad-token"
	tokenDown = "provider-down"
)

// cheapHasher keeps argon2id fast enough for many logins per test.
var cheapHasher = auth.NewArgon2idHasherWithParams(auth.Argon2Params{
	Time:    1,
	Memory:  1024,
	Threads: 1,
	SaltLen: 16,
	KeyLen:  32,
})

type apiResponse struct {
	status int
	body   map[string]any
}

type loginFixture struct {
	api      *httptest.Server
	provider *httptest.Server
	client   *http.Client

	mu         sync.Mutex
	verifyHits int
}

func newLoginFixture(thresholds attempt.Thresholds) *loginFixture {
	f := &loginFixture{client: &http.Client{Timeout: 10 * time.Second}}

	f.provider = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.verifyHits++
		f.mu.Unlock()

		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		switch r.PostForm.Get("response") {
		case tokenGood:
			_, _ = io.WriteString(w, `{"success":true,"hostname":"localhost"}`)
		case tokenDown:
			w.WriteHeader(http.StatusBadGateway)
		default:
			_, _ = io.WriteString(w, `{"success":false,"error-codes":["invalid-input-response"]}`)
		}
	}))

	verifier, err := captcha.NewClient(captcha.Config{
		Secret:    "test-secret",
		VerifyURL: f.provider.URL,
		Timeout:   2 * time.Second,
	})
	Expect(err).NotTo(HaveOccurred())

	creds, err := auth.NewStaticCredentialsFromPassword(testEmail, testPassword, cheapHasher)
	Expect(err).NotTo(HaveOccurred())

	svc, err := auth.NewService(auth.ServiceConfig{
		Tracker:     attempt.NewTracker(thresholds),
		Verifier:    verifier,
		Credentials: creds,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	Expect(err).NotTo(HaveOccurred())

	router, err := web.NewRouter(web.Config{
		Service:    svc,
		AdminToken: adminToken,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	Expect(err).NotTo(HaveOccurred())

	f.api = httptest.NewServer(router)
	return f
}

func (f *loginFixture) close() {
	f.api.Close()
	f.provider.Close()
}

func (f *loginFixture) hits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verifyHits
}

func (f *loginFixture) send(method, path, body string, headers map[string]string) apiResponse {
	GinkgoHelper()
	req, err := http.NewRequest(method, f.api.URL+path, strings.NewReader(body))
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := f.client.Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = resp.Body.Close() }()

	out := apiResponse{status: resp.StatusCode}
	Expect(json.NewDecoder(resp.Body).Decode(&out.body)).To(Succeed())
	return out
}

func (f *loginFixture) login(password, token string) apiResponse {
	GinkgoHelper()
	payload := map[string]string{"email": testEmail, "password": password}
	if token != "" {
		payload["captchaToken"] = token
	}
	raw, err := json.Marshal(payload)
	Expect(err).NotTo(HaveOccurred())
	return f.send(http.MethodPost, "/login", string(raw), nil)
}

func (f *loginFixture) failedAttempts() int {
	GinkgoHelper()
	resp := f.send(http.MethodGet, "/status", "", nil)
	Expect(resp.status).To(Equal(http.StatusOK))
	return int(resp.body["failedAttempts"].(float64))
}

func (f *loginFixture) failTo(n int) {
	GinkgoHelper()
	for f.failedAttempts() < n {
		token := ""
		if f.failedAttempts() > 0 {
			token = tokenGood
		}
		resp := f.login("wrong", token)
		Expect(resp.status).To(Equal(http.StatusBadRequest))
	}
}

func mustThresholds(challengeAt []int, lockoutAt int, mode attempt.Mode) attempt.Thresholds {
	th, err := attempt.NewThresholds(challengeAt, lockoutAt, mode)
	Expect(err).NotTo(HaveOccurred())
	return th
}

var _ = Describe("Login API", func() {
	var f *loginFixture

	BeforeEach(func() {
		f = newLoginFixture(attempt.DefaultThresholds())
	})

	AfterEach(func() {
		f.close()
	})

	Describe("valid credentials", func() {
		It("logs in without a challenge from a clean state", func() {
			resp := f.login(testPassword, "")

			Expect(resp.status).To(Equal(http.StatusOK))
			Expect(resp.body).To(HaveKeyWithValue("success", true))
			Expect(resp.body).To(HaveKeyWithValue("message", web.MsgLoginSuccess))
			Expect(f.hits()).To(BeZero())
		})

		It("resets the counter after success", func() {
			f.failTo(2)

			Expect(f.login(testPassword, tokenGood).status).To(Equal(http.StatusOK))
			Expect(f.failedAttempts()).To(BeZero())
		})
	})

	Describe("invalid credentials", func() {
		It("counts each failure and reports the count", func() {
			for i := 1; i <= 3; i++ {
				resp := f.login("wrong", "")
				Expect(resp.status).To(Equal(http.StatusBadRequest))
				Expect(resp.body).To(HaveKeyWithValue("failedAttempts", float64(i)))
				Expect(resp.body).To(HaveKeyWithValue("message", web.MsgInvalidCredentials))
			}
		})
	})

	Describe("challenge escalation", func() {
		BeforeEach(func() {
			f.failTo(4)
		})

		It("demands a challenge at the threshold without touching the counter", func() {
			resp := f.login(testPassword, "")

			Expect(resp.status).To(Equal(http.StatusForbidden))
			Expect(resp.body).To(HaveKeyWithValue("captchaRequired", true))
			Expect(f.failedAttempts()).To(Equal(4))
		})

		It("accepts a verified challenge with valid credentials", func() {
			hitsBefore := f.hits()

			resp := f.login(testPassword, tokenGood)

			Expect(resp.status).To(Equal(http.StatusOK))
			Expect(f.hits()).To(Equal(hitsBefore + 1))
			Expect(f.failedAttempts()).To(BeZero())
		})

		It("answers a rejected token with 402 and the provider codes", func() {
			resp := f.login(testPassword, tokenBad)

			Expect(resp.status).To(Equal(http.StatusPaymentRequired))
			Expect(resp.body).To(HaveKeyWithValue("errors", ConsistOf("invalid-input-response")))
			Expect(f.failedAttempts()).To(Equal(4))
		})

		It("answers a provider outage with a generic 500", func() {
			resp := f.login(testPassword, tokenDown)

			Expect(resp.status).To(Equal(http.StatusInternalServerError))
			Expect(resp.body).To(HaveKeyWithValue("message", web.MsgUnavailable))
			Expect(f.failedAttempts()).To(Equal(4))
		})

		It("does not demand a challenge between exact thresholds", func() {
			Expect(f.login("wrong", tokenGood).status).To(Equal(http.StatusBadRequest))

			resp := f.login("wrong", "")

			Expect(resp.status).To(Equal(http.StatusBadRequest))
			Expect(resp.body).To(HaveKeyWithValue("failedAttempts", float64(6)))
		})
	})

	Describe("lockout", func() {
		BeforeEach(func() {
			f.failTo(10)
		})

		It("rejects even valid credentials and a valid token", func() {
			hitsBefore := f.hits()

			resp := f.login(testPassword, tokenGood)

			Expect(resp.status).To(Equal(http.StatusTooManyRequests))
			Expect(resp.body).To(HaveKeyWithValue("message", web.MsgLocked))
			Expect(f.hits()).To(Equal(hitsBefore))
		})

		It("recovers after an authorised reset", func() {
			unauthorised := f.send(http.MethodPost, "/reset", "", map[string]string{"Authorization": "Bearer nope"})
			Expect(unauthorised.status).To(Equal(http.StatusUnauthorized))
			Expect(f.failedAttempts()).To(Equal(10))

			reset := f.send(http.MethodPost, "/reset", "", map[string]string{"Authorization": "Bearer " + adminToken})
			Expect(reset.status).To(Equal(http.StatusOK))
			Expect(reset.body).To(HaveKeyWithValue("failedAttempts", float64(0)))

			Expect(f.login(testPassword, "").status).To(Equal(http.StatusOK))
		})
	})
})

var _ = Describe("Concurrent logins", func() {
	It("counts every concurrent failure exactly once", func() {
		f := newLoginFixture(mustThresholds([]int{8}, 10, attempt.ModeExact))
		DeferCleanup(f.close)

		const workers = 5
		var wg sync.WaitGroup
		statuses := make(chan int, workers)
		for range workers {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				statuses <- f.login("wrong", "").status
			}()
		}
		wg.Wait()
		close(statuses)

		for status := range statuses {
			Expect(status).To(Equal(http.StatusBadRequest))
		}
		Expect(f.failedAttempts()).To(Equal(workers))
	})
})

var _ = Describe("At-or-above mode", func() {
	It("keeps demanding a challenge past the first threshold", func() {
		f := newLoginFixture(mustThresholds([]int{2}, 5, attempt.ModeAtOrAbove))
		DeferCleanup(f.close)

		f.failTo(3)

		resp := f.login(testPassword, "")
		Expect(resp.status).To(Equal(http.StatusForbidden))
		Expect(resp.body).To(HaveKeyWithValue("captchaRequired", true))
	})
})

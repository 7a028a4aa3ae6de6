// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/meta-1/wiki/internal/accountconfig"
	"github.com/meta-1/wiki/internal/config"
	"github.com/meta-1/wiki/internal/handlers"
	"github.com/meta-1/wiki/internal/i18n"
	"github.com/meta-1/wiki/internal/middleware"
	"github.com/meta-1/wiki/internal/models"
	"github.com/meta-1/wiki/internal/repository"
	"github.com/meta-1/wiki/internal/services/account"
	"github.com/meta-1/wiki/internal/services/assets"
	"github.com/meta-1/wiki/internal/services/mailcode"
	"github.com/meta-1/wiki/internal/services/otp"
	"github.com/meta-1/wiki/internal/services/session"
	"github.com/meta-1/wiki/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func init() {
	_ = i18n.Init()
}

var sharedKeys testutil.RSAKeys

type harness struct {
	e     *echo.Echo
	mr    *miniredis.Miniredis
	repo  *repository.Repository
	keys  testutil.RSAKeys
	codes *testutil.CodeRecorder
	store *accountconfig.Store
}

type options struct {
	noAccountConfig bool
	assets          *assets.Service
}

func newHarness(t *testing.T, opts options) *harness {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	mr, rdb := testutil.NewTestRedis(t)

	if sharedKeys.PrivatePEM == "" {
		sharedKeys = testutil.NewRSAKeys(t)
	}

	store := accountconfig.NewStore()
	if !opts.noAccountConfig {
		require.NoError(t, store.Set(accountconfig.Config{
			PublicKey:  sharedKeys.PublicPEM,
			PrivateKey: sharedKeys.PrivatePEM,
			AESKey:     "handler-test-key",
			ExpiresIn:  "1d",
		}))
	}

	sessions, err := session.NewManager(rdb, &config.TokenConfig{
		Secret: "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef",
		Issuer: "wiki",
	})
	require.NoError(t, err)

	codes := &testutil.CodeRecorder{}
	mailCodes := mailcode.NewService(rdb, codes, time.Minute, 5)
	accounts := account.NewService(account.Deps{
		Repo:      repo,
		Redis:     rdb,
		MailCodes: mailCodes,
		OTP:       otp.NewManager(rdb, "Wiki", time.Minute),
		Sessions:  sessions,
		Config:    store,
	})

	h := handlers.New(handlers.Deps{
		Accounts:  accounts,
		OTP:       account.NewOTPService(accounts),
		MailCodes: mailCodes,
		Config:    store,
		Assets:    opts.assets,
	})

	e := echo.New()
	e.HTTPErrorHandler = handlers.ErrorHandler
	e.Use(middleware.Locale)
	h.Mount(e, sessions)

	return &harness{e: e, mr: mr, repo: repo, keys: sharedKeys, codes: codes, store: store}
}

type call struct {
	method string
	path   string
	body   any
	token  string
	lang   string
}

func (h *harness) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	switch b := c.body.(type) {
	case nil:
	case string:
		body.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&body).Encode(b))
	}

	req := testutil.NewRequest(c.method, c.path, &body)
	if c.token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+c.token)
	}
	if c.lang != "" {
		req.Header.Set("Accept-Language", c.lang)
	}
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	return rec
}

func (h *harness) sendCode(t *testing.T, email string, action mailcode.Action) string {
	t.Helper()
	rec := h.do(t, call{method: http.MethodPost, path: "/api/mail/code/send", body: map[string]string{
		"email": email, "action": string(action),
	}})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	code := h.codes.Code(email, string(action))
	require.NotEmpty(t, code)
	return code
}

func (h *harness) register(t *testing.T, email, password string) models.Token {
	t.Helper()
	code := h.sendCode(t, email, mailcode.ActionRegister)
	rec := h.do(t, call{method: http.MethodPost, path: "/api/account/register", body: map[string]string{
		"email": email, "code": code, "password": testutil.EncryptForClient(t, h.keys.PublicPEM, password),
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var token models.Token
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &token))
	return token
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) handlers.ErrorResponse {
	t.Helper()
	var resp handlers.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func englishT(messageID string) string {
	return i18n.T(i18n.WithLocale(httptest.NewRequest(http.MethodGet, "/", nil).Context(), language.English), messageID)
}

func TestHealth(t *testing.T) {
	h := handlers.New(handlers.Deps{})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.Health(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCommonConfig(t *testing.T) {
	h := newHarness(t, options{})

	rec := h.do(t, call{method: http.MethodGet, path: "/api/config/common"})

	require.Equal(t, http.StatusOK, rec.Code)
	var cfg handlers.CommonConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, h.keys.PublicPEM, cfg.PublicKey)
}

func TestCommonConfig_NotLoaded(t *testing.T) {
	h := newHarness(t, options{noAccountConfig: true})

	rec := h.do(t, call{method: http.MethodGet, path: "/api/config/common"})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1100, decodeError(t, rec).Code)
}

func TestAccountFlow(t *testing.T) {
	h := newHarness(t, options{})

	token := h.register(t, "alice@x.com", "P1")
	assert.Len(t, token.Token, 64)
	assert.Equal(t, (24 * time.Hour).Milliseconds(), token.ExpiresIn)

	rec := h.do(t, call{method: http.MethodGet, path: "/api/account/profile", token: token.Token})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var profile map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	assert.Equal(t, "alice@x.com", profile["email"])
	assert.Equal(t, "alice", profile["username"])
	assert.Equal(t, float64(0), profile["otpStatus"])
	assert.NotContains(t, profile, "password")
	assert.NotContains(t, profile, "otpSecret")

	rec = h.do(t, call{method: http.MethodPost, path: "/api/account/logout", token: token.Token})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, call{method: http.MethodGet, path: "/api/account/profile", token: token.Token})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 401, decodeError(t, rec).Code)

	rec = h.do(t, call{method: http.MethodPost, path: "/api/account/login", body: map[string]string{
		"email": "Alice@X.com ", "password": testutil.EncryptForClient(t, h.keys.PublicPEM, "P1"),
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRegister_Validation(t *testing.T) {
	h := newHarness(t, options{})
	password := testutil.EncryptForClient(t, h.keys.PublicPEM, "P1")

	tests := []struct {
		name      string
		body      any
		messageID string
	}{
		{"malformed json", "{", "invalid_request"},
		{"bad email", map[string]string{"email": "nope", "code": "123456", "password": password}, "invalid_email"},
		{"display name email", map[string]string{"email": "A <a@x.com>", "code": "123456", "password": password}, "invalid_email"},
		{"short code", map[string]string{"email": "a@x.com", "code": "12345", "password": password}, "invalid_code"},
		{"missing password", map[string]string{"email": "a@x.com", "code": "123456"}, "password_required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, call{method: http.MethodPost, path: "/api/account/register", body: tt.body})

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, 400, resp.Code)
			assert.Equal(t, englishT(tt.messageID), resp.Message)
		})
	}
}

func TestRegister_DomainErrors(t *testing.T) {
	h := newHarness(t, options{})
	h.register(t, "alice@x.com", "P1")

	t.Run("wrong code", func(t *testing.T) {
		h.sendCode(t, "bob@x.com", mailcode.ActionRegister)
		rec := h.do(t, call{method: http.MethodPost, path: "/api/account/register", body: map[string]string{
			"email": "bob@x.com", "code": "abcdef", "password": "x",
		}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, 400, decodeError(t, rec).Code, "malformed code is a validation error")
	})

	t.Run("expired code", func(t *testing.T) {
		code := h.sendCode(t, "bob@x.com", mailcode.ActionRegister)
		h.mr.FastForward(2 * time.Minute)
		rec := h.do(t, call{method: http.MethodPost, path: "/api/account/register", body: map[string]string{
			"email": "bob@x.com", "code": code, "password": testutil.EncryptForClient(t, h.keys.PublicPEM, "P1"),
		}})
		assert.Equal(t, 1000, decodeError(t, rec).Code)
	})

	t.Run("existing account", func(t *testing.T) {
		rec := h.do(t, call{method: http.MethodPost, path: "/api/account/register", body: map[string]string{
			"email": "alice@x.com", "code": "000000", "password": testutil.EncryptForClient(t, h.keys.PublicPEM, "P1"),
		}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, 1001, decodeError(t, rec).Code)
	})

	t.Run("undecryptable password", func(t *testing.T) {
		code := h.sendCode(t, "carol@x.com", mailcode.ActionRegister)
		rec := h.do(t, call{method: http.MethodPost, path: "/api/account/register", body: map[string]string{
			"email": "carol@x.com", "code": code, "password": "bm90IHJzYQ==",
		}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decodeError(t, rec)
		assert.Equal(t, 400, resp.Code)
		assert.Equal(t, englishT("invalid_password"), resp.Message)
	})
}

func TestRegister_NoAccountConfig(t *testing.T) {
	h := newHarness(t, options{noAccountConfig: true})
	code := h.sendCode(t, "alice@x.com", mailcode.ActionRegister)

	rec := h.do(t, call{method: http.MethodPost, path: "/api/account/register", body: map[string]string{
		"email": "alice@x.com", "code": code, "password": "x",
	}})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1003, decodeError(t, rec).Code)
}

func TestLogin_Errors(t *testing.T) {
	h := newHarness(t, options{})
	h.register(t, "alice@x.com", "P1")

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"unknown account", "nobody@x.com", testutil.EncryptForClient(t, h.keys.PublicPEM, "P1")},
		{"wrong password", "alice@x.com", testutil.EncryptForClient(t, h.keys.PublicPEM, "P2")},
		{"garbage password", "alice@x.com", "garbage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, call{method: http.MethodPost, path: "/api/account/login", body: map[string]string{
				"email": tt.email, "password": tt.password,
			}})
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, 1002, resp.Code)
			assert.Equal(t, englishT("LOGIN_ERROR"), resp.Message)
		})
	}
}

func TestErrors_Localized(t *testing.T) {
	h := newHarness(t, options{})

	rec := h.do(t, call{method: http.MethodPost, path: "/api/account/login", lang: "zh-CN", body: map[string]string{
		"email": "nobody@x.com", "password": "x",
	}})

	resp := decodeError(t, rec)
	assert.Equal(t, 1002, resp.Code)
	assert.NotEqual(t, englishT("LOGIN_ERROR"), resp.Message)
	assert.NotEqual(t, "LOGIN_ERROR", resp.Message)
}

func TestProtectedRoutes_Unauthorized(t *testing.T) {
	h := newHarness(t, options{})

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/account/profile"},
		{http.MethodPost, "/api/account/logout"},
		{http.MethodGet, "/api/account/otp/status"},
		{http.MethodGet, "/api/account/otp/secret"},
		{http.MethodPost, "/api/account/otp/enable"},
		{http.MethodPost, "/api/account/otp/disable"},
	}

	for _, r := range routes {
		for _, token := range []string{"", strings.Repeat("a", 64), "not-a-hash"} {
			t.Run(r.method+" "+r.path+" "+token, func(t *testing.T) {
				rec := h.do(t, call{method: r.method, path: r.path, token: token, body: map[string]string{}})
				assert.Equal(t, http.StatusUnauthorized, rec.Code)
				assert.Equal(t, 401, decodeError(t, rec).Code)
			})
		}
	}
}

func TestOTPFlow(t *testing.T) {
	h := newHarness(t, options{})
	token := h.register(t, "alice@x.com", "P1")
	password := testutil.EncryptForClient(t, h.keys.PublicPEM, "P1")

	rec := h.do(t, call{method: http.MethodGet, path: "/api/account/otp/status", token: token.Token})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"enable":false}`, rec.Body.String())

	// Enable before a secret was handed out.
	code := h.sendCode(t, "alice@x.com", mailcode.ActionOTPEnable)
	rec = h.do(t, call{method: http.MethodPost, path: "/api/account/otp/enable", token: token.Token, body: map[string]string{
		"code": code, "otpCode": "123456",
	}})
	assert.Equal(t, 1005, decodeError(t, rec).Code)

	rec = h.do(t, call{method: http.MethodGet, path: "/api/account/otp/secret", token: token.Token})
	require.Equal(t, http.StatusOK, rec.Code)
	var secret models.OTPSecret
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &secret))
	assert.Equal(t, "alice@x.com", secret.Username)
	assert.True(t, strings.HasPrefix(secret.QRCode, "data:image/png;base64,"))

	otpCode, err := otp.GenerateCode(secret.Secret, time.Now())
	require.NoError(t, err)

	rec = h.do(t, call{method: http.MethodPost, path: "/api/account/otp/enable", token: token.Token, body: map[string]string{
		"code": code, "otpCode": otpCode,
	}})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = h.do(t, call{method: http.MethodGet, path: "/api/account/otp/status", token: token.Token})
	require.Equal(t, http.StatusOK, rec.Code)
	var status models.OTPStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Enable)
	assert.NotNil(t, status.EnableTime)

	rec = h.do(t, call{method: http.MethodGet, path: "/api/account/profile", token: token.Token})
	assert.Contains(t, rec.Body.String(), `"otpStatus":1`)

	rec = h.do(t, call{method: http.MethodPost, path: "/api/account/login", body: map[string]string{
		"email": "alice@x.com", "password": password,
	}})
	assert.Equal(t, 1008, decodeError(t, rec).Code)

	current, err := otp.GenerateCode(secret.Secret, time.Now())
	require.NoError(t, err)
	rec = h.do(t, call{method: http.MethodPost, path: "/api/account/login", body: map[string]string{
		"email": "alice@x.com", "password": password, "otpCode": current,
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	disableCode := h.sendCode(t, "alice@x.com", mailcode.ActionOTPDisable)
	rec = h.do(t, call{method: http.MethodPost, path: "/api/account/otp/disable", token: token.Token, body: map[string]string{
		"code": disableCode,
	}})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = h.do(t, call{method: http.MethodGet, path: "/api/account/otp/status", token: token.Token})
	assert.JSONEq(t, `{"enable":false}`, rec.Body.String())
}

func TestOTPEnable_Validation(t *testing.T) {
	h := newHarness(t, options{})
	token := h.register(t, "alice@x.com", "P1")

	rec := h.do(t, call{method: http.MethodPost, path: "/api/account/otp/enable", token: token.Token, body: map[string]string{
		"code": "123456", "otpCode": "12",
	}})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, englishT("invalid_otp_code"), decodeError(t, rec).Message)
}

func TestSendMailCode(t *testing.T) {
	h := newHarness(t, options{})

	rec := h.do(t, call{method: http.MethodPost, path: "/api/mail/code/send", body: map[string]string{
		"email": " Bob@X.com", "action": "register",
	}})

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Regexp(t, `^\d{6}$`, h.codes.Code("bob@x.com", "register"))
	assert.True(t, h.mr.Exists("mail:code:register:bob@x.com"))
}

func TestSendMailCode_Validation(t *testing.T) {
	h := newHarness(t, options{})

	tests := []struct {
		name      string
		body      map[string]string
		messageID string
	}{
		{"unknown action", map[string]string{"email": "a@x.com", "action": "reset"}, "invalid_action"},
		{"bad email", map[string]string{"email": "a@", "action": "register"}, "invalid_email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, call{method: http.MethodPost, path: "/api/mail/code/send", body: tt.body})
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, englishT(tt.messageID), decodeError(t, rec).Message)
		})
	}
}

func TestPresignUpload(t *testing.T) {
	svc := assets.NewService(&config.S3Config{
		Bucket:    "wiki",
		Region:    "us-east-1",
		Endpoint:  "http://127.0.0.1:9000",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
	})
	h := newHarness(t, options{assets: svc})

	rec := h.do(t, call{method: http.MethodPost, path: "/api/assets/upload/pre-sign", body: map[string]string{
		"fileName": "photo.jpg", "contentType": "image/jpeg",
	}})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var upload models.PresignedUpload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &upload))
	assert.True(t, strings.HasPrefix(upload.URL, "http://127.0.0.1:9000/wiki/uploads/"))
	assert.True(t, strings.HasSuffix(upload.Key, ".jpg"))
	assert.Equal(t, int64(900), upload.ExpiresIn)

	rec = h.do(t, call{method: http.MethodPost, path: "/api/assets/upload/pre-sign", body: map[string]string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, englishT("file_name_required"), decodeError(t, rec).Message)
}

func TestPresignUpload_Disabled(t *testing.T) {
	h := newHarness(t, options{})

	rec := h.do(t, call{method: http.MethodPost, path: "/api/assets/upload/pre-sign", body: map[string]string{
		"fileName": "photo.jpg",
	}})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 404, decodeError(t, rec).Code)
}

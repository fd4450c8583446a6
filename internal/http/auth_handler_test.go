package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"deskos-auth/internal/domain"
	"deskos-auth/internal/repository"
	"deskos-auth/internal/service"
)

type mockAccountRepo struct {
	accounts map[string]domain.Account
}

func newMockAccountRepo() *mockAccountRepo {
	return &mockAccountRepo{accounts: make(map[string]domain.Account)}
}

func (m *mockAccountRepo) findWhere(pred func(domain.Account) bool) (domain.Account, error) {
	for _, a := range m.accounts {
		if pred(a) {
			return a, nil
		}
	}
	return domain.Account{}, pgx.ErrNoRows
}

func (m *mockAccountRepo) Create(_ context.Context, account domain.Account) error {
	for _, a := range m.accounts {
		if a.Username == account.Username || a.Email == account.Email ||
			(account.PhoneNumber != "" && a.PhoneNumber == account.PhoneNumber) {
			return repository.ErrDuplicate
		}
	}
	m.accounts[account.ID] = account
	return nil
}

func (m *mockAccountRepo) GetByID(_ context.Context, id string) (domain.Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return domain.Account{}, pgx.ErrNoRows
	}
	return a, nil
}

func (m *mockAccountRepo) GetByEmail(_ context.Context, email string) (domain.Account, error) {
	return m.findWhere(func(a domain.Account) bool { return a.Email == email })
}

func (m *mockAccountRepo) GetByPhone(_ context.Context, phone string) (domain.Account, error) {
	return m.findWhere(func(a domain.Account) bool { return phone != "" && a.PhoneNumber == phone })
}

func (m *mockAccountRepo) GetByEmailOrUsername(_ context.Context, identifier string) (domain.Account, error) {
	return m.findWhere(func(a domain.Account) bool {
		return a.Email == identifier || a.Username == identifier
	})
}

func (m *mockAccountRepo) FindByAnyIdentifier(_ context.Context, email, username, phone string) (domain.Account, error) {
	return m.findWhere(func(a domain.Account) bool {
		if a.Email == email || a.Username == username {
			return true
		}
		return phone != "" && a.PhoneNumber == phone
	})
}

func (m *mockAccountRepo) Delete(_ context.Context, id string) error {
	delete(m.accounts, id)
	return nil
}

func (m *mockAccountRepo) Update(_ context.Context, account domain.Account) error {
	stored, ok := m.accounts[account.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	stored.Name = account.Name
	stored.Username = account.Username
	stored.Email = account.Email
	stored.CountryCode = account.CountryCode
	stored.PhoneNumber = account.PhoneNumber
	stored.PasswordHash = account.PasswordHash
	stored.IsEmailVerified = account.IsEmailVerified
	stored.IsPhoneVerified = account.IsPhoneVerified
	m.accounts[account.ID] = stored
	return nil
}

func (m *mockAccountRepo) SetOTP(_ context.Context, id, channel, otpHash string, expiresAt time.Time) error {
	a, ok := m.accounts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if channel == domain.ChannelPhone {
		a.PhoneOtpHash = otpHash
		a.PhoneOtpExpiresAt = &expiresAt
	} else {
		a.EmailOtpHash = otpHash
		a.EmailOtpExpiresAt = &expiresAt
	}
	m.accounts[id] = a
	return nil
}

func (m *mockAccountRepo) ConsumeOTP(_ context.Context, id, channel string) error {
	a, ok := m.accounts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if channel == domain.ChannelPhone {
		a.PhoneOtpHash = ""
		a.PhoneOtpExpiresAt = nil
		a.IsPhoneVerified = true
	} else {
		a.EmailOtpHash = ""
		a.EmailOtpExpiresAt = nil
		a.IsEmailVerified = true
	}
	m.accounts[id] = a
	return nil
}

func (m *mockAccountRepo) SetResetToken(_ context.Context, id, tokenHash string, expiresAt time.Time) error {
	a, ok := m.accounts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.ResetTokenHash = tokenHash
	a.ResetTokenExpiresAt = &expiresAt
	m.accounts[id] = a
	return nil
}

func (m *mockAccountRepo) GetByActiveResetToken(_ context.Context, tokenHash string, now time.Time) (domain.Account, error) {
	return m.findWhere(func(a domain.Account) bool {
		return a.ResetTokenHash != "" && a.ResetTokenHash == tokenHash &&
			a.ResetTokenExpiresAt != nil && a.ResetTokenExpiresAt.After(now)
	})
}

func (m *mockAccountRepo) UpdatePasswordClearReset(_ context.Context, id, passwordHash string) error {
	a, ok := m.accounts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.PasswordHash = passwordHash
	a.ResetTokenHash = ""
	a.ResetTokenExpiresAt = nil
	m.accounts[id] = a
	return nil
}

func (m *mockAccountRepo) CountByRole(_ context.Context, role string) (int64, error) {
	var count int64
	for _, a := range m.accounts {
		if a.Role == role {
			count++
		}
	}
	return count, nil
}

func (m *mockAccountRepo) UsernameInUse(_ context.Context, username, excludeID string) (bool, error) {
	_, err := m.findWhere(func(a domain.Account) bool {
		return a.Username == username && a.ID != excludeID
	})
	return err == nil, nil
}

func (m *mockAccountRepo) EmailInUse(_ context.Context, email, excludeID string) (bool, error) {
	_, err := m.findWhere(func(a domain.Account) bool {
		return a.Email == email && a.ID != excludeID
	})
	return err == nil, nil
}

func (m *mockAccountRepo) PhoneInUse(_ context.Context, phone, excludeID string) (bool, error) {
	_, err := m.findWhere(func(a domain.Account) bool {
		return a.PhoneNumber == phone && a.ID != excludeID
	})
	return err == nil, nil
}

func (m *mockAccountRepo) ListAll(_ context.Context) ([]domain.Account, error) {
	out := make([]domain.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type captureEmailSender struct {
	lastTo       string
	lastCode     string
	lastResetURL string
}

func (m *captureEmailSender) SendOTP(_ context.Context, toEmail, code string, _ time.Time) error {
	m.lastTo = toEmail
	m.lastCode = code
	return nil
}

func (m *captureEmailSender) SendResetLink(_ context.Context, toEmail, resetURL string) error {
	m.lastTo = toEmail
	m.lastResetURL = resetURL
	return nil
}

type captureSMSSender struct {
	lastTo   string
	lastCode string
}

func (m *captureSMSSender) SendOTP(_ context.Context, toPhone, code string) error {
	m.lastTo = toPhone
	m.lastCode = code
	return nil
}

type testEnv struct {
	repo        *mockAccountRepo
	emailSender *captureEmailSender
	smsSender   *captureSMSSender
	jwtSvc      *service.JWTService
	router      *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := newMockAccountRepo()
	emailSender := &captureEmailSender{}
	smsSender := &captureSMSSender{}
	feed := service.NewMemoryActivityFeed(50)
	logger := zap.NewNop()

	jwtSvc, err := service.NewJWTService("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("jwt init failed: %v", err)
	}

	accountSvc := service.NewAccountService(logger, repo, emailSender, smsSender, feed, "http://localhost:5173")
	adminSvc := service.NewAdminService(logger, repo, feed, nil)

	authH := NewAuthHandler(logger, accountSvc, jwtSvc)
	profileH := NewProfileHandler(logger, accountSvc)
	adminH := NewAdminHandler(logger, adminSvc)

	router := NewRouter(logger, authH, profileH, adminH, jwtSvc, nil)
	return &testEnv{
		repo:        repo,
		emailSender: emailSender,
		smsSender:   smsSender,
		jwtSvc:      jwtSvc,
		router:      router,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body failed: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response failed: %v (body %s)", err, rec.Body.String())
	}
	return out
}

func TestSignupEndpointCreatesAccount(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/auth/signup", gin.H{
		"username": "alice",
		"email":    "ALICE@x.com",
		"password": "p1",
		"role":     "user",
	}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}

	stored, err := env.repo.GetByEmail(context.Background(), "alice@x.com")
	if err != nil {
		t.Fatalf("expected account stored under normalized email, got %v", err)
	}
	if stored.Role != domain.RoleAdmin {
		t.Fatalf("expected first signup promoted to admin, got %s", stored.Role)
	}
}

func TestSignupEndpointConflict(t *testing.T) {
	env := newTestEnv(t)

	first := env.do(t, http.MethodPost, "/api/auth/signup", gin.H{
		"username": "alice",
		"email":    "alice@x.com",
		"password": "p1",
	}, "")
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", first.Code)
	}

	// La primera cuenta debe verificarse para que el duplicado sea rechazado.
	verify := env.do(t, http.MethodPost, "/api/auth/verify-otp", gin.H{
		"email": "alice@x.com",
		"otp":   env.emailSender.lastCode,
	}, "")
	if verify.Code != http.StatusOK {
		t.Fatalf("expected 200 on verify, got %d (%s)", verify.Code, verify.Body.String())
	}

	second := env.do(t, http.MethodPost, "/api/auth/signup", gin.H{
		"username": "alice",
		"email":    "alice@x.com",
		"password": "p2",
	}, "")
	if second.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", second.Code)
	}
}

func TestLoginEndpointInvalidCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/auth/signup", gin.H{
		"username": "alice",
		"email":    "alice@x.com",
		"password": "p1",
	}, "")

	rec := env.do(t, http.MethodPost, "/api/auth/login", gin.H{
		"identifier": "alice@x.com",
		"password":   "wrong",
	}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	missing := env.do(t, http.MethodPost, "/api/auth/login", gin.H{
		"identifier": "ghost@x.com",
		"password":   "p1",
	}, "")
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.Code)
	}
}

func TestLoginFlowReturnsTokenOnlyAfterOTP(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/auth/signup", gin.H{
		"username": "alice",
		"email":    "alice@x.com",
		"password": "p1",
	}, "")
	env.do(t, http.MethodPost, "/api/auth/verify-otp", gin.H{
		"email": "alice@x.com",
		"otp":   env.emailSender.lastCode,
	}, "")

	login := env.do(t, http.MethodPost, "/api/auth/login", gin.H{
		"identifier": "alice@x.com",
		"password":   "p1",
	}, "")
	if login.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", login.Code, login.Body.String())
	}
	loginBody := decodeBody(t, login)
	if _, hasToken := loginBody["token"]; hasToken {
		t.Fatalf("expected no token before otp verification")
	}
	if loginBody["requiresOtp"] != true {
		t.Fatalf("expected requiresOtp=true, got %v", loginBody["requiresOtp"])
	}

	verify := env.do(t, http.MethodPost, "/api/auth/verify-otp", gin.H{
		"email": "alice@x.com",
		"otp":   env.emailSender.lastCode,
	}, "")
	if verify.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", verify.Code, verify.Body.String())
	}
	verifyBody := decodeBody(t, verify)
	token, _ := verifyBody["token"].(string)
	if token == "" {
		t.Fatalf("expected session token after otp verification")
	}

	claims, err := env.jwtSvc.ParseToken(token)
	if err != nil {
		t.Fatalf("expected valid token, got %v", err)
	}
	if claims.Email != "alice@x.com" || claims.Role != domain.RoleAdmin {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestVerifyOTPEndpointRejectsWrongCode(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/auth/signup", gin.H{
		"username": "alice",
		"email":    "alice@x.com",
		"password": "p1",
	}, "")

	wrong := "000000"
	if wrong == env.emailSender.lastCode {
		wrong = "000001"
	}
	rec := env.do(t, http.MethodPost, "/api/auth/verify-otp", gin.H{
		"email": "alice@x.com",
		"otp":   wrong,
	}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error"] != "invalid otp" {
		t.Fatalf("unexpected error body %v", body)
	}
}

func TestResetPasswordEndpointInvalidToken(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/auth/signup", gin.H{
		"username": "alice",
		"email":    "alice@x.com",
		"password": "p1",
	}, "")

	forgot := env.do(t, http.MethodPost, "/api/auth/forgot-password", gin.H{"email": "alice@x.com"}, "")
	if forgot.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", forgot.Code)
	}

	rec := env.do(t, http.MethodPost, "/api/auth/reset-password/deadbeef", gin.H{"password": "p2"}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for wrong token, got %d", rec.Code)
	}
}

func TestProfileEndpointsRequireToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/auth/profile", nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	env.do(t, http.MethodPost, "/api/auth/signup", gin.H{
		"username": "alice",
		"email":    "alice@x.com",
		"password": "p1",
	}, "")
	verify := env.do(t, http.MethodPost, "/api/auth/verify-otp", gin.H{
		"email": "alice@x.com",
		"otp":   env.emailSender.lastCode,
	}, "")
	token, _ := decodeBody(t, verify)["token"].(string)

	profile := env.do(t, http.MethodGet, "/api/auth/profile", nil, token)
	if profile.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d (%s)", profile.Code, profile.Body.String())
	}
}

func TestAdminRoutesEnforceRole(t *testing.T) {
	env := newTestEnv(t)

	// Primer alta: admin por la regla de arranque.
	env.do(t, http.MethodPost, "/api/auth/signup", gin.H{
		"username": "root",
		"email":    "root@x.com",
		"password": "p1",
	}, "")
	verify := env.do(t, http.MethodPost, "/api/auth/verify-otp", gin.H{
		"email": "root@x.com",
		"otp":   env.emailSender.lastCode,
	}, "")
	adminToken, _ := decodeBody(t, verify)["token"].(string)

	// Segunda alta: rol user.
	env.do(t, http.MethodPost, "/api/auth/signup", gin.H{
		"username": "alice",
		"email":    "alice@x.com",
		"password": "p1",
	}, "")
	verify = env.do(t, http.MethodPost, "/api/auth/verify-otp", gin.H{
		"email": "alice@x.com",
		"otp":   env.emailSender.lastCode,
	}, "")
	userToken, _ := decodeBody(t, verify)["token"].(string)

	if rec := env.do(t, http.MethodGet, "/api/auth/admin/stats", nil, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/auth/admin/stats", nil, userToken); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for user role, got %d", rec.Code)
	}
	rec := env.do(t, http.MethodGet, "/api/auth/admin/stats", nil, adminToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d (%s)", rec.Code, rec.Body.String())
	}

	users := env.do(t, http.MethodGet, "/api/auth/admin/users", nil, adminToken)
	if users.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin users, got %d", users.Code)
	}
	logs := env.do(t, http.MethodGet, "/api/auth/admin/logs", nil, adminToken)
	if logs.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin logs, got %d", logs.Code)
	}
}

package httpapi

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/peakfit/gymcore/internal/auth"
	"github.com/peakfit/gymcore/internal/hours"
	"github.com/peakfit/gymcore/internal/resilience"
	"github.com/peakfit/gymcore/internal/revoke"
	"github.com/peakfit/gymcore/internal/sync"
	"github.com/peakfit/gymcore/internal/token"
	"github.com/peakfit/gymcore/internal/training"
)

func testKeyPair(t *testing.T) (string, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return string(privPEM), string(pubPEM)
}

type recordingWiper struct {
	calls int
	err   error
}

func (w *recordingWiper) ClearAll(ctx context.Context) error {
	w.calls++
	return w.err
}

type testEnv struct {
	handler   http.Handler
	tokens    *token.Service
	creds     *auth.MemoryStore
	revoked   *revoke.Memory
	publisher *hours.MemoryPublisher
	wiper     *recordingWiper
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	privPEM, pubPEM := testKeyPair(t)
	tokens, err := token.NewService(privPEM, pubPEM)
	if err != nil {
		t.Fatalf("token service: %v", err)
	}

	creds := auth.NewMemoryStore()
	for _, seed := range []struct {
		username string
		password string
		role     auth.Role
	}{
		{"maria.petrova", "swordfish", auth.RoleTrainee},
		{"oleg.smirnov", "deadlift1", auth.RoleTrainer},
	} {
		hash, err := auth.HashPassword(seed.password)
		if err != nil {
			t.Fatalf("hash password: %v", err)
		}
		creds.Put(auth.Credential{
			Username:     seed.username,
			PasswordHash: hash,
			Role:         seed.role,
			Active:       true,
		})
	}

	revoked := revoke.NewMemory()
	svc := auth.NewService(creds, tokens, revoked)

	ledger := training.NewMemory(
		training.Training{ID: "t1", Name: "Push day", TraineeUsername: "maria.petrova", TrainerUsername: "oleg.smirnov", Date: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), DurationMinutes: 60},
		training.Training{ID: "t2", Name: "Pull day", TraineeUsername: "maria.petrova", TrainerUsername: "oleg.smirnov", Date: time.Date(2026, 9, 3, 0, 0, 0, 0, time.UTC), DurationMinutes: 45},
	)
	publisher := hours.NewMemoryPublisher()
	wiper := &recordingWiper{}
	breaker := resilience.New("trainer-hours", resilience.Options{FailureThreshold: 100})
	engine := sync.NewEngine(ledger, publisher, wiper, breaker)

	api := New(Config{
		Version: "test",
		Auth:    svc,
		Tokens:  tokens,
		Revoked: revoked,
		Engine:  engine,
		// High rate ceiling so only the dedicated test hits it.
		LoginRateBurst:     1000,
		LoginRatePerSecond: 1000,
	})
	return &testEnv{
		handler:   api.Handler(),
		tokens:    tokens,
		creds:     creds,
		revoked:   revoked,
		publisher: publisher,
		wiper:     wiper,
	}
}

func (env *testEnv) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) login(t *testing.T, username, password string) string {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("login response has no token")
	}
	return resp.Token
}

func TestLoginIssuesVerifiableToken(t *testing.T) {
	env := newTestEnv(t)

	tok := env.login(t, "maria.petrova", "swordfish")
	claims, err := env.tokens.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "maria.petrova" || claims.Role != "trainee" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestLoginRejectsBadCredentialsUniformly(t *testing.T) {
	env := newTestEnv(t)

	unknown := env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"username": "nobody", "password": "whatever",
	})
	wrong := env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"username": "maria.petrova", "password": "wrong",
	})
	for name, rec := range map[string]*httptest.ResponseRecorder{"unknown": unknown, "wrong": wrong} {
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s user: status = %d", name, rec.Code)
		}
	}
	if unknown.Body.String() != wrong.Body.String() {
		// Bodies must not differ except for the transaction id.
		var a, b map[string]any
		_ = json.Unmarshal(unknown.Body.Bytes(), &a)
		_ = json.Unmarshal(wrong.Body.Bytes(), &b)
		if a["error"] != b["error"] {
			t.Fatalf("error mismatch: %v vs %v", a["error"], b["error"])
		}
	}
}

func TestLoginLocksAfterRepeatedFailures(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 3; i++ {
		rec := env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
			"username": "maria.petrova", "password": "wrong",
		})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d", i+1, rec.Code)
		}
	}

	// Correct password while locked still fails, with the lock status.
	rec := env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"username": "maria.petrova", "password": "swordfish",
	})
	if rec.Code != http.StatusLocked {
		t.Fatalf("locked login status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	env := newTestEnv(t)
	tok := env.login(t, "maria.petrova", "swordfish")

	rec := env.do(t, http.MethodPost, "/v1/auth/logout", tok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout status = %d, body %s", rec.Code, rec.Body.String())
	}

	// The same token is now rejected before verification.
	rec = env.do(t, http.MethodPost, "/v1/auth/logout", tok, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("post-logout status = %d", rec.Code)
	}
}

func TestLogoutWithoutTokenIsUnauthorized(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/v1/auth/logout", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestChangePasswordOwnBecomesEffective(t *testing.T) {
	env := newTestEnv(t)
	tok := env.login(t, "maria.petrova", "swordfish")

	rec := env.do(t, http.MethodPost, "/v1/auth/password", tok, map[string]string{
		"username":     "maria.petrova",
		"old_password": "swordfish",
		"new_password": "hunter22",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("change status = %d, body %s", rec.Code, rec.Body.String())
	}

	old := env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"username": "maria.petrova", "password": "swordfish",
	})
	if old.Code != http.StatusUnauthorized {
		t.Fatalf("old password status = %d", old.Code)
	}
	env.login(t, "maria.petrova", "hunter22")
}

func TestChangePasswordForOtherTraineeForbidden(t *testing.T) {
	env := newTestEnv(t)
	hash, _ := auth.HashPassword("rowing99")
	env.creds.Put(auth.Credential{
		Username: "ivan.orlov", PasswordHash: hash, Role: auth.RoleTrainee, Active: true,
	})
	tok := env.login(t, "maria.petrova", "swordfish")

	rec := env.do(t, http.MethodPost, "/v1/auth/password", tok, map[string]string{
		"username":     "ivan.orlov",
		"old_password": "rowing99",
		"new_password": "stolen",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestFullResyncRequiresTrainerRole(t *testing.T) {
	env := newTestEnv(t)

	anon := env.do(t, http.MethodPost, "/v1/sync/full", "", nil)
	if anon.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d", anon.Code)
	}

	trainee := env.do(t, http.MethodPost, "/v1/sync/full", env.login(t, "maria.petrova", "swordfish"), nil)
	if trainee.Code != http.StatusForbidden {
		t.Fatalf("trainee status = %d", trainee.Code)
	}
}

func TestFullResyncReplaysLedger(t *testing.T) {
	env := newTestEnv(t)
	tok := env.login(t, "oleg.smirnov", "deadlift1")

	rec := env.do(t, http.MethodPost, "/v1/sync/full", tok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp syncResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 2 || resp.Sent != 2 || resp.Aborted {
		t.Fatalf("result = %+v", resp)
	}
	if resp.TransactionID == "" {
		t.Fatal("missing transaction id")
	}
	if env.wiper.calls != 1 {
		t.Fatalf("wiper calls = %d", env.wiper.calls)
	}
	if got := len(env.publisher.Events()); got != 2 {
		t.Fatalf("published events = %d", got)
	}
}

func TestFullResyncAbortsWhenClearAllFails(t *testing.T) {
	env := newTestEnv(t)
	env.wiper.err = context.DeadlineExceeded
	tok := env.login(t, "oleg.smirnov", "deadlift1")

	rec := env.do(t, http.MethodPost, "/v1/sync/full", tok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp syncResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Aborted || resp.Sent != 0 {
		t.Fatalf("result = %+v", resp)
	}
	if got := len(env.publisher.Events()); got != 0 {
		t.Fatalf("published events = %d, want 0", got)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["service"] != "gymcore-api" {
		t.Fatalf("service = %v", body["service"])
	}
}

func TestForeignTokenRejected(t *testing.T) {
	privPEM, pubPEM := testKeyPair(t)
	past := time.Now().Add(-2 * time.Hour)
	issuer, err := token.NewService(privPEM, pubPEM, token.WithClock(func() time.Time { return past }))
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	stale, _, err := issuer.Issue("maria.petrova", "trainee")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/v1/auth/logout", stale, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"watchgate/internal/billing"
	"watchgate/internal/config"
	"watchgate/internal/models"
	"watchgate/internal/utils"
)

const testOpsPassword = "ops-password-123"

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	hash, err := utils.HashPasswordArgon2(testOpsPassword)
	if err != nil {
		t.Fatalf("hash ops password: %v", err)
	}
	return &config.Config{
		HTTPPort:        "0",
		JWTSecret:       []byte("test-secret"),
		OpsPasswordHash: hash,
		StoreBackend:    "memory",
		Pricing: config.PricingConfig{
			MeteredCallCost:    dec("0.01"),
			RecurringFee:       dec("2.00"),
			FeeHeadroom:        dec("0.01"),
			MinStartBalance:    dec("5.00"),
			WarnStandardBelow:  dec("10.00"),
			WarnCriticalBelow:  dec("5.00"),
			EstimatedDailyBurn: dec("2.50"),
		},
		Scheduler: config.SchedulerConfig{
			FeePeriod:     time.Hour,
			CheckInterval: 10 * time.Millisecond,
		},
		Notify: config.NotifyConfig{Backend: "log"},
	}
}

type testAPI struct {
	mux   *http.ServeMux
	deps  *Dependencies
	token string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	mux, deps, err := NewRouter(testConfig(t))
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}
	t.Cleanup(deps.Shutdown)

	api := &testAPI{mux: mux, deps: deps}
	api.token = api.login(t, testOpsPassword, http.StatusOK)
	return api
}

func (a *testAPI) login(t *testing.T, password string, wantStatus int) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"password": password})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	a.mux.ServeHTTP(rec, req)
	if rec.Code != wantStatus {
		t.Fatalf("login status = %d, want %d: %s", rec.Code, wantStatus, rec.Body.String())
	}
	if wantStatus != http.StatusOK {
		return ""
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.Token
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+a.token)
	rec := httptest.NewRecorder()
	a.mux.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) deposit(t *testing.T, subscriberID, amount string) {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/v1/wallet/deposit", map[string]interface{}{
		"subscriber_id": subscriberID,
		"amount":        amount,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("deposit status = %d: %s", rec.Code, rec.Body.String())
	}
}

func (a *testAPI) watch(t *testing.T, subscriberID, topicID string) {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/v1/watch", map[string]string{
		"subscriber_id": subscriberID,
		"topic_id":      topicID,
		"question":      "will it happen",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("watch status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	api := newTestAPI(t)
	api.login(t, "wrong-password", http.StatusUnauthorized)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/wallet/balance?subscriber_id=alice", nil)
	rec := httptest.NewRecorder()
	api.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/wallet/balance?subscriber_id=alice", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	api.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 for garbage token", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	api.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestWalletDepositWithdraw(t *testing.T) {
	api := newTestAPI(t)
	api.deposit(t, "alice", "10.00")

	rec := api.do(t, http.MethodPost, "/v1/wallet/withdraw", map[string]interface{}{
		"subscriber_id": "alice",
		"amount":        "4.00",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("withdraw status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = api.do(t, http.MethodGet, "/v1/wallet/balance?subscriber_id=alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("balance status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Balance           decimal.Decimal `json:"balance"`
		EstimatedDaysLeft int             `json:"estimated_days_left"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode balance response: %v", err)
	}
	if !resp.Balance.Equal(dec("6.00")) {
		t.Errorf("balance = %s, want 6.00", resp.Balance)
	}
	if resp.EstimatedDaysLeft != 2 {
		t.Errorf("estimated_days_left = %d, want 2 at 2.50/day", resp.EstimatedDaysLeft)
	}

	// Overdrawing a withdrawal is refused outright.
	rec = api.do(t, http.MethodPost, "/v1/wallet/withdraw", map[string]interface{}{
		"subscriber_id": "alice",
		"amount":        "100.00",
	})
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("overdraw status = %d, want 402", rec.Code)
	}
}

func TestWatchRequiresMinimumBalance(t *testing.T) {
	api := newTestAPI(t)
	api.deposit(t, "alice", "4.99")

	rec := api.do(t, http.MethodPost, "/v1/watch", map[string]string{
		"subscriber_id": "alice",
		"topic_id":      "topic-1",
	})
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("watch status = %d, want 402: %s", rec.Code, rec.Body.String())
	}
}

func TestAuthorizeChargesMeteredCall(t *testing.T) {
	api := newTestAPI(t)
	api.deposit(t, "alice", "10.00")
	api.watch(t, "alice", "topic-1")

	rec := api.do(t, http.MethodPost, "/v1/authorize", map[string]string{
		"subscriber_id": "alice",
		"topic_id":      "topic-1",
		"kind":          string(models.OpAnalyze),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("authorize status = %d: %s", rec.Code, rec.Body.String())
	}
	var decision billing.Decision
	if err := json.Unmarshal(rec.Body.Bytes(), &decision); err != nil {
		t.Fatalf("decode decision: %v", err)
	}
	if !decision.Authorized {
		t.Fatal("expected grant")
	}
	if !decision.Balance.Equal(dec("9.99")) {
		t.Errorf("balance = %s, want 9.99", decision.Balance)
	}

	rec = api.do(t, http.MethodGet, "/v1/usage?subscriber_id=alice&topic_id=topic-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("usage status = %d: %s", rec.Code, rec.Body.String())
	}
	var usage struct {
		Summary models.UsageSummary `json:"summary"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &usage); err != nil {
		t.Fatalf("decode usage: %v", err)
	}
	if usage.Summary.RecordCount != 1 || !usage.Summary.TotalCost.Equal(dec("0.01")) {
		t.Errorf("usage = %d records totalling %s, want 1 totalling 0.01",
			usage.Summary.RecordCount, usage.Summary.TotalCost)
	}
}

func TestAuthorizeDenialPausesWatch(t *testing.T) {
	api := newTestAPI(t)
	api.deposit(t, "alice", "5.00")
	api.watch(t, "alice", "topic-1")

	// Drain the wallet below the metered price, then try to charge.
	rec := api.do(t, http.MethodPost, "/v1/wallet/withdraw", map[string]interface{}{
		"subscriber_id": "alice",
		"amount":        "5.00",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("withdraw status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = api.do(t, http.MethodPost, "/v1/authorize", map[string]string{
		"subscriber_id": "alice",
		"topic_id":      "topic-1",
		"kind":          string(models.OpDigest),
	})
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("authorize status = %d, want 402: %s", rec.Code, rec.Body.String())
	}
	var decision billing.Decision
	if err := json.Unmarshal(rec.Body.Bytes(), &decision); err != nil {
		t.Fatalf("decode decision: %v", err)
	}
	if !decision.Shortfall.Equal(dec("0.01")) {
		t.Errorf("shortfall = %s, want 0.01", decision.Shortfall)
	}
	if decision.RecordID != uuid.Nil {
		t.Errorf("record_id = %s, want zero id on denial", decision.RecordID)
	}

	rec = api.do(t, http.MethodGet, "/v1/subscriptions?subscriber_id=alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("subscriptions status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Subscriptions []*models.Subscription `json:"subscriptions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode subscriptions: %v", err)
	}
	if len(resp.Subscriptions) != 1 || resp.Subscriptions[0].State != models.StatePaused {
		t.Fatalf("expected one paused watch, got %+v", resp.Subscriptions)
	}

	// A charge against the paused watch is an invalid request, not a denial.
	rec = api.do(t, http.MethodPost, "/v1/authorize", map[string]string{
		"subscriber_id": "alice",
		"topic_id":      "topic-1",
		"kind":          string(models.OpDigest),
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("authorize on paused watch status = %d, want 409", rec.Code)
	}
}

func TestAuthorizeRejectsRecurringKind(t *testing.T) {
	api := newTestAPI(t)
	api.deposit(t, "alice", "10.00")
	api.watch(t, "alice", "topic-1")

	rec := api.do(t, http.MethodPost, "/v1/authorize", map[string]string{
		"subscriber_id": "alice",
		"topic_id":      "topic-1",
		"kind":          string(models.OpRecurringFee),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestWatchListsTopicsAndSchedulerTasks(t *testing.T) {
	api := newTestAPI(t)
	api.deposit(t, "alice", "10.00")
	api.watch(t, "alice", "topic-1")

	rec := api.do(t, http.MethodGet, "/v1/topics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("topics status = %d: %s", rec.Code, rec.Body.String())
	}
	var topics struct {
		Topics []*models.Topic `json:"topics"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &topics); err != nil {
		t.Fatalf("decode topics: %v", err)
	}
	if len(topics.Topics) != 1 || topics.Topics[0].ID != "topic-1" {
		t.Fatalf("expected topic-1 in catalog, got %+v", topics.Topics)
	}

	rec = api.do(t, http.MethodGet, "/v1/scheduler/topics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("scheduler topics status = %d: %s", rec.Code, rec.Body.String())
	}
	var tasks struct {
		Topics []string `json:"topics"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &tasks); err != nil {
		t.Fatalf("decode scheduler topics: %v", err)
	}
	if len(tasks.Topics) != 1 || tasks.Topics[0] != "topic-1" {
		t.Fatalf("expected fee task for topic-1, got %v", tasks.Topics)
	}
}

func TestUnwatchThenResumeIsGone(t *testing.T) {
	api := newTestAPI(t)
	api.deposit(t, "alice", "10.00")
	api.watch(t, "alice", "topic-1")

	rec := api.do(t, http.MethodPost, "/v1/unwatch", map[string]string{
		"subscriber_id": "alice",
		"topic_id":      "topic-1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("unwatch status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = api.do(t, http.MethodPost, "/v1/resume", map[string]string{
		"subscriber_id": "alice",
		"topic_id":      "topic-1",
	})
	if rec.Code != http.StatusGone {
		t.Fatalf("resume status = %d, want 410: %s", rec.Code, rec.Body.String())
	}
}

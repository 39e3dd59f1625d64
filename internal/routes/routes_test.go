package routes

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsheringkof667-bot/Bank/internal/config"
	"github.com/tsheringkof667-bot/Bank/internal/httpx"
	"github.com/tsheringkof667-bot/Bank/internal/logging"
	"github.com/tsheringkof667-bot/Bank/internal/middleware"
)

func testConfig() config.Config {
	return config.Config{
		AppName:            "bank-test",
		AppEnv:             "development",
		RateLimit:          "1000-M",
		IdempotencyTTL:     time.Minute,
		StoreBusyTimeout:   time.Second,
		BreakerMaxFailures: 5,
		BreakerOpenTimeout: time.Minute,
		DailyTransferLimit: decimal.NewFromInt(50000),
		WithdrawalLimit:    decimal.NewFromInt(20000),
		MaxAccountsPerUser: 3,
		DefaultCurrency:    "INR",
		LoanInterestRate:   decimal.RequireFromString("8.5"),
		EMIPenaltyRate:     decimal.NewFromInt(2),
		OverdueWindow:      30 * 24 * time.Hour,
	}
}

func newApp(t *testing.T) *fiber.App {
	t.Helper()
	logger := logging.Discard()
	app := fiber.New(fiber.Config{ErrorHandler: httpx.ErrorHandler(logger)})
	st, err := Setup(app, Deps{Cfg: testConfig(), Logger: logger, Registry: prometheus.NewRegistry()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return app
}

func call(t *testing.T, app *fiber.App, caller, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if caller != "" {
		req.Header.Set(middleware.CallerHeader, caller)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func TestTransferOverHTTP(t *testing.T) {
	app := newApp(t)

	status, alice := call(t, app, "alice", fiber.MethodPost, "/api/v1/accounts", `{"account_type":"savings"}`)
	require.Equal(t, fiber.StatusCreated, status)
	status, bob := call(t, app, "bob", fiber.MethodPost, "/api/v1/accounts", `{"account_type":"current"}`)
	require.Equal(t, fiber.StatusCreated, status)

	status, _ = call(t, app, "alice", fiber.MethodPost, "/api/v1/movements/deposit",
		`{"account_id":"`+alice["id"].(string)+`","amount":"10000"}`)
	require.Equal(t, fiber.StatusOK, status)

	status, body := call(t, app, "alice", fiber.MethodPost, "/api/v1/movements/transfer",
		`{"from_account_id":"`+alice["id"].(string)+`","to_account_number":"`+bob["account_number"].(string)+`","amount":"3000"}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, "7000.00", body["from"].(map[string]any)["current_balance"])

	status, body = call(t, app, "alice", fiber.MethodPost, "/api/v1/movements/transfer",
		`{"from_account_id":"`+alice["id"].(string)+`","to_account_number":"`+bob["account_number"].(string)+`","amount":"70000"}`)
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, "InsufficientFunds", body["error"].(map[string]any)["kind"])

	status, body = call(t, app, "bob", fiber.MethodGet, "/api/v1/accounts/"+bob["id"].(string)+"/balance", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "3000.00", body["current_balance"])

	status, _ = call(t, app, "bob", fiber.MethodGet, "/api/v1/accounts/"+alice["id"].(string)+"/balance", "")
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestAPIRequiresCaller(t *testing.T) {
	app := newApp(t)
	status, _ := call(t, app, "", fiber.MethodGet, "/api/v1/accounts", "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestHealthAndMetrics(t *testing.T) {
	app := newApp(t)

	status, body := call(t, app, "", fiber.MethodGet, "/healthz", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "memory", body["status"].(map[string]any)["postgres"])

	status, alice := call(t, app, "alice", fiber.MethodPost, "/api/v1/accounts", `{"account_type":"savings"}`)
	require.Equal(t, fiber.StatusCreated, status)
	call(t, app, "alice", fiber.MethodPost, "/api/v1/movements/deposit", `{"account_id":"`+alice["id"].(string)+`","amount":"5"}`)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `bank_movements_total{movement="deposit",outcome="completed"} 1`)
}

func TestLoanLifecycleOverHTTP(t *testing.T) {
	app := newApp(t)

	_, acct := call(t, app, "u1", fiber.MethodPost, "/api/v1/accounts", `{"account_type":"savings"}`)
	accountID := acct["id"].(string)
	call(t, app, "u1", fiber.MethodPost, "/api/v1/movements/deposit", `{"account_id":"`+accountID+`","amount":"100"}`)

	status, l := call(t, app, "u1", fiber.MethodPost, "/api/v1/loans",
		`{"account_id":"`+accountID+`","loan_type":"personal","amount":"1200","tenure_months":3}`)
	require.Equal(t, fiber.StatusCreated, status)
	loanID := l["id"].(string)

	status, _ = call(t, app, "officer", fiber.MethodPost, "/api/v1/loans/"+loanID+"/approve", "")
	require.Equal(t, fiber.StatusOK, status)
	status, body := call(t, app, "officer", fiber.MethodPost, "/api/v1/loans/"+loanID+"/disburse", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "active", body["loan"].(map[string]any)["status"])

	status, body = call(t, app, "u1", fiber.MethodPost, "/api/v1/loans/"+loanID+"/repay",
		`{"from_account_id":"`+accountID+`","amount":"1217.04"}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "closed", body["loan"].(map[string]any)["status"])

	status, body = call(t, app, "u1", fiber.MethodGet, "/api/v1/loans", "")
	require.Equal(t, fiber.StatusOK, status)
	summary := body["summary"].(map[string]any)
	assert.Equal(t, "1217.04", summary["total_paid"])
	assert.Equal(t, "0.00", summary["total_due"])
}

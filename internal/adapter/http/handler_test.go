package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ledgermemory "github.com/simaogato/bountyflow-backend/internal/adapter/ledger/memory"
	"github.com/simaogato/bountyflow-backend/internal/adapter/oracle/github"
	"github.com/simaogato/bountyflow-backend/internal/adapter/repository/memory"
	"github.com/simaogato/bountyflow-backend/internal/domain"
	"github.com/simaogato/bountyflow-backend/internal/logging"
	"github.com/simaogato/bountyflow-backend/internal/retry"
	"github.com/simaogato/bountyflow-backend/internal/usecase/account"
	"github.com/simaogato/bountyflow-backend/internal/usecase/dashboard"
	"github.com/simaogato/bountyflow-backend/internal/usecase/escrow"
	"github.com/simaogato/bountyflow-backend/internal/usecase/pool"
	"github.com/simaogato/bountyflow-backend/internal/usecase/reconcile"
	"github.com/simaogato/bountyflow-backend/internal/usecase/release"
)

const (
	testToken = "test-token-123"
	issueURL  = "https://github.com/acme/app/issues/12"
)

type httpEnv struct {
	router http.Handler
	ledger *ledgermemory.Ledger
}

func newHTTPEnv(t *testing.T) *httpEnv {
	t.Helper()

	store := memory.NewStore()
	accounts := memory.NewAccountRepository(store)
	bounties := memory.NewBountyRepository(store)
	ledger := ledgermemory.New()
	logger := logging.Discard()
	fast := retry.Policy{MaxAttempts: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}

	policy := escrow.DefaultPolicy()
	policy.Retry = fast
	reconciler := reconcile.NewReconciler(accounts, bounties, logger, nil)

	h := NewHandler(
		account.NewAccountService(accounts, ledger, logger),
		pool.NewPoolService(accounts, bounties, pool.Policy{}, logger, nil),
		escrow.NewCoordinator(accounts, bounties, ledger, reconciler, policy, logger, nil),
		release.NewGate(accounts, bounties, ledger, github.InlineOracle{}, reconciler, fast, logger, nil),
		dashboard.NewDashboardService(accounts, bounties),
		reconciler,
	)
	return &httpEnv{
		router: NewRouter(h, RouterOptions{APIToken: testToken, Logger: logger}),
		ledger: ledger,
	}
}

func (e *httpEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (e *httpEnv) register(t *testing.T, name string, balance int64) accountView {
	t.Helper()
	address := "r" + name
	credential := "s" + name
	e.ledger.Fund(address, credential, decimal.NewFromInt(1000))

	rec := e.do(t, http.MethodPost, "/api/v1/users", map[string]any{
		"username":        name,
		"address":         address,
		"credential":      credential,
		"initial_balance": decimal.NewFromInt(balance),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[accountView](t, rec)
}

func (e *httpEnv) open(t *testing.T, funder accountView, amount int64) bountyView {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/bounties", map[string]any{
		"funder_id":          funder.ID,
		"title":              "Fix login",
		"issue_url":          issueURL,
		"amount":             decimal.NewFromInt(amount),
		"time_limit_seconds": 3600,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[bountyView](t, rec)
}

func TestRouter_BountyLifecycle(t *testing.T) {
	env := newHTTPEnv(t)
	funder := env.register(t, "funder", 500)
	alice := env.register(t, "alice", 100)
	dev := env.register(t, "dev", 0)

	b := env.open(t, funder, 200)
	assert.Equal(t, "open", b.Status)

	rec := env.do(t, http.MethodPost, "/api/v1/bounties/"+b.ID.String()+"/boost", map[string]any{
		"contributor_id": alice.ID,
		"amount":         "50",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[bountyView](t, rec).Amount.Equal(decimal.NewFromInt(250)))

	rec = env.do(t, http.MethodGet, "/api/v1/bounties/contributor/"+alice.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]bountyView](t, rec), 1)

	rec = env.do(t, http.MethodPost, "/api/v1/bounties/"+b.ID.String()+"/accept", map[string]any{"developer_id": dev.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	accepted := decode[acceptView](t, rec)
	assert.Len(t, accepted.CompletionSecret, 32)
	assert.Len(t, accepted.Escrows, 2)
	assert.Equal(t, "accepted", accepted.Bounty.Status)
	assert.Equal(t, "issued", accepted.Bounty.EscrowStage)

	rec = env.do(t, http.MethodGet, "/api/v1/users/"+funder.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[accountView](t, rec).Balance.Equal(decimal.NewFromInt(300)))

	rec = env.do(t, http.MethodGet, "/api/v1/bounties/"+b.ID.String()+"/developer-secret?user_id="+dev.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, accepted.CompletionSecret, decode[map[string]string](t, rec)["completion_secret"])

	rec = env.do(t, http.MethodPost, "/api/v1/bounties/"+b.ID.String()+"/claim", map[string]any{
		"developer_id": dev.ID,
		"evidence":     fmt.Sprintf("Fixes #12 with token %s", accepted.CompletionSecret),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	claimed := decode[claimView](t, rec)
	assert.True(t, claimed.Amount.Equal(decimal.NewFromInt(250)))
	assert.Equal(t, "claimed", claimed.Bounty.Status)
	assert.Len(t, claimed.Finished, 2)
	assert.Empty(t, claimed.Failed)

	rec = env.do(t, http.MethodGet, "/api/v1/users/"+dev.ID.String()+"/statistics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[userStatsView](t, rec)
	assert.Equal(t, 1, stats.BountiesAccepted)
	assert.True(t, stats.TotalEarned.Equal(decimal.NewFromInt(250)))

	rec = env.do(t, http.MethodGet, "/api/v1/users/"+dev.ID.String()+"/entries?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]entryView](t, rec)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Amount.Equal(decimal.NewFromInt(250)))

	rec = env.do(t, http.MethodGet, "/api/v1/platform/statistics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	platform := decode[platformStatsView](t, rec)
	assert.Equal(t, 3, platform.TotalAccounts)
	assert.Equal(t, 1, platform.Bounties.StatusCounts["claimed"])

	rec = env.do(t, http.MethodPost, "/api/v1/platform/reconcile", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sweep := decode[map[string][]anomalyView](t, rec)
	assert.Empty(t, sweep["anomalies"])
}

func TestRouter_ListingFilters(t *testing.T) {
	env := newHTTPEnv(t)
	funder := env.register(t, "funder", 500)
	first := env.open(t, funder, 20)
	env.open(t, funder, 100)

	rec := env.do(t, http.MethodPost, "/api/v1/bounties/"+first.ID.String()+"/cancel", map[string]any{"requested_by": funder.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	tests := []struct {
		name string
		path string
		want int
	}{
		{name: "Hides Cancelled", path: "/api/v1/bounties", want: 1},
		{name: "Include Cancelled", path: "/api/v1/bounties?include_cancelled=true", want: 2},
		{name: "By Status", path: "/api/v1/bounties/status/cancelled", want: 1},
		{name: "By Funder", path: "/api/v1/bounties/funder/" + funder.ID.String(), want: 1},
		{name: "Min Amount", path: "/api/v1/bounties?min_amount=50&include_cancelled=true", want: 1},
		{name: "Search By Name", path: "/api/v1/bounties/search?name=LOGIN", want: 1},
		{name: "Search By Issue", path: "/api/v1/bounties/search?github_url=acme/other", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, tt.path, nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Len(t, decode[[]bountyView](t, rec), tt.want)
		})
	}
}

func TestRouter_ErrorResponses(t *testing.T) {
	env := newHTTPEnv(t)
	funder := env.register(t, "funder", 500)
	dev := env.register(t, "dev", 0)
	b := env.open(t, funder, 100)

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{
			name:       "Unknown Bounty",
			method:     http.MethodGet,
			path:       "/api/v1/bounties/" + uuid.NewString(),
			wantStatus: http.StatusNotFound,
			wantCode:   "not_found",
		},
		{
			name:       "Malformed ID",
			method:     http.MethodGet,
			path:       "/api/v1/users/not-a-uuid",
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_argument",
		},
		{
			name:       "Malformed Limit",
			method:     http.MethodGet,
			path:       "/api/v1/bounties?limit=ten",
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_argument",
		},
		{
			name:       "Malformed Body",
			method:     http.MethodPost,
			path:       "/api/v1/bounties",
			body:       "not an object",
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_json",
		},
		{
			name:       "Cancel By Stranger",
			method:     http.MethodPost,
			path:       "/api/v1/bounties/" + b.ID.String() + "/cancel",
			body:       map[string]any{"requested_by": dev.ID},
			wantStatus: http.StatusForbidden,
			wantCode:   "forbidden",
		},
		{
			name:       "Claim Before Accept",
			method:     http.MethodPost,
			path:       "/api/v1/bounties/" + b.ID.String() + "/claim",
			body:       map[string]any{"developer_id": dev.ID, "evidence": "Fixes #12"},
			wantStatus: http.StatusConflict,
			wantCode:   "invalid_transition",
		},
		{
			name:       "Overdrawn Pledge",
			method:     http.MethodPost,
			path:       "/api/v1/bounties",
			body:       map[string]any{"funder_id": dev.ID, "title": "Broke", "issue_url": issueURL, "amount": "10"},
			wantStatus: http.StatusConflict,
			wantCode:   "insufficient_funds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			resp := decode[errorResponse](t, rec)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.NotEmpty(t, resp.RequestID)
		})
	}
}

func TestRouter_EscrowFailureWithoutProgress(t *testing.T) {
	tests := []struct {
		name       string
		run        func(t *testing.T, env *httpEnv, b bountyView, dev accountView) *httptest.ResponseRecorder
		wantStatus int
		wantCode   string
		wantPhase  string
		wantStage  string
	}{
		{
			name: "accept rejected by the ledger",
			run: func(t *testing.T, env *httpEnv, b bountyView, dev accountView) *httptest.ResponseRecorder {
				env.ledger.FailNext("create", &domain.LedgerError{Op: "escrow_create", Code: "tecUNFUNDED", Kind: domain.LedgerUnfunded})
				return env.do(t, http.MethodPost, "/api/v1/bounties/"+b.ID.String()+"/accept", map[string]any{"developer_id": dev.ID})
			},
			wantStatus: http.StatusBadGateway,
			wantCode:   "ledger_rejected",
			wantPhase:  "create",
			wantStage:  "issuing",
		},
		{
			name: "claim with ledger unavailable",
			run: func(t *testing.T, env *httpEnv, b bountyView, dev accountView) *httptest.ResponseRecorder {
				rec := env.do(t, http.MethodPost, "/api/v1/bounties/"+b.ID.String()+"/accept", map[string]any{"developer_id": dev.ID})
				require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
				accepted := decode[acceptView](t, rec)

				for i := 0; i < 2; i++ {
					env.ledger.FailNext("finish", &domain.LedgerError{Op: "escrow_finish", Code: "terQUEUED", Kind: domain.LedgerTransient})
				}
				return env.do(t, http.MethodPost, "/api/v1/bounties/"+b.ID.String()+"/claim", map[string]any{
					"developer_id": dev.ID,
					"evidence":     fmt.Sprintf("Fixes #12 with token %s", accepted.CompletionSecret),
				})
			},
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "ledger_unavailable",
			wantPhase:  "finish",
			wantStage:  "issued",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newHTTPEnv(t)
			funder := env.register(t, "funder", 500)
			dev := env.register(t, "dev", 0)
			b := env.open(t, funder, 100)

			rec := tt.run(t, env, b, dev)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			partial := decode[partialView](t, rec)
			assert.Equal(t, tt.wantCode, partial.Code)
			assert.Equal(t, tt.wantPhase, partial.Phase)
			assert.Equal(t, b.ID, partial.BountyID)
			assert.Len(t, partial.Failed, 1)
			assert.Empty(t, partial.Succeeded)

			rec = env.do(t, http.MethodGet, "/api/v1/bounties/"+b.ID.String(), nil)
			require.Equal(t, http.StatusOK, rec.Code)
			current := decode[bountyView](t, rec)
			assert.Equal(t, "accepted", current.Status)
			assert.Equal(t, tt.wantStage, current.EscrowStage)
		})
	}
}

func TestRouter_Authentication(t *testing.T) {
	env := newHTTPEnv(t)

	tests := []struct {
		name       string
		path       string
		header     string
		wantStatus int
	}{
		{name: "Missing Token", path: "/api/v1/users", wantStatus: http.StatusUnauthorized},
		{name: "Wrong Token", path: "/api/v1/users", header: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "Valid Token", path: "/api/v1/users", header: "Bearer " + testToken, wantStatus: http.StatusOK},
		{name: "Health Is Public", path: "/healthz", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			env.router.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestMapDomainError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "Not Found", err: fmt.Errorf("bounty: %w", domain.ErrNotFound), wantStatus: http.StatusNotFound},
		{name: "Invalid Argument", err: domain.ErrInvalidArgument, wantStatus: http.StatusBadRequest},
		{name: "Evidence Rejected", err: domain.ErrEvidenceRejected, wantStatus: http.StatusBadRequest},
		{name: "Forbidden", err: domain.ErrForbidden, wantStatus: http.StatusForbidden},
		{name: "Pool Mismatch", err: domain.ErrPoolMismatch, wantStatus: http.StatusConflict},
		{name: "Ledger Transient", err: domain.ErrLedgerTransient, wantStatus: http.StatusServiceUnavailable},
		{name: "Ledger Rejected", err: domain.ErrLedgerRejected, wantStatus: http.StatusBadGateway},
		{name: "Unknown", err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := mapDomainError(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.False(t, strings.Contains(code, " "))
		})
	}
}

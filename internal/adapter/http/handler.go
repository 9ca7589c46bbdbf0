package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/bountyflow-backend/internal/domain"
	"github.com/simaogato/bountyflow-backend/internal/usecase/account"
	"github.com/simaogato/bountyflow-backend/internal/usecase/dashboard"
	"github.com/simaogato/bountyflow-backend/internal/usecase/escrow"
	"github.com/simaogato/bountyflow-backend/internal/usecase/pool"
	"github.com/simaogato/bountyflow-backend/internal/usecase/reconcile"
	"github.com/simaogato/bountyflow-backend/internal/usecase/release"
)

// Handler serves the REST API over the use case services
type Handler struct {
	Accounts    *account.AccountService
	Pool        *pool.PoolService
	Coordinator *escrow.Coordinator
	Gate        *release.Gate
	Dashboard   *dashboard.DashboardService
	Reconciler  *reconcile.Reconciler
}

// NewHandler creates a new Handler
func NewHandler(
	accounts *account.AccountService,
	poolService *pool.PoolService,
	coordinator *escrow.Coordinator,
	gate *release.Gate,
	dashboardService *dashboard.DashboardService,
	reconciler *reconcile.Reconciler,
) *Handler {
	return &Handler{
		Accounts:    accounts,
		Pool:        poolService,
		Coordinator: coordinator,
		Gate:        gate,
		Dashboard:   dashboardService,
		Reconciler:  reconciler,
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_argument", fmt.Sprintf("invalid %s: %v", name, err))
		return uuid.Nil, false
	}
	return id, true
}

type registerRequest struct {
	Username       string          `json:"username"`
	Address        string          `json:"address"`
	Credential     string          `json:"credential"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

func (h *Handler) registerAccount(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	acct, err := h.Accounts.Register(r.Context(), account.RegisterInput{
		Username:       req.Username,
		Address:        req.Address,
		Credential:     req.Credential,
		InitialBalance: req.InitialBalance,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, accountFromDomain(acct))
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Accounts.List(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	out := make([]accountView, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, accountFromDomain(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	acct, err := h.Accounts.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accountFromDomain(acct))
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	entries, err := h.Accounts.Entries(r.Context(), id, limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	out := make([]entryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryFromDomain(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) setBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Balance decimal.Decimal `json:"balance"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	acct, err := h.Accounts.SetBalance(r.Context(), id, req.Balance)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accountFromDomain(acct))
}

func (h *Handler) deposit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	acct, err := h.Accounts.Deposit(r.Context(), id, req.Amount)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accountFromDomain(acct))
}

func (h *Handler) syncBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	acct, err := h.Accounts.SyncBalance(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accountFromDomain(acct))
}

func (h *Handler) userStatistics(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	stats, err := h.Dashboard.GetUserStats(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userStatsView{
		AccountID:        stats.AccountID,
		BountiesCreated:  stats.BountiesCreated,
		BountiesAccepted: stats.BountiesAccepted,
		TotalFunded:      stats.TotalFunded,
		TotalEarned:      stats.TotalEarned,
	})
}

type openRequest struct {
	FunderID         uuid.UUID       `json:"funder_id"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	IssueURL         string          `json:"issue_url"`
	Amount           decimal.Decimal `json:"amount"`
	TimeLimitSeconds int64           `json:"time_limit_seconds"`
}

func (h *Handler) openBounty(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	bounty, err := h.Pool.Open(r.Context(), pool.OpenInput{
		FunderID:    req.FunderID,
		Title:       req.Title,
		Description: req.Description,
		IssueURL:    req.IssueURL,
		Amount:      req.Amount,
		TimeLimit:   time.Duration(req.TimeLimitSeconds) * time.Second,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, bountyFromDomain(bounty))
}

func (h *Handler) listBounties(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.writeBounties(w, r, filter)
}

// searchBounties matches by title (name) or issue URL (github_url)
func (h *Handler) searchBounties(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if name := r.URL.Query().Get("name"); name != "" {
		filter.TitleQuery = name
	}
	if issue := r.URL.Query().Get("github_url"); issue != "" {
		filter.IssueURL = issue
	}
	h.writeBounties(w, r, filter)
}

func (h *Handler) bountiesByStatus(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	filter.Status = domain.BountyStatus(chi.URLParam(r, "status"))
	h.writeBounties(w, r, filter)
}

// bountiesByAccount lists bounties where the path account plays role (funder, developer or contributor)
func (h *Handler) bountiesByAccount(role string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		filter, err := filterFromQuery(r)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		switch role {
		case "funder":
			filter.FunderID = &id
		case "developer":
			filter.DeveloperID = &id
		default:
			filter.ContributorID = &id
		}
		h.writeBounties(w, r, filter)
	}
}

func (h *Handler) writeBounties(w http.ResponseWriter, r *http.Request, filter domain.BountyFilter) {
	bounties, err := h.Pool.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bountiesFromDomain(bounties))
}

func (h *Handler) getBounty(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	bounty, err := h.Pool.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bountyFromDomain(bounty))
}

func (h *Handler) listContributions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	contributions, err := h.Pool.Contributions(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	out := make([]contributionView, 0, len(contributions))
	for _, c := range contributions {
		out = append(out, contributionFromDomain(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) boostBounty(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		ContributorID uuid.UUID       `json:"contributor_id"`
		Amount        decimal.Decimal `json:"amount"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	bounty, err := h.Pool.Boost(r.Context(), pool.BoostInput{
		BountyID:      id,
		ContributorID: req.ContributorID,
		Amount:        req.Amount,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bountyFromDomain(bounty))
}

func (h *Handler) cancelBounty(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		RequestedBy uuid.UUID `json:"requested_by"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	bounty, err := h.Pool.Cancel(r.Context(), id, req.RequestedBy)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bountyFromDomain(bounty))
}

func (h *Handler) acceptBounty(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		DeveloperID uuid.UUID `json:"developer_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.Coordinator.Accept(r.Context(), escrow.AcceptInput{BountyID: id, DeveloperID: req.DeveloperID})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acceptFromResult(result))
}

func (h *Handler) resumeAcceptance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	result, err := h.Coordinator.Resume(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acceptFromResult(result))
}

func (h *Handler) claimBounty(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		DeveloperID uuid.UUID `json:"developer_id"`
		Evidence    string    `json:"evidence"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.Gate.Claim(r.Context(), release.ClaimInput{
		BountyID:    id,
		DeveloperID: req.DeveloperID,
		Evidence:    strings.TrimSpace(req.Evidence),
	})
	switch {
	case result == nil:
		writeDomainError(w, r, err)
	case err != nil:
		// Settled, but some escrows are still on the ledger
		writeJSON(w, http.StatusMultiStatus, claimFromResult(result, err))
	default:
		writeJSON(w, http.StatusOK, claimFromResult(result, nil))
	}
}

func (h *Handler) developerSecret(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_argument", fmt.Sprintf("invalid user_id: %v", err))
		return
	}

	secret, err := h.Gate.RevealSecret(r.Context(), id, userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"completion_secret": secret})
}

func (h *Handler) recoverRelease(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	bounty, err := h.Gate.Recover(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bountyFromDomain(bounty))
}

func (h *Handler) bountyStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Dashboard.GetBountyStats(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bountyStatsFromDomain(*stats))
}

func (h *Handler) platformStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Dashboard.GetPlatformStats(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, platformStatsView{
		TotalAccounts:  stats.TotalAccounts,
		Bounties:       bountyStatsFromDomain(stats.Bounties),
		OpenAmount:     stats.OpenAmount,
		ClaimedAmount:  stats.ClaimedAmount,
		RecentBounties: stats.RecentBounties,
		TotalFunded:    stats.TotalFunded,
		TotalEarned:    stats.TotalEarned,
	})
}

// reconcile sweeps accepted and claimed bounties and returns every anomaly found
func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	anomalies, err := h.Reconciler.Sweep(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"anomalies": anomaliesFromDomain(anomalies),
	})
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", domain.ErrInvalidArgument, key)
	}
	return v, nil
}

func queryID(r *http.Request, key string) (*uuid.UUID, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidArgument, key, err)
	}
	return &id, nil
}

func queryDecimal(r *http.Request, key string) (*decimal.Decimal, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidArgument, key, err)
	}
	return &v, nil
}

// filterFromQuery reads the common listing parameters
func filterFromQuery(r *http.Request) (domain.BountyFilter, error) {
	q := r.URL.Query()
	filter := domain.BountyFilter{
		Status:     domain.BountyStatus(q.Get("status")),
		TitleQuery: q.Get("q"),
		IssueURL:   q.Get("issue_url"),
	}

	var err error
	if raw := q.Get("include_cancelled"); raw != "" {
		if filter.IncludeCancelled, err = strconv.ParseBool(raw); err != nil {
			return filter, fmt.Errorf("%w: include_cancelled must be a boolean", domain.ErrInvalidArgument)
		}
	}
	if filter.FunderID, err = queryID(r, "funder_id"); err != nil {
		return filter, err
	}
	if filter.DeveloperID, err = queryID(r, "developer_id"); err != nil {
		return filter, err
	}
	if filter.ContributorID, err = queryID(r, "contributor_id"); err != nil {
		return filter, err
	}
	if filter.MinAmount, err = queryDecimal(r, "min_amount"); err != nil {
		return filter, err
	}
	if filter.MaxAmount, err = queryDecimal(r, "max_amount"); err != nil {
		return filter, err
	}
	if filter.Limit, err = queryInt(r, "limit"); err != nil {
		return filter, err
	}
	if filter.Offset, err = queryInt(r, "offset"); err != nil {
		return filter, err
	}
	return filter, nil
}

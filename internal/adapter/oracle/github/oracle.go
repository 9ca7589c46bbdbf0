// Package github verifies completion evidence against GitHub pull requests.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/simaogato/bountyflow-backend/internal/domain"
)

var (
	issueURLPattern  = regexp.MustCompile(`github\.com/([^/]+)/([^/]+)/issues/(\d+)`)
	pullURLPattern   = regexp.MustCompile(`github\.com/([^/]+)/([^/]+)/pull/(\d+)`)
	referencePattern = regexp.MustCompile(`(?i)(?:bounty-x|#)(\d+)\b`)
)

// Ref identifies an issue or pull request
type Ref struct {
	Owner  string
	Repo   string
	Number string
}

// SameRepo reports whether both refs point into the same repository
func (r Ref) SameRepo(other Ref) bool {
	return strings.EqualFold(r.Owner, other.Owner) && strings.EqualFold(r.Repo, other.Repo)
}

// ParseIssueURL extracts the issue reference from a github.com issue URL
func ParseIssueURL(url string) (Ref, bool) {
	return parseRef(issueURLPattern, url)
}

// ParsePullURL extracts the pull request reference from a github.com pull URL
func ParsePullURL(url string) (Ref, bool) {
	return parseRef(pullURLPattern, url)
}

func parseRef(pattern *regexp.Regexp, url string) (Ref, bool) {
	m := pattern.FindStringSubmatch(url)
	if m == nil {
		return Ref{}, false
	}
	return Ref{Owner: m[1], Repo: m[2], Number: m[3]}, true
}

// MatchesEvidence reports whether title or body references the issue and contains the secret verbatim.
// Accepted references are "#N" (which covers "closes #N" and friends) and "bounty-xN".
func MatchesEvidence(title, body, issueNumber, secret string) bool {
	if issueNumber == "" || secret == "" {
		return false
	}

	if !referencesIssue(title, issueNumber) && !referencesIssue(body, issueNumber) {
		return false
	}

	return strings.Contains(title, secret) || strings.Contains(body, secret)
}

func referencesIssue(text, issueNumber string) bool {
	for _, m := range referencePattern.FindAllStringSubmatch(text, -1) {
		if m[1] == issueNumber {
			return true
		}
	}
	return false
}

// Options configures the oracle
type Options struct {
	APIBase           string
	Token             string
	Timeout           time.Duration
	RequestsPerMinute float64
	HTTPClient        *http.Client
}

// Oracle implements domain.EvidenceOracle by reading merged pull requests
type Oracle struct {
	apiBase string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

// New creates a GitHub oracle
func New(opts Options) *Oracle {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if opts.RequestsPerMinute > 0 {
		limit = rate.Every(time.Duration(float64(time.Minute) / opts.RequestsPerMinute))
	}

	apiBase := strings.TrimRight(opts.APIBase, "/")
	if apiBase == "" {
		apiBase = "https://api.github.com"
	}

	return &Oracle{
		apiBase: apiBase,
		token:   opts.Token,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, 1),
	}
}

type pullRequest struct {
	Title    string  `json:"title"`
	Body     string  `json:"body"`
	Merged   bool    `json:"merged"`
	MergedAt *string `json:"merged_at"`
}

// Check fetches the pull request at evidenceRef and verifies it references expectedItemRef,
// is merged, and carries requiredSecret. Unreachable GitHub is reported as an error, not a rejection.
func (o *Oracle) Check(ctx context.Context, evidenceRef, expectedItemRef, requiredSecret string) (bool, error) {
	issue, ok := ParseIssueURL(expectedItemRef)
	if !ok {
		return false, fmt.Errorf("%w: %q is not a GitHub issue URL", domain.ErrInvalidArgument, expectedItemRef)
	}
	pull, ok := ParsePullURL(evidenceRef)
	if !ok || !pull.SameRepo(issue) {
		return false, nil
	}

	pr, err := o.fetchPull(ctx, pull)
	if err != nil {
		return false, err
	}
	if pr == nil {
		return false, nil
	}

	if !pr.Merged && pr.MergedAt == nil {
		return false, nil
	}

	return MatchesEvidence(pr.Title, pr.Body, issue.Number, requiredSecret), nil
}

func (o *Oracle) fetchPull(ctx context.Context, ref Ref) (*pullRequest, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/repos/%s/%s/pulls/%s", o.apiBase, ref.Owner, ref.Repo, ref.Number)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if strings.TrimSpace(o.token) != "" {
		req.Header.Set("Authorization", "Bearer "+o.token)
	}

	resp, err := o.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("github pulls %s/%s#%s failed: status=%d body=%s",
			ref.Owner, ref.Repo, ref.Number, resp.StatusCode, string(body))
	}

	var pr pullRequest
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("failed to decode pull request: %w", err)
	}
	return &pr, nil
}

// InlineOracle treats the evidence itself as the pull request text. Used when GitHub is not reachable in dev.
type InlineOracle struct{}

// Check verifies the inline evidence text
func (InlineOracle) Check(ctx context.Context, evidenceRef, expectedItemRef, requiredSecret string) (bool, error) {
	issue, ok := ParseIssueURL(expectedItemRef)
	if !ok {
		return false, fmt.Errorf("%w: %q is not a GitHub issue URL", domain.ErrInvalidArgument, expectedItemRef)
	}
	return MatchesEvidence(evidenceRef, "", issue.Number, requiredSecret), nil
}

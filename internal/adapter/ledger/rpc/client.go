// Package rpc talks to an XRP Ledger style JSON-RPC endpoint.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/simaogato/bountyflow-backend/internal/domain"
	"github.com/simaogato/bountyflow-backend/internal/metrics"
)

// rippleEpochOffset is the number of seconds between the Unix and ledger epochs
const rippleEpochOffset = 946684800

// dropsPerUnit converts whole units to the ledger's integer drops
const dropsPerUnit = 6

// Options configures the client
type Options struct {
	URL               string
	AuthToken         string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	Metrics           *metrics.Metrics
	HTTPClient        *http.Client
}

// Client implements domain.LedgerService over JSON-RPC
type Client struct {
	baseURL   string
	authToken string
	http      *http.Client
	limiter   *rate.Limiter
	metrics   *metrics.Metrics
	nextID    atomic.Int64
}

// NewClient creates a ledger client
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}

	return &Client{
		baseURL:   opts.URL,
		authToken: opts.AuthToken,
		http:      httpClient,
		limiter:   rate.NewLimiter(limit, burst),
		metrics:   opts.Metrics,
	}
}

type jsonRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      int64       `json:"id"`
}

type jsonRPCResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      int64            `json:"id"`
	Result  json.RawMessage  `json:"result"`
	Error   *jsonRPCErrorObj `json:"error"`
}

type jsonRPCErrorObj struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// resultStatus is embedded in every ledger result
type resultStatus struct {
	Status       string `json:"status"`
	Error        string `json:"error"`
	ErrorMessage string `json:"error_message"`
}

type accountInfoResult struct {
	resultStatus
	AccountData struct {
		Balance  string `json:"Balance"`
		Sequence uint32 `json:"Sequence"`
	} `json:"account_data"`
}

type submitResult struct {
	resultStatus
	EngineResult        string `json:"engine_result"`
	EngineResultMessage string `json:"engine_result_message"`
	TxJSON              struct {
		Hash     string `json:"hash"`
		Sequence uint32 `json:"Sequence"`
	} `json:"tx_json"`
}

// AccountBalance returns the validated ledger balance of address
func (c *Client) AccountBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	params := []interface{}{map[string]interface{}{
		"account":      address,
		"ledger_index": "validated",
	}}

	var result accountInfoResult
	if err := c.call(ctx, "account_info", params, &result); err != nil {
		return decimal.Zero, err
	}
	if err := result.check("account_info"); err != nil {
		return decimal.Zero, err
	}

	drops, err := decimal.NewFromString(result.AccountData.Balance)
	if err != nil {
		return decimal.Zero, &domain.LedgerError{Op: "account_info", Kind: domain.LedgerMalformed,
			Err: fmt.Errorf("unparseable balance %q: %w", result.AccountData.Balance, err)}
	}
	return drops.Shift(-dropsPerUnit), nil
}

// CreateConditionalTransfer submits an EscrowCreate transaction
func (c *Client) CreateConditionalTransfer(ctx context.Context, req domain.ConditionalTransferRequest) (*domain.ConditionalTransfer, error) {
	drops, err := toDrops(req.Amount)
	if err != nil {
		return nil, &domain.LedgerError{Op: "escrow_create", Code: "temBAD_AMOUNT", Kind: domain.LedgerMalformed, Err: err}
	}

	tx := map[string]interface{}{
		"TransactionType": "EscrowCreate",
		"Account":         req.SourceAddress,
		"Destination":     req.DestinationAddress,
		"Amount":          drops,
		"Condition":       strings.ToUpper(req.Condition),
		"CancelAfter":     toRippleTime(req.CancelAfter),
	}

	result, err := c.submit(ctx, "escrow_create", req.SourceCredential, tx)
	if err != nil {
		return nil, err
	}
	return &domain.ConditionalTransfer{TransferID: result.TxJSON.Hash, Sequence: result.TxJSON.Sequence}, nil
}

// FinishConditionalTransfer submits an EscrowFinish transaction signed by the escrow owner
func (c *Client) FinishConditionalTransfer(ctx context.Context, req domain.FinishTransferRequest) (*domain.TransferReceipt, error) {
	tx := map[string]interface{}{
		"TransactionType": "EscrowFinish",
		"Account":         req.OwnerAddress,
		"Owner":           req.OwnerAddress,
		"OfferSequence":   req.Sequence,
		"Condition":       strings.ToUpper(req.Condition),
		"Fulfillment":     strings.ToUpper(req.Fulfillment),
	}

	result, err := c.submit(ctx, "escrow_finish", req.FinisherCredential, tx)
	if err != nil {
		return nil, err
	}
	return &domain.TransferReceipt{TransferID: result.TxJSON.Hash}, nil
}

func (c *Client) submit(ctx context.Context, op, secret string, tx map[string]interface{}) (*submitResult, error) {
	params := []interface{}{map[string]interface{}{
		"secret":  secret,
		"tx_json": tx,
	}}

	var result submitResult
	if err := c.call(ctx, "submit", params, &result); err != nil {
		return nil, err
	}
	if err := result.check(op); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(result.EngineResult, "tes") {
		return nil, classifyEngineResult(op, result.EngineResult, result.EngineResultMessage)
	}
	return &result, nil
}

func (c *Client) call(ctx context.Context, method string, params interface{}, out interface{}) (err error) {
	started := time.Now()
	defer func() { c.metrics.ObserveLedgerCall(method, started, err) }()

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	id := c.nextID.Add(1)
	bodyStruct := jsonRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      id,
	}
	buf, err := json.Marshal(bodyStruct)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.authToken) != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &domain.LedgerError{Op: method, Kind: domain.LedgerTransient, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		kind := domain.LedgerRejectedOther
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			kind = domain.LedgerTransient
		}
		return &domain.LedgerError{Op: method, Code: fmt.Sprintf("http_%d", resp.StatusCode), Kind: kind,
			Err: fmt.Errorf("ledger rpc %s failed: status=%d body=%s", method, resp.StatusCode, string(body))}
	}
	var rpcResp jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return &domain.LedgerError{Op: method, Kind: domain.LedgerTransient, Err: fmt.Errorf("decode response: %w", err)}
	}
	if rpcResp.Error != nil {
		return &domain.LedgerError{Op: method, Code: fmt.Sprintf("rpc_%d", rpcResp.Error.Code), Kind: domain.LedgerRejectedOther,
			Err: errors.New(rpcResp.Error.Message)}
	}
	if len(rpcResp.Result) == 0 {
		return &domain.LedgerError{Op: method, Kind: domain.LedgerTransient, Err: errors.New("ledger rpc returned empty result")}
	}
	return json.Unmarshal(rpcResp.Result, out)
}

// check turns an error status in the result body into a LedgerError
func (s resultStatus) check(op string) error {
	if s.Status != "error" {
		return nil
	}
	kind := domain.LedgerRejectedOther
	switch s.Error {
	case "tooBusy", "noNetwork", "noCurrent", "noClosed", "slowDown", "amendmentBlocked":
		kind = domain.LedgerTransient
	case "actNotFound", "actMalformed", "invalidParams", "badSeed", "badSecret":
		kind = domain.LedgerMalformed
	}
	msg := s.ErrorMessage
	if msg == "" {
		msg = s.Error
	}
	return &domain.LedgerError{Op: op, Code: s.Error, Kind: kind, Err: errors.New(msg)}
}

// classifyEngineResult maps a non-success engine result to an error kind.
// tem codes are malformed, ter and tel codes may succeed on retry, tec and tef codes are final.
func classifyEngineResult(op, code, message string) error {
	kind := domain.LedgerRejectedOther
	switch {
	case code == "tecUNFUNDED" || code == "tecUNFUNDED_PAYMENT" || code == "tecINSUFFICIENT_RESERVE":
		kind = domain.LedgerUnfunded
	case code == "tecNO_PERMISSION" || code == "tecNO_AUTH" || strings.HasPrefix(code, "tefBAD_AUTH"):
		kind = domain.LedgerPermissionDenied
	case strings.HasPrefix(code, "tem"):
		kind = domain.LedgerMalformed
	case strings.HasPrefix(code, "ter") || strings.HasPrefix(code, "tel"):
		kind = domain.LedgerTransient
	}
	var err error
	if message != "" {
		err = errors.New(message)
	}
	return &domain.LedgerError{Op: op, Code: code, Kind: kind, Err: err}
}

func toDrops(amount decimal.Decimal) (string, error) {
	drops := amount.Shift(dropsPerUnit)
	if !drops.IsInteger() || !drops.IsPositive() {
		return "", fmt.Errorf("amount %s is not a positive whole number of drops", amount)
	}
	return drops.StringFixed(0), nil
}

func toRippleTime(t time.Time) int64 {
	return t.Unix() - rippleEpochOffset
}

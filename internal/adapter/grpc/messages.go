package grpc

import (
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Account is the transport view of an account. The signing credential is never included.
type Account struct {
	Id               string                 `json:"id"`
	Username         string                 `json:"username"`
	Address          string                 `json:"address"`
	Balance          string                 `json:"balance"`
	BountiesCreated  int32                  `json:"bounties_created"`
	BountiesAccepted int32                  `json:"bounties_accepted"`
	TotalFunded      string                 `json:"total_funded"`
	TotalEarned      string                 `json:"total_earned"`
	CreatedAt        *timestamppb.Timestamp `json:"created_at,omitempty"`
}

// Bounty is the transport view of a bounty. Fulfillment and completion secret are never included.
type Bounty struct {
	Id               string                 `json:"id"`
	FunderId         string                 `json:"funder_id"`
	FunderAddress    string                 `json:"funder_address"`
	Title            string                 `json:"title"`
	Description      string                 `json:"description"`
	IssueUrl         string                 `json:"issue_url"`
	Amount           string                 `json:"amount"`
	TimeLimitSeconds int64                  `json:"time_limit_seconds"`
	Status           string                 `json:"status"`
	EscrowStage      string                 `json:"escrow_stage"`
	DeveloperId      string                 `json:"developer_id,omitempty"`
	DeveloperAddress string                 `json:"developer_address,omitempty"`
	Condition        string                 `json:"condition,omitempty"`
	ClaimedAmount    string                 `json:"claimed_amount"`
	CancelAfter      *timestamppb.Timestamp `json:"cancel_after,omitempty"`
	CreatedAt        *timestamppb.Timestamp `json:"created_at,omitempty"`
	UpdatedAt        *timestamppb.Timestamp `json:"updated_at,omitempty"`
	AcceptedAt       *timestamppb.Timestamp `json:"accepted_at,omitempty"`
	ClaimedAt        *timestamppb.Timestamp `json:"claimed_at,omitempty"`
}

// Contribution is one pledge with its ledger escrow, if any
type Contribution struct {
	Id                 string        `json:"id"`
	BountyId           string        `json:"bounty_id"`
	ContributorId      string        `json:"contributor_id"`
	ContributorAddress string        `json:"contributor_address"`
	Amount             string        `json:"amount"`
	Position           int32         `json:"position"`
	Escrow             *EscrowRecord `json:"escrow,omitempty"`
}

type EscrowRecord struct {
	TransferId       string                 `json:"transfer_id"`
	Sequence         uint32                 `json:"sequence"`
	Status           string                 `json:"status"`
	Debited          bool                   `json:"debited"`
	FinishTransferId string                 `json:"finish_transfer_id,omitempty"`
	FinishedAt       *timestamppb.Timestamp `json:"finished_at,omitempty"`
}

type IssuedEscrow struct {
	ContributionId string `json:"contribution_id"`
	ContributorId  string `json:"contributor_id"`
	Amount         string `json:"amount"`
	TransferId     string `json:"transfer_id"`
	Sequence       uint32 `json:"sequence"`
	Debited        bool   `json:"debited"`
}

type Anomaly struct {
	Type     string `json:"type"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Details  string `json:"details,omitempty"`
}

type RegisterAccountRequest struct {
	Username       string `json:"username"`
	Address        string `json:"address"`
	Credential     string `json:"credential"`
	InitialBalance string `json:"initial_balance"`
}

type GetAccountRequest struct {
	AccountId string `json:"account_id"`
}

type ListAccountsRequest struct{}

type ListAccountsResponse struct {
	Accounts []*Account `json:"accounts"`
}

type DepositRequest struct {
	AccountId string `json:"account_id"`
	Amount    string `json:"amount"`
}

type SyncBalanceRequest struct {
	AccountId string `json:"account_id"`
}

type AccountResponse struct {
	Account *Account `json:"account"`
}

type OpenBountyRequest struct {
	FunderId         string `json:"funder_id"`
	Title            string `json:"title"`
	Description      string `json:"description"`
	IssueUrl         string `json:"issue_url"`
	Amount           string `json:"amount"`
	TimeLimitSeconds int64  `json:"time_limit_seconds"`
}

type BoostBountyRequest struct {
	BountyId      string `json:"bounty_id"`
	ContributorId string `json:"contributor_id"`
	Amount        string `json:"amount"`
}

type CancelBountyRequest struct {
	BountyId    string `json:"bounty_id"`
	RequestedBy string `json:"requested_by"`
}

type GetBountyRequest struct {
	BountyId string `json:"bounty_id"`
}

type BountyResponse struct {
	Bounty *Bounty `json:"bounty"`
}

type ListBountiesRequest struct {
	Status           string `json:"status,omitempty"`
	FunderId         string `json:"funder_id,omitempty"`
	DeveloperId      string `json:"developer_id,omitempty"`
	ContributorId    string `json:"contributor_id,omitempty"`
	Query            string `json:"query,omitempty"`
	IssueUrl         string `json:"issue_url,omitempty"`
	MinAmount        string `json:"min_amount,omitempty"`
	MaxAmount        string `json:"max_amount,omitempty"`
	IncludeCancelled bool   `json:"include_cancelled,omitempty"`
	Limit            int32  `json:"limit,omitempty"`
	Offset           int32  `json:"offset,omitempty"`
}

type ListBountiesResponse struct {
	Bounties []*Bounty `json:"bounties"`
}

type ListContributionsRequest struct {
	BountyId string `json:"bounty_id"`
}

type ListContributionsResponse struct {
	Contributions []*Contribution `json:"contributions"`
}

type AcceptBountyRequest struct {
	BountyId    string `json:"bounty_id"`
	DeveloperId string `json:"developer_id"`
}

type ResumeAcceptanceRequest struct {
	BountyId string `json:"bounty_id"`
}

// AcceptBountyResponse carries the completion secret. It is returned once.
type AcceptBountyResponse struct {
	Bounty           *Bounty         `json:"bounty"`
	CompletionSecret string          `json:"completion_secret"`
	Escrows          []*IssuedEscrow `json:"escrows"`
	Anomalies        []*Anomaly      `json:"anomalies,omitempty"`
}

type ClaimBountyRequest struct {
	BountyId    string `json:"bounty_id"`
	DeveloperId string `json:"developer_id"`
	Evidence    string `json:"evidence"`
}

// ClaimBountyResponse lists every contribution by outcome. Failed or skipped escrows stay on the ledger.
type ClaimBountyResponse struct {
	Bounty   *Bounty  `json:"bounty"`
	Amount   string   `json:"amount"`
	Finished []string `json:"finished"`
	Failed   []string `json:"failed,omitempty"`
	Skipped  []string `json:"skipped,omitempty"`
}

type RevealSecretRequest struct {
	BountyId    string `json:"bounty_id"`
	RequestedBy string `json:"requested_by"`
}

type RevealSecretResponse struct {
	CompletionSecret string `json:"completion_secret"`
}

type RecoverReleaseRequest struct {
	BountyId string `json:"bounty_id"`
}

type GetPlatformStatsRequest struct{}

type PlatformStatsResponse struct {
	TotalAccounts  int32            `json:"total_accounts"`
	TotalBounties  int32            `json:"total_bounties"`
	StatusCounts   map[string]int32 `json:"status_counts"`
	OpenAmount     string           `json:"open_amount"`
	ClaimedAmount  string           `json:"claimed_amount"`
	RecentBounties int32            `json:"recent_bounties"`
	TotalFunded    string           `json:"total_funded"`
	TotalEarned    string           `json:"total_earned"`
}

package domain

import "fmt"

// BountyStatus is the lifecycle state of a bounty
type BountyStatus string

const (
	BountyStatusOpen      BountyStatus = "open"
	BountyStatusAccepted  BountyStatus = "accepted"
	BountyStatusClaimed   BountyStatus = "claimed"
	BountyStatusCancelled BountyStatus = "cancelled"
)

// bountyTransitions is the only place legal status moves are defined.
var bountyTransitions = map[BountyStatus][]BountyStatus{
	BountyStatusOpen:     {BountyStatusAccepted, BountyStatusCancelled},
	BountyStatusAccepted: {BountyStatusClaimed},
}

// Valid reports whether s is a known status
func (s BountyStatus) Valid() bool {
	switch s {
	case BountyStatusOpen, BountyStatusAccepted, BountyStatusClaimed, BountyStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s
func (s BountyStatus) Terminal() bool {
	return s == BountyStatusClaimed || s == BountyStatusCancelled
}

// CanTransitionTo reports whether the table allows s -> next
func (s BountyStatus) CanTransitionTo(next BountyStatus) bool {
	for _, allowed := range bountyTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// EscrowStage tracks the escrow saga while a bounty is accepted
type EscrowStage string

const (
	EscrowStageNone      EscrowStage = "none"
	EscrowStageIssuing   EscrowStage = "issuing"   // Escrows being created, progress persisted per contribution
	EscrowStageIssued    EscrowStage = "issued"    // All escrows created, completion secret issued
	EscrowStageReleasing EscrowStage = "releasing" // Claim approved, escrows being finished
	EscrowStageReleased  EscrowStage = "released"
)

var stageTransitions = map[EscrowStage][]EscrowStage{
	EscrowStageNone:      {EscrowStageIssuing},
	EscrowStageIssuing:   {EscrowStageIssued},
	EscrowStageIssued:    {EscrowStageReleasing},
	EscrowStageReleasing: {EscrowStageReleased, EscrowStageIssued},
}

// CanTransitionTo reports whether the table allows s -> next
func (s EscrowStage) CanTransitionTo(next EscrowStage) bool {
	for _, allowed := range stageTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransitionError describes a rejected state move. It matches ErrInvalidTransition.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s cannot move from %s to %s", e.Entity, e.From, e.To)
}

// Is lets errors.Is(err, ErrInvalidTransition) match
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

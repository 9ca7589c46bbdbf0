package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestBalanceChange_Validate(t *testing.T) {
	accountID := uuid.New()

	tests := []struct {
		name    string
		change  BalanceChange
		wantErr bool
		errMsg  string
	}{
		{
			name:    "Valid change should pass",
			change:  BalanceChange{AccountID: accountID, Amount: decimal.NewFromInt(10), Reason: ReasonDeposit},
			wantErr: false,
		},
		{
			name:    "Missing account should fail",
			change:  BalanceChange{Amount: decimal.NewFromInt(10), Reason: ReasonDeposit},
			wantErr: true,
			errMsg:  "balance change must reference an account",
		},
		{
			name:    "Zero amount should fail",
			change:  BalanceChange{AccountID: accountID, Amount: decimal.Zero, Reason: ReasonDeposit},
			wantErr: true,
			errMsg:  "balance change amount must be positive",
		},
		{
			name:    "Missing reason should fail",
			change:  BalanceChange{AccountID: accountID, Amount: decimal.NewFromInt(10)},
			wantErr: true,
			errMsg:  "balance change must carry a reason",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.change.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, tt.errMsg, err.Error())
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBalanceEntry_Signed(t *testing.T) {
	debit := &BalanceEntry{Amount: decimal.NewFromInt(40), Type: EntryTypeDebit}
	credit := &BalanceEntry{Amount: decimal.NewFromInt(40), Type: EntryTypeCredit}

	assert.True(t, debit.Signed().Equal(decimal.NewFromInt(-40)))
	assert.True(t, credit.Signed().Equal(decimal.NewFromInt(40)))
}

func TestBalanceEntry_Validate(t *testing.T) {
	entry := &BalanceEntry{Amount: decimal.NewFromInt(1), Type: "SIDEWAYS", Reason: ReasonDeposit}
	assert.EqualError(t, entry.Validate(), "entry type must be DEBIT or CREDIT")

	entry.Type = EntryTypeCredit
	assert.NoError(t, entry.Validate())

	entry.Amount = decimal.Zero
	assert.EqualError(t, entry.Validate(), "entry amount must be positive (absolute value)")
}

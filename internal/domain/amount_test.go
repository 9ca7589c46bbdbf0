package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValidateAmountScale(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		wantErr bool
	}{
		{name: "Whole units", amount: "250", wantErr: false},
		{name: "One drop", amount: "0.000001", wantErr: false},
		{name: "Trailing zeros beyond scale", amount: "1.50000000", wantErr: false},
		{name: "Below one drop", amount: "1.0000001", wantErr: true},
		{name: "Seven places", amount: "0.1234567", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAmountScale(decimal.RequireFromString(tt.amount))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestContribution_Validate_RejectsSubDropAmount(t *testing.T) {
	c := &Contribution{
		ID:            uuid.New(),
		BountyID:      uuid.New(),
		ContributorID: uuid.New(),
		Amount:        decimal.RequireFromString("1.0000001"),
	}
	assert.Error(t, c.Validate())

	c.Amount = decimal.RequireFromString("1.000001")
	assert.NoError(t, c.Validate())
}

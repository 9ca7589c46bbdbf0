package cryptocondition

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreimageSha256_KnownVector(t *testing.T) {
	p, err := FromPreimage(make([]byte, PreimageSize))
	require.NoError(t, err)

	assert.Equal(t,
		"A0228020"+strings.Repeat("00", 32),
		p.FulfillmentHex())
	assert.Equal(t,
		"A025802066687AADF862BD776C8FC18B8E9F8E20089714856EE233B3902A591D0D5F2925810120",
		p.ConditionHex())
}

func TestNew_GeneratesDistinctPreimages(t *testing.T) {
	a, err := New()
	require.NoError(t, err)
	b, err := New()
	require.NoError(t, err)

	assert.NotEqual(t, a.FulfillmentHex(), b.FulfillmentHex())
	assert.Len(t, a.Fulfillment(), 36)
	assert.Len(t, a.Condition(), 39)
}

func TestVerify(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	other, err := New()
	require.NoError(t, err)

	ok, err := Verify(p.ConditionHex(), p.FulfillmentHex())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Verify(p.ConditionHex(), other.FulfillmentHex())
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = Verify(strings.ToLower(p.ConditionHex()), strings.ToLower(p.FulfillmentHex()))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestParseFulfillment_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "Not hex", input: "zz"},
		{name: "Too short", input: "A0228020"},
		{name: "Wrong tag", input: "A1228020" + strings.Repeat("00", 32)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFulfillment(tt.input)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestFromPreimage_RejectsWrongSize(t *testing.T) {
	_, err := FromPreimage([]byte("short"))
	assert.ErrorIs(t, err, ErrMalformed)
}

// Package cryptocondition implements the PREIMAGE-SHA-256 crypto-condition type
// used to lock ledger escrows behind a single shared secret.
package cryptocondition

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// PreimageSize is the number of random bytes behind every generated fulfillment
const PreimageSize = 32

const (
	fulfillmentTag = 0xA0 // [0] constructed, preimage-sha-256
	preimageTag    = 0x80
	fingerprintTag = 0x80
	costTag        = 0x81
)

var ErrMalformed = errors.New("malformed crypto-condition")

// PreimageSha256 pairs a secret preimage with its public SHA-256 condition
type PreimageSha256 struct {
	preimage []byte
}

// New generates a fresh preimage from crypto/rand
func New() (*PreimageSha256, error) {
	preimage := make([]byte, PreimageSize)
	if _, err := rand.Read(preimage); err != nil {
		return nil, fmt.Errorf("failed to generate preimage: %w", err)
	}
	return &PreimageSha256{preimage: preimage}, nil
}

// FromPreimage wraps an existing preimage
func FromPreimage(preimage []byte) (*PreimageSha256, error) {
	if len(preimage) != PreimageSize {
		return nil, fmt.Errorf("%w: preimage must be %d bytes", ErrMalformed, PreimageSize)
	}
	return &PreimageSha256{preimage: bytes.Clone(preimage)}, nil
}

// Fulfillment returns the DER encoding A0 22 80 20 <preimage>
func (p *PreimageSha256) Fulfillment() []byte {
	out := make([]byte, 0, 4+len(p.preimage))
	out = append(out, fulfillmentTag, byte(2+len(p.preimage)), preimageTag, byte(len(p.preimage)))
	return append(out, p.preimage...)
}

// Condition returns the DER encoding A0 25 80 20 <sha256(preimage)> 81 01 <cost>
func (p *PreimageSha256) Condition() []byte {
	digest := sha256.Sum256(p.preimage)
	out := make([]byte, 0, 39)
	out = append(out, fulfillmentTag, byte(2+len(digest)+3), fingerprintTag, byte(len(digest)))
	out = append(out, digest[:]...)
	return append(out, costTag, 0x01, byte(len(p.preimage)))
}

// FulfillmentHex returns the upper-case hex fulfillment expected by the ledger
func (p *PreimageSha256) FulfillmentHex() string {
	return strings.ToUpper(hex.EncodeToString(p.Fulfillment()))
}

// ConditionHex returns the upper-case hex condition expected by the ledger
func (p *PreimageSha256) ConditionHex() string {
	return strings.ToUpper(hex.EncodeToString(p.Condition()))
}

// ParseFulfillment decodes a hex fulfillment produced by FulfillmentHex
func ParseFulfillment(fulfillmentHex string) (*PreimageSha256, error) {
	raw, err := hex.DecodeString(fulfillmentHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(raw) != 4+PreimageSize ||
		raw[0] != fulfillmentTag || int(raw[1]) != len(raw)-2 ||
		raw[2] != preimageTag || int(raw[3]) != PreimageSize {
		return nil, fmt.Errorf("%w: unexpected fulfillment encoding", ErrMalformed)
	}
	return FromPreimage(raw[4:])
}

// Verify reports whether fulfillmentHex satisfies conditionHex
func Verify(conditionHex, fulfillmentHex string) (bool, error) {
	condition, err := hex.DecodeString(conditionHex)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	fulfillment, err := ParseFulfillment(fulfillmentHex)
	if err != nil {
		return false, err
	}
	return bytes.Equal(condition, fulfillment.Condition()), nil
}

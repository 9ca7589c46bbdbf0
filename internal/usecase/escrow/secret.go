package escrow

import (
	"crypto/rand"
	"math/big"
)

const (
	completionSecretLength   = 32
	completionSecretAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// newCompletionSecret returns a random alphanumeric key the developer embeds in the evidence
func newCompletionSecret() (string, error) {
	limit := big.NewInt(int64(len(completionSecretAlphabet)))
	out := make([]byte, completionSecretLength)
	for i := range out {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		out[i] = completionSecretAlphabet[n.Int64()]
	}
	return string(out), nil
}

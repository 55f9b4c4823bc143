package ledger

import (
	"testing"

	"github.com/tolelom/votechain/crypto"
)

func generateTestKey(t *testing.T) (crypto.PrivateKey, crypto.PublicKey, error) {
	t.Helper()
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return priv, pub, err
}

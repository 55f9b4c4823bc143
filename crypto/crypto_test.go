package crypto

import "testing"

func TestSignVerifyRoundTrip(t *testing.T) {
	priv, pub, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	msg := []byte("cast one ballot")
	sig := Sign(priv, msg)
	if err := Verify(pub, msg, sig); err != nil {
		t.Fatalf("expected valid signature to verify: %v", err)
	}
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	priv, pub, _ := GenerateKeyPair()
	sig := Sign(priv, []byte("original"))
	if err := Verify(pub, []byte("tampered"), sig); err == nil {
		t.Fatal("expected verification to fail against a different message")
	}
}

func TestVerifyRejectsMalformedHex(t *testing.T) {
	_, pub, _ := GenerateKeyPair()
	if err := Verify(pub, []byte("msg"), "not-hex!!"); err == nil {
		t.Fatal("expected malformed hex signature to error")
	}
}

func TestPubKeyHexRoundTrip(t *testing.T) {
	_, pub, _ := GenerateKeyPair()
	decoded, err := PubKeyFromHex(pub.Hex())
	if err != nil {
		t.Fatalf("decode hex pubkey: %v", err)
	}
	if decoded.Hex() != pub.Hex() {
		t.Fatal("round-tripped pubkey should be identical")
	}
}

func TestPubKeyFromHexRejectsWrongLength(t *testing.T) {
	if _, err := PubKeyFromHex("abcd"); err == nil {
		t.Fatal("expected short hex string to be rejected")
	}
}

func TestFingerprintStableAndDistinguishing(t *testing.T) {
	_, pubA, _ := GenerateKeyPair()
	_, pubB, _ := GenerateKeyPair()

	if pubA.Fingerprint() != pubA.Fingerprint() {
		t.Fatal("fingerprint must be stable across calls")
	}
	if pubA.Fingerprint() == pubB.Fingerprint() {
		t.Fatal("distinct keys should (almost certainly) have distinct fingerprints")
	}
}

func TestHashDeterministic(t *testing.T) {
	if Hash([]byte("abc")) != Hash([]byte("abc")) {
		t.Fatal("Hash must be deterministic")
	}
	if Hash([]byte("abc")) == Hash([]byte("abd")) {
		t.Fatal("different inputs should (almost certainly) hash differently")
	}
}

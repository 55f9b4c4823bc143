package ledger

import "testing"

func TestTransactionSignAndValidSignatureCount(t *testing.T) {
	issuerPriv, issuerPub, _ := generateTestKey(t)
	ticket := NewTicket("voter-1", "nonce-1", issuerPriv)

	tx, err := NewAuthTicketTx("voter-1", ticket, issuerPub)
	if err != nil {
		t.Fatalf("build tx: %v", err)
	}
	if tx.ValidSignatureCount() != 0 {
		t.Fatal("freshly built transaction should carry no signatures")
	}

	tx.Sign(issuerPriv)
	if got := tx.ValidSignatureCount(); got != 1 {
		t.Fatalf("expected 1 valid signature, got %d", got)
	}
}

func TestTransactionAddSignatureRejectsForgery(t *testing.T) {
	issuerPriv, issuerPub, _ := generateTestKey(t)
	ticket := NewTicket("voter-1", "nonce-1", issuerPriv)
	tx, _ := NewAuthTicketTx("voter-1", ticket, issuerPub)

	_, otherPub, _ := generateTestKey(t)
	if err := tx.AddSignature(otherPub.Hex(), "deadbeef"); err == nil {
		t.Fatal("expected AddSignature to reject a malformed signature")
	}
	if tx.ValidSignatureCount() != 0 {
		t.Fatal("rejected signature must not be recorded")
	}
}

func TestTransactionCloneIsIndependent(t *testing.T) {
	issuerPriv, issuerPub, _ := generateTestKey(t)
	ticket := NewTicket("voter-1", "nonce-1", issuerPriv)
	tx, _ := NewAuthTicketTx("voter-1", ticket, issuerPub)
	tx.Sign(issuerPriv)

	cp := tx.Clone()
	otherPriv, _, _ := generateTestKey(t)
	cp.Sign(otherPriv)

	if len(tx.Signatures) == len(cp.Signatures) {
		t.Fatal("signing a clone must not affect the original's signature set")
	}
}

func TestTransactionMergeSignaturesAccumulates(t *testing.T) {
	issuerPriv, issuerPub, _ := generateTestKey(t)
	ticket := NewTicket("voter-1", "nonce-1", issuerPriv)

	base, _ := NewAuthTicketTx("voter-1", ticket, issuerPub)
	base.Sign(issuerPriv)

	// A peer's copy of the same logical transaction, cosigned independently.
	peerCopy := base.Clone()
	peerPriv, _, _ := generateTestKey(t)
	peerCopy.Sign(peerPriv)

	base.MergeSignatures(peerCopy)
	if got := base.ValidSignatureCount(); got != 2 {
		t.Fatalf("expected 2 signatures after merge, got %d", got)
	}
}

func TestTransactionMergeSignaturesIgnoresDifferentTransaction(t *testing.T) {
	issuerPriv, issuerPub, _ := generateTestKey(t)
	ticketA := NewTicket("voter-1", "nonce-1", issuerPriv)
	ticketB := NewTicket("voter-2", "nonce-2", issuerPriv)

	txA, _ := NewAuthTicketTx("voter-1", ticketA, issuerPub)
	txB, _ := NewAuthTicketTx("voter-2", ticketB, issuerPub)
	txB.Sign(issuerPriv)

	txA.MergeSignatures(txB)
	if len(txA.Signatures) != 0 {
		t.Fatal("merging an unrelated transaction's signatures must be a no-op")
	}
}

func TestRequiredSignaturesCeiling(t *testing.T) {
	cases := []struct {
		peers int
		pct   float64
		want  int
	}{
		{peers: 9, pct: 2.0 / 3.0, want: 6},
		{peers: 10, pct: 2.0 / 3.0, want: 7},
		{peers: 0, pct: 2.0 / 3.0, want: 0},
		{peers: 3, pct: 1.0, want: 3},
	}
	for _, c := range cases {
		if got := RequiredSignatures(c.peers, c.pct); got != c.want {
			t.Errorf("RequiredSignatures(%d, %v) = %d, want %d", c.peers, c.pct, got, c.want)
		}
	}
}

func TestTransactionIsVerifiedThreshold(t *testing.T) {
	issuerPriv, issuerPub, _ := generateTestKey(t)
	ticket := NewTicket("voter-1", "nonce-1", issuerPriv)
	tx, _ := NewAuthTicketTx("voter-1", ticket, issuerPub)
	tx.Sign(issuerPriv)

	if tx.IsVerified(3, 2.0/3.0) {
		t.Fatal("one signature out of a cohort of 3 at 2/3 should not be verified")
	}

	peerPriv, _, _ := generateTestKey(t)
	tx.Sign(peerPriv)
	if !tx.IsVerified(3, 2.0/3.0) {
		t.Fatal("two signatures out of a cohort of 3 at 2/3 should be verified")
	}
}

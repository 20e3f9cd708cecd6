package gate

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/45ck/Portarium-sub009/pkg/canonicalize"
	"github.com/45ck/Portarium-sub009/pkg/contracts"
)

// Receipt is the audit record of one gate check. ContentHash binds it to
// the verdict body it was issued for.
type Receipt struct {
	ReceiptID   string             `json:"receiptId"`
	Subject     string             `json:"subject"`
	Decision    contracts.Decision `json:"decision"`
	Outcome     Outcome            `json:"outcome,omitempty"`
	EvaluatedAt time.Time          `json:"evaluatedAt"`
	ContentHash string             `json:"contentHash"`
}

func (g *Gate) issueReceipt(subject string, decision contracts.Decision, outcome Outcome, body any) (Receipt, error) {
	hash, err := canonicalize.CanonicalHash(body)
	if err != nil {
		return Receipt{}, fmt.Errorf("gate: hash verdict: %w", err)
	}
	return Receipt{
		ReceiptID:   uuid.NewString(),
		Subject:     subject,
		Decision:    decision,
		Outcome:     outcome,
		EvaluatedAt: g.clock().UTC(),
		ContentHash: hash,
	}, nil
}

// VerifyReceipt recomputes the content hash of body and compares it with
// the receipt.
func VerifyReceipt(r Receipt, body any) (bool, error) {
	hash, err := canonicalize.CanonicalHash(body)
	if err != nil {
		return false, err
	}
	return hash == r.ContentHash, nil
}

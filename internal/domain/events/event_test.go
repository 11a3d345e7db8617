package events

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewBenefitEventRoundTripsPayload(t *testing.T) {
	amount := int64(50000)
	id := uuid.New()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	e, err := NewBenefitEvent(BenefitAssigned, id, 1, at, BenefitPayload{
		SubjectID:   "S1",
		BenefitType: "HEALTH",
		State:       "ACTIVE",
		StartDate:   "2026-03-02",
		AmountCents: &amount,
	})
	if err != nil {
		t.Fatalf("NewBenefitEvent: %v", err)
	}
	if e.EventID == uuid.Nil || e.AggregateID != id {
		t.Fatalf("ids: got event=%s aggregate=%s", e.EventID, e.AggregateID)
	}
	if e.OccurredAt.Location() != time.UTC {
		t.Fatalf("occurredAt should be UTC, got %s", e.OccurredAt.Location())
	}
	p, err := e.BenefitPayload()
	if err != nil {
		t.Fatalf("BenefitPayload: %v", err)
	}
	if p.AmountCents == nil || *p.AmountCents != amount {
		t.Fatalf("amount: want=%d got=%v", amount, p.AmountCents)
	}
}

func TestDecodeRejectsMissingIDs(t *testing.T) {
	if _, err := Decode([]byte(`{"type":"BenefitAssigned"}`)); err == nil {
		t.Fatalf("expected error for envelope without ids")
	}
}

func TestTypeValid(t *testing.T) {
	for _, typ := range Types() {
		if !typ.Valid() {
			t.Fatalf("%s should be valid", typ)
		}
	}
	if Type("BenefitDeleted").Valid() {
		t.Fatalf("unknown type reported valid")
	}
}

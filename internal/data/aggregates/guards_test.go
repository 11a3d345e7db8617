package aggregates

import (
	"testing"

	"github.com/google/uuid"

	domainagg "github.com/yungbote/benefits-backend/internal/domain/aggregates"
)

func TestRequireVersion(t *testing.T) {
	id := uuid.New()
	if err := requireVersion(true, "op", id, 3); err != nil {
		t.Fatalf("saved: want nil got=%v", err)
	}
	err := MapError("other", requireVersion(false, "op", id, 3))
	if !domainagg.IsCode(err, domainagg.CodeRetryable) {
		t.Fatalf("lost CAS: want retryable got=%v", err)
	}
	if domainagg.CodeOf(err).Terminal() {
		t.Fatalf("lost CAS must not be terminal")
	}
	if domainagg.MessageOf(err) != "benefit was modified concurrently" {
		t.Fatalf("message: got=%q", domainagg.MessageOf(err))
	}
}

func TestRequireFound(t *testing.T) {
	if err := requireFound(true, "op", uuid.New()); err != nil {
		t.Fatalf("found: want nil got=%v", err)
	}
	if err := requireFound(false, "op", uuid.New()); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("missing: want not_found got=%v", err)
	}
}

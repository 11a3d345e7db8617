package aggregates

import (
	"fmt"

	"github.com/google/uuid"

	domainagg "github.com/yungbote/benefits-backend/internal/domain/aggregates"
)

// requireFound turns a missing locked row into not_found.
func requireFound(found bool, op string, id uuid.UUID) error {
	if found {
		return nil
	}
	return domainagg.NewError(domainagg.CodeNotFound, op, "benefit not found", fmt.Errorf("benefit %s", id))
}

// requireVersion turns a lost compare-and-set on the version column into a
// retryable failure: a fresh attempt reloads the row and may succeed.
func requireVersion(saved bool, op string, id uuid.UUID, expected int64) error {
	if saved {
		return nil
	}
	return domainagg.NewError(domainagg.CodeRetryable, op, "benefit was modified concurrently",
		fmt.Errorf("benefit %s: expected version %d", id, expected))
}

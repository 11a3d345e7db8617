package aggregates

import (
	"context"
	"errors"
	"testing"
	"time"

	domainagg "github.com/yungbote/benefits-backend/internal/domain/aggregates"
	"github.com/yungbote/benefits-backend/internal/platform/dbctx"
)

func testDeps(hooks *spyHooks) BaseDeps {
	return BaseDeps{Runner: spyTxRunner{}, Hooks: hooks, TxRetryDelay: time.Millisecond}
}

func TestExecuteWriteObservesSuccess(t *testing.T) {
	hooks := &spyHooks{}
	if err := executeWrite(context.Background(), testDeps(hooks), "benefit.test", func(dbctx.Context) error { return nil }); err != nil {
		t.Fatalf("executeWrite: %v", err)
	}
	if len(hooks.Operations) != 1 || hooks.Operations[0].Status != "success" {
		t.Fatalf("operations: got=%+v", hooks.Operations)
	}
}

func TestExecuteWriteRetriesRetryableFailures(t *testing.T) {
	hooks := &spyHooks{}
	calls := 0
	err := executeWrite(context.Background(), testDeps(hooks), "benefit.test.busy", func(dbctx.Context) error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("executeWrite: %v", err)
	}
	if calls != 3 {
		t.Fatalf("attempts: want=3 got=%d", calls)
	}
	if len(hooks.Retries) != 2 {
		t.Fatalf("retry hooks: want=2 got=%+v", hooks.Retries)
	}
	if len(hooks.Operations) != 1 || hooks.Operations[0].Status != "success" {
		t.Fatalf("operations: got=%+v", hooks.Operations)
	}
}

func TestExecuteWriteGivesUpAfterTxAttempts(t *testing.T) {
	hooks := &spyHooks{}
	deps := testDeps(hooks)
	deps.TxAttempts = 2
	calls := 0
	err := executeWrite(context.Background(), deps, "benefit.test.busy", func(dbctx.Context) error {
		calls++
		return errors.New("deadlock detected")
	})
	if !domainagg.IsCode(err, domainagg.CodeRetryable) {
		t.Fatalf("code: want retryable got=%v", err)
	}
	if calls != 2 {
		t.Fatalf("attempts: want=2 got=%d", calls)
	}
	if hooks.Operations[0].Status != string(domainagg.CodeRetryable) {
		t.Fatalf("status: got=%s", hooks.Operations[0].Status)
	}
}

func TestExecuteWriteDoesNotRetryBusinessFailures(t *testing.T) {
	hooks := &spyHooks{}
	calls := 0
	err := executeWrite(context.Background(), testDeps(hooks), "benefit.test.revoke", func(dbctx.Context) error {
		calls++
		return domainagg.NewError(domainagg.CodeStateConflict, "benefit.revoke", "benefit is already revoked", nil)
	})
	if !domainagg.IsCode(err, domainagg.CodeStateConflict) {
		t.Fatalf("code: want state_conflict got=%v", err)
	}
	if calls != 1 || len(hooks.Retries) != 0 {
		t.Fatalf("retried a business failure: calls=%d retries=%v", calls, hooks.Retries)
	}
	if len(hooks.Conflicts) != 1 || hooks.Conflicts[0] != "benefit.test.revoke" {
		t.Fatalf("conflict hooks: got=%+v", hooks.Conflicts)
	}
	if hooks.Operations[0].Status != string(domainagg.CodeStateConflict) {
		t.Fatalf("status: got=%s", hooks.Operations[0].Status)
	}
}

type spyTxRunner struct{}

func (spyTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(dbctx.Context{Ctx: ctx})
}

type spyHooks struct {
	Operations []spyOperation
	Conflicts  []string
	Retries    []string
}

type spyOperation struct {
	Name   string
	Status string
}

func (h *spyHooks) ObserveAggregateOperation(name, status string, _ time.Duration) {
	h.Operations = append(h.Operations, spyOperation{Name: name, Status: status})
}

func (h *spyHooks) IncAggregateConflict(name string) {
	h.Conflicts = append(h.Conflicts, name)
}

func (h *spyHooks) IncAggregateRetry(name string) {
	h.Retries = append(h.Retries, name)
}

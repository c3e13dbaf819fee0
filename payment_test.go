package bridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"golang.org/x/sync/errgroup"
)

func TestIdempotentExecutorCachesSuccess(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	exec := NewIdempotentExecutor(PaymentExecutorFunc(
		func(_ context.Context, sessionID string, _ int, _ string, _ PaymentMethod) (PaymentResult, error) {
			calls.Add(1)
			return PaymentResult{Success: true, TransactionID: "txn_" + sessionID}, nil
		},
	))

	first, err := exec.Execute(context.Background(), "cs_1", 1000, "USD", PaymentMethod{Type: "card"})
	if err != nil {
		t.Fatalf("first execute: %v", err)
	}
	second, err := exec.Execute(context.Background(), "cs_1", 1000, "USD", PaymentMethod{Type: "card"})
	if err != nil {
		t.Fatalf("second execute: %v", err)
	}
	if first.TransactionID != second.TransactionID {
		t.Fatalf("expected cached transaction id %q, got %q", first.TransactionID, second.TransactionID)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected exactly one inner call, got %d", got)
	}
}

func TestIdempotentExecutorRetriesAfterFailure(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	exec := NewIdempotentExecutor(PaymentExecutorFunc(
		func(_ context.Context, _ string, _ int, _ string, _ PaymentMethod) (PaymentResult, error) {
			if calls.Add(1) == 1 {
				return PaymentResult{}, errors.New("gateway timeout")
			}
			return PaymentResult{Success: true, TransactionID: "txn_ok"}, nil
		},
	))

	if _, err := exec.Execute(context.Background(), "cs_1", 500, "USD", PaymentMethod{Type: "card"}); err == nil {
		t.Fatal("expected the first attempt to fail")
	}
	result, err := exec.Execute(context.Background(), "cs_1", 500, "USD", PaymentMethod{Type: "card"})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !result.Success || result.TransactionID != "txn_ok" {
		t.Fatalf("unexpected retry result: %+v", result)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected two inner calls, got %d", got)
	}
}

func TestIdempotentExecutorDoesNotCacheDeclines(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	exec := NewIdempotentExecutor(PaymentExecutorFunc(
		func(_ context.Context, _ string, _ int, _ string, _ PaymentMethod) (PaymentResult, error) {
			if calls.Add(1) == 1 {
				return PaymentResult{Success: false, FailureCode: "card_declined"}, nil
			}
			return PaymentResult{Success: true, TransactionID: "txn_second"}, nil
		},
	))

	first, err := exec.Execute(context.Background(), "cs_1", 500, "USD", PaymentMethod{Type: "card"})
	if err != nil {
		t.Fatalf("first execute: %v", err)
	}
	if first.Success {
		t.Fatal("expected the first attempt to be declined")
	}
	second, err := exec.Execute(context.Background(), "cs_1", 500, "USD", PaymentMethod{Type: "card"})
	if err != nil {
		t.Fatalf("second execute: %v", err)
	}
	if !second.Success {
		t.Fatalf("expected the retry to succeed, got %+v", second)
	}
}

func TestIdempotentExecutorCollapsesConcurrentCalls(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	release := make(chan struct{})
	exec := NewIdempotentExecutor(PaymentExecutorFunc(
		func(_ context.Context, _ string, _ int, _ string, _ PaymentMethod) (PaymentResult, error) {
			calls.Add(1)
			<-release
			return PaymentResult{Success: true, TransactionID: "txn_shared"}, nil
		},
	))

	const workers = 16
	var (
		g   errgroup.Group
		mu  sync.Mutex
		ids = map[string]int{}
	)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			result, err := exec.Execute(context.Background(), "cs_1", 900, "USD", PaymentMethod{Type: "card"})
			if err != nil {
				return err
			}
			mu.Lock()
			ids[result.TransactionID]++
			mu.Unlock()
			return nil
		})
	}
	close(release)
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent execute: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected one transaction id, got %v", ids)
	}
	if ids["txn_shared"] != workers {
		t.Fatalf("expected all %d callers to see the shared result, got %v", workers, ids)
	}
	if got := calls.Load(); got < 1 || got > int64(workers) {
		t.Fatalf("unexpected inner call count %d", got)
	}
}

package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/contractguard/contractguard/internal/config"
	"github.com/contractguard/contractguard/internal/repository"
	"github.com/contractguard/contractguard/internal/service"
)

func newGuard(t *testing.T) *service.IdempotencyGuard {
	t.Helper()
	return service.NewIdempotencyGuard(repository.NewMemIdempotencyStore(), config.IdempotencyConfig{
		ReservationTTLSeconds: 5,
		RetentionHours:        1,
		PollIntervalMs:        5,
	})
}

func TestGuardFirstRequestProceeds(t *testing.T) {
	g := newGuard(t)
	res, err := g.Begin(context.Background(), "t-1", "key-1", "fp-a")
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if res.Outcome != service.Proceed {
		t.Fatalf("expected Proceed, got %v", res.Outcome)
	}
}

func TestGuardReplayAfterFinish(t *testing.T) {
	g := newGuard(t)
	ctx := context.Background()

	if _, err := g.Begin(ctx, "t-1", "key-1", "fp-a"); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if err := g.Finish(ctx, "t-1", "key-1", "audit-42", []byte(`{"verdict":"approved"}`)); err != nil {
		t.Fatalf("finish failed: %v", err)
	}

	res, err := g.Begin(ctx, "t-1", "key-1", "fp-a")
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if res.Outcome != service.Replay {
		t.Fatalf("expected Replay, got %v", res.Outcome)
	}
	if res.AuditID != "audit-42" || string(res.Response) != `{"verdict":"approved"}` {
		t.Fatalf("cached payload wrong: %s %s", res.AuditID, res.Response)
	}
}

func TestGuardConflictOnDifferentPayload(t *testing.T) {
	g := newGuard(t)
	ctx := context.Background()

	if _, err := g.Begin(ctx, "t-1", "key-1", "fp-a"); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	res, err := g.Begin(ctx, "t-1", "key-1", "fp-b")
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if res.Outcome != service.Conflict {
		t.Fatalf("expected Conflict, got %v", res.Outcome)
	}

	// 完成之后同样冲突：key 已绑定到另一个 payload
	if err := g.Finish(ctx, "t-1", "key-1", "audit-1", []byte(`{}`)); err != nil {
		t.Fatalf("finish failed: %v", err)
	}
	res, err = g.Begin(ctx, "t-1", "key-1", "fp-b")
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if res.Outcome != service.Conflict {
		t.Fatalf("expected Conflict after completion, got %v", res.Outcome)
	}
}

func TestGuardKeysAreTenantScoped(t *testing.T) {
	g := newGuard(t)
	ctx := context.Background()

	if _, err := g.Begin(ctx, "t-1", "key-1", "fp-a"); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	// 不同租户同 key 互不干扰
	res, err := g.Begin(ctx, "t-2", "key-1", "fp-zzz")
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if res.Outcome != service.Proceed {
		t.Fatalf("tenant isolation broken: %v", res.Outcome)
	}
}

func TestGuardConcurrentBeginsExactlyOneProceeds(t *testing.T) {
	g := newGuard(t)
	ctx := context.Background()

	const workers = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		proceeds int
		replays  int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := g.Begin(ctx, "t-1", "key-1", "fp-a")
			if err != nil {
				t.Errorf("begin failed: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			switch res.Outcome {
			case service.Proceed:
				proceeds++
				// 持有者异步完成，等待者应全部拿到 Replay
				go func() {
					time.Sleep(20 * time.Millisecond)
					if err := g.Finish(ctx, "t-1", "key-1", "audit-1", []byte(`{}`)); err != nil {
						t.Errorf("finish failed: %v", err)
					}
				}()
			case service.Replay:
				replays++
			default:
				t.Errorf("unexpected outcome %v", res.Outcome)
			}
		}()
	}
	close(start)
	wg.Wait()

	if proceeds != 1 {
		t.Fatalf("exactly one Proceed expected, got %d", proceeds)
	}
	if replays != workers-1 {
		t.Fatalf("expected %d replays, got %d", workers-1, replays)
	}
}

func TestGuardReleaseAllowsRetry(t *testing.T) {
	g := newGuard(t)
	ctx := context.Background()

	if _, err := g.Begin(ctx, "t-1", "key-1", "fp-a"); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if err := g.Release(ctx, "t-1", "key-1"); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	res, err := g.Begin(ctx, "t-1", "key-1", "fp-a")
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if res.Outcome != service.Proceed {
		t.Fatalf("released key must be reusable, got %v", res.Outcome)
	}
}

func TestGuardWaiterHonorsContextCancel(t *testing.T) {
	g := newGuard(t)

	if _, err := g.Begin(context.Background(), "t-1", "key-1", "fp-a"); err != nil {
		t.Fatalf("begin failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := g.Begin(ctx, "t-1", "key-1", "fp-a")
	if err == nil {
		t.Fatalf("waiter should fail when context expires before completion")
	}
}

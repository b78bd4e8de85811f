package verification

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"redmatrix/models"
)

func seedPending(t *testing.T, db *gorm.DB, n int) {
	t.Helper()
	now := time.Now().UTC()
	for i := 0; i < n; i++ {
		rec := models.NewTransactionVerification(uuid.New(), fmt.Sprintf("tx-%d", i), "hash-1", "addr", 10, now)
		if err := db.Create(&rec).Error; err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}
}

func TestRunCycleRespectsBatchSize(t *testing.T) {
	db := setupVerificationDB(t)
	client := &stubLedger{entries: matchingEntries("hash-1")}
	svc := newTestService(t, db, client, nil)
	seedPending(t, db, 15)

	w := NewWorker(WorkerConfig{
		Service:      svc,
		BatchSize:    10,
		PaceInterval: time.Millisecond,
	})
	w.RunCycle(context.Background())

	if client.calls != 10 {
		t.Fatalf("expected 10 ledger calls, got %d", client.calls)
	}

	var remaining int64
	if err := db.Model(&models.TransactionVerification{}).
		Where("status = ?", models.StatusPending).
		Count(&remaining).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if remaining != 5 {
		t.Fatalf("expected 5 records rolled to next cycle, got %d", remaining)
	}
}

func TestRunCycleSingleFlight(t *testing.T) {
	db := setupVerificationDB(t)
	client := &stubLedger{entries: matchingEntries("hash-1")}
	svc := newTestService(t, db, client, nil)
	seedPending(t, db, 3)

	w := NewWorker(WorkerConfig{Service: svc, PaceInterval: time.Millisecond})
	w.running.Store(true)
	w.RunCycle(context.Background())

	if client.calls != 0 {
		t.Fatalf("overlapping cycle must be dropped, got %d ledger calls", client.calls)
	}
	if !w.Status().Running {
		t.Fatal("running flag must be untouched by the dropped cycle")
	}
}

func TestRunCycleStopsOnCancelledContext(t *testing.T) {
	db := setupVerificationDB(t)
	client := &stubLedger{entries: matchingEntries("hash-1")}
	svc := newTestService(t, db, client, nil)
	seedPending(t, db, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := NewWorker(WorkerConfig{Service: svc, PaceInterval: time.Hour})
	w.RunCycle(ctx)

	if client.calls != 0 {
		t.Fatalf("cancelled cycle must not call the ledger, got %d calls", client.calls)
	}
	if w.Status().Running {
		t.Fatal("running flag must be cleared after the cycle returns")
	}
}

func TestRunSweepExpiresExhaustedRecords(t *testing.T) {
	db := setupVerificationDB(t)
	svc := newTestService(t, db, &stubLedger{}, nil)
	now := time.Now().UTC()

	rec := models.NewTransactionVerification(uuid.New(), "tx-1", "hash", "addr", 3, now)
	rec.Status = models.StatusFailed
	rec.RetryCount = 3
	if err := db.Create(&rec).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	w := NewWorker(WorkerConfig{Service: svc})
	w.RunSweep(context.Background())

	stored, err := svc.ByID(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if stored.Status != models.StatusExpired {
		t.Fatalf("expected EXPIRED, got %s", stored.Status)
	}
}

func TestStartStopsWhenContextCancelled(t *testing.T) {
	db := setupVerificationDB(t)
	svc := newTestService(t, db, &stubLedger{}, nil)

	w := NewWorker(WorkerConfig{Service: svc, Interval: time.Hour, SweepInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}
}

package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"redmatrix/ledger"
	"redmatrix/models"
)

var (
	// ErrNotFound indicates the verification record does not exist.
	ErrNotFound = errors.New("verification: record not found")
	// ErrValidation indicates a malformed enqueue request; no record is created.
	ErrValidation = errors.New("verification: invalid request")
	// ErrStale indicates the record changed concurrently and the attempt's
	// decision was discarded.
	ErrStale = errors.New("verification: record changed concurrently")
)

// defaultProcessingGrace bounds how long a record may sit in PROCESSING before
// it is considered abandoned by a crashed worker and re-enters eligibility.
const defaultProcessingGrace = 10 * time.Minute

// LedgerClient abstracts the transaction metadata lookup.
type LedgerClient interface {
	FetchMetadata(ctx context.Context, txHash string) ([]ledger.TxMetadata, error)
}

// NoteUpdater receives the verified/unverified outcome for a note. Failures
// are logged and swallowed; verification does not own note lifecycle.
type NoteUpdater interface {
	SetVerificationStatus(ctx context.Context, noteID uuid.UUID, verified bool) error
}

// Config captures the dependencies required to construct a Service.
type Config struct {
	DB              *gorm.DB
	Ledger          LedgerClient
	Notes           NoteUpdater
	MaxRetries      int
	ProcessingGrace time.Duration
	Logger          *slog.Logger
	Now             func() time.Time
}

// Service orchestrates verification record management and reconciliation
// attempts against the ledger.
type Service struct {
	db         *gorm.DB
	ledger     LedgerClient
	notes      NoteUpdater
	maxRetries int
	grace      time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewService builds a configured verification service.
func NewService(cfg Config) (*Service, error) {
	if cfg.DB == nil {
		return nil, errors.New("verification: db is required")
	}
	if cfg.Ledger == nil {
		return nil, errors.New("verification: ledger client is required")
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = models.DefaultMaxRetries
	}
	grace := cfg.ProcessingGrace
	if grace <= 0 {
		grace = defaultProcessingGrace
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Service{
		db:         cfg.DB,
		ledger:     cfg.Ledger,
		notes:      cfg.Notes,
		maxRetries: maxRetries,
		grace:      grace,
		logger:     logger,
		now:        nowFn,
	}, nil
}

// SetNotes installs the note collaborator after construction. The note and
// verification services reference each other, so one side is wired late.
func (s *Service) SetNotes(notes NoteUpdater) {
	s.notes = notes
}

// Enqueue registers a transaction for verification. It is idempotent by
// transaction hash: a second call for the same hash returns the existing
// record unchanged.
func (s *Service) Enqueue(ctx context.Context, noteID uuid.UUID, txHash, contentHash, ownerWallet string) (*models.TransactionVerification, error) {
	hash := strings.TrimSpace(txHash)
	if noteID == uuid.Nil {
		return nil, fmt.Errorf("%w: note id is required", ErrValidation)
	}
	if hash == "" {
		return nil, fmt.Errorf("%w: tx hash is required", ErrValidation)
	}

	if existing, err := s.ByTxHash(ctx, hash); err == nil {
		s.logger.Warn("verification already exists for tx hash", "txHash", hash, "id", existing.ID)
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	rec := models.NewTransactionVerification(noteID, hash, strings.TrimSpace(contentHash), strings.TrimSpace(ownerWallet), s.maxRetries, s.now())
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		// A concurrent enqueue may have won the unique index race; the
		// existing record is the correct answer either way.
		if existing, lookupErr := s.ByTxHash(ctx, hash); lookupErr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("verification: create record: %w", err)
	}
	s.logger.Info("queued transaction for verification", "id", rec.ID, "noteId", noteID, "txHash", hash)
	return &rec, nil
}

// VerifyOne performs exactly one reconciliation attempt for the record and
// persists the decision. It returns true only when the record reached
// VERIFIED.
func (s *Service) VerifyOne(ctx context.Context, rec *models.TransactionVerification) (bool, error) {
	if rec == nil {
		return false, fmt.Errorf("verification: record required")
	}
	// Terminal records never transition again; Retry resets to PENDING first
	// and is the only resurrection path.
	if rec.Terminal() {
		s.logger.Debug("record already terminal, skipping", "txHash", rec.TxHash, "status", rec.Status)
		return false, nil
	}
	s.logger.Info("starting verification", "txHash", rec.TxHash, "retry", rec.RetryCount)

	// Mark the attempt in flight so concurrent readers observe it.
	previous := rec.Status
	rec.Status = models.StatusProcessing
	rec.Touch(s.now())
	res := s.db.WithContext(ctx).Model(&models.TransactionVerification{}).
		Where("id = ? AND status = ?", rec.ID, previous).
		Updates(map[string]any{"status": rec.Status, "updated_at": rec.UpdatedAt})
	if res.Error != nil {
		return false, fmt.Errorf("verification: mark processing: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return false, ErrStale
	}

	entries, fetchErr := s.ledger.FetchMetadata(ctx, rec.TxHash)
	updated := Reconcile(*rec, entries, fetchErr, s.now())

	if err := s.applyDecision(ctx, updated); err != nil {
		return false, err
	}
	*rec = updated

	switch updated.Status {
	case models.StatusVerified:
		s.logger.Info("transaction verified", "txHash", updated.TxHash)
		s.notifyNote(ctx, updated.NoteID, true)
		return true, nil
	case models.StatusExpired:
		s.logger.Warn("verification expired", "txHash", updated.TxHash, "retries", updated.RetryCount)
		s.notifyNote(ctx, updated.NoteID, false)
	case models.StatusFailed:
		s.logger.Warn("verification failed", "txHash", updated.TxHash,
			"retry", fmt.Sprintf("%d/%d", updated.RetryCount, updated.MaxRetries), "error", updated.LastError)
		s.notifyNote(ctx, updated.NoteID, false)
	default:
		// ErrUnconfigured path: record returned to PENDING without notifying.
		s.logger.Error("verification attempt skipped", "txHash", updated.TxHash, "error", updated.LastError)
	}
	return false, nil
}

// applyDecision is the single authoritative update path for attempt outcomes.
// The write is conditional on the record still being PROCESSING so an
// out-of-band manual retry cannot be clobbered by a stale worker decision.
func (s *Service) applyDecision(ctx context.Context, rec models.TransactionVerification) error {
	res := s.db.WithContext(ctx).Model(&models.TransactionVerification{}).
		Where("id = ? AND status = ?", rec.ID, models.StatusProcessing).
		Updates(map[string]any{
			"status":                  rec.Status,
			"retry_count":             rec.RetryCount,
			"last_error":              rec.LastError,
			"blockchain_content_hash": rec.BlockchainContentHash,
			"blockchain_action":       rec.BlockchainAction,
			"hash_match":              rec.HashMatch,
			"verified_at":             rec.VerifiedAt,
			"updated_at":              rec.UpdatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("verification: persist decision: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStale
	}
	return nil
}

// notifyNote reports the outcome to the note collaborator, best effort.
func (s *Service) notifyNote(ctx context.Context, noteID uuid.UUID, verified bool) {
	if s.notes == nil {
		return
	}
	if err := s.notes.SetVerificationStatus(ctx, noteID, verified); err != nil {
		s.logger.Warn("note status update failed", "noteId", noteID, "error", err)
	}
}

// PendingRetry lists records eligible for another attempt: PENDING or FAILED
// with budget remaining, plus PROCESSING rows abandoned longer than the grace
// period. Fewest retries first, oldest first on ties, so fresh work is not
// starved by repeatedly failing records.
func (s *Service) PendingRetry(ctx context.Context) ([]models.TransactionVerification, error) {
	cutoff := s.now().UTC().Add(-s.grace)
	var recs []models.TransactionVerification
	err := s.db.WithContext(ctx).
		Where("status IN ? AND retry_count < max_retries", []models.VerificationStatus{models.StatusPending, models.StatusFailed}).
		Or("status = ? AND retry_count < max_retries AND updated_at < ?", models.StatusProcessing, cutoff).
		Order("retry_count ASC, created_at ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("verification: list pending: %w", err)
	}
	return recs, nil
}

// SweepExpired transitions records whose retry budget is exhausted to EXPIRED
// and returns how many changed. Running it twice in a row transitions zero
// records the second time.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	var candidates []models.TransactionVerification
	err := s.db.WithContext(ctx).
		Where("status IN ? AND retry_count >= max_retries", []models.VerificationStatus{models.StatusPending, models.StatusFailed}).
		Find(&candidates).Error
	if err != nil {
		return 0, fmt.Errorf("verification: list expired candidates: %w", err)
	}

	count := 0
	for i := range candidates {
		rec := candidates[i]
		res := s.db.WithContext(ctx).Model(&models.TransactionVerification{}).
			Where("id = ? AND status = ?", rec.ID, rec.Status).
			Updates(map[string]any{"status": models.StatusExpired, "updated_at": s.now().UTC()})
		if res.Error != nil {
			return count, fmt.Errorf("verification: expire record: %w", res.Error)
		}
		if res.RowsAffected > 0 {
			count++
		}
	}
	if count > 0 {
		s.logger.Info("marked verifications as expired", "count", count)
	}
	return count, nil
}

// Retry forces one verification attempt out of band. The record returns to
// PENDING without resetting its retry count, then a single attempt runs
// immediately.
func (s *Service) Retry(ctx context.Context, id uuid.UUID) (*models.TransactionVerification, error) {
	rec, err := s.ByID(ctx, id)
	if err != nil {
		return nil, err
	}

	rec.Status = models.StatusPending
	rec.Touch(s.now())
	if err := s.db.WithContext(ctx).Model(&models.TransactionVerification{}).
		Where("id = ?", rec.ID).
		Updates(map[string]any{"status": rec.Status, "updated_at": rec.UpdatedAt}).Error; err != nil {
		return nil, fmt.Errorf("verification: reset for retry: %w", err)
	}

	if _, err := s.VerifyOne(ctx, rec); err != nil && !errors.Is(err, ErrStale) {
		s.logger.Warn("manual retry attempt failed", "id", id, "error", err)
	}
	return s.ByID(ctx, id)
}

// ByID returns the record with the given identifier.
func (s *Service) ByID(ctx context.Context, id uuid.UUID) (*models.TransactionVerification, error) {
	var rec models.TransactionVerification
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("verification: load record: %w", err)
	}
	return &rec, nil
}

// ByTxHash returns the record for the given transaction hash.
func (s *Service) ByTxHash(ctx context.Context, txHash string) (*models.TransactionVerification, error) {
	var rec models.TransactionVerification
	if err := s.db.WithContext(ctx).First(&rec, "tx_hash = ?", strings.TrimSpace(txHash)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("verification: load record: %w", err)
	}
	return &rec, nil
}

// ForNote returns all records for a note, most recent first.
func (s *Service) ForNote(ctx context.Context, noteID uuid.UUID) ([]models.TransactionVerification, error) {
	var recs []models.TransactionVerification
	err := s.db.WithContext(ctx).
		Where("note_id = ?", noteID).
		Order("created_at DESC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("verification: list for note: %w", err)
	}
	return recs, nil
}

// LatestForNote returns the most recent record for a note.
func (s *Service) LatestForNote(ctx context.Context, noteID uuid.UUID) (*models.TransactionVerification, error) {
	var rec models.TransactionVerification
	err := s.db.WithContext(ctx).
		Where("note_id = ?", noteID).
		Order("created_at DESC").
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("verification: load latest for note: %w", err)
	}
	return &rec, nil
}

// All returns every verification record, most recent first.
func (s *Service) All(ctx context.Context) ([]models.TransactionVerification, error) {
	var recs []models.TransactionVerification
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("verification: list records: %w", err)
	}
	return recs, nil
}

// Stats returns record counts grouped by status plus the overall total.
func (s *Service) Stats(ctx context.Context) (map[string]int64, error) {
	type statusCount struct {
		Status models.VerificationStatus
		Count  int64
	}
	var rows []statusCount
	err := s.db.WithContext(ctx).Model(&models.TransactionVerification{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("verification: aggregate stats: %w", err)
	}

	stats := map[string]int64{
		"pending":    0,
		"processing": 0,
		"verified":   0,
		"failed":     0,
		"expired":    0,
	}
	var total int64
	for _, row := range rows {
		stats[strings.ToLower(string(row.Status))] = row.Count
		total += row.Count
	}
	stats["total"] = total
	return stats, nil
}

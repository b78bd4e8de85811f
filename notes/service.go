package notes

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"redmatrix/models"
)

var (
	// ErrNotFound indicates the note does not exist.
	ErrNotFound = errors.New("notes: note not found")
	// ErrValidation indicates a malformed note payload.
	ErrValidation = errors.New("notes: invalid note")
)

// Enqueuer registers a provenance claim for verification when a note is saved
// with a transaction hash.
type Enqueuer interface {
	Enqueue(ctx context.Context, noteID uuid.UUID, txHash, contentHash, ownerWallet string) (*models.TransactionVerification, error)
}

// Config captures the dependencies required to construct the note service.
type Config struct {
	DB            *gorm.DB
	Verifications Enqueuer
	Logger        *slog.Logger
	Now           func() time.Time
}

// Service manages note lifecycle and owns the locally computed content
// fingerprint embedded in on-chain provenance transactions.
type Service struct {
	db            *gorm.DB
	verifications Enqueuer
	logger        *slog.Logger
	now           func() time.Time
}

// NewService builds a configured note service.
func NewService(cfg Config) (*Service, error) {
	if cfg.DB == nil {
		return nil, errors.New("notes: db is required")
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
		db:            cfg.DB,
		verifications: cfg.Verifications,
		logger:        logger,
		now:           nowFn,
	}, nil
}

// ContentHash computes the fingerprint recorded on-chain for a note's content.
func ContentHash(title, content string) string {
	sum := sha256.Sum256([]byte(title + "\n" + content))
	return hex.EncodeToString(sum[:])
}

// CreateInput carries the fields accepted when creating or updating a note.
type CreateInput struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	TxHash      string `json:"txHash"`
	OwnerWallet string `json:"ownerWallet"`
}

func (in CreateInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if strings.TrimSpace(in.Content) == "" {
		return fmt.Errorf("%w: content is required", ErrValidation)
	}
	return nil
}

// Create stores a new note and, when a transaction hash accompanies it,
// enqueues the provenance claim for verification.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Note, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	note := models.Note{
		ID:                 uuid.New(),
		Title:              in.Title,
		Content:            in.Content,
		ContentHash:        ContentHash(in.Title, in.Content),
		TxHash:             strings.TrimSpace(in.TxHash),
		OwnerWallet:        strings.TrimSpace(in.OwnerWallet),
		VerificationStatus: models.NoteUnverified,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.db.WithContext(ctx).Create(&note).Error; err != nil {
		return nil, fmt.Errorf("notes: create note: %w", err)
	}
	s.logger.Info("created note", "id", note.ID, "title", note.Title)
	s.enqueueVerification(ctx, &note)
	return &note, nil
}

// Update replaces a note's title and content, recomputes its fingerprint, and
// enqueues verification for any new transaction hash.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in CreateInput) (*models.Note, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	note, err := s.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	note.Title = in.Title
	note.Content = in.Content
	note.ContentHash = ContentHash(in.Title, in.Content)
	if hash := strings.TrimSpace(in.TxHash); hash != "" {
		note.TxHash = hash
	}
	if wallet := strings.TrimSpace(in.OwnerWallet); wallet != "" {
		note.OwnerWallet = wallet
	}
	note.UpdatedAt = s.now().UTC()
	if err := s.db.WithContext(ctx).Save(note).Error; err != nil {
		return nil, fmt.Errorf("notes: update note: %w", err)
	}
	s.enqueueVerification(ctx, note)
	return note, nil
}

// Delete removes a note. Verification records for it are retained as an audit
// trail.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Delete(&models.Note{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("notes: delete note: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ByID returns the note with the given identifier.
func (s *Service) ByID(ctx context.Context, id uuid.UUID) (*models.Note, error) {
	var note models.Note
	if err := s.db.WithContext(ctx).First(&note, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("notes: load note: %w", err)
	}
	return &note, nil
}

// All returns every note, most recently updated first.
func (s *Service) All(ctx context.Context) ([]models.Note, error) {
	var list []models.Note
	if err := s.db.WithContext(ctx).Order("updated_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("notes: list notes: %w", err)
	}
	return list, nil
}

// Search returns notes whose title or content contains the keyword. An empty
// keyword lists everything.
func (s *Service) Search(ctx context.Context, keyword string) ([]models.Note, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return s.All(ctx)
	}
	pattern := "%" + keyword + "%"
	var list []models.Note
	err := s.db.WithContext(ctx).
		Where("title LIKE ? OR content LIKE ?", pattern, pattern).
		Order("updated_at DESC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("notes: search notes: %w", err)
	}
	return list, nil
}

// SetVerificationStatus records the verified/unverified outcome reported by
// the verification subsystem. A missing note is logged and swallowed.
func (s *Service) SetVerificationStatus(ctx context.Context, noteID uuid.UUID, verified bool) error {
	status := models.NoteUnverified
	if verified {
		status = models.NoteVerified
	}
	res := s.db.WithContext(ctx).Model(&models.Note{}).
		Where("id = ?", noteID).
		Updates(map[string]any{"verification_status": status, "updated_at": s.now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("notes: update verification status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		s.logger.Warn("verification outcome for unknown note", "noteId", noteID)
		return nil
	}
	s.logger.Info("note verification status updated", "noteId", noteID, "status", status)
	return nil
}

// enqueueVerification registers the note's claim with the verification
// subsystem, best effort. Enqueue is idempotent by tx hash so repeated saves
// of the same edit are safe.
func (s *Service) enqueueVerification(ctx context.Context, note *models.Note) {
	if s.verifications == nil || note.TxHash == "" {
		return
	}
	if _, err := s.verifications.Enqueue(ctx, note.ID, note.TxHash, note.ContentHash, note.OwnerWallet); err != nil {
		s.logger.Warn("failed to queue verification", "noteId", note.ID, "txHash", note.TxHash, "error", err)
	}
}

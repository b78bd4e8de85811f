package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VerificationStatus represents a state in the transaction verification lifecycle.
type VerificationStatus string

// All verification states. PENDING is initial; VERIFIED and EXPIRED are terminal.
const (
	StatusPending    VerificationStatus = "PENDING"
	StatusProcessing VerificationStatus = "PROCESSING"
	StatusVerified   VerificationStatus = "VERIFIED"
	StatusFailed     VerificationStatus = "FAILED"
	StatusExpired    VerificationStatus = "EXPIRED"
)

// Note verification outcomes persisted on the note itself.
const (
	NoteVerified   = "VERIFIED"
	NoteUnverified = "UNVERIFIED"
)

// DefaultMaxRetries is the retry budget assigned to new verification records.
const DefaultMaxRetries = 10

// Note stores user notes together with their provenance claim.
type Note struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title              string    `gorm:"size:255" json:"title"`
	Content            string    `gorm:"type:text" json:"content"`
	ContentHash        string    `gorm:"size:128" json:"contentHash"`
	TxHash             string    `gorm:"size:128;index" json:"txHash"`
	OwnerWallet        string    `gorm:"size:128;index" json:"ownerWallet"`
	VerificationStatus string    `gorm:"size:32" json:"verificationStatus"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `gorm:"index" json:"updatedAt"`
}

// TransactionVerification tracks the reconciliation of a note's on-chain claim
// against the ledger. Records are never deleted; they form the audit trail.
type TransactionVerification struct {
	ID                    uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
	NoteID                uuid.UUID          `gorm:"type:uuid;index" json:"noteId"`
	TxHash                string             `gorm:"size:128;uniqueIndex" json:"txHash"`
	ContentHash           string             `gorm:"size:128" json:"contentHash"`
	OwnerWallet           string             `gorm:"size:128;index" json:"ownerWallet"`
	Status                VerificationStatus `gorm:"size:32;index" json:"status"`
	RetryCount            int                `json:"retryCount"`
	MaxRetries            int                `json:"maxRetries"`
	LastError             string             `gorm:"type:text" json:"lastError,omitempty"`
	BlockchainContentHash string             `gorm:"size:128" json:"blockchainContentHash,omitempty"`
	BlockchainAction      string             `gorm:"size:64" json:"blockchainAction,omitempty"`
	HashMatch             *bool              `json:"hashMatch"`
	VerifiedAt            *time.Time         `json:"verifiedAt,omitempty"`
	CreatedAt             time.Time          `gorm:"index" json:"createdAt"`
	UpdatedAt             time.Time          `json:"updatedAt"`
}

// NewTransactionVerification constructs a PENDING record with timestamps
// stamped explicitly in UTC. Persistence hooks are deliberately not used.
func NewTransactionVerification(noteID uuid.UUID, txHash, contentHash, ownerWallet string, maxRetries int, now time.Time) TransactionVerification {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	ts := now.UTC()
	return TransactionVerification{
		ID:          uuid.New(),
		NoteID:      noteID,
		TxHash:      txHash,
		ContentHash: contentHash,
		OwnerWallet: ownerWallet,
		Status:      StatusPending,
		RetryCount:  0,
		MaxRetries:  maxRetries,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
}

// Touch stamps UpdatedAt; callers must invoke it on every mutation.
func (v *TransactionVerification) Touch(now time.Time) {
	v.UpdatedAt = now.UTC()
}

// ExceededMaxRetries reports whether the retry budget is exhausted.
func (v *TransactionVerification) ExceededMaxRetries() bool {
	return v.RetryCount >= v.MaxRetries
}

// Terminal reports whether no further automatic transition may occur.
func (v *TransactionVerification) Terminal() bool {
	return v.Status == StatusVerified || v.Status == StatusExpired
}

// AutoMigrate performs all schema migrations for the service.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Note{},
		&TransactionVerification{},
	)
}

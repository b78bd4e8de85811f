package verification

import (
	"errors"
	"fmt"
	"time"

	"redmatrix/ledger"
	"redmatrix/models"
)

// metadataLabel is the on-chain metadata label under which note provenance
// payloads are published.
const metadataLabel = "674"

// Reconcile decides the outcome of one verification attempt. It takes the
// record as it was before the attempt, the metadata entries fetched for its
// transaction (with the fetch error, if any), and returns the updated record.
// It performs no I/O; persistence is the caller's responsibility.
func Reconcile(rec models.TransactionVerification, entries []ledger.TxMetadata, fetchErr error, now time.Time) models.TransactionVerification {
	if fetchErr != nil {
		if errors.Is(fetchErr, ledger.ErrUnconfigured) {
			// Permanent environment error: surface it without consuming the
			// retry budget and leave the record eligible for a later pass.
			rec.Status = models.StatusPending
			rec.LastError = fetchErr.Error()
			rec.Touch(now)
			return rec
		}
		return fail(rec, fetchErr.Error(), now)
	}

	if len(entries) == 0 {
		return fail(rec, "no metadata found in transaction", now)
	}

	payload, ok := noteMetadata(entries)
	if !ok {
		return fail(rec, fmt.Sprintf("note metadata (label %s) not found in transaction", metadataLabel), now)
	}

	rec.BlockchainContentHash = stringField(payload, "contentHash")
	rec.BlockchainAction = stringField(payload, "msg")

	// A record with no stored hash can never match.
	matched := rec.ContentHash != "" && rec.ContentHash == rec.BlockchainContentHash
	rec.HashMatch = &matched

	if !matched {
		reason := fmt.Sprintf("content hash mismatch: expected %s, found %s", rec.ContentHash, rec.BlockchainContentHash)
		return fail(rec, reason, now)
	}

	ts := now.UTC()
	rec.Status = models.StatusVerified
	rec.VerifiedAt = &ts
	rec.LastError = ""
	rec.Touch(now)
	return rec
}

// fail consumes one retry and moves the record to FAILED, or EXPIRED once the
// budget is exhausted.
func fail(rec models.TransactionVerification, reason string, now time.Time) models.TransactionVerification {
	rec.RetryCount++
	rec.LastError = reason
	if rec.ExceededMaxRetries() {
		rec.Status = models.StatusExpired
	} else {
		rec.Status = models.StatusFailed
	}
	rec.Touch(now)
	return rec
}

// noteMetadata scans the entries for the provenance label and returns its
// structured payload.
func noteMetadata(entries []ledger.TxMetadata) (map[string]any, bool) {
	for _, entry := range entries {
		if entry.Label != metadataLabel {
			continue
		}
		if payload, ok := entry.JSONMetadata.(map[string]any); ok {
			return payload, true
		}
	}
	return nil, false
}

// stringField extracts a value that may be a plain string or a chunked list of
// strings (the on-chain encoding splits long values); anything else is
// stringified.
func stringField(payload map[string]any, key string) string {
	value, ok := payload[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case []any:
		if len(v) > 0 {
			return fmt.Sprint(v[0])
		}
	}
	return fmt.Sprint(value)
}

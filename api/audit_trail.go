package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var auditBucket = []byte("audit")

// AuditTrail is an append-only record of security events backed by bbolt.
// Keys carry a fixed-width UnixNano prefix so a forward cursor walk is
// chronological.
type AuditTrail struct {
	db *bolt.DB
}

// AuditRecord is one persisted audit entry.
type AuditRecord struct {
	ID         string `json:"id"`
	Event      string `json:"event"`
	Username   string `json:"username,omitempty"`
	RemoteAddr string `json:"remoteAddr"`
	Detail     string `json:"detail,omitempty"`
	CreatedAt  string `json:"createdAt"`
}

// OpenAuditTrail opens or creates the audit database at path.
func OpenAuditTrail(path string) (*AuditTrail, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating audit directory: %w", err)
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(auditBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating audit bucket: %w", err)
	}
	return &AuditTrail{db: db}, nil
}

// Close releases the underlying database.
func (t *AuditTrail) Close() error {
	return t.db.Close()
}

// Append persists one audit entry.
func (t *AuditTrail) Append(event AuditEvent, username, remoteAddr, detail string) error {
	now := time.Now().UTC()
	rec := AuditRecord{
		ID:         uuid.NewString(),
		Event:      string(event),
		Username:   username,
		RemoteAddr: remoteAddr,
		Detail:     detail,
		CreatedAt:  now.Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	key := auditKey(now, rec.ID)
	return t.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(auditBucket).Put(key, data)
	})
}

// auditKey builds a bucket key whose lexical order matches time order. A
// variable-width timestamp (RFC 3339 trims trailing zeros) would sort a
// whole-second entry after a later sub-second one.
func auditKey(t time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%020d|%s", t.UnixNano(), id))
}

// List returns up to limit entries, newest first.
func (t *AuditTrail) List(limit int) ([]AuditRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	records := make([]AuditRecord, 0, limit)
	err := t.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(auditBucket).Cursor()
		for k, v := c.Last(); k != nil && len(records) < limit; k, v = c.Prev() {
			var rec AuditRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ListAudit returns recent audit entries. Admin only; the route enforces
// the role check.
func (a *API) ListAudit(w http.ResponseWriter, r *http.Request) {
	if a.trail == nil {
		writeError(w, r, http.StatusNotFound, "Audit trail is not enabled")
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	records, err := a.trail.List(limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": records, "count": len(records)})
}

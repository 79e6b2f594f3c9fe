package store

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// StoreRawPayload stores a gzip-compressed forecast response. Identical
// payloads are stored once; the existing ID is returned for duplicates.
func (s *Store) StoreRawPayload(runID string, batchIndex int, payload []byte) (int64, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return 0, fmt.Errorf("compress payload: %w", err)
	}
	if err := gz.Close(); err != nil {
		return 0, fmt.Errorf("close gzip: %w", err)
	}

	hash := sha256.Sum256(payload)
	hashHex := hex.EncodeToString(hash[:])

	result, err := s.db.Exec(`
		INSERT INTO raw_payloads (run_id, batch_index, fetched_at, payload_compressed, payload_hash)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(payload_hash) DO NOTHING
	`, runID, batchIndex, time.Now().UTC(), buf.Bytes(), hashHex)
	if err != nil {
		return 0, fmt.Errorf("insert raw payload: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		var id int64
		if err := s.db.QueryRow(`SELECT id FROM raw_payloads WHERE payload_hash = ?`, hashHex).Scan(&id); err != nil {
			return 0, fmt.Errorf("lookup duplicate payload: %w", err)
		}
		return id, nil
	}

	return result.LastInsertId()
}

// GetRawPayload retrieves and decompresses a stored payload by ID.
func (s *Store) GetRawPayload(id int64) ([]byte, error) {
	var compressed []byte
	err := s.db.QueryRow(`SELECT payload_compressed FROM raw_payloads WHERE id = ?`, id).
		Scan(&compressed)
	if err != nil {
		return nil, err
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gz.Close()

	return io.ReadAll(gz)
}

// CleanupOldRawPayloads deletes payloads older than retentionDays and
// returns the number removed.
func (s *Store) CleanupOldRawPayloads(retentionDays int) (int64, error) {
	if _, err := s.db.Exec(`
		UPDATE batch_results SET payload_id = NULL
		WHERE payload_id IN (
			SELECT id FROM raw_payloads WHERE SUBSTR(fetched_at, 1, 19) < datetime('now', '-' || ? || ' days')
		)
	`, retentionDays); err != nil {
		return 0, err
	}
	result, err := s.db.Exec(`
		DELETE FROM raw_payloads
		WHERE SUBSTR(fetched_at, 1, 19) < datetime('now', '-' || ? || ' days')
	`, retentionDays)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

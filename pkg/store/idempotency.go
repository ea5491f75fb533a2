package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/papercomputeco/recall/pkg/canonical"
	"github.com/papercomputeco/recall/pkg/record"
)

// marker maps an idempotency token to the record created with it.
type marker struct {
	ID        string      `json:"id"`
	Kind      record.Kind `json:"kind"`
	CreatedAt time.Time   `json:"created_at"`
}

// markerName hashes kind and token so arbitrary tokens make safe file names.
func markerName(k record.Kind, token string) string {
	sum := sha256.Sum256([]byte(string(k) + "\x00" + token))
	return hex.EncodeToString(sum[:]) + ".json"
}

func (s *Store) markerPath(project string, k record.Kind, token string) string {
	return filepath.Join(record.ProjectDir(s.root, project), record.IdempotencyDir, markerName(k, token))
}

// resolveToken finds the record previously created with token. The marker is
// consulted first; a missing or dangling marker falls back to scanning the
// idempotency_key field of every record of kind k, repairing the marker on a
// hit. The caller holds the project lock.
func (s *Store) resolveToken(project string, k record.Kind, token string) (string, bool, error) {
	if id, ok := s.readMarker(project, k, token); ok {
		return id, true, nil
	}

	dir := record.KindDir(s.root, project, k)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("scanning %s for idempotency key: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !record.IsRecordFile(k, entry.Name()) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}

		var keyed struct {
			ID             string `json:"id"`
			IdempotencyKey string `json:"idempotency_key"`
		}
		if json.Unmarshal(data, &keyed) != nil || keyed.IdempotencyKey != token {
			continue
		}

		if err := s.writeMarker(project, k, token, keyed.ID); err != nil {
			s.logger.Warn("repairing idempotency marker", "project", project, "id", keyed.ID, "error", err)
		}
		return keyed.ID, true, nil
	}

	return "", false, nil
}

func (s *Store) readMarker(project string, k record.Kind, token string) (string, bool) {
	data, err := os.ReadFile(s.markerPath(project, k, token))
	if err != nil {
		return "", false
	}

	var m marker
	if err := json.Unmarshal(data, &m); err != nil || m.Kind != k || !validID(m.ID) {
		return "", false
	}
	if _, err := os.Stat(record.Path(s.root, project, k, m.ID)); err != nil {
		return "", false
	}
	return m.ID, true
}

func (s *Store) writeMarker(project string, k record.Kind, token, id string) error {
	data, err := canonical.Marshal(marker{
		ID:        id,
		Kind:      k,
		CreatedAt: record.Timestamp(s.now()),
	})
	if err != nil {
		return err
	}
	return s.writer.Write(s.markerPath(project, k, token), data)
}

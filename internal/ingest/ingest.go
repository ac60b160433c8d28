// Package ingest loads JSON-lines certificate records into the record store.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/adamscao/ctapi/internal/db/repository"
	"github.com/adamscao/ctapi/internal/identifier"
	"github.com/adamscao/ctapi/internal/models"
	"github.com/adamscao/ctapi/pkg/certutil"
)

// maxLineSize bounds a single JSON record
const maxLineSize = 4 << 20

// Store persists prepared records
type Store interface {
	Insert(ctx context.Context, cert *models.CertificateRecord) error
}

// LineError describes a rejected input line
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Stats summarizes an import
type Stats struct {
	Imported   int
	Duplicates int
	Rejected   []*LineError
}

// Prepare validates a record before it is stored. Missing fingerprints are
// computed from the payload; supplied ones must match it. A missing id is
// generated and the expired flag is derived from NotAfter.
func Prepare(rec *models.CertificateRecord, now time.Time) error {
	if rec.RawBase64 == "" {
		return errors.New("record has no raw payload")
	}

	fp, err := certutil.GetFingerprintsBase64(rec.RawBase64)
	if err != nil {
		return err
	}

	if rec.FingerprintSHA1 == "" {
		rec.FingerprintSHA1 = fp.SHA1
	} else if !certutil.FingerprintMatches(rec.FingerprintSHA1, fp.SHA1) {
		return fmt.Errorf("sha1 fingerprint %s does not match payload", rec.FingerprintSHA1)
	}
	if rec.FingerprintSHA256 == "" {
		rec.FingerprintSHA256 = fp.SHA256
	} else if !certutil.FingerprintMatches(rec.FingerprintSHA256, fp.SHA256) {
		return fmt.Errorf("sha256 fingerprint %s does not match payload", rec.FingerprintSHA256)
	}
	// Stored fingerprints are normalized so lookups compare exactly
	rec.FingerprintSHA1 = fp.SHA1
	rec.FingerprintSHA256 = fp.SHA256

	if rec.ID == "" {
		if rec.ID, err = certutil.NewID(now); err != nil {
			return err
		}
	} else if identifier.Classify(rec.ID).Kind != identifier.KindDatabaseID {
		return fmt.Errorf("record id %q must be %d characters", rec.ID, identifier.DatabaseIDLength)
	}

	if !rec.NotAfter.IsZero() {
		rec.IsExpired = rec.NotAfter.Before(now)
	}

	return nil
}

// ReadJSONL imports one record per line. Malformed or inconsistent lines and
// duplicates are counted and skipped; a store failure or read error aborts
// the import.
func ReadJSONL(ctx context.Context, store Store, r io.Reader, now time.Time) (*Stats, error) {
	stats := &Stats{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	line := 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}

		rec := &models.CertificateRecord{}
		if err := json.Unmarshal(data, rec); err != nil {
			stats.Rejected = append(stats.Rejected, &LineError{Line: line, Err: err})
			continue
		}
		if err := Prepare(rec, now); err != nil {
			stats.Rejected = append(stats.Rejected, &LineError{Line: line, Err: err})
			continue
		}

		err := store.Insert(ctx, rec)
		if errors.Is(err, repository.ErrDuplicate) {
			stats.Duplicates++
			continue
		}
		if err != nil {
			return stats, &LineError{Line: line, Err: err}
		}
		stats.Imported++
	}

	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("failed to read records: %w", err)
	}

	return stats, nil
}

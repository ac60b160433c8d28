// Package artifact turns stored certificate records into downloadable DER files.
package artifact

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/adamscao/ctapi/internal/models"
)

const (
	// ContentType is the media type of every materialized artifact
	ContentType = "application/octet-stream"

	// Extension is appended to the record id to form the filename
	Extension = ".der"
)

// ErrDecode is returned when a stored payload cannot be decoded
var ErrDecode = errors.New("certificate payload is corrupt")

// Artifact is a named binary attachment
type Artifact struct {
	Filename    string
	ContentType string
	Body        []byte
}

// Materialize decodes the record's base64 payload into a DER attachment.
// Nothing is cached; every call decodes again.
func Materialize(rec *models.CertificateRecord) (*Artifact, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: no record", ErrDecode)
	}

	body, err := base64.StdEncoding.DecodeString(rec.RawBase64)
	if err != nil {
		return nil, fmt.Errorf("%w: record %s: %v", ErrDecode, rec.ID, err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: record %s has an empty payload", ErrDecode, rec.ID)
	}

	return &Artifact{
		Filename:    rec.ID + Extension,
		ContentType: ContentType,
		Body:        body,
	}, nil
}

// ContentDisposition returns the header value offering the artifact as a download
func (a *Artifact) ContentDisposition() string {
	return "attachment; filename=" + a.Filename
}

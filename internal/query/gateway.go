package query

import (
	"context"

	"github.com/adamscao/ctapi/internal/models"
)

// Field selects the search axis of a Filter
type Field int

const (
	FieldAll Field = iota
	FieldOrganization
	FieldZone
	FieldName
	FieldSHA1
	FieldSHA256
	FieldIssuer
	FieldCorporate
	FieldSignatureAlgorithm
)

func (f Field) String() string {
	switch f {
	case FieldOrganization:
		return "organization"
	case FieldZone:
		return "zone"
	case FieldName:
		return "name"
	case FieldSHA1:
		return "sha1"
	case FieldSHA256:
		return "sha256"
	case FieldIssuer:
		return "issuer"
	case FieldCorporate:
		return "corporate"
	case FieldSignatureAlgorithm:
		return "signature_algorithm"
	default:
		return "all"
	}
}

// Filter describes a certificate search. Value is interpreted according to
// Field: a domain suffix for FieldCorporate, unused for FieldAll.
type Filter struct {
	Field          Field
	Value          string
	ExcludeExpired bool
}

// Gateway is the record store consumed by the Dispatcher.
//
// Get returns ErrNotFound when no record has the id. Find and Issuers
// return an empty slice when nothing matches. Find returns
// ErrTooManyResults rather than a partial list. Any other error is a store
// failure.
type Gateway interface {
	Get(ctx context.Context, id string) (*models.CertificateRecord, error)
	Find(ctx context.Context, f Filter) ([]*models.CertificateRecord, error)
	Count(ctx context.Context, f Filter) (int64, error)
	Issuers(ctx context.Context) ([]string, error)
}

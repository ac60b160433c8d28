package query

import "github.com/adamscao/ctapi/internal/models"

// DefaultSignatureAlgorithm is used when no algorithm is requested
const DefaultSignatureAlgorithm = "RSA-SHA1"

// OrganizationRequest searches by subject organization
type OrganizationRequest struct {
	Org   string `form:"org"`
	Count bool   `form:"count"`
}

// ZoneRequest searches by DNS zone
type ZoneRequest struct {
	Zone  string `form:"zone"`
	Count bool   `form:"count"`
}

// CommonNameRequest searches by common name or DNS name
type CommonNameRequest struct {
	CN string `form:"cn"`
}

// IPRequest searches by IP address
type IPRequest struct {
	IP string `form:"ip"`
}

// FingerprintRequest searches by SHA1 or SHA256 fingerprint
type FingerprintRequest struct {
	Fingerprint string `uri:"fingerprint" form:"-"`
	Count       bool   `form:"count"`
}

// IssuerRequest searches unexpired certificates by issuer common name
type IssuerRequest struct {
	Issuer string `uri:"issuer" form:"-"`
	Count  bool   `form:"count"`
}

// CorporateRequest searches certificates under the internal domain suffix
type CorporateRequest struct {
	ExcludeExpired bool `form:"exclude_expired"`
	Count          bool `form:"count"`
}

// SignatureAlgorithmRequest searches unexpired certificates by signature algorithm
type SignatureAlgorithmRequest struct {
	Algorithm string `form:"algorithm,default=RSA-SHA1"`
	Count     bool   `form:"count"`
}

// Result is a successful lookup. Exactly one of the fields is meaningful,
// chosen by the operation and its count flag.
type Result struct {
	Records []*models.CertificateRecord
	Record  *models.CertificateRecord
	Issuers []string
	Count   int64
	Counted bool
}

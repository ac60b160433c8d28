package models

import "time"

// CertificateRecord represents one stored CT log entry
type CertificateRecord struct {
	ID                  string    `json:"_id"`
	FingerprintSHA1     string    `json:"fingerprint_sha1"`
	FingerprintSHA256   string    `json:"fingerprint_sha256"`
	RawBase64           string    `json:"raw,omitempty"`
	IssuerCommonNames   []string  `json:"issuer_common_name"`
	SubjectCommonNames  []string  `json:"subject_common_name"`
	SubjectDNSNames     []string  `json:"subject_dns_names"`
	SubjectIPAddresses  []string  `json:"subject_ip_addresses"`
	SubjectOrganization []string  `json:"subject_organization"`
	NotBefore           time.Time `json:"not_before"`
	NotAfter            time.Time `json:"not_after"`
	IsExpired           bool      `json:"is_expired"`
	IsSelfSigned        bool      `json:"is_self_signed"`
	BasicConstraintCA   bool      `json:"basic_constraint_ca"`
	SignatureAlgorithm  string    `json:"signature_algorithm"`
	Sources             []string  `json:"sources,omitempty"`
	SCTs                []SCT     `json:"scts,omitempty"`
}

// SCT is a signed certificate timestamp attached to a record
type SCT struct {
	Version    int    `json:"version"`
	LogID      string `json:"log_id"`
	Timestamp  int64  `json:"timestamp"`
	Extensions string `json:"extensions,omitempty"`
	Signature  string `json:"signature,omitempty"`
}

// Name kinds indexed in certificate_names
const (
	NameKindCommonName   = "cn"
	NameKindDNS          = "dns"
	NameKindIP           = "ip"
	NameKindOrganization = "org"
	NameKindIssuer       = "issuer"
)

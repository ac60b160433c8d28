// Package query validates certificate searches and dispatches them to the
// record store.
package query

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/adamscao/ctapi/internal/artifact"
	"github.com/adamscao/ctapi/internal/identifier"
	"github.com/adamscao/ctapi/internal/metrics"
	"github.com/adamscao/ctapi/internal/models"
)

// DefaultTimeout bounds a single Gateway call when none is configured
const DefaultTimeout = 10 * time.Second

// Options configures a Dispatcher
type Options struct {
	// CorpDomainSuffix scopes the corporate certificate searches
	CorpDomainSuffix string

	// Timeout bounds every Gateway call
	Timeout time.Duration

	Logger *slog.Logger
}

// Dispatcher maps typed requests onto Gateway calls
type Dispatcher struct {
	gw         Gateway
	corpSuffix string
	timeout    time.Duration
	logger     *slog.Logger
}

// NewDispatcher creates a dispatcher over the given gateway
func NewDispatcher(gw Gateway, opts Options) *Dispatcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		gw:         gw,
		corpSuffix: opts.CorpDomainSuffix,
		timeout:    timeout,
		logger:     logger,
	}
}

// ByOrganization searches by subject organization
func (d *Dispatcher) ByOrganization(ctx context.Context, req OrganizationRequest) (*Result, error) {
	if req.Org == "" {
		return nil, badRequest("Missing org parameter")
	}
	return d.lookup(ctx, "org", Filter{Field: FieldOrganization, Value: req.Org}, req.Count)
}

// ByZone searches by DNS zone
func (d *Dispatcher) ByZone(ctx context.Context, req ZoneRequest) (*Result, error) {
	if req.Zone == "" {
		return nil, badRequest("Missing zone parameter")
	}
	return d.lookup(ctx, "zone", Filter{Field: FieldZone, Value: req.Zone}, req.Count)
}

// ByCommonName searches by subject common name or DNS name
func (d *Dispatcher) ByCommonName(ctx context.Context, req CommonNameRequest) (*Result, error) {
	if req.CN == "" {
		return nil, badRequest("Missing cn parameter")
	}
	return d.lookup(ctx, "common_name", Filter{Field: FieldName, Value: req.CN}, false)
}

// ByIP searches by IP address. It shares the common name lookup.
func (d *Dispatcher) ByIP(ctx context.Context, req IPRequest) (*Result, error) {
	if req.IP == "" {
		return nil, badRequest("Missing ip parameter")
	}
	return d.lookup(ctx, "ip", Filter{Field: FieldName, Value: req.IP}, false)
}

// ByFingerprint searches by SHA1 (40 chars) or SHA256 (64 chars) fingerprint
func (d *Dispatcher) ByFingerprint(ctx context.Context, req FingerprintRequest) (*Result, error) {
	class := identifier.ClassifyFingerprint(req.Fingerprint)
	if !class.Valid() {
		metrics.RecordLookup("fingerprint", metrics.OutcomeBadRequest)
		return nil, badRequest("Invalid fingerprint value")
	}
	return d.lookup(ctx, "fingerprint", fingerprintFilter(class), req.Count)
}

// Issuers lists the distinct issuer common names
func (d *Dispatcher) Issuers(ctx context.Context) (*Result, error) {
	var issuers []string
	err := d.call(ctx, "issuers", func(ctx context.Context) (err error) {
		issuers, err = d.gw.Issuers(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(issuers) == 0 {
		metrics.RecordLookup("issuers", metrics.OutcomeNotFound)
		return nil, ErrNotFound
	}
	metrics.RecordLookup("issuers", metrics.OutcomeFound)
	return &Result{Issuers: issuers}, nil
}

// ByIssuer searches unexpired certificates by issuer common name
func (d *Dispatcher) ByIssuer(ctx context.Context, req IssuerRequest) (*Result, error) {
	if req.Issuer == "" {
		return nil, badRequest("Missing issuer parameter")
	}
	return d.lookup(ctx, "issuer", Filter{Field: FieldIssuer, Value: req.Issuer, ExcludeExpired: true}, req.Count)
}

// ByID fetches a single record by database id
func (d *Dispatcher) ByID(ctx context.Context, id string) (*Result, error) {
	if id == "" {
		return nil, badRequest("Missing id parameter")
	}
	rec, err := d.get(ctx, "id", id)
	if err != nil {
		return nil, err
	}
	return &Result{Record: rec}, nil
}

// Download resolves an id or fingerprint and materializes the stored
// certificate as a DER attachment.
func (d *Dispatcher) Download(ctx context.Context, raw string) (*artifact.Artifact, error) {
	class := identifier.Classify(raw)

	var rec *models.CertificateRecord
	switch class.Kind {
	case identifier.KindDatabaseID:
		var err error
		if rec, err = d.get(ctx, "download", class.Value); err != nil {
			return nil, err
		}
	case identifier.KindSHA1, identifier.KindSHA256:
		res, err := d.lookup(ctx, "download", fingerprintFilter(class), false)
		if err != nil {
			return nil, err
		}
		rec = res.Records[0]
	default:
		metrics.RecordLookup("download", metrics.OutcomeBadRequest)
		return nil, badRequest("Unrecognized ID")
	}

	a, err := artifact.Materialize(rec)
	if err != nil {
		d.logger.Error("failed to materialize certificate", "id", rec.ID, "error", err)
		return nil, err
	}
	return a, nil
}

// Corporate searches certificates under the configured internal domain suffix
func (d *Dispatcher) Corporate(ctx context.Context, req CorporateRequest) (*Result, error) {
	f := Filter{Field: FieldCorporate, Value: d.corpSuffix, ExcludeExpired: req.ExcludeExpired}
	return d.lookup(ctx, "corp_certs", f, req.Count)
}

// BySignatureAlgorithm searches unexpired certificates by signature
// algorithm. Without Count it lists the matches, and an empty list is
// ErrNotFound like every other list search.
func (d *Dispatcher) BySignatureAlgorithm(ctx context.Context, req SignatureAlgorithmRequest) (*Result, error) {
	algorithm := req.Algorithm
	if algorithm == "" {
		algorithm = DefaultSignatureAlgorithm
	}
	f := Filter{Field: FieldSignatureAlgorithm, Value: algorithm, ExcludeExpired: true}
	return d.lookup(ctx, "signature_algorithm", f, req.Count)
}

// CorporateCount counts every certificate under the internal domain suffix
func (d *Dispatcher) CorporateCount(ctx context.Context) (*Result, error) {
	return d.lookup(ctx, "corp_count", Filter{Field: FieldCorporate, Value: d.corpSuffix}, true)
}

// TotalCount counts the entire store
func (d *Dispatcher) TotalCount(ctx context.Context) (*Result, error) {
	return d.lookup(ctx, "total_count", Filter{Field: FieldAll}, true)
}

func fingerprintFilter(class identifier.Class) Filter {
	if class.Kind == identifier.KindSHA1 {
		return Filter{Field: FieldSHA1, Value: class.Value}
	}
	return Filter{Field: FieldSHA256, Value: class.Value}
}

// lookup runs f in count or list mode. A count of zero is a valid result;
// an empty list is ErrNotFound.
func (d *Dispatcher) lookup(ctx context.Context, axis string, f Filter, count bool) (*Result, error) {
	if count {
		var n int64
		err := d.call(ctx, axis, func(ctx context.Context) (err error) {
			n, err = d.gw.Count(ctx, f)
			return err
		})
		if err != nil {
			return nil, err
		}
		metrics.RecordLookup(axis, metrics.OutcomeFound)
		return &Result{Count: n, Counted: true}, nil
	}

	var records []*models.CertificateRecord
	err := d.call(ctx, axis, func(ctx context.Context) (err error) {
		records, err = d.gw.Find(ctx, f)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		metrics.RecordLookup(axis, metrics.OutcomeNotFound)
		return nil, ErrNotFound
	}
	metrics.RecordLookup(axis, metrics.OutcomeFound)
	return &Result{Records: records}, nil
}

func (d *Dispatcher) get(ctx context.Context, axis, id string) (*models.CertificateRecord, error) {
	var rec *models.CertificateRecord
	err := d.call(ctx, axis, func(ctx context.Context) (err error) {
		rec, err = d.gw.Get(ctx, id)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		metrics.RecordLookup(axis, metrics.OutcomeNotFound)
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if rec == nil {
		metrics.RecordLookup(axis, metrics.OutcomeNotFound)
		return nil, ErrNotFound
	}
	metrics.RecordLookup(axis, metrics.OutcomeFound)
	return rec, nil
}

// call runs one Gateway call under the configured deadline. The call is
// abandoned once the deadline passes, even if the gateway ignores ctx.
// ErrNotFound and ErrTooManyResults pass through; every other failure
// becomes a StoreError.
func (d *Dispatcher) call(ctx context.Context, axis string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, ErrTooManyResults) {
		metrics.RecordLookup(axis, metrics.OutcomeTooMany)
		return ErrTooManyResults
	}

	metrics.RecordLookup(axis, metrics.OutcomeError)
	d.logger.Error("record store query failed", "axis", axis, "error", err)
	return &StoreError{Op: axis, Err: err}
}

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/adamscao/ctapi/internal/models"
	"github.com/adamscao/ctapi/internal/query"
)

// ErrDuplicate is returned when a record with the same id or fingerprint
// is already stored
var ErrDuplicate = errors.New("certificate already exists")

// CertRepository handles certificate record data access. It implements
// query.Gateway.
type CertRepository struct {
	db         *sql.DB
	maxResults int
}

var _ query.Gateway = (*CertRepository)(nil)

// NewCertRepository creates a new certificate repository. maxResults caps
// the records Find may return; a larger match fails with
// query.ErrTooManyResults instead of being truncated. Zero means no cap.
func NewCertRepository(db *sql.DB, maxResults int) *CertRepository {
	return &CertRepository{db: db, maxResults: maxResults}
}

// Insert stores a new certificate record together with its name index
func (r *CertRepository) Insert(ctx context.Context, cert *models.CertificateRecord) error {
	document, err := json.Marshal(cert)
	if err != nil {
		return fmt.Errorf("failed to encode certificate record: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO certificates (
			id, sha1, sha256, raw_base64, not_before, not_after, is_expired,
			is_self_signed, basic_constraint_ca, signature_algorithm, document
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		cert.ID,
		cert.FingerprintSHA1,
		cert.FingerprintSHA256,
		cert.RawBase64,
		cert.NotBefore.UTC(),
		cert.NotAfter.UTC(),
		boolToInt(cert.IsExpired),
		boolToInt(cert.IsSelfSigned),
		boolToInt(cert.BasicConstraintCA),
		cert.SignatureAlgorithm,
		string(document),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("certificate %s: %w", cert.ID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to create certificate record: %w", err)
	}

	names := map[string][]string{
		models.NameKindCommonName:   cert.SubjectCommonNames,
		models.NameKindDNS:          cert.SubjectDNSNames,
		models.NameKindIP:           cert.SubjectIPAddresses,
		models.NameKindOrganization: cert.SubjectOrganization,
		models.NameKindIssuer:       cert.IssuerCommonNames,
	}
	for kind, values := range names {
		for _, value := range values {
			if value == "" {
				continue
			}
			_, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO certificate_names (cert_id, kind, value) VALUES (?, ?, ?)`,
				cert.ID, kind, value,
			)
			if err != nil {
				return fmt.Errorf("failed to index certificate name: %w", err)
			}
		}
	}

	return tx.Commit()
}

// Get retrieves a certificate by database id
func (r *CertRepository) Get(ctx context.Context, id string) (*models.CertificateRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT c.document, c.is_expired
		FROM certificates c
		WHERE c.id = ?
	`, id)

	cert, err := scanCert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("certificate %s: %w", id, query.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get certificate: %w", err)
	}

	return cert, nil
}

// Find lists the certificates matching f, newest first
func (r *CertRepository) Find(ctx context.Context, f query.Filter) ([]*models.CertificateRecord, error) {
	where, args := buildWhere(f)

	q := `SELECT c.document, c.is_expired FROM certificates c WHERE ` + where +
		` ORDER BY c.not_before DESC, c.id`
	if r.maxResults > 0 {
		q += ` LIMIT ?`
		args = append(args, r.maxResults+1)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find certificates by %s: %w", f.Field, err)
	}
	defer rows.Close()

	certs := []*models.CertificateRecord{}
	for rows.Next() {
		cert, err := scanCert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate certificates: %w", err)
	}
	if r.maxResults > 0 && len(certs) > r.maxResults {
		return nil, fmt.Errorf("more than %d certificates by %s: %w", r.maxResults, f.Field, query.ErrTooManyResults)
	}

	return certs, nil
}

// Count counts the certificates matching f
func (r *CertRepository) Count(ctx context.Context, f query.Filter) (int64, error) {
	where, args := buildWhere(f)

	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM certificates c WHERE `+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count certificates by %s: %w", f.Field, err)
	}

	return count, nil
}

// Issuers lists the distinct issuer common names
func (r *CertRepository) Issuers(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT value
		FROM certificate_names
		WHERE kind = ?
		ORDER BY value
	`, models.NameKindIssuer)
	if err != nil {
		return nil, fmt.Errorf("failed to list issuers: %w", err)
	}
	defer rows.Close()

	issuers := []string{}
	for rows.Next() {
		var issuer string
		if err := rows.Scan(&issuer); err != nil {
			return nil, fmt.Errorf("failed to scan issuer: %w", err)
		}
		issuers = append(issuers, issuer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate issuers: %w", err)
	}

	return issuers, nil
}

// RefreshExpired recomputes the expired flag of every certificate against
// now and returns the number of records that changed.
func (r *CertRepository) RefreshExpired(ctx context.Context, now time.Time) (int64, error) {
	now = now.UTC()
	result, err := r.db.ExecContext(ctx, `
		UPDATE certificates
		SET is_expired = CASE WHEN not_after < ? THEN 1 ELSE 0 END
		WHERE is_expired != CASE WHEN not_after < ? THEN 1 ELSE 0 END
	`, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to refresh expired flags: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return count, nil
}

// buildWhere translates a filter into a WHERE clause over certificates c
func buildWhere(f query.Filter) (string, []any) {
	var clause string
	var args []any

	switch f.Field {
	case query.FieldOrganization:
		clause = nameMatch(models.NameKindOrganization) + ` AND n.value = ?)`
		args = append(args, f.Value)
	case query.FieldName:
		clause = nameMatch(models.NameKindCommonName, models.NameKindDNS, models.NameKindIP) + ` AND n.value = ?)`
		args = append(args, f.Value)
	case query.FieldZone:
		clause = nameMatch(models.NameKindDNS) + ` AND (n.value = ? OR n.value LIKE ? ESCAPE '\'))`
		args = append(args, f.Value, "%."+escapeLike(f.Value))
	case query.FieldCorporate:
		clause = nameMatch(models.NameKindCommonName, models.NameKindDNS) + ` AND (n.value = ? OR n.value LIKE ? ESCAPE '\'))`
		args = append(args, f.Value, "%."+escapeLike(f.Value))
	case query.FieldIssuer:
		clause = nameMatch(models.NameKindIssuer) + ` AND n.value = ?)`
		args = append(args, f.Value)
	case query.FieldSHA1:
		clause = `c.sha1 = ?`
		args = append(args, f.Value)
	case query.FieldSHA256:
		clause = `c.sha256 = ?`
		args = append(args, f.Value)
	case query.FieldSignatureAlgorithm:
		clause = `c.signature_algorithm = ?`
		args = append(args, f.Value)
	default:
		clause = `1=1`
	}

	if f.ExcludeExpired {
		clause += ` AND c.is_expired = 0`
	}

	return clause, args
}

// nameMatch opens an EXISTS subquery over certificate_names rows of the
// given kinds. The caller appends the value condition and the closing paren.
func nameMatch(kinds ...string) string {
	quoted := make([]string, len(kinds))
	for i, kind := range kinds {
		quoted[i] = "'" + kind + "'"
	}
	return `EXISTS (SELECT 1 FROM certificate_names n WHERE n.cert_id = c.id AND n.kind IN (` +
		strings.Join(quoted, ", ") + `)`
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCert(row rowScanner) (*models.CertificateRecord, error) {
	var document string
	var expired int
	if err := row.Scan(&document, &expired); err != nil {
		return nil, err
	}

	cert := &models.CertificateRecord{}
	if err := json.Unmarshal([]byte(document), cert); err != nil {
		return nil, fmt.Errorf("malformed certificate document: %w", err)
	}
	// The stored flag is refreshed by the expiry sweep; the document is not
	cert.IsExpired = expired == 1

	return cert, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

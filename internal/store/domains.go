package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Reachability is the tri-state outcome of a homepage check.
type Reachability int

const (
	Down         Reachability = 0
	Up           Reachability = 1
	AccessDenied Reachability = 2
)

// Domain is one monitored web property.
type Domain struct {
	ID                   string     `json:"id"`
	Label                string     `json:"label"`
	URL                  string     `json:"url"`
	RESTBase             string     `json:"rest_base"` // absolute URL override, or empty
	CMSUser              string     `json:"cms_user"`
	CMSSecret            string     `json:"cms_secret"` // encrypted at rest
	SearchQuery          string     `json:"search_query"`
	CheckIntervalMinutes int        `json:"check_interval_minutes"`
	RESTIntervalMinutes  int        `json:"rest_interval_minutes"`
	Enabled              bool       `json:"enabled"`
	WhoisExpiry          *time.Time `json:"whois_expiry,omitempty"`
	Nameservers          string     `json:"nameservers,omitempty"`
	LastGeneralCheckAt   *time.Time `json:"last_general_check_at,omitempty"`
	LastRESTCheckAt      *time.Time `json:"last_rest_check_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

const domainCols = `id, label, url, rest_base, cms_user, cms_secret, search_query,
	check_interval_minutes, rest_interval_minutes, enabled, whois_expiry, nameservers,
	last_general_check_at, last_rest_check_at, created_at, updated_at`

func scanDomain(row interface{ Scan(...any) error }) (*Domain, error) {
	var d Domain
	var enabledInt int
	var nameservers sql.NullString
	var whoisExpiry, lastGeneral, lastREST sql.NullTime
	err := row.Scan(
		&d.ID, &d.Label, &d.URL, &d.RESTBase, &d.CMSUser, &d.CMSSecret, &d.SearchQuery,
		&d.CheckIntervalMinutes, &d.RESTIntervalMinutes, &enabledInt, &whoisExpiry, &nameservers,
		&lastGeneral, &lastREST, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Enabled = enabledInt != 0
	d.Nameservers = nameservers.String
	if whoisExpiry.Valid {
		d.WhoisExpiry = &whoisExpiry.Time
	}
	if lastGeneral.Valid {
		d.LastGeneralCheckAt = &lastGeneral.Time
	}
	if lastREST.Valid {
		d.LastRESTCheckAt = &lastREST.Time
	}
	return &d, nil
}

// CreateDomain inserts a new domain. The ID is generated, intervals are
// clamped to at least one minute, and the CMS secret is encrypted.
func (s *Store) CreateDomain(ctx context.Context, d *Domain) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CheckIntervalMinutes < 1 {
		d.CheckIntervalMinutes = 30
	}
	if d.RESTIntervalMinutes < 1 {
		d.RESTIntervalMinutes = 600
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now

	stored, err := s.encryptSecret(d.CMSSecret)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO domains (
			id, label, url, rest_base, cms_user, cms_secret, search_query,
			check_interval_minutes, rest_interval_minutes, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Label, d.URL, d.RESTBase, d.CMSUser, stored, d.SearchQuery,
		d.CheckIntervalMinutes, d.RESTIntervalMinutes, boolInt(d.Enabled), d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert domain: %w", err)
	}
	return nil
}

// UpdateDomain updates the editable fields of a domain. A non-empty
// CMSSecret replaces the stored credential; an empty one keeps it.
func (s *Store) UpdateDomain(ctx context.Context, d *Domain) error {
	if d.CheckIntervalMinutes < 1 {
		d.CheckIntervalMinutes = 30
	}
	if d.RESTIntervalMinutes < 1 {
		d.RESTIntervalMinutes = 600
	}
	d.UpdatedAt = time.Now().UTC()

	if d.CMSSecret != "" {
		stored, err := s.encryptSecret(d.CMSSecret)
		if err != nil {
			return err
		}
		_, err = s.db.ExecContext(ctx, `
			UPDATE domains SET label = ?, url = ?, rest_base = ?, cms_user = ?, cms_secret = ?,
				search_query = ?, check_interval_minutes = ?, rest_interval_minutes = ?,
				enabled = ?, updated_at = ?
			WHERE id = ?`,
			d.Label, d.URL, d.RESTBase, d.CMSUser, stored,
			d.SearchQuery, d.CheckIntervalMinutes, d.RESTIntervalMinutes,
			boolInt(d.Enabled), d.UpdatedAt, d.ID,
		)
		if err != nil {
			return fmt.Errorf("update domain: %w", err)
		}
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE domains SET label = ?, url = ?, rest_base = ?, cms_user = ?,
			search_query = ?, check_interval_minutes = ?, rest_interval_minutes = ?,
			enabled = ?, updated_at = ?
		WHERE id = ?`,
		d.Label, d.URL, d.RESTBase, d.CMSUser,
		d.SearchQuery, d.CheckIntervalMinutes, d.RESTIntervalMinutes,
		boolInt(d.Enabled), d.UpdatedAt, d.ID,
	)
	if err != nil {
		return fmt.Errorf("update domain: %w", err)
	}
	return nil
}

// GetDomain returns a domain by ID with its CMS secret decrypted.
// Returns nil, nil if not found.
func (s *Store) GetDomain(ctx context.Context, id string) (*Domain, error) {
	d, err := scanDomain(s.db.QueryRowContext(ctx,
		`SELECT `+domainCols+` FROM domains WHERE id = ?`, id,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get domain: %w", err)
	}
	if s.cipher != nil {
		d.CMSSecret = s.cipher.Decrypt(d.CMSSecret)
	}
	return d, nil
}

// ListDomains returns all domains. CMS secrets stay encrypted.
func (s *Store) ListDomains(ctx context.Context) ([]Domain, error) {
	return s.listDomains(ctx, `SELECT `+domainCols+` FROM domains ORDER BY created_at`)
}

// ListEnabled returns all enabled domains. CMS secrets stay encrypted.
func (s *Store) ListEnabled(ctx context.Context) ([]Domain, error) {
	return s.listDomains(ctx, `SELECT `+domainCols+` FROM domains WHERE enabled = 1 ORDER BY created_at`)
}

func (s *Store) listDomains(ctx context.Context, query string) ([]Domain, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	defer rows.Close()

	var domains []Domain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, fmt.Errorf("scan domain row: %w", err)
		}
		domains = append(domains, *d)
	}
	return domains, rows.Err()
}

// DeleteDomain removes a domain and, via FK cascade, its check results.
// Returns true if a row was deleted.
func (s *Store) DeleteDomain(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM domains WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete domain: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CheckKind distinguishes the two per-domain cadences.
type CheckKind string

const (
	KindGeneral CheckKind = "general"
	KindREST    CheckKind = "rest"
)

// UpdateLastCheckTime records when a cadence last ran for a domain.
func (s *Store) UpdateLastCheckTime(ctx context.Context, id string, kind CheckKind, ts time.Time) error {
	col := "last_general_check_at"
	if kind == KindREST {
		col = "last_rest_check_at"
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE domains SET `+col+` = ? WHERE id = ?`, ts, id)
	if err != nil {
		return fmt.Errorf("update last check time: %w", err)
	}
	return nil
}

// SetDomainWhois caches registration expiry and nameservers for a domain.
// Nil expiry / empty nameservers keep the existing cached values.
func (s *Store) SetDomainWhois(ctx context.Context, id string, expiry *time.Time, nameservers string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE domains SET
			whois_expiry = COALESCE(?, whois_expiry),
			nameservers = CASE WHEN ? != '' THEN ? ELSE nameservers END
		WHERE id = ?`,
		toNullTime(expiry), nameservers, nameservers, id,
	)
	if err != nil {
		return fmt.Errorf("set domain whois: %w", err)
	}
	return nil
}

func (s *Store) encryptSecret(plain string) (string, error) {
	if s.cipher == nil || plain == "" {
		return plain, nil
	}
	enc, err := s.cipher.Encrypt(plain)
	if err != nil {
		return "", fmt.Errorf("encrypt credential: %w", err)
	}
	return enc, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

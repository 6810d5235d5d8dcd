package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// StatusIncompleteData is stored as the REST status when the REST API was
// reachable but the expected counts could not all be resolved.
const StatusIncompleteData = -200

// maxResultsPerDomain bounds the retained history window per domain.
const maxResultsPerDomain = 5

// CheckResult is the outcome of one scan of one domain. Nil pointer fields
// mean "not resolved by this scan".
type CheckResult struct {
	ID                int64        `json:"id"`
	DomainID          string       `json:"domain_id"`
	CheckedAt         time.Time    `json:"checked_at"`
	Online            Reachability `json:"online"`
	HomepageStatus    *int         `json:"homepage_status,omitempty"`
	RESTStatus        *int         `json:"rest_status,omitempty"`
	ResponseTimeMs    *int64       `json:"response_time_ms,omitempty"`
	PostsCount        *int         `json:"posts_count,omitempty"`
	FutureCount       *int         `json:"future_count,omitempty"`
	LastScheduledPost *time.Time   `json:"last_scheduled_post,omitempty"`
	SearchIndexCount  *int64       `json:"search_index_count,omitempty"`
	BotVerification   bool         `json:"bot_verification"`
	UsedBackup        bool         `json:"used_backup"`
	RESTFallback      bool         `json:"rest_fallback"`
	ErrorMessage      string       `json:"error_message,omitempty"`
	RawErrorBody      string       `json:"raw_error_body,omitempty"`
}

const resultCols = `id, domain_id, checked_at, online, homepage_status, rest_status,
	response_time_ms, posts_count, future_count, last_scheduled_post, search_index_count,
	bot_verification, used_backup, rest_fallback, error_message, raw_error_body`

// InsertResult stores a check result and prunes the domain's history down
// to the newest five entries, as one transaction.
func (s *Store) InsertResult(ctx context.Context, r *CheckResult) (int64, error) {
	var id int64
	err := s.Tx(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			INSERT INTO check_results (
				domain_id, checked_at, online, homepage_status, rest_status,
				response_time_ms, posts_count, future_count, last_scheduled_post,
				search_index_count, bot_verification, used_backup, rest_fallback,
				error_message, raw_error_body
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.DomainID, r.CheckedAt, int(r.Online),
			toNullInt(r.HomepageStatus), toNullInt(r.RESTStatus),
			toNullInt64(r.ResponseTimeMs), toNullInt(r.PostsCount), toNullInt(r.FutureCount),
			toNullTime(r.LastScheduledPost), toNullInt64(r.SearchIndexCount),
			boolInt(r.BotVerification), boolInt(r.UsedBackup), boolInt(r.RESTFallback),
			r.ErrorMessage, r.RawErrorBody,
		)
		if err != nil {
			return fmt.Errorf("insert result: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return err
		}

		_, err = tx.Exec(`
			DELETE FROM check_results
			WHERE domain_id = ? AND id NOT IN (
				SELECT id FROM check_results
				WHERE domain_id = ?
				ORDER BY checked_at DESC, id DESC
				LIMIT ?
			)`,
			r.DomainID, r.DomainID, maxResultsPerDomain,
		)
		if err != nil {
			return fmt.Errorf("prune results: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	r.ID = id
	return id, nil
}

// GetLatestResult returns the most recent result for a domain, or nil, nil
// when the domain has never been checked.
func (s *Store) GetLatestResult(ctx context.Context, domainID string) (*CheckResult, error) {
	r, err := scanResult(s.db.QueryRowContext(ctx,
		`SELECT `+resultCols+` FROM check_results
		 WHERE domain_id = ? ORDER BY checked_at DESC, id DESC LIMIT 1`,
		domainID,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest result: %w", err)
	}
	return r, nil
}

// GetHistory returns results for a domain, newest first. If limit <= 0,
// the full retained window is returned.
func (s *Store) GetHistory(ctx context.Context, domainID string, limit int) ([]CheckResult, error) {
	if limit <= 0 {
		limit = maxResultsPerDomain
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+resultCols+` FROM check_results
		 WHERE domain_id = ? ORDER BY checked_at DESC, id DESC LIMIT ?`,
		domainID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	defer rows.Close()

	var results []CheckResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		results = append(results, *r)
	}
	return results, rows.Err()
}

func scanResult(row interface{ Scan(...any) error }) (*CheckResult, error) {
	var r CheckResult
	var online, botInt, backupInt, fallbackInt int
	var homepage, restStatus, posts, future sql.NullInt64
	var respMs, searchCount sql.NullInt64
	var lastScheduled sql.NullTime
	err := row.Scan(
		&r.ID, &r.DomainID, &r.CheckedAt, &online, &homepage, &restStatus,
		&respMs, &posts, &future, &lastScheduled, &searchCount,
		&botInt, &backupInt, &fallbackInt, &r.ErrorMessage, &r.RawErrorBody,
	)
	if err != nil {
		return nil, err
	}
	r.Online = Reachability(online)
	r.HomepageStatus = fromNullInt(homepage)
	r.RESTStatus = fromNullInt(restStatus)
	r.PostsCount = fromNullInt(posts)
	r.FutureCount = fromNullInt(future)
	if respMs.Valid {
		v := respMs.Int64
		r.ResponseTimeMs = &v
	}
	if searchCount.Valid {
		v := searchCount.Int64
		r.SearchIndexCount = &v
	}
	if lastScheduled.Valid {
		r.LastScheduledPost = &lastScheduled.Time
	}
	r.BotVerification = botInt != 0
	r.UsedBackup = backupInt != 0
	r.RESTFallback = fallbackInt != 0
	return &r, nil
}

func toNullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func toNullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func fromNullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/ceradon/samwatch/internal/models"
)

type Store struct {
	conn *sql.DB
}

func (s *Store) Close() error {
	return s.conn.Close()
}

// DedupeKey derives the stable identity used as the uniqueness constraint.
// The fallback composite covers records that arrive without a notice id.
func DedupeKey(opp models.Opportunity) string {
	if opp.NoticeID != "" {
		return "notice:" + opp.NoticeID
	}
	return fmt.Sprintf("fallback:%s|%s|%s", opp.SolicitationNumber, opp.PostedDate, opp.Agency)
}

const selectCols = `dedupe_key, notice_id, solicitation_number, posted_date, agency,
	title, notice_type, naics, set_aside, response_deadline, link,
	score, reasons, normalized_json, raw_json, created_at`

// Insert is the sole write path. It stamps created_at and inserts; a dedupe
// key collision leaves the existing row untouched and reports inserted=false
// without erroring. First write wins, always.
func (s *Store) Insert(ctx context.Context, scored models.ScoredOpportunity) (bool, error) {
	reasons, err := json.Marshal(orEmpty(scored.Reasons))
	if err != nil {
		return false, fmt.Errorf("encoding reasons: %w", err)
	}
	normalized, err := json.Marshal(scored.Opportunity)
	if err != nil {
		return false, fmt.Errorf("encoding normalized record: %w", err)
	}
	raw, err := json.Marshal(scored.Raw)
	if err != nil {
		return false, fmt.Errorf("encoding raw record: %w", err)
	}

	createdAt := time.Now().UTC().Format(time.RFC3339)
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO opportunities (
			dedupe_key, notice_id, solicitation_number, posted_date, agency,
			title, notice_type, naics, set_aside, response_deadline, link,
			score, reasons, normalized_json, raw_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		DedupeKey(scored.Opportunity),
		scored.NoticeID,
		scored.SolicitationNumber,
		scored.PostedDate,
		scored.Agency,
		scored.Title,
		scored.NoticeType,
		scored.NAICS,
		scored.SetAside,
		scored.ResponseDeadline,
		scored.Link,
		scored.Score,
		string(reasons),
		string(normalized),
		string(raw),
		createdAt,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return false, nil
		}
		return false, fmt.Errorf("inserting opportunity: %w", err)
	}
	return true, nil
}

// GetByNoticeID returns the stored row for a notice id, or nil when absent.
func (s *Store) GetByNoticeID(ctx context.Context, noticeID string) (*models.StoredOpportunity, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+selectCols+` FROM opportunities WHERE notice_id = ?`, noticeID)
	stored, err := scanStored(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching notice %s: %w", noticeID, err)
	}
	return &stored, nil
}

// FetchSince returns rows created inside the trailing day window, highest
// score first.
func (s *Store) FetchSince(ctx context.Context, days int) ([]models.StoredOpportunity, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(time.RFC3339)
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+selectCols+` FROM opportunities WHERE created_at >= ? ORDER BY score DESC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("querying since %d days: %w", days, err)
	}
	return collect(rows)
}

// FetchForDigest selects the digest candidates: rows at or above the score
// threshold, most recently posted first, capped at limit.
func (s *Store) FetchForDigest(ctx context.Context, minScore, limit int) ([]models.StoredOpportunity, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+selectCols+` FROM opportunities
		WHERE score >= ?
		ORDER BY posted_date DESC
		LIMIT ?`, minScore, limit)
	if err != nil {
		return nil, fmt.Errorf("querying digest rows: %w", err)
	}
	return collect(rows)
}

func collect(rows *sql.Rows) ([]models.StoredOpportunity, error) {
	defer rows.Close()

	var out []models.StoredOpportunity
	for rows.Next() {
		stored, err := scanStored(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, stored)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, nil
}

func scanStored(scan func(dest ...interface{}) error) (models.StoredOpportunity, error) {
	var o models.StoredOpportunity
	var noticeID, solicitation, posted, agency, title, noticeType *string
	var naics, setAside, deadline, link *string
	var score *int
	var reasonsRaw, normalizedRaw, rawRaw *string
	var createdAt string

	err := scan(
		&o.DedupeKey, &noticeID, &solicitation, &posted, &agency,
		&title, &noticeType, &naics, &setAside, &deadline, &link,
		&score, &reasonsRaw, &normalizedRaw, &rawRaw, &createdAt,
	)
	if err != nil {
		return o, err
	}

	o.NoticeID = deref(noticeID)
	o.SolicitationNumber = deref(solicitation)
	o.PostedDate = deref(posted)
	o.Agency = deref(agency)
	o.Title = deref(title)
	o.NoticeType = deref(noticeType)
	o.NAICS = deref(naics)
	o.SetAside = deref(setAside)
	o.ResponseDeadline = deref(deadline)
	o.Link = deref(link)
	if score != nil {
		o.Score = *score
	}
	// A stored blob that no longer decodes means the file is corrupt; that
	// is a storage failure, never an empty field.
	if reasonsRaw != nil && *reasonsRaw != "" {
		if err := json.Unmarshal([]byte(*reasonsRaw), &o.Reasons); err != nil {
			return o, fmt.Errorf("decoding reasons for %s: %w", o.DedupeKey, err)
		}
	}
	if normalizedRaw != nil && *normalizedRaw != "" {
		if err := json.Unmarshal([]byte(*normalizedRaw), &o.Normalized); err != nil {
			return o, fmt.Errorf("decoding normalized record for %s: %w", o.DedupeKey, err)
		}
	}
	if rawRaw != nil && *rawRaw != "" {
		if err := json.Unmarshal([]byte(*rawRaw), &o.Raw); err != nil {
			return o, fmt.Errorf("decoding raw record for %s: %w", o.DedupeKey, err)
		}
	}
	if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
		o.CreatedAt = ts
	}

	return o, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func orEmpty(reasons []string) []string {
	if reasons == nil {
		return []string{}
	}
	return reasons
}

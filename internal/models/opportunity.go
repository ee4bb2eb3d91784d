package models

import "time"

// RawRecord is one opportunity exactly as the SAM.gov API returned it.
// No shape is assumed beyond "JSON object"; the normalizer is the only
// reader, everything else treats it as an opaque payload for audit.
type RawRecord map[string]interface{}

// Clone returns a shallow copy so a normalized opportunity owns its raw
// payload independently of the client's page buffer.
func (r RawRecord) Clone() RawRecord {
	if r == nil {
		return nil
	}
	out := make(RawRecord, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Opportunity is the canonical, upstream-schema-independent form of one
// record. Every field is a plain string and defaults to "" rather than
// being absent; consumers never distinguish missing from empty.
// Date fields keep the upstream ISO-8601 text as-is.
type Opportunity struct {
	NoticeID           string    `json:"notice_id"`
	SolicitationNumber string    `json:"solicitation_number"`
	Title              string    `json:"title"`
	Agency             string    `json:"agency"`
	NoticeType         string    `json:"notice_type"`
	NAICS              string    `json:"naics"`
	SetAside           string    `json:"set_aside"`
	PostedDate         string    `json:"posted_date"`
	ResponseDeadline   string    `json:"response_deadline"`
	Description        string    `json:"description"`
	Link               string    `json:"link"`
	Raw                RawRecord `json:"raw,omitempty"`
}

// ScoredOpportunity pairs a canonical record with its relevance score and
// the reason trail that produced it. Reasons are append-only and in the
// order the scoring steps ran.
type ScoredOpportunity struct {
	Opportunity
	Score   int      `json:"score"`
	Reasons []string `json:"reasons"`
}

// StoredOpportunity is a persisted row. Rows are immutable once written;
// CreatedAt is stamped at first insert and a duplicate dedupe key never
// overwrites an existing row.
type StoredOpportunity struct {
	DedupeKey          string
	NoticeID           string
	SolicitationNumber string
	PostedDate         string
	Agency             string
	Title              string
	NoticeType         string
	NAICS              string
	SetAside           string
	ResponseDeadline   string
	Link               string
	Score              int
	Reasons            []string
	Normalized         Opportunity
	Raw                RawRecord
	CreatedAt          time.Time
}

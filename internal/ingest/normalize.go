package ingest

import (
	"fmt"
	"strings"

	"github.com/ceradon/samwatch/internal/models"
)

// stringify renders any upstream value as a trimmed string. nil becomes "".
func stringify(value interface{}) string {
	if value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

// firstOf returns the first non-empty stringified value among the named
// fields, in order. Upstream field names have drifted over time; each
// canonical field lists its historical spellings in preference order.
func firstOf(raw models.RawRecord, fields ...string) string {
	for _, field := range fields {
		if v := stringify(raw[field]); v != "" {
			return v
		}
	}
	return ""
}

// Normalize maps a raw upstream record into the canonical form. It is a
// total function: missing or null fields become empty strings and present
// fields are stringified and trimmed, so it never fails.
func Normalize(raw models.RawRecord) models.Opportunity {
	opp := models.Opportunity{
		NoticeID:           stringify(raw["noticeId"]),
		SolicitationNumber: stringify(raw["solicitationNumber"]),
		Title:              stringify(raw["title"]),
		Agency:             firstOf(raw, "agency", "fullParentPathName"),
		NoticeType:         stringify(raw["noticeType"]),
		NAICS:              firstOf(raw, "naicsCode", "naics"),
		SetAside:           firstOf(raw, "typeOfSetAside", "setAside"),
		PostedDate:         stringify(raw["postedDate"]),
		ResponseDeadline:   firstOf(raw, "responseDeadLine", "responseDeadline"),
		Description:        firstOf(raw, "description", "summary", "fullDescription"),
		Raw:                raw.Clone(),
	}

	switch {
	case opp.NoticeID != "":
		opp.Link = fmt.Sprintf("https://sam.gov/opp/%s/view", opp.NoticeID)
	case opp.SolicitationNumber != "":
		opp.Link = "https://sam.gov/opp/search?keywords=" + opp.SolicitationNumber
	}

	return opp
}

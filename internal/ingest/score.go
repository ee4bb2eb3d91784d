package ingest

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ceradon/samwatch/internal/config"
	"github.com/ceradon/samwatch/internal/models"
)

// Score computes the relevance score and reason trail for one canonical
// record. It is pure: today is an explicit parameter so deadline urgency is
// reproducible in tests, and keywords are walked in lexicographic order so
// identical input always yields an identical reason list.
func Score(opp models.Opportunity, cfg *config.Config, today time.Time) (int, []string) {
	blob := strings.ToLower(strings.Join([]string{opp.Title, opp.Description, opp.Agency}, " "))

	score := 0
	var reasons []string

	for _, keyword := range sortedKeys(cfg.Keywords.Positive) {
		if strings.Contains(blob, keyword) {
			weight := cfg.Keywords.Positive[keyword]
			score += weight
			reasons = append(reasons, fmt.Sprintf("+%d keyword:%s", weight, keyword))
		}
	}
	for _, keyword := range sortedKeys(cfg.Keywords.Negative) {
		if strings.Contains(blob, keyword) {
			weight := cfg.Keywords.Negative[keyword]
			score -= weight
			reasons = append(reasons, fmt.Sprintf("-%d keyword:%s", weight, keyword))
		}
	}

	if opp.NAICS != "" && cfg.NAICSIncluded(opp.NAICS) {
		score += cfg.Scoring.NAICSMatchBoost
		reasons = append(reasons, fmt.Sprintf("+%d naics:%s", cfg.Scoring.NAICSMatchBoost, opp.NAICS))
	}

	if cfg.NoticeTypePreferred(opp.NoticeType) {
		score += cfg.Scoring.NoticeTypeBoost
		reasons = append(reasons, fmt.Sprintf("+%d notice_type:%s", cfg.Scoring.NoticeTypeBoost, opp.NoticeType))
	}

	// The "sb" equality alongside the substring checks is deliberate: it is
	// the recognized abbreviation set upstream actually emits.
	setAside := strings.ToLower(opp.SetAside)
	if strings.Contains(setAside, "sdvosb") || strings.Contains(setAside, "small business") || setAside == "sb" {
		score += cfg.Scoring.SetAsideBoost
		reasons = append(reasons, fmt.Sprintf("+%d set_aside:%s", cfg.Scoring.SetAsideBoost, setAside))
	}

	if deadline, ok := parseDeadline(opp.ResponseDeadline); ok {
		daysUntil := int(deadline.Sub(civil(today)).Hours() / 24)
		if daysUntil <= 7 {
			score += cfg.Scoring.DeadlineUrgencyBoost
			reasons = append(reasons, fmt.Sprintf("+%d deadline_in:%dd", cfg.Scoring.DeadlineUrgencyBoost, daysUntil))
		}
	}

	return score, reasons
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// parseDeadline accepts a full ISO-8601 timestamp or a bare date and returns
// the calendar date. An unparseable value is not an error, just the absence
// of a deadline signal.
func parseDeadline(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return civil(t), true
		}
	}
	return time.Time{}, false
}

// civil truncates a timestamp to its calendar date in UTC.
func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

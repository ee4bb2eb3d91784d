package ingest

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ceradon/samwatch/internal/config"
	"github.com/ceradon/samwatch/internal/models"
)

func testConfig() *config.Config {
	cfg, err := config.Parse([]byte(`
filters:
  naics_include: ["541715"]
  preferred_notice_types: ["Sources Sought"]
  exclude_notice_types: []
  posted_from_days: 14
keywords:
  positive:
    prototype: 4
    sensor: 3
  negative:
    construction: 5
scoring:
  include_in_digest_score: 10
  naics_match_boost: 4
  notice_type_boost: 3
  set_aside_boost: 2
  deadline_urgency_boost: 2
digest:
  max_items: 10
`))
	if err != nil {
		panic(err)
	}
	return cfg
}

var scoreToday = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestScore_KeywordsAndBoosts(t *testing.T) {
	cfg := testConfig()
	opp := models.Opportunity{
		Title:            "Prototype sensor experiment",
		Agency:           "DARPA",
		NAICS:            "541715",
		NoticeType:       "Sources Sought",
		SetAside:         "Small Business",
		ResponseDeadline: "2030-01-01",
	}

	score, reasons := Score(opp, cfg, scoreToday)

	// keyword 4+3, naics 4, type 3, set-aside 2; deadline is far out so no
	// urgency boost.
	if want := 4 + 3 + 4 + 3 + 2; score != want {
		t.Errorf("score = %d, want %d", score, want)
	}

	foundKeyword := false
	for _, reason := range reasons {
		if strings.Contains(reason, "keyword:prototype") {
			foundKeyword = true
		}
		if strings.Contains(reason, "deadline_in") {
			t.Errorf("urgency boost applied for a far-future deadline: %v", reasons)
		}
	}
	if !foundKeyword {
		t.Errorf("reasons missing prototype keyword entry: %v", reasons)
	}
}

func TestScore_Deterministic(t *testing.T) {
	cfg := testConfig()
	opp := models.Opportunity{
		Title:       "Prototype sensor construction",
		Description: "sensor prototype",
		Agency:      "Navy",
	}

	firstScore, firstReasons := Score(opp, cfg, scoreToday)
	for i := 0; i < 50; i++ {
		score, reasons := Score(opp, cfg, scoreToday)
		if score != firstScore || !reflect.DeepEqual(reasons, firstReasons) {
			t.Fatalf("iteration %d: (%d, %v) != (%d, %v)", i, score, reasons, firstScore, firstReasons)
		}
	}

	// Keyword reasons come out in lexicographic order within each polarity.
	if len(firstReasons) < 3 {
		t.Fatalf("expected three keyword reasons, got %v", firstReasons)
	}
	if !strings.Contains(firstReasons[0], "keyword:prototype") ||
		!strings.Contains(firstReasons[1], "keyword:sensor") ||
		!strings.Contains(firstReasons[2], "keyword:construction") {
		t.Errorf("reason order not deterministic: %v", firstReasons)
	}
}

func TestScore_NegativeKeyword(t *testing.T) {
	cfg := testConfig()
	opp := models.Opportunity{Title: "Construction of a new facility"}

	score, reasons := Score(opp, cfg, scoreToday)
	if score != -5 {
		t.Errorf("score = %d, want -5", score)
	}
	if len(reasons) != 1 || reasons[0] != "-5 keyword:construction" {
		t.Errorf("reasons = %v, want [-5 keyword:construction]", reasons)
	}
}

func TestScore_SetAsideMatching(t *testing.T) {
	cfg := testConfig()
	tests := []struct {
		setAside string
		boosted  bool
	}{
		{"Service-Disabled Veteran-Owned (SDVOSB)", true},
		{"Total Small Business Set-Aside", true},
		{"SB", true},      // literal abbreviation, equality only
		{"SBA", false},    // not equal to "sb", no substring hit
		{"8(a)", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.setAside, func(t *testing.T) {
			opp := models.Opportunity{SetAside: tt.setAside}
			score, _ := Score(opp, cfg, scoreToday)
			if tt.boosted && score != cfg.Scoring.SetAsideBoost {
				t.Errorf("score = %d, want set-aside boost %d", score, cfg.Scoring.SetAsideBoost)
			}
			if !tt.boosted && score != 0 {
				t.Errorf("score = %d, want 0", score)
			}
		})
	}
}

func TestScore_DeadlineUrgency(t *testing.T) {
	cfg := testConfig()
	tests := []struct {
		name     string
		deadline string
		urgent   bool
	}{
		{"seven days out", "2024-06-08", true},
		{"eight days out", "2024-06-09", false},
		{"already past", "2024-05-20", true}, // days-until is negative, still <= 7
		{"timestamp form", "2024-06-03T17:00:00Z", true},
		{"local timestamp form", "2024-06-03T17:00:00", true},
		{"unparseable", "next Tuesday", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opp := models.Opportunity{ResponseDeadline: tt.deadline}
			score, reasons := Score(opp, cfg, scoreToday)
			if tt.urgent && score != cfg.Scoring.DeadlineUrgencyBoost {
				t.Errorf("score = %d, want urgency boost %d (reasons %v)", score, cfg.Scoring.DeadlineUrgencyBoost, reasons)
			}
			if !tt.urgent && score != 0 {
				t.Errorf("score = %d, want 0 (reasons %v)", score, reasons)
			}
		})
	}
}

// Package digest renders the selected opportunity rows into the text body
// delivered by mail, and dumps windowed rows as CSV or a terminal table.
// It formats only; filtering and ordering happen in the store queries.
package digest

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"github.com/ceradon/samwatch/internal/models"
)

var stripPolicy = bluemonday.StrictPolicy()

const snippetMaxLen = 200

// Subject builds the digest subject line.
func Subject(items int) string {
	return fmt.Sprintf("Samwatch SAM Digest (%d items)", items)
}

// Render produces the plain-text digest body. Rows are assumed to be
// pre-filtered and pre-sorted by the store's digest query.
func Render(rows []models.StoredOpportunity) string {
	lines := []string{"Samwatch SAM Opportunity Digest", ""}
	for i, row := range rows {
		lines = append(lines,
			fmt.Sprintf("%d. %s", i+1, row.Title),
			fmt.Sprintf("   Agency: %s", row.Agency),
			fmt.Sprintf("   Notice Type: %s", row.NoticeType),
			fmt.Sprintf("   NAICS: %s", row.NAICS),
			fmt.Sprintf("   Set-Aside: %s", row.SetAside),
			fmt.Sprintf("   Posted: %s", row.PostedDate),
			fmt.Sprintf("   Deadline: %s", row.ResponseDeadline),
			fmt.Sprintf("   Score: %d", row.Score),
			fmt.Sprintf("   Link: %s", row.Link),
		)
		if snippet := Snippet(row.Normalized.Description); snippet != "" {
			lines = append(lines, fmt.Sprintf("   Summary: %s", snippet))
		}
		lines = append(lines, "")
	}
	if len(rows) == 0 {
		lines = append(lines, "No opportunities met the digest threshold.")
	}
	return strings.Join(lines, "\n")
}

// Snippet flattens an upstream description (often HTML) into one short line
// of plain text.
func Snippet(description string) string {
	text := htmlToText(stripPolicy.Sanitize(description))
	return truncateText(text, snippetMaxLen)
}

// htmlToText converts HTML to plain text, collapsing whitespace.
func htmlToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return cleanText(html)
	}
	return cleanText(doc.Text())
}

func cleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// truncateText cuts a string to max rune length, appending ellipsis if
// truncated. Cutting on rune boundaries keeps multibyte descriptions valid
// UTF-8 in the mail body.
func truncateText(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	if maxLen > 3 {
		return string(runes[:maxLen-3]) + "..."
	}
	return string(runes[:maxLen])
}

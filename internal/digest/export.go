package digest

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/ceradon/samwatch/internal/models"
)

// exportHeader is the fixed column order of the export contract.
var exportHeader = []string{
	"notice_id", "title", "agency", "notice_type", "naics",
	"set_aside", "posted_date", "response_deadline", "score", "link",
}

func exportRow(row models.StoredOpportunity) []string {
	return []string{
		row.NoticeID,
		row.Title,
		row.Agency,
		row.NoticeType,
		row.NAICS,
		row.SetAside,
		row.PostedDate,
		row.ResponseDeadline,
		fmt.Sprint(row.Score),
		row.Link,
	}
}

// WriteCSV dumps rows in the fixed export column order.
func WriteCSV(w io.Writer, rows []models.StoredOpportunity) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(exportHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, row := range rows {
		if err := writer.Write(exportRow(row)); err != nil {
			return fmt.Errorf("writing row %s: %w", row.DedupeKey, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteTable renders the same columns as a readable terminal table.
func WriteTable(w io.Writer, rows []models.StoredOpportunity) {
	t := table.NewWriter()
	t.SetOutputMirror(w)

	header := table.Row{}
	for _, col := range exportHeader {
		header = append(header, col)
	}
	t.AppendHeader(header)

	for _, row := range rows {
		cells := table.Row{}
		for _, cell := range exportRow(row) {
			cells = append(cells, cell)
		}
		t.AppendRow(cells)
	}
	t.Render()
}

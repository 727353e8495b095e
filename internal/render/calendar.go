// Package render formats fetch results as a plain-text calendar.
package render

import (
	"io"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/i474232898/hightemps/internal/weather"
)

const cellWidth = 10

// Calendar writes a run as one block per month, seven days to a row.
// Months without records are omitted.
func Calendar(w io.Writer, run weather.Run) error {
	p := message.NewPrinter(language.AmericanEnglish)
	title := cases.Title(language.English)

	header := p.Sprintf("Daily High Temperatures for %s", run.Location.ZipCode)
	if _, err := p.Fprintf(w, "%s\n%s\n", header, strings.Repeat("=", len(header))); err != nil {
		return err
	}
	if _, err := p.Fprintf(w, "Source: %s (%s to %s)\n",
		title.String(run.Provider),
		run.Range.Start.Format("1/2/2006"),
		run.Range.End.Format("1/2/2006")); err != nil {
		return err
	}
	if run.Error != "" {
		_, err := p.Fprintf(w, "\n%s\n", run.Error)
		return err
	}
	if len(run.Records) == 0 {
		_, err := p.Fprintf(w, "\nNo temperature data.\n")
		return err
	}

	for _, block := range weather.GroupByMonth(run.Records) {
		if len(block.Rows) == 0 {
			continue
		}
		if _, err := p.Fprintf(w, "\n%s\n", block.Name); err != nil {
			return err
		}
		for _, row := range block.Rows {
			var b strings.Builder
			for _, cell := range row {
				b.WriteString(formatCell(p, cell))
			}
			if _, err := p.Fprintf(w, "%s\n", strings.TrimRight(b.String(), " ")); err != nil {
				return err
			}
		}
	}
	return nil
}

func formatCell(p *message.Printer, cell weather.CalendarCell) string {
	if cell.Blank {
		return strings.Repeat(" ", cellWidth)
	}
	text := cell.Text()
	if cell.Record != nil && cell.Record.Status == weather.StatusOK {
		text += "°"
	}
	s := p.Sprintf("%2d: %s", cell.Day, text)
	if n := len([]rune(s)); n < cellWidth {
		s += strings.Repeat(" ", cellWidth-n)
	}
	return s
}

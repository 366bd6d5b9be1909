package ui

import (
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"igstories/pkg/models"
)

// Table provides table rendering utilities
type Table struct {
	table  *tablewriter.Table
	header []string
	rows   [][]string
	quiet  bool
}

// NewTable creates a borderless left-aligned table on w
func NewTable(w io.Writer, headers []string) *Table {
	table := tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Formatting: tw.CellFormatting{
					AutoWrap: tw.WrapNone,
				},
				Alignment: tw.CellAlignment{
					Global: tw.AlignLeft,
				},
			},
			Header: tw.CellConfig{
				Formatting: tw.CellFormatting{
					AutoFormat: tw.On,
				},
				Alignment: tw.CellAlignment{
					Global: tw.AlignLeft,
				},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Separators: tw.Separators{
					ShowHeader: tw.Off,
				},
			},
		}),
	)

	return &Table{table: table, header: headers}
}

// NewTableFor creates a table on the printer output honoring quiet mode
func NewTableFor(p *Printer, headers []string) *Table {
	t := NewTable(p.Out(), headers)
	t.quiet = p.IsQuiet()
	return t
}

// AddRow adds a row to the table
func (t *Table) AddRow(row ...string) {
	t.rows = append(t.rows, row)
}

// Len returns the number of rows added
func (t *Table) Len() int {
	return len(t.rows)
}

// Render outputs the table
func (t *Table) Render() error {
	if t.quiet {
		return nil
	}
	t.table.Header(t.header)
	if err := t.table.Bulk(t.rows); err != nil {
		return err
	}
	return t.table.Render()
}

// StoriesTable lists resolved stories, newest first as given
func StoriesTable(p *Printer, items []models.ContentItem) *Table {
	t := NewTableFor(p, []string{"#", "id", "type", "posted", "url"})
	for i, item := range items {
		posted := "-"
		if item.CapturedAt > 0 {
			posted = time.Unix(item.CapturedAt, 0).UTC().Format("2006-01-02 15:04")
		}
		t.AddRow(strconv.Itoa(i+1), item.ID, string(item.MediaKind), posted, truncate(item.PrimaryURL, 60))
	}
	return t
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

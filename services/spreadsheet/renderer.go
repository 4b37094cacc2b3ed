// Package spreadsheetsvc renders documents as XLSX workbooks: a summary sheet with the
// text and metric sections, and one sheet per table section.
package spreadsheetsvc

import (
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/iradukundapaci/communiserver-sub002/core"
	"github.com/iradukundapaci/communiserver-sub002/core/document"
)

const (
	summarySheet = "Summary"
	maxSheetName = 31
)

type renderer struct{}

var _ core.DocumentRenderer = (*renderer)(nil)

func NewRenderer() core.DocumentRenderer { return &renderer{} }

func (*renderer) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (*renderer) Extension() string { return ".xlsx" }

func (*renderer) Render(w io.Writer, doc document.Document) error {
	f, err := build(doc)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return errors.Wrap(err, "writing workbook")
	}
	return nil
}

type styles struct {
	title, header, label int
}

func newStyles(f *excelize.File) (styles, error) {
	var (
		s   styles
		err error
	)
	if s.title, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}}); err != nil {
		return s, err
	}
	if s.header, err = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"1D4ED8"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Vertical: "center"},
	}); err != nil {
		return s, err
	}
	s.label, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	return s, err
}

func build(doc document.Document) (*excelize.File, error) {
	f := excelize.NewFile()
	fail := func(err error, msg string) (*excelize.File, error) {
		_ = f.Close()
		return nil, errors.Wrap(err, msg)
	}

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fail(err, "renaming sheet")
	}
	st, err := newStyles(f)
	if err != nil {
		return fail(err, "creating styles")
	}

	sum := &sheetWriter{f: f, sheet: summarySheet}
	sum.row(st.title, doc.Title)
	if doc.Subtitle != "" {
		sum.row(0, doc.Subtitle)
	}
	sum.row(0, "Generated by", doc.GeneratedBy)
	sum.row(0, "Generated at", doc.GeneratedAt.UTC().Format("2006-01-02 15:04:05 MST"))

	used := map[string]bool{summarySheet: true}
	for _, s := range doc.Sections {
		switch s.Kind {
		case document.KindText:
			sum.next++
			sum.row(st.label, s.Title)
			for _, line := range strings.Split(s.Text, "\n") {
				sum.row(0, line)
			}
		case document.KindMetrics:
			sum.next++
			sum.row(st.label, s.Title)
			sum.row(st.header, "Metric", "Value", "Note")
			for _, m := range s.Metrics {
				sum.row(0, m.Label, m.Value, m.Hint)
			}
		case document.KindTable:
			if s.Table == nil {
				continue
			}
			name := sheetName(s.Title, used)
			if _, err := f.NewSheet(name); err != nil {
				return fail(err, "creating sheet")
			}
			tw := &sheetWriter{f: f, sheet: name}
			tw.row(st.header, s.Table.Headers...)
			for _, r := range s.Table.Rows {
				tw.row(0, r...)
			}
			if tw.err == nil {
				tw.err = f.SetPanes(name, &excelize.Panes{
					Freeze:      true,
					YSplit:      1,
					TopLeftCell: "A2",
					ActivePane:  "bottomLeft",
				})
			}
			if tw.err == nil {
				tw.err = f.SetColWidth(name, "A", columnName(len(s.Table.Headers)), 18)
			}
			if tw.err != nil {
				return fail(tw.err, "writing "+name)
			}
		}
	}
	if sum.err == nil {
		sum.err = f.SetColWidth(summarySheet, "A", "C", 28)
	}
	if sum.err != nil {
		return fail(sum.err, "writing summary")
	}
	f.SetActiveSheet(0)
	return f, nil
}

type sheetWriter struct {
	f     *excelize.File
	sheet string
	next  int // last written row; rows are 1 based
	err   error
}

// row writes values on the next row; numeric strings are stored as numbers.
func (sw *sheetWriter) row(style int, values ...string) {
	if sw.err != nil {
		return
	}
	sw.next++
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, sw.next)
		if err != nil {
			sw.err = err
			return
		}
		var value interface{} = v
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			value = n
		}
		if sw.err = sw.f.SetCellValue(sw.sheet, cell, value); sw.err != nil {
			return
		}
		if style != 0 {
			if sw.err = sw.f.SetCellStyle(sw.sheet, cell, cell, style); sw.err != nil {
				return
			}
		}
	}
}

var sheetNameReplacer = strings.NewReplacer(":", " ", "\\", " ", "/", " ", "?", " ", "*", " ", "[", "(", "]", ")")

// sheetName returns a valid, unused sheet name for title.
func sheetName(title string, used map[string]bool) string {
	base := strings.TrimSpace(sheetNameReplacer.Replace(title))
	if base == "" {
		base = "Table"
	}
	if len(base) > maxSheetName {
		base = base[:maxSheetName]
	}
	name := base
	for i := 2; used[name]; i++ {
		suffix := " " + strconv.Itoa(i)
		cut := base
		if len(cut)+len(suffix) > maxSheetName {
			cut = cut[:maxSheetName-len(suffix)]
		}
		name = cut + suffix
	}
	used[name] = true
	return name
}

func columnName(n int) string {
	if n < 1 {
		n = 1
	}
	name, _ := excelize.ColumnNumberToName(n)
	return name
}

// Package pdfsvc renders documents as paginated PDF reports.
package pdfsvc

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/pkg/errors"

	"github.com/iradukundapaci/communiserver-sub002/core"
	"github.com/iradukundapaci/communiserver-sub002/core/document"
)

// page geometry, in mm
const (
	pageW        = 210.0
	pageH        = 297.0
	margin       = 15.0
	footerH      = 14.0
	headerBandH  = 32.0
	sectionGap   = 6.0
	titleH       = 9.0
	lineH        = 5.5
	tileH        = 20.0
	tileGap      = 4.0
	rowH         = 7.0
	cellPad      = 1.5
	minSectionH  = titleH + 2*rowH // a title never ends a page alone
	contentWidth = pageW - 2*margin
	contentLimit = pageH - footerH - margin/2
)

type rgb struct{ r, g, b int }

var (
	primary   = rgb{29, 78, 216}
	textColor = rgb{31, 41, 55}
	muted     = rgb{107, 114, 128}
	ruleColor = rgb{209, 213, 219}
	tileFill  = rgb{239, 246, 255}
	rowShade  = rgb{243, 244, 246}
	white     = rgb{255, 255, 255}
)

type renderer struct{}

var _ core.DocumentRenderer = (*renderer)(nil)

func NewRenderer() core.DocumentRenderer { return &renderer{} }

func (*renderer) ContentType() string { return "application/pdf" }
func (*renderer) Extension() string   { return ".pdf" }

func (*renderer) Render(w io.Writer, doc document.Document) error {
	pdf := layout(doc)
	if err := pdf.Output(w); err != nil {
		return errors.Wrap(err, "writing pdf")
	}
	return nil
}

type writer struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

func layout(doc document.Document) *fpdf.Fpdf {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AliasNbPages("{nb}")
	pdf.SetTitle(doc.Title, true)
	pdf.SetCreator(doc.GeneratedBy, true)

	wr := &writer{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
	footer := fmt.Sprintf("Generated by %s on %s", doc.GeneratedBy, doc.GeneratedAt.UTC().Format("2 Jan 2006 15:04 MST"))
	pdf.SetFooterFunc(func() { wr.footer(footer) })

	pdf.AddPage()
	wr.header(doc.Title, doc.Subtitle)
	for _, s := range doc.Sections {
		wr.section(s)
	}
	return pdf
}

func (wr *writer) fill(c rgb) { wr.pdf.SetFillColor(c.r, c.g, c.b) }
func (wr *writer) text(c rgb) { wr.pdf.SetTextColor(c.r, c.g, c.b) }
func (wr *writer) stroke(c rgb) { wr.pdf.SetDrawColor(c.r, c.g, c.b) }

// ensure starts a new page unless h mm fit above the footer.
func (wr *writer) ensure(h float64) {
	if wr.pdf.GetY()+h > contentLimit {
		wr.pdf.AddPage()
		wr.pdf.SetY(margin)
	}
}

func (wr *writer) header(title, subtitle string) {
	pdf := wr.pdf
	wr.fill(primary)
	pdf.Rect(0, 0, pageW, headerBandH, "F")

	wr.text(white)
	pdf.SetFont("Helvetica", "B", 18)
	pdf.SetXY(margin, 9)
	pdf.CellFormat(contentWidth, 8, wr.tr(title), "", 1, "L", false, 0, "")
	if subtitle != "" {
		pdf.SetFont("Helvetica", "", 10)
		pdf.SetX(margin)
		pdf.CellFormat(contentWidth, 6, wr.tr(subtitle), "", 1, "L", false, 0, "")
	}
	pdf.SetY(headerBandH + sectionGap)
}

func (wr *writer) footer(label string) {
	pdf := wr.pdf
	y := pageH - footerH
	wr.stroke(ruleColor)
	pdf.SetLineWidth(0.2)
	pdf.Line(margin, y, pageW-margin, y)

	wr.text(muted)
	pdf.SetFont("Helvetica", "", 8)
	pdf.SetXY(margin, y+2)
	pdf.CellFormat(contentWidth/2, 5, wr.tr(label), "", 0, "L", false, 0, "")
	pdf.CellFormat(contentWidth/2, 5, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
}

func (wr *writer) section(s document.Section) {
	wr.ensure(minSectionH)
	pdf := wr.pdf

	wr.text(textColor)
	pdf.SetFont("Helvetica", "B", 13)
	pdf.SetX(margin)
	pdf.CellFormat(contentWidth, titleH, wr.tr(s.Title), "", 1, "L", false, 0, "")
	wr.stroke(primary)
	pdf.SetLineWidth(0.4)
	pdf.Line(margin, pdf.GetY(), pageW-margin, pdf.GetY())
	pdf.SetY(pdf.GetY() + 3)

	switch s.Kind {
	case document.KindText:
		wr.paragraph(s.Text)
	case document.KindMetrics:
		wr.metrics(s.Metrics)
	case document.KindTable:
		if s.Table != nil {
			wr.table(*s.Table)
		}
	}
	pdf.SetY(pdf.GetY() + sectionGap)
}

func (wr *writer) paragraph(txt string) {
	pdf := wr.pdf
	wr.text(textColor)
	pdf.SetFont("Helvetica", "", 10)
	for _, para := range strings.Split(txt, "\n") {
		for _, line := range pdf.SplitText(wr.tr(para), contentWidth) {
			wr.ensure(lineH)
			pdf.SetX(margin)
			pdf.CellFormat(contentWidth, lineH, line, "", 1, "L", false, 0, "")
		}
	}
}

// metrics draws the tiles two per row.
func (wr *writer) metrics(metrics []document.Metric) {
	pdf := wr.pdf
	tileW := (contentWidth - tileGap) / 2
	for i := 0; i < len(metrics); i += 2 {
		wr.ensure(tileH)
		y := pdf.GetY()
		for j := 0; j < 2 && i+j < len(metrics); j++ {
			m := metrics[i+j]
			x := margin + float64(j)*(tileW+tileGap)

			wr.fill(tileFill)
			pdf.Rect(x, y, tileW, tileH, "F")

			wr.text(muted)
			pdf.SetFont("Helvetica", "", 8)
			pdf.SetXY(x+3, y+2)
			pdf.CellFormat(tileW-6, 4, wr.truncate(m.Label, tileW-6), "", 0, "L", false, 0, "")

			wr.text(primary)
			pdf.SetFont("Helvetica", "B", 14)
			pdf.SetXY(x+3, y+7)
			pdf.CellFormat(tileW-6, 7, wr.truncate(m.Value, tileW-6), "", 0, "L", false, 0, "")

			if m.Hint != "" {
				wr.text(muted)
				pdf.SetFont("Helvetica", "", 7)
				pdf.SetXY(x+3, y+14.5)
				pdf.CellFormat(tileW-6, 4, wr.truncate(m.Hint, tileW-6), "", 0, "L", false, 0, "")
			}
		}
		pdf.SetY(y + tileH + tileGap)
	}
}

func columnWidths(t document.Table) []float64 {
	n := len(t.Headers)
	widths := make([]float64, n)
	var total float64
	if len(t.Widths) == n {
		for _, w := range t.Widths {
			total += w
		}
	}
	for i := range widths {
		if total > 0 {
			widths[i] = contentWidth * t.Widths[i] / total
		} else {
			widths[i] = contentWidth / float64(n)
		}
	}
	return widths
}

func (wr *writer) table(t document.Table) {
	if len(t.Headers) == 0 {
		return
	}
	widths := columnWidths(t)
	wr.ensure(2 * rowH)
	wr.tableHeader(t.Headers, widths)

	pdf := wr.pdf
	for i, row := range t.Rows {
		if pdf.GetY()+rowH > contentLimit {
			wr.ensure(rowH)
			wr.tableHeader(t.Headers, widths)
		}
		shaded := i%2 == 1
		if shaded {
			wr.fill(rowShade)
		}
		wr.text(textColor)
		pdf.SetFont("Helvetica", "", 9)
		pdf.SetX(margin)
		for j, w := range widths {
			var cell string
			if j < len(row) {
				cell = row[j]
			}
			pdf.CellFormat(w, rowH, wr.truncate(cell, w-2*cellPad), "", 0, "L", shaded, 0, "")
		}
		pdf.Ln(rowH)
	}
}

func (wr *writer) tableHeader(headers []string, widths []float64) {
	pdf := wr.pdf
	wr.fill(primary)
	wr.text(white)
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetX(margin)
	for i, h := range headers {
		pdf.CellFormat(widths[i], rowH, wr.truncate(h, widths[i]-2*cellPad), "", 0, "L", true, 0, "")
	}
	pdf.Ln(rowH)
}

// truncate shortens s with an ellipsis so it fits in w mm with the current font.
func (wr *writer) truncate(s string, w float64) string {
	s = wr.tr(s)
	if wr.pdf.GetStringWidth(s) <= w {
		return s
	}
	// translated text is single byte encoded
	const ellipsis = "..."
	for n := len(s) - 1; n > 0; n-- {
		if wr.pdf.GetStringWidth(s[:n]+ellipsis) <= w {
			return s[:n] + ellipsis
		}
	}
	return ""
}

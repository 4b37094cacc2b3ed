// Package document holds the renderer-independent model of a generated report.
package document

import "time"

type SectionKind string

const (
	KindText    SectionKind = "text"
	KindMetrics SectionKind = "metrics"
	KindTable   SectionKind = "table"
)

type Document struct {
	Title       string
	Subtitle    string
	GeneratedBy string
	GeneratedAt time.Time
	Sections    []Section
}

type Section struct {
	Title   string
	Kind    SectionKind
	Text    string
	Metrics []Metric
	Table   *Table
}

// Metric is a single tile of a metrics grid.
type Metric struct {
	Label string
	Value string
	Hint  string
}

type Table struct {
	Headers []string
	Rows    [][]string
	// Widths are relative column weights; equal widths when empty.
	Widths []float64
}

func TextSection(title, text string) Section {
	return Section{Title: title, Kind: KindText, Text: text}
}

func MetricsSection(title string, metrics ...Metric) Section {
	return Section{Title: title, Kind: KindMetrics, Metrics: metrics}
}

func TableSection(title string, headers []string, rows [][]string) Section {
	return Section{Title: title, Kind: KindTable, Table: &Table{Headers: headers, Rows: rows}}
}

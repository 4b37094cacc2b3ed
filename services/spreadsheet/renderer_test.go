package spreadsheetsvc

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/iradukundapaci/communiserver-sub002/core/document"
)

func TestRenderer_Render(t *testing.T) {
	doc := document.Document{
		Title:       "Communiserver analytics report",
		Subtitle:    "Last 7d",
		GeneratedBy: "admin@test.rw",
		GeneratedAt: time.Date(2024, 6, 15, 13, 30, 0, 0, time.UTC),
		Sections: []document.Section{
			document.TextSection("Summary", "All good."),
			document.MetricsSection("Key figures", document.Metric{Label: "Users", Value: "10", Hint: "live accounts"}),
			document.TableSection("Users by role", []string{"Role", "Users"}, [][]string{{"Admin", "1"}, {"Citizen", "9"}}),
			document.TableSection("Users by role", []string{"Role", "Users"}, nil),
		},
	}

	r := NewRenderer()
	assert.Equal(t, ".xlsx", r.Extension())

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, doc))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Summary", "Users by role", "Users by role 2"}, f.GetSheetList())

	title, err := f.GetCellValue("Summary", "A1")
	require.NoError(t, err)
	assert.Equal(t, doc.Title, title)

	rows, err := f.GetRows("Summary")
	require.NoError(t, err)
	var found bool
	for _, row := range rows {
		if len(row) >= 3 && row[0] == "Users" {
			assert.Equal(t, []string{"Users", "10", "live accounts"}, row[:3])
			found = true
		}
	}
	assert.True(t, found, "metric row missing")

	rows, err = f.GetRows("Users by role")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Role", "Users"}, {"Admin", "1"}, {"Citizen", "9"}}, rows)
}

func TestSheetName(t *testing.T) {
	used := map[string]bool{"Summary": true}
	assert.Equal(t, "Summary 2", sheetName("Summary", used))
	assert.Equal(t, "a b (c)", sheetName("a/b [c]", used))
	assert.Equal(t, "Table", sheetName("  ", used))

	long := strings.Repeat("x", 40)
	first := sheetName(long, used)
	second := sheetName(long, used)
	assert.Len(t, first, maxSheetName)
	assert.Len(t, second, maxSheetName)
	assert.True(t, strings.HasSuffix(second, " 2"))
}

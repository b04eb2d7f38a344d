package parsers

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	apperrors "github.com/alejandroruanova/rowloader/internal/pkg/errors"
)

const productsCSV = `sku,name,price
A1,Widget,10
A2,Gadget,12
A3,Gizmo,7
`

func setupTestFiles(t *testing.T) string {
	tempDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "test.csv"), []byte(productsCSV), 0644))

	jsonContent := `[
  {"sku": "A1", "name": "Widget", "price": 10},
  {"sku": "A2", "name": "Gadget", "price": 12}
]`
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "test.json"), []byte(jsonContent), 0644))

	jsonlContent := `{"sku": "A1", "name": "Widget", "price": 10}
{"sku": "A2", "name": "Gadget", "price": 12}
`
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "test.jsonl"), []byte(jsonlContent), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "test.ndjson"), []byte(jsonlContent), 0644))

	return tempDir
}

func TestCSVNormalizer_Normalize(t *testing.T) {
	normalizer := NewCSVNormalizer(nil)
	content, err := normalizer.Normalize(context.Background(), []byte(productsCSV))

	require.NoError(t, err)
	assert.True(t, content.Supported())
	assert.Equal(t, "csv", content.Format)
	assert.Equal(t, []string{"sku", "name", "price"}, content.Header)
	require.Len(t, content.Rows, 3)
	assert.Equal(t, 3, content.TotalRows)

	assert.Equal(t, Row{Line: 2, Cells: []string{"A1", "Widget", "10"}}, content.Rows[0])
	assert.Equal(t, 4, content.Rows[2].Line)
}

func TestCSVNormalizer_SkipBlankRows(t *testing.T) {
	csvContent := "sku,price\nA1,10\n   \nA2,12\n"

	content, err := NewCSVNormalizer(nil).Normalize(context.Background(), []byte(csvContent))

	require.NoError(t, err)
	require.Len(t, content.Rows, 2)
	assert.Equal(t, 1, content.SkippedRows)
	assert.Equal(t, 2, content.Rows[0].Line)
	assert.Equal(t, 4, content.Rows[1].Line)
}

func TestCSVNormalizer_TrimWhitespace(t *testing.T) {
	csvContent := "  sku  , price \n  A1  ,  10  \n"

	content, err := NewCSVNormalizer(nil).Normalize(context.Background(), []byte(csvContent))

	require.NoError(t, err)
	assert.Equal(t, []string{"sku", "price"}, content.Header)
	assert.Equal(t, []string{"A1", "10"}, content.Rows[0].Cells)
}

func TestCSVNormalizer_CleansInvisibleCharacters(t *testing.T) {
	// zero-width space after sku, decomposed e-acute in "cafe"
	csvContent := "sku\u200b,cafe\u0301\nA1,ok\n"

	content, err := NewCSVNormalizer(nil).Normalize(context.Background(), []byte(csvContent))

	require.NoError(t, err)
	assert.Equal(t, []string{"sku", "caf\u00e9"}, content.Header)
}

func TestCSVNormalizer_KeepsShortRows(t *testing.T) {
	csvContent := "sku,name,price\nA1,Widget\n"

	content, err := NewCSVNormalizer(nil).Normalize(context.Background(), []byte(csvContent))

	require.NoError(t, err)
	require.Len(t, content.Rows, 1)
	// length mismatches are reported by the row processor, not here
	assert.Equal(t, []string{"A1", "Widget"}, content.Rows[0].Cells)
}

func TestCSVNormalizer_UnbalancedQuoteStaysOnItsLine(t *testing.T) {
	csvContent := "sku,name,price\nA1,Widget,9.99\nA2,\"Gadget,4.50\nA3,Thing,1\nA4,Other,2\n"

	content, err := NewCSVNormalizer(nil).Normalize(context.Background(), []byte(csvContent))

	require.NoError(t, err)
	assert.True(t, content.Supported())
	require.Len(t, content.Rows, 4)
	assert.Equal(t, Row{Line: 3, Cells: []string{"A2", "Gadget,4.50"}}, content.Rows[1])
	assert.Equal(t, Row{Line: 4, Cells: []string{"A3", "Thing", "1"}}, content.Rows[2])
	assert.Equal(t, Row{Line: 5, Cells: []string{"A4", "Other", "2"}}, content.Rows[3])
}

func TestCSVNormalizer_QuotedDelimiterAndCRLF(t *testing.T) {
	csvContent := "sku,name\r\nA1,\"Widget, large\"\r\nA2,\"say \"\"hi\"\"\"\r\n"

	content, err := NewCSVNormalizer(nil).Normalize(context.Background(), []byte(csvContent))

	require.NoError(t, err)
	assert.Equal(t, []string{"sku", "name"}, content.Header)
	require.Len(t, content.Rows, 2)
	assert.Equal(t, []string{"A1", "Widget, large"}, content.Rows[0].Cells)
	assert.Equal(t, []string{"A2", `say "hi"`}, content.Rows[1].Cells)
	assert.Equal(t, 3, content.Rows[1].Line)
}

func TestCSVNormalizer_StripsBOM(t *testing.T) {
	raw := append([]byte{0xEF, 0xBB, 0xBF}, []byte(productsCSV)...)

	content, err := NewCSVNormalizer(nil).Normalize(context.Background(), raw)

	require.NoError(t, err)
	assert.Equal(t, "sku", content.Header[0])
}

func TestDelimitedNormalizer_CustomDelimiter(t *testing.T) {
	normalizer := NewDelimitedNormalizer(nil, ';', "csv", ".csv")

	content, err := normalizer.Normalize(context.Background(), []byte("sku;price\nA1;10\n"))

	require.NoError(t, err)
	assert.Equal(t, []string{"sku", "price"}, content.Header)
	assert.Equal(t, []string{"A1", "10"}, content.Rows[0].Cells)
}

func TestFlatTextNormalizer_Normalize(t *testing.T) {
	normalizer := NewFlatTextNormalizer(nil)

	content, err := normalizer.Normalize(context.Background(), []byte("sku\tprice\nA1\t10\nA2\t12\n"))

	require.NoError(t, err)
	assert.Equal(t, "flat_text", content.Format)
	assert.Equal(t, []string{"sku", "price"}, content.Header)
	assert.Len(t, content.Rows, 2)
	assert.Contains(t, normalizer.SupportedFormats(), ".tsv")
}

func TestJSONNormalizer_HeaderBody(t *testing.T) {
	raw := `{"header": ["sku", "price"], "body": [["A1", 10], ["A2", 12.5], ["A3", null]]}`

	content, err := NewJSONNormalizer(nil).Normalize(context.Background(), []byte(raw))

	require.NoError(t, err)
	assert.True(t, content.Supported())
	assert.Equal(t, []string{"sku", "price"}, content.Header)
	require.Len(t, content.Rows, 3)
	assert.Equal(t, []string{"A2", "12.5"}, content.Rows[1].Cells)
	assert.Equal(t, []string{"A3", ""}, content.Rows[2].Cells)
	assert.Equal(t, 2, content.Rows[0].Line)
}

func TestJSONNormalizer_ArrayDump(t *testing.T) {
	raw := `[["sku", "price"], ["A1", 10], ["A2", 12]]`

	content, err := NewJSONNormalizer(nil).Normalize(context.Background(), []byte(raw))

	require.NoError(t, err)
	assert.Equal(t, []string{"sku", "price"}, content.Header)
	assert.Len(t, content.Rows, 2)
}

func TestJSONNormalizer_ObjectDump(t *testing.T) {
	raw := `[
  {"sku": "A1", "price": 10, "active": true},
  {"price": 12, "sku": "A2", "active": false}
]`

	content, err := NewJSONNormalizer(nil).Normalize(context.Background(), []byte(raw))

	require.NoError(t, err)
	assert.Equal(t, []string{"sku", "price", "active"}, content.Header)
	require.Len(t, content.Rows, 2)
	// the second object is projected in header order
	assert.Equal(t, []string{"A2", "12", "false"}, content.Rows[1].Cells)
}

func TestJSONNormalizer_NestedValue(t *testing.T) {
	raw := `{"header": ["sku", "tags"], "body": [["A1", ["red", "blue"]]]}`

	content, err := NewJSONNormalizer(nil).Normalize(context.Background(), []byte(raw))

	require.NoError(t, err)
	assert.Equal(t, `["red","blue"]`, content.Rows[0].Cells[1])
}

func TestJSONNormalizer_Unsupported(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"object without header", `{"rows": []}`},
		{"array of scalars", `[1, 2, 3]`},
		{"empty array", `[]`},
		{"scalar document", `42`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content, err := NewJSONNormalizer(nil).Normalize(context.Background(), []byte(tt.raw))

			require.NoError(t, err)
			assert.False(t, content.Supported())
			assert.Equal(t, []string{"The supplied JSON structure processing is not yet available"}, content.Errors)
			assert.Empty(t, content.Header)
			assert.Empty(t, content.Rows)
		})
	}
}

func TestJSONNormalizer_Malformed(t *testing.T) {
	content, err := NewJSONNormalizer(nil).Normalize(context.Background(), []byte(`{"header": [`))

	require.NoError(t, err)
	assert.False(t, content.Supported())
	assert.Len(t, content.Errors, 2)
}

func TestJSONLNormalizer_Normalize(t *testing.T) {
	raw := `{"sku": "A1", "price": 10}

{"sku": "A2", "price": 12}
`
	normalizer := NewJSONLNormalizer(nil)
	content, err := normalizer.Normalize(context.Background(), []byte(raw))

	require.NoError(t, err)
	assert.Equal(t, "jsonl", content.Format)
	assert.Equal(t, []string{"sku", "price"}, content.Header)
	require.Len(t, content.Rows, 2)
	assert.Equal(t, 1, content.Rows[0].Line)
	assert.Equal(t, 3, content.Rows[1].Line)
}

func TestJSONLNormalizer_MalformedLines(t *testing.T) {
	raw := `{"sku": "A1", "price": 10}
not json
["array"]
{"sku": "A2", "price": 12}
`
	content, err := NewJSONLNormalizer(nil).Normalize(context.Background(), []byte(raw))

	require.NoError(t, err)
	assert.Len(t, content.Rows, 2)
	assert.Equal(t, 2, content.SkippedRows)
	assert.Equal(t, []string{"line 2 is not a JSON object", "line 3 is not a JSON object"}, content.Errors)
}

func TestJSONLNormalizer_SupportedFormats(t *testing.T) {
	formats := NewJSONLNormalizer(nil).SupportedFormats()
	assert.ElementsMatch(t, []string{".jsonl", ".ndjson", ".jsonnl"}, formats)
}

func TestXMLNormalizer_HeaderItems(t *testing.T) {
	raw := `<?xml version="1.0" encoding="UTF-8"?>
<sheet>
  <header><value>sku</value><value>price</value></header>
  <body>
    <item><value>A1</value><value>10</value></item>
    <item><value> A2 </value><value>12</value></item>
  </body>
</sheet>`

	content, err := NewXMLNormalizer(nil).Normalize(context.Background(), []byte(raw))

	require.NoError(t, err)
	assert.True(t, content.Supported())
	assert.Equal(t, []string{"sku", "price"}, content.Header)
	require.Len(t, content.Rows, 2)
	assert.Equal(t, []string{"A2", "12"}, content.Rows[1].Cells)
}

func TestXMLNormalizer_ItemsOnly(t *testing.T) {
	raw := `<sheet>
  <item><sku>A1</sku><price>10</price></item>
  <item><sku>A2</sku><price>12</price></item>
</sheet>`

	content, err := NewXMLNormalizer(nil).Normalize(context.Background(), []byte(raw))

	require.NoError(t, err)
	assert.Equal(t, []string{"sku", "price"}, content.Header)
	require.Len(t, content.Rows, 2)
	assert.Equal(t, []string{"A1", "10"}, content.Rows[0].Cells)
}

func TestXMLNormalizer_Unsupported(t *testing.T) {
	raw := `<sheet><rows><row>1</row></rows></sheet>`

	content, err := NewXMLNormalizer(nil).Normalize(context.Background(), []byte(raw))

	require.NoError(t, err)
	assert.Equal(t, []string{"The supplied XML structure processing is not yet available"}, content.Errors)
	assert.Empty(t, content.Rows)
}

func TestXMLNormalizer_Latin1(t *testing.T) {
	raw := append([]byte(`<?xml version="1.0" encoding="ISO-8859-1"?><sheet><item><name>Caf`), 0xE9)
	raw = append(raw, []byte(`</name></item></sheet>`)...)

	content, err := NewXMLNormalizer(nil).Normalize(context.Background(), raw)

	require.NoError(t, err)
	require.Len(t, content.Rows, 1)
	assert.Equal(t, "Café", content.Rows[0].Cells[0])
}

func TestExcelNormalizer_Normalize(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"sku", "name", "price"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"A1", "Widget", 10}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]interface{}{"A2", "Gadget"}))

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	content, err := NewExcelNormalizer(nil).Normalize(context.Background(), buf.Bytes())

	require.NoError(t, err)
	assert.Equal(t, "xlsx", content.Format)
	assert.Equal(t, []string{"sku", "name", "price"}, content.Header)
	require.Len(t, content.Rows, 2)
	assert.Equal(t, []string{"A1", "Widget", "10"}, content.Rows[0].Cells)
	assert.Equal(t, []string{"A2", "Gadget", ""}, content.Rows[1].Cells)
}

func TestExcelNormalizer_NotAWorkbook(t *testing.T) {
	content, err := NewExcelNormalizer(nil).Normalize(context.Background(), []byte("not a zip"))

	require.NoError(t, err)
	assert.False(t, content.Supported())
}

func TestNormalizerFactory_Get(t *testing.T) {
	factory := NewNormalizerFactory(nil)

	tests := []struct {
		format   string
		expected string
	}{
		{"csv", "csv"},
		{"CSV", "csv"},
		{"flat_text", "flat_text"},
		{"tsv", "flat_text"},
		{"json", "json"},
		{"ndjson", "jsonl"},
		{"xml", "xml"},
		{"excel", "xlsx"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			normalizer, err := factory.Get(tt.format)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, normalizer.Format())
		})
	}
}

func TestNormalizerFactory_Get_Unsupported(t *testing.T) {
	factory := NewNormalizerFactory(nil)

	_, err := factory.Get("parquet")

	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUnsupportedFormat))
}

func TestNormalizerFactory_ForSheet_Delimiter(t *testing.T) {
	factory := NewNormalizerFactory(nil)

	normalizer, err := factory.ForSheet("csv", '|')
	require.NoError(t, err)

	delimited, ok := normalizer.(*DelimitedNormalizer)
	require.True(t, ok)
	assert.Equal(t, '|', delimited.Delimiter())
	assert.Equal(t, "csv", delimited.Format())

	// the registered csv normalizer is untouched
	registered, err := factory.Get("csv")
	require.NoError(t, err)
	assert.Equal(t, ',', registered.(*DelimitedNormalizer).Delimiter())
}

func TestNormalizerFactory_IsSupported(t *testing.T) {
	factory := NewNormalizerFactory(nil)

	assert.True(t, factory.IsSupported(".csv"))
	assert.True(t, factory.IsSupported("json"))
	assert.True(t, factory.IsSupported(".NDJSON"))
	assert.True(t, factory.IsSupported(".xlsx"))
	assert.False(t, factory.IsSupported(".parquet"))
}

func TestNormalizerFactory_NormalizeFile(t *testing.T) {
	tempDir := setupTestFiles(t)
	factory := NewNormalizerFactory(nil)

	tests := []struct {
		file     string
		format   string
		rowCount int
	}{
		{"test.csv", "csv", 3},
		{"test.json", "json", 2},
		{"test.jsonl", "jsonl", 2},
		{"test.ndjson", "jsonl", 2},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			content, err := factory.NormalizeFile(context.Background(), filepath.Join(tempDir, tt.file))
			require.NoError(t, err)
			assert.Equal(t, tt.format, content.Format)
			assert.Len(t, content.Rows, tt.rowCount)
		})
	}
}

func TestNormalizerFactory_Formats(t *testing.T) {
	formats := NewNormalizerFactory(nil).Formats()
	assert.Equal(t, []string{"csv", "flat_text", "json", "jsonl", "xlsx", "xml"}, formats)
}

func TestParserConfig_MaxFileSize(t *testing.T) {
	normalizer := NewCSVNormalizer(&ParserConfig{MaxFileSize: 10})

	_, err := normalizer.Normalize(context.Background(), []byte(productsCSV))

	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeFileTooLarge))
}

func TestContext_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCSVNormalizer(nil).Normalize(ctx, []byte(productsCSV))

	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultParserConfig(t *testing.T) {
	config := DefaultParserConfig()
	assert.Equal(t, int64(500*1024*1024), config.MaxFileSize)
}

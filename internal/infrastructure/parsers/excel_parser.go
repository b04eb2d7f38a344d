package parsers

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ExcelNormalizer parses the first sheet of an Excel workbook (.xlsx)
type ExcelNormalizer struct {
	config *ParserConfig
}

// NewExcelNormalizer creates a new Excel normalizer
func NewExcelNormalizer(config *ParserConfig) *ExcelNormalizer {
	if config == nil {
		config = DefaultParserConfig()
	}
	return &ExcelNormalizer{
		config: config,
	}
}

// Normalize extracts the first sheet; row 0 is the header
func (p *ExcelNormalizer) Normalize(ctx context.Context, raw []byte) (*Content, error) {
	if err := p.config.checkSize(raw); err != nil {
		return nil, err
	}

	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		content := unsupported(p.Format())
		content.Errors = append(content.Errors, fmt.Sprintf("failed to read workbook: %v", err))
		return content, nil
	}
	defer f.Close()

	// Get the first sheet
	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return unsupported(p.Format()), nil
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows from sheet %s: %w", sheetName, err)
	}

	content := &Content{
		Header: []string{},
		Rows:   []Row{},
		Format: p.Format(),
	}

	for rowIdx, row := range rows {
		// Check context cancellation
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		cells := sanitize(row)
		if len(content.Header) == 0 {
			if isBlankRow(cells) {
				continue
			}
			content.Header = cells
			continue
		}

		content.TotalRows++
		if isBlankRow(cells) {
			content.SkippedRows++
			continue
		}

		// excelize drops trailing empty cells; a blank cell in a workbook is real
		for len(cells) < len(content.Header) {
			cells = append(cells, "")
		}

		content.Rows = append(content.Rows, Row{Line: rowIdx + 1, Cells: cells})
	}

	return content, nil
}

// Format returns the format name
func (p *ExcelNormalizer) Format() string {
	return "xlsx"
}

// SupportedFormats returns the file extensions this normalizer supports
func (p *ExcelNormalizer) SupportedFormats() []string {
	return []string{".xlsx"}
}

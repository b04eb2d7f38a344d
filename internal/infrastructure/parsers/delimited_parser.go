package parsers

import (
	"context"
	"encoding/csv"
	"strings"
)

// DelimitedNormalizer parses delimited flat text (CSV, tab separated, ...)
type DelimitedNormalizer struct {
	config     *ParserConfig
	delimiter  rune
	format     string
	extensions []string
}

// NewCSVNormalizer creates a comma-delimited normalizer
func NewCSVNormalizer(config *ParserConfig) *DelimitedNormalizer {
	return NewDelimitedNormalizer(config, ',', "csv", ".csv")
}

// NewFlatTextNormalizer creates a tab-delimited normalizer
func NewFlatTextNormalizer(config *ParserConfig) *DelimitedNormalizer {
	return NewDelimitedNormalizer(config, '\t', "flat_text", ".tsv", ".tab", ".txt")
}

// NewDelimitedNormalizer creates a normalizer for an arbitrary single-character delimiter
func NewDelimitedNormalizer(config *ParserConfig, delimiter rune, format string, extensions ...string) *DelimitedNormalizer {
	if config == nil {
		config = DefaultParserConfig()
	}
	return &DelimitedNormalizer{
		config:     config,
		delimiter:  delimiter,
		format:     format,
		extensions: extensions,
	}
}

// Normalize splits the input into lines and each line into cells. Blank
// lines are skipped and the first surviving line is the header. Quotes never
// span lines, so an unbalanced quote only affects its own row.
func (p *DelimitedNormalizer) Normalize(ctx context.Context, raw []byte) (*Content, error) {
	if err := p.config.checkSize(raw); err != nil {
		return nil, err
	}

	text, err := decodeText(raw)
	if err != nil {
		return nil, err
	}

	content := &Content{
		Rows:   []Row{},
		Format: p.format,
	}

	lines := strings.Split(string(text), "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	for i, line := range lines {
		// Check context cancellation
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		cells := sanitize(p.splitLine(strings.TrimSuffix(line, "\r")))

		if content.Header == nil {
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

		content.Rows = append(content.Rows, Row{Line: i + 1, Cells: cells})
	}

	if content.Header == nil {
		content.Header = []string{}
	}

	return content, nil
}

// splitLine parses one line honouring quotes. An unclosed quote runs to the
// end of the line; a line the csv reader still rejects is split on the bare
// delimiter.
func (p *DelimitedNormalizer) splitLine(line string) []string {
	if line == "" {
		return nil
	}

	reader := csv.NewReader(strings.NewReader(line))
	reader.Comma = p.delimiter
	reader.FieldsPerRecord = -1 // row length is checked against the header later
	reader.LazyQuotes = true

	record, err := reader.Read()
	if err != nil {
		return strings.Split(line, string(p.delimiter))
	}
	return record
}

// Delimiter returns the cell delimiter
func (p *DelimitedNormalizer) Delimiter() rune {
	return p.delimiter
}

// Format returns the format name
func (p *DelimitedNormalizer) Format() string {
	return p.format
}

// SupportedFormats returns the file extensions this normalizer supports
func (p *DelimitedNormalizer) SupportedFormats() []string {
	return p.extensions
}

package parsers

import (
	"context"
	"net/http"
	"strings"
	stdunicode "unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	apperrors "github.com/alejandroruanova/rowloader/internal/pkg/errors"
)

// Row is one data row of a normalized file
type Row struct {
	// Line is the 1-based source line for text formats, or the record
	// ordinal + 1 for structured formats (the header counts as line 1).
	Line  int
	Cells []string
}

// Content is the uniform header+rows shape every format is reduced to
type Content struct {
	Header      []string
	Rows        []Row
	Errors      []string // run-level structural errors
	TotalRows   int
	SkippedRows int
	Format      string
}

// Supported reports whether the input had a structure the normalizer understood
func (c *Content) Supported() bool {
	return len(c.Errors) == 0
}

// Normalizer is implemented once per supported encoding
type Normalizer interface {
	// Normalize turns raw bytes into a header and ordered rows.
	// Unsupported structures are reported in Content.Errors, not as an error.
	Normalize(ctx context.Context, raw []byte) (*Content, error)

	// Format returns the format name this normalizer handles
	Format() string

	// SupportedFormats returns the file extensions this normalizer supports
	SupportedFormats() []string
}

// ParserConfig holds configuration for all normalizers
type ParserConfig struct {
	// MaxFileSize is the maximum input size in bytes (0 = unlimited)
	MaxFileSize int64
}

// DefaultParserConfig returns sensible defaults
func DefaultParserConfig() *ParserConfig {
	return &ParserConfig{
		MaxFileSize: 500 * 1024 * 1024, // 500 MB
	}
}

func (c *ParserConfig) checkSize(raw []byte) error {
	if c.MaxFileSize > 0 && int64(len(raw)) > c.MaxFileSize {
		return apperrors.FileTooLarge(int64(len(raw)), c.MaxFileSize)
	}
	return nil
}

// sanitize trims every cell. Non-ASCII cells also lose invisible format
// characters (zero-width spaces, stray BOMs) and are NFC-composed, so a
// header typed on another system still matches the configured column.
func sanitize(cells []string) []string {
	out := make([]string, len(cells))
	for i, cell := range cells {
		out[i] = strings.TrimSpace(cleanText(cell))
	}
	return out
}

func cleanText(s string) string {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			ascii = false
			break
		}
	}
	if ascii {
		return s
	}
	t := transform.Chain(runes.Remove(runes.In(stdunicode.Cf)), norm.NFC)
	cleaned, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return cleaned
}

// isBlankRow reports whether a sanitized row is a single empty cell
func isBlankRow(cells []string) bool {
	return len(cells) == 0 || (len(cells) == 1 && cells[0] == "")
}

// decodeText strips a UTF-8 BOM and transcodes UTF-16 input (detected by
// its BOM) to UTF-8. Input without a BOM is returned unchanged.
func decodeText(raw []byte) ([]byte, error) {
	decoded, _, err := transform.Bytes(unicode.BOMOverride(transform.Nop), raw)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeFileParseError, "failed to decode input", http.StatusBadRequest)
	}
	return decoded, nil
}

// unsupported builds an empty Content carrying the unsupported-structure error
func unsupported(format string) *Content {
	return &Content{
		Header: []string{},
		Rows:   []Row{},
		Errors: []string{apperrors.UnsupportedStructure(strings.ToUpper(format)).Message},
		Format: format,
	}
}

package parsers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	apperrors "github.com/alejandroruanova/rowloader/internal/pkg/errors"
)

// NormalizerFactory selects a normalizer by format name or file extension
type NormalizerFactory struct {
	config      *ParserConfig
	byFormat    map[string]Normalizer
	byExtension map[string]Normalizer
}

// NewNormalizerFactory creates a new factory with all built-in normalizers
func NewNormalizerFactory(config *ParserConfig) *NormalizerFactory {
	if config == nil {
		config = DefaultParserConfig()
	}

	factory := &NormalizerFactory{
		config:      config,
		byFormat:    make(map[string]Normalizer),
		byExtension: make(map[string]Normalizer),
	}

	// Register built-in normalizers
	factory.Register(NewCSVNormalizer(config))
	factory.Register(NewFlatTextNormalizer(config))
	factory.Register(NewJSONNormalizer(config))
	factory.Register(NewJSONLNormalizer(config))
	factory.Register(NewXMLNormalizer(config))
	factory.Register(NewExcelNormalizer(config))

	return factory
}

// Register registers a normalizer under its format name and extensions
func (f *NormalizerFactory) Register(normalizer Normalizer) {
	f.byFormat[strings.ToLower(normalizer.Format())] = normalizer
	for _, ext := range normalizer.SupportedFormats() {
		f.byExtension[normalizeExt(ext)] = normalizer
	}
}

// Get returns the normalizer registered for a format name
func (f *NormalizerFactory) Get(format string) (Normalizer, error) {
	normalizer, exists := f.byFormat[formatAlias(format)]
	if !exists {
		return nil, apperrors.UnsupportedFormat(format)
	}
	return normalizer, nil
}

// ForSheet returns the normalizer for a format, honouring a custom delimiter
// for delimited formats.
func (f *NormalizerFactory) ForSheet(format string, delimiter rune) (Normalizer, error) {
	normalizer, err := f.Get(format)
	if err != nil {
		return nil, err
	}

	if delimited, ok := normalizer.(*DelimitedNormalizer); ok && delimiter != 0 && delimiter != delimited.Delimiter() {
		return NewDelimitedNormalizer(f.config, delimiter, delimited.Format(), delimited.SupportedFormats()...), nil
	}

	return normalizer, nil
}

// GetForFile returns the appropriate normalizer based on file path
func (f *NormalizerFactory) GetForFile(filePath string) (Normalizer, error) {
	ext := normalizeExt(filepath.Ext(filePath))
	normalizer, exists := f.byExtension[ext]
	if !exists {
		return nil, apperrors.UnsupportedFormat(ext)
	}
	return normalizer, nil
}

// NormalizeFile is a convenience method that reads a file from disk and
// normalizes it with the normalizer matching its extension
func (f *NormalizerFactory) NormalizeFile(ctx context.Context, filePath string) (*Content, error) {
	normalizer, err := f.GetForFile(filePath)
	if err != nil {
		return nil, err
	}

	// Check file size if limit is set
	if f.config.MaxFileSize > 0 {
		stat, err := os.Stat(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to stat file: %w", err)
		}
		if stat.Size() > f.config.MaxFileSize {
			return nil, apperrors.FileTooLarge(stat.Size(), f.config.MaxFileSize)
		}
	}

	raw, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return normalizer.Normalize(ctx, raw)
}

// Formats returns all registered format names, sorted
func (f *NormalizerFactory) Formats() []string {
	formats := make([]string, 0, len(f.byFormat))
	for name := range f.byFormat {
		formats = append(formats, name)
	}
	sort.Strings(formats)
	return formats
}

// IsSupported checks if a file extension is supported
func (f *NormalizerFactory) IsSupported(fileExt string) bool {
	_, exists := f.byExtension[normalizeExt(fileExt)]
	return exists
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func formatAlias(format string) string {
	switch format = strings.ToLower(strings.TrimSpace(format)); format {
	case "tsv", "tab", "text", "flat", "flattext", "flat-text":
		return "flat_text"
	case "ndjson":
		return "jsonl"
	case "excel", "xls":
		return "xlsx"
	default:
		return format
	}
}

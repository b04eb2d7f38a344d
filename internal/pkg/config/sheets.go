package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/viper"

	apperrors "github.com/alejandroruanova/rowloader/internal/pkg/errors"
)

// RecorderKeys are the recorder entries every sheet must declare
var RecorderKeys = []string{"run", "error", "affected", "delta"}

// SheetsFile is the root of a sheet definitions file.
//
// Column names are case sensitive, so anything keyed by a column is
// declared as a list instead of a map (viper lowercases map keys).
type SheetsFile struct {
	Sheets map[string]SheetConfig `mapstructure:"sheets"`
}

// SheetConfig declares how one kind of sheet is ingested
type SheetConfig struct {
	Name       string            `mapstructure:"-"`
	Format     string            `mapstructure:"format"`
	Delimiter  string            `mapstructure:"delimiter"`
	UniqueID   string            `mapstructure:"unique_id"`
	HeaderMode string            `mapstructure:"header_mode"`
	Rules      map[string]string `mapstructure:"rules"`
	// RuleSpec is the serialized form action:'rules'|action:'rules'.
	// It is merged over Rules.
	RuleSpec     string            `mapstructure:"rule_spec"`
	Placeholder  string            `mapstructure:"placeholder"`
	Fields       []FieldMapping    `mapstructure:"fields"`
	Correlations []Correlation     `mapstructure:"correlations"`
	Validation   []ValidationRule  `mapstructure:"validation"`
	Methods      map[string]string `mapstructure:"methods"`
	Recorders    map[string]string `mapstructure:"recorders"`
}

// FieldMapping is one "rawColumn -> target.path" entry
type FieldMapping struct {
	Column string `mapstructure:"column"`
	Target string `mapstructure:"target"`
}

// Correlation declares the fields that identify an element of a sub-document
// collection when a field map path contains the placeholder segment.
type Correlation struct {
	Collection string   `mapstructure:"collection"`
	Fields     []string `mapstructure:"fields"`
}

// ValidationRule attaches a rule string to a field for one HTTP-style method
type ValidationRule struct {
	Method string `mapstructure:"method"`
	Field  string `mapstructure:"field"`
	Rules  string `mapstructure:"rules"`
}

// LoadSheets reads sheet definitions from a YAML/JSON/TOML file.
// A missing file or a sheet missing a recorder is a configuration fault.
func LoadSheets(path string) (map[string]SheetConfig, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.ConfigInvalid(fmt.Sprintf("configuration file %s is not found", path))
		}
		return nil, apperrors.ConfigInvalidWrap(err, "failed to stat configuration file")
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, apperrors.ConfigInvalidWrap(err, "failed to read configuration file")
	}

	var file SheetsFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, apperrors.ConfigInvalidWrap(err, "failed to decode sheet definitions")
	}
	if len(file.Sheets) == 0 {
		return nil, apperrors.ConfigInvalid(fmt.Sprintf("%s declares no sheets", path))
	}

	sheets := make(map[string]SheetConfig, len(file.Sheets))
	for name, sheet := range file.Sheets {
		sheet.Name = name
		if err := sheet.Validate(); err != nil {
			return nil, err
		}
		sheets[name] = sheet
	}

	return sheets, nil
}

// Validate checks the keys every sheet needs before anything is compiled
func (s SheetConfig) Validate() error {
	if s.UniqueID == "" {
		return apperrors.ConfigInvalid(fmt.Sprintf("sheet %s: unique_id is required", s.Name))
	}
	if s.Format == "" {
		return apperrors.ConfigInvalid(fmt.Sprintf("sheet %s: format is required", s.Name))
	}

	var missing []string
	for _, key := range RecorderKeys {
		if strings.TrimSpace(s.Recorders[key]) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return apperrors.ConfigInvalid(fmt.Sprintf(
			"sheet %s: recorders 'run', 'error', 'affected' and 'delta' must be present (missing: %s)",
			s.Name, strings.Join(missing, ", ")))
	}

	if s.Delimiter != "" && len([]rune(unescapeDelimiter(s.Delimiter))) != 1 {
		return apperrors.ConfigInvalid(fmt.Sprintf("sheet %s: delimiter must be a single character", s.Name))
	}

	return nil
}

// FieldMap returns the field mappings as a map keyed by raw column
func (s SheetConfig) FieldMap() map[string]string {
	fields := make(map[string]string, len(s.Fields))
	for _, f := range s.Fields {
		fields[f.Column] = f.Target
	}
	return fields
}

// CorrelationMap returns the correlation declarations keyed by collection segment
func (s SheetConfig) CorrelationMap() map[string][]string {
	out := make(map[string][]string, len(s.Correlations))
	for _, c := range s.Correlations {
		out[c.Collection] = append([]string(nil), c.Fields...)
	}
	return out
}

// ValidationRules groups rule strings by upper-cased method, then field
func (s SheetConfig) ValidationRules() map[string]map[string]string {
	out := make(map[string]map[string]string)
	for _, r := range s.Validation {
		method := strings.ToUpper(r.Method)
		if out[method] == nil {
			out[method] = make(map[string]string)
		}
		out[method][r.Field] = r.Rules
	}
	return out
}

// DelimiterRune returns the configured delimiter; "\t" and "tab" mean a tab
func (s SheetConfig) DelimiterRune() rune {
	if s.Delimiter == "" {
		return 0
	}
	return []rune(unescapeDelimiter(s.Delimiter))[0]
}

// Actions lists the actions declared in Rules, sorted
func (s SheetConfig) Actions() []string {
	actions := make([]string, 0, len(s.Rules))
	for action := range s.Rules {
		actions = append(actions, action)
	}
	sort.Strings(actions)
	return actions
}

func unescapeDelimiter(d string) string {
	switch strings.ToLower(d) {
	case `\t`, "tab":
		return "\t"
	case "pipe":
		return "|"
	}
	return d
}

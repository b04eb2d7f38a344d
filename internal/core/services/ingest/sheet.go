package ingest

import (
	"fmt"
	"strings"

	"github.com/alejandroruanova/rowloader/internal/core/services/fieldmap"
	"github.com/alejandroruanova/rowloader/internal/core/services/headerrule"
	"github.com/alejandroruanova/rowloader/internal/pkg/config"
	apperrors "github.com/alejandroruanova/rowloader/internal/pkg/errors"
)

var validationMethods = map[string]bool{"POST": true, "PUT": true, "DELETE": true}

// Sheet is a sheet definition with every name resolved: header rules
// compiled, field map checked, persistence methods and validation rules
// looked up. Building one is where configuration faults surface.
type Sheet struct {
	Name      string
	Format    string
	Delimiter rune
	// UniqueID is the column holding the row's unique identifier
	UniqueID string
	// UniqueField is the entity path the unique identifier is stored under
	UniqueField string
	Rules       *headerrule.RuleSet
	Fields      *fieldmap.Map
	Methods     map[Action]Method
	// Validation holds rule strings keyed by method (POST, PUT, DELETE), then column
	Validation map[string]map[string]string
	Recorders  map[string]string
}

// CompileSheet resolves a sheet definition. The checker, when not nil, is
// given every validation rule set so unknown rules fail here.
func CompileSheet(cfg config.SheetConfig, checker RuleChecker) (*Sheet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mode, err := headerrule.ParseMode(cfg.HeaderMode)
	if err != nil {
		return nil, err
	}

	spec := make(map[string]string, len(cfg.Rules))
	for action, rules := range cfg.Rules {
		spec[action] = rules
	}
	if cfg.RuleSpec != "" {
		parsed, err := headerrule.ParseSpec(cfg.RuleSpec)
		if err != nil {
			return nil, err
		}
		for action, rules := range parsed {
			spec[action] = rules
		}
	}

	rules, err := headerrule.Compile(spec, headerrule.Options{Mode: mode})
	if err != nil {
		return nil, err
	}

	fields, err := fieldmap.Compile(cfg.FieldMap(), cfg.CorrelationMap(), cfg.Placeholder)
	if err != nil {
		return nil, err
	}

	methods := make(map[Action]Method, len(DefaultMethods))
	for action, method := range DefaultMethods {
		methods[action] = method
	}
	for actionName, methodName := range cfg.Methods {
		action, err := ParseAction(actionName)
		if err != nil {
			return nil, apperrors.ConfigInvalid(fmt.Sprintf("sheet %s: unknown action %q in methods", cfg.Name, actionName))
		}
		method, err := ParseMethod(methodName)
		if err != nil {
			return nil, err
		}
		methods[action] = method
	}

	validation := cfg.ValidationRules()
	for method, fieldRules := range validation {
		if !validationMethods[method] {
			return nil, apperrors.ConfigInvalid(fmt.Sprintf("sheet %s: unknown validation method %q", cfg.Name, method))
		}
		if checker != nil {
			if err := checker.Check(fieldRules); err != nil {
				return nil, err
			}
		}
	}

	uniqueField := cfg.UniqueID
	if target, ok := fields.Target(cfg.UniqueID); ok && !hasSegment(target, fields.Placeholder()) {
		uniqueField = target
	}

	return &Sheet{
		Name:        cfg.Name,
		Format:      cfg.Format,
		Delimiter:   cfg.DelimiterRune(),
		UniqueID:    cfg.UniqueID,
		UniqueField: uniqueField,
		Rules:       rules,
		Fields:      fields,
		Methods:     methods,
		Validation:  validation,
		Recorders:   cfg.Recorders,
	}, nil
}

func hasSegment(path, segment string) bool {
	for _, s := range strings.Split(path, ".") {
		if s == segment {
			return true
		}
	}
	return false
}

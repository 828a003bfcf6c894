// Package stream routes security events to consumer channels, scoring
// relevance, applying declarative filters, and buffering windowed channels
// for periodic aggregation.
package stream

import (
	"regexp"
	"strings"

	"github.com/telhawk-systems/telhawk-dispatch/internal/models"
)

// ApplyFilters reports whether the event passes every filter. Filters
// combine with AND semantics and evaluation short-circuits on the first
// non-matching condition. Relevance filters are not evaluated here; the
// scorer owns them.
func ApplyFilters(event *models.EventRecord, filters []models.Filter) bool {
	for _, f := range filters {
		if !matchFilter(event, f) {
			return false
		}
	}
	return true
}

func matchFilter(event *models.EventRecord, f models.Filter) bool {
	if f.Operator == models.OpRelevance {
		return true
	}

	value, ok := event.Field(f.Field)
	if !ok {
		return false
	}

	switch f.Operator {
	case models.OpEquals:
		return valuesEqual(value, f.Value)

	case models.OpContains:
		s, ok := value.(string)
		if !ok {
			return false
		}
		sub, ok := f.Value.(string)
		if !ok {
			return false
		}
		return strings.Contains(s, sub)

	case models.OpGreaterThan:
		a, aok := toFloat(value)
		b, bok := toFloat(f.Value)
		// Boundary values do not pass: the comparison is strict.
		return aok && bok && a > b

	case models.OpLessThan:
		a, aok := toFloat(value)
		b, bok := toFloat(f.Value)
		return aok && bok && a < b

	case models.OpIn:
		return containsValue(f.Value, value)

	case models.OpRegex:
		s, ok := value.(string)
		if !ok {
			return false
		}
		pattern, ok := f.Value.(string)
		if !ok {
			return false
		}
		matched, err := regexp.MatchString(pattern, s)
		return err == nil && matched

	default:
		return false
	}
}

// ValidateFilters rejects filters with unknown operators or patterns that
// do not compile, so bad subscriptions fail at creation rather than at
// routing time.
func ValidateFilters(filters []models.Filter) error {
	for _, f := range filters {
		switch f.Operator {
		case models.OpEquals, models.OpContains, models.OpGreaterThan,
			models.OpLessThan, models.OpIn, models.OpRelevance:
		case models.OpRegex:
			pattern, ok := f.Value.(string)
			if !ok {
				return &FilterError{Field: f.Field, Reason: "regex value must be a string"}
			}
			if _, err := regexp.Compile(pattern); err != nil {
				return &FilterError{Field: f.Field, Reason: "invalid regex: " + err.Error()}
			}
		default:
			return &FilterError{Field: f.Field, Reason: "unknown operator " + string(f.Operator)}
		}
		if f.Field == "" && f.Operator != models.OpRelevance {
			return &FilterError{Field: f.Field, Reason: "field is required"}
		}
	}
	return nil
}

// FilterError describes an invalid filter in a subscription request.
type FilterError struct {
	Field  string
	Reason string
}

func (e *FilterError) Error() string {
	return "invalid filter on field " + e.Field + ": " + e.Reason
}

// valuesEqual compares two values strictly, promoting numeric types so that
// an int metadata value matches a float filter value after JSON round-trips.
func valuesEqual(a, b interface{}) bool {
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		return bok && af == bf
	}
	return a == b
}

// containsValue membership-tests v against a filter value that must be a set.
func containsValue(set, v interface{}) bool {
	switch s := set.(type) {
	case []interface{}:
		for _, item := range s {
			if valuesEqual(v, item) {
				return true
			}
		}
	case []string:
		for _, item := range s {
			if valuesEqual(v, item) {
				return true
			}
		}
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

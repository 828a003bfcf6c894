package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/telhawk-dispatch/internal/models"
)

func testEvent() *models.EventRecord {
	return &models.EventRecord{
		ID:       "evt-1",
		Type:     "auth.login.failed",
		Severity: models.SeverityHigh,
		Source:   "10.0.0.5",
		Target:   "db-primary.internal",
		Metadata: map[string]interface{}{
			"attempts": float64(7),
			"user":     "svc-backup",
			"geo": map[string]interface{}{
				"country": "DE",
			},
		},
	}
}

func TestMatchFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter models.Filter
		want   bool
	}{
		{
			name:   "equals on top-level field",
			filter: models.Filter{Field: "source", Operator: models.OpEquals, Value: "10.0.0.5"},
			want:   true,
		},
		{
			name:   "equals mismatch",
			filter: models.Filter{Field: "source", Operator: models.OpEquals, Value: "10.0.0.6"},
			want:   false,
		},
		{
			name:   "equals with numeric promotion",
			filter: models.Filter{Field: "metadata.attempts", Operator: models.OpEquals, Value: 7},
			want:   true,
		},
		{
			name:   "contains",
			filter: models.Filter{Field: "target", Operator: models.OpContains, Value: "primary"},
			want:   true,
		},
		{
			name:   "contains on non-string value",
			filter: models.Filter{Field: "metadata.attempts", Operator: models.OpContains, Value: "7"},
			want:   false,
		},
		{
			name:   "greater_than passes",
			filter: models.Filter{Field: "metadata.attempts", Operator: models.OpGreaterThan, Value: 5},
			want:   true,
		},
		{
			name:   "greater_than boundary is strict",
			filter: models.Filter{Field: "metadata.attempts", Operator: models.OpGreaterThan, Value: 7},
			want:   false,
		},
		{
			name:   "less_than boundary is strict",
			filter: models.Filter{Field: "metadata.attempts", Operator: models.OpLessThan, Value: 7},
			want:   false,
		},
		{
			name:   "in set",
			filter: models.Filter{Field: "metadata.user", Operator: models.OpIn, Value: []interface{}{"root", "svc-backup"}},
			want:   true,
		},
		{
			name:   "in set miss",
			filter: models.Filter{Field: "metadata.user", Operator: models.OpIn, Value: []interface{}{"root", "admin"}},
			want:   false,
		},
		{
			name:   "in with string slice",
			filter: models.Filter{Field: "metadata.user", Operator: models.OpIn, Value: []string{"svc-backup"}},
			want:   true,
		},
		{
			name:   "regex",
			filter: models.Filter{Field: "type", Operator: models.OpRegex, Value: `^auth\.`},
			want:   true,
		},
		{
			name:   "regex mismatch",
			filter: models.Filter{Field: "type", Operator: models.OpRegex, Value: `^network\.`},
			want:   false,
		},
		{
			name:   "nested metadata path",
			filter: models.Filter{Field: "metadata.geo.country", Operator: models.OpEquals, Value: "DE"},
			want:   true,
		},
		{
			name:   "missing field never matches",
			filter: models.Filter{Field: "metadata.nope", Operator: models.OpEquals, Value: "x"},
			want:   false,
		},
		{
			name:   "relevance operator is a routing no-op",
			filter: models.Filter{Operator: models.OpRelevance, Value: 0.9},
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchFilter(testEvent(), tt.filter))
		})
	}
}

func TestApplyFiltersANDSemantics(t *testing.T) {
	event := testEvent()

	pass := []models.Filter{
		{Field: "source", Operator: models.OpEquals, Value: "10.0.0.5"},
		{Field: "metadata.attempts", Operator: models.OpGreaterThan, Value: 3},
	}
	assert.True(t, ApplyFilters(event, pass))

	mixed := append(pass, models.Filter{Field: "metadata.user", Operator: models.OpEquals, Value: "root"})
	assert.False(t, ApplyFilters(event, mixed))

	assert.True(t, ApplyFilters(event, nil), "empty filter set passes everything")
}

func TestValidateFilters(t *testing.T) {
	err := ValidateFilters([]models.Filter{
		{Field: "source", Operator: models.OpEquals, Value: "x"},
		{Field: "type", Operator: models.OpRegex, Value: `^auth\.`},
	})
	require.NoError(t, err)

	err = ValidateFilters([]models.Filter{{Field: "source", Operator: "between", Value: 1}})
	require.Error(t, err)
	var fe *FilterError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Reason, "unknown operator")

	err = ValidateFilters([]models.Filter{{Field: "type", Operator: models.OpRegex, Value: `([`}})
	require.Error(t, err)

	err = ValidateFilters([]models.Filter{{Field: "", Operator: models.OpEquals, Value: "x"}})
	require.Error(t, err)
}

package models

import (
	"encoding/json"
	"sort"
	"time"
)

// FeatureRecord is one row of named feature values. Rows are immutable once
// written; the column set is implicit and may differ row to row, so consumers
// must tolerate missing keys.
type FeatureRecord struct {
	Values    map[string]interface{} `json:"values"`
	Group     string                 `json:"feature_group"`
	CreatedAt time.Time              `json:"created_at"`
}

// FeatureSet is an ordered collection of records sharing a feature group.
// Order is write order; "latest N" and "all since T" queries depend on it.
type FeatureSet struct {
	Group   string          `json:"feature_group"`
	Records []FeatureRecord `json:"records"`
}

// NewFeatureSet creates a feature set from records in write order.
func NewFeatureSet(group string, records []FeatureRecord) *FeatureSet {
	return &FeatureSet{Group: group, Records: records}
}

// Len returns the number of rows in the set.
func (fs *FeatureSet) Len() int {
	return len(fs.Records)
}

// Columns returns the union of column names across all rows, sorted.
func (fs *FeatureSet) Columns() []string {
	seen := make(map[string]struct{})
	for _, rec := range fs.Records {
		for name := range rec.Values {
			seen[name] = struct{}{}
		}
	}
	columns := make([]string, 0, len(seen))
	for name := range seen {
		columns = append(columns, name)
	}
	sort.Strings(columns)
	return columns
}

// HasColumn reports whether any row carries the named column.
func (fs *FeatureSet) HasColumn(name string) bool {
	for _, rec := range fs.Records {
		if _, ok := rec.Values[name]; ok {
			return true
		}
	}
	return false
}

// NumericColumn extracts the named column as floats. Rows missing the column
// or holding a non-numeric value are skipped, not zero-filled.
func (fs *FeatureSet) NumericColumn(name string) []float64 {
	values := make([]float64, 0, len(fs.Records))
	for _, rec := range fs.Records {
		raw, ok := rec.Values[name]
		if !ok || raw == nil {
			continue
		}
		if v, ok := asFloat(raw); ok {
			values = append(values, v)
		}
	}
	return values
}

// CategoricalColumn extracts the named column as category labels. Rows
// missing the column are skipped.
func (fs *FeatureSet) CategoricalColumn(name string) []string {
	values := make([]string, 0, len(fs.Records))
	for _, rec := range fs.Records {
		raw, ok := rec.Values[name]
		if !ok || raw == nil {
			continue
		}
		if s, ok := asString(raw); ok {
			values = append(values, s)
		}
	}
	return values
}

func asFloat(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func asString(raw interface{}) (string, bool) {
	switch v := raw.(type) {
	case string:
		return v, true
	case bool:
		if v {
			return "true", true
		}
		return "false", true
	case json.Number:
		return v.String(), true
	default:
		return "", false
	}
}

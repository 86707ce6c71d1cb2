package calculator

import (
	"fmt"
	"net/url"
	"reflect"
	"strconv"
)

// Output formats accepted by Calculate.
const (
	FormatSimple    = "simple"
	FormatDetailed  = "detailed"
	FormatBreakdown = "breakdown"
)

// Calculator is one entry of the calculator catalog.
type Calculator struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Description string   `json:"description,omitempty"`
	Featured    bool     `json:"featured"`
	Inputs      []string `json:"inputs,omitempty"`
}

// CalculatorList is the response of ListCalculators.
type CalculatorList struct {
	Calculators []Calculator `json:"calculators"`
	Total       int          `json:"total"`
	Page        int          `json:"page"`
	Limit       int          `json:"limit"`
}

// ListFilters are the filters understood by the calculators endpoint. Zero
// values are left out of the query.
type ListFilters struct {
	Category string
	Featured *bool
	Search   string
	Page     int
	Limit    int
}

// Map converts the filters to the generic form taken by ListCalculators.
func (f ListFilters) Map() map[string]any {
	m := make(map[string]any)
	if f.Category != "" {
		m["category"] = f.Category
	}
	if f.Featured != nil {
		m["featured"] = *f.Featured
	}
	if f.Search != "" {
		m["search"] = f.Search
	}
	if f.Page > 0 {
		m["page"] = f.Page
	}
	if f.Limit > 0 {
		m["limit"] = f.Limit
	}
	return m
}

// EncodeFilters builds a query string from filters. Nil values, including nil
// pointers, are dropped. Keys are sorted.
func EncodeFilters(filters map[string]any) string {
	values := url.Values{}
	for k, v := range filters {
		s, ok := formatFilter(v)
		if !ok {
			continue
		}
		values.Set(k, s)
	}
	return values.Encode()
}

func formatFilter(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return "", false
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.String:
		return rv.String(), true
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 32), true
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), true
	default:
		return fmt.Sprint(rv.Interface()), true
	}
}

// CalculationInput is the body of a calculation request.
type CalculationInput struct {
	CalculatorID string         `json:"calculatorId" validate:"required,calculator_id"`
	Inputs       map[string]any `json:"inputs" validate:"required"`
	Format       string         `json:"format,omitempty" validate:"omitempty,oneof=simple detailed breakdown"`
	// Precision is the number of decimals, 0 to 15. Zero lets the server decide.
	Precision int    `json:"precision,omitempty" validate:"gte=0,lte=15"`
	Currency  string `json:"currency,omitempty" validate:"omitempty,iso4217"`
	Locale    string `json:"locale,omitempty" validate:"omitempty,bcp47_language_tag"`
}

// CalculationResult is the response of Calculate.
type CalculationResult struct {
	Result    any      `json:"result"`
	Formatted any      `json:"formatted,omitempty"`
	Breakdown []any    `json:"breakdown,omitempty"`
	Metadata  Metadata `json:"metadata"`
}

// Metadata describes how a result was produced.
type Metadata struct {
	// Duration is the server-side computation time in milliseconds.
	Duration  float64 `json:"duration"`
	Cached    bool    `json:"cached"`
	Precision int     `json:"precision"`
	Currency  string  `json:"currency"`
	Locale    string  `json:"locale"`
}

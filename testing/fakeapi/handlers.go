package fakeapi

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

const (
	defaultLimit     = 20
	defaultPrecision = 2
	defaultCurrency  = "USD"
	defaultLocale    = "en-US"
)

// Calculator is a catalog entry.
type Calculator struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Description string   `json:"description,omitempty"`
	Featured    bool     `json:"featured"`
	Inputs      []string `json:"inputs,omitempty"`
}

// DefaultCalculators returns the built-in catalog.
func DefaultCalculators() []Calculator {
	return []Calculator{
		{ID: "mortgage", Name: "Mortgage Calculator", Category: "finance", Description: "Monthly payment of a fixed-rate loan", Featured: true, Inputs: []string{"principal", "rate", "term"}},
		{ID: "compound-interest", Name: "Compound Interest Calculator", Category: "finance", Description: "Future value with periodic compounding", Inputs: []string{"principal", "rate", "years"}},
		{ID: "percentage", Name: "Percentage Calculator", Category: "math", Description: "Percent of a value", Featured: true, Inputs: []string{"value", "percent"}},
		{ID: "sum", Name: "Sum Calculator", Category: "math", Description: "Adds every numeric input", Inputs: []string{"*"}},
	}
}

type listResponse struct {
	Calculators []Calculator `json:"calculators"`
	Total       int          `json:"total"`
	Page        int          `json:"page"`
	Limit       int          `json:"limit"`
}

func (s *Server) listCalculators(c echo.Context) error {
	category := c.QueryParam("category")
	search := strings.ToLower(c.QueryParam("search"))

	var featured *bool
	if raw := c.QueryParam("featured"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorBody("featured must be a boolean"))
		}
		featured = &v
	}

	page, err := positiveParam(c, "page", 1)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	}
	limit, err := positiveParam(c, "limit", defaultLimit)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	}

	s.mu.Lock()
	var matched []Calculator
	for _, calc := range s.calculators {
		if category != "" && calc.Category != category {
			continue
		}
		if featured != nil && calc.Featured != *featured {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(calc.Name+" "+calc.Description), search) {
			continue
		}
		matched = append(matched, calc)
	}
	s.mu.Unlock()

	start := min((page-1)*limit, len(matched))
	end := min(start+limit, len(matched))

	return c.JSON(http.StatusOK, listResponse{
		Calculators: append([]Calculator{}, matched[start:end]...),
		Total:       len(matched),
		Page:        page,
		Limit:       limit,
	})
}

func positiveParam(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return v, nil
}

type calculateRequest struct {
	CalculatorID string         `json:"calculatorId"`
	Inputs       map[string]any `json:"inputs"`
	Format       string         `json:"format"`
	Precision    *int           `json:"precision"`
	Currency     string         `json:"currency"`
	Locale       string         `json:"locale"`
}

type breakdownItem struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

type calculateResponse struct {
	Result    float64         `json:"result"`
	Formatted string          `json:"formatted,omitempty"`
	Breakdown []breakdownItem `json:"breakdown,omitempty"`
	Metadata  metadata        `json:"metadata"`
}

type metadata struct {
	Duration  float64 `json:"duration"`
	Cached    bool    `json:"cached"`
	Precision int     `json:"precision"`
	Currency  string  `json:"currency"`
	Locale    string  `json:"locale"`
}

func (s *Server) calculate(c echo.Context) error {
	start := time.Now()

	var req calculateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
	}
	if req.CalculatorID == "" || req.Inputs == nil {
		return c.JSON(http.StatusBadRequest, errorBody("calculatorId and inputs are required"))
	}
	if !s.known(req.CalculatorID) {
		return c.JSON(http.StatusNotFound, errorBody("calculator not found"))
	}

	value, breakdown, err := evaluate(req.CalculatorID, req.Inputs)
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, errorBody(err.Error()))
	}

	precision := defaultPrecision
	if req.Precision != nil {
		precision = *req.Precision
	}
	currency := valueOr(req.Currency, defaultCurrency)
	locale := valueOr(req.Locale, defaultLocale)

	resp := calculateResponse{
		Result: round(value, precision),
		Metadata: metadata{
			Duration:  float64(time.Since(start).Microseconds()) / 1000,
			Precision: precision,
			Currency:  currency,
			Locale:    locale,
		},
	}
	switch req.Format {
	case "detailed":
		resp.Formatted = fmt.Sprintf("%s %.*f", currency, precision, resp.Result)
	case "breakdown":
		resp.Formatted = fmt.Sprintf("%s %.*f", currency, precision, resp.Result)
		resp.Breakdown = breakdown
	}

	return c.JSON(http.StatusOK, resp)
}

func (s *Server) known(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, calc := range s.calculators {
		if calc.ID == id {
			return true
		}
	}
	return false
}

func evaluate(id string, inputs map[string]any) (float64, []breakdownItem, error) {
	switch id {
	case "mortgage":
		vals, err := numbers(inputs, "principal", "rate", "term")
		if err != nil {
			return 0, nil, err
		}
		principal, monthlyRate, months := vals[0], vals[1]/100/12, vals[2]*12
		if months <= 0 {
			return 0, nil, fmt.Errorf("term must be positive")
		}
		payment := principal / months
		if monthlyRate > 0 {
			factor := math.Pow(1+monthlyRate, months)
			payment = principal * monthlyRate * factor / (factor - 1)
		}
		return payment, []breakdownItem{
			{Label: "principal", Value: principal},
			{Label: "total_paid", Value: payment * months},
			{Label: "total_interest", Value: payment*months - principal},
		}, nil

	case "compound-interest":
		vals, err := numbers(inputs, "principal", "rate", "years")
		if err != nil {
			return 0, nil, err
		}
		n := 12.0
		if v, ok := inputs["compounds"].(float64); ok && v > 0 {
			n = v
		}
		amount := vals[0] * math.Pow(1+vals[1]/100/n, n*vals[2])
		return amount, []breakdownItem{
			{Label: "principal", Value: vals[0]},
			{Label: "interest", Value: amount - vals[0]},
		}, nil

	case "percentage":
		vals, err := numbers(inputs, "value", "percent")
		if err != nil {
			return 0, nil, err
		}
		return vals[0] * vals[1] / 100, nil, nil

	default:
		var total float64
		var items []breakdownItem
		for k, v := range inputs {
			f, ok := v.(float64)
			if !ok {
				return 0, nil, fmt.Errorf("input %s must be a number", k)
			}
			total += f
			items = append(items, breakdownItem{Label: k, Value: f})
		}
		return total, items, nil
	}
}

func numbers(inputs map[string]any, keys ...string) ([]float64, error) {
	out := make([]float64, len(keys))
	for i, k := range keys {
		v, ok := inputs[k]
		if !ok {
			return nil, fmt.Errorf("input %s is required", k)
		}
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("input %s must be a number", k)
		}
		out[i] = f
	}
	return out, nil
}

func round(v float64, precision int) float64 {
	p := math.Pow(10, float64(precision))
	return math.Round(v*p) / p
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

package calculator

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
)

const cacheKeyPrefix = "calc:"

// Defaults folded into the cache key so that explicit and implicit defaults share an entry.
const (
	keyDefaultFormat    = FormatSimple
	keyDefaultPrecision = 2
	keyDefaultCurrency  = "USD"
	keyDefaultLocale    = "en-US"
)

type cacheKeyFields struct {
	CalculatorID string         `json:"calculatorId"`
	Inputs       map[string]any `json:"inputs,omitempty"`
	Format       string         `json:"format"`
	Precision    int            `json:"precision"`
	Currency     string         `json:"currency"`
	Locale       string         `json:"locale"`
}

// CacheKey returns "calc:" followed by the base64 JSON of the input with
// defaults applied. Equal inputs always map to the same key.
func CacheKey(input CalculationInput) (string, error) {
	fields := cacheKeyFields{
		CalculatorID: input.CalculatorID,
		Inputs:       input.Inputs,
		Format:       orDefault(input.Format, keyDefaultFormat),
		Precision:    input.Precision,
		Currency:     orDefault(input.Currency, keyDefaultCurrency),
		Locale:       orDefault(input.Locale, keyDefaultLocale),
	}
	if fields.Precision == 0 {
		fields.Precision = keyDefaultPrecision
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(fields); err != nil {
		return "", err
	}

	return cacheKeyPrefix + base64.StdEncoding.EncodeToString(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

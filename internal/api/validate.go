package api

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"stockanalysis/internal/model"
	"stockanalysis/internal/window"
)

var (
	ErrBlankSymbol    = errors.New("symbol must not be blank")
	ErrNonFiniteValue = errors.New("values must be finite numbers")
	ErrEmptyBatch     = errors.New("values must not be empty")
	ErrMissingValue   = errors.New("value is required and must not be null")
	ErrInvalidK       = errors.New("k must be an integer between 1 and 7")
)

// addRequest is the body of POST /add. Value is a pointer so an absent or
// null value is rejected instead of being stored as 0.
type addRequest struct {
	Symbol string   `json:"symbol"`
	Value  *float64 `json:"value"`
}

// batchRequest is the body of POST /add_batch.
type batchRequest struct {
	Symbol string     `json:"symbol"`
	Values []*float64 `json:"values"`
}

func (r addRequest) toDataPoint() (model.DataPoint, error) {
	if err := validateSymbol(r.Symbol); err != nil {
		return model.DataPoint{}, err
	}
	if r.Value == nil {
		return model.DataPoint{}, ErrMissingValue
	}
	if err := validateValues(*r.Value); err != nil {
		return model.DataPoint{}, err
	}
	return model.DataPoint{Symbol: r.Symbol, Value: *r.Value}, nil
}

func (r batchRequest) toBatchData() (model.BatchData, error) {
	if err := validateSymbol(r.Symbol); err != nil {
		return model.BatchData{}, err
	}
	if len(r.Values) == 0 {
		return model.BatchData{}, ErrEmptyBatch
	}
	values := make([]float64, len(r.Values))
	for i, v := range r.Values {
		if v == nil {
			return model.BatchData{}, ErrMissingValue
		}
		values[i] = *v
	}
	if err := validateValues(values...); err != nil {
		return model.BatchData{}, err
	}
	return model.BatchData{Symbol: r.Symbol, Values: values}, nil
}

func validateSymbol(symbol string) error {
	if strings.TrimSpace(symbol) == "" {
		return ErrBlankSymbol
	}
	return nil
}

func validateValues(values ...float64) error {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrNonFiniteValue
		}
	}
	return nil
}

// parseK parses the window exponent from a query parameter.
func parseK(raw string) (int, error) {
	k, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || !window.ValidExponent(k) {
		return 0, ErrInvalidK
	}
	return k, nil
}

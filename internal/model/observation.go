package model

// DataPoint is one validated observation accepted by POST /add.
type DataPoint struct {
	Symbol string  `json:"symbol"`
	Value  float64 `json:"value"`
}

// BatchData is a validated, ordered batch accepted by POST /add_batch.
type BatchData struct {
	Symbol string    `json:"symbol"`
	Values []float64 `json:"values"`
}

// StatsResponse is the wire form of a summary over a window.
type StatsResponse struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Last     float64 `json:"last"`
	Avg      float64 `json:"avg"`
	Variance float64 `json:"variance"`
}

// StatsUpdate is pushed to live feed subscribers after an append.
type StatsUpdate struct {
	Symbol string        `json:"symbol"`
	K      int           `json:"k"`
	Count  int           `json:"count"`
	Stats  StatsResponse `json:"stats"`
	TS     string        `json:"ts"`
}

// ObservationKey returns the Redis list key for a symbol's series.
func ObservationKey(symbol string) string {
	return "obs:" + symbol
}

// AppendChannel returns the Pub/Sub channel announcing appends for a symbol.
func AppendChannel(symbol string) string {
	return "pub:obs:" + symbol
}

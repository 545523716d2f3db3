package domain

import "encoding/json"

// MetaDocument is the raw meta1.json envelope. The table proper sits two
// levels down at data.data; both levels are optional because upstream has
// shuffled the wrapping before.
type MetaDocument struct {
	Data struct {
		Data MetaTable `json:"data"`
	} `json:"data"`
}

// MetaTable is the header/values pair of the metadata document. Values cells
// are deliberately untyped: the same column has been observed carrying
// strings and numbers in different exports.
type MetaTable struct {
	Header string              `json:"header"`
	Values [][]json.RawMessage `json:"values"`
}

// MetaRow is one metadata table row keyed by header column name. Cell values
// are decoded to string, float64, bool, or nil.
type MetaRow map[string]any

// TimeseriesDocument is a per-station current or historical data file.
type TimeseriesDocument struct {
	ObjList []TimeseriesObject `json:"objList"`
}

// TimeseriesObject carries the labeled sub-series of one station.
type TimeseriesObject struct {
	TsList []Series `json:"tsList"`
}

// Series is one labeled sub-series. ConID identifies the quantity: H for
// water level, Q for discharge; the daily feed uses HD and QD.
type Series struct {
	ConID string        `json:"tsConID"`
	Data  []SeriesPoint `json:"tsData"`
}

// SeriesPoint pairs an ISO 8601 UTC timestamp with an optional value.
// Upstream occasionally emits timestamps with no observation.
type SeriesPoint struct {
	DT    string   `json:"dt"`
	Value *float64 `json:"value"`
}

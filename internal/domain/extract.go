package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

// StationMeta is one valid station row extracted from the metadata table.
type StationMeta struct {
	ExternalID string
	Code       *string
	Name       string
	RiverName  *string
	Lat        *float64
	Lon        *float64
	IsForecast *bool
	Raw        MetaRow
}

// ParseMetaTable turns the header/values matrix into one map per row keyed
// by column name. A document without a header or a values matrix yields an
// empty slice: upstream schema drift is "no data this round", not an error.
func ParseMetaTable(doc MetaDocument) []MetaRow {
	table := doc.Data.Data
	if table.Header == "" || table.Values == nil {
		return nil
	}

	cols := strings.Split(table.Header, ",")
	for i := range cols {
		cols[i] = strings.TrimSpace(cols[i])
	}

	rows := make([]MetaRow, 0, len(table.Values))
	for _, cells := range table.Values {
		row := make(MetaRow, len(cols))
		for i, col := range cols {
			if i >= len(cells) {
				break
			}
			row[col] = decodeCell(cells[i])
		}
		rows = append(rows, row)
	}
	return rows
}

// decodeCell unmarshals an untyped table cell. Unparseable cells decode to
// nil rather than failing the whole table.
func decodeCell(raw json.RawMessage) any {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

// ExtractStationMeta validates and extracts one metadata row. Rows without a
// non-empty external id or name are skipped (nil). Optional fields are
// type-checked, never coerced: a non-numeric coordinate yields nil, and the
// forecast flag is tri-state because "0" must stay distinguishable from
// "absent".
func ExtractStationMeta(row MetaRow) *StationMeta {
	id, ok := row["objID"].(string)
	if !ok || id == "" {
		return nil
	}
	name, ok := row["STATION_NAME"].(string)
	if !ok || name == "" {
		return nil
	}

	meta := &StationMeta{
		ExternalID: id,
		Name:       name,
		Raw:        row,
	}

	switch code := row["DBC"].(type) {
	case string:
		meta.Code = &code
	case float64:
		s := strconv.FormatFloat(code, 'f', -1, 64)
		meta.Code = &s
	}

	if river, ok := row["STREAM_NAME"].(string); ok {
		if trimmed := strings.TrimSpace(river); trimmed != "" {
			meta.RiverName = &trimmed
		}
	}

	if lat, ok := row["GEOGR1"].(float64); ok {
		meta.Lat = &lat
	}
	if lon, ok := row["GEOGR2"].(float64); ok {
		meta.Lon = &lon
	}

	if v, ok := row["ISFORECAST"].(float64); ok {
		switch v {
		case 0:
			f := false
			meta.IsForecast = &f
		case 1:
			t := true
			meta.IsForecast = &t
		}
	}

	return meta
}

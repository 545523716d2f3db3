package domain

import (
	"sort"
	"strings"
)

// MergePoints folds the labeled sub-series of one station object into one
// point per distinct timestamp, sorted ascending. Timestamps are ISO 8601
// UTC strings, so string order is chronological order. Points where neither
// quantity is present are dropped; a present zero is kept.
func MergePoints(obj TimeseriesObject) []MeasurementPoint {
	byTS := make(map[string]*MeasurementPoint)

	for _, series := range obj.TsList {
		quantity := quantityForLabel(series.ConID)
		if quantity == quantityUnknown {
			continue
		}
		for _, p := range series.Data {
			if p.DT == "" {
				continue
			}
			cur, ok := byTS[p.DT]
			if !ok {
				cur = &MeasurementPoint{TS: p.DT}
				byTS[p.DT] = cur
			}
			switch quantity {
			case quantityLevel:
				cur.Level = p.Value
			case quantityDischarge:
				cur.Discharge = p.Value
			}
		}
	}

	points := make([]MeasurementPoint, 0, len(byTS))
	for _, p := range byTS {
		if p.Level == nil && p.Discharge == nil {
			continue
		}
		points = append(points, *p)
	}

	sort.Slice(points, func(i, j int) bool { return points[i].TS < points[j].TS })
	return points
}

type quantity int

const (
	quantityUnknown quantity = iota
	quantityLevel
	quantityDischarge
)

// quantityForLabel maps a tsConID to its physical quantity. The now feed
// labels series H and Q; the daily feed appends D (HD, QD).
func quantityForLabel(label string) quantity {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "H", "HD":
		return quantityLevel
	case "Q", "QD":
		return quantityDischarge
	default:
		return quantityUnknown
	}
}

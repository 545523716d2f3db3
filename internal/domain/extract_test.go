package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metaDocFromJSON(t *testing.T, raw string) MetaDocument {
	t.Helper()
	var doc MetaDocument
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	return doc
}

func TestParseMetaTable(t *testing.T) {
	t.Run("valid table", func(t *testing.T) {
		doc := metaDocFromJSON(t, `{
			"data": {"data": {
				"header": "objID, STATION_NAME ,GEOGR1",
				"values": [
					["307245", "Praha-Chuchle", 50.04],
					["308190", "Brandýs nad Labem", 50.18]
				]
			}}
		}`)

		rows := ParseMetaTable(doc)
		require.Len(t, rows, 2)
		assert.Equal(t, "307245", rows[0]["objID"])
		assert.Equal(t, "Praha-Chuchle", rows[0]["STATION_NAME"])
		assert.Equal(t, 50.04, rows[0]["GEOGR1"])
		assert.Equal(t, "308190", rows[1]["objID"])
	})

	t.Run("missing header yields no rows", func(t *testing.T) {
		doc := metaDocFromJSON(t, `{"data": {"data": {"values": [["307245"]]}}}`)
		assert.Empty(t, ParseMetaTable(doc))
	})

	t.Run("missing values yields no rows", func(t *testing.T) {
		doc := metaDocFromJSON(t, `{"data": {"data": {"header": "objID"}}}`)
		assert.Empty(t, ParseMetaTable(doc))
	})

	t.Run("short row keeps the cells it has", func(t *testing.T) {
		doc := metaDocFromJSON(t, `{
			"data": {"data": {
				"header": "objID,STATION_NAME,GEOGR1",
				"values": [["307245", "Praha-Chuchle"]]
			}}
		}`)

		rows := ParseMetaTable(doc)
		require.Len(t, rows, 1)
		assert.Equal(t, "Praha-Chuchle", rows[0]["STATION_NAME"])
		_, present := rows[0]["GEOGR1"]
		assert.False(t, present)
	})

	t.Run("extra cells beyond the header are dropped", func(t *testing.T) {
		doc := metaDocFromJSON(t, `{
			"data": {"data": {
				"header": "objID",
				"values": [["307245", "surplus"]]
			}}
		}`)

		rows := ParseMetaTable(doc)
		require.Len(t, rows, 1)
		assert.Len(t, rows[0], 1)
	})
}

func TestExtractStationMeta(t *testing.T) {
	t.Run("full row", func(t *testing.T) {
		meta := ExtractStationMeta(MetaRow{
			"objID":        "307245",
			"DBC":          "CHMU_307245",
			"STATION_NAME": "Praha-Chuchle",
			"STREAM_NAME":  " Vltava ",
			"GEOGR1":       50.04,
			"GEOGR2":       14.39,
			"ISFORECAST":   1.0,
		})

		require.NotNil(t, meta)
		assert.Equal(t, "307245", meta.ExternalID)
		assert.Equal(t, "Praha-Chuchle", meta.Name)
		require.NotNil(t, meta.Code)
		assert.Equal(t, "CHMU_307245", *meta.Code)
		require.NotNil(t, meta.RiverName)
		assert.Equal(t, "Vltava", *meta.RiverName)
		require.NotNil(t, meta.Lat)
		assert.Equal(t, 50.04, *meta.Lat)
		require.NotNil(t, meta.Lon)
		assert.Equal(t, 14.39, *meta.Lon)
		require.NotNil(t, meta.IsForecast)
		assert.True(t, *meta.IsForecast)
	})

	t.Run("minimal row", func(t *testing.T) {
		meta := ExtractStationMeta(MetaRow{
			"objID":        "X1",
			"STATION_NAME": "Test",
		})

		require.NotNil(t, meta)
		assert.Equal(t, "X1", meta.ExternalID)
		assert.Equal(t, "Test", meta.Name)
		assert.Nil(t, meta.Code)
		assert.Nil(t, meta.RiverName)
		assert.Nil(t, meta.Lat)
		assert.Nil(t, meta.Lon)
		assert.Nil(t, meta.IsForecast)
	})

	t.Run("numeric station code is formatted", func(t *testing.T) {
		meta := ExtractStationMeta(MetaRow{
			"objID":        "X1",
			"STATION_NAME": "Test",
			"DBC":          307245.0,
		})

		require.NotNil(t, meta)
		require.NotNil(t, meta.Code)
		assert.Equal(t, "307245", *meta.Code)
	})

	t.Run("invalid rows are skipped", func(t *testing.T) {
		tests := []struct {
			name string
			row  MetaRow
		}{
			{"missing objID", MetaRow{"STATION_NAME": "Test"}},
			{"empty objID", MetaRow{"objID": "", "STATION_NAME": "Test"}},
			{"numeric objID", MetaRow{"objID": 307245.0, "STATION_NAME": "Test"}},
			{"missing name", MetaRow{"objID": "X1"}},
			{"empty name", MetaRow{"objID": "X1", "STATION_NAME": ""}},
			{"non-string name", MetaRow{"objID": "X1", "STATION_NAME": 42.0}},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				assert.Nil(t, ExtractStationMeta(tc.row))
			})
		}
	})

	t.Run("mistyped optional fields become nil", func(t *testing.T) {
		meta := ExtractStationMeta(MetaRow{
			"objID":        "X1",
			"STATION_NAME": "Test",
			"STREAM_NAME":  "   ",
			"GEOGR1":       "50.04",
			"GEOGR2":       nil,
			"ISFORECAST":   "yes",
		})

		require.NotNil(t, meta)
		assert.Nil(t, meta.RiverName)
		assert.Nil(t, meta.Lat)
		assert.Nil(t, meta.Lon)
		assert.Nil(t, meta.IsForecast)
	})

	t.Run("forecast flag is tri-state", func(t *testing.T) {
		off := ExtractStationMeta(MetaRow{"objID": "X1", "STATION_NAME": "Test", "ISFORECAST": 0.0})
		require.NotNil(t, off)
		require.NotNil(t, off.IsForecast)
		assert.False(t, *off.IsForecast)

		odd := ExtractStationMeta(MetaRow{"objID": "X1", "STATION_NAME": "Test", "ISFORECAST": 2.0})
		require.NotNil(t, odd)
		assert.Nil(t, odd.IsForecast)
	})
}

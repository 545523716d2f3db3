// Package domain models Czech Hydrometeorological Institute (CHMI) hydrology
// open data.
//
// # Data Source
//
// Water-level and discharge series come from the CHMI open-data portal at
// https://opendata.chmi.cz/hydrology/. Three document shapes are consumed:
//
//  1. An HTML directory index under now/data/ whose anchor hrefs name
//     {externalID}.json files (one per station). The historical daily index
//     names H_{externalID}_DQ_{year}.json files (one per station per year).
//  2. A metadata table (meta1.json) wrapped as data.data with a single
//     comma-separated "header" string and a row-oriented "values" matrix.
//     Column stability is not guaranteed upstream, so parsing is tolerant:
//     structural mismatch yields an empty result, never an error.
//  3. A per-station time-series document with an objList of objects, each
//     carrying labeled sub-series (tsList). The label (tsConID) identifies the
//     physical quantity: H is water level in centimeters, Q is discharge in
//     cubic meters per second. The daily/historical feed suffixes the label
//     with D (HD, QD). Each sub-series point (tsData) pairs an ISO 8601 UTC
//     timestamp (dt) with an optional numeric value.
//
// # Metadata Conventions
//
// Meta table columns used for station identity and placement:
//
//	objID        external station id, the only stable cross-run identity
//	DBC          station code (may arrive as string or number)
//	STATION_NAME human name; rows without it are skipped
//	STREAM_NAME  owning river; blank means no river association
//	GEOGR1       latitude; only accepted when the value is a JSON number
//	GEOGR2       longitude; same rule
//	ISFORECAST   0 or 1; anything else means unknown, which is distinct
//	             from false (tri-state, not a boolean cast)
//
// # Merge Rule
//
// Sub-series of one station are folded into one row per distinct timestamp
// with both quantities populated where available. Timestamps are ISO 8601 UTC
// strings, so lexicographic order equals chronological order and merged rows
// are sorted by plain string comparison. A timestamp with neither quantity
// present is dropped. Presence is a nil check: a reading of 0 is a legitimate
// observation (zero discharge during drought) and is kept.
package domain

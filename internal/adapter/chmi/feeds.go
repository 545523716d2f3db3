package chmi

import (
	"context"
	"fmt"

	"github.com/riverwatch/hydro-data-service/internal/domain"
)

// Default endpoints on the CHMI open-data portal.
const (
	DefaultNowIndexURL        = "https://opendata.chmi.cz/hydrology/now/data/"
	DefaultMetadataURL        = "https://opendata.chmi.cz/hydrology/now/metadata/meta1.json"
	DefaultHistoricalDailyURL = "https://opendata.chmi.cz/hydrology/historical/data/daily/"
)

// FetchIndex retrieves a directory index page and returns the .json file
// names it links.
func (c *Client) FetchIndex(ctx context.Context, indexURL string) ([]string, error) {
	html, err := c.FetchText(ctx, indexURL)
	if err != nil {
		return nil, err
	}
	return ParseIndex(html), nil
}

// FetchMetadata retrieves and parses the station metadata table.
func (c *Client) FetchMetadata(ctx context.Context, url string) ([]domain.MetaRow, error) {
	var doc domain.MetaDocument
	if err := c.FetchJSON(ctx, url, &doc); err != nil {
		return nil, err
	}
	return domain.ParseMetaTable(doc), nil
}

// FetchStationPoints retrieves one station's time-series document and merges
// its sub-series. The now feed and the historical daily feed share this
// shape; only the file naming differs.
func (c *Client) FetchStationPoints(ctx context.Context, baseURL, fileName string) ([]domain.MeasurementPoint, error) {
	url := baseURL + fileName

	var doc domain.TimeseriesDocument
	if err := c.FetchJSON(ctx, url, &doc); err != nil {
		return nil, err
	}
	if len(doc.ObjList) == 0 {
		return nil, fmt.Errorf("%s has no object", url)
	}
	return domain.MergePoints(doc.ObjList[0]), nil
}

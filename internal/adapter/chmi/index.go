package chmi

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/riverwatch/hydro-data-service/internal/domain"
)

var (
	jsonHrefRe       = regexp.MustCompile(`href="([^"]+\.json)"`)
	historicalNameRe = regexp.MustCompile(`^H_(.+)_DQ_(\d{4})\.json$`)
)

// ParseIndex extracts the unique .json file names referenced by anchor hrefs
// in a directory index page, in order of first appearance.
func ParseIndex(html string) []string {
	seen := make(map[string]struct{})
	var files []string
	for _, m := range jsonHrefRe.FindAllStringSubmatch(html, -1) {
		name := m[1]
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		files = append(files, name)
	}
	return files
}

// ExternalIDsFromIndex derives station external ids from now-index file
// names ({externalID}.json).
func ExternalIDsFromIndex(files []string) []string {
	ids := make([]string, 0, len(files))
	for _, f := range files {
		id := strings.TrimSpace(strings.TrimSuffix(f, ".json"))
		if id == "" {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// ParseHistoricalName recognizes H_{externalID}_DQ_{year}.json daily file
// names. Non-matching names return false; the historical index also lists
// metadata files that are not per-station data.
func ParseHistoricalName(name string) (domain.HistoricalFile, bool) {
	m := historicalNameRe.FindStringSubmatch(name)
	if m == nil {
		return domain.HistoricalFile{}, false
	}
	year, err := strconv.Atoi(m[2])
	if err != nil {
		return domain.HistoricalFile{}, false
	}
	return domain.HistoricalFile{Name: name, ExternalID: m[1], Year: year}, true
}

// HistoricalFilesFromIndex filters an index listing down to parseable daily
// files.
func HistoricalFilesFromIndex(files []string) []domain.HistoricalFile {
	out := make([]domain.HistoricalFile, 0, len(files))
	for _, f := range files {
		if hf, ok := ParseHistoricalName(f); ok {
			out = append(out, hf)
		}
	}
	return out
}

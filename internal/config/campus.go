package config

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/iliyamo/ridesplit/internal/geo"
)

const defaultCampuses = "Hansung University=37.58616528349631,127.01280516488525"

// Campuses maps a university name to the drop-off point rooms head to.
type Campuses map[string]geo.Point

// Lookup returns the campus point for university.
func (c Campuses) Lookup(university string) (geo.Point, bool) {
	p, ok := c[strings.TrimSpace(university)]
	return p, ok
}

// LoadCampuses parses CAMPUSES, a ';' separated list of name=lat,lon.
// Malformed entries are skipped with a warning.
func LoadCampuses() Campuses {
	return ParseCampuses(envStr("CAMPUSES", defaultCampuses))
}

func ParseCampuses(s string) Campuses {
	out := Campuses{}
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, coords, ok := strings.Cut(entry, "=")
		latStr, lonStr, ok2 := strings.Cut(coords, ",")
		if !ok || !ok2 {
			slog.Warn("skipping malformed campus entry", "entry", entry)
			continue
		}
		lat, err1 := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
		lon, err2 := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
		p := geo.Point{Lat: lat, Lon: lon}
		if err1 != nil || err2 != nil || !p.Valid() {
			slog.Warn("skipping malformed campus entry", "entry", entry)
			continue
		}
		out[strings.TrimSpace(name)] = p
	}
	return out
}

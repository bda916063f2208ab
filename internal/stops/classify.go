package stops

import (
	"regexp"
	"strings"

	"rentmap.hu/internal/bkk"
)

// The upstream mode field does not mark HÉV (suburban rail) stops reliably, so the
// rules below look at ids, names and route numbers before trusting it. Rules are
// evaluated in order and the first match wins.

type candidate struct {
	id         string   // upper case
	name       string   // lower case
	mode       string   // upstream BUS, TRAM, SUBWAY, RAIL
	routeNames []string // lower case short names, in routeIds order
}

type rule struct {
	name  string
	match func(c *candidate) (StopType, bool)
}

var suburbanRoutePattern = regexp.MustCompile(`h[5-9]`)

var knownSuburbanStations = []string{
	"batthyány tér h",
	"margit híd h",
	"filatorigát h",
	"szépvölgyi út h",
	"rómaifürdő h",
	"aquincum h",
	"békásmegyer h",
	"pomáz h",
	"szentendre h",
}

type keywordTag struct {
	tag      StopType
	keywords []string
}

var metroNameKeywords = []keywordTag{
	{TypeMetro1, []string{"m1", "földalatti", "millenniumi"}},
	{TypeMetro2, []string{"m2", "déli pályaudvar", "örs vezér"}},
	{TypeMetro3, []string{"m3", "újpest", "kőbánya-kispest"}},
	{TypeMetro4, []string{"m4", "kelenföldi", "keleti pályaudvar"}},
}

var metroRouteNames = []keywordTag{
	{TypeMetro1, []string{"m1", "1"}},
	{TypeMetro2, []string{"m2", "2"}},
	{TypeMetro3, []string{"m3", "3"}},
	{TypeMetro4, []string{"m4", "4"}},
}

var classificationRules = []rule{
	{"suburban id marker", func(c *candidate) (StopType, bool) {
		if strings.HasPrefix(c.id, "H") ||
			containsAny(c.id, "BKK_H", "_H", "HEV", "HÉV") {
			return TypeSuburban, true
		}
		return "", false
	}},
	{"suburban name keyword", func(c *candidate) (StopType, bool) {
		if containsAny(c.name, "hév", "vasútállomás", "h5", "h6", "h7", "h8", "h9",
			"szentendre", "csepel", "ráckeve", "gödöllő") {
			return TypeSuburban, true
		}
		return "", false
	}},
	{"suburban route number", func(c *candidate) (StopType, bool) {
		for _, rn := range c.routeNames {
			if strings.HasPrefix(rn, "h") && suburbanRoutePattern.MatchString(rn) {
				return TypeSuburban, true
			}
		}
		return "", false
	}},
	{"upstream mode", func(c *candidate) (StopType, bool) {
		switch c.mode {
		case "RAIL":
			return TypeSuburban, true
		case "SUBWAY":
			return metroLine(c.routeNames), true
		case "TRAM":
			return TypeTram, true
		case "BUS":
			return TypeBus, true
		}
		return "", false
	}},
	{"known suburban station", func(c *candidate) (StopType, bool) {
		if containsAny(c.name, knownSuburbanStations...) {
			return TypeSuburban, true
		}
		return "", false
	}},
	{"metro name keyword", func(c *candidate) (StopType, bool) {
		for _, kt := range metroNameKeywords {
			if containsAny(c.name, kt.keywords...) {
				return kt.tag, true
			}
		}
		return "", false
	}},
}

// Classify derives the map category of a stop from its upstream record and its
// resolved routes. Unmatched stops are buses.
func Classify(stop bkk.StopEntry, routes []bkk.Route) StopType {
	c := &candidate{
		id:         strings.ToUpper(stop.ID),
		name:       strings.ToLower(stop.Name),
		mode:       strings.ToUpper(stop.Type),
		routeNames: make([]string, 0, len(routes)),
	}
	for _, r := range routes {
		if r.ShortName != "" {
			c.routeNames = append(c.routeNames, strings.ToLower(r.ShortName))
		}
	}

	for _, r := range classificationRules {
		if tag, ok := r.match(c); ok {
			return tag
		}
	}
	return TypeBus
}

// metroLine picks the line from the first route named like a metro line, M1 by default.
func metroLine(routeNames []string) StopType {
	for _, rn := range routeNames {
		for _, kt := range metroRouteNames {
			for _, kw := range kt.keywords {
				if rn == kw {
					return kt.tag
				}
			}
		}
	}
	return TypeMetro1
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

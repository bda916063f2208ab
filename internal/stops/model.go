package stops

import "rentmap.hu/internal/geo"

// StopType is the derived classification shown on the map.
type StopType string

const (
	TypeBus      StopType = "bus"
	TypeTram     StopType = "tram"
	TypeMetro1   StopType = "metro1"
	TypeMetro2   StopType = "metro2"
	TypeMetro3   StopType = "metro3"
	TypeMetro4   StopType = "metro4"
	TypeSuburban StopType = "suburban"
	TypeOther    StopType = "other"
)

type RouteRef struct {
	ID          string `json:"id"`
	ShortName   string `json:"shortName"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Color       string `json:"color"`
	TextColor   string `json:"textColor"`
}

type Stop struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Lat       float64    `json:"lat"`
	Lon       float64    `json:"lon"`
	Code      string     `json:"code,omitempty"`
	Direction string     `json:"direction,omitempty"`
	Mode      string     `json:"type,omitempty"`
	StopType  StopType   `json:"stopType"`
	Routes    []RouteRef `json:"routes"`
}

func (s Stop) Point() geo.Point {
	return geo.Point{Lat: s.Lat, Lon: s.Lon}
}

// Stats is a snapshot of the lookup counters plus the current cache size.
type Stats struct {
	Lookups        uint64 `json:"lookups"`
	ExactHits      uint64 `json:"exactHits"`
	NearHits       uint64 `json:"nearHits"`
	SharedFetches  uint64 `json:"sharedFetches"`
	UpstreamCalls  uint64 `json:"upstreamCalls"`
	Fallbacks      uint64 `json:"fallbacks"`
	Failures       uint64 `json:"failures"`
	CacheEntries   int    `json:"cacheEntries"`
	PendingFetches int    `json:"pendingFetches"`
}

func withinRadius(list []Stop, center geo.Point, radius float64) []Stop {
	out := make([]Stop, 0, len(list))
	for _, s := range list {
		if geo.Distance(center, s.Point()) <= radius {
			out = append(out, s)
		}
	}
	return out
}

func withinBounds(list []Stop, b geo.Bounds) []Stop {
	out := make([]Stop, 0, len(list))
	for _, s := range list {
		if b.Contains(s.Point()) {
			out = append(out, s)
		}
	}
	return out
}

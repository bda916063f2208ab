package bkk

// StatusOK is the envelope status of a successful FUTÁR response.
const StatusOK = "OK"

// Response is the OneBusAway-style envelope returned by stops-for-location.json.
type Response struct {
	Status      string    `json:"status"`
	Code        int       `json:"code"`
	Text        string    `json:"text"`
	Version     int       `json:"version"`
	CurrentTime int64     `json:"currentTime"`
	Data        StopsData `json:"data"`
}

type StopsData struct {
	List       []StopEntry `json:"list"`
	References References  `json:"references"`
}

// StopEntry is one stop as the upstream reports it. Type is the upstream mode
// (BUS, TRAM, SUBWAY, RAIL) and is not reliable for suburban rail.
type StopEntry struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Lat       float64  `json:"lat"`
	Lon       float64  `json:"lon"`
	Code      string   `json:"code,omitempty"`
	Direction string   `json:"direction,omitempty"`
	Type      string   `json:"type"`
	RouteIDs  []string `json:"routeIds,omitempty"`
}

type References struct {
	Routes map[string]Route `json:"routes"`
}

type Route struct {
	ID          string `json:"id"`
	ShortName   string `json:"shortName"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Color       string `json:"color"`
	TextColor   string `json:"textColor"`
}

// RoutesFor resolves a stop's route ids against the reference table, preserving the
// stop's order and skipping unknown ids.
func (r References) RoutesFor(stop StopEntry) []Route {
	routes := make([]Route, 0, len(stop.RouteIDs))
	for _, id := range stop.RouteIDs {
		if route, ok := r.Routes[id]; ok {
			routes = append(routes, route)
		}
	}
	return routes
}

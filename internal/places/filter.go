package places

import "strings"

// FilterCriteria narrows a list of places. Nil fields do not filter.
type FilterCriteria struct {
	MinPrice    *float64
	MaxPrice    *float64
	MinFloor    *int
	MaxFloor    *int
	HasElevator *bool
}

func (c FilterCriteria) IsZero() bool {
	return c.MinPrice == nil && c.MaxPrice == nil &&
		c.MinFloor == nil && c.MaxFloor == nil && c.HasElevator == nil
}

// Search keeps places whose title or description contains term, ignoring case.
func Search(list []Place, term string) []Place {
	if term == "" {
		return list
	}
	needle := strings.ToLower(term)

	out := make([]Place, 0, len(list))
	for _, p := range list {
		if strings.Contains(strings.ToLower(p.Title), needle) ||
			strings.Contains(strings.ToLower(p.Description), needle) {
			out = append(out, p)
		}
	}
	return out
}

// Apply keeps the places matching every set criterion. Price bounds apply to the
// monthly total. A place with an unknown floor or elevator fails any bound on it.
func Apply(list []Place, c FilterCriteria) []Place {
	if c.IsZero() {
		return list
	}

	out := make([]Place, 0, len(list))
	for _, p := range list {
		if c.matches(p) {
			out = append(out, p)
		}
	}
	return out
}

func (c FilterCriteria) matches(p Place) bool {
	total := p.MonthlyTotal()
	if c.MinPrice != nil && total < *c.MinPrice {
		return false
	}
	if c.MaxPrice != nil && total > *c.MaxPrice {
		return false
	}

	if c.MinFloor != nil && (p.Floor == nil || *p.Floor < *c.MinFloor) {
		return false
	}
	if c.MaxFloor != nil && (p.Floor == nil || *p.Floor > *c.MaxFloor) {
		return false
	}

	if c.HasElevator != nil && (p.HasElevator == nil || *p.HasElevator != *c.HasElevator) {
		return false
	}
	return true
}

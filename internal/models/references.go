package models

import "rentmap.hu/internal/stops"

// ReferencesModel carries the routes the listed stops point at.
type ReferencesModel struct {
	Routes []stops.RouteRef `json:"routes"`
}

func NewEmptyReferences() ReferencesModel {
	return ReferencesModel{Routes: []stops.RouteRef{}}
}

// NewStopReferences collects the distinct routes serving list, in first-seen order.
func NewStopReferences(list []stops.Stop) ReferencesModel {
	refs := NewEmptyReferences()
	seen := make(map[string]struct{})
	for _, s := range list {
		for _, r := range s.Routes {
			if _, ok := seen[r.ID]; ok {
				continue
			}
			seen[r.ID] = struct{}{}
			refs.Routes = append(refs.Routes, r)
		}
	}
	return refs
}

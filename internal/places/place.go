// Package places manages a user's rental pins: validation, search and filtering,
// SQLite persistence, and the owner-scoped service the REST layer calls.
package places

import (
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("place not found")
	ErrForbidden       = errors.New("place belongs to another user")
	ErrAddressNotFound = errors.New("address could not be geocoded")
)

type PropertyType string

const (
	PropertyApartment PropertyType = "apartment"
	PropertyHouse     PropertyType = "house"
	PropertyRoom      PropertyType = "room"
	PropertyOther     PropertyType = "other"
)

// Place is one rental pin. Optional numeric fields are nil when the user left them empty.
type Place struct {
	ID           string       `json:"id"`
	UserID       string       `json:"userId"`
	Title        string       `json:"title"`
	Description  string       `json:"description,omitempty"`
	Address      string       `json:"address,omitempty"`
	Lat          float64      `json:"lat"`
	Lng          float64      `json:"lng"`
	RentPrice    *float64     `json:"rentPrice,omitempty"`
	UtilityCost  *float64     `json:"utilityCost,omitempty"`
	CommonCost   *float64     `json:"commonCost,omitempty"`
	Deposit      *float64     `json:"deposit,omitempty"`
	RoomCount    *int         `json:"roomCount,omitempty"`
	PropertyType PropertyType `json:"propertyType,omitempty"`
	Floor        *int         `json:"floor,omitempty"`
	HasElevator  *bool        `json:"hasElevator,omitempty"`
	Link         string       `json:"link,omitempty"`
	Images       []string     `json:"images,omitempty"`
	TotalPrice   float64      `json:"totalPrice"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// MonthlyTotal is rent + utilities + common cost, missing parts counting as zero.
func (p Place) MonthlyTotal() float64 {
	return deref(p.RentPrice) + deref(p.UtilityCost) + deref(p.CommonCost)
}

// Input is the writable part of a Place as sent by the client on create and update.
// Either Lat/Lng or Address must be given; an address alone is geocoded.
type Input struct {
	Title        string       `json:"title" validate:"required,max=200"`
	Description  string       `json:"description" validate:"max=5000"`
	Address      string       `json:"address" validate:"max=500"`
	Lat          *float64     `json:"lat" validate:"omitempty,gte=-90,lte=90"`
	Lng          *float64     `json:"lng" validate:"omitempty,gte=-180,lte=180"`
	RentPrice    *float64     `json:"rentPrice" validate:"omitempty,gte=0"`
	UtilityCost  *float64     `json:"utilityCost" validate:"omitempty,gte=0"`
	CommonCost   *float64     `json:"commonCost" validate:"omitempty,gte=0"`
	Deposit      *float64     `json:"deposit" validate:"omitempty,gte=0"`
	RoomCount    *int         `json:"roomCount" validate:"omitempty,gte=0"`
	PropertyType PropertyType `json:"propertyType" validate:"omitempty,oneof=apartment house room other"`
	Floor        *int         `json:"floor"`
	HasElevator  *bool        `json:"hasElevator"`
	Link         string       `json:"link"`
	Images       []string     `json:"images"`
}

func (in Input) hasCoordinates() bool {
	return in.Lat != nil && in.Lng != nil
}

// apply copies the writable fields onto p. Coordinates are handled by the caller.
func (in Input) apply(p *Place) {
	p.Title = in.Title
	p.Description = in.Description
	p.Address = in.Address
	p.RentPrice = in.RentPrice
	p.UtilityCost = in.UtilityCost
	p.CommonCost = in.CommonCost
	p.Deposit = in.Deposit
	p.RoomCount = in.RoomCount
	p.PropertyType = in.PropertyType
	p.Floor = in.Floor
	p.HasElevator = in.HasElevator
	p.Link = in.Link
	p.Images = in.Images
	p.TotalPrice = p.MonthlyTotal()
}

func deref[T int | float64](v *T) T {
	if v == nil {
		return 0
	}
	return *v
}

// pkg/core/types.go
package core

import "fmt"

// LatLng is a geographic position in degrees (WGS84)
type LatLng struct {
	Lat float64 `json:"lat" mapstructure:"lat"`
	Lng float64 `json:"lng" mapstructure:"lng"`
}

// Valid reports whether the position lies inside the WGS84 ranges
func (ll LatLng) Valid() bool {
	return ll.Lat >= -90 && ll.Lat <= 90 && ll.Lng >= -180 && ll.Lng <= 180
}

func (ll LatLng) String() string {
	return fmt.Sprintf("(%g, %g)", ll.Lat, ll.Lng)
}

// Point is a pixel offset, used for icon anchors
type Point struct {
	X int `json:"x" mapstructure:"x"`
	Y int `json:"y" mapstructure:"y"`
}

// Size is a pixel extent, used for icon sizes
type Size struct {
	Width  int `json:"width" mapstructure:"width"`
	Height int `json:"height" mapstructure:"height"`
}

// Bounds is the minimal geographic rectangle enclosing a set of positions
type Bounds struct {
	SouthWest LatLng `json:"southWest"`
	NorthEast LatLng `json:"northEast"`
}

// Contains reports whether ll lies inside the bounds (edges included)
func (b Bounds) Contains(ll LatLng) bool {
	return ll.Lat >= b.SouthWest.Lat && ll.Lat <= b.NorthEast.Lat &&
		ll.Lng >= b.SouthWest.Lng && ll.Lng <= b.NorthEast.Lng
}

// Center returns the midpoint of the bounds
func (b Bounds) Center() LatLng {
	return LatLng{
		Lat: (b.SouthWest.Lat + b.NorthEast.Lat) / 2,
		Lng: (b.SouthWest.Lng + b.NorthEast.Lng) / 2,
	}
}

// String, Bool and Int return pointers to their argument, for filling optional
// MarkerSpec and MapOptions fields inline.
func String(s string) *string { return &s }

func Bool(b bool) *bool { return &b }

func Int(i int) *int { return &i }

package geo

import (
	"errors"
	"math"
	"testing"

	"github.com/OCAP2/clustermap/pkg/core"
)

func TestParseLatLng_Valid(t *testing.T) {
	ll, err := ParseLatLng("48.8566,2.3522")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ll.Lat != 48.8566 {
		t.Errorf("expected Lat=48.8566, got %f", ll.Lat)
	}
	if ll.Lng != 2.3522 {
		t.Errorf("expected Lng=2.3522, got %f", ll.Lng)
	}
}

func TestParseLatLng_Whitespace(t *testing.T) {
	ll, err := ParseLatLng(" -33.9 , 18.4 ")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ll.Lat != -33.9 || ll.Lng != 18.4 {
		t.Errorf("expected (-33.9, 18.4), got %v", ll)
	}
}

func TestParseLatLng_Invalid(t *testing.T) {
	cases := []string{"", "12.5", "abc,1", "1,xyz", "91,0", "0,181"}
	for _, c := range cases {
		_, err := ParseLatLng(c)
		if !errors.Is(err, ErrInvalidCoordinates) {
			t.Errorf("%q: expected ErrInvalidCoordinates, got %v", c, err)
		}
	}
}

func TestProject_Origin(t *testing.T) {
	x, y := Project(core.LatLng{})

	if math.Abs(x) > 1e-6 || math.Abs(y) > 1e-6 {
		t.Errorf("expected (0,0) at origin, got (%f,%f)", x, y)
	}
}

func TestProject_Hemispheres(t *testing.T) {
	x, y := Project(core.LatLng{Lat: 10, Lng: 10})
	if x <= 0 || y <= 0 {
		t.Errorf("expected positive coordinates, got (%f,%f)", x, y)
	}

	x, y = Project(core.LatLng{Lat: -30, Lng: -45})
	if x >= 0 || y >= 0 {
		t.Errorf("expected negative coordinates, got (%f,%f)", x, y)
	}
}

func TestProjectUnproject_RoundTrip(t *testing.T) {
	in := core.LatLng{Lat: 51.5074, Lng: -0.1278}
	out := Unproject(Project(in))

	if math.Abs(out.Lat-in.Lat) > 1e-6 || math.Abs(out.Lng-in.Lng) > 1e-6 {
		t.Errorf("expected %v, got %v", in, out)
	}
}

func TestPixelAt_ZoomZeroCenter(t *testing.T) {
	px, py := PixelAt(core.LatLng{}, 0)

	if math.Abs(px-128) > 1e-6 || math.Abs(py-128) > 1e-6 {
		t.Errorf("expected (128,128), got (%f,%f)", px, py)
	}
}

func TestLatLngAtPixel_Inverse(t *testing.T) {
	in := core.LatLng{Lat: 40.7128, Lng: -74.006}
	px, py := PixelAt(in, 12)
	out := LatLngAtPixel(px, py, 12)

	if math.Abs(out.Lat-in.Lat) > 1e-6 || math.Abs(out.Lng-in.Lng) > 1e-6 {
		t.Errorf("expected %v, got %v", in, out)
	}
}

func TestBoundsOf_Empty(t *testing.T) {
	_, ok := BoundsOf(nil)
	if ok {
		t.Error("expected no bounds for empty input")
	}
}

func TestBoundsOf_ContainsEveryPoint(t *testing.T) {
	points := []core.LatLng{{Lat: 1, Lng: 1}, {Lat: -5, Lng: 10}, {Lat: 7, Lng: -3}}

	b, ok := BoundsOf(points)
	if !ok {
		t.Fatal("expected bounds")
	}
	for _, p := range points {
		if !b.Contains(p) {
			t.Errorf("bounds %v should contain %v", b, p)
		}
	}
	if b.SouthWest != (core.LatLng{Lat: -5, Lng: -3}) {
		t.Errorf("unexpected south-west %v", b.SouthWest)
	}
	if b.NorthEast != (core.LatLng{Lat: 7, Lng: 10}) {
		t.Errorf("unexpected north-east %v", b.NorthEast)
	}
}

func TestBoundsOf_SinglePoint(t *testing.T) {
	b, ok := BoundsOf([]core.LatLng{{Lat: 1, Lng: 1}})
	if !ok {
		t.Fatal("expected bounds")
	}
	if b.SouthWest != b.NorthEast {
		t.Errorf("expected degenerate bounds, got %v", b)
	}
}

func TestBoundsOf_SkipsNonFinite(t *testing.T) {
	points := []core.LatLng{{Lat: math.NaN(), Lng: 4}, {Lat: 2, Lng: 3}, {Lat: 1, Lng: math.Inf(1)}, {Lat: -1, Lng: -2}}

	b, ok := BoundsOf(points)
	if !ok {
		t.Fatal("expected bounds")
	}
	if b.SouthWest != (core.LatLng{Lat: -1, Lng: -2}) {
		t.Errorf("unexpected south-west %v", b.SouthWest)
	}
	if b.NorthEast != (core.LatLng{Lat: 2, Lng: 3}) {
		t.Errorf("unexpected north-east %v", b.NorthEast)
	}
}

func TestBoundsOf_OnlyNonFinite(t *testing.T) {
	if _, ok := BoundsOf([]core.LatLng{{Lat: math.NaN(), Lng: 0}}); ok {
		t.Error("expected no bounds when every position is non-finite")
	}
}

func TestZoomForBounds_PointUsesMaxZoom(t *testing.T) {
	b := core.Bounds{SouthWest: core.LatLng{Lat: 1, Lng: 1}, NorthEast: core.LatLng{Lat: 1, Lng: 1}}

	if z := ZoomForBounds(b, core.Size{Width: 800, Height: 600}, 20); z != 20 {
		t.Errorf("expected 20, got %d", z)
	}
}

func TestZoomForBounds_WorldIsZoomedOut(t *testing.T) {
	b := core.Bounds{SouthWest: core.LatLng{Lat: -80, Lng: -180}, NorthEast: core.LatLng{Lat: 80, Lng: 180}}

	if z := ZoomForBounds(b, core.Size{Width: 256, Height: 256}, 20); z != 0 {
		t.Errorf("expected 0, got %d", z)
	}
}

func TestZoomForBounds_SmallerAreaZoomsIn(t *testing.T) {
	view := core.Size{Width: 800, Height: 600}
	wide := core.Bounds{SouthWest: core.LatLng{Lat: 0, Lng: 0}, NorthEast: core.LatLng{Lat: 10, Lng: 10}}
	narrow := core.Bounds{SouthWest: core.LatLng{Lat: 0, Lng: 0}, NorthEast: core.LatLng{Lat: 1, Lng: 1}}

	if ZoomForBounds(narrow, view, 20) <= ZoomForBounds(wide, view, 20) {
		t.Error("expected narrower bounds to fit at a higher zoom")
	}
}

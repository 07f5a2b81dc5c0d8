package geo

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/OCAP2/clustermap/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// Positions arrive as WGS84 (EPSG:4326). Anything that measures distances on
// screen works in Web Mercator (EPSG:3857) metres.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// TileSize is the edge length of one raster tile in pixels
const TileSize = 256

// worldMeters is the full Web Mercator extent along one axis
const worldMeters = 2 * 20037508.342789244

// maxLatitude is where Web Mercator stops being defined
const maxLatitude = 85.0511287798

// ParseLatLng parses a string in the format "lat,lng" into a position
func ParseLatLng(coords string) (core.LatLng, error) {
	split := strings.Split(coords, ",")
	if len(split) < 2 {
		return core.LatLng{}, ErrInvalidCoordinates
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(split[0]), 64)
	if err != nil {
		return core.LatLng{}, ErrInvalidCoordinates
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(split[1]), 64)
	if err != nil {
		return core.LatLng{}, ErrInvalidCoordinates
	}
	ll := core.LatLng{Lat: lat, Lng: lng}
	if !ll.Valid() {
		return core.LatLng{}, ErrInvalidCoordinates
	}
	return ll, nil
}

// Project converts a WGS84 position to Web Mercator metres
func Project(ll core.LatLng) (x, y float64) {
	lat := math.Max(-maxLatitude, math.Min(maxLatitude, ll.Lat))
	f := wgs84.EPSG().Transform(4326, 3857)
	x, y, _ = f(ll.Lng, lat, 0)
	return x, y
}

// Unproject converts Web Mercator metres back to a WGS84 position
func Unproject(x, y float64) core.LatLng {
	f := wgs84.EPSG().Transform(3857, 4326)
	lng, lat, _ := f(x, y, 0)
	return core.LatLng{Lat: lat, Lng: lng}
}

// PixelAt returns the global pixel coordinate of a position at the given zoom
func PixelAt(ll core.LatLng, zoom int) (px, py float64) {
	x, y := Project(ll)
	scale := TileSize * math.Pow(2, float64(zoom))
	px = (x/worldMeters + 0.5) * scale
	py = (0.5 - y/worldMeters) * scale
	return px, py
}

// LatLngAtPixel is the inverse of PixelAt
func LatLngAtPixel(px, py float64, zoom int) core.LatLng {
	scale := TileSize * math.Pow(2, float64(zoom))
	x := (px/scale - 0.5) * worldMeters
	y := (0.5 - py/scale) * worldMeters
	return Unproject(x, y)
}

// BoundsOf returns the minimal bounds enclosing positions. Non-finite
// positions are skipped. ok is false when no finite position remains.
func BoundsOf(positions []core.LatLng) (b core.Bounds, ok bool) {
	var env geom.Envelope
	for _, p := range positions {
		extended, err := env.ExtendToIncludeXY(geom.XY{X: p.Lng, Y: p.Lat})
		if err != nil {
			continue
		}
		env = extended
	}
	lo, hi, ok := env.MinMaxXYs()
	if !ok {
		return core.Bounds{}, false
	}
	return core.Bounds{
		SouthWest: core.LatLng{Lat: lo.Y, Lng: lo.X},
		NorthEast: core.LatLng{Lat: hi.Y, Lng: hi.X},
	}, true
}

// ZoomForBounds returns the largest zoom, capped at maxZoom, at which b fits
// inside a viewport of the given size.
func ZoomForBounds(b core.Bounds, viewport core.Size, maxZoom int) int {
	x1, y1 := Project(b.SouthWest)
	x2, y2 := Project(b.NorthEast)
	fx := math.Abs(x2-x1) / worldMeters
	fy := math.Abs(y2-y1) / worldMeters

	zoom := maxZoom
	if fx > 0 {
		zoom = min(zoom, int(math.Floor(math.Log2(float64(viewport.Width)/(TileSize*fx)))))
	}
	if fy > 0 {
		zoom = min(zoom, int(math.Floor(math.Log2(float64(viewport.Height)/(TileSize*fy)))))
	}
	return max(zoom, 0)
}

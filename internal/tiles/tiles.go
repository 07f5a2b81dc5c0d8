// Package tiles provides the raster base layer every map is drawn on.
package tiles

import (
	"strconv"
	"strings"

	"github.com/OCAP2/clustermap/pkg/core"
	"github.com/OCAP2/clustermap/pkg/engine"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// Tile source settings
const (
	URLTemplate = "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png"
	MaxZoom     = 20
	Subdomains  = "abc"
	Attribution = `&copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> contributors`
)

// Options returns the tile options the base layer is created with
func Options() engine.TileOptions {
	return engine.TileOptions{
		MaxZoom:     MaxZoom,
		Attribution: Attribution,
		Subdomains:  Subdomains,
	}
}

// New creates the base layer. It does not attach it to any surface.
func New(eng engine.Engine) engine.TileLayer {
	return eng.CreateTileLayer(URLTemplate, Options())
}

// At returns the tile covering ll at the given zoom
func At(ll core.LatLng, zoom int) maptile.Tile {
	return maptile.At(orb.Point{ll.Lng, ll.Lat}, maptile.Zoom(clampZoom(zoom)))
}

// URLFor expands template for the tile covering ll at zoom. The {s}
// placeholder cycles through subdomains by tile position.
func URLFor(template, subdomains string, ll core.LatLng, zoom int) string {
	return Expand(template, subdomains, At(ll, zoom))
}

// Expand fills the placeholders of template for tile t
func Expand(template, subdomains string, t maptile.Tile) string {
	s := ""
	if subdomains != "" {
		s = string(subdomains[int(t.X+t.Y)%len(subdomains)])
	}
	return strings.NewReplacer(
		"{s}", s,
		"{z}", strconv.Itoa(int(t.Z)),
		"{x}", strconv.FormatUint(uint64(t.X), 10),
		"{y}", strconv.FormatUint(uint64(t.Y), 10),
	).Replace(template)
}

func clampZoom(zoom int) int {
	return max(0, min(zoom, MaxZoom))
}

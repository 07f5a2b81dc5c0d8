// Package snapshot exports a rendered map as a GeoJSON FeatureCollection:
// one feature per marker plus one per multi-marker cluster at the current
// zoom. The view is stored in the collection's foreign members.
package snapshot

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/OCAP2/clustermap/internal/engine/headless"
	"github.com/OCAP2/clustermap/internal/popup"
	"github.com/OCAP2/clustermap/pkg/clustermap"
	"github.com/OCAP2/clustermap/pkg/core"
	"github.com/klauspost/compress/zstd"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Feature kinds, stored in the "kind" property
const (
	KindMarker  = "marker"
	KindCluster = "cluster"
)

// CompressedExt selects zstd compression in Write
const CompressedExt = ".zst"

// clusterSource is implemented by cluster layers that can report their
// on-screen grouping.
type clusterSource interface {
	Clusters() []headless.Cluster
}

// Build describes the controller's markers, clusters and view. The
// controller must be rendered.
func Build(c *clustermap.Controller) (*geojson.FeatureCollection, error) {
	if c.State() != clustermap.Rendered {
		return nil, fmt.Errorf("snapshot of %s map: %w", c.State(), clustermap.ErrNotRendered)
	}

	fc := geojson.NewFeatureCollection()
	surface := c.Surface()
	center := surface.Center()
	fc.ExtraMembers = geojson.Properties{
		"container": c.Container(),
		"center":    []float64{center.Lng, center.Lat},
		"zoom":      surface.Zoom(),
	}

	specs := c.Specs()
	for i, m := range c.Markers() {
		f := geojson.NewFeature(point(m.LatLng()))
		f.ID = m.LayerID()
		f.Properties["kind"] = KindMarker
		f.Properties["index"] = i
		f.Properties["title"] = m.Options().Title
		if icon := m.Icon(); icon != nil {
			f.Properties["iconUrl"] = icon.Options().IconURL
		}
		if i < len(specs) && specs[i].Address != nil {
			f.Properties["address"] = *specs[i].Address
		}
		if content, ok := m.PopupContent(); ok {
			f.Properties["popup"] = content
			if text, err := popup.Text(content); err == nil {
				f.Properties["popupText"] = text
			}
		}
		fc.Append(f)
	}

	if src, ok := c.ClusterLayer().(clusterSource); ok {
		for _, cl := range src.Clusters() {
			if cl.Count() < 2 {
				continue
			}
			f := geojson.NewFeature(point(cl.Center))
			f.BBox = geojson.NewBBox(bound(cl.Bounds))
			f.Properties["kind"] = KindCluster
			f.Properties["count"] = cl.Count()
			ids := make([]string, cl.Count())
			for i, m := range cl.Markers {
				ids[i] = m.LayerID()
			}
			f.Properties["markers"] = ids
			fc.Append(f)
		}
	}

	if b, ok := c.ClusterLayer().Bounds(); ok {
		fc.BBox = geojson.NewBBox(bound(b))
	}
	return fc, nil
}

// Encode writes fc as JSON to w.
func Encode(w io.Writer, fc *geojson.FeatureCollection) error {
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encoding feature collection: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// Write stores fc at path, zstd-compressed when path ends in ".zst".
func Write(path string, fc *geojson.FeatureCollection) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating snapshot: %w", err)
	}
	defer f.Close()

	if !strings.HasSuffix(path, CompressedExt) {
		return Encode(f, fc)
	}

	enc, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("creating zstd writer: %w", err)
	}
	if err := Encode(enc, fc); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// Read loads a snapshot written by Write.
func Read(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	if strings.HasSuffix(path, CompressedExt) {
		dec, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("creating zstd reader: %w", err)
		}
		defer dec.Close()
		if data, err = io.ReadAll(dec); err != nil {
			return nil, fmt.Errorf("decompressing snapshot: %w", err)
		}
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return fc, nil
}

// Count returns how many features of the given kind fc holds.
func Count(fc *geojson.FeatureCollection, kind string) int {
	n := 0
	for _, f := range fc.Features {
		if f.Properties.MustString("kind", "") == kind {
			n++
		}
	}
	return n
}

func point(ll core.LatLng) orb.Point {
	return orb.Point{ll.Lng, ll.Lat}
}

func bound(b core.Bounds) orb.Bound {
	return orb.Bound{Min: point(b.SouthWest), Max: point(b.NorthEast)}
}

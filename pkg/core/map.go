// pkg/core/map.go
package core

// MapConfig is the effective configuration of a rendering surface
type MapConfig struct {
	Center              LatLng         `json:"center"`
	Zoom                int            `json:"zoom"`
	ZIndex              int            `json:"zIndex"`
	ScrollWheelZoom     bool           `json:"scrollWheelZoom"`
	Dragging            bool           `json:"dragging"`
	ShowCoverageOnHover bool           `json:"showCoverageOnHover"`
	Extra               map[string]any `json:"extra,omitempty"`
}

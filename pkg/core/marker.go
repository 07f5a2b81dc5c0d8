// pkg/core/marker.go
package core

import "encoding/json"

// MarkerSpec describes a marker as supplied by a caller. Every field except
// Position is optional and falls back to the marker defaults when nil.
type MarkerSpec struct {
	Title              *string        `json:"title,omitempty"`
	IconURL            *string        `json:"iconUrl,omitempty"`
	Address            *string        `json:"address,omitempty"`
	Position           *LatLng        `json:"position,omitempty"`
	Size               *Size          `json:"size,omitempty"`
	Anchor             *Point         `json:"anchor,omitempty"`
	ShowPopup          *bool          `json:"showPopup,omitempty"`
	CenterOnClick      *bool          `json:"centerOnClick,omitempty"`
	CustomPopupContent *string        `json:"customPopupContent,omitempty"`
	// Extra holds keys the fields above do not cover. They survive a decode
	// and encode round trip.
	Extra map[string]any `json:"-"`
}

var markerSpecKeys = []string{
	"title", "iconUrl", "address", "position", "size", "anchor",
	"showPopup", "centerOnClick", "customPopupContent",
}

// UnmarshalJSON decodes the known fields and keeps every other key in Extra.
func (s *MarkerSpec) UnmarshalJSON(data []byte) error {
	type plain MarkerSpec
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := UnknownKeys(data, markerSpecKeys...)
	if err != nil {
		return err
	}
	p.Extra = extra
	*s = MarkerSpec(p)
	return nil
}

// MarshalJSON writes the known fields followed by the preserved Extra keys.
func (s MarkerSpec) MarshalJSON() ([]byte, error) {
	type plain MarkerSpec
	return MarshalWithExtra(plain(s), s.Extra)
}

// MarkerConfig is a MarkerSpec with every default applied
type MarkerConfig struct {
	Title         string
	IconURL       string
	Address       string
	Position      LatLng
	HasPosition   bool
	Size          Size
	Anchor        Point
	ShowPopup     bool
	CenterOnClick bool
	// CustomPopupContent stays optional: nil means "synthesize from title and address"
	CustomPopupContent *string
	Extra              map[string]any
}

package geo

import (
	"encoding/json"
	"fmt"

	"github.com/OCAP2/clustermap/pkg/core"
)

// ParsePositions parses a JSON array of [lat, lng] pairs.
// Input format: "[[lat1,lng1],[lat2,lng2],...]"
func ParsePositions(input []byte) ([]core.LatLng, error) {
	var coords [][]float64
	if err := json.Unmarshal(input, &coords); err != nil {
		return nil, fmt.Errorf("failed to parse positions JSON: %w", err)
	}

	positions := make([]core.LatLng, len(coords))
	for i, coord := range coords {
		if len(coord) < 2 {
			return nil, fmt.Errorf("coordinate %d has insufficient values", i)
		}
		ll := core.LatLng{Lat: coord[0], Lng: coord[1]}
		if !ll.Valid() {
			return nil, fmt.Errorf("coordinate %d: %w", i, ErrInvalidCoordinates)
		}
		positions[i] = ll
	}

	return positions, nil
}

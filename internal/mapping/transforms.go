package mapping

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// SplitDistances splits a comma-separated distance listing into trimmed
// free-text entries ("50K, 10 Mile" -> ["50K", "10 Mile"]).
func SplitDistances(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, eris.Errorf("expected string distance list, got %T", v)
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out, nil
}

// HasTag returns a transform that reports whether a raw tag list contains
// the given tag.
func HasTag(tag string) Transform {
	return func(v any) (any, error) {
		tags, ok := v.([]any)
		if !ok {
			return nil, eris.Errorf("expected tag list, got %T", v)
		}
		for _, t := range tags {
			if s, ok := t.(string); ok && s == tag {
				return true, nil
			}
		}
		return false, nil
	}
}

// GeoLongitude and GeoLatitude read one ordinate from a GeoJSON-shaped
// point ({"type":"Point","coordinates":[lon,lat]}). An absent or malformed
// structure yields nil, never an error: providers omit coordinates freely.
func GeoLongitude(v any) (any, error) { return geoOrdinate(v, 0), nil }

// GeoLatitude reads the latitude ordinate; see GeoLongitude.
func GeoLatitude(v any) (any, error) { return geoOrdinate(v, 1), nil }

func geoOrdinate(v any, ix int) any {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}

	var g geom.T
	if err := geojson.Unmarshal(raw, &g); err == nil {
		if pt, ok := g.(*geom.Point); ok {
			coords := pt.Coords()
			if ix < len(coords) {
				return coords[ix]
			}
		}
		return nil
	}

	// Some payloads carry bare {"coordinates":[lon,lat]} without a GeoJSON
	// type tag.
	var bare struct {
		Coordinates []float64 `json:"coordinates"`
	}
	if err := json.Unmarshal(raw, &bare); err != nil {
		return nil
	}
	if ix >= len(bare.Coordinates) {
		return nil
	}
	return bare.Coordinates[ix]
}

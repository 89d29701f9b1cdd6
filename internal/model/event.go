// Package model holds the canonical event record shared by every pipeline
// stage, plus the raw-batch and distance types derived from it.
package model

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/racetrail/ingest-cli/internal/units"
)

// RawRecord is one provider-native record, a bag of provider-specific keys.
type RawRecord = map[string]any

// RawBatch is the opaque payload of one fetch unit, scoped to a single
// pipeline stage.
type RawBatch []RawRecord

// Event is the canonical, provider-agnostic race-event record. It is
// constructed once by the schema mapper and never mutated afterwards.
//
// EventForeignID is the provider's own id; it is NOT unique across editions
// of the same race, which is why dedup identity is DedupKey instead.
type Event struct {
	SourceID       int      `json:"source_id"`
	Name           string   `json:"name"`
	EventForeignID string   `json:"event_foreign_id"`
	StartDate      string   `json:"start_date"`
	City           *string  `json:"city"`
	State          *string  `json:"state"`
	Country        *string  `json:"country"`
	URL            *string  `json:"url"`
	Virtual        bool     `json:"virtual"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	Distances      []string `json:"distances"`
}

// Region selects which column completes the dedup key. UltraSignup listings
// are matched on state, Ahotu listings on country.
type Region string

const (
	RegionCountry Region = "country"
	RegionState   Region = "state"
)

// DedupKey is the identity used for existence checks against the store:
// name + start date + city + country-or-state. Provider foreign ids are
// deliberately excluded (providers reuse them across editions).
type DedupKey struct {
	Name      string
	StartDate string
	City      *string
	Region    Region
	RegionVal *string
}

// DedupKey builds the store-identity key for this event using the given
// region convention.
func (e Event) DedupKey(r Region) DedupKey {
	k := DedupKey{Name: e.Name, StartDate: e.StartDate, City: e.City, Region: r}
	if r == RegionState {
		k.RegionVal = e.State
	} else {
		k.RegionVal = e.Country
	}
	return k
}

// Equal reports structural equality across all fields.
func (e Event) Equal(o Event) bool {
	if e.SourceID != o.SourceID || e.Name != o.Name ||
		e.EventForeignID != o.EventForeignID || e.StartDate != o.StartDate ||
		e.Virtual != o.Virtual {
		return false
	}
	if !eqStrPtr(e.City, o.City) || !eqStrPtr(e.State, o.State) ||
		!eqStrPtr(e.Country, o.Country) || !eqStrPtr(e.URL, o.URL) {
		return false
	}
	if !eqFloatPtr(e.Latitude, o.Latitude) || !eqFloatPtr(e.Longitude, o.Longitude) {
		return false
	}
	if len(e.Distances) != len(o.Distances) {
		return false
	}
	for i := range e.Distances {
		if e.Distances[i] != o.Distances[i] {
			return false
		}
	}
	return true
}

// DistanceRecord is one row derived from an event's free-text distance list
// by the unit parser. Relay/multiday/virtual flags are not inferred from
// text yet and default to false.
type DistanceRecord struct {
	EventID    int64      `json:"event_id"`
	Length     float64    `json:"length"`
	Unit       units.Unit `json:"unit"`
	IsRelay    bool       `json:"is_relay"`
	IsMultiday bool       `json:"is_multiday"`
	IsVirtual  bool       `json:"is_virtual"`
}

// NewEvent builds a validated Event from the canonical field dictionary
// produced by a schema mapper. Coordinates outside their valid range are
// folded back in via modulo; see the package tests for the exact convention.
func NewEvent(fields map[string]any) (Event, error) {
	var e Event
	var err error

	if e.SourceID, err = toInt(fields["source_id"]); err != nil {
		return Event{}, eris.Wrap(err, "event: source_id")
	}
	if e.Name, err = toString(fields["name"]); err != nil {
		return Event{}, eris.Wrap(err, "event: name")
	}
	if e.EventForeignID, err = toString(fields["event_foreign_id"]); err != nil {
		return Event{}, eris.Wrap(err, "event: event_foreign_id")
	}
	if e.StartDate, err = toString(fields["start_date"]); err != nil {
		return Event{}, eris.Wrap(err, "event: start_date")
	}
	if e.City, err = toStringPtr(fields["city"]); err != nil {
		return Event{}, eris.Wrap(err, "event: city")
	}
	if e.State, err = toStringPtr(fields["state"]); err != nil {
		return Event{}, eris.Wrap(err, "event: state")
	}
	if e.Country, err = toStringPtr(fields["country"]); err != nil {
		return Event{}, eris.Wrap(err, "event: country")
	}
	if e.URL, err = toStringPtr(fields["url"]); err != nil {
		return Event{}, eris.Wrap(err, "event: url")
	}
	if e.Virtual, err = toBool(fields["virtual"]); err != nil {
		return Event{}, eris.Wrap(err, "event: virtual")
	}
	if e.Latitude, err = toFloatPtr(fields["latitude"]); err != nil {
		return Event{}, eris.Wrap(err, "event: latitude")
	}
	if e.Longitude, err = toFloatPtr(fields["longitude"]); err != nil {
		return Event{}, eris.Wrap(err, "event: longitude")
	}
	if e.Distances, err = toStringSlice(fields["distances"]); err != nil {
		return Event{}, eris.Wrap(err, "event: distances")
	}

	// Out-of-range coordinates are folded into range rather than rejected.
	// Lossy, but matches the store's historical contents; DESIGN.md flags it.
	if e.Latitude != nil {
		v := fold(*e.Latitude, 90)
		e.Latitude = &v
	}
	if e.Longitude != nil {
		v := fold(*e.Longitude, 180)
		e.Longitude = &v
	}
	return e, nil
}

// fold maps v into [-bound, bound] via truncated modulo. Boundary values
// are left untouched. Note the convention for negative inputs: -181 folds
// to -1 (truncated), not 179 (floored); stored coordinates predating this
// code may carry the floored value.
func fold(v, bound float64) float64 {
	if v < -bound || v > bound {
		return math.Mod(v, bound)
	}
	return v
}

// EncodeEvents serializes an ordered event list for handing between
// pipeline stages. DecodeEvents reverses it losslessly, order preserved.
func EncodeEvents(events []Event) ([]byte, error) {
	data, err := json.Marshal(events)
	if err != nil {
		return nil, eris.Wrap(err, "event: encode list")
	}
	return data, nil
}

// DecodeEvents deserializes a list produced by EncodeEvents.
func DecodeEvents(data []byte) ([]Event, error) {
	var events []Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, eris.Wrap(err, "event: decode list")
	}
	return events, nil
}

func eqStrPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func eqFloatPtr(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// formatNumber renders a JSON number without exponent notation so provider
// ids like 1234567 survive the float64 decode intact.
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func toString(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case float64:
		return formatNumber(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case bool:
		return strconv.FormatBool(t), nil
	}
	return "", eris.Errorf("cannot convert %T to string", v)
}

func toStringPtr(v any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	s, err := toString(v)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func toInt(v any) (int, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		return int(t), nil
	case string:
		return strconv.Atoi(t)
	}
	return 0, eris.Errorf("cannot convert %T to int", v)
}

func toBool(v any) (bool, error) {
	switch t := v.(type) {
	case nil:
		return false, nil
	case bool:
		return t, nil
	case float64:
		return t != 0, nil
	case string:
		return strconv.ParseBool(t)
	}
	return false, eris.Errorf("cannot convert %T to bool", v)
}

func toFloatPtr(v any) (*float64, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case float64:
		return &t, nil
	case int:
		f := float64(t)
		return &f, nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return nil, err
		}
		return &f, nil
	}
	return nil, eris.Errorf("cannot convert %T to float", v)
}

func toStringSlice(v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return t, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, elt := range t {
			s, err := toString(elt)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, eris.Errorf("cannot convert %T to string slice", v)
}

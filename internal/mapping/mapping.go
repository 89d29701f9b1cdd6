// Package mapping converts raw provider records into canonical events via
// declarative per-source field tables. All provider schema knowledge lives
// in these tables; the engine itself is provider-agnostic.
package mapping

import (
	"github.com/racetrail/ingest-cli/internal/model"
	"github.com/racetrail/ingest-cli/internal/resilience"
)

// Transform converts one raw provider value into its canonical form.
// Transforms are pure; a returned error means the provider's schema drifted
// from what the table was written against, which fails the parse unit and
// is never retried.
type Transform func(v any) (any, error)

// FieldSpec binds one canonical field to either a source key plus transform,
// or a fixed per-source default when SourceKey is empty.
type FieldSpec struct {
	Field     string
	SourceKey string
	Transform Transform // nil means identity
	Default   any
}

// Mapper applies an ordered field table to raw batches for one source.
type Mapper struct {
	source string
	specs  []FieldSpec
}

// New creates a Mapper for the named source.
func New(source string, specs []FieldSpec) *Mapper {
	return &Mapper{source: source, specs: specs}
}

// Source returns the provider name this mapper was built for.
func (m *Mapper) Source() string { return m.source }

// Parse converts a raw batch into canonical events, preserving input order.
// A transform failure or an invalid canonical record aborts the whole batch
// with an integrity error.
func (m *Mapper) Parse(batch model.RawBatch) ([]model.Event, error) {
	events := make([]model.Event, 0, len(batch))
	for i, rec := range batch {
		fields := make(map[string]any, len(m.specs))
		for _, spec := range m.specs {
			if spec.SourceKey == "" {
				fields[spec.Field] = spec.Default
				continue
			}
			v := rec[spec.SourceKey]
			if spec.Transform != nil {
				out, err := spec.Transform(v)
				if err != nil {
					return nil, resilience.NewIntegrityError(m.source,
						"record %d field %s: %v", i, spec.Field, err)
				}
				v = out
			}
			fields[spec.Field] = v
		}

		event, err := model.NewEvent(fields)
		if err != nil {
			return nil, resilience.NewIntegrityError(m.source, "record %d: %v", i, err)
		}
		events = append(events, event)
	}
	return events, nil
}

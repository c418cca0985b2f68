package catalog

import "sort"

// Event is the canonical record for one real-world object.
// It is owned by a Catalog and only mutated through Catalog operations.
type Event struct {
	name       string
	aliases    []QuantityValue
	sources    []Source
	quantities map[string][]QuantityValue
	photometry []PhotometryRecord
	spectra    []SpectrumRecord

	seq uint64
	// journaled marks an event restored from a previous run's journal. It
	// ranks ahead of every event first created in this run.
	journaled bool
	collapsed bool
	dirty     bool
}

// precedes reports whether e was seen before o.
func (e *Event) precedes(o *Event) bool {
	if e.journaled != o.journaled {
		return e.journaled
	}
	return e.seq < o.seq
}

func newEvent(name string, seq uint64) *Event {
	return &Event{
		name:       name,
		aliases:    []QuantityValue{{Value: name}},
		quantities: map[string][]QuantityValue{},
		seq:        seq,
		dirty:      true,
	}
}

func (e *Event) Name() string { return e.name }

// Aliases returns every name the event is known by, canonical name first.
func (e *Event) Aliases() []string {
	out := make([]string, 0, len(e.aliases))
	for _, a := range e.aliases {
		out = append(out, a.Value)
	}
	return out
}

func (e *Event) Sources() []Source { return append([]Source(nil), e.sources...) }

// Source returns the source with the given id.
func (e *Event) Source(id string) (Source, bool) {
	for _, s := range e.sources {
		if s.ID == id {
			return s, true
		}
	}
	return Source{}, false
}

// Quantity returns a copy of the values recorded for a quantity.
func (e *Event) Quantity(name string) []QuantityValue {
	return cloneValues(e.quantities[name])
}

// QuantityNames returns the names of all recorded quantities, sorted.
func (e *Event) QuantityNames() []string {
	out := make([]string, 0, len(e.quantities))
	for k := range e.quantities {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (e *Event) Photometry() []PhotometryRecord {
	return append([]PhotometryRecord(nil), e.photometry...)
}

func (e *Event) Spectra() []SpectrumRecord { return append([]SpectrumRecord(nil), e.spectra...) }

// HasData reports whether the event carries any quantity or measurement.
// Events without data are stubs.
func (e *Event) HasData() bool {
	return len(e.quantities) > 0 || len(e.photometry) > 0 || len(e.spectra) > 0
}

// Collapsed reports whether the event's data currently lives only in the journal.
func (e *Event) Collapsed() bool { return e.collapsed }

// Dirty reports whether the event changed since it was last journaled.
func (e *Event) Dirty() bool { return e.dirty }

func (e *Event) hasAlias(alias string) bool {
	for _, a := range e.aliases {
		if a.Value == alias {
			return true
		}
	}
	return false
}

func (e *Event) hasSource(id string) bool {
	_, ok := e.Source(id)
	return ok
}

func (e *Event) record() Record {
	r := Record{
		Name:       e.name,
		Aliases:    cloneValues(e.aliases),
		Sources:    append([]Source(nil), e.sources...),
		Photometry: make([]PhotometryRecord, 0, len(e.photometry)),
		Spectra:    make([]SpectrumRecord, 0, len(e.spectra)),
	}
	if len(e.quantities) > 0 {
		r.Quantities = make(map[string][]QuantityValue, len(e.quantities))
		for k, v := range e.quantities {
			r.Quantities[k] = cloneValues(v)
		}
	}
	for _, p := range e.photometry {
		p.Sources = append([]string(nil), p.Sources...)
		r.Photometry = append(r.Photometry, p)
	}
	for _, s := range e.spectra {
		s.Sources = append([]string(nil), s.Sources...)
		s.Wavelengths = append([]string(nil), s.Wavelengths...)
		s.Fluxes = append([]string(nil), s.Fluxes...)
		s.Errors = append([]string(nil), s.Errors...)
		r.Spectra = append(r.Spectra, s)
	}
	if len(r.Photometry) == 0 {
		r.Photometry = nil
	}
	if len(r.Spectra) == 0 {
		r.Spectra = nil
	}
	return r
}

// load replaces the event's data with a persisted record.
func (e *Event) load(r Record) {
	e.sources = append([]Source(nil), r.Sources...)
	e.quantities = make(map[string][]QuantityValue, len(r.Quantities))
	for k, v := range r.Quantities {
		if len(v) > 0 {
			e.quantities[k] = cloneValues(v)
		}
	}
	e.photometry = append([]PhotometryRecord(nil), r.Photometry...)
	e.spectra = append([]SpectrumRecord(nil), r.Spectra...)
	for _, a := range r.Aliases {
		if a.Value == "" {
			continue
		}
		if i := e.aliasIndex(a.Value); i >= 0 {
			e.aliases[i].Sources = UniqCDL(append(e.aliases[i].Sources, a.Sources...))
			continue
		}
		e.aliases = append(e.aliases, QuantityValue{Value: a.Value, Sources: UniqCDL(a.Sources)})
	}
	e.collapsed = false
}

func (e *Event) collapse() {
	e.sources = nil
	e.quantities = map[string][]QuantityValue{}
	e.photometry = nil
	e.spectra = nil
	e.collapsed = true
	e.dirty = false
}

func (e *Event) aliasIndex(alias string) int {
	for i, a := range e.aliases {
		if a.Value == alias {
			return i
		}
	}
	return -1
}

func cloneValues(in []QuantityValue) []QuantityValue {
	if in == nil {
		return nil
	}
	out := make([]QuantityValue, len(in))
	for i, v := range in {
		v.Sources = append([]string(nil), v.Sources...)
		out[i] = v
	}
	return out
}

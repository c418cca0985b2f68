package catalog

// Source is a bibliographic/provenance reference attached to an event.
// IDs are per-event decimal strings assigned in insertion order ("1", "2", ...).
type Source struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Bibcode   string `json:"bibcode,omitempty"`
	URL       string `json:"url,omitempty"`
	Secondary bool   `json:"secondary,omitempty"`
}

// SourceSpec describes a source to add. When Bibcode is set it is the source
// identity; otherwise Name and URL together are.
type SourceSpec struct {
	Name      string
	Bibcode   string
	URL       string
	Secondary bool
}

// QuantityValue is one distinct value of a named quantity and the ids of every
// source that reported it.
type QuantityValue struct {
	Value   string   `json:"value"`
	Sources []string `json:"sources,omitempty"`
	Derived bool     `json:"derived,omitempty"`
}

// PhotometryRecord is a single photometric observation.
type PhotometryRecord struct {
	Filename   string   `json:"filename"`
	RecordID   string   `json:"record_id"`
	Time       string   `json:"time,omitempty"`
	TimeUnit   string   `json:"u_time,omitempty"`
	Band       string   `json:"band,omitempty"`
	Telescope  string   `json:"telescope,omitempty"`
	Magnitude  string   `json:"magnitude,omitempty"`
	EMagnitude string   `json:"e_magnitude,omitempty"`
	Sources    []string `json:"sources,omitempty"`
}

// SpectrumRecord is a single spectrum.
type SpectrumRecord struct {
	Filename     string   `json:"filename"`
	RecordID     string   `json:"record_id"`
	Time         string   `json:"time,omitempty"`
	TimeUnit     string   `json:"u_time,omitempty"`
	WaveUnit     string   `json:"u_wavelengths,omitempty"`
	FluxUnit     string   `json:"u_fluxes,omitempty"`
	ErrorUnit    string   `json:"u_errors,omitempty"`
	Wavelengths  []string `json:"wavelengths,omitempty"`
	Fluxes       []string `json:"fluxes,omitempty"`
	Errors       []string `json:"errors,omitempty"`
	Instrument   string   `json:"instrument,omitempty"`
	Observer     string   `json:"observer,omitempty"`
	Reducer      string   `json:"reducer,omitempty"`
	SNR          string   `json:"snr,omitempty"`
	Deredshifted bool     `json:"deredshifted,omitempty"`
	Sources      []string `json:"sources,omitempty"`
}

// Record is the persisted shape of one event.
type Record struct {
	Name       string                     `json:"name"`
	Aliases    []QuantityValue            `json:"aliases,omitempty"`
	Sources    []Source                   `json:"sources,omitempty"`
	Quantities map[string][]QuantityValue `json:"quantities,omitempty"`
	Photometry []PhotometryRecord         `json:"photometry,omitempty"`
	Spectra    []SpectrumRecord           `json:"spectra,omitempty"`
}

// Loader rehydrates events that were written to the journal and then
// collapsed or never loaded in this process.
type Loader interface {
	LoadEvent(name string) (Record, bool, error)
	ResolveAlias(alias string) (canonical string, ok bool, err error)
}

// QuantityAlias is the quantity name routed to AddAlias.
const QuantityAlias = "alias"

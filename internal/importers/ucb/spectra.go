package ucb

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"eventcat/internal/catalog"
	"eventcat/internal/task"
	logx "eventcat/pkg/logx"
)

type specEntry struct {
	entry
	SpecID     text `json:"SpecID"`
	UTDate     text `json:"UT_Date"`
	Instrument text `json:"Instrument"`
	Reducer    text `json:"Reducer"`
	Observer   text `json:"Observer"`
	SNR        text `json:"SNR"`
}

// Spectra returns the ucb.spectra task. The catalog is checkpointed each
// time the object name changes, so at most one object's spectra are held in
// memory.
func Spectra(src Source) task.Func {
	return func(ctx context.Context, cat *catalog.Catalog, h *task.Handle) error {
		res, err := src.Cached(ctx, baseURL+"download?id=allpubspec", "UCB/allpubspec.json", h.LoadArchive)
		if err != nil {
			return err
		}
		rows, err := decodeIndex(res.Data, func(s specEntry) string { return s.ObjName.String() })
		if err != nil {
			return err
		}
		h.Log.Info("spectra index loaded", logx.Int("records", len(rows)), logx.Bool("cached", res.FromCache))

		var count, skipped int
		prev := ""
		for _, row := range rows {
			if err := ctx.Err(); err != nil {
				return err
			}
			obj := row.ObjName.String()
			if prev != "" && obj != prev {
				if err := h.Checkpoint(ctx); err != nil {
					return err
				}
			}
			prev = obj

			err := importSpectrum(ctx, cat, h, src, row)
			var mie *catalog.MissingIdentityError
			if errors.As(err, &mie) {
				skipped++
				h.Log.Warn("spectrum skipped", logx.String("object", obj), logx.Err(err))
				continue
			}
			if err != nil {
				return fmt.Errorf("%s: %w", obj, err)
			}
			count++
			if h.Exhausted(count) {
				break
			}
		}
		h.Log.Info("spectra imported", logx.Int("spectra", count), logx.Int("skipped", skipped))
		return nil
	}
}

func importSpectrum(ctx context.Context, cat *catalog.Catalog, h *task.Handle, src Source, row specEntry) error {
	name, sources, err := ingestMeta(cat, row.entry)
	if err != nil {
		return err
	}
	var mjd string
	if ut := row.UTDate.String(); ut != "" {
		if mjd, err = utDateToMJD(ut); err != nil {
			return err
		}
	}
	filename, id := row.Filename.String(), row.SpecID.String()
	if filename == "" {
		return &catalog.MissingIdentityError{Kind: "spectrum", Event: name, Field: "filename"}
	}
	if id == "" {
		return &catalog.MissingIdentityError{Kind: "spectrum", Event: name, Field: "id"}
	}

	res, err := src.Cached(ctx, baseURL+"download?id=ds:"+id, "UCB/"+filename, h.LoadArchive)
	if err != nil {
		return err
	}
	waves, fluxes, errs, err := parseSpectrum(string(res.Data))
	if err != nil {
		return fmt.Errorf("%s: %w", filename, err)
	}
	const units = "Uncalibrated"
	return cat.AddSpectrum(name, catalog.SpectrumRecord{
		Filename:     filename,
		RecordID:     id,
		Time:         mjd,
		TimeUnit:     "MJD",
		WaveUnit:     "Angstrom",
		FluxUnit:     units,
		ErrorUnit:    units,
		Wavelengths:  waves,
		Fluxes:       fluxes,
		Errors:       errs,
		Instrument:   row.Instrument.String(),
		Observer:     row.Observer.String(),
		Reducer:      row.Reducer.String(),
		SNR:          row.SNR.String(),
		Deredshifted: strings.Contains(filename, "-noz"),
		Sources:      sources,
	})
}

var mjdEpoch = time.Date(1858, time.November, 17, 0, 0, 0, 0, time.UTC)

// utDateToMJD converts "YYYYMMDD.fff" to a Modified Julian Date keeping the
// fractional digits of the day.
func utDateToMJD(ut string) (string, error) {
	if len(ut) < 8 {
		return "", fmt.Errorf("UT_Date %q: too short", ut)
	}
	year, err1 := strconv.Atoi(ut[:4])
	month, err2 := strconv.Atoi(ut[4:6])
	dayText := ut[6:]
	day, err3 := strconv.ParseFloat(dayText, 64)
	if err1 != nil || err2 != nil || err3 != nil || month < 1 || month > 12 || day < 1 || day >= 32 {
		return "", fmt.Errorf("UT_Date %q: malformed", ut)
	}
	whole := math.Floor(day)
	date := time.Date(year, time.Month(month), int(whole), 0, 0, 0, 0, time.UTC)
	mjd := float64(date.Sub(mjdEpoch)/(24*time.Hour)) + day - whole

	decimals := 0
	if dot := strings.IndexByte(dayText, '.'); dot >= 0 {
		decimals = len(dayText) - dot - 1
	}
	return strconv.FormatFloat(mjd, 'f', decimals, 64), nil
}

// parseSpectrum reads whitespace-separated "wavelength flux [error]" rows
// after any leading comment lines. The error column is kept only when the
// first row has one that is not NaN.
func parseSpectrum(body string) (waves, fluxes, errs []string, err error) {
	var rows [][]string
	started := false
	for _, line := range strings.Split(body, "\n") {
		row := strings.Fields(line)
		if len(row) == 0 {
			continue
		}
		if !started && strings.HasPrefix(row[0], "#") {
			continue
		}
		started = true
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, nil, nil, fmt.Errorf("no spectral data")
	}
	hasErrors := len(rows[0]) == 3 && rows[0][2] != "NaN"
	anyError := false
	for n, row := range rows {
		if len(row) < 2 {
			return nil, nil, nil, fmt.Errorf("row %d: want at least 2 columns", n+1)
		}
		waves = append(waves, row[0])
		fluxes = append(fluxes, row[1])
		if hasErrors {
			e := ""
			if len(row) > 2 {
				e = row[2]
			}
			if e != "" {
				anyError = true
			}
			errs = append(errs, e)
		}
	}
	if !anyError {
		errs = nil
	}
	return waves, fluxes, errs, nil
}

// Package bank loads entity collections from headered CSV or TSV
// parameter tables. The engine itself never touches files; this package
// exists so the CLI can hand it plain entity slices.
package bank

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hupe1980/banksim/model"
)

// Load reads one collection from path. The first row is a header; columns
// are matched by name (mass1, mass2, spin1z, spin2z, eccentricity,
// inclination, polarization, coa_phase, distance, tag). mass1 and mass2
// are required, everything else defaults to zero (distance to 1). Files
// ending in .tsv are tab-separated, everything else comma-separated.
func Load(path string) ([]*model.Entity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bank: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		r.Comma = '\t'
	}

	header, err := r.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("bank: %s: empty table, missing header", path)
	}
	if err != nil {
		return nil, fmt.Errorf("bank: %s: %w", path, err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"mass1", "mass2"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("bank: %s: missing required column %q", path, required)
		}
	}

	var entities []*model.Entity
	line := 1
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("bank: %s: %w", path, err)
		}
		line++

		e, err := parseRow(row, cols)
		if err != nil {
			return nil, fmt.Errorf("bank: %s line %d: %w", path, line, err)
		}
		entities = append(entities, e)
	}
	return entities, nil
}

func parseRow(row []string, cols map[string]int) (*model.Entity, error) {
	field := func(name string) (float64, bool, error) {
		i, ok := cols[name]
		if !ok || i >= len(row) || strings.TrimSpace(row[i]) == "" {
			return 0, false, nil
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
		if err != nil {
			return 0, false, fmt.Errorf("column %q: %w", name, err)
		}
		return v, true, nil
	}

	var p model.Params
	for _, bind := range []struct {
		name string
		dst  *float64
	}{
		{"mass1", &p.Mass1},
		{"mass2", &p.Mass2},
		{"spin1z", &p.Spin1z},
		{"spin2z", &p.Spin2z},
		{"eccentricity", &p.Eccentricity},
		{"inclination", &p.Inclination},
		{"polarization", &p.Polarization},
		{"coa_phase", &p.CoaPhase},
		{"distance", &p.Distance},
	} {
		v, ok, err := field(bind.name)
		if err != nil {
			return nil, err
		}
		if ok {
			*bind.dst = v
		}
	}
	if p.Distance == 0 {
		p.Distance = 1
	}

	e := &model.Entity{Params: p}
	if i, ok := cols["tag"]; ok && i < len(row) {
		e.Tag = model.Tag(strings.TrimSpace(row[i]))
	}
	return e, nil
}

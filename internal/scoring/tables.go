// Package scoring converts raw answer counts and rubric criterion scores into exam band scores.
package scoring

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// MinRawScore and MaxRawScore bound the number of correct answers on one paper.
const (
	MinRawScore = 0
	MaxRawScore = 40
)

// LowestBand is returned when no table row matches.
const LowestBand = 1.0

// TableName identifies a band conversion table.
type TableName string

// Tables shipped with the binary.
const (
	TableListening       TableName = "listening"
	TableReadingAcademic TableName = "reading-academic"
	TableReadingGeneral  TableName = "reading-general"
)

// Range maps the inclusive raw score interval [Min, Max] to Band.
type Range struct {
	Min  int     `yaml:"min"`
	Max  int     `yaml:"max"`
	Band float64 `yaml:"band"`
}

// Table is one immutable raw-score to band conversion table.
type Table struct {
	Name    TableName
	Version string
	Ranges  []Range
}

// TableSet is a versioned collection of conversion tables.
type TableSet struct {
	Version string
	tables  map[TableName]*Table
}

// Get returns the named table.
func (s *TableSet) Get(name TableName) (*Table, error) {
	t, ok := s.tables[name]
	if !ok {
		return nil, fmt.Errorf("unknown band table %q", name)
	}
	return t, nil
}

// Names returns the table names in sorted order.
func (s *TableSet) Names() []TableName {
	out := make([]TableName, 0, len(s.tables))
	for n := range s.tables {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type tablesFile struct {
	Version string                `yaml:"version"`
	Tables  map[TableName][]Range `yaml:"tables"`
}

// LoadTables decodes a YAML table document and checks that every table covers raw scores
// MinRawScore..MaxRawScore exactly once.
func LoadTables(data []byte) (*TableSet, error) {
	var f tablesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode band tables: %w", err)
	}
	if f.Version == "" {
		return nil, errors.New("band tables: version is required")
	}
	if len(f.Tables) == 0 {
		return nil, errors.New("band tables: no tables defined")
	}

	set := &TableSet{Version: f.Version, tables: make(map[TableName]*Table, len(f.Tables))}
	for name, ranges := range f.Tables {
		if err := checkCoverage(ranges); err != nil {
			return nil, fmt.Errorf("band table %q: %w", name, err)
		}
		sorted := append([]Range(nil), ranges...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Min < sorted[j].Min })
		set.tables[name] = &Table{Name: name, Version: f.Version, Ranges: sorted}
	}
	return set, nil
}

func checkCoverage(ranges []Range) error {
	var covered [MaxRawScore + 1]bool
	for _, r := range ranges {
		if r.Min > r.Max || r.Min < MinRawScore || r.Max > MaxRawScore {
			return fmt.Errorf("range [%d,%d] outside %d..%d", r.Min, r.Max, MinRawScore, MaxRawScore)
		}
		if r.Band < LowestBand || r.Band > MaxBand || RoundToHalfBand(r.Band) != r.Band {
			return fmt.Errorf("range [%d,%d] has band %v", r.Min, r.Max, r.Band)
		}
		for raw := r.Min; raw <= r.Max; raw++ {
			if covered[raw] {
				return fmt.Errorf("raw score %d covered twice", raw)
			}
			covered[raw] = true
		}
	}
	for raw, ok := range covered {
		if !ok {
			return fmt.Errorf("raw score %d not covered", raw)
		}
	}
	return nil
}

//go:embed tables.yaml
var defaultTablesYAML []byte

var (
	defaultOnce sync.Once
	defaultSet  *TableSet
	defaultErr  error
)

// DefaultTables returns the tables embedded in the binary.
func DefaultTables() (*TableSet, error) {
	defaultOnce.Do(func() {
		defaultSet, defaultErr = LoadTables(defaultTablesYAML)
	})
	return defaultSet, defaultErr
}

// MustDefaultTables is DefaultTables for callers that treat a broken embed as a programming error.
func MustDefaultTables() *TableSet {
	set, err := DefaultTables()
	if err != nil {
		panic(err)
	}
	return set
}

// Package timezone resolves coordinates to coarse (Windows-style) zone
// identifiers and converts between local wall-clock time and UTC.
//
// Coarse identifiers come from a versioned table of CLDR windowsZones data
// embedded in the binary. An optional YAML overlay file can add or replace
// entries and may be hot-reloaded with Watch.
package timezone

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/transactions/internal/metrics"
)

//go:embed windows_zones.yaml
var embeddedTable []byte

// TrollZone is the only fine-grained zone without a coarse identifier.
// Resolving it falls back to a date-window approximation.
const TrollZone = "Antarctica/Troll"

// Coarse identifiers used by the Troll fallback.
const (
	SummerFallbackZone = "W. Europe Standard Time"
	WinterFallbackZone = "UTC"
)

var (
	// ErrUnmappedZone means a fine-grained zone has no coarse identifier.
	ErrUnmappedZone = errors.New("timezone mapping not found")

	// ErrUnknownZone means a coarse identifier is not in the table.
	ErrUnknownZone = errors.New("unknown timezone id")

	// ErrInvalidCoordinate means latitude or longitude is out of range.
	ErrInvalidCoordinate = errors.New("invalid coordinate")
)

type tableFile struct {
	Version string              `yaml:"version"`
	Zones   map[string][]string `yaml:"zones"`
}

// tableData is one immutable snapshot of the mapping.
type tableData struct {
	version string
	coarse  map[string]string // fine-grained → coarse
	primary map[string]string // coarse → primary fine-grained
}

func parseTable(data []byte) (*tableData, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse zone table: %w", err)
	}
	if len(f.Zones) == 0 {
		return nil, errors.New("parse zone table: no zones defined")
	}

	d := &tableData{
		version: f.Version,
		coarse:  make(map[string]string),
		primary: make(map[string]string, len(f.Zones)),
	}
	for id, zones := range f.Zones {
		if len(zones) == 0 {
			return nil, fmt.Errorf("parse zone table: %q lists no zones", id)
		}
		d.primary[id] = zones[0]
		for _, z := range zones {
			if prev, dup := d.coarse[z]; dup {
				return nil, fmt.Errorf("parse zone table: %s listed under both %q and %q", z, prev, id)
			}
			d.coarse[z] = id
		}
	}
	return d, nil
}

// overlay returns a copy of d with o's entries applied on top.
func (d *tableData) overlay(o *tableData) *tableData {
	out := &tableData{
		version: d.version,
		coarse:  make(map[string]string, len(d.coarse)+len(o.coarse)),
		primary: make(map[string]string, len(d.primary)+len(o.primary)),
	}
	for k, v := range d.coarse {
		out.coarse[k] = v
	}
	for k, v := range d.primary {
		out.primary[k] = v
	}
	for k, v := range o.coarse {
		out.coarse[k] = v
	}
	for k, v := range o.primary {
		out.primary[k] = v
	}
	if o.version != "" {
		out.version = d.version + "+" + o.version
	}
	return out
}

// Table maps fine-grained zone names to coarse identifiers and back.
// It is safe for concurrent use.
type Table struct {
	overlayPath string

	mu   sync.RWMutex
	data *tableData

	locations sync.Map // fine-grained name → *time.Location
}

// LoadTable builds the embedded table and applies the overlay file at
// overlayPath, if one is given.
func LoadTable(overlayPath string) (*Table, error) {
	t := &Table{overlayPath: overlayPath}
	data, err := t.load()
	if err != nil {
		return nil, err
	}
	t.data = data
	return t, nil
}

// DefaultTable returns the embedded table. It panics if the embedded data is
// invalid, which only a broken build can cause.
func DefaultTable() *Table {
	t, err := LoadTable("")
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Table) load() (*tableData, error) {
	base, err := parseTable(embeddedTable)
	if err != nil {
		return nil, err
	}
	if t.overlayPath == "" {
		return base, nil
	}

	raw, err := os.ReadFile(t.overlayPath)
	if err != nil {
		return nil, fmt.Errorf("read zone overlay %s: %w", t.overlayPath, err)
	}
	extra, err := parseTable(raw)
	if err != nil {
		return nil, fmt.Errorf("zone overlay %s: %w", t.overlayPath, err)
	}
	return base.overlay(extra), nil
}

func (t *Table) snapshot() *tableData {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.data
}

// Version identifies the table data in use.
func (t *Table) Version() string {
	return t.snapshot().version
}

// Len returns the number of fine-grained zones the table knows.
func (t *Table) Len() int {
	return len(t.snapshot().coarse)
}

// CoarseName looks up the coarse identifier for a fine-grained zone.
func (t *Table) CoarseName(fine string) (string, bool) {
	id, ok := t.snapshot().coarse[fine]
	return id, ok
}

// Coarse translates a fine-grained zone name. Antarctica/Troll, which has no
// entry, resolves by date window at now; any other miss is ErrUnmappedZone.
func (t *Table) Coarse(fine string, now time.Time) (string, error) {
	if id, ok := t.CoarseName(fine); ok {
		return id, nil
	}
	if fine == TrollZone {
		metrics.ZoneFallbacks.Inc()
		return trollFallback(now), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnmappedZone, fine)
}

// trollFallback approximates Troll's offset with fixed day-of-month
// boundaries: [Mar 31 01:00, Oct 29 03:00) UTC of now's year is summer.
func trollFallback(now time.Time) string {
	now = now.UTC()
	y := now.Year()
	start := time.Date(y, time.March, 31, 1, 0, 0, 0, time.UTC)
	end := time.Date(y, time.October, 29, 3, 0, 0, 0, time.UTC)
	if !now.Before(start) && now.Before(end) {
		return SummerFallbackZone
	}
	return WinterFallbackZone
}

// Location returns the tz database location behind a coarse identifier.
func (t *Table) Location(coarse string) (*time.Location, error) {
	if coarse == "UTC" {
		return time.UTC, nil
	}
	fine, ok := t.snapshot().primary[coarse]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownZone, coarse)
	}
	if loc, ok := t.locations.Load(fine); ok {
		return loc.(*time.Location), nil
	}
	loc, err := time.LoadLocation(fine)
	if err != nil {
		return nil, fmt.Errorf("load location %s for %q: %w", fine, coarse, err)
	}
	t.locations.Store(fine, loc)
	return loc, nil
}

// Package catalog holds the reference list of tracked objects offered to users.
//
// The catalog is process-wide read-only data: it is built once at start-up
// (from the built-in list, optionally replaced by a YAML file) and never
// mutated afterwards.
package catalog

import (
	"fmt"
	"sort"

	"golang.org/x/text/cases"
)

// SatelliteRef pairs a human-readable name with its NORAD catalog number.
type SatelliteRef struct {
	Name      string `json:"name" yaml:"name"`
	CatalogID int    `json:"catalogId" yaml:"catalogId"`
}

// builtin mirrors the selection offered by the original web client.
var builtin = []SatelliteRef{
	{Name: "ISS (International Space Station)", CatalogID: 25544},
	{Name: "Hubble Space Telescope", CatalogID: 27663},
	{Name: "COSMOS 2251 (Debris)", CatalogID: 22675},
	{Name: "Iridium 33 (Debris)", CatalogID: 24946},
	{Name: "NOAA 19", CatalogID: 33591},
	{Name: "GOES 16", CatalogID: 41866},
	{Name: "Envisat", CatalogID: 27386},
	{Name: "Terra", CatalogID: 25994},
	{Name: "Sentinel-1A", CatalogID: 39634},
	{Name: "Sentinel-2A", CatalogID: 40697},
	{Name: "GPS IIR-10", CatalogID: 25933},
	{Name: "Landsat 8", CatalogID: 39084},
	{Name: "SES-10", CatalogID: 42432},
	{Name: "Aeolus", CatalogID: 43600},
}

// Catalog is an immutable set of SatelliteRefs indexed by ID and folded name.
// Safe for concurrent reads.
type Catalog struct {
	refs   []SatelliteRef
	byID   map[int]SatelliteRef
	byName map[string]SatelliteRef
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := New(builtin)
	if err != nil {
		// The built-in list is static; a failure here is a programming error.
		panic(err)
	}
	return c
}

// New builds a catalog from refs. IDs must be positive and unique, names
// must be non-empty. The input slice is copied.
func New(refs []SatelliteRef) (*Catalog, error) {
	c := &Catalog{
		refs:   make([]SatelliteRef, 0, len(refs)),
		byID:   make(map[int]SatelliteRef, len(refs)),
		byName: make(map[string]SatelliteRef, len(refs)),
	}
	fold := cases.Fold()
	for i, r := range refs {
		if r.Name == "" {
			return nil, fmt.Errorf("catalog entry %d: empty name", i)
		}
		if r.CatalogID <= 0 {
			return nil, fmt.Errorf("catalog entry %q: catalog id must be positive, got %d", r.Name, r.CatalogID)
		}
		if prev, ok := c.byID[r.CatalogID]; ok {
			return nil, fmt.Errorf("catalog entry %q: duplicate catalog id %d (already used by %q)", r.Name, r.CatalogID, prev.Name)
		}
		c.refs = append(c.refs, r)
		c.byID[r.CatalogID] = r
		c.byName[fold.String(r.Name)] = r
	}
	return c, nil
}

// All returns a copy of the catalog entries in definition order.
func (c *Catalog) All() []SatelliteRef {
	out := make([]SatelliteRef, len(c.refs))
	copy(out, c.refs)
	return out
}

// Sorted returns a copy of the entries ordered by catalog ID.
func (c *Catalog) Sorted() []SatelliteRef {
	out := c.All()
	sort.Slice(out, func(i, j int) bool { return out[i].CatalogID < out[j].CatalogID })
	return out
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	return len(c.refs)
}

// ByID looks up an entry by NORAD catalog number.
func (c *Catalog) ByID(id int) (SatelliteRef, bool) {
	r, ok := c.byID[id]
	return r, ok
}

// ByName looks up an entry by name, ignoring case.
func (c *Catalog) ByName(name string) (SatelliteRef, bool) {
	r, ok := c.byName[cases.Fold().String(name)]
	return r, ok
}

// IDs returns every catalog ID in definition order.
func (c *Catalog) IDs() []int {
	ids := make([]int, len(c.refs))
	for i, r := range c.refs {
		ids[i] = r.CatalogID
	}
	return ids
}

// NameOf returns the catalog name for id, or "" when id is not listed.
func (c *Catalog) NameOf(id int) string {
	return c.byID[id].Name
}

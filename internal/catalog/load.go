package catalog

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// fileFormat is the on-disk layout of a catalog override:
//
//	satellites:
//	  - name: ISS (International Space Station)
//	    catalogId: 25544
type fileFormat struct {
	Satellites []SatelliteRef `yaml:"satellites"`
}

// Load reads a YAML catalog from r.
func Load(r io.Reader) (*Catalog, error) {
	var f fileFormat
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}
	if len(f.Satellites) == 0 {
		return nil, fmt.Errorf("catalog has no satellites")
	}
	return New(f.Satellites)
}

// LoadFile reads a YAML catalog from path. An empty path yields the
// built-in catalog.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog file: %w", err)
	}
	defer f.Close()

	c, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

package catalog

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type entityFile struct {
	Entities  []EntityDefinition `yaml:"entities"`
	OpenTypes []OpenEntityType   `yaml:"open_types"`
}

type intentFile struct {
	Intents []IntentDefinition `yaml:"intents"`
}

// LoadCatalogFile reads the entity catalog YAML at path.
func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open entity catalog: %w", err)
	}
	defer f.Close()
	return LoadCatalog(f)
}

// LoadCatalog decodes an entity catalog. Unknown fields are rejected.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var ef entityFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&ef); err != nil {
		return nil, fmt.Errorf("decode entity catalog: %w", err)
	}
	return NewCatalog(ef.Entities, ef.OpenTypes)
}

// LoadLibraryFile reads the intent pattern library YAML at path.
func LoadLibraryFile(path string, cat *Catalog) (*Library, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open intent library: %w", err)
	}
	defer f.Close()
	return LoadLibrary(f, cat)
}

// LoadLibrary decodes an intent library. YAML sequence order is preserved and
// becomes the match order.
func LoadLibrary(r io.Reader, cat *Catalog) (*Library, error) {
	var inf intentFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&inf); err != nil {
		return nil, fmt.Errorf("decode intent library: %w", err)
	}
	return NewLibrary(inf.Intents, cat)
}

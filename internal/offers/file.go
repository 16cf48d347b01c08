package offers

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type catalogFile struct {
	Offers []Offer `yaml:"offers"`
}

// LoadFile reads a YAML offer catalog.
func LoadFile(path string) (*MemoryCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading offer catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML offer catalog document.
func Parse(data []byte) (*MemoryCatalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing offer catalog: %w", err)
	}
	return NewMemoryCatalog(f.Offers...)
}

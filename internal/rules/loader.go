package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/deckhaven/cardex/pkg/types"
)

// seedFile is the YAML shape of a rule catalog seed. Embeddings are not part
// of the seed (they are populated by the offline embedding job), so rules
// loaded this way are visible to lookups and tag ingestion immediately but
// only join similarity matching once embedded.
type seedFile struct {
	Categories   []types.RuleCategory    `yaml:"categories"`
	Rules        []types.Rule            `yaml:"rules"`
	Interactions []types.RuleInteraction `yaml:"interactions"`
}

// LoadSeedFile reads a YAML rule catalog seed and builds a validated
// snapshot from it.
func LoadSeedFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules: read seed %s: %w", path, err)
	}
	return ParseSeed(data)
}

// ParseSeed builds a validated snapshot from YAML seed bytes.
func ParseSeed(data []byte) (*Catalog, error) {
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("rules: parse seed: %w", err)
	}

	catalog, err := BuildCatalog(seed.Rules, seed.Categories, seed.Interactions)
	if err != nil {
		return nil, err
	}
	return catalog, nil
}

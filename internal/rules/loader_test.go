package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `
categories:
  - name: removal
  - name: targeted_removal
    parent: removal
  - name: card_advantage

rules:
  - id: rule:removal:destroy-target
    name: destroy_target
    template: "Destroy target {target_kind}"
    category: targeted_removal
    base_confidence: 1.0
    params:
      - name: target_kind
        pattern: 'destroy target ([a-z]+)'
        required: true
  - id: rule:card-advantage:draw-cards
    name: draw_cards
    template: "Draw {count} cards"
    category: card_advantage
    base_confidence: 0.9

interactions:
  - rule_a: rule:removal:destroy-target
    rule_b: rule:card-advantage:draw-cards
    kind: synergy
    description: removal plus refuel
    strength: 0.8
`

func TestParseSeed(t *testing.T) {
	catalog, err := ParseSeed([]byte(seedYAML))
	require.NoError(t, err)

	ruleCount, catCount, interCount := catalog.Counts()
	assert.Equal(t, 2, ruleCount)
	assert.Equal(t, 3, catCount)
	assert.Equal(t, 1, interCount)

	r, ok := catalog.RuleByName("destroy_target")
	require.True(t, ok)
	assert.Equal(t, "targeted_removal", r.Category)
	require.Len(t, r.Params, 1)
	assert.True(t, r.Params[0].Required)
	// Seeds carry no embeddings; those come from the offline embedding job.
	assert.False(t, r.HasEmbedding())
}

func TestParseSeed_InvalidYAML(t *testing.T) {
	_, err := ParseSeed([]byte("rules: [broken"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse seed")
}

func TestParseSeed_InvalidCatalog(t *testing.T) {
	_, err := ParseSeed([]byte(`
categories:
  - name: a
    parent: a
`))
	require.Error(t, err)
}

func TestLoadSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o644))

	catalog, err := LoadSeedFile(path)
	require.NoError(t, err)
	ruleCount, _, _ := catalog.Counts()
	assert.Equal(t, 2, ruleCount)

	_, err = LoadSeedFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Card represents a single trading-card record in the catalog.
// Cards are immutable from the query core's perspective: ingestion and
// embedding population happen in offline batch jobs, the core only reads.
type Card struct {
	// Core identification fields
	ID   string `json:"id"`   // Unique identifier (format: card:set:collector)
	Name string `json:"name"` // Canonical display name (variant printings may share it)

	// Descriptive text
	OracleText string `json:"oracle_text"` // Rules text body, used for mechanic matching
	TypeLine   string `json:"type_line"`   // Type line (e.g., "Creature — Zombie Wizard")

	// Structured attributes
	ManaValue     float64  `json:"mana_value"`               // Converted casting cost
	Colors        []string `json:"colors,omitempty"`         // Color attributes (white, blue, black, red, green)
	ColorIdentity []string `json:"color_identity,omitempty"` // Color identity set
	Keywords      []string `json:"keywords,omitempty"`       // Keyword abilities (lowercased)
	Tags          []string `json:"tags,omitempty"`           // Curated/derived category labels

	// Printing metadata
	SetCode         string    `json:"set_code,omitempty"`         // Set the printing belongs to
	CollectorNumber string    `json:"collector_number,omitempty"` // Collector number within the set
	ReleasedAt      time.Time `json:"released_at,omitempty"`      // Printing release date

	// Timestamps
	CreatedAt time.Time `json:"created_at"` // When the record entered the catalog
	UpdatedAt time.Time `json:"updated_at"` // Last ingestion update

	// Embedding fields. Both are nullable: a card without a body embedding
	// cannot participate in rule matching, a card without a full embedding
	// cannot participate in semantic search but is still reachable via
	// exact and structured lookup.
	FullEmbedding []float32 `json:"full_embedding,omitempty"` // Over name + type line + oracle text
	BodyEmbedding []float32 `json:"body_embedding,omitempty"` // Over oracle text only (name-invariant)
}

// Validate checks that the card has the minimum required fields.
func (c *Card) Validate() error {
	if c == nil {
		return errors.New("card is nil")
	}
	if strings.TrimSpace(c.ID) == "" {
		return errors.New("card ID is required")
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("card %s: name is required", c.ID)
	}
	if c.ManaValue < 0 {
		return fmt.Errorf("card %s: mana value must be non-negative", c.ID)
	}
	return nil
}

// HasFullEmbedding reports whether the card can participate in semantic search.
func (c *Card) HasFullEmbedding() bool {
	return len(c.FullEmbedding) > 0
}

// HasBodyEmbedding reports whether the card can participate in rule matching.
func (c *Card) HasBodyEmbedding() bool {
	return len(c.BodyEmbedding) > 0
}

// EmbeddingText returns the text the full embedding is computed over.
// The body embedding is computed over OracleText alone so that mechanic
// matching stays name-invariant.
func (c *Card) EmbeddingText() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{c.Name, c.TypeLine, c.OracleText} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n")
}

// HasColor reports whether the card's color set contains the given color
// (case-insensitive).
func (c *Card) HasColor(color string) bool {
	return containsFold(c.Colors, color)
}

// HasKeyword reports whether the card carries the given keyword ability
// (case-insensitive).
func (c *Card) HasKeyword(keyword string) bool {
	return containsFold(c.Keywords, keyword)
}

// HasTag reports whether the card carries the given category label
// (case-insensitive).
func (c *Card) HasTag(tag string) bool {
	return containsFold(c.Tags, tag)
}

func containsFold(set []string, want string) bool {
	for _, s := range set {
		if strings.EqualFold(s, want) {
			return true
		}
	}
	return false
}

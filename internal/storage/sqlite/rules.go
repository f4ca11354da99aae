package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/deckhaven/cardex/internal/storage"
	"github.com/deckhaven/cardex/pkg/types"
)

// ListRules returns every rule with its embedding when populated.
func (s *Store) ListRules(ctx context.Context) ([]types.Rule, error) {
	const querySQL = `
		SELECT id, name, template, category, params, base_confidence, embedding
		FROM rules
		ORDER BY id ASC
	`
	rows, err := s.db.QueryContext(ctx, querySQL)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ruleList []types.Rule
	for rows.Next() {
		var (
			r      types.Rule
			params string
			embBuf []byte
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Template, &r.Category, &params, &r.BaseConfidence, &embBuf); err != nil {
			return nil, fmt.Errorf("sqlite: scan rule: %w", err)
		}
		if params != "" && params != "[]" {
			if err := json.Unmarshal([]byte(params), &r.Params); err != nil {
				return nil, fmt.Errorf("sqlite: unmarshal params for rule %s: %w", r.ID, err)
			}
		}
		if r.Embedding, err = storage.DecodeVector(embBuf); err != nil {
			return nil, fmt.Errorf("sqlite: decode embedding for rule %s: %w", r.ID, err)
		}
		ruleList = append(ruleList, r)
	}
	return ruleList, rows.Err()
}

// ListCategories returns the full category taxonomy.
func (s *Store) ListCategories(ctx context.Context) ([]types.RuleCategory, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, COALESCE(parent, '') FROM rule_categories ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var categories []types.RuleCategory
	for rows.Next() {
		var c types.RuleCategory
		if err := rows.Scan(&c.Name, &c.Parent); err != nil {
			return nil, fmt.Errorf("sqlite: scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// ListInteractions returns every curated rule interaction.
func (s *Store) ListInteractions(ctx context.Context) ([]types.RuleInteraction, error) {
	const querySQL = `
		SELECT rule_a, rule_b, kind, description, strength
		FROM rule_interactions
		ORDER BY rule_a ASC, rule_b ASC
	`
	rows, err := s.db.QueryContext(ctx, querySQL)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list interactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var interactions []types.RuleInteraction
	for rows.Next() {
		var in types.RuleInteraction
		var kind string
		if err := rows.Scan(&in.RuleA, &in.RuleB, &kind, &in.Description, &in.Strength); err != nil {
			return nil, fmt.Errorf("sqlite: scan interaction: %w", err)
		}
		in.Kind = types.InteractionKind(kind)
		interactions = append(interactions, in)
	}
	return interactions, rows.Err()
}

// SeedCatalog replaces the stored rule catalog in one transaction.
func (s *Store) SeedCatalog(ctx context.Context, ruleList []types.Rule, categories []types.RuleCategory, interactions []types.RuleInteraction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: seed catalog: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		`DELETE FROM rule_interactions`,
		`DELETE FROM card_rule_bindings`,
		`DELETE FROM rules`,
		`DELETE FROM rule_categories`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: seed catalog: clear: %w", err)
		}
	}

	for _, c := range categories {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO rule_categories (name, parent) VALUES (?, NULLIF(?, ''))`,
			c.Name, c.Parent); err != nil {
			return fmt.Errorf("sqlite: seed category %s: %w", c.Name, err)
		}
	}

	for _, r := range ruleList {
		params, err := json.Marshal(r.Params)
		if err != nil {
			return fmt.Errorf("sqlite: marshal params for rule %s: %w", r.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO rules (id, name, template, category, params, base_confidence, embedding)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, r.ID, r.Name, r.Template, r.Category, string(params), r.BaseConfidence, storage.EncodeVector(r.Embedding)); err != nil {
			return fmt.Errorf("sqlite: seed rule %s: %w", r.ID, err)
		}
	}

	for _, in := range interactions {
		a, b := in.RuleA, in.RuleB
		if a > b {
			a, b = b, a
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO rule_interactions (rule_a, rule_b, kind, description, strength)
			VALUES (?, ?, ?, ?, ?)
		`, a, b, string(in.Kind), in.Description, in.Strength); err != nil {
			return fmt.Errorf("sqlite: seed interaction %s/%s: %w", a, b, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: seed catalog: commit: %w", err)
	}
	return nil
}

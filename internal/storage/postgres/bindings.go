package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/deckhaven/cardex/internal/storage"
	"github.com/deckhaven/cardex/pkg/types"
)

var _ storage.BindingStore = (*Store)(nil)

// ReplaceBindings atomically replaces all cached bindings for a card.
func (s *Store) ReplaceBindings(ctx context.Context, cardID string, bindings []types.RuleBinding) error {
	if cardID == "" {
		return fmt.Errorf("%w: card ID is required", storage.ErrInvalidArgument)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: replace bindings for %s: begin: %w", cardID, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM card_rule_bindings WHERE card_id = $1`, cardID); err != nil {
		return fmt.Errorf("postgres: replace bindings for %s: clear: %w", cardID, err)
	}

	for _, b := range bindings {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("%w: %v", storage.ErrInvalidArgument, err)
		}
		var params []byte
		if len(b.Params) > 0 {
			if params, err = json.Marshal(b.Params); err != nil {
				return fmt.Errorf("postgres: marshal binding params for %s/%s: %w", b.CardID, b.RuleID, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO card_rule_bindings (card_id, rule_id, confidence, method, params, unparameterized)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, cardID, b.RuleID, b.Confidence, string(b.Method), params, b.Unparameterized); err != nil {
			return fmt.Errorf("postgres: insert binding %s/%s: %w", cardID, b.RuleID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: replace bindings for %s: commit: %w", cardID, err)
	}
	return nil
}

// GetBindings returns the cached bindings for a card, ordered by confidence
// descending then rule ID ascending. An empty slice means nothing cached.
func (s *Store) GetBindings(ctx context.Context, cardID string) ([]types.RuleBinding, error) {
	const querySQL = `
		SELECT card_id, rule_id, confidence, method, params, unparameterized
		FROM card_rule_bindings
		WHERE card_id = $1
		ORDER BY confidence DESC, rule_id ASC
	`
	rows, err := s.db.QueryContext(ctx, querySQL, cardID)
	if err != nil {
		return nil, fmt.Errorf("postgres: get bindings for %s: %w", cardID, err)
	}
	defer func() { _ = rows.Close() }()

	var bindings []types.RuleBinding
	for rows.Next() {
		var (
			b      types.RuleBinding
			method string
			params []byte
		)
		if err := rows.Scan(&b.CardID, &b.RuleID, &b.Confidence, &method, &params, &b.Unparameterized); err != nil {
			return nil, fmt.Errorf("postgres: scan binding: %w", err)
		}
		b.Method = types.BindingMethod(method)
		if len(params) > 0 {
			if err := json.Unmarshal(params, &b.Params); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal binding params: %w", err)
			}
		}
		bindings = append(bindings, b)
	}
	return bindings, rows.Err()
}

// CountBindings returns the total number of cached bindings.
func (s *Store) CountBindings(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM card_rule_bindings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count bindings: %w", err)
	}
	return n, nil
}

package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/deckhaven/cardex/internal/storage"
	"github.com/deckhaven/cardex/pkg/types"
)

// ReplaceBindings atomically replaces all cached bindings for a card.
func (s *Store) ReplaceBindings(ctx context.Context, cardID string, bindings []types.RuleBinding) error {
	if cardID == "" {
		return fmt.Errorf("%w: card ID is required", storage.ErrInvalidArgument)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: replace bindings for %s: begin: %w", cardID, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM card_rule_bindings WHERE card_id = ?`, cardID); err != nil {
		return fmt.Errorf("sqlite: replace bindings for %s: clear: %w", cardID, err)
	}

	for _, b := range bindings {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("%w: %v", storage.ErrInvalidArgument, err)
		}
		var params any
		if len(b.Params) > 0 {
			data, err := json.Marshal(b.Params)
			if err != nil {
				return fmt.Errorf("sqlite: marshal binding params for %s/%s: %w", b.CardID, b.RuleID, err)
			}
			params = string(data)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO card_rule_bindings (card_id, rule_id, confidence, method, params, unparameterized)
			VALUES (?, ?, ?, ?, ?, ?)
		`, cardID, b.RuleID, b.Confidence, string(b.Method), params, b.Unparameterized); err != nil {
			return fmt.Errorf("sqlite: insert binding %s/%s: %w", cardID, b.RuleID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: replace bindings for %s: commit: %w", cardID, err)
	}
	return nil
}

// GetBindings returns the cached bindings for a card, ordered by confidence
// descending then rule ID ascending.
func (s *Store) GetBindings(ctx context.Context, cardID string) ([]types.RuleBinding, error) {
	const querySQL = `
		SELECT card_id, rule_id, confidence, method, params, unparameterized
		FROM card_rule_bindings
		WHERE card_id = ?
		ORDER BY confidence DESC, rule_id ASC
	`
	rows, err := s.db.QueryContext(ctx, querySQL, cardID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get bindings for %s: %w", cardID, err)
	}
	defer func() { _ = rows.Close() }()

	var bindings []types.RuleBinding
	for rows.Next() {
		var (
			b      types.RuleBinding
			method string
			params *string
		)
		if err := rows.Scan(&b.CardID, &b.RuleID, &b.Confidence, &method, &params, &b.Unparameterized); err != nil {
			return nil, fmt.Errorf("sqlite: scan binding: %w", err)
		}
		b.Method = types.BindingMethod(method)
		if params != nil && *params != "" {
			if err := json.Unmarshal([]byte(*params), &b.Params); err != nil {
				return nil, fmt.Errorf("sqlite: unmarshal binding params: %w", err)
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
		return 0, fmt.Errorf("sqlite: count bindings: %w", err)
	}
	return n, nil
}

package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckhaven/cardex/internal/storage"
	"github.com/deckhaven/cardex/pkg/types"
)

// openTestStore connects to the database named by POSTGRES_TEST_DSN and
// clears the card tables. Tests are skipped when the variable is unset so
// the suite runs without a database by default.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	s, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, err = s.db.ExecContext(context.Background(), "TRUNCATE TABLE cards CASCADE")
	require.NoError(t, err)
	return s
}

func testCard(id, name string, full, body []float32) *types.Card {
	return &types.Card{
		ID:            id,
		Name:          name,
		OracleText:    "Destroy target creature.",
		TypeLine:      "Instant",
		ManaValue:     2,
		Colors:        []string{"black"},
		Keywords:      []string{"flash"},
		Tags:          []string{"removal"},
		SetCode:       "tst",
		ReleasedAt:    time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC),
		FullEmbedding: full,
		BodyEmbedding: body,
	}
}

func TestStore_CardRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	card := testCard("card:tst:1", "Murder", []float32{1, 0, 0}, []float32{0, 1, 0})
	require.NoError(t, s.UpsertCard(ctx, card))

	got, err := s.GetCard(ctx, "card:tst:1")
	require.NoError(t, err)
	assert.Equal(t, "Murder", got.Name)
	assert.Equal(t, []string{"black"}, got.Colors)
	assert.Equal(t, []string{"removal"}, got.Tags)
	assert.Equal(t, []float32{1, 0, 0}, got.FullEmbedding)
	assert.Equal(t, []float32{0, 1, 0}, got.BodyEmbedding)

	_, err = s.GetCard(ctx, "card:tst:missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_FindByNameCaseInsensitive(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertCard(ctx, testCard("card:tst:1", "Murder", nil, nil)))
	require.NoError(t, s.UpsertCard(ctx, testCard("card:tst:2", "Murder", nil, nil)))

	cards, err := s.FindByName(ctx, "mUrDeR")
	require.NoError(t, err)
	assert.Len(t, cards, 2)

	cards, err = s.FindByName(ctx, "Lightning Bolt")
	require.NoError(t, err)
	assert.Empty(t, cards)
}

func TestStore_FindByPredicates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := testCard("card:tst:1", "Murder", nil, nil)
	b := testCard("card:tst:2", "Shock", nil, nil)
	b.Colors = []string{"red"}
	b.ManaValue = 1
	require.NoError(t, s.UpsertCard(ctx, a))
	require.NoError(t, s.UpsertCard(ctx, b))

	preds := []storage.Predicate{
		{Field: storage.FieldColor, Op: storage.OpExclude, Value: "black"},
		{Field: storage.FieldManaValue, Op: storage.OpLe, Number: 1},
	}
	cards, err := s.FindByPredicates(ctx, preds, 10)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "card:tst:2", cards[0].ID)
}

func TestStore_PredicatesFoldCase(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	card := testCard("card:tst:1", "Murder", nil, nil)
	card.Colors = []string{"Black"}
	card.Keywords = []string{"Flash"}
	card.Tags = []string{"Removal"}
	require.NoError(t, s.UpsertCard(ctx, card))

	for _, preds := range [][]storage.Predicate{
		{{Field: storage.FieldColor, Op: storage.OpInclude, Value: "black"}},
		{{Field: storage.FieldColor, Op: storage.OpOnly, Value: "black"}},
		{{Field: storage.FieldKeyword, Op: storage.OpInclude, Value: "flash"}},
		{{Field: storage.FieldTag, Op: storage.OpInclude, Value: "removal"}},
	} {
		cards, err := s.FindByPredicates(ctx, preds, 10)
		require.NoError(t, err)
		require.Len(t, cards, 1, "predicates %v", preds)
	}

	exclude := []storage.Predicate{{Field: storage.FieldColor, Op: storage.OpExclude, Value: "black"}}
	cards, err := s.FindByPredicates(ctx, exclude, 10)
	require.NoError(t, err)
	assert.Empty(t, cards)
}

func TestStore_NearestCards(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := testCard("card:tst:1", "Murder", []float32{1, 0, 0}, nil)
	b := testCard("card:tst:2", "Divination", []float32{0, 1, 0}, nil)
	require.NoError(t, s.UpsertCard(ctx, a))
	require.NoError(t, s.UpsertCard(ctx, b))

	matches, err := s.NearestCards(ctx, []float32{1, 0, 0}, storage.ColumnFull, 10, nil)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "card:tst:1", matches[0].Card.ID)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-6)
	assert.Greater(t, matches[0].Similarity, matches[1].Similarity)

	_, err = s.NearestCards(ctx, []float32{1, 0, 0}, storage.ColumnFull, 0, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidArgument)

	_, err = s.NearestCards(ctx, nil, storage.ColumnFull, 5, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidArgument)
}

func TestStore_BindingCacheRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SeedCatalog(ctx,
		[]types.Rule{{ID: "rule:removal:destroy-target", Name: "destroy_target",
			Template: "Destroy target {k}", Category: "removal", BaseConfidence: 1.0}},
		[]types.RuleCategory{{Name: "removal"}},
		nil,
	))
	require.NoError(t, s.UpsertCard(ctx, testCard("card:tst:1", "Murder", nil, nil)))

	bindings := []types.RuleBinding{{
		CardID:     "card:tst:1",
		RuleID:     "rule:removal:destroy-target",
		Confidence: 0.91,
		Method:     types.MethodSimilarity,
		Params:     map[string]string{"k": "creature"},
	}}
	require.NoError(t, s.ReplaceBindings(ctx, "card:tst:1", bindings))

	got, err := s.GetBindings(ctx, "card:tst:1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "creature", got[0].Params["k"])

	n, err := s.CountBindings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Replacement with an empty set clears the cache entry.
	require.NoError(t, s.ReplaceBindings(ctx, "card:tst:1", nil))
	got, err = s.GetBindings(ctx, "card:tst:1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_SeedAndListCatalog(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rules := []types.Rule{
		{ID: "rule:a:one", Name: "one", Template: "t1", Category: "a", BaseConfidence: 1.0,
			Embedding: []float32{1, 0}},
		{ID: "rule:a:two", Name: "two", Template: "t2", Category: "a", BaseConfidence: 0.8,
			Params: []types.ParamSpec{{Name: "n", Pattern: `(\d+)`, Required: false}}},
	}
	categories := []types.RuleCategory{{Name: "a"}}
	interactions := []types.RuleInteraction{{
		RuleA: "rule:a:two", RuleB: "rule:a:one", Kind: types.InteractionCombo, Strength: 0.6,
	}}
	require.NoError(t, s.SeedCatalog(ctx, rules, categories, interactions))

	gotRules, err := s.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, gotRules, 2)
	assert.Equal(t, []float32{1, 0}, gotRules[0].Embedding)
	require.Len(t, gotRules[1].Params, 1)

	gotInteractions, err := s.ListInteractions(ctx)
	require.NoError(t, err)
	require.Len(t, gotInteractions, 1)
	// Stored normalized with rule_a < rule_b.
	assert.Equal(t, "rule:a:one", gotInteractions[0].RuleA)
}

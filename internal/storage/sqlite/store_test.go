package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckhaven/cardex/internal/storage"
	"github.com/deckhaven/cardex/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "cardex.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedCards(t *testing.T, s *Store) {
	t.Helper()
	released := func(y int) time.Time { return time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC) }
	cards := []*types.Card{
		{
			ID: "card:lea:161", Name: "Lightning Bolt", TypeLine: "Instant",
			OracleText: "Lightning Bolt deals 3 damage to any target.",
			ManaValue:  1, Colors: []string{"red"}, ReleasedAt: released(1993),
			FullEmbedding: []float32{1, 0, 0}, BodyEmbedding: []float32{0.9, 0.1, 0},
		},
		{
			ID: "card:tmp:150", Name: "Gravedigger", TypeLine: "Creature — Zombie",
			OracleText: "When Gravedigger enters, return target creature card from your graveyard to your hand.",
			ManaValue:  4, Colors: []string{"black"}, Keywords: []string{"raise dead"},
			Tags: []string{"card_advantage"}, ReleasedAt: released(1997),
			FullEmbedding: []float32{0, 1, 0}, BodyEmbedding: []float32{0, 0.9, 0.1},
		},
		{
			ID: "card:soi:112", Name: "Diregraf Colossus", TypeLine: "Creature — Zombie Giant",
			OracleText: "Diregraf Colossus enters with a +1/+1 counter on it for each Zombie card in your graveyard.",
			ManaValue:  3, Colors: []string{"black", "green"}, ReleasedAt: released(2016),
			FullEmbedding: []float32{0, 0.8, 0.6},
		},
	}
	for _, c := range cards {
		require.NoError(t, s.UpsertCard(context.Background(), c))
	}
}

func TestStore_CardRoundTrip(t *testing.T) {
	s := openTestStore(t)
	seedCards(t, s)
	ctx := context.Background()

	got, err := s.GetCard(ctx, "card:tmp:150")
	require.NoError(t, err)
	assert.Equal(t, "Gravedigger", got.Name)
	assert.Equal(t, []string{"black"}, got.Colors)
	assert.Equal(t, []string{"raise dead"}, got.Keywords)
	assert.Equal(t, []string{"card_advantage"}, got.Tags)
	assert.Equal(t, []float32{0, 1, 0}, got.FullEmbedding)
	assert.Equal(t, []float32{0, 0.9, 0.1}, got.BodyEmbedding)

	_, err = s.GetCard(ctx, "card:missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	n, err := s.CountCards(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestStore_UpsertFoldsSetAttributes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertCard(ctx, &types.Card{
		ID: "card:m10:97", Name: "Doom Blade", TypeLine: "Instant", ManaValue: 2,
		Colors:        []string{"Black"},
		ColorIdentity: []string{"Black"},
		Keywords:      []string{" Flash"},
		Tags:          []string{"Removal"},
	}))

	got, err := s.GetCard(ctx, "card:m10:97")
	require.NoError(t, err)
	assert.Equal(t, []string{"black"}, got.Colors)
	assert.Equal(t, []string{"black"}, got.ColorIdentity)
	assert.Equal(t, []string{"flash"}, got.Keywords)
	assert.Equal(t, []string{"removal"}, got.Tags)

	include := []storage.Predicate{{Field: storage.FieldColor, Op: storage.OpInclude, Value: "black"}}
	found, err := s.FindByPredicates(ctx, include, 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "card:m10:97", found[0].ID)

	exclude := []storage.Predicate{{Field: storage.FieldColor, Op: storage.OpExclude, Value: "black"}}
	found, err = s.FindByPredicates(ctx, exclude, 10)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestStore_UpsertReplaces(t *testing.T) {
	s := openTestStore(t)
	seedCards(t, s)
	ctx := context.Background()

	updated := &types.Card{
		ID: "card:lea:161", Name: "Lightning Bolt", TypeLine: "Instant",
		ManaValue: 1, Colors: []string{"red"},
		OracleText: "Updated text.",
	}
	require.NoError(t, s.UpsertCard(ctx, updated))

	got, err := s.GetCard(ctx, "card:lea:161")
	require.NoError(t, err)
	assert.Equal(t, "Updated text.", got.OracleText)

	n, err := s.CountCards(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestStore_FindByName(t *testing.T) {
	s := openTestStore(t)
	seedCards(t, s)

	cards, err := s.FindByName(context.Background(), "LIGHTNING BOLT")
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "card:lea:161", cards[0].ID)

	cards, err = s.FindByName(context.Background(), "Black Lotus")
	require.NoError(t, err)
	assert.Empty(t, cards)
}

func TestStore_FindByPredicates(t *testing.T) {
	s := openTestStore(t)
	seedCards(t, s)

	// Zombies costing more than 2, excluding mono-black: the numeric filter
	// runs in SQL, the set-valued ones in process.
	preds := []storage.Predicate{
		{Field: storage.FieldManaValue, Op: storage.OpGt, Number: 2},
		{Field: storage.FieldType, Op: storage.OpInclude, Value: "zombie"},
	}
	cards, err := s.FindByPredicates(context.Background(), preds, 10)
	require.NoError(t, err)
	require.Len(t, cards, 2)
	// Ordered by release date descending.
	assert.Equal(t, "card:soi:112", cards[0].ID)
	assert.Equal(t, "card:tmp:150", cards[1].ID)

	preds = append(preds, storage.Predicate{Field: storage.FieldColor, Op: storage.OpExclude, Value: "green"})
	cards, err = s.FindByPredicates(context.Background(), preds, 10)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "card:tmp:150", cards[0].ID)

	_, err = s.FindByPredicates(context.Background(), preds, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidArgument)
}

func TestStore_ListCardIDs(t *testing.T) {
	s := openTestStore(t)
	seedCards(t, s)

	ids, err := s.ListCardIDs(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	// Diregraf Colossus has no body embedding.
	ids, err = s.ListCardIDs(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"card:lea:161", "card:tmp:150"}, ids)
}

func TestStore_NearestCards(t *testing.T) {
	s := openTestStore(t)
	seedCards(t, s)
	ctx := context.Background()

	matches, err := s.NearestCards(ctx, []float32{0, 1, 0}, storage.ColumnFull, 10, nil)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "card:tmp:150", matches[0].Card.ID)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-6)
	assert.Equal(t, "card:soi:112", matches[1].Card.ID)

	// k caps the result set.
	matches, err = s.NearestCards(ctx, []float32{0, 1, 0}, storage.ColumnFull, 1, nil)
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	// The body column only covers cards with a body embedding.
	matches, err = s.NearestCards(ctx, []float32{0, 1, 0}, storage.ColumnBody, 10, nil)
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	// Predicates restrict the scan.
	preds := []storage.Predicate{{Field: storage.FieldColor, Op: storage.OpInclude, Value: "black"}}
	matches, err = s.NearestCards(ctx, []float32{0, 1, 0}, storage.ColumnFull, 10, preds)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	for _, m := range matches {
		assert.Contains(t, m.Card.Colors, "black")
	}

	_, err = s.NearestCards(ctx, nil, storage.ColumnFull, 10, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidArgument)
	_, err = s.NearestCards(ctx, []float32{1}, storage.ColumnFull, 0, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidArgument)
	_, err = s.NearestCards(ctx, []float32{1}, storage.EmbeddingColumn("bogus"), 10, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidArgument)
}

func TestStore_CatalogSeedAndList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ruleList := []types.Rule{
		{ID: "rule:removal:destroy-target", Name: "destroy_target", Template: "Destroy target {k}",
			Category: "removal", BaseConfidence: 1.0, Embedding: []float32{1, 0},
			Params: []types.ParamSpec{{Name: "k", Pattern: `destroy target ([a-z]+)`, Required: true}}},
		{ID: "rule:draw:cards", Name: "draw_cards", Template: "Draw cards",
			Category: "draw", BaseConfidence: 0.9},
	}
	categories := []types.RuleCategory{{Name: "removal"}, {Name: "draw"}}
	interactions := []types.RuleInteraction{{
		RuleA: "rule:removal:destroy-target", RuleB: "rule:draw:cards",
		Kind: types.InteractionSynergy, Strength: 0.7,
	}}
	require.NoError(t, s.SeedCatalog(ctx, ruleList, categories, interactions))

	gotRules, err := s.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, gotRules, 2)
	assert.Equal(t, []float32{1, 0}, gotRules[1].Embedding)
	require.Len(t, gotRules[1].Params, 1)
	assert.Equal(t, "k", gotRules[1].Params[0].Name)

	gotCategories, err := s.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, gotCategories, 2)

	gotInteractions, err := s.ListInteractions(ctx)
	require.NoError(t, err)
	require.Len(t, gotInteractions, 1)
	assert.Equal(t, types.InteractionSynergy, gotInteractions[0].Kind)

	// Reseeding replaces, never accumulates.
	require.NoError(t, s.SeedCatalog(ctx, ruleList[:1], categories[:1], nil))
	gotRules, err = s.ListRules(ctx)
	require.NoError(t, err)
	assert.Len(t, gotRules, 1)
}

func TestStore_BindingCache(t *testing.T) {
	s := openTestStore(t)
	seedCards(t, s)
	ctx := context.Background()

	require.NoError(t, s.SeedCatalog(ctx,
		[]types.Rule{
			{ID: "rule:a", Name: "a", Template: "a", Category: "c", BaseConfidence: 1.0},
			{ID: "rule:b", Name: "b", Template: "b", Category: "c", BaseConfidence: 1.0},
		},
		[]types.RuleCategory{{Name: "c"}}, nil))

	bindings := []types.RuleBinding{
		{CardID: "card:tmp:150", RuleID: "rule:b", Confidence: 0.8, Method: types.MethodSimilarity},
		{CardID: "card:tmp:150", RuleID: "rule:a", Confidence: 0.95, Method: types.MethodSimilarity,
			Params: map[string]string{"k": "creature"}},
	}
	require.NoError(t, s.ReplaceBindings(ctx, "card:tmp:150", bindings))

	got, err := s.GetBindings(ctx, "card:tmp:150")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "rule:a", got[0].RuleID, "ordered by confidence descending")
	assert.Equal(t, "creature", got[0].Params["k"])
	assert.Nil(t, got[1].Params)

	n, err := s.CountBindings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Invalid binding rejected before any write.
	bad := []types.RuleBinding{{CardID: "card:tmp:150", RuleID: "rule:a", Confidence: 2, Method: types.MethodSimilarity}}
	err = s.ReplaceBindings(ctx, "card:tmp:150", bad)
	assert.ErrorIs(t, err, storage.ErrInvalidArgument)

	got, err = s.GetBindings(ctx, "card:tmp:150")
	require.NoError(t, err)
	assert.Len(t, got, 2, "failed replacement must not clear the cache")
}

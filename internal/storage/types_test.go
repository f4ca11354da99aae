package storage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/deckhaven/cardex/pkg/types"
)

func TestSearchOptionsNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   SearchOptions
		want SearchOptions
	}{
		{"zero value gets defaults", SearchOptions{}, SearchOptions{Limit: DefaultLimit}},
		{"negative limit", SearchOptions{Limit: -5}, SearchOptions{Limit: DefaultLimit}},
		{"limit above cap", SearchOptions{Limit: 500}, SearchOptions{Limit: MaxLimit}},
		{"negative offset", SearchOptions{Limit: 10, Offset: -1}, SearchOptions{Limit: 10}},
		{"threshold below zero", SearchOptions{Limit: 10, Threshold: -0.2}, SearchOptions{Limit: 10}},
		{"threshold above one", SearchOptions{Limit: 10, Threshold: 1.5}, SearchOptions{Limit: 10, Threshold: 1}},
		{"nan threshold", SearchOptions{Limit: 10, Threshold: math.NaN()}, SearchOptions{Limit: 10}},
		{"valid passes through", SearchOptions{Limit: 50, Offset: 20, Threshold: 0.7}, SearchOptions{Limit: 50, Offset: 20, Threshold: 0.7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in
			got.Normalize()
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPredicateMatchesCard(t *testing.T) {
	card := &types.Card{
		ID:        "card:tst:1",
		Name:      "Test Knight",
		TypeLine:  "Creature — Zombie Knight",
		ManaValue: 3,
		Colors:    []string{"black"},
		Keywords:  []string{"deathtouch"},
		Tags:      []string{"removal"},
	}

	tests := []struct {
		name string
		pred Predicate
		want bool
	}{
		{"mana gt true", Predicate{Field: FieldManaValue, Op: OpGt, Number: 2}, true},
		{"mana gt boundary", Predicate{Field: FieldManaValue, Op: OpGt, Number: 3}, false},
		{"mana ge boundary", Predicate{Field: FieldManaValue, Op: OpGe, Number: 3}, true},
		{"mana lt false", Predicate{Field: FieldManaValue, Op: OpLt, Number: 3}, false},
		{"mana le boundary", Predicate{Field: FieldManaValue, Op: OpLe, Number: 3}, true},
		{"mana eq", Predicate{Field: FieldManaValue, Op: OpEq, Number: 3}, true},
		{"color include", Predicate{Field: FieldColor, Op: OpInclude, Value: "black"}, true},
		{"color include miss", Predicate{Field: FieldColor, Op: OpInclude, Value: "red"}, false},
		{"color exclude", Predicate{Field: FieldColor, Op: OpExclude, Value: "red"}, true},
		{"color only mono", Predicate{Field: FieldColor, Op: OpOnly, Value: "black"}, true},
		{"keyword include", Predicate{Field: FieldKeyword, Op: OpInclude, Value: "deathtouch"}, true},
		{"keyword exclude miss", Predicate{Field: FieldKeyword, Op: OpExclude, Value: "deathtouch"}, false},
		{"type substring", Predicate{Field: FieldType, Op: OpInclude, Value: "zombie"}, true},
		{"type exclude", Predicate{Field: FieldType, Op: OpExclude, Value: "dragon"}, true},
		{"tag include", Predicate{Field: FieldTag, Op: OpInclude, Value: "removal"}, true},
		{"unknown field matches nothing", Predicate{Field: "rarity", Op: OpInclude, Value: "rare"}, false},
		{"set op on numeric field matches nothing", Predicate{Field: FieldManaValue, Op: OpInclude, Value: "3"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pred.MatchesCard(card))
		})
	}
}

func TestFoldSet(t *testing.T) {
	assert.Equal(t, []string{"black", "flash"}, FoldSet([]string{"Black", " Flash "}))
	assert.Equal(t, []string{"red"}, FoldSet([]string{"red", "  "}))
	assert.Nil(t, FoldSet(nil))
	assert.Nil(t, FoldSet([]string{}))
}

func TestPredicateOnlyRejectsMulticolor(t *testing.T) {
	multi := &types.Card{
		ID: "card:tst:2", Name: "Gold Knight",
		Colors: []string{"black", "white"},
	}
	pred := Predicate{Field: FieldColor, Op: OpOnly, Value: "black"}
	assert.False(t, pred.MatchesCard(multi))
}

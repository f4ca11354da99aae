package rules

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckhaven/cardex/pkg/types"
)

func validObservation() TagObservation {
	return TagObservation{
		CardID:       "card:divination",
		Tag:          "draw_cards",
		Confidence:   0.85,
		Source:       "tagger-pipeline",
		ModelVersion: "v3",
	}
}

func TestIngestor_AcceptsKnownTag(t *testing.T) {
	ing := NewIngestor(newTestProvider(t))

	result := ing.Ingest([]TagObservation{validObservation()})
	require.Len(t, result.Accepted, 1)
	assert.Empty(t, result.Quarantined)

	b := result.Accepted[0]
	assert.Equal(t, "card:divination", b.CardID)
	assert.Equal(t, "rule:card-advantage:draw-cards", b.RuleID)
	assert.Equal(t, types.MethodLLM, b.Method)
	assert.InDelta(t, 0.85, b.Confidence, 1e-9)
}

func TestIngestor_CapsConfidenceAtRuleBase(t *testing.T) {
	ing := NewIngestor(newTestProvider(t))

	obs := validObservation()
	obs.Confidence = 0.99 // draw_cards has base confidence 0.9
	result := ing.Ingest([]TagObservation{obs})
	require.Len(t, result.Accepted, 1)
	assert.InDelta(t, 0.9, result.Accepted[0].Confidence, 1e-9)
}

func TestIngestor_QuarantinesUnknownTag(t *testing.T) {
	ing := NewIngestor(newTestProvider(t))

	obs := validObservation()
	obs.Tag = "mind_control"
	result := ing.Ingest([]TagObservation{obs})
	assert.Empty(t, result.Accepted)
	require.Len(t, result.Quarantined, 1)
	assert.Equal(t, "unknown tag", result.Quarantined[0].Reason)
	assert.True(t, strings.HasPrefix(result.Quarantined[0].ID, "quarantine:"))
}

func TestIngestor_QuarantinesInvalidObservations(t *testing.T) {
	ing := NewIngestor(newTestProvider(t))

	mutations := []struct {
		name   string
		mutate func(*TagObservation)
		reason string
	}{
		{"missing card", func(o *TagObservation) { o.CardID = " " }, "missing card ID"},
		{"missing tag", func(o *TagObservation) { o.Tag = "" }, "missing tag"},
		{"negative confidence", func(o *TagObservation) { o.Confidence = -.1 }, "confidence out of [0,1]"},
		{"confidence above one", func(o *TagObservation) { o.Confidence = 1.1 }, "confidence out of [0,1]"},
		{"missing source", func(o *TagObservation) { o.Source = "" }, "missing source"},
		{"missing model version", func(o *TagObservation) { o.ModelVersion = "" }, "missing model version"},
	}

	for _, m := range mutations {
		t.Run(m.name, func(t *testing.T) {
			obs := validObservation()
			m.mutate(&obs)
			result := ing.Ingest([]TagObservation{obs})
			assert.Empty(t, result.Accepted)
			require.Len(t, result.Quarantined, 1)
			assert.Equal(t, m.reason, result.Quarantined[0].Reason)
		})
	}
}

func TestIngestor_NormalizesTagCase(t *testing.T) {
	ing := NewIngestor(newTestProvider(t))

	obs := validObservation()
	obs.Tag = "  Draw_Cards "
	result := ing.Ingest([]TagObservation{obs})
	require.Len(t, result.Accepted, 1)
}

func TestIngestor_MixedBatch(t *testing.T) {
	ing := NewIngestor(newTestProvider(t))
	ing.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	bad := validObservation()
	bad.Tag = "unknown_mechanic"
	result := ing.Ingest([]TagObservation{validObservation(), bad})
	assert.Len(t, result.Accepted, 1)
	require.Len(t, result.Quarantined, 1)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), result.Quarantined[0].At)
}

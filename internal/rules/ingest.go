package rules

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/deckhaven/cardex/pkg/types"
)

// TagObservation is one element of the external LLM tag stream: a versioned,
// confidence-scored claim that a card exhibits a named mechanic. The stream
// is an input, never ground truth; it is validated against the rule
// taxonomy before anything is merged.
type TagObservation struct {
	CardID       string  `json:"card_id"`
	Tag          string  `json:"tag"`           // Expected to match a rule name in the catalog
	Confidence   float64 `json:"confidence"`    // Claimed confidence in [0,1]
	Source       string  `json:"source"`        // Producing pipeline identifier
	ModelVersion string  `json:"model_version"` // Model version that emitted the tag
}

// QuarantinedTag records an observation that failed validation, kept for
// offline review rather than silently dropped.
type QuarantinedTag struct {
	ID          string         `json:"id"`
	Observation TagObservation `json:"observation"`
	Reason      string         `json:"reason"`
	At          time.Time      `json:"at"`
}

// IngestResult partitions an observation batch into merged bindings and
// quarantined rejects.
type IngestResult struct {
	Accepted    []types.RuleBinding
	Quarantined []QuarantinedTag
}

// Ingestor validates LLM-sourced tag observations against the catalog
// taxonomy and converts the valid ones into rule bindings.
type Ingestor struct {
	catalog *Provider
	now     func() time.Time
}

// NewIngestor creates a tag ingestor over the catalog provider.
func NewIngestor(catalog *Provider) *Ingestor {
	return &Ingestor{catalog: catalog, now: time.Now}
}

// Ingest validates each observation and produces method="llm" bindings for
// the ones naming a known rule with a usable confidence. Unknown tags and
// out-of-range confidences are quarantined, never inserted. The binding
// confidence is capped by the rule's base confidence so a derived rule can
// never yield a binding more certain than the rule itself.
func (i *Ingestor) Ingest(observations []TagObservation) IngestResult {
	catalog := i.catalog.Snapshot()

	var result IngestResult
	for _, obs := range observations {
		if reason := validateObservation(obs); reason != "" {
			result.Quarantined = append(result.Quarantined, i.quarantine(obs, reason))
			continue
		}

		rule, ok := catalog.RuleByName(strings.ToLower(strings.TrimSpace(obs.Tag)))
		if !ok {
			result.Quarantined = append(result.Quarantined, i.quarantine(obs, "unknown tag"))
			continue
		}

		confidence := obs.Confidence
		if confidence > rule.BaseConfidence {
			confidence = rule.BaseConfidence
		}

		result.Accepted = append(result.Accepted, types.RuleBinding{
			CardID:     obs.CardID,
			RuleID:     rule.ID,
			Confidence: confidence,
			Method:     types.MethodLLM,
		})
	}
	return result
}

func validateObservation(obs TagObservation) string {
	switch {
	case strings.TrimSpace(obs.CardID) == "":
		return "missing card ID"
	case strings.TrimSpace(obs.Tag) == "":
		return "missing tag"
	case obs.Confidence < 0 || obs.Confidence > 1:
		return "confidence out of [0,1]"
	case strings.TrimSpace(obs.Source) == "":
		return "missing source"
	case strings.TrimSpace(obs.ModelVersion) == "":
		return "missing model version"
	}
	return ""
}

func (i *Ingestor) quarantine(obs TagObservation, reason string) QuarantinedTag {
	return QuarantinedTag{
		ID:          "quarantine:" + uuid.NewString(),
		Observation: obs,
		Reason:      reason,
		At:          i.now(),
	}
}

// Package features normalizes raw claim submissions into the fixed feature
// set consumed by scoring.
package features

import (
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Signals is the qualitative side channel that bypasses numeric modeling and
// feeds the rule assessor directly.
type Signals struct {
	Quality          domain.DocumentQuality
	RedFlags         []string
	MissingFields    []string
	Confidence       int
	ConfidenceKnown  bool
	NarrativeVerdict domain.NarrativeVerdict
	HasExtraction    bool
}

// Extracted bundles the numeric tuple and the qualitative signals for one
// scoring pass.
type Extracted struct {
	Vector  domain.FeatureVector
	Signals Signals
}

// Extract builds the feature set from a submission and an optional document
// extraction. It never fails: absent numeric fields default to zero, absent
// qualitative fields default to unknown or empty. This keeps scoring total.
func Extract(sub domain.ClaimSubmission, doc *domain.DocumentExtraction) Extracted {
	out := Extracted{
		Vector: domain.FeatureVector{
			Age:                  float64(max(sub.ClaimantAge, 0)),
			Amount:               max(sub.Amount, 0),
			PolicyDurationMonths: float64(max(sub.PolicyDurationMonths, 0)),
		},
		Signals: Signals{
			Quality:          domain.QualityUnknown,
			NarrativeVerdict: domain.NarrativeUnknown,
		},
	}

	if doc == nil {
		return out
	}

	out.Signals.HasExtraction = true
	out.Signals.RedFlags = doc.RedFlags
	out.Signals.MissingFields = doc.MissingFields
	out.Signals.Confidence = doc.Confidence
	out.Signals.ConfidenceKnown = true

	if doc.Quality != "" {
		out.Signals.Quality = doc.Quality
	}
	if doc.NarrativeVerdict != "" {
		out.Signals.NarrativeVerdict = doc.NarrativeVerdict
	}

	// The extracted amount supersedes the declared one when present.
	if doc.ClaimAmount > 0 {
		out.Vector.Amount = doc.ClaimAmount
	}

	return out
}

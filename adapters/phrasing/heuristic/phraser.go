package heuristic

import (
	"context"
	"fmt"
	"strings"

	"fortean/domain/anomaly"
	"fortean/domain/discovery"
	"fortean/domain/stats"
	"fortean/ports"
)

// Phraser is the deterministic fallback phrasing engine. It maps each pattern
// type to a fixed test and a templated hypothesis text, so a session degraded
// by collaborator failure still produces reproducible, testable hypotheses.
type Phraser struct{}

// NewPhraser creates the fallback phraser
func NewPhraser() *Phraser {
	return &Phraser{}
}

// Phrase implements ports.Phraser without any external call
func (p *Phraser) Phrase(_ context.Context, pattern discovery.PatternCandidate) (*ports.PhrasedHypothesis, error) {
	switch pattern.Type {
	case discovery.PatternCoLocation:
		return phraseCoLocation(pattern), nil
	case discovery.PatternTemporal:
		return phraseTemporal(pattern), nil
	case discovery.PatternGeographic:
		return phraseGeographic(pattern), nil
	case discovery.PatternAttribute:
		return phraseAttribute(pattern)
	default:
		return nil, fmt.Errorf("heuristic: no phrasing rule for pattern type %q", pattern.Type)
	}
}

func phraseCoLocation(pattern discovery.PatternCandidate) *ports.PhrasedHypothesis {
	label := domainsLabel(pattern.Domains)
	resolution := 0.25
	if ev := pattern.Evidence.CoLocation; ev != nil {
		label = domainsLabel(ev.TypeCombination)
		resolution = ev.Resolution
	}
	return &ports.PhrasedHypothesis{
		Text: fmt.Sprintf(
			"%s reports co-occur within the same %g-degree grid cells more often than independent placement would produce",
			label, resolution),
		DisplayTitle:       fmt.Sprintf("Co-location of %s reports", label),
		Testable:           true,
		SuggestedTest:      stats.TestMonteCarlo,
		RequiredSampleSize: 30,
	}
}

func phraseTemporal(pattern discovery.PatternCandidate) *ports.PhrasedHypothesis {
	label := domainsLabel(pattern.Domains)
	if ev := pattern.Evidence.Temporal; ev != nil {
		label = ev.Domain.String()
	}
	return &ports.PhrasedHypothesis{
		Text: fmt.Sprintf(
			"monthly counts of %s reports depart from a uniform rate across the observed months",
			label),
		DisplayTitle:       fmt.Sprintf("Monthly clustering in %s reports", label),
		Testable:           true,
		SuggestedTest:      stats.TestChiSquare,
		RequiredSampleSize: 30,
	}
}

func phraseGeographic(pattern discovery.PatternCandidate) *ports.PhrasedHypothesis {
	label := domainsLabel(pattern.Domains)
	return &ports.PhrasedHypothesis{
		Text: fmt.Sprintf(
			"window-index scores of flagged cells exceed the remaining cells for %s reports",
			label),
		DisplayTitle:       fmt.Sprintf("Geographic concentration of %s reports", label),
		Testable:           true,
		SuggestedTest:      stats.TestMannWhitney,
		RequiredSampleSize: 30,
	}
}

func phraseAttribute(pattern discovery.PatternCandidate) (*ports.PhrasedHypothesis, error) {
	ev := pattern.Evidence.Attribute
	if ev == nil {
		return nil, fmt.Errorf("heuristic: attribute pattern carries no attribute evidence")
	}
	switch ev.Kind {
	case discovery.AttributeCategoryCovariate:
		return &ports.PhrasedHypothesis{
			Text: fmt.Sprintf(
				"mean %s differs across %s groups in %s reports",
				ev.CovariateAttr, ev.CategoryAttr, ev.Domain),
			DisplayTitle:       fmt.Sprintf("%s varies by %s in %s reports", ev.CovariateAttr, ev.CategoryAttr, ev.Domain),
			Testable:           true,
			SuggestedTest:      stats.TestWelchT,
			RequiredSampleSize: 40,
		}, nil
	case discovery.AttributeHourSkew:
		return &ports.PhrasedHypothesis{
			Text: fmt.Sprintf(
				"%s reports concentrate in a narrow hour-of-day block instead of spreading across the clock",
				ev.Domain),
			DisplayTitle:       fmt.Sprintf("Hour-of-day concentration in %s reports", ev.Domain),
			Testable:           true,
			SuggestedTest:      stats.TestBinomial,
			RequiredSampleSize: 40,
		}, nil
	default:
		return nil, fmt.Errorf("heuristic: no phrasing rule for attribute kind %q", ev.Kind)
	}
}

func domainsLabel(domains []anomaly.PhenomenonType) string {
	if len(domains) == 0 {
		return "anomaly"
	}
	names := make([]string, len(domains))
	for i, d := range domains {
		names[i] = d.String()
	}
	return strings.Join(names, " and ")
}

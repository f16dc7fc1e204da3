// Package report renders session findings as Markdown and HTML.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"fortean/domain/verdict"
	"fortean/ports"
)

// Renderer builds findings reports. Findings are presented strongest
// first regardless of input order.
type Renderer struct{}

func NewRenderer() *Renderer { return &Renderer{} }

// Markdown renders the report for one session. session may be nil when
// rendering findings gathered across sessions.
func (r *Renderer) Markdown(session *ports.SessionSummary, findings []verdict.Finding) string {
	var b strings.Builder
	b.WriteString("# Anomaly Research Findings\n\n")

	if session != nil {
		r.writeSessionHeader(&b, session)
	}

	if len(findings) == 0 {
		b.WriteString("No findings crossed both validation gates.\n")
		return b.String()
	}

	ranked := make([]verdict.Finding, len(findings))
	copy(ranked, findings)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Confidence != ranked[j].Confidence {
			return ranked[i].Confidence > ranked[j].Confidence
		}
		return ranked[i].ID.String() < ranked[j].ID.String()
	})

	for i, finding := range ranked {
		r.writeFinding(&b, i+1, finding)
	}
	return b.String()
}

// HTML renders the same report as a standalone HTML page.
func (r *Renderer) HTML(session *ports.SessionSummary, findings []verdict.Finding) []byte {
	source := []byte(r.Markdown(session, findings))

	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := p.Parse(source)

	renderer := html.NewRenderer(html.RendererOptions{
		Title: "Anomaly Research Findings",
		Flags: html.CommonFlags | html.CompletePage,
	})
	return markdown.Render(doc, renderer)
}

func (r *Renderer) writeSessionHeader(b *strings.Builder, session *ports.SessionSummary) {
	fmt.Fprintf(b, "**Session**: %s (%s)\n\n", session.ID, session.Status)
	fmt.Fprintf(b, "- Started: %s\n", session.StartedAt)
	if session.CompletedAt != nil {
		fmt.Fprintf(b, "- Completed: %s\n", *session.CompletedAt)
	}
	fmt.Fprintf(b, "- Records: %d scanned, %d candidate patterns, %d hypotheses\n",
		session.RecordCount, session.CandidateCount, session.HypothesisCount)
	fmt.Fprintf(b, "- Outcomes: %d confirmed, %d rejected, %d discarded\n",
		session.ConfirmedCount, session.RejectedCount, session.DiscardedCount)
	if session.FailureCode != "" {
		fmt.Fprintf(b, "- Failure: %s (%s)\n", session.FailureCode, session.FailureMessage)
	}
	b.WriteString("\n")
}

func (r *Renderer) writeFinding(b *strings.Builder, rank int, finding verdict.Finding) {
	fmt.Fprintf(b, "## %d. %s\n\n", rank, finding.DisplayTitle)
	fmt.Fprintf(b, "> %s\n\n", finding.HypothesisText)

	domains := make([]string, len(finding.Domains))
	for i, d := range finding.Domains {
		domains[i] = d.String()
	}
	fmt.Fprintf(b, "- **Domains**: %s\n", strings.Join(domains, ", "))
	fmt.Fprintf(b, "- **Confidence**: %.2f\n", finding.Confidence)

	if training, ok := finding.TrainingResult(); ok {
		fmt.Fprintf(b, "- **Training**: %s, p=%.4g, effect %.2f, n=%d\n",
			training.TestType, training.PValue, training.EffectSize, training.SampleSize)
	}
	if holdout, ok := finding.HoldoutResult(); ok {
		fmt.Fprintf(b, "- **Holdout**: %s, p=%.4g, effect %.2f, n=%d\n",
			holdout.TestType, holdout.PValue, holdout.EffectSize, holdout.SampleSize)
	}
	hv := finding.HoldoutValidation
	if hv.Validated {
		fmt.Fprintf(b, "- **Replication**: validated at %.0f%% holdout (train %d, holdout %d)\n",
			hv.HoldoutFraction*100, hv.TrainSize, hv.HoldoutSize)
	}

	if len(finding.ConfoundChecks) > 0 {
		b.WriteString("\n### Confound checks\n\n")
		for _, check := range finding.ConfoundChecks {
			b.WriteString(confoundLine(check))
		}
	}
	b.WriteString("\n")
}

func confoundLine(check verdict.ConfoundCheckResult) string {
	if !check.Controlled {
		if check.Notes != "" {
			return fmt.Sprintf("- %s: not controlled (%s)\n", check.ConfoundType, check.Notes)
		}
		return fmt.Sprintf("- %s: not controlled\n", check.ConfoundType)
	}
	survival := "effect survived"
	if !check.EffectSurvived {
		survival = "effect did not survive"
	}
	return fmt.Sprintf("- %s: controlled, %d/%d strata retained, %s\n",
		check.ConfoundType, check.StrataRetained, check.StrataTested, survival)
}

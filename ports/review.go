package ports

import (
	"context"

	"fortean/domain/core"
	"fortean/domain/verdict"
)

// ReviewQueue receives assembled findings for human review. Submission is
// fire-and-forget: the engine learns the queued finding id and nothing else.
// Approval decisions never flow back into the pipeline.
type ReviewQueue interface {
	Submit(ctx context.Context, finding verdict.Finding) (core.FindingID, error)
}

package orchestrator

import (
	"context"
	"strings"

	"veritas-client/backend"
	"veritas-client/llm"
	"veritas-client/utils"
)

// FeedbackInput is a user correction of a verdict
type FeedbackInput struct {
	ContentType     llm.ContentType
	Pattern         string
	Verdict         llm.Verdict
	Confidence      int
	OriginalVerdict llm.Verdict
	Example         string
}

// Teach records a learned rule. The rule goes to the primary backend first;
// when that fails the rule is kept locally only (Remote=false). Teach is
// not subject to the cooldown or the in-flight limit.
func (o *Orchestrator) Teach(ctx context.Context, in FeedbackInput) (*llm.Rule, error) {
	pattern := strings.TrimSpace(in.Pattern)
	switch {
	case pattern == "":
		return nil, rejected("pattern is empty")
	case !in.ContentType.Valid():
		return nil, rejected("unsupported content type %q", in.ContentType)
	case !in.Verdict.Valid():
		return nil, rejected("unknown verdict %q", in.Verdict)
	case in.OriginalVerdict != "" && !in.OriginalVerdict.Valid():
		return nil, rejected("unknown original verdict %q", in.OriginalVerdict)
	case in.Confidence < 0 || in.Confidence > 100:
		return nil, rejected("confidence %d out of range", in.Confidence)
	}

	rule := llm.Rule{
		ContentType:     in.ContentType,
		Pattern:         pattern,
		Verdict:         in.Verdict,
		Confidence:      in.Confidence,
		OriginalVerdict: in.OriginalVerdict,
		Example:         utils.Truncate(in.Example, 200, ""),
	}

	handle, err := o.resolver.ResolveTransport(ctx, backend.OpLearn)
	if err == nil {
		err = handle.Learn(ctx, rule)
	}
	if err != nil {
		o.logger.Warn("Rule not accepted remotely, keeping it local: %v", err)
	} else {
		rule.Remote = true
	}

	stored, err := o.store.RecordRule(context.WithoutCancel(ctx), rule)
	if err != nil {
		return nil, Classify(err)
	}
	o.logger.Info("Learned %s rule %s (remote=%t)", stored.ContentType, stored.ID, stored.Remote)
	return stored, nil
}

package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
)

// StructuredDecoder turns raw model output into a validated VerificationResult.
// BraceScanDecoder is the heuristic default; providers with enforced structured
// output may plug a strict decoder in its place.
type StructuredDecoder interface {
	Decode(raw string) (*VerificationResult, error)
}

// BraceScanDecoder parses the substring between the first '{' and the last '}'
type BraceScanDecoder struct{}

// DecodeStructured decodes raw with the default BraceScanDecoder
func DecodeStructured(raw string) (*VerificationResult, error) {
	return BraceScanDecoder{}.Decode(raw)
}

type rawDetail struct {
	Label       *string `json:"label"`
	Value       *string `json:"value"`
	Status      *string `json:"status"`
	Explanation *string `json:"explanation"`
}

type rawResult struct {
	Verdict          *string      `json:"verdict"`
	Confidence       *float64     `json:"confidence"`
	Summary          *string      `json:"summary"`
	Reasoning        *[]string    `json:"reasoning"`
	TechnicalDetails *[]rawDetail `json:"technicalDetails"`
	Sources          []Source     `json:"sources"`
}

// Decode implements StructuredDecoder
func (BraceScanDecoder) Decode(raw string) (*VerificationResult, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return nil, malformed("no JSON object in reply")
	}

	var r rawResult
	if err := json.Unmarshal([]byte(raw[start:end+1]), &r); err != nil {
		return nil, malformed("parse reply: %v", err)
	}
	return r.validate()
}

func (r *rawResult) validate() (*VerificationResult, error) {
	switch {
	case r.Verdict == nil:
		return nil, malformed("missing verdict")
	case r.Confidence == nil:
		return nil, malformed("missing confidence")
	case r.Summary == nil:
		return nil, malformed("missing summary")
	case r.Reasoning == nil:
		return nil, malformed("missing reasoning")
	case r.TechnicalDetails == nil:
		return nil, malformed("missing technicalDetails")
	}

	confidence := *r.Confidence
	if confidence != math.Trunc(confidence) || confidence < 0 || confidence > 100 {
		return nil, malformed("confidence %v is not an integer in [0,100]", confidence)
	}

	details := make([]Detail, 0, len(*r.TechnicalDetails))
	for i, d := range *r.TechnicalDetails {
		if d.Label == nil || d.Value == nil || d.Status == nil || d.Explanation == nil {
			return nil, malformed("technicalDetails[%d] is incomplete", i)
		}
		details = append(details, Detail{
			Label:       *d.Label,
			Value:       *d.Value,
			Status:      DetailStatus(*d.Status),
			Explanation: *d.Explanation,
		})
	}

	verdict := Verdict(*r.Verdict)
	if !verdict.Valid() {
		return nil, invalidEnum("verdict %q", *r.Verdict)
	}
	for i, d := range details {
		if !d.Status.Valid() {
			return nil, invalidEnum("technicalDetails[%d].status %q", i, d.Status)
		}
	}

	reasoning := *r.Reasoning
	if reasoning == nil {
		reasoning = []string{}
	}

	return &VerificationResult{
		Verdict:          verdict,
		Confidence:       int(confidence),
		Summary:          *r.Summary,
		Reasoning:        reasoning,
		TechnicalDetails: details,
		Sources:          DedupeSources(r.Sources),
	}, nil
}

// DedupeSources collapses sources sharing a URI. The first occurrence keeps its
// position and the last occurrence supplies the title. Returns nil when empty.
func DedupeSources(sources []Source) []Source {
	index := make(map[string]int, len(sources))
	var out []Source
	for _, s := range sources {
		if s.URI == "" {
			continue
		}
		if i, ok := index[s.URI]; ok {
			out[i] = s
			continue
		}
		index[s.URI] = len(out)
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

type streamFrame struct {
	Content        *string `json:"content"`
	Done           bool    `json:"done"`
	ConversationID string  `json:"conversation_id"`
	Error          string  `json:"error"`
}

// DecodeStream reads `data: {...}` event frames from r and emits the cumulative
// text after each content frame. A done frame ends the sequence with the
// conversation id. The channel is closed when the sequence ends or ctx is done;
// after ctx is done no further events are sent.
func DecodeStream(ctx context.Context, r io.Reader) <-chan StreamEvent {
	out := make(chan StreamEvent)

	go func() {
		defer close(out)

		send := func(ev StreamEvent) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var acc streamAccumulator
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}

			line := strings.TrimRight(scanner.Text(), "\r")
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" || data == "[DONE]" {
				continue
			}

			var frame streamFrame
			if err := json.Unmarshal([]byte(data), &frame); err != nil {
				// Skip malformed events
				continue
			}

			switch {
			case frame.Error != "":
				send(StreamEvent{Text: acc.text(), Err: &APIError{Provider: "stream", Message: frame.Error}})
				return
			case frame.Done:
				send(acc.done(frame.ConversationID))
				return
			case frame.Content != nil:
				if !send(acc.add(*frame.Content)) {
					return
				}
			}
		}

		if ctx.Err() != nil {
			return
		}
		if err := scanner.Err(); err != nil {
			send(StreamEvent{Text: acc.text(), Err: fmt.Errorf("stream read error: %w", err)})
			return
		}
		send(StreamEvent{Text: acc.text(), Err: malformed("stream ended without done frame")})
	}()

	return out
}

// streamAccumulator builds cumulative events out of deltas
type streamAccumulator struct {
	b strings.Builder
}

func (a *streamAccumulator) add(delta string) StreamEvent {
	a.b.WriteString(delta)
	return StreamEvent{Delta: delta, Text: a.b.String()}
}

func (a *streamAccumulator) done(conversationID string) StreamEvent {
	return StreamEvent{Text: a.b.String(), Done: true, ConversationID: conversationID}
}

func (a *streamAccumulator) text() string {
	return a.b.String()
}

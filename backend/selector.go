package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"veritas-client/llm"
	"veritas-client/utils"
)

// ErrTransportUnavailable is returned when neither the primary backend nor a
// direct transport can serve an operation
var ErrTransportUnavailable = errors.New("transport unavailable")

// Operation is the kind of call a transport is resolved for
type Operation int

const (
	OpVerify Operation = iota
	OpChat
	OpLearn
)

func (o Operation) String() string {
	switch o {
	case OpVerify:
		return "verify"
	case OpChat:
		return "chat"
	case OpLearn:
		return "learn"
	}
	return fmt.Sprintf("operation(%d)", int(o))
}

// Primary is the trusted intermediary backend. It serves every operation and
// answers a liveness probe.
type Primary interface {
	llm.Transport
	Health(ctx context.Context) error
}

// Handle is a transport bound to one operation
type Handle struct {
	llm.Transport
	Primary   bool
	Operation Operation
}

// Selector decides per call whether the primary backend or a direct
// transport serves an operation. It never caches probe results.
type Selector struct {
	primary      Primary
	direct       []llm.Transport
	probeTimeout time.Duration
	logger       *utils.Logger
}

// NewSelector creates a Selector. primary may be nil; direct transports are
// tried in order.
func NewSelector(primary Primary, direct []llm.Transport, probeTimeout time.Duration, logger *utils.Logger) *Selector {
	if probeTimeout <= 0 {
		probeTimeout = 3 * time.Second
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Selector{
		primary:      primary,
		direct:       direct,
		probeTimeout: probeTimeout,
		logger:       logger,
	}
}

// ResolveTransport probes the primary backend once and returns a handle for op.
// A probe that fails, returns non-2xx or exceeds the probe timeout falls back
// to the first direct transport able to serve op.
func (s *Selector) ResolveTransport(ctx context.Context, op Operation) (*Handle, error) {
	if s.primary != nil {
		err := s.probe(ctx)
		if err == nil {
			s.logger.Debug("Resolved %s to primary backend %s", op, s.primary.Name())
			return &Handle{Transport: s.primary, Primary: true, Operation: op}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logger.Warn("Primary backend unavailable for %s: %v", op, err)
	}

	if t := s.fallback(op); t != nil {
		s.logger.Info("Falling back to %s for %s", t.Name(), op)
		return &Handle{Transport: t, Operation: op}, nil
	}
	return nil, fmt.Errorf("%s: %w", op, ErrTransportUnavailable)
}

// PrimaryLive reports whether the primary backend answers its probe right now
func (s *Selector) PrimaryLive(ctx context.Context) bool {
	return s.primary != nil && s.probe(ctx) == nil
}

// Describe lists the configured transports, primary first
func (s *Selector) Describe() []string {
	var names []string
	if s.primary != nil {
		names = append(names, s.primary.Name()+" (primary)")
	}
	for _, t := range s.direct {
		names = append(names, t.Name())
	}
	return names
}

func (s *Selector) probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()
	return s.primary.Health(probeCtx)
}

func (s *Selector) fallback(op Operation) llm.Transport {
	switch op {
	case OpLearn:
		// Direct providers have no feedback endpoint
		return nil
	case OpChat:
		for _, t := range s.direct {
			if t.Capabilities().Streaming {
				return t
			}
		}
		return nil
	default:
		if len(s.direct) > 0 {
			return s.direct[0]
		}
		return nil
	}
}

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"veritas-client/backend"
	"veritas-client/db"
	"veritas-client/llm"
	"veritas-client/progress"
	"veritas-client/utils"
)

// Resolver picks the transport serving an operation
type Resolver interface {
	ResolveTransport(ctx context.Context, op backend.Operation) (*backend.Handle, error)
}

// Thumbnailer renders a small preview of a media attachment as a data URL
type Thumbnailer interface {
	Thumbnail(ctx context.Context, media *llm.Media) (string, error)
}

// Options configures an Orchestrator. Zero values take the defaults.
//
// Cooldown and ChatCooldown are both measured from the previous submission
// of any kind, as recorded in the Session Store.
type Options struct {
	Cooldown         time.Duration
	ChatCooldown     time.Duration
	LeaseTTL         time.Duration // bounds how long a crashed client blocks others
	MaxMediaBytes    int64
	TickInterval     time.Duration
	ThumbnailTimeout time.Duration

	Decoder     llm.StructuredDecoder
	Thumbnailer Thumbnailer
	Clock       func() time.Time
	Logger      *utils.Logger

	// OnStatus receives every state transition
	OnStatus func(Status)
	// OnProgress receives simulated progress snapshots during a verification
	OnProgress func([]progress.Step)
}

// OptionsFromConfig maps the analysis section of the config onto Options
func OptionsFromConfig(config *utils.Config, logger *utils.Logger) Options {
	a := config.Analysis
	return Options{
		Cooldown:         time.Duration(a.CooldownSeconds) * time.Second,
		ChatCooldown:     time.Duration(a.ChatCooldownSeconds) * time.Second,
		LeaseTTL:         time.Duration(a.LeaseSeconds) * time.Second,
		MaxMediaBytes:    a.MaxMediaBytes,
		TickInterval:     time.Duration(a.ProgressTickMillis) * time.Millisecond,
		ThumbnailTimeout: time.Duration(a.ThumbnailTimeoutMillis) * time.Millisecond,
		Thumbnailer:      utils.NewImageThumbnailer(a.ThumbnailMaxPixels),
		Logger:           logger,
	}
}

// VerificationOutcome is a completed verification
type VerificationOutcome struct {
	Result    *llm.VerificationResult
	History   *db.HistoryItem // nil when the history write failed
	Transport string
	Primary   bool
}

// Orchestrator owns the lifecycle of one outstanding request per session
type Orchestrator struct {
	resolver Resolver
	store    *db.Store
	opts     Options
	logger   *utils.Logger

	mu     sync.Mutex
	status Status
	lease  string

	// chatMu orders stream updates against Abort
	chatMu    sync.Mutex
	chatAbort context.CancelFunc
	aborted   bool
}

// New creates an Orchestrator
func New(resolver Resolver, store *db.Store, opts Options) *Orchestrator {
	if opts.Cooldown < 0 {
		opts.Cooldown = 0
	}
	if opts.ChatCooldown < 0 {
		opts.ChatCooldown = 0
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = 5 * time.Minute
	}
	if opts.MaxMediaBytes <= 0 {
		opts.MaxMediaBytes = 20 * 1024 * 1024
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = 1500 * time.Millisecond
	}
	if opts.ThumbnailTimeout <= 0 {
		opts.ThumbnailTimeout = 2 * time.Second
	}
	if opts.Decoder == nil {
		opts.Decoder = llm.BraceScanDecoder{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = utils.NewNopLogger()
	}
	return &Orchestrator{
		resolver: resolver,
		store:    store,
		opts:     opts,
		logger:   opts.Logger,
	}
}

// Status returns the current state
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// CooldownRemaining returns how long until op may be submitted again by
// any client sharing the store
func (o *Orchestrator) CooldownRemaining(ctx context.Context, op backend.Operation) (time.Duration, error) {
	last, err := o.store.LastSubmission(ctx)
	if err != nil || last.IsZero() {
		return 0, err
	}
	if left := o.cooldownFor(op) - o.opts.Clock().Sub(last); left > 0 {
		return left, nil
	}
	return 0, nil
}

// Submit verifies req. Rejections (empty or oversized content, cooldown, a
// request already in flight, cleared credentials) happen before any network
// call and leave the state untouched.
func (o *Orchestrator) Submit(ctx context.Context, req llm.AnalysisRequest) (*VerificationOutcome, error) {
	if err := o.validate(&req); err != nil {
		return nil, err
	}
	if err := o.checkReady(ctx); err != nil {
		return nil, err
	}
	if err := o.admit(ctx, backend.OpVerify); err != nil {
		return nil, err
	}

	log := o.logger.With("op", "verify", "type", string(req.ContentType))
	req.LearningRules = o.foldRules(ctx, req)

	sim := progress.New(
		progress.BuildSteps(req.ContentType, req.UseSearch, len(req.LearningRules) > 0),
		o.opts.TickInterval,
		o.opts.OnProgress,
	)
	simDone := make(chan struct{})
	utils.SafeGo(o.logger, "progress simulator", func() {
		defer close(simDone)
		sim.Run(ctx)
	})

	var (
		reply     *llm.RawReply
		handle    *backend.Handle
		thumbnail string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return utils.SafeCall(o.logger, "verify call", func() error {
			h, err := o.resolver.ResolveTransport(gctx, backend.OpVerify)
			if err != nil {
				return err
			}
			handle = h
			reply, err = h.Verify(gctx, req)
			return err
		})
	})
	if req.Content.IsMedia() && o.opts.Thumbnailer != nil {
		g.Go(func() error {
			thumbnail = o.thumbnail(gctx, req.Content.Media)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		sim.Stop()
		<-simDone
		log.Warn("Verification failed: %v", err)
		return nil, o.fail(ctx, backend.OpVerify, err)
	}

	result, err := o.opts.Decoder.Decode(reply.Text)
	if err != nil {
		sim.Stop()
		<-simDone
		log.Warn("Undecodable reply from %s: %v", handle.Name(), err)
		return nil, o.fail(ctx, backend.OpVerify, err)
	}
	if len(reply.Grounding) > 0 {
		result.Sources = llm.DedupeSources(append(result.Sources, reply.Grounding...))
	}

	sim.Complete()
	<-simDone

	outcome := &VerificationOutcome{Result: result, Transport: handle.Name(), Primary: handle.Primary}
	item, err := o.store.AppendHistory(context.WithoutCancel(ctx), db.HistoryItem{
		ContentType: req.ContentType,
		Preview:     preview(req.Content),
		Thumbnail:   thumbnail,
		Result:      *result,
	})
	if err != nil {
		log.Error("Failed to record history: %v", err)
	} else {
		outcome.History = item
	}

	log.Info("Verification completed via %s: %s (%d%%)", handle.Name(), result.Verdict, result.Confidence)
	o.settle(Status{Phase: Completed, Operation: backend.OpVerify, Result: result})
	return outcome, nil
}

func (o *Orchestrator) validate(req *llm.AnalysisRequest) error {
	if req.Content.Empty() {
		return rejected("content is empty")
	}
	if req.Content.Text != "" && req.Content.Media != nil {
		return rejected("content must be text or media, not both")
	}
	if m := req.Content.Media; m != nil && int64(len(m.Data)) > o.opts.MaxMediaBytes {
		return rejected("media is %s, limit is %s", utils.FormatFileSize(int64(len(m.Data))), utils.FormatFileSize(o.opts.MaxMediaBytes))
	}
	if m := req.Content.Media; m != nil && req.Content.Type() == "" {
		return rejected("unsupported media type %q", m.MimeType)
	}
	if req.ContentType == "" {
		req.ContentType = req.Content.Type()
	}
	if !req.ContentType.Valid() {
		return rejected("unsupported content type %q", req.ContentType)
	}
	if req.Content.Media != nil && req.ContentType == llm.ContentText {
		return rejected("%s media cannot be verified as text", req.Content.Media.MimeType)
	}
	return nil
}

func (o *Orchestrator) checkReady(ctx context.Context) error {
	ready, err := o.store.Ready(ctx)
	if err != nil {
		return Classify(err)
	}
	if !ready {
		return &AnalysisError{Kind: AuthExpired, Err: fmt.Errorf("re-authentication required")}
	}
	return nil
}

// admit enforces the one-in-flight invariant and the cooldown across every
// client on the store, then charges the submission and enters InFlight
func (o *Orchestrator) admit(ctx context.Context, op backend.Operation) error {
	o.mu.Lock()
	if o.status.Phase == InFlight {
		o.mu.Unlock()
		return rejected("a request is already in flight")
	}

	lease, err := o.store.Acquire(ctx, o.opts.Clock(), o.cooldownFor(op), o.opts.LeaseTTL)
	if err != nil {
		o.mu.Unlock()
		var ce *db.CooldownError
		switch {
		case errors.Is(err, db.ErrBusy):
			return rejected("a request is already in flight")
		case errors.As(err, &ce):
			return rejected("cooldown: retry in %s", ce.Remaining.Round(time.Second))
		}
		return Classify(err)
	}

	o.lease = lease
	o.status = Status{Phase: InFlight, Operation: op}
	status := o.status
	o.mu.Unlock()

	o.notify(status)
	return nil
}

func (o *Orchestrator) cooldownFor(op backend.Operation) time.Duration {
	if op == backend.OpChat {
		return o.opts.ChatCooldown
	}
	return o.opts.Cooldown
}

// foldRules copies caller-supplied rules or reads the stored ones for the content type
func (o *Orchestrator) foldRules(ctx context.Context, req llm.AnalysisRequest) []llm.Rule {
	if req.LearningRules != nil {
		rules := make([]llm.Rule, len(req.LearningRules))
		copy(rules, req.LearningRules)
		return rules
	}
	rules, err := o.store.RulesFor(ctx, req.ContentType, llm.MaxPromptRules)
	if err != nil {
		o.logger.Warn("Failed to load learned rules: %v", err)
		return nil
	}
	return rules
}

// thumbnail returns "" when generation fails or exceeds the timeout
func (o *Orchestrator) thumbnail(ctx context.Context, media *llm.Media) string {
	ctx, cancel := context.WithTimeout(ctx, o.opts.ThumbnailTimeout)
	defer cancel()

	ch := make(chan string, 1)
	utils.SafeGo(o.logger, "thumbnail", func() {
		thumb, err := o.opts.Thumbnailer.Thumbnail(ctx, media)
		if err != nil {
			o.logger.Debug("No thumbnail for %s: %v", media.Name, err)
		}
		ch <- thumb
	})

	select {
	case thumb := <-ch:
		return thumb
	case <-ctx.Done():
		o.logger.Debug("Thumbnail for %s timed out", media.Name)
		return ""
	}
}

// fail classifies err, clears the credential flag on AuthExpired and enters Failed
func (o *Orchestrator) fail(ctx context.Context, op backend.Operation, err error) *AnalysisError {
	ae := Classify(err)
	if ae.Kind == AuthExpired {
		if clearErr := o.store.ClearReady(context.WithoutCancel(ctx)); clearErr != nil {
			o.logger.Error("Failed to clear credential flag: %v", clearErr)
		}
	}
	o.settle(Status{Phase: Failed, Operation: op, Err: ae})
	return ae
}

func (o *Orchestrator) settle(status Status) {
	o.mu.Lock()
	o.status = status
	lease := o.lease
	o.lease = ""
	o.mu.Unlock()

	if err := o.store.Release(context.Background(), lease); err != nil {
		o.logger.Warn("Failed to release submission lease: %v", err)
	}
	o.notify(status)
}

func (o *Orchestrator) notify(status Status) {
	if o.opts.OnStatus != nil {
		o.opts.OnStatus(status)
	}
}

// preview is the text shown in the history list
func preview(content llm.Content) string {
	if content.Media == nil {
		return utils.Truncate(content.Text, 60, "...")
	}
	if content.Media.Name != "" {
		return utils.Truncate(content.Media.Name, 60, "...")
	}
	return fmt.Sprintf("%s upload (%s)", content.Type(), utils.FormatFileSize(content.Media.Size))
}

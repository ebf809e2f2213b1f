package progress

import (
	"context"
	"sync"
	"time"

	"veritas-client/llm"
)

// StepStatus is the display state of one analysis step
type StepStatus int

const (
	Pending StepStatus = iota
	Processing
	Completed
)

func (s StepStatus) String() string {
	switch s {
	case Pending:
		return "pending"
	case Processing:
		return "processing"
	case Completed:
		return "completed"
	}
	return "unknown"
}

// Step is one entry of the simulated progress list
type Step struct {
	Index  int
	Label  string
	Status StepStatus
}

var typeSteps = map[llm.ContentType][]string{
	llm.ContentText: {
		"Parsing text content",
		"Extracting factual claims",
		"Checking linguistic patterns",
	},
	llm.ContentImage: {
		"Decoding image data",
		"Inspecting pixel-level artifacts",
		"Checking lighting and shadow consistency",
		"Analyzing metadata",
	},
	llm.ContentAudio: {
		"Decoding audio stream",
		"Transcribing speech",
		"Analyzing voice spectrum",
		"Checking for synthesis artifacts",
	},
	llm.ContentVideo: {
		"Extracting key frames",
		"Checking temporal consistency",
		"Analyzing facial movements",
		"Checking audio-visual sync",
	},
}

// BuildSteps returns the ordered step labels for a request. The result is
// deterministic for a given input.
func BuildSteps(contentType llm.ContentType, searchEnabled, hasRules bool) []string {
	steps := []string{"Initializing analysis"}
	steps = append(steps, typeSteps[contentType]...)
	if searchEnabled {
		steps = append(steps, "Searching the web for sources", "Cross-referencing sources")
	} else {
		steps = append(steps, "Skipping external search")
	}
	if hasRules {
		steps = append(steps, "Applying learned rules")
	}
	return append(steps, "Compiling verdict")
}

// Simulator advances a step list on a fixed tick, independent of real
// progress. It never completes the last step on its own; only Complete does.
//
// onUpdate is called with a snapshot after every change while the simulator
// holds its lock, so it must not call back into the Simulator. No update is
// delivered after Stop or Complete returns.
type Simulator struct {
	mu       sync.Mutex
	steps    []Step
	current  int
	finished bool
	interval time.Duration
	onUpdate func([]Step)

	stopOnce sync.Once
	stop     chan struct{}
}

// New creates a simulator over labels with the first step processing
func New(labels []string, interval time.Duration, onUpdate func([]Step)) *Simulator {
	steps := make([]Step, len(labels))
	for i, label := range labels {
		steps[i] = Step{Index: i, Label: label, Status: Pending}
	}
	if len(steps) > 0 {
		steps[0].Status = Processing
	}
	if interval <= 0 {
		interval = 1500 * time.Millisecond
	}
	return &Simulator{
		steps:    steps,
		interval: interval,
		onUpdate: onUpdate,
		stop:     make(chan struct{}),
	}
}

// Run emits the initial snapshot and advances one step per tick until ctx
// is done or the simulator is stopped or completed.
func (s *Simulator) Run(ctx context.Context) {
	s.mu.Lock()
	if !s.finished {
		s.emit()
	}
	s.mu.Unlock()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.Advance()
		}
	}
}

// Advance moves one step from processing to completed and the next from
// pending to processing. It reports false at the last step or once finished.
func (s *Simulator) Advance() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished || s.current >= len(s.steps)-1 {
		return false
	}
	s.steps[s.current].Status = Completed
	s.current++
	s.steps[s.current].Status = Processing
	s.emit()
	return true
}

// Complete marks every step completed and stops the simulator
func (s *Simulator) Complete() {
	s.mu.Lock()
	if !s.finished {
		for i := range s.steps {
			s.steps[i].Status = Completed
		}
		s.current = len(s.steps) - 1
		s.emit()
		s.finished = true
	}
	s.mu.Unlock()
	s.stopOnce.Do(func() { close(s.stop) })
}

// Stop halts the simulator without completing the remaining steps
func (s *Simulator) Stop() {
	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()
	s.stopOnce.Do(func() { close(s.stop) })
}

// Snapshot returns a copy of the current steps
func (s *Simulator) Snapshot() []Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Simulator) snapshot() []Step {
	out := make([]Step, len(s.steps))
	copy(out, s.steps)
	return out
}

func (s *Simulator) emit() {
	if s.onUpdate != nil {
		s.onUpdate(s.snapshot())
	}
}

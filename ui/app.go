package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"veritas-client/backend"
	"veritas-client/db"
	"veritas-client/orchestrator"
	"veritas-client/progress"
	"veritas-client/utils"
)

// State is the presentation state. It is owned by App and changes only
// through apply, fed by orchestrator callbacks.
type State struct {
	Status         orchestrator.Status
	Steps          []progress.Step
	ConversationID string
}

type statusMsg orchestrator.Status

type progressMsg []progress.Step

type conversationMsg string

// App represents the main application
type App struct {
	version    string
	config     *utils.Config
	configPath string
	store      *db.Store
	logger     *utils.Logger
	selector   *backend.Selector
	orch       *orchestrator.Orchestrator
	renderer   *Renderer

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	ownsStore  bool
	ownsLogger bool
	// showProgress enables step lines on errOut
	showProgress bool

	mu    sync.Mutex
	state State
}

// Option configures an App
type Option func(*App)

// WithIO redirects the terminal streams
func WithIO(in io.Reader, out, errOut io.Writer) Option {
	return func(a *App) {
		a.in = in
		a.out = out
		a.errOut = errOut
	}
}

// WithSession injects an already opened session. Without it the config,
// logger and store are opened from --config on the first command.
func WithSession(config *utils.Config, configPath string, store *db.Store, logger *utils.Logger) Option {
	return func(a *App) {
		a.config = config
		a.configPath = configPath
		a.store = store
		a.logger = logger
	}
}

// WithSelector overrides the backend selector built from config
func WithSelector(selector *backend.Selector) Option {
	return func(a *App) {
		a.selector = selector
	}
}

// NewApp creates a new application instance
func NewApp(version string, opts ...Option) *App {
	a := &App{
		version: version,
		in:      os.Stdin,
		out:     os.Stdout,
		errOut:  os.Stderr,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run executes the command line
func (a *App) Run(ctx context.Context, args []string) error {
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.errOut)
	err := root.ExecuteContext(ctx)

	// Analysis errors were already reported with a hint
	var ae *orchestrator.AnalysisError
	if err != nil && !errors.As(err, &ae) {
		if a.renderer != nil {
			a.renderer.Error(a.errOut, err)
		} else {
			fmt.Fprintf(a.errOut, "Error: %v\n", err)
		}
	}
	return err
}

// init opens whatever was not injected: config, logger, store, selector
// and orchestrator
func (a *App) init(ctx context.Context, configPath string, verbose bool) error {
	if a.config == nil {
		path, err := utils.EnsureDefaultConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to create default config: %w", err)
		}
		config, err := utils.LoadConfig(path)
		if err != nil {
			return err
		}
		config.ApplyEnv()
		if verbose {
			config.Log.Level = "debug"
		}
		if err := config.Validate(); err != nil {
			return err
		}
		a.config = config
		a.configPath = path
	}

	if a.logger == nil {
		logPath := a.config.Log.Path
		if logPath == "" {
			logPath = utils.GetLogPath()
		}
		logger, err := utils.NewLogger(logPath, a.config.Log.Level)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		a.logger = logger
		a.ownsLogger = true
		a.logger.Info("Starting Veritas v%s, config %s", a.version, a.configPath)
	}

	if a.store == nil {
		store, err := openStore(ctx, a.config.Data)
		if err != nil {
			return err
		}
		a.store = store
		a.ownsStore = true
	}

	if a.selector == nil {
		a.selector = backend.NewFromConfig(a.config, a.logger)
	}

	if a.renderer == nil {
		a.renderer = NewRenderer(a.config.UI)
	}

	if a.orch == nil {
		opts := orchestrator.OptionsFromConfig(a.config, a.logger)
		opts.OnStatus = func(s orchestrator.Status) { a.apply(statusMsg(s)) }
		opts.OnProgress = func(steps []progress.Step) { a.apply(progressMsg(steps)) }
		a.orch = orchestrator.New(a.selector, a.store, opts)
	}
	return nil
}

// openStore opens the Redis backend when configured, SQLite otherwise
func openStore(ctx context.Context, cfg utils.DataConfig) (*db.Store, error) {
	if cfg.RedisAddr != "" {
		kv, err := db.NewRedisKV(ctx, db.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		return db.NewStore(kv), nil
	}

	database, err := db.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return db.NewStore(database), nil
}

// State returns a copy of the presentation state
func (a *App) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// reduce folds one message into the state
func (s State) reduce(msg interface{}) State {
	switch m := msg.(type) {
	case statusMsg:
		s.Status = orchestrator.Status(m)
		if s.Status.Phase == orchestrator.InFlight {
			s.Steps = nil
		}
	case progressMsg:
		s.Steps = m
	case conversationMsg:
		s.ConversationID = string(m)
	}
	return s
}

// apply folds one message into the state and renders the change
func (a *App) apply(msg interface{}) {
	a.mu.Lock()
	prev := a.state
	a.state = a.state.reduce(msg)
	next := a.state
	show := a.showProgress
	a.mu.Unlock()

	if show {
		a.renderer.Progress(a.errOut, prev.Steps, next.Steps)
	}
}

// Cleanup releases resources opened by the app
func (a *App) Cleanup() {
	if a.ownsStore && a.store != nil {
		if err := a.store.Close(); err != nil && a.logger != nil {
			a.logger.Error("Failed to close store: %v", err)
		}
	}
	if a.ownsLogger && a.logger != nil {
		a.logger.Info("Application stopped")
		a.logger.Close()
	}
}

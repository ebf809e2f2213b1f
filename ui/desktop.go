package ui

import (
	"context"
	"errors"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"veritas-client/db"
	"veritas-client/orchestrator"
	"veritas-client/progress"
	"veritas-client/utils"
)

const desktopAppID = "io.veritas.client"

// Desktop is the windowed front end. It drives its own orchestrator over the
// same store the command line uses, so cooldowns and history are shared.
type Desktop struct {
	fyneApp    fyne.App
	window     fyne.Window
	config     *utils.Config
	configPath string
	store      *db.Store
	logger     *utils.Logger
	orch       *orchestrator.Orchestrator

	// UI components
	verifyView   *VerifyView
	chatView     *ChatView
	sidebar      *Sidebar
	settingsView *SettingsView
	tabs         *container.AppTabs

	mu    sync.Mutex
	state State
}

// NewDesktop creates the main window on fyneApp
func NewDesktop(fyneApp fyne.App, config *utils.Config, configPath string, store *db.Store, resolver orchestrator.Resolver, logger *utils.Logger) *Desktop {
	window := fyneApp.NewWindow("Veritas")

	// Set window size from config
	window.Resize(fyne.NewSize(
		float32(config.UI.WindowWidth),
		float32(config.UI.WindowHeight),
	))

	d := &Desktop{
		fyneApp:    fyneApp,
		window:     window,
		config:     config,
		configPath: configPath,
		store:      store,
		logger:     logger,
	}

	opts := orchestrator.OptionsFromConfig(config, logger)
	opts.OnStatus = func(s orchestrator.Status) { d.apply(statusMsg(s)) }
	opts.OnProgress = func(steps []progress.Step) { d.apply(progressMsg(steps)) }
	d.orch = orchestrator.New(resolver, store, opts)

	// Save window size when closing
	window.SetOnClosed(func() {
		size := window.Canvas().Size()
		if size.Width <= 0 || size.Height <= 0 || configPath == "" {
			return
		}
		d.config.UI.WindowWidth = int(size.Width)
		d.config.UI.WindowHeight = int(size.Height)
		if err := utils.SaveConfig(d.configPath, d.config); err != nil {
			d.logger.Error("Failed to save window size: %v", err)
		}
	})

	d.applyThemeFromConfig()
	d.buildUI()
	return d
}

// buildUI lays out the sidebar next to the verify and chat tabs
func (d *Desktop) buildUI() {
	d.verifyView = NewVerifyView(d)
	d.chatView = NewChatView(d)
	d.sidebar = NewSidebar(d)
	d.settingsView = NewSettingsView(d)

	d.tabs = container.NewAppTabs(
		container.NewTabItem("Verify", d.verifyView.Build()),
		container.NewTabItem("Chat", d.chatView.Build()),
	)

	settingsButton := widget.NewButton("Settings", func() {
		d.showSettings()
	})
	sidebarContainer := container.NewBorder(nil, settingsButton, nil, nil, d.sidebar)

	split := container.NewHSplit(sidebarContainer, d.tabs)
	split.SetOffset(0.25)
	d.window.SetContent(split)
}

// ShowAndRun shows the window and blocks until it is closed
func (d *Desktop) ShowAndRun() {
	d.logger.Info("Desktop window started")
	d.window.ShowAndRun()
}

// State returns a copy of the presentation state
func (d *Desktop) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// apply folds one message into the state and refreshes the views on the UI thread
func (d *Desktop) apply(msg interface{}) {
	d.mu.Lock()
	d.state = d.state.reduce(msg)
	state := d.state
	d.mu.Unlock()

	fyne.Do(func() {
		d.verifyView.update(state)
		d.chatView.update(state)
	})
}

// showChat switches to the chat tab with conversation id loaded
func (d *Desktop) showChat(id string) {
	d.chatView.LoadConversation(context.Background(), id)
	d.tabs.SelectIndex(1)
}

// showSettings opens the settings window
func (d *Desktop) showSettings() {
	w := d.fyneApp.NewWindow("Settings")
	d.settingsView.SetWindow(w)
	w.SetContent(d.settingsView.Build())
	w.Resize(fyne.NewSize(760, 520))
	w.Show()
}

// showError reports err in a dialog, with a hint for analysis failures
func (d *Desktop) showError(err error) {
	var ae *orchestrator.AnalysisError
	if errors.As(err, &ae) {
		if hint := hintFor(ae.Kind, "Open Settings and re-authenticate."); hint != "" {
			dialog.ShowInformation("Request failed", err.Error()+"\n\n"+hint, d.window)
			return
		}
	}
	dialog.ShowError(err, d.window)
}

// applyThemeFromConfig installs the configured theme and font size
func (d *Desktop) applyThemeFromConfig() {
	fontSize := d.config.UI.FontSize
	if fontSize <= 0 {
		fontSize = 14
	}
	d.fyneApp.Settings().SetTheme(newCustomTheme(fontSize, d.config.UI.Theme != "Light"))
}

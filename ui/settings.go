package ui

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"veritas-client/utils"
)

// SettingsView edits the configuration file and the credential state
type SettingsView struct {
	d                *Desktop
	settingsWindow   fyne.Window
	providersList    *widget.List
	providerNames    []string // sorted, to keep the list order stable
	selectedProvider string

	// Provider form
	apiKeyEntry      *widget.Entry
	baseURLEntry     *widget.Entry
	modelEntry       *widget.Entry
	enabledCheck     *widget.Check
	temperatureEntry *widget.Entry
	editContainer    *fyne.Container

	// Backend form
	backendURLEntry *widget.Entry
	fallbacksEntry  *widget.Entry
	credentialLabel *widget.Label

	// Appearance
	themeSelect    *widget.Select
	fontSizeSlider *widget.Slider
	fontSizeLabel  *widget.Label

	statsView *UsageStatsView
}

// NewSettingsView creates the settings view of d
func NewSettingsView(d *Desktop) *SettingsView {
	return &SettingsView{d: d}
}

// SetWindow sets the settings window reference
func (sv *SettingsView) SetWindow(window fyne.Window) {
	sv.settingsWindow = window
}

// Build builds the settings view UI
func (sv *SettingsView) Build() fyne.CanvasObject {
	sv.statsView = NewUsageStatsView(sv.d)
	return container.NewAppTabs(
		container.NewTabItem("Providers", sv.buildProvidersTab()),
		container.NewTabItem("Backend", sv.buildBackendTab()),
		container.NewTabItem("Appearance", sv.buildAppearanceTab()),
		container.NewTabItem("Statistics", sv.statsView.Build()),
	)
}

func (sv *SettingsView) buildProvidersTab() fyne.CanvasObject {
	sv.updateProviderNamesList()

	sv.providersList = widget.NewList(
		func() int {
			return len(sv.providerNames)
		},
		func() fyne.CanvasObject {
			return container.NewHBox(widget.NewLabel("Provider"), widget.NewLabel(""))
		},
		func(id widget.ListItemID, obj fyne.CanvasObject) {
			if id >= len(sv.providerNames) {
				return
			}
			name := sv.providerNames[id]
			config := sv.d.config.LLMProviders[name]
			box := obj.(*fyne.Container)
			box.Objects[0].(*widget.Label).SetText(name)
			if config.Enabled {
				box.Objects[1].(*widget.Label).SetText("[Enabled]")
			} else {
				box.Objects[1].(*widget.Label).SetText("[Disabled]")
			}
		},
	)
	sv.providersList.OnSelected = func(id widget.ListItemID) {
		if id < len(sv.providerNames) {
			sv.loadProviderConfig(sv.providerNames[id])
		}
	}

	sv.apiKeyEntry = widget.NewPasswordEntry()
	sv.baseURLEntry = widget.NewEntry()
	sv.modelEntry = widget.NewEntry()
	sv.temperatureEntry = widget.NewEntry()
	sv.temperatureEntry.SetPlaceHolder("provider default")
	sv.enabledCheck = widget.NewCheck("Use as fallback", nil)

	saveButton := widget.NewButton("Save", func() {
		if err := sv.saveProviderConfig(context.Background()); err != nil {
			sv.showError(err)
			return
		}
		sv.showSuccess("Saved. Provider changes apply after a restart.")
	})
	saveButton.Importance = widget.HighImportance

	form := widget.NewForm(
		widget.NewFormItem("API key", sv.apiKeyEntry),
		widget.NewFormItem("Base URL", sv.baseURLEntry),
		widget.NewFormItem("Model", sv.modelEntry),
		widget.NewFormItem("Temperature", sv.temperatureEntry),
		widget.NewFormItem("", sv.enabledCheck),
	)
	sv.editContainer = container.NewVBox(form, saveButton)
	sv.editContainer.Hide()

	leftPanel := container.NewBorder(widget.NewLabel("Direct providers"), nil, nil, nil, sv.providersList)
	split := container.NewHSplit(leftPanel, container.NewVScroll(sv.editContainer))
	split.SetOffset(0.3)
	return split
}

// loadProviderConfig fills the form from the provider named name
func (sv *SettingsView) loadProviderConfig(name string) {
	config, ok := sv.d.config.LLMProviders[name]
	if !ok {
		return
	}
	sv.selectedProvider = name
	sv.apiKeyEntry.SetText(config.APIKey)
	sv.baseURLEntry.SetText(config.BaseURL)
	sv.modelEntry.SetText(config.DefaultModel)
	sv.enabledCheck.SetChecked(config.Enabled)
	if config.Temperature > 0 {
		sv.temperatureEntry.SetText(strconv.FormatFloat(config.Temperature, 'f', 2, 64))
	} else {
		sv.temperatureEntry.SetText("")
	}
	sv.editContainer.Show()
}

// saveProviderConfig writes the form back to the configuration file. A
// changed API key also marks the credentials usable again.
func (sv *SettingsView) saveProviderConfig(ctx context.Context) error {
	if sv.selectedProvider == "" {
		return errors.New("no provider selected")
	}
	config := sv.d.config.LLMProviders[sv.selectedProvider]
	keyChanged := config.APIKey != sv.apiKeyEntry.Text

	config.APIKey = strings.TrimSpace(sv.apiKeyEntry.Text)
	config.BaseURL = strings.TrimSpace(sv.baseURLEntry.Text)
	config.DefaultModel = strings.TrimSpace(sv.modelEntry.Text)
	config.Enabled = sv.enabledCheck.Checked
	config.Temperature = 0
	if text := strings.TrimSpace(sv.temperatureEntry.Text); text != "" {
		temp, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return fmt.Errorf("temperature must be a number: %w", err)
		}
		config.Temperature = temp
	}
	sv.d.config.LLMProviders[sv.selectedProvider] = config

	if err := sv.saveConfig(); err != nil {
		return err
	}
	sv.d.logger.Info("Provider %s configuration saved", sv.selectedProvider)
	if sv.providersList != nil {
		sv.providersList.Refresh()
	}

	if keyChanged {
		return sv.reauthenticate(ctx)
	}
	return nil
}

func (sv *SettingsView) buildBackendTab() fyne.CanvasObject {
	sv.backendURLEntry = widget.NewEntry()
	sv.backendURLEntry.SetText(sv.d.config.Backend.URL)
	sv.fallbacksEntry = widget.NewEntry()
	sv.fallbacksEntry.SetText(strings.Join(sv.d.config.Backend.Fallbacks, ", "))
	sv.fallbacksEntry.SetPlaceHolder("gemini, openai")

	saveButton := widget.NewButton("Save", func() {
		if err := sv.saveBackendConfig(); err != nil {
			sv.showError(err)
			return
		}
		sv.showSuccess("Saved. Backend changes apply after a restart.")
	})

	sv.credentialLabel = widget.NewLabel("")
	reauthButton := widget.NewButton("Re-authenticate", func() {
		if err := sv.reauthenticate(context.Background()); err != nil {
			sv.showError(err)
		}
	})
	sv.refreshCredentialStatus(context.Background())

	form := widget.NewForm(
		widget.NewFormItem("Backend URL", sv.backendURLEntry),
		widget.NewFormItem("Fallback order", sv.fallbacksEntry),
	)
	return container.NewVScroll(container.NewVBox(
		form,
		saveButton,
		widget.NewSeparator(),
		widget.NewLabel("Credentials"),
		sv.credentialLabel,
		reauthButton,
	))
}

func (sv *SettingsView) saveBackendConfig() error {
	sv.d.config.Backend.URL = strings.TrimSpace(sv.backendURLEntry.Text)
	var fallbacks []string
	for _, name := range strings.Split(sv.fallbacksEntry.Text, ",") {
		if name = strings.TrimSpace(name); name != "" {
			fallbacks = append(fallbacks, name)
		}
	}
	sv.d.config.Backend.Fallbacks = fallbacks

	if err := sv.d.config.Validate(); err != nil {
		return err
	}
	return sv.saveConfig()
}

// reauthenticate marks the stored credentials usable again
func (sv *SettingsView) reauthenticate(ctx context.Context) error {
	if err := sv.d.store.MarkReady(ctx); err != nil {
		return err
	}
	sv.d.logger.Info("Credentials marked ready")
	sv.refreshCredentialStatus(ctx)
	return nil
}

func (sv *SettingsView) refreshCredentialStatus(ctx context.Context) {
	if sv.credentialLabel == nil {
		return
	}
	ready, err := sv.d.store.Ready(ctx)
	switch {
	case err != nil:
		sv.d.logger.Warn("Failed to read credential state: %v", err)
		sv.credentialLabel.SetText("unknown")
	case ready:
		sv.credentialLabel.SetText("ready")
	default:
		sv.credentialLabel.SetText("re-authentication required")
	}
}

func (sv *SettingsView) buildAppearanceTab() fyne.CanvasObject {
	sv.themeSelect = widget.NewSelect([]string{"Light", "Dark"}, nil)
	sv.themeSelect.SetSelected(sv.d.config.UI.Theme)
	sv.themeSelect.OnChanged = func(value string) {
		sv.applyTheme(value)
	}

	fontSize := sv.d.config.UI.FontSize
	sv.fontSizeLabel = widget.NewLabel(fmt.Sprintf("Font Size: %d", fontSize))
	sv.fontSizeSlider = widget.NewSlider(10, 24)
	sv.fontSizeSlider.Step = 1
	sv.fontSizeSlider.Value = float64(fontSize)
	sv.fontSizeSlider.OnChanged = func(value float64) {
		sv.setFontSize(int(value))
	}

	form := widget.NewForm(
		widget.NewFormItem("Theme", sv.themeSelect),
		widget.NewFormItem("", container.NewVBox(sv.fontSizeLabel, sv.fontSizeSlider)),
	)
	return container.NewVScroll(form)
}

// applyTheme switches between the light and dark theme
func (sv *SettingsView) applyTheme(theme string) {
	sv.d.config.UI.Theme = theme
	sv.d.applyThemeFromConfig()
	if err := sv.saveConfig(); err != nil {
		sv.d.logger.Error("Failed to save theme setting: %v", err)
		return
	}
	sv.d.logger.Info("Theme changed to: %s", theme)
}

func (sv *SettingsView) setFontSize(fontSize int) {
	sv.fontSizeLabel.SetText(fmt.Sprintf("Font Size: %d", fontSize))
	sv.d.config.UI.FontSize = fontSize
	sv.d.applyThemeFromConfig()
	if err := sv.saveConfig(); err != nil {
		sv.d.logger.Error("Failed to save font size: %v", err)
	}
}

func (sv *SettingsView) saveConfig() error {
	if sv.d.configPath == "" {
		return nil
	}
	if err := utils.SaveConfig(sv.d.configPath, sv.d.config); err != nil {
		sv.d.logger.Error("Failed to save config: %v", err)
		return err
	}
	return nil
}

func (sv *SettingsView) updateProviderNamesList() {
	sv.providerNames = make([]string, 0, len(sv.d.config.LLMProviders))
	for name := range sv.d.config.LLMProviders {
		sv.providerNames = append(sv.providerNames, name)
	}
	sort.Strings(sv.providerNames)
}

func (sv *SettingsView) parentWindow() fyne.Window {
	if sv.settingsWindow != nil {
		return sv.settingsWindow
	}
	return sv.d.window
}

func (sv *SettingsView) showError(err error) {
	dialog.ShowError(err, sv.parentWindow())
}

func (sv *SettingsView) showSuccess(message string) {
	dialog.ShowInformation("Settings", message, sv.parentWindow())
}

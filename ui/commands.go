package ui

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"fyne.io/fyne/v2/app"
	"github.com/spf13/cobra"

	"veritas-client/llm"
	"veritas-client/orchestrator"
	"veritas-client/utils"
)

// rootCommand builds the command tree. Every command except version runs
// after init has opened the session.
func (a *App) rootCommand() *cobra.Command {
	var (
		configPath string
		verbose    bool
	)

	root := &cobra.Command{
		Use:   "veritas",
		Short: "Veritas - content authenticity verification client",
		Long: `Veritas submits text, images, audio and video to a verification model
and reports a verdict with its reasoning. It also keeps a chat assistant,
a local history of verifications and the corrections you teach it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.init(cmd.Context(), configPath, verbose)
		},
	}
	root.RunE = func(cmd *cobra.Command, args []string) error {
		return a.runDesktop()
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file (JSON or YAML)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		a.verifyCommand(),
		a.chatCommand(),
		a.historyCommand(),
		a.conversationsCommand(),
		a.rulesCommand(),
		a.learnCommand(),
		a.authCommand(),
		a.exportCommand(),
		a.importCommand(),
		a.statsCommand(),
		a.statusCommand(),
		a.versionCommand(),
		a.guiCommand(),
	)
	return root
}

func (a *App) verifyCommand() *cobra.Command {
	var (
		text      string
		useSearch bool
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "verify [file]",
		Short: "Verify text or a media file",
		Long: `Verify a claim passed with --text, or a file. Text files are fact-checked,
images, audio and video are analyzed for manipulation.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var content llm.Content
			switch {
			case len(args) == 1 && text != "":
				return errors.New("pass either --text or a file, not both")
			case len(args) == 1:
				loaded, err := utils.NewMediaLoader(a.config.Analysis.MaxMediaBytes).Load(args[0])
				if err != nil {
					return err
				}
				content = loaded
			default:
				content = llm.TextContent(text)
			}

			a.mu.Lock()
			a.showProgress = !asJSON
			a.mu.Unlock()

			out, err := a.orch.Submit(cmd.Context(), llm.AnalysisRequest{Content: content, UseSearch: useSearch})
			if err != nil {
				return a.report(cmd, err)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out.Result)
			}
			a.renderer.Verdict(cmd.OutOrStdout(), out.Result, out.Transport)
			return nil
		},
	}
	cmd.Flags().StringVarP(&text, "text", "t", "", "text to fact-check")
	cmd.Flags().BoolVarP(&useSearch, "search", "s", false, "ground the analysis with web search")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

// report renders an orchestrator error with a hint matching its kind
func (a *App) report(cmd *cobra.Command, err error) error {
	var ae *orchestrator.AnalysisError
	if !errors.As(err, &ae) {
		return err
	}
	switch ae.Kind {
	case orchestrator.InputRejected, orchestrator.Aborted:
		fmt.Fprintln(cmd.ErrOrStderr(), mutedStyle.Render(err.Error()))
	default:
		a.renderer.Error(cmd.ErrOrStderr(), err)
		fmt.Fprintln(cmd.ErrOrStderr(), hintFor(ae.Kind, "Run `veritas auth` to re-authenticate."))
	}
	return err
}

// hintFor tells the user what to do about a failure of kind. reauth is the
// re-authentication instruction of the front end asking.
func hintFor(kind orchestrator.Kind, reauth string) string {
	switch kind {
	case orchestrator.AuthExpired:
		return reauth
	case orchestrator.TransportUnavailable:
		return "The backend is down and no direct provider is configured."
	case orchestrator.Malformed, orchestrator.Unknown:
		return "Please try again."
	}
	return ""
}

func (a *App) historyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Manage verification history",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List past verifications, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := a.store.ListHistory(cmd.Context())
			if err != nil {
				return err
			}
			if limit > 0 && len(items) > limit {
				items = items[:limit]
			}
			a.renderer.History(cmd.OutOrStdout(), items)
			return nil
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 0, "show at most n items")

	var yes bool
	clear := &cobra.Command{
		Use:   "clear",
		Short: "Delete all verification history",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes && !a.confirm(cmd, "Delete all verification history?") {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
				return nil
			}
			if err := a.store.ClearHistory(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "History cleared.")
			return nil
		},
	}
	clear.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")

	compact := &cobra.Command{
		Use:   "compact",
		Short: "Reclaim space left by deleted records",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.Compact(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Storage compacted.")
			return nil
		},
	}

	cmd.AddCommand(list, clear, compact)
	return cmd
}

func (a *App) conversationsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "Manage chat conversations",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List conversations, most recently updated first",
		RunE: func(cmd *cobra.Command, args []string) error {
			convs, err := a.store.ListConversations(cmd.Context())
			if err != nil {
				return err
			}
			a.renderer.Conversations(cmd.OutOrStdout(), convs)
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a conversation transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conv, err := a.store.GetConversation(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.renderer.Conversation(cmd.OutOrStdout(), *conv)
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.DeleteConversation(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", args[0])
			return nil
		},
	}

	var yes bool
	clear := &cobra.Command{
		Use:   "clear",
		Short: "Delete all conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes && !a.confirm(cmd, "Delete all conversations?") {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
				return nil
			}
			if err := a.store.ClearAllConversations(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Conversations cleared.")
			return nil
		},
	}
	clear.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")

	cmd.AddCommand(list, show, del, clear)
	return cmd
}

func (a *App) rulesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect learned rules",
	}

	var contentType string
	list := &cobra.Command{
		Use:   "list",
		Short: "List learned rules, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				rules []llm.Rule
				err   error
			)
			if contentType != "" {
				rules, err = a.store.RulesFor(cmd.Context(), llm.ContentType(contentType), 0)
			} else {
				rules, err = a.store.ListRules(cmd.Context())
			}
			if err != nil {
				return err
			}
			a.renderer.Rules(cmd.OutOrStdout(), rules)
			return nil
		},
	}
	list.Flags().StringVar(&contentType, "type", "", "only rules for text, image, audio or video")

	cmd.AddCommand(list)
	return cmd
}

func (a *App) learnCommand() *cobra.Command {
	var (
		in              orchestrator.FeedbackInput
		contentType     string
		verdict         string
		originalVerdict string
	)
	cmd := &cobra.Command{
		Use:   "learn",
		Short: "Teach a correction that future verifications will take into account",
		Example: `  veritas learn --type image --pattern "six fingers on a hand" \
    --verdict Fake/Generated --confidence 95 --original Authentic`,
		RunE: func(cmd *cobra.Command, args []string) error {
			in.ContentType = llm.ContentType(contentType)
			in.Verdict = llm.Verdict(verdict)
			in.OriginalVerdict = llm.Verdict(originalVerdict)

			rule, err := a.orch.Teach(cmd.Context(), in)
			if err != nil {
				return a.report(cmd, err)
			}
			where := "locally"
			if rule.Remote {
				where = "locally and on the backend"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Learned rule %s (saved %s).\n", rule.ID, where)
			return nil
		},
	}
	cmd.Flags().StringVar(&contentType, "type", "text", "content type: text, image, audio or video")
	cmd.Flags().StringVar(&in.Pattern, "pattern", "", "pattern to recognise")
	cmd.Flags().StringVar(&verdict, "verdict", "", "correct verdict: Authentic, Suspicious, Fake/Generated or Inconclusive")
	cmd.Flags().IntVar(&in.Confidence, "confidence", 90, "confidence 0-100")
	cmd.Flags().StringVar(&originalVerdict, "original", "", "verdict the model gave")
	cmd.Flags().StringVar(&in.Example, "example", "", "example content")
	_ = cmd.MarkFlagRequired("pattern")
	_ = cmd.MarkFlagRequired("verdict")
	return cmd
}

func (a *App) authCommand() *cobra.Command {
	var provider, key string
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Re-authenticate after the provider rejected the credentials",
		Long: `Marks the stored credentials as usable again. With --provider and --key the
provider's API key is replaced in the configuration file first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if key != "" {
				if a.configPath == "" {
					return errors.New("no configuration file to update")
				}
				p, ok := a.config.LLMProviders[provider]
				if !ok {
					return fmt.Errorf("unknown provider %q", provider)
				}
				p.APIKey = key
				p.Enabled = true
				a.config.LLMProviders[provider] = p
				if err := utils.SaveConfig(a.configPath, a.config); err != nil {
					return err
				}
				a.logger.Info("Updated API key for %s", provider)
			}
			if err := a.store.MarkReady(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Credentials marked ready.")
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "gemini", "provider whose key is replaced")
	cmd.Flags().StringVar(&key, "key", "", "new API key")
	return cmd
}

func (a *App) exportCommand() *cobra.Command {
	var format, output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export history and conversations to JSON or Markdown",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := utils.ParseExportFormat(format)
			if err != nil {
				return err
			}
			if output == "" {
				dir, err := utils.GetDefaultExportPath()
				if err != nil {
					return err
				}
				output = filepath.Join(dir, utils.GenerateExportFilename("veritas", f))
			}
			if err := utils.Export(cmd.Context(), a.store, f, output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "json or markdown")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file")
	return cmd
}

func (a *App) importCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import conversations from a JSON export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := utils.ImportConversations(cmd.Context(), a.store, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d conversation(s).\n", n)
			return nil
		},
	}
}

func (a *App) statsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show session statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := a.store.GetStats(cmd.Context())
			if err != nil {
				return err
			}
			a.renderer.Stats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
}

func (a *App) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configured transports and whether the backend is live",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			live := "down"
			if a.selector.PrimaryLive(cmd.Context()) {
				live = "live"
			}
			fmt.Fprintf(w, "Backend:     %s (%s)\n", a.config.Backend.URL, live)
			fmt.Fprintf(w, "Transports:  %s\n", strings.Join(a.selector.Describe(), ", "))

			ready, err := a.store.Ready(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "Credentials: %s\n", map[bool]string{true: "ready", false: "re-authentication required"}[ready])
			return nil
		},
	}
}

func (a *App) guiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "gui",
		Short: "Open the desktop window (the default without a command)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runDesktop()
		},
	}
}

// runDesktop opens the window over this session and blocks until it closes
func (a *App) runDesktop() error {
	NewDesktop(app.NewWithID(desktopAppID), a.config, a.configPath, a.store, a.selector, a.logger).ShowAndRun()
	return nil
}

func (a *App) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Veritas v%s\n", a.version)
		},
	}
}

// confirm asks a yes/no question on the command's input
func (a *App) confirm(cmd *cobra.Command, question string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N] ", question)
	scanner := bufio.NewScanner(cmd.InOrStdin())
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}

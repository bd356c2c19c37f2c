package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/openclaude/openclaude/internal/abort"
	"github.com/openclaude/openclaude/internal/agentloop"
	"github.com/openclaude/openclaude/internal/config"
	"github.com/openclaude/openclaude/internal/extensions/scanner"
	"github.com/openclaude/openclaude/internal/journal"
	"github.com/openclaude/openclaude/internal/model"
	"github.com/openclaude/openclaude/internal/pierr"
	"github.com/openclaude/openclaude/internal/provider"
	"github.com/openclaude/openclaude/internal/sessionindex"
	"github.com/openclaude/openclaude/internal/telemetry"
	"github.com/openclaude/openclaude/internal/tools"
)

// version tracks the Claude Code compatibility version reported to clients.
const version = "2.1.29"

// defaultTaskMaxDepth caps nested Task executions to prevent runaway recursion.
const defaultTaskMaxDepth = 2

// defaultTaskMaxTurns sets a safe default for Task sub-runs.
const defaultTaskMaxTurns = 4

// options holds all CLI flags.
type options struct {
	// AddDirs are extra directories added to the sandbox allowlist.
	AddDirs []string
	// AllowDangerouslySkipPermissions toggles the availability of bypass mode.
	AllowDangerouslySkipPermissions bool
	// AllowedTools restricts tool usage to a whitelist.
	AllowedTools []string
	// AppendSystemPrompt appends extra system instructions.
	AppendSystemPrompt string
	// AppendSystemPromptFile reads system prompt additions from a file.
	AppendSystemPromptFile string
	// Continue resumes the most recent session in the current project.
	Continue bool
	// DangerouslySkipPermissions bypasses tool permission checks.
	DangerouslySkipPermissions bool
	// DisallowedTools blocks specific tools even if available.
	DisallowedTools []string
	// ForkSession controls whether resume forks the session id.
	ForkSession bool
	// ListModels prints the configured models and exits.
	ListModels bool
	// MaxTurns caps the number of assistant/tool turns.
	MaxTurns int
	// Model overrides the default model selection.
	Model string
	// NoExtensions skips extension package loading.
	NoExtensions bool
	// NoSession starts a session that is never written to disk.
	NoSession bool
	// NoSessionPersistence disables saving session history in print mode.
	NoSessionPersistence bool
	// OutputFormat controls print mode output encoding.
	OutputFormat string
	// PermissionMode configures tool approval behavior.
	PermissionMode string
	// Print enables non-interactive mode.
	Print bool
	// Provider selects the backend: anthropic or openai.
	Provider string
	// Resume resumes a specific session id or the interactive picker.
	Resume string
	// SessionID sets a fixed session id.
	SessionID string
	// SessionPath opens a session file by path.
	SessionPath string
	// SettingSources limits Claude settings sources to load.
	SettingSources []string
	// Settings provides a path or inline JSON for settings overrides.
	Settings string
	// SystemPrompt overrides the default system prompt.
	SystemPrompt string
	// SystemPromptFile reads the system prompt from a file.
	SystemPromptFile string
	// Tools defines the available tool set.
	Tools []string
	// Verbose toggles verbose output.
	Verbose bool
	// Version prints the CLI version.
	Version bool
}

// main wires Cobra and executes the CLI.
func main() {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:   "claude [prompt]",
		Short: "Claude Code - starts an interactive session by default, use -p/--print for non-interactive output",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Version {
				fmt.Printf("%s (Claude Code)\n", version)
				return nil
			}
			if opts.ListModels {
				return runListModels()
			}
			return runRoot(cmd, opts, args)
		},
	}
	rootCmd.Args = cobra.ArbitraryArgs

	applyFlags(rootCmd.Flags(), opts)

	rootCmd.AddCommand(configCommand())
	rootCmd.AddCommand(listCommand())
	rootCmd.AddCommand(doctorCommand())
	rootCmd.AddCommand(rpcCommand(opts))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// applyFlags defines all CLI flags with Claude Code-compatible names.
func applyFlags(flags *pflag.FlagSet, opts *options) {
	flags.SetNormalizeFunc(normalizeFlagName)

	flags.StringSliceVar(&opts.AddDirs, "add-dir", nil, "Additional directories to allow tool access to")
	flags.BoolVar(&opts.AllowDangerouslySkipPermissions, "allow-dangerously-skip-permissions", false, "Enable bypassing all permission checks as an option, without it being enabled by default. Recommended only for sandboxes with no internet access.")
	flags.StringSliceVar(&opts.AllowedTools, "allowedTools", nil, "Comma or space-separated list of tool names to allow (e.g. \"Bash Edit\")")
	flags.StringVar(&opts.AppendSystemPrompt, "append-system-prompt", "", "Append a system prompt to the default system prompt")
	flags.StringVar(&opts.AppendSystemPromptFile, "append-system-prompt-file", "", "Read system prompt from a file and append to the default system prompt")
	flags.BoolVarP(&opts.Continue, "continue", "c", false, "Continue the most recent conversation in the current directory")
	flags.BoolVar(&opts.DangerouslySkipPermissions, "dangerously-skip-permissions", false, "Bypass all permission checks. Recommended only for sandboxes with no internet access.")
	flags.StringSliceVar(&opts.DisallowedTools, "disallowedTools", nil, "Comma or space-separated list of tool names to deny (e.g. \"Bash Edit\")")
	flags.BoolVar(&opts.ForkSession, "fork-session", false, "When resuming, create a new session ID instead of reusing the original (use with --resume or --continue)")
	flags.BoolVar(&opts.ListModels, "list-models", false, "List the configured default model and aliases, then exit")
	flags.IntVar(&opts.MaxTurns, "max-turns", 0, "Maximum number of agentic turns in non-interactive mode (only works with --print)")
	flags.StringVar(&opts.Model, "model", "", "Model for the current session. Provide an alias (e.g. 'sonnet') or a model's full name.")
	flags.BoolVar(&opts.NoExtensions, "no-extensions", false, "Skip loading extension packages for this run")
	flags.BoolVar(&opts.NoSession, "no-session", false, "Run without reading or writing any session file")
	flags.BoolVar(&opts.NoSessionPersistence, "no-session-persistence", false, "Disable session persistence - sessions will not be saved to disk and cannot be resumed (only works with --print)")
	flags.StringVar(&opts.OutputFormat, "output-format", "text", "Output format (only works with --print): \"text\" (default) or \"json\" (single result)")
	flags.StringVar(&opts.PermissionMode, "permission-mode", "default", "Permission mode to use for the session")
	flags.BoolVarP(&opts.Print, "print", "p", false, "Print response and exit (useful for pipes). Only use this flag in directories you trust.")
	flags.StringVar(&opts.Provider, "provider", "anthropic", "Provider to drive: anthropic or openai")
	flags.StringVarP(&opts.Resume, "resume", "r", "", "Resume a conversation by session ID, or open interactive picker")
	flags.StringVar(&opts.SessionPath, "session", "", "Open a session file by path")
	flags.StringVar(&opts.SessionID, "session-id", "", "Use a specific session ID for the conversation (must be a valid UUID)")
	flags.StringSliceVar(&opts.SettingSources, "setting-sources", nil, "Comma-separated list of setting sources to load (user, project, local).")
	flags.StringVar(&opts.Settings, "settings", "", "Path to a settings JSON file or a JSON string to load additional settings from")
	flags.StringVar(&opts.SystemPrompt, "system-prompt", "", "System prompt to use for the session")
	flags.StringVar(&opts.SystemPromptFile, "system-prompt-file", "", "Read system prompt from a file")
	flags.StringSliceVar(&opts.Tools, "tools", nil, "Specify the list of available tools from the built-in set. Use \"default\" for all tools, or tool names (e.g. \"Bash,Edit,Read\").")
	flags.BoolVar(&opts.Verbose, "verbose", false, "Override verbose mode setting from config")
	flags.BoolVarP(&opts.Version, "version", "v", false, "Output the version number")

	flags.Lookup("resume").NoOptDefVal = "picker"
	flags.Lookup("append-system-prompt-file").Hidden = true
	flags.Lookup("system-prompt-file").Hidden = true
	flags.Lookup("max-turns").Hidden = true
}

// normalizeFlagName maps dashed flag aliases to camel-case names.
func normalizeFlagName(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	switch name {
	case "allowed-tools":
		return "allowedTools"
	case "disallowed-tools":
		return "disallowedTools"
	default:
		return pflag.NormalizedName(name)
	}
}

// doctorCommand validates provider configuration and permissions.
func doctorCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the health of the provider configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := mustProviderPath()
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("provider config missing at %s", path)
			}
			mode := info.Mode().Perm()
			if mode&0o077 != 0 {
				return fmt.Errorf("provider config permissions too open: %s", mode)
			}
			if _, err := config.LoadProviderConfig(path); err != nil {
				return fmt.Errorf("provider config invalid: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK: provider config %s\n", path)
			return nil
		},
	}
}

// configCommand prints the resolved configuration surface.
func configCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the resolved configuration paths and model",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "provider config: %s\n", mustProviderPath())
			fmt.Fprintf(out, "sessions root:   %s\n", journal.DefaultSessionsRoot())
			fmt.Fprintf(out, "packages dir:    %s\n", scanner.DefaultPackageDir())
			cfg, err := config.LoadProviderConfig("")
			if err != nil {
				fmt.Fprintf(out, "default model:   (unavailable: %v)\n", err)
				return nil
			}
			fmt.Fprintf(out, "default model:   %s\n", cfg.DefaultModel)
			return nil
		},
	}
}

// listCommand lists sessions recorded for the current project.
func listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions for the current directory, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("get cwd: %w", err)
			}
			store := journal.NewStore("")
			index, err := sessionindex.Open(filepath.Join(store.Root(), "index.sqlite"))
			if err != nil {
				return pierr.Index(err.Error())
			}
			defer index.Close()

			rows, err := index.ListSessions(cwd)
			if err != nil {
				return pierr.Index(err.Error())
			}
			if len(rows) == 0 {
				// The index is a rebuildable cache; a miss may just mean it
				// was deleted. Re-derive it from the session files once.
				if err := index.RebuildRoot(store.Root()); err == nil {
					rows, _ = index.ListSessions(cwd)
				}
			}
			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "no sessions for this directory")
				return nil
			}
			for _, row := range rows {
				name := row.Name
				if name == "" {
					name = "-"
				}
				fmt.Fprintf(out, "%s  %3d msgs  %s  %s\n",
					time.UnixMilli(row.LastModifiedMS).Format("2006-01-02 15:04"),
					row.MessageCount, row.ID, name)
			}
			return nil
		},
	}
}

// runListModels prints the configured default model plus aliases.
func runListModels() error {
	cfg, err := config.LoadProviderConfig("")
	if err != nil {
		if errors.Is(err, config.ErrProviderConfigMissing) {
			return pierr.Config(fmt.Sprintf("provider config missing; create %s", mustProviderPath()))
		}
		return pierr.Config(err.Error())
	}
	fmt.Println(cfg.DefaultModel)
	aliases := make([]string, 0, len(cfg.ModelAliases))
	for alias := range cfg.ModelAliases {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	for _, alias := range aliases {
		fmt.Printf("%s -> %s\n", alias, cfg.ModelAliases[alias])
	}
	return nil
}

// runRoot orchestrates config loading, session handling, and mode dispatch
// for the default command: it builds the provider, tool registry, journal,
// and agent loop, then hands off to print mode or the interactive TUI.
func runRoot(cmd *cobra.Command, opts *options, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get cwd: %w", err)
	}
	if err := validateOptions(opts, cwd); err != nil {
		return err
	}
	// Piped stdin means there is no terminal to run the TUI against;
	// treat the invocation as print mode.
	if !opts.Print && !term.IsTerminal(int(os.Stdin.Fd())) {
		opts.Print = true
	}

	shutdownTelemetry, err := telemetry.Setup(cmd.Context(), telemetry.ConfigFromEnv(version))
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	providerCfg, err := config.LoadProviderConfig("")
	if err != nil {
		if errors.Is(err, config.ErrProviderConfigMissing) {
			return pierr.Config(fmt.Sprintf("provider config missing; create %s", mustProviderPath()))
		}
		return pierr.Config(fmt.Sprintf("load provider config: %v", err))
	}

	settings, err := config.LoadClaudeSettings(cwd, splitListArgs(opts.SettingSources), opts.Settings)
	if err != nil {
		return pierr.Config(fmt.Sprintf("load settings: %v", err))
	}
	modelID := config.ResolveModel(providerCfg, opts.Model, settings.Model)

	permissions, err := resolvePermissions(opts)
	if err != nil {
		return err
	}

	prov, err := buildProvider(opts.Provider, providerCfg, modelID)
	if err != nil {
		return err
	}

	reg, err := buildRegistry(opts, cwd)
	if err != nil {
		return err
	}

	persist := !opts.NoSession && !opts.NoSessionPersistence
	store := journal.NewStore("")
	var index *sessionindex.Index
	if persist {
		index, err = sessionindex.Open(filepath.Join(store.Root(), "index.sqlite"))
		if err != nil {
			return pierr.Index(err.Error())
		}
		defer index.Close()
	}

	sess, err := resolveSession(store, index, cwd, opts)
	if err != nil {
		return err
	}

	reg.SessionID = sess.Header.ID
	reg.EnvDir = agentEnvDir()
	reg.TaskManager = tools.NewTaskManager()
	reg.TaskMaxDepth = defaultTaskMaxDepth

	systemPrompt := resolveSystemPrompt(opts, reg.Names())

	agent := &agentloop.Agent{
		Provider: prov,
		Registry: reg,
		Config: agentloop.Config{
			SystemPrompt:      systemPrompt,
			MaxToolIterations: opts.MaxTurns,
		},
	}
	if history, err := agentloop.ReplayMessages(sess); err == nil {
		agent.Messages = history
	}

	reg.TaskExecutor = buildTaskExecutor(prov, reg, systemPrompt)

	as := agentloop.NewAgentSession(agent, sess, store)
	if persist {
		as.WithIndex(index)
	} else {
		as.Store = nil
	}

	if !opts.NoExtensions {
		pkgDir := scanner.DefaultPackageDir()
		if _, err := scanner.Scan(pkgDir); err != nil && !os.IsNotExist(err) {
			return pierr.Extension(fmt.Sprintf("scan extension packages: %v", err))
		}
		if err := runExtensionHost(cmd.Context(), pkgDir, reg, sess, cmd.ErrOrStderr()); err != nil {
			return pierr.Extension(err.Error())
		}
	}

	if opts.Print {
		agent.Config.AuthorizeTool = printModeAuthorizer(permissions)
		return runPrintMode(cmd, opts, as, modelID)
	}
	return runInteractiveTUI(as, permissions, modelID)
}

// resolvePermissions parses the permission flags into a Permissions value.
func resolvePermissions(opts *options) (tools.Permissions, error) {
	mode := parsePermissionMode(opts.PermissionMode)
	if opts.DangerouslySkipPermissions && !opts.AllowDangerouslySkipPermissions {
		return tools.Permissions{}, fmt.Errorf("dangerously-skip-permissions requires --allow-dangerously-skip-permissions")
	}
	if opts.DangerouslySkipPermissions {
		mode = tools.PermissionBypass
	}
	return tools.Permissions{Mode: mode}, nil
}

// printModeAuthorizer denies tools that would need an interactive prompt:
// there is no one to ask in print mode, and the denial is absorbed into
// the conversation so the model can proceed without the tool.
func printModeAuthorizer(permissions tools.Permissions) func(string, json.RawMessage) error {
	return func(name string, _ json.RawMessage) error {
		if !permissions.AllowsTool() {
			return fmt.Errorf("tool %s is disabled in plan mode", name)
		}
		if permissions.ShouldPrompt(name) {
			return fmt.Errorf("tool %s requires confirmation in print mode", name)
		}
		return nil
	}
}

// buildRegistry constructs the tool registry from the CLI tool filters.
func buildRegistry(opts *options, cwd string) (*tools.Registry, error) {
	allowed := normalizeToolList(splitListArgs(opts.AllowedTools))
	disallowed := normalizeToolList(splitListArgs(opts.DisallowedTools))

	toolsArg := splitListArgs(opts.Tools)
	if len(toolsArg) > 0 && !(len(toolsArg) == 1 && strings.EqualFold(strings.TrimSpace(toolsArg[0]), "default")) {
		selection := normalizeToolList(toolsArg)
		if len(allowed) == 0 {
			allowed = selection
		} else {
			allowed = intersectLists(allowed, selection)
		}
	}

	reg, err := tools.NewRegistry(cwd, allowed, disallowed)
	if err != nil {
		return nil, err
	}
	if len(opts.AddDirs) > 0 {
		reg.AddSandboxRoots(opts.AddDirs...)
	}
	return reg, nil
}

// intersectLists returns the elements of a that also appear in b.
func intersectLists(a, b []string) []string {
	set := make(map[string]bool, len(b))
	for _, item := range b {
		set[item] = true
	}
	var out []string
	for _, item := range a {
		if set[item] {
			out = append(out, item)
		}
	}
	return out
}

// resolveSystemPrompt builds the session system prompt from defaults and
// CLI overrides.
func resolveSystemPrompt(opts *options, toolNames []string) string {
	prompt := opts.SystemPrompt
	if prompt == "" {
		prompt = defaultSystemPrompt(toolNames)
	}
	if opts.AppendSystemPrompt != "" {
		prompt = prompt + "\n" + opts.AppendSystemPrompt
	}
	return prompt
}

// defaultSystemPrompt returns the base system prompt for tool usage.
func defaultSystemPrompt(toolNames []string) string {
	builder := strings.Builder{}
	builder.WriteString("You are OpenClaude, a coding assistant.\n")
	builder.WriteString("Use tools when you need to read or modify files or run commands.\n")
	if len(toolNames) > 0 {
		builder.WriteString("Available tools: ")
		builder.WriteString(strings.Join(toolNames, ", "))
		builder.WriteString(".\n")
	}
	builder.WriteString("When a tool is required, call it instead of guessing.\n")
	builder.WriteString("Provide clear, concise responses.")
	return builder.String()
}

// agentEnvDir returns the root for per-session scratch state, honoring
// PI_CODING_AGENT_DIR the same way the auth store and package dir do.
func agentEnvDir() string {
	if dir := os.Getenv("PI_CODING_AGENT_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".pi")
}

// mustProviderPath returns the default config path or a fallback placeholder.
func mustProviderPath() string {
	path, err := config.ProviderConfigPath()
	if err != nil {
		return "~/.openclaude/config.json"
	}
	return path
}

// validateOptions enforces flag compatibility constraints and loads
// file-based prompt flags.
func validateOptions(opts *options, cwd string) error {
	if err := applyPromptFileOverrides(opts, cwd); err != nil {
		return err
	}
	if opts.OutputFormat != "text" && opts.OutputFormat != "json" {
		return fmt.Errorf("Error: Invalid output format %q.", opts.OutputFormat)
	}
	if !opts.Print && opts.OutputFormat != "text" {
		return fmt.Errorf("Error: --output-format only works with --print.")
	}
	if opts.NoSessionPersistence && !opts.Print {
		return fmt.Errorf("Error: --no-session-persistence can only be used with --print mode.")
	}
	if opts.MaxTurns > 0 && !opts.Print {
		return fmt.Errorf("Error: --max-turns only works with --print.")
	}
	if opts.SessionID != "" {
		if _, err := uuid.Parse(opts.SessionID); err != nil {
			return fmt.Errorf("Error: --session-id must be a valid UUID.")
		}
	}
	if opts.SessionID != "" && (opts.Continue || opts.Resume != "") && !opts.ForkSession {
		return fmt.Errorf("Error: --session-id can only be used with --continue or --resume if --fork-session is also specified.")
	}
	if opts.SessionPath != "" && (opts.Continue || opts.Resume != "") {
		return fmt.Errorf("Error: --session cannot be combined with --continue or --resume.")
	}
	return nil
}

// applyPromptFileOverrides reads system prompt content from file flags.
func applyPromptFileOverrides(opts *options, cwd string) error {
	if opts.SystemPromptFile != "" && opts.SystemPrompt != "" {
		return fmt.Errorf("Error: Cannot use both --system-prompt and --system-prompt-file. Please use only one.")
	}
	if opts.SystemPromptFile != "" {
		prompt, err := readPromptFile(cwd, opts.SystemPromptFile, "System prompt")
		if err != nil {
			return err
		}
		opts.SystemPrompt = prompt
	}
	if opts.AppendSystemPromptFile != "" && opts.AppendSystemPrompt != "" {
		return fmt.Errorf("Error: Cannot use both --append-system-prompt and --append-system-prompt-file. Please use only one.")
	}
	if opts.AppendSystemPromptFile != "" {
		prompt, err := readPromptFile(cwd, opts.AppendSystemPromptFile, "Append system prompt")
		if err != nil {
			return err
		}
		opts.AppendSystemPrompt = prompt
	}
	return nil
}

// readPromptFile resolves a prompt path and returns its contents.
func readPromptFile(cwd string, path string, label string) (string, error) {
	resolved, err := resolvePath(cwd, path)
	if err != nil {
		return "", err
	}
	content, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("Error: %s file not found: %s", label, resolved)
	}
	return string(content), nil
}

// resolvePath expands ~ and resolves relative paths against the current working directory.
func resolvePath(cwd string, path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		if path == "~" {
			path = home
		} else if strings.HasPrefix(path, "~/") {
			path = filepath.Join(home, path[2:])
		}
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(cwd, path)
	}
	return filepath.Clean(path), nil
}

// resolveSession opens or creates the journal session the run binds to.
func resolveSession(store *journal.Store, index *sessionindex.Index, cwd string, opts *options) (*journal.Session, error) {
	load := func(path string) (*journal.Session, error) {
		sess, err := store.Load(path)
		if errors.Is(err, journal.ErrSessionNotFound) {
			return nil, pierr.SessionNotFound(path)
		}
		return sess, err
	}

	var sess *journal.Session
	var err error
	switch {
	case opts.SessionPath != "":
		sess, err = load(opts.SessionPath)
	case opts.Resume == "picker":
		path, pickErr := pickSession(index, cwd)
		if pickErr != nil {
			return nil, pickErr
		}
		sess, err = load(path)
	case opts.Resume != "":
		sess, err = load(store.Path(cwd, opts.Resume))
	case opts.Continue:
		if index != nil {
			rows, listErr := index.ListSessions(cwd)
			if listErr == nil && len(rows) > 0 {
				sess, err = load(rows[0].Path)
				break
			}
		}
		sess = store.New(cwd)
	default:
		sess = store.New(cwd)
	}
	if err != nil {
		return nil, err
	}

	resumed := opts.SessionPath != "" || opts.Resume != "" || (opts.Continue && sess.Path() != "")
	if resumed && opts.ForkSession {
		forkID := opts.SessionID
		if forkID == "" {
			forkID = uuid.NewString()
		}
		sess.Fork(forkID)
	} else if !resumed && opts.SessionID != "" {
		sess.Header.ID = opts.SessionID
	}
	return sess, nil
}

// pickSession shows a small chooser over the indexed sessions for cwd and
// returns the chosen session's file path.
func pickSession(index *sessionindex.Index, cwd string) (string, error) {
	if index == nil {
		return "", errors.New("session picker requires session persistence")
	}
	rows, err := index.ListSessions(cwd)
	if err != nil {
		return "", pierr.Index(err.Error())
	}
	if len(rows) > 10 {
		rows = rows[:10]
	}
	if len(rows) == 0 {
		return "", errors.New("no sessions available")
	}
	fmt.Fprintln(os.Stdout, "Select a session:")
	for i, row := range rows {
		name := row.Name
		if name == "" {
			name = row.ID
		}
		fmt.Fprintf(os.Stdout, "%d) %s (%d msgs)\n", i+1, name, row.MessageCount)
	}
	fmt.Fprint(os.Stdout, "Enter number: ")
	var index1 int
	if _, err := fmt.Fscanln(os.Stdin, &index1); err != nil {
		return "", fmt.Errorf("invalid selection")
	}
	if index1 < 1 || index1 > len(rows) {
		return "", fmt.Errorf("selection out of range")
	}
	return rows[index1-1].Path, nil
}

// runPrintMode handles one-shot requests and prints output to stdout.
func runPrintMode(cmd *cobra.Command, opts *options, as *agentloop.AgentSession, modelID string) error {
	prompt, err := readPromptInput(cmd)
	if err != nil {
		return err
	}

	handle := abort.NewHandle()
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)
	go func() {
		for range interrupts {
			handle.Abort("interrupt")
		}
	}()

	var onEvent func(agentloop.Event)
	if opts.Verbose && opts.OutputFormat == "text" {
		out := cmd.OutOrStdout()
		onEvent = func(ev agentloop.Event) {
			switch ev.Kind {
			case agentloop.EventText:
				fmt.Fprint(out, ev.TextDelta)
			case agentloop.EventToolExecuteStart:
				fmt.Fprintf(out, "\n[tool %s]\n", ev.ToolCallName)
			case agentloop.EventAssistantDone:
				fmt.Fprintln(out)
			}
		}
	}

	final, err := as.Prompt(cmd.Context(), handle.Signal(), model.UserContent{Text: prompt}, onEvent)
	if err != nil {
		return err
	}

	switch opts.OutputFormat {
	case "json":
		payload := map[string]any{
			"session_id":  as.Session.Header.ID,
			"model":       modelID,
			"final":       final.Text(),
			"stop_reason": string(final.StopReason),
			"usage":       totalUsage(as.Agent.Messages),
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	default:
		if onEvent == nil {
			fmt.Fprintln(cmd.OutOrStdout(), final.Text())
		}
	}
	return nil
}

// totalUsage sums token usage across the conversation's assistant messages.
func totalUsage(messages []model.Message) model.Usage {
	var usage model.Usage
	for _, msg := range messages {
		if msg.Kind == model.MessageAssistant && msg.Assistant != nil {
			usage.Add(msg.Assistant.Usage)
		}
	}
	return usage
}

// readPromptInput takes the prompt from positional args, falling back to
// stdin for piped input.
func readPromptInput(cmd *cobra.Command) (string, error) {
	prompt := strings.TrimSpace(strings.Join(cmd.Flags().Args(), " "))
	if prompt == "" {
		input, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		prompt = strings.TrimSpace(string(input))
	}
	if prompt == "" {
		return "", errors.New("prompt is required")
	}
	return prompt, nil
}

// buildTaskExecutor wires Task tool execution to a nested agent run over
// the same provider and registry, one nesting level deeper.
func buildTaskExecutor(prov provider.Provider, reg *tools.Registry, systemPrompt string) tools.TaskExecutor {
	return tools.TaskExecutorFunc(func(ctx context.Context, request tools.TaskRequest) (tools.TaskResult, error) {
		subRegistry := *reg
		subRegistry.TaskDepth = reg.TaskDepth + 1

		subPrompt := strings.TrimSpace(request.SystemPrompt)
		if subPrompt == "" {
			subPrompt = systemPrompt
		}
		maxTurns := request.MaxTurns
		if maxTurns <= 0 {
			maxTurns = defaultTaskMaxTurns
		}

		sub := &agentloop.Agent{
			Provider: prov,
			Registry: &subRegistry,
			Config: agentloop.Config{
				SystemPrompt:      subPrompt,
				MaxToolIterations: maxTurns,
			},
		}

		content := model.UserContent{Text: request.Prompt}
		if len(request.Messages) > 0 {
			history := request.Messages
			if request.Prompt == "" {
				// A history-only task re-issues its final user message as
				// the prompt for this run.
				last := history[len(history)-1]
				if last.Kind == model.MessageUser {
					content = last.UserContent
					history = history[:len(history)-1]
				}
			}
			sub.Messages = history
		}

		final, err := sub.Run(ctx, nil, content, nil)
		if err != nil {
			return tools.TaskResult{}, err
		}
		return tools.TaskResult{
			Output: final.Text(),
			Metadata: map[string]any{
				"stop_reason": string(final.StopReason),
			},
		}, nil
	})
}

// splitList parses comma/space-separated lists.
func splitList(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parts := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ' '
	})
	var list []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			list = append(list, part)
		}
	}
	return list
}

// splitListArgs flattens multiple list arguments into a single normalized list.
func splitListArgs(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	var combined []string
	for _, value := range values {
		combined = append(combined, splitList(value)...)
	}
	return combined
}

// normalizeToolList maps CLI tool names to canonical tool identifiers.
// This keeps legacy aliases working while aligning with Claude Code tool names.
func normalizeToolList(names []string) []string {
	var normalized []string
	for _, name := range names {
		switch strings.ToLower(name) {
		case "read", "view":
			normalized = append(normalized, "Read")
		case "edit":
			normalized = append(normalized, "Edit")
		case "write", "replace":
			normalized = append(normalized, "Write")
		case "notebookedit", "notebook-edit", "notebook_edit":
			normalized = append(normalized, "NotebookEdit")
		case "bash":
			normalized = append(normalized, "Bash")
		case "search", "websearch", "web-search", "web_search":
			normalized = append(normalized, "WebSearch")
		case "webfetch", "web-fetch", "web_fetch":
			normalized = append(normalized, "WebFetch")
		case "glob":
			normalized = append(normalized, "Glob")
		case "grep":
			normalized = append(normalized, "Grep")
		case "task":
			normalized = append(normalized, "Task")
		case "taskoutput", "task-output", "task_output":
			normalized = append(normalized, "TaskOutput")
		case "taskstop", "task-stop", "task_stop":
			normalized = append(normalized, "TaskStop")
		case "enterplanmode", "enter-plan-mode", "enter_plan_mode":
			normalized = append(normalized, "EnterPlanMode")
		case "exitplanmode", "exit-plan-mode", "exit_plan_mode":
			normalized = append(normalized, "ExitPlanMode")
		case "askuserquestion", "ask-user-question", "ask_user_question":
			normalized = append(normalized, "AskUserQuestion")
		case "skill":
			normalized = append(normalized, "Skill")
		case "todowrite", "todo-write", "todo_write", "todo":
			normalized = append(normalized, "TodoWrite")
		default:
			normalized = append(normalized, name)
		}
	}
	return normalized
}

// parsePermissionMode translates CLI values into internal modes.
func parsePermissionMode(value string) tools.PermissionMode {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "acceptedits":
		return tools.PermissionAcceptEdits
	case "dontask":
		return tools.PermissionDontAsk
	case "delegate":
		return tools.PermissionDelegate
	case "bypasspermissions":
		return tools.PermissionBypass
	case "plan":
		return tools.PermissionPlan
	default:
		return tools.PermissionDefault
	}
}

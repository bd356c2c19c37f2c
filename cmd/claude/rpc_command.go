package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/openclaude/openclaude/internal/agentloop"
	"github.com/openclaude/openclaude/internal/auth"
	"github.com/openclaude/openclaude/internal/config"
	"github.com/openclaude/openclaude/internal/extensions/scanner"
	"github.com/openclaude/openclaude/internal/journal"
	"github.com/openclaude/openclaude/internal/pierr"
	"github.com/openclaude/openclaude/internal/provider"
	"github.com/openclaude/openclaude/internal/provider/anthropicprovider"
	"github.com/openclaude/openclaude/internal/provider/openaiprovider"
	"github.com/openclaude/openclaude/internal/rpc"
	"github.com/openclaude/openclaude/internal/sessionindex"
	"github.com/openclaude/openclaude/internal/tools"
)

// rpcCommand exposes the agent loop non-interactively over the
// line-delimited JSON protocol of internal/rpc, reading requests from
// stdin and writing responses/events to stdout. It is an alternative to
// the interactive TUI/print-mode paths runRoot drives.
func rpcCommand(opts *options) *cobra.Command {
	var providerName string
	var noExtensions bool

	cmd := &cobra.Command{
		Use:    "rpc",
		Short:  "Run the agent loop as a line-delimited JSON server over stdin/stdout",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := runRPC(cmd, opts, providerName, noExtensions)
			var typed *pierr.Error
			if errors.As(err, &typed) {
				hints := typed.Hints()
				fmt.Fprintln(cmd.ErrOrStderr(), hints.Summary)
				for _, hint := range hints.Hints {
					fmt.Fprintln(cmd.ErrOrStderr(), "  - "+hint)
				}
				for _, kv := range hints.Context {
					fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s\n", kv.Label, kv.Value)
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&providerName, "provider", "anthropic", "Provider to drive: anthropic or openai")
	cmd.Flags().BoolVar(&noExtensions, "no-extensions", false, "Skip loading extension packages for this run")
	cmd.Flags().BoolVar(&opts.NoSessionPersistence, "no-session-persistence", false, "Disable session persistence - sessions will not be saved to disk and cannot be resumed")
	cmd.Flags().StringVar(&opts.Resume, "resume", "", "Resume a specific session id")
	cmd.Flags().StringVar(&opts.SessionID, "session-id", "", "Open the existing session with this id")
	cmd.Flags().StringSliceVar(&opts.AllowedTools, "allowedTools", nil, "Comma or space-separated list of tool names to allow")
	cmd.Flags().StringSliceVar(&opts.DisallowedTools, "disallowedTools", nil, "Comma or space-separated list of tool names to deny")
	cmd.Flags().StringVar(&opts.Settings, "settings", "", "Path or inline JSON for settings overrides")
	return cmd
}

func runRPC(cmd *cobra.Command, opts *options, providerName string, noExtensions bool) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get cwd: %w", err)
	}

	providerCfg, err := config.LoadProviderConfig("")
	if err != nil {
		if errors.Is(err, config.ErrProviderConfigMissing) {
			return pierr.Config(fmt.Sprintf("provider config missing; create %s", mustProviderPath()))
		}
		return pierr.Config(fmt.Sprintf("load provider config: %v", err))
	}

	prov, err := buildProvider(providerName, providerCfg, config.ResolveModel(providerCfg, "", ""))
	if err != nil {
		return err
	}

	reg, err := tools.NewRegistry(cwd, opts.AllowedTools, opts.DisallowedTools)
	if err != nil {
		return fmt.Errorf("build tool registry: %w", err)
	}

	store := journal.NewStore(opts.sessionsRootOverride())
	var index *sessionindex.Index
	if !opts.NoSessionPersistence {
		index, err = sessionindex.Open(filepath.Join(store.Root(), "index.sqlite"))
		if err != nil {
			return pierr.Index(err.Error())
		}
		defer index.Close()
	}

	sess, err := resolveRPCSession(store, cwd, opts)
	if err != nil {
		return err
	}

	if !noExtensions {
		// Scanning is a static pre-flight only: its ledger feeds release
		// tooling and conformance snapshots, not runtime gating, so a
		// missing/empty package dir is not an error here.
		pkgDir := scanner.DefaultPackageDir()
		if _, err := scanner.Scan(pkgDir); err != nil && !os.IsNotExist(err) {
			return pierr.Extension(fmt.Sprintf("scan extension packages: %v", err))
		}
		if err := runExtensionHost(cmd.Context(), pkgDir, reg, sess, cmd.ErrOrStderr()); err != nil {
			return pierr.Extension(err.Error())
		}
	}

	agent := &agentloop.Agent{
		Provider: prov,
		Registry: reg,
		Config: agentloop.Config{
			MaxToolIterations: 64,
		},
	}
	if history, err := agentloop.ReplayMessages(sess); err == nil {
		agent.Messages = history
	}

	as := agentloop.NewAgentSession(agent, sess, store).WithIndex(index)
	if opts.NoSessionPersistence {
		// Keep Session/Agent wired for replay within this process, but
		// skip the Store.Save (and therefore index) call Prompt would
		// otherwise make.
		as.Store = nil
		as.Index = nil
	}

	authStore, err := auth.Load(auth.DefaultPath())
	if err != nil {
		return pierr.Auth(err.Error())
	}

	settings, err := config.LoadClaudeSettings(cwd, splitListArgs(opts.SettingSources), opts.Settings)
	if err != nil {
		return pierr.Config(fmt.Sprintf("load settings: %v", err))
	}

	rpcOpts := rpc.Options{
		Settings:        settings,
		Auth:            authStore,
		AvailableModels: availableModels(providerCfg),
	}
	return rpc.Run(cmd.Context(), as, rpcOpts, cmd.InOrStdin(), cmd.OutOrStdout())
}

// sessionsRootOverride returns the sessions root runRPC uses. It is always
// journal.DefaultSessionsRoot(); --resume and --session-id do not change it.
func (o *options) sessionsRootOverride() string {
	return journal.DefaultSessionsRoot()
}

// resolveRPCSession opens the session named by --resume/--session-id, or
// starts a fresh one rooted at cwd. --no-session-persistence still returns
// a Session object (the agent loop always operates against one) but gives
// it an ephemeral id; runRPC then detaches the store and index so Prompt
// never touches the sessions root.
func resolveRPCSession(store *journal.Store, cwd string, opts *options) (*journal.Session, error) {
	load := func(id string) (*journal.Session, error) {
		path := store.Path(cwd, id)
		sess, err := store.Load(path)
		if errors.Is(err, journal.ErrSessionNotFound) {
			return nil, pierr.SessionNotFound(path)
		}
		return sess, err
	}
	switch {
	case opts.Resume != "":
		return load(opts.Resume)
	case opts.SessionID != "":
		return load(opts.SessionID)
	default:
		sess := store.New(cwd)
		if opts.NoSessionPersistence {
			sess.Header.ID = "ephemeral-" + uuid.NewString()
		}
		return sess, nil
	}
}

// availableModels lists the default model plus any configured aliases, for
// the RPC front-end's get_state response.
func availableModels(cfg *config.ProviderConfig) []string {
	models := []string{cfg.DefaultModel}
	for alias := range cfg.ModelAliases {
		models = append(models, alias)
	}
	return models
}

// buildProvider constructs the Anthropic or OpenAI-compatible provider
// named by name, using providerCfg's gateway settings for the
// OpenAI-compatible path and ANTHROPIC_API_KEY for the Anthropic path.
func buildProvider(name string, cfg *config.ProviderConfig, modelID string) (provider.Provider, error) {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	switch name {
	case "", "anthropic":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			apiKey = cfg.APIKey
		}
		return anthropicprovider.New(modelID, "https://api.anthropic.com", apiKey, timeout), nil
	case "openai":
		return openaiprovider.New("openai", modelID, cfg.APIBaseURL, cfg.APIKey, timeout), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"taskdeck/backend"
	"taskdeck/backend/rest"
	"taskdeck/internal/app"
	"taskdeck/internal/breaker"
	"taskdeck/internal/config"
	"taskdeck/internal/credentials"
	"taskdeck/internal/fetch"
	"taskdeck/internal/store"
	"taskdeck/internal/utils"
)

// Version is set at build time
var Version = "dev"

// Result codes for JSON output
const (
	ResultActionCompleted = "ACTION_COMPLETED"
	ResultInfoOnly        = "INFO_ONLY"
	ResultError           = "ERROR"
)

// Config holds process-level overrides. Tests use it to isolate the CLI
// from the user's config, keyring and terminal.
type Config struct {
	ConfigPath string              // config file; empty uses $XDG_CONFIG_HOME/taskdeck/config.yaml
	DBPath     string              // overrides store.path
	Keyring    credentials.Keyring // nil uses the system keyring
	Getenv     func(string) string // nil uses os.Getenv
	Stdin      io.Reader           // nil uses os.Stdin
	Now        func() time.Time
}

func (c *Config) stdin() io.Reader {
	if c.Stdin != nil {
		return c.Stdin
	}
	return os.Stdin
}

func (c *Config) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Config) manager() *credentials.Manager {
	var opts []credentials.ManagerOption
	if c.Keyring != nil {
		opts = append(opts, credentials.WithKeyring(c.Keyring))
	}
	if c.Getenv != nil {
		opts = append(opts, credentials.WithGetenv(c.Getenv))
	}
	return credentials.NewManager(opts...)
}

// Execute runs the CLI with the given arguments and IO writers
func Execute(args []string, stdout, stderr io.Writer, cfg *Config) int {
	rootCmd := NewTaskdeck(stdout, stderr, cfg)

	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.Execute(); err != nil {
		if containsJSONFlag(args) {
			outputErrorJSON(err, stdout)
		} else {
			_, _ = fmt.Fprintln(stderr, "Error:", err)
		}
		return 1
	}
	return 0
}

// containsJSONFlag checks if args contain --json flag
func containsJSONFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--json" {
			return true
		}
	}
	return false
}

// NewTaskdeck creates the root command with injectable IO
func NewTaskdeck(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	if cfg == nil {
		cfg = &Config{}
	}

	cmd := &cobra.Command{
		Use:     "taskdeck",
		Short:   "A terminal client for the task-manager server",
		Long:    "taskdeck shows your tasks as a board, a calendar and a list, and edits them against the task-manager REST server.",
		Version: Version,
		Args:    cobra.NoArgs,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				utils.SetVerboseMode(true)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// the board is the default on a terminal
			if cfg.Stdin == nil && term.IsTerminal(int(os.Stdout.Fd())) {
				return runTUI(cmd, cfg, "")
			}
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "V", false, "Enable verbose/debug output")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().String("config", "", "Path to the config file")

	cmd.AddCommand(newTUICmd(cfg))
	cmd.AddCommand(newTasksCmd(stdout, cfg))
	cmd.AddCommand(newShowCmd(stdout, cfg))
	cmd.AddCommand(newAddCmd(stdout, cfg))
	cmd.AddCommand(newMoveCmd(stdout, cfg))
	cmd.AddCommand(newFinishCmd(stdout, cfg))
	cmd.AddCommand(newDeleteCmd(stdout, cfg))
	cmd.AddCommand(newCalendarCmd(stdout, cfg))
	cmd.AddCommand(newStatusesCmd(stdout, cfg))
	cmd.AddCommand(newPrioritiesCmd(stdout, cfg))
	cmd.AddCommand(newRefetchCmd(stdout, cfg))
	cmd.AddCommand(newHistoryCmd(stdout, cfg))
	cmd.AddCommand(newCredentialsCmd(stdout, cfg))
	cmd.AddCommand(newVersionCmd(stdout))

	return cmd
}

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _ = fmt.Fprintf(stdout, "taskdeck version %s\n", Version)
			return nil
		},
	}
}

// =============================================================================
// Session wiring
// =============================================================================

// loadConfig reads the config file named by --config or cfg and applies
// the process overrides.
func loadConfig(cmd *cobra.Command, cfg *Config) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = cfg.ConfigPath
	}
	c, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if cfg.DBPath != "" {
		c.Store.Path = cfg.DBPath
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.Logging.Verbose {
		utils.SetVerboseMode(true)
	}
	return c, nil
}

// session is one command's connection to the server and the local store.
type session struct {
	cfg    *config.Config
	creds  *credentials.Session
	client *rest.Client
	store  *store.Store
	app    *app.App
}

func openSession(cmd *cobra.Command, cfg *Config) (*session, error) {
	c, err := loadConfig(cmd, cfg)
	if err != nil {
		return nil, err
	}

	creds := credentials.NewSession(cfg.manager(), c.Server.BaseURL, c.Server.Account)
	client, err := rest.New(rest.Config{
		BaseURL:          c.Server.BaseURL,
		Timeout:          c.GetTimeout(),
		AuthScheme:       c.GetAuthScheme(),
		MaxRetries:       c.GetMaxRetries(),
		RetryBaseDelay:   c.GetRetryBaseDelay(),
		BreakerThreshold: c.GetBreakerThreshold(),
		BreakerCooldown:  c.GetBreakerCooldown(),
	}, creds)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(c.Store.Path)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	opts := app.Options{
		Gate:           creds,
		Refresh:        st.RefreshSignal(),
		Journal:        st,
		TTL:            c.GetCacheTTL(),
		FinishedStatus: c.UI.FinishedStatusID,
	}
	if c.IsSnapshotPersistenceEnabled() {
		opts.Snapshots = st
	}

	return &session{
		cfg:    c,
		creds:  creds,
		client: client,
		store:  st,
		app:    app.New(client, opts),
	}, nil
}

func (s *session) Close() error {
	return errors.Join(s.app.Close(), s.store.Close())
}

// friendly maps transport and session failures onto errors with a
// suggestion for the user.
func (s *session) friendly(err error) error {
	server := credentials.NormalizeServer(s.cfg.Server.BaseURL)
	var suggestion *utils.ErrorWithSuggestion
	var urlErr *url.Error
	switch {
	case err == nil, errors.As(err, &suggestion):
		return err
	case errors.Is(err, fetch.ErrNoCredential), errors.Is(err, credentials.ErrNoToken):
		return utils.ErrNoCredential(server)
	case errors.Is(err, backend.ErrSessionInvalid):
		return utils.ErrSessionExpired(err)
	case errors.Is(err, breaker.ErrOpen):
		return utils.ErrServerOffline(server, err.Error())
	case errors.As(err, &urlErr):
		return utils.ErrServerOffline(server, urlErr.Err.Error())
	}
	return err
}

// withSession opens a session, runs fn and closes the session.
func withSession(cmd *cobra.Command, cfg *Config, fn func(ctx context.Context, s *session) error) error {
	s, err := openSession(cmd, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	return s.friendly(fn(cmd.Context(), s))
}

// =============================================================================
// JSON output
// =============================================================================

type actionResponse struct {
	Action string `json:"action"`
	TaskID int64  `json:"task_id,omitempty"`
	Result string `json:"result"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Code   int    `json:"code"`
	Result string `json:"result"`
}

func writeJSON(stdout io.Writer, v any) error {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(stdout, string(jsonBytes))
	return nil
}

// outputActionJSON reports a completed mutation
func outputActionJSON(stdout io.Writer, action string, taskID int64) error {
	return writeJSON(stdout, actionResponse{Action: action, TaskID: taskID, Result: ResultActionCompleted})
}

// outputErrorJSON outputs error in JSON format
func outputErrorJSON(err error, stdout io.Writer) {
	_ = writeJSON(stdout, errorResponse{
		Error:  err.Error(),
		Code:   1,
		Result: ResultError,
	})
}

func jsonFlag(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"taskdeck/internal/config"
	"taskdeck/internal/shutdown"
	"taskdeck/internal/store"
	"taskdeck/internal/tui"
	"taskdeck/internal/utils"
	"taskdeck/internal/watcher"
)

func newTUICmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive board",
		Long:  "Open the board, calendar and list screens. Only one instance runs per data directory.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			screen, _ := cmd.Flags().GetString("screen")
			return runTUI(cmd, cfg, screen)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().String("screen", "", "Start screen: board, calendar or list (default from ui.start_screen)")
	return cmd
}

// runTUI owns the terminal until the user quits. Logs go to a file so they
// do not corrupt the screen.
func runTUI(cmd *cobra.Command, cfg *Config, screen string) error {
	c, err := loadConfig(cmd, cfg)
	if err != nil {
		return err
	}
	if screen == "" {
		screen = c.UI.StartScreen
	}

	lock, err := store.AcquireLock(filepath.Dir(c.Store.Path))
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	bl, err := utils.NewBackgroundLoggerWithEnabled(c.IsBackgroundLoggingEnabled(), config.GetCacheDir())
	if err != nil {
		utils.Warnf("background log unavailable: %v", err)
	}
	restoreLog := utils.GetLogger().SetOutput(bl)
	defer func() {
		restoreLog()
		bl.Close()
	}()

	s, err := openSession(cmd, cfg)
	if err != nil {
		return err
	}

	sm := shutdown.NewManager()
	stop := sm.NotifyOnSignal(cmd.Context())
	defer stop()
	sm.RegisterCloser("session", s)

	if days := c.GetJournalRetentionDays(); days > 0 {
		if n, err := s.store.Cleanup(cmd.Context(), days); err != nil {
			utils.Warnf("journal cleanup: %v", err)
		} else if n > 0 {
			utils.Debugf("journal cleanup removed %d entries", n)
		}
	}
	if n := s.app.RestoreSnapshots(cmd.Context()); n > 0 {
		utils.Debugf("restored %d cached collections", n)
	}

	model := tui.New(s.app, tui.Options{Start: tui.ParseScreen(screen)})
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(sm.Context()))

	if c.IsWatcherEnabled() {
		if err := startWatcher(sm, c, s.store, program); err != nil {
			utils.Warnf("refresh watcher disabled: %v", err)
		}
	}

	_, runErr := program.Run()
	interrupted := sm.IsShutdown()
	model.Close()
	sm.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sm.Wait(ctx); err != nil {
		utils.Warnf("shutdown: %v", err)
	}
	if runErr != nil && !interrupted {
		return fmt.Errorf("tui: %w", runErr)
	}
	return nil
}

// startWatcher forwards changes to the store file, made by `taskdeck
// refetch` in another process, to the running program.
func startWatcher(sm *shutdown.Manager, c *config.Config, st *store.Store, program *tea.Program) error {
	w, err := watcher.New(&watcher.Config{
		Paths:            []string{st.Dir()},
		DebounceDuration: c.GetWatcherDebounce(),
		Match:            watcher.MatchPrefix(filepath.Base(st.Path())),
		OnChange:         func() { program.Send(tui.RefreshMsg{}) },
	})
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		_ = w.Close()
		return err
	}
	sm.RegisterCloser("watcher", w)
	return nil
}

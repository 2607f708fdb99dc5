// Package main provides the CLI entrypoint for klsim.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/klsim/internal/config"
	"github.com/verte-zerg/klsim/internal/engine"
	"github.com/verte-zerg/klsim/internal/logging"
	"github.com/verte-zerg/klsim/internal/metrics"
	"github.com/verte-zerg/klsim/internal/model"
	"github.com/verte-zerg/klsim/internal/prefs"
	"github.com/verte-zerg/klsim/internal/scenario"
	"github.com/verte-zerg/klsim/internal/store"
	"github.com/verte-zerg/klsim/internal/tui"
	"github.com/verte-zerg/klsim/internal/vault"
)

var (
	simAutoBlock     bool
	simScanDuration  time.Duration
	simPlaybackSpeed time.Duration
	simMedium        int
	simHigh          int
	scenarioPack     string

	sandboxScenario string
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	defaults := model.DefaultSettings()
	rootCmd := &cobra.Command{
		Use:           "klsim",
		Short:         "Keylogger awareness sandbox",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runSandboxCmd,
	}
	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&simAutoBlock, "auto-block", defaults.AutoBlockingEnabled, "block input automatically on high risk")
	flags.DurationVar(&simScanDuration, "scan-duration", defaults.AVScanDuration, "simulated antivirus scan duration")
	flags.DurationVar(&simPlaybackSpeed, "playback-speed", defaults.ScenarioPlaybackSpeed, "delay between scenario keystrokes")
	flags.IntVar(&simMedium, "medium", defaults.RiskThresholds.Medium, "pattern score above which risk is Medium")
	flags.IntVar(&simHigh, "high", defaults.RiskThresholds.High, "pattern score above which risk is High")
	flags.StringVar(&scenarioPack, "pack", "", "YAML scenario pack to merge into the catalog")

	rootCmd.Flags().StringVar(&sandboxScenario, "scenario", "", "scenario ID or text to play on start")

	rootCmd.AddCommand(newScenariosCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newPrefsCmd())
	rootCmd.AddCommand(newQuizCmd())

	return rootCmd
}

func runSandboxCmd(cmd *cobra.Command, _ []string) error {
	cfgPath := config.DefaultConfigPath()
	fileCfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	patch, err := settingsPatch(cmd, fileCfg)
	if err != nil {
		return err
	}
	catalog, err := loadCatalog(cmd, fileCfg)
	if err != nil {
		return err
	}

	logPath := config.DefaultLogPath()
	if fileCfg.Log.File != nil {
		logPath = *fileCfg.Log.File
	}
	logger, logCloser, err := logging.OpenFile(logPath, deref(fileCfg.Log.Level), deref(fileCfg.Log.Format))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := logCloser.Close(); cerr != nil {
			logErrf("failed to close log: %v\n", cerr)
		}
	}()

	prefStore, err := prefs.Open(config.DefaultPrefsPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to open preferences: %w", err)
	}

	st, err := openStore()
	if err != nil {
		logger.Warn("report history disabled", "error", err)
	} else {
		defer closeStore(st)
	}

	recorder := metrics.New()
	e := engine.New(engine.WithLogger(logger), engine.WithMetrics(recorder))
	defer e.Close()
	e.UpdateSettings(patch)
	logger.Info("sandbox started", "session", e.Snapshot().SessionID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		err := config.Watch(ctx, cfgPath, logger, func(fc config.FileConfig) {
			p, err := settingsPatch(cmd, fc)
			if err != nil {
				logger.Warn("ignoring invalid config", "error", err)
				return
			}
			e.UpdateSettings(p)
			logger.Info("config reloaded")
		})
		if err != nil {
			logger.Warn("config watch stopped", "error", err)
		}
	}()

	m := tui.NewModel(tui.Options{
		Engine:    e,
		Catalog:   catalog,
		Prefs:     prefStore,
		Store:     st,
		Logger:    logger,
		ReportDir: config.DefaultReportDir(),
		Scenario:  sandboxScenario,
	})
	defer m.Close()
	program := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	logMetrics(logger, recorder)
	return nil
}

// settingsPatch merges the config file simulation section with explicitly
// set flags. Flags win.
func settingsPatch(cmd *cobra.Command, fc config.FileConfig) (model.SettingsPatch, error) {
	patch, err := fc.Simulation.Patch()
	if err != nil {
		return model.SettingsPatch{}, fmt.Errorf("failed to read simulation config: %w", err)
	}
	overrideFlag(cmd, "auto-block", &patch.AutoBlockingEnabled, simAutoBlock)
	overrideFlag(cmd, "scan-duration", &patch.AVScanDuration, simScanDuration)
	overrideFlag(cmd, "playback-speed", &patch.ScenarioPlaybackSpeed, simPlaybackSpeed)
	overrideFlag(cmd, "medium", &patch.MediumThreshold, simMedium)
	overrideFlag(cmd, "high", &patch.HighThreshold, simHigh)
	return patch, nil
}

func overrideFlag[T any](cmd *cobra.Command, name string, target **T, value T) {
	if !cmd.Flags().Changed(name) {
		return
	}
	v := value
	*target = &v
}

func loadCatalog(cmd *cobra.Command, fc config.FileConfig) (*scenario.Catalog, error) {
	catalog := scenario.Builtin()
	path := ""
	if fc.Scenarios.Pack != nil {
		path = *fc.Scenarios.Pack
	}
	if cmd.Flags().Changed("pack") {
		path = scenarioPack
	}
	if path == "" {
		return catalog, nil
	}
	extra, err := scenario.LoadPack(path)
	if err != nil {
		return nil, err
	}
	catalog.Merge(extra)
	return catalog, nil
}

func openStore() (*store.Store, error) {
	key, err := vault.LoadOrCreateKey(config.DefaultKeyPath())
	if err != nil {
		return nil, err
	}
	v, err := vault.New(key)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(config.DefaultDBPath(), v)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	return st, nil
}

func closeStore(st *store.Store) {
	if cerr := st.Close(); cerr != nil {
		logErrf("failed to close db: %v\n", cerr)
	}
}

func logMetrics(logger *slog.Logger, recorder *metrics.Recorder) {
	samples, err := recorder.Gather()
	if err != nil {
		logger.Warn("failed to gather metrics", "error", err)
		return
	}
	for _, s := range samples {
		logger.Debug("metric", "name", s.Name, "labels", s.Labels, "value", s.Value)
	}
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(config.Template), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

// stderrLogger builds the logger for headless commands.
func stderrLogger(fc config.FileConfig) *slog.Logger {
	return logging.New(deref(fc.Log.Level), deref(fc.Log.Format), os.Stderr)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func writeLines(w io.Writer, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}

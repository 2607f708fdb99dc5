package main

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/klsim/internal/config"
	"github.com/verte-zerg/klsim/internal/engine"
	"github.com/verte-zerg/klsim/internal/metrics"
	"github.com/verte-zerg/klsim/internal/model"
	"github.com/verte-zerg/klsim/internal/prefs"
	"github.com/verte-zerg/klsim/internal/report"
	"github.com/verte-zerg/klsim/internal/scenario"
	"github.com/verte-zerg/klsim/internal/stats"
	"github.com/verte-zerg/klsim/internal/statsui"
)

const (
	defaultRandomWords = 8
	defaultHistoryLast = 20
	defaultCurveWindow = 1
	defaultHistoryKeys = 10
)

var (
	runRandom    bool
	runWords     int
	runFocus     []string
	runScan      bool
	runMetrics   bool
	runSave      bool
	runReportDir string

	historyLast   int
	historyWindow int
	historyTUI    bool

	prefsDensity       string
	prefsReducedMotion bool
	prefsVideo         string
	prefsClearVideo    string
)

func newScenariosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List scenarios",
		Args:  cobra.NoArgs,
		RunE:  runScenariosCmd,
	}
}

func runScenariosCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	catalog, err := loadCatalog(cmd, fileCfg)
	if err != nil {
		return err
	}
	rows := [][]string{}
	for _, s := range catalog.All() {
		name := s.Name
		if s.Recommended {
			name += " *"
		}
		rows = append(rows, []string{s.ID, name, s.Expected})
	}
	return writeLines(cmd.OutOrStdout(), stats.FormatTable([]string{"ID", "Name", "Expected"}, rows, nil))
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [scenario|text]",
		Short: "Play a scenario headlessly and print the result",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runRunCmd,
	}
	cmd.Flags().BoolVar(&runRandom, "random", false, "play generated text instead of a scenario")
	cmd.Flags().IntVar(&runWords, "words", defaultRandomWords, "words of generated text for --random")
	cmd.Flags().StringSliceVar(&runFocus, "focus", nil, "bias --random toward words containing these substrings")
	cmd.Flags().BoolVar(&runScan, "scan", false, "run an antivirus scan after playback")
	cmd.Flags().BoolVar(&runMetrics, "metrics", false, "print collected metrics")
	cmd.Flags().BoolVar(&runSave, "save", false, "write a report file and record it in history")
	cmd.Flags().StringVar(&runReportDir, "report-dir", "", "report directory (default: XDG data dir)")
	return cmd
}

func runRunCmd(cmd *cobra.Command, args []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
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

	var text string
	switch {
	case runRandom:
		if runWords <= 0 {
			return fmt.Errorf("--words must be > 0")
		}
		gen := scenario.NewGenerator()
		if len(runFocus) > 0 {
			text = gen.FocusedPhrase(runWords, runFocus)
		} else {
			text = gen.Phrase(runWords)
		}
	case len(args) == 1:
		text = catalog.Text(args[0])
	default:
		return fmt.Errorf("a scenario ID or text is required (see: klsim scenarios)")
	}

	logger := stderrLogger(fileCfg)
	recorder := metrics.New()
	e := engine.New(engine.WithLogger(logger), engine.WithMetrics(recorder))
	defer e.Close()
	e.UpdateSettings(patch)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := <-e.RunScenario(ctx, text); err != nil {
		return fmt.Errorf("playback interrupted: %w", err)
	}
	if runScan {
		if err := scanAndWait(ctx, e); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if err := printSnapshot(out, e.Snapshot()); err != nil {
		return err
	}
	if runMetrics {
		if err := printMetrics(out, recorder); err != nil {
			return err
		}
	}
	if runSave {
		return saveReport(out, e.ReportSnapshot())
	}
	return nil
}

// scanAndWait starts a scan and blocks until it completes.
func scanAndWait(ctx context.Context, e *engine.Engine) error {
	updates, unsubscribe := e.Subscribe()
	defer unsubscribe()
	e.StartAVScan()
	if e.Snapshot().AVStatus != model.AVScanning {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("scan interrupted: %w", ctx.Err())
		case snap, ok := <-updates:
			if !ok {
				return errors.New("engine closed during scan")
			}
			if snap.AVStatus != model.AVScanning {
				return nil
			}
		}
	}
}

func printSnapshot(w io.Writer, snap model.Snapshot) error {
	reasons := "none"
	if len(snap.Reasons) > 0 {
		reasons = strings.Join(snap.Reasons, ", ")
	}
	return writeLines(w, []string{
		fmt.Sprintf("Text: %s", html.UnescapeString(snap.DemoInput)),
		fmt.Sprintf("Risk: %s (peak %s)", snap.RiskLevel, snap.PeakRisk),
		fmt.Sprintf("Pattern score: %d", snap.PatternScore),
		fmt.Sprintf("Typing speed: %.1f keys/s", snap.TypingSpeed),
		fmt.Sprintf("Signals: %s", reasons),
		fmt.Sprintf("Keystrokes captured: %d", len(snap.CapturedStream)),
		fmt.Sprintf("Blocked: %t (auto-blocks %d)", snap.IsBlocked, snap.BlockCount),
		fmt.Sprintf("Antivirus: %s (scans %d)", snap.AVStatus, snap.ScanCount),
		fmt.Sprintf("Timeline stage: %d", snap.TimelineStage),
	})
}

func printMetrics(w io.Writer, recorder *metrics.Recorder) error {
	samples, err := recorder.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	rows := make([][]string, 0, len(samples))
	for _, s := range samples {
		rows = append(rows, []string{s.Name, s.Labels, fmt.Sprintf("%g", s.Value)})
	}
	return writeLines(w, append([]string{""}, stats.FormatTable([]string{"Metric", "Labels", "Value"}, rows, map[int]bool{2: true})...))
}

func saveReport(w io.Writer, snap model.ReportSnapshot) error {
	dir := runReportDir
	if dir == "" {
		dir = config.DefaultReportDir()
	}
	now := time.Now()
	path, err := report.WriteFile(dir, snap, now)
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)
	if _, err := st.InsertReport(context.Background(), snap, stats.KeyFrequency(snap.CapturedStream), now); err != nil {
		return fmt.Errorf("failed to record report: %w", err)
	}
	_, err = fmt.Fprintf(w, "Report saved to %s\n", path)
	return err
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show saved session reports",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	cmd.Flags().IntVar(&historyLast, "last", defaultHistoryLast, "limit to last N reports (0 for all)")
	cmd.Flags().IntVar(&historyWindow, "curve-window", defaultCurveWindow, "moving average window")
	cmd.Flags().BoolVar(&historyTUI, "tui", false, "browse history interactively")
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	if historyLast < 0 {
		return fmt.Errorf("--last must be >= 0")
	}
	if historyWindow < 1 {
		return fmt.Errorf("--curve-window must be >= 1")
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	if historyTUI {
		program := tea.NewProgram(statsui.NewModel(st, statsui.Config{Last: historyLast, CurveWindow: historyWindow}), tea.WithAltScreen())
		if _, err := program.Run(); err != nil {
			return fmt.Errorf("failed to run history TUI: %w", err)
		}
		return nil
	}

	history, err := stats.BuildHistory(cmd.Context(), st, historyLast)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	out := cmd.OutOrStdout()
	if err := stats.RenderHistorySummary(out, history.Records); err != nil {
		return err
	}
	newestFirst := append([]model.ReportRecord(nil), history.Records...)
	sort.SliceStable(newestFirst, func(i, j int) bool {
		return newestFirst[i].CreatedAt.After(newestFirst[j].CreatedAt)
	})
	if err := stats.RenderHistoryTable(out, newestFirst, time.Now()); err != nil {
		return err
	}
	if len(history.Records) == 0 {
		return nil
	}
	if err := stats.RenderKeyTable(out, history.KeyCounts, defaultHistoryKeys); err != nil {
		return err
	}
	return stats.RenderRiskCurves(out, history.Records, historyWindow, stats.TerminalWidth(), false)
}

func newPrefsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show or change appearance preferences and scenario videos",
		Args:  cobra.NoArgs,
		RunE:  runPrefsCmd,
	}
	cmd.Flags().StringVar(&prefsDensity, "density", "", "layout density (comfortable or compact)")
	cmd.Flags().BoolVar(&prefsReducedMotion, "reduced-motion", false, "disable animations")
	cmd.Flags().StringVar(&prefsVideo, "video", "", "custom video link as scenario=url")
	cmd.Flags().StringVar(&prefsClearVideo, "clear-video", "", "scenario whose custom video link to remove")
	return cmd
}

func runPrefsCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	store, err := prefs.Open(config.DefaultPrefsPath(), stderrLogger(fileCfg))
	if err != nil {
		return fmt.Errorf("failed to open preferences: %w", err)
	}

	if cmd.Flags().Changed("density") {
		if err := store.SetDensity(prefs.Density(prefsDensity)); err != nil {
			return fmt.Errorf("failed to set density: %w", err)
		}
	}
	if cmd.Flags().Changed("reduced-motion") {
		if err := store.SetReducedMotion(prefsReducedMotion); err != nil {
			return fmt.Errorf("failed to set reduced motion: %w", err)
		}
	}
	if prefsVideo != "" {
		id, link, ok := strings.Cut(prefsVideo, "=")
		if !ok || id == "" {
			return fmt.Errorf("--video must be scenario=url")
		}
		if !store.SaveCustomVideo(id, link) {
			return fmt.Errorf("not a YouTube link: %q", link)
		}
	}
	if prefsClearVideo != "" {
		store.ClearCustomVideo(prefsClearVideo)
	}

	catalog, err := loadCatalog(cmd, fileCfg)
	if err != nil {
		return err
	}
	appearance := store.Appearance()
	lines := []string{
		fmt.Sprintf("Density: %s", appearance.Density),
		fmt.Sprintf("Reduced motion: %t", appearance.ReducedMotion),
	}
	rows := [][]string{}
	for _, s := range catalog.All() {
		url, ok := store.VideoFor(s.ID)
		if !ok {
			continue
		}
		source := "builtin"
		if _, custom := store.CustomVideo(s.ID); custom {
			source = "custom"
		}
		rows = append(rows, []string{s.ID, source, url})
	}
	if len(rows) > 0 {
		lines = append(lines, "", "Scenario videos")
		lines = append(lines, stats.FormatTable([]string{"Scenario", "Source", "Embed"}, rows, nil)...)
	}
	return writeLines(cmd.OutOrStdout(), lines)
}

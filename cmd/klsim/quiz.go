package main

import (
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/klsim/internal/config"
	"github.com/verte-zerg/klsim/internal/quizui"
	"github.com/verte-zerg/klsim/internal/scenario"
)

var quizLearn bool

func newQuizCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quiz [scenario]",
		Short: "Take the awareness quiz or a scenario quiz",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runQuizCmd,
	}
	cmd.Flags().BoolVar(&quizLearn, "learn", false, "print the scenario lesson instead of starting the quiz")
	return cmd
}

func runQuizCmd(cmd *cobra.Command, args []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	catalog, err := loadCatalog(cmd, fileCfg)
	if err != nil {
		return err
	}
	id := ""
	if len(args) == 1 {
		id = args[0]
	}
	cfg, err := quizConfig(scenario.BuiltinLibrary(), catalog, id)
	if err != nil {
		return err
	}
	if quizLearn {
		if cfg.Lesson == nil {
			return fmt.Errorf("--learn requires a scenario ID")
		}
		return writeLesson(cmd.OutOrStdout(), *cfg.Lesson)
	}
	if _, err := tea.NewProgram(quizui.NewModel(cfg), tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("failed to run quiz: %w", err)
	}
	return nil
}

// quizConfig selects the awareness quiz for an empty id, otherwise the
// scenario's lesson and questions.
func quizConfig(lib *scenario.Library, catalog *scenario.Catalog, id string) (quizui.Config, error) {
	if id == "" {
		return quizui.Config{Title: "Keylogger awareness quiz", Questions: lib.Awareness()}, nil
	}
	questions, ok := lib.Quiz(id)
	if !ok {
		return quizui.Config{}, fmt.Errorf("no quiz for scenario %q (see: klsim scenarios)", id)
	}
	title := id
	if s, ok := catalog.Lookup(id); ok {
		title = s.Name
	}
	cfg := quizui.Config{Title: title + " quiz", Questions: questions}
	if lesson, ok := lib.Lesson(id); ok {
		cfg.Lesson = &lesson
	}
	return cfg, nil
}

func writeLesson(w io.Writer, lesson scenario.Lesson) error {
	_, err := fmt.Fprintf(w, "%s\n\n%s\n", lesson.Title, lesson.Body)
	if err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"infra-chatops/internal/bootstrap"
	"infra-chatops/internal/common/runner"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load every catalog and check that all workflows can run",
	Args:  cobra.NoArgs,
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, _ []string) error {
	cfg, cats, err := loadAll()
	if err != nil {
		return err
	}

	handlers, err := bootstrap.BuildHandlers(cfg, bootstrap.Integrations{Runner: runner.NewScriptedRunner()}, newLogger())
	if err != nil {
		return err
	}
	if _, err := bootstrap.NewEngine(cfg, cats, handlers, newLogger()); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "  ✓ %d entity types\n", len(cats.Entities.Types()))
	fmt.Fprintf(out, "  ✓ %d intents\n", len(cats.Library.Intents()))
	fmt.Fprintf(out, "  ✓ %d workflows: %v\n", len(cats.Templates.Names()), cats.Templates.Names())
	fmt.Fprintf(out, "  ✓ %d command templates\n", len(cats.Commands.Intents()))
	fmt.Fprintf(out, "  ✓ %d step types in registry %s\n", len(cats.Registry.IDs()), cats.Registry.Version)
	if unmapped := cats.Commands.Unmapped(); len(unmapped) > 0 {
		fmt.Fprintf(out, "  ⚠ intents without a command template: %v\n", unmapped)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"infra-chatops/internal/bootstrap"
	"infra-chatops/internal/interpreter"
)

var interpretCmd = &cobra.Command{
	Use:   "interpret [text...]",
	Short: "Show how chat text is interpreted and which workflow it starts",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runInterpret,
}

type interpretation struct {
	Command    *interpreter.Command   `json:"command,omitempty"`
	Rejection  *interpreter.Rejection `json:"rejection,omitempty"`
	Workflow   string                 `json:"workflow,omitempty"`
	Parameters map[string]string      `json:"parameters,omitempty"`
	Direct     bool                   `json:"direct,omitempty"`
}

func runInterpret(_ *cobra.Command, args []string) error {
	cfg, cats, err := loadAll()
	if err != nil {
		return err
	}
	in := bootstrap.NewInterpreter(cfg, cats)

	var out interpretation
	cmd, err := in.Interpret(strings.Join(args, " "))
	if err != nil {
		if !errors.As(err, &out.Rejection) {
			return err
		}
		return printJSON(out)
	}
	out.Command = cmd

	if cats.Commands.IsDirect(cmd.Intent) {
		out.Direct = true
		return printJSON(out)
	}
	inst, err := cats.Commands.Materialize(cmd)
	if err != nil {
		return fmt.Errorf("materialize: %w", err)
	}
	out.Workflow = inst.Template.Name
	out.Parameters = inst.Parameters
	return printJSON(out)
}

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Interpret every example utterance in the intent library",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, cats, err := loadAll()
		if err != nil {
			return err
		}
		failures := bootstrap.NewInterpreter(cfg, cats).SelfTest()
		for _, f := range failures {
			fmt.Fprintf(cmd.OutOrStdout(), "  ✗ [%s] %q: %s\n", f.Intent, f.Text, f.Problem)
		}
		if len(failures) > 0 {
			return fmt.Errorf("%d example(s) failed", len(failures))
		}
		fmt.Fprintln(cmd.OutOrStdout(), "  ✓ all examples interpreted as documented")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(interpretCmd)
	rootCmd.AddCommand(selftestCmd)
}

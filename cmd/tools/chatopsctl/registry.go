package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"infra-chatops/internal/workflow"
	"infra-chatops/pkg/registry"
)

var registryWrite bool

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Maintain the step registry",
}

var registrySyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Recompute which workflows use each step type",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, cats, err := loadAll()
		if err != nil {
			return err
		}
		changed := syncWorkflows(cats.Registry, cats.Templates)
		if len(changed) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "registry is up to date")
			return nil
		}
		for _, id := range changed {
			st, _ := cats.Registry.Lookup(id)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", id, st.Workflows)
		}
		if !registryWrite {
			fmt.Fprintln(cmd.OutOrStdout(), "dry run, pass --write to save")
			return nil
		}
		return cats.Registry.Save(cfg.Catalog.StepRegistryFile)
	},
}

var registrySetCmd = &cobra.Command{
	Use:   "set <id> <field> <value>",
	Short: "Update one field of a step type (status, version, timeout, retries, description)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path := cfg.Catalog.StepRegistryFile
		reg, err := registry.LoadRegistry(path)
		if err != nil {
			return err
		}
		if err := setField(reg, args[0], args[1], args[2]); err != nil {
			return err
		}
		if err := reg.Save(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "updated %s.%s\n", args[0], args[1])
		return nil
	},
}

// syncWorkflows rewrites every step type's workflow list from the loaded
// templates and returns the ids whose list changed.
func syncWorkflows(reg *registry.StepRegistry, templates *workflow.TemplateSet) []string {
	uses := map[string]map[string]bool{}
	for _, name := range templates.Names() {
		tmpl, _ := templates.Get(name)
		tmpl.Walk(func(s *workflow.StepSpec) {
			if uses[string(s.Type)] == nil {
				uses[string(s.Type)] = map[string]bool{}
			}
			uses[string(s.Type)][name] = true
		})
	}

	var changed []string
	for i := range reg.StepTypes {
		st := &reg.StepTypes[i]
		want := make([]string, 0, len(uses[st.ID]))
		for name := range uses[st.ID] {
			want = append(want, name)
		}
		sort.Strings(want)

		have := append([]string(nil), st.Workflows...)
		sort.Strings(have)
		if fmt.Sprint(have) != fmt.Sprint(want) {
			st.Workflows = want
			changed = append(changed, st.ID)
		}
	}
	return changed
}

func setField(reg *registry.StepRegistry, id, field, value string) error {
	st, ok := reg.Lookup(id)
	if !ok {
		return fmt.Errorf("step type %s not found", id)
	}
	switch field {
	case "status":
		st.ImplementationStatus = value
	case "version":
		st.Version = value
	case "description":
		st.Description = value
	case "timeout":
		st.Timeout = value
		if _, err := st.TimeoutDuration(); err != nil {
			return fmt.Errorf("invalid timeout %q: %w", value, err)
		}
	case "retries":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid retries value %q", value)
		}
		st.Retries = n
	default:
		return fmt.Errorf("unknown field: %s", field)
	}
	return nil
}

func init() {
	registrySyncCmd.Flags().BoolVar(&registryWrite, "write", false, "save the updated registry")
	registryCmd.AddCommand(registrySyncCmd, registrySetCmd)
	rootCmd.AddCommand(registryCmd)
}

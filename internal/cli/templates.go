package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kpetrov/driplane/internal/config"
)

// NewTemplatesCommand creates the templates command group.
func NewTemplatesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Manage message templates",
	}
	cmd.AddCommand(newTemplatesLoadCommand(rootOpts))
	cmd.AddCommand(newTemplatesListCommand(rootOpts))
	return cmd
}

func newTemplatesLoadCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load <file>",
		Short: "Load message templates from a YAML seed file",
		Long: `Load message templates from a YAML seed file.

The whole file is validated before anything is written: an unknown step,
tag, or kind in any entry rejects the file. Loaded templates are active
immediately and participate in the next scheduler tick.

Example:
  driplane templates load templates.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return loadTemplates(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func loadTemplates(opts *RootOptions, path string, cmd *cobra.Command) error {
	templates, err := config.LoadTemplates(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "load templates", err)
	}

	s, err := openStore(opts)
	if err != nil {
		return err
	}
	defer s.Close()

	now := time.Now().UTC()
	ids := make([]int64, 0, len(templates))
	for _, tmpl := range templates {
		tmpl.CreatedAt = now
		id, err := s.CreateTemplate(cmd.Context(), tmpl)
		if err != nil {
			return WrapExitError(ExitFailure, "store template", err)
		}
		ids = append(ids, id)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return formatter.SuccessText(
		map[string]any{"loaded": len(ids), "ids": ids},
		fmt.Sprintf("loaded %d templates from %s", len(ids), path),
	)
}

func newTemplatesListCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List active message templates",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listTemplates(rootOpts, cmd)
		},
	}
	return cmd
}

func listTemplates(opts *RootOptions, cmd *cobra.Command) error {
	s, err := openStore(opts)
	if err != nil {
		return err
	}
	defer s.Close()

	templates, err := s.ListActiveTemplates(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, "list templates", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if opts.Format == "json" {
		return formatter.Success(templates)
	}

	if len(templates) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no active templates")
		return nil
	}
	for _, t := range templates {
		fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t+%dm\t%s\t%s\n",
			t.ID, t.Step, t.DelayMinutes, t.Tag, t.Kind)
	}
	return nil
}

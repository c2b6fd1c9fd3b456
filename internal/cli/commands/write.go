package commands

import (
	"fmt"

	"github.com/conduit-lang/nestwrite/internal/app"
	"github.com/conduit-lang/nestwrite/internal/cli/ui"
	"github.com/conduit-lang/nestwrite/internal/nested"
	"github.com/spf13/cobra"
)

func newCreateCommand(opts *globalOptions) *cobra.Command {
	var payload payloadFlags

	cmd := &cobra.Command{
		Use:   "create <resource>",
		Short: "Create a record together with its nested relations",
		Long: `Create a record from a JSON payload. Nested objects and arrays under a
relation attribute are created, updated or linked in the same transaction.`,
		Example: `  nestwrite create Post --json '{"title": "Hello", "genre": {"name": "News"}}'
  nestwrite create Post --data post.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := payload.read(cmd)
			if err != nil {
				return err
			}
			resource := args[0]
			return opts.withApp(cmd, resource, func(a *app.App) error {
				result, err := a.Create(cmd.Context(), resource, data)
				if err != nil {
					return err
				}
				return printResult(cmd, opts, resource, result)
			})
		},
	}
	payload.register(cmd)
	return cmd
}

func newUpdateCommand(opts *globalOptions) *cobra.Command {
	var (
		payload payloadFlags
		by      string
	)

	cmd := &cobra.Command{
		Use:   "update <resource> <id>",
		Short: "Update a record together with its nested relations",
		Example: `  nestwrite update Post 1 --json '{"comments": [{"id": 3, "body": "edited"}]}'
  nestwrite update Post hello-world --by slug --data post.json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := payload.read(cmd)
			if err != nil {
				return err
			}
			resource := args[0]
			return opts.withApp(cmd, resource, func(a *app.App) error {
				result, err := a.Update(cmd.Context(), resource, args[1], by, data)
				if err != nil {
					return err
				}
				return printResult(cmd, opts, resource, result)
			})
		},
	}
	payload.register(cmd)
	cmd.Flags().StringVar(&by, "by", "", "field identifying the record (default primary key)")
	return cmd
}

// printResult writes the record as JSON to stdout and a summary to stderr
func printResult(cmd *cobra.Command, opts *globalOptions, resource string, result *nested.Result) error {
	out := app.NewOutput(resource, result)
	if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
		return err
	}
	ui.WriteSuccess(cmd.ErrOrStderr(), fmt.Sprintf("%s saved (%s)", resource, out.Action), opts.colorless())
	return nil
}

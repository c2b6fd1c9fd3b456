package commands

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/nestwrite/internal/app"
	"github.com/conduit-lang/nestwrite/internal/cli/ui"
	"github.com/spf13/cobra"
)

func newValidateCommand(opts *globalOptions) *cobra.Command {
	var (
		payload payloadFlags
		update  bool
	)

	cmd := &cobra.Command{
		Use:   "validate <resource>",
		Short: "Validate a payload without writing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := payload.read(cmd)
			if err != nil {
				return err
			}
			resource := args[0]
			return opts.withApp(cmd, resource, func(a *app.App) error {
				messages, err := a.Validate(cmd.Context(), resource, data, !update)
				if err != nil {
					return err
				}
				if messages.HasErrors() {
					return messages
				}
				ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("%s payload is valid", resource), opts.colorless())
				return nil
			})
		},
	}
	payload.register(cmd)
	cmd.Flags().BoolVar(&update, "update", false, "validate with the update rules")
	return cmd
}

func newRulesCommand(opts *globalOptions) *cobra.Command {
	var (
		payload payloadFlags
		update  bool
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "rules <resource>",
		Short: "Show the rules a payload would be validated with",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := payload.read(cmd)
			if err != nil {
				return err
			}
			resource := args[0]
			return opts.withApp(cmd, resource, func(a *app.App) error {
				ruleMap, err := a.Rules(cmd.Context(), resource, data, !update)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), ruleMap.Tokens())
				}

				table := ui.NewTable(cmd.OutOrStdout(), []string{"Path", "Rules"}, &ui.TableOptions{NoColor: opts.colorless()})
				for _, path := range ruleMap.Keys() {
					table.AddRow(path, strings.Join(ruleMap[path], " | "))
				}
				table.Render()
				return nil
			})
		},
	}
	payload.register(cmd)
	cmd.Flags().BoolVar(&update, "update", false, "show the update rules")
	cmd.Flags().BoolVar(&asJSON, "output-json", false, "print the rules as JSON")
	return cmd
}

func newSchemaCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema [resource]",
		Short: "List resources, or the nested relations of one resource",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return opts.withApp(cmd, "", func(a *app.App) error {
					return listResources(cmd, opts, a)
				})
			}
			resource := args[0]
			return opts.withApp(cmd, resource, func(a *app.App) error {
				descs, err := a.Relations(resource)
				if err != nil {
					return err
				}

				ui.Header(cmd.OutOrStdout(), resource, opts.colorless())
				table := ui.NewTable(cmd.OutOrStdout(),
					[]string{"Relation", "Kind", "Related", "Foreign key", "Create", "Update", "Detach"},
					&ui.TableOptions{NoColor: opts.colorless()})
				for _, desc := range descs {
					info := app.Describe(desc)
					table.AddRow(info.Name, info.Kind, info.Related, info.ForeignKey, info.Create, info.Update, info.Detach)
				}
				table.Render()
				return nil
			})
		},
	}
}

func listResources(cmd *cobra.Command, opts *globalOptions, a *app.App) error {
	table := ui.NewTable(cmd.OutOrStdout(), []string{"Resource", "Table", "Key", "Nested"}, &ui.TableOptions{NoColor: opts.colorless()})
	for _, name := range a.Schemas.List() {
		res, _ := a.Schemas.Get(name)
		descs, err := a.Relations(name)
		if err != nil {
			return err
		}
		names := make([]string, len(descs))
		for i, desc := range descs {
			names[i] = desc.Name
		}
		table.AddRow(name, res.TableName, fmt.Sprintf("%s (%s)", res.PrimaryKey, res.KeyType), names)
	}
	table.Render()
	return nil
}

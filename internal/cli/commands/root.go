package commands

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/conduit-lang/nestwrite/internal/app"
	"github.com/conduit-lang/nestwrite/internal/cli/config"
	"github.com/conduit-lang/nestwrite/internal/cli/ui"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// errReported marks an error whose message was already written
var errReported = errors.New("reported")

// globalOptions are the persistent flags shared by every subcommand
type globalOptions struct {
	configPath string
	verbose    bool
	noColor    bool
}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "nestwrite",
		Short: "Nested create, update and validation of related records",
		Long: color.CyanString(`nestwrite - nested writes for declared resources

nestwrite reads a payload of attributes and nested related records, validates it
against the rules declared for each resource, and writes the whole tree inside
one transaction.`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file (default ./nestwrite.yaml)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log every nested node")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(newVersionCommand(opts))
	rootCmd.AddCommand(newCreateCommand(opts))
	rootCmd.AddCommand(newUpdateCommand(opts))
	rootCmd.AddCommand(newValidateCommand(opts))
	rootCmd.AddCommand(newRulesCommand(opts))
	rootCmd.AddCommand(newSchemaCommand(opts))
	rootCmd.AddCommand(newServeCommand(opts))

	return rootCmd
}

func newVersionCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			table := ui.NewKeyValueTable(cmd.OutOrStdout(), opts.colorless())
			table.AddRow("nestwrite version", Version)
			table.AddRow("Git commit", GitCommit)
			table.AddRow("Build date", BuildDate)
			table.AddRow("Go version", goVer)
			table.Render()
		},
	}
}

// newLogger logs nested nodes at debug level in verbose mode and only warnings otherwise
func (o *globalOptions) newLogger() (*zap.Logger, error) {
	if o.verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

// openApp loads the configuration and opens the database
func (o *globalOptions) openApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, &configFailure{err: err}
	}

	logger, err := o.newLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return nil, &configFailure{err: err}
	}
	return a, nil
}

func (o *globalOptions) colorless() bool {
	return o.noColor || color.NoColor
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			errorColor := color.New(color.FgRed, color.Bold)
			errorColor.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		}
		return err
	}
	return nil
}

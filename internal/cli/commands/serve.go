package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/conduit-lang/nestwrite/internal/app"
	"github.com/conduit-lang/nestwrite/internal/cli/ui"
	"github.com/conduit-lang/nestwrite/internal/web/router"
	"github.com/conduit-lang/nestwrite/internal/web/server"
	"github.com/spf13/cobra"
)

func newServeCommand(opts *globalOptions) *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve nested writes over HTTP",
		Long: `Serve the declared resources over HTTP:

  POST /{resource}            create
  PUT  /{resource}/{id}       update (?by=field)
  POST /{resource}/validate   validate (?mode=update)
  POST /{resource}/rules      rules (?mode=update)
  GET  /{resource}/relations  nested relations`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return opts.withApp(cmd, "", func(a *app.App) error {
				config := server.DefaultConfig(router.New(a, a.Logger))
				config.Address = a.Config.Address()
				if addr != "" {
					config.Address = addr
				}

				srv, err := server.New(config)
				if err != nil {
					return err
				}

				shutdown := server.NewGracefulShutdown(srv, timeout, a.Logger)
				shutdown.RegisterHook(func(ctx context.Context) error {
					a.Logger.Info("closing database")
					return a.DB.Close()
				})
				ui.WriteSuccess(cmd.ErrOrStderr(), "listening on "+config.Address, opts.colorless())
				return shutdown.Run(ctx)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().DurationVar(&timeout, "shutdown-timeout", 30*time.Second, "time allowed to drain requests")
	return cmd
}

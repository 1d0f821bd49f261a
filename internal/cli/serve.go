package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MJE43/pf-casino/internal/api"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serves the casino API on --addr (PFC_ADDR).

Starting a Mines round places the mines inside the request. With the legacy
RNG, neighbouring nonces draw near-identical values, so boards with many
mines can need millions of draws and take around a second to lay out. The
wager is only debited once placement finishes within the request timeout
(PFC_REQUEST_TIMEOUT); a round that times out costs nothing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("addr") {
				a.cfg.Addr = addr
			}

			svc, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			a.logger.Info("starting pf-casino",
				zap.String("version", api.Version),
				zap.String("rng", svc.engine.Drawer().Name()),
				zap.String("db", a.cfg.DBPath),
				zap.String("opening_balance", a.cfg.OpeningBalance.String()),
			)

			srv := api.NewServer(svc.engine, svc.settler, svc.db,
				api.WithLogger(a.logger),
				api.WithOpeningBalance(a.cfg.OpeningBalance),
				api.WithTimeout(a.cfg.RequestTimeout),
				api.WithScriptTimeout(a.cfg.ScriptTimeout),
				api.WithSessions(svc.db),
			)
			return srv.Run(cmd.Context(), a.cfg.Addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides PFC_ADDR)")
	return cmd
}

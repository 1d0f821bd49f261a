package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/MJE43/pf-casino/internal/autobet"
	"github.com/MJE43/pf-casino/internal/games"
)

func newAutobetCmd(a *app) *cobra.Command {
	var (
		user    string
		name    string
		game    string
		maxBets int
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "autobet <script.js>",
		Short: "Run a betting strategy script against an account",
		Long: `Runs a JavaScript strategy that places Dice or Limbo bets.

The script sets nextbet (and chance/bethigh for dice, target for limbo)
and defines dobet(), which is called after every settled bet. Call stop()
to end the run. The account is opened with the configured opening balance
if it does not exist yet.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if user == "" {
				return errors.New("--user is required")
			}
			script, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			svc, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			if _, err := svc.db.EnsureAccount(cmd.Context(), user, a.cfg.OpeningBalance); err != nil {
				return err
			}

			runner := autobet.NewRunner(svc.engine, svc.settler,
				autobet.WithLogger(a.logger),
				autobet.WithSessions(svc.db),
			)
			rep, err := runner.Run(cmd.Context(), string(script), autobet.Config{
				Name:          name,
				UserID:        user,
				Game:          game,
				MaxBets:       maxBets,
				ScriptTimeout: a.cfg.ScriptTimeout,
			})
			if err != nil && rep.Placed == 0 {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(rep); encErr != nil {
					return encErr
				}
			} else {
				printReport(out, rep)
			}
			return err
		},
	}

	f := cmd.Flags()
	f.StringVarP(&user, "user", "u", "", "account to bet with")
	f.StringVar(&name, "name", "", "label for the stored session")
	f.StringVarP(&game, "game", "g", games.GameDice, "dice or limbo")
	f.IntVarP(&maxBets, "max-bets", "n", 1000, "stop after this many bets")
	f.BoolVar(&jsonOut, "json", false, "print the report as JSON")
	return cmd
}

func printReport(w io.Writer, rep autobet.Report) {
	st := rep.Stats
	printRows(w, []row{
		{"session", rep.SessionID},
		{"game", rep.Game},
		{"stopped by", stopLabel(rep.Reason)},
		{"bets", humanize.Comma(int64(rep.Placed))},
		{"wins", humanize.Comma(int64(st.Wins))},
		{"losses", humanize.Comma(int64(st.Losses))},
		{"wagered", humanize.CommafWithDigits(st.Wagered.InexactFloat64(), 8)},
		{"profit", humanize.CommafWithDigits(st.Profit.InexactFloat64(), 8)},
		{"highest bet", humanize.CommafWithDigits(st.HighestBet.InexactFloat64(), 8)},
		{"best streak", fmt.Sprint(st.HighestStreak)},
		{"worst streak", fmt.Sprint(st.LowestStreak)},
		{"balance", humanize.CommafWithDigits(st.Balance.InexactFloat64(), 8)},
	})

	if len(rep.Logs) > 0 {
		fmt.Fprintln(w)
		for _, l := range rep.Logs {
			fmt.Fprintf(w, "[%s] %s\n", l.Time.Format("15:04:05.000"), l.Message)
		}
	}
}

func stopLabel(r autobet.StopReason) string {
	switch r {
	case autobet.StopScript:
		return "stop()"
	case autobet.StopMaxBets:
		return "max bets"
	case autobet.StopInsufficientFunds:
		return "insufficient funds"
	case autobet.StopCancelled:
		return "cancelled"
	default:
		return "error"
	}
}

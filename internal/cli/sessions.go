package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/MJE43/pf-casino/internal/autobet"
)

func newSessionsCmd(a *app) *cobra.Command {
	var (
		user  string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List a user's autobet runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if user == "" {
				return errors.New("--user is required")
			}
			svc, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			sessions, err := svc.db.ListSessions(cmd.Context(), user, limit)
			if err != nil {
				return err
			}
			printSessions(cmd.OutOrStdout(), sessions)
			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "account whose runs to list")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs")
	return cmd
}

func printSessions(w io.Writer, sessions []autobet.Session) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "no sessions")
		return
	}
	for _, s := range sessions {
		name := s.Name
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(w, "%s  %-10s %-6s %-18s %8s bets  profit %s  %s\n",
			s.ID, name, s.Game, s.State,
			humanize.Comma(int64(s.Bets)),
			s.Profit.StringFixed(2),
			humanize.Time(s.CreatedAt),
		)
	}
}

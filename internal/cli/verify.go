package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/MJE43/pf-casino/internal/engine"
	"github.com/MJE43/pf-casino/internal/games"
)

// ErrMismatch is returned when a replayed round differs from its record.
var ErrMismatch = errors.New("replayed round does not match the record")

// verifyFile is the input accepted by verify --file.
type verifyFile struct {
	Round  games.Round     `json:"round"`
	Result json.RawMessage `json:"result"`
}

func newVerifyCmd(a *app) *cobra.Command {
	var (
		file    string
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "verify [round-id]",
		Short: "Replay a round from its seed and compare it with the record",
		Long: `Replays a settled round and checks the result.

Pass the ID of a round stored in the database, or --file with a JSON
document of the form {"round": {...}, "result": {...}}.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 1) == (file != "") {
				return errors.New("pass either a round id or --file")
			}

			svc, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			var (
				in     verifyFile
				header []row
			)
			if file != "" {
				if in, err = readVerifyFile(file); err != nil {
					return err
				}
			} else {
				rec, err := svc.settler.Round(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("round %s: %w", args[0], err)
				}
				if in.Round, err = rec.Round(); err != nil {
					return err
				}
				in.Result = rec.Result
				header = []row{
					{"round", rec.ID},
					{"user", rec.UserID},
					{"played", humanize.Time(rec.CreatedAt)},
				}
			}

			v, err := svc.engine.Verify(in.Round, in.Result)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(v); err != nil {
					return err
				}
			} else {
				printVerification(out, header, in.Round, v)
			}
			if !v.Match {
				return ErrMismatch
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "verify the round and result in this JSON file")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the verification as JSON")
	return cmd
}

func readVerifyFile(path string) (verifyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return verifyFile{}, err
	}
	var in verifyFile
	if err := json.Unmarshal(data, &in); err != nil {
		return verifyFile{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if in.Round.Game == "" || len(in.Result) == 0 {
		return verifyFile{}, fmt.Errorf("%s: round and result are required", path)
	}
	return in, nil
}

type row struct{ key, value string }

func printRows(w io.Writer, rows []row) {
	for _, r := range rows {
		fmt.Fprintf(w, "%-14s %s\n", r.key, r.value)
	}
}

func printVerification(w io.Writer, header []row, round games.Round, v games.Verification) {
	res := v.Replayed
	verdict := "MATCH"
	if !v.Match {
		verdict = "MISMATCH"
	}

	rows := append(header,
		row{"game", round.Game},
		row{"seed", round.Seed},
		row{"seed hash", engine.HashSeed(round.Seed)},
		row{"drawer", res.Round.Drawer},
		row{"draws", humanize.Comma(int64(res.NoncesUsed))},
		row{"wager", round.Wager.String()},
		row{"multiplier", humanize.FtoaWithDigits(res.Multiplier, 4)},
		row{"payout", res.Payout.String()},
		row{"won", fmt.Sprint(res.Won)},
		row{"verdict", verdict},
	)
	printRows(w, rows)
}

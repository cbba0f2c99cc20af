package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/target/prepflow/internal/scoring"
)

func newBandCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "band",
		Short: "Compute band scores with the built-in rules",
	}

	var table string
	raw := &cobra.Command{
		Use:   "raw <correct-answers>",
		Short: "Convert a listening or reading raw score to a band",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("raw score %q: %w", args[0], err)
			}
			tables, err := scoring.DefaultTables()
			if err != nil {
				return err
			}
			t, err := tables.Get(scoring.TableName(table))
			if err != nil {
				return err
			}
			return printBand(cmd, scoring.RawScoreToBand(n, t))
		},
	}
	raw.Flags().StringVar(&table, "table", string(scoring.TableReadingAcademic),
		"conversion table (listening, reading-academic, reading-general)")

	var task1, task2 string
	writing := &cobra.Command{
		Use:   "writing",
		Short: "Combine Task 1 and Task 2 criterion scores into a writing band",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t1, err := parseScores(task1)
			if err != nil {
				return fmt.Errorf("--task1: %w", err)
			}
			t2, err := parseScores(task2)
			if err != nil {
				return fmt.Errorf("--task2: %w", err)
			}
			return printBand(cmd, scoring.CalculateWritingBand(t1, t2))
		},
	}
	writing.Flags().StringVar(&task1, "task1", "", "comma-separated Task 1 criterion scores")
	writing.Flags().StringVar(&task2, "task2", "", "comma-separated Task 2 criterion scores")

	speaking := &cobra.Command{
		Use:   "speaking <score>...",
		Short: "Average speaking criterion scores into a band",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scores, err := parseScores(strings.Join(args, ","))
			if err != nil {
				return err
			}
			return printBand(cmd, scoring.CalculateSpeakingBand(scores))
		},
	}

	overall := &cobra.Command{
		Use:   "overall <skill-band>...",
		Short: "Average skill bands into the overall band",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bands, err := parseScores(strings.Join(args, ","))
			if err != nil {
				return err
			}
			return printBand(cmd, scoring.CalculateOverallBand(bands))
		},
	}

	cmd.AddCommand(raw, writing, speaking, overall)
	return cmd
}

func parseScores(s string) ([]float64, error) {
	var out []float64
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("score %q: %w", part, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func printBand(cmd *cobra.Command, band float64) error {
	return writef(cmd.OutOrStdout(), "%.1f\n", band)
}

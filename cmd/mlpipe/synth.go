package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/mlpipe/dataset"
	"github.com/YuminosukeSato/mlpipe/pkg/artifact"
)

func newSynthCmd(root *rootOptions) *cobra.Command {
	var (
		opts   = dataset.SynthOptions{Rows: 1000, Seed: 1, Noise: 2}
		output string
	)
	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Generate a synthetic student performance dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output == "" {
				cfg, err := root.loadConfig()
				if err != nil {
					return err
				}
				output = cfg.Data.Source
			}
			frame := dataset.GenerateStudents(opts)
			if err := artifact.WriteAtomic(output, frame.WriteCSV); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d rows -> %s\n", green("generated"), frame.Len(), output)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&opts.Rows, "rows", "n", opts.Rows, "number of students")
	flags.Int64Var(&opts.Seed, "seed", opts.Seed, "random seed")
	flags.Float64Var(&opts.Noise, "noise", opts.Noise, "standard deviation of the math score noise")
	flags.Float64Var(&opts.MissingRate, "missing", 0, "probability of leaving a feature cell empty")
	flags.StringVarP(&output, "output", "o", "", "output CSV (default data.source)")
	return cmd
}

package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/mlpipe/dataset"
	"github.com/YuminosukeSato/mlpipe/pipeline"
	"github.com/YuminosukeSato/mlpipe/pkg/artifact"
)

// PredictionColumn is the column appended to batch prediction output.
const PredictionColumn = "predicted_math_score"

type predictOptions struct {
	input   string
	output  string
	student pipeline.StudentRecord
}

func newPredictCmd(root *rootOptions) *cobra.Command {
	opts := &predictOptions{}
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict math scores with the persisted model",
		Long: `Predict loads the preprocessor and model written by train. With --input
every row of the CSV file is scored and written back with a
` + PredictionColumn + ` column; otherwise one student is described by flags.`,
		Example: `  mlpipe predict --input students.csv --output scored.csv
  mlpipe predict --gender female --race-ethnicity "group B" \
    --parental-education "bachelor's degree" --lunch standard \
    --test-preparation none --reading-score 72 --writing-score 74`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			logger := root.logger(cfg)
			p, err := pipeline.LoadPredictPipeline(cfg.Artifacts.PreprocessorPath(), cfg.Artifacts.ModelPath(), pipeline.WithLogger(logger))
			if err != nil {
				return err
			}
			if opts.input != "" {
				return opts.predictFile(p, cmd.OutOrStdout(), cmd.ErrOrStderr())
			}
			score, err := p.PredictOne(opts.student)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strconv.FormatFloat(score, 'f', 4, 64))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.input, "input", "i", "", "CSV file of students to score")
	flags.StringVarP(&opts.output, "output", "o", "", "write scored CSV here instead of stdout")
	flags.StringVar(&opts.student.Gender, "gender", "", "gender")
	flags.StringVar(&opts.student.RaceEthnicity, "race-ethnicity", "", "race/ethnicity group")
	flags.StringVar(&opts.student.ParentalLevelOfEducation, "parental-education", "", "parental level of education")
	flags.StringVar(&opts.student.Lunch, "lunch", "", "lunch type")
	flags.StringVar(&opts.student.TestPreparationCourse, "test-preparation", "", "test preparation course")
	flags.Float64Var(&opts.student.ReadingScore, "reading-score", 0, "reading score")
	flags.Float64Var(&opts.student.WritingScore, "writing-score", 0, "writing score")
	return cmd
}

func (o *predictOptions) predictFile(p *pipeline.PredictPipeline, stdout, stderr io.Writer) error {
	frame, err := dataset.ReadCSVFile(o.input)
	if err != nil {
		return err
	}
	preds, err := p.PredictFrame(frame)
	if err != nil {
		return err
	}

	scored := &dataset.Frame{
		Header: append(append([]string(nil), frame.Header...), PredictionColumn),
		Rows:   make([][]string, len(frame.Rows)),
	}
	for i, row := range frame.Rows {
		scored.Rows[i] = append(append([]string(nil), row...), strconv.FormatFloat(preds[i], 'f', 4, 64))
	}

	if o.output == "" {
		return scored.WriteCSV(stdout)
	}
	if err := artifact.WriteAtomic(o.output, scored.WriteCSV); err != nil {
		return err
	}
	fmt.Fprintf(stderr, "%s %d rows -> %s\n", green("scored"), len(preds), o.output)
	return nil
}

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/urlsafety/batch-predictor/internal/config"
	"github.com/urlsafety/batch-predictor/internal/features"
	"github.com/urlsafety/batch-predictor/internal/predict"
	"github.com/urlsafety/batch-predictor/internal/render"
	"github.com/urlsafety/batch-predictor/internal/server"
)

var flagJSON bool

var predictCmd = &cobra.Command{
	Use:   "predict <file.csv>",
	Short: "Submit one CSV file and print the labels",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		return runPredict(cmd, cfg, args[0], data, flagJSON)
	},
}

func runPredict(cmd *cobra.Command, cfg config.Config, name string, data []byte, asJSON bool) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := server.SetupLogger(cfg.LogLevel, cmd.ErrOrStderr())
	stderr := cmd.ErrOrStderr()

	file, err := predict.SelectFile(name, data)
	if err != nil {
		return errors.New(predict.UserMessage(err))
	}
	if missing, err := features.MissingColumns(file.Data); err == nil && len(missing) > 0 {
		fmt.Fprintf(stderr, "warning: missing columns: %s\n", strings.Join(missing, ", "))
	}

	sub := predict.NewSubmission(file)
	res, err := sub.Run(cmd.Context(), predict.NewClient(cfg.Endpoint, cfg.Timeout, logger))
	if err != nil {
		logger.Debug("submission failed", "submission_id", sub.ID, "err", err)
		return errors.New(predict.UserMessage(err))
	}

	return writeRows(cmd.OutOrStdout(), res.Rows, asJSON)
}

func writeRows(w io.Writer, rows []predict.Row, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	return render.Text(w, rows)
}

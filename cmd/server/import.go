package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dasmlab/tmengine/pkg/config"
	"github.com/dasmlab/tmengine/pkg/service"
)

func newImportCmd(v *viper.Viper) *cobra.Command {
	var (
		format     string
		sourceLang string
		targetLang string
	)
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Load translation pairs from a CSV or YAML file into the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			logger := cfg.NewLogger()

			engine, closeStore, err := buildEngine(cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runImport(ctx, engine, cfg.Import.Workers, logger, f, service.ImportRequest{
				Name:           filepath.Base(args[0]),
				Format:         format,
				SourceLanguage: sourceLang,
				TargetLanguage: targetLang,
			}, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "File format: csv or yaml (default from the file extension)")
	cmd.Flags().StringVar(&sourceLang, "source", "", "Source language for rows that do not name one")
	cmd.Flags().StringVar(&targetLang, "target", "", "Target language for rows that do not name one")
	return cmd
}

// runImport stores every record of content and prints a summary to out.
func runImport(ctx context.Context, engine service.Adder, workers int, logger *logrus.Logger, content io.Reader, req service.ImportRequest, out io.Writer) error {
	job := service.NewJob(req)
	if err := service.NewJobProcessor(engine, workers, logger).Run(ctx, job, content); err != nil {
		return err
	}
	snap := job.Snapshot()
	fmt.Fprintf(out, "imported %d rows: %d segments inserted, %d updated, %d rows failed\n",
		snap.Processed, snap.Inserted, snap.Updated, snap.Failed)
	for _, re := range snap.RowErrors {
		fmt.Fprintf(out, "  row %d (%s): %s\n", re.Row, re.Kind, re.Error)
	}
	return nil
}

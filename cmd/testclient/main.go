// Command tmengine-client exercises a running tmengine server over gRPC.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/dasmlab/tmengine/pkg/memory"
	"github.com/dasmlab/tmengine/pkg/service"
)

type options struct {
	addr       string
	sourceLang string
	targetLang string
	timeout    time.Duration
	logger     *logrus.Logger
}

func main() {
	opts := &options{logger: logrus.New()}
	if err := newRootCmd(opts).Execute(); err != nil {
		opts.logger.WithError(err).Fatal("Request failed")
	}
}

func newRootCmd(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "tmengine-client",
		Short:         "Talk to a tmengine server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.addr, "addr", "localhost:50051", "gRPC server address")
	flags.StringVar(&opts.sourceLang, "source", "en", "Source language code (e.g., en, fr)")
	flags.StringVar(&opts.targetLang, "target", "fr", "Target language code (e.g., en, fr-ca)")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "Request timeout")

	root.AddCommand(
		newAddCmd(opts),
		newTranslateCmd(opts),
		newImportCmd(opts),
		newJobCmd(opts),
	)
	return root
}

// withClient dials the server and runs fn with a bounded context.
func (o *options) withClient(ctx context.Context, fn func(context.Context, *service.Client) error) error {
	conn, err := grpc.NewClient(o.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("connect to %s: %w", o.addr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	return fn(ctx, service.NewClient(conn))
}

// readText returns the text argument, or the file contents when file is set.
func readText(args []string, file string) (string, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", file, err)
		}
		return string(data), nil
	}
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return "", errors.New("text argument or --file is required")
	}
	return args[0], nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newAddCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "add SOURCE_TEXT TRANSLATED_TEXT",
		Short: "Store a translation pair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd.Context(), func(ctx context.Context, c *service.Client) error {
				resp, err := c.AddTranslation(ctx, memory.AddRequest{
					SourceLanguage: opts.sourceLang,
					TargetLanguage: opts.targetLang,
					SourceText:     args[0],
					TranslatedText: args[1],
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp)
			})
		},
	}
}

func newTranslateCmd(opts *options) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "translate [TEXT]",
		Short: "Translate text, reusing stored segments",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := readText(args, file)
			if err != nil {
				return err
			}
			return opts.withClient(cmd.Context(), func(ctx context.Context, c *service.Client) error {
				start := time.Now()
				resp, err := c.Translate(ctx, memory.TranslateRequest{
					SourceLanguage: opts.sourceLang,
					TargetLanguage: opts.targetLang,
					SourceText:     source,
				})
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, resp.TranslatedText)
				fmt.Fprintln(out)
				for _, seg := range resp.Segments {
					fmt.Fprintf(out, "  [%-8s %5.1f] %s => %s\n", seg.Origin, seg.Similarity, seg.Segment, seg.TranslatedText)
				}
				opts.logger.WithFields(logrus.Fields{
					"segments":         len(resp.Segments),
					"duration_seconds": time.Since(start).Seconds(),
				}).Info("Translation completed")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Path to a text file to translate")
	return cmd
}

func newImportCmd(opts *options) *cobra.Command {
	var (
		format string
		wait   bool
	)
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Start a background import of a CSV or YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return opts.withClient(cmd.Context(), func(ctx context.Context, c *service.Client) error {
				jobID, err := c.ImportTranslations(ctx, service.ImportRequest{
					Name:           filepath.Base(args[0]),
					Format:         format,
					Content:        string(data),
					SourceLanguage: opts.sourceLang,
					TargetLanguage: opts.targetLang,
				})
				if err != nil {
					return err
				}
				opts.logger.WithField("job_id", jobID).Info("Import job accepted")
				if !wait {
					fmt.Fprintln(cmd.OutOrStdout(), jobID)
					return nil
				}
				snap, err := waitForJob(ctx, c, jobID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), snap)
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "File format: csv or yaml (default from the file extension)")
	cmd.Flags().BoolVar(&wait, "wait", false, "Poll the job until it finishes")
	return cmd
}

func newJobCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "job JOB_ID",
		Short: "Show the status of an import job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd.Context(), func(ctx context.Context, c *service.Client) error {
				snap, err := c.GetImportJob(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), snap)
			})
		},
	}
}

func waitForJob(ctx context.Context, c *service.Client, jobID string) (*service.JobSnapshot, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		snap, err := c.GetImportJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if snap.Done() {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

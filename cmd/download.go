package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tenk-cli/internal/config"
	"github.com/sells-group/tenk-cli/internal/edgar"
	"github.com/sells-group/tenk-cli/internal/fetcher"
	"github.com/sells-group/tenk-cli/internal/model"
	"github.com/sells-group/tenk-cli/internal/pipeline"
	"github.com/sells-group/tenk-cli/internal/store"
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download 10-K submissions for a ticker from EDGAR",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate(config.ModeDownload); err != nil {
			return err
		}

		ticker, _ := cmd.Flags().GetString("ticker")
		ticker, err := pipeline.NormalizeTicker(ticker)
		if err != nil {
			return err
		}

		after, _ := cmd.Flags().GetString("after")
		before, _ := cmd.Flags().GetString("before")
		force, _ := cmd.Flags().GetBool("force")
		opts, err := downloadOptions(cfg.Edgar, after, before, force)
		if err != nil {
			return err
		}

		f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{UserAgent: cfg.Edgar.UserAgent})
		client := edgar.NewClient(f, edgar.Options{
			WWWBaseURL:  cfg.Edgar.WWWBaseURL,
			DataBaseURL: cfg.Edgar.DataBaseURL,
		})

		st, err := openStore(ctx)
		if err != nil {
			zap.L().Warn("run ledger unavailable, download will not be recorded", zap.Error(err))
			st = nil
		} else {
			defer st.Close() //nolint:errcheck
		}

		run := startLedgerRun(ctx, st, ticker, model.RunKindDownload)
		res, err := client.Download(ctx, cfg.Paths.FilingsRoot, ticker, opts)
		finishLedgerRun(ctx, st, run, res, err)
		if err != nil {
			return eris.Wrap(err, "download")
		}

		formatDownloadResult(os.Stdout, res)
		if len(res.Failed) > 0 {
			return eris.Errorf("download: %d filings failed", len(res.Failed))
		}
		return nil
	},
}

func init() {
	downloadCmd.Flags().String("ticker", "", "company ticker (required)")
	downloadCmd.Flags().String("after", "", "only filings dated strictly after YYYY-MM-DD (default edgar.after)")
	downloadCmd.Flags().String("before", "", "only filings dated strictly before YYYY-MM-DD (default edgar.before)")
	downloadCmd.Flags().Bool("force", false, "re-download submissions already on disk")
	_ = downloadCmd.MarkFlagRequired("ticker")
	rootCmd.AddCommand(downloadCmd)
}

// downloadOptions resolves the date window from flags, falling back to the
// configured defaults.
func downloadOptions(ec config.EdgarConfig, after, before string, force bool) (edgar.DownloadOptions, error) {
	if after == "" {
		after = ec.After
	}
	if before == "" {
		before = ec.Before
	}
	a, err := edgar.ParseDate(after)
	if err != nil {
		return edgar.DownloadOptions{}, eris.Wrap(err, "parse --after")
	}
	b, err := edgar.ParseDate(before)
	if err != nil {
		return edgar.DownloadOptions{}, eris.Wrap(err, "parse --before")
	}
	if !a.IsZero() && !b.IsZero() && !a.Before(b) {
		return edgar.DownloadOptions{}, eris.Errorf("--after %s must be before --before %s", after, before)
	}
	return edgar.DownloadOptions{
		Form:        model.FormTenK,
		After:       a,
		Before:      b,
		Concurrency: ec.Concurrency,
		Force:       force,
	}, nil
}

func formatDownloadResult(w io.Writer, res *edgar.DownloadResult) {
	_, _ = fmt.Fprintf(w, "%s (CIK %s): %d downloaded, %d skipped, %d failed\n",
		res.Ticker, edgar.PadCIK(res.CIK), len(res.Downloaded), len(res.Skipped), len(res.Failed))
	for _, f := range res.Failed {
		_, _ = fmt.Fprintf(w, "  failed %s: %s\n", f.AccessionNumber, f.Error)
	}
}

// startLedgerRun records a run for commands that do not go through the
// pipeline. A nil store or a failed insert yields a nil run.
func startLedgerRun(ctx context.Context, st store.Store, ticker string, kind model.RunKind) *model.Run {
	if st == nil {
		return nil
	}
	run, err := st.CreateRun(ctx, ticker, kind)
	if err != nil {
		zap.L().Warn("failed to create run", zap.Error(err))
		return nil
	}
	return run
}

func finishLedgerRun(ctx context.Context, st store.Store, run *model.Run, result any, runErr error) {
	if st == nil || run == nil {
		return
	}
	status := model.RunStatusComplete
	msg := ""
	if runErr != nil {
		status = model.RunStatusFailed
		msg = runErr.Error()
	}
	var raw json.RawMessage
	if result != nil {
		if data, err := json.Marshal(result); err == nil {
			raw = data
		}
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := st.CompleteRun(ctx, run.ID, status, raw, msg); err != nil {
		zap.L().Warn("failed to complete run", zap.String("run_id", run.ID), zap.Error(err))
	}
}

package edgar

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/tenk-cli/internal/filing"
	"github.com/sells-group/tenk-cli/internal/model"
)

// Default filing date window.
var (
	DefaultAfter  = time.Date(1994, 12, 31, 0, 0, 0, 0, time.UTC)
	DefaultBefore = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
)

// DownloadOptions controls which filings are fetched.
type DownloadOptions struct {
	Form        string
	After       time.Time
	Before      time.Time
	Concurrency int
	Force       bool
}

func (o DownloadOptions) withDefaults() DownloadOptions {
	if o.Form == "" {
		o.Form = model.FormTenK
	}
	if o.After.IsZero() {
		o.After = DefaultAfter
	}
	if o.Before.IsZero() {
		o.Before = DefaultBefore
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	return o
}

// FailedFiling records a filing that could not be downloaded.
type FailedFiling struct {
	AccessionNumber string `json:"accession_number"`
	Error           string `json:"error"`
}

// DownloadResult summarizes one download run.
type DownloadResult struct {
	Ticker     string         `json:"ticker"`
	CIK        int            `json:"cik"`
	Downloaded []string       `json:"downloaded"`
	Skipped    []string       `json:"skipped"`
	Failed     []FailedFiling `json:"failed,omitempty"`
}

// Download fetches every matching filing for ticker into
// root/TICKER/FORM/<fiscal year>/<accession>/submission.txt. Files already on
// disk are skipped unless opts.Force. Individual filing failures are recorded
// in the result; the error is reserved for lookup failures and cancellation.
func (c *Client) Download(ctx context.Context, root, ticker string, opts DownloadOptions) (*DownloadResult, error) {
	opts = opts.withDefaults()
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	log := c.log.With(zap.String("ticker", ticker))

	cik, err := c.ResolveCIK(ctx, ticker)
	if err != nil {
		return nil, err
	}
	filings, err := c.ListFilings(ctx, cik, opts.Form, opts.After, opts.Before)
	if err != nil {
		return nil, err
	}
	log.Info("listed filings", zap.Int("cik", cik), zap.Int("filings", len(filings)))

	result := &DownloadResult{Ticker: ticker, CIK: cik, Downloaded: []string{}, Skipped: []string{}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for _, f := range filings {
		path := filepath.Join(root, ticker, opts.Form, yearDir(f), f.AccessionNumber, filing.SubmissionFile)

		if !opts.Force && fileExists(path) {
			result.Skipped = append(result.Skipped, f.AccessionNumber)
			continue
		}

		g.Go(func() error {
			n, err := c.fetch.DownloadToFile(gctx, c.SubmissionURL(cik, f.AccessionNumber), path)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Warn("filing download failed",
					zap.String("accession", f.AccessionNumber),
					zap.Error(err),
				)
				result.Failed = append(result.Failed, FailedFiling{AccessionNumber: f.AccessionNumber, Error: err.Error()})
				return nil
			}
			log.Debug("downloaded filing",
				zap.String("accession", f.AccessionNumber),
				zap.Int("fiscal_year", f.FiscalYear()),
				zap.Int64("bytes", n),
			)
			result.Downloaded = append(result.Downloaded, f.AccessionNumber)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, eris.Wrap(err, "edgar: download")
	}

	sort.Strings(result.Downloaded)
	sort.Strings(result.Skipped)
	sort.Slice(result.Failed, func(i, j int) bool {
		return result.Failed[i].AccessionNumber < result.Failed[j].AccessionNumber
	})

	log.Info("download complete",
		zap.Int("downloaded", len(result.Downloaded)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

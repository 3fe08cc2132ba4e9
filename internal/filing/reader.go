// Package filing reads previously downloaded 10-K submissions from the local
// filing store laid out as root/TICKER/10-K/<period>/<submission>/submission.txt.
package filing

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"github.com/sells-group/tenk-cli/internal/model"
)

// SubmissionFile is the fixed name of the full submission text inside each
// submission folder.
const SubmissionFile = "submission.txt"

// ErrNotFound is returned when a company or period directory does not exist.
var ErrNotFound = eris.New("filing: directory not found")

// Reader reads filing corpora from a filing store root.
type Reader struct {
	root string
	form string
	log  *zap.Logger
}

// NewReader creates a Reader rooted at the given directory.
func NewReader(root string) *Reader {
	return &Reader{
		root: root,
		form: model.FormTenK,
		log:  zap.L().With(zap.String("component", "filing")),
	}
}

// CompanyDir returns the directory holding all periods for a ticker.
func (r *Reader) CompanyDir(ticker string) string {
	return filepath.Join(r.root, ticker, r.form)
}

// ListPeriods returns the period directory names for a ticker, sorted
// descending. Returns ErrNotFound when the company folder is absent.
func (r *Reader) ListPeriods(ctx context.Context, ticker string) ([]string, error) {
	dir := r.CompanyDir(ticker)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, eris.Wrapf(ErrNotFound, "filing: company %s", ticker)
		}
		return nil, eris.Wrapf(err, "filing: list periods for %s", ticker)
	}

	var periods []string
	for _, e := range entries {
		if e.IsDir() {
			periods = append(periods, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(periods)))
	return periods, ctx.Err()
}

// ReadCorpus concatenates every submission text under one period. A missing
// period directory returns an empty corpus and ErrNotFound; an existing
// period without submissions returns an empty corpus and a nil error.
func (r *Reader) ReadCorpus(ctx context.Context, ticker, period string) (model.FilingCorpus, error) {
	corpus := model.FilingCorpus{Company: ticker, Period: period}

	dir := filepath.Join(r.CompanyDir(ticker), period)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return corpus, eris.Wrapf(ErrNotFound, "filing: %s period %s", ticker, period)
		}
		return corpus, eris.Wrapf(err, "filing: read period %s/%s", ticker, period)
	}

	var b strings.Builder
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return corpus, eris.Wrap(err, "filing: read corpus")
		}
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name(), SubmissionFile)
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return corpus, eris.Wrapf(err, "filing: read %s", path)
		}
		b.WriteString(decode(data))
		b.WriteString("\n")
		corpus.Submissions = append(corpus.Submissions, e.Name())
		r.log.Debug("read submission",
			zap.String("ticker", ticker),
			zap.String("period", period),
			zap.String("path", path),
			zap.Int("bytes", len(data)),
		)
	}

	corpus.Text = b.String()
	return corpus, nil
}

// ReadCompanyCorpus concatenates the corpora of every period for a ticker,
// newest period first.
func (r *Reader) ReadCompanyCorpus(ctx context.Context, ticker string) (model.FilingCorpus, error) {
	corpus := model.FilingCorpus{Company: ticker, Period: model.AllPeriods}

	periods, err := r.ListPeriods(ctx, ticker)
	if err != nil {
		return corpus, err
	}

	var b strings.Builder
	for _, p := range periods {
		c, err := r.ReadCorpus(ctx, ticker, p)
		if err != nil {
			return corpus, err
		}
		b.WriteString(c.Text)
		for _, s := range c.Submissions {
			corpus.Submissions = append(corpus.Submissions, p+"/"+s)
		}
	}
	corpus.Text = b.String()
	return corpus, nil
}

// decode returns UTF-8 text as-is and treats anything else as Windows-1252,
// the encoding of legacy EDGAR plain-text submissions.
func decode(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return string(data)
	}
	return string(out)
}

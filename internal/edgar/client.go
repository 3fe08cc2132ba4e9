// Package edgar resolves tickers and downloads full 10-K submission texts from
// SEC EDGAR into the local filing store.
package edgar

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tenk-cli/internal/fetcher"
)

const (
	DefaultWWWBaseURL  = "https://www.sec.gov"
	DefaultDataBaseURL = "https://data.sec.gov"

	companyTickersPath = "/files/company_tickers.json"
	submissionsPath    = "/submissions/CIK%s.json"
	pagePath           = "/submissions/"
	archivePath        = "/Archives/edgar/data/%d/%s/%s.txt"
	dateLayout         = "2006-01-02"
)

// ErrUnknownTicker is returned when a ticker is absent from the SEC ticker map.
var ErrUnknownTicker = eris.New("edgar: unknown ticker")

// Filing is one row of a company's recent filings.
type Filing struct {
	AccessionNumber string    `json:"accession_number"`
	Form            string    `json:"form"`
	FilingDate      time.Time `json:"filing_date"`
	ReportDate      time.Time `json:"report_date,omitempty"`
	PrimaryDocument string    `json:"primary_document"`
}

// FiscalYear returns the year of the report date, falling back to the filing
// date when the report date is unknown.
func (f Filing) FiscalYear() int {
	if !f.ReportDate.IsZero() {
		return f.ReportDate.Year()
	}
	return f.FilingDate.Year()
}

// Options configures a Client.
type Options struct {
	WWWBaseURL  string
	DataBaseURL string
}

// Client talks to the SEC EDGAR JSON APIs and archives.
type Client struct {
	fetch    fetcher.Fetcher
	wwwBase  string
	dataBase string
	log      *zap.Logger

	mu      sync.Mutex
	tickers map[string]int
}

// NewClient creates a Client. Empty base URLs use the public SEC hosts.
func NewClient(f fetcher.Fetcher, opts Options) *Client {
	if opts.WWWBaseURL == "" {
		opts.WWWBaseURL = DefaultWWWBaseURL
	}
	if opts.DataBaseURL == "" {
		opts.DataBaseURL = DefaultDataBaseURL
	}
	return &Client{
		fetch:    f,
		wwwBase:  strings.TrimRight(opts.WWWBaseURL, "/"),
		dataBase: strings.TrimRight(opts.DataBaseURL, "/"),
		log:      zap.L().With(zap.String("component", "edgar")),
	}
}

type tickerEntry struct {
	CIK    int    `json:"cik_str"`
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
}

// ResolveCIK returns the numeric CIK for a ticker. The SEC ticker map is
// loaded once per Client.
func (c *Client) ResolveCIK(ctx context.Context, ticker string) (int, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tickers == nil {
		var resp map[string]tickerEntry
		if err := c.fetch.GetJSON(ctx, c.wwwBase+companyTickersPath, &resp); err != nil {
			return 0, eris.Wrap(err, "edgar: load company tickers")
		}
		c.tickers = make(map[string]int, len(resp))
		for _, e := range resp {
			c.tickers[strings.ToUpper(e.Ticker)] = e.CIK
		}
		c.log.Debug("loaded ticker map", zap.Int("tickers", len(c.tickers)))
	}

	cik, ok := c.tickers[ticker]
	if !ok {
		return 0, eris.Wrapf(ErrUnknownTicker, "edgar: ticker %s", ticker)
	}
	return cik, nil
}

// filingColumns is the column-oriented filing table used both by
// filings.recent and by each paged submissions file.
type filingColumns struct {
	AccessionNumber []string `json:"accessionNumber"`
	FilingDate      []string `json:"filingDate"`
	ReportDate      []string `json:"reportDate"`
	Form            []string `json:"form"`
	PrimaryDocument []string `json:"primaryDocument"`
}

// submissionsPage points at an older page of filings.
type submissionsPage struct {
	Name        string `json:"name"`
	FilingCount int    `json:"filingCount"`
	FilingFrom  string `json:"filingFrom"`
	FilingTo    string `json:"filingTo"`
}

type submissionsResponse struct {
	CIK     string `json:"cik"`
	Name    string `json:"name"`
	Filings struct {
		Recent filingColumns     `json:"recent"`
		Files  []submissionsPage `json:"files"`
	} `json:"filings"`
}

// ListFilings returns the company's filings of the given form whose filing
// date is strictly after `after` and strictly before `before`. Zero bounds
// are open. Older filings paged out of filings.recent are fetched when the
// page's date range overlaps the window.
func (c *Client) ListFilings(ctx context.Context, cik int, form string, after, before time.Time) ([]Filing, error) {
	url := c.dataBase + fmt.Sprintf(submissionsPath, PadCIK(cik))

	var resp submissionsResponse
	if err := c.fetch.GetJSON(ctx, url, &resp); err != nil {
		return nil, eris.Wrapf(err, "edgar: submissions for CIK %d", cik)
	}

	seen := make(map[string]bool)
	out := c.collect(resp.Filings.Recent, form, after, before, seen, nil)

	for _, page := range resp.Filings.Files {
		if !page.overlaps(after, before) {
			continue
		}
		var cols filingColumns
		if err := c.fetch.GetJSON(ctx, c.dataBase+pagePath+page.Name, &cols); err != nil {
			return nil, eris.Wrapf(err, "edgar: submissions page %s for CIK %d", page.Name, cik)
		}
		c.log.Debug("loaded submissions page",
			zap.String("page", page.Name),
			zap.Int("filings", len(cols.Form)),
		)
		out = c.collect(cols, form, after, before, seen, out)
	}
	return out, nil
}

func (c *Client) collect(cols filingColumns, form string, after, before time.Time, seen map[string]bool, out []Filing) []Filing {
	for i, f := range cols.Form {
		if f != form || i >= len(cols.AccessionNumber) || i >= len(cols.FilingDate) {
			continue
		}
		accn := cols.AccessionNumber[i]
		if seen[accn] {
			continue
		}
		filed, err := time.Parse(dateLayout, cols.FilingDate[i])
		if err != nil {
			c.log.Warn("skipping filing with bad date",
				zap.String("accession", accn),
				zap.String("filing_date", cols.FilingDate[i]),
			)
			continue
		}
		if !after.IsZero() && !filed.After(after) {
			continue
		}
		if !before.IsZero() && !filed.Before(before) {
			continue
		}

		filing := Filing{
			AccessionNumber: accn,
			Form:            f,
			FilingDate:      filed,
		}
		if i < len(cols.ReportDate) {
			if rd, err := time.Parse(dateLayout, cols.ReportDate[i]); err == nil {
				filing.ReportDate = rd
			}
		}
		if i < len(cols.PrimaryDocument) {
			filing.PrimaryDocument = cols.PrimaryDocument[i]
		}
		seen[accn] = true
		out = append(out, filing)
	}
	return out
}

// overlaps reports whether the page may hold filings inside (after, before).
// Pages with unparseable ranges are always fetched.
func (p submissionsPage) overlaps(after, before time.Time) bool {
	from, errFrom := time.Parse(dateLayout, p.FilingFrom)
	to, errTo := time.Parse(dateLayout, p.FilingTo)
	if errFrom != nil || errTo != nil {
		return true
	}
	if !before.IsZero() && !from.Before(before) {
		return false
	}
	if !after.IsZero() && !to.After(after) {
		return false
	}
	return true
}

// SubmissionURL returns the full submission text URL for a filing.
func (c *Client) SubmissionURL(cik int, accession string) string {
	return c.wwwBase + fmt.Sprintf(archivePath, cik, strings.ReplaceAll(accession, "-", ""), accession)
}

// PadCIK formats a CIK as the 10-digit zero-padded form used by data.sec.gov.
func PadCIK(cik int) string {
	return fmt.Sprintf("%010d", cik)
}

// ParseDate parses a YYYY-MM-DD date. An empty string is the zero time.
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "edgar: parse date %q", s)
	}
	return t, nil
}

func yearDir(f Filing) string {
	return strconv.Itoa(f.FiscalYear())
}

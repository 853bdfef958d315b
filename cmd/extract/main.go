package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/samvad-hq/samvad-quote-harvester/internal/config"
	"github.com/samvad-hq/samvad-quote-harvester/internal/domain"
	"github.com/samvad-hq/samvad-quote-harvester/internal/extractor"
	"github.com/samvad-hq/samvad-quote-harvester/internal/fetcher"
	"github.com/samvad-hq/samvad-quote-harvester/pkg/httpclient"
	"github.com/samvad-hq/samvad-quote-harvester/pkg/sources"
)

const defaultTimeout = 15 * time.Second

// result is the JSON document printed for one page.
type result struct {
	Quote       domain.Quote           `json:"quote"`
	Lines       []domain.QuoteLine     `json:"lines"`
	Diagnostics []extractor.Diagnostic `json:"diagnostics"`
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "extract: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	flags := pflag.NewFlagSet("extract", pflag.ContinueOnError)
	rawURL := flags.String("url", "", "https URL of a quote page to fetch")
	file := flags.String("file", "", "path of a saved quote page")
	sourceID := flags.String("source", "", "source id from the sources registry; requires --id")
	quoteID := flags.Int("id", 0, "quote id on the --source site")
	sourcesFile := flags.String("sources", "", "sources registry file (default from SOURCES_FILE)")
	envFile := flags.String("env-file", "configs/.env", "dotenv file read when --sources is not set")
	pretty := flags.Bool("pretty", false, "indent JSON output")
	timeout := flags.Duration("timeout", defaultTimeout, "fetch timeout")
	if err := flags.Parse(args); err != nil {
		return err
	}

	modes := 0
	for _, set := range []bool{*rawURL != "", *file != "", *sourceID != ""} {
		if set {
			modes++
		}
	}
	if modes != 1 {
		return errors.New("exactly one of --url, --file or --source is required")
	}

	var headers map[string]string
	if *sourceID != "" {
		target, srcHeaders, err := sourcePage(*sourcesFile, *envFile, *sourceID, *quoteID)
		if err != nil {
			return err
		}
		*rawURL, headers = target, srcHeaders
	}

	page, source, err := loadPage(ctx, *rawURL, *file, headers, *timeout)
	if err != nil {
		return err
	}

	rec := &extractor.Recorder{}
	eng, err := extractor.FromHTML(page, extractor.WithReporter(rec))
	if err != nil {
		return err
	}

	res := result{
		Quote:       eng.ParseMetadata(),
		Lines:       eng.ParseLines(),
		Diagnostics: rec.Diagnostics(),
	}
	res.Quote.URL = source
	if res.Diagnostics == nil {
		res.Diagnostics = []extractor.Diagnostic{}
	}

	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(res)
}

// sourcePage resolves quote id of a registered source to its page URL and
// request headers. An empty sourcesFile falls back to the configured one.
func sourcePage(sourcesFile, envFile, id string, quoteID int) (string, map[string]string, error) {
	if quoteID <= 0 {
		return "", nil, errors.New("--source needs a positive --id")
	}
	if sourcesFile == "" {
		cfg, err := config.LoadFrom(envFile)
		if err != nil {
			return "", nil, fmt.Errorf("load config: %w", err)
		}
		sourcesFile = cfg.SourcesFile
	}
	if err := sources.LoadSources(sourcesFile); err != nil {
		return "", nil, fmt.Errorf("load sources registry: %w", err)
	}
	src, ok := sources.SourceByID(id)
	if !ok {
		return "", nil, fmt.Errorf("unknown source %q in %s", id, sourcesFile)
	}
	return src.QuoteURL(quoteID), sources.Headers(src), nil
}

// loadPage returns the page body and the URL to record, empty for local files.
func loadPage(ctx context.Context, rawURL, file string, headers map[string]string, timeout time.Duration) (string, string, error) {
	if file != "" {
		raw, err := os.ReadFile(file)
		if err != nil {
			return "", "", fmt.Errorf("read %s: %w", file, err)
		}
		return string(raw), "", nil
	}

	target, err := fetcher.NormalizeURL(rawURL)
	if err != nil {
		return "", "", err
	}
	page, err := fetcher.New(httpclient.NewRestyClient(timeout)).Get(ctx, target, headers)
	if err != nil {
		return "", "", err
	}
	return page, target, nil
}

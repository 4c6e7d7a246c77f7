// Package scraper fetches the loan rate page and turns its first table into loan records.
package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/loan-rate-crawler/internal/loan"
	"github.com/JakeFAU/loan-rate-crawler/internal/metrics"
)

const defaultTimeout = 15 * time.Second

// Config describes the page to scrape.
type Config struct {
	URL     string
	Source  string
	Timeout time.Duration
}

// Sinks are the optional destinations RunAndStore writes to. Nil members are skipped.
type Sinks struct {
	Records        loan.RecordStore
	Blobs          loan.BlobStore
	SnapshotPrefix string
	Publisher      loan.Publisher
	Topic          string
}

// Summary reports what RunAndStore did.
type Summary struct {
	Records     []loan.Record `json:"records"`
	Stored      int           `json:"stored"`
	SnapshotURI string        `json:"snapshot_uri,omitempty"`
	MessageID   string        `json:"message_id,omitempty"`
}

// Pipeline runs one fetch-parse-classify pass per call. It holds no per-run state.
type Pipeline struct {
	cfg     Config
	fetcher loan.Fetcher
	clock   loan.Clock
	sinks   Sinks
	logger  *zap.Logger
}

// NewPipeline wires a pipeline.
func NewPipeline(cfg Config, fetcher loan.Fetcher, clock loan.Clock, sinks Sinks, logger *zap.Logger) (*Pipeline, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("scraper url is required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if cfg.Source == "" {
		cfg.Source = loan.DefaultSource
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		cfg:     cfg,
		fetcher: fetcher,
		clock:   clock,
		sinks:   sinks,
		logger:  logger,
	}, nil
}

// Run fetches the page once and returns the classified records. Fetch failures, non-200
// responses and pages without a table are logged and yield an empty, non-nil slice.
func (p *Pipeline) Run(ctx context.Context) []loan.Record {
	records, _ := p.run(ctx)
	return records
}

// RunAndStore runs the pipeline and hands the records to every configured sink. Sink
// failures are returned; scrape failures still degrade to an empty result.
func (p *Pipeline) RunAndStore(ctx context.Context) (Summary, error) {
	records, scrapedAt := p.run(ctx)
	summary := Summary{Records: records}

	if len(records) > 0 && p.sinks.Records != nil {
		stored, err := p.sinks.Records.StoreRecords(ctx, records)
		summary.Stored = stored
		if err != nil {
			return summary, fmt.Errorf("store records: %w", err)
		}
	}

	if len(records) > 0 && p.sinks.Blobs != nil {
		uri, err := p.archive(ctx, records, scrapedAt)
		if err != nil {
			return summary, err
		}
		summary.SnapshotURI = uri
	}

	if p.sinks.Publisher != nil {
		id, err := p.sinks.Publisher.Publish(ctx, p.sinks.Topic, loan.ScrapeCompleted{
			Source:      p.cfg.Source,
			URL:         p.cfg.URL,
			Records:     len(records),
			Stored:      summary.Stored,
			SnapshotURI: summary.SnapshotURI,
			ScrapedAt:   scrapedAt.Format(loan.TimestampLayout),
		})
		if err != nil {
			return summary, fmt.Errorf("publish scrape completion: %w", err)
		}
		summary.MessageID = id
	}

	p.logger.Info("scrape stored",
		zap.Int("records", len(records)),
		zap.Int("stored", summary.Stored),
		zap.String("snapshot_uri", summary.SnapshotURI),
	)
	return summary, nil
}

func (p *Pipeline) run(ctx context.Context) ([]loan.Record, time.Time) {
	empty := make([]loan.Record, 0)
	logger := p.logger.With(zap.String("url", p.cfg.URL))

	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	resp, err := p.fetcher.Fetch(fetchCtx, loan.FetchRequest{URL: p.cfg.URL})
	scrapedAt := p.clock.Now()
	if err != nil {
		logger.Error("failed to fetch rate page", zap.Error(err))
		metrics.ObserveScrape(p.cfg.URL, metrics.ScrapeFetchError, 0)
		return empty, scrapedAt
	}
	if resp.StatusCode != http.StatusOK {
		logger.Error("failed to retrieve rate page", zap.Int("status", resp.StatusCode))
		metrics.ObserveScrape(p.cfg.URL, metrics.ScrapeBadStatus, resp.Duration)
		return empty, scrapedAt
	}

	records, err := ParseTable(resp.Body, p.cfg.Source, scrapedAt)
	if err != nil {
		if errors.Is(err, ErrNoTable) {
			logger.Warn("no table found on rate page")
		} else {
			logger.Error("failed to parse rate page", zap.Error(err))
		}
		metrics.ObserveScrape(p.cfg.URL, metrics.ScrapeNoTable, resp.Duration)
		return empty, scrapedAt
	}

	metrics.ObserveScrape(p.cfg.URL, metrics.ScrapeOK, resp.Duration)
	metrics.ObserveRecords(p.cfg.Source, len(records))
	logger.Info("scraped rate page",
		zap.Int("records", len(records)),
		zap.Bool("headless", resp.UsedHeadless),
		zap.Duration("duration", resp.Duration),
	)
	return records, scrapedAt
}

func (p *Pipeline) archive(ctx context.Context, records []loan.Record, scrapedAt time.Time) (string, error) {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	key := SnapshotKey(p.sinks.SnapshotPrefix, p.cfg.Source, scrapedAt)
	uri, err := p.sinks.Blobs.PutObject(ctx, key, "application/json", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("archive snapshot: %w", err)
	}
	return uri, nil
}

// SnapshotKey names the archived JSON for one run: <prefix>/<source>/<UTC timestamp>.json.
func SnapshotKey(prefix, source string, scrapedAt time.Time) string {
	name := scrapedAt.UTC().Format("20060102T150405Z") + ".json"
	return path.Join(prefix, strings.ToLower(source), name)
}

package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/loan-rate-crawler/internal/loan"
	pubmemory "github.com/JakeFAU/loan-rate-crawler/internal/publisher/memory"
	"github.com/JakeFAU/loan-rate-crawler/internal/storage/memory"
)

type stubFetcher struct {
	resp  loan.FetchResponse
	err   error
	calls int
	last  loan.FetchRequest
}

func (s *stubFetcher) Fetch(ctx context.Context, req loan.FetchRequest) (loan.FetchResponse, error) {
	s.calls++
	s.last = req
	if _, ok := ctx.Deadline(); !ok {
		return loan.FetchResponse{}, errors.New("fetch without deadline")
	}
	return s.resp, s.err
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type stubRecordStore struct {
	got []loan.Record
	err error
}

func (s *stubRecordStore) StoreRecords(_ context.Context, records []loan.Record) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.got = append(s.got, records...)
	return len(records), nil
}

func okPage() loan.FetchResponse {
	return loan.FetchResponse{StatusCode: http.StatusOK, Body: []byte(ratePage), Duration: time.Millisecond}
}

func newTestPipeline(t *testing.T, fetcher loan.Fetcher, sinks Sinks) (*Pipeline, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	p, err := NewPipeline(
		Config{URL: "https://rates.test/personal-loan-interest-rate.html"},
		fetcher,
		fixedClock{now: fixedTime},
		sinks,
		zap.New(core),
	)
	require.NoError(t, err)
	return p, logs
}

func TestNewPipelineValidation(t *testing.T) {
	t.Parallel()

	_, err := NewPipeline(Config{}, &stubFetcher{}, fixedClock{}, Sinks{}, nil)
	require.Error(t, err)
	_, err = NewPipeline(Config{URL: "https://x"}, nil, fixedClock{}, Sinks{}, nil)
	require.Error(t, err)
	_, err = NewPipeline(Config{URL: "https://x"}, &stubFetcher{}, nil, Sinks{}, nil)
	require.Error(t, err)

	p, err := NewPipeline(Config{URL: "https://x"}, &stubFetcher{}, fixedClock{}, Sinks{}, nil)
	require.NoError(t, err)
	require.Equal(t, loan.DefaultSource, p.cfg.Source)
	require.Equal(t, 15*time.Second, p.cfg.Timeout)
}

func TestRunClassifiesRows(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{resp: okPage()}
	p, _ := newTestPipeline(t, fetcher, Sinks{})

	records := p.Run(context.Background())
	require.Len(t, records, 4)
	require.Equal(t, "https://rates.test/personal-loan-interest-rate.html", fetcher.last.URL)
	for _, rec := range records {
		require.Equal(t, "2025-03-14 09:26:53", rec.ScrapedAt)
		require.Equal(t, loan.DefaultSource, rec.Source)
	}
}

func TestRunNonOKStatusReturnsEmpty(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{resp: loan.FetchResponse{StatusCode: http.StatusForbidden, Body: []byte(ratePage)}}
	p, logs := newTestPipeline(t, fetcher, Sinks{})

	records := p.Run(context.Background())
	require.NotNil(t, records)
	require.Empty(t, records)
	entries := logs.FilterMessage("failed to retrieve rate page").All()
	require.Len(t, entries, 1)
	require.EqualValues(t, http.StatusForbidden, entries[0].ContextMap()["status"])
}

func TestRunFetchErrorReturnsEmpty(t *testing.T) {
	t.Parallel()

	p, logs := newTestPipeline(t, &stubFetcher{err: errors.New("connection reset")}, Sinks{})

	require.Empty(t, p.Run(context.Background()))
	require.Equal(t, 1, logs.FilterMessage("failed to fetch rate page").Len())
}

func TestRunNoTableWarns(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{resp: loan.FetchResponse{StatusCode: http.StatusOK, Body: []byte("<p>no rates today</p>")}}
	p, logs := newTestPipeline(t, fetcher, Sinks{})

	require.Empty(t, p.Run(context.Background()))
	warnings := logs.FilterMessage("no table found on rate page").All()
	require.Len(t, warnings, 1)
	require.Equal(t, zap.WarnLevel, warnings[0].Level)
}

func TestRunHeaderOnlyTable(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{resp: loan.FetchResponse{
		StatusCode: http.StatusOK,
		Body:       []byte("<table><tr><th>Bank</th><th>Rate</th></tr></table>"),
	}}
	p, _ := newTestPipeline(t, fetcher, Sinks{})

	require.Empty(t, p.Run(context.Background()))
}

func TestRunIsRepeatable(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{resp: okPage()}
	p, _ := newTestPipeline(t, fetcher, Sinks{})

	first := p.Run(context.Background())
	second := p.Run(context.Background())
	require.Equal(t, first, second)
	require.Len(t, second, 4)
	require.Equal(t, 2, fetcher.calls)
}

func TestRunAndStoreWritesEverySink(t *testing.T) {
	t.Parallel()

	store := &stubRecordStore{}
	blobs := memory.NewBlobStore()
	pub := pubmemory.New()
	p, _ := newTestPipeline(t, &stubFetcher{resp: okPage()}, Sinks{
		Records:        store,
		Blobs:          blobs,
		SnapshotPrefix: "snapshots",
		Publisher:      pub,
		Topic:          "loan-events",
	})

	summary, err := p.RunAndStore(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Records, 4)
	require.Equal(t, 4, summary.Stored)
	require.Len(t, store.got, 4)
	require.Equal(t, "memory://snapshots/bankbazaar/20250314T092653Z.json", summary.SnapshotURI)
	require.Equal(t, "memory-1", summary.MessageID)

	obj, ok := blobs.Get("snapshots/bankbazaar/20250314T092653Z.json")
	require.True(t, ok)
	require.Equal(t, "application/json", obj.ContentType)
	var archived []loan.Record
	require.NoError(t, json.Unmarshal(obj.Data, &archived))
	require.Equal(t, summary.Records, archived)

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "loan-events", msgs[0].Topic)
	event, ok := msgs[0].Payload.(loan.ScrapeCompleted)
	require.True(t, ok)
	require.Equal(t, 4, event.Records)
	require.Equal(t, summary.SnapshotURI, event.SnapshotURI)
}

func TestRunAndStoreSkipsSinksWhenEmpty(t *testing.T) {
	t.Parallel()

	store := &stubRecordStore{}
	blobs := memory.NewBlobStore()
	pub := pubmemory.New()
	fetcher := &stubFetcher{resp: loan.FetchResponse{StatusCode: http.StatusInternalServerError}}
	p, _ := newTestPipeline(t, fetcher, Sinks{Records: store, Blobs: blobs, Publisher: pub})

	summary, err := p.RunAndStore(context.Background())
	require.NoError(t, err)
	require.Empty(t, summary.Records)
	require.Empty(t, store.got)
	require.Empty(t, blobs.Keys())
	require.Len(t, pub.Messages(), 1)
}

func TestRunAndStoreReturnsStoreError(t *testing.T) {
	t.Parallel()

	p, _ := newTestPipeline(t, &stubFetcher{resp: okPage()}, Sinks{
		Records: &stubRecordStore{err: errors.New("db down")},
	})

	summary, err := p.RunAndStore(context.Background())
	require.ErrorContains(t, err, "db down")
	require.Len(t, summary.Records, 4)
}

func TestRunAndStoreReturnsPublishError(t *testing.T) {
	t.Parallel()

	pub := pubmemory.New()
	pub.FailWith(errors.New("no topic"))
	p, _ := newTestPipeline(t, &stubFetcher{resp: okPage()}, Sinks{Publisher: pub})

	_, err := p.RunAndStore(context.Background())
	require.ErrorContains(t, err, "no topic")
}

func TestSnapshotKey(t *testing.T) {
	t.Parallel()

	ist := time.FixedZone("IST", 5*3600+1800)
	at := time.Date(2025, 3, 14, 14, 56, 53, 0, ist)
	require.Equal(t, "bankbazaar/20250314T092653Z.json", SnapshotKey("", "BankBazaar", at))
	require.Equal(t, "archive/x/20250314T092653Z.json", SnapshotKey("archive/", "X", at))
}

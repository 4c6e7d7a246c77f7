package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/loan-rate-crawler/internal/config"
	"github.com/JakeFAU/loan-rate-crawler/internal/forwarder"
	"github.com/JakeFAU/loan-rate-crawler/internal/loan"
	"github.com/JakeFAU/loan-rate-crawler/internal/scraper"
	"github.com/JakeFAU/loan-rate-crawler/internal/storage/memory"
)

const page = `<table>
<tr><th>Bank</th><th>Rate</th></tr>
<tr><td>HDFC Bank</td><td>10.5% - 24%</td></tr>
</table>`

type pageFetcher struct {
	status int
}

func (f pageFetcher) Fetch(context.Context, loan.FetchRequest) (loan.FetchResponse, error) {
	return loan.FetchResponse{StatusCode: f.status, Body: []byte(page)}, nil
}

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC) }

type fakeApp struct {
	pipeline  *scraper.Pipeline
	forwarder *forwarder.Forwarder
	served    bool
	listened  bool
	closed    bool
}

func (a *fakeApp) Scraper() *scraper.Pipeline      { return a.pipeline }
func (a *fakeApp) Forwarder() *forwarder.Forwarder { return a.forwarder }
func (a *fakeApp) Logger() *zap.Logger             { return zap.NewNop() }
func (a *fakeApp) Serve(context.Context) error     { a.served = true; return nil }
func (a *fakeApp) Listen(context.Context) error    { a.listened = true; return nil }
func (a *fakeApp) Close()                          { a.closed = true }

func newFakeApp(t *testing.T, status int, sinks scraper.Sinks, webhook string) *fakeApp {
	t.Helper()
	p, err := scraper.NewPipeline(scraper.Config{URL: "https://rates.test"}, pageFetcher{status: status}, fixedClock{}, sinks, nil)
	require.NoError(t, err)
	return &fakeApp{
		pipeline:  p,
		forwarder: forwarder.New(forwarder.Config{WebhookURL: webhook, Timeout: time.Second}, nil),
	}
}

func runCLI(t *testing.T, app *fakeApp, stdin string, args ...string) (string, error) {
	t.Helper()
	prev := newApp
	newApp = func(context.Context, config.Config, *zap.Logger) (App, error) { return app, nil }
	t.Cleanup(func() { newApp = prev })

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestScrapePrintsRecords(t *testing.T) {
	app := newFakeApp(t, http.StatusOK, scraper.Sinks{}, "")
	out, err := runCLI(t, app, "", "scrape")
	require.NoError(t, err)
	require.True(t, app.closed)

	require.True(t, strings.HasPrefix(out, "[\n  {\n    \"source\": \"BankBazaar\""))
	var records []loan.Record
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Equal(t, []loan.Record{{
		Source:           "BankBazaar",
		BankName:         "HDFC Bank",
		ProductName:      "HDFC Bank Personal Loan",
		MinCreditScore:   750,
		MinIncomeMonthly: 40000,
		ScrapedAt:        "2025-03-14 09:26:53",
	}}, records)
}

func TestScrapeFailurePrintsEmptyArray(t *testing.T) {
	app := newFakeApp(t, http.StatusServiceUnavailable, scraper.Sinks{}, "")
	out, err := runCLI(t, app, "", "scrape")
	require.NoError(t, err)
	require.Equal(t, "[]\n", out)
}

func TestScrapeStore(t *testing.T) {
	blobs := memory.NewBlobStore()
	app := newFakeApp(t, http.StatusOK, scraper.Sinks{Blobs: blobs, SnapshotPrefix: "snapshots"}, "")
	_, err := runCLI(t, app, "", "scrape", "--store")
	require.NoError(t, err)
	require.Equal(t, []string{"snapshots/bankbazaar/20250314T092653Z.json"}, blobs.Keys())
}

func TestForwardFromFileAndStdin(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []string
	)
	webhook := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r.Body)
		mu.Lock()
		bodies = append(bodies, buf.String())
		mu.Unlock()
	}))
	defer webhook.Close()

	event := `{"Records":[{"s3":{"bucket":{"name":"loan-csv"},"object":{"key":"a.csv"}}}]}`
	path := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(path, []byte(event), 0o600))

	app := newFakeApp(t, http.StatusOK, scraper.Sinks{}, webhook.URL)
	out, err := runCLI(t, app, "", "forward", "--file", path)
	require.NoError(t, err)
	var res forwarder.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Equal(t, forwarder.Result{StatusCode: 200, Body: "Successfully notified n8n: a.csv"}, res)

	_, err = runCLI(t, app, event, "forward")
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 2)
	require.JSONEq(t, `{"bucket":"loan-csv","key":"a.csv"}`, bodies[0])
}

func TestForwardFailureExitsNonZero(t *testing.T) {
	app := newFakeApp(t, http.StatusOK, scraper.Sinks{}, "")
	out, err := runCLI(t, app, `{"Records":[]}`, "forward", "-f", "-")
	require.Error(t, err)
	require.Contains(t, out, `"statusCode": 500`)
}

func TestServeAndListenDelegate(t *testing.T) {
	app := newFakeApp(t, http.StatusOK, scraper.Sinks{}, "")
	_, err := runCLI(t, app, "", "serve")
	require.NoError(t, err)
	require.True(t, app.served)

	_, err = runCLI(t, app, "", "listen")
	require.NoError(t, err)
	require.True(t, app.listened)
}

func TestMissingConfigFileFails(t *testing.T) {
	app := newFakeApp(t, http.StatusOK, scraper.Sinks{}, "")
	_, err := runCLI(t, app, "", "scrape", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "load config")
	require.False(t, app.closed)
}

func TestResolveAppWithoutApp(t *testing.T) {
	_, err := resolveApp(context.Background())
	require.Error(t, err)
}

// Command loanscraper scrapes personal-loan interest rates and relays storage events.
//
// Architecture overview:
//   - Scrape pipeline: internal/scraper fetches the configured rate page once per run through a
//     Colly fetcher (or headless Chrome when enabled), reads the first table with goquery, and
//     classifies each row with the rate extractor and eligibility rules in internal/loan.
//   - Persistence & fanout: `scrape --store` and POST /v1/loans/refresh write records to Postgres,
//     archive a JSON snapshot to the configured object store (memory, local, GCS or S3), and
//     publish a scrape.completed notification to Pub/Sub.
//   - Upload & forwarding: the HTTP server accepts CSV uploads under generated UUID names; storage
//     notifications arriving over HTTP, Pub/Sub or the forward command are POSTed once to the
//     n8n webhook.
//   - Configuration & plumbing: Viper reads config files and LOANSCRAPER_* env vars (plus
//     N8N_WEBHOOK_URL); zap provides structured logging; Prometheus metrics are served on /metrics.
package main

import (
	"github.com/JakeFAU/loan-rate-crawler/cmd"
)

func main() {
	cmd.Execute()
}

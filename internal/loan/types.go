package loan

import (
	"net/http"
	"time"
)

// TimestampLayout formats Record.ScrapedAt.
const TimestampLayout = "2006-01-02 15:04:05"

// DefaultSource labels records scraped from the default rate page.
const DefaultSource = "BankBazaar"

// Record is a single classified loan offer produced by the scrape pipeline.
type Record struct {
	Source           string `json:"source"`
	BankName         string `json:"bank_name"`
	ProductName      string `json:"product_name"`
	MinCreditScore   int    `json:"min_credit_score"`
	MinIncomeMonthly int    `json:"min_income_monthly"`
	ScrapedAt        string `json:"scraped_at"`
}

// NewRecord assembles a Record for one table row. Both thresholds are copied from the same
// Eligibility value so a record never mixes bands.
func NewRecord(source, bankName string, eligibility Eligibility, scrapedAt time.Time) Record {
	return Record{
		Source:           source,
		BankName:         bankName,
		ProductName:      ProductName(bankName),
		MinCreditScore:   eligibility.CreditScore,
		MinIncomeMonthly: eligibility.MinIncomeMonthly,
		ScrapedAt:        scrapedAt.Format(TimestampLayout),
	}
}

// ProductName derives the product label for a bank.
func ProductName(bankName string) string {
	return bankName + " Personal Loan"
}

// FetchRequest captures everything needed to fetch a page.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

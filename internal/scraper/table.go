package scraper

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/loan-rate-crawler/internal/loan"
)

// ErrNoTable is returned by ParseTable when the document has no <table> element.
var ErrNoTable = errors.New("no table found on page")

// ParseTable classifies every data row of the first table in body. The first <tr> is treated
// as the header and rows with fewer than two <td> cells are skipped.
func ParseTable(body []byte, source string, scrapedAt time.Time) ([]loan.Record, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, ErrNoTable
	}

	records := make([]loan.Record, 0)
	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		bankName := cellText(cells.Eq(0))
		rate := loan.ParseInterestRate(cellText(cells.Eq(1)))
		eligibility := loan.EstimateEligibility(rate.MinRate())
		records = append(records, loan.NewRecord(source, bankName, eligibility, scrapedAt))
	})
	return records, nil
}

// cellText trims every text fragment of the cell and joins the non-empty ones.
func cellText(s *goquery.Selection) string {
	var parts []string
	var walk func(*goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, child *goquery.Selection) {
			if goquery.NodeName(child) != "#text" {
				walk(child)
				return
			}
			if text := strings.TrimSpace(child.Text()); text != "" {
				parts = append(parts, text)
			}
		})
	}
	walk(s)
	return strings.Join(parts, "")
}

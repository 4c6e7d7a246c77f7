// Package loan defines the record types, rate parsing and eligibility rules shared by the
// scrape pipeline, plus the collaborator interfaces the pipeline and HTTP layer depend on.
package loan

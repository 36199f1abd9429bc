// Package scrape holds the problem context that accompanies a practice
// session: the problem statement and the code under edit, as observed by an
// external page scraper.
package scrape

// ProblemContext is a snapshot of the scraped problem state. All fields are
// plain display text with scraping artifacts already cleaned out.
type ProblemContext struct {
	Title       string
	Description string
	Code        string
	TestCases   string
}

// Provider exposes the latest problem context to anyone assembling a session.
// A nil snapshot means no context has been observed yet and is not an error.
type Provider interface {
	ProblemContext() *ProblemContext
}

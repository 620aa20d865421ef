// Package textfields pulls invoice facts out of OCR text.
//
// Every rule here is a heuristic over free text, not a parser: the issuer is
// the first nine-digit number that looks like a Portuguese NIF, and the grand
// total is chosen from all two-decimal amounts by a TotalSelector. The
// default selector takes the last amount in reading order because invoices
// usually print subtotals and taxes before the total line. That guess is
// wrong for documents that print another amount after the total, so the
// selector is a field callers can swap.
package textfields

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Lllllllleong/qrinvoicevalidator/internal/models"
)

// DefaultExcerptLimit bounds the text kept on a result for audit display.
const DefaultExcerptLimit = 500

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	taxIDRe      = regexp.MustCompile(`\b[125-9]\d{8}\b`)
	amountRe     = regexp.MustCompile(`\b\d+[,.]\d{2}\b`)
	isoDateRe    = regexp.MustCompile(`\b(\d{4})[-/.](\d{2})[-/.](\d{2})\b`)
	euDateRe     = regexp.MustCompile(`\b(\d{2})[-/.](\d{2})[-/.](\d{4})\b`)
	docNumberRe  = regexp.MustCompile(`\b(?:FT|FR|FS|FA|NC|ND|RC|RG|GT|GR) ?[A-Za-z0-9.\-_]+/\d+\b`)
	vatRe        = regexp.MustCompile(`(?i)\bIVA\b.{0,40}?(\d+[,.]\d{2})\b`)
)

// TotalSelector picks the grand total from the amounts found on a page, in
// reading order. It reports false when no amount qualifies.
type TotalSelector func(amounts []float64) (float64, bool)

// LastAmount selects the last amount printed on the page.
func LastAmount(amounts []float64) (float64, bool) {
	if len(amounts) == 0 {
		return 0, false
	}
	return amounts[len(amounts)-1], true
}

// LargestAmount selects the highest amount on the page.
func LargestAmount(amounts []float64) (float64, bool) {
	if len(amounts) == 0 {
		return 0, false
	}
	largest := amounts[0]
	for _, a := range amounts[1:] {
		if a > largest {
			largest = a
		}
	}
	return largest, true
}

// Extractor turns recognized text into RecognizedFields.
type Extractor struct {
	SelectTotal  TotalSelector
	ExcerptLimit int
}

// New returns an Extractor using LastAmount and DefaultExcerptLimit.
func New() *Extractor {
	return &Extractor{SelectTotal: LastAmount, ExcerptLimit: DefaultExcerptLimit}
}

// Extract reads the fields it can find. Members that are not found stay nil.
func (e *Extractor) Extract(text string) *models.RecognizedFields {
	normalized := Normalize(text)
	fields := &models.RecognizedFields{Excerpt: excerpt(normalized, e.excerptLimit())}

	if id := taxIDRe.FindString(normalized); id != "" {
		fields.IssuerTaxID = &id
	}

	selectTotal := e.SelectTotal
	if selectTotal == nil {
		selectTotal = LastAmount
	}
	if total, ok := selectTotal(Amounts(normalized)); ok {
		fields.TotalWithTaxes = &total
	}

	if date, ok := issueDate(normalized); ok {
		fields.IssueDate = &date
	}
	if number := docNumberRe.FindString(normalized); number != "" {
		fields.DocumentNumber = &number
	}
	if vat, ok := totalVAT(normalized); ok {
		fields.TotalVAT = &vat
	}
	return fields
}

func (e *Extractor) excerptLimit() int {
	if e.ExcerptLimit <= 0 {
		return DefaultExcerptLimit
	}
	return e.ExcerptLimit
}

// Normalize collapses whitespace runs into single spaces.
func Normalize(text string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}

// Amounts returns every two-decimal amount in text, in order. Both "12,34"
// and "12.34" are accepted.
func Amounts(text string) []float64 {
	matches := amountRe.FindAllString(text, -1)
	amounts := make([]float64, 0, len(matches))
	for _, m := range matches {
		if v, ok := parseAmount(m); ok {
			amounts = append(amounts, v)
		}
	}
	return amounts
}

func parseAmount(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// issueDate returns the first date found, in the YYYYMMDD form used by the QR
// payload.
func issueDate(text string) (string, bool) {
	iso := isoDateRe.FindStringSubmatchIndex(text)
	eu := euDateRe.FindStringSubmatchIndex(text)

	switch {
	case iso != nil && (eu == nil || iso[0] < eu[0]):
		return text[iso[2]:iso[3]] + text[iso[4]:iso[5]] + text[iso[6]:iso[7]], true
	case eu != nil:
		return text[eu[6]:eu[7]] + text[eu[4]:eu[5]] + text[eu[2]:eu[3]], true
	}
	return "", false
}

func totalVAT(text string) (float64, bool) {
	matches := vatRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return 0, false
	}
	return parseAmount(matches[len(matches)-1][1])
}

func excerpt(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

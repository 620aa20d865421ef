// Package qrpayload reads and writes the text carried by the QR code printed
// on Portuguese invoices: letter keys and values joined as "key:value" and
// separated by "*".
package qrpayload

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/Lllllllleong/qrinvoicevalidator/internal/models"
)

const (
	segmentSeparator = "*"
	keySeparator     = ":"
)

// Known keys of the AT QR code specification.
const (
	KeyIssuerTaxID     = "A"
	KeyAcquirerTaxID   = "B"
	KeyAcquirerCountry = "C"
	KeyDocumentType    = "D"
	KeyDocumentStatus  = "E"
	KeyIssueDate       = "F"
	KeyDocumentNumber  = "G"
	KeyUniqueCode      = "H"
	KeyTotalWithTaxes  = "O"
)

// Parse decodes raw QR text. It returns false when the issuer tax id, issue
// date or document number is missing; a partial record is never returned.
// Segments without a key separator are ignored. A total that is absent or not
// a number is stored as NaN.
func Parse(raw string) (*models.CodeFields, bool) {
	fields := &models.CodeFields{TotalWithTaxes: math.NaN()}

	for _, segment := range strings.Split(raw, segmentSeparator) {
		key, value, ok := strings.Cut(segment, keySeparator)
		if !ok {
			continue
		}
		switch key {
		case KeyIssuerTaxID:
			fields.IssuerTaxID = value
		case KeyAcquirerTaxID:
			fields.AcquirerTaxID = value
		case KeyAcquirerCountry:
			fields.AcquirerCountry = value
		case KeyDocumentType:
			fields.DocumentType = value
		case KeyDocumentStatus:
			fields.DocumentStatus = value
		case KeyIssueDate:
			fields.IssueDate = value
		case KeyDocumentNumber:
			fields.DocumentNumber = value
		case KeyUniqueCode:
			fields.UniqueCode = value
		case KeyTotalWithTaxes:
			fields.TotalRaw = value
			fields.TotalWithTaxes = parseTotal(value)
		default:
			if fields.Extensions == nil {
				fields.Extensions = make(map[string]string)
			}
			fields.Extensions[key] = value
		}
	}

	if fields.IssuerTaxID == "" || fields.IssueDate == "" || fields.DocumentNumber == "" {
		return nil, false
	}
	return fields, true
}

func parseTotal(value string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// Encode renders fields back into QR text: the named keys in specification
// order, then extensions sorted by key, then the total with two decimals.
// Empty optional members and a NaN total are left out.
func Encode(f *models.CodeFields) string {
	var segments []string
	add := func(key, value string) {
		if value != "" {
			segments = append(segments, key+keySeparator+value)
		}
	}

	add(KeyIssuerTaxID, f.IssuerTaxID)
	add(KeyAcquirerTaxID, f.AcquirerTaxID)
	add(KeyAcquirerCountry, f.AcquirerCountry)
	add(KeyDocumentType, f.DocumentType)
	add(KeyDocumentStatus, f.DocumentStatus)
	add(KeyIssueDate, f.IssueDate)
	add(KeyDocumentNumber, f.DocumentNumber)
	add(KeyUniqueCode, f.UniqueCode)

	keys := make([]string, 0, len(f.Extensions))
	for k := range f.Extensions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		segments = append(segments, k+keySeparator+f.Extensions[k])
	}

	if f.HasValidTotal() {
		add(KeyTotalWithTaxes, strconv.FormatFloat(f.TotalWithTaxes, 'f', 2, 64))
	}
	return strings.Join(segments, segmentSeparator)
}

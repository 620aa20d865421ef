package models

import (
	"encoding/json"
	"math"
)

// CodeFields is the typed record decoded from an invoice QR payload.
// TotalWithTaxes is NaN when the payload carried no usable total.
type CodeFields struct {
	IssuerTaxID     string            `json:"issuerTaxId" firestore:"issuerTaxId"`
	AcquirerTaxID   string            `json:"acquirerTaxId,omitempty" firestore:"acquirerTaxId,omitempty"`
	AcquirerCountry string            `json:"acquirerCountry,omitempty" firestore:"acquirerCountry,omitempty"`
	DocumentType    string            `json:"documentType" firestore:"documentType"`
	DocumentStatus  string            `json:"documentStatus" firestore:"documentStatus"`
	IssueDate       string            `json:"issueDate" firestore:"issueDate"`
	DocumentNumber  string            `json:"documentNumber" firestore:"documentNumber"`
	UniqueCode      string            `json:"uniqueCode,omitempty" firestore:"uniqueCode,omitempty"`
	TotalWithTaxes  float64           `json:"-" firestore:"totalWithTaxes"`
	TotalRaw        string            `json:"totalRaw,omitempty" firestore:"totalRaw,omitempty"`
	Extensions      map[string]string `json:"extensions,omitempty" firestore:"extensions,omitempty"`
}

// HasValidTotal reports whether the total is a finite number.
func (c *CodeFields) HasValidTotal() bool {
	return !math.IsNaN(c.TotalWithTaxes) && !math.IsInf(c.TotalWithTaxes, 0)
}

type codeFieldsJSON CodeFields

type codeFieldsWire struct {
	codeFieldsJSON
	Total *float64 `json:"totalWithTaxes"`
}

// MarshalJSON writes the total as null when it is not a finite number, since
// encoding/json rejects NaN.
func (c CodeFields) MarshalJSON() ([]byte, error) {
	w := codeFieldsWire{codeFieldsJSON: codeFieldsJSON(c)}
	if c.HasValidTotal() {
		total := c.TotalWithTaxes
		w.Total = &total
	}
	return json.Marshal(w)
}

func (c *CodeFields) UnmarshalJSON(data []byte) error {
	var w codeFieldsWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*c = CodeFields(w.codeFieldsJSON)
	c.TotalWithTaxes = math.NaN()
	if w.Total != nil {
		c.TotalWithTaxes = *w.Total
	}
	return nil
}

// RecognizedFields holds what could be read from the visible text of a page.
// A nil member means the value was not detected.
type RecognizedFields struct {
	IssuerTaxID    *string  `json:"issuerTaxId,omitempty" firestore:"issuerTaxId,omitempty"`
	IssueDate      *string  `json:"issueDate,omitempty" firestore:"issueDate,omitempty"`
	DocumentNumber *string  `json:"documentNumber,omitempty" firestore:"documentNumber,omitempty"`
	TotalWithTaxes *float64 `json:"totalWithTaxes,omitempty" firestore:"totalWithTaxes,omitempty"`
	TotalVAT       *float64 `json:"totalVat,omitempty" firestore:"totalVat,omitempty"`
	Excerpt        string   `json:"excerpt,omitempty" firestore:"excerpt,omitempty"`
}

package models

// These structs define the JSON payloads exchanged with the validator
// functions.

// GCSEvent is the data of a storage object finalize event.
type GCSEvent struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
}

// ValidateResponse is returned by the single-document path.
type ValidateResponse struct {
	Status string         `json:"status"`
	Result DocumentResult `json:"result"`
}

// BatchRequest is the input for the batch-validator function.
type BatchRequest struct {
	Bucket           string   `json:"bucket"`
	Prefix           string   `json:"prefix"`
	TolerancePercent *float64 `json:"tolerancePercent,omitempty"`
	Workers          int      `json:"workers,omitempty"`
}

// BatchResponse is the output of the batch-validator function.
type BatchResponse struct {
	Status  string           `json:"status"`
	Results []DocumentResult `json:"results"`
	Summary Summary          `json:"summary"`
}

// ReviewRequest is the argument passed to the manual review workflow.
type ReviewRequest struct {
	ResultID     string `json:"resultId"`
	OriginalName string `json:"originalName"`
	Status       Status `json:"status"`
	SourceURI    string `json:"sourceUri,omitempty"`
}

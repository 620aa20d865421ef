package models

// Summary counts results per status for a batch.
type Summary struct {
	Total          int `json:"total"`
	Validated      int `json:"validated"`
	Flagged        int `json:"flagged"`
	Discarded      int `json:"discarded"`
	CodeNotVisible int `json:"codeNotVisible"`
}

func Summarize(results []DocumentResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case StatusValidated:
			s.Validated++
		case StatusFlaggedForReview:
			s.Flagged++
		case StatusDiscarded:
			s.Discarded++
		case StatusCodeNotVisible:
			s.CodeNotVisible++
		}
	}
	return s
}

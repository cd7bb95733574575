package models

// CandidateItem is one parsed import row before validation
type CandidateItem struct {
	Row        int     `json:"row"` // line number in the source file, for reporting
	ExternalID string  `json:"external_id" validate:"required,barcode"`
	Name       string  `json:"name" validate:"required,max=50"`
	Genre      string  `json:"genre" validate:"required,max=100"`
	Manager    string  `json:"manager" validate:"required,max=100"`
	ImageURL   *string `json:"image_url,omitempty"`
}

// ValidatedItem is a candidate row with its validation outcome.
// IsValid is true exactly when Errors is empty.
type ValidatedItem struct {
	CandidateItem
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors"`
}

// AddError records a failure and keeps IsValid in sync
func (v *ValidatedItem) AddError(message string) {
	v.Errors = append(v.Errors, message)
	v.IsValid = false
}

// ImportRowsRequest carries already-parsed rows as JSON
type ImportRowsRequest struct {
	Rows []CandidateItem `json:"rows"`
}

// ImportReport is returned by the validate endpoint
type ImportReport struct {
	Rows         []ValidatedItem `json:"rows"`
	TotalRows    int             `json:"total_rows"`
	ValidCount   int             `json:"valid_count"`
	InvalidCount int             `json:"invalid_count"`
}

// NewImportReport counts valid and invalid rows
func NewImportReport(rows []ValidatedItem) *ImportReport {
	report := &ImportReport{
		Rows:      rows,
		TotalRows: len(rows),
	}
	for _, r := range rows {
		if r.IsValid {
			report.ValidCount++
		} else {
			report.InvalidCount++
		}
	}
	return report
}

// ImportCommitResponse is returned after a successful batch insert
type ImportCommitResponse struct {
	ImportReport
	Inserted int `json:"inserted"`
}

// LabelScanResponse lists barcode candidates read from a label photo
type LabelScanResponse struct {
	Text       string             `json:"text"`
	Candidates []BarcodeCandidate `json:"candidates"`
}

// BarcodeCandidate is a digit run that could be an item external id
type BarcodeCandidate struct {
	Code              string `json:"code"`
	ChecksumValid     bool   `json:"checksum_valid"`
	AlreadyRegistered bool   `json:"already_registered"`
	ItemID            *int   `json:"item_id,omitempty"`
}

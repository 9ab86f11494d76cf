package sheet

// DocumentRef identifies the target document and, optionally, one sheet in
// it. It is immutable for the lifetime of a request.
type DocumentRef struct {
	SpreadsheetID string `json:"spreadsheetId"`
	Sheet         string `json:"sheet,omitempty"`
}

// WithSheet returns a copy of r scoped to the given sheet title.
func (r DocumentRef) WithSheet(title string) DocumentRef {
	r.Sheet = title
	return r
}

// String renders the reference for logs.
func (r DocumentRef) String() string {
	if r.Sheet == "" {
		return r.SpreadsheetID
	}
	return r.SpreadsheetID + "/" + r.Sheet
}

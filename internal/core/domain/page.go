package domain

import "encoding/json"

// PageCursor tracks progress through a listing endpoint.
// Either Offset or NextLink drives the next fetch.
type PageCursor struct {
	Offset   int
	NextLink string
	PageSize int
	HasMore  bool
}

// Page is one page of a listing. Items are left undecoded.
type Page struct {
	// Number is the zero-based index of the page within the run.
	Number       int
	Items        []json.RawMessage
	TotalResults int
	// Next is the cursor for the following page.
	Next PageCursor
}

// DecodeItems unmarshals every item into a new slice of T.
func DecodeItems[T any](p Page) ([]T, error) {
	out := make([]T, 0, len(p.Items))
	for _, raw := range p.Items {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, &HTTPError{Kind: ErrInvalidResponse, Body: raw, Err: err}
		}
		out = append(out, v)
	}
	return out, nil
}

package driven

// Browser opens an authorization URL for the user.
type Browser interface {
	Open(url string) error
}

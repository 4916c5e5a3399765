package pipeline

// UserMessage is the only failure text shown to users.
const UserMessage = "failed to open document in editor"

// OpenError is returned when no document could be produced.
type OpenError struct {
	SourceDocumentID string
	Err              error
}

func (e *OpenError) Error() string { return UserMessage }

func (e *OpenError) Unwrap() error { return e.Err }

// Cause returns the underlying error text for logs.
func (e *OpenError) Cause() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

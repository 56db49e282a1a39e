package store

import "errors"

var (
	// ErrFileNotFound indicates the file record could not be found.
	ErrFileNotFound = errors.New("file not found")

	// ErrNotAwaitingUpload indicates content was pushed to a record that is
	// not in the awaiting_upload state.
	ErrNotAwaitingUpload = errors.New("file is not awaiting upload")
)

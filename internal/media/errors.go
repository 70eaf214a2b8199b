package media

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("media not found")
	ErrAmbiguous    = errors.New("identifier matches more than one stored file")
	ErrInvalidRange = errors.New("range not satisfiable")
	ErrInvalidInput = errors.New("empty upload")
)

// StorageError is a filesystem failure while persisting an upload.
// Filename is the name the upload was going to be stored under.
type StorageError struct {
	Op       string
	Filename string
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("could not store file %s: %s: %v", e.Filename, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func IsStorageFailure(err error) bool {
	var e *StorageError
	return errors.As(err, &e)
}

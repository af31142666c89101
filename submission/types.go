// Package submission sends user content to the corpus API: one chunk upload followed by the finalize call
// that turns it into a durable record.
package submission

import (
	"errors"

	"github.com/google/uuid"

	"github.com/swecha/corpus-contrib/catalog"
	"github.com/swecha/corpus-contrib/media"
)

// ErrTransientChunk is returned when the API failed to store a chunk on its side. Trying again later may succeed.
var ErrTransientChunk = errors.New("server failed to save chunk")

// ContentSubmission is the input of one submission. It is consumed by Submit and never retained.
type ContentSubmission struct {
	Title string
	// Body is the text content, or the description of an attached payload.
	Body          string
	CategoryID    string
	Language      string
	ReleaseRights string
	MediaType     catalog.MediaType
	// Place is optional.
	Place string
	// Payload is the attached file, if any.
	Payload *media.Payload
}

func (c ContentSubmission) hasPayload() bool {
	return c.Payload != nil && c.MediaType != catalog.MediaText
}

// UploadTransaction identifies the chunk uploads of one submission attempt. It is created fresh for every attempt.
type UploadTransaction struct {
	ID          uuid.UUID
	Filename    string
	ChunkIndex  int
	TotalChunks int
}

func newTransaction(filename string) UploadTransaction {
	return UploadTransaction{
		ID:          uuid.New(),
		Filename:    filename,
		ChunkIndex:  0,
		TotalChunks: 1,
	}
}

// Result is the outcome of a submission as shown to the user.
type Result struct {
	Success bool
	Message string
	// Err is the cause of a failure, nil on success.
	Err error
	// Transaction is the upload attempt. Its ID is zero if validation failed before an attempt was made.
	Transaction UploadTransaction
}

func failure(tx UploadTransaction, message string, err error) Result {
	return Result{Message: message, Err: err, Transaction: tx}
}

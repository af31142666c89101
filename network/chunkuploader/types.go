// Package chunkuploader sends the chunks of one upload transaction to the corpus API, strictly in order,
// retrying the failures the caller marks as retryable.
package chunkuploader

import (
	"context"
	"io"

	"github.com/swecha/corpus-contrib/network"
)

// ChunkSender delivers one chunk. *network.Client implements it.
type ChunkSender interface {
	UploadChunk(ctx context.Context, token string, chunk network.ChunkUpload) error
}

// ChunkProvider provides chunk data for upload.
// Implementations can read from files or memory buffers.
type ChunkProvider interface {
	// NumChunks returns the total number of chunks.
	NumChunks() int

	// ChunkSize returns the size of the chunk at the given index.
	ChunkSize(index int) int64

	// GetChunk returns a reader for the chunk at the given index.
	// For retries, GetChunk may be called multiple times for the same index.
	GetChunk(index int) (io.Reader, error)
}

// Transaction identifies the upload the chunks belong to.
type Transaction struct {
	UploadID    string
	Filename    string
	ContentType string
}

// ChunkResult represents the result of uploading a single chunk.
type ChunkResult struct {
	Index    int
	Attempts int
	Size     int64
	Err      error
}

// UploadResult represents the result of uploading all chunks.
type UploadResult struct {
	Chunks []ChunkResult
}

// Bytes is the total number of payload bytes delivered.
func (r UploadResult) Bytes() int64 {
	var total int64
	for _, chunk := range r.Chunks {
		if chunk.Err == nil {
			total += chunk.Size
		}
	}
	return total
}

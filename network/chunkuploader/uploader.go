package chunkuploader

import (
	"context"
	"fmt"
	"time"

	"github.com/bitrise-io/go-utils/retry"
	"github.com/bitrise-io/go-utils/v2/log"

	"github.com/swecha/corpus-contrib/network"
)

// Uploader sends the chunks of an upload transaction one after the other.
type Uploader struct {
	config Config
	sender ChunkSender
	logger log.Logger
	stats  *Stats
}

// New creates a new Uploader with the given configuration.
func New(config Config, sender ChunkSender, logger log.Logger) *Uploader {
	return &Uploader{
		config: config,
		sender: sender,
		logger: logger,
		stats:  NewStats(),
	}
}

// Upload sends all chunks from the provider in index order. The first chunk that fails for good
// stops the upload and later chunks are never sent. The returned result lists every attempted chunk,
// also on error.
func (u *Uploader) Upload(ctx context.Context, token string, tx Transaction, provider ChunkProvider) (*UploadResult, error) {
	numChunks := provider.NumChunks()
	if numChunks == 0 {
		return nil, fmt.Errorf("upload %s: no chunks to upload", tx.UploadID)
	}

	result := &UploadResult{Chunks: make([]ChunkResult, 0, numChunks)}
	for i := 0; i < numChunks; i++ {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("upload cancelled before chunk %d: %w", i+1, err)
		}

		chunkResult := u.uploadChunkWithRetry(ctx, token, tx, provider, i, numChunks)
		result.Chunks = append(result.Chunks, chunkResult)
		if chunkResult.Err != nil {
			u.stats.Failed()
			return result, fmt.Errorf("chunk %d/%d failed after %d attempts: %w", i+1, numChunks, chunkResult.Attempts, chunkResult.Err)
		}
	}

	return result, nil
}

// Stats returns the upload statistics.
func (u *Uploader) Stats() *Stats {
	return u.stats
}

func (u *Uploader) uploadChunkWithRetry(ctx context.Context, token string, tx Transaction, provider ChunkProvider, index, totalChunks int) ChunkResult {
	result := ChunkResult{Index: index, Size: provider.ChunkSize(index)}
	maxAttempts := u.config.maxRetries() + 1

	result.Err = retry.Times(u.config.maxRetries()).Wait(u.config.RetryWait).TryWithAbort(func(attempt uint) (error, bool) {
		result.Attempts++
		if attempt > 0 {
			u.stats.Retried()
		}

		u.logger.Debugf("Uploading chunk %d/%d of %s (attempt %d/%d) [finished=%d] [avg=%v]",
			index+1, totalChunks, tx.UploadID, attempt+1, maxAttempts,
			u.stats.FinishedCount(), u.stats.Average().Round(time.Millisecond))

		start := time.Now()
		err := u.uploadChunk(ctx, token, tx, provider, index, totalChunks)
		if err == nil {
			took := time.Since(start)
			u.stats.Update(took, result.Size)
			u.logger.Debugf("Chunk %d uploaded in %v", index+1, took.Round(time.Millisecond))
			return nil, true
		}

		if ctx.Err() != nil {
			return err, true
		}
		if !u.config.retryable(err) {
			return err, true
		}

		u.logger.Warnf("Chunk %d attempt %d failed: %v", index+1, attempt+1, err)
		return err, false
	})

	return result
}

func (u *Uploader) uploadChunk(ctx context.Context, token string, tx Transaction, provider ChunkProvider, index, totalChunks int) error {
	reader, err := provider.GetChunk(index)
	if err != nil {
		return fmt.Errorf("get chunk %d: %w", index+1, err)
	}

	return u.sender.UploadChunk(ctx, token, network.ChunkUpload{
		UploadID:    tx.UploadID,
		Filename:    tx.Filename,
		ContentType: tx.ContentType,
		Index:       index,
		Total:       totalChunks,
		Data:        reader,
	})
}

package submission

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"

	"github.com/swecha/corpus-contrib/auth"
	"github.com/swecha/corpus-contrib/catalog"
	"github.com/swecha/corpus-contrib/network"
	"github.com/swecha/corpus-contrib/network/chunkuploader"
)

const (
	transientChunkDetail = "Failed to save chunk"
	textContentType      = "text/plain; charset=utf-8"
)

// API is the part of the corpus API the submitter uses. *network.Client implements it.
type API interface {
	chunkuploader.ChunkSender
	FinalizeRecord(ctx context.Context, token string, rec network.Record) error
	Categories(ctx context.Context, token string) ([]network.Category, error)
}

// Params ...
type Params struct {
	// ChunkRetries is the number of automatic retries of a chunk the server failed to save.
	ChunkRetries   int
	ChunkRetryWait time.Duration
}

// Submitter runs the two-phase upload for any number of sessions.
type Submitter struct {
	api      API
	auth     *auth.Manager
	uploader *chunkuploader.Uploader
	logger   log.Logger

	mu         sync.RWMutex
	categories catalog.CategorySet
}

// NewSubmitter ...
func NewSubmitter(api API, authManager *auth.Manager, params Params, logger log.Logger) *Submitter {
	config := chunkuploader.DefaultConfig()
	config.MaxRetryPerChunk = params.ChunkRetries
	if params.ChunkRetryWait > 0 {
		config.RetryWait = params.ChunkRetryWait
	}
	config.IsRetryable = isTransientChunk

	return &Submitter{
		api:      api,
		auth:     authManager,
		uploader: chunkuploader.New(config, api, logger),
		logger:   logger,
	}
}

// Submit validates sub, uploads its content as a single chunk and finalizes the record. Validation failures
// never reach the network. A chunk failure stops the submission before finalize. A finalize failure leaves the
// uploaded chunk orphaned on the server; it is logged and not cleaned up.
func (s *Submitter) Submit(ctx context.Context, sess *auth.Session, sub ContentSubmission) Result {
	if !sess.Authenticated || sess.UserID() == "" {
		return failure(UploadTransaction{}, "Please log in to submit content.", auth.ErrNotAuthenticated)
	}

	v, err := validate(sub, s.loadedCategories())
	if err != nil {
		return failure(UploadTransaction{}, err.Error(), err)
	}

	filename := DeriveFilename(v.Title, v.mediaType, v.Payload)
	tx := newTransaction(filename)
	hasPayload := v.hasPayload()
	noun := "content"
	if hasPayload {
		noun = "file"
	}

	s.logger.Infof("Submitting %s as %s (upload %s)", v.mediaType, filename, tx.ID)

	provider, contentType, closeProvider, err := s.chunkProvider(v)
	if err != nil {
		return failure(tx, fmt.Sprintf("An error occurred: %s", err), err)
	}
	defer closeProvider()

	result, err := s.uploader.Upload(ctx, sess.Token, chunkuploader.Transaction{
		UploadID:    tx.ID.String(),
		Filename:    filename,
		ContentType: contentType,
	}, provider)
	if err != nil {
		return s.chunkFailure(sess, tx, noun, err)
	}
	s.logger.Debugf("Uploaded %d bytes for %s", result.Bytes(), tx.ID)

	mediaType := catalog.MediaText
	if hasPayload {
		mediaType = v.mediaType
	}
	err = s.api.FinalizeRecord(ctx, sess.Token, network.Record{
		Title:          v.Title,
		Description:    v.Body,
		CategoryID:     v.CategoryID,
		UserID:         sess.UserID(),
		MediaType:      string(mediaType),
		UploadID:       tx.ID.String(),
		Filename:       filename,
		TotalChunks:    tx.TotalChunks,
		ReleaseRights:  string(v.rights),
		Language:       string(v.language),
		UseUIDFilename: false,
		Place:          v.Place,
	})
	if err != nil {
		return s.finalizeFailure(sess, tx, err)
	}

	message := "Content submitted successfully!"
	if hasPayload {
		message = "File content submitted successfully!"
	}
	s.logger.Donef("%s (upload %s)", message, tx.ID)
	return Result{Success: true, Message: message, Transaction: tx}
}

func (s *Submitter) chunkProvider(v validated) (chunkuploader.ChunkProvider, string, func(), error) {
	if !v.hasPayload() {
		provider := chunkuploader.NewBytesChunkProvider([]byte(v.Body))
		return provider, textContentType, func() {}, nil
	}

	payload := v.Payload
	if payload.InMemory() {
		return chunkuploader.NewBytesChunkProvider(payload.Data), payload.ContentType, func() {}, nil
	}

	provider, err := chunkuploader.NewFileChunkProvider(payload.Path)
	if err != nil {
		return nil, "", nil, fmt.Errorf("read payload: %w", err)
	}
	closeProvider := func() {
		if err := provider.Close(); err != nil {
			s.logger.Warnf("Failed to close payload %s: %s", payload.Path, err)
		}
	}
	return provider, payload.ContentType, closeProvider, nil
}

func (s *Submitter) chunkFailure(sess *auth.Session, tx UploadTransaction, noun string, err error) Result {
	s.logger.Warnf("Chunk upload of %s failed: %s", tx.ID, err)

	if isTransientChunk(err) {
		message := fmt.Sprintf("The server is experiencing issues saving your %s. This might be a temporary problem "+
			"with the external API. Please try again in a few moments.", noun)
		return failure(tx, message, fmt.Errorf("%w: %w", ErrTransientChunk, err))
	}
	if s.auth.Expire(sess, err) {
		return failure(tx, "Your session has expired. Please log in again.", err)
	}
	var statusErr *network.StatusError
	if errors.As(err, &statusErr) {
		return failure(tx, fmt.Sprintf("Failed to upload %s chunk (%s). Please try again.", noun, statusSummary(statusErr)), err)
	}
	return failure(tx, fmt.Sprintf("Failed to upload %s chunk. Please try again.", noun), err)
}

// statusSummary renders the status code with the remote detail, or the raw body when there is no detail.
func statusSummary(err *network.StatusError) string {
	reason := err.Detail
	if reason == "" {
		reason = strings.TrimSpace(err.Body)
	}
	if reason == "" {
		return fmt.Sprintf("%d", err.StatusCode)
	}
	return fmt.Sprintf("%d: %s", err.StatusCode, reason)
}

func (s *Submitter) finalizeFailure(sess *auth.Session, tx UploadTransaction, err error) Result {
	s.logger.Errorf("Finalize of upload %s (%s) failed, the uploaded chunk is orphaned: %s", tx.ID, tx.Filename, err)

	if s.auth.Expire(sess, err) {
		return failure(tx, "Your session has expired. Please log in again.", err)
	}

	var statusErr *network.StatusError
	if !errors.As(err, &statusErr) {
		if errors.Is(err, network.ErrTransport) {
			return failure(tx, "No response received from API server.", err)
		}
		return failure(tx, fmt.Sprintf("An error occurred: %s", err), err)
	}
	if statusErr.Detail != "" {
		return failure(tx, fmt.Sprintf("API Error (%d): %s", statusErr.StatusCode, statusErr.Detail), err)
	}
	return failure(tx, fmt.Sprintf("HTTP Error (%d): %s", statusErr.StatusCode, statusErr.Body), err)
}

// Categories lists the categories to offer. It tries an authenticated fetch, then an anonymous one, and falls
// back to the built-in table. The returned set also becomes the one submissions are validated against.
func (s *Submitter) Categories(ctx context.Context, sess *auth.Session) catalog.CategorySet {
	var attempts []string
	if sess != nil && sess.Authenticated {
		attempts = append(attempts, sess.Token)
	}
	attempts = append(attempts, "")

	for _, token := range attempts {
		categories, err := s.api.Categories(ctx, token)
		if err != nil {
			s.logger.Warnf("Failed to load categories (authenticated=%v): %s", token != "", err)
			if token != "" {
				s.auth.Expire(sess, err)
			}
			continue
		}
		if len(categories) == 0 {
			s.logger.Warnf("API returned no categories (authenticated=%v)", token != "")
			continue
		}

		set := make(catalog.CategorySet, 0, len(categories))
		for _, category := range categories {
			if category.ID == "" {
				continue
			}
			set = append(set, catalog.Category{ID: string(category.ID), Name: category.Name})
		}
		s.setCategories(set)
		return set
	}

	s.logger.Warnf("Using the built-in category list")
	set := catalog.CategorySet(catalog.FallbackCategories())
	s.setCategories(set)
	return set
}

func (s *Submitter) loadedCategories() catalog.CategorySet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.categories
}

func (s *Submitter) setCategories(set catalog.CategorySet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = set
}

func isTransientChunk(err error) bool {
	var statusErr *network.StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.StatusCode == http.StatusInternalServerError && statusErr.Detail == transientChunkDetail
}

// Package portal wires the corpus client, the session manager, the submitter and the media loader
// from one configuration.
package portal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"

	"github.com/swecha/corpus-contrib/auth"
	"github.com/swecha/corpus-contrib/catalog"
	"github.com/swecha/corpus-contrib/config"
	"github.com/swecha/corpus-contrib/contributions"
	"github.com/swecha/corpus-contrib/media"
	"github.com/swecha/corpus-contrib/network"
	"github.com/swecha/corpus-contrib/submission"
)

// Portal is shared by every user context of a front-end. Sessions and flows are owned by the contexts.
type Portal struct {
	Client        *network.Client
	Auth          *auth.Manager
	Submitter     *submission.Submitter
	Contributions *contributions.Service
	Media         *media.Loader

	// tokenDir holds one token file per user context, "" if tokens are not persisted.
	tokenDir string
	logger   log.Logger
}

// New ...
func New(cfg config.Config, logger log.Logger) (*Portal, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger.EnableDebugLog(cfg.Debug)

	var tokenDir string
	if cfg.TokenDir != "" {
		absDir, err := pathutil.NewPathModifier().AbsPath(cfg.TokenDir)
		if err != nil {
			return nil, fmt.Errorf("resolve token directory: %w", err)
		}
		logger.Debugf("Persisting session tokens in %s", absDir)
		tokenDir = absDir
	}

	client := network.NewClient(cfg.ClientParams(), logger)
	manager := auth.NewManager(client, logger)

	return &Portal{
		Client: client,
		Auth:   manager,
		Submitter: submission.NewSubmitter(client, manager, submission.Params{
			ChunkRetries:   cfg.ChunkRetries,
			ChunkRetryWait: cfg.ChunkRetryWait,
		}, logger),
		Contributions: contributions.NewService(client, manager, logger),
		Media: media.NewLoader(media.LoaderParams{
			MaxSize:            catalog.MaxUploadSize,
			AWSRegion:          cfg.AWSRegion,
			AWSAccessKeyID:     cfg.AWSAccessKeyID,
			AWSSecretAccessKey: string(cfg.AWSSecretAccessKey),
			S3Retries:          cfg.HTTPRetryMax,
		}, logger),
		tokenDir: tokenDir,
		logger:   logger,
	}, nil
}

// NewSession returns an empty session for a new user context.
func (p *Portal) NewSession() *auth.Session {
	return auth.NewSession()
}

// NewFlow ...
func (p *Portal) NewFlow(kind auth.FlowKind) *auth.PendingFlow {
	return auth.NewFlow(kind)
}

// OpenSession returns the session of the user context identified by key, e.g. a browser session id.
// When tokens are persisted, each key has its own token file and the session is authenticated with
// the token stored for key if it is still valid. Without a token directory it is an empty session.
func (p *Portal) OpenSession(ctx context.Context, key string) (*auth.Session, error) {
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("session key is empty")
	}
	if p.tokenDir == "" {
		return auth.NewSession(), nil
	}

	tokens, err := auth.NewFileTokenStore(p.tokenPath(key))
	if err != nil {
		return nil, err
	}

	s := auth.NewPersistentSession(tokens)
	if _, err := p.Auth.Restore(ctx, s); err != nil {
		p.logger.Warnf("Could not restore the previous session: %s", err)
	}
	return s, nil
}

func (p *Portal) tokenPath(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(p.tokenDir, hex.EncodeToString(sum[:]))
}

// SubmitFile loads the payload from source (a path, an http(s) URL or an s3:// URL) and submits it with sub.
// When sub has no media type it is derived from the file name.
func (p *Portal) SubmitFile(ctx context.Context, s *auth.Session, sub submission.ContentSubmission, source string) submission.Result {
	payload, err := p.Media.Load(ctx, source)
	if err != nil {
		return submission.Result{Message: loadFailureMessage(err), Err: err}
	}
	defer func() {
		if err := payload.Close(); err != nil {
			p.logger.Warnf("Failed to clean up %s: %s", payload.Filename, err)
		}
	}()

	if sub.MediaType == "" || sub.MediaType == catalog.MediaText {
		mediaType, ok := catalog.MediaTypeForFile(payload.Filename)
		if !ok {
			err := network.NewValidationError("file", fmt.Sprintf("file type '%s' not supported", catalog.Extension(payload.Filename)))
			return submission.Result{Message: err.Error(), Err: err}
		}
		sub.MediaType = mediaType
	}
	sub.Payload = payload

	return p.Submitter.Submit(ctx, s, sub)
}

func loadFailureMessage(err error) string {
	switch {
	case errors.Is(err, media.ErrTooLarge):
		return fmt.Sprintf("File is larger than the %s limit.", catalog.FormatSize(catalog.MaxUploadSize))
	case errors.Is(err, media.ErrNotFound):
		return "File not found."
	default:
		return fmt.Sprintf("Could not read the file: %s", err)
	}
}

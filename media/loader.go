package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/bitrise-io/go-utils/v2/fileutil"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/docker/go-units"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/melbahja/got"
)

const (
	fileScheme  = "file://"
	httpScheme  = "http://"
	httpsScheme = "https://"
	s3Scheme    = "s3://"

	sniffLength = 512
)

var (
	// ErrNotFound is returned when the source does not exist.
	ErrNotFound = errors.New("media source not found")
	// ErrTooLarge is returned when the source exceeds the size limit.
	ErrTooLarge = errors.New("media source too large")
)

// LoaderParams ...
type LoaderParams struct {
	// MaxSize is the largest accepted payload in bytes.
	MaxSize int64

	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	// S3Retries is the number of retries of a failing S3 request.
	S3Retries int
}

// Loader resolves a media source into a Payload.
type Loader struct {
	params       LoaderParams
	fileManager  fileutil.FileManager
	pathProvider pathutil.PathProvider
	pathModifier pathutil.PathModifier
	httpClient   *http.Client
	newS3Client  func(ctx context.Context) (s3API, error)
	logger       log.Logger
}

// NewLoader ...
func NewLoader(params LoaderParams, logger log.Logger) *Loader {
	retryableHTTPClient := retryhttp.NewClient(logger)
	retryableHTTPClient.CheckRetry = createCustomRetryFunction(logger)

	l := &Loader{
		params:       params,
		fileManager:  fileutil.NewFileManager(),
		pathProvider: pathutil.NewPathProvider(),
		pathModifier: pathutil.NewPathModifier(),
		httpClient:   retryableHTTPClient.StandardClient(),
		logger:       logger,
	}
	l.newS3Client = l.defaultS3Client
	return l
}

// Load reads source, which is a `file://` URL or plain path, an http(s) URL or an `s3://bucket/key` URL.
// The caller must Close the returned payload.
func (l *Loader) Load(ctx context.Context, source string) (*Payload, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("media source is empty")
	}

	switch {
	case strings.HasPrefix(source, s3Scheme):
		return l.loadS3(ctx, source)
	case strings.HasPrefix(source, httpScheme), strings.HasPrefix(source, httpsScheme):
		return l.download(ctx, source)
	default:
		return l.loadLocal(strings.TrimPrefix(source, fileScheme))
	}
}

func (l *Loader) loadLocal(pth string) (*Payload, error) {
	absPath, err := l.pathModifier.AbsPath(pth)
	if err != nil {
		return nil, fmt.Errorf("resolve path %s: %w", pth, err)
	}

	payload, err := l.inspectFile(absPath)
	if err != nil {
		return nil, err
	}
	l.logger.Debugf("Loaded %s (%s, %s)", absPath, payload.ContentType, units.BytesSize(float64(payload.Size)))
	return payload, nil
}

func (l *Loader) inspectFile(pth string) (*Payload, error) {
	file, err := l.fileManager.Open(pth)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, pth)
		}
		return nil, fmt.Errorf("open %s: %w", pth, err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			l.logger.Warnf("Failed to close %s: %s", pth, err)
		}
	}()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", pth, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", pth)
	}
	if err := l.checkSize(info.Size()); err != nil {
		return nil, err
	}

	head := make([]byte, sniffLength)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read %s: %w", pth, err)
	}

	return &Payload{
		Filename:    filepath.Base(pth),
		ContentType: detectContentType(pth, head[:n]),
		Size:        info.Size(),
		Path:        pth,
	}, nil
}

func (l *Loader) checkSize(size int64) error {
	if l.params.MaxSize > 0 && size > l.params.MaxSize {
		return fmt.Errorf("%w: %s exceeds %s", ErrTooLarge, units.BytesSize(float64(size)), units.BytesSize(float64(l.params.MaxSize)))
	}
	return nil
}

func (l *Loader) download(ctx context.Context, source string) (*Payload, error) {
	fileName, err := fileNameFromURL(source)
	if err != nil {
		return nil, fmt.Errorf("extract filename from URL %s: %w", source, err)
	}

	if err := l.checkRemoteSize(ctx, source); err != nil {
		return nil, err
	}

	tmpDir, err := l.pathProvider.CreateTempDir("corpus-media")
	if err != nil {
		return nil, fmt.Errorf("create temp directory: %w", err)
	}

	localPath := filepath.Join(tmpDir, fileName)
	l.logger.Debugf("Downloading %s", source)
	if err := l.downloadFile(ctx, source, localPath); err != nil {
		l.removeTempDir(tmpDir)
		if errors.Is(err, ErrTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("download %s: %w", source, err)
	}

	payload, err := l.inspectFile(localPath)
	if err != nil {
		l.removeTempDir(tmpDir)
		return nil, err
	}
	payload.tempDir = tmpDir
	return payload, nil
}

func (l *Loader) removeTempDir(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		l.logger.Warnf("Failed to remove %s: %s", dir, err)
	}
}

func createCustomRetryFunction(logger log.Logger) func(context.Context, *http.Response, error) (bool, error) {
	return func(ctx context.Context, resp *http.Response, downloadErr error) (bool, error) {
		retry, err := retryablehttp.DefaultRetryPolicy(ctx, resp, downloadErr)
		logger.Debugf("CheckRetry: retry=%v ; err=%+v ; downloadErr=%+v", retry, err, downloadErr)
		return retry, err
	}
}

// checkRemoteSize rejects a source whose advertised Content-Length exceeds the limit.
// Servers that do not answer HEAD or omit the length are checked again once the download is initialised.
func (l *Loader) checkRemoteSize(ctx context.Context, source string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, source, nil)
	if err != nil {
		return fmt.Errorf("create HEAD request for %s: %w", source, err)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		l.logger.Debugf("HEAD %s failed: %s", source, err)
		return nil
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			l.logger.Warnf("Failed to close response body: %s", err)
		}
	}()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, source)
	}
	if resp.StatusCode >= http.StatusMultipleChoices || resp.ContentLength <= 0 {
		return nil
	}
	return l.checkSize(resp.ContentLength)
}

// downloadFile fetches the first byte to learn the total size, and only downloads the rest when it fits.
// A server without range support sends the whole body on the first request, which inspectFile then checks.
func (l *Loader) downloadFile(ctx context.Context, url string, dest string) error {
	download := got.NewDownload(ctx, url, dest)
	download.Client = l.httpClient

	if err := download.Init(); err != nil {
		return err
	}
	if download.IsRangeable() {
		if err := l.checkSize(int64(download.TotalSize())); err != nil {
			return err
		}
	}
	return download.Start()
}

func fileNameFromURL(rawURL string) (string, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	name := filepath.Base(parsedURL.Path)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("no file name in path %q", parsedURL.Path)
	}
	return name, nil
}

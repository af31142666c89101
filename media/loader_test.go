package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLoader(maxSize int64) *Loader {
	return NewLoader(LoaderParams{MaxSize: maxSize}, log.NewLogger())
}

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	pth := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(pth, content, 0600))
	return pth
}

func TestLoader_Load_local(t *testing.T) {
	dir := t.TempDir()
	pngHeader := []byte("\x89PNG\r\n\x1a\n0000")
	pth := writeFile(t, dir, "rangoli.png", pngHeader)
	noExt := writeFile(t, dir, "scan", []byte("%PDF-1.4 scanned"))

	tests := []struct {
		name            string
		source          string
		wantFilename    string
		wantContentType string
		wantSize        int64
	}{
		{name: "plain path", source: pth, wantFilename: "rangoli.png", wantContentType: "image/png", wantSize: int64(len(pngHeader))},
		{name: "file scheme", source: "file://" + pth, wantFilename: "rangoli.png", wantContentType: "image/png", wantSize: int64(len(pngHeader))},
		{name: "sniffed", source: noExt, wantFilename: "scan", wantContentType: "application/pdf", wantSize: 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := newTestLoader(1024).Load(context.Background(), tt.source)
			require.NoError(t, err)
			defer func() { require.NoError(t, payload.Close()) }()

			assert.Equal(t, tt.wantFilename, payload.Filename)
			assert.Equal(t, tt.wantContentType, payload.ContentType)
			assert.Equal(t, tt.wantSize, payload.Size)
			assert.False(t, payload.InMemory())
			assert.FileExists(t, payload.Path)
		})
	}
}

func TestLoader_Load_localErrors(t *testing.T) {
	dir := t.TempDir()
	big := writeFile(t, dir, "big.mp4", bytes.Repeat([]byte("a"), 2048))

	_, err := newTestLoader(1024).Load(context.Background(), big)
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = newTestLoader(1024).Load(context.Background(), filepath.Join(dir, "missing.png"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = newTestLoader(1024).Load(context.Background(), dir)
	assert.Error(t, err)

	_, err = newTestLoader(1024).Load(context.Background(), "  ")
	assert.Error(t, err)
}

type rangeServer struct {
	*httptest.Server
	// answerHEAD controls whether HEAD requests report the Content-Length.
	answerHEAD bool
	bodyBytes  atomic.Int64
}

func newRangeServer(t *testing.T, content string, answerHEAD bool) *rangeServer {
	t.Helper()
	svr := &rangeServer{answerHEAD: answerHEAD}
	svr.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			if !svr.answerHEAD {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			w.Header().Set("Content-Length", strconv.Itoa(len(content)))
			return
		}

		rangeHeader := r.Header.Get("Range")
		if rangeHeader == "" {
			svr.write(w, content)
			return
		}

		fromTo := strings.Split(strings.TrimPrefix(rangeHeader, "bytes="), "-")
		require.Len(t, fromTo, 2)
		from, err := strconv.ParseUint(fromTo[0], 10, 64)
		require.NoError(t, err)
		to := uint64(len(content) - 1)
		if fromTo[1] != "" {
			to, err = strconv.ParseUint(fromTo[1], 10, 64)
			require.NoError(t, err)
		}
		if to >= uint64(len(content)) {
			to = uint64(len(content) - 1)
		}

		if from == 0 && to == 0 {
			w.Header().Add("content-range", fmt.Sprintf("bytes 0-0/%d", len(content)))
			svr.write(w, " ")
			return
		}

		chunk := content[from : to+1]
		w.Header().Add("Content-Length", fmt.Sprintf("%d", len(chunk)))
		svr.write(w, chunk)
	}))
	return svr
}

func (s *rangeServer) write(w http.ResponseWriter, body string) {
	n, _ := fmt.Fprint(w, body)
	s.bodyBytes.Add(int64(n))
}

func TestLoader_Load_http(t *testing.T) {
	content := strings.Repeat("folk song ", 300)
	svr := newRangeServer(t, content, true)
	defer svr.Close()

	payload, err := newTestLoader(1024*1024).Load(context.Background(), svr.URL+"/media/lyrics.pdf")
	require.NoError(t, err)

	assert.Equal(t, "lyrics.pdf", payload.Filename)
	assert.Equal(t, "application/pdf", payload.ContentType)
	assert.Equal(t, int64(len(content)), payload.Size)

	downloaded, err := os.ReadFile(payload.Path)
	require.NoError(t, err)
	assert.Equal(t, content, string(downloaded))

	tempDir := filepath.Dir(payload.Path)
	require.NoError(t, payload.Close())
	assert.NoDirExists(t, tempDir)
	require.NoError(t, payload.Close())
}

func TestLoader_Load_httpTooLarge(t *testing.T) {
	tests := []struct {
		name          string
		answerHEAD    bool
		wantBodyBytes int64
	}{
		{name: "rejected by HEAD", answerHEAD: true, wantBodyBytes: 0},
		{name: "rejected after the first byte", answerHEAD: false, wantBodyBytes: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svr := newRangeServer(t, strings.Repeat("x", 4096), tt.answerHEAD)
			defer svr.Close()

			_, err := newTestLoader(1024).Load(context.Background(), svr.URL+"/big.mp4")
			assert.ErrorIs(t, err, ErrTooLarge)
			assert.Equal(t, tt.wantBodyBytes, svr.bodyBytes.Load(), "the body is not downloaded once it is known to be too large")
		})
	}
}

func TestLoader_Load_httpNotFound(t *testing.T) {
	svr := httptest.NewServer(http.NotFoundHandler())
	defer svr.Close()

	_, err := newTestLoader(1024).Load(context.Background(), svr.URL+"/missing.png")
	assert.ErrorIs(t, err, ErrNotFound)
}

func Test_fileNameFromURL(t *testing.T) {
	name, err := fileNameFromURL("https://example.org/a/b/photo.jpg?sig=1")
	require.NoError(t, err)
	assert.Equal(t, "photo.jpg", name)

	_, err = fileNameFromURL("https://example.org/")
	assert.Error(t, err)
}

type fakeS3 struct {
	objects map[string][]byte
	heads   int
	gets    int
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.heads++
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.gets++
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}

	from, to := 0, len(data)-1
	if rng := aws.ToString(in.Range); rng != "" {
		fromTo := strings.Split(strings.TrimPrefix(rng, "bytes="), "-")
		from, _ = strconv.Atoi(fromTo[0])
		if end, err := strconv.Atoi(fromTo[1]); err == nil && end < to {
			to = end
		}
	}
	chunk := data[from : to+1]

	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(chunk)),
		ContentLength: aws.Int64(int64(len(chunk))),
		ContentRange:  aws.String(fmt.Sprintf("bytes %d-%d/%d", from, to, len(data))),
	}, nil
}

func newS3TestLoader(client *fakeS3, maxSize int64) *Loader {
	loader := newTestLoader(maxSize)
	loader.newS3Client = func(context.Context) (s3API, error) {
		return client, nil
	}
	return loader
}

func TestLoader_Load_s3(t *testing.T) {
	pdf := append([]byte("%PDF-1.7\n"), bytes.Repeat([]byte("recipe "), 100)...)
	client := &fakeS3{objects: map[string][]byte{"corpus-media/recipes/pulihora.pdf": pdf}}

	payload, err := newS3TestLoader(client, 1024*1024).Load(context.Background(), "s3://corpus-media/recipes/pulihora.pdf")
	require.NoError(t, err)

	assert.Equal(t, "pulihora.pdf", payload.Filename)
	assert.Equal(t, "application/pdf", payload.ContentType)
	assert.True(t, payload.InMemory())
	assert.Equal(t, pdf, payload.Data)
	assert.Equal(t, int64(len(pdf)), payload.Size)
	assert.Equal(t, 1, client.heads)
}

func TestLoader_Load_s3NotFound(t *testing.T) {
	client := &fakeS3{objects: map[string][]byte{}}
	loader := newS3TestLoader(client, 1024)
	loader.params.S3Retries = 3

	_, err := loader.Load(context.Background(), "s3://corpus-media/missing.png")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, client.heads, "a missing key is not retried")
	assert.Equal(t, 0, client.gets)
}

func TestLoader_Load_s3TooLarge(t *testing.T) {
	client := &fakeS3{objects: map[string][]byte{"b/big.mov": bytes.Repeat([]byte("v"), 2048)}}

	_, err := newS3TestLoader(client, 1024).Load(context.Background(), "s3://b/big.mov")
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Equal(t, 0, client.gets, "the object is not fetched once it is known to be too large")
}

func Test_parseS3URL(t *testing.T) {
	bucket, key, err := parseS3URL("s3://bucket/a/b.png")
	require.NoError(t, err)
	assert.Equal(t, "bucket", bucket)
	assert.Equal(t, "a/b.png", key)

	for _, invalid := range []string{"s3://bucket", "s3://bucket/", "s3:///key.png", "s3://bucket/dir/"} {
		_, _, err := parseS3URL(invalid)
		assert.Error(t, err, invalid)
	}
}

func TestFromBytes(t *testing.T) {
	payload := FromBytes("uploads/Photo.JPG", []byte{0xff, 0xd8, 0xff})
	assert.Equal(t, "Photo.JPG", payload.Filename)
	assert.Equal(t, "image/jpeg", payload.ContentType)
	assert.Equal(t, int64(3), payload.Size)
	assert.True(t, payload.InMemory())
	assert.NoError(t, payload.Close())
}

func Test_loadAWSCredentials_requiresRegion(t *testing.T) {
	_, err := loadAWSCredentials(context.Background(), "", "", "", log.NewLogger())
	assert.EqualError(t, err, "region must not be empty")
}

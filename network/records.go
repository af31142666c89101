package network

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
)

const defaultChunkContentType = "application/octet-stream"

// ChunkUpload is one part of an upload transaction.
type ChunkUpload struct {
	UploadID    string
	Filename    string
	ContentType string
	Index       int
	Total       int
	Data        io.Reader
}

// Record is the metadata sent to finalize an upload transaction into a durable record.
type Record struct {
	Title          string
	Description    string
	CategoryID     string
	UserID         string
	MediaType      string
	UploadID       string
	Filename       string
	TotalChunks    int
	ReleaseRights  string
	Language       string
	UseUIDFilename bool
	// Place is optional and omitted when empty.
	Place string
}

// UploadChunk sends one chunk as a multipart form. The API answers 200 once the chunk is stored.
func (c *Client) UploadChunk(ctx context.Context, token string, chunk ChunkUpload) error {
	body, contentType, err := encodeChunk(chunk)
	if err != nil {
		return fmt.Errorf("encode chunk %d: %w", chunk.Index, err)
	}

	c.logger.Debugf("Uploading chunk %d/%d of %s (%d bytes)", chunk.Index+1, chunk.Total, chunk.UploadID, len(body))

	return c.do(ctx, apiRequest{
		method:      http.MethodPost,
		path:        "/records/upload/chunk",
		token:       token,
		body:        body,
		contentType: contentType,
		timeout:     c.timeouts.Upload,
		expected:    http.StatusOK,
		dump:        true,
	}, nil)
}

// FinalizeRecord turns the uploaded chunks of rec.UploadID into a record. The API answers 201.
func (c *Client) FinalizeRecord(ctx context.Context, token string, rec Record) error {
	c.logger.Debugf("Finalizing upload %s as %s", rec.UploadID, rec.Filename)

	return c.do(ctx, apiRequest{
		method:      http.MethodPost,
		path:        "/records/upload",
		token:       token,
		body:        []byte(rec.values().Encode()),
		contentType: "application/x-www-form-urlencoded",
		timeout:     c.timeouts.Form,
		expected:    http.StatusCreated,
		dump:        true,
	}, nil)
}

func (r Record) values() url.Values {
	values := url.Values{}
	values.Set("title", r.Title)
	values.Set("description", r.Description)
	values.Set("category_id", r.CategoryID)
	values.Set("user_id", r.UserID)
	values.Set("media_type", r.MediaType)
	values.Set("upload_uuid", r.UploadID)
	values.Set("filename", r.Filename)
	values.Set("total_chunks", strconv.Itoa(r.TotalChunks))
	values.Set("release_rights", r.ReleaseRights)
	values.Set("language", r.Language)
	values.Set("use_uid_filename", strconv.FormatBool(r.UseUIDFilename))
	if r.Place != "" {
		values.Set("place", r.Place)
	}
	return values
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func encodeChunk(chunk ChunkUpload) ([]byte, string, error) {
	if chunk.Data == nil {
		return nil, "", fmt.Errorf("chunk has no data")
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"filename", chunk.Filename},
		{"chunk_index", strconv.Itoa(chunk.Index)},
		{"total_chunks", strconv.Itoa(chunk.Total)},
		{"upload_uuid", chunk.UploadID},
	}
	for _, field := range fields {
		if err := writer.WriteField(field[0], field[1]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", field[0], err)
		}
	}

	contentType := chunk.ContentType
	if contentType == "" {
		contentType = defaultChunkContentType
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="chunk"; filename="%s"`, quoteEscaper.Replace(chunk.Filename)))
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create chunk part: %w", err)
	}
	if _, err := io.Copy(part, chunk.Data); err != nil {
		return nil, "", fmt.Errorf("copy chunk data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}

	return buf.Bytes(), writer.FormDataContentType(), nil
}

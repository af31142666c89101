package catalog

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/docker/go-units"
)

// MediaType is the kind of a submission.
type MediaType string

// Media types.
const (
	MediaText     MediaType = "text"
	MediaAudio    MediaType = "audio"
	MediaVideo    MediaType = "video"
	MediaImage    MediaType = "image"
	MediaDocument MediaType = "document"
)

// MaxUploadSize is the largest accepted file payload.
const MaxUploadSize int64 = 10 * units.MiB

// AllowedExtensions lists every file extension the API accepts, across media types.
var AllowedExtensions = []string{"png", "jpg", "jpeg", "gif", "mp4", "mov", "avi", "mp3", "wav", "pdf"}

type mediaPolicy struct {
	// patterns are matched against the lower cased base name of an uploaded file.
	patterns []string
}

var mediaTypes = []MediaType{MediaText, MediaAudio, MediaVideo, MediaImage, MediaDocument}

// Text carries its content in the submission body; no file is accepted.
var mediaPolicies = map[MediaType]mediaPolicy{
	MediaText:     {},
	MediaAudio:    {patterns: []string{"*.{mp3,wav}"}},
	MediaVideo:    {patterns: []string{"*.{mp4,mov,avi}"}},
	MediaImage:    {patterns: []string{"*.{png,jpg,jpeg,gif}"}},
	MediaDocument: {patterns: []string{"*.pdf"}},
}

// MediaTypes returns the media types in display order.
func MediaTypes() []MediaType {
	return append([]MediaType(nil), mediaTypes...)
}

// ParseMediaType ...
func ParseMediaType(input string) (MediaType, error) {
	value := MediaType(strings.ToLower(strings.TrimSpace(input)))
	if _, ok := mediaPolicies[value]; !ok {
		return "", fmt.Errorf("media type %q is not supported", input)
	}
	return value, nil
}

// AcceptsFiles reports whether a file payload can be submitted under the media type.
func (m MediaType) AcceptsFiles() bool {
	return len(mediaPolicies[m].patterns) > 0
}

// MediaTypeForFile finds the media type whose policy accepts filename.
func MediaTypeForFile(filename string) (MediaType, bool) {
	for _, mediaType := range mediaTypes {
		if mediaType.matches(filename) {
			return mediaType, true
		}
	}
	return "", false
}

func (m MediaType) matches(filename string) bool {
	name := strings.ToLower(path.Base(filename))
	for _, pattern := range mediaPolicies[m].patterns {
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

// Extension returns the extension of filename without the dot, as written. "" if there is none.
func Extension(filename string) string {
	base := path.Base(filename)
	i := strings.LastIndex(base, ".")
	if i < 0 || i == len(base)-1 {
		return ""
	}
	return base[i+1:]
}

// ValidateUpload checks a file payload against the size limit, the extension allow-list and
// the policy of mediaType.
func ValidateUpload(mediaType MediaType, filename string, size int64) error {
	if size <= 0 {
		return fmt.Errorf("file %s is empty", filename)
	}
	if size > MaxUploadSize {
		return fmt.Errorf("file size %s exceeds %s limit", FormatSize(size), FormatSize(MaxUploadSize))
	}

	ext := strings.ToLower(Extension(filename))
	if !isAllowedExtension(ext) {
		return fmt.Errorf("file type '%s' not supported", ext)
	}

	if _, ok := mediaPolicies[mediaType]; !ok {
		return fmt.Errorf("media type %q is not supported", mediaType)
	}
	if !mediaType.AcceptsFiles() {
		return fmt.Errorf("%s submissions do not accept files", mediaType)
	}
	if !mediaType.matches(filename) {
		return fmt.Errorf("file type '%s' cannot be submitted as %s", ext, mediaType)
	}

	return nil
}

func isAllowedExtension(ext string) bool {
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// FormatSize renders a byte count with binary units, e.g. "10MiB".
func FormatSize(size int64) string {
	return units.BytesSize(float64(size))
}

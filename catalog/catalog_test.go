package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestParseLanguage(t *testing.T) {
	tests := []struct {
		input   string
		want    Language
		wantErr bool
	}{
		{input: "telugu", want: Telugu},
		{input: "Telugu", want: Telugu},
		{input: "  TAMIL ", want: Tamil},
		{input: "te", want: Telugu},
		{input: "hi-IN", want: Hindi},
		{input: "Oriya", want: Odia},
		{input: "assamese", want: Assamese},
		{input: "french", wantErr: true},
		{input: "fr", wantErr: true},
		{input: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLanguage(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLanguages_areIdentityCodes(t *testing.T) {
	langs := Languages()
	require.Len(t, langs, 13)
	for _, lang := range langs {
		got, err := ParseLanguage(lang.DisplayName())
		require.NoError(t, err)
		assert.Equal(t, lang, got)
		assert.NotEqual(t, language.Und, lang.Tag(), string(lang))
	}
}

func TestParseReleaseRights(t *testing.T) {
	tests := []struct {
		input   string
		want    ReleaseRights
		wantErr bool
	}{
		{input: "I created this content myself", want: RightsCreator},
		{input: "I have permission from family/friends who created this", want: RightsFamilyOrFriend},
		{input: "I downloaded this or am unsure of the rights", want: RightsDownloaded},
		{input: "Not applicable", want: RightsNotApplicable},
		{input: "creator", want: RightsCreator},
		{input: "permission", wantErr: true},
		{input: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseReleaseRights(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateUpload(t *testing.T) {
	tests := []struct {
		name      string
		mediaType MediaType
		filename  string
		size      int64
		wantErr   string
	}{
		{name: "image", mediaType: MediaImage, filename: "rangoli.PNG", size: 1024},
		{name: "audio", mediaType: MediaAudio, filename: "song.mp3", size: 1024},
		{name: "video", mediaType: MediaVideo, filename: "dance.mov", size: 1024},
		{name: "document", mediaType: MediaDocument, filename: "dir/recipe.pdf", size: 1024},
		{name: "exactly at limit", mediaType: MediaImage, filename: "a.jpg", size: MaxUploadSize},
		{name: "over limit", mediaType: MediaImage, filename: "a.jpg", size: MaxUploadSize + 1, wantErr: "file size 10MiB exceeds 10MiB limit"},
		{name: "unknown extension", mediaType: MediaDocument, filename: "notes.docx", size: 10, wantErr: "file type 'docx' not supported"},
		{name: "no extension", mediaType: MediaImage, filename: "photo", size: 10, wantErr: "file type '' not supported"},
		{name: "wrong media type", mediaType: MediaAudio, filename: "photo.png", size: 10, wantErr: "file type 'png' cannot be submitted as audio"},
		{name: "text takes no files", mediaType: MediaText, filename: "photo.png", size: 10, wantErr: "text submissions do not accept files"},
		{name: "empty", mediaType: MediaImage, filename: "a.png", size: 0, wantErr: "file a.png is empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUpload(tt.mediaType, tt.filename, tt.size)
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestMediaTypeForFile(t *testing.T) {
	got, ok := MediaTypeForFile("Festival.JPEG")
	assert.True(t, ok)
	assert.Equal(t, MediaImage, got)

	got, ok = MediaTypeForFile("clip.avi")
	assert.True(t, ok)
	assert.Equal(t, MediaVideo, got)

	_, ok = MediaTypeForFile("story.txt")
	assert.False(t, ok)
}

func TestParseMediaType(t *testing.T) {
	got, err := ParseMediaType(" Audio ")
	require.NoError(t, err)
	assert.Equal(t, MediaAudio, got)

	_, err = ParseMediaType("hologram")
	assert.Error(t, err)
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "JPG", Extension("IMG_01.JPG"))
	assert.Equal(t, "gz", Extension("archive.tar.gz"))
	assert.Equal(t, "", Extension("README"))
	assert.Equal(t, "", Extension("trailing."))
}

func TestCategorySet(t *testing.T) {
	set := CategorySet(FallbackCategories())
	assert.Len(t, set, 8)
	assert.True(t, set.Contains("550e8400-e29b-41d4-a716-446655440008"))
	assert.False(t, set.Contains("cat-1"))
}

package submission

import (
	"strings"
	"unicode/utf8"

	"github.com/swecha/corpus-contrib/catalog"
	"github.com/swecha/corpus-contrib/network"
)

const minBodyLength = 10

// validated is a submission whose enumerations were mapped to their wire codes.
type validated struct {
	ContentSubmission
	language  catalog.Language
	rights    catalog.ReleaseRights
	mediaType catalog.MediaType
}

func validate(sub ContentSubmission, categories catalog.CategorySet) (validated, error) {
	if strings.TrimSpace(sub.Title) == "" || strings.TrimSpace(sub.Body) == "" || strings.TrimSpace(sub.CategoryID) == "" ||
		strings.TrimSpace(sub.Language) == "" || strings.TrimSpace(sub.ReleaseRights) == "" {
		return validated{}, network.NewValidationError("fields", "Please fill in all required fields marked with *")
	}
	if utf8.RuneCountInString(strings.TrimSpace(sub.Body)) < minBodyLength {
		return validated{}, network.NewValidationError("body", "Content must be at least 10 characters long")
	}
	if len(categories) > 0 && !categories.Contains(sub.CategoryID) {
		return validated{}, network.NewValidationError("category_id", "Please select a valid category")
	}

	language, err := catalog.ParseLanguage(sub.Language)
	if err != nil {
		return validated{}, network.NewValidationError("language", err.Error())
	}
	rights, err := catalog.ParseReleaseRights(sub.ReleaseRights)
	if err != nil {
		return validated{}, network.NewValidationError("release_rights", err.Error())
	}

	mediaType := catalog.MediaText
	if sub.MediaType != "" {
		if mediaType, err = catalog.ParseMediaType(string(sub.MediaType)); err != nil {
			return validated{}, network.NewValidationError("media_type", err.Error())
		}
	}
	sub.MediaType = mediaType

	if sub.hasPayload() {
		if err := catalog.ValidateUpload(mediaType, sub.Payload.Filename, sub.Payload.Size); err != nil {
			return validated{}, network.NewValidationError("file", err.Error())
		}
	}

	return validated{
		ContentSubmission: sub,
		language:          language,
		rights:            rights,
		mediaType:         mediaType,
	}, nil
}

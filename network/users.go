package network

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Contribution is one stored record as listed on the contributions endpoint.
type Contribution struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Language    string `json:"language"`
	MediaType   string `json:"media_type"`
	Timestamp   string `json:"timestamp"`
}

// Contributions is the per user contribution listing.
type Contributions struct {
	TotalContributions       int            `json:"total_contributions"`
	ContributionsByMediaType map[string]int `json:"contributions_by_media_type"`
	TextContributions        []Contribution `json:"text_contributions"`
	AudioContributions       []Contribution `json:"audio_contributions"`
	VideoContributions       []Contribution `json:"video_contributions"`
	ImageContributions       []Contribution `json:"image_contributions"`
	DocumentContributions    []Contribution `json:"document_contributions"`
}

// ByMediaType returns the listed contributions of one media type, in API order.
func (c Contributions) ByMediaType(mediaType string) []Contribution {
	switch mediaType {
	case "text":
		return c.TextContributions
	case "audio":
		return c.AudioContributions
	case "video":
		return c.VideoContributions
	case "image":
		return c.ImageContributions
	case "document":
		return c.DocumentContributions
	default:
		return nil
	}
}

// Contributions lists the records of userID.
func (c *Client) Contributions(ctx context.Context, token, userID string) (Contributions, error) {
	if userID == "" {
		return Contributions{}, NewValidationError("user_id", "user id is required")
	}

	var resp Contributions
	path := fmt.Sprintf("/users/%s/contributions", url.PathEscape(userID))
	if err := c.doJSON(ctx, http.MethodGet, path, token, nil, http.StatusOK, &resp); err != nil {
		return Contributions{}, err
	}
	if resp.ContributionsByMediaType == nil {
		resp.ContributionsByMediaType = map[string]int{}
	}
	return resp, nil
}

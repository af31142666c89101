package catalog

import (
	"fmt"
	"strings"
)

// ReleaseRights is the wire code of a declared content provenance.
type ReleaseRights string

// Release rights codes.
const (
	RightsCreator        ReleaseRights = "creator"
	RightsFamilyOrFriend ReleaseRights = "family_or_friend"
	RightsDownloaded     ReleaseRights = "downloaded"
	RightsNotApplicable  ReleaseRights = "NA"
)

// RightsOption pairs the label a user picks with the code sent to the API.
type RightsOption struct {
	Label string
	Code  ReleaseRights
}

var rightsOptions = []RightsOption{
	{Label: "I created this content myself", Code: RightsCreator},
	{Label: "I have permission from family/friends who created this", Code: RightsFamilyOrFriend},
	{Label: "I downloaded this or am unsure of the rights", Code: RightsDownloaded},
	{Label: "Not applicable", Code: RightsNotApplicable},
}

// RightsOptions returns the selectable release rights in display order.
func RightsOptions() []RightsOption {
	return append([]RightsOption(nil), rightsOptions...)
}

// ParseReleaseRights maps a label to its code. A code given verbatim is accepted as well.
func ParseReleaseRights(input string) (ReleaseRights, error) {
	value := strings.TrimSpace(input)
	if value == "" {
		return "", fmt.Errorf("release rights are required")
	}

	for _, option := range rightsOptions {
		if option.Label == value || string(option.Code) == value {
			return option.Code, nil
		}
	}

	return "", fmt.Errorf("release rights %q are not supported", input)
}

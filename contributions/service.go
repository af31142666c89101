// Package contributions reads the contribution statistics of the logged in user.
package contributions

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/bitrise-io/go-utils/v2/log"

	"github.com/swecha/corpus-contrib/auth"
	"github.com/swecha/corpus-contrib/catalog"
	"github.com/swecha/corpus-contrib/network"
)

const (
	recentPerMediaType = 5
	recentTotal        = 10
)

// API ...
type API interface {
	Contributions(ctx context.Context, token, userID string) (network.Contributions, error)
}

// Entry is a listed contribution with the media type it was listed under.
type Entry struct {
	network.Contribution
	MediaType catalog.MediaType
}

// Summary is the dashboard view of a user's contributions.
type Summary struct {
	Total       int
	ByMediaType map[string]int
	// Recent holds the newest contributions, newest first.
	Recent []Entry
}

// Service ...
type Service struct {
	api    API
	auth   *auth.Manager
	logger log.Logger
}

// NewService ...
func NewService(api API, authManager *auth.Manager, logger log.Logger) *Service {
	return &Service{
		api:    api,
		auth:   authManager,
		logger: logger,
	}
}

// Load lists the contributions of the session's user. A user the API does not know yet has no contributions.
// A rejected token logs the session out.
func (s *Service) Load(ctx context.Context, sess *auth.Session) (network.Contributions, error) {
	if !sess.Authenticated {
		return network.Contributions{}, auth.ErrNotAuthenticated
	}

	contributions, err := s.api.Contributions(ctx, sess.Token, sess.UserID())
	if err != nil {
		if errors.Is(err, network.ErrNotFound) {
			s.logger.Debugf("No contributions found for %s", sess.UserID())
			return network.Contributions{ContributionsByMediaType: map[string]int{}}, nil
		}
		s.auth.Expire(sess, err)
		return network.Contributions{}, fmt.Errorf("load contributions: %w", err)
	}

	return contributions, nil
}

// Summary never fails: when the listing cannot be loaded the zero summary is returned.
func (s *Service) Summary(ctx context.Context, sess *auth.Session) Summary {
	contributions, err := s.Load(ctx, sess)
	if err != nil {
		s.logger.Warnf("Contribution statistics unavailable: %s", err)
		return Summary{ByMediaType: map[string]int{}}
	}
	return Summarize(contributions)
}

// Summarize takes the 5 newest entries of every media type and keeps the 10 newest of those.
func Summarize(contributions network.Contributions) Summary {
	byMediaType := make(map[string]int, len(contributions.ContributionsByMediaType))
	for mediaType, count := range contributions.ContributionsByMediaType {
		byMediaType[mediaType] = count
	}

	var recent []Entry
	for _, mediaType := range catalog.MediaTypes() {
		listed := contributions.ByMediaType(string(mediaType))
		if len(listed) > recentPerMediaType {
			listed = listed[:recentPerMediaType]
		}
		for _, contribution := range listed {
			recent = append(recent, Entry{Contribution: contribution, MediaType: mediaType})
		}
	}

	// timestamps are ISO 8601, so they order lexically
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].Timestamp > recent[j].Timestamp
	})
	if len(recent) > recentTotal {
		recent = recent[:recentTotal]
	}

	return Summary{
		Total:       contributions.TotalContributions,
		ByMediaType: byMediaType,
		Recent:      recent,
	}
}

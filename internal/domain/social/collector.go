// Package social gathers a user's social graph from paginated XRPC listings
// and turns it into an engagement ranking.
//
// Listings follow the server cursor until it disappears or the requested
// threshold is reached. Follower, follow, notification, feed and profile
// failures are returned to the caller; like listings degrade to an empty
// result because the upstream restricts them to the session account.
package social

import (
	"context"
	"fmt"
	"math"

	"github.com/okian/blueskyer/internal/domain/model"
	"github.com/okian/blueskyer/internal/domain/scoring"
	"github.com/okian/blueskyer/pkg/logger"
	"github.com/okian/blueskyer/pkg/metrics"
)

// Default collector configuration constants.
const (
	DefaultPageLimit         = 100
	DefaultProfileBatch      = 25
	DefaultRelationshipBatch = 30
)

// API is the subset of XRPC methods the collector pages through.
type API interface {
	GetFollowers(ctx context.Context, actor, cursor string, limit int) (*model.FollowersPage, error)
	GetFollows(ctx context.Context, actor, cursor string, limit int) (*model.FollowsPage, error)
	ListNotifications(ctx context.Context, cursor string, limit int) (*model.NotificationsPage, error)
	GetAuthorFeed(ctx context.Context, actor, cursor string, limit int) (*model.FeedPage, error)
	GetActorLikes(ctx context.Context, actor, cursor string, limit int) (*model.FeedPage, error)
	ListRecords(ctx context.Context, repo, collection, cursor string, limit int) (*model.RecordsPage, error)
	GetProfiles(ctx context.Context, actors []string) ([]model.ProfileViewDetailed, error)
	GetRelationships(ctx context.Context, actor string, others []string) ([]model.Relationship, error)
}

// Limits caps how much of an actor's history Engagements reads.
type Limits struct {
	Feed  int // author feed entries
	Likes int // like records
}

// Collector pages through XRPC listings. It is safe for concurrent use.
type Collector struct {
	api               API
	scorer            *scoring.EngagementScorer
	scoringOpts       []scoring.Option
	pageLimit         int
	profileBatch      int
	relationshipBatch int
	logger            logger.Logger
}

// NewCollector creates a Collector over api.
func NewCollector(api API, opts ...Option) *Collector {
	c := &Collector{
		api:               api,
		pageLimit:         DefaultPageLimit,
		profileBatch:      DefaultProfileBatch,
		relationshipBatch: DefaultRelationshipBatch,
		logger:            logger.GetOr(logger.Nop()).Named("social"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.scorer == nil {
		opts := append([]scoring.Option{scoring.WithLogger(c.logger.Named("scoring"))}, c.scoringOpts...)
		c.scorer = scoring.NewEngagementScorer(c, opts...)
	}
	return c
}

// collect follows cursors until none is returned, the server repeats one, or
// at least threshold items are held. A threshold of zero or less reads one page.
func collect[T any](threshold int, fetch func(cursor string) ([]T, string, error)) ([]T, error) {
	out := []T{}
	cursor := ""
	for {
		items, next, err := fetch(cursor)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
		if next == "" || next == cursor || len(out) >= threshold {
			return out, nil
		}
		cursor = next
	}
}

func truncate[T any](items []T, n int) []T {
	if n >= 0 && len(items) > n {
		return items[:n]
	}
	return items
}

// Followers lists accounts following actor until threshold is reached.
func (c *Collector) Followers(ctx context.Context, actor string, threshold int) ([]model.ProfileView, error) {
	out, err := collect(threshold, func(cursor string) ([]model.ProfileView, string, error) {
		page, err := c.api.GetFollowers(ctx, actor, cursor, c.pageLimit)
		if err != nil {
			return nil, "", err
		}
		return page.Followers, page.Cursor, nil
	})
	if err != nil {
		return nil, fmt.Errorf("followers of %s: %w", actor, err)
	}
	return out, nil
}

// Follows lists accounts actor follows until threshold is reached.
func (c *Collector) Follows(ctx context.Context, actor string, threshold int) ([]model.ProfileView, error) {
	out, err := collect(threshold, func(cursor string) ([]model.ProfileView, string, error) {
		page, err := c.api.GetFollows(ctx, actor, cursor, c.pageLimit)
		if err != nil {
			return nil, "", err
		}
		return page.Follows, page.Cursor, nil
	})
	if err != nil {
		return nil, fmt.Errorf("follows of %s: %w", actor, err)
	}
	return out, nil
}

// UnreadNotifications reads every notification page and keeps the unread ones.
func (c *Collector) UnreadNotifications(ctx context.Context) ([]model.Notification, error) {
	out, err := collect(math.MaxInt, func(cursor string) ([]model.Notification, string, error) {
		page, err := c.api.ListNotifications(ctx, cursor, c.pageLimit)
		if err != nil {
			return nil, "", err
		}
		unread := make([]model.Notification, 0, len(page.Notifications))
		for _, n := range page.Notifications {
			if !n.IsRead {
				unread = append(unread, n)
			}
		}
		return unread, page.Cursor, nil
	})
	if err != nil {
		return nil, fmt.Errorf("notifications: %w", err)
	}
	return out, nil
}

// AuthorFeed returns at most threshold of actor's feed entries, newest first.
func (c *Collector) AuthorFeed(ctx context.Context, actor string, threshold int) ([]model.FeedViewPost, error) {
	out, err := collect(threshold, func(cursor string) ([]model.FeedViewPost, string, error) {
		page, err := c.api.GetAuthorFeed(ctx, actor, cursor, c.pageLimit)
		if err != nil {
			return nil, "", err
		}
		return page.Feed, page.Cursor, nil
	})
	if err != nil {
		return nil, fmt.Errorf("author feed of %s: %w", actor, err)
	}
	return truncate(out, threshold), nil
}

// ActorLikes returns at most threshold posts actor liked. Paging stops on an
// empty page. Failures yield an empty list.
func (c *Collector) ActorLikes(ctx context.Context, actor string, threshold int) []model.FeedViewPost {
	out, err := collect(threshold, func(cursor string) ([]model.FeedViewPost, string, error) {
		page, err := c.api.GetActorLikes(ctx, actor, cursor, c.pageLimit)
		if err != nil {
			return nil, "", err
		}
		if len(page.Feed) == 0 {
			return nil, "", nil
		}
		return page.Feed, page.Cursor, nil
	})
	if err != nil {
		c.swallow(ctx, "actor_likes", actor, err)
		return []model.FeedViewPost{}
	}
	return truncate(out, threshold)
}

// ActorLikeRecords returns at most threshold like records from repo. Failures
// yield an empty list.
func (c *Collector) ActorLikeRecords(ctx context.Context, repo string, threshold int) []model.LikeRecord {
	out, err := collect(threshold, func(cursor string) ([]model.LikeRecord, string, error) {
		page, err := c.api.ListRecords(ctx, repo, model.CollectionLike, cursor, c.pageLimit)
		if err != nil {
			return nil, "", err
		}
		return page.LikeRecords(), page.Cursor, nil
	})
	if err != nil {
		c.swallow(ctx, "actor_like_records", repo, err)
		return []model.LikeRecord{}
	}
	return truncate(out, threshold)
}

// Profiles resolves dids in batches, preserving order across batches.
func (c *Collector) Profiles(ctx context.Context, dids []string) ([]model.ProfileViewDetailed, error) {
	out := make([]model.ProfileViewDetailed, 0, len(dids))
	for lo := 0; lo < len(dids); lo += c.profileBatch {
		hi := min(lo+c.profileBatch, len(dids))
		profiles, err := c.api.GetProfiles(ctx, dids[lo:hi])
		if err != nil {
			return nil, fmt.Errorf("profiles %d-%d: %w", lo, hi, err)
		}
		out = append(out, profiles...)
	}
	return out, nil
}

// SetMutual marks each of follows whose account follows actor back. Entries
// are updated in place.
func (c *Collector) SetMutual(ctx context.Context, actor string, follows []model.ProfileView) error {
	for lo := 0; lo < len(follows); lo += c.relationshipBatch {
		hi := min(lo+c.relationshipBatch, len(follows))
		others := make([]string, 0, hi-lo)
		for i := lo; i < hi; i++ {
			others = append(others, follows[i].DID)
		}

		rels, err := c.api.GetRelationships(ctx, actor, others)
		if err != nil {
			return fmt.Errorf("relationships of %s: %w", actor, err)
		}
		followedBy := make(map[string]bool, len(rels))
		for _, r := range rels {
			followedBy[r.DID] = !r.NotFound && r.FollowedBy != ""
		}
		for i := lo; i < hi; i++ {
			follows[i].Mutual = followedBy[follows[i].DID]
		}
	}
	return nil
}

// Engagements ranks the actors that actor replies to and likes most, as
// profiles carrying their score.
func (c *Collector) Engagements(ctx context.Context, actor string, limits Limits) ([]model.ProfileViewDetailed, error) {
	feed, err := c.AuthorFeed(ctx, actor, limits.Feed)
	if err != nil {
		return nil, err
	}
	likes := c.ActorLikeRecords(ctx, actor, limits.Likes)
	c.logger.Debug(ctx, "collected engagement signals",
		logger.String("actor", actor),
		logger.Int("feed", len(feed)),
		logger.Int("likes", len(likes)))
	return c.scorer.Rank(ctx, actor, feed, likes)
}

func (c *Collector) swallow(ctx context.Context, op, actor string, err error) {
	metrics.RecordSwallowedError(op)
	c.logger.Warn(ctx, "listing failed, using empty result",
		logger.String("operation", op),
		logger.String("actor", actor),
		logger.Error(err))
}

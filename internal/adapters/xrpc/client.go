// Package xrpc is a small client for the Bluesky XRPC HTTP API.
//
// Session endpoints and repo listing go to the PDS; getRelationships goes to
// the app view. Reads send the session's access token when one exists.
package xrpc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/okian/blueskyer/internal/domain/model"
	"github.com/okian/blueskyer/pkg/logger"
	"github.com/okian/blueskyer/pkg/metrics"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Default endpoints.
const (
	DefaultServiceURL = "https://bsky.social"
	DefaultAppViewURL = "https://api.bsky.app"
)

// Method NSIDs.
const (
	NSIDCreateSession     = "com.atproto.server.createSession"
	NSIDRefreshSession    = "com.atproto.server.refreshSession"
	NSIDListRecords       = "com.atproto.repo.listRecords"
	NSIDGetTimeline       = "app.bsky.feed.getTimeline"
	NSIDGetAuthorFeed     = "app.bsky.feed.getAuthorFeed"
	NSIDGetActorLikes     = "app.bsky.feed.getActorLikes"
	NSIDGetFollowers      = "app.bsky.graph.getFollowers"
	NSIDGetFollows        = "app.bsky.graph.getFollows"
	NSIDGetRelationships  = "app.bsky.graph.getRelationships"
	NSIDGetProfiles       = "app.bsky.actor.getProfiles"
	NSIDListNotifications = "app.bsky.notification.listNotifications"
)

const maxErrorBody = 64 << 10

// Session holds the tokens of an authenticated account.
type Session struct {
	DID        string `json:"did"`
	Handle     string `json:"handle"`
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
}

// Client calls XRPC methods. It is safe for concurrent use.
type Client struct {
	serviceURL string
	appViewURL string
	http       *http.Client
	logger     logger.Logger

	identifier string
	password   string

	mu      sync.RWMutex
	session *Session
}

// NewClient creates a Client with configuration options.
func NewClient(opts ...Option) *Client {
	c := &Client{
		serviceURL: DefaultServiceURL,
		appViewURL: DefaultAppViewURL,
		http:       http.DefaultClient,
		logger:     logger.GetOr(logger.Nop()).Named("xrpc"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session returns a copy of the current session, or nil.
func (c *Client) Session() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return nil
	}
	s := *c.session
	return &s
}

// Login creates a session for identifier and stores it on the client.
func (c *Client) Login(ctx context.Context, identifier, password string) (*Session, error) {
	body := map[string]string{"identifier": identifier, "password": password}
	var s Session
	if err := c.do(ctx, http.MethodPost, c.serviceURL, NSIDCreateSession, nil, body, "", &s); err != nil {
		return nil, err
	}
	c.setSession(&s)
	c.logger.Info(ctx, "created new session", logger.String("did", s.DID), logger.String("handle", s.Handle))
	return c.Session(), nil
}

// RefreshSession exchanges the refresh token for a new token pair.
func (c *Client) RefreshSession(ctx context.Context) (*Session, error) {
	cur := c.Session()
	if cur == nil || cur.RefreshJwt == "" {
		return nil, ErrNoSession
	}
	var s Session
	if err := c.do(ctx, http.MethodPost, c.serviceURL, NSIDRefreshSession, nil, nil, cur.RefreshJwt, &s); err != nil {
		return nil, err
	}
	c.setSession(&s)
	c.logger.Info(ctx, "token was expired, refreshed the session", logger.String("did", s.DID))
	return c.Session(), nil
}

// EnsureSession logs in with the configured credentials when the client has
// no tokens, then probes the timeline and refreshes on ExpiredToken.
func (c *Client) EnsureSession(ctx context.Context) error {
	if c.Session() == nil {
		if c.identifier == "" {
			return ErrNoSession
		}
		if _, err := c.Login(ctx, c.identifier, c.password); err != nil {
			return err
		}
	}
	_, err := c.GetTimeline(ctx, "", 1)
	switch {
	case err == nil:
		return nil
	case IsExpiredToken(err):
		_, err = c.RefreshSession(ctx)
		return err
	default:
		return err
	}
}

// GetTimeline returns one page of the session account's home timeline.
func (c *Client) GetTimeline(ctx context.Context, cursor string, limit int) (*model.FeedPage, error) {
	var page model.FeedPage
	if err := c.get(ctx, c.serviceURL, NSIDGetTimeline, pageQuery(nil, cursor, limit), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetFollowers returns one page of actor's followers.
func (c *Client) GetFollowers(ctx context.Context, actor, cursor string, limit int) (*model.FollowersPage, error) {
	var page model.FollowersPage
	if err := c.get(ctx, c.serviceURL, NSIDGetFollowers, pageQuery(url.Values{"actor": {actor}}, cursor, limit), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetFollows returns one page of the accounts actor follows.
func (c *Client) GetFollows(ctx context.Context, actor, cursor string, limit int) (*model.FollowsPage, error) {
	var page model.FollowsPage
	if err := c.get(ctx, c.serviceURL, NSIDGetFollows, pageQuery(url.Values{"actor": {actor}}, cursor, limit), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ListNotifications returns one page of the session account's notifications.
func (c *Client) ListNotifications(ctx context.Context, cursor string, limit int) (*model.NotificationsPage, error) {
	var page model.NotificationsPage
	if err := c.get(ctx, c.serviceURL, NSIDListNotifications, pageQuery(nil, cursor, limit), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetAuthorFeed returns one page of actor's posts and reposts.
func (c *Client) GetAuthorFeed(ctx context.Context, actor, cursor string, limit int) (*model.FeedPage, error) {
	var page model.FeedPage
	if err := c.get(ctx, c.serviceURL, NSIDGetAuthorFeed, pageQuery(url.Values{"actor": {actor}}, cursor, limit), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetActorLikes returns one page of posts actor liked. Only the session
// account may list its own likes.
func (c *Client) GetActorLikes(ctx context.Context, actor, cursor string, limit int) (*model.FeedPage, error) {
	var page model.FeedPage
	if err := c.get(ctx, c.serviceURL, NSIDGetActorLikes, pageQuery(url.Values{"actor": {actor}}, cursor, limit), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ListRecords returns one page of a repository collection.
func (c *Client) ListRecords(ctx context.Context, repo, collection, cursor string, limit int) (*model.RecordsPage, error) {
	q := url.Values{"repo": {repo}, "collection": {collection}}
	var page model.RecordsPage
	if err := c.get(ctx, c.serviceURL, NSIDListRecords, pageQuery(q, cursor, limit), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetProfiles resolves up to 25 actors to detailed profiles.
func (c *Client) GetProfiles(ctx context.Context, actors []string) ([]model.ProfileViewDetailed, error) {
	var out struct {
		Profiles []model.ProfileViewDetailed `json:"profiles"`
	}
	if err := c.get(ctx, c.serviceURL, NSIDGetProfiles, url.Values{"actors": actors}, &out); err != nil {
		return nil, err
	}
	return out.Profiles, nil
}

// GetRelationships reports the follow edges between actor and each of others.
func (c *Client) GetRelationships(ctx context.Context, actor string, others []string) ([]model.Relationship, error) {
	var out struct {
		Actor         string               `json:"actor"`
		Relationships []model.Relationship `json:"relationships"`
	}
	q := url.Values{"actor": {actor}, "others": others}
	if err := c.get(ctx, c.appViewURL, NSIDGetRelationships, q, &out); err != nil {
		return nil, err
	}
	return out.Relationships, nil
}

func pageQuery(q url.Values, cursor string, limit int) url.Values {
	if q == nil {
		q = url.Values{}
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return q
}

func (c *Client) setSession(s *Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

func (c *Client) accessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return ""
	}
	return c.session.AccessJwt
}

func (c *Client) get(ctx context.Context, base, nsid string, q url.Values, out any) error {
	return c.do(ctx, http.MethodGet, base, nsid, q, nil, c.accessToken(), out)
}

func (c *Client) do(ctx context.Context, method, base, nsid string, q url.Values, body any, token string, out any) error {
	start := time.Now()
	status := "error"
	defer func() {
		metrics.RecordXRPCRequest(nsid, status, float64(time.Since(start).Nanoseconds())/1e6)
	}()

	u := base + "/xrpc/" + nsid
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", nsid, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", nsid, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", nsid, err)
	}
	defer resp.Body.Close()
	status = strconv.Itoa(resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		fe := &FetchError{Endpoint: nsid, Status: resp.StatusCode}
		var xerr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if raw, rerr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)); rerr == nil && json.Unmarshal(raw, &xerr) == nil {
			fe.Code, fe.Message = xerr.Error, xerr.Message
		}
		c.logger.Debug(ctx, "xrpc request failed",
			logger.String("endpoint", nsid),
			logger.Int("status", resp.StatusCode),
			logger.String("code", fe.Code))
		return fe
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", nsid, err)
	}
	return nil
}

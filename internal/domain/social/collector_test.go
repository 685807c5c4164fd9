package social_test

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/blueskyer/internal/domain/model"
	"github.com/okian/blueskyer/internal/domain/social"
)

var errUpstream = errors.New("upstream unavailable")

// fakeAPI pages over in-memory slices. Cursors are decimal offsets.
type fakeAPI struct {
	mu sync.Mutex

	followers     []model.ProfileView
	follows       []model.ProfileView
	notifications []model.Notification
	feed          []model.FeedViewPost
	likes         []model.FeedViewPost
	records       []model.RepoRecord
	followedBy    map[string]bool
	repeatCursor  bool

	fail map[string]error

	calls         map[string]int
	profileCalls  [][]string
	relationCalls [][]string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{fail: map[string]error{}, calls: map[string]int{}, followedBy: map[string]bool{}}
}

func (f *fakeAPI) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	return f.fail[name]
}

func (f *fakeAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func pageOf[T any](all []T, cursor string, limit int) ([]T, string) {
	lo, _ := strconv.Atoi(cursor)
	hi := min(lo+limit, len(all))
	if lo >= len(all) {
		return []T{}, ""
	}
	next := ""
	if hi < len(all) {
		next = strconv.Itoa(hi)
	}
	return all[lo:hi], next
}

func (f *fakeAPI) GetFollowers(_ context.Context, _, cursor string, limit int) (*model.FollowersPage, error) {
	if err := f.record("followers"); err != nil {
		return nil, err
	}
	items, next := pageOf(f.followers, cursor, limit)
	return &model.FollowersPage{Followers: items, Cursor: next}, nil
}

func (f *fakeAPI) GetFollows(_ context.Context, _, cursor string, limit int) (*model.FollowsPage, error) {
	if err := f.record("follows"); err != nil {
		return nil, err
	}
	items, next := pageOf(f.follows, cursor, limit)
	return &model.FollowsPage{Follows: items, Cursor: next}, nil
}

func (f *fakeAPI) ListNotifications(_ context.Context, cursor string, limit int) (*model.NotificationsPage, error) {
	if err := f.record("notifications"); err != nil {
		return nil, err
	}
	items, next := pageOf(f.notifications, cursor, limit)
	if f.repeatCursor {
		next = "stuck"
	}
	return &model.NotificationsPage{Notifications: items, Cursor: next}, nil
}

func (f *fakeAPI) GetAuthorFeed(_ context.Context, _, cursor string, limit int) (*model.FeedPage, error) {
	if err := f.record("feed"); err != nil {
		return nil, err
	}
	items, next := pageOf(f.feed, cursor, limit)
	return &model.FeedPage{Feed: items, Cursor: next}, nil
}

func (f *fakeAPI) GetActorLikes(_ context.Context, _, cursor string, limit int) (*model.FeedPage, error) {
	if err := f.record("likes"); err != nil {
		return nil, err
	}
	items, _ := pageOf(f.likes, cursor, limit)
	// the upstream keeps handing out cursors past the end
	lo, _ := strconv.Atoi(cursor)
	next := strconv.Itoa(lo + len(items))
	return &model.FeedPage{Feed: items, Cursor: next}, nil
}

func (f *fakeAPI) ListRecords(_ context.Context, _, _, cursor string, limit int) (*model.RecordsPage, error) {
	if err := f.record("records"); err != nil {
		return nil, err
	}
	items, next := pageOf(f.records, cursor, limit)
	return &model.RecordsPage{Records: items, Cursor: next}, nil
}

func (f *fakeAPI) GetProfiles(_ context.Context, actors []string) ([]model.ProfileViewDetailed, error) {
	if err := f.record("profiles"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.profileCalls = append(f.profileCalls, append([]string(nil), actors...))
	f.mu.Unlock()
	out := make([]model.ProfileViewDetailed, len(actors))
	for i, did := range actors {
		out[i] = model.ProfileViewDetailed{DID: did, Handle: did + ".test"}
	}
	return out, nil
}

func (f *fakeAPI) GetRelationships(_ context.Context, _ string, others []string) ([]model.Relationship, error) {
	if err := f.record("relationships"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.relationCalls = append(f.relationCalls, append([]string(nil), others...))
	f.mu.Unlock()
	out := make([]model.Relationship, 0, len(others))
	for _, did := range others {
		r := model.Relationship{DID: did, Following: "at://me/follow/" + did}
		if f.followedBy[did] {
			r.FollowedBy = "at://" + did + "/follow/me"
		}
		out = append(out, r)
	}
	return out, nil
}

func actors(n int) []model.ProfileView {
	out := make([]model.ProfileView, n)
	for i := range out {
		out[i] = model.ProfileView{DID: fmt.Sprintf("did:plc:a%03d", i)}
	}
	return out
}

func likeRecord(subjectURI string) model.RepoRecord {
	return model.RepoRecord{
		URI:   "at://did:plc:me/app.bsky.feed.like/x",
		Value: []byte(`{"$type":"app.bsky.feed.like","subject":{"uri":"` + subjectURI + `","cid":"c"}}`),
	}
}

func reply(parentDID string) model.FeedViewPost {
	return model.FeedViewPost{Reply: &model.FeedReplyRef{Parent: &model.PostView{
		Author: model.ProfileViewBasic{DID: parentDID, Handle: parentDID + ".test"},
	}}}
}

func TestListings(t *testing.T) {
	ctx := context.Background()

	Convey("Given 250 followers served 100 per page", t, func() {
		api := newFakeAPI()
		api.followers = actors(250)
		c := social.NewCollector(api)

		Convey("When the threshold is above the total", func() {
			got, err := c.Followers(ctx, "me.test", 1000)
			So(err, ShouldBeNil)
			So(got, ShouldHaveLength, 250)
			So(api.count("followers"), ShouldEqual, 3)
		})

		Convey("When the threshold is reached mid-way", func() {
			got, err := c.Followers(ctx, "me.test", 150)
			So(err, ShouldBeNil)

			Convey("Then paging stops after the page that crossed it", func() {
				So(got, ShouldHaveLength, 200)
				So(api.count("followers"), ShouldEqual, 2)
			})
		})

		Convey("When no threshold is given", func() {
			got, err := c.Followers(ctx, "me.test", 0)
			So(err, ShouldBeNil)
			So(got, ShouldHaveLength, 100)
		})

		Convey("When the upstream fails", func() {
			api.fail["followers"] = errUpstream
			got, err := c.Followers(ctx, "me.test", 10)
			So(got, ShouldBeNil)
			So(errors.Is(err, errUpstream), ShouldBeTrue)
		})
	})

	Convey("Given follows served in pages of 40", t, func() {
		api := newFakeAPI()
		api.follows = actors(90)
		c := social.NewCollector(api, social.WithPageLimit(40))

		got, err := c.Follows(ctx, "me.test", 500)
		So(err, ShouldBeNil)
		So(got, ShouldHaveLength, 90)
		So(api.count("follows"), ShouldEqual, 3)
	})

	Convey("Given notifications with a mix of read and unread", t, func() {
		api := newFakeAPI()
		for i := 0; i < 230; i++ {
			api.notifications = append(api.notifications, model.Notification{URI: strconv.Itoa(i), IsRead: i%3 == 0})
		}
		c := social.NewCollector(api)

		Convey("Then every page is read and only unread ones are kept", func() {
			got, err := c.UnreadNotifications(ctx)
			So(err, ShouldBeNil)
			So(got, ShouldHaveLength, 153)
			So(got[0].URI, ShouldEqual, "1")
			So(api.count("notifications"), ShouldEqual, 3)
		})

		Convey("Then a repeated cursor ends paging", func() {
			api.repeatCursor = true
			got, err := c.UnreadNotifications(ctx)
			So(err, ShouldBeNil)
			So(api.count("notifications"), ShouldEqual, 2)
			So(got, ShouldHaveLength, 132)
		})

		Convey("Then an upstream failure propagates", func() {
			api.fail["notifications"] = errUpstream
			_, err := c.UnreadNotifications(ctx)
			So(errors.Is(err, errUpstream), ShouldBeTrue)
		})
	})

	Convey("Given an author feed of 250 entries", t, func() {
		api := newFakeAPI()
		for i := 0; i < 250; i++ {
			api.feed = append(api.feed, model.FeedViewPost{Post: model.PostView{URI: strconv.Itoa(i)}})
		}
		c := social.NewCollector(api)

		Convey("Then the result is truncated to the threshold", func() {
			got, err := c.AuthorFeed(ctx, "me.test", 120)
			So(err, ShouldBeNil)
			So(got, ShouldHaveLength, 120)
			So(got[119].Post.URI, ShouldEqual, "119")
		})
	})

	Convey("Given actor likes that run out", t, func() {
		api := newFakeAPI()
		for i := 0; i < 150; i++ {
			api.likes = append(api.likes, model.FeedViewPost{Post: model.PostView{URI: strconv.Itoa(i)}})
		}
		c := social.NewCollector(api)

		Convey("Then an empty page ends paging even though a cursor came back", func() {
			got := c.ActorLikes(ctx, "me.test", 1000)
			So(got, ShouldHaveLength, 150)
			So(api.count("likes"), ShouldEqual, 3)
		})

		Convey("Then a failure yields an empty list", func() {
			api.fail["likes"] = errUpstream
			got := c.ActorLikes(ctx, "other.test", 100)
			So(got, ShouldNotBeNil)
			So(got, ShouldBeEmpty)
		})
	})

	Convey("Given like records in the repository", t, func() {
		api := newFakeAPI()
		for i := 0; i < 120; i++ {
			api.records = append(api.records, likeRecord(fmt.Sprintf("at://did:plc:b%d/app.bsky.feed.post/1", i)))
		}
		c := social.NewCollector(api)

		Convey("Then they are truncated to the threshold", func() {
			got := c.ActorLikeRecords(ctx, "me.test", 110)
			So(got, ShouldHaveLength, 110)
			So(got[0].Value.Subject.URI, ShouldEqual, "at://did:plc:b0/app.bsky.feed.post/1")
		})

		Convey("Then a failure yields an empty list", func() {
			api.fail["records"] = errUpstream
			got := c.ActorLikeRecords(ctx, "me.test", 10)
			So(got, ShouldNotBeNil)
			So(got, ShouldBeEmpty)
		})
	})
}

func TestProfiles(t *testing.T) {
	ctx := context.Background()

	Convey("Given 60 DIDs", t, func() {
		api := newFakeAPI()
		c := social.NewCollector(api)
		dids := make([]string, 60)
		for i := range dids {
			dids[i] = fmt.Sprintf("did:plc:p%02d", i)
		}

		Convey("Then they resolve in batches of 25 in input order", func() {
			got, err := c.Profiles(ctx, dids)
			So(err, ShouldBeNil)
			So(got, ShouldHaveLength, 60)
			for i := range got {
				So(got[i].DID, ShouldEqual, dids[i])
			}
			So(api.profileCalls, ShouldHaveLength, 3)
			So(api.profileCalls[0], ShouldHaveLength, 25)
			So(api.profileCalls[2], ShouldHaveLength, 10)
		})

		Convey("Then a failing batch fails the call", func() {
			api.fail["profiles"] = errUpstream
			got, err := c.Profiles(ctx, dids)
			So(got, ShouldBeNil)
			So(errors.Is(err, errUpstream), ShouldBeTrue)
		})

		Convey("Then no DIDs make no calls", func() {
			got, err := c.Profiles(ctx, nil)
			So(err, ShouldBeNil)
			So(got, ShouldBeEmpty)
			So(api.count("profiles"), ShouldEqual, 0)
		})
	})
}

func TestSetMutual(t *testing.T) {
	ctx := context.Background()

	Convey("Given 65 follows of which some follow back", t, func() {
		api := newFakeAPI()
		follows := actors(65)
		api.followedBy[follows[0].DID] = true
		api.followedBy[follows[31].DID] = true
		api.followedBy[follows[64].DID] = true
		c := social.NewCollector(api)

		So(c.SetMutual(ctx, "did:plc:me", follows), ShouldBeNil)

		Convey("Then only the followers back are mutual", func() {
			mutual := 0
			for _, f := range follows {
				if f.Mutual {
					mutual++
				}
			}
			So(mutual, ShouldEqual, 3)
			So(follows[31].Mutual, ShouldBeTrue)
			So(follows[1].Mutual, ShouldBeFalse)
		})

		Convey("Then relationships were fetched in batches of 30", func() {
			So(api.relationCalls, ShouldHaveLength, 3)
			So(api.relationCalls[2], ShouldHaveLength, 5)
		})
	})

	Convey("Given a failing relationship lookup", t, func() {
		api := newFakeAPI()
		api.fail["relationships"] = errUpstream
		c := social.NewCollector(api)
		err := c.SetMutual(ctx, "did:plc:me", actors(2))
		So(errors.Is(err, errUpstream), ShouldBeTrue)
	})
}

func TestEngagements(t *testing.T) {
	ctx := context.Background()

	Convey("Given a feed with replies and like records", t, func() {
		api := newFakeAPI()
		api.feed = []model.FeedViewPost{
			reply("did:plc:a"),
			reply("did:plc:b"),
			{Post: model.PostView{URI: "at://plain"}},
			reply("did:plc:a"),
		}
		api.records = []model.RepoRecord{
			likeRecord("at://did:plc:b/app.bsky.feed.post/1"),
			likeRecord("at://did:plc:c/app.bsky.feed.post/2"),
		}
		c := social.NewCollector(api)

		Convey("When ranking", func() {
			got, err := c.Engagements(ctx, "me.test", social.Limits{Feed: 1000, Likes: 100})
			So(err, ShouldBeNil)

			Convey("Then profiles come back by score with their engagement", func() {
				So(got, ShouldHaveLength, 3)
				So(got[0].DID, ShouldEqual, "did:plc:a")
				So(got[0].Engagement, ShouldEqual, 6.0)
				So(got[1].DID, ShouldEqual, "did:plc:b")
				So(got[1].Engagement, ShouldEqual, 4.0)
				So(got[2].DID, ShouldEqual, "did:plc:c")
				So(got[2].Engagement, ShouldEqual, 1.0)
			})
		})

		Convey("When the like listing fails", func() {
			api.fail["records"] = errUpstream
			got, err := c.Engagements(ctx, "me.test", social.Limits{Feed: 1000, Likes: 100})
			So(err, ShouldBeNil)
			So(got, ShouldHaveLength, 2)
		})

		Convey("When the feed listing fails", func() {
			api.fail["feed"] = errUpstream
			_, err := c.Engagements(ctx, "me.test", social.Limits{Feed: 1000, Likes: 100})
			So(errors.Is(err, errUpstream), ShouldBeTrue)
		})
	})

	Convey("Given an actor with no signals", t, func() {
		api := newFakeAPI()
		c := social.NewCollector(api)
		got, err := c.Engagements(ctx, "me.test", social.Limits{Feed: 10, Likes: 10})
		So(err, ShouldBeNil)
		So(got, ShouldBeEmpty)
		So(api.count("profiles"), ShouldEqual, 0)
	})
}

package xrpc_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/blueskyer/internal/adapters/xrpc"
)

// fakePDS serves canned XRPC responses keyed by NSID and records requests.
type fakePDS struct {
	mu       sync.Mutex
	requests []*http.Request
	bodies   []string
	routes   map[string]http.HandlerFunc
}

func newFakePDS() *fakePDS {
	return &fakePDS{routes: map[string]http.HandlerFunc{}}
}

func (f *fakePDS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, r)
	f.bodies = append(f.bodies, string(body))
	route := f.routes[strings.TrimPrefix(r.URL.Path, "/xrpc/")]
	f.mu.Unlock()
	if route == nil {
		w.WriteHeader(http.StatusNotImplemented)
		_, _ = io.WriteString(w, `{"error":"MethodNotImplemented","message":"no route"}`)
		return
	}
	route(w, r)
}

func (f *fakePDS) last() (*http.Request, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1], f.bodies[len(f.bodies)-1]
}

func reply(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

const sessionBody = `{"did":"did:plc:me","handle":"me.test","accessJwt":"access-1","refreshJwt":"refresh-1"}`

func TestSession(t *testing.T) {
	ctx := context.Background()

	Convey("Given a PDS that accepts logins", t, func() {
		pds := newFakePDS()
		pds.routes[xrpc.NSIDCreateSession] = reply(http.StatusOK, sessionBody)
		srv := httptest.NewServer(pds)
		defer srv.Close()

		client := xrpc.NewClient(xrpc.WithServiceURL(srv.URL + "/"))

		Convey("When logging in", func() {
			s, err := client.Login(ctx, "me.test", "app-pass")
			So(err, ShouldBeNil)

			Convey("Then the session is stored and the credentials were posted", func() {
				So(s.AccessJwt, ShouldEqual, "access-1")
				So(client.Session().DID, ShouldEqual, "did:plc:me")

				req, body := pds.last()
				So(req.Method, ShouldEqual, http.MethodPost)
				So(req.Header.Get("Content-Type"), ShouldEqual, "application/json")
				So(body, ShouldContainSubstring, `"identifier":"me.test"`)
				So(body, ShouldContainSubstring, `"password":"app-pass"`)
			})
		})

		Convey("When refreshing without a session", func() {
			_, err := client.RefreshSession(ctx)
			So(errors.Is(err, xrpc.ErrNoSession), ShouldBeTrue)
		})
	})

	Convey("Given a client without credentials or tokens", t, func() {
		client := xrpc.NewClient(xrpc.WithServiceURL("http://127.0.0.1:1"))

		Convey("Then EnsureSession reports no session", func() {
			So(errors.Is(client.EnsureSession(ctx), xrpc.ErrNoSession), ShouldBeTrue)
		})
	})

	Convey("Given a PDS whose first access token has expired", t, func() {
		pds := newFakePDS()
		pds.routes[xrpc.NSIDCreateSession] = reply(http.StatusOK, sessionBody)
		pds.routes[xrpc.NSIDRefreshSession] = func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer refresh-1" {
				reply(http.StatusUnauthorized, `{"error":"InvalidToken"}`)(w, r)
				return
			}
			reply(http.StatusOK, `{"did":"did:plc:me","handle":"me.test","accessJwt":"access-2","refreshJwt":"refresh-2"}`)(w, r)
		}
		pds.routes[xrpc.NSIDGetTimeline] = func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "Bearer access-1" {
				reply(http.StatusBadRequest, `{"error":"ExpiredToken","message":"Token has expired"}`)(w, r)
				return
			}
			reply(http.StatusOK, `{"feed":[]}`)(w, r)
		}
		srv := httptest.NewServer(pds)
		defer srv.Close()

		client := xrpc.NewClient(
			xrpc.WithServiceURL(srv.URL),
			xrpc.WithCredentials("me.test", "app-pass"),
		)

		Convey("When ensuring the session", func() {
			So(client.EnsureSession(ctx), ShouldBeNil)

			Convey("Then the client logged in and refreshed the token pair", func() {
				s := client.Session()
				So(s.AccessJwt, ShouldEqual, "access-2")
				So(s.RefreshJwt, ShouldEqual, "refresh-2")
			})

			Convey("Then a second call keeps the fresh token", func() {
				So(client.EnsureSession(ctx), ShouldBeNil)
				req, _ := pds.last()
				So(req.URL.Path, ShouldEqual, "/xrpc/"+xrpc.NSIDGetTimeline)
				So(req.Header.Get("Authorization"), ShouldEqual, "Bearer access-2")
			})
		})
	})
}

func TestReads(t *testing.T) {
	ctx := context.Background()

	Convey("Given a PDS and an app view", t, func() {
		pds := newFakePDS()
		appView := newFakePDS()
		pdsSrv := httptest.NewServer(pds)
		defer pdsSrv.Close()
		appSrv := httptest.NewServer(appView)
		defer appSrv.Close()

		client := xrpc.NewClient(xrpc.WithServiceURL(pdsSrv.URL), xrpc.WithAppViewURL(appSrv.URL))

		Convey("When fetching a followers page", func() {
			pds.routes[xrpc.NSIDGetFollowers] = reply(http.StatusOK,
				`{"subject":{"did":"did:plc:me","handle":"me.test"},"followers":[{"did":"did:plc:a","handle":"a.test"}],"cursor":"c2"}`)
			page, err := client.GetFollowers(ctx, "me.test", "c1", 50)
			So(err, ShouldBeNil)

			Convey("Then the page and query are as expected", func() {
				So(page.Followers, ShouldHaveLength, 1)
				So(page.Followers[0].DID, ShouldEqual, "did:plc:a")
				So(page.Cursor, ShouldEqual, "c2")

				req, _ := pds.last()
				So(req.Method, ShouldEqual, http.MethodGet)
				So(req.URL.Query().Get("actor"), ShouldEqual, "me.test")
				So(req.URL.Query().Get("cursor"), ShouldEqual, "c1")
				So(req.URL.Query().Get("limit"), ShouldEqual, "50")
				So(req.Header.Get("Authorization"), ShouldBeEmpty)
			})
		})

		Convey("When resolving profiles", func() {
			pds.routes[xrpc.NSIDGetProfiles] = reply(http.StatusOK,
				`{"profiles":[{"did":"did:plc:a","handle":"a.test","followersCount":3},{"did":"did:plc:b","handle":"b.test"}]}`)
			profiles, err := client.GetProfiles(ctx, []string{"did:plc:a", "did:plc:b"})
			So(err, ShouldBeNil)

			Convey("Then actors are sent as a repeated parameter", func() {
				So(profiles, ShouldHaveLength, 2)
				So(profiles[0].FollowersCount, ShouldEqual, 3)
				req, _ := pds.last()
				So(req.URL.Query()["actors"], ShouldResemble, []string{"did:plc:a", "did:plc:b"})
			})
		})

		Convey("When fetching relationships", func() {
			appView.routes[xrpc.NSIDGetRelationships] = reply(http.StatusOK,
				`{"actor":"did:plc:me","relationships":[{"$type":"app.bsky.graph.defs#relationship","did":"did:plc:a","following":"at://x","followedBy":"at://y"}]}`)
			rels, err := client.GetRelationships(ctx, "did:plc:me", []string{"did:plc:a"})
			So(err, ShouldBeNil)

			Convey("Then the app view served the call", func() {
				So(rels, ShouldHaveLength, 1)
				So(rels[0].FollowedBy, ShouldEqual, "at://y")
				req, _ := appView.last()
				So(req.URL.Query()["others"], ShouldResemble, []string{"did:plc:a"})
				So(pds.requests, ShouldBeEmpty)
			})
		})

		Convey("When listing like records", func() {
			pds.routes[xrpc.NSIDListRecords] = reply(http.StatusOK, `{"records":[
				{"uri":"at://did:plc:me/app.bsky.feed.like/1","cid":"c1","value":{"$type":"app.bsky.feed.like","subject":{"uri":"at://did:plc:bob/app.bsky.feed.post/9","cid":"x"},"createdAt":"2024-01-01T00:00:00Z"}},
				{"uri":"at://did:plc:me/app.bsky.feed.like/2","cid":"c2","value":"not a like"}
			],"cursor":"next"}`)
			page, err := client.ListRecords(ctx, "me.test", "app.bsky.feed.like", "", 100)
			So(err, ShouldBeNil)

			Convey("Then likes decode and foreign values are skipped", func() {
				likes := page.LikeRecords()
				So(likes, ShouldHaveLength, 1)
				So(likes[0].Value.Subject.URI, ShouldEqual, "at://did:plc:bob/app.bsky.feed.post/9")
				req, _ := pds.last()
				So(req.URL.Query().Get("collection"), ShouldEqual, "app.bsky.feed.like")
				So(req.URL.Query().Get("cursor"), ShouldBeEmpty)
			})
		})

		Convey("When the server rejects a call", func() {
			pds.routes[xrpc.NSIDGetAuthorFeed] = reply(http.StatusBadRequest, `{"error":"InvalidRequest","message":"Profile not found"}`)
			_, err := client.GetAuthorFeed(ctx, "ghost.test", "", 100)

			Convey("Then a FetchError carries the status and code", func() {
				var fe *xrpc.FetchError
				So(errors.As(err, &fe), ShouldBeTrue)
				So(fe.Endpoint, ShouldEqual, xrpc.NSIDGetAuthorFeed)
				So(fe.Status, ShouldEqual, http.StatusBadRequest)
				So(fe.Code, ShouldEqual, "InvalidRequest")
				So(fe.Message, ShouldEqual, "Profile not found")
				So(xrpc.IsExpiredToken(err), ShouldBeFalse)
			})
		})

		Convey("When the error body is not JSON", func() {
			pds.routes[xrpc.NSIDGetFollows] = reply(http.StatusBadGateway, `upstream down`)
			_, err := client.GetFollows(ctx, "me.test", "", 0)

			var fe *xrpc.FetchError
			So(errors.As(err, &fe), ShouldBeTrue)
			So(fe.Status, ShouldEqual, http.StatusBadGateway)
			So(fe.Code, ShouldBeEmpty)
			So(err.Error(), ShouldContainSubstring, "502")
		})
	})
}

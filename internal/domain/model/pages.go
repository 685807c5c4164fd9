package model

import jsoniter "github.com/json-iterator/go"

// Cursor-paginated XRPC result pages. An empty Cursor marks the last page.

// FollowersPage is an app.bsky.graph.getFollowers page.
type FollowersPage struct {
	Subject   ProfileView   `json:"subject"`
	Followers []ProfileView `json:"followers"`
	Cursor    string        `json:"cursor,omitempty"`
}

// FollowsPage is an app.bsky.graph.getFollows page.
type FollowsPage struct {
	Subject ProfileView   `json:"subject"`
	Follows []ProfileView `json:"follows"`
	Cursor  string        `json:"cursor,omitempty"`
}

// NotificationsPage is an app.bsky.notification.listNotifications page.
type NotificationsPage struct {
	Notifications []Notification `json:"notifications"`
	Cursor        string         `json:"cursor,omitempty"`
}

// FeedPage is a getTimeline, getAuthorFeed or getActorLikes page.
type FeedPage struct {
	Feed   []FeedViewPost `json:"feed"`
	Cursor string         `json:"cursor,omitempty"`
}

// RepoRecord is one com.atproto.repo.listRecords entry with an undecoded value.
type RepoRecord struct {
	URI   string              `json:"uri"`
	CID   string              `json:"cid"`
	Value jsoniter.RawMessage `json:"value"`
}

// RecordsPage is a com.atproto.repo.listRecords page.
type RecordsPage struct {
	Records []RepoRecord `json:"records"`
	Cursor  string       `json:"cursor,omitempty"`
}

// LikeRecords decodes the page's values as likes. Entries whose value is not
// a like are skipped.
func (p *RecordsPage) LikeRecords() []LikeRecord {
	out := make([]LikeRecord, 0, len(p.Records))
	for _, r := range p.Records {
		var like Like
		if err := json.Unmarshal(r.Value, &like); err != nil {
			continue
		}
		out = append(out, LikeRecord{URI: r.URI, CID: r.CID, Value: like})
	}
	return out
}

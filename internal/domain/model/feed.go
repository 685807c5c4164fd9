package model

// ViewerState is the requesting account's relationship to an actor.
type ViewerState struct {
	Muted      bool   `json:"muted,omitempty"`
	BlockedBy  bool   `json:"blockedBy,omitempty"`
	Following  string `json:"following,omitempty"`
	FollowedBy string `json:"followedBy,omitempty"`
}

// ProfileViewBasic is the compact actor view embedded in posts.
type ProfileViewBasic struct {
	DID         string       `json:"did"`
	Handle      string       `json:"handle"`
	DisplayName string       `json:"displayName,omitempty"`
	Avatar      string       `json:"avatar,omitempty"`
	Viewer      *ViewerState `json:"viewer,omitempty"`
}

// ProfileView is the actor view returned by follower/follow listings.
type ProfileView struct {
	DID         string       `json:"did"`
	Handle      string       `json:"handle"`
	DisplayName string       `json:"displayName,omitempty"`
	Description string       `json:"description,omitempty"`
	Avatar      string       `json:"avatar,omitempty"`
	IndexedAt   string       `json:"indexedAt,omitempty"`
	Viewer      *ViewerState `json:"viewer,omitempty"`

	// Mutual is set by the mutual-follow computation.
	Mutual bool `json:"mutual,omitempty"`
}

// ProfileViewDetailed is returned by getProfiles.
type ProfileViewDetailed struct {
	DID            string       `json:"did"`
	Handle         string       `json:"handle"`
	DisplayName    string       `json:"displayName,omitempty"`
	Description    string       `json:"description,omitempty"`
	Avatar         string       `json:"avatar,omitempty"`
	Banner         string       `json:"banner,omitempty"`
	FollowersCount int64        `json:"followersCount"`
	FollowsCount   int64        `json:"followsCount"`
	PostsCount     int64        `json:"postsCount"`
	IndexedAt      string       `json:"indexedAt,omitempty"`
	Viewer         *ViewerState `json:"viewer,omitempty"`

	// Engagement is the score copied from the ranked engagement node.
	Engagement float64 `json:"engagement,omitempty"`
}

// PostView is a hydrated post. Posts that could not be hydrated (deleted,
// blocked) decode with an empty Author.
type PostView struct {
	URI         string           `json:"uri"`
	CID         string           `json:"cid"`
	Author      ProfileViewBasic `json:"author"`
	Record      Post             `json:"record"`
	ReplyCount  int64            `json:"replyCount"`
	RepostCount int64            `json:"repostCount"`
	LikeCount   int64            `json:"likeCount"`
	IndexedAt   string           `json:"indexedAt"`
	NotFound    bool             `json:"notFound,omitempty"`
	Blocked     bool             `json:"blocked,omitempty"`
}

// HasMention reports whether the post's facets carry a mention.
func (p *PostView) HasMention() bool { return p.Record.HasMention() }

// HasLinks reports whether the post's facets carry a link.
func (p *PostView) HasLinks() bool { return p.Record.HasLinks() }

// Links returns the post's link URIs, never nil.
func (p *PostView) Links() []string { return p.Record.Links() }

// FeedReplyRef holds the hydrated thread context of a reply.
type FeedReplyRef struct {
	Root   *PostView `json:"root,omitempty"`
	Parent *PostView `json:"parent,omitempty"`
}

// FeedViewPost is one author-feed or timeline entry.
type FeedViewPost struct {
	Post   PostView       `json:"post"`
	Reply  *FeedReplyRef  `json:"reply,omitempty"`
	Reason map[string]any `json:"reason,omitempty"`
}

// ParentAuthor returns the author of the replied-to post. ok is false when
// the entry is not a reply or the parent could not be hydrated.
func (f *FeedViewPost) ParentAuthor() (author ProfileViewBasic, ok bool) {
	if f.Reply == nil || f.Reply.Parent == nil || f.Reply.Parent.Author.DID == "" {
		return ProfileViewBasic{}, false
	}
	return f.Reply.Parent.Author, true
}

// LikeRecord is one app.bsky.feed.like entry from com.atproto.repo.listRecords.
type LikeRecord struct {
	URI   string `json:"uri"`
	CID   string `json:"cid"`
	Value Like   `json:"value"`
}

// Notification is one app.bsky.notification.listNotifications entry.
type Notification struct {
	URI           string         `json:"uri"`
	CID           string         `json:"cid"`
	Author        ProfileView    `json:"author"`
	Reason        string         `json:"reason"`
	ReasonSubject string         `json:"reasonSubject,omitempty"`
	Record        map[string]any `json:"record,omitempty"`
	IsRead        bool           `json:"isRead"`
	IndexedAt     string         `json:"indexedAt"`
}

// Relationship is one app.bsky.graph.getRelationships entry. Following and
// FollowedBy hold follow-record URIs when the edge exists.
type Relationship struct {
	Type       string `json:"$type,omitempty"`
	DID        string `json:"did"`
	Following  string `json:"following,omitempty"`
	FollowedBy string `json:"followedBy,omitempty"`
	NotFound   bool   `json:"notFound,omitempty"`
}

// EngagementNode accumulates an actor's engagement score.
type EngagementNode struct {
	DID   string  `json:"did"`
	Score float64 `json:"score"`
}

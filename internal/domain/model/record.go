package model

import (
	"fmt"
	"strings"
)

// Record collection NSIDs, also used as "$type".
const (
	CollectionPost    = "app.bsky.feed.post"
	CollectionLike    = "app.bsky.feed.like"
	CollectionRepost  = "app.bsky.feed.repost"
	CollectionFollow  = "app.bsky.graph.follow"
	CollectionBlock   = "app.bsky.graph.block"
	CollectionProfile = "app.bsky.actor.profile"
)

// StrongRef points at a specific version of a record.
type StrongRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// PostReplyRef links a reply to its thread root and direct parent.
type PostReplyRef struct {
	Root   StrongRef `json:"root"`
	Parent StrongRef `json:"parent"`
}

// Post is an app.bsky.feed.post record.
type Post struct {
	Text      string         `json:"text"`
	CreatedAt string         `json:"createdAt"`
	Facets    []Facet        `json:"facets,omitempty"`
	Reply     *PostReplyRef  `json:"reply,omitempty"`
	Langs     []string       `json:"langs,omitempty"`
	Tags      []string       `json:"tags,omitempty"`
	Embed     map[string]any `json:"embed,omitempty"`
}

// Like is an app.bsky.feed.like record.
type Like struct {
	Subject   StrongRef `json:"subject"`
	CreatedAt string    `json:"createdAt"`
}

// Repost is an app.bsky.feed.repost record.
type Repost struct {
	Subject   StrongRef `json:"subject"`
	CreatedAt string    `json:"createdAt"`
}

// Follow is an app.bsky.graph.follow record; Subject is a DID.
type Follow struct {
	Subject   string `json:"subject"`
	CreatedAt string `json:"createdAt"`
}

// Block is an app.bsky.graph.block record; Subject is a DID.
type Block struct {
	Subject   string `json:"subject"`
	CreatedAt string `json:"createdAt"`
}

// ProfileRecord is an app.bsky.actor.profile record.
type ProfileRecord struct {
	DisplayName string `json:"displayName,omitempty"`
	Description string `json:"description,omitempty"`
}

// Record is one decoded repository block together with the commit context
// it arrived in. Type is the record's "$type"; blocks that are not records
// (signed commits, MST nodes) have an empty Type. At most one typed variant
// is set and Fields always holds the raw decoded map.
type Record struct {
	Repo   string `json:"repo"`
	Seq    int64  `json:"seq"`
	Rev    string `json:"rev,omitempty"`
	Time   string `json:"time,omitempty"`
	CID    string `json:"cid"`
	Action string `json:"action,omitempty"`
	Path   string `json:"path,omitempty"`

	Type    string         `json:"$type,omitempty"`
	Post    *Post          `json:"post,omitempty"`
	Like    *Like          `json:"like,omitempty"`
	Repost  *Repost        `json:"repost,omitempty"`
	Follow  *Follow        `json:"follow,omitempty"`
	Block   *Block         `json:"block,omitempty"`
	Profile *ProfileRecord `json:"profile,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Collection returns the collection segment of Path.
func (r *Record) Collection() string {
	collection, _, _ := strings.Cut(r.Path, "/")
	return collection
}

// Rkey returns the record key segment of Path.
func (r *Record) Rkey() string {
	_, rkey, _ := strings.Cut(r.Path, "/")
	return rkey
}

// Recognized reports whether the record decoded into a typed variant.
func (r *Record) Recognized() bool {
	return r.Post != nil || r.Like != nil || r.Repost != nil || r.Follow != nil || r.Block != nil || r.Profile != nil
}

// DecodeCBOR fills the body of r from a DAG-CBOR block. A block that is not
// a map is an error. A $type whose typed decode fails is kept as an
// unrecognized record.
func (r *Record) DecodeCBOR(data []byte) error {
	var fields map[string]any
	if err := cborDec.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	r.Fields = fields
	r.Type = typeOf(fields)
	r.Post, r.Like, r.Repost, r.Follow, r.Block, r.Profile = nil, nil, nil, nil, nil, nil

	decode := func(v any) bool { return cborDec.Unmarshal(data, v) == nil }
	switch r.Type {
	case CollectionPost:
		if v := new(Post); decode(v) {
			r.Post = v
		}
	case CollectionLike:
		if v := new(Like); decode(v) {
			r.Like = v
		}
	case CollectionRepost:
		if v := new(Repost); decode(v) {
			r.Repost = v
		}
	case CollectionFollow:
		if v := new(Follow); decode(v) {
			r.Follow = v
		}
	case CollectionBlock:
		if v := new(Block); decode(v) {
			r.Block = v
		}
	case CollectionProfile:
		if v := new(ProfileRecord); decode(v) {
			r.Profile = v
		}
	}
	return nil
}

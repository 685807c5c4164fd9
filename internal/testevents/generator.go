package testevents

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/blueskyer/internal/domain/model"
)

// Record kind weights out of kindDivisor.
const (
	kindDivisor = 10
	postCutoff  = 4 // 0-3 posts
	likeCutoff  = 7 // 4-6 likes
	followCut   = 8 // 7 follows
	repostCut   = 9 // 8 reposts, 9 deletes
)

const (
	defaultActors = 50
	facetChance   = 3 // one post in facetChance carries facets
	replyChance   = 4
)

func randomInt(n int) int {
	if n <= 1 {
		return 0
	}
	v, _ := rand.Int(rand.Reader, big.NewInt(int64(n)))
	return int(v.Int64())
}

// SyntheticDID returns a did:plc identifier backed by a random UUID.
func SyntheticDID() string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "did:plc:" + id[:24]
}

// Generator produces a stream of plausible commits over a fixed actor set.
type Generator struct {
	actors []string
	seq    atomic.Int64
	posts  []string // at:// URIs of generated posts, used as like/reply subjects
}

// NewGenerator creates a generator over n synthetic actors starting after
// startSeq.
func NewGenerator(n int, startSeq int64) *Generator {
	if n < 1 {
		n = defaultActors
	}
	g := &Generator{actors: make([]string, n)}
	for i := range g.actors {
		g.actors[i] = SyntheticDID()
	}
	g.seq.Store(startSeq)
	return g
}

// Actors returns the generator's actor DIDs.
func (g *Generator) Actors() []string {
	return g.actors
}

// Next returns the next commit. Next is not safe for concurrent use.
func (g *Generator) Next() Commit {
	seq := g.seq.Add(1)
	repo := g.actors[randomInt(len(g.actors))]
	rkey := tid()
	now := time.Now().UTC()

	var op Op
	switch k := randomInt(kindDivisor); {
	case k < postCutoff:
		op = Op{Action: "create", Path: model.CollectionPost + "/" + rkey, Record: g.post(now)}
		g.posts = append(g.posts, "at://"+repo+"/"+model.CollectionPost+"/"+rkey)
	case k < likeCutoff && len(g.posts) > 0:
		op = Op{Action: "create", Path: model.CollectionLike + "/" + rkey, Record: map[string]any{
			"$type":     model.CollectionLike,
			"subject":   g.subject(),
			"createdAt": now.Format(time.RFC3339Nano),
		}}
	case k < followCut:
		op = Op{Action: "create", Path: model.CollectionFollow + "/" + rkey, Record: map[string]any{
			"$type":     model.CollectionFollow,
			"subject":   g.actors[randomInt(len(g.actors))],
			"createdAt": now.Format(time.RFC3339Nano),
		}}
	case k < repostCut && len(g.posts) > 0:
		op = Op{Action: "create", Path: model.CollectionRepost + "/" + rkey, Record: map[string]any{
			"$type":     model.CollectionRepost,
			"subject":   g.subject(),
			"createdAt": now.Format(time.RFC3339Nano),
		}}
	default:
		op = Op{Action: "delete", Path: model.CollectionPost + "/" + rkey}
	}

	return Commit{
		Seq:  seq,
		Repo: repo,
		Rev:  rkey,
		Time: now,
		Ops:  []Op{op},
	}
}

func (g *Generator) post(now time.Time) map[string]any {
	text := "synthetic post " + strconv.FormatInt(now.UnixNano(), 36)
	rec := map[string]any{
		"$type":     model.CollectionPost,
		"text":      text,
		"createdAt": now.Format(time.RFC3339Nano),
		"langs":     []string{"en"},
	}
	if randomInt(facetChance) == 0 {
		mention := g.actors[randomInt(len(g.actors))]
		rec["text"] = text + " @friend https://example.com"
		start := int64(len(text) + 1)
		rec["facets"] = []any{
			map[string]any{
				"index": map[string]any{"byteStart": start, "byteEnd": start + 7},
				"features": []any{
					map[string]any{"$type": model.FeatureMention, "did": mention},
				},
			},
			map[string]any{
				"index": map[string]any{"byteStart": start + 8, "byteEnd": start + 27},
				"features": []any{
					map[string]any{"$type": model.FeatureLink, "uri": "https://example.com"},
				},
			},
		}
	}
	if len(g.posts) > 0 && randomInt(replyChance) == 0 {
		ref := g.subject()
		rec["reply"] = map[string]any{"root": ref, "parent": ref}
	}
	return rec
}

func (g *Generator) subject() map[string]any {
	uri := g.posts[randomInt(len(g.posts))]
	return map[string]any{"uri": uri, "cid": "bafyreisynthetic"}
}

// tid returns a sortable record key derived from the clock.
func tid() string {
	return strconv.FormatInt(time.Now().UnixMicro(), 32) + strconv.Itoa(randomInt(1024))
}

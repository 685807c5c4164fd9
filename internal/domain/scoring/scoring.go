// Package scoring ranks the actors a user engages with most, from replies in
// their feed and likes in their repository.
package scoring

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/blueskyer/internal/domain/model"
	"github.com/okian/blueskyer/pkg/logger"
	"github.com/okian/blueskyer/pkg/metrics"
)

// Default scoring configuration constants.
const (
	DefaultReplyScore = 3
	DefaultLikeScore  = 1
	DefaultTopNodes   = 36
	DefaultBatchSize  = 25

	maxConcurrentBatches = 4
)

// ProfileLookup resolves DIDs to profiles. Profiles must come back in the
// order the DIDs were given.
type ProfileLookup interface {
	Profiles(ctx context.Context, dids []string) ([]model.ProfileViewDetailed, error)
}

// ProfileLookupFunc adapts a function to ProfileLookup.
type ProfileLookupFunc func(ctx context.Context, dids []string) ([]model.ProfileViewDetailed, error)

// Profiles calls fn.
func (fn ProfileLookupFunc) Profiles(ctx context.Context, dids []string) ([]model.ProfileViewDetailed, error) {
	return fn(ctx, dids)
}

// EngagementScorer aggregates reply and like signals into a ranked list of
// profiles. It holds no per-call state and is safe for concurrent use.
type EngagementScorer struct {
	lookup     ProfileLookup
	replyScore float64
	likeScore  float64
	topNodes   int
	batchSize  int
	logger     logger.Logger
}

// NewEngagementScorer creates a scorer with configuration options.
func NewEngagementScorer(lookup ProfileLookup, opts ...Option) *EngagementScorer {
	s := &EngagementScorer{
		lookup:     lookup,
		replyScore: DefaultReplyScore,
		likeScore:  DefaultLikeScore,
		topNodes:   DefaultTopNodes,
		batchSize:  DefaultBatchSize,
		logger:     logger.GetOr(logger.Nop()).Named("scoring"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// nodeSet keeps nodes in first-seen order with a DID index.
type nodeSet struct {
	nodes []model.EngagementNode
	index map[string]int
}

func (n *nodeSet) add(did string, score float64) {
	if i, ok := n.index[did]; ok {
		n.nodes[i].Score += score
		return
	}
	n.index[did] = len(n.nodes)
	n.nodes = append(n.nodes, model.EngagementNode{DID: did, Score: score})
}

// Nodes returns every engaged actor sorted by score, highest first. Equal
// scores keep first-seen order: replies in feed order, then likes.
func (s *EngagementScorer) Nodes(ctx context.Context, actor string, feed []model.FeedViewPost, likes []model.LikeRecord) []model.EngagementNode {
	set := nodeSet{index: make(map[string]int)}

	for i := range feed {
		author, ok := feed[i].ParentAuthor()
		if !ok || author.DID == actor || author.Handle == actor {
			continue
		}
		set.add(author.DID, s.replyScore)
	}

	for i := range likes {
		did, ok := model.ExtractDID(likes[i].Value.Subject.URI)
		if !ok {
			metrics.RecordMalformedLikeURI()
			s.logger.Debug(ctx, "like subject has no DID",
				logger.String("like", likes[i].URI),
				logger.String("subject", likes[i].Value.Subject.URI))
			continue
		}
		set.add(did, s.likeScore)
	}

	sort.SliceStable(set.nodes, func(i, j int) bool {
		return set.nodes[i].Score > set.nodes[j].Score
	})
	return set.nodes
}

// Rank scores actor's engagement, keeps the top nodes and resolves them to
// profiles carrying their score in Engagement.
func (s *EngagementScorer) Rank(ctx context.Context, actor string, feed []model.FeedViewPost, likes []model.LikeRecord) ([]model.ProfileViewDetailed, error) {
	start := time.Now()
	nodes := s.Nodes(ctx, actor, feed, likes)
	if len(nodes) > s.topNodes {
		nodes = nodes[:s.topNodes]
	}
	defer func() {
		metrics.RecordScoring(len(nodes), float64(time.Since(start).Milliseconds()))
	}()

	if len(nodes) == 0 {
		return []model.ProfileViewDetailed{}, nil
	}
	if s.lookup == nil {
		return nil, ErrNoLookup
	}

	batches := (len(nodes) + s.batchSize - 1) / s.batchSize
	results := make([][]model.ProfileViewDetailed, batches)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentBatches)
	for b := 0; b < batches; b++ {
		lo := b * s.batchSize
		hi := min(lo+s.batchSize, len(nodes))
		batch := nodes[lo:hi]
		g.Go(func() error {
			dids := make([]string, len(batch))
			for i := range batch {
				dids[i] = batch[i].DID
			}
			profiles, err := s.lookup.Profiles(gctx, dids)
			if err != nil {
				return fmt.Errorf("lookup profiles %d-%d: %w", lo, hi, err)
			}
			metrics.RecordProfileBatch(len(dids))
			results[b] = s.join(ctx, batch, profiles)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]model.ProfileViewDetailed, 0, len(nodes))
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

// join copies each node's score onto the profile at the same position.
func (s *EngagementScorer) join(ctx context.Context, nodes []model.EngagementNode, profiles []model.ProfileViewDetailed) []model.ProfileViewDetailed {
	n := len(nodes)
	if len(profiles) < n {
		s.logger.Warn(ctx, "profile join truncated",
			logger.Error(ErrProfileCount),
			logger.Int("requested", len(nodes)),
			logger.Int("returned", len(profiles)))
		n = len(profiles)
	}
	out := make([]model.ProfileViewDetailed, n)
	for i := 0; i < n; i++ {
		out[i] = profiles[i]
		out[i].Engagement = nodes[i].Score
	}
	return out
}

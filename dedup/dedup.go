package dedup

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/cse-security/phishmon/store/models"
)

var DefaultOpts = Opts{
	SimilarityThreshold:  0.85,
	ClusterEps:           0.5,
	ClusterMinPoints:     2,
	FallbackThreshold:    0.5,
	ClusterCorroboration: 0.6,
}

type Opts struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	ClusterEps          float64 `yaml:"cluster_eps"`
	ClusterMinPoints    int     `yaml:"cluster_min_points"`
	FallbackThreshold   float64 `yaml:"fallback_threshold"`

	// ClusterCorroboration is the minimum blended string similarity two
	// cluster-mates must share before the clustering pass links them.
	// Feature clusters group domains by structural shape, which alone is
	// too coarse to call two detections duplicates.
	ClusterCorroboration float64 `yaml:"cluster_corroboration"`
}

type Result struct {
	RunID       string
	Kept        []*models.Detection
	Deactivated []*models.Detection
	Clusters    int
}

func (r *Result) Stats() Stats {
	return Stats{
		Total:       len(r.Kept) + len(r.Deactivated),
		Kept:        len(r.Kept),
		Deactivated: len(r.Deactivated),
		Clusters:    r.Clusters,
	}
}

// Stats is an explicit snapshot of a deduplication run, passed around
// instead of being accumulated in package state.
type Stats struct {
	Total       int
	Kept        int
	Deactivated int
	Clusters    int
}

// Engine collapses equivalent detections. It must run as a single-writer
// batch job over a consistent snapshot of active detections: the exact,
// fuzzy and clustering passes all complete before the connected-components
// merge begins, and only the final decision phase mutates its input.
type Engine struct {
	opts Opts
	now  func() time.Time
}

func NewEngine(opts Opts) *Engine {
	if opts.SimilarityThreshold == 0 {
		opts.SimilarityThreshold = DefaultOpts.SimilarityThreshold
	}
	if opts.ClusterEps == 0 {
		opts.ClusterEps = DefaultOpts.ClusterEps
	}
	if opts.ClusterMinPoints == 0 {
		opts.ClusterMinPoints = DefaultOpts.ClusterMinPoints
	}
	if opts.FallbackThreshold == 0 {
		opts.FallbackThreshold = DefaultOpts.FallbackThreshold
	}
	if opts.ClusterCorroboration == 0 {
		opts.ClusterCorroboration = DefaultOpts.ClusterCorroboration
	}
	return &Engine{
		opts: opts,
		now:  time.Now,
	}
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Deduplicate partitions the detections into duplicate clusters and
// deactivates everything but one canonical survivor per cluster. The
// operation is idempotent: a second run over the kept output deactivates
// nothing further.
func (e *Engine) Deduplicate(detections []*models.Detection) Result {
	runID := uuid.New().String()
	res := Result{RunID: runID}

	byID := make(map[uint]*models.Detection, len(detections))
	for _, d := range detections {
		byID[d.ID] = d
	}

	if len(detections) < 2 {
		res.Kept = append(res.Kept, detections...)
		return res
	}

	// phase 1: evidence (read-only)
	exact := e.exactGroups(detections)
	fuzzy := e.fuzzyLinks(detections)
	clustered := e.clusterLinks(detections)
	log.Debug().
		Str("run", runID).
		Int("exact_groups", len(exact)).
		Int("fuzzy_links", len(fuzzy)).
		Int("cluster_links", len(clustered)).
		Msg("duplicate evidence collected")

	// phase 2: deterministic merge
	ds := NewDisjointSet()
	for _, d := range detections {
		ds.Add(d.ID)
	}
	for _, group := range exact {
		for _, id := range group[1:] {
			ds.Union(group[0], id)
		}
	}
	for _, l := range fuzzy {
		ds.Union(l.a, l.b)
	}
	for _, l := range clustered {
		ds.Union(l.a, l.b)
	}

	// phase 3: decision
	now := e.now()
	for _, group := range ds.Groups() {
		if len(group) < 2 {
			res.Kept = append(res.Kept, byID[group[0]])
			continue
		}

		members := make([]*models.Detection, 0, len(group))
		for _, id := range group {
			members = append(members, byID[id])
		}
		survivor := e.selectSurvivor(members)
		res.Kept = append(res.Kept, survivor)
		res.Clusters++

		for _, d := range members {
			if d.ID == survivor.ID {
				continue
			}
			d.Active = false
			dupOf := survivor.ID
			d.DuplicateOfID = &dupOf
			t := now
			d.DeduplicatedAt = &t
			d.UpdatedAt = now
			res.Deactivated = append(res.Deactivated, d)
		}
	}

	log.Info().
		Str("run", runID).
		Int("clusters", res.Clusters).
		Int("kept", len(res.Kept)).
		Int("deactivated", len(res.Deactivated)).
		Msg("deduplication complete")
	return res
}

func (e *Engine) exactGroups(detections []*models.Detection) [][]uint {
	byDomain := map[string][]uint{}
	var order []string
	for _, d := range detections {
		key := normalizeDomain(d.Domain)
		if _, ok := byDomain[key]; !ok {
			order = append(order, key)
		}
		byDomain[key] = append(byDomain[key], d.ID)
	}

	var groups [][]uint
	for _, key := range order {
		if ids := byDomain[key]; len(ids) > 1 {
			groups = append(groups, ids)
		}
	}
	return groups
}

type link struct {
	a, b       uint
	similarity float64
}

func (e *Engine) fuzzyLinks(detections []*models.Detection) []link {
	var links []link
	for i := 0; i < len(detections); i++ {
		for j := i + 1; j < len(detections); j++ {
			sim := blendedSimilarity(detections[i].Domain, detections[j].Domain)
			if sim >= e.opts.SimilarityThreshold {
				links = append(links, link{
					a:          detections[i].ID,
					b:          detections[j].ID,
					similarity: sim,
				})
			}
		}
	}
	return links
}

// clusterGroups runs the feature-space pass: density clustering proposes
// structurally similar candidates, the corroboration gate keeps only the
// pairs that also look alike as strings. Outliers never produce links.
func (e *Engine) clusterLinks(detections []*models.Detection) []link {
	points := make([][]float64, len(detections))
	for i, d := range detections {
		points[i] = featureVector(d.Domain)
	}

	labels, err := dbscan(points, e.opts.ClusterEps, e.opts.ClusterMinPoints)
	if err != nil {
		log.Warn().Msgf("density clustering failed (%s), falling back to hierarchical", err)
		labels = singleLinkage(points, e.opts.FallbackThreshold)
	}

	byLabel := map[int][]int{}
	for i, label := range labels {
		if label == noiseLabel {
			continue
		}
		byLabel[label] = append(byLabel[label], i)
	}

	labelOrder := make([]int, 0, len(byLabel))
	for label := range byLabel {
		labelOrder = append(labelOrder, label)
	}
	sort.Ints(labelOrder)

	var links []link
	for _, label := range labelOrder {
		members := byLabel[label]
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				a, b := detections[members[i]], detections[members[j]]
				sim := blendedSimilarity(a.Domain, b.Domain)
				if sim >= e.opts.ClusterCorroboration {
					links = append(links, link{a: a.ID, b: b.ID, similarity: sim})
				}
			}
		}
	}
	return links
}

// selectSurvivor picks the canonical detection for a cluster by a composite
// desirability score: risk score, a recency bonus decaying linearly over 30
// days, and small bonuses for captured artifacts and populated enrichment
// fields. Ties resolve to the oldest id.
func (e *Engine) selectSurvivor(members []*models.Detection) *models.Detection {
	now := e.now()

	best := members[0]
	bestScore := e.desirability(best, now)
	for _, d := range members[1:] {
		score := e.desirability(d, now)
		if score > bestScore || (score == bestScore && d.ID < best.ID) {
			best = d
			bestScore = score
		}
	}
	return best
}

func (e *Engine) desirability(d *models.Detection, now time.Time) float64 {
	score := d.RiskScore

	if !d.DetectedAt.IsZero() {
		days := now.Sub(d.DetectedAt).Hours() / 24
		bonus := (30 - days) / 30
		if bonus < 0 {
			bonus = 0
		}
		if bonus > 1 {
			bonus = 1
		}
		score += bonus
	}

	if d.ScreenshotPath != "" {
		score += 0.1
	}
	if d.EvidencePath != "" {
		score += 0.1
	}
	for _, field := range []string{d.Registrar, d.Registrant, d.IP, d.SSLIssuer} {
		if field != "" {
			score += 0.1
		}
	}
	return score
}

package ranking

import (
	"sort"
	"strings"
	"time"

	"github.com/onnwee/sparkfeed/internal/shuffle"
)

// Stage names reported in Report.Stages.
const (
	StageCompatibility = "compatibility"
	StageEvent         = "event"
	StageSerendipity   = "serendipity"
	StageDiversity     = "diversity"
)

// unknownBucketValue replaces a missing gender or city in diversity keys.
const unknownBucketValue = "unknown"

// Report describes what a single Rank call actually did.
type Report struct {
	// Stages lists the stages that ran, in execution order.
	Stages []string

	// Input and Output are the candidate counts entering and leaving the pipeline.
	Input  int
	Output int

	// EventDropped is the number of candidates removed by the event filter.
	EventDropped int

	// Seed is the serendipity seed, or 0 when serendipity did not run.
	Seed int

	// Buckets is the number of diversity buckets, or 0 when diversity did not run.
	Buckets int
}

// Result is the ranked list together with its Report.
type Result struct {
	Candidates []Candidate
	Report     Report
}

// Pipeline ranks candidates using a fixed set of Options.
// A Pipeline holds no mutable state and is safe for concurrent use.
type Pipeline struct {
	opts Options
}

// NewPipeline creates a Pipeline. A nil opts uses DefaultOptions.
func NewPipeline(opts *Options) *Pipeline {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Pipeline{opts: *opts}
}

// Options returns a copy of the pipeline's options.
func (p *Pipeline) Options() Options {
	return p.opts
}

// Rank ranks candidates with the default options.
func Rank(candidates []Candidate, filters FilterState, participants map[string]struct{}, viewerID string, now time.Time) []Candidate {
	return NewPipeline(nil).Rank(candidates, filters, participants, viewerID, now)
}

// Rank returns the candidates in feed order.
func (p *Pipeline) Rank(candidates []Candidate, filters FilterState, participants map[string]struct{}, viewerID string, now time.Time) []Candidate {
	return p.RankDetailed(candidates, filters, participants, viewerID, now).Candidates
}

// RankDetailed runs the pipeline and reports which stages ran.
// The input slice is never modified.
func (p *Pipeline) RankDetailed(candidates []Candidate, filters FilterState, participants map[string]struct{}, viewerID string, now time.Time) Result {
	list := make([]Candidate, len(candidates))
	copy(list, candidates)

	report := Report{Input: len(candidates)}

	if filters.SortByCompatibility {
		sortByCompatibility(list)
		report.Stages = append(report.Stages, StageCompatibility)
	}

	if filters.WantsEventScope() && len(participants) > 0 {
		before := len(list)
		list = filterByEvent(list, participants)
		report.EventDropped = before - len(list)
		report.Stages = append(report.Stages, StageEvent)
	}

	if filters.Serendipity {
		report.Seed = DailySeed(now, viewerID, p.opts.FallbackUserOffset)
		list = shuffleTail(list, p.opts.SerendipityHead, report.Seed)
		report.Stages = append(report.Stages, StageSerendipity)
	}

	if filters.Diversity {
		list, report.Buckets = interleaveBuckets(list)
		report.Stages = append(report.Stages, StageDiversity)
	}

	report.Output = len(list)
	return Result{Candidates: list, Report: report}
}

// sortByCompatibility sorts in place, highest score first, keeping ties in
// their incoming order.
func sortByCompatibility(list []Candidate) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Score() > list[j].Score()
	})
}

// filterByEvent keeps candidates whose id is in participants, preserving order.
func filterByEvent(list []Candidate, participants map[string]struct{}) []Candidate {
	kept := make([]Candidate, 0, len(list))
	for _, c := range list {
		if _, ok := participants[c.ID]; ok {
			kept = append(kept, c)
		}
	}
	return kept
}

// shuffleTail leaves the first head candidates in place and shuffles the rest.
func shuffleTail(list []Candidate, head, seed int) []Candidate {
	if head < 0 {
		head = 0
	}
	if len(list) <= head {
		return list
	}

	out := make([]Candidate, 0, len(list))
	out = append(out, list[:head]...)
	return append(out, shuffle.Shuffle(list[head:], seed)...)
}

// bucketKey groups candidates for diversity interleaving.
type bucketKey struct {
	gender string
	city   string
}

func keyFor(c Candidate) bucketKey {
	return bucketKey{
		gender: normalizeBucketValue(c.Gender),
		city:   normalizeBucketValue(c.City),
	}
}

func normalizeBucketValue(s string) string {
	if s == "" {
		return unknownBucketValue
	}
	return strings.ToLower(s)
}

// interleaveBuckets groups candidates by (gender, city) and emits them
// round-robin, visiting buckets in the order they were first seen.
// Returns the new order and the number of buckets.
func interleaveBuckets(list []Candidate) ([]Candidate, int) {
	var order []bucketKey
	buckets := make(map[bucketKey][]Candidate)
	for _, c := range list {
		k := keyFor(c)
		if _, seen := buckets[k]; !seen {
			order = append(order, k)
		}
		buckets[k] = append(buckets[k], c)
	}

	out := make([]Candidate, 0, len(list))
	for round := 0; len(out) < len(list); round++ {
		for _, k := range order {
			if b := buckets[k]; round < len(b) {
				out = append(out, b[round])
			}
		}
	}
	return out, len(order)
}

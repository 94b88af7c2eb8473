// Package ranking re-ranks and diversifies a batch of feed candidates.
//
// Basic Usage:
//
//	// Load calibration (typically at startup)
//	opts, err := ranking.LoadCalibration("configs/ranking.calibration.json")
//	if err != nil {
//		log.Warn("using default ranking options", "error", err)
//	}
//	pipeline := ranking.NewPipeline(opts)
//
//	filters := ranking.FilterState{
//		SortByCompatibility: true,
//		EventOnly:           true,
//		EventID:             "evt-42",
//		Serendipity:         true,
//		Diversity:           true,
//	}
//	ranked := pipeline.Rank(candidates, filters, participants, viewerID, time.Now())
//
// Stages:
//
// Stages always run in the same order and each one is a pass-through when its
// flag is off:
//
//  1. Compatibility sort: stable, descending, missing score counts as 0.
//  2. Event scope: keep only event participants. An empty participant set
//     leaves the list untouched so a slow or failed lookup never empties
//     the feed.
//  3. Serendipity: the first SerendipityHead candidates stay put and the
//     rest are shuffled with a seed derived from the UTC date and the
//     viewer id, giving one stable "surprise order" per viewer per day.
//  4. Diversity: round-robin across (gender, city) buckets in first-seen
//     order so no long run shares the same pairing.
//
// Every function here is pure. The caller supplies the clock, the viewer
// and the participant set, so the same inputs always give the same output.
package ranking

package ranking

// Candidate is the normalized view of a profile that the pipeline ranks.
// The pipeline reorders and filters candidates but never modifies them.
type Candidate struct {
	ID     string
	City   string
	Gender string

	// CompatibilityScore is an externally computed affinity in [0, 100].
	// Nil sorts as 0.
	CompatibilityScore *int

	// DistanceKm is the authoritative distance when the data source has one.
	DistanceKm *float64
}

// Score returns the compatibility score, treating a missing score as 0.
func (c Candidate) Score() int {
	if c.CompatibilityScore == nil {
		return 0
	}
	return *c.CompatibilityScore
}

// FilterState holds the viewer's feed toggles.
type FilterState struct {
	SortByCompatibility bool   `json:"sort_by_compatibility"`
	EventOnly           bool   `json:"event_only"`
	EventID             string `json:"event_id,omitempty"`
	Serendipity         bool   `json:"serendipity"`
	Diversity           bool   `json:"diversity"`
}

// WantsEventScope reports whether the event filter was requested with an event selected.
// Whether it actually applies also depends on the participant set.
func (f FilterState) WantsEventScope() bool {
	return f.EventOnly && f.EventID != ""
}

// NewIDSet builds a participant set from ids.
func NewIDSet(ids ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

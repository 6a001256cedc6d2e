package domain

// Segment keys in run order. Every segment map and every split derivation
// walks this slice, never map iteration order.
var SegmentOrder = []string{
	"nether_enter",
	"bastion_enter",
	"fortress_enter",
	"blind_portal",
	"stronghold_enter",
	"end_enter",
	"game_end",
}

var segmentDisplayNames = map[string]string{
	"nether_enter":     "Nether Enter",
	"bastion_enter":    "Bastion Enter",
	"fortress_enter":   "Fortress Enter",
	"blind_portal":     "Blind Portal",
	"stronghold_enter": "Stronghold Enter",
	"end_enter":        "End Enter",
	"game_end":         "Run Completion",
}

// SegmentDisplayName returns the human-readable name for a segment key,
// or the key itself if it is not part of the vocabulary.
func SegmentDisplayName(key string) string {
	if name, ok := segmentDisplayNames[key]; ok {
		return name
	}
	return key
}

func IsValidSegment(key string) bool {
	_, ok := segmentDisplayNames[key]
	return ok
}

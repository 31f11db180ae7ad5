package duplicates

import (
	"sort"

	"media-catalog/internal/database"
	"media-catalog/internal/media"
)

// DefaultMaxDistance is the largest Hamming distance reported as similar
// when the caller does not choose one.
const DefaultMaxDistance = 10

// Similarity grades a group.
type Similarity string

const (
	Exact  Similarity = "exact"
	High   Similarity = "high"
	Medium Similarity = "medium"
)

// Group is a set of items that look alike.
type Group struct {
	Hash            string               `json:"hash"`
	Similarity      Similarity           `json:"similarity"`
	HammingDistance int                  `json:"hammingDistance"`
	Items           []database.MediaItem `json:"items"`
}

// Stats summarises a Result.
type Stats struct {
	TotalGroups         int `json:"totalGroups"`
	TotalDuplicateItems int `json:"totalDuplicateItems"`
	ExactMatches        int `json:"exactMatches"`
	SimilarMatches      int `json:"similarMatches"`
}

// Result is the output of Find.
type Result struct {
	Groups []Group `json:"groups"`
	Stats  Stats   `json:"stats"`
}

// Grade maps a distance between hashes of bits bits to a Similarity: 0 is
// exact, up to 10% of the bits is high, anything further is medium.
func Grade(distance, bits int) Similarity {
	switch {
	case distance == 0:
		return Exact
	case bits > 0 && distance*10 <= bits:
		return High
	}
	return Medium
}

// Find groups items by visual hash. Items sharing a hash form an exact group.
// Each remaining item anchors a similar group with every later item within
// maxDistance that is not already grouped. Items without a hash are ignored.
//
// Groups are ordered exact first, then by size, then by distance.
func Find(items []database.MediaItem, maxDistance int) Result {
	if maxDistance < 0 {
		maxDistance = 0
	}

	var hashed []database.MediaItem
	byHash := make(map[string][]database.MediaItem)
	for _, it := range items {
		if it.VisualHash == "" {
			continue
		}
		if _, ok := byHash[it.VisualHash]; !ok {
			hashed = append(hashed, it)
		}
		byHash[it.VisualHash] = append(byHash[it.VisualHash], it)
	}

	res := Result{Groups: []Group{}}
	for _, it := range hashed {
		if g := byHash[it.VisualHash]; len(g) > 1 {
			res.Groups = append(res.Groups, Group{Hash: it.VisualHash, Similarity: Exact, Items: g})
			res.Stats.ExactMatches += len(g)
		}
	}

	grouped := make(map[string]bool)
	for i, anchor := range hashed {
		if len(byHash[anchor.VisualHash]) > 1 || grouped[anchor.VisualHash] {
			continue
		}
		members := []database.MediaItem{anchor}
		closest := -1
		for _, other := range hashed[i+1:] {
			if len(byHash[other.VisualHash]) > 1 || grouped[other.VisualHash] {
				continue
			}
			d := media.HammingDistance(anchor.VisualHash, other.VisualHash)
			if d < 0 || d > maxDistance {
				continue
			}
			members = append(members, other)
			if closest < 0 || d < closest {
				closest = d
			}
		}
		grouped[anchor.VisualHash] = true
		if len(members) < 2 {
			continue
		}
		for _, m := range members {
			grouped[m.VisualHash] = true
		}
		res.Groups = append(res.Groups, Group{
			Hash:            "similar_" + anchor.VisualHash,
			Similarity:      Grade(closest, len(anchor.VisualHash)*4),
			HammingDistance: closest,
			Items:           members,
		})
		res.Stats.SimilarMatches += len(members)
	}

	sort.SliceStable(res.Groups, func(i, j int) bool {
		a, b := res.Groups[i], res.Groups[j]
		if (a.Similarity == Exact) != (b.Similarity == Exact) {
			return a.Similarity == Exact
		}
		if len(a.Items) != len(b.Items) {
			return len(a.Items) > len(b.Items)
		}
		return a.HammingDistance < b.HammingDistance
	})

	res.Stats.TotalGroups = len(res.Groups)
	res.Stats.TotalDuplicateItems = res.Stats.ExactMatches + res.Stats.SimilarMatches
	return res
}

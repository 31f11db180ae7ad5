package duplicates

import (
	"strings"
	"testing"

	"media-catalog/internal/database"
)

// hash returns a 240-bit hash with the first n bits set.
func hash(n int) string {
	digits := []byte(strings.Repeat("0", 60))
	for i := 0; i < n/4; i++ {
		digits[i] = 'f'
	}
	if r := n % 4; r > 0 {
		digits[n/4] = "08ce"[r]
	}
	return string(digits)
}

func item(id int64, h string) database.MediaItem {
	return database.MediaItem{ID: id, VisualHash: h}
}

func ids(items []database.MediaItem) []int64 {
	out := make([]int64, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestGrade(t *testing.T) {
	t.Parallel()

	tests := []struct {
		distance, bits int
		want           Similarity
	}{
		{0, 240, Exact},
		{1, 240, High},
		{24, 240, High},
		{25, 240, Medium},
		{6, 64, High},
		{7, 64, Medium},
		{3, 0, Medium},
	}
	for _, tt := range tests {
		if got := Grade(tt.distance, tt.bits); got != tt.want {
			t.Errorf("Grade(%d, %d) = %s, want %s", tt.distance, tt.bits, got, tt.want)
		}
	}
}

func TestFind(t *testing.T) {
	t.Parallel()

	far := strings.Repeat("f", 60)
	items := []database.MediaItem{
		item(1, hash(0)),
		item(2, hash(0)),
		item(3, hash(40)),
		item(4, hash(43)),
		item(5, far),
		item(6, ""),
		item(7, hash(100)),
		item(8, hash(128)),
	}

	res := Find(items, 30)
	if len(res.Groups) != 3 {
		t.Fatalf("got %d groups, want 3: %+v", len(res.Groups), res.Groups)
	}

	exact := res.Groups[0]
	if exact.Similarity != Exact || exact.Hash != hash(0) || len(exact.Items) != 2 {
		t.Errorf("first group = %s %v, want exact pair", exact.Similarity, ids(exact.Items))
	}

	byAnchor := map[int64]Group{}
	for _, g := range res.Groups[1:] {
		byAnchor[g.Items[0].ID] = g
	}
	if g := byAnchor[3]; g.Similarity != High || g.HammingDistance != 3 || len(g.Items) != 2 || g.Items[1].ID != 4 {
		t.Errorf("group anchored at 3 = %s d=%d %v, want high d=3 [3 4]", g.Similarity, g.HammingDistance, ids(g.Items))
	}
	if g := byAnchor[7]; g.Similarity != Medium || g.HammingDistance != 28 || !strings.HasPrefix(g.Hash, "similar_") {
		t.Errorf("group anchored at 7 = %s d=%d %q, want medium d=28", g.Similarity, g.HammingDistance, g.Hash)
	}
	for _, g := range res.Groups {
		for _, it := range g.Items {
			if it.ID == 5 || it.ID == 6 {
				t.Errorf("item %d grouped, want it left out", it.ID)
			}
		}
	}

	want := Stats{TotalGroups: 3, TotalDuplicateItems: 6, ExactMatches: 2, SimilarMatches: 4}
	if res.Stats != want {
		t.Errorf("Stats = %+v, want %+v", res.Stats, want)
	}
}

func TestFindOrdering(t *testing.T) {
	t.Parallel()

	items := []database.MediaItem{
		item(1, hash(200)),
		item(2, hash(205)),
		item(3, hash(0)),
		item(4, hash(2)),
		item(5, hash(3)),
		item(6, hash(100)),
		item(7, hash(100)),
	}
	res := Find(items, 5)
	if len(res.Groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(res.Groups))
	}
	if res.Groups[0].Similarity != Exact {
		t.Errorf("first group is %s, want exact", res.Groups[0].Similarity)
	}
	if n := len(res.Groups[1].Items); n != 3 {
		t.Errorf("second group has %d items, want the larger similar group", n)
	}
	if got := ids(res.Groups[2].Items); len(got) != 2 || got[0] != 1 {
		t.Errorf("third group = %v, want [1 2]", got)
	}
}

func TestFindEmpty(t *testing.T) {
	t.Parallel()

	res := Find(nil, DefaultMaxDistance)
	if res.Groups == nil || len(res.Groups) != 0 || res.Stats != (Stats{}) {
		t.Errorf("Find(nil) = %+v, want no groups", res)
	}
	if res := Find([]database.MediaItem{item(1, hash(0)), item(2, hash(1))}, -3); len(res.Groups) != 0 {
		t.Errorf("negative distance grouped %+v", res.Groups)
	}
}

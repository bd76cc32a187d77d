package services

import (
	"math"
	"sort"
	"strings"

	"rental-insights/models"
)

// AmenityResolver maps free-text amenity names onto the canonical vocabulary:
// exact match first, then the most similar canonical name if its similarity
// exceeds the threshold. Each distinct input name is resolved once.
type AmenityResolver struct {
	threshold int
	byName    map[string]int64
	canonical []models.NamedRef

	cache      map[string]int64
	unresolved map[string]int
}

// NewAmenityResolver creates a resolver over the loaded Amenities rows
func NewAmenityResolver(amenities []models.NamedRef, threshold int) *AmenityResolver {
	r := &AmenityResolver{
		threshold:  threshold,
		byName:     make(map[string]int64, len(amenities)),
		canonical:  amenities,
		cache:      make(map[string]int64),
		unresolved: make(map[string]int),
	}
	for _, a := range amenities {
		r.byName[a.Name] = a.ID
	}
	return r
}

// Resolve returns the canonical amenity id for name
func (r *AmenityResolver) Resolve(name string) (int64, bool) {
	name = strings.ToValidUTF8(name, "\uFFFD")
	if id, ok := r.cache[name]; ok {
		return id, id != 0
	}

	id, ok := r.byName[name]
	if !ok {
		best := 0
		for _, a := range r.canonical {
			if score := Similarity(name, a.Name); score > best {
				best, id = score, a.ID
			}
		}
		if best <= r.threshold {
			id = 0
		}
	}
	r.cache[name] = id
	return id, id != 0
}

// ResolveAll resolves one listing's amenity list into distinct ids.
// Names that match nothing are counted as unresolved.
func (r *AmenityResolver) ResolveAll(names []string) []int64 {
	seen := make(map[int64]bool, len(names))
	var ids []int64
	for _, n := range names {
		id, ok := r.Resolve(n)
		if !ok {
			r.unresolved[strings.ToValidUTF8(n, "\uFFFD")]++
			continue
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// Unresolved returns the dropped names, most frequent first
func (r *AmenityResolver) Unresolved() []UnresolvedAmenityWarning {
	out := make([]UnresolvedAmenityWarning, 0, len(r.unresolved))
	for name, n := range r.unresolved {
		out = append(out, UnresolvedAmenityWarning{Name: name, Occurrences: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Occurrences != out[j].Occurrences {
			return out[i].Occurrences > out[j].Occurrences
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Similarity is the 0-100 indel ratio 100*(|a|+|b|-indel)/(|a|+|b|), where
// indel counts the insertions and deletions turning a into b
func Similarity(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 100
	}
	matched := 2 * commonSubsequence(ra, rb)
	return int(math.RoundToEven(100 * float64(matched) / float64(total)))
}

// commonSubsequence is the length of the longest common subsequence of a and b
func commonSubsequence(a, b []rune) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for _, x := range a {
		for j, y := range b {
			if x == y {
				cur[j+1] = prev[j] + 1
			} else {
				cur[j+1] = max(prev[j+1], cur[j])
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

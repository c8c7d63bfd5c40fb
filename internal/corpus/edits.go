package corpus

import (
	"fmt"

	"horse.fit/corpus/internal/db"
)

// Verdict classifies an incoming post relative to the day partition.
type Verdict int

const (
	// VerdictNew: natural key unseen this run, persist as-is.
	VerdictNew Verdict = iota
	// VerdictDuplicate: pristine copy of the stored current version, drop.
	VerdictDuplicate
	// VerdictMinorUpdate: update the stored post in place.
	VerdictMinorUpdate
	// VerdictNewVersion: persist as a new content version of the natural key.
	VerdictNewVersion
)

func (v Verdict) String() string {
	switch v {
	case VerdictNew:
		return "new"
	case VerdictDuplicate:
		return "duplicate"
	case VerdictMinorUpdate:
		return "minor_update"
	case VerdictNewVersion:
		return "new_version"
	default:
		return "unknown"
	}
}

// Resolver decides, per incoming post, whether it is new, an exact duplicate,
// a minor update, or a new content version of a post already in the
// partition. Pure decision component: it never mutates posts or the store.
type Resolver struct {
	policy EditPolicy
	seen   map[string]struct{}
}

// NewResolver seeds the seen-set with the natural keys already present in the
// day partition.
func NewResolver(policy EditPolicy, day *Day) *Resolver {
	seen := make(map[string]struct{})
	if day != nil {
		for _, post := range day.Posts() {
			if post.ShortLink != "" && !post.IsMeta() {
				seen[post.ShortLink] = struct{}{}
			}
		}
	}
	return &Resolver{policy: policy, seen: seen}
}

// Resolve classifies incoming against the partition's current version of its
// natural key, returning the verdict and the existing post when one matched.
// Posts without a natural key must be rejected by validation before they
// reach the resolver; encountering one here is an error, not a verdict.
func (r *Resolver) Resolve(incoming *db.Post, day *Day) (Verdict, *db.Post, error) {
	if incoming == nil {
		return VerdictNew, nil, fmt.Errorf("incoming post is nil")
	}
	key := incoming.ShortLink
	if key == "" {
		return VerdictNew, nil, fmt.Errorf("incoming post has no natural key")
	}

	if _, ok := r.seen[key]; !ok {
		r.seen[key] = struct{}{}
		return VerdictNew, nil, nil
	}

	existing := day.Lookup(key)
	if existing == nil {
		// Key is registered but the current version is not loadable; deciding
		// against a missing baseline is unsafe, so the caller must skip.
		return VerdictNew, nil, fmt.Errorf("no current version loaded for %q", key)
	}

	pristine := !r.changed(incoming, existing, allProbeNames(), r.policy.PristineThreshold)
	if pristine {
		return VerdictDuplicate, existing, nil
	}
	if r.changed(incoming, existing, r.policy.NewVersionFields, r.policy.NewVersionThreshold) {
		return VerdictNewVersion, existing, nil
	}
	return VerdictMinorUpdate, existing, nil
}

func allProbeNames() []string {
	names := make([]string, 0, len(postProbes))
	for _, probe := range postProbes {
		names = append(names, probe.name)
	}
	return names
}

// changed reports whether any of the named fields differ between the two
// posts, honoring the exclusion set and the exact-vs-Jaccard policy.
func (r *Resolver) changed(src, existing *db.Post, fields []string, threshold float64) bool {
	for _, name := range fields {
		if _, excluded := r.policy.ExcludedFields[name]; excluded {
			continue
		}
		probe, ok := probeByName(name)
		if !ok {
			continue
		}

		if probe.scalar != nil {
			if probe.scalar(src) != probe.scalar(existing) {
				return true
			}
			continue
		}

		if listChanged(probe.list(src), probe.list(existing), src.Keywords, existing.Keywords, threshold) {
			return true
		}
	}
	return false
}

// listChanged compares list-valued fields. With a threshold configured the
// looseness measure is the Jaccard similarity of the two keyword token sets,
// invoked only when both sets are non-empty (Jaccard is undefined otherwise).
func listChanged(src, existing, srcKeywords, existingKeywords []string, threshold float64) bool {
	if threshold > 0 && len(srcKeywords) > 0 && len(existingKeywords) > 0 {
		return jaccard(srcKeywords, existingKeywords) < threshold
	}
	return !sameSet(src, existing)
}

func sameSet(a, b []string) bool {
	setA := make(map[string]struct{}, len(a))
	for _, v := range a {
		setA[v] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, v := range b {
		setB[v] = struct{}{}
	}
	if len(setA) != len(setB) {
		return false
	}
	for v := range setA {
		if _, ok := setB[v]; !ok {
			return false
		}
	}
	return true
}

// jaccard computes intersection over union of the token sets. Callers must
// guarantee both sets are non-empty.
func jaccard(a, b []string) float64 {
	union := make(map[string]struct{}, len(a)+len(b))
	setA := make(map[string]struct{}, len(a))
	for _, v := range a {
		setA[v] = struct{}{}
		union[v] = struct{}{}
	}
	intersection := 0
	seenB := make(map[string]struct{}, len(b))
	for _, v := range b {
		if _, dup := seenB[v]; dup {
			continue
		}
		seenB[v] = struct{}{}
		union[v] = struct{}{}
		if _, ok := setA[v]; ok {
			intersection++
		}
	}
	return float64(intersection) / float64(len(union))
}

package nlp

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"horse.fit/corpus/internal/corpus"
)

// TFIDF vectorizes a corpus of texts once and answers cosine-similarity
// queries against the snapshot. Deterministic for a fixed corpus: ties break
// on ascending document index.
type TFIDF struct {
	vectors []map[int]float64
	words   int
}

// NewTFIDF builds the index over the ordered corpus. Empty texts produce
// empty vectors and never match anything.
func NewTFIDF(texts []string) *TFIDF {
	t := &TFIDF{vectors: make([]map[int]float64, len(texts))}

	terms := make(map[string]int)
	counts := make([]map[int]int, len(texts))
	df := make(map[int]int)

	for i, text := range texts {
		tokens := tokenize(text)
		t.words += len(tokens)

		count := make(map[int]int, len(tokens))
		for _, token := range tokens {
			id, ok := terms[token]
			if !ok {
				id = len(terms)
				terms[token] = id
			}
			count[id]++
		}
		counts[i] = count
		for id := range count {
			df[id]++
		}
	}

	n := float64(len(texts))
	for i, count := range counts {
		vector := make(map[int]float64, len(count))
		var norm float64
		for id, tf := range count {
			idf := math.Log((1+n)/(1+float64(df[id]))) + 1
			w := float64(tf) * idf
			vector[id] = w
			norm += w * w
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for id := range vector {
				vector[id] /= norm
			}
		}
		t.vectors[i] = vector
	}

	return t
}

func (t *TFIDF) NumDocs() int { return len(t.vectors) }

// CorpusWords is the token count of the whole indexed corpus.
func (t *TFIDF) CorpusWords() int { return t.words }

// SimilarTo returns every other document whose cosine similarity with doc is
// at least threshold, ranked by descending score, capped at topN.
func (t *TFIDF) SimilarTo(doc int, threshold float64, topN int) []corpus.IndexScore {
	if doc < 0 || doc >= len(t.vectors) || topN <= 0 {
		return nil
	}

	source := t.vectors[doc]
	matches := make([]corpus.IndexScore, 0, topN)
	for j, other := range t.vectors {
		if j == doc {
			continue
		}
		score := dot(source, other)
		if score >= threshold && score > 0 {
			matches = append(matches, corpus.IndexScore{Index: j, Score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Index < matches[j].Index
	})
	if len(matches) > topN {
		matches = matches[:topN]
	}
	return matches
}

func dot(a, b map[int]float64) float64 {
	if len(b) < len(a) {
		a, b = b, a
	}
	var sum float64
	for id, w := range a {
		sum += w * b[id]
	}
	return sum
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, field := range fields {
		if len(field) > 1 {
			tokens = append(tokens, field)
		}
	}
	return tokens
}

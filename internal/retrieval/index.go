// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package retrieval implements a classical TF-IDF index over historical
// selections. The index is rebuilt from the selection ledger and queried with
// cosine similarity to surface past requests resembling the current one.
package retrieval

import (
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/traylinx/skillrouter/internal/scoring"
)

// Document is one indexable historical selection.
type Document struct {
	// ID uniquely identifies the document. Ties in query score are broken
	// by ascending ID so results are deterministic.
	ID string

	// Text is the raw request text the selection was made for.
	Text string

	// TargetType is the chosen route kind, "skill" or "agent".
	TargetType string

	// TargetName is the chosen skill or agent name.
	TargetName string

	// Confidence is the confidence the selection was recorded with.
	Confidence float64
}

// Match is one ranked query result.
type Match struct {
	Document Document

	// Score is the cosine similarity in [0,1].
	Score float64
}

// indexedDoc holds the precomputed L2-normalized term vector for a document.
type indexedDoc struct {
	doc    Document
	vector map[string]float64
}

// Index is a TF-IDF retrieval index. Build with AddDocuments then Finalize;
// after Finalize the index is immutable and queries are safe for concurrent
// use. The engine swaps in a freshly built index on rebuild rather than
// mutating a live one.
type Index struct {
	mu        sync.RWMutex
	pending   []Document
	docs      []indexedDoc
	idf       map[string]float64
	finalized bool
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{idf: map[string]float64{}}
}

// AddDocuments queues documents for indexing. Calling after Finalize is a
// no-op; build a new index instead.
func (ix *Index) AddDocuments(docs ...Document) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.finalized {
		return
	}
	ix.pending = append(ix.pending, docs...)
}

// Finalize computes document frequencies, builds the augmented TF-IDF vector
// for every document, and L2-normalizes it. After Finalize the index only
// serves queries.
func (ix *Index) Finalize() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.finalized {
		return
	}
	ix.finalized = true

	n := len(ix.pending)
	if n == 0 {
		return
	}

	// Document frequency per term.
	df := map[string]int{}
	tokenized := make([]map[string]int, n)
	for i, doc := range ix.pending {
		counts := termCounts(doc.Text)
		tokenized[i] = counts
		for term := range counts {
			df[term]++
		}
	}

	ix.idf = make(map[string]float64, len(df))
	for term, freq := range df {
		ix.idf[term] = math.Log(1.0 + float64(n)/float64(1+freq))
	}

	ix.docs = make([]indexedDoc, 0, n)
	for i, doc := range ix.pending {
		vector := ix.weightedVector(tokenized[i])
		if len(vector) == 0 {
			continue
		}
		ix.docs = append(ix.docs, indexedDoc{doc: doc, vector: vector})
	}
	ix.pending = nil
}

// Size returns the number of finalized documents.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// Query returns up to limit documents ranked by cosine similarity against
// text, dropping results below minScore. An empty corpus or an empty query
// returns an empty slice, never an error. Ordering is deterministic: score
// descending, then document ID ascending.
func (ix *Index) Query(text string, limit int, minScore float64) []Match {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if !ix.finalized || len(ix.docs) == 0 || limit <= 0 {
		return nil
	}

	query := ix.weightedVector(termCounts(text))
	if len(query) == 0 {
		return nil
	}

	matches := make([]Match, 0, len(ix.docs))
	for _, d := range ix.docs {
		score := dot(query, d.vector)
		if score < minScore || score <= 0 {
			continue
		}
		matches = append(matches, Match{Document: d.doc, Score: score})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Document.ID < matches[j].Document.ID
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// weightedVector builds the L2-normalized augmented TF-IDF vector for the
// given term counts. Terms absent from the corpus vocabulary carry zero
// weight and are dropped.
func (ix *Index) weightedVector(counts map[string]int) map[string]float64 {
	if len(counts) == 0 {
		return nil
	}

	maxTF := 0
	for _, c := range counts {
		if c > maxTF {
			maxTF = c
		}
	}

	vector := make(map[string]float64, len(counts))
	var norm float64
	for term, count := range counts {
		idf, known := ix.idf[term]
		if !known {
			continue
		}
		// Augmented term frequency guards against long-document bias.
		tf := 0.5 + 0.5*float64(count)/float64(maxTF)
		w := tf * idf
		vector[term] = w
		norm += w * w
	}
	if norm == 0 {
		return nil
	}

	norm = math.Sqrt(norm)
	for term := range vector {
		vector[term] /= norm
	}
	return vector
}

// termCounts tokenizes text with the shared scoring normalization and counts
// term occurrences.
func termCounts(text string) map[string]int {
	fields := strings.Fields(scoring.Normalize(text))
	if len(fields) == 0 {
		return nil
	}
	counts := make(map[string]int, len(fields))
	for _, f := range fields {
		counts[f]++
	}
	return counts
}

// dot computes the dot product of two sparse vectors. Both are normalized, so
// the result is the cosine similarity.
func dot(a, b map[string]float64) float64 {
	if len(b) < len(a) {
		a, b = b, a
	}
	var sum float64
	for term, w := range a {
		sum += w * b[term]
	}
	return sum
}

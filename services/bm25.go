package services

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"docqa-platform/models"
)

// KeywordIndex scores chunks against a query with BM25. The corpus is built
// from the metadata store and cached per scope; writes invalidate the cache
// and a TTL backstops missed invalidations.
type KeywordIndex struct {
	store      MetadataStore
	k1         float64
	b          float64
	ttl        time.Duration
	filterStop bool

	mu    sync.RWMutex
	cache map[string]*bm25Corpus // keyed by upload scope, "" = all uploads
}

// NewKeywordIndex creates a KeywordIndex with the given BM25 parameters.
// filterStopwords drops common English stopwords from both corpus and query
// tokens; it is off by default.
func NewKeywordIndex(store MetadataStore, k1, b float64, cacheTTL time.Duration, filterStopwords bool) *KeywordIndex {
	return &KeywordIndex{
		store:      store,
		k1:         k1,
		b:          b,
		ttl:        cacheTTL,
		filterStop: filterStopwords,
		cache:      map[string]*bm25Corpus{},
	}
}

// KeywordHit is one BM25 result.
type KeywordHit struct {
	ChunkID    string
	DocumentID string
	Score      float64
	Content    string
	PageNumber *int
}

type bm25Doc struct {
	chunkID    string
	documentID string
	pageNumber *int
	content    string
	terms      map[string]int
	length     int
}

type bm25Corpus struct {
	docs    []bm25Doc
	df      map[string]int
	avgLen  float64
	builtAt time.Time
}

// Invalidate drops all cached corpora. Call after any chunk write or delete.
func (k *KeywordIndex) Invalidate() {
	k.mu.Lock()
	k.cache = map[string]*bm25Corpus{}
	k.mu.Unlock()
}

// Search returns the topK best-scoring chunks for the query within the
// upload scope. Chunks that match no query term are not returned.
func (k *KeywordIndex) Search(ctx context.Context, query, uploadID string, topK int) ([]KeywordHit, error) {
	terms := tokenizeQuery(query, k.filterStop)
	if len(terms) == 0 {
		return nil, nil
	}

	corpus, err := k.corpusFor(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if len(corpus.docs) == 0 {
		return nil, nil
	}

	n := float64(len(corpus.docs))
	var hits []KeywordHit
	for _, doc := range corpus.docs {
		score := 0.0
		for _, term := range terms {
			tf := float64(doc.terms[term])
			if tf == 0 {
				continue
			}
			df := float64(corpus.df[term])
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			norm := k.k1 * (1 - k.b + k.b*float64(doc.length)/corpus.avgLen)
			score += idf * tf * (k.k1 + 1) / (tf + norm)
		}
		if score > 0 {
			hits = append(hits, KeywordHit{
				ChunkID:    doc.chunkID,
				DocumentID: doc.documentID,
				Score:      score,
				Content:    doc.content,
				PageNumber: doc.pageNumber,
			})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (k *KeywordIndex) corpusFor(ctx context.Context, uploadID string) (*bm25Corpus, error) {
	k.mu.RLock()
	corpus, ok := k.cache[uploadID]
	k.mu.RUnlock()
	if ok && time.Since(corpus.builtAt) < k.ttl {
		return corpus, nil
	}

	chunks, err := k.store.ListChunksForCorpus(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	corpus = buildCorpus(chunks, k.filterStop)

	k.mu.Lock()
	k.cache[uploadID] = corpus
	k.mu.Unlock()

	slog.Debug("keyword corpus rebuilt", "scope", uploadID, "chunks", len(chunks))
	return corpus, nil
}

func buildCorpus(chunks []models.Chunk, filterStop bool) *bm25Corpus {
	corpus := &bm25Corpus{df: map[string]int{}, builtAt: time.Now()}
	totalLen := 0
	for _, ch := range chunks {
		tokens := tokenizeText(ch.Content, filterStop)
		doc := bm25Doc{
			chunkID:    ch.ID,
			documentID: ch.DocumentID,
			pageNumber: ch.PageNumber,
			content:    ch.Content,
			terms:      map[string]int{},
			length:     len(tokens),
		}
		for _, tok := range tokens {
			doc.terms[tok]++
		}
		for term := range doc.terms {
			corpus.df[term]++
		}
		totalLen += doc.length
		corpus.docs = append(corpus.docs, doc)
	}
	if len(corpus.docs) > 0 {
		corpus.avgLen = float64(totalLen) / float64(len(corpus.docs))
	}
	return corpus
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "for": {}, "if": {}, "in": {}, "into": {}, "is": {},
	"it": {}, "no": {}, "not": {}, "of": {}, "on": {}, "or": {}, "such": {},
	"that": {}, "the": {}, "their": {}, "then": {}, "there": {}, "these": {},
	"they": {}, "this": {}, "to": {}, "was": {}, "will": {}, "with": {},
}

func tokenizeText(text string, filterStop bool) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if !filterStop {
		return fields
	}
	out := fields[:0]
	for _, f := range fields {
		if _, stop := stopwords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}

// tokenizeQuery deduplicates query terms so repeated words do not double
// their contribution.
func tokenizeQuery(query string, filterStop bool) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, tok := range tokenizeText(query, filterStop) {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

package services

import (
	"sort"
	"strings"
	"unicode"

	"github.com/surajweb2603/ai-course-sub000/internal/models"
)

// RelevanceThresholds are the tunable weights and cut-offs of the scorer.
type RelevanceThresholds struct {
	ExactWeight     int
	CoreWeight      int
	TermWeight      int
	EduWeight       int
	MajorityBonus   int
	LiteralMinScore int
	MinScore        int
}

var DefaultRelevanceThresholds = RelevanceThresholds{
	ExactWeight:     2,
	CoreWeight:      3,
	TermWeight:      1,
	EduWeight:       1,
	MajorityBonus:   2,
	LiteralMinScore: 3,
	MinScore:        5,
}

type topicCategory struct {
	name     string
	keywords []string // detect the category in a query
	terms    []string // technical vocabulary credited in candidates
	// signature terms are specific enough that one hit accepts a candidate
	// regardless of score. Broad words belong in terms only.
	signature []string
}

var topicCategories = []topicCategory{
	{
		name:      "blockchain",
		keywords:  []string{"blockchain", "web3", "crypto", "cryptocurrency", "bitcoin", "ethereum", "smart contract", "nft", "defi"},
		terms:     []string{"blockchain", "ledger", "block", "hash", "consensus", "token", "wallet", "smart contract", "ethereum", "bitcoin", "solidity", "mining", "decentralized", "web3"},
		signature: []string{"blockchain", "distributed ledger", "ledger", "smart contract", "consensus algorithm", "consensus mechanism", "proof of work", "proof of stake", "merkle", "solidity", "ethereum", "bitcoin", "web3"},
	},
	{
		name:      "ml-ai",
		keywords:  []string{"machine learning", "deep learning", "neural network", "artificial intelligence", "ai", "ml", "llm", "nlp", "computer vision"},
		terms:     []string{"neural network", "model", "training", "dataset", "gradient", "layer", "neuron", "classification", "regression", "transformer", "machine learning", "deep learning", "inference", "ai"},
		signature: []string{"neural network", "gradient descent", "backpropagation", "machine learning", "deep learning", "perceptron", "convolutional", "activation function", "loss function"},
	},
	{
		name:      "database",
		keywords:  []string{"database", "sql", "nosql", "postgres", "postgresql", "mysql", "mongodb", "query", "schema", "index"},
		terms:     []string{"table", "query", "index", "schema", "join", "sql", "primary key", "foreign key", "transaction", "normalization", "database", "er diagram", "relational"},
		signature: []string{"sql", "primary key", "foreign key", "er diagram", "entity relationship", "relational database", "database schema", "normalization", "database"},
	},
	{
		name:     "programming",
		keywords: []string{"programming", "code", "coding", "python", "javascript", "java", "golang", "algorithm", "data structure", "tree", "trees", "array", "function", "recursion", "software"},
		terms:    []string{"code", "function", "variable", "loop", "class", "object", "algorithm", "syntax", "compiler", "array", "node", "tree", "stack", "queue", "recursion", "pointer", "diagram"},
	},
	{
		name:     "data-science",
		keywords: []string{"data science", "statistics", "analytics", "visualization", "pandas", "regression", "probability"},
		terms:    []string{"chart", "graph", "distribution", "dataset", "plot", "histogram", "correlation", "mean", "variance", "regression", "visualization"},
	},
	{
		name:     "business",
		keywords: []string{"business", "marketing", "management", "finance", "accounting", "economics", "strategy", "sales"},
		terms:    []string{"strategy", "market", "revenue", "profit", "customer", "framework", "model", "analysis", "growth", "finance", "chart"},
	},
	{
		name:     "science",
		keywords: []string{"physics", "chemistry", "biology", "science", "astronomy", "geology", "cell", "atom", "energy"},
		terms:    []string{"experiment", "molecule", "atom", "cell", "energy", "force", "reaction", "diagram", "structure", "theory", "equation"},
	},
	{
		name:     "design",
		keywords: []string{"design", "ux", "ui", "typography", "color theory", "figma", "layout", "branding"},
		terms:    []string{"layout", "typography", "color", "wireframe", "prototype", "interface", "grid", "mockup", "user experience"},
	},
}

var educationalTerms = []string{
	"tutorial", "example", "diagram", "infographic", "explained", "guide", "course", "lesson",
	"learn", "learning", "introduction", "overview", "illustration", "chart", "lecture", "education", "beginner",
}

// Candidates with these are noise unless they literally match the query.
var noiseTerms = []string{"meme", "poster", "wallpaper", "sticker", "shirt", "mug", "funny", "clipart", "stock photo"}

// Off-topic domains. A hit rejects the candidate unless the query itself
// belongs to that domain.
var deniedDomains = map[string][]string{
	"agriculture":   {"agriculture", "farm", "farming", "crop", "crops", "tractor", "harvest", "livestock", "fertilizer"},
	"medical":       {"medical", "surgery", "hospital", "patient", "clinic", "disease", "symptom", "symptoms", "dental"},
	"entertainment": {"movie", "film", "trailer", "celebrity", "concert", "actor", "actress", "netflix", "episode", "anime"},
}

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "of": true, "in": true, "on": true, "to": true,
	"for": true, "with": true, "by": true, "is": true, "are": true, "how": true, "what": true, "why": true,
	"from": true, "at": true, "as": true, "into": true, "your": true, "you": true, "its": true, "it": true,
	"this": true, "that": true, "be": true, "using": true, "vs": true, "about": true,
}

// RelevanceResult explains one scoring decision.
type RelevanceResult struct {
	Score    int
	Literal  bool
	Accepted bool
	Reason   string
}

// RelevanceScorer judges whether search results fit an educational query.
type RelevanceScorer struct {
	T RelevanceThresholds
}

func NewRelevanceScorer(t RelevanceThresholds) *RelevanceScorer {
	return &RelevanceScorer{T: t}
}

// Score rates candidate c against query. The score never decreases when
// text containing a query term is added to the candidate.
func (s *RelevanceScorer) Score(query string, c models.SearchCandidate) RelevanceResult {
	terms := queryTerms(query)
	text := normalizedText(c.Title, c.Snippet, strings.Join(c.Tags, " "))
	normQuery := normalizedText(query)

	var res RelevanceResult

	exact := 0
	for _, term := range terms {
		if containsPhrase(text, term) {
			exact++
		}
	}
	res.Literal = exact > 0
	res.Score += s.T.ExactWeight * exact

	cat := detectCategory(normQuery)
	if cat != nil {
		if containsAny(text, cat.keywords) {
			res.Score += s.T.CoreWeight
		}
		for _, term := range cat.terms {
			if containsPhrase(text, term) {
				res.Score += s.T.TermWeight
			}
		}
	} else if core := distinctiveTerms(terms, 2); len(core) > 0 && containsAny(text, core) {
		res.Score += s.T.CoreWeight
	}

	if containsAny(text, educationalTerms) {
		res.Score += s.T.EduWeight
	}

	if len(terms) > 0 && exact*2 > len(terms) {
		res.Score += s.T.MajorityBonus
	}

	for domain, words := range deniedDomains {
		if containsAny(text, words) && !containsAny(normQuery, words) {
			res.Reason = "off-topic domain: " + domain
			return res
		}
	}

	if !res.Literal && containsAny(text, noiseTerms) {
		res.Reason = "noise term without query match"
		return res
	}

	if cat != nil && containsAny(text, cat.signature) {
		res.Accepted = true
		res.Reason = "recognized " + cat.name + " vocabulary"
		return res
	}

	switch {
	case res.Literal && res.Score >= s.T.LiteralMinScore:
		res.Accepted = true
		res.Reason = "literal match"
	case res.Score >= s.T.MinScore:
		res.Accepted = true
		res.Reason = "topical score"
	default:
		res.Reason = "score below threshold"
	}
	return res
}

// AcceptVideo applies the image contract to a video, and also accepts a
// partial topic match in the title.
func (s *RelevanceScorer) AcceptVideo(topic, title, description string) bool {
	res := s.Score(topic, models.SearchCandidate{Title: title, Snippet: description})
	if res.Accepted {
		return true
	}
	if strings.HasPrefix(res.Reason, "off-topic") || strings.HasPrefix(res.Reason, "noise") {
		return false
	}

	titleText := normalizedText(title)
	for _, term := range queryTerms(topic) {
		if len(term) >= 5 && strings.Contains(titleText, term[:len(term)-1]) {
			return true
		}
	}
	return false
}

// Rank scores, filters and orders candidates best first, keeping at most n.
func (s *RelevanceScorer) Rank(query string, cands []models.SearchCandidate, n int) []models.SearchCandidate {
	var out []models.SearchCandidate
	for _, c := range cands {
		res := s.Score(query, c)
		if !res.Accepted {
			continue
		}
		c.Score = res.Score
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '+' || r == '#')
	})
}

// normalizedText joins tokens with single spaces and pads every part so
// phrases match on word boundaries and never span two parts.
func normalizedText(parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(" ")
		b.WriteString(strings.Join(tokenize(p), " "))
		b.WriteString(" ")
	}
	return b.String()
}

func containsPhrase(norm, phrase string) bool {
	return strings.Contains(norm, " "+phrase+" ")
}

func containsAny(norm string, phrases []string) bool {
	for _, p := range phrases {
		if containsPhrase(norm, p) {
			return true
		}
	}
	return false
}

func queryTerms(query string) []string {
	seen := map[string]bool{}
	var out []string
	for _, tok := range tokenize(query) {
		if len(tok) < 2 || stopwords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

func detectCategory(normQuery string) *topicCategory {
	for i := range topicCategories {
		if containsAny(normQuery, topicCategories[i].keywords) {
			return &topicCategories[i]
		}
	}
	return nil
}

// distinctiveTerms picks the n longest terms, ties kept in query order.
func distinctiveTerms(terms []string, n int) []string {
	sorted := append([]string(nil), terms...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

package capability

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gopkg.in/yaml.v3"

	"github.com/Aidin1998/modelserver/internal/learner"
)

// KeywordsFile holds the keyword table of a persisted taxonomy
// classifier.
const KeywordsFile = "keywords.yaml"

// Regulation is a document to be placed in the taxonomy.
type Regulation struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
}

// ClusterMember identifies a regulation inside a cluster.
type ClusterMember struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Cluster is a thematic group of regulations.
type Cluster struct {
	ID              int             `json:"id"`
	Label           string          `json:"label"`
	Regulations     []ClusterMember `json:"regulations"`
	SimilarityScore float64         `json:"similarity_score"`
}

// TaxonomyResult is the clustering of a batch of regulations.
type TaxonomyResult struct {
	Clusters      []Cluster `json:"clusters"`
	TotalClusters int       `json:"total_clusters"`
	Method        string    `json:"method"`
}

// Classification methods
const (
	MethodClustering = "hierarchical_clustering"
	MethodKeywords   = "keyword_fallback"
)

// KeywordCategory is one row of the keyword taxonomy. Categories are
// matched in table order.
type KeywordCategory struct {
	Name     string   `yaml:"name" json:"name"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// DefaultKeywords is the built-in keyword taxonomy.
var DefaultKeywords = []KeywordCategory{
	{Name: "data_privacy", Keywords: []string{"privacy", "data protection", "gdpr", "ccpa", "personal data", "consent", "data breach", "pii", "right to erasure", "cookies"}},
	{Name: "financial", Keywords: []string{"financial", "banking", "payment", "aml", "anti-money", "sox", "sarbanes", "dodd-frank", "sec", "finra", "kyc"}},
	{Name: "healthcare", Keywords: []string{"health", "hipaa", "medical", "patient", "clinical", "pharmaceutical", "fda", "drug", "diagnosis", "treatment"}},
	{Name: "environmental", Keywords: []string{"environment", "emission", "carbon", "pollution", "waste", "epa", "climate", "sustainability", "renewable", "hazardous"}},
	{Name: "cybersecurity", Keywords: []string{"cyber", "security", "encryption", "vulnerability", "firewall", "incident response", "penetration", "malware", "nist", "iso 27001"}},
}

// LoadKeywords reads a keyword table from a YAML file holding a list of
// {name, keywords} entries.
func LoadKeywords(path string) ([]KeywordCategory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var table []KeywordCategory
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("parse keyword table %s: %w", path, err)
	}
	for i, c := range table {
		if c.Name == "" || len(c.Keywords) == 0 {
			return nil, fmt.Errorf("keyword table %s: entry %d needs a name and keywords", path, i)
		}
	}
	return table, nil
}

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// TaxonomyClassifierModel groups regulations by TF-IDF similarity with
// Ward clustering, or by keyword when there is too little to cluster.
// It needs no training and is always loaded.
type TaxonomyClassifierModel struct {
	base
	keywords []KeywordCategory
}

var _ Predictor[[]Regulation, TaxonomyResult] = (*TaxonomyClassifierModel)(nil)

// NewTaxonomyClassifier uses keywords, or DefaultKeywords when nil.
func NewTaxonomyClassifier(keywords []KeywordCategory) *TaxonomyClassifierModel {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	return &TaxonomyClassifierModel{base: newBase(TaxonomyClassifier, true), keywords: keywords}
}

func (m *TaxonomyClassifierModel) Predict(_ context.Context, regs []Regulation) (TaxonomyResult, error) {
	if len(regs) < 2 {
		return m.Fallback(regs), nil
	}
	docs := make([]string, len(regs))
	for i, r := range regs {
		docs[i] = r.Title + " " + r.Description
	}
	matrix := tfidf(docs)
	if len(matrix[0]) == 0 {
		return m.Fallback(regs), nil
	}

	k := max(2, min(10, int(math.Sqrt(float64(len(regs))))))
	k = min(k, len(regs))
	labels, err := learner.Ward(matrix, k)
	if err != nil {
		return TaxonomyResult{}, err
	}

	members := make([][]int, k)
	for i, label := range labels {
		members[label] = append(members[label], i)
	}

	res := TaxonomyResult{Method: MethodClustering}
	for id, idx := range members {
		if len(idx) == 0 {
			continue
		}
		cluster := Cluster{
			ID:              id,
			Label:           clusterLabel(regs, idx),
			SimilarityScore: round(meanCosine(matrix, idx), 4),
		}
		for _, i := range idx {
			cluster.Regulations = append(cluster.Regulations, ClusterMember{ID: regs[i].ID, Title: regs[i].Title})
		}
		res.Clusters = append(res.Clusters, cluster)
	}
	res.TotalClusters = len(res.Clusters)
	return res, nil
}

// Fallback assigns each regulation to its known category, else to the
// first keyword category mentioned in its text, else to "general".
func (m *TaxonomyClassifierModel) Fallback(regs []Regulation) TaxonomyResult {
	known := make(map[string]bool, len(m.keywords))
	for _, c := range m.keywords {
		known[c.Name] = true
	}

	groups := map[string][]ClusterMember{}
	for _, r := range regs {
		member := ClusterMember{ID: r.ID, Title: r.Title}
		if r.Category != "" && known[r.Category] {
			groups[r.Category] = append(groups[r.Category], member)
			continue
		}
		name := m.match(strings.ToLower(r.Title + " " + r.Description))
		groups[name] = append(groups[name], member)
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	res := TaxonomyResult{Clusters: []Cluster{}, Method: MethodKeywords}
	for id, name := range names {
		res.Clusters = append(res.Clusters, Cluster{
			ID:              id,
			Label:           name,
			Regulations:     groups[name],
			SimilarityScore: 1.0,
		})
	}
	res.TotalClusters = len(res.Clusters)
	return res
}

func (m *TaxonomyClassifierModel) match(text string) string {
	for _, c := range m.keywords {
		for _, kw := range c.Keywords {
			if strings.Contains(text, kw) {
				return c.Name
			}
		}
	}
	return "general"
}

// tfidf weights term frequency (normalised by document length) with a
// smoothed inverse document frequency. Columns follow first appearance.
func tfidf(docs []string) [][]float64 {
	tokenized := make([][]string, len(docs))
	vocab := map[string]int{}
	for i, d := range docs {
		tokenized[i] = tokenPattern.FindAllString(strings.ToLower(d), -1)
		for _, tok := range tokenized[i] {
			if _, ok := vocab[tok]; !ok {
				vocab[tok] = len(vocab)
			}
		}
	}

	df := make([]float64, len(vocab))
	matrix := make([][]float64, len(docs))
	for i, tokens := range tokenized {
		matrix[i] = make([]float64, len(vocab))
		seen := map[int]bool{}
		for _, tok := range tokens {
			col := vocab[tok]
			matrix[i][col]++
			if !seen[col] {
				df[col]++
				seen[col] = true
			}
		}
		if len(tokens) > 0 {
			floats.Scale(1/float64(len(tokens)), matrix[i])
		}
	}

	n := float64(len(docs))
	idf := make([]float64, len(vocab))
	for c := range idf {
		idf[c] = math.Log((n+1)/(df[c]+1)) + 1
	}
	for i := range matrix {
		floats.Mul(matrix[i], idf)
	}
	return matrix
}

// meanCosine is the average pairwise cosine similarity of the rows in
// idx; singletons score 1.
func meanCosine(matrix [][]float64, idx []int) float64 {
	if len(idx) < 2 {
		return 1.0
	}
	var total float64
	var pairs int
	for a := 0; a < len(idx); a++ {
		for b := a + 1; b < len(idx); b++ {
			u, v := matrix[idx[a]], matrix[idx[b]]
			nu, nv := floats.Norm(u, 2), floats.Norm(v, 2)
			if nu == 0 {
				nu = 1
			}
			if nv == 0 {
				nv = 1
			}
			total += floats.Dot(u, v) / (nu * nv)
			pairs++
		}
	}
	return total / float64(pairs)
}

// clusterLabel is the most common category of the members, or the
// first member's title cut to 50 characters.
func clusterLabel(regs []Regulation, idx []int) string {
	counts := map[string]int{}
	var order []string
	for _, i := range idx {
		c := regs[i].Category
		if c == "" {
			continue
		}
		if counts[c] == 0 {
			order = append(order, c)
		}
		counts[c]++
	}
	best := ""
	for _, c := range order {
		if best == "" || counts[c] > counts[best] {
			best = c
		}
	}
	if best != "" {
		return best
	}
	title := []rune(regs[idx[0]].Title)
	if len(title) == 0 {
		return "Unknown"
	}
	return string(title[:min(50, len(title))])
}

func (m *TaxonomyClassifierModel) Save(dir string) error {
	if err := m.saveStateless(dir); err != nil {
		return err
	}
	raw, err := yaml.Marshal(m.keywords)
	if err != nil {
		return err
	}
	return WriteFileAtomic(filepath.Join(dir, KeywordsFile), raw)
}

func (m *TaxonomyClassifierModel) Load(dir string) error {
	if err := m.loadStateless(dir); err != nil {
		return err
	}
	table, err := LoadKeywords(filepath.Join(dir, KeywordsFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	m.keywords = table
	return nil
}

// Package e2e drives the full ingestion and question answering stack over HTTP.
package e2e

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// Document is one file of the end-to-end corpus.
type Document struct {
	Filename string
	Title    string
	Content  string
}

// QueryTestCase is a question and the file whose chunk must back the answer.
type QueryTestCase struct {
	Question     string
	ExpectedFile string
}

// Corpus holds documents and questions for end-to-end tests.
type Corpus struct {
	Documents []Document
	TestCases []QueryTestCase
}

// topics carry a distinctive phrase that appears only in their own document.
var topics = []struct {
	slug    string
	title   string
	phrase  string
	content string
}{
	{"python", "Python Guide", "Python programming language", "Python is a high-level programming language. Python programming language is used for web development and data science."},
	{"kubernetes", "Kubernetes Docs", "Kubernetes container orchestration", "Kubernetes is an open-source container orchestration platform. Kubernetes container orchestration automates deployment and scaling."},
	{"golang", "Go Language", "Go golang concurrency", "Go is a statically typed language. Go golang concurrency is achieved with goroutines and channels."},
	{"postgres", "PostgreSQL Manual", "PostgreSQL relational database", "PostgreSQL is an advanced relational database. PostgreSQL relational database supports JSON and full-text search."},
	{"docker", "Docker Handbook", "Docker container images", "Docker enables building and shipping applications. Docker container images are portable across environments."},
	{"graphql", "GraphQL Overview", "GraphQL query language", "GraphQL is a query language for APIs. GraphQL query language lets clients request exactly what they need."},
	{"redis", "Redis Cache", "Redis in-memory cache", "Redis is an in-memory data store. Redis in-memory cache is used for sessions and caching."},
	{"terraform", "Terraform IaC", "Terraform infrastructure as code", "Terraform manages cloud infrastructure. Terraform infrastructure as code is declarative."},
	{"prometheus", "Prometheus Metrics", "Prometheus monitoring metrics", "Prometheus is a monitoring system. Prometheus monitoring metrics are time-series based."},
	{"kafka", "Kafka Streams", "Apache Kafka streaming", "Apache Kafka is a distributed event stream platform. Apache Kafka streaming handles high throughput."},
	{"nginx", "Nginx Config", "Nginx reverse proxy", "Nginx is a web server and reverse proxy. Nginx reverse proxy balances load and serves static files."},
	{"cryptography", "Cryptography Basics", "cryptography encryption decryption", "Cryptography secures data. Cryptography encryption decryption uses keys and algorithms."},
}

// BuildCorpus returns one .txt document per topic and a question per topic naming its phrase.
func BuildCorpus() *Corpus {
	c := &Corpus{}
	for _, tp := range topics {
		filename := tp.slug + ".txt"
		c.Documents = append(c.Documents, Document{Filename: filename, Title: tp.title, Content: tp.content})
		c.TestCases = append(c.TestCases, QueryTestCase{
			Question:     "What do the documents say about " + tp.phrase + "?",
			ExpectedFile: filename,
		})
	}
	return c
}

const termDimensions = 512

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "with": true, "what": true,
	"about": true, "say": true, "documents": true, "used": true, "that": true,
}

// TermEmbedder is a deterministic bag-of-words embedder: every content word is hashed into
// one of a fixed number of dimensions. Texts sharing distinctive words end up close, which
// is enough for retrieval to find the right document without a model.
type TermEmbedder struct{}

func (TermEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v := make([]float32, termDimensions)
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(tok) < 3 || stopwords[tok] {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		v[h.Sum32()%termDimensions]++
	}
	// Keep every text embeddable even when it has no content words.
	v[0] += 0.01
	return v, nil
}

func (TermEmbedder) Dimensions() int { return termDimensions }

func (TermEmbedder) Close() error { return nil }

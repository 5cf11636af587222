// Package classifier maps a merchant name and provider category tags to a
// suggested expense category using ordered keyword buckets.
package classifier

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

type Bucket struct {
	Category    string   `yaml:"category"`
	Keywords    []string `yaml:"keywords"`
	TagKeywords []string `yaml:"tag_keywords"`
}

type ruleFile struct {
	Buckets []Bucket `yaml:"buckets"`
}

// Classifier is immutable after construction and safe for concurrent use.
type Classifier struct {
	buckets []Bucket
}

func New(buckets []Bucket) (*Classifier, error) {
	if len(buckets) == 0 {
		return nil, fmt.Errorf("classifier needs at least one bucket")
	}
	normalized := make([]Bucket, 0, len(buckets))
	for i, b := range buckets {
		if strings.TrimSpace(b.Category) == "" {
			return nil, fmt.Errorf("bucket %d has no category", i)
		}
		normalized = append(normalized, Bucket{
			Category:    b.Category,
			Keywords:    lowerAll(b.Keywords),
			TagKeywords: lowerAll(b.TagKeywords),
		})
	}
	return &Classifier{buckets: normalized}, nil
}

// Parse builds a Classifier from a YAML rule document.
func Parse(data []byte) (*Classifier, error) {
	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse classifier rules: %w", err)
	}
	return New(rf.Buckets)
}

func LoadFile(path string) (*Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read classifier rules: %w", err)
	}
	return Parse(data)
}

var (
	defaultOnce       sync.Once
	defaultClassifier *Classifier
)

// Default returns the classifier built from the embedded rules.
func Default() *Classifier {
	defaultOnce.Do(func() {
		c, err := Parse(defaultRules)
		if err != nil {
			panic(err)
		}
		defaultClassifier = c
	})
	return defaultClassifier
}

// Classify returns the first bucket whose keyword appears as a whole word in
// the merchant name. If none matches, the joined tags are checked against the
// same buckets in the same order. ok is false when nothing matches.
func (c *Classifier) Classify(merchantName string, categoryTags []string) (category string, ok bool) {
	merchant := strings.ToLower(merchantName)
	if merchant != "" {
		for _, b := range c.buckets {
			if containsAny(merchant, b.Keywords) {
				return b.Category, true
			}
		}
	}

	tags := normalizeTags(categoryTags)
	if tags == "" {
		return "", false
	}
	for _, b := range c.buckets {
		if containsAny(tags, b.Keywords) || containsAny(tags, b.TagKeywords) {
			return b.Category, true
		}
	}
	return "", false
}

func (c *Classifier) Categories() []string {
	names := make([]string, len(c.buckets))
	for i, b := range c.buckets {
		names[i] = b.Category
	}
	return names
}

// normalizeTags joins provider tags into one lower-cased string. Provider enum
// tags such as FOOD_AND_DRINK_GROCERIES read as words.
func normalizeTags(tags []string) string {
	joined := strings.ToLower(strings.Join(tags, " "))
	return strings.TrimSpace(strings.ReplaceAll(joined, "_", " "))
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && containsWord(s, k) {
			return true
		}
	}
	return false
}

// containsWord reports whether k occurs in s with no letter or digit directly
// on either side, so "aldi" does not match "geraldine".
func containsWord(s, k string) bool {
	for offset := 0; offset <= len(s)-len(k); {
		i := strings.Index(s[offset:], k)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(k)
		before, _ := utf8.DecodeLastRuneInString(s[:start])
		after, _ := utf8.DecodeRuneInString(s[end:])
		if !isWordRune(before) && !isWordRune(after) {
			return true
		}
		_, size := utf8.DecodeRuneInString(s[start:])
		offset = start + size
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(strings.TrimSpace(s)))
	}
	return out
}

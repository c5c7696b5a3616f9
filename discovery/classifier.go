package discovery

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/agnivade/levenshtein"

	"github.com/GoCodeAlone/modlink/descriptor"
)

// ItemKind is the descriptor table an item came from.
type ItemKind string

const (
	KindChannel    ItemKind = "channel"
	KindCell       ItemKind = "cell"
	KindRegistry   ItemKind = "registry"
	KindCapability ItemKind = "capability"
)

// Item is one entry of an existing descriptor, flattened for classification.
type Item struct {
	Module      string
	Kind        ItemKind
	Name        string
	Type        string
	Description string
	Listeners   []string
}

// Key identifies the item across the corpus.
func (i Item) Key() string {
	return i.Module + "/" + string(i.Kind) + "/" + i.Name
}

// Decision is a classifier verdict.
type Decision struct {
	Relevant bool
	Reason   string
}

// Classifier judges whether an existing item matters to the module being
// designed. The judgement belongs to the designer; implementations only
// record or approximate it.
type Classifier interface {
	Classify(ctx context.Context, req Request, item Item) Decision
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, req Request, item Item) Decision

// Classify implements Classifier.
func (f ClassifierFunc) Classify(ctx context.Context, req Request, item Item) Decision {
	return f(ctx, req, item)
}

// Items flattens a descriptor into classifiable items, table by table.
func Items(d *descriptor.Descriptor) []Item {
	var items []Item
	for _, c := range d.Channels {
		items = append(items, Item{Module: d.ModuleID, Kind: KindChannel, Name: c.Name, Type: c.PayloadType, Description: c.Trigger, Listeners: c.SuggestedListeners})
	}
	for _, c := range d.Cells {
		items = append(items, Item{Module: d.ModuleID, Kind: KindCell, Name: c.Name, Type: c.Type, Description: c.Purpose})
	}
	for _, r := range d.Registries {
		items = append(items, Item{Module: d.ModuleID, Kind: KindRegistry, Name: r.Name, Type: r.ItemType, Description: r.Purpose})
	}
	for _, c := range d.Capabilities {
		items = append(items, Item{Module: d.ModuleID, Kind: KindCapability, Name: c.Name, Description: strings.TrimSpace(c.Purpose + " " + c.WhenToImplement)})
	}
	return items
}

// KeywordClassifier is a heuristic default: an item is relevant when it
// names the new module as a suggested listener, or when one of its words is
// within MaxDistance edits of a word from the request purpose or keywords.
type KeywordClassifier struct {
	// MaxDistance is the edit distance tolerated for words of MinFuzzyLen
	// runes or more. Shorter words must match exactly.
	MaxDistance int
	MinFuzzyLen int
}

// NewKeywordClassifier returns a classifier tolerating one typo in words of
// five or more letters.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{MaxDistance: 1, MinFuzzyLen: 5}
}

// Classify implements Classifier.
func (k *KeywordClassifier) Classify(_ context.Context, req Request, item Item) Decision {
	if slices.Contains(item.Listeners, req.ModuleID) {
		return Decision{Relevant: true, Reason: fmt.Sprintf("%s lists %s as a suggested listener", item.Module, req.ModuleID)}
	}

	wanted := words(strings.Join(append([]string{req.Purpose}, req.Keywords...), " "))
	have := words(item.Name + " " + item.Type + " " + item.Description)
	for _, w := range wanted {
		for _, h := range have {
			if k.matches(w, h) {
				return Decision{Relevant: true, Reason: fmt.Sprintf("%q matches %q", h, w)}
			}
		}
	}
	return Decision{Reason: "no shared terms"}
}

func (k *KeywordClassifier) matches(a, b string) bool {
	if a == b {
		return true
	}
	if len([]rune(a)) < k.MinFuzzyLen || len([]rune(b)) < k.MinFuzzyLen {
		return false
	}
	return levenshtein.ComputeDistance(a, b) <= k.MaxDistance
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true, "this": true,
	"when": true, "from": true, "into": true, "are": true, "was": true, "its": true,
	"every": true, "any": true, "all": true, "after": true, "before": true,
}

// words splits text into lowercase words of three or more letters, breaking
// camelCase identifiers and dropping common filler words.
func words(text string) []string {
	var out []string
	var cur []rune
	flush := func() {
		if len(cur) >= 3 {
			w := strings.ToLower(string(cur))
			if !stopWords[w] && !slices.Contains(out, w) {
				out = append(out, w)
			}
		}
		cur = cur[:0]
	}
	runes := []rune(text)
	for i, r := range runes {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			flush()
			continue
		case unicode.IsUpper(r) && len(cur) > 0:
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || nextLower {
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()
	return out
}

// ManualClassifier records the designer's explicit decisions. Items without
// a decision fall back to Default.
type ManualClassifier struct {
	mu        sync.RWMutex
	decisions map[string]Decision
	Default   Decision
}

// NewManualClassifier returns a classifier that treats every item as
// irrelevant until marked.
func NewManualClassifier() *ManualClassifier {
	return &ManualClassifier{
		decisions: make(map[string]Decision),
		Default:   Decision{Reason: "not selected"},
	}
}

// Mark records a decision for one item.
func (m *ManualClassifier) Mark(module string, kind ItemKind, name string, relevant bool, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions[Item{Module: module, Kind: kind, Name: name}.Key()] = Decision{Relevant: relevant, Reason: reason}
}

// Classify implements Classifier.
func (m *ManualClassifier) Classify(_ context.Context, _ Request, item Item) Decision {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.decisions[item.Key()]; ok {
		return d
	}
	return m.Default
}

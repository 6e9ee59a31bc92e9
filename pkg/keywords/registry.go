// Package keywords provides the risk-keyword registry consulted during
// feature extraction and rule scoring. Keywords are loaded once per scoring
// session into an immutable snapshot so per-record scoring never touches
// shared mutable state.
//
// Design principles:
// - LOAD ONCE: keywords resolved at session start, not per record
// - CATEGORIZED: Business / Personal / Suspicious drive different weights
// - SCOPED: a keyword applies to the subject, the attachment list, or both
package keywords

import (
	"strings"
	"sync"
)

// Category classifies a keyword's sensitivity class
type Category string

const (
	CategoryBusiness   Category = "Business"
	CategoryPersonal   Category = "Personal"
	CategorySuspicious Category = "Suspicious"
)

// Kind separates scoring keywords from exclusion keywords. Exclusion
// keywords are applied upstream (the ingest filter); the core carries them in
// the registry so one source of truth serves both sides.
type Kind string

const (
	KindRisk      Kind = "risk"
	KindExclusion Kind = "exclusion"
)

// Scope restricts where a keyword is matched
type Scope string

const (
	ScopeSubject    Scope = "subject"
	ScopeAttachment Scope = "attachment"
	ScopeBoth       Scope = "both"
)

// Keyword is one entry in the registry. Weight runs 1-10.
type Keyword struct {
	Text     string   `yaml:"keyword"`
	Category Category `yaml:"category"`
	Weight   float64  `yaml:"weight"`
	Kind     Kind     `yaml:"type"`
	Scope    Scope    `yaml:"scope"`
	Active   bool     `yaml:"active"`

	// lowercase form, precomputed when the snapshot is built
	lower string
}

// InSubject reports whether this keyword is matched against subject text.
func (k *Keyword) InSubject() bool {
	return k.Scope == ScopeSubject || k.Scope == ScopeBoth
}

// InAttachment reports whether this keyword is matched against the attachment list.
func (k *Keyword) InAttachment() bool {
	return k.Scope == ScopeAttachment || k.Scope == ScopeBoth
}

// Registry holds the live keyword set. Admin CRUD mutates it between
// sessions; scoring reads only through snapshots.
type Registry struct {
	mu       sync.RWMutex
	keywords []Keyword
}

// NewRegistry creates a registry from the given keywords.
func NewRegistry(kws []Keyword) *Registry {
	r := &Registry{}
	r.Replace(kws)
	return r
}

// Replace swaps the full keyword set.
func (r *Registry) Replace(kws []Keyword) {
	cp := make([]Keyword, len(kws))
	copy(cp, kws)
	r.mu.Lock()
	r.keywords = cp
	r.mu.Unlock()
}

// Len returns the number of registered keywords, active or not.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.keywords)
}

// Snapshot captures the active risk keywords for one scoring session.
// It is immutable; refresh by taking a new snapshot at session start.
type Snapshot struct {
	risk []Keyword
}

// Snapshot returns the active risk keywords with lowercase forms precomputed.
func (r *Registry) Snapshot() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := &Snapshot{}
	for _, k := range r.keywords {
		if !k.Active || k.Kind != KindRisk {
			continue
		}
		k.lower = strings.ToLower(k.Text)
		s.risk = append(s.risk, k)
	}
	return s
}

// EmptySnapshot returns a snapshot with no keywords. Scoring still works;
// keyword-derived features and contributions are simply zero.
func EmptySnapshot() *Snapshot {
	return &Snapshot{}
}

// Risk returns the active risk keywords in the snapshot.
func (s *Snapshot) Risk() []Keyword {
	return s.risk
}

// Matches reports whether any risk keyword hits the given subject or
// attachment text. Inputs must already be lowercase.
func (s *Snapshot) Matches(subjectLower, attachmentsLower string) bool {
	for i := range s.risk {
		k := &s.risk[i]
		if k.InSubject() && subjectLower != "" && strings.Contains(subjectLower, k.lower) {
			return true
		}
		if k.InAttachment() && attachmentsLower != "" && strings.Contains(attachmentsLower, k.lower) {
			return true
		}
	}
	return false
}

// EachMatch calls fn for every risk keyword matching the subject or
// attachment text. Inputs must already be lowercase.
func (s *Snapshot) EachMatch(subjectLower, attachmentsLower string, fn func(k *Keyword)) {
	for i := range s.risk {
		k := &s.risk[i]
		if (k.InSubject() && subjectLower != "" && strings.Contains(subjectLower, k.lower)) ||
			(k.InAttachment() && attachmentsLower != "" && strings.Contains(attachmentsLower, k.lower)) {
			fn(k)
		}
	}
}

// EachAttachmentMatch calls fn for every risk keyword matching the attachment
// text only, regardless of scope restriction to subject. Input must already
// be lowercase.
func (s *Snapshot) EachAttachmentMatch(attachmentsLower string, fn func(k *Keyword)) {
	if attachmentsLower == "" {
		return
	}
	for i := range s.risk {
		k := &s.risk[i]
		if k.InAttachment() && strings.Contains(attachmentsLower, k.lower) {
			fn(k)
		}
	}
}

package keywords

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// seedFile is the on-disk shape of a keyword seed file:
//
//	keywords:
//	  - keyword: payroll export
//	    category: Suspicious
//	    weight: 8
//	    type: risk
//	    scope: both
//	    active: true
type seedFile struct {
	Keywords []Keyword `yaml:"keywords"`
}

// LoadFile builds a registry from a YAML seed file.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keyword seeds: %w", err)
	}

	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse keyword seeds: %w", err)
	}
	if len(f.Keywords) == 0 {
		return nil, fmt.Errorf("keyword seed file %s contains no keywords", path)
	}

	for i := range f.Keywords {
		applyDefaults(&f.Keywords[i])
	}
	return NewRegistry(f.Keywords), nil
}

func applyDefaults(k *Keyword) {
	if k.Kind == "" {
		k.Kind = KindRisk
	}
	if k.Scope == "" {
		k.Scope = ScopeBoth
	}
	if k.Weight <= 0 {
		k.Weight = 1
	}
	if k.Weight > 10 {
		k.Weight = 10
	}
}

// DefaultRegistry returns the built-in keyword set, used when no seed file or
// database source is configured. Mirrors the starter set analysts get on a
// fresh install.
func DefaultRegistry() *Registry {
	kws := []Keyword{
		{Text: "confidential", Category: CategorySuspicious, Weight: 7, Kind: KindRisk, Scope: ScopeBoth, Active: true},
		{Text: "salary", Category: CategoryPersonal, Weight: 6, Kind: KindRisk, Scope: ScopeBoth, Active: true},
		{Text: "payroll", Category: CategorySuspicious, Weight: 8, Kind: KindRisk, Scope: ScopeBoth, Active: true},
		{Text: "customer list", Category: CategorySuspicious, Weight: 9, Kind: KindRisk, Scope: ScopeBoth, Active: true},
		{Text: "price list", Category: CategoryBusiness, Weight: 5, Kind: KindRisk, Scope: ScopeBoth, Active: true},
		{Text: "source code", Category: CategorySuspicious, Weight: 8, Kind: KindRisk, Scope: ScopeBoth, Active: true},
		{Text: "backup", Category: CategorySuspicious, Weight: 6, Kind: KindRisk, Scope: ScopeAttachment, Active: true},
		{Text: "export", Category: CategorySuspicious, Weight: 6, Kind: KindRisk, Scope: ScopeAttachment, Active: true},
		{Text: "passport", Category: CategoryPersonal, Weight: 7, Kind: KindRisk, Scope: ScopeBoth, Active: true},
		{Text: "cv", Category: CategoryPersonal, Weight: 3, Kind: KindRisk, Scope: ScopeAttachment, Active: true},
		{Text: "contract", Category: CategoryBusiness, Weight: 4, Kind: KindRisk, Scope: ScopeBoth, Active: true},
		{Text: "forecast", Category: CategoryBusiness, Weight: 4, Kind: KindRisk, Scope: ScopeBoth, Active: true},
		{Text: "newsletter", Category: CategoryBusiness, Weight: 1, Kind: KindExclusion, Scope: ScopeSubject, Active: true},
	}
	return NewRegistry(kws)
}

package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/ashdown/tally/internal/database/repository"
)

const rulesetCacheKey = "ruleset"

// ClassifierService resolves transaction descriptions to categories using
// prioritized wildcard rules. Classification is a pure read of rule data:
// the same rule set always classifies a description identically. Both
// import-time auto-categorization and the interactive "test a description"
// tool go through Classify; there is no second matching path.
type ClassifierService struct {
	Rules      *repository.CategoryRuleRepo
	Categories *repository.CategoryRepo

	// compiled ruleset cache, invalidated on every rule save/delete
	cache *gocache.Cache
}

func NewClassifierService(rules *repository.CategoryRuleRepo, categories *repository.CategoryRepo) *ClassifierService {
	return &ClassifierService{
		Rules:      rules,
		Categories: categories,
		cache:      gocache.New(5*time.Minute, 10*time.Minute),
	}
}

// Match is a successful classification.
type Match struct {
	Rule       repository.CategoryRule
	CategoryID string
}

type compiledRule struct {
	rule repository.CategoryRule
	alts []*regexp.Regexp
}

// CompilePattern validates and compiles a rule pattern: comma-separated
// alternatives, `%` matching any run of characters, `_` matching exactly
// one, case-insensitive and anchored to the whole description. Invalid
// patterns are rejected here, at save time, so the matcher never sees one.
func CompilePattern(pattern string) ([]*regexp.Regexp, error) {
	alts := strings.Split(pattern, ",")
	out := make([]*regexp.Regexp, 0, len(alts))
	for _, alt := range alts {
		alt = strings.TrimSpace(alt)
		if alt == "" {
			return nil, fmt.Errorf("%w: empty alternative in %q", ErrInvalidPattern, pattern)
		}
		var b strings.Builder
		b.WriteString("(?is)^")
		for _, r := range alt {
			switch r {
			case '%':
				b.WriteString(".*")
			case '_':
				b.WriteString(".")
			default:
				b.WriteString(regexp.QuoteMeta(string(r)))
			}
		}
		b.WriteString("$")
		re, err := regexp.Compile(b.String())
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, alt, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// SaveRule validates, compiles and stores a rule. Lower priority wins;
// creation order breaks ties.
func (s *ClassifierService) SaveRule(ctx context.Context, pattern, categoryID string, priority int) (repository.CategoryRule, error) {
	if _, err := CompilePattern(pattern); err != nil {
		return repository.CategoryRule{}, err
	}
	cat, err := s.Categories.Get(ctx, categoryID)
	if err != nil {
		return repository.CategoryRule{}, err
	}
	if cat == nil {
		return repository.CategoryRule{}, fmt.Errorf("category %s: %w", categoryID, ErrNotFound)
	}
	rule := repository.CategoryRule{
		ID:         uuid.NewString(),
		Pattern:    pattern,
		CategoryID: categoryID,
		Priority:   priority,
	}
	if err := s.Rules.Insert(ctx, rule); err != nil {
		return repository.CategoryRule{}, fmt.Errorf("save rule: %w", err)
	}
	s.cache.Delete(rulesetCacheKey)
	return rule, nil
}

// DeleteRule removes a rule and invalidates the compiled set.
func (s *ClassifierService) DeleteRule(ctx context.Context, id string) error {
	if err := s.Rules.Delete(ctx, id); err != nil {
		return err
	}
	s.cache.Delete(rulesetCacheKey)
	return nil
}

// Classify resolves a description against the rule set. Rules are tried
// strictly in (priority, creation) order and the first rule with any
// matching alternative wins. A nil result means no rule matched; the
// transaction stays uncategorized and any default-bucket policy belongs to
// the caller.
func (s *ClassifierService) Classify(ctx context.Context, description string) (*Match, error) {
	rules, err := s.compiledRules(ctx)
	if err != nil {
		return nil, err
	}
	for _, cr := range rules {
		for _, re := range cr.alts {
			if re.MatchString(description) {
				return &Match{Rule: cr.rule, CategoryID: cr.rule.CategoryID}, nil
			}
		}
	}
	return nil, nil
}

func (s *ClassifierService) compiledRules(ctx context.Context) ([]compiledRule, error) {
	if v, ok := s.cache.Get(rulesetCacheKey); ok {
		return v.([]compiledRule), nil
	}
	rules, err := s.Rules.ListOrdered(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		alts, err := CompilePattern(rule.Pattern)
		if err != nil {
			// stored rules were validated at save time; a failure here
			// means the row was tampered with outside the engine
			return nil, fmt.Errorf("rule %s: %w", rule.ID, err)
		}
		compiled = append(compiled, compiledRule{rule: rule, alts: alts})
	}
	s.cache.Set(rulesetCacheKey, compiled, gocache.DefaultExpiration)
	return compiled, nil
}

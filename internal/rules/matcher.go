package rules

import (
	"regexp"
	"strings"
	"sync"

	"github.com/gobwas/glob"

	"github.com/syrahproxy/syrah/internal/flow"
)

// compiledCache caches compiled regex/glob matchers per rule so repeated
// evaluations don't recompile on every request ("compile a
// regex (cached per rule version)").
type compiledCache struct {
	mu       sync.Mutex
	regexes  map[string]*regexp.Regexp
	globs    map[string]glob.Glob
	badRules map[string]error
}

func newCompiledCache() *compiledCache {
	return &compiledCache{
		regexes:  make(map[string]*regexp.Regexp),
		globs:    make(map[string]glob.Glob),
		badRules: make(map[string]error),
	}
}

func (c *compiledCache) regex(pattern string) (*regexp.Regexp, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if re, ok := c.regexes[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	c.regexes[pattern] = re
	return re, nil
}

func (c *compiledCache) glob(pattern string) (glob.Glob, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if g, ok := c.globs[pattern]; ok {
		return g, nil
	}
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, err
	}
	c.globs[pattern] = g
	return g, nil
}

// disable records a matcher compile error against a rule ID, permanently
// disabling that rule for the session.
func (c *compiledCache) disable(ruleID string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.badRules[ruleID] = err
}

func (c *compiledCache) disabledReason(ruleID string) (error, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	err, ok := c.badRules[ruleID]
	return err, ok
}

// Validate compiles m's pattern, if any, purely to surface a malformed
// regex or glob at load time rather than leaving the rule to be silently
// disabled on first evaluation.
func (m Matcher) Validate() error {
	if m.Kind != MatcherURL {
		return nil
	}
	if m.IsRegex {
		_, err := regexp.Compile(m.Pattern)
		return err
	}
	if strings.ContainsAny(m.Pattern, "*") {
		_, err := glob.Compile(m.Pattern, '/')
		return err
	}
	return nil
}

// matches evaluates r's Matcher against req, using cache for compiled
// patterns. Any compile error permanently disables the rule for the
// session and the match fails.
func matches(cache *compiledCache, r *Rule, req *flow.Request) bool {
	if _, disabled := cache.disabledReason(r.ID); disabled {
		return false
	}

	switch r.Matcher.Kind {
	case MatcherHost:
		return strings.EqualFold(req.Host, r.Matcher.Host)
	case MatcherMethod:
		for _, m := range r.Matcher.Methods {
			if strings.EqualFold(m, string(req.Method)) {
				return true
			}
		}
		return false
	case MatcherURL:
		return matchURL(cache, r, req.URL)
	default:
		return false
	}
}

func matchURL(cache *compiledCache, r *Rule, url string) bool {
	pattern := r.Matcher.Pattern
	if r.Matcher.IsRegex {
		re, err := cache.regex(pattern)
		if err != nil {
			cache.disable(r.ID, err)
			return false
		}
		return re.MatchString(url)
	}

	if !strings.ContainsAny(pattern, "*") {
		return strings.Contains(url, pattern)
	}

	g, err := cache.glob(pattern)
	if err != nil {
		cache.disable(r.ID, err)
		return false
	}
	return g.Match(url)
}

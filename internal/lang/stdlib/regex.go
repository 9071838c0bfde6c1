package stdlib

import (
	"regexp"
	"sync"

	"github.com/hashmap-kz/jkube/internal/lang/value"
)

// regexCache memoizes compiled patterns across calls, per spec.md §4.6's
// "compile-and-cache" requirement; shared across every std object this
// Builder produces since regex patterns don't depend on thisFile.
var (
	regexCacheMu sync.Mutex
	regexCache   = make(map[string]*regexp.Regexp)
)

func compileRegex(pattern string) (*regexp.Regexp, error) {
	regexCacheMu.Lock()
	defer regexCacheMu.Unlock()
	if re, ok := regexCache[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	regexCache[pattern] = re
	return re, nil
}

func (b *Builder) installRegex(set func(string, *value.Function)) {
	in := b.in

	set("regexFullMatch", builtin(in, []string{"pattern", "str"}, func(args []*value.Thunk) (value.Value, error) {
		pv, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		pattern, err := asString("regexFullMatch", 0, pv)
		if err != nil {
			return nil, err
		}
		sv, err := args[1].Force()
		if err != nil {
			return nil, err
		}
		s, err := asString("regexFullMatch", 1, sv)
		if err != nil {
			return nil, err
		}
		re, err := compileRegex("^(?:" + pattern + ")$")
		if err != nil {
			return nil, err
		}
		return value.Bool(re.MatchString(s)), nil
	}))

	set("regexPartialMatch", builtin(in, []string{"pattern", "str"}, func(args []*value.Thunk) (value.Value, error) {
		pv, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		pattern, err := asString("regexPartialMatch", 0, pv)
		if err != nil {
			return nil, err
		}
		sv, err := args[1].Force()
		if err != nil {
			return nil, err
		}
		s, err := asString("regexPartialMatch", 1, sv)
		if err != nil {
			return nil, err
		}
		re, err := compileRegex(pattern)
		if err != nil {
			return nil, err
		}
		return value.Bool(re.MatchString(s)), nil
	}))

	set("regexReplace", builtin(in, []string{"str", "pattern", "to"}, func(args []*value.Thunk) (value.Value, error) {
		return regexReplace(args, false)
	}))
	set("regexGlobalReplace", builtin(in, []string{"str", "pattern", "to"}, func(args []*value.Thunk) (value.Value, error) {
		return regexReplace(args, true)
	}))

	set("regexQuoteMeta", builtin(in, []string{"str"}, func(args []*value.Thunk) (value.Value, error) {
		v, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		s, err := asString("regexQuoteMeta", 0, v)
		if err != nil {
			return nil, err
		}
		return value.NewString(regexp.QuoteMeta(s)), nil
	}))
}

func regexReplace(args []*value.Thunk, global bool) (value.Value, error) {
	sv, err := args[0].Force()
	if err != nil {
		return nil, err
	}
	s, err := asString("regexReplace", 0, sv)
	if err != nil {
		return nil, err
	}
	pv, err := args[1].Force()
	if err != nil {
		return nil, err
	}
	pattern, err := asString("regexReplace", 1, pv)
	if err != nil {
		return nil, err
	}
	tv, err := args[2].Force()
	if err != nil {
		return nil, err
	}
	to, err := asString("regexReplace", 2, tv)
	if err != nil {
		return nil, err
	}
	re, err := compileRegex(pattern)
	if err != nil {
		return nil, err
	}
	if global {
		return value.NewString(re.ReplaceAllString(s, to)), nil
	}
	loc := re.FindStringIndex(s)
	if loc == nil {
		return value.NewString(s), nil
	}
	replaced := re.ReplaceAllString(s[loc[0]:loc[1]], to)
	return value.NewString(s[:loc[0]] + replaced + s[loc[1]:]), nil
}

package align

import (
	"encoding/json"
	"sort"
)

// Result is the fixed-shape outcome for one record. Items always holds exactly the
// declared item names. Keys the model returned beyond the declared set are kept in
// Extra so they are never lost and never leak into Items.
type Result struct {
	Items     map[string]string
	Extra     map[string]string
	Defaulted bool
}

// Empty returns a defaulted result with every item set to "".
func Empty(items []string) Result {
	r := Result{Items: make(map[string]string, len(items)), Defaulted: true}
	for _, item := range items {
		r.Items[item] = ""
	}
	return r
}

// Get returns the value of a declared item.
func (r Result) Get(item string) string {
	return r.Items[item]
}

// ExtraKeys returns the sorted names of the undeclared keys.
func (r Result) ExtraKeys() []string {
	keys := make([]string, 0, len(r.Extra))
	for k := range r.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// fromObject builds a result from a parsed object, filling absent items with "".
func fromObject(items []string, obj map[string]string) Result {
	declared := make(map[string]bool, len(items))
	r := Result{Items: make(map[string]string, len(items))}
	for _, item := range items {
		declared[item] = true
		r.Items[item] = obj[item]
	}
	for k, v := range obj {
		if declared[k] {
			continue
		}
		if r.Extra == nil {
			r.Extra = make(map[string]string)
		}
		r.Extra[k] = v
	}
	return r
}

// render turns a decoded JSON value into the string stored in a result.
func render(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

package oidc

import (
	"reflect"
	"slices"
	"strings"

	"github.com/zitadel/schema"
	"golang.org/x/text/language"
)

type SpaceDelimitedArray []string

func (s SpaceDelimitedArray) String() string {
	return strings.Join(s, " ")
}

func (s *SpaceDelimitedArray) UnmarshalText(text []byte) error {
	*s = strings.Fields(string(text))
	return nil
}

func (s SpaceDelimitedArray) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type Locales []language.Tag

func (l *Locales) UnmarshalText(text []byte) error {
	locales := strings.Fields(string(text))
	for _, locale := range locales {
		tag, err := language.Parse(locale)
		if err == nil && !tag.IsRoot() {
			*l = append(*l, tag)
		}
	}
	return nil
}

func (l Locales) String() string {
	tags := make([]string, len(l))
	for i, tag := range l {
		tags[i] = tag.String()
	}
	return strings.Join(tags, " ")
}

// NewEncoder returns a form encoder for the wire structs of this package.
func NewEncoder() *schema.Encoder {
	e := schema.NewEncoder()
	e.RegisterEncoder(SpaceDelimitedArray{}, func(value reflect.Value) string {
		return value.Interface().(SpaceDelimitedArray).String()
	})
	e.RegisterEncoder(Locales{}, func(value reflect.Value) string {
		return value.Interface().(Locales).String()
	})
	return e
}

// NewDecoder returns a form decoder for the wire structs of this package.
// Unknown keys are ignored, providers are free to add parameters.
func NewDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	d.RegisterConverter(SpaceDelimitedArray{}, func(value string) reflect.Value {
		return reflect.ValueOf(SpaceDelimitedArray(strings.Fields(value)))
	})
	return d
}

// NormalizeScopes lower-cases, de-duplicates and sorts a scope set so equal
// sets compare and key equally, no matter how the caller spelled them.
func NormalizeScopes(scopes []string) SpaceDelimitedArray {
	normalized := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		scope = strings.ToLower(strings.TrimSpace(scope))
		if scope == "" || slices.Contains(normalized, scope) {
			continue
		}
		normalized = append(normalized, scope)
	}
	slices.Sort(normalized)
	return normalized
}

// ScopesSatisfy reports whether the granted scope set is a superset of the
// requested one. Comparison is on normalized sets.
func ScopesSatisfy(granted, requested []string) bool {
	grantedSet := NormalizeScopes(granted)
	for _, scope := range NormalizeScopes(requested) {
		if !slices.Contains(grantedSet, scope) {
			return false
		}
	}
	return true
}

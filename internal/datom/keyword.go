package datom

import (
	"fmt"
	"strings"
)

// Keyword is a symbolic identifier, optionally namespaced: :db/ident has
// namespace "db" and name "ident"; :person has only a name. Keywords name
// attributes, partitions, and enum values, and are also storable values
// (type tag 13).
type Keyword struct {
	Namespace string
	Name      string
}

// ParseKeyword parses the printed form ":ns/name" or ":name".
// The leading colon is mandatory. At most one slash is allowed, and
// neither segment may be empty.
func ParseKeyword(s string) (Keyword, error) {
	if len(s) < 2 || s[0] != ':' {
		return Keyword{}, fmt.Errorf("keyword %q: must start with ':' and be non-empty", s)
	}
	body := s[1:]
	slash := strings.IndexByte(body, '/')
	if slash < 0 {
		return Keyword{Name: body}, nil
	}
	ns, name := body[:slash], body[slash+1:]
	if ns == "" || name == "" {
		return Keyword{}, fmt.Errorf("keyword %q: empty namespace or name", s)
	}
	if strings.IndexByte(name, '/') >= 0 {
		return Keyword{}, fmt.Errorf("keyword %q: more than one '/'", s)
	}
	return Keyword{Namespace: ns, Name: name}, nil
}

// MustKeyword is ParseKeyword for compile-time-known literals; it panics
// on malformed input.
func MustKeyword(s string) Keyword {
	kw, err := ParseKeyword(s)
	if err != nil {
		panic(err)
	}
	return kw
}

// KW constructs a namespaced keyword without parsing.
func KW(namespace, name string) Keyword {
	return Keyword{Namespace: namespace, Name: name}
}

// String renders the printed form with the leading colon.
func (k Keyword) String() string {
	if k.Namespace == "" {
		return ":" + k.Name
	}
	return ":" + k.Namespace + "/" + k.Name
}

// IsZero reports whether k is the zero keyword (no namespace, no name).
func (k Keyword) IsZero() bool {
	return k.Namespace == "" && k.Name == ""
}

// Compare orders keywords by namespace, then name.
func (k Keyword) Compare(other Keyword) int {
	if c := strings.Compare(k.Namespace, other.Namespace); c != 0 {
		return c
	}
	return strings.Compare(k.Name, other.Name)
}

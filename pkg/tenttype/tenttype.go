// Package tenttype parses post type URIs of the form
// {base}/v{version}#{fragment}, e.g. https://tent.io/types/status/v0#reply.
// The base portion identifies the protocol-level category of a type
// independent of its version and fragment.
package tenttype

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidType = errors.New("invalid type URI")

type Type struct {
	Base        string
	Version     string
	Fragment    string
	HasFragment bool
}

// Parse splits a type URI into base, version and fragment. The version
// segment is required; the fragment is optional but its separator is
// preserved (an empty fragment after "#" is distinct from no fragment).
func Parse(uri string) (Type, error) {
	t := Type{}

	rest := uri
	if idx := strings.Index(rest, "#"); idx >= 0 {
		t.Fragment = rest[idx+1:]
		t.HasFragment = true
		rest = rest[:idx]
	}

	idx := strings.LastIndex(rest, "/v")
	if idx <= 0 || idx == len(rest)-2 {
		return Type{}, fmt.Errorf("%w: %q", ErrInvalidType, uri)
	}

	version := rest[idx+2:]
	if strings.ContainsAny(version, "/#") {
		return Type{}, fmt.Errorf("%w: %q", ErrInvalidType, uri)
	}

	t.Base = rest[:idx]
	t.Version = version

	if t.Base == "" {
		return Type{}, fmt.Errorf("%w: %q", ErrInvalidType, uri)
	}

	return t, nil
}

// Base returns the base portion of uri, or "" when uri does not parse.
func Base(uri string) string {
	t, err := Parse(uri)
	if err != nil {
		return ""
	}
	return t.Base
}

func (t Type) String() string {
	s := fmt.Sprintf("%s/v%s", t.Base, t.Version)
	if t.HasFragment {
		s += "#" + t.Fragment
	}
	return s
}

package codelist

import (
	"context"
	"sort"
)

// Provider resolves the clinical codes behind a semantic name. Static serves a
// file-loaded codelist from memory; Repository serves the database table with
// a redis cache in front.
type Provider interface {
	CodeSet(ctx context.Context, name string) ([]string, error)
}

// Static is the in-memory Provider for file-loaded codelists.
type Static struct {
	list Codelist
}

func NewStatic(list Codelist) Static {
	return Static{list: list}
}

func (s Static) CodeSet(_ context.Context, name string) ([]string, error) {
	set := s.list.CodeSet(name)
	codes := make([]string, 0, len(set))
	for code := range set {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes, nil
}

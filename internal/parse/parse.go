// Package parse turns source text into top-level declarations using tree-sitter.
package parse

import (
	"context"
	"crypto/sha256"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/declsync/internal/diag"
	"github.com/phobologic/declsync/internal/lang"
	"github.com/phobologic/declsync/internal/model"
)

// DefaultCacheSize is the number of parse results kept when no size is given.
const DefaultCacheSize = 256

const maxSnippet = 32

type cacheKey struct {
	dialect string
	sum     [sha256.Size]byte
}

type result struct {
	decls    []*model.Declaration
	problems diag.List
}

// Parser parses source text in any registered dialect. Results are cached by
// (dialect, text); callers always receive fresh copies, so they may keep or
// mutate what they get. A Parser is safe for concurrent use.
type Parser struct {
	cache *lru.Cache[cacheKey, result]
}

// New returns a Parser caching up to cacheSize results.
func New(cacheSize int) (*Parser, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[cacheKey, result](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating parse cache: %w", err)
	}
	return &Parser{cache: cache}, nil
}

// Parse returns the declarations in text. Malformed input fails with a
// *diag.Error listing every syntax problem; an unknown dialect fails with
// lang.ErrUnknownDialect.
func (p *Parser) Parse(text, dialect string) ([]*model.Declaration, error) {
	key := cacheKey{dialect: dialect, sum: sha256.Sum256([]byte(text))}
	r, ok := p.cache.Get(key)
	if !ok {
		l, err := lang.Lookup(dialect)
		if err != nil {
			return nil, err
		}
		r, err = parseSource(l, []byte(text))
		if err != nil {
			return nil, err
		}
		p.cache.Add(key, r)
	}
	if len(r.problems) > 0 {
		return nil, &diag.Error{Problems: append(diag.List(nil), r.problems...)}
	}
	out := make([]*model.Declaration, len(r.decls))
	for i, d := range r.decls {
		out[i] = d.Clone()
	}
	return out, nil
}

func parseSource(l *lang.Language, source []byte) (result, error) {
	if len(source) == 0 {
		return result{}, nil
	}

	parser := l.NewParser()
	defer parser.Close()

	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return result{}, fmt.Errorf("parsing %s source: %w", l.Name, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		var problems diag.List
		collectSyntaxProblems(root, source, &problems)
		if len(problems) == 0 {
			problems = append(problems, diag.Diagnostic{Kind: diag.Syntax, Line: 1, Column: 1, Message: "malformed source"})
		}
		return result{problems: problems}, nil
	}

	query, err := l.GetReferenceQuery()
	if err != nil {
		return result{}, err
	}

	var decls []*model.Declaration
	for i := 0; i < int(root.NamedChildCount()); i++ {
		for _, u := range l.Units(root.NamedChild(i), source) {
			decls = append(decls, &model.Declaration{
				Name:     u.Name,
				Kind:     u.Kind,
				Dialect:  l.Name,
				Body:     u.Body,
				Proto:    u.Proto,
				Storable: u.Storable,
				Symbols:  extractSymbols(query, u.Node, u.Name, source),
				Line:     int(u.Node.StartPoint().Row) + 1,
			})
		}
	}
	return result{decls: decls}, nil
}

// extractSymbols returns the names referenced inside node, in order of first
// appearance, without duplicates and without the declaration's own name.
func extractSymbols(query *sitter.Query, node *sitter.Node, self string, source []byte) []string {
	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(query, node)

	seen := map[string]struct{}{self: {}}
	var symbols []string
	for {
		match, ok := qc.NextMatch()
		if !ok {
			break
		}
		match = qc.FilterPredicates(match, source)
		for _, c := range match.Captures {
			if query.CaptureNameForId(c.Index) != "name" {
				continue
			}
			name := lang.NodeText(c.Node, source)
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			symbols = append(symbols, name)
		}
	}
	return symbols
}

func collectSyntaxProblems(node *sitter.Node, source []byte, out *diag.List) {
	pos := node.StartPoint()
	switch {
	case node.IsMissing():
		*out = append(*out, diag.Diagnostic{
			Kind:    diag.Syntax,
			Line:    int(pos.Row) + 1,
			Column:  int(pos.Column) + 1,
			Message: "missing " + node.Type(),
		})
		return
	case node.Type() == "ERROR":
		*out = append(*out, diag.Diagnostic{
			Kind:    diag.Syntax,
			Line:    int(pos.Row) + 1,
			Column:  int(pos.Column) + 1,
			Message: "unexpected " + snippet(lang.NodeText(node, source)),
		})
		return
	}
	if !node.HasError() {
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		collectSyntaxProblems(node.Child(i), source, out)
	}
}

func snippet(s string) string {
	s = lang.CollapseWhitespace(s)
	if len(s) > maxSnippet {
		s = s[:maxSnippet] + "..."
	}
	if s == "" {
		return "input"
	}
	return fmt.Sprintf("%q", s)
}

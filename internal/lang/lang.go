// Package lang provides a dialect registry mapping dialect names and file
// extensions to tree-sitter languages and their embedded reference queries.
package lang

import (
	"embed"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/declsync/internal/model"
)

//go:embed queries/*.scm
var queryFS embed.FS

var whitespaceRe = regexp.MustCompile(`\s+`)

// ErrUnknownDialect is returned for dialect names with no registered language.
var ErrUnknownDialect = errors.New("unknown dialect")

// Unit is one declaration found at the top level of a source file.
type Unit struct {
	Node     *sitter.Node
	Name     string
	Kind     model.Kind
	Proto    string
	Body     string
	Storable *bool
}

// Language holds tree-sitter configuration for a supported dialect.
type Language struct {
	Name       string
	Extensions []string
	lang       *sitter.Language
	queryOnce  sync.Once
	query      *sitter.Query
	queryErr   error

	// Units returns the declarations introduced by a direct child of the
	// root node. Nodes that declare nothing (imports, package clauses,
	// statements) yield nil.
	Units func(node *sitter.Node, source []byte) []Unit
}

// GetLanguage returns the tree-sitter Language pointer.
func (l *Language) GetLanguage() *sitter.Language {
	return l.lang
}

// NewParser creates a fresh tree-sitter parser for this language.
// A parser is not safe for concurrent use.
func (l *Language) NewParser() *sitter.Parser {
	p := sitter.NewParser()
	p.SetLanguage(l.lang)
	return p
}

// GetReferenceQuery returns the compiled reference query (safe to share across goroutines).
func (l *Language) GetReferenceQuery() (*sitter.Query, error) {
	l.queryOnce.Do(func() {
		data, err := queryFS.ReadFile(fmt.Sprintf("queries/%s.scm", l.Name))
		if err != nil {
			l.queryErr = fmt.Errorf("reading query file: %w", err)
			return
		}
		q, err := sitter.NewQuery(data, l.lang)
		if err != nil {
			l.queryErr = fmt.Errorf("compiling query: %w", err)
			return
		}
		l.query = q
	})
	return l.query, l.queryErr
}

// Languages maps dialect names to their configuration.
// Populated by init() functions in per-language files.
var Languages = map[string]*Language{}

// Lookup returns the language registered for dialect.
func Lookup(dialect string) (*Language, error) {
	l, ok := Languages[dialect]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownDialect, dialect)
	}
	return l, nil
}

// Names returns the registered dialect names in sorted order.
func Names() []string {
	names := make([]string, 0, len(Languages))
	for name := range Languages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// extensionMap is built lazily after all init() functions have run.
var extensionMap map[string]string
var extensionOnce sync.Once

func getExtensionMap() map[string]string {
	extensionOnce.Do(func() {
		extensionMap = make(map[string]string)
		for _, l := range Languages {
			for _, ext := range l.Extensions {
				extensionMap[ext] = l.Name
			}
		}
	})
	return extensionMap
}

// ForExtension returns the dialect name for a file extension, or "" if unsupported.
func ForExtension(ext string) string {
	return getExtensionMap()[ext]
}

// NodeText returns the source text of a tree-sitter node.
func NodeText(node *sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}

// CollapseWhitespace replaces runs of whitespace with a single space and trims.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// paramProfile turns a parameter list node into a proto: the list text
// without its outer parentheses, whitespace collapsed.
func paramProfile(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	text := CollapseWhitespace(NodeText(node, source))
	text = strings.TrimPrefix(text, "(")
	text = strings.TrimSuffix(text, ")")
	return strings.TrimSpace(text)
}

// fieldText returns the text of the named field child, or "".
func fieldText(node *sitter.Node, field string, source []byte) string {
	child := node.ChildByFieldName(field)
	if child == nil {
		return ""
	}
	return NodeText(child, source)
}

func boolPtr(v bool) *bool {
	return &v
}

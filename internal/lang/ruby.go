package lang

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/ruby"

	"github.com/phobologic/declsync/internal/model"
)

func init() {
	Languages["ruby"] = &Language{
		Name:       "ruby",
		Extensions: []string{".rb"},
		lang:       ruby.GetLanguage(),
		Units:      rubyUnits,
	}
}

func rubyUnits(node *sitter.Node, source []byte) []Unit {
	switch node.Type() {
	case "method":
		name := fieldText(node, "name", source)
		if name == "" {
			return nil
		}
		u := Unit{Node: node, Name: name, Body: NodeText(node, source)}
		if strings.HasPrefix(name, "test_") {
			u.Kind = model.Test
		} else {
			u.Kind = model.Method
			u.Proto = paramProfile(node.ChildByFieldName("parameters"), source)
		}
		return []Unit{u}

	case "singleton_method":
		// def self.foo
		name := fieldText(node, "name", source)
		if name == "" {
			return nil
		}
		if obj := fieldText(node, "object", source); obj != "" && obj != "self" {
			name = obj + "." + name
		}
		return []Unit{{
			Node:  node,
			Name:  name,
			Kind:  model.Method,
			Proto: paramProfile(node.ChildByFieldName("parameters"), source),
			Body:  NodeText(node, source),
		}}

	case "class", "module":
		name := fieldText(node, "name", source)
		if name == "" {
			return nil
		}
		return []Unit{{Node: node, Name: name, Kind: model.Type, Body: NodeText(node, source)}}
	}
	return nil
}

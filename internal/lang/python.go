package lang

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/phobologic/declsync/internal/model"
)

func init() {
	Languages["python"] = &Language{
		Name:       "python",
		Extensions: []string{".py"},
		lang:       python.GetLanguage(),
		Units:      pythonUnits,
	}
}

func pythonUnits(node *sitter.Node, source []byte) []Unit {
	def := node
	var decorators []string
	if node.Type() == "decorated_definition" {
		def = node.ChildByFieldName("definition")
		if def == nil {
			return nil
		}
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			if child.Type() == "decorator" {
				decorators = append(decorators, CollapseWhitespace(NodeText(child, source)))
			}
		}
	}

	name := fieldText(def, "name", source)
	if name == "" {
		return nil
	}
	// The body keeps decorators so the unit re-parses to the same declaration.
	u := Unit{Node: def, Name: name, Body: NodeText(node, source)}

	switch def.Type() {
	case "function_definition":
		if strings.HasPrefix(name, "test_") {
			u.Kind = model.Test
		} else {
			u.Kind = model.Method
			u.Proto = paramProfile(def.ChildByFieldName("parameters"), source)
		}
	case "class_definition":
		u.Kind = model.Type
		if pythonIsDataclass(decorators) {
			u.Storable = boolPtr(true)
		}
	default:
		return nil
	}
	return []Unit{u}
}

func pythonIsDataclass(decorators []string) bool {
	for _, d := range decorators {
		d = strings.TrimPrefix(d, "@")
		d = strings.TrimPrefix(d, "dataclasses.")
		if d == "dataclass" || strings.HasPrefix(d, "dataclass(") {
			return true
		}
	}
	return false
}

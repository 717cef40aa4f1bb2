package lang

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/phobologic/declsync/internal/model"
)

func init() {
	Languages["go"] = &Language{
		Name:       "go",
		Extensions: []string{".go"},
		lang:       golang.GetLanguage(),
		Units:      goUnits,
	}
}

func goUnits(node *sitter.Node, source []byte) []Unit {
	switch node.Type() {
	case "function_declaration":
		name := fieldText(node, "name", source)
		if name == "" {
			return nil
		}
		u := Unit{Node: node, Name: name, Body: NodeText(node, source)}
		params := node.ChildByFieldName("parameters")
		if goIsTest(name, params, source) {
			u.Kind = model.Test
		} else {
			u.Kind = model.Method
			u.Proto = paramProfile(params, source)
		}
		return []Unit{u}

	case "method_declaration":
		name := fieldText(node, "name", source)
		recv := goReceiverType(node.ChildByFieldName("receiver"), source)
		if name == "" {
			return nil
		}
		if recv != "" {
			name = recv + "." + name
		}
		return []Unit{{
			Node:  node,
			Name:  name,
			Kind:  model.Method,
			Proto: paramProfile(node.ChildByFieldName("parameters"), source),
			Body:  NodeText(node, source),
		}}

	case "type_declaration":
		return goTypeUnits(node, source)
	}
	return nil
}

// goTypeUnits splits a (possibly grouped) type declaration into one unit per
// spec. Each unit's body is a standalone "type ..." declaration.
func goTypeUnits(node *sitter.Node, source []byte) []Unit {
	var specs []*sitter.Node
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "type_spec" || child.Type() == "type_alias" {
			specs = append(specs, child)
		}
	}
	grouped := len(specs) > 1
	for i := 0; i < int(node.ChildCount()); i++ {
		if node.Child(i).Type() == "(" {
			grouped = true
		}
	}
	var units []Unit
	for _, spec := range specs {
		name := fieldText(spec, "name", source)
		if name == "" {
			continue
		}
		body := NodeText(node, source)
		if grouped {
			body = "type " + NodeText(spec, source)
		}
		units = append(units, Unit{
			Node:     spec,
			Name:     name,
			Kind:     model.Type,
			Body:     body,
			Storable: goStorable(spec.ChildByFieldName("type")),
		})
	}
	return units
}

// goStorable reports whether a struct type carries field tags. Non-struct
// types yield nil.
func goStorable(typeNode *sitter.Node) *bool {
	if typeNode == nil || typeNode.Type() != "struct_type" {
		return nil
	}
	for i := 0; i < int(typeNode.NamedChildCount()); i++ {
		list := typeNode.NamedChild(i)
		if list.Type() != "field_declaration_list" {
			continue
		}
		for j := 0; j < int(list.NamedChildCount()); j++ {
			field := list.NamedChild(j)
			if field.Type() == "field_declaration" && field.ChildByFieldName("tag") != nil {
				return boolPtr(true)
			}
		}
	}
	return boolPtr(false)
}

// goReceiverType extracts the receiver type name from a method receiver list,
// unwrapping pointer and generic types.
func goReceiverType(recv *sitter.Node, source []byte) string {
	if recv == nil {
		return ""
	}
	for i := 0; i < int(recv.NamedChildCount()); i++ {
		param := recv.NamedChild(i)
		if param.Type() != "parameter_declaration" {
			continue
		}
		t := param.ChildByFieldName("type")
		for t != nil {
			switch t.Type() {
			case "type_identifier":
				return NodeText(t, source)
			case "pointer_type":
				t = t.NamedChild(0)
			case "generic_type":
				t = t.ChildByFieldName("type")
			default:
				return ""
			}
		}
	}
	return ""
}

func goIsTest(name string, params *sitter.Node, source []byte) bool {
	if !strings.HasPrefix(name, "Test") || params == nil {
		return false
	}
	return strings.Contains(NodeText(params, source), "*testing.T")
}

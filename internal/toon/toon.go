// Package toon implements TOON (Token-Oriented Object Notation) encoding of
// catalogs, deltas and commit batches.
package toon

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/phobologic/declsync/internal/diag"
	"github.com/phobologic/declsync/internal/model"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// EncodeDelta converts a catalog delta into TOON format. A nil delta encodes
// as "unchanged: true".
func EncodeDelta(d *model.CatalogDelta) string {
	if d == nil {
		return "unchanged: true"
	}
	var parts []string
	if d.Core {
		parts = append(parts, "core: true")
	}
	if d.Select != "" {
		parts = append(parts, fmt.Sprintf("select: %s", encodeValue(d.Select)))
	}
	columns := []string{"kind", "name", "proto"}
	parts = append(parts, formatTabular("removed", columns, catalogRows(d.Removed)))
	parts = append(parts, formatTabular("added", columns, catalogRows(d.Added)))
	if len(d.Affected) > 0 {
		rows := make([][]string, len(d.Affected))
		for i, id := range d.Affected {
			rows[i] = []string{id}
		}
		parts = append(parts, formatTabular("affected", []string{"id"}, rows))
	}
	return strings.Join(parts, "\n")
}

func catalogRows(c model.Catalog) [][]string {
	var rows [][]string
	for _, name := range c.Types {
		rows = append(rows, []string{string(model.Type), name, ""})
	}
	for _, m := range c.Methods {
		for _, p := range m.Protos {
			rows = append(rows, []string{string(model.Method), m.Name, p})
		}
	}
	for _, name := range c.Tests {
		rows = append(rows, []string{string(model.Test), name, ""})
	}
	return rows
}

// EncodeDeclarations lists decls in the given order under section. Status
// is looked up by identity; declarations without one are shown as library.
func EncodeDeclarations(section string, decls []*model.Declaration, status func(id string) (model.EditStatus, bool)) string {
	rows := make([][]string, 0, len(decls))
	for _, d := range decls {
		st := "library"
		if status != nil {
			if s, ok := status(d.ID()); ok {
				st = string(s)
			}
		}
		rows = append(rows, []string{
			d.ID(),
			string(d.Kind),
			d.Dialect,
			st,
			strings.Join(d.Symbols, " "),
		})
	}
	return formatTabular(section, []string{"id", "kind", "dialect", "status", "symbols"}, rows)
}

// EncodeBatch converts a commit batch into TOON format.
func EncodeBatch(batch []model.EditedEntry) string {
	rows := make([][]string, 0, len(batch))
	for _, e := range batch {
		rows = append(rows, []string{
			e.ID,
			string(e.Status),
			fmt.Sprintf("%d", e.Revision),
			e.Record.Value.DbID,
		})
	}
	return formatTabular("pending", []string{"id", "status", "revision", "dbId"}, rows)
}

// EncodeDiagnostics converts diagnostics into TOON format.
func EncodeDiagnostics(problems diag.List) string {
	rows := make([][]string, 0, len(problems))
	for _, p := range problems {
		rows = append(rows, []string{
			fmt.Sprintf("%d", p.Line),
			fmt.Sprintf("%d", p.Column),
			string(p.Kind),
			p.Message,
		})
	}
	return formatTabular("problems", []string{"line", "column", "kind", "message"}, rows)
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}
	if value != strings.TrimSpace(value) || strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}
	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}
	if looksNumeric.MatchString(value) {
		return value
	}
	if needsQuoting.MatchString(value) || strings.HasPrefix(value, "-") {
		return quote(value)
	}
	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}

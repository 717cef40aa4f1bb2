package ranking

import (
	"reflect"
	"testing"

	"github.com/phobologic/declsync/internal/model"
)

func ids(decls []*model.Declaration) []string {
	out := make([]string, len(decls))
	for i, d := range decls {
		out[i] = d.ID()
	}
	return out
}

func makeDecls() []*model.Declaration {
	return []*model.Declaration{
		{Name: "Server", Kind: model.Type},
		{Name: "Server.Start", Kind: model.Method, Symbols: []string{"listen", "Server"}},
		{Name: "listen", Kind: model.Method},
		{Name: "unrelated", Kind: model.Method},
		{Name: "TestStart", Kind: model.Test, Symbols: []string{"Start"}},
	}
}

func TestTop(t *testing.T) {
	t.Parallel()

	decls := makeDecls()
	if got := Top(decls, 0); len(got) != len(decls) {
		t.Errorf("max=0: got %d declarations", len(got))
	}
	if got := Top(decls, 10); len(got) != len(decls) {
		t.Errorf("max>len: got %d declarations", len(got))
	}
	got := Top(decls, 2)
	if want := []string{"Server", "Server.Start/"}; !reflect.DeepEqual(ids(got), want) {
		t.Errorf("Top(2) = %v, want %v", ids(got), want)
	}
}

func TestFilterBySymbol(t *testing.T) {
	t.Parallel()

	got := FilterBySymbol(makeDecls(), "start")
	want := []string{"Server", "Server.Start/", "listen/", "TestStart"}
	if !reflect.DeepEqual(ids(got), want) {
		t.Errorf("FilterBySymbol(start) = %v, want %v", ids(got), want)
	}

	if got := FilterBySymbol(makeDecls(), "nothing"); got != nil {
		t.Errorf("expected nil, got %v", ids(got))
	}
}

func TestFilterByKind(t *testing.T) {
	t.Parallel()

	got := FilterByKind(makeDecls(), model.Type, model.Test)
	want := []string{"Server", "TestStart"}
	if !reflect.DeepEqual(ids(got), want) {
		t.Errorf("FilterByKind = %v, want %v", ids(got), want)
	}
	if got := FilterByKind(makeDecls()); len(got) != 5 {
		t.Errorf("no kinds should keep all, got %d", len(got))
	}
}

func TestParseKinds(t *testing.T) {
	t.Parallel()

	kinds, unknown := ParseKinds("Type, method,,widget")
	if want := []model.Kind{model.Type, model.Method}; !reflect.DeepEqual(kinds, want) {
		t.Errorf("kinds = %v, want %v", kinds, want)
	}
	if want := []string{"widget"}; !reflect.DeepEqual(unknown, want) {
		t.Errorf("unknown = %v, want %v", unknown, want)
	}
}

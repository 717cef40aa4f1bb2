package check

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/declsync/internal/diag"
	"github.com/phobologic/declsync/internal/model"
	"github.com/phobologic/declsync/internal/scope"
)

func run(t *testing.T, parent *scope.Scope, decls ...*model.Declaration) diag.List {
	t.Helper()
	var c diag.Collector
	parent.WithListener(&c, func() {
		New().Check(decls, parent.NewChild())
	})
	return c.Problems
}

func TestCheckClean(t *testing.T) {
	t.Parallel()
	problems := run(t, scope.New(),
		&model.Declaration{Name: "Server", Kind: model.Type},
		&model.Declaration{Name: "Server.Start", Kind: model.Method},
	)
	assert.Empty(t, problems)
}

func TestCheckDuplicateInBatch(t *testing.T) {
	t.Parallel()
	problems := run(t, scope.New(),
		&model.Declaration{Name: "f", Kind: model.Method, Line: 1},
		&model.Declaration{Name: "f", Kind: model.Method, Line: 5},
	)
	require.Len(t, problems, 1)
	assert.Equal(t, diag.Semantic, problems[0].Kind)
	assert.Equal(t, 5, problems[0].Line)
	assert.Contains(t, problems[0].Message, "duplicate declaration f/")
}

func TestCheckUnknownReceiver(t *testing.T) {
	t.Parallel()
	problems := run(t, scope.New(),
		&model.Declaration{Name: "Ghost.Walk", Kind: model.Method, Line: 3},
	)
	require.Len(t, problems, 1)
	assert.Equal(t, diag.Semantic, problems[0].Kind)
	assert.Contains(t, problems[0].Message, "receiver type Ghost")
}

func TestCheckReceiverFromParent(t *testing.T) {
	t.Parallel()
	lib := scope.New()
	require.NoError(t, lib.Register(&model.Declaration{Name: "Server", Kind: model.Type}))

	problems := run(t, lib.NewChild(), &model.Declaration{Name: "Server.Stop", Kind: model.Method})
	assert.Empty(t, problems)
}

func TestCheckTestWithoutTarget(t *testing.T) {
	t.Parallel()
	project := scope.New().NewChild()
	require.NoError(t, project.Register(&model.Declaration{Name: "add", Kind: model.Method}))

	problems := run(t, project,
		&model.Declaration{Name: "TestAdd", Kind: model.Test, Symbols: []string{"add"}},
		&model.Declaration{Name: "TestNothing", Kind: model.Test, Symbols: []string{"Errorf"}},
	)
	require.Len(t, problems, 1)
	assert.Equal(t, diag.Warning, problems[0].Kind)
	assert.Contains(t, problems[0].Message, "TestNothing")
	assert.False(t, problems.HasErrors())
}

func TestCheckLeavesParentUntouched(t *testing.T) {
	t.Parallel()
	project := scope.New().NewChild()
	run(t, project, &model.Declaration{Name: "Scratch", Kind: model.Type})
	assert.Equal(t, 0, project.Len())
}

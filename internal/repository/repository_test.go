package repository

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/declsync/internal/check"
	"github.com/phobologic/declsync/internal/diag"
	"github.com/phobologic/declsync/internal/model"
	"github.com/phobologic/declsync/internal/parse"
)

func newRepo(t *testing.T) *Repository {
	t.Helper()
	p, err := parse.New(0)
	require.NoError(t, err)
	return New(p, check.New(), Config{Dialect: "go"})
}

func methodRecord(name, body, dbID string) model.Record {
	proto := ""
	return model.Record{
		Type: model.Method.RecordType(),
		Value: model.RecordValue{
			Name:      name,
			Version:   model.DefaultVersion,
			Dialect:   "go",
			Body:      body,
			Prototype: &proto,
			DbID:      dbID,
			Module:    model.NewModuleRef("mod-1"),
		},
	}
}

// commitAll acknowledges every pending entry.
func commitAll(t *testing.T, r *Repository) {
	t.Helper()
	batch := r.PrepareCommit()
	acks := make([]model.Ack, len(batch))
	for i, e := range batch {
		acks[i] = model.Ack{Key: e.Key, Revision: e.Revision, DbID: "db-" + e.ID}
	}
	_, err := r.CommitAcknowledged(acks)
	require.NoError(t, err)
	require.Nil(t, r.PrepareCommit())
}

// edit applies text and fails the test on any diagnostic error.
func edit(t *testing.T, r *Repository, text string) *model.CatalogDelta {
	t.Helper()
	delta, problems, err := r.EditContent(text, "go")
	require.NoError(t, err)
	require.False(t, problems.HasErrors(), problems.String())
	return delta
}

func TestEditSameTextIsNoUpdate(t *testing.T) {
	t.Parallel()
	r := newRepo(t)
	text := "func f() {}\n\ntype T struct{}\n"

	require.NotNil(t, edit(t, r, text))
	assert.Nil(t, edit(t, r, text))
}

func TestBodyEditMarksDirty(t *testing.T) {
	t.Parallel()
	r := newRepo(t)
	require.NoError(t, r.RegisterProjectRecords("mod-1", []model.Record{
		methodRecord("f", "func f() {}", "db-f"),
	}))
	_, err := r.SetContent("func f() {}", "go")
	require.NoError(t, err)

	delta := edit(t, r, "func f() { println() }")
	require.NotNil(t, delta)
	assert.Empty(t, delta.Removed.Methods)
	assert.Equal(t, []model.MethodProto{{Name: "f", Protos: []string{""}}}, delta.Added.Methods)
	assert.Equal(t, "f/", delta.Select)

	status, ok := r.Status("f/")
	require.True(t, ok)
	assert.Equal(t, model.Dirty, status)
}

func TestCreatedIsSticky(t *testing.T) {
	t.Parallel()
	r := newRepo(t)
	edit(t, r, "func f() {}")
	edit(t, r, "func f() { println() }")

	status, _ := r.Status("f/")
	assert.Equal(t, model.Created, status)
	entry, _ := r.Entry("f/")
	assert.Equal(t, "func f() { println() }", entry.Record.Value.Body)
	assert.Equal(t, model.DefaultVersion, entry.Record.Value.Version)
}

func TestRenameKeepsEntry(t *testing.T) {
	t.Parallel()
	r := newRepo(t)
	require.NoError(t, r.RegisterProjectRecords("mod-1", []model.Record{
		methodRecord("foo", "func foo() {}", "db-foo"),
	}))
	_, err := r.SetContent("func foo() {}", "go")
	require.NoError(t, err)
	before, _ := r.Entry("foo/")

	delta := edit(t, r, "func bar() {}")
	require.NotNil(t, delta)
	assert.Equal(t, []model.MethodProto{{Name: "foo", Protos: []string{""}}}, delta.Removed.Methods)
	assert.Equal(t, []model.MethodProto{{Name: "bar", Protos: []string{""}}}, delta.Added.Methods)

	_, ok := r.Status("foo/")
	assert.False(t, ok)
	after, ok := r.Entry("bar/")
	require.True(t, ok)
	assert.Equal(t, model.Dirty, after.Status)
	assert.Equal(t, before.Key, after.Key)
	assert.Equal(t, "db-foo", after.Record.Value.DbID)
	assert.Equal(t, "mod-1", after.Record.Value.Module.Value.DbID)
	assert.Equal(t, "bar", after.Record.Value.Name)

	_, ok = r.Declaration("foo/")
	assert.False(t, ok)
	_, ok = r.Declaration("bar/")
	assert.True(t, ok)
}

func TestRenameOfCreatedStaysCreated(t *testing.T) {
	t.Parallel()
	r := newRepo(t)
	edit(t, r, "func foo() {}")
	edit(t, r, "func bar() {}")

	status, ok := r.Status("bar/")
	require.True(t, ok)
	assert.Equal(t, model.Created, status)
	_, ok = r.Status("foo/")
	assert.False(t, ok)
	assert.Len(t, r.PrepareCommit(), 1)
}

func TestTwoRenamesAreNotReconciled(t *testing.T) {
	t.Parallel()
	r := newRepo(t)
	edit(t, r, "func foo() {}\n\nfunc baz() {}\n")
	commitAll(t, r)

	edit(t, r, "func bar() {}\n\nfunc qux() {}\n")

	for id, want := range map[string]model.EditStatus{
		"foo/": model.Clean,
		"baz/": model.Clean,
		"bar/": model.Created,
		"qux/": model.Created,
	} {
		got, ok := r.Status(id)
		require.True(t, ok, id)
		assert.Equal(t, want, got, id)
	}
}

func TestDestroyTwoSteps(t *testing.T) {
	t.Parallel()
	r := newRepo(t)
	require.NoError(t, r.RegisterLibraryCode("type Shared int", "go"))
	require.NoError(t, r.RegisterProjectRecords("mod-1", []model.Record{
		methodRecord("f", "func f() {}", "db-f"),
		{Type: model.Type.RecordType(), Value: model.RecordValue{Name: "Shared", Dialect: "go", Body: "type Shared int"}},
	}))

	delta, err := r.Destroy("f/")
	require.NoError(t, err)
	assert.Nil(t, delta)
	status, _ := r.Status("f/")
	assert.Equal(t, model.Deleted, status)
	_, ok := r.Declaration("f/")
	assert.True(t, ok)

	delta, err = r.Destroy("f/")
	require.NoError(t, err)
	require.NotNil(t, delta)
	assert.Equal(t, []model.MethodProto{{Name: "f", Protos: []string{""}}}, delta.Removed.Methods)
	_, ok = r.Declaration("f/")
	assert.False(t, ok)

	delta, err = r.Destroy("f/")
	require.NoError(t, err)
	assert.Nil(t, delta)

	// Shared is still visible unchanged through the library.
	_, err = r.Destroy("Shared")
	require.NoError(t, err)
	delta, err = r.Destroy("Shared")
	require.NoError(t, err)
	assert.Nil(t, delta)
}

func TestDestroyCreatedDropsEntry(t *testing.T) {
	t.Parallel()
	r := newRepo(t)
	edit(t, r, "func f() {}")

	delta, err := r.Destroy("f/")
	require.NoError(t, err)
	require.NotNil(t, delta)
	assert.Equal(t, []model.MethodProto{{Name: "f", Protos: []string{""}}}, delta.Removed.Methods)
	_, ok := r.Status("f/")
	assert.False(t, ok)
	assert.Nil(t, r.PrepareCommit())
}

func TestDestroyUnknown(t *testing.T) {
	t.Parallel()
	r := newRepo(t)
	_, err := r.Destroy("nope")
	assert.True(t, errors.Is(err, ErrUnknownDeclaration))
}

func TestDestroyReportsAffected(t *testing.T) {
	t.Parallel()
	r := newRepo(t)
	require.NoError(t, r.RegisterProjectRecords("mod-1", []model.Record{
		methodRecord("helper", "func helper() {}", "db-h"),
		methodRecord("caller", "func caller() { helper() }", "db-c"),
	}))

	_, err := r.Destroy("helper/")
	require.NoError(t, err)
	delta, err := r.Destroy("helper/")
	require.NoError(t, err)
	require.NotNil(t, delta)
	assert.Equal(t, []string{"caller/"}, delta.Affected)
}

func TestCommitCycle(t *testing.T) {
	t.Parallel()
	r := newRepo(t)
	assert.Nil(t, r.PrepareCommit())

	edit(t, r, "func f() {}")
	batch := r.PrepareCommit()
	require.Len(t, batch, 1)
	assert.Equal(t, "f/", batch[0].ID)
	assert.Equal(t, model.Created, batch[0].Status)

	r.CommitFailed()
	require.Len(t, r.PrepareCommit(), 1)

	_, err := r.CommitAcknowledged([]model.Ack{{Key: batch[0].Key, Revision: batch[0].Revision, DbID: "db-1"}})
	require.NoError(t, err)

	status, _ := r.Status("f/")
	assert.Equal(t, model.Clean, status)
	entry, _ := r.Entry("f/")
	assert.Equal(t, "db-1", entry.Record.Value.DbID)
	assert.Nil(t, r.PrepareCommit())
}

func TestCommitBatchIsACopy(t *testing.T) {
	t.Parallel()
	r := newRepo(t)
	edit(t, r, "func f() {}")
	batch := r.PrepareCommit()

	edit(t, r, "func f() { println() }")
	assert.Equal(t, "func f() {}", batch[0].Record.Value.Body)
}

func TestAckAfterRenameInFlight(t *testing.T) {
	t.Parallel()
	r := newRepo(t)
	edit(t, r, "func foo() {}")
	batch := r.PrepareCommit()
	require.Len(t, batch, 1)

	edit(t, r, "func bar() {}")
	_, err := r.CommitAcknowledged([]model.Ack{{Key: batch[0].Key, Revision: batch[0].Revision, DbID: "db-1"}})
	require.NoError(t, err)

	entry, ok := r.Entry("bar/")
	require.True(t, ok)
	assert.Equal(t, "db-1", entry.Record.Value.DbID)
	assert.Equal(t, model.Dirty, entry.Status)

	pending := r.PrepareCommit()
	require.Len(t, pending, 1)
	assert.Equal(t, "bar/", pending[0].ID)
}

func TestAckOfDeletionLeavesTable(t *testing.T) {
	t.Parallel()
	r := newRepo(t)
	require.NoError(t, r.RegisterProjectRecords("mod-1", []model.Record{
		methodRecord("f", "func f() {}", "db-f"),
	}))
	_, err := r.Destroy("f/")
	require.NoError(t, err)

	batch := r.PrepareCommit()
	require.Len(t, batch, 1)
	assert.Equal(t, model.Deleted, batch[0].Status)

	delta, err := r.CommitAcknowledged([]model.Ack{{Key: batch[0].Key, Revision: batch[0].Revision}})
	require.NoError(t, err)
	require.NotNil(t, delta)
	assert.Equal(t, []model.MethodProto{{Name: "f", Protos: []string{""}}}, delta.Removed.Methods)

	_, ok := r.Status("f/")
	assert.False(t, ok)
	_, ok = r.Declaration("f/")
	assert.False(t, ok)
}

func TestFailedParseChangesNothing(t *testing.T) {
	t.Parallel()
	r := newRepo(t)
	edit(t, r, "func f() {}")
	baseline, _ := r.Baseline()
	batch := r.PrepareCommit()
	catalog := r.PublishProject()

	delta, problems, err := r.EditContent("func f( {", "go")
	require.NoError(t, err)
	assert.Nil(t, delta)
	assert.Positive(t, problems.Count(diag.Syntax))

	text, _ := r.Baseline()
	assert.Equal(t, baseline, text)
	assert.Equal(t, batch, r.PrepareCommit())
	assert.Equal(t, catalog, r.PublishProject())
}

func TestDuplicateInBatchIsSemanticError(t *testing.T) {
	t.Parallel()
	r := newRepo(t)
	delta, problems, err := r.EditContent("func f() {}\n\nfunc f() {}\n", "go")
	require.NoError(t, err)
	assert.Nil(t, delta)
	assert.Equal(t, 1, problems.Count(diag.Semantic))
	assert.Nil(t, r.PrepareCommit())
}

func TestSetContentChecksWithoutRegistering(t *testing.T) {
	t.Parallel()
	r := newRepo(t)
	problems, err := r.SetContent("func (u *User) Name() string { return \"\" }", "go")
	require.NoError(t, err)
	assert.Equal(t, 1, problems.Count(diag.Semantic))
	assert.Empty(t, r.ProjectDeclarations())

	text, _ := r.Baseline()
	assert.Contains(t, text, "Name")

	problems, err = r.SetContent("func (", "go")
	require.NoError(t, err)
	assert.True(t, problems.HasErrors())
	text, _ = r.Baseline()
	assert.Contains(t, text, "Name")
}

func TestUnknownDialect(t *testing.T) {
	t.Parallel()
	r := newRepo(t)
	_, _, err := r.EditContent("x", "cobol")
	assert.Error(t, err)
}

func TestPublishAndUnpublish(t *testing.T) {
	t.Parallel()
	r := newRepo(t)
	require.NoError(t, r.RegisterLibraryCode("type Shared int\n\nfunc util() {}\n", "go"))
	edit(t, r, "type Own struct{}")

	libs := r.PublishLibraries()
	assert.True(t, libs.Core)
	assert.Equal(t, []string{"Shared"}, libs.Added.Types)

	project := r.PublishProject()
	assert.Equal(t, []string{"Own"}, project.Added.Types)
	assert.True(t, project.Removed.Empty())

	removed := r.UnpublishProject()
	assert.Equal(t, []string{"Own"}, removed.Removed.Types)
	assert.Empty(t, r.ProjectDeclarations())
	assert.Nil(t, r.PrepareCommit())
	text, _ := r.Baseline()
	assert.Empty(t, text)
}

func TestProtoMove(t *testing.T) {
	t.Parallel()
	r := newRepo(t)
	edit(t, r, "func f() {}")

	delta := edit(t, r, "func f(x int) {}")
	require.NotNil(t, delta)
	assert.Equal(t, []model.MethodProto{{Name: "f", Protos: []string{""}}}, delta.Removed.Methods)
	assert.Equal(t, []model.MethodProto{{Name: "f", Protos: []string{"x int"}}}, delta.Added.Methods)

	entry, ok := r.Entry("f/x int")
	require.True(t, ok)
	assert.Equal(t, model.Created, entry.Status)
	assert.Equal(t, "x int", *entry.Record.Value.Prototype)
}

func TestRedeclaringDeletedRevives(t *testing.T) {
	t.Parallel()
	r := newRepo(t)
	require.NoError(t, r.RegisterProjectRecords("mod-1", []model.Record{
		methodRecord("f", "func f() {}", "db-f"),
	}))
	_, err := r.Destroy("f/")
	require.NoError(t, err)
	_, err = r.Destroy("f/")
	require.NoError(t, err)

	edit(t, r, "func f() { println() }")
	entry, ok := r.Entry("f/")
	require.True(t, ok)
	assert.Equal(t, model.Dirty, entry.Status)
	assert.False(t, entry.Detached)
	_, ok = r.Declaration("f/")
	assert.True(t, ok)
}

func TestSiblingEditKeepsDeletion(t *testing.T) {
	t.Parallel()
	r := newRepo(t)
	require.NoError(t, r.RegisterProjectRecords("mod-1", []model.Record{
		methodRecord("f", "func f() {}", "db-f"),
		methodRecord("g", "func g() {}", "db-g"),
	}))
	_, err := r.SetContent("func f() {}\n\nfunc g() {}", "go")
	require.NoError(t, err)
	_, err = r.Destroy("f/")
	require.NoError(t, err)

	edit(t, r, "func f() {}\n\nfunc g() { println() }")

	status, _ := r.Status("f/")
	assert.Equal(t, model.Deleted, status)
	status, _ = r.Status("g/")
	assert.Equal(t, model.Dirty, status)

	batch := r.PrepareCommit()
	require.Len(t, batch, 2)
	byID := map[string]model.EditStatus{}
	for _, e := range batch {
		byID[e.ID] = e.Status
	}
	assert.Equal(t, model.Deleted, byID["f/"])
	assert.Equal(t, model.Dirty, byID["g/"])
}

func TestUnchangedRedeclarationOfDetachedStaysDeleted(t *testing.T) {
	t.Parallel()
	r := newRepo(t)
	require.NoError(t, r.RegisterProjectRecords("mod-1", []model.Record{
		methodRecord("f", "func f() {}", "db-f"),
		methodRecord("g", "func g() {}", "db-g"),
	}))
	_, err := r.SetContent("func f() {}\n\nfunc g() {}", "go")
	require.NoError(t, err)
	_, err = r.Destroy("f/")
	require.NoError(t, err)
	_, err = r.Destroy("f/")
	require.NoError(t, err)

	edit(t, r, "func f() {}\n\nfunc g() { println() }")
	entry, ok := r.Entry("f/")
	require.True(t, ok)
	assert.Equal(t, model.Deleted, entry.Status)
	assert.False(t, entry.Detached)
	_, ok = r.Declaration("f/")
	require.True(t, ok)

	commitAll(t, r)
	_, ok = r.Status("f/")
	assert.False(t, ok)
	_, ok = r.Declaration("f/")
	assert.False(t, ok, "acknowledged deletion should unregister the redeclared entry")
	status, _ := r.Status("g/")
	assert.Equal(t, model.Clean, status)
}

func TestRegisterProjectRecordsSlimsModule(t *testing.T) {
	t.Parallel()
	r := newRepo(t)
	rec := methodRecord("f", "func f() {}", "db-f")
	rec.Value.Module.Type = "ModuleWithImages"
	require.NoError(t, r.RegisterProjectRecords("mod-1", []model.Record{rec}))

	entry, _ := r.Entry("f/")
	assert.Equal(t, model.NewModuleRef("mod-1"), entry.Record.Value.Module)
	assert.Equal(t, "mod-1", r.ModuleID())
	assert.Equal(t, model.Clean, entry.Status)
}

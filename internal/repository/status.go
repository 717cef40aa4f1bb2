package repository

import (
	"slices"
	"sort"

	"github.com/phobologic/declsync/internal/model"
)

// registerClean adds a persisted record to the status table.
func (r *Repository) registerClean(rec model.Record) {
	r.track(&model.StatusEntry{Record: rec, Status: model.Clean})
}

func (r *Repository) track(e *model.StatusEntry) {
	r.seq++
	e.Key = r.newKey()
	e.Seq = r.seq
	r.statuses[e.Record.ID()] = e
	r.byKey[e.Key] = e
}

func (r *Repository) forget(e *model.StatusEntry) {
	delete(r.statuses, e.Record.ID())
	delete(r.byKey, e.Key)
}

// markDirty applies the content-comparison rule to d: unknown identities
// become CREATED, changed CLEAN or DIRTY entries become DIRTY, CREATED stays
// CREATED and a DELETED entry declared again with different content is
// revived as DIRTY. An unchanged DELETED entry stays DELETED.
func (r *Repository) markDirty(d *model.Declaration) {
	e, ok := r.statuses[d.ID()]
	if !ok {
		rec := model.NewRecord(d)
		if r.moduleID != "" {
			rec.Value.Module = model.NewModuleRef(r.moduleID)
		}
		r.track(&model.StatusEntry{Record: rec, Status: model.Created})
		return
	}

	switch e.Status {
	case model.Deleted:
		// the edit registered d again, so the acknowledgment must unregister it
		e.Detached = false
		if changed(e.Record, d) {
			fillSnapshot(&e.Record, d)
			e.Status = model.Dirty
			e.Revision++
		}
	case model.Created:
		if changed(e.Record, d) {
			fillSnapshot(&e.Record, d)
			e.Revision++
		}
	default:
		if changed(e.Record, d) {
			fillSnapshot(&e.Record, d)
			e.Status = model.Dirty
			e.Revision++
		}
	}
}

// rekey moves the entry stored under oldID to the identity of d and refreshes
// its snapshot. The surrogate key, persisted ids and version are kept.
func (r *Repository) rekey(oldID string, d *model.Declaration) {
	e := r.statuses[oldID]
	delete(r.statuses, oldID)

	e.Record.Type = d.Kind.RecordType()
	e.Record.Value.Name = d.Name
	fillSnapshot(&e.Record, d)
	if e.Status != model.Created {
		e.Status = model.Dirty
	}
	e.Detached = false
	e.Revision++
	r.statuses[d.ID()] = e
}

// changed reports whether d differs from the snapshot in body, dialect or proto.
func changed(rec model.Record, d *model.Declaration) bool {
	proto := ""
	if rec.Value.Prototype != nil {
		proto = *rec.Value.Prototype
	}
	return rec.Value.Body != d.Body || rec.Value.Dialect != d.Dialect || proto != d.Proto
}

func fillSnapshot(rec *model.Record, d *model.Declaration) {
	v := &rec.Value
	v.Dialect = d.Dialect
	v.Body = d.Body
	v.Prototype = nil
	if d.Kind.Overloadable() {
		p := d.Proto
		v.Prototype = &p
	}
	v.Storable = nil
	if d.Storable != nil {
		s := *d.Storable
		v.Storable = &s
	}
	v.Symbols = slices.Clone(d.Symbols)
}

// PrepareCommit returns every non-CLEAN entry as an ordered batch of
// copies. A nil batch means there is nothing to commit.
func (r *Repository) PrepareCommit() []model.EditedEntry {
	var pending []*model.StatusEntry
	for _, e := range r.statuses {
		if e.Status != model.Clean {
			pending = append(pending, e)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Seq < pending[j].Seq })

	batch := make([]model.EditedEntry, len(pending))
	for i, e := range pending {
		batch[i] = model.EditedEntry{
			Key:      e.Key,
			ID:       e.Record.ID(),
			Revision: e.Revision,
			Status:   e.Status,
			Record:   e.Record.Clone(),
		}
	}
	return batch
}

// CommitAcknowledged applies the store's acknowledgments. Entries are found
// by surrogate key, so a rename made while the commit was in flight does not
// lose the acknowledgment. An entry edited since the batch was prepared keeps
// its pending status and only records its new persisted id.
//
// Acknowledged deletions leave the table; those still registered in the
// project scope are unregistered and reported in the returned delta.
func (r *Repository) CommitAcknowledged(acks []model.Ack) (*model.CatalogDelta, error) {
	var removed []*model.Declaration
	for _, ack := range acks {
		e, ok := r.byKey[ack.Key]
		if !ok {
			r.logger.Warn("acknowledgment for unknown entry", "key", ack.Key)
			continue
		}
		if ack.DbID != "" {
			e.Record.Value.DbID = ack.DbID
		}
		if r.moduleID != "" && e.Record.Value.Module == nil {
			e.Record.Value.Module = model.NewModuleRef(r.moduleID)
		}

		if e.Revision != ack.Revision {
			if e.Status == model.Created {
				e.Status = model.Dirty
			}
			r.logger.Debug("entry edited during commit",
				"id", e.Record.ID(), "acked", ack.Revision, "current", e.Revision)
			continue
		}

		if e.Status != model.Deleted {
			e.Status = model.Clean
			continue
		}
		r.forget(e)
		if e.Detached {
			continue
		}
		d, ok := r.project.LookupLocal(e.Record.ID())
		if !ok {
			continue
		}
		if err := r.project.Unregister(d); err != nil {
			r.logger.Error("registry consistency violation", "id", d.ID(), "error", err)
			return nil, err
		}
		removed = append(removed, d)
	}
	return r.removalDelta(removed), nil
}

// CommitFailed leaves every entry pending so the next PrepareCommit retries it.
func (r *Repository) CommitFailed() {
	r.logger.Debug("commit failed, entries stay pending", "pending", r.pending())
}

func (r *Repository) pending() int {
	n := 0
	for _, e := range r.statuses {
		if e.Status != model.Clean {
			n++
		}
	}
	return n
}

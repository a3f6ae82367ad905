package treedex

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/treedex/treedex/internal/nodestore"
	"github.com/treedex/treedex/pkg/flatfile"
	"github.com/treedex/treedex/pkg/types"
)

// ImportNodes bulk-loads a snapshot. Every record gets a fresh node id;
// the returned map translates record ids to them. A record's Parent may
// name another record in the batch or, when it parses as a node id, an
// already stored node. Records without an explicit priority keep their
// input order among siblings. The whole batch is one store transaction
// followed by a single coalesced rebuild.
func (t *Tree) ImportNodes(ctx context.Context, records []flatfile.Record) (map[string]types.NodeID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	store, err := t.storeHandle()
	if err != nil {
		return nil, err
	}

	idMap := make(map[string]types.NodeID, len(records))
	for i, rec := range records {
		if rec.ID == "" {
			return nil, fmt.Errorf("record %d: empty id", i)
		}
		if _, dup := idMap[rec.ID]; dup {
			return nil, fmt.Errorf("record %d: duplicate id %q", i, rec.ID)
		}
		idMap[rec.ID] = types.NewNodeID()
	}

	// Parents outside the batch must already exist in the store.
	var external []types.NodeID
	for i, rec := range records {
		if rec.Parent == "" {
			continue
		}
		if _, ok := idMap[rec.Parent]; ok {
			continue
		}
		pid, err := types.NodeIDFromString(rec.Parent)
		if err != nil {
			return nil, fmt.Errorf("record %d: unknown parent %q", i, rec.Parent)
		}
		external = append(external, pid)
	}
	if len(external) > 0 {
		exists, err := store.BatchCheckExistence(external)
		if err != nil {
			return nil, err
		}
		for _, pid := range external {
			if !exists[pid] {
				return nil, fmt.Errorf("parent %s not found", pid)
			}
		}
	}

	appendAt := make(map[types.NodeID]int)
	nextRank := func(parent types.NodeID) int {
		if _, ok := appendAt[parent]; !ok {
			appendAt[parent] = t.index.ChildCount(parent)
		}
		r := appendAt[parent]
		appendAt[parent]++
		return r
	}

	now := time.Now().UTC()
	batch := nodestore.Batch{Puts: make([]types.Node, 0, len(records))}
	for _, rec := range records {
		var parent types.NodeID
		if rec.Parent != "" {
			if mapped, ok := idMap[rec.Parent]; ok {
				parent = mapped
			} else {
				parent, _ = types.NodeIDFromString(rec.Parent)
			}
		}
		rank := nextRank(parent)
		if rec.Priority != nil {
			rank = *rec.Priority
		}
		batch.Puts = append(batch.Puts, types.Node{
			ID:        idMap[rec.ID],
			Parent:    parent,
			Priority:  rank,
			Seq:       t.nextSeq(),
			CreatedAt: now,
			Name:      rec.Name,
			Payload:   rec.Payload,
		})
	}

	if err := store.ApplyBatch(batch); err != nil {
		return nil, err
	}
	for _, n := range batch.Puts {
		t.index.AddChild(n.Parent, n.ID)
	}

	t.queue.Add(nil)
	if err := t.queue.Drain(ctx); err != nil {
		return nil, err
	}
	t.invalidateCache()
	return idMap, nil
}

// ExportNodes snapshots the whole forest in depth-first order. Parent
// references are node id strings, so a round trip through ImportNodes
// reproduces the structure.
func (t *Tree) ExportNodes(ctx context.Context) ([]flatfile.Record, error) {
	store, err := t.readReady(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := store.AllNodes()
	if err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Path < rows[j].Path })

	out := make([]flatfile.Record, 0, len(rows))
	for _, n := range rows {
		rec := flatfile.Record{
			ID:      n.ID.String(),
			Name:    n.Name,
			Payload: n.Payload,
		}
		if !n.Parent.IsZero() {
			rec.Parent = n.Parent.String()
		}
		p := n.Priority
		rec.Priority = &p
		out = append(out, rec)
	}
	return out, nil
}

// ExportFile writes the forest snapshot to path via flatfile.WriteFile.
func (t *Tree) ExportFile(ctx context.Context, path string) error {
	records, err := t.ExportNodes(ctx)
	if err != nil {
		return err
	}
	return flatfile.WriteFile(path, records)
}

// ImportFile loads a snapshot written by ExportFile.
func (t *Tree) ImportFile(ctx context.Context, path string) (map[string]types.NodeID, error) {
	records, err := flatfile.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return t.ImportNodes(ctx, records)
}

// Package storetest holds behaviour checks shared by every store backend.
package storetest

import (
	"context"
	"errors"
	"testing"

	"photobox/internal/docpath"
	"photobox/internal/store"
)

func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Helper()
	t.Run("create then get", func(t *testing.T) { testCreateGet(t, newStore(t)) })
	t.Run("create conflict", func(t *testing.T) { testCreateConflict(t, newStore(t)) })
	t.Run("update requires existing", func(t *testing.T) { testUpdate(t, newStore(t)) })
	t.Run("set merge", func(t *testing.T) { testSetMerge(t, newStore(t)) })
	t.Run("list direct children", func(t *testing.T) { testList(t, newStore(t)) })
	t.Run("delete tree", func(t *testing.T) { testDeleteTree(t, newStore(t)) })
	t.Run("find in group", func(t *testing.T) { testFindInGroup(t, newStore(t)) })
	t.Run("list group paging", func(t *testing.T) { testListGroup(t, newStore(t)) })
	t.Run("reject unportable field names", func(t *testing.T) { testFieldNames(t, newStore(t)) })
}

func testFieldNames(t *testing.T, st store.Store) {
	ctx := context.Background()
	path := mustDoc(t, "Clients/c1/Booths/b1")
	if _, err := st.Create(ctx, path, map[string]any{"name": "Lobby"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, key := range []string{"settings.price", "$set", ""} {
		fields := map[string]any{key: 1}
		if _, err := st.Create(ctx, mustDoc(t, "Clients/c1/Booths/b2"), fields); !errors.Is(err, store.ErrInvalidField) {
			t.Fatalf("create %q: expected invalid field, got %v", key, err)
		}
		if _, err := st.Set(ctx, path, fields, true); !errors.Is(err, store.ErrInvalidField) {
			t.Fatalf("set %q: expected invalid field, got %v", key, err)
		}
		if _, err := st.Update(ctx, path, fields); !errors.Is(err, store.ErrInvalidField) {
			t.Fatalf("update %q: expected invalid field, got %v", key, err)
		}
	}
	doc, err := st.Get(ctx, path)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(doc.Data) != 1 || doc.Data["name"] != "Lobby" {
		t.Fatalf("rejected writes changed the document: %#v", doc.Data)
	}
	if _, err := st.Get(ctx, mustDoc(t, "Clients/c1/Booths/b2")); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("rejected create left a document behind: %v", err)
	}
}

func mustDoc(t *testing.T, raw string) docpath.Path {
	t.Helper()
	p, err := docpath.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return p
}

func testCreateGet(t *testing.T, st store.Store) {
	ctx := context.Background()
	path := mustDoc(t, "Clients/c1/Booths/b1")
	fields := map[string]any{"name": "Lobby", "settings": map[string]any{"price": 25000}}
	if _, err := st.Create(ctx, path, fields); err != nil {
		t.Fatalf("create: %v", err)
	}
	doc, err := st.Get(ctx, path)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.Data["name"] != "Lobby" {
		t.Fatalf("unexpected name %v", doc.Data["name"])
	}
	settings, ok := doc.Data["settings"].(map[string]any)
	if !ok || settings["price"] != float64(25000) {
		t.Fatalf("unexpected settings %#v", doc.Data["settings"])
	}
	if err := st.Delete(ctx, path); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := st.Get(ctx, path); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := st.Delete(ctx, path); err != nil {
		t.Fatalf("delete of absent document should succeed, got %v", err)
	}
}

func testCreateConflict(t *testing.T, st store.Store) {
	ctx := context.Background()
	path := mustDoc(t, "Clients/c1/Booths/b1/vouchers/HEMAT10")
	if _, err := st.Create(ctx, path, map[string]any{"discount": 10}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := st.Create(ctx, path, map[string]any{"discount": 20}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	doc, err := st.Get(ctx, path)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.Data["discount"] != float64(10) {
		t.Fatalf("conflicting create overwrote data: %v", doc.Data["discount"])
	}
}

func testUpdate(t *testing.T, st store.Store) {
	ctx := context.Background()
	path := mustDoc(t, "users/u1")
	if _, err := st.Update(ctx, path, map[string]any{"name": "x"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := st.Create(ctx, path, map[string]any{"name": "Ana", "role": "client"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	doc, err := st.Update(ctx, path, map[string]any{"name": "Ana B"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if doc.Data["name"] != "Ana B" || doc.Data["role"] != "client" {
		t.Fatalf("unexpected merged data %#v", doc.Data)
	}
}

func testSetMerge(t *testing.T, st store.Store) {
	ctx := context.Background()
	path := mustDoc(t, "Clients/c1/Booths/b1/backgrounds/home")
	if _, err := st.Set(ctx, path, map[string]any{"url": "a", "is_active": true}, true); err != nil {
		t.Fatalf("set: %v", err)
	}
	doc, err := st.Set(ctx, path, map[string]any{"url": "b"}, true)
	if err != nil {
		t.Fatalf("set merge: %v", err)
	}
	if doc.Data["url"] != "b" || doc.Data["is_active"] != true {
		t.Fatalf("unexpected merge result %#v", doc.Data)
	}
	doc, err = st.Set(ctx, path, map[string]any{"url": "c"}, false)
	if err != nil {
		t.Fatalf("set replace: %v", err)
	}
	if _, ok := doc.Data["is_active"]; ok {
		t.Fatalf("replace kept old field: %#v", doc.Data)
	}
}

func testList(t *testing.T, st store.Store) {
	ctx := context.Background()
	for _, raw := range []string{
		"Clients/c1/Booths/b2",
		"Clients/c1/Booths/b1",
		"Clients/c1/Booths/b1/vouchers/V1",
		"Clients/c2/Booths/b3",
	} {
		if _, err := st.Create(ctx, mustDoc(t, raw), map[string]any{"name": raw}); err != nil {
			t.Fatalf("create %s: %v", raw, err)
		}
	}
	collection, _ := docpath.BoothCollection("c1")
	docs, err := st.List(ctx, collection)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 2 || docs[0].ID() != "b1" || docs[1].ID() != "b2" {
		t.Fatalf("unexpected list result: %v", ids(docs))
	}
}

func testDeleteTree(t *testing.T, st store.Store) {
	ctx := context.Background()
	for _, raw := range []string{
		"Clients/c1/Booths/b1",
		"Clients/c1/Booths/b1/vouchers/V1",
		"Clients/c1/Booths/b1/vouchers/V2",
		"Clients/c1/Booths/b1/backgrounds/home",
		"Clients/c1/Booths/b10",
	} {
		if _, err := st.Create(ctx, mustDoc(t, raw), map[string]any{"x": 1}); err != nil {
			t.Fatalf("create %s: %v", raw, err)
		}
	}
	deleted, err := st.DeleteTree(ctx, mustDoc(t, "Clients/c1/Booths/b1"))
	if err != nil {
		t.Fatalf("delete tree: %v", err)
	}
	if deleted != 4 {
		t.Fatalf("expected 4 deleted, got %d", deleted)
	}
	if _, err := st.Get(ctx, mustDoc(t, "Clients/c1/Booths/b1/vouchers/V1")); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected voucher removed, got %v", err)
	}
	if _, err := st.Get(ctx, mustDoc(t, "Clients/c1/Booths/b10")); err != nil {
		t.Fatalf("sibling with shared prefix removed: %v", err)
	}
}

func testFindInGroup(t *testing.T, st store.Store) {
	ctx := context.Background()
	seed := map[string]string{
		"Clients/c1/Booths/b1": "AZTX-7821",
		"Clients/c2/Booths/b2": "QWER-1234",
	}
	for raw, code := range seed {
		if _, err := st.Create(ctx, mustDoc(t, raw), map[string]any{"boothCode": code}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	docs, err := st.FindInGroup(ctx, docpath.Booths, "boothCode", "QWER-1234", 1)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(docs) != 1 || docs[0].Path.String() != "Clients/c2/Booths/b2" {
		t.Fatalf("unexpected find result: %v", ids(docs))
	}
	docs, err = st.FindInGroup(ctx, docpath.Booths, "boothCode", "AZTX-0000", 1)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected no match, got %v", ids(docs))
	}
}

func testListGroup(t *testing.T, st store.Store) {
	ctx := context.Background()
	for _, raw := range []string{
		"Clients/c1/Booths/b1/vouchers/A",
		"Clients/c1/Booths/b1/vouchers/B",
		"Clients/c2/Booths/b2/vouchers/C",
		"Clients/c2/Booths/b2/backgrounds/home",
	} {
		if _, err := st.Create(ctx, mustDoc(t, raw), map[string]any{"x": 1}); err != nil {
			t.Fatalf("create %s: %v", raw, err)
		}
	}
	first, err := st.ListGroup(ctx, docpath.Vouchers, "", 2)
	if err != nil {
		t.Fatalf("list group: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected first page of 2, got %v", ids(first))
	}
	rest, err := st.ListGroup(ctx, docpath.Vouchers, first[1].Path.String(), 2)
	if err != nil {
		t.Fatalf("list group: %v", err)
	}
	if len(rest) != 1 || rest[0].ID() != "C" {
		t.Fatalf("unexpected second page: %v", ids(rest))
	}
}

func ids(docs []store.Document) []string {
	out := make([]string, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Path.String())
	}
	return out
}

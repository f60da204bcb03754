package journal

import (
	"context"
	"os"
	"testing"

	"github.com/starford/vaultgate/internal/history"
)

func testDB(t *testing.T, keep int) *DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "vaultgate-journal-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := Open(dbFile.Name(), keep)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestAppendAndRecent(t *testing.T) {
	db := testDB(t, 10)
	ctx := context.Background()
	ring := history.NewRing(10)

	seq1 := ring.Record(history.Entry{Op: history.OpCreate, Path: "a.md", NewContent: history.StringPtr("x")})
	seq2 := ring.Record(history.Entry{Op: history.OpDelete, Path: "b.md", PreImage: history.StringPtr(""),
		Metadata: map[string]string{"deleted": "true"}})
	for _, e := range ring.List() {
		if err := db.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := db.SetStatus(ctx, seq2, history.StatusFailed); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	got, err := db.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0].Seq != seq1 || got[1].Seq != seq2 {
		t.Fatalf("recent = %+v", got)
	}
	if got[0].PreImage != nil {
		t.Errorf("absent pre-image came back as %q", *got[0].PreImage)
	}
	if got[1].PreImage == nil || *got[1].PreImage != "" {
		t.Errorf("empty pre-image not preserved")
	}
	if got[1].Status != history.StatusFailed || got[1].Metadata["deleted"] != "true" {
		t.Errorf("entry = %+v", got[1])
	}
}

func TestAppendPrunesBeyondKeep(t *testing.T) {
	db := testDB(t, 2)
	ctx := context.Background()
	for seq := uint64(1); seq <= 5; seq++ {
		if err := db.Append(ctx, history.Entry{Seq: seq, ID: "id", Op: history.OpAppend, Path: "p", Status: history.StatusCommitted}); err != nil {
			t.Fatal(err)
		}
	}
	got, err := db.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Seq != 4 || got[1].Seq != 5 {
		t.Errorf("recent = %+v", got)
	}
}

func TestClearKeepsLastSeqAndLoad(t *testing.T) {
	db := testDB(t, 5)
	ctx := context.Background()
	for seq := uint64(1); seq <= 3; seq++ {
		_ = db.Append(ctx, history.Entry{Seq: seq, ID: "id", Op: history.OpPatch, Path: "p", Status: history.StatusCommitted})
	}
	if err := db.Clear(ctx); err != nil {
		t.Fatal(err)
	}

	ring := history.NewRing(5)
	if err := db.Load(ctx, ring); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ring.Len() != 0 {
		t.Errorf("ring len = %d after clear", ring.Len())
	}
	if seq := ring.Record(history.Entry{Path: "q"}); seq != 4 {
		t.Errorf("seq after reload = %d, want 4", seq)
	}
}

func TestLoadRestoresEntries(t *testing.T) {
	db := testDB(t, 5)
	ctx := context.Background()
	for seq := uint64(1); seq <= 4; seq++ {
		_ = db.Append(ctx, history.Entry{Seq: seq, ID: "id", Op: history.OpCreate, Path: "p", Status: history.StatusCommitted})
	}
	ring := history.NewRing(3)
	if err := db.Load(ctx, ring); err != nil {
		t.Fatal(err)
	}
	list := ring.List()
	if len(list) != 3 || list[0].Seq != 2 || list[2].Seq != 4 {
		t.Errorf("list = %+v", list)
	}
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// Integration tests for database operations with a real SQLite database

func setupTestDB(t testing.TB) (db *Database, dbPath string) {
	t.Helper()

	dbPath = filepath.Join(t.TempDir(), "test.db")

	db, err := New(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db, dbPath
}

func intPtr(v int) *int { return &v }

func TestNewDatabase(t *testing.T) {
	_, dbPath := setupTestDB(t)

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestNewDatabaseReopen(t *testing.T) {
	db, dbPath := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.CreateAsset(ctx, &Asset{File: "a.jpg", MimeType: "image/jpeg"}); err != nil {
		t.Fatalf("CreateAsset failed: %v", err)
	}
	db.Close()

	reopened, err := New(ctx, dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	n, err := reopened.CountAssets(ctx)
	if err != nil {
		t.Fatalf("CountAssets failed: %v", err)
	}
	if n != 1 {
		t.Errorf("CountAssets = %d, want 1", n)
	}

	version, err := reopened.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion failed: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("SchemaVersion = %d, want %d", version, len(migrations))
	}
}

func TestAssetRoundTrip(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	in := &Asset{
		File:     "2024/05/photo.jpg",
		MimeType: "image/jpeg",
		Width:    4000,
		Height:   3000,
		FileSize: 123456,
		Sizes: map[string]SizeVariant{
			"thumbnail": {File: "photo-150x150.jpg", Width: 150, Height: 150, MimeType: "image/jpeg"},
		},
		ImageMeta: map[string]string{"camera": "X100V"},
	}

	id, err := db.CreateAsset(ctx, in)
	if err != nil {
		t.Fatalf("CreateAsset failed: %v", err)
	}
	if in.ID != id {
		t.Errorf("CreateAsset did not set ID: %d != %d", in.ID, id)
	}

	got, err := db.GetAsset(ctx, id)
	if err != nil {
		t.Fatalf("GetAsset failed: %v", err)
	}
	if got.File != in.File || got.MimeType != in.MimeType || got.Width != 4000 || got.FileSize != 123456 {
		t.Errorf("GetAsset = %+v", got)
	}
	if got.Quality != nil {
		t.Errorf("Quality = %v, want nil", *got.Quality)
	}
	if got.Sizes["thumbnail"].File != "photo-150x150.jpg" {
		t.Errorf("Sizes = %+v", got.Sizes)
	}
	if got.ImageMeta["camera"] != "X100V" {
		t.Errorf("ImageMeta = %+v", got.ImageMeta)
	}

	byFile, err := db.GetAssetByFile(ctx, "2024/05/photo.jpg")
	if err != nil {
		t.Fatalf("GetAssetByFile failed: %v", err)
	}
	if byFile.ID != id {
		t.Errorf("GetAssetByFile ID = %d, want %d", byFile.ID, id)
	}
}

func TestPutAssetReplacesSizesAndQuality(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	a := &Asset{File: "photo.jpg", MimeType: "image/jpeg", Sizes: map[string]SizeVariant{
		"medium": {File: "photo-300x200.jpg", Width: 300, Height: 200, MimeType: "image/jpeg"},
	}}
	if _, err := db.CreateAsset(ctx, a); err != nil {
		t.Fatalf("CreateAsset failed: %v", err)
	}

	a.File = "photo.webp"
	a.MimeType = "image/webp"
	a.Quality = intPtr(80)
	a.Sizes = map[string]SizeVariant{
		"custom-600": {File: "photo-600.webp", Width: 600, MimeType: "image/webp"},
	}
	if err := db.PutAsset(ctx, a); err != nil {
		t.Fatalf("PutAsset failed: %v", err)
	}

	got, err := db.GetAsset(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAsset failed: %v", err)
	}
	if got.Quality == nil || *got.Quality != 80 {
		t.Errorf("Quality = %v, want 80", got.Quality)
	}
	if _, ok := got.Sizes["medium"]; ok {
		t.Error("stale size entry survived PutAsset")
	}
	if got.Sizes["custom-600"].Width != 600 {
		t.Errorf("Sizes = %+v", got.Sizes)
	}
}

func TestMissingAsset(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.GetAsset(ctx, 999); !errors.Is(err, ErrAssetNotFound) {
		t.Errorf("GetAsset err = %v, want ErrAssetNotFound", err)
	}
	if _, err := db.GetAssetByFile(ctx, "nope.jpg"); !errors.Is(err, ErrAssetNotFound) {
		t.Errorf("GetAssetByFile err = %v, want ErrAssetNotFound", err)
	}
	if err := db.AttachPrimary(ctx, 999, "x.webp", "image/webp"); !errors.Is(err, ErrAssetNotFound) {
		t.Errorf("AttachPrimary err = %v, want ErrAssetNotFound", err)
	}
	if err := db.DeleteAsset(ctx, 999); !errors.Is(err, ErrAssetNotFound) {
		t.Errorf("DeleteAsset err = %v, want ErrAssetNotFound", err)
	}
}

func TestAttachPrimaryAndDelete(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	id, err := db.CreateAsset(ctx, &Asset{File: "a.png", MimeType: "image/png"})
	if err != nil {
		t.Fatalf("CreateAsset failed: %v", err)
	}
	if err := db.AttachPrimary(ctx, id, "a.webp", "image/webp"); err != nil {
		t.Fatalf("AttachPrimary failed: %v", err)
	}

	got, _ := db.GetAsset(ctx, id)
	if got.File != "a.webp" || got.MimeType != "image/webp" {
		t.Errorf("after AttachPrimary: %+v", got)
	}

	if err := db.DeleteAsset(ctx, id); err != nil {
		t.Fatalf("DeleteAsset failed: %v", err)
	}
	if _, err := db.GetAsset(ctx, id); !errors.Is(err, ErrAssetNotFound) {
		t.Errorf("asset still present after delete: %v", err)
	}
}

func TestListCandidates(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	mimes := []string{"image/jpeg", "image/png", "image/gif", "application/pdf", "image/webp"}
	ids := make([]int64, 0, len(mimes))
	for i, m := range mimes {
		id, err := db.CreateAsset(ctx, &Asset{File: fmt.Sprintf("f%d", i), MimeType: m})
		if err != nil {
			t.Fatalf("CreateAsset failed: %v", err)
		}
		ids = append(ids, id)
	}

	filter := []string{"image/jpeg", "image/png", "image/webp", "image/avif"}

	page, err := db.ListCandidates(ctx, filter, nil, 0, 10)
	if err != nil {
		t.Fatalf("ListCandidates failed: %v", err)
	}
	if len(page) != 3 {
		t.Fatalf("len = %d, want 3", len(page))
	}
	if page[0].ID != ids[0] || page[1].ID != ids[1] || page[2].ID != ids[4] {
		t.Errorf("unexpected order: %d %d %d", page[0].ID, page[1].ID, page[2].ID)
	}

	page, err = db.ListCandidates(ctx, filter, []int64{ids[1]}, 0, 10)
	if err != nil {
		t.Fatalf("ListCandidates failed: %v", err)
	}
	if len(page) != 2 {
		t.Errorf("with exclusion len = %d, want 2", len(page))
	}

	page, err = db.ListCandidates(ctx, filter, nil, 2, 2)
	if err != nil {
		t.Fatalf("ListCandidates failed: %v", err)
	}
	if len(page) != 1 || page[0].ID != ids[4] {
		t.Errorf("offset page = %+v", page)
	}

	page, err = db.ListCandidates(ctx, filter, nil, 10, 5)
	if err != nil {
		t.Fatalf("ListCandidates failed: %v", err)
	}
	if len(page) != 0 {
		t.Errorf("past-the-end page len = %d", len(page))
	}
}

func TestCountByMime(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	for i, m := range []string{"image/jpeg", "image/jpeg", "image/webp"} {
		if _, err := db.CreateAsset(ctx, &Asset{File: fmt.Sprintf("f%d", i), MimeType: m}); err != nil {
			t.Fatalf("CreateAsset failed: %v", err)
		}
	}

	counts, err := db.CountByMime(ctx)
	if err != nil {
		t.Fatalf("CountByMime failed: %v", err)
	}
	if counts["image/jpeg"] != 2 || counts["image/webp"] != 1 {
		t.Errorf("counts = %v", counts)
	}

	all, err := db.ListAssets(ctx)
	if err != nil {
		t.Fatalf("ListAssets failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ListAssets len = %d", len(all))
	}
}

func TestMetadata(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.GetMetadata(ctx, "webp_quality"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("missing key err = %v, want sql.ErrNoRows", err)
	}

	if err := db.SetMetadata(ctx, "webp_quality", "80"); err != nil {
		t.Fatalf("SetMetadata failed: %v", err)
	}
	if err := db.SetMetadata(ctx, "webp_quality", "75"); err != nil {
		t.Fatalf("SetMetadata overwrite failed: %v", err)
	}
	v, err := db.GetMetadata(ctx, "webp_quality")
	if err != nil || v != "75" {
		t.Errorf("GetMetadata = %q, %v", v, err)
	}

	if err := db.DeleteMetadata(ctx, "webp_quality", "never_set"); err != nil {
		t.Fatalf("DeleteMetadata failed: %v", err)
	}
	if _, err := db.GetMetadata(ctx, "webp_quality"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("after delete err = %v", err)
	}
}

func TestLastCleanup(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	ts, err := db.GetLastCleanup(ctx)
	if err != nil || !ts.IsZero() {
		t.Fatalf("GetLastCleanup = %v, %v", ts, err)
	}

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if err := db.SetLastCleanup(ctx, now); err != nil {
		t.Fatalf("SetLastCleanup failed: %v", err)
	}
	ts, err = db.GetLastCleanup(ctx)
	if err != nil || !ts.Equal(now) {
		t.Errorf("GetLastCleanup = %v, %v", ts, err)
	}
}

func TestActivityLogTrimsToLimit(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		if err := db.AppendLog(ctx, []string{fmt.Sprintf("m%d", i)}, 5); err != nil {
			t.Fatalf("AppendLog failed: %v", err)
		}
	}

	got, err := db.ListLog(ctx)
	if err != nil {
		t.Fatalf("ListLog failed: %v", err)
	}
	want := []string{"m2", "m3", "m4", "m5", "m6"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("ListLog = %v, want %v", got, want)
	}

	if err := db.ReplaceLog(ctx, []string{"Log cleared"}); err != nil {
		t.Fatalf("ReplaceLog failed: %v", err)
	}
	got, _ = db.ListLog(ctx)
	if len(got) != 1 || got[0] != "Log cleared" {
		t.Errorf("after ReplaceLog = %v", got)
	}
}

package backup

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"fintrack/internal/core"
)

type memStore struct {
	data     core.Dataset
	replaced int
	records  []core.BackupRecord
}

func (m *memStore) ExportDataset(context.Context) (core.Dataset, error) { return m.data, nil }

func (m *memStore) ReplaceDataset(_ context.Context, d core.Dataset) error {
	m.replaced++
	m.data = d
	return nil
}

func (m *memStore) RecordBackup(_ context.Context, rec core.BackupRecord) (core.BackupRecord, error) {
	rec.ID = int64(len(m.records) + 1)
	m.records = append(m.records, rec)
	return rec, nil
}

type lastBackup struct{ at time.Time }

func (l *lastBackup) SetLastBackupAt(_ context.Context, at time.Time) error {
	l.at = at
	return nil
}

type clearCounter int

func (c *clearCounter) Clear() { *c++ }

func sample() core.Dataset {
	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return core.Dataset{
		Accounts: []core.Account{
			{ID: 1, Name: "Wallet", Type: core.AccountCash, Balance: core.MustMoney("-20"), Currency: "EUR", CreatedAt: created, UpdatedAt: created},
		},
		Categories: []core.Category{
			{ID: 5, Name: "Food", Type: core.ExpenseCategory, OrderIndex: 1},
		},
		Transactions: []core.Transaction{
			{ID: 9, Amount: core.MustMoney("20"), Type: core.Expense, CategoryID: core.Int64Ptr(5), AccountID: 1,
				Date: time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC), Attachments: []string{"2025/03/receipt.jpg"},
				CreatedAt: created, UpdatedAt: created},
		},
		Budgets: []core.Budget{
			{ID: 3, CategoryID: core.Int64Ptr(5), Period: core.YearMonth{Year: 2025, Month: time.March},
				Amount: core.MustMoney("200"), Enabled: true, CreatedAt: created, UpdatedAt: created},
		},
		Settings: map[string]string{"default_currency": "EUR"},
	}
}

func writeFile(t *testing.T, p string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCreateAndRestore(t *testing.T) {
	ctx := context.Background()
	srcDir := filepath.Join(t.TempDir(), "images")
	writeFile(t, filepath.Join(srcDir, "2025", "03", "receipt.jpg"), []byte("jpeg bytes"))

	src := &memStore{data: sample()}
	last := &lastBackup{}
	svc := NewService(src, last, nil, srcDir)
	svc.now = func() time.Time { return time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC) }

	var buf bytes.Buffer
	rec, err := svc.Create(ctx, &buf, FileName(svc.now()))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.FileName != "fintrack-backup-20250310-080000.zip" || rec.SizeBytes != int64(buf.Len()) || rec.Transactions != 1 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if !last.at.Equal(svc.now()) {
		t.Fatalf("last backup time not stored: %v", last.at)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("zip: %v", err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	if !reflect.DeepEqual(names, []string{"data.json", "images/2025/03/receipt.jpg"}) {
		t.Fatalf("unexpected entries %v", names)
	}

	dstDir := filepath.Join(t.TempDir(), "images")
	writeFile(t, filepath.Join(dstDir, "stale.jpg"), []byte("old"))
	dst := &memStore{}
	var cleared clearCounter
	restorer := NewService(dst, nil, &cleared, dstDir)

	res, err := restorer.Restore(ctx, bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if res.Transactions != 1 || res.Images != 1 || cleared != 1 {
		t.Fatalf("unexpected result %+v cleared=%d", res, cleared)
	}
	if !reflect.DeepEqual(dst.data, src.data) {
		t.Fatalf("restored dataset differs\n got: %+v\nwant: %+v", dst.data, src.data)
	}
	got, err := os.ReadFile(filepath.Join(dstDir, "2025", "03", "receipt.jpg"))
	if err != nil || string(got) != "jpeg bytes" {
		t.Fatalf("image not restored: %q %v", got, err)
	}
	if _, err := os.Stat(filepath.Join(dstDir, "stale.jpg")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("stale image survived restore: %v", err)
	}
}

func TestCreateWithoutImagesDir(t *testing.T) {
	svc := NewService(&memStore{data: sample()}, nil, nil, filepath.Join(t.TempDir(), "missing"))
	var buf bytes.Buffer
	if _, err := svc.Create(context.Background(), &buf, "b.zip"); err != nil {
		t.Fatalf("Create: %v", err)
	}
}

type entry struct {
	name string
	body []byte
}

func zipOf(t *testing.T, entries ...entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(e.body); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func dataJSON(t *testing.T, version string, d core.Dataset) []byte {
	t.Helper()
	b, err := json.Marshal(bundle{Version: version, CreatedAt: time.Now().UTC(), Dataset: d})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestRestoreRejectsInvalidBundles(t *testing.T) {
	dangling := sample()
	dangling.Transactions[0].CategoryID = core.Int64Ptr(77)

	tests := []struct {
		name string
		data []byte
	}{
		{"not a zip", []byte("hello")},
		{"missing data.json", zipOf(t, entry{"images/a.jpg", []byte("x")})},
		{"bad json", zipOf(t, entry{"data.json", []byte("{")})},
		{"wrong version", zipOf(t, entry{"data.json", dataJSON(t, "2.0", sample())})},
		{"dangling category", zipOf(t, entry{"data.json", dataJSON(t, Version, dangling)})},
		{"zip slip", zipOf(t,
			entry{"data.json", dataJSON(t, Version, sample())},
			entry{"images/../../etc/passwd", []byte("x")})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memStore{data: sample()}
			dir := filepath.Join(t.TempDir(), "images")
			svc := NewService(store, nil, nil, dir)

			_, err := svc.Restore(context.Background(), bytes.NewReader(tt.data), int64(len(tt.data)))
			if !errors.Is(err, core.ErrFileFormat) {
				t.Fatalf("expected file format error, got %v", err)
			}
			if store.replaced != 0 {
				t.Fatal("invalid bundle replaced the dataset")
			}
			if entries, _ := os.ReadDir(filepath.Dir(dir)); len(entries) != 0 {
				t.Fatalf("restore left files behind: %v", entries)
			}
		})
	}
}

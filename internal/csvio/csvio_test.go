package csvio

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/On-Jun9/ShutterFix/internal/inventory"
	"github.com/On-Jun9/ShutterFix/internal/state"
	"github.com/On-Jun9/ShutterFix/pkg/types"
)

const header = "filename,has_exif,datetime,datetime_original,datetime_digitized,ok,issue,can_fix\n"

// sampleInventory는 테스트 코드 동작을 검증하거나 보조합니다.
func sampleInventory(t *testing.T) *inventory.Inventory {
	t.Helper()
	db := state.New(filepath.Join(t.TempDir(), "db.json"), "/photos")
	inv := inventory.New("/photos", db, nil, zerolog.Nop())
	inv.Put(types.PhotoRecord{Path: "a/ok.jpg", Timestamps: types.SameTimestamps("2020:01:01 10:00:00"), HasMetadata: true, OK: true})
	inv.Put(types.PhotoRecord{Path: "a/bare.jpg", Issue: types.IssueNoMetadata})
	inv.Put(types.PhotoRecord{Path: "a/named.jpg", Timestamps: types.SameTimestamps("2021:01:01 12:00:00"), Issue: types.IssueFoundInFilename})
	return inv
}

func importCSV(t *testing.T, inv *inventory.Inventory, body string, opts UpdateOptions) (UpdateResult, error) {
	t.Helper()
	return NewImporter(zerolog.Nop()).Update(context.Background(), inv, strings.NewReader(body), opts)
}

// TestExport_WritesFixedColumns는 테스트 코드 동작을 검증하거나 보조합니다.
func TestExport_WritesFixedColumns(t *testing.T) {
	var buf bytes.Buffer
	rows, err := Export(&buf, sampleInventory(t), nil)
	if err != nil {
		t.Fatal(err)
	}
	if rows != 3 {
		t.Fatalf("expected 3 rows, got %d", rows)
	}

	want := header +
		"a/bare.jpg,False,,,,False,NO METADATA,False\n" +
		"a/named.jpg,False,2021:01:01 12:00:00,2021:01:01 12:00:00,2021:01:01 12:00:00,False,DATETIME FOUND IN FILENAME,True\n" +
		"a/ok.jpg,True,2020:01:01 10:00:00,2020:01:01 10:00:00,2020:01:01 10:00:00,True,,False\n"
	if buf.String() != want {
		t.Fatalf("unexpected csv:\n%s\nwant:\n%s", buf.String(), want)
	}
}

// TestExport_AppliesFilter는 테스트 코드 동작을 검증하거나 보조합니다.
func TestExport_AppliesFilter(t *testing.T) {
	preds, err := inventory.ParseFilter([]string{"ok=false", "can_fix=yes"})
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	rows, err := Export(&buf, sampleInventory(t), preds)
	if err != nil {
		t.Fatal(err)
	}
	if rows != 1 || !strings.Contains(buf.String(), "a/named.jpg") {
		t.Fatalf("unexpected filtered export (%d rows):\n%s", rows, buf.String())
	}
}

// TestExportImport_RoundTripWithoutMatchesIsNoop는 테스트 코드 동작을 검증하거나 보조합니다.
func TestExportImport_RoundTripWithoutMatchesIsNoop(t *testing.T) {
	// 어떤 행에도 맞지 않는 센티넬로 다시 가져오면 인벤토리는 바뀌지 않아야 한다.
	inv := sampleInventory(t)
	if err := inv.Save(); err != nil {
		t.Fatal(err)
	}
	before := inv.Records()

	csvPath := filepath.Join(t.TempDir(), "out", "records.csv")
	if _, err := ExportFile(csvPath, inv, nil); err != nil {
		t.Fatal(err)
	}

	res, err := NewImporter(zerolog.Nop()).UpdateFromFile(context.Background(), inv, csvPath, UpdateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Rows != 3 || res.Matched != 0 || res.Applied != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	after := inv.Records()
	for i := range before {
		if !before[i].Equal(after[i]) {
			t.Fatalf("record changed: %+v -> %+v", before[i], after[i])
		}
	}
}

// TestUpdate_AppliesManualFix는 테스트 코드 동작을 검증하거나 보조합니다.
func TestUpdate_AppliesManualFix(t *testing.T) {
	inv := sampleInventory(t)
	body := header +
		"a/bare.jpg,False,2019:09:09 09:09:09,,2019:09:09 10:00:00,False,MANUAL FIX,False\n" +
		"a/ok.jpg,True,2020:01:01 10:00:00,,,True,,False\n"

	res, err := importCSV(t, inv, body, UpdateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Matched != 1 || res.Applied != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	rec, _ := inv.Get("a/bare.jpg")
	if rec.Issue != types.IssueManualFix || !rec.HasMetadata || rec.OK {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if *rec.Timestamps.Captured != "2019:09:09 09:09:09" || *rec.Timestamps.Original != "2019:09:09 09:09:09" || *rec.Timestamps.Digitized != "2019:09:09 10:00:00" {
		t.Fatalf("unexpected timestamps: %+v", rec.Timestamps)
	}
}

// TestUpdate_ForceGate는 테스트 코드 동작을 검증하거나 보조합니다.
func TestUpdate_ForceGate(t *testing.T) {
	body := header + "a/named.jpg,False,2018:08:08 08:08:08,,,False,MANUAL FIX,True\n"

	inv := sampleInventory(t)
	res, err := importCSV(t, inv, body, UpdateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Applied != 0 || res.Skipped != 1 {
		t.Fatalf("expected row to be skipped without force, got %+v", res)
	}

	res, err = importCSV(t, inv, body, UpdateOptions{Force: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Applied != 1 {
		t.Fatalf("expected force to apply row, got %+v", res)
	}
	if rec, _ := inv.Get("a/named.jpg"); rec.Issue != types.IssueManualFix {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

// TestUpdate_NeverTouchesVerifiedRecords는 테스트 코드 동작을 검증하거나 보조합니다.
func TestUpdate_NeverTouchesVerifiedRecords(t *testing.T) {
	// ok=true 레코드는 force가 있어도 수동 수정이 적용되지 않아야 한다.
	inv := sampleInventory(t)
	body := header + "a/ok.jpg,True,2001:01:01 01:01:01,,,True,MANUAL FIX,False\n"

	res, err := importCSV(t, inv, body, UpdateOptions{Force: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Applied != 0 {
		t.Fatalf("expected no applied rows, got %+v", res)
	}
	if rec, _ := inv.Get("a/ok.jpg"); *rec.Timestamps.Captured != "2020:01:01 10:00:00" || rec.Issue != types.IssueNone {
		t.Fatalf("verified record changed: %+v", rec)
	}
}

// TestUpdate_SkipsBadRows는 테스트 코드 동작을 검증하거나 보조합니다.
func TestUpdate_SkipsBadRows(t *testing.T) {
	inv := sampleInventory(t)
	body := header +
		"a/missing.jpg,False,2019:01:01 00:00:00,,,False,MANUAL FIX,False\n" +
		"a/bare.jpg,False,,,,False,MANUAL FIX,False\n" +
		"/photos/a/bare.jpg,False,0000:00:00 00:00:00,,,False,MANUAL FIX,False\n"

	res, err := importCSV(t, inv, body, UpdateOptions{})
	if err != nil {
		t.Fatalf("bad rows must not be fatal: %v", err)
	}
	if res.Matched != 3 || res.Skipped != 3 || res.Applied != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

// TestUpdate_CustomSentinel는 테스트 코드 동작을 검증하거나 보조합니다.
func TestUpdate_CustomSentinel(t *testing.T) {
	inv := sampleInventory(t)
	body := header + "/photos/a/bare.jpg,False,2019:01:01 00:00:00,,,REVIEWED,NO METADATA,False\n"

	res, err := importCSV(t, inv, body, UpdateOptions{Field: "ok", Value: "REVIEWED"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Applied != 1 {
		t.Fatalf("expected absolute filename to be normalized and applied, got %+v", res)
	}
}

// TestUpdate_Errors는 테스트 코드 동작을 검증하거나 보조합니다.
func TestUpdate_Errors(t *testing.T) {
	inv := sampleInventory(t)

	if _, err := importCSV(t, inv, "filename,datetime\nx.jpg,2019:01:01 00:00:00\n", UpdateOptions{}); !errors.Is(err, ErrHeaderMismatch) {
		t.Fatalf("expected ErrHeaderMismatch, got %v", err)
	}
	if _, err := importCSV(t, inv, "", UpdateOptions{}); !errors.Is(err, ErrHeaderMismatch) {
		t.Fatalf("expected ErrHeaderMismatch for empty file, got %v", err)
	}
	if _, err := importCSV(t, inv, header, UpdateOptions{Field: "colour", Value: "x"}); !errors.Is(err, inventory.ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
	if _, err := NewImporter(zerolog.Nop()).UpdateFromFile(context.Background(), inv, filepath.Join(t.TempDir(), "none.csv"), UpdateOptions{}); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected missing file error, got %v", err)
	}
}

// TestUpdate_Interrupted는 테스트 코드 동작을 검증하거나 보조합니다.
func TestUpdate_Interrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inv := sampleInventory(t)
	body := header + "a/bare.jpg,False,2019:09:09 09:09:09,,,False,MANUAL FIX,False\n"
	_, err := NewImporter(zerolog.Nop()).Update(ctx, inv, strings.NewReader(body), UpdateOptions{})
	if !errors.Is(err, types.ErrInterrupted) {
		t.Fatalf("expected ErrInterrupted, got %v", err)
	}
}

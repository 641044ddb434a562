package output

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"caseexport/internal/config"
	"caseexport/internal/schema"
	"caseexport/pkg/records"
)

var ts = time.Date(2024, 3, 15, 12, 30, 5, 0, time.UTC)

func sheets() []Sheet {
	return []Sheet{
		{Entity: schema.Patients, Name: "Monitorees", Fields: []string{"id", "first_name"}, Headers: []string{"id", "first_name"}},
		{Entity: schema.Laboratories, Name: "Lab Results", Fields: []string{"id", "result"}, Headers: []string{"ID", "Result"}},
	}
}

func patients() []records.Record {
	return []records.Record{
		{"id": int64(5), "first_name": "Ann"},
		{"id": int64(9), "first_name": "Bo"},
		{"id": int64(12), "first_name": "Cy"},
	}
}

func TestCSV_Scenario(t *testing.T) {
	w, err := New(Spec{Format: config.FormatCSV, Base: "custom", Time: ts, Sheets: sheets()[:1]})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	if err := w.Append(schema.Patients, patients()); err != nil {
		t.Fatalf("Append: %v", err)
	}
	arts, err := w.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if len(arts) != 1 {
		t.Fatalf("artifacts=%d want=1", len(arts))
	}
	want := "id,first_name\n5,Ann\n9,Bo\n12,Cy\n"
	if got := string(arts[0].Content); got != want {
		t.Fatalf("got=%q want=%q", got, want)
	}
	if arts[0].Filename != "custom-Monitorees-20240315T123005Z.csv" {
		t.Fatalf("filename=%q", arts[0].Filename)
	}
	if arts[0].RowCount != 3 || len(arts[0].Digest) != 64 {
		t.Fatalf("rowcount=%d digest=%q", arts[0].RowCount, arts[0].Digest)
	}
}

func TestCSV_BlankAndQuoting(t *testing.T) {
	w, err := New(Spec{Format: config.FormatCSV, Time: ts, Sheets: []Sheet{
		{Entity: schema.Patients, Name: "p", Fields: []string{"a", "b", "c"}, Headers: []string{"A", "B", "C"}},
	}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Append(schema.Patients, []records.Record{{"a": "x, y", "b": nil, "c": false}, {"c": 1.5}}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	arts, err := w.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	want := "A,B,C\n\"x, y\",,false\n,,1.5\n"
	if got := string(arts[0].Content); got != want {
		t.Fatalf("got=%q want=%q", got, want)
	}
}

func TestXLSX_SingleWorkbook(t *testing.T) {
	w, err := New(Spec{Format: config.FormatXLSX, Base: "full-history", Time: ts, Sheets: sheets()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()
	if err := w.Append(schema.Patients, patients()[:2]); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Append(schema.Laboratories, []records.Record{{"id": int64(200), "result": "positive"}}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Append(schema.Patients, patients()[2:]); err != nil {
		t.Fatalf("Append: %v", err)
	}
	arts, err := w.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if len(arts) != 1 {
		t.Fatalf("artifacts=%d want=1", len(arts))
	}
	if arts[0].Filename != "full-history-20240315T123005Z.xlsx" || arts[0].RowCount != 4 {
		t.Fatalf("artifact=%s rows=%d", arts[0].Filename, arts[0].RowCount)
	}

	f, err := excelize.OpenReader(bytes.NewReader(arts[0].Content))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()
	if got := f.GetSheetList(); len(got) != 2 || got[0] != "Monitorees" || got[1] != "Lab Results" {
		t.Fatalf("sheets=%v", got)
	}
	rows, err := f.GetRows("Monitorees")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 4 || rows[0][1] != "first_name" || rows[3][0] != "12" || rows[3][1] != "Cy" {
		t.Fatalf("rows=%v", rows)
	}
	labs, _ := f.GetRows("Lab Results")
	if len(labs) != 2 || labs[0][0] != "ID" || labs[1][1] != "positive" {
		t.Fatalf("labs=%v", labs)
	}
}

func TestXLSX_SeparateFiles(t *testing.T) {
	w, err := New(Spec{Format: config.FormatXLSX, SeparateFiles: true, Base: "full-history", Time: ts, Sheets: sheets()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()
	arts, err := w.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if len(arts) != 2 {
		t.Fatalf("artifacts=%d want=2", len(arts))
	}
	for i, want := range []string{"full-history-Monitorees-20240315T123005Z.xlsx", "full-history-Lab-Results-20240315T123005Z.xlsx"} {
		if arts[i].Filename != want {
			t.Fatalf("filename[%d]=%q want=%q", i, arts[i].Filename, want)
		}
		f, err := excelize.OpenReader(bytes.NewReader(arts[i].Content))
		if err != nil {
			t.Fatalf("OpenReader: %v", err)
		}
		if n := len(f.GetSheetList()); n != 1 {
			t.Fatalf("sheets=%d want=1", n)
		}
		_ = f.Close()
	}
}

func TestRotate_NumbersParts(t *testing.T) {
	w, err := New(Spec{Format: config.FormatCSV, Base: "custom", Time: ts, Parts: true, Sheets: sheets()[:1]})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()
	if err := w.Append(schema.Patients, patients()[:2]); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Rotate(); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if err := w.Append(schema.Patients, patients()[2:]); err != nil {
		t.Fatalf("Append: %v", err)
	}
	arts, err := w.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if len(arts) != 2 {
		t.Fatalf("artifacts=%d want=2", len(arts))
	}
	if !strings.HasSuffix(arts[0].Filename, "-1.csv") || !strings.HasSuffix(arts[1].Filename, "-2.csv") {
		t.Fatalf("filenames=%s %s", arts[0].Filename, arts[1].Filename)
	}
	if string(arts[1].Content) != "id,first_name\n12,Cy\n" {
		t.Fatalf("part 2=%q", arts[1].Content)
	}
}

func TestDigest_IndependentOfAppendSplit(t *testing.T) {
	run := func(split int) string {
		w, err := New(Spec{Format: config.FormatXLSX, Time: ts, Sheets: sheets()})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		defer w.Close()
		ps := patients()
		_ = w.Append(schema.Patients, ps[:split])
		_ = w.Append(schema.Laboratories, []records.Record{{"id": int64(1)}})
		_ = w.Append(schema.Patients, ps[split:])
		arts, err := w.Finish()
		if err != nil {
			t.Fatalf("Finish: %v", err)
		}
		return arts[0].Digest
	}
	if a, b := run(1), run(3); a != b {
		t.Fatalf("digest differs: %s vs %s", a, b)
	}
}

func TestAppend_Errors(t *testing.T) {
	w, err := New(Spec{Format: config.FormatCSV, Time: ts, Sheets: sheets()[:1]})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = w.Append(schema.Patients, []records.Record{{"id": time.Now()}})
	var we *WriterError
	if !errors.As(err, &we) || we.Entity != "patients" {
		t.Fatalf("err=%v", err)
	}
	if err := w.Append(schema.Vaccines, nil); !errors.As(err, &we) {
		t.Fatalf("unknown sheet err=%v", err)
	}
	if _, err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if err := w.Append(schema.Patients, nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("after finish err=%v", err)
	}
}

func TestNew_RejectsBadSpec(t *testing.T) {
	cases := []Spec{
		{Format: "pdf", Sheets: sheets()},
		{Format: config.FormatCSV},
		{Format: config.FormatCSV, Sheets: []Sheet{{Entity: schema.Patients, Fields: []string{"a"}}}},
		{Format: config.FormatCSV, Sheets: []Sheet{sheets()[0], sheets()[0]}},
	}
	for i, spec := range cases {
		if _, err := New(spec); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestSanitizeSheetNames(t *testing.T) {
	got := sanitizeSheetNames([]Sheet{
		{Entity: schema.Patients, Name: "a/b:c*"},
		{Entity: schema.Assessments, Name: ""},
		{Entity: schema.Vaccines, Name: "This name is far too long for any spreadsheet"},
		{Entity: schema.Histories, Name: "A-B-C-"},
		{Entity: schema.Transfers, Name: "' '' '"},
	})
	want := []string{"a-b-c-", "Reports", "This name is far too long for a", "A-B-C- (2)", "Transfers"}
	for i := range want {
		if got[i].Name != want[i] {
			t.Fatalf("name[%d]=%q want=%q", i, got[i].Name, want[i])
		}
	}
}

func TestFilenameAndPattern(t *testing.T) {
	tests := []struct {
		base, entity string
		part         int
		want         string
	}{
		{"full-history", "", NoPart, "full-history-20240315T123005Z.xlsx"},
		{"full-history", "Lab Results", 0, "full-history-Lab-Results-20240315T123005Z-1.xlsx"},
		{"", "Close Contacts", 4, "export-Close-Contacts-20240315T123005Z-5.xlsx"},
	}
	for _, tt := range tests {
		got := Filename(tt.base, tt.entity, ts, tt.part, "xlsx")
		if got != tt.want {
			t.Fatalf("got=%q want=%q", got, tt.want)
		}
		ok, err := filepath.Match(Pattern(tt.base, tt.entity, "xlsx"), got)
		if err != nil || !ok {
			t.Fatalf("pattern %q does not match %q", Pattern(tt.base, tt.entity, "xlsx"), got)
		}
	}
}

func TestParseFilenameAndOwnedBy(t *testing.T) {
	tests := []struct {
		base, name string
		entities   []string
		wantEntity string
		wantParsed bool
		wantOwned  bool
	}{
		{"full", "full-20240315T123005Z.xlsx", nil, "", true, true},
		{"full", "full-Lab-Results-20240315T123005Z-2.xlsx", nil, "Lab-Results", true, true},
		{"full", "full-history-20240315T123005Z.xlsx", nil, "history", true, false},
		{"linelist", "linelist-exposure-Monitorees-20240315T123005Z.xlsx", nil, "exposure-Monitorees", true, false},
		{"custom", "custom-People-20240315T123005Z.xlsx", []string{"People"}, "People", true, true},
		{"custom", "custom-20240315.xlsx", nil, "", false, false},
		{"custom", "custom-20240315T123005Z-0.xlsx", nil, "", false, false},
		{"custom", "custom-20240315T123005Z.csv", nil, "", false, false},
		{"custom", "other-20240315T123005Z.xlsx", nil, "", false, false},
	}
	for _, tt := range tests {
		entity, ok := ParseFilename(tt.base, tt.name, "xlsx")
		if ok != tt.wantParsed || entity != tt.wantEntity {
			t.Fatalf("ParseFilename(%q, %q) got=(%q,%v) want=(%q,%v)", tt.base, tt.name, entity, ok, tt.wantEntity, tt.wantParsed)
		}
		if got := OwnedBy(tt.base, tt.name, "xlsx", tt.entities); got != tt.wantOwned {
			t.Fatalf("OwnedBy(%q, %q) got=%v want=%v", tt.base, tt.name, got, tt.wantOwned)
		}
	}
}

package sqlite

import (
	"context"
	_ "embed"
	"path/filepath"
	"reflect"
	"testing"

	"caseexport/internal/config"
	"caseexport/internal/schema"
	"caseexport/internal/storage"
)

//go:embed testdata/schema.sql
var schemaSQL string

//go:embed testdata/seed.sql
var seedSQL string

// openSeeded returns a Source over a fresh in-memory database holding the
// seed fixture.
func openSeeded(t *testing.T, cfg storage.Config) storage.Source {
	t.Helper()
	ctx := context.Background()

	db, err := Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, script := range []string{schemaSQL, seedSQL} {
		if _, err := db.ExecContext(ctx, script); err != nil {
			_ = db.Close()
			t.Fatalf("exec fixture: %v", err)
		}
	}
	src := FromDB(db, cfg)
	t.Cleanup(src.Close)
	return src
}

func TestSubjects_PagesByIDAndSkipsPurged(t *testing.T) {
	src := openSeeded(t, storage.Config{})
	ctx := context.Background()

	page1, err := src.Subjects(ctx, 0, 2, []string{"first_name"})
	if err != nil {
		t.Fatalf("Subjects: %v", err)
	}
	if got := ids(page1); !reflect.DeepEqual(got, []int64{5, 9}) {
		t.Fatalf("page1 ids=%v", got)
	}
	if page1[0].String("first_name") != "Ann" {
		t.Fatalf("first_name=%q", page1[0].String("first_name"))
	}

	page2, err := src.Subjects(ctx, 9, 2, []string{"first_name"})
	if err != nil {
		t.Fatalf("Subjects: %v", err)
	}
	// 14 is purged.
	if got := ids(page2); !reflect.DeepEqual(got, []int64{12}) {
		t.Fatalf("page2 ids=%v", got)
	}
}

func TestSubjects_WherePredicate(t *testing.T) {
	src := openSeeded(t, storage.Config{Where: `p."jurisdiction_id" = ?`, Args: []any{2}})

	got, err := src.Subjects(context.Background(), 0, 10, nil)
	if err != nil {
		t.Fatalf("Subjects: %v", err)
	}
	if !reflect.DeepEqual(ids(got), []int64{5, 12}) {
		t.Fatalf("ids=%v want [5 12]", ids(got))
	}
}

func TestSymptomCatalog_DistinctSortedAndScoped(t *testing.T) {
	src := openSeeded(t, storage.Config{})

	got, err := src.SymptomCatalog(context.Background())
	if err != nil {
		t.Fatalf("SymptomCatalog: %v", err)
	}
	var names []string
	for _, s := range got {
		names = append(names, s.Name)
	}
	// rash belongs to a purged subject.
	if want := []string{"cough", "fever", "headache"}; !reflect.DeepEqual(names, want) {
		t.Fatalf("names=%v want=%v", names, want)
	}
	if got[1].Label != "Fever" {
		t.Fatalf("label=%q want Fever", got[1].Label)
	}
}

func TestSymptoms_ReportWithoutConditionIsAbsent(t *testing.T) {
	src := openSeeded(t, storage.Config{})

	got, err := src.Symptoms(context.Background(), []int64{100, 101, 102})
	if err != nil {
		t.Fatalf("Symptoms: %v", err)
	}
	if _, ok := got[102]; ok {
		t.Fatalf("report 102 has no condition; got %v", got[102])
	}
	if len(got[100]) != 2 || got[100][0].Name != "cough" || got[100][0].Value != false {
		t.Fatalf("report 100=%v", got[100])
	}
	if got[101][0].Value != true {
		t.Fatalf("report 101 fever=%v want true", got[101][0].Value)
	}
}

func TestChildren_OrderedByPatientThenID(t *testing.T) {
	src := openSeeded(t, storage.Config{})

	got, err := src.Children(context.Background(), schema.Assessments, []int64{9, 5}, []string{"who_reported"})
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	if !reflect.DeepEqual(ids(got), []int64{100, 101, 102}) {
		t.Fatalf("ids=%v", ids(got))
	}
}

func TestLookups(t *testing.T) {
	src := openSeeded(t, storage.Config{})
	ctx := context.Background()

	jur, err := src.Jurisdictions(ctx, []int64{2, 99})
	if err != nil {
		t.Fatalf("Jurisdictions: %v", err)
	}
	if jur[2].Path != "USA, State 1" || len(jur) != 1 {
		t.Fatalf("jurisdictions=%v", jur)
	}

	users, err := src.Users(ctx, []int64{10})
	if err != nil {
		t.Fatalf("Users: %v", err)
	}
	if users[10] != "enroller@example.com" {
		t.Fatalf("users=%v", users)
	}

	tr, err := src.LatestTransfers(ctx, []int64{5, 9})
	if err != nil {
		t.Fatalf("LatestTransfers: %v", err)
	}
	if got := tr[5]; got.FromJurisdictionID != 1 || got.ToJurisdictionID != 2 {
		t.Fatalf("latest transfer=%+v want 1->2", got)
	}
	if _, ok := tr[9]; ok {
		t.Fatalf("subject 9 has no transfers")
	}

	labs, err := src.RecentLabs(ctx, []int64{5, 9}, 2)
	if err != nil {
		t.Fatalf("RecentLabs: %v", err)
	}
	if got := ids(labs[5]); !reflect.DeepEqual(got, []int64{201, 200}) {
		t.Fatalf("labs[5]=%v want [201 200]", got)
	}
	if got := ids(labs[9]); !reflect.DeepEqual(got, []int64{203}) {
		t.Fatalf("labs[9]=%v", got)
	}
}

func TestNewSource_FileDatabaseThroughFactory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cases.db")

	db, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, script := range []string{schemaSQL, seedSQL} {
		if _, err := db.ExecContext(ctx, script); err != nil {
			t.Fatalf("exec fixture: %v", err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	src, err := storage.New(ctx, storage.Config{
		Kind:    "sqlite",
		DSN:     path,
		Options: config.Options{"busy_timeout_ms": 100},
	})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	defer src.Close()

	page, err := src.Subjects(ctx, 0, 10, nil)
	if err != nil {
		t.Fatalf("Subjects: %v", err)
	}
	if got := ids(page); !reflect.DeepEqual(got, []int64{5, 9, 12}) {
		t.Fatalf("ids=%v", got)
	}
}

func ids[T interface{ ID() int64 }](rs []T) []int64 {
	out := make([]int64, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ID())
	}
	return out
}

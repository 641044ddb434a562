package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"caseexport/internal/config"
	"caseexport/internal/schema"
	"caseexport/internal/storage"
	"caseexport/pkg/records"
)

func fixture() Dataset {
	return Dataset{}.
		Add("patients",
			records.Record{"id": int64(12), "first_name": "Cy"},
			records.Record{"id": int64(5), "first_name": "Ann"},
			records.Record{"id": int64(9), "first_name": "Bo"},
			records.Record{"id": int64(14), "first_name": "Gone", "purged": true},
		).
		Add("assessments",
			records.Record{"id": int64(100), "patient_id": int64(5)},
			records.Record{"id": int64(101), "patient_id": int64(14)},
		).
		Add("conditions",
			records.Record{"id": int64(1), "assessment_id": int64(100)},
			records.Record{"id": int64(2), "assessment_id": int64(101)},
		).
		Add("symptoms",
			records.Record{"condition_id": int64(1), "name": "fever", "label": "Fever", "type": "BoolSymptom", "bool_value": int64(1)},
			records.Record{"condition_id": int64(1), "name": "cough", "label": "Cough", "type": "BoolSymptom", "bool_value": false},
			records.Record{"condition_id": int64(2), "name": "rash", "label": "Rash", "type": "BoolSymptom", "bool_value": true},
		)
}

func TestSubjects_KeysetPagingSkipsPurged(t *testing.T) {
	s := New(fixture())
	ctx := context.Background()

	var got []int64
	after := int64(0)
	for {
		page, err := s.Subjects(ctx, after, 2, []string{"first_name"})
		if err != nil {
			t.Fatalf("Subjects: %v", err)
		}
		for _, r := range page {
			got = append(got, r.ID())
		}
		if len(page) < 2 {
			break
		}
		after = page[len(page)-1].ID()
	}
	want := []int64{5, 9, 12}
	if len(got) != len(want) {
		t.Fatalf("got=%v want=%v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got=%v want=%v", got, want)
		}
	}
	if s.Calls("subjects") != 2 {
		t.Fatalf("subjects calls=%d want=2", s.Calls("subjects"))
	}
}

func TestRestrict(t *testing.T) {
	s := New(fixture())
	s.Restrict([]int64{9, 14})
	page, err := s.Subjects(context.Background(), 0, 10, nil)
	if err != nil {
		t.Fatalf("Subjects: %v", err)
	}
	if len(page) != 1 || page[0].ID() != 9 {
		t.Fatalf("page=%v", page)
	}
}

func TestSymptomCatalog_OnlyCandidates(t *testing.T) {
	s := New(fixture())
	cat, err := s.SymptomCatalog(context.Background())
	if err != nil {
		t.Fatalf("SymptomCatalog: %v", err)
	}
	if len(cat) != 2 || cat[0].Name != "cough" || cat[1].Name != "fever" || cat[1].Label != "Fever" {
		t.Fatalf("catalog=%v", cat)
	}
}

func TestSymptoms_NormalizesBool(t *testing.T) {
	s := New(fixture())
	vals, err := s.Symptoms(context.Background(), []int64{100})
	if err != nil {
		t.Fatalf("Symptoms: %v", err)
	}
	got := vals[100]
	if len(got) != 2 || got[0].Name != "cough" || got[0].Value != false || got[1].Value != true {
		t.Fatalf("values=%v", got)
	}
}

func TestFail_WrapsSourceError(t *testing.T) {
	boom := errors.New("boom")
	s := New(fixture())
	s.Fail = func(op string) error {
		if op == "children:assessments" {
			return boom
		}
		return nil
	}
	_, err := s.Children(context.Background(), schema.Assessments, []int64{5}, nil)
	var se *storage.SourceError
	if !errors.As(err, &se) || se.Operation != "children:assessments" || !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
}

func TestNewSource_FromFixture(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")
	body := `{"patients":[{"id":1,"first_name":"A"},{"id":2,"first_name":"B"},{"id":3,"first_name":"C"}]}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	src, err := storage.New(context.Background(), storage.Config{
		Kind:    "memory",
		DSN:     path,
		Options: config.Options{"ids": []any{float64(1), float64(3)}},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer src.Close()

	page, err := src.Subjects(context.Background(), 0, 10, []string{"first_name"})
	if err != nil {
		t.Fatalf("Subjects: %v", err)
	}
	if len(page) != 2 || page[0].String("first_name") != "A" || page[1].String("first_name") != "C" {
		t.Fatalf("page=%v", page)
	}
}

func TestNewSource_RejectsWhere(t *testing.T) {
	_, err := NewSource(context.Background(), storage.Config{Kind: "memory", DSN: "x.json", Where: "id > 1"})
	if err == nil {
		t.Fatalf("expected error")
	}
}

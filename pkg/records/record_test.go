package records

import (
	"math"
	"testing"
	"time"
)

func TestToInt64(t *testing.T) {
	tests := []struct {
		in     any
		want   int64
		wantOK bool
	}{
		{int64(7), 7, true},
		{int32(7), 7, true},
		{uint8(7), 7, true},
		{float64(12), 12, true},
		{float64(1.5), 0, false},
		{" 42 ", 42, true},
		{[]byte("9"), 9, true},
		{"x", 0, false},
		{nil, 0, false},
		{true, 0, false},
		{uint64(math.MaxInt64), math.MaxInt64, true},
		{uint64(math.MaxInt64) + 1, 0, false},
		{uint(3), 3, true},
		{float64(1 << 62), 1 << 62, true},
		{float64(math.MaxInt64), 0, false},
		{float64(-1e19), 0, false},
		{math.Inf(1), 0, false},
		{math.NaN(), 0, false},
		{float32(-3), -3, true},
	}
	for _, tc := range tests {
		got, ok := ToInt64(tc.in)
		if got != tc.want || ok != tc.wantOK {
			t.Fatalf("ToInt64(%#v)=%d,%v want=%d,%v", tc.in, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestToString(t *testing.T) {
	ts := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"  Ann ", "Ann"},
		{[]byte(" Bo"), "Bo"},
		{true, "true"},
		{int64(-3), "-3"},
		{2.5, "2.5"},
		{float64(38), "38"},
		{ts, "2024-03-15T12:00:00Z"},
	}
	for _, tc := range tests {
		if got := ToString(tc.in); got != tc.want {
			t.Fatalf("ToString(%#v)=%q want=%q", tc.in, got, tc.want)
		}
	}
}

func TestRecordAccessors(t *testing.T) {
	r := Record{"id": float64(5), "name": " Ann ", "none": nil}
	if r.ID() != 5 {
		t.Fatalf("ID=%d", r.ID())
	}
	if r.String("name") != "Ann" || r.String("missing") != "" {
		t.Fatalf("String wrong")
	}
	if !r.Has("name") || r.Has("none") || r.Has("missing") {
		t.Fatalf("Has wrong")
	}
	if _, ok := r.Int64("name"); ok {
		t.Fatalf("Int64 on a name must fail")
	}
}

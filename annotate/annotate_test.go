package annotate

import (
	"context"
	"errors"
	"testing"
)

func testSchema() *Schema {
	r := [2]float64{1, 5}
	return &Schema{
		Name:        "investment_signal",
		Description: "Investment signal scoring",
		Fields: []Field{
			{Name: "signal_strength", Kind: KindInteger, Range: &r},
			{Name: "track_category", Kind: KindCategory, Values: []string{"ai", "web3", "hardware", "other"}},
			{Name: "mentions_funding", Kind: KindBoolean},
		},
	}
}

func TestSchemaValidate(t *testing.T) {
	// WHAT: Validate accepts a well-formed schema and rejects broken ones.
	// WHY: Schema errors must surface before any column is created.
	if err := testSchema().Validate(); err != nil {
		t.Fatalf("valid schema rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Schema)
	}{
		{"empty name", func(s *Schema) { s.Name = "" }},
		{"bad name", func(s *Schema) { s.Name = "Signal-Strength" }},
		{"no fields", func(s *Schema) { s.Fields = nil }},
		{"bad field name", func(s *Schema) { s.Fields[0].Name = "1signal" }},
		{"duplicate field", func(s *Schema) { s.Fields[1].Name = s.Fields[0].Name }},
		{"unknown kind", func(s *Schema) { s.Fields[0].Kind = "enum" }},
		{"category without values", func(s *Schema) { s.Fields[1].Values = nil }},
		{"inverted range", func(s *Schema) { s.Fields[0].Range = &[2]float64{5, 1} }},
	}
	for _, tc := range cases {
		s := testSchema()
		tc.mutate(s)
		if err := s.Validate(); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestFieldSQLType(t *testing.T) {
	// WHAT: Kind to SQLite type mapping.
	// WHY: EnsureColumns materializes columns from these.
	want := map[string]string{
		KindInteger:  "INTEGER",
		KindBoolean:  "INTEGER",
		KindFloat:    "REAL",
		KindCategory: "TEXT",
		KindText:     "TEXT",
	}
	for kind, sqlType := range want {
		f := Field{Name: "f", Kind: kind}
		if got := f.SQLType(); got != sqlType {
			t.Errorf("%s: got %s, want %s", kind, got, sqlType)
		}
	}
}

func TestFieldCoerce(t *testing.T) {
	// WHAT: Coerce converts JSON-ish values into storage form with bounds
	// and allowed-value checks.
	// WHY: Classifier output is untyped; bad values must never reach SQL.
	r := [2]float64{1, 5}
	intField := Field{Name: "score", Kind: KindInteger, Range: &r}
	if v, err := intField.Coerce(float64(3)); err != nil || v != int64(3) {
		t.Errorf("integer: got %v, %v", v, err)
	}
	if _, err := intField.Coerce(3.5); err == nil {
		t.Error("fractional value should fail integer coercion")
	}
	if _, err := intField.Coerce(float64(9)); err == nil {
		t.Error("out-of-range value should fail")
	}

	boolField := Field{Name: "flag", Kind: KindBoolean}
	if v, _ := boolField.Coerce(true); v != int64(1) {
		t.Errorf("boolean true: got %v, want 1", v)
	}
	if v, _ := boolField.Coerce(false); v != int64(0) {
		t.Errorf("boolean false: got %v, want 0", v)
	}
	if _, err := boolField.Coerce("yes"); err == nil {
		t.Error("string should fail boolean coercion")
	}

	catField := Field{Name: "cat", Kind: KindCategory, Values: []string{"ai", "web3"}}
	if v, err := catField.Coerce("ai"); err != nil || v != "ai" {
		t.Errorf("category: got %v, %v", v, err)
	}
	if _, err := catField.Coerce("crypto"); err == nil {
		t.Error("unlisted category should fail")
	}
}

type mapSink struct {
	writes map[string]map[string]any
	fail   map[string]error
}

func (s *mapSink) UpdateFields(_ context.Context, id string, fields map[string]any) error {
	if err := s.fail[id]; err != nil {
		return err
	}
	if s.writes == nil {
		s.writes = map[string]map[string]any{}
	}
	s.writes[id] = fields
	return nil
}

func TestAnnotatorRun(t *testing.T) {
	// WHAT: Run batches rows through the classifier and writes coerced
	// values; per-row failures are reported without aborting.
	// WHY: One malformed result or one missing record must not lose the batch.
	schema := testSchema()
	rows := []Row{{ID: "t1"}, {ID: "t2"}, {ID: "t3"}}

	classify := func(_ context.Context, _ *Schema, batch []Row) ([]map[string]any, error) {
		out := make([]map[string]any, len(batch))
		for i, r := range batch {
			if r.ID == "t2" {
				// Bad category value: coercion must reject it.
				out[i] = map[string]any{"signal_strength": 2.0, "track_category": "nope", "mentions_funding": false}
				continue
			}
			out[i] = map[string]any{"signal_strength": 4.0, "track_category": "ai", "mentions_funding": true}
		}
		return out, nil
	}

	sink := &mapSink{fail: map[string]error{"t3": errors.New("record not found")}}
	report, err := New(schema, classify, sink, Options{BatchSize: 2}).Run(context.Background(), rows)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if report.Annotated != 1 {
		t.Errorf("annotated: got %d, want 1", report.Annotated)
	}
	if report.Skipped != 2 {
		t.Errorf("skipped: got %d, want 2", report.Skipped)
	}
	if len(report.Errors) != 2 {
		t.Errorf("errors: got %d, want 2", len(report.Errors))
	}
	got := sink.writes["t1"]
	if got == nil {
		t.Fatal("t1 not written")
	}
	if got["signal_strength"] != int64(4) || got["mentions_funding"] != int64(1) {
		t.Errorf("t1 fields: got %v", got)
	}
}

func TestAnnotatorClassifierFailure(t *testing.T) {
	// WHAT: A failing classifier call skips only that batch.
	// WHY: Transient classifier errors must not poison later batches.
	schema := testSchema()
	rows := []Row{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}

	calls := 0
	classify := func(_ context.Context, _ *Schema, batch []Row) ([]map[string]any, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("rate limited")
		}
		out := make([]map[string]any, len(batch))
		for i := range batch {
			out[i] = map[string]any{"signal_strength": 1.0, "track_category": "other", "mentions_funding": false}
		}
		return out, nil
	}

	sink := &mapSink{}
	report, err := New(schema, classify, sink, Options{BatchSize: 2}).Run(context.Background(), rows)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Annotated != 2 {
		t.Errorf("annotated: got %d, want 2", report.Annotated)
	}
	if report.Skipped != 2 {
		t.Errorf("skipped: got %d, want 2", report.Skipped)
	}
}

package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestManifest(t *testing.T) *Manifest {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "manifest.json"), Options{})
}

func mustInterval(t *testing.T, start, end string) Interval {
	t.Helper()
	iv, err := NewInterval(start, end)
	if err != nil {
		t.Fatalf("interval %s..%s: %v", start, end, err)
	}
	return iv
}

func pairs(ivs []Interval) [][2]string {
	out := make([][2]string, len(ivs))
	for i, iv := range ivs {
		out[i] = [2]string{iv.StartDay(), iv.EndDay()}
	}
	return out
}

func assertPairs(t *testing.T, got []Interval, want [][2]string) {
	t.Helper()
	g := pairs(got)
	if len(g) != len(want) {
		t.Fatalf("intervals: got %v, want %v", g, want)
	}
	for i := range want {
		if g[i] != want[i] {
			t.Fatalf("interval %d: got %v, want %v", i, g[i], want[i])
		}
	}
}

func TestMissingEmptyCoverage(t *testing.T) {
	// WHAT: With no stored intervals, the whole requested range is missing.
	// WHY: First fetch for a handle must cover the full request.
	m := newTestManifest(t)

	gaps, err := m.Missing("elonmusk", mustInterval(t, "2024-01-01", "2024-01-30"))
	if err != nil {
		t.Fatalf("missing: %v", err)
	}
	assertPairs(t, gaps, [][2]string{{"2024-01-01", "2024-01-30"}})
}

func TestMissingAroundStoredInterval(t *testing.T) {
	// WHAT: A stored interval inside the request leaves a gap on each side.
	// WHY: This is the core complement computation the engine fetches from.
	m := newTestManifest(t)
	if err := m.Commit("elonmusk", mustInterval(t, "2024-01-05", "2024-01-20")); err != nil {
		t.Fatalf("commit: %v", err)
	}

	gaps, err := m.Missing("elonmusk", mustInterval(t, "2024-01-01", "2024-01-30"))
	if err != nil {
		t.Fatalf("missing: %v", err)
	}
	assertPairs(t, gaps, [][2]string{
		{"2024-01-01", "2024-01-04"},
		{"2024-01-21", "2024-01-30"},
	})
}

func TestMissingFullyCovered(t *testing.T) {
	// WHAT: After committing the requested interval, nothing is missing.
	// WHY: A covered window must never be re-fetched.
	m := newTestManifest(t)
	iv := mustInterval(t, "2024-03-01", "2024-03-15")
	if err := m.Commit("karpathy", iv); err != nil {
		t.Fatalf("commit: %v", err)
	}

	gaps, err := m.Missing("karpathy", iv)
	if err != nil {
		t.Fatalf("missing: %v", err)
	}
	if len(gaps) != 0 {
		t.Fatalf("gaps: got %v, want none", pairs(gaps))
	}

	// A sub-window of the covered interval is also fully covered.
	gaps, err = m.Missing("karpathy", mustInterval(t, "2024-03-05", "2024-03-10"))
	if err != nil {
		t.Fatalf("missing: %v", err)
	}
	if len(gaps) != 0 {
		t.Fatalf("sub-window gaps: got %v, want none", pairs(gaps))
	}
}

func TestMissingStoredOutsideRequest(t *testing.T) {
	// WHAT: Stored intervals entirely before or after the request are ignored.
	// WHY: The sweep must skip non-overlapping coverage without emitting gaps.
	m := newTestManifest(t)
	m.Commit("h", mustInterval(t, "2023-12-01", "2023-12-10"))
	m.Commit("h", mustInterval(t, "2024-02-01", "2024-02-10"))

	gaps, err := m.Missing("h", mustInterval(t, "2024-01-01", "2024-01-15"))
	if err != nil {
		t.Fatalf("missing: %v", err)
	}
	assertPairs(t, gaps, [][2]string{{"2024-01-01", "2024-01-15"}})
}

func TestMissingSingleDayGap(t *testing.T) {
	// WHAT: A one-day hole between stored intervals is reported as a
	// one-day gap.
	// WHY: Degenerate (single-day) gaps are valid and must not be dropped.
	m := newTestManifest(t)
	m.Commit("h", mustInterval(t, "2024-01-01", "2024-01-09"))
	m.Commit("h", mustInterval(t, "2024-01-11", "2024-01-20"))

	gaps, err := m.Missing("h", mustInterval(t, "2024-01-01", "2024-01-20"))
	if err != nil {
		t.Fatalf("missing: %v", err)
	}
	assertPairs(t, gaps, [][2]string{{"2024-01-10", "2024-01-10"}})
}

func TestCommitMergesOverlapAndAdjacency(t *testing.T) {
	// WHAT: Sequential commits fold overlapping and day-adjacent intervals
	// into a minimal sorted disjoint list.
	// WHY: The stored document stays minimal and never shrinks.
	m := newTestManifest(t)
	m.Commit("elonmusk", mustInterval(t, "2024-01-01", "2024-01-10"))
	m.Commit("elonmusk", mustInterval(t, "2024-01-08", "2024-01-20"))
	m.Commit("elonmusk", mustInterval(t, "2024-01-25", "2024-01-30"))

	ivs, err := m.Intervals("elonmusk")
	if err != nil {
		t.Fatalf("intervals: %v", err)
	}
	assertPairs(t, ivs, [][2]string{
		{"2024-01-01", "2024-01-20"},
		{"2024-01-25", "2024-01-30"},
	})

	// Day-adjacent commit extends the run.
	m.Commit("elonmusk", mustInterval(t, "2024-01-21", "2024-01-24"))
	ivs, _ = m.Intervals("elonmusk")
	assertPairs(t, ivs, [][2]string{{"2024-01-01", "2024-01-30"}})
}

func TestCommitIdempotent(t *testing.T) {
	// WHAT: Committing the same interval twice stores it once.
	// WHY: Retried commits after partial failures must not distort coverage.
	m := newTestManifest(t)
	iv := mustInterval(t, "2024-05-01", "2024-05-07")
	m.Commit("h", iv)
	m.Commit("h", iv)

	ivs, err := m.Intervals("h")
	if err != nil {
		t.Fatalf("intervals: %v", err)
	}
	assertPairs(t, ivs, [][2]string{{"2024-05-01", "2024-05-07"}})
}

func TestCommitOutOfOrder(t *testing.T) {
	// WHAT: Commits arriving out of order still produce a sorted list.
	// WHY: Gaps are fetched ascending but handles can be committed from
	// any prior state.
	m := newTestManifest(t)
	m.Commit("h", mustInterval(t, "2024-06-10", "2024-06-20"))
	m.Commit("h", mustInterval(t, "2024-06-01", "2024-06-05"))

	ivs, _ := m.Intervals("h")
	assertPairs(t, ivs, [][2]string{
		{"2024-06-01", "2024-06-05"},
		{"2024-06-10", "2024-06-20"},
	})
}

func TestStrictMergeKeepsAdjacentSeparate(t *testing.T) {
	// WHAT: With StrictMerge, day-adjacent intervals are not folded.
	// WHY: Adjacency coalescing is a policy choice, kept configurable.
	m := New(filepath.Join(t.TempDir(), "manifest.json"), Options{StrictMerge: true})
	m.Commit("h", mustInterval(t, "2024-01-01", "2024-01-05"))
	m.Commit("h", mustInterval(t, "2024-01-06", "2024-01-10"))
	m.Commit("h", mustInterval(t, "2024-01-04", "2024-01-08"))

	ivs, _ := m.Intervals("h")
	// The third commit overlaps both, bridging them.
	assertPairs(t, ivs, [][2]string{{"2024-01-01", "2024-01-10"}})

	m.Commit("h", mustInterval(t, "2024-01-12", "2024-01-15"))
	ivs, _ = m.Intervals("h")
	assertPairs(t, ivs, [][2]string{
		{"2024-01-01", "2024-01-10"},
		{"2024-01-12", "2024-01-15"},
	})
}

func TestPersistenceAcrossReopen(t *testing.T) {
	// WHAT: Coverage survives a close/reopen of the manifest handle.
	// WHY: The document is the durable state, not the in-memory handle.
	path := filepath.Join(t.TempDir(), "manifest.json")
	m := New(path, Options{})
	m.Commit("yishan", mustInterval(t, "2024-02-01", "2024-02-14"))

	reopened := New(path, Options{})
	ivs, err := reopened.Intervals("yishan")
	if err != nil {
		t.Fatalf("intervals: %v", err)
	}
	assertPairs(t, ivs, [][2]string{{"2024-02-01", "2024-02-14"}})
}

func TestCorruptDocumentSurfacesError(t *testing.T) {
	// WHAT: A corrupt manifest document returns an error, not empty coverage.
	// WHY: Treating an unreadable manifest as empty would trigger a full
	// silent re-fetch of everything.
	path := filepath.Join(t.TempDir(), "manifest.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m := New(path, Options{})
	if _, err := m.Intervals("h"); err == nil {
		t.Fatal("expected error for corrupt document")
	}
	if err := m.Commit("h", mustInterval(t, "2024-01-01", "2024-01-02")); err == nil {
		t.Fatal("expected commit error for corrupt document")
	}
}

func TestIntervalValidation(t *testing.T) {
	// WHAT: NewInterval rejects malformed dates and end-before-start.
	// WHY: The manifest assumes well-formed intervals everywhere else.
	if _, err := NewInterval("2024-13-01", "2024-01-02"); err == nil {
		t.Error("expected error for invalid month")
	}
	if _, err := NewInterval("2024-01-10", "2024-01-05"); err == nil {
		t.Error("expected error for end before start")
	}
	iv, err := NewInterval("2024-01-05", "2024-01-05")
	if err != nil {
		t.Fatalf("single-day interval: %v", err)
	}
	if iv.Days() != 1 {
		t.Errorf("days: got %d, want 1", iv.Days())
	}
}

package output

import (
	"errors"
	"strings"
	"testing"
)

func TestManagerLifecycle(t *testing.T) {
	m := NewManager(100)
	a := m.Register("a.bin", 60)
	b := m.Register("b.bin", 40)
	if a == b {
		t.Fatalf("expected distinct ids, got %d and %d", a, b)
	}

	m.SetStatus(a, "downloading")
	m.Progress(a, 30)
	m.Progress(b, 40)
	done, total := m.Totals()
	if done != 70 || total != 100 {
		t.Errorf("totals = (%d, %d), want (70, 100)", done, total)
	}

	m.Progress(a, 30)
	m.Complete(a, "done")
	m.ReportError(b, errors.New("connection reset"))

	if got := m.files[a].Status; got != "success" {
		t.Errorf("file a status = %q, want success", got)
	}
	if !m.files[b].Complete || m.files[b].Status != "error" {
		t.Errorf("file b should be complete with error status, got %+v", m.files[b])
	}
	if len(m.errors) != 1 || m.errors[0].Name != "b.bin" {
		t.Errorf("unexpected error reports: %+v", m.errors)
	}
}

func TestManagerProgressActivates(t *testing.T) {
	m := NewManager(10)
	id := m.Register("c.bin", 10)
	if got := m.files[id].Status; got != "pending" {
		t.Fatalf("status after register = %q, want pending", got)
	}
	m.Progress(id, 1)
	if got := m.files[id].Status; got != "downloading" {
		t.Errorf("status after first progress = %q, want downloading", got)
	}
}

func TestSortFiles(t *testing.T) {
	m := NewManager(0)
	a := m.Register("a", 1)
	b := m.Register("b", 1)
	c := m.Register("c", 1)
	m.Progress(b, 1)
	m.Complete(c, "")
	active, pending, completed := m.sortFiles()
	if len(active) != 1 || active[0].ID != b {
		t.Errorf("active = %+v, want file b", active)
	}
	if len(pending) != 1 || pending[0].ID != a {
		t.Errorf("pending = %+v, want file a", pending)
	}
	if len(completed) != 1 || completed[0].ID != c {
		t.Errorf("completed = %+v, want file c", completed)
	}
}

func TestFormatETA(t *testing.T) {
	if got := formatETA(0, 100, 1); got != "--" {
		t.Errorf("ETA with no progress = %q, want --", got)
	}
	if got := formatETA(50, 100, 10); got != "10s" {
		t.Errorf("ETA at half = %q, want 10s", got)
	}
	if got := formatETA(100, 100, 10); got != "0s" {
		t.Errorf("ETA when done = %q, want 0s", got)
	}
}

func TestPrintProgressBar(t *testing.T) {
	full := PrintProgressBar(100, 100, 10)
	if !strings.Contains(full, "100.0%") {
		t.Errorf("full bar missing percentage: %q", full)
	}
	empty := PrintProgressBar(0, 100, 10)
	if !strings.Contains(empty, "0.0%") {
		t.Errorf("empty bar missing percentage: %q", empty)
	}
	// Degenerate inputs should not panic.
	PrintProgressBar(-5, 0, 0)
	PrintProgressBar(200, 100, 10)
}

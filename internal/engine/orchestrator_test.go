package engine

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/tanq16/melo/internal/checksum"
	"github.com/tanq16/melo/internal/iana"
	"github.com/tanq16/melo/internal/output"
	"github.com/tanq16/melo/internal/planner"
)

// fileHandler answers HEAD with the payload size and GET with either
// the requested range or the whole body.
func fileHandler(payload []byte, ranged *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
			return
		}
		if rng := r.Header.Get("Range"); rng != "" {
			if ranged != nil {
				ranged.Add(1)
			}
			var start, end int64
			fmt.Sscanf(rng, "bytes=%d-%d", &start, &end)
			w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(payload)))
			w.WriteHeader(http.StatusPartialContent)
			w.Write(payload[start : end+1])
			return
		}
		w.Write(payload)
	}
}

func TestRunDownloadsPlan(t *testing.T) {
	payloadA := testPayload(40 * 1024)
	payloadC := []byte("chunkless file body")
	mux := http.NewServeMux()
	mux.HandleFunc("/a.bin", fileHandler(payloadA, nil))
	mux.HandleFunc("/c.bin", fileHandler(payloadC, nil))
	srv := httptest.NewTLSServer(mux)
	defer srv.Close()

	dir := t.TempDir()
	sizeA := int64(len(payloadA))
	sizeC := int64(len(payloadC))
	plan := &planner.Plan{
		TotalSize: sizeA + sizeC,
		Files: []planner.FilePlan{
			{
				Name:   "a.bin",
				Target: filepath.Join(dir, "a.bin"),
				URL:    srv.URL + "/a.bin",
				Size:   &sizeA,
				Chunks: planner.CalculateRanges(sizeA, 8*1024),
			},
			{
				Name:   "sub/c.bin",
				Target: filepath.Join(dir, "sub", "c.bin"),
				URL:    srv.URL + "/c.bin",
				Size:   &sizeC,
			},
		},
	}
	display := output.NewManager(plan.TotalSize)
	opts := Options{Client: testClient(srv), MaxThreads: 3, MaxParallelFiles: 2, Display: display}
	if err := Run(context.Background(), plan, dir, opts); err != nil {
		t.Fatalf("Run: %v", err)
	}

	gotA, err := os.ReadFile(filepath.Join(dir, "a.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(gotA, payloadA) {
		t.Error("a.bin does not match payload")
	}
	gotC, err := os.ReadFile(filepath.Join(dir, "sub", "c.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(gotC, payloadC) {
		t.Error("sub/c.bin does not match payload")
	}
	if done, total := display.Totals(); done != total {
		t.Errorf("downloaded %d of %d bytes", done, total)
	}
}

func TestRunFirstErrorFailsRun(t *testing.T) {
	payload := []byte("good file")
	mux := http.NewServeMux()
	mux.HandleFunc("/good.bin", fileHandler(payload, nil))
	mux.HandleFunc("/bad.bin", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewTLSServer(mux)
	defer srv.Close()

	dir := t.TempDir()
	size := int64(len(payload))
	plan := &planner.Plan{
		TotalSize: size,
		Files: []planner.FilePlan{
			{Name: "good.bin", Target: filepath.Join(dir, "good.bin"), URL: srv.URL + "/good.bin", Size: &size},
			{Name: "bad.bin", Target: filepath.Join(dir, "bad.bin"), URL: srv.URL + "/bad.bin"},
		},
	}
	err := Run(context.Background(), plan, dir, Options{Client: testClient(srv), MaxThreads: 2, MaxParallelFiles: 2})
	if err == nil {
		t.Fatal("expected the run to fail")
	}
	if !strings.Contains(err.Error(), "bad.bin") {
		t.Errorf("err = %v, want it to name bad.bin", err)
	}
}

func TestRunEmptyPlan(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "never-created")
	if err := Run(context.Background(), &planner.Plan{}, dir, Options{}); err != nil {
		t.Fatalf("Run on empty plan: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("empty plan should not create the target directory")
	}
}

func TestRunResumesPartialFile(t *testing.T) {
	payload := testPayload(64 * 1024)
	srv := httptest.NewTLSServer(fileHandler(payload, nil))
	defer srv.Close()

	dir := t.TempDir()
	target := filepath.Join(dir, "resume.bin")
	onDisk := make([]byte, len(payload))
	copy(onDisk, payload)
	onDisk[20000] ^= 0xff // corrupt the second chunk
	if err := os.WriteFile(target, onDisk, 0644); err != nil {
		t.Fatal(err)
	}

	size := int64(len(payload))
	chunks := digestChunks(t, payload, planner.CalculateRanges(size, 16*1024))
	plan := &planner.Plan{
		TotalSize: size,
		Files: []planner.FilePlan{
			{Name: "resume.bin", Target: target, URL: srv.URL, Size: &size, Chunks: chunks},
		},
	}
	min, err := plan.Minimize()
	if err != nil {
		t.Fatalf("Minimize: %v", err)
	}
	if len(min.Files) != 1 || len(min.Files[0].Chunks) != 1 {
		t.Fatalf("minimized plan = %+v, want one file with one chunk", min)
	}
	if got := min.Files[0].Chunks[0].Start; got != 16384 {
		t.Fatalf("kept chunk starts at %d, want 16384", got)
	}

	opts := Options{Client: testClient(srv), MaxThreads: 2, MaxParallelFiles: 1, VerifyChunks: true}
	if err := Run(context.Background(), min, dir, opts); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("resumed file does not match payload")
	}

	// A second minimize sees a fully valid file.
	again, err := plan.Minimize()
	if err != nil {
		t.Fatal(err)
	}
	if len(again.Files) != 0 || again.TotalSize != 0 {
		t.Errorf("plan after repair = %+v, want empty", again)
	}
}

func TestFetchFileSimple(t *testing.T) {
	payload := []byte("small enough to stream")
	srv := httptest.NewTLSServer(fileHandler(payload, nil))
	defer srv.Close()

	dir := t.TempDir()
	if err := FetchFile(context.Background(), srv.URL+"/file.txt", dir, Options{Client: testClient(srv), MaxThreads: 2}); err != nil {
		t.Fatalf("FetchFile: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "file.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("file = %q, want %q", got, payload)
	}
}

func TestFetchFileChunked(t *testing.T) {
	payload := testPayload(1536 * 1024) // 1.5 MiB splits into two ranges
	var ranged atomic.Int32
	srv := httptest.NewTLSServer(fileHandler(payload, &ranged))
	defer srv.Close()

	dir := t.TempDir()
	if err := FetchFile(context.Background(), srv.URL+"/big.iso", dir, Options{Client: testClient(srv), MaxThreads: 3}); err != nil {
		t.Fatalf("FetchFile: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "big.iso"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("downloaded file does not match payload")
	}
	if ranged.Load() != 2 {
		t.Errorf("range requests = %d, want 2", ranged.Load())
	}
	sum, err := checksum.SumFile(iana.HashSHA256, filepath.Join(dir, "big.iso"))
	if err != nil {
		t.Fatal(err)
	}
	want, err := checksum.Sum(iana.HashSHA256, payload)
	if err != nil {
		t.Fatal(err)
	}
	if sum != want {
		t.Error("checksum mismatch after chunked download")
	}
}

func TestFetchFileHeadFailureFallsBack(t *testing.T) {
	payload := []byte("served without HEAD support")
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Write(payload)
	}))
	defer srv.Close()

	dir := t.TempDir()
	if err := FetchFile(context.Background(), srv.URL+"/fallback.txt", dir, Options{Client: testClient(srv), MaxThreads: 2}); err != nil {
		t.Fatalf("FetchFile: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "fallback.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("file = %q, want %q", got, payload)
	}
}

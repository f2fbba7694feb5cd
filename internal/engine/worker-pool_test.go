package engine

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tanq16/melo/internal/checksum"
	"github.com/tanq16/melo/internal/iana"
	"github.com/tanq16/melo/internal/planner"
	"github.com/tanq16/melo/internal/utils"
)

func testPayload(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func testClient(srv *httptest.Server) *utils.MeloHTTPClient {
	c := utils.NewMeloHTTPClient(utils.HTTPClientConfig{RetryWait: time.Millisecond})
	c.Client = srv.Client()
	return c
}

// rangeHandler serves byte ranges of payload, optionally corrupting
// responses for ranges whose start offset is in corrupt.
func rangeHandler(t *testing.T, payload []byte, hits *atomic.Int32, corrupt map[int64]bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var start, end int64
		if _, err := fmt.Sscanf(r.Header.Get("Range"), "bytes=%d-%d", &start, &end); err != nil {
			t.Errorf("bad range header %q", r.Header.Get("Range"))
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if hits != nil {
			hits.Add(1)
		}
		body := make([]byte, end-start+1)
		copy(body, payload[start:end+1])
		if corrupt[start] {
			body[0] ^= 0xff
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(payload)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(body)
	}
}

func digestChunks(t *testing.T, payload []byte, chunks []planner.Chunk) []planner.Chunk {
	out := make([]planner.Chunk, len(chunks))
	for i, c := range chunks {
		sum, err := checksum.Sum(iana.HashSHA256, payload[c.Start:c.End+1])
		if err != nil {
			t.Fatal(err)
		}
		out[i] = c
		out[i].Checksum = &planner.Digest{Algorithm: iana.HashSHA256, Value: sum}
	}
	return out
}

func TestPoolSize(t *testing.T) {
	cases := []struct {
		maxThreads, chunks, want int
	}{
		{2, 10, 1},
		{5, 10, 4},
		{5, 2, 2},
		{0, 5, 1},
		{8, 1, 1},
	}
	for _, c := range cases {
		if got := poolSize(c.maxThreads, c.chunks); got != c.want {
			t.Errorf("poolSize(%d, %d) = %d, want %d", c.maxThreads, c.chunks, got, c.want)
		}
	}
}

func TestDownloadChunksReassembles(t *testing.T) {
	payload := testPayload(100 * 1024)
	srv := httptest.NewTLSServer(rangeHandler(t, payload, nil, nil))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "out.bin")
	var progressed atomic.Int64
	writer, err := NewFileWriter(path, int64(len(payload)), func(n int64) { progressed.Add(n) })
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}
	chunks := planner.CalculateRanges(int64(len(payload)), 4096)
	err = downloadChunks(context.Background(), testClient(srv), srv.URL, chunks, 5, false, writer)
	if cerr := writer.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		t.Fatalf("downloadChunks: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("reassembled file does not match payload")
	}
	if progressed.Load() != int64(len(payload)) {
		t.Errorf("progress total = %d, want %d", progressed.Load(), len(payload))
	}
}

func TestDownloadChunksVerifiesDigests(t *testing.T) {
	payload := testPayload(16 * 1024)
	srv := httptest.NewTLSServer(rangeHandler(t, payload, nil, nil))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "out.bin")
	writer, err := NewFileWriter(path, int64(len(payload)), nil)
	if err != nil {
		t.Fatal(err)
	}
	chunks := digestChunks(t, payload, planner.CalculateRanges(int64(len(payload)), 4096))
	err = downloadChunks(context.Background(), testClient(srv), srv.URL, chunks, 3, true, writer)
	if cerr := writer.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		t.Fatalf("downloadChunks: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("verified file does not match payload")
	}
}

func TestDownloadChunksChecksumFailureCancels(t *testing.T) {
	payload := testPayload(8 * 1024)
	var hits atomic.Int32
	// Every response for the range starting at 4096 is corrupted, so
	// its digest can never match.
	srv := httptest.NewTLSServer(rangeHandler(t, payload, &hits, map[int64]bool{4096: true}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "out.bin")
	writer, err := NewFileWriter(path, int64(len(payload)), nil)
	if err != nil {
		t.Fatal(err)
	}
	chunks := digestChunks(t, payload, planner.CalculateRanges(int64(len(payload)), 4096))
	err = downloadChunks(context.Background(), testClient(srv), srv.URL, chunks, 2, true, writer)
	writer.Close()
	if err == nil {
		t.Fatal("expected a checksum failure")
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Errorf("err = %v, want exhausted attempts", err)
	}
	if !strings.Contains(err.Error(), "digest mismatch") {
		t.Errorf("err = %v, want digest mismatch cause", err)
	}
}

func TestDownloadChunksDigestlessSkipVerification(t *testing.T) {
	payload := testPayload(4 * 1024)
	var hits atomic.Int32
	// Corrupt responses would fail verification, but these chunks carry
	// no digests so the bytes are accepted as is.
	srv := httptest.NewTLSServer(rangeHandler(t, payload, &hits, map[int64]bool{0: true}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "out.bin")
	writer, err := NewFileWriter(path, int64(len(payload)), nil)
	if err != nil {
		t.Fatal(err)
	}
	chunks := planner.CalculateRanges(int64(len(payload)), 4096)
	err = downloadChunks(context.Background(), testClient(srv), srv.URL, chunks, 2, true, writer)
	if cerr := writer.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		t.Fatalf("downloadChunks: %v", err)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}
}

func TestDownloadChunksCancelled(t *testing.T) {
	payload := testPayload(8 * 1024)
	srv := httptest.NewTLSServer(rangeHandler(t, payload, nil, nil))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	path := filepath.Join(t.TempDir(), "out.bin")
	writer, err := NewFileWriter(path, int64(len(payload)), nil)
	if err != nil {
		t.Fatal(err)
	}
	err = downloadChunks(ctx, testClient(srv), srv.URL, planner.CalculateRanges(int64(len(payload)), 4096), 2, false, writer)
	writer.Close()
	if err == nil {
		t.Fatal("expected an error after cancellation")
	}
}

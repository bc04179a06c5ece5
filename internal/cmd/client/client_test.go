package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rzbill/flare/internal/archive"
	"github.com/rzbill/flare/pkg/event"
	logpkg "github.com/rzbill/flare/pkg/log"
	"github.com/rzbill/flare/pkg/logger"
	pebblestore "github.com/rzbill/flare/pkg/storage/pebble"
)

// collectorStub records batches posted to /v1/events and answers with status.
type collectorStub struct {
	mu      sync.Mutex
	batches []logger.Batch
	status  int
}

func (c *collectorStub) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var b logger.Batch
		_ = json.NewDecoder(r.Body).Decode(&b)
		c.mu.Lock()
		c.batches = append(c.batches, b)
		c.mu.Unlock()
		status := c.status
		if status == 0 {
			status = http.StatusAccepted
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"success":true}`))
	})
}

func (c *collectorStub) events(t *testing.T) []event.Event {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []event.Event
	for _, b := range c.batches {
		out = append(out, b.Events...)
	}
	return out
}

func startCollectorStub(t *testing.T, status int) (*collectorStub, string) {
	t.Helper()
	stub := &collectorStub{status: status}
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)
	return stub, srv.URL
}

func TestSendPrintsStatus(t *testing.T) {
	stub, url := startCollectorStub(t, 0)

	cmd := NewSendCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--endpoint", url, "--name", "click", "--value", "3", "--meta", "page=home", "--user-id", "u-1"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(buf.String(), "status: OK") {
		t.Fatalf("expected status in output, got: %s", buf.String())
	}

	evs := stub.events(t)
	if len(evs) != 1 {
		t.Fatalf("delivered %d events, want 1", len(evs))
	}
	ev := evs[0]
	if ev.Name != "click" {
		t.Fatalf("name: %q", ev.Name)
	}
	if v, ok := ev.Value.(float64); !ok || v != 3 {
		t.Fatalf("value not parsed as number: %#v", ev.Value)
	}
	if ev.Metadata["page"] != "home" {
		t.Fatalf("metadata: %#v", ev.Metadata)
	}
	if ev.User == nil || ev.User.UserID != "u-1" {
		t.Fatalf("user: %#v", ev.User)
	}
}

func TestSendRequiresName(t *testing.T) {
	cmd := NewSendCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--endpoint", "http://127.0.0.1:1"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error without --name")
	}
}

func TestSendFailureWithoutDataDirErrors(t *testing.T) {
	_, url := startCollectorStub(t, http.StatusBadRequest)

	cmd := NewSendCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--endpoint", url, "--name", "doomed"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error when delivery fails with no --data-dir")
	}
}

func TestSendFailureWithDataDirSpools(t *testing.T) {
	_, url := startCollectorStub(t, http.StatusBadRequest)
	dataDir := t.TempDir()

	cmd := NewSendCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--endpoint", url, "--name", "doomed", "--data-dir", dataDir})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(buf.String(), "status: SPOOLED") {
		t.Fatalf("expected SPOOLED, got: %s", buf.String())
	}

	batches := readSpoolDir(t, dataDir)
	if len(batches) != 1 || len(batches[0].Events) != 1 {
		t.Fatalf("spool contents: %+v", batches)
	}
}

func TestRelayPumpsInput(t *testing.T) {
	stub, url := startCollectorStub(t, 0)

	cmd := NewRelayCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader(`{"name":"a"}` + "\n" + `{"name":"b"}` + "\n"))
	cmd.SetArgs([]string{"--endpoint", url, "--log-level", "error"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	var st struct {
		Forwarded int `json:"forwarded"`
		Spooled   int `json:"spooled"`
	}
	if err := json.Unmarshal(buf.Bytes(), &st); err != nil {
		t.Fatalf("stats output: %v\n%s", err, buf.String())
	}
	if st.Forwarded != 2 || st.Spooled != 0 {
		t.Fatalf("stats: %+v", st)
	}
	if evs := stub.events(t); len(evs) != 2 {
		t.Fatalf("delivered %d events, want 2", len(evs))
	}
}

func TestRelayAppliesFilter(t *testing.T) {
	stub, url := startCollectorStub(t, 0)

	cmd := NewRelayCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader(`{"name":"keep"}` + "\n" + `{"name":"drop"}` + "\n"))
	cmd.SetArgs([]string{"--endpoint", url, "--filter", `name == "keep"`, "--log-level", "error"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	evs := stub.events(t)
	if len(evs) != 1 || evs[0].Name != "keep" {
		t.Fatalf("delivered: %+v", evs)
	}
}

func seedSpoolDir(t *testing.T, dataDir string, batches []logger.Batch) {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: filepath.Join(dataDir, "store"), Fsync: pebblestore.FsyncModeNever})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	blob, err := json.Marshal(batches)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := pebblestore.NewKV(db).Set(logger.SpoolKey, string(blob)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func readSpoolDir(t *testing.T, dataDir string) []logger.Batch {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: filepath.Join(dataDir, "store"), Fsync: pebblestore.FsyncModeNever})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer func() { _ = db.Close() }()
	raw, ok := pebblestore.NewKV(db).Get(logger.SpoolKey)
	if !ok {
		return nil
	}
	var batches []logger.Batch
	if err := json.Unmarshal([]byte(raw), &batches); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return batches
}

func TestSpoolListSummarizes(t *testing.T) {
	dataDir := t.TempDir()
	seedSpoolDir(t, dataDir, []logger.Batch{
		{Events: []event.Event{{Name: "a", Time: 1}, {Name: "b", Time: 2}}, Time: 100},
		{Events: []event.Event{{Name: "c", Time: 3}}, Time: 200},
	})

	cmd := NewSpoolCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"list", "--data-dir", dataDir})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	var out struct {
		Batches int `json:"batches"`
		Events  int `json:"events"`
	}
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v\n%s", err, buf.String())
	}
	if out.Batches != 2 || out.Events != 3 {
		t.Fatalf("summary: %+v", out)
	}
}

func TestSpoolClearRequiresConfirm(t *testing.T) {
	dataDir := t.TempDir()
	seedSpoolDir(t, dataDir, []logger.Batch{{Events: []event.Event{{Name: "a"}}, Time: 1}})

	cmd := NewSpoolCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"clear", "--data-dir", dataDir})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error without --confirm")
	}

	cmd = NewSpoolCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"clear", "--data-dir", dataDir, "--confirm"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := readSpoolDir(t, dataDir); got != nil {
		t.Fatalf("spool not cleared: %+v", got)
	}
}

func TestSpoolReplayDeliversAndClears(t *testing.T) {
	stub, url := startCollectorStub(t, 0)
	dataDir := t.TempDir()
	seedSpoolDir(t, dataDir, []logger.Batch{
		{Events: []event.Event{{Name: "a", Time: 1}}, Time: 100},
		{Events: []event.Event{{Name: "b", Time: 2}}, Time: 200},
	})

	cmd := NewSpoolCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"replay", "--data-dir", dataDir, "--endpoint", url})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(buf.String(), "delivered 2 of 2") {
		t.Fatalf("output: %s", buf.String())
	}
	if evs := stub.events(t); len(evs) != 2 {
		t.Fatalf("delivered %d events, want 2", len(evs))
	}
	if got := readSpoolDir(t, dataDir); got != nil {
		t.Fatalf("spool not cleared: %+v", got)
	}
}

func TestSpoolReplayKeepsFailures(t *testing.T) {
	_, url := startCollectorStub(t, http.StatusBadRequest)
	dataDir := t.TempDir()
	seedSpoolDir(t, dataDir, []logger.Batch{{Events: []event.Event{{Name: "a", Time: 1}}, Time: 100}})

	cmd := NewSpoolCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"replay", "--data-dir", dataDir, "--endpoint", url})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error when batches remain")
	}
	if got := readSpoolDir(t, dataDir); len(got) != 1 {
		t.Fatalf("spool should keep the failed batch: %+v", got)
	}
}

func TestTailReadsArchive(t *testing.T) {
	dataDir := t.TempDir()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: filepath.Join(dataDir, "store"), Fsync: pebblestore.FsyncModeNever})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	a := archive.Open(db, logpkg.NewNopLogger(), nil)
	for i := 1; i <= 3; i++ {
		payload := []byte(`{"events":[{"name":"e"}]}`)
		if _, err := a.Append(context.Background(), []archive.Record{{ReceivedAt: int64(i), Events: 1, Payload: payload}}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	cmd := NewTailCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--data-dir", dataDir, "--limit", "2"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d:\n%s", len(lines), buf.String())
	}
	var first struct {
		ReceivedAt int64 `json:"receivedAt"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.ReceivedAt != 1 {
		t.Fatalf("forward read should start oldest: %d", first.ReceivedAt)
	}
}

func TestTailReverse(t *testing.T) {
	dataDir := t.TempDir()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: filepath.Join(dataDir, "store"), Fsync: pebblestore.FsyncModeNever})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	a := archive.Open(db, logpkg.NewNopLogger(), nil)
	for i := 1; i <= 3; i++ {
		if _, err := a.Append(context.Background(), []archive.Record{{ReceivedAt: int64(i), Events: 1, Payload: []byte(`{}`)}}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	cmd := NewTailCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--data-dir", dataDir, "--limit", "1", "--reverse"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	var first struct {
		ReceivedAt int64 `json:"receivedAt"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &first); err != nil {
		t.Fatalf("decode: %v\n%s", err, buf.String())
	}
	if first.ReceivedAt != 3 {
		t.Fatalf("reverse read should start newest: %d", first.ReceivedAt)
	}
}

func TestParseMeta(t *testing.T) {
	md, err := parseMeta([]string{"k=v", "env=prod"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if md["k"] != "v" || md["env"] != "prod" {
		t.Fatalf("meta: %#v", md)
	}
	if _, err := parseMeta([]string{"no-equals"}); err == nil {
		t.Fatal("expected error for malformed pair")
	}
	if md, _ := parseMeta(nil); md != nil {
		t.Fatalf("nil input should stay nil: %#v", md)
	}
}

func TestParseValue(t *testing.T) {
	if v := parseValue("3"); v != float64(3) {
		t.Fatalf("number: %#v", v)
	}
	if v := parseValue("true"); v != true {
		t.Fatalf("bool: %#v", v)
	}
	if v := parseValue("plain text"); v != "plain text" {
		t.Fatalf("string: %#v", v)
	}
	if v := parseValue(""); v != nil {
		t.Fatalf("empty: %#v", v)
	}
}

func TestRootRegistersCommands(t *testing.T) {
	root := NewRoot()
	for _, want := range []string{"relay", "send", "spool", "tail"} {
		found := false
		for _, c := range root.Commands() {
			if c.Name() == want {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("root missing %q command", want)
		}
	}
}

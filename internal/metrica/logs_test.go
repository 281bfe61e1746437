package metrica

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestLogsCreate_ExtractsRequestID(t *testing.T) {
	t.Helper()

	var gotMethod, gotPath string
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"log_request":{"request_id":31337,"counter_id":44147844,"status":"created"}}`))
	}))
	defer srv.Close()

	info, err := newTestClient(srv.URL, nil).LogsCreate(context.Background(), LogsParams{
		CounterID: 44147844,
		Date1:     "2026-01-01",
		Date2:     "2026-01-31",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Errorf("method: got %q, want POST", gotMethod)
	}
	if gotPath != "/management/v1/counter/44147844/logrequests" {
		t.Errorf("path: got %q", gotPath)
	}
	if got := gotQuery["source"]; len(got) != 1 || got[0] != "visits" {
		t.Errorf("source query (config default): got %v", got)
	}
	if got := gotQuery["fields"]; len(got) != 1 || got[0] != "ym:s:dateTime,ym:s:startURL,ym:s:lastDirectClickBanner" {
		t.Errorf("fields query (config default): got %v", got)
	}

	if info.RequestID != "31337" {
		t.Errorf("request id: got %q, want 31337", info.RequestID)
	}
	if info.Status != "created" {
		t.Errorf("status: got %q", info.Status)
	}
}

func TestLogsCreate_TopLevelRequestID(t *testing.T) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"requestId":"abc-1","status":"created"}`))
	}))
	defer srv.Close()

	info, err := newTestClient(srv.URL, nil).LogsCreate(context.Background(), LogsParams{CounterID: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.RequestID != "abc-1" {
		t.Errorf("request id: got %q, want abc-1", info.RequestID)
	}
}

func TestLogsCreate_MissingRequestIDFails(t *testing.T) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"log_request":{"status":"created"}}`))
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL, nil).LogsCreate(context.Background(), LogsParams{CounterID: 1}); err == nil {
		t.Fatal("expected error when the response has no request id")
	}
}

func TestLogsInfo_ParsesStatusAndParts(t *testing.T) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/management/v1/counter/1/logrequest/31337" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		w.Write([]byte(`{"log_request":{"request_id":31337,"status":"processed","parts":[{"part_number":1,"size":10},{"part_number":0,"size":20},{"part_number":1}]}}`))
	}))
	defer srv.Close()

	info, err := newTestClient(srv.URL, nil).LogsInfo(context.Background(), 1, "31337")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Status != "processed" {
		t.Errorf("status: got %q", info.Status)
	}
	if want := []int{0, 1}; !reflect.DeepEqual(info.Parts, want) {
		t.Errorf("parts: got %v, want %v (sorted, deduplicated)", info.Parts, want)
	}
}

func TestLogsAllInfo_FindsRequests(t *testing.T) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"requests":[{"request_id":1,"status":"processed"},{"request_id":2,"status":"created"}]}`))
	}))
	defer srv.Close()

	infos, err := newTestClient(srv.URL, nil).LogsAllInfo(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("requests: got %d, want 2", len(infos))
	}
	if infos[0].RequestID != "1" || infos[1].Status != "created" {
		t.Errorf("parsed requests: got %+v", infos)
	}
}

func TestLogsDownload_ParsesPart(t *testing.T) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/management/v1/counter/1/logrequest/31337/part/0/download" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		w.Write([]byte("ym:s:dateTime\tym:s:startURL\n2026-01-01 10:00:00\thttps://shop.example/landing?yclid=555\n"))
	}))
	defer srv.Close()

	table, err := newTestClient(srv.URL, nil).LogsDownload(context.Background(), 1, "31337", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(table.Rows) != 1 {
		t.Fatalf("rows: got %d, want 1 (header dropped)", len(table.Rows))
	}
	if table.Columns[1] != "ym:s:startURL" {
		t.Errorf("columns: got %v", table.Columns)
	}
}

func TestLogsCleanAndCancel_UsePost(t *testing.T) {
	t.Helper()

	var gotPaths []string
	var gotMethods []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPaths = append(gotPaths, r.URL.Path)
		gotMethods = append(gotMethods, r.Method)
		w.Write([]byte(`{"log_request":{"request_id":31337,"status":"cleaned"}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, nil)
	if err := c.LogsClean(context.Background(), 1, "31337"); err != nil {
		t.Fatalf("clean: unexpected error: %v", err)
	}
	if err := c.LogsCancel(context.Background(), 1, "31337"); err != nil {
		t.Fatalf("cancel: unexpected error: %v", err)
	}

	wantPaths := []string{
		"/management/v1/counter/1/logrequest/31337/clean",
		"/management/v1/counter/1/logrequest/31337/cancel",
	}
	if !reflect.DeepEqual(gotPaths, wantPaths) {
		t.Errorf("paths: got %v, want %v", gotPaths, wantPaths)
	}
	for i, method := range gotMethods {
		if method != http.MethodPost {
			t.Errorf("call %d method: got %q, want POST", i, method)
		}
	}
}

func TestStatusHelpers(t *testing.T) {
	t.Helper()

	for _, status := range []string{"processed", "completed", "done", "ready"} {
		if !StatusReady(status) {
			t.Errorf("StatusReady(%q): want true", status)
		}
	}
	for _, status := range []string{"canceled", "cancelled", "failed", "error"} {
		if !StatusFailed(status) {
			t.Errorf("StatusFailed(%q): want true", status)
		}
	}
	if StatusReady("created") || StatusFailed("created") {
		t.Error("created must be neither ready nor failed")
	}
}

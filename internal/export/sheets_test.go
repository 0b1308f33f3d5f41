package export

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/option"
)

// fakeSheets serves the subset of the Sheets v4 REST API the writer uses.
type fakeSheets struct {
	mu        sync.Mutex
	hasSheet  bool
	hasHeader bool
	calls     []string
	appended  [][]any
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	body, _ := io.ReadAll(r.Body)
	path := r.URL.Path
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/spreadsheets/sid"):
		f.calls = append(f.calls, "get")
		if f.hasSheet {
			io.WriteString(w, `{"sheets":[{"properties":{"title":"NAV","sheetId":7}}]}`)
			return
		}
		io.WriteString(w, `{"sheets":[]}`)
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":batchUpdate") && !strings.Contains(path, "/values"):
		f.calls = append(f.calls, "batchUpdate")
		if strings.Contains(string(body), "addSheet") {
			f.hasSheet = true
			io.WriteString(w, `{"replies":[{"addSheet":{"properties":{"title":"NAV","sheetId":9}}}]}`)
			return
		}
		io.WriteString(w, `{"replies":[]}`)
	case r.Method == http.MethodGet && strings.Contains(path, "/values/"):
		f.calls = append(f.calls, "getValues")
		if f.hasHeader {
			io.WriteString(w, `{"range":"NAV!A1","values":[["Date"]]}`)
			return
		}
		io.WriteString(w, `{"range":"NAV!A1"}`)
	case r.Method == http.MethodPut && strings.Contains(path, "/values/"):
		f.calls = append(f.calls, "update")
		f.hasHeader = true
		io.WriteString(w, `{}`)
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":append"):
		f.calls = append(f.calls, "append")
		var vr struct {
			Values [][]any `json:"values"`
		}
		if err := json.Unmarshal(body, &vr); err == nil {
			f.appended = append(f.appended, vr.Values...)
		}
		io.WriteString(w, `{}`)
	default:
		http.Error(w, "unexpected "+r.Method+" "+path, http.StatusNotFound)
	}
}

func newFakeWriter(t *testing.T, fake *fakeSheets) *SheetsWriter {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	w, err := newSheetsWriter(context.Background(), "sid",
		option.WithEndpoint(server.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(server.Client()),
	)
	if err != nil {
		t.Fatalf("newSheetsWriter: %v", err)
	}
	return w
}

func TestSheetsExportFirstRun(t *testing.T) {
	fake := &fakeSheets{}
	w := newFakeWriter(t, fake)

	if err := w.Export(context.Background(), sampleState()); err != nil {
		t.Fatalf("Export: %v", err)
	}

	want := []string{"get", "batchUpdate", "getValues", "update", "batchUpdate", "append"}
	if strings.Join(fake.calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", fake.calls, want)
	}
	if len(fake.appended) != 1 || fake.appended[0][1] != "Tech" {
		t.Errorf("appended = %v", fake.appended)
	}
}

func TestSheetsExportAppendsOnly(t *testing.T) {
	fake := &fakeSheets{hasSheet: true, hasHeader: true}
	w := newFakeWriter(t, fake)

	if err := w.Export(context.Background(), sampleState()); err != nil {
		t.Fatalf("Export: %v", err)
	}

	want := []string{"get", "getValues", "append"}
	if strings.Join(fake.calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", fake.calls, want)
	}
}

func TestNewSheetsWriterBadCredentials(t *testing.T) {
	if _, err := NewSheetsWriter(context.Background(), "sid", "not json"); err == nil {
		t.Fatal("expected credentials error")
	}
}

package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/scanvault/internal/apply"
	"github.com/starford/scanvault/internal/models"
	"github.com/starford/scanvault/internal/noteservice"
	"github.com/starford/scanvault/internal/pipeline"
	"github.com/starford/scanvault/internal/storage"
	"github.com/starford/scanvault/internal/testutil"
	"github.com/starford/scanvault/internal/writer"
)

func testServer(t *testing.T) (*Server, storage.Provider) {
	t.Helper()
	_, store := testutil.TestVault(t)
	db := testutil.TestDB(t)
	applier := apply.NewService(store, apply.WithObserver(db))
	p := pipeline.New(writer.New(store, applier), nil)
	svc := noteservice.NewService(store, db, applier, p)
	return New(svc, "test"), store
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no in-process "call tool" helper, so the handlers are
	// invoked directly.
	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"ingest_scan":       srv.ingestScan,
		"apply_operations":  srv.applyOperations,
		"sync_vault":        srv.syncVault,
		"read_note":         srv.readNote,
		"search_notes":      srv.searchNotes,
		"list_notes":        srv.listNotes,
		"get_backlinks":     srv.getBacklinks,
		"list_scans":        srv.listScans,
		"get_note_contract": srv.getNoteContract,
	}
	h, ok := handlers[name]
	if !ok {
		t.Fatalf("unknown tool: %s", name)
	}
	result, err := h(ctx, req)
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func ingestArgs(t *testing.T, scanID, transcript string, links ...string) map[string]interface{} {
	t.Helper()
	req := testutil.ScanRequest(t, scanID, "2026-03-14T09:26:00Z", transcript, links...)
	return map[string]interface{}{
		"scan_id":             req.ScanID,
		"batch_id":            req.BatchID,
		"captured_at":         req.CapturedAt,
		"image_path":          req.ImagePath,
		"transcript_response": req.TranscriptResponse,
		"structure_response":  req.StructureResponse,
	}
}

func TestIngestScanAndReadNote(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "ingest_scan", ingestArgs(t, "s1", "Call Alice", "Atlas"))
	if r.IsError {
		t.Fatalf("ingest failed: %s", resultText(r))
	}
	var res models.WriterResult
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.NotePath != "01_daily/2026-03-14.md" {
		t.Errorf("note path = %q", res.NotePath)
	}

	r = callTool(t, srv, "read_note", map[string]interface{}{"path": res.NotePath})
	if !strings.Contains(resultText(r), "Call Alice") {
		t.Errorf("read result = %q", resultText(r))
	}

	r = callTool(t, srv, "read_note", map[string]interface{}{"path": res.NotePath, "format": "html"})
	if !strings.Contains(resultText(r), "<h1>2026-03-14</h1>") {
		t.Errorf("html result = %q", resultText(r))
	}

	r = callTool(t, srv, "get_backlinks", map[string]interface{}{"path": "10_projects/Atlas"})
	if resultText(r) != "01_daily/2026-03-14.md" {
		t.Errorf("backlinks = %q", resultText(r))
	}

	r = callTool(t, srv, "list_scans", map[string]interface{}{"date": "2026-03-14"})
	if !strings.Contains(resultText(r), `"scan_id": "s1"`) {
		t.Errorf("scans = %q", resultText(r))
	}
}

func TestIngestScanReportsKind(t *testing.T) {
	srv, _ := testServer(t)

	args := ingestArgs(t, "s1", "x")
	args["structure_response"] = "no json here"
	r := callTool(t, srv, "ingest_scan", args)
	if !r.IsError || !strings.HasPrefix(resultText(r), "invalid_json:") {
		t.Errorf("result = %q (error %v)", resultText(r), r.IsError)
	}

	r = callTool(t, srv, "ingest_scan", map[string]interface{}{"captured_at": "2026-03-14T09:26:00Z"})
	if !r.IsError {
		t.Error("expected error for missing responses")
	}
}

func TestApplyOperations(t *testing.T) {
	srv, store := testServer(t)

	r := callTool(t, srv, "apply_operations", map[string]interface{}{
		"operations": `[{"action": "create", "path": "00_inbox/idea.md", "content": "# Idea\nlinks to [[10_projects/Atlas]]"}]`,
	})
	if r.IsError {
		t.Fatalf("apply failed: %s", resultText(r))
	}
	data, err := store.Read("00_inbox/idea.md")
	if err != nil || !strings.HasPrefix(string(data), "# Idea") {
		t.Fatalf("note = %q, %v", data, err)
	}

	r = callTool(t, srv, "apply_operations", map[string]interface{}{"operations": "not json"})
	if !r.IsError || !strings.HasPrefix(resultText(r), "invalid_operation:") {
		t.Errorf("bad json result = %q", resultText(r))
	}

	r = callTool(t, srv, "apply_operations", map[string]interface{}{
		"operations": `[{"action": "create", "path": "../escape.md", "content": "x"}]`,
	})
	if !r.IsError || !strings.HasPrefix(resultText(r), "path_outside_vault:") {
		t.Errorf("escape result = %q", resultText(r))
	}
}

func TestSearchAndListNotes(t *testing.T) {
	srv, _ := testServer(t)
	_ = callTool(t, srv, "ingest_scan", ingestArgs(t, "s1", "uniqueword appears"))

	r := callTool(t, srv, "search_notes", map[string]interface{}{"query": "uniqueword"})
	if !strings.Contains(resultText(r), "01_daily/2026-03-14.md") {
		t.Errorf("search = %q", resultText(r))
	}

	r = callTool(t, srv, "list_notes", map[string]interface{}{"folder": "01_daily"})
	if resultText(r) != "01_daily/2026-03-14.md" {
		t.Errorf("list = %q", resultText(r))
	}
}

func TestReadNoteMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "read_note", map[string]interface{}{"path": "nope.md"})
	if !r.IsError || !strings.HasPrefix(resultText(r), "not_found:") {
		t.Errorf("missing note = %q", resultText(r))
	}
}

func TestSyncVaultWithoutMirror(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "sync_vault", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error when no mirror is configured")
	}
}

func TestNoteContract(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_note_contract", map[string]interface{}{})
	if !strings.Contains(resultText(r), "01_daily/YYYY-MM-DD.meta.json") {
		t.Error("contract does not describe sidecars")
	}

	contents, err := srv.readNoteFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil || len(contents) != 1 {
		t.Fatalf("resource = %v, %v", contents, err)
	}
	if tc, ok := contents[0].(mcp.TextResourceContents); !ok || tc.URI != noteFormatURI {
		t.Errorf("resource contents = %+v", contents[0])
	}
}

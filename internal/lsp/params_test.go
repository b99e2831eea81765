package lsp

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func marshalToMap(t *testing.T, v any) map[string]any {
	t.Helper()

	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	return m
}

func TestBuildInitialize(t *testing.T) {
	root := filepath.FromSlash("/home/dev/project")
	params := marshalToMap(t, BuildInitialize(root, "1.2.3"))

	processID, ok := params["processId"]
	if !ok {
		t.Fatal("processId must be present")
	}
	if processID != nil {
		t.Errorf("Expected processId null, got %v", processID)
	}

	if params["rootPath"] != root {
		t.Errorf("Expected rootPath %q, got %v", root, params["rootPath"])
	}

	wantFolders := []any{
		map[string]any{"uri": "file:///home/dev/project", "name": "project"},
	}
	if diff := cmp.Diff(wantFolders, params["workspaceFolders"]); diff != "" {
		t.Errorf("workspaceFolders mismatch (-want +got):\n%s", diff)
	}

	wantInfo := map[string]any{"name": ClientName, "version": "1.2.3"}
	if diff := cmp.Diff(wantInfo, params["clientInfo"]); diff != "" {
		t.Errorf("clientInfo mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildInitialized(t *testing.T) {
	params := marshalToMap(t, BuildInitialized())
	if len(params) != 0 {
		t.Errorf("Expected empty params, got %v", params)
	}
}

func TestBuildHover(t *testing.T) {
	params := marshalToMap(t, BuildHover("/home/dev/project/main.go", 9, 4))

	want := map[string]any{
		"textDocument": map[string]any{"uri": "file:///home/dev/project/main.go"},
		"position":     map[string]any{"line": float64(9), "character": float64(4)},
	}
	if diff := cmp.Diff(want, params); diff != "" {
		t.Errorf("Hover params mismatch (-want +got):\n%s", diff)
	}
}

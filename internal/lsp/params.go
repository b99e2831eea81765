package lsp

import (
	"path/filepath"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// ClientName identifies this client to the server.
const ClientName = "lsp-hover"

// InitializeParams are the initialize request params with a nullable process
// id; the server must not tie its lifetime to ours.
type InitializeParams struct {
	protocol.InitializeParams

	// ProcessID shadows the embedded non-nullable field.
	ProcessID *int32 `json:"processId"`
}

// BuildInitialize returns the initialize params for a workspace rooted at
// root.
func BuildInitialize(root, version string) *InitializeParams {
	rootURI := uri.File(root)

	return &InitializeParams{
		InitializeParams: protocol.InitializeParams{
			ClientInfo: &protocol.ClientInfo{
				Name:    ClientName,
				Version: version,
			},
			RootPath: root,
			RootURI:  rootURI,
			WorkspaceFolders: []protocol.WorkspaceFolder{
				{
					URI:  string(rootURI),
					Name: filepath.Base(root),
				},
			},
		},
	}
}

// BuildInitialized returns the empty initialized notification params.
func BuildInitialized() *protocol.InitializedParams {
	return &protocol.InitializedParams{}
}

// BuildHover returns hover params for a zero-based line and character in
// path.
func BuildHover(path string, line, character uint32) *protocol.HoverParams {
	return &protocol.HoverParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{
				URI: uri.File(path),
			},
			Position: protocol.Position{
				Line:      line,
				Character: character,
			},
		},
	}
}

package server

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/m43/pkg/parser"
	"github.com/chazu/m43/vm"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "m43-lsp"

var lspLog = commonlog.GetLogger("m43.lsp")

// LspServer provides editor diagnostics, hover and formatting for
// m43 program text.
type LspServer struct {
	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new language server.
func NewLSP() *LspServer {
	s := &LspServer{
		docs:    make(map[string]string),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentHover:      s.textDocumentHover,
		TextDocumentFormatting: s.textDocumentFormatting,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	lspLog.Info("initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}
	capabilities.HoverProvider = true
	capabilities.DocumentFormattingProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[string(uri)] = whole.Text
			s.mu.Unlock()

			s.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

func (s *LspServer) document(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

// --- Language features ---

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	return hover(text, params.Position), nil
}

func (s *LspServer) textDocumentFormatting(ctx *glsp.Context, params *protocol.DocumentFormattingParams) ([]protocol.TextEdit, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	return formatEdits(text), nil
}

// hover describes the cell under pos, or returns nil when pos is not on a
// cell token or the document does not parse.
func hover(text string, pos protocol.Position) *protocol.Hover {
	c, ok := parser.CellAt(text, int(pos.Line), int(pos.Character))
	if !ok {
		return nil
	}
	g, err := parser.Parse(text)
	if err != nil {
		return nil
	}
	if !vm.InBounds(g, c) {
		return nil
	}
	cell := vm.Lookup(g, c)

	var b strings.Builder
	fmt.Fprintf(&b, "**%s** at %s, position %d\n\n", cellTitle(cell), c, c.Index(g.Width()))
	b.WriteString(vm.DescribeBlock(cell))

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

func cellTitle(b vm.Block) string {
	if b == nil {
		return "Empty"
	}
	return b.String()
}

// formatEdits replaces the whole document with its canonical form, keeping
// comments. Text that does not parse, or is already canonical, yields no
// edits.
func formatEdits(text string) []protocol.TextEdit {
	formatted, err := parser.Format(text)
	if err != nil || formatted == text {
		return nil
	}
	lines := strings.Split(text, "\n")
	end := protocol.Position{
		Line:      protocol.UInteger(len(lines) - 1),
		Character: protocol.UInteger(len([]rune(lines[len(lines)-1]))),
	}
	return []protocol.TextEdit{{
		Range:   protocol.Range{Start: protocol.Position{}, End: end},
		NewText: formatted,
	}}
}

// --- Diagnostics ---

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	diagnostics := diagnose(text)
	lspLog.Debugf("%s: %d diagnostics", uri, len(diagnostics))

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// diagnose reports parse errors, a missing start cell, and start cells that
// are ignored because an earlier one wins.
func diagnose(text string) []protocol.Diagnostic {
	diagnostics := []protocol.Diagnostic{}

	g, err := parser.Parse(text)
	if err != nil {
		var perr *parser.ParseError
		if !errors.As(err, &perr) {
			return append(diagnostics, diagnostic(protocol.DiagnosticSeverityError, protocol.Range{}, err.Error()))
		}
		line := protocol.UInteger(max(perr.Line-1, 0))
		col := protocol.UInteger(max(perr.Column-1, 0))
		rng := protocol.Range{
			Start: protocol.Position{Line: line, Character: col},
			End:   protocol.Position{Line: line, Character: col + 1},
		}
		return append(diagnostics, diagnostic(protocol.DiagnosticSeverityError, rng, perr.Msg))
	}

	first, _, ok := vm.FindStart(g)
	if !ok {
		return append(diagnostics, diagnostic(protocol.DiagnosticSeverityError, protocol.Range{}, vm.FaultMissingStart.Error()))
	}
	for i, cell := range vm.Cells(g) {
		if _, isStart := cell.(vm.Start); !isStart || i == first {
			continue
		}
		line, start, end, ok := parser.TokenRange(text, vm.CoordOf(i, g.Width()))
		if !ok {
			continue
		}
		rng := protocol.Range{
			Start: protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(start)},
			End:   protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(end)},
		}
		diagnostics = append(diagnostics, diagnostic(protocol.DiagnosticSeverityWarning, rng,
			"start cell is ignored: execution begins at the first start in row-major order"))
	}
	return diagnostics
}

func diagnostic(severity protocol.DiagnosticSeverity, rng protocol.Range, msg string) protocol.Diagnostic {
	source := lspName
	return protocol.Diagnostic{
		Range:    rng,
		Severity: &severity,
		Source:   &source,
		Message:  msg,
	}
}

func boolPtr(b bool) *bool {
	return &b
}

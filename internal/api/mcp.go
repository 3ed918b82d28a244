package api

import (
	"context"
	"encoding/json"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/semem-go/semem/internal/verbs"
)

// mcpImplementation identifies this server to connecting MCP clients, the
// same shape the teacher uses client-side for its own [mcpsdk.Implementation]
// (internal/mcp/mcphost/host.go).
var mcpImplementation = &mcpsdk.Implementation{Name: "semem", Version: "1.0.0"}

// mcpToolDescriptions documents each verb tool surfaced over `/mcp`; every
// dispatcher verb gets one, including the ones with no dedicated HTTP path
// (§6's canonical path list omits remember/recall/forget/fade/zoom/pan/tilt,
// but `/mcp` "carries the same verb payloads" for the full verb set).
var mcpToolDescriptions = map[string]string{
	"tell":      "Append content to the current session's memory.",
	"ask":       "Ask a question, retrieving relevant memory context before answering.",
	"augment":   "Run a single augmentation operation (concept extraction, relationship analysis) over arbitrary text.",
	"remember":  "Store content under an explicit, named memory domain.",
	"recall":    "Retrieve memory content scoped to one or more domains.",
	"forget":    "Remove matched interactions from active memory.",
	"fade":      "Multiplicatively decay matched interactions' relevance weight.",
	"zoom":      "Set the session's ZPT zoom level.",
	"pan":       "Update the session's ZPT pan filters.",
	"tilt":      "Set the session's ZPT tilt (projection) style.",
	"inspect":   "Read-only introspection of session state or recent memory.",
	"compose":   "Assemble a bounded context window without generating an answer.",
	"decompose": "Decompose content into semantic units, entities, and relationships.",
}

// mcpToolArgs is the envelope every verb tool accepts: the target session ID
// plus the verb's own JSON body, passed through to [verbs.Dispatcher.Dispatch]
// unmodified. MCP tool schemas are otherwise untyped per verb — the
// dispatcher itself performs strict per-verb validation (internal/verbs/
// schema.go), so the tool boundary only needs to carry the envelope.
type mcpToolArgs struct {
	SessionID string          `json:"sessionId,omitempty"`
	Body      json.RawMessage `json:"body,omitempty"`
}

// newMCPHandler builds the `/mcp` bidirectional session endpoint: one MCP
// server exposing every dispatcher verb as a tool, served over the SDK's
// streamable-HTTP transport (§6 "a separate POST /mcp endpoint speaks a
// bidirectional session-oriented envelope carrying the same verb payloads").
func newMCPHandler(dispatcher *verbs.Dispatcher) http.Handler {
	server := mcpsdk.NewServer(mcpImplementation, nil)

	for verb, description := range mcpToolDescriptions {
		registerVerbTool(server, dispatcher, verb, description)
	}

	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server {
		return server
	}, nil)
}

// registerVerbTool registers one verb as an MCP tool on server. The handler
// decodes [mcpToolArgs], dispatches through the same [verbs.Dispatcher] the
// HTTP routes use, and renders the resulting [verbs.Response] as the tool's
// text content — success and failure alike, so MCP clients see the same
// {success, verb, ..., error} envelope HTTP callers do.
func registerVerbTool(server *mcpsdk.Server, dispatcher *verbs.Dispatcher, verb, description string) {
	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        verb,
		Description: description,
	}, func(ctx context.Context, _ *mcpsdk.CallToolRequest, args mcpToolArgs) (*mcpsdk.CallToolResult, any, error) {
		sessionID := args.SessionID
		if sessionID == "" {
			sessionID = DefaultSessionID
		}
		resp := dispatcher.Dispatch(ctx, verb, sessionID, args.Body)

		encoded, err := json.Marshal(resp)
		if err != nil {
			return nil, nil, err
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(encoded)}},
			IsError: !resp.Success,
		}, nil, nil
	})
}

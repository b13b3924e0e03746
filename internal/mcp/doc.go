// Package mcp implements the Model Context Protocol server for external tool access.
//
// # Overview
//
// MCP (Model Context Protocol) is a standard for AI tool integration. This
// package exposes the flashcard collection to external AI clients (Claude
// Desktop, other LLMs, custom applications) as a set of callable tools and
// browsable resources.
//
// # Protocol
//
// The server speaks JSON-RPC 2.0 over HTTP and offers two transports:
//
//   - POST /mcp - stateless: each request's response comes back in the HTTP body
//   - GET /sse + POST /messages - streaming: responses arrive as SSE events
//
// Supported methods: initialize, initialized, ping, tools/list, tools/call,
// resources/list, resources/read, and logging/setLevel.
//
// # Envelopes
//
// Every request carrying an id receives exactly one response envelope.
// Requests without an id are notifications: they execute for their side
// effects and produce no envelope (the stateless endpoint acknowledges them
// with HTTP 202). Malformed requests yield a JSON-RPC error envelope whose
// id echoes the request id when one could be recovered, null otherwise.
//
// # Tool Execution
//
// Clients call tools/call to execute a tool:
//
//	{
//	  "jsonrpc": "2.0",
//	  "method": "tools/call",
//	  "params": {
//	    "name": "create_note",
//	    "arguments": {"model_name": "Basic", "deck_name": "Spanish", "fields": {"Front": "hola"}}
//	  },
//	  "id": 2
//	}
//
// Success payloads are pretty-printed JSON inside a text content block.
// Tool failures, including permission denials, are reported inside a
// successful envelope with isError true; only transport-level problems
// (unknown method, missing name, malformed JSON) become JSON-RPC errors.
//
// # Resources
//
// Each deck visible under the active permission policy is advertised as a
// resource with URI anki://deck/{name}. Reading one returns its notes;
// anki://note/{id} returns a single note together with its cards.
//
// # Streaming Transport
//
// The SSE stream opens with an endpoint event naming the POST target for
// this session:
//
//	event: endpoint
//	data: /messages?session_id=<uuid>
//
// POSTs to that endpoint always return 202 with {"status": "accepted"};
// the actual response envelope follows on the stream as a message event.
// Idle streams receive a comment frame every 30 seconds. Closing the
// stream discards the session and any queued envelopes.
package mcp

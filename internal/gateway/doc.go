// Package gateway orchestrates the ankimcp server components.
//
// # Overview
//
// The gateway package is the central coordinator of the ankimcp server. It
// owns and manages the major components: the collection backend, the
// permission policy, the MCP protocol server, and the HTTP listener.
//
// # Gateway Struct
//
// The Gateway struct is the main entry point:
//
//	type Gateway struct {
//	    config      *config.Config
//	    collection  store.Collection
//	    service     *anki.Service
//	    policy      *permissions.Manager
//	    mcpServer   *mcp.Server
//	    httpServer  *http.Server
//	    tsnetServer *tsnet.Server
//	    // ...
//	}
//
// # HTTP Surface
//
// A single mux serves everything:
//
//   - POST /mcp - Stateless JSON-RPC requests
//   - GET /sse - Streaming transport (Server-Sent Events)
//   - POST /messages - Publish requests for an SSE session
//   - GET /health - Liveness check, returns {"status": "ok", "service": "ankimcp"}
//
// # Collection Backends
//
// The collection.backend config key selects the data source:
//
//   - memory: an in-memory collection pre-seeded with sample data, for
//     development and demos
//   - sqlite: a file-backed collection (see internal/store), created with
//     "ankimcp seed" or pointed at an existing database
//
// ANKIMCP_COLLECTION_PATH overrides the configured path and forces SQLite.
//
// # Tailscale
//
// With tailscale.enabled, the listener comes from an embedded tsnet node
// instead of a TCP socket. State lives under ~/.local/share/ankimcp/tailscale
// unless tailscale.state_dir says otherwise, and the auth key is read from
// config or TS_AUTHKEY. With tailscale.https, the listener terminates TLS
// using Tailscale-provisioned certificates.
//
// # Lifecycle
//
// Start the gateway:
//
//	gw, err := gateway.New(cfg, logger, levelVar)
//	ctx, cancel := context.WithCancel(context.Background())
//	go gw.Run(ctx)
//
// Graceful shutdown:
//
//	cancel()
//
// Run blocks until the context is canceled, then shuts the HTTP server,
// the tsnet node, and the collection down in order.
package gateway

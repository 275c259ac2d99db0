// ABOUTME: MCP server setup for guided workouts and the day ledger.
// ABOUTME: Owns one guided engine and the rollover coordinator over a Repository.
package mcp

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/harperreed/aiform/internal/guided"
	"github.com/harperreed/aiform/internal/prefs"
	"github.com/harperreed/aiform/internal/rollover"
	"github.com/harperreed/aiform/internal/storage"
)

// Server wraps the MCP server with storage, preferences, and a guided engine.
type Server struct {
	mcpServer *mcp.Server
	repo      storage.Repository
	prefs     *prefs.Store
	engine    *guided.Engine
	rollover  *rollover.Coordinator
	clock     clockwork.Clock
	log       zerolog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithClock sets the clock shared by the engine and coordinator.
func WithClock(c clockwork.Clock) Option {
	return func(s *Server) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// NewServer creates a new MCP server and starts its engine. Call Close when done.
func NewServer(repo storage.Repository, store *prefs.Store, opts ...Option) (*Server, error) {
	s := &Server{
		mcpServer: mcp.NewServer(
			&mcp.Implementation{
				Name:    "aiform",
				Version: "1.0.0",
			},
			nil,
		),
		repo:  repo,
		prefs: store,
		clock: clockwork.NewRealClock(),
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.engine = guided.NewEngine(repo, store,
		guided.WithClock(s.clock),
		guided.WithLogger(s.log),
		guided.WithNotifier(guided.NotifierFunc(func(snap guided.Snapshot) {
			s.log.Info().Str("session_id", snap.SessionID.String()).Msg("rest complete")
		})),
	)
	s.engine.Start()
	s.rollover = rollover.New(store, repo, rollover.WithClock(s.clock), rollover.WithLogger(s.log))

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Serve starts the MCP server using stdio transport.
func (s *Server) Serve(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

// Close stops the engine. An unfinished session stays open in storage.
func (s *Server) Close() {
	s.engine.Stop()
}

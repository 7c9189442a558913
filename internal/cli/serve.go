package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/runoshun/tracker/internal/httpapi"
	"github.com/spf13/cobra"
)

// serveFunc runs an HTTP handler until the context ends, allowing it to be mocked in tests.
var serveFunc = httpapi.Serve

// newServeCommand creates the serve command for the HTTP API.
func newServeCommand(s *session) *cobra.Command {
	var opts struct {
		Addr string
	}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the tracker over HTTP with JSON bodies.

Routes:
  GET    /tasks                        tasks and subtasks by start time
  GET    /tasks/history                recently viewed items
  GET    /tasks/{kind}[?id=N]          list a kind, or get one item
  POST   /tasks/{kind}                 create (no id) or update (with id)
  DELETE /tasks/{kind}[?id=N]          delete a kind, or one item
  GET    /tasks/subtask/epic?id=N      subtasks of an epic
  POST   /tasks/epic/link?epic=E&subtask=S

A change that was applied but could not be persisted is answered with
the success status and an X-Storage-Error: 1 header.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := s.container()
			if err != nil {
				return err
			}
			srv, err := c.HTTPServer()
			if err != nil {
				return err
			}

			addr := c.AppConfig.Server.Addr
			if opts.Addr != "" {
				addr = opts.Addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return ignoreClosed(serveFunc(ctx, addr, srv.Handler(), c.Logger))
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "Listen address (default from config)")
	return cmd
}

// newKVServerCommand creates the kv-server command.
func newKVServerCommand(s *session) *cobra.Command {
	var opts struct {
		Addr string
	}

	cmd := &cobra.Command{
		Use:   "kv-server",
		Short: "Serve a key-value store for the kv backend",
		Long: `Serve an in-memory key-value store that the kv backend can persist to.

Routes:
  GET  /register      issue a session token
  POST /save/{key}    store the request body
  GET  /load/{key}    return the stored body (204 if never written)

save and load require the token as "Authorization: Bearer <token>" or as
the API_TOKEN query parameter. Values are lost when the server stops.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := s.container()
			if err != nil {
				return err
			}
			kv, err := c.KVServer()
			if err != nil {
				return err
			}

			addr := c.AppConfig.KVServer.Addr
			if opts.Addr != "" {
				addr = opts.Addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return ignoreClosed(serveFunc(ctx, addr, kv, c.Logger))
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "Listen address (default from config)")
	return cmd
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

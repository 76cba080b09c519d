package cli

import (
	"context"
	"log/slog"

	"github.com/combustion-ml/emberd/internal/server"
)

// Represents the 'emberd start' command.
type StartCmd struct {
	Containerd string `default:"${containerd_address}" help:"Containerd socket address."`
	Namespace  string `default:"${containerd_namespace}" help:"Containerd namespace."`
}

// Executes the start command.
//
// Starts the daemon on a Unix domain socket and blocks until the context is
// cancelled (e.g. via SIGINT or SIGTERM).
func (c *StartCmd) Run(ctx context.Context) error {
	srv, err := server.New(server.Config{
		SocketPath:          RootCmd.Socket,
		ContainerdAddress:   c.Containerd,
		ContainerdNamespace: c.Namespace,
	})
	if err != nil {
		return err
	}

	if err := srv.Start(); err != nil {
		return err
	}

	slog.Info("emberd is running")

	// Block until a signal arrives or a shutdown command stops the server.
	done := make(chan struct{})
	go func() {
		srv.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
	case <-done:
	}

	slog.Info("shutting down")
	return srv.Stop()
}

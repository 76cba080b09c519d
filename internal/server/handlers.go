package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/combustion-ml/emberd/internal"
	"github.com/combustion-ml/emberd/internal/build"
	"github.com/combustion-ml/emberd/internal/manifest"
	"github.com/combustion-ml/emberd/internal/protocol"
)

// Checks that a request carries a structurally valid recipe.
//
// Requests arrive pre-decoded, so the validation that manifest.Load performs
// on the CLI path has to happen here before the recipe reaches the graph.
func validateRecipe(r *manifest.Recipe) error {
	if r == nil {
		return fmt.Errorf("%w: no recipe", manifest.ErrInvalidRecipe)
	}
	return r.Validate()
}

// Handles a build command.
//
// Receives a recipe from the client and executes it against the container
// runtime.
func (s *Server) handleBuild(ctx context.Context, conn net.Conn, payload json.RawMessage) {
	req, err := protocol.DecodePayload[protocol.BuildRequest](payload)
	if err != nil {
		s.respond(conn, protocol.CmdError, &protocol.ErrorResult{Message: err.Error()})
		return
	}

	if err := validateRecipe(req.Recipe); err != nil {
		s.respond(conn, protocol.CmdError, &protocol.ErrorResult{Message: err.Error()})
		return
	}

	result, err := build.Run(ctx, s.runtime, build.Options{
		Recipe:    req.Recipe,
		Resource:  req.Resource,
		Output:    req.Output,
		Root:      req.Root,
		Platforms: req.Platforms,
	})
	if err != nil {
		s.respond(conn, protocol.CmdError, &protocol.ErrorResult{Message: err.Error()})
		return
	}

	s.mu.Lock()
	s.builds++
	s.mu.Unlock()

	s.respond(conn, protocol.CmdOK, &protocol.BuildResult{
		Output:  result.Output,
		Targets: result.Targets,
	})
}

// Handles a plan command.
//
// Resolves the recipe into a topologically ordered plan without touching
// the container runtime.
func (s *Server) handlePlan(conn net.Conn, payload json.RawMessage) {
	req, err := protocol.DecodePayload[protocol.PlanRequest](payload)
	if err != nil {
		s.respond(conn, protocol.CmdError, &protocol.ErrorResult{Message: err.Error()})
		return
	}

	if err := validateRecipe(req.Recipe); err != nil {
		s.respond(conn, protocol.CmdError, &protocol.ErrorResult{Message: err.Error()})
		return
	}

	plan, err := build.NewPlan(req.Recipe)
	if err != nil {
		s.respond(conn, protocol.CmdError, &protocol.ErrorResult{Message: err.Error()})
		return
	}

	s.respond(conn, protocol.CmdOK, plan)
}

// Handles a status command.
func (s *Server) handleStatus(conn net.Conn) {
	s.mu.Lock()
	builds := s.builds
	s.mu.Unlock()

	uptime := time.Since(s.startedAt).Truncate(time.Second)

	s.respond(conn, protocol.CmdOK, &protocol.StatusResult{
		Running: true,
		Version: internal.VersionString(),
		Pid:     os.Getpid(),
		Uptime:  uptime.String(),
		Builds:  builds,
	})
}

// Handles a shutdown command.
func (s *Server) handleShutdown(conn net.Conn) {
	s.respond(conn, protocol.CmdOK, nil)
	slog.Info("shutdown requested")

	go func() {
		s.Stop()
	}()
}

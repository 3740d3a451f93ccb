// Package mcp exposes the interpretation engine as a Model Context Protocol server.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/ibh-daai/bone-mineral-density/internal/domain"
)

const (
	defaultServerName    = "bmd-interpreter"
	defaultServerVersion = "1.0.0"
)

// Server wraps the SDK server and the tools registered on it
type Server struct {
	config    domain.MCPConfig
	logger    *logrus.Logger
	mcpServer *mcp.Server
	tools     *Tools
	closers   []func() error
}

// NewServer creates an MCP server with every tool of t registered
func NewServer(config domain.MCPConfig, tools *Tools, logger *logrus.Logger) *Server {
	if config.ServerName == "" {
		config.ServerName = defaultServerName
	}
	if config.ServerVersion == "" {
		config.ServerVersion = defaultServerVersion
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    config.ServerName,
		Version: config.ServerVersion,
	}, nil)
	tools.Register(mcpServer)

	return &Server{
		config:    config,
		logger:    logger,
		mcpServer: mcpServer,
		tools:     tools,
	}
}

// Tools returns the registered tool handlers.
func (s *Server) Tools() *Tools {
	return s.tools
}

// Start serves MCP over stdio until the client disconnects or ctx ends
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithFields(logrus.Fields{
		"server_name":    s.config.ServerName,
		"server_version": s.config.ServerVersion,
		"transport":      "stdio",
	}).Info("Starting MCP server")

	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("MCP server stopped: %w", err)
	}

	s.logger.Info("MCP server stopped")
	return nil
}

// Close releases the resources the server owns
func (s *Server) Close() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

func (s *Server) onClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

// ABOUTME: MCP resource implementations for the day ledger.
// ABOUTME: Provides aiform://today and aiform://sessions/recent resources.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/aiform/internal/storage"
)

const (
	todayURI          = "aiform://today"
	recentSessionsURI = "aiform://sessions/recent"
)

func (s *Server) registerResources() {
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         todayURI,
		Name:        "Today",
		Description: "Today's day key, closure status, sessions, and the guided engine state",
		MIMEType:    "application/json",
	}, s.handleTodayResource)

	s.mcpServer.AddResource(&mcp.Resource{
		URI:         recentSessionsURI,
		Name:        "Recent Sessions",
		Description: "Last 10 workout sessions",
		MIMEType:    "application/json",
	}, s.handleRecentSessionsResource)
}

// Resource handlers

func (s *Server) handleTodayResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	key, tz, err := s.today(ctx)
	if err != nil {
		return nil, err
	}

	var summary *summaryView
	d, err := s.repo.GetDailySummary(ctx, key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("failed to load summary: %w", err)
	default:
		v := viewSummary(d)
		summary = &v
	}

	recent, err := s.repo.ListSessions(ctx, 50)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	sessions := []sessionView{}
	for _, sess := range recent {
		if sess.DayKey == key {
			sessions = append(sessions, viewSession(sess))
		}
	}

	snap, err := s.engine.State(ctx)
	if err != nil {
		return nil, err
	}

	return jsonResource(todayURI, map[string]any{
		"day_key":     key,
		"timezone_id": tz,
		"closed":      summary != nil,
		"summary":     summary,
		"sessions":    sessions,
		"engine":      stateFromSnapshot(snap),
	})
}

func (s *Server) handleRecentSessionsResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	sessions, err := s.repo.ListSessions(ctx, 10)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	views := make([]sessionView, 0, len(sessions))
	for _, sess := range sessions {
		v, err := s.sessionDetail(ctx, sess)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}

	return jsonResource(recentSessionsURI, map[string]any{
		"sessions": views,
		"count":    len(views),
	})
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

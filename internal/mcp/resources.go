package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/memeverse/internal/engagement"
	"github.com/hurttlocker/memeverse/internal/ranking"
)

func registerLeaderboardResource(s *server.MCPServer, r *ranking.Engine) {
	resource := mcp.NewResource(
		"memeverse://leaderboard",
		"Leaderboard",
		mcp.WithResourceDescription("Top memes by likes and top users by likes on their uploads, recomputed on every read."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		memes, err := r.TopMemes(ctx, 0)
		if err != nil {
			return nil, fmt.Errorf("ranking memes: %w", err)
		}
		users, err := r.TopUsers(ctx, 0)
		if err != nil {
			return nil, fmt.Errorf("ranking users: %w", err)
		}

		payload := map[string]any{
			"memes": memes,
			"users": users,
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}

func registerProfileResource(s *server.MCPServer, es *engagement.Store) {
	resource := mcp.NewResource(
		"memeverse://profile",
		"Profile",
		mcp.WithResourceDescription("The current user profile."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		p, err := es.GetProfile(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading profile: %w", err)
		}
		data, _ := json.MarshalIndent(p, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}

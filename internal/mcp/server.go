// Package mcp provides a Model Context Protocol server for memeverse.
//
// It exposes the feed, engagement writes, uploads, the profile and the
// leaderboards as MCP tools, and the leaderboards and profile as MCP
// resources. The server is served over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/memeverse/internal/catalog"
	"github.com/hurttlocker/memeverse/internal/engagement"
	"github.com/hurttlocker/memeverse/internal/feed"
	"github.com/hurttlocker/memeverse/internal/meme"
	"github.com/hurttlocker/memeverse/internal/metrics"
	"github.com/hurttlocker/memeverse/internal/mutation"
	"github.com/hurttlocker/memeverse/internal/ranking"
)

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Catalog    feed.Fetcher
	Cache      *catalog.Cache
	Engagement *engagement.Store
	Pipeline   *feed.Pipeline
	Ranking    *ranking.Engine
	Mutations  *mutation.Engine
	Metrics    *metrics.CatalogMetrics
	Version    string
}

// dbMu serializes tool calls that touch the store. mcp-go dispatches
// handlers concurrently and a like must land before a leaderboard read
// issued after it.
var dbMu sync.Mutex

// maxLimit caps leaderboard sizes requested through tools.
const maxLimit = 50

// NewServer creates a configured MCP server with all memeverse tools and resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"Memeverse",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	registerFeedTool(s, cfg)
	registerLikeTool(s, cfg.Mutations)
	registerCommentTool(s, cfg.Mutations)
	registerCommentsTool(s, cfg.Engagement)
	registerUploadTool(s, cfg.Mutations)
	registerProfileTool(s, cfg.Engagement)
	registerEditProfileTool(s, cfg.Mutations)
	registerLeaderboardTool(s, cfg.Ranking)

	registerLeaderboardResource(s, cfg.Ranking)
	registerProfileResource(s, cfg.Engagement)

	return s
}

// ServeStdio serves s on stdin/stdout until the client disconnects.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

// --- Tools ---

func registerFeedTool(s *server.MCPServer, cfg ServerConfig) {
	tool := mcp.NewTool("meme_feed",
		mcp.WithDescription("Fetch one page of the meme catalog, filtered, sorted and optionally searched by name. Fetched memes are cached so later likes resolve on the leaderboard."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("filter",
			mcp.Description("Feed filter (default: trending)"),
			mcp.Enum(string(feed.FilterTrending), string(feed.FilterNew), string(feed.FilterClassic), string(feed.FilterRandom)),
		),
		mcp.WithString("sort",
			mcp.Description("Sort mode (default: likes)"),
			mcp.Enum(string(feed.SortLikes), string(feed.SortDate), string(feed.SortEngagement)),
		),
		mcp.WithString("query",
			mcp.Description("Case-insensitive substring matched against meme names. Empty = no search."),
		),
		mcp.WithNumber("page",
			mcp.Description("Catalog page, starting at 1 (default: 1)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		filterStr, _ := req.RequireString("filter")
		filter, err := feed.ParseFilter(filterStr)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		sortStr, _ := req.RequireString("sort")
		sortMode, err := feed.ParseSort(sortStr)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		query, _ := req.RequireString("query")

		page := 1
		if v, err := req.RequireFloat("page"); err == nil {
			page = int(v)
		}

		records, err := cfg.Catalog.FetchPage(ctx, page)
		cfg.Metrics.ObserveFetch(err)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("fetch error: %v", err)), nil
		}
		if err := cfg.Cache.Put(ctx, records); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("cache error: %v", err)), nil
		}

		out, err := cfg.Pipeline.Run(ctx, records, feed.Config{Filter: filter, SortBy: sortMode, SearchQuery: query})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("feed error: %v", err)), nil
		}
		return jsonResult(map[string]any{
			"page":   page,
			"filter": filter,
			"sort":   sortMode,
			"memes":  out,
			"count":  len(out),
		}), nil
	})
}

func registerLikeTool(s *server.MCPServer, m *mutation.Engine) {
	tool := mcp.NewTool("meme_like",
		mcp.WithDescription("Like a meme by id (or by image URL for uploads). Every call adds one like; there is no unlike."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithString("meme_id",
			mcp.Required(),
			mcp.Description("Catalog meme id, or an upload's image URL"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		id, err := req.RequireString("meme_id")
		if err != nil {
			return mcp.NewToolResultError("meme_id is required"), nil
		}
		n, err := m.Like(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("like error: %v", err)), nil
		}
		return jsonResult(map[string]any{"meme_id": id, "like_count": n}), nil
	})
}

func registerCommentTool(s *server.MCPServer, m *mutation.Engine) {
	tool := mcp.NewTool("meme_comment",
		mcp.WithDescription("Add a comment to a meme. Blank comments are rejected."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("meme_id",
			mcp.Required(),
			mcp.Description("Meme id"),
		),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Comment text"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		id, err := req.RequireString("meme_id")
		if err != nil {
			return mcp.NewToolResultError("meme_id is required"), nil
		}
		text, err := req.RequireString("text")
		if err != nil {
			return mcp.NewToolResultError("text is required"), nil
		}
		comments, err := m.Comment(ctx, id, text)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("comment error: %v", err)), nil
		}
		return jsonResult(map[string]any{"meme_id": id, "comments": comments}), nil
	})
}

func registerCommentsTool(s *server.MCPServer, es *engagement.Store) {
	tool := mcp.NewTool("meme_comments",
		mcp.WithDescription("List a meme's comments in the order they were added, with its like count."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("meme_id",
			mcp.Required(),
			mcp.Description("Meme id"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		id, err := req.RequireString("meme_id")
		if err != nil {
			return mcp.NewToolResultError("meme_id is required"), nil
		}
		comments, err := es.GetComments(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("comments error: %v", err)), nil
		}
		likes, err := es.GetLikeCount(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("comments error: %v", err)), nil
		}
		return jsonResult(map[string]any{"meme_id": id, "like_count": likes, "comments": comments}), nil
	})
}

func registerUploadTool(s *server.MCPServer, m *mutation.Engine) {
	tool := mcp.NewTool("meme_upload",
		mcp.WithDescription("Record a meme upload for an already hosted image. Uploads count toward the top users leaderboard."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("image_url",
			mcp.Required(),
			mcp.Description("Hosted image URL; also the key its likes are recorded under"),
		),
		mcp.WithString("caption",
			mcp.Description("Caption text"),
		),
		mcp.WithString("username",
			mcp.Description("Uploader name. Empty = ranked as Unknown User."),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		imageURL, err := req.RequireString("image_url")
		if err != nil {
			return mcp.NewToolResultError("image_url is required"), nil
		}
		caption, _ := req.RequireString("caption")
		username, _ := req.RequireString("username")

		u, err := m.Upload(ctx, imageURL, caption, username)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("upload error: %v", err)), nil
		}
		return jsonResult(u), nil
	})
}

func registerProfileTool(s *server.MCPServer, es *engagement.Store) {
	tool := mcp.NewTool("meme_profile",
		mcp.WithDescription("Show the user profile."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		p, err := es.GetProfile(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("profile error: %v", err)), nil
		}
		return jsonResult(p), nil
	})
}

func registerEditProfileTool(s *server.MCPServer, m *mutation.Engine) {
	tool := mcp.NewTool("meme_edit_profile",
		mcp.WithDescription("Replace the user profile. Omitted fields are cleared; display_name is required."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("display_name",
			mcp.Required(),
			mcp.Description("Display name (max 64 characters)"),
		),
		mcp.WithString("bio",
			mcp.Description("Bio (max 280 characters)"),
		),
		mcp.WithString("avatar_url",
			mcp.Description("Avatar image URL"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		name, err := req.RequireString("display_name")
		if err != nil {
			return mcp.NewToolResultError("display_name is required"), nil
		}
		bio, _ := req.RequireString("bio")
		avatar, _ := req.RequireString("avatar_url")

		p, err := m.EditProfile(ctx, meme.Profile{DisplayName: name, Bio: bio, AvatarURL: avatar})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("profile error: %v", err)), nil
		}
		return jsonResult(p), nil
	})
}

func registerLeaderboardTool(s *server.MCPServer, r *ranking.Engine) {
	tool := mcp.NewTool("meme_leaderboard",
		mcp.WithDescription("Rank the most liked memes or the users whose uploads collected the most likes."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("kind",
			mcp.Description("Which leaderboard (default: memes)"),
			mcp.Enum("memes", "users"),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Maximum entries (default: %d for memes, %d for users, max: %d)", ranking.DefaultMemeLimit, ranking.DefaultUserLimit, maxLimit)),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		limit := 0
		if v, err := req.RequireFloat("limit"); err == nil {
			limit = int(v)
			if limit > maxLimit {
				limit = maxLimit
			}
			if limit < 0 {
				limit = 0
			}
		}

		kind, _ := req.RequireString("kind")
		switch strings.ToLower(strings.TrimSpace(kind)) {
		case "", "memes":
			entries, err := r.TopMemes(ctx, limit)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("leaderboard error: %v", err)), nil
			}
			return jsonResult(map[string]any{"memes": entries, "count": len(entries)}), nil
		case "users":
			entries, err := r.TopUsers(ctx, limit)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("leaderboard error: %v", err)), nil
			}
			return jsonResult(map[string]any{"users": entries, "count": len(entries)}), nil
		default:
			return mcp.NewToolResultError(fmt.Sprintf("invalid kind %q (use memes or users)", kind)), nil
		}
	})
}

func jsonResult(v any) *mcp.CallToolResult {
	data, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(data))
}

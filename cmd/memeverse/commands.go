package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hurttlocker/memeverse/internal/config"
	"github.com/hurttlocker/memeverse/internal/feed"
	"github.com/hurttlocker/memeverse/internal/httpapi"
	"github.com/hurttlocker/memeverse/internal/mcp"
	"github.com/hurttlocker/memeverse/internal/meme"
	"github.com/hurttlocker/memeverse/internal/mutation"
	"github.com/hurttlocker/memeverse/internal/upload"
)

// newUploader returns the image host client, or nil when no API key is
// configured so uploads of raw images fail with mutation.ErrNoImageHost.
func newUploader(cfg config.ResolvedConfig, logger *zap.Logger) mutation.Uploader {
	if strings.TrimSpace(cfg.UploadAPIKey.Value) == "" {
		return nil
	}
	return upload.NewClient(upload.Config{
		Endpoint: cfg.UploadURL.Value,
		APIKey:   cfg.UploadAPIKey.Value,
		Logger:   logger.Named("upload"),
	})
}

// flagValue matches "--name value" and "--name=value" at args[*i],
// advancing *i past a separate value.
func flagValue(args []string, i *int, name string) (string, bool) {
	a := args[*i]
	if a == name && *i+1 < len(args) {
		*i++
		return args[*i], true
	}
	if strings.HasPrefix(a, name+"=") {
		return strings.TrimPrefix(a, name+"="), true
	}
	return "", false
}

func parseLimit(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid --limit %q", raw)
	}
	return n, nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runServe(args []string) error {
	opts := config.ResolveOptions{}
	for i := 0; i < len(args); i++ {
		if v, ok := flagValue(args, &i, "--addr"); ok {
			opts.CLIAddr = v
			continue
		}
		return fmt.Errorf("unknown flag: %s", args[i])
	}

	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := httpapi.New(httpapi.Deps{
		Store:      a.store,
		Catalog:    a.catalog,
		Cache:      a.cache,
		Engagement: a.engagement,
		Pipeline:   a.pipeline,
		Ranking:    a.ranking,
		Mutations:  a.mutations,
		Metrics:    a.metrics,
		Logger:     a.logger.Named("http"),
		Version:    version,
	})
	return srv.Serve(ctx, a.cfg.Addr.Value)
}

func runMCP(args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}
	a, err := openApp(config.ResolveOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	srv := mcp.NewServer(mcp.ServerConfig{
		Catalog:    a.catalog,
		Cache:      a.cache,
		Engagement: a.engagement,
		Pipeline:   a.pipeline,
		Ranking:    a.ranking,
		Mutations:  a.mutations,
		Metrics:    a.metrics.Catalog,
		Version:    version,
	})
	a.logger.Info("mcp server starting on stdio")
	return mcp.ServeStdio(srv)
}

func runFeed(args []string) error {
	cfg := feed.Config{Filter: feed.FilterTrending, SortBy: feed.SortLikes}
	pages := 1
	jsonOut := false

	for i := 0; i < len(args); i++ {
		if v, ok := flagValue(args, &i, "--filter"); ok {
			f, err := feed.ParseFilter(v)
			if err != nil {
				return err
			}
			cfg.Filter = f
			continue
		}
		if v, ok := flagValue(args, &i, "--sort"); ok {
			s, err := feed.ParseSort(v)
			if err != nil {
				return err
			}
			cfg.SortBy = s
			continue
		}
		if v, ok := flagValue(args, &i, "--search"); ok {
			cfg.SearchQuery = v
			continue
		}
		if v, ok := flagValue(args, &i, "--pages"); ok {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				return fmt.Errorf("invalid --pages %q", v)
			}
			pages = n
			continue
		}
		if args[i] == "--json" {
			jsonOut = true
			continue
		}
		return fmt.Errorf("unknown flag: %s", args[i])
	}

	a, err := openApp(config.ResolveOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	f := feed.NewFeed(a.catalog, a.pipeline, a.cache, cfg,
		feed.WithLogger(a.logger.Named("feed")),
		feed.WithMetrics(a.metrics.Catalog),
	)
	defer f.Close()

	f.Refresh(ctx)
	for p := 1; p < pages; p++ {
		if st := f.State(); st.Degraded || st.Exhausted {
			break
		}
		f.Next(ctx)
	}

	st := f.State()
	if jsonOut {
		return printJSON(st)
	}
	if st.Degraded {
		fmt.Fprintf(os.Stderr, "Feed degraded: %v\n", st.Err)
	}
	fmt.Printf("Feed: filter=%s sort=%s pages=%d memes=%d\n", cfg.Filter, cfg.SortBy, st.Page, len(st.Memes))
	for i, m := range st.Memes {
		likes, _ := a.engagement.GetLikeCount(ctx, m.ID)
		fmt.Printf("%3d. [%s] %s (%dx%d, %d likes)\n", i+1, m.ID, m.Name, m.Width, m.Height, likes)
	}
	if st.Degraded {
		return st.Err
	}
	return nil
}

func runLike(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: memeverse like <meme-id>")
	}
	a, err := openApp(config.ResolveOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.mutations.Like(context.Background(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Liked %s (%d likes)\n", args[0], n)
	return nil
}

func runComment(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: memeverse comment <meme-id> <text>")
	}
	a, err := openApp(config.ResolveOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	comments, err := a.mutations.Comment(context.Background(), args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	fmt.Printf("Commented on %s (%d comments)\n", args[0], len(comments))
	return nil
}

func runComments(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: memeverse comments <meme-id>")
	}
	a, err := openApp(config.ResolveOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	comments, err := a.engagement.GetComments(context.Background(), args[0])
	if err != nil {
		return err
	}
	if len(comments) == 0 {
		fmt.Println("No comments yet.")
		return nil
	}
	for i, c := range comments {
		fmt.Printf("%d. %s\n", i+1, c)
	}
	return nil
}

func runUpload(args []string) error {
	var imageURL, file, captionText, username string
	for i := 0; i < len(args); i++ {
		if v, ok := flagValue(args, &i, "--url"); ok {
			imageURL = v
			continue
		}
		if v, ok := flagValue(args, &i, "--file"); ok {
			file = v
			continue
		}
		if v, ok := flagValue(args, &i, "--caption"); ok {
			captionText = v
			continue
		}
		if v, ok := flagValue(args, &i, "--username"); ok {
			username = v
			continue
		}
		return fmt.Errorf("unknown flag: %s", args[i])
	}
	if (imageURL == "") == (file == "") {
		return fmt.Errorf("usage: memeverse upload (--url <image-url> | --file <path>) [--caption <text>] [--username <name>]")
	}

	a, err := openApp(config.ResolveOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	var u meme.Upload
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("reading image: %w", err)
		}
		u, err = a.mutations.UploadImage(ctx, data, captionText, username)
		if err != nil {
			return err
		}
	} else {
		u, err = a.mutations.Upload(ctx, imageURL, captionText, username)
		if err != nil {
			return err
		}
	}
	fmt.Printf("Uploaded %s as %s (by %s)\n", u.ImageURL, u.ID, u.RankUsername())
	return nil
}

func runUploads(args []string) error {
	jsonOut := len(args) == 1 && args[0] == "--json"
	if len(args) > 0 && !jsonOut {
		return fmt.Errorf("unknown flag: %s", args[0])
	}
	a, err := openApp(config.ResolveOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := a.engagement.ListUploads(context.Background())
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(list)
	}
	if len(list) == 0 {
		fmt.Println("No uploads yet.")
		return nil
	}
	for i, u := range list {
		fmt.Printf("%d. %s  %q  by %s\n", i+1, u.ImageURL, u.Caption, u.RankUsername())
	}
	return nil
}

func runCaption(args []string) error {
	opts := config.ResolveOptions{}
	var path string
	for i := 0; i < len(args); i++ {
		if v, ok := flagValue(args, &i, "--provider"); ok {
			opts.CLICaption = v
			continue
		}
		if strings.HasPrefix(args[i], "-") {
			return fmt.Errorf("unknown flag: %s", args[i])
		}
		path = args[i]
	}
	if path == "" {
		return fmt.Errorf("usage: memeverse caption <image-path> [--provider meme-api|openrouter/<model>|google/<model>]")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	text, err := a.mutations.GenerateCaption(ctx, data)
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}

func runProfile(args []string) error {
	var edit meme.Profile
	editing := false
	for i := 0; i < len(args); i++ {
		if v, ok := flagValue(args, &i, "--name"); ok {
			edit.DisplayName, editing = v, true
			continue
		}
		if v, ok := flagValue(args, &i, "--bio"); ok {
			edit.Bio, editing = v, true
			continue
		}
		if v, ok := flagValue(args, &i, "--avatar"); ok {
			edit.AvatarURL, editing = v, true
			continue
		}
		return fmt.Errorf("unknown flag: %s", args[i])
	}

	a, err := openApp(config.ResolveOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	p, err := a.engagement.GetProfile(ctx)
	if err != nil {
		return err
	}
	if editing {
		// Unset flags keep the current values.
		if edit.DisplayName == "" {
			edit.DisplayName = p.DisplayName
		}
		if edit.Bio == "" {
			edit.Bio = p.Bio
		}
		if edit.AvatarURL == "" {
			edit.AvatarURL = p.AvatarURL
		}
		if p, err = a.mutations.EditProfile(ctx, edit); err != nil {
			return err
		}
	}

	fmt.Printf("Name:   %s\n", p.DisplayName)
	fmt.Printf("Bio:    %s\n", p.Bio)
	fmt.Printf("Avatar: %s\n", p.AvatarURL)
	return nil
}

func runLeaderboard(args []string) error {
	limit := 0
	jsonOut := false
	for i := 0; i < len(args); i++ {
		if v, ok := flagValue(args, &i, "--limit"); ok {
			n, err := parseLimit(v)
			if err != nil {
				return err
			}
			limit = n
			continue
		}
		if args[i] == "--json" {
			jsonOut = true
			continue
		}
		return fmt.Errorf("unknown flag: %s", args[i])
	}

	a, err := openApp(config.ResolveOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	memes, err := a.ranking.TopMemes(ctx, limit)
	if err != nil {
		return err
	}
	users, err := a.ranking.TopUsers(ctx, limit)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(map[string]any{"memes": memes, "users": users})
	}

	fmt.Println("Top Memes")
	if len(memes) == 0 {
		fmt.Println("  (no liked memes yet)")
	}
	for i, e := range memes {
		fmt.Printf("  %d. %s [%s] - %d likes\n", i+1, e.Meme.Name, e.Meme.ID, e.LikeCount)
	}
	fmt.Println()
	fmt.Println("Top Users")
	if len(users) == 0 {
		fmt.Println("  (no uploads yet)")
	}
	for i, e := range users {
		fmt.Printf("  %d. %s - %d likes\n", i+1, e.Username, e.TotalLikes)
	}
	return nil
}

func runStats(args []string) error {
	jsonOut := len(args) == 1 && args[0] == "--json"
	if len(args) > 0 && !jsonOut {
		return fmt.Errorf("unknown flag: %s", args[0])
	}
	a, err := openApp(config.ResolveOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	st, err := a.store.Stats(ctx)
	if err != nil {
		return err
	}
	likes, err := a.engagement.Likes(ctx)
	if err != nil {
		return err
	}
	uploads, err := a.engagement.ListUploads(ctx)
	if err != nil {
		return err
	}
	cached, err := a.cache.All(ctx)
	if err != nil {
		return err
	}

	total := 0
	for _, l := range likes {
		total += l.LikeCount
	}

	out := map[string]any{
		"db_path":       a.cfg.DBPath.Value,
		"keys":          st.KeyCount,
		"db_size_bytes": st.DBSizeBytes,
		"liked_memes":   len(likes),
		"total_likes":   total,
		"uploads":       len(uploads),
		"cached_memes":  len(cached),
	}
	if jsonOut {
		return printJSON(out)
	}
	fmt.Printf("Database:     %s\n", a.cfg.DBPath.Value)
	fmt.Printf("Keys:         %d (%d bytes)\n", st.KeyCount, st.DBSizeBytes)
	fmt.Printf("Liked memes:  %d (%d likes)\n", len(likes), total)
	fmt.Printf("Uploads:      %d\n", len(uploads))
	fmt.Printf("Cached memes: %d\n", len(cached))
	return nil
}

func runConfig(args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}
	return printJSON(cfg.Redacted())
}

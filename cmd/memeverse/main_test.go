package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hurttlocker/memeverse/internal/mutation"
)

// ==================== parseGlobalFlags ====================

func resetGlobals() {
	globalDBPath = ""
	globalConfigPath = ""
	globalLogLevel = ""
}

func TestParseGlobalFlags_DBFlag(t *testing.T) {
	resetGlobals()

	args := parseGlobalFlags([]string{"--db", "/tmp/test.db", "like", "42"})

	if globalDBPath != "/tmp/test.db" {
		t.Errorf("globalDBPath = %q, want %q", globalDBPath, "/tmp/test.db")
	}
	if len(args) != 2 || args[0] != "like" || args[1] != "42" {
		t.Errorf("filtered args = %v, want [like 42]", args)
	}
}

func TestParseGlobalFlags_EqualsForm(t *testing.T) {
	resetGlobals()

	args := parseGlobalFlags([]string{"--db=/tmp/eq.db", "--config=/tmp/c.yaml", "--log-level=debug", "stats"})

	if globalDBPath != "/tmp/eq.db" {
		t.Errorf("globalDBPath = %q", globalDBPath)
	}
	if globalConfigPath != "/tmp/c.yaml" {
		t.Errorf("globalConfigPath = %q", globalConfigPath)
	}
	if globalLogLevel != "debug" {
		t.Errorf("globalLogLevel = %q", globalLogLevel)
	}
	if len(args) != 1 || args[0] != "stats" {
		t.Errorf("filtered args = %v, want [stats]", args)
	}
}

func TestParseGlobalFlags_FlagsAfterCommand(t *testing.T) {
	resetGlobals()

	args := parseGlobalFlags([]string{"feed", "--filter", "classic", "--db", "/tmp/x.db"})

	if globalDBPath != "/tmp/x.db" {
		t.Errorf("globalDBPath = %q", globalDBPath)
	}
	want := []string{"feed", "--filter", "classic"}
	if strings.Join(args, " ") != strings.Join(want, " ") {
		t.Errorf("filtered args = %v, want %v", args, want)
	}
}

func TestParseGlobalFlags_TrailingDBWithoutValue(t *testing.T) {
	resetGlobals()

	args := parseGlobalFlags([]string{"stats", "--db"})
	if globalDBPath != "" {
		t.Errorf("globalDBPath should be empty, got %q", globalDBPath)
	}
	if len(args) != 2 {
		t.Errorf("filtered args = %v, want [stats --db]", args)
	}
}

// ==================== commands ====================

func captureStdout(fn func()) string {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

// useTempEnv points the CLI at a fresh database and an absent config file.
func useTempEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	resetGlobals()
	globalDBPath = filepath.Join(dir, "memeverse.db")
	globalConfigPath = filepath.Join(dir, "missing.yaml")
	globalLogLevel = "error"
	t.Setenv("IMGBB_API_KEY", "")
	t.Setenv("MEMEVERSE_CAPTION", "")
	t.Cleanup(resetGlobals)
	return dir
}

func mustRun(t *testing.T, cmd string, args ...string) string {
	t.Helper()
	var err error
	out := captureStdout(func() { err = run(cmd, args) })
	if err != nil {
		t.Fatalf("%s %v: %v", cmd, args, err)
	}
	return out
}

func TestRunUnknownCommand(t *testing.T) {
	useTempEnv(t)
	var err error
	captureStdout(func() { err = run("frobnicate", nil) })
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("expected unknown command error, got %v", err)
	}
}

func TestRunVersion(t *testing.T) {
	out := mustRun(t, "version")
	if !strings.Contains(out, version) {
		t.Errorf("version output = %q", out)
	}
}

func TestLikeAndCommentPersist(t *testing.T) {
	useTempEnv(t)

	mustRun(t, "like", "101")
	out := mustRun(t, "like", "101")
	if !strings.Contains(out, "(2 likes)") {
		t.Errorf("second like output = %q", out)
	}

	mustRun(t, "comment", "101", "so", "relatable")
	out = mustRun(t, "comments", "101")
	if !strings.Contains(out, "1. so relatable") {
		t.Errorf("comments output = %q", out)
	}

	var err error
	captureStdout(func() { err = run("comment", []string{"101", "   "}) })
	if err == nil {
		t.Error("expected error for blank comment")
	}
}

func TestUploadAndLeaderboard(t *testing.T) {
	useTempEnv(t)

	mustRun(t, "upload", "--url", "https://i.ibb.co/a.png", "--caption", "c1", "--username", "alice")
	mustRun(t, "upload", "--url=https://i.ibb.co/b.png")
	mustRun(t, "like", "https://i.ibb.co/a.png")

	out := mustRun(t, "leaderboard", "--json")
	var board struct {
		Memes []json.RawMessage `json:"memes"`
		Users []struct {
			Username   string `json:"username"`
			TotalLikes int    `json:"total_likes"`
		} `json:"users"`
	}
	if err := json.Unmarshal([]byte(out), &board); err != nil {
		t.Fatalf("parsing leaderboard: %v\n%s", err, out)
	}
	if len(board.Memes) != 0 {
		t.Errorf("upload likes never resolve against the catalog cache, got %d memes", len(board.Memes))
	}
	if len(board.Users) != 2 || board.Users[0].Username != "alice" || board.Users[0].TotalLikes != 1 {
		t.Errorf("users = %+v", board.Users)
	}
	if board.Users[1].Username != "Unknown User" {
		t.Errorf("second user = %+v", board.Users[1])
	}
}

func TestUploadFileWithoutImageHost(t *testing.T) {
	dir := useTempEnv(t)
	path := filepath.Join(dir, "meme.png")
	if err := os.WriteFile(path, []byte("\x89PNG"), 0o644); err != nil {
		t.Fatal(err)
	}

	var err error
	captureStdout(func() { err = run("upload", []string{"--file", path}) })
	if !errors.Is(err, mutation.ErrNoImageHost) {
		t.Errorf("expected ErrNoImageHost, got %v", err)
	}
}

func TestUploadRequiresExactlyOneSource(t *testing.T) {
	useTempEnv(t)
	for _, args := range [][]string{nil, {"--url", "a", "--file", "b"}} {
		if err := run("upload", args); err == nil {
			t.Errorf("upload %v: expected usage error", args)
		}
	}
}

func TestProfileEditKeepsUnsetFields(t *testing.T) {
	useTempEnv(t)

	out := mustRun(t, "profile")
	if !strings.Contains(out, "Meme Lord") {
		t.Errorf("default profile output = %q", out)
	}

	out = mustRun(t, "profile", "--bio", "new bio")
	if !strings.Contains(out, "Name:   Meme Lord") || !strings.Contains(out, "Bio:    new bio") {
		t.Errorf("edited profile output = %q", out)
	}
}

func TestStatsJSON(t *testing.T) {
	useTempEnv(t)
	mustRun(t, "like", "7")
	mustRun(t, "like", "8")
	mustRun(t, "like", "8")

	out := mustRun(t, "stats", "--json")
	var stats map[string]any
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("parsing stats: %v\n%s", err, out)
	}
	if stats["liked_memes"] != float64(2) || stats["total_likes"] != float64(3) {
		t.Errorf("stats = %v", stats)
	}
}

func TestConfigRedactsSecrets(t *testing.T) {
	useTempEnv(t)
	t.Setenv("IMGBB_API_KEY", "super-secret")

	out := mustRun(t, "config")
	if strings.Contains(out, "super-secret") {
		t.Errorf("config output leaked the API key: %s", out)
	}
	if !strings.Contains(out, "IMGBB_API_KEY") {
		t.Errorf("config output should name the key's source: %s", out)
	}
}

func TestFeedRejectsBadFlags(t *testing.T) {
	useTempEnv(t)
	for _, args := range [][]string{{"--filter", "hot"}, {"--sort", "random"}, {"--pages", "0"}, {"--bogus"}} {
		if err := run("feed", args); err == nil {
			t.Errorf("feed %v: expected error", args)
		}
	}
}

package main

import (
	"fmt"
	"os"
	"strings"
)

var version = "0.1.0-dev"

var (
	globalDBPath     string
	globalConfigPath string
	globalLogLevel   string
)

func main() {
	args := parseGlobalFlags(os.Args[1:])
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	if err := run(args[0], args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd string, args []string) error {
	switch cmd {
	case "serve":
		return runServe(args)
	case "mcp":
		return runMCP(args)
	case "feed":
		return runFeed(args)
	case "like":
		return runLike(args)
	case "comment":
		return runComment(args)
	case "comments":
		return runComments(args)
	case "upload":
		return runUpload(args)
	case "uploads":
		return runUploads(args)
	case "caption":
		return runCaption(args)
	case "profile":
		return runProfile(args)
	case "leaderboard":
		return runLeaderboard(args)
	case "stats":
		return runStats(args)
	case "config":
		return runConfig(args)
	case "version", "--version", "-v":
		fmt.Printf("memeverse %s\n", version)
		return nil
	case "help", "--help", "-h":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

// parseGlobalFlags strips --db, --config and --log-level from args, in
// either "--flag value" or "--flag=value" form, and returns the rest.
func parseGlobalFlags(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--db" && i+1 < len(args):
			i++
			globalDBPath = args[i]
		case strings.HasPrefix(args[i], "--db="):
			globalDBPath = strings.TrimPrefix(args[i], "--db=")
		case args[i] == "--config" && i+1 < len(args):
			i++
			globalConfigPath = args[i]
		case strings.HasPrefix(args[i], "--config="):
			globalConfigPath = strings.TrimPrefix(args[i], "--config=")
		case args[i] == "--log-level" && i+1 < len(args):
			i++
			globalLogLevel = args[i]
		case strings.HasPrefix(args[i], "--log-level="):
			globalLogLevel = strings.TrimPrefix(args[i], "--log-level=")
		default:
			out = append(out, args[i])
		}
	}
	return out
}

func printUsage() {
	fmt.Printf(`memeverse %s - meme feed, engagement and leaderboards

Usage:
  memeverse [global flags] <command> [arguments]

Commands:
  serve                     Run the HTTP API (--addr host:port)
  mcp                       Run the MCP server on stdio
  feed                      Show the explore feed
                              --filter trending|new|classic|random
                              --sort likes|date|engagement
                              --search <text> --pages N --json
  like <meme-id>            Like a meme (every call adds one)
  comment <meme-id> <text>  Comment on a meme
  comments <meme-id>        List a meme's comments
  upload                    Record an upload
                              --url <image-url> | --file <path>
                              --caption <text> --username <name>
  uploads                   List uploads
  caption <image-path>      Generate a caption for an image
  profile                   Show the profile
                              --name <display name> --bio <text> --avatar <url> to edit
  leaderboard               Show top memes and top users (--limit N --json)
  stats                     Show store statistics
  config                    Show resolved configuration with sources
  version                   Print version

Global Flags:
  --db <path>               Database path (default: %s)
  --config <path>           Config file (default: %s)
  --log-level <level>       debug|info|warn|error
  -h, --help                Show this help message
`, version, "~/.memeverse/memeverse.db", "~/.memeverse/config.yaml")
}

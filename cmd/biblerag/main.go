// Command biblerag builds scripture artifacts and answers questions about
// them from the terminal, a chat TUI or an HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"biblerag/internal/config"
	"biblerag/internal/domain"
	"biblerag/internal/httpapi"
	"biblerag/internal/logging"
	"biblerag/internal/tui"
)

var version = "dev"

// Globals are flags shared by every command.
type Globals struct {
	Config   string `name:"config" short:"c" help:"Config file (default: ./config.yaml, then ~/.config/biblerag/config.yaml)" type:"path"`
	LogLevel string `name:"log-level" help:"Override log.level (debug, info, warn, error)"`
}

// CLI defines the command-line interface using Kong
var CLI struct {
	Globals

	Ingest  IngestCmd  `cmd:"" help:"Build the scripture and commentary artifacts"`
	Ask     AskCmd     `cmd:"" help:"Answer a single question"`
	Chat    ChatCmd    `cmd:"" help:"Interactive chat"`
	Serve   ServeCmd   `cmd:"" help:"Serve the HTTP API"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// load reads config and configures logging to w.
func (g *Globals) load(w io.Writer) (*config.AppConfig, error) {
	var cfg *config.AppConfig
	var err error
	path := g.Config
	if path == "" {
		cfg, path, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	if _, err := logging.Init(w, cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, err
	}
	slog.Debug("config: loaded", "path", path)
	return cfg, nil
}

// IngestCmd builds artifacts.
type IngestCmd struct {
	Paths      []string `arg:"" optional:"" help:"Scripture files or globs (default: corpus.scripture)"`
	Commentary []string `name:"commentary" help:"Commentary files or globs (default: corpus.commentary)"`
}

func (c *IngestCmd) Run(g *Globals) error {
	cfg, err := g.load(os.Stderr)
	if err != nil {
		return err
	}
	if len(c.Paths) > 0 {
		cfg.Corpus.Scripture = c.Paths
	}
	if len(c.Commentary) > 0 {
		cfg.Corpus.Commentary = c.Commentary
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	reports, err := ingest(ctx, cfg)
	for name, rep := range reports {
		fmt.Printf("%s: %d documents, %d chunks, dimension %d, %s (%s)\n",
			name, rep.Documents, rep.Chunks, rep.Dimension, rep.Hash[:12], rep.Elapsed.Round(time.Millisecond))
	}
	return err
}

// AskCmd answers one question and exits.
type AskCmd struct {
	Mode     string   `name:"mode" short:"m" default:"scripture" enum:"scripture,commentary" help:"Answer mode"`
	Question []string `arg:"" required:"" help:"Question"`
}

func (c *AskCmd) Run(g *Globals) error {
	cfg, err := g.load(os.Stderr)
	if err != nil {
		return err
	}
	mode, err := domain.ParseMode(c.Mode)
	if err != nil {
		return err
	}
	ctx := context.Background()
	app, err := open(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	reply, err := app.svc.Ask(ctx, "", strings.Join(c.Question, " "), mode)
	if err != nil {
		return err
	}
	fmt.Println(reply.Answer)
	return nil
}

// ChatCmd runs the TUI.
type ChatCmd struct {
	Mode string `name:"mode" short:"m" default:"scripture" enum:"scripture,commentary" help:"Initial answer mode"`
}

func (c *ChatCmd) Run(g *Globals) error {
	// The TUI owns the terminal; logs go to a file next to the artifacts.
	cfg, err := g.load(io.Discard)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Artifacts.Dir, 0o755); err != nil {
		return err
	}
	logFile, err := os.OpenFile(filepath.Join(cfg.Artifacts.Dir, "chat.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer logFile.Close()
	if _, err := logging.Init(logFile, cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}

	mode, err := domain.ParseMode(c.Mode)
	if err != nil {
		return err
	}
	app, err := open(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	m := tui.New(app.svc, mode, cfg.LLMTimeout())
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

// ServeCmd runs the HTTP API until interrupted.
type ServeCmd struct {
	Addr         string   `name:"addr" help:"Listen address (default: server.addr)"`
	AllowOrigins []string `name:"allow-origin" help:"CORS origins allowed to call the API"`
}

func (c *ServeCmd) Run(g *Globals) error {
	cfg, err := g.load(os.Stderr)
	if err != nil {
		return err
	}
	if c.Addr != "" {
		cfg.Server.Addr = c.Addr
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := open(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := httpapi.New(app.svc, httpapi.Options{AllowOrigins: c.AllowOrigins, AskTimeout: cfg.LLMTimeout()})
	errc := make(chan error, 1)
	go func() { errc <- srv.Start(cfg.Server.Addr) }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println("biblerag", version)
	return nil
}

func main() {
	_ = godotenv.Load()

	ctx := kong.Parse(&CLI,
		kong.Name("biblerag"),
		kong.Description("Scripture question answering over a local KJV index"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	err := ctx.Run(&CLI.Globals)
	ctx.FatalIfErrorf(err)
}

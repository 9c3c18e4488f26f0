// ABOUTME: Interactive chat client for coven conversations over HTTP and SSE.
// ABOUTME: Provides readline-style input with slash commands and streamed output.

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/coven-client/internal/api"
	"github.com/2389/coven-client/internal/config"
	"github.com/2389/coven-client/internal/conversation"
	"github.com/2389/coven-client/internal/convlist"
	"github.com/2389/coven-client/internal/engine"
)

// Version is set by goreleaser at build time.
var version = "dev"

func main() {
	server := flag.String("server", "", "Gateway server URL (overrides config)")
	configPath := flag.String("config", "", "Config file path")
	conversationID := flag.String("conversation", "", "Conversation to open on startup")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("coven-chat %s\n", version)
		return
	}

	cfg := loadConfig(*configPath, *server)
	logger := setupLogger(cfg.Logging)

	token, err := cfg.ResolveToken()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("coven-chat connected to %s\n", cfg.Server.BaseURL)
	if token != "" {
		fmt.Println("Auth: bearer token configured")
	} else {
		fmt.Println("Auth: none (set COVEN_TOKEN for authentication)")
	}
	fmt.Println("Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	e := engine.New(engine.Options{
		API:             api.New(cfg.Server.BaseURL, token, logger),
		Logger:          logger,
		TitleTimeout:    cfg.Timing.TitlePendingTimeout,
		MetadataTimeout: cfg.Timing.MetadataPendingTimeout,
		SearchDebounce:  cfg.Timing.SearchDebounce,
		HistoryPageSize: cfg.History.PageSize,
	})
	defer e.Close()
	e.StartAccountStreams(ctx)

	if err := run(ctx, e, *conversationID); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

// loadConfig reads the config file, falling back to flag and env defaults
// when no file exists.
func loadConfig(path, serverFlag string) *config.Config {
	if path == "" {
		path = config.DefaultPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		cfg = &config.Config{}
		cfg.Server.BaseURL = "http://localhost:8080"
		cfg.Logging.Level = "warn"
	}
	if serverFlag != "" {
		cfg.Server.BaseURL = serverFlag
	}
	return cfg
}

// run is the interactive loop. It owns the render goroutine for the
// currently open conversation and re-subscribes on every /open.
func run(ctx context.Context, e *engine.Engine, startConversation string) error {
	r := newRenderer(e)
	defer r.stop()

	if err := e.RefreshList(ctx); err != nil {
		fmt.Printf("[error] %v\n", err)
	}

	if startConversation != "" {
		openConversation(ctx, e, r, startConversation)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(prompt(r.current()))

		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)
		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
			} else if err := scanner.Err(); err != nil {
				errCh <- err
			} else {
				errCh <- io.EOF
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if input == "/quit" || input == "/exit" || input == "/q" {
			return nil
		}
		if handleCommand(ctx, e, r, input) {
			fmt.Println()
			continue
		}

		if r.current() == "" {
			fmt.Println("No conversation open. Use /open <id> first.")
			fmt.Println()
			continue
		}
		if err := e.Send(ctx, input, nil); err != nil {
			fmt.Printf("[error] %v (use /retry to resend)\n", err)
		}
		fmt.Println()
	}
}

func prompt(conversationID string) string {
	if conversationID != "" {
		return fmt.Sprintf("[%s]> ", conversationID)
	}
	return "> "
}

// handleCommand dispatches slash commands. Returns false when the input is
// a regular message.
func handleCommand(ctx context.Context, e *engine.Engine, r *renderer, input string) bool {
	if !strings.HasPrefix(input, "/") {
		return false
	}

	cmd, args, _ := strings.Cut(input, " ")
	args = strings.TrimSpace(args)

	switch cmd {
	case "/help":
		printHelp()
	case "/conversations":
		printConversations(e)
	case "/open":
		if args == "" {
			fmt.Println("Usage: /open <conversation-id>")
			return true
		}
		openConversation(ctx, e, r, args)
	case "/rename":
		if r.current() == "" || args == "" {
			fmt.Println("Usage: /rename <new title> (requires an open conversation)")
			return true
		}
		if err := e.Rename(ctx, r.current(), args); err != nil {
			fmt.Printf("[error] %v\n", err)
		} else {
			fmt.Printf("Renamed to %q\n", args)
		}
	case "/memory":
		if r.current() == "" || args == "" {
			fmt.Println("Usage: /memory <inherit|none|trim|summarize|compact>")
			return true
		}
		pref := convlist.MemoryPreference{Mode: convlist.MemoryMode(args)}
		if err := e.SetMemory(ctx, r.current(), pref); err != nil {
			fmt.Printf("[error] %v\n", err)
		} else {
			fmt.Printf("Memory mode set to %s\n", args)
		}
	case "/search":
		e.List().SetSearchTerm(args)
		if args == "" {
			fmt.Println("Search cleared")
		} else {
			fmt.Printf("Searching for %q (results via /conversations)\n", args)
		}
	case "/retry":
		retryFailed(ctx, e)
	case "/older":
		if r.current() == "" {
			fmt.Println("No conversation open.")
			return true
		}
		if err := e.LoadOlder(ctx); err != nil {
			fmt.Printf("[error] %v\n", err)
		}
	case "/notices":
		printNotices(e)
	default:
		fmt.Printf("Unknown command %s. /help for commands.\n", cmd)
	}
	return true
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /conversations       List conversations (or current search results)")
	fmt.Println("  /open <id>           Open a conversation")
	fmt.Println("  /rename <title>      Rename the open conversation")
	fmt.Println("  /memory <mode>       Set memory mode: inherit, none, trim, summarize, compact")
	fmt.Println("  /search <term>       Search conversations; /search alone clears")
	fmt.Println("  /retry               Resend the last failed message")
	fmt.Println("  /older               Load older messages")
	fmt.Println("  /notices             Show and clear notifications")
	fmt.Println("  /help                Show this help")
	fmt.Println("  /quit                Exit")
}

func printConversations(e *engine.Engine) {
	rows := e.List().Rows()
	if len(rows) == 0 {
		if e.List().View() == convlist.ViewSearching {
			fmt.Println("Search in flight, try again in a moment")
		} else {
			fmt.Println("No conversations")
		}
		return
	}
	for _, row := range rows {
		title := row.Title
		if row.DisplayNamePending {
			title += " " + color.HiBlackString("(naming...)")
		}
		fmt.Printf("  %s  %s\n", color.CyanString(row.ID), title)
		if row.LastMessagePreview != "" {
			fmt.Printf("      %s\n", color.HiBlackString(row.LastMessagePreview))
		}
	}
}

func printNotices(e *engine.Engine) {
	notices := e.List().Notices()
	notifications := e.Feed().Notifications()
	if len(notices) == 0 && len(notifications) == 0 {
		fmt.Println("No notifications")
		return
	}
	for _, n := range notices {
		fmt.Printf("  %s %s\n", color.YellowString("!"), n.Message)
		e.List().DismissNotice(n.ID)
	}
	for _, n := range notifications {
		fmt.Printf("  %s %s\n", color.YellowString("*"), n.Message)
		e.Feed().Dismiss(n.ID)
	}
}

func openConversation(ctx context.Context, e *engine.Engine, r *renderer, id string) {
	e.OpenConversation(ctx, id)
	r.watch(ctx, id)

	snap := e.Snapshot()
	if snap.HistoryError != "" {
		fmt.Printf("[warning] %s\n", snap.HistoryError)
	}
	for _, m := range snap.Messages {
		printMessage(m)
	}
}

// retryFailed resends the most recent pending user message.
func retryFailed(ctx context.Context, e *engine.Engine) {
	snap := e.Snapshot()
	for i := len(snap.Messages) - 1; i >= 0; i-- {
		m := snap.Messages[i]
		if m.Role == conversation.RoleUser && m.Pending {
			if err := e.Retry(ctx, m.ID); err != nil {
				fmt.Printf("[error] %v\n", err)
			}
			return
		}
	}
	fmt.Println("Nothing to retry")
}

func printMessage(m conversation.Message) {
	switch m.Role {
	case conversation.RoleUser:
		fmt.Printf("%s %s\n", color.GreenString("you:"), m.Content)
	case conversation.RoleAssistant:
		fmt.Printf("%s %s\n", color.CyanString("agent:"), m.Content)
	default:
		fmt.Printf("%s %s\n", color.HiBlackString(string(m.Role)+":"), m.Content)
	}
}

// renderer prints streamed assistant output as snapshots arrive. It tracks
// how much of each message has already been printed so deltas append
// instead of repeating.
type renderer struct {
	e *engine.Engine

	mu      sync.Mutex
	conv    string
	subID   string
	cancel  context.CancelFunc
	printed map[string]int
}

func newRenderer(e *engine.Engine) *renderer {
	return &renderer{e: e, printed: make(map[string]int)}
}

func (r *renderer) current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conv
}

// watch switches the render goroutine to a new conversation, dropping the
// previous subscription first.
func (r *renderer) watch(ctx context.Context, conversationID string) {
	r.stop()

	subCtx, cancel := context.WithCancel(ctx)
	ch, subID := r.e.Subscribe(subCtx, conversationID)

	r.mu.Lock()
	r.conv = conversationID
	r.subID = subID
	r.cancel = cancel
	r.printed = make(map[string]int)
	r.mu.Unlock()

	go func() {
		for snap := range ch {
			r.render(snap)
		}
	}()
}

func (r *renderer) stop() {
	r.mu.Lock()
	cancel := r.cancel
	conv, subID := r.conv, r.subID
	r.conv, r.subID, r.cancel = "", "", nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		r.e.Unsubscribe(conv, subID)
	}
}

func (r *renderer) render(snap *conversation.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range snap.Messages {
		if m.Role != conversation.RoleAssistant {
			continue
		}
		done := r.printed[m.ID]
		if len(m.Content) > done {
			if done == 0 {
				fmt.Printf("\n%s ", color.CyanString("agent:"))
			}
			fmt.Print(m.Content[done:])
			r.printed[m.ID] = len(m.Content)
		}
	}

	if snap.Status == conversation.StatusCompleted || snap.Status == conversation.StatusErrored {
		if snap.ErrorMessage != "" {
			fmt.Printf("\n%s %s\n", color.RedString("[error]"), snap.ErrorMessage)
		}
	}

	for _, tc := range snap.ToolCalls {
		key := "tool-" + tc.ID
		if r.printed[key] == 0 && tc.Status.Terminal() {
			fmt.Printf("\n%s %s (%s)\n", color.YellowString("[tool]"), tc.Name, tc.Status)
			r.printed[key] = 1
		}
	}
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Fprint(os.Stderr, buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/minjae-lab/collabchat/internal/auth"
	"github.com/minjae-lab/collabchat/internal/backend"
	"github.com/minjae-lab/collabchat/internal/cache"
	"github.com/minjae-lab/collabchat/internal/chat"
	"github.com/minjae-lab/collabchat/internal/config"
	"github.com/minjae-lab/collabchat/internal/log"
)

var (
	flagConfig   string
	flagToken    string
	flagLogLevel string
	flagProject  int64
	flagDM       int64
	flagPartner  string
)

var rootCmd = &cobra.Command{
	Use:   "chat",
	Short: "Terminal client for collabchat rooms",
	Long: `chat opens one collaboration room in the terminal: it loads the
room history, streams live messages, and sends whatever you type.

Pick a room with --project or --dm. Type a message and press Enter to
send it; Ctrl+C leaves the room.`,
	SilenceUsage: true,
	RunE:         runChat,
}

var roomsCmd = &cobra.Command{
	Use:          "rooms",
	Short:        "List the project and direct rooms you belong to",
	SilenceUsage: true,
	RunE:         runRooms,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", "", "bearer token (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (overrides config)")
	rootCmd.Flags().Int64Var(&flagProject, "project", 0, "project room id to open")
	rootCmd.Flags().Int64Var(&flagDM, "dm", 0, "direct room id to open")
	rootCmd.Flags().StringVar(&flagPartner, "partner", "", "display name of the direct room partner")
	rootCmd.AddCommand(roomsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration, applies flag overrides and builds the shared
// logger and backend client.
func setup() (config.Config, *zerolog.Logger, *backend.Client, error) {
	boot := log.New("info")
	cfg, path, err := config.Load(boot, flagConfig)
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("load config: %w", err)
	}
	if flagToken != "" {
		cfg.Token = flagToken
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}

	logger := log.New(cfg.LogLevel)
	logger.Debug().Str("config", path).Msg("configuration loaded")
	return cfg, logger, backend.NewClient(cfg, logger), nil
}

func runRooms(cmd *cobra.Command, args []string) error {
	cfg, logger, client, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	self, err := auth.Resolve(ctx, cfg.Token, client)
	if err != nil {
		return fmt.Errorf("resolve identity: %w", err)
	}
	logger.Debug().Int64("user_id", self.UserID).Msg("identity resolved")

	projects, err := client.ListProjectRooms(ctx, self.UserID)
	if err != nil {
		return fmt.Errorf("list project rooms: %w", err)
	}
	directs, err := client.ListDirectRooms(ctx, self.UserID)
	if err != nil {
		return fmt.Errorf("list direct rooms: %w", err)
	}

	fmt.Println("Project rooms:")
	if len(projects) == 0 {
		fmt.Println("  (none)")
	}
	for _, p := range projects {
		fmt.Printf("  %d  %s\n", p.ProjectID, p.ProjectName)
	}
	fmt.Println("Direct rooms:")
	if len(directs) == 0 {
		fmt.Println("  (none)")
	}
	for _, d := range directs {
		fmt.Printf("  %d  %s\n", d.RoomID, d.PartnerName)
	}
	return nil
}

func runChat(cmd *cobra.Command, args []string) error {
	if (flagProject == 0) == (flagDM == 0) {
		return fmt.Errorf("pick exactly one room: --project or --dm")
	}

	cfg, logger, client, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	self, err := auth.Resolve(ctx, cfg.Token, client)
	if err != nil {
		return fmt.Errorf("resolve identity: %w", err)
	}

	var historyCache chat.HistoryCache
	if cfg.CachePath != "" {
		c, err := cache.New(cfg.CachePath)
		if err != nil {
			// The client works without a cache, just with no offline history.
			logger.Warn().Err(err).Str("path", cfg.CachePath).Msg("history cache unavailable")
		} else {
			defer c.Close()
			historyCache = c
		}
	}

	printer := newPrinter(os.Stdout)
	selector := chat.NewSelector(self, chat.SelectorDeps{
		Dialer:   backend.NewDialer(cfg, logger),
		History:  client,
		Metadata: client,
		Cache:    historyCache,
		Logger:   logger,
		OnUpdate: printer.render,
	})
	defer selector.Close()

	kind, id, partner := chat.RoomKindProject, flagProject, ""
	if flagDM != 0 {
		kind, id, partner = chat.RoomKindDirect, flagDM, flagPartner
	}

	if err := selector.Select(ctx, kind, id, partner); err != nil {
		return fmt.Errorf("open room: %w", err)
	}
	session := selector.Session()
	printer.bind(session)

	fmt.Printf("-- %s --\n", selector.Title())
	fmt.Println("Type a message and press Enter to send. Ctrl+C to leave.")

	go func() {
		<-ctx.Done()
		selector.Close()
		os.Stdin.Close()
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := session.Send(line); err != nil {
			fmt.Printf("!! %v\n", err)
			if session.State() == chat.StateClosed {
				break
			}
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}

// printer renders the session timeline incrementally. Each message is printed
// once, in timeline order at the moment it becomes visible; an optimistic
// message shows up immediately with a pending marker.
type printer struct {
	out *os.File

	mu      sync.Mutex
	session *chat.Session
	seen    map[string]bool
	lastErr string
}

func newPrinter(out *os.File) *printer {
	return &printer{out: out, seen: make(map[string]bool)}
}

// bind attaches the printer to a session and renders what it already holds.
// Update callbacks arriving before bind find a nil session and do nothing.
func (p *printer) bind(s *chat.Session) {
	p.mu.Lock()
	p.session = s
	p.mu.Unlock()
	p.render()
}

func (p *printer) render() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return
	}

	for _, entry := range p.session.Timeline() {
		key := entryKey(entry.Message)
		if p.seen[key] {
			continue
		}
		p.seen[key] = true
		if entry.NewDay {
			fmt.Fprintf(p.out, "---- %s ----\n", entry.Message.Instant.Format("2006-01-02"))
		}
		marker := ""
		if entry.Message.Pending {
			marker = " …"
		}
		fmt.Fprintf(p.out, "[%s] %s: %s%s\n",
			entry.Message.Instant.Format("15:04"),
			entry.Message.SenderName,
			entry.Message.Body,
			marker,
		)
	}

	if err := p.session.Err(); err != nil && err.Error() != p.lastErr {
		p.lastErr = err.Error()
		fmt.Fprintf(p.out, "!! %v\n", err)
	}
}

// entryKey identifies a message across its pending and confirmed forms.
func entryKey(m chat.Message) string {
	if m.LocalID != "" {
		return "local:" + m.LocalID
	}
	return "id:" + strconv.FormatInt(m.ID, 10)
}

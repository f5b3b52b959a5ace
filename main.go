// Command tanks starts the Tank Tactics server.
//
// It supports two commands:
//  1. "serve" (default) – runs the HTTP server exposing the REST API, WebSocket, and an /mcp HTTP endpoint
//  2. "mcp" – runs an MCP stdio server against an existing API, or an internal one if none answers
//
// Settings come from the environment (TANKS_* variables, optionally via a .env
// file). Flags given on the command line override them.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/inconshreveable/log15/v3"
	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
	"golang.org/x/sync/errgroup"

	"github.com/wricardo/tank-tactics/api"
	"github.com/wricardo/tank-tactics/game/config"
	"github.com/wricardo/tank-tactics/game/service"
	"github.com/wricardo/tank-tactics/game/session"
	"github.com/wricardo/tank-tactics/logging"
	"github.com/wricardo/tank-tactics/transport/mcp"
	"github.com/wricardo/tank-tactics/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Tank Tactics Server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// A missing .env is fine
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: error loading .env file: %v\n", err)
	}

	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(1)
	}
}

// newCommand builds the CLI. Running it without a subcommand serves HTTP.
func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "tanks",
		Usage:   AppName,
		Version: Version,
		Flags:   globalFlags(),
		Action:  runServe,
		Commands: []*cli.Command{
			{
				Name:    "serve",
				Aliases: []string{"server", "http"},
				Usage:   "Run HTTP server with API, WebSocket, and MCP endpoint",
				Action:  runServe,
			},
			{
				Name:    "mcp",
				Aliases: []string{"stdio-mcp", "mcp-stdio"},
				Usage:   "Run MCP stdio server",
				Action:  runMCP,
			},
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "host", Usage: "HTTP server host (TANKS_HOST)"},
		&cli.IntFlag{Name: "port", Usage: "HTTP server port (TANKS_PORT)"},
		&cli.StringFlag{Name: "config-dir", Usage: "Directory containing rulesets (TANKS_CONFIG_DIR)"},
		&cli.StringFlag{Name: "data-dir", Usage: "Directory for match storage (TANKS_DATA_DIR)"},
		&cli.StringFlag{Name: "storage", Usage: "Match storage backend: file or sqlite (TANKS_STORAGE)"},
		&cli.BoolFlag{Name: "debug", Usage: "Enable debug logging (TANKS_DEBUG)"},
		&cli.StringFlag{Name: "log-format", Usage: "Log format: logfmt, json or terminal (TANKS_LOG_FORMAT)"},
		&cli.DurationFlag{Name: "grant-interval", Usage: "Grant daily action points on this interval, 0 disables (TANKS_GRANT_INTERVAL)"},
		&cli.StringFlag{Name: "api-url", Usage: "API server for the mcp command (TANKS_API_URL)"},
		&cli.BoolFlag{Name: "ngrok", Usage: "Enable ngrok tunnel (NGROK_ENABLED)"},
		&cli.StringFlag{Name: "ngrok-auth", Usage: "Ngrok auth token (NGROK_AUTHTOKEN)"},
		&cli.StringFlag{Name: "ngrok-domain", Usage: "Custom ngrok domain (NGROK_DOMAIN)"},
	}
}

// loadSettings reads the environment and applies flags set on the command line
func loadSettings(cmd *cli.Command) (*config.Settings, error) {
	settings, err := config.LoadSettings()
	if err != nil {
		return nil, err
	}

	if cmd.IsSet("host") {
		settings.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		settings.Port = cmd.Int("port")
	}
	if cmd.IsSet("config-dir") {
		settings.ConfigDir = cmd.String("config-dir")
	}
	if cmd.IsSet("data-dir") {
		settings.DataDir = cmd.String("data-dir")
	}
	if cmd.IsSet("storage") {
		settings.Storage = cmd.String("storage")
	}
	if cmd.IsSet("debug") {
		settings.Debug = cmd.Bool("debug")
	}
	if cmd.IsSet("log-format") {
		settings.LogFormat = cmd.String("log-format")
	}
	if cmd.IsSet("grant-interval") {
		settings.GrantInterval = cmd.Duration("grant-interval")
	}
	if cmd.IsSet("api-url") {
		settings.APIURL = cmd.String("api-url")
	}
	if cmd.IsSet("ngrok") {
		settings.NgrokEnabled = cmd.Bool("ngrok")
	}
	if cmd.IsSet("ngrok-auth") {
		settings.NgrokAuthToken = cmd.String("ngrok-auth")
	}
	if cmd.IsSet("ngrok-domain") {
		settings.NgrokDomain = cmd.String("ngrok-domain")
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

func newLogger(settings *config.Settings) log15.Logger {
	return logging.New(logging.Options{
		Format: settings.LogFormat,
		Debug:  settings.Debug,
	}, "app", "tanks")
}

// services is everything a running server needs besides its transports
type services struct {
	settings *config.Settings
	logger   log15.Logger
	writer   *session.Writer
	sessions *session.Manager
	game     service.GameService
	close    func() error
}

// initializeServices wires storage, the session and ruleset managers, and the
// game service. Persisted matches are loaded before it returns.
func initializeServices(ctx context.Context, settings *config.Settings, logger log15.Logger) (*services, error) {
	rulesets, err := config.NewManager(settings.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create ruleset manager: %w", err)
	}

	store, closeStore, err := openStore(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to open match storage: %w", err)
	}

	writer := session.NewWriter(store, session.WithWriterLogger(logger))
	sessions := session.NewManager(
		session.WithPersistence(store),
		session.WithSink(writer),
		session.WithLogger(logger),
	)

	if err := sessions.LoadPersistedSessions(ctx); err != nil {
		logger.Warn("failed to load persisted matches", "err", err)
	}

	return &services{
		settings: settings,
		logger:   logger,
		writer:   writer,
		sessions: sessions,
		game:     service.NewGameService(sessions, rulesets, logger),
		close:    closeStore,
	}, nil
}

// openStore picks the persistence backend named by settings.Storage
func openStore(settings *config.Settings) (session.MatchPersistence, func() error, error) {
	switch settings.Storage {
	case config.StorageSQLite:
		if err := os.MkdirAll(settings.DataDir, 0755); err != nil {
			return nil, nil, err
		}
		db, err := session.OpenSQLite(filepath.Join(settings.DataDir, "matches.db"))
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	default:
		fp, err := session.NewFilePersistence(settings.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return fp, func() error { return nil }, nil
	}
}

// start runs the background workers on g until ctx is done
func (s *services) start(ctx context.Context, g *errgroup.Group, hub *websocket.Hub) {
	g.Go(func() error {
		return s.writer.Run(ctx)
	})
	g.Go(func() error {
		return s.sessions.RunCleanup(ctx, s.settings.CleanupInterval, s.settings.SessionTTL)
	})
	g.Go(func() error {
		return s.runGrants(ctx, hub)
	})
}

// shutdown checkpoints every in-memory match and releases storage
func (s *services) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := s.sessions.SaveAllSessions(ctx)
	return multierr.Append(err, s.close())
}

// runGrants hands out daily action points every GrantInterval
func (s *services) runGrants(ctx context.Context, hub *websocket.Hub) error {
	if s.settings.GrantInterval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(s.settings.GrantInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.grantAll(ctx, hub)
		}
	}
}

// grantAll grants every in-memory match its ruleset's daily amount and
// returns how many matches were granted
func (s *services) grantAll(ctx context.Context, hub *websocket.Hub) int {
	matches, err := s.game.ListMatches(ctx)
	if err != nil {
		s.logger.Error("failed to list matches for grant", "err", err)
		return 0
	}

	granted := 0
	for _, m := range matches {
		result, err := s.game.GrantActionPoints(ctx, m.ID, 0)
		if err != nil {
			s.logger.Warn("grant failed", "match", m.ID, "err", err)
			continue
		}
		granted++
		if hub != nil {
			hub.BroadcastEvent(m.ID, websocket.EventActionsGranted, result)
		}
	}

	if granted > 0 {
		s.logger.Info("granted daily action points", "matches", granted)
	}
	return granted
}

// newRouter mounts the API and an /mcp endpoint that proxies back into it
func newRouter(apiServer http.Handler, mcpClient *mcp.Client) http.Handler {
	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", apiServer)

	mainRouter.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := mcpClient.GetMCPServer().HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	})

	return mainRouter
}

// runServe starts the HTTP server with REST API, WebSocket hub, and /mcp endpoint.
// If ngrok is enabled it also provisions a public tunnel.
func runServe(ctx context.Context, cmd *cli.Command) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(settings)
	logger.Info("starting", "app", AppName, "version", Version, "storage", settings.Storage)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svcs, err := initializeServices(ctx, settings, logger)
	if err != nil {
		return err
	}

	hub := websocket.NewHub(logger)
	apiServer := api.NewServer(svcs.game, hub, logger)

	addr := settings.Addr()
	mcpClient := mcp.NewClient("http://" + addr)
	handler := newRouter(apiServer, mcpClient)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	svcs.start(gctx, g, hub)

	g.Go(func() error {
		return hub.Run(gctx)
	})

	g.Go(func() error {
		logger.Info("HTTP server listening",
			"addr", addr,
			"api", "http://"+addr+"/api",
			"ws", "ws://"+addr+"/ws?match=<match_id>",
			"mcp", "http://"+addr+"/mcp",
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if settings.NgrokEnabled {
		g.Go(func() error {
			return runNgrok(gctx, settings, handler, logger)
		})
	}

	err = g.Wait()
	if cerr := svcs.shutdown(); cerr != nil {
		logger.Error("shutdown checkpoint failed", "err", cerr)
	}
	logger.Info("server stopped")
	return err
}

// runNgrok serves handler through an ngrok tunnel until ctx is done. Tunnel
// failures are logged and never stop the local server.
func runNgrok(ctx context.Context, settings *config.Settings, handler http.Handler, logger log15.Logger) error {
	if settings.NgrokAuthToken == "" {
		logger.Warn("ngrok enabled but no auth token provided (use --ngrok-auth or NGROK_AUTHTOKEN)")
		return nil
	}

	var tunnel ngrokConfig.Tunnel
	if settings.NgrokDomain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(settings.NgrokDomain))
		logger.Info("using custom ngrok domain", "domain", settings.NgrokDomain)
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(settings.NgrokAuthToken))
	if err != nil {
		logger.Error("failed to start ngrok tunnel", "err", err)
		return nil
	}

	ngrokURL := tun.URL()
	logger.Info("ngrok tunnel established",
		"url", ngrokURL,
		"api", ngrokURL+"/api",
		"mcp", ngrokURL+"/mcp",
	)

	tunnelServer := &http.Server{Handler: handler}
	go func() {
		<-ctx.Done()
		tunnelServer.Close()
	}()

	if err := tunnelServer.Serve(tun); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("ngrok server error", "err", err)
	}
	logger.Info("ngrok tunnel closed")
	return nil
}

// apiAvailable reports whether an API server answers health checks at baseURL
func apiAvailable(ctx context.Context, baseURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// runMCP runs an MCP stdio server. It targets TANKS_API_URL when set, then a
// server already listening on the configured address, and otherwise starts an
// internal API bound to a random loopback port.
func runMCP(ctx context.Context, cmd *cli.Command) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(settings).New("mode", "mcp")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	baseURL := settings.APIURL
	if baseURL == "" {
		local := "http://" + settings.Addr()
		if apiAvailable(ctx, local) {
			logger.Info("using external API server", "url", local)
			baseURL = local
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	var svcs *services
	if baseURL == "" {
		svcs, err = initializeServices(ctx, settings, logger)
		if err != nil {
			return err
		}

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}
		baseURL = "http://" + listener.Addr().String()
		logger.Info("starting internal HTTP server", "url", baseURL)

		httpServer := &http.Server{Handler: api.NewServer(svcs.game, nil, logger)}
		svcs.start(gctx, g, nil)

		g.Go(func() error {
			if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("internal http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	mcpClient := mcp.NewClient(baseURL)
	g.Go(func() error {
		defer cancel()
		logger.Info("MCP stdio server ready", "api", baseURL)
		return server.ServeStdio(mcpClient.GetMCPServer())
	})

	err = g.Wait()
	if svcs != nil {
		if cerr := svcs.shutdown(); cerr != nil {
			logger.Error("shutdown checkpoint failed", "err", cerr)
		}
	}
	return err
}

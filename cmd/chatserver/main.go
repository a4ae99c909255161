package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/parroquiasbdebarinas-lang/Server/internal/ban"
	"github.com/parroquiasbdebarinas-lang/Server/internal/chat"
	"github.com/parroquiasbdebarinas-lang/Server/internal/history"
	"github.com/parroquiasbdebarinas-lang/Server/internal/messaging"
	"github.com/parroquiasbdebarinas-lang/Server/internal/metrics"
	"github.com/parroquiasbdebarinas-lang/Server/internal/moderation"
	"github.com/parroquiasbdebarinas-lang/Server/internal/postgres"
	"github.com/parroquiasbdebarinas-lang/Server/internal/protocol"
	"github.com/parroquiasbdebarinas-lang/Server/internal/report"
	"github.com/parroquiasbdebarinas-lang/Server/internal/ws"
)

const (
	// retainMessages is the history retention bound. The oldest messages
	// beyond it are trimmed after every append.
	defaultRetainMessages = 500

	// recentWindow is how many of the newest messages a fresh connection
	// receives on admission.
	defaultRecentWindow = 50

	handlerTimeout = 5 * time.Second
)

func main() {
	config := ws.DefaultServerConfig()

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		config.ListenAddr = addr
	}
	if v := os.Getenv("WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.WorkerPoolSize = n
		}
	}
	if v := os.Getenv("MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.MaxConnections = n
		}
	}
	if v := os.Getenv("READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.ReadTimeout = d
		}
	}
	if v := os.Getenv("WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.WriteTimeout = d
		}
	}
	config.AdminToken = os.Getenv("ADMIN_TOKEN")
	if v := os.Getenv("TRUST_PROXY"); v != "" {
		config.TrustProxy = v == "1" || strings.EqualFold(v, "true")
	}

	retain := defaultRetainMessages
	if v := os.Getenv("MAX_HISTORY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			retain = n
		}
	}
	recentWindow := defaultRecentWindow
	if v := os.Getenv("RECENT_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			recentWindow = n
		}
	}

	// --- NATS ---
	natsConfig := messaging.DefaultNATSConfig()
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		natsConfig.URL = natsURL
	}
	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	// --- Redis ---
	redisAddr := "localhost:6379"
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		redisAddr = v
	}
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	{
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisClient.Ping(ctx).Err()
		cancel()
		if err != nil {
			log.Fatalf("failed to connect to Redis: %v", err)
		}
	}
	banStore := ban.NewStore(redisClient)

	// --- PostgreSQL ---
	dsn := "postgres://localhost:5432/chat?sslmode=disable"
	if v := os.Getenv("DATABASE_URL"); v != "" {
		dsn = v
	}
	db, err := postgres.Open(dsn)
	if err != nil {
		log.Fatalf("failed to connect to PostgreSQL: %v", err)
	}
	historyStore := history.NewStore(db)
	reportStore := report.NewStore(db)

	gate := chat.NewGate(banStore)
	filter := moderation.NewFilter()
	pipeline := chat.NewPipeline(gate, filter, historyStore, natsClient, retain)

	if config.AdminToken == "" {
		log.Printf("ADMIN_TOKEN not set: admin commands are disabled")
	}

	log.Printf("chat server starting")
	log.Printf("  listen_addr:     %s", config.ListenAddr)
	log.Printf("  worker_pool:     %d", config.WorkerPoolSize)
	log.Printf("  max_connections: %d", config.MaxConnections)
	log.Printf("  read_timeout:    %s", config.ReadTimeout)
	log.Printf("  write_timeout:   %s", config.WriteTimeout)
	log.Printf("  trust_proxy:     %v", config.TrustProxy)
	log.Printf("  max_history:     %d", retain)
	log.Printf("  recent_window:   %d", recentWindow)
	log.Printf("  nats_url:        %s", natsConfig.URL)
	log.Printf("  redis_addr:      %s", redisAddr)

	dispatcher := ws.NewMessageDispatcher()

	admit := func(ctx context.Context, addr string) (bool, string, error) {
		decision, err := gate.Admit(ctx, addr)
		if err != nil {
			return false, "", err
		}
		return decision.Allowed, decision.Notice, nil
	}

	server := ws.NewServer(config, admit, dispatcher.Dispatch)

	controller := moderation.NewController(historyStore, banStore, reportStore, natsClient, server, retain)

	// NATS delivery: the stores and the controller publish to the bus; this
	// is where bus events become socket writes.
	err = natsClient.SubscribeBroadcasts(
		func(payload []byte) {
			start := time.Now()
			server.Connections().Broadcast(payload)
			metrics.BroadcastLatency.Observe(time.Since(start).Seconds())
		},
		func(payload []byte) {
			server.Connections().BroadcastRole(ws.RoleAdmin, payload)
		},
	)
	if err != nil {
		log.Fatalf("failed to subscribe to broadcast subjects: %v", err)
	}

	// Fresh connections get the newest messages, sanitized, plus a flag
	// telling them whether older history exists.
	server.SetOnConnect(func(conn *ws.Connection) {
		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()

		msgs, hasMore, err := historyStore.Recent(ctx, recentWindow)
		if err != nil {
			log.Printf("recent history for %s: %v", conn.ID, err)
			return
		}
		payload, err := protocol.NewServerMessage(protocol.TypeRecentHistory, protocol.RecentHistoryMsg{
			Messages: chat.SanitizeAll(msgs),
			HasMore:  hasMore,
		})
		if err != nil {
			log.Printf("encode recent history: %v", err)
			return
		}
		if err := conn.WriteMessage(payload); err != nil {
			log.Printf("send recent history to %s: %v", conn.ID, err)
		}
	})

	// -----------------------------------------------------------------------
	// chat message — run the full ingest pipeline
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeChatMessage, func(conn *ws.Connection, msg interface{}) {
		m, ok := msg.(protocol.ChatMessageMsg)
		if !ok {
			return
		}
		if strings.TrimSpace(m.Text) == "" {
			return
		}
		user := m.User
		if strings.TrimSpace(user) == "" {
			user = "Anónimo"
		}

		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()

		sender := &wsSession{conn: conn, server: server}
		if err := pipeline.Ingest(ctx, sender, user, m.Text); err != nil {
			log.Printf("ingest from %s: %v", conn.RemoteAddr, err)
		}
	})

	// -----------------------------------------------------------------------
	// request full history — entire sanitized log, oldest-first
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeRequestFullHistory, func(conn *ws.Connection, msg interface{}) {
		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()

		msgs, err := historyStore.All(ctx)
		if err != nil {
			log.Printf("full history for %s: %v", conn.ID, err)
			return
		}
		payload, err := protocol.NewServerMessage(protocol.TypeFullHistory, protocol.FullHistoryMsg{
			Messages: chat.SanitizeAll(msgs),
		})
		if err != nil {
			log.Printf("encode full history: %v", err)
			return
		}
		if err := conn.WriteMessage(payload); err != nil {
			log.Printf("send full history to %s: %v", conn.ID, err)
		}
	})

	// -----------------------------------------------------------------------
	// report message — snapshot the offending message for the admins
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeReportMessage, func(conn *ws.Connection, msg interface{}) {
		m, ok := msg.(protocol.ReportMessageMsg)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()

		if err := controller.FileReport(ctx, m.ID, m.Reason, conn.RemoteAddr); err != nil {
			log.Printf("file report from %s: %v", conn.RemoteAddr, err)
		}
	})

	// -----------------------------------------------------------------------
	// admin request reports — full report queue, newest-first
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeAdminRequestReports, func(conn *ws.Connection, msg interface{}) {
		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()

		reports, err := reportStore.All(ctx)
		if err != nil {
			log.Printf("all reports for %s: %v", conn.ID, err)
			return
		}
		if reports == nil {
			reports = []report.Report{}
		}
		payload, err := protocol.NewServerMessage(protocol.TypeAllReports, protocol.AllReportsMsg{
			Reports: reports,
		})
		if err != nil {
			log.Printf("encode reports: %v", err)
			return
		}
		if err := conn.WriteMessage(payload); err != nil {
			log.Printf("send reports to %s: %v", conn.ID, err)
		}
	})

	// -----------------------------------------------------------------------
	// admin clear chat
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeAdminClearChat, func(conn *ws.Connection, msg interface{}) {
		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()

		if err := controller.ClearChat(ctx); err != nil {
			log.Printf("clear chat: %v", err)
		}
	})

	// -----------------------------------------------------------------------
	// admin delete message
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeAdminDeleteMessage, func(conn *ws.Connection, msg interface{}) {
		m, ok := msg.(protocol.AdminDeleteMessageMsg)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()

		if err := controller.DeleteMessage(ctx, m.ID); err != nil {
			log.Printf("delete message %s: %v", m.ID, err)
		}
	})

	// -----------------------------------------------------------------------
	// admin ban user — permanent ban by message reference
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeAdminBanUser, func(conn *ws.Connection, msg interface{}) {
		m, ok := msg.(protocol.AdminBanUserMsg)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()

		if err := controller.BanUser(ctx, m.MessageID(), m.Reason); err != nil {
			log.Printf("ban user: %v", err)
		}
	})

	// -----------------------------------------------------------------------
	// admin temp ban — timed suspension by message reference
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeAdminTempBan, func(conn *ws.Connection, msg interface{}) {
		m, ok := msg.(protocol.AdminTempBanMsg)
		if !ok {
			return
		}
		reason := m.Reason
		if reason == "" {
			reason = moderation.DefaultBanReason
		}
		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()

		if err := controller.TempBanUser(ctx, m.MsgID, m.Time, m.Unit, reason); err != nil {
			log.Printf("temp ban: %v", err)
		}
	})

	// -----------------------------------------------------------------------
	// admin system message — operator notice under the SISTEMA name
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeAdminSystemMessage, func(conn *ws.Connection, msg interface{}) {
		m, ok := msg.(protocol.AdminSystemMessageMsg)
		if !ok {
			return
		}
		if strings.TrimSpace(m.Text) == "" {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()

		if err := controller.SystemMessage(ctx, m.Text); err != nil {
			log.Printf("system message: %v", err)
		}
	})

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		natsClient.Close()
		if err := server.Shutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		if err := redisClient.Close(); err != nil {
			log.Printf("redis close error: %v", err)
		}
		if err := db.Close(); err != nil {
			log.Printf("postgres close error: %v", err)
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// wsSession adapts a live WebSocket connection to the pipeline's view of a
// sender.
type wsSession struct {
	conn   *ws.Connection
	server *ws.Server
}

func (s *wsSession) Addr() string { return s.conn.RemoteAddr }

func (s *wsSession) Send(payload []byte) error { return s.conn.WriteMessage(payload) }

func (s *wsSession) Terminate() { s.server.RemoveConnection(s.conn) }

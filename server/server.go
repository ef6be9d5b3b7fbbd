// Package server assembles the mailsense HTTP server: stores, cache,
// tools, the synthesis chain, and the orchestrator, wired per the runtime
// profile and mounted on an echo instance.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/mailsense/internal/profile"
	"github.com/hrygo/mailsense/plugin/ai/actions"
	"github.com/hrygo/mailsense/plugin/ai/agent"
	"github.com/hrygo/mailsense/plugin/ai/agent/tools"
	aicache "github.com/hrygo/mailsense/plugin/ai/cache"
	"github.com/hrygo/mailsense/plugin/ai/memory"
	"github.com/hrygo/mailsense/plugin/ai/metrics"
	"github.com/hrygo/mailsense/plugin/ai/router"
	"github.com/hrygo/mailsense/plugin/ai/session"
	serverai "github.com/hrygo/mailsense/server/ai"
	"github.com/hrygo/mailsense/server/retrieval"
	apiv1 "github.com/hrygo/mailsense/server/router/api/v1"
	"github.com/hrygo/mailsense/server/runner/embedding"
	"github.com/hrygo/mailsense/store"
	storecache "github.com/hrygo/mailsense/store/cache"
)

const sessionSweepInterval = 10 * time.Minute

// Server owns the echo instance and every long-lived component behind it.
type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	cache      *aicache.Service
	metrics    *metrics.Service
	sessions   *session.Service
	embedder   *serverai.Embedder

	backgroundCtx    context.Context
	backgroundCancel context.CancelFunc
}

// NewServer wires the full component graph. Providers that are not
// configured are left out of the chain; the template synthesizer keeps
// the chain non-empty regardless.
func NewServer(profile *profile.Profile, st *store.Store) (*Server, error) {
	echoServer := echo.New()
	echoServer.Debug = profile.IsDev()
	echoServer.HideBanner = true
	echoServer.HidePort = false
	echoServer.Use(echomw.Recover())

	metricsService := metrics.NewService(st, metrics.DefaultPersisterConfig())

	var shared aicache.SharedTier
	if profile.CacheRedisAddr != "" {
		redisConfig := storecache.DefaultRedisConfig()
		redisConfig.Addr = profile.CacheRedisAddr
		redisCache, err := storecache.NewRedisCache(redisConfig)
		if err != nil {
			// Redis down at boot degrades to the local tier, same as Redis
			// down at runtime.
			slog.Warn("redis unavailable, cache runs memory-only", slog.String("error", err.Error()))
		} else {
			shared = redisCache
		}
	}
	cacheConfig := aicache.DefaultServiceConfig()
	cacheConfig.TTLOverrides = map[string]time.Duration{
		aicache.KindDomainRisk:  profile.CacheDomainRiskTTL,
		aicache.KindChatSession: profile.CacheSessionTTL,
		aicache.KindToolResult:  profile.CacheToolResultTTL,
	}
	cacheService := aicache.NewService(cacheConfig, shared, metricsService)

	memoryService := memory.NewService(st)
	sessionService := session.NewService(st, cacheService, profile.CacheSessionTTL)

	registry := tools.NewRegistry(profile.DisabledTools())
	registry.Register(tools.NewEmailSearchTool(st))
	registry.Register(tools.NewThreadDetailTool(st))
	registry.Register(tools.NewApplicationsLookupTool(st))
	registry.Register(tools.NewSecurityScanTool(st, cacheService, memoryService))
	registry.Register(tools.NewProfileStatsTool(st))
	registry.Register(tools.NewCleanPromotionsTool(st, memoryService))
	dispatcher := tools.NewDispatcher(registry, metricsService)

	providers := map[string]*serverai.Provider{}
	if primary, err := serverai.NewProvider(&serverai.Config{
		Name:           "primary",
		BaseURL:        profile.AIPrimaryBaseURL,
		APIKey:         profile.AIPrimaryAPIKey,
		ChatModel:      profile.AIPrimaryModel,
		EmbeddingModel: profile.AIPrimaryModel,
	}); err == nil {
		providers["primary"] = primary
	}
	if secondary, err := serverai.NewProvider(&serverai.Config{
		Name:      "secondary",
		BaseURL:   profile.AISecondaryBaseURL,
		APIKey:    profile.AISecondaryAPIKey,
		ChatModel: profile.AISecondaryModel,
	}); err == nil {
		providers["secondary"] = secondary
	}

	var synthesizers []serverai.Synthesizer
	for _, name := range profile.ChainOrder() {
		switch name {
		case "template":
			synthesizers = append(synthesizers, serverai.NewTemplateSynthesizer())
		default:
			if p, ok := providers[name]; ok {
				synthesizers = append(synthesizers, serverai.NewProviderSynthesizer(p))
			}
		}
	}
	if len(synthesizers) == 0 {
		return nil, fmt.Errorf("synthesis chain is empty; check %q", profile.AIChainOrder)
	}
	chain := serverai.NewChain(synthesizers, profile.AICallTimeout)

	var queryEmbedder retrieval.Embedder
	var embedder *serverai.Embedder
	if primary, ok := providers["primary"]; ok {
		queryEmbedder = primary
		embedder = serverai.NewEmbedder(primary, st)
	}
	retriever := retrieval.NewRetriever(st, st, queryEmbedder, retrieval.Options{
		WindowDays:  profile.RetrievalWindowDays,
		MaxContexts: profile.RetrievalMaxContexts,
	})

	actionService := actions.NewService(st, st)

	orchestrator := agent.NewOrchestrator(agent.Config{
		Classifier:        router.NewRuleClassifier(),
		Sessions:          sessionService,
		Memory:            memoryService,
		Dispatcher:        dispatcher,
		Retriever:         retriever,
		Chain:             chain,
		Actions:           actionService,
		Metrics:           metricsService,
		DefaultWindowDays: profile.RetrievalWindowDays,
	})

	checkers := map[string]apiv1.HealthChecker{
		"search": &dbChecker{db: st.GetDriver().GetDB()},
	}
	for name, p := range providers {
		checkers["llm_"+name] = p
	}

	apiService := &apiv1.APIV1Service{
		Profile:      profile,
		Runner:       orchestrator,
		Registry:     registry,
		Actions:      actionService,
		Checkers:     checkers,
		CacheEnabled: true,
	}
	apiService.Register(echoServer)

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	s := &Server{
		Profile:          profile,
		Store:            st,
		echoServer:       echoServer,
		cache:            cacheService,
		metrics:          metricsService,
		sessions:         sessionService,
		embedder:         embedder,
		backgroundCtx:    backgroundCtx,
		backgroundCancel: backgroundCancel,
	}
	return s, nil
}

// Start launches the background runners and begins serving. It returns
// once the listener stops.
func (s *Server) Start(ctx context.Context) error {
	go s.sessions.RunSweeper(s.backgroundCtx, sessionSweepInterval)
	if s.embedder != nil {
		go embedding.NewRunner(s.embedder).Run(s.backgroundCtx)
	}

	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	return s.echoServer.Start(address)
}

// Shutdown drains the listener and closes every component that holds a
// connection or a goroutine.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	s.backgroundCancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shut down server", slog.String("error", err.Error()))
	}

	s.metrics.Close()
	s.cache.Close()
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close store", slog.String("error", err.Error()))
	}

	slog.Info("mailsense stopped properly")
}

// dbChecker probes the backing database for the health endpoint.
type dbChecker struct {
	db *sql.DB
}

func (c *dbChecker) Validate(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

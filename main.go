package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/missastane/chat-engine/internal/chat"
	"github.com/missastane/chat-engine/internal/config"
	"github.com/missastane/chat-engine/internal/db"
	"github.com/missastane/chat-engine/internal/handlers"
	"github.com/missastane/chat-engine/internal/middleware"
	"github.com/missastane/chat-engine/internal/notify"
	"github.com/missastane/chat-engine/internal/observability"
	"github.com/missastane/chat-engine/internal/presence"
	"github.com/missastane/chat-engine/internal/rabbitmq"
	"github.com/missastane/chat-engine/internal/repositories"
	"github.com/missastane/chat-engine/internal/roles"
	"github.com/missastane/chat-engine/internal/storage"
	"github.com/missastane/chat-engine/internal/telemetry"
	"github.com/missastane/chat-engine/internal/ws"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.OTLPEndpoint, cfg.AuditServiceName, cfg.Environment)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(ctx); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("redis unreachable, presence and role checks degraded: %v", err)
	}

	store, err := storage.NewLocalStore(cfg.StorageDir)
	if err != nil {
		log.Fatalf("failed to set up file storage: %v", err)
	}

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.EventExchange)
	defer auditPublisher.Close()
	log.Printf("audit publisher mode=%s", auditPublisher.Mode())
	audit := telemetry.NewAuditEmitter(auditPublisher, cfg.AuditRoutingKey, cfg.AuditServiceName, cfg.Environment)

	if eventPublisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.EventExchange); err != nil {
		log.Printf("event mirror disabled: %v", err)
	} else {
		observability.SetPublisher(eventPublisher)
		defer eventPublisher.Close()
	}

	conversationRepo := repositories.NewConversationRepo(database)
	membershipRepo := repositories.NewMembershipRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	statusRepo := repositories.NewStatusRepo(database)
	groupRepo := repositories.NewGroupRepo(database)
	joinRequestRepo := repositories.NewJoinRequestRepo(database)
	extrasRepo := repositories.NewExtrasRepo(database)

	hub := ws.NewHub()
	dispatcher := notify.NewDispatcher(hub)
	tracker := presence.NewTracker(redisClient)
	roleDirectory := roles.NewRedisDirectory(redisClient)

	sessionService := chat.NewSessionService(
		conversationRepo, membershipRepo, messageRepo, statusRepo,
		groupRepo, extrasRepo, roleDirectory, store, dispatcher,
	)
	groupService := chat.NewGroupService(
		groupRepo, membershipRepo, conversationRepo, joinRequestRepo, store, dispatcher,
	)

	conversationHandler := handlers.NewConversationHandler(sessionService)
	messageHandler := handlers.NewMessageHandler(sessionService, store, audit)
	groupHandler := handlers.NewGroupHandler(groupService, store, audit)
	conversationWS := ws.NewConversationWebSocketHandler(hub, membershipRepo, tracker)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.AuditServiceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterDebugRoutes(router, audit, hub, cfg.DebugRoutes)

	identity := middleware.Identity()

	router.POST("/conversations/direct", identity, conversationHandler.StartDirect)
	router.POST("/conversations/:conversation_id/flags/:flag", identity, conversationHandler.ToggleFlag)
	router.GET("/conversations/:conversation_id/last-seen", identity, conversationHandler.GetLastSeen)
	router.PUT("/conversations/:conversation_id/last-seen", identity, conversationHandler.PutLastSeen)
	router.POST("/blocks", identity, conversationHandler.Block)
	router.DELETE("/blocks", identity, conversationHandler.Unblock)

	router.GET("/conversations/:conversation_id/messages", identity, messageHandler.GetMessages)
	router.POST("/conversations/:conversation_id/messages", identity, messageHandler.PostMessage)
	router.GET("/conversations/:conversation_id/search", identity, messageHandler.SearchMessages)
	router.POST("/conversations/:conversation_id/read", identity, messageHandler.MarkRead)
	router.POST("/conversations/:conversation_id/messages/:message_id/pin", identity, messageHandler.TogglePin)
	router.GET("/conversations/:conversation_id/pins", identity, messageHandler.ListPins)
	router.POST("/messages/:message_id/private-reply", identity, messageHandler.PostPrivateReply)
	router.POST("/messages/:message_id/forward", identity, messageHandler.PostForward)
	router.PATCH("/messages/:message_id", identity, messageHandler.UpdateMessage)
	router.DELETE("/messages/:message_id/all", identity, messageHandler.DeleteForAll)
	router.DELETE("/messages/:message_id/me", identity, messageHandler.DeleteForMe)
	router.POST("/messages/:message_id/reactions", identity, messageHandler.ToggleReaction)
	router.GET("/messages/:message_id/reactions", identity, messageHandler.ListReactions)
	router.POST("/messages/:message_id/favorite", identity, messageHandler.ToggleFavorite)
	router.GET("/favorites", identity, messageHandler.ListFavorites)

	router.POST("/groups", identity, groupHandler.CreateGroup)
	router.GET("/groups/:group_id", identity, groupHandler.GetGroup)
	router.GET("/groups/:group_id/members", identity, groupHandler.ListMembers)
	router.POST("/groups/:group_id/members", identity, groupHandler.AddMembers)
	router.DELETE("/groups/:group_id/members/:user_id", identity, groupHandler.RemoveMember)
	router.PATCH("/groups/:group_id/members/:user_id/role", identity, groupHandler.UpdateMemberRole)
	router.POST("/groups/:group_id/join-requests", identity, groupHandler.RequestJoin)
	router.GET("/groups/:group_id/join-requests", identity, groupHandler.ListPendingRequests)
	router.POST("/join-requests/:request_id/respond", identity, groupHandler.RespondToJoinRequest)
	router.POST("/groups/:group_id/leave", identity, groupHandler.Leave)
	router.POST("/groups/:group_id/transfer-ownership", identity, groupHandler.TransferOwnership)
	router.PATCH("/groups/:group_id", identity, groupHandler.UpdateGroup)
	router.PUT("/groups/:group_id/avatar", identity, groupHandler.UpdateAvatar)
	router.DELETE("/groups/:group_id/avatar", identity, groupHandler.RemoveAvatar)
	router.DELETE("/groups/:group_id", identity, groupHandler.DeleteGroup)

	router.GET("/ws/conversations/:conversation_id", conversationWS.Handle)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"skillswap-service/internal/db"
	"skillswap-service/internal/handlers"
	"skillswap-service/internal/middleware"
	"skillswap-service/internal/observability"
	"skillswap-service/internal/rabbitmq"
	"skillswap-service/internal/realtime"
	"skillswap-service/internal/repositories"
	"skillswap-service/internal/telemetry"
	"skillswap-service/internal/ws"
)

func main() {
	ctx := context.Background()

	shutdownTracing, err := telemetry.SetupTracing(ctx, "skillswap-service", getEnv("ENVIRONMENT", "dev"), getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""))
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(ctx); err != nil {
			log.Printf("tracing shutdown failed: %v", err)
		}
	}()

	database, err := db.Connect()
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	amqpURL := getEnv("AMQP_URL", "")
	eventsPublisher, err := observability.NewAMQPPublisher(amqpURL, getEnv("AMQP_EVENTS_EXCHANGE", "ws_events"))
	if err != nil {
		log.Printf("ws events publisher disabled: %v", err)
	} else {
		observability.SetPublisher(eventsPublisher)
		defer eventsPublisher.Close()
	}

	auditPublisher := rabbitmq.NewPublisher(amqpURL, getEnv("AMQP_AUDIT_EXCHANGE", "audit"))
	defer auditPublisher.Close()
	log.Printf("audit publisher mode=%s", rabbitmq.PublisherMode(auditPublisher))
	auditEmitter := telemetry.NewAuditEmitter(auditPublisher, "audit_log.skillswap", "skillswap-service", getEnv("ENVIRONMENT", "dev"))

	messageRepo := repositories.NewMessageRepo(database)
	notificationRepo := repositories.NewNotificationRepo(database)
	userRepo := repositories.NewUserRepo(database)
	skillRepo := repositories.NewSkillRepo(database)

	presence := realtime.NewPresenceRegistry()
	rooms := realtime.NewRoomManager()
	unread := realtime.NewUnreadReconciler(messageRepo, notificationRepo, rooms)
	engine := realtime.NewEngine(messageRepo, notificationRepo, userRepo, skillRepo, presence, rooms, unread)
	eventRouter := realtime.NewRouter(presence, rooms, engine, unread, userRepo, messageRepo, notificationRepo)
	gateway := ws.NewGateway(eventRouter)

	notificationHandler := handlers.NewNotificationHandler(notificationRepo, engine, unread, auditEmitter)
	messageHandler := handlers.NewMessageHandler(messageRepo, engine, unread)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("skillswap-service"))
	router.Use(observability.HTTPMetricsMiddleware())

	identity := middleware.Identity()

	router.POST("/notifications", identity, notificationHandler.CreateNotification)
	router.POST("/notifications/bulk", identity, notificationHandler.CreateNotifications)
	router.GET("/users/:user_id/notifications", identity, notificationHandler.ListNotifications)
	router.PATCH("/notifications/:notification_id/read", identity, notificationHandler.MarkRead)
	router.PATCH("/users/:user_id/notifications/read-all", identity, notificationHandler.MarkAllRead)
	router.DELETE("/notifications/:notification_id", identity, notificationHandler.DeleteNotification)
	router.GET("/users/:user_id/notifications/unread-count", identity, notificationHandler.GetUnreadCount)

	router.GET("/conversations/:conversation_id/messages", identity, messageHandler.ListConversationMessages)
	router.POST("/conversations/:conversation_id/messages", identity, messageHandler.SendMessage)
	router.PATCH("/conversations/:conversation_id/read", identity, messageHandler.MarkConversationRead)
	router.PATCH("/messages/:message_id/read", identity, messageHandler.MarkMessageRead)
	router.DELETE("/messages/:message_id", identity, messageHandler.DeleteMessage)

	router.GET("/ws", gateway.Handle)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterDebugRoutes(router, auditEmitter, getEnv("DEBUG_ROUTES", "") == "true")

	port := getEnv("PORT", "8086")
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/service"
	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/storage"
	wsock "github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/ws"
)

// Server wires the chat core's HTTP surface.
type Server struct {
	app   *fiber.App
	convs *service.ConversationService
	msgs  *service.MessageService
	blobs *storage.S3Store
	log   *zap.SugaredLogger
}

type Options struct {
	JWTSecret   string
	RateLimiter *RateLimiter
	Blobs       *storage.S3Store
	WSHandler   *wsock.Handler
}

func NewServer(convs *service.ConversationService, msgs *service.MessageService, opts Options, log *zap.SugaredLogger) *Server {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	s := &Server{app: app, convs: convs, msgs: msgs, blobs: opts.Blobs, log: log}

	app.Use(Recovery(log))
	app.Use(RequestLogger(log))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	chat := app.Group("/api/chat", JWTAuth(opts.JWTSecret))
	if opts.RateLimiter != nil {
		chat.Use(opts.RateLimiter.Middleware())
	}

	chat.Post("/conversations", RequireAdmin(), s.createConversation)
	chat.Get("/conversations", s.listConversations)
	// search route before :id routes to avoid capture
	chat.Get("/conversations/search/:code", RequireAdmin(), s.searchByCode)
	chat.Get("/conversations/:id/messages", s.getMessages)
	chat.Post("/conversations/:id/messages", s.sendMessage)
	chat.Post("/conversations/:id/upload", s.uploadFile)
	chat.Put("/conversations/:id/read", s.markRead)
	chat.Put("/conversations/:id/archive", s.archiveConversation)
	chat.Put("/conversations/:id/close", RequireAdmin(), s.closeConversation)
	chat.Put("/conversations/:id/complete", s.completeTask)
	chat.Put("/conversations/:id/agent", RequireAdmin(), s.assignAgent)

	if opts.WSHandler != nil {
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws", websocket.New(opts.WSHandler.Serve))
	}

	return s
}

func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

package api

import (
	"errors"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/apperr"
	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/service"
)

// httpError maps the app error taxonomy to HTTP responses.
func httpError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "introuvable"})
	case errors.Is(err, apperr.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"message": "acces non autorise"})
	case errors.Is(err, apperr.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	case errors.Is(err, apperr.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"message": "conflit"})
	case errors.Is(err, apperr.ErrUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"message": "service indisponible"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": err.Error()})
	}
}

type createConversationReq struct {
	TaskRequestID string `json:"taskRequestId"`
}

// POST /api/chat/conversations
// Issued by the task workflow when a request is approved. Idempotent:
// an existing conversation for the task is returned unchanged.
func (s *Server) createConversation(c *fiber.Ctx) error {
	var req createConversationReq
	if err := c.BodyParser(&req); err != nil || req.TaskRequestID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "taskRequestId requis"})
	}
	conv, created, err := s.convs.CreateOrGet(c.Context(), req.TaskRequestID, userID(c), userRole(c))
	if err != nil {
		return httpError(c, err)
	}
	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(conv)
}

// GET /api/chat/conversations
func (s *Server) listConversations(c *fiber.Ctx) error {
	convs, err := s.convs.ListForUser(c.Context(), userID(c))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(convs)
}

// GET /api/chat/conversations/:id/messages?limit=50&before=<RFC3339>
func (s *Server) getMessages(c *fiber.Ctx) error {
	limit := int64(c.QueryInt("limit", 50))
	var before time.Time
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "parametre before invalide"})
		}
		before = t
	}
	msgs, err := s.msgs.GetMessages(c.Context(), c.Params("id"), userID(c), limit, before)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(msgs)
}

// POST /api/chat/conversations/:id/messages
func (s *Server) sendMessage(c *fiber.Ctx) error {
	var in service.SendMessageInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "payload invalide"})
	}
	msg, err := s.msgs.Send(c.Context(), c.Params("id"), userID(c), in)
	if err != nil {
		return httpError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// POST /api/chat/conversations/:id/upload
// Stores the attachment and returns its metadata; the client follows up
// with a normal send carrying that metadata. Upload failure creates no
// message and mutates nothing.
func (s *Server) uploadFile(c *fiber.Ctx) error {
	if s.blobs == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"message": "stockage indisponible"})
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "aucun fichier fourni"})
	}
	if fh.Size > 50*1024*1024 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "fichier trop volumineux"})
	}
	f, err := fh.Open()
	if err != nil {
		return httpError(c, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return httpError(c, err)
	}
	uploaded, err := s.blobs.Upload(c.Context(), fh.Filename, fh.Header.Get("Content-Type"), data)
	if err != nil {
		s.log.Errorw("upload attachment", "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"message": "echec de l'upload"})
	}
	return c.JSON(fiber.Map{"success": true, "file": uploaded})
}

// PUT /api/chat/conversations/:id/read
func (s *Server) markRead(c *fiber.Ctx) error {
	if err := s.msgs.MarkAsRead(c.Context(), c.Params("id"), userID(c)); err != nil {
		return httpError(c, err)
	}
	return c.JSON(fiber.Map{"message": "messages marques comme lus"})
}

// PUT /api/chat/conversations/:id/archive
func (s *Server) archiveConversation(c *fiber.Ctx) error {
	if err := s.convs.Archive(c.Context(), c.Params("id")); err != nil {
		return httpError(c, err)
	}
	return c.JSON(fiber.Map{"message": "conversation archivee"})
}

type closeReq struct {
	Reason string `json:"reason"`
}

// PUT /api/chat/conversations/:id/close
func (s *Server) closeConversation(c *fiber.Ctx) error {
	var req closeReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "payload invalide"})
	}
	if err := s.convs.Close(c.Context(), c.Params("id"), userID(c), req.Reason); err != nil {
		return httpError(c, err)
	}
	return c.JSON(fiber.Map{"message": "conversation fermee"})
}

type completeReq struct {
	Action string `json:"action"`
}

// PUT /api/chat/conversations/:id/complete
func (s *Server) completeTask(c *fiber.Ctx) error {
	var req completeReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "payload invalide"})
	}
	if err := s.convs.CompleteTask(c.Context(), c.Params("id"), userID(c), req.Action); err != nil {
		return httpError(c, err)
	}
	return c.JSON(fiber.Map{"message": "tache terminee"})
}

type assignAgentReq struct {
	Name string `json:"name"`
}

// PUT /api/chat/conversations/:id/agent
func (s *Server) assignAgent(c *fiber.Ctx) error {
	var req assignAgentReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "payload invalide"})
	}
	if err := s.convs.AssignAgent(c.Context(), c.Params("id"), req.Name); err != nil {
		return httpError(c, err)
	}
	return c.JSON(fiber.Map{"message": "agent assigne"})
}

// GET /api/chat/conversations/search/:code
func (s *Server) searchByCode(c *fiber.Ctx) error {
	res, err := s.convs.LookupByCode(c.Context(), c.Params("code"))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(res)
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/auth"
	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/models"
	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/repository"
	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/service"
)

const testSecret = "test-secret"

type testServer struct {
	srv   *Server
	convs *repository.MemoryConversations
	msgs  *repository.MemoryMessages
	tasks *repository.MemoryTasks
}

// nopFanout satisfies service.Fanout without a live hub.
type nopFanout struct{}

func (nopFanout) BroadcastToConversation(string, string, interface{}) {}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	convRepo := repository.NewMemoryConversations()
	msgRepo := repository.NewMemoryMessages()
	tasks := repository.NewMemoryTasks()
	log := zap.NewNop().Sugar()
	convs := service.NewConversationService(convRepo, msgRepo, tasks, nopFanout{}, nil, log)
	msgs := service.NewMessageService(convRepo, msgRepo, nopFanout{}, nil, log)
	srv := NewServer(convs, msgs, Options{JWTSecret: testSecret}, log)
	return &testServer{srv: srv, convs: convRepo, msgs: msgRepo, tasks: tasks}
}

func (s *testServer) request(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.srv.App().Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func signed(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := auth.SignToken(testSecret, userID, role)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	resp := s.request(t, http.MethodGet, "/api/chat/conversations", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", resp.StatusCode)
	}

	resp = s.request(t, http.MethodGet, "/api/chat/conversations", "not-a-jwt", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("garbage token status = %d, want 401", resp.StatusCode)
	}
}

func TestCreateConversationIdempotent(t *testing.T) {
	s := newTestServer(t)
	s.tasks.Put(&models.TaskRequest{ID: "task1", Title: "Plomberie", UserID: "client1"})
	admin := signed(t, "admin1", models.RoleAdmin)

	resp := s.request(t, http.MethodPost, "/api/chat/conversations", admin,
		map[string]string{"taskRequestId": "task1"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first create status = %d, want 201", resp.StatusCode)
	}
	var first models.Conversation
	decodeJSON(t, resp, &first)

	resp = s.request(t, http.MethodPost, "/api/chat/conversations", admin,
		map[string]string{"taskRequestId": "task1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second create status = %d, want 200", resp.StatusCode)
	}
	var second models.Conversation
	decodeJSON(t, resp, &second)
	if second.ID != first.ID {
		t.Errorf("ids differ: %s vs %s", second.ID, first.ID)
	}
}

func TestCreateConversationRequiresAdmin(t *testing.T) {
	s := newTestServer(t)
	user := signed(t, "client1", models.RoleUser)

	resp := s.request(t, http.MethodPost, "/api/chat/conversations", user,
		map[string]string{"taskRequestId": "task1"})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestMessageFlow(t *testing.T) {
	s := newTestServer(t)
	s.tasks.Put(&models.TaskRequest{ID: "task1", Title: "Bricolage", UserID: "client1"})
	admin := signed(t, "admin1", models.RoleAdmin)
	client := signed(t, "client1", models.RoleUser)

	resp := s.request(t, http.MethodPost, "/api/chat/conversations", admin,
		map[string]string{"taskRequestId": "task1"})
	var conv models.Conversation
	decodeJSON(t, resp, &conv)

	resp = s.request(t, http.MethodPost, "/api/chat/conversations/"+conv.ID+"/messages", client,
		map[string]string{"content": "Bonjour"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send status = %d, want 201", resp.StatusCode)
	}
	var sent models.Message
	decodeJSON(t, resp, &sent)
	if sent.Content != "Bonjour" || sent.SenderID != "client1" {
		t.Errorf("message = %+v", sent)
	}

	resp = s.request(t, http.MethodGet, "/api/chat/conversations/"+conv.ID+"/messages", admin, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d, want 200", resp.StatusCode)
	}
	var msgs []models.Message
	decodeJSON(t, resp, &msgs)
	// system message from creation plus the one just sent
	if len(msgs) != 2 {
		t.Fatalf("listed %d messages, want 2", len(msgs))
	}
	if msgs[1].Content != "Bonjour" {
		t.Errorf("last message = %q", msgs[1].Content)
	}

	resp = s.request(t, http.MethodPut, "/api/chat/conversations/"+conv.ID+"/read", admin, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("read status = %d, want 200", resp.StatusCode)
	}
	got, err := s.convs.FindByID(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.UnreadCount.Get("admin1") != 0 {
		t.Errorf("unread[admin1] = %d after read", got.UnreadCount.Get("admin1"))
	}
}

func TestMessagesForbiddenForOutsider(t *testing.T) {
	s := newTestServer(t)
	s.tasks.Put(&models.TaskRequest{ID: "task1", Title: "Peinture", UserID: "client1"})
	admin := signed(t, "admin1", models.RoleAdmin)
	outsider := signed(t, "someone-else", models.RoleUser)

	resp := s.request(t, http.MethodPost, "/api/chat/conversations", admin,
		map[string]string{"taskRequestId": "task1"})
	var conv models.Conversation
	decodeJSON(t, resp, &conv)

	resp = s.request(t, http.MethodGet, "/api/chat/conversations/"+conv.ID+"/messages", outsider, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("outsider list status = %d, want 403", resp.StatusCode)
	}
	resp = s.request(t, http.MethodPost, "/api/chat/conversations/"+conv.ID+"/messages", outsider,
		map[string]string{"content": "coucou"})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("outsider send status = %d, want 403", resp.StatusCode)
	}
}

func TestSearchByCodeAdminOnly(t *testing.T) {
	s := newTestServer(t)
	s.tasks.Put(&models.TaskRequest{ID: "task1", Title: "Serrurerie", UserID: "client1"})
	admin := signed(t, "admin1", models.RoleAdmin)
	user := signed(t, "client1", models.RoleUser)

	resp := s.request(t, http.MethodPost, "/api/chat/conversations", admin,
		map[string]string{"taskRequestId": "task1"})
	var conv models.Conversation
	decodeJSON(t, resp, &conv)
	if conv.ConversationCode == "" {
		t.Fatal("conversation code not generated")
	}

	resp = s.request(t, http.MethodGet, "/api/chat/conversations/search/"+conv.ConversationCode, user, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("user search status = %d, want 403", resp.StatusCode)
	}

	resp = s.request(t, http.MethodGet, "/api/chat/conversations/search/"+conv.ConversationCode, admin, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin search status = %d, want 200", resp.StatusCode)
	}
	var res service.CodeResult
	decodeJSON(t, resp, &res)
	if res.Conversation == nil || res.Conversation.ID != conv.ID {
		t.Errorf("search result = %+v", res)
	}

	resp = s.request(t, http.MethodGet, "/api/chat/conversations/search/CONV-UNKNOWN1", admin, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown code status = %d, want 404", resp.StatusCode)
	}
}

func TestUploadUnavailableWithoutStore(t *testing.T) {
	s := newTestServer(t)
	admin := signed(t, "admin1", models.RoleAdmin)

	resp := s.request(t, http.MethodPost, "/api/chat/conversations/whatever/upload", admin, nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

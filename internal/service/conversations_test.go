package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/apperr"
	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/models"
)

func TestCreateOrGetIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.tasks.Put(&models.TaskRequest{ID: "task1", Title: "Montage meuble", UserID: "u1"})

	first, created, err := env.convs.CreateOrGet(context.Background(), "task1", "admin1", models.RoleSuperAdmin)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created {
		t.Fatal("first call should create")
	}

	second, created, err := env.convs.CreateOrGet(context.Background(), "task1", "admin1", models.RoleSuperAdmin)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if created {
		t.Fatal("second call must not create")
	}
	if second.ID != first.ID {
		t.Fatalf("ids differ: %s vs %s", second.ID, first.ID)
	}
}

func TestCreateOrGetNewConversationShape(t *testing.T) {
	env := newTestEnv(t)
	env.tasks.Put(&models.TaskRequest{ID: "task1", Title: "Jardinage", UserID: "u1"})

	conv, _, err := env.convs.CreateOrGet(context.Background(), "task1", "admin1", models.RoleAdmin)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if conv.Status != models.StatusActive {
		t.Errorf("status = %q, want active", conv.Status)
	}
	if len(conv.Participants) != 2 {
		t.Fatalf("participants = %d, want 2", len(conv.Participants))
	}
	if conv.Participants[0].UserID != "u1" || conv.Participants[0].Role != models.RoleUser {
		t.Errorf("owner participant = %+v", conv.Participants[0])
	}
	if conv.Participants[1].UserID != "admin1" || conv.Participants[1].Role != models.RoleAdmin {
		t.Errorf("initiator participant = %+v", conv.Participants[1])
	}
	if conv.UnreadCount.Get("u1") != 0 || conv.UnreadCount.Get("admin1") != 0 {
		t.Errorf("unread counts not zero: %v", conv.UnreadCount)
	}
	if conv.LastMessage == nil {
		t.Fatal("lastMessage not seeded by system message")
	}
	if !strings.Contains(conv.LastMessage.Content, "Jardinage") {
		t.Errorf("system message should mention the task title, got %q", conv.LastMessage.Content)
	}
	if conv.ConversationCode == "" {
		t.Error("conversation code not generated")
	}

	msgs, err := env.msgRepo.ListAll(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 1 || msgs[0].MessageType != models.TypeSystem {
		t.Fatalf("want one system message, got %d", len(msgs))
	}
}

func TestCreateOrGetUnknownTask(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.convs.CreateOrGet(context.Background(), "missing", "admin1", models.RoleAdmin)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListForUserExcludesArchivedAndSorts(t *testing.T) {
	env := newTestEnv(t)
	older := env.seedConversation(t, "CODE1",
		models.Participant{UserID: "u1", Role: models.RoleUser},
		models.Participant{UserID: "a1", Role: models.RoleAdmin})
	newer := env.seedConversation(t, "CODE2",
		models.Participant{UserID: "u1", Role: models.RoleUser},
		models.Participant{UserID: "a2", Role: models.RoleAdmin})
	archived := env.seedConversation(t, "CODE3",
		models.Participant{UserID: "u1", Role: models.RoleUser},
		models.Participant{UserID: "a3", Role: models.RoleAdmin})

	if _, err := env.msgs.Send(context.Background(), newer.ID, "a2", SendMessageInput{Content: "premier"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := env.msgs.Send(context.Background(), older.ID, "a1", SendMessageInput{Content: "deuxieme"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := env.convs.Archive(context.Background(), archived.ID); err != nil {
		t.Fatalf("archive: %v", err)
	}

	got, err := env.convs.ListForUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("listed %d conversations, want 2", len(got))
	}
	// the conversation messaged last comes first
	if got[0].ID != older.ID || got[1].ID != newer.ID {
		t.Errorf("order = [%s %s], want [%s %s]", got[0].ID, got[1].ID, older.ID, newer.ID)
	}
}

func TestArchiveMissingConversation(t *testing.T) {
	env := newTestEnv(t)
	if err := env.convs.Archive(context.Background(), "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestLookupByCodeNormalizesCase(t *testing.T) {
	env := newTestEnv(t)
	conv := env.seedConversation(t, "CONV-AB12CD34",
		models.Participant{UserID: "u1", Role: models.RoleUser},
		models.Participant{UserID: "a1", Role: models.RoleAdmin})
	if _, err := env.msgs.Send(context.Background(), conv.ID, "u1", SendMessageInput{Content: "bonjour"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := env.convs.AssignAgent(context.Background(), conv.ID, "Sonia"); err != nil {
		t.Fatalf("assign agent: %v", err)
	}

	res, err := env.convs.LookupByCode(context.Background(), " conv-ab12cd34 ")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if res.Conversation.ID != conv.ID {
		t.Errorf("found %s, want %s", res.Conversation.ID, conv.ID)
	}
	if len(res.Messages) != 1 {
		t.Errorf("history length = %d, want 1", len(res.Messages))
	}
	if res.AssignedAgent == nil || res.AssignedAgent.Name != "Sonia" {
		t.Errorf("assigned agent = %+v", res.AssignedAgent)
	}
}

func TestLookupByCodeUnknown(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.convs.LookupByCode(context.Background(), "CONV-ZZZZZZZZ"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCloseRequiresAdminParticipant(t *testing.T) {
	env := newTestEnv(t)
	conv := env.seedConversation(t, "CODE4",
		models.Participant{UserID: "u1", Role: models.RoleUser},
		models.Participant{UserID: "a1", Role: models.RoleAdmin})

	if err := env.convs.Close(context.Background(), conv.ID, "u1", models.CloseReasonAdminLeft); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("user close err = %v, want ErrForbidden", err)
	}
	if err := env.convs.Close(context.Background(), conv.ID, "outsider", models.CloseReasonAdminLeft); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("outsider close err = %v, want ErrForbidden", err)
	}
	if err := env.convs.Close(context.Background(), conv.ID, "a1", "went_home"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("bad reason err = %v, want ErrValidation", err)
	}

	if err := env.convs.Close(context.Background(), conv.ID, "a1", models.CloseReasonAdminLeft); err != nil {
		t.Fatalf("close: %v", err)
	}
	got, err := env.convRepo.FindByID(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Status != models.StatusClosed {
		t.Errorf("status = %q, want closed", got.Status)
	}
	if got.ClosedBy == nil || got.ClosedBy.UserID != "a1" || got.ClosedBy.Reason != models.CloseReasonAdminLeft {
		t.Errorf("closedBy = %+v", got.ClosedBy)
	}
	last, ok := env.fanout.lastEvent()
	if !ok || last.Event != "conversation:closed" {
		t.Errorf("last fanout event = %+v", last)
	}
	msgs, _ := env.msgRepo.ListAll(context.Background(), conv.ID)
	if len(msgs) != 1 || msgs[0].MessageType != models.TypeSystem {
		t.Fatalf("want one system message after close, got %d", len(msgs))
	}
	if !strings.Contains(msgs[0].Content, "fermee") {
		t.Errorf("close system message = %q", msgs[0].Content)
	}
}

func TestCompleteTaskActions(t *testing.T) {
	env := newTestEnv(t)
	keep := env.seedConversation(t, "CODE5",
		models.Participant{UserID: "u1", Role: models.RoleUser},
		models.Participant{UserID: "a1", Role: models.RoleAdmin})
	closeIt := env.seedConversation(t, "CODE6",
		models.Participant{UserID: "u1", Role: models.RoleUser},
		models.Participant{UserID: "a1", Role: models.RoleAdmin})

	if err := env.convs.CompleteTask(context.Background(), keep.ID, "a1", "shrug"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("bad action err = %v, want ErrValidation", err)
	}

	if err := env.convs.CompleteTask(context.Background(), keep.ID, "a1", models.CompletedKeepOpen); err != nil {
		t.Fatalf("complete keep_open: %v", err)
	}
	got, _ := env.convRepo.FindByID(context.Background(), keep.ID)
	if !got.TaskCompleted || got.CompletedAction != models.CompletedKeepOpen {
		t.Errorf("keep_open conversation = %+v", got)
	}
	if got.Status != models.StatusActive {
		t.Errorf("keep_open status = %q, want active", got.Status)
	}
	msgs, _ := env.msgRepo.ListAll(context.Background(), keep.ID)
	if len(msgs) != 1 || !strings.Contains(msgs[0].Content, "reste ouverte") {
		t.Errorf("keep_open system message missing: %v", msgs)
	}

	env.tasks.Put(&models.TaskRequest{ID: closeIt.TaskRequestID, Title: "Nettoyage", UserID: "u1", Status: "in_progress"})
	if err := env.convs.CompleteTask(context.Background(), closeIt.ID, "a1", models.CompletedClose); err != nil {
		t.Fatalf("complete close: %v", err)
	}
	got, _ = env.convRepo.FindByID(context.Background(), closeIt.ID)
	if got.Status != models.StatusCompleted {
		t.Errorf("close status = %q, want completed", got.Status)
	}
	if got.ClosedBy == nil || got.ClosedBy.Reason != models.CloseReasonTaskCompleted {
		t.Errorf("closedBy = %+v", got.ClosedBy)
	}
	task, err := env.tasks.FindByID(context.Background(), closeIt.TaskRequestID)
	if err != nil {
		t.Fatalf("find task: %v", err)
	}
	if task.Status != "completed" {
		t.Errorf("task status = %q, want completed", task.Status)
	}
}

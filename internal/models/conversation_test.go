package models

import "testing"

func TestUnreadCounts(t *testing.T) {
	u := UnreadCounts{}
	if u.Get("u1") != 0 {
		t.Errorf("missing key = %d, want 0", u.Get("u1"))
	}
	u.Increment("u1")
	u.Increment("u1")
	u.Increment("u2")
	if u.Get("u1") != 2 || u.Get("u2") != 1 {
		t.Errorf("counts = %v", u)
	}
	u.Reset("u1")
	if u.Get("u1") != 0 {
		t.Errorf("reset left %d", u.Get("u1"))
	}
	if u.Get("u2") != 1 {
		t.Errorf("reset touched another key: %v", u)
	}
}

func TestConversationParticipants(t *testing.T) {
	c := &Conversation{Participants: []Participant{
		{UserID: "u1", Role: RoleUser},
		{UserID: "a1", Role: RoleAdmin},
	}}

	if !c.HasParticipant("u1") || c.HasParticipant("stranger") {
		t.Error("HasParticipant wrong")
	}
	if role, ok := c.ParticipantRole("a1"); !ok || role != RoleAdmin {
		t.Errorf("ParticipantRole(a1) = %q, %v", role, ok)
	}
	if _, ok := c.ParticipantRole("stranger"); ok {
		t.Error("ParticipantRole found a stranger")
	}

	others := c.OtherParticipantIDs("u1")
	if len(others) != 1 || others[0] != "a1" {
		t.Errorf("others = %v", others)
	}
}

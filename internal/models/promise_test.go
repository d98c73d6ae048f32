package models

import "testing"

func strPtr(s string) *string { return &s }

func TestPromiseStatusTerminal(t *testing.T) {
	cases := map[PromiseStatus]bool{
		StatusOngoing:   false,
		StatusOverdue:   false,
		StatusCompleted: true,
		StatusDeclined:  true,
		StatusNotMade:   true,
	}

	for status, want := range cases {
		if got := status.Terminal(); got != want {
			t.Fatalf("Terminal(%s) = %v, want %v", status, got, want)
		}
	}
}

func TestPromiseStatusValid(t *testing.T) {
	if !StatusOverdue.Valid() {
		t.Fatal("expected overdue to be valid")
	}
	if PromiseStatus("paused").Valid() {
		t.Fatal("expected unknown status to be invalid")
	}
}

func TestParticipantIDsSkipsPlaceholders(t *testing.T) {
	promise := Promise{
		OwnerID:       "owner",
		PromiseeEmail: strPtr("pending@example.com"),
		MentorID:      strPtr("mentor"),
	}

	ids := promise.ParticipantIDs()
	if len(ids) != 2 {
		t.Fatalf("expected 2 participants, got %v", ids)
	}
	if ids[0] != "owner" || ids[1] != "mentor" {
		t.Fatalf("unexpected participants: %v", ids)
	}
}

func TestHasParticipant(t *testing.T) {
	promise := Promise{
		OwnerID:    "owner",
		PromiseeID: strPtr("promisee"),
	}

	if !promise.HasParticipant("owner") || !promise.HasParticipant("promisee") {
		t.Fatal("expected owner and promisee to be participants")
	}
	if promise.HasParticipant("stranger") || promise.HasParticipant("") {
		t.Fatal("expected stranger and empty id to be rejected")
	}
}

func TestIsPromisee(t *testing.T) {
	promise := Promise{OwnerID: "owner", PromiseeID: strPtr("promisee")}

	if !promise.IsPromisee("promisee") {
		t.Fatal("expected resolved promisee to match")
	}
	if promise.IsPromisee("owner") {
		t.Fatal("owner is not the promisee")
	}
	if (&Promise{OwnerID: "owner"}).IsPromisee("promisee") {
		t.Fatal("promise without promisee must not match")
	}
}

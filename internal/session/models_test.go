package session

import (
	"testing"
	"time"
)

func TestCanTransition_ForwardOnly(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusCalling, StatusAccepted},
		{StatusCalling, StatusDeclined},
		{StatusCalling, StatusEnded},
		{StatusCalling, StatusCancelled},
		{StatusAccepted, StatusEnded},
		{StatusAccepted, StatusCancelled},
	}
	for _, tr := range allowed {
		if !CanTransition(tr.from, tr.to) {
			t.Fatalf("expected %s -> %s to be allowed", tr.from, tr.to)
		}
	}
}

func TestCanTransition_TerminalAcceptsNothing(t *testing.T) {
	terminals := []Status{StatusDeclined, StatusEnded, StatusCancelled}
	all := []Status{StatusCalling, StatusAccepted, StatusDeclined, StatusEnded, StatusCancelled}
	for _, from := range terminals {
		for _, to := range all {
			if CanTransition(from, to) {
				t.Fatalf("expected %s -> %s to be rejected", from, to)
			}
		}
	}
}

func TestCanTransition_NoBackwardOrSelf(t *testing.T) {
	if CanTransition(StatusAccepted, StatusCalling) {
		t.Fatalf("expected accepted -> calling to be rejected")
	}
	if CanTransition(StatusCalling, StatusCalling) {
		t.Fatalf("expected self transition to be rejected")
	}
}

func TestStatusRank_Monotonic(t *testing.T) {
	if !(StatusCalling.Rank() < StatusAccepted.Rank()) {
		t.Fatalf("calling must rank below accepted")
	}
	if !(StatusAccepted.Rank() < StatusEnded.Rank()) {
		t.Fatalf("accepted must rank below terminal")
	}
	if StatusDeclined.Rank() != StatusCancelled.Rank() {
		t.Fatalf("terminal statuses must share a rank")
	}
}

func TestValidateNew(t *testing.T) {
	good := CallSession{
		ID:         "s1",
		CallerID:   "alice",
		ReceiverID: "bob",
		RoomID:     "r1",
		CallType:   CallTypeVideo,
		Status:     StatusCalling,
		CreatedAt:  time.Now(),
	}
	if err := ValidateNew(good); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}

	selfCall := good
	selfCall.ReceiverID = selfCall.CallerID
	if err := ValidateNew(selfCall); err == nil {
		t.Fatalf("expected self-call to be rejected")
	}

	badType := good
	badType.CallType = "screenshare"
	if err := ValidateNew(badType); err == nil {
		t.Fatalf("expected unknown call type to be rejected")
	}

	notCalling := good
	notCalling.Status = StatusAccepted
	if err := ValidateNew(notCalling); err == nil {
		t.Fatalf("expected non-calling initial status to be rejected")
	}
}

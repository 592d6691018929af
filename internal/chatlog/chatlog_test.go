package chatlog

import (
	"strings"
	"testing"
)

func TestNewUserTurn(t *testing.T) {
	t.Parallel()

	turn := NewUserTurn("hello", "llm")
	if !strings.HasPrefix(turn.ID, "u-") {
		t.Errorf("user turn ID = %q, want u- prefix", turn.ID)
	}
	if turn.Role != RoleUser {
		t.Errorf("role = %q, want %q", turn.Role, RoleUser)
	}
	if turn.Content != "hello" || turn.Mode != "llm" {
		t.Errorf("unexpected turn: %+v", turn)
	}
	if turn.CreatedAt.IsZero() {
		t.Error("created at is zero")
	}
}

func TestNewBotTurn(t *testing.T) {
	t.Parallel()

	turn := NewBotTurn("hi there", "agent")
	if !strings.HasPrefix(turn.ID, "b-") {
		t.Errorf("bot turn ID = %q, want b- prefix", turn.ID)
	}
	if turn.Role != RoleBot {
		t.Errorf("role = %q, want %q", turn.Role, RoleBot)
	}
}

func TestGreetingRecorded(t *testing.T) {
	t.Parallel()

	greeting := "Good morning! How did the dentist go?"

	tests := []struct {
		name  string
		turns []Turn
		want  bool
	}{
		{name: "empty transcript", want: false},
		{
			name:  "greeting is the latest bot turn",
			turns: []Turn{NewBotTurn(greeting, "")},
			want:  true,
		},
		{
			name:  "different latest greeting",
			turns: []Turn{NewBotTurn("Hello again!", "")},
			want:  false,
		},
		{
			name: "conversation moved past the greeting",
			turns: []Turn{
				NewBotTurn(greeting, ""),
				NewUserTurn("it went fine", "ask"),
			},
			want: false,
		},
		{
			name:  "same text from the user does not count",
			turns: []Turn{NewUserTurn(greeting, "ask")},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := &Record{UserID: "u1", Turns: tt.turns}
			if got := greetingRecorded(rec, greeting); got != tt.want {
				t.Errorf("greetingRecorded() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTurnIDsAreUnique(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for range 100 {
		id := NewUserTurn("x", "").ID
		if seen[id] {
			t.Fatalf("duplicate turn ID %q", id)
		}
		seen[id] = true
	}
}

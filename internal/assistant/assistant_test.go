package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/planora/planora/internal/chatlog"
	"github.com/planora/planora/internal/event"
	"github.com/planora/planora/internal/intent"
	"github.com/planora/planora/internal/log"
	"github.com/planora/planora/internal/task"
)

type fakeChats struct {
	rec        *chatlog.Record
	appended   []chatlog.Turn
	resetCount int
}

func newFakeChats() *fakeChats {
	return &fakeChats{rec: &chatlog.Record{UserID: "u1", ThreadID: uuid.New()}}
}

func (f *fakeChats) Get(_ context.Context, _ string) (*chatlog.Record, error) {
	if f.rec == nil {
		return nil, chatlog.ErrNotFound
	}
	return f.rec, nil
}

func (f *fakeChats) Ensure(_ context.Context, _ string) (*chatlog.Record, error) {
	if f.rec == nil {
		f.rec = &chatlog.Record{UserID: "u1", ThreadID: uuid.New()}
	}
	return f.rec, nil
}

func (f *fakeChats) Reset(_ context.Context, _ string) (uuid.UUID, error) {
	f.resetCount++
	f.rec.ThreadID = uuid.New()
	f.rec.Turns = nil
	return f.rec.ThreadID, nil
}

func (f *fakeChats) AppendTurns(_ context.Context, _ string, turns ...chatlog.Turn) error {
	f.appended = append(f.appended, turns...)
	return nil
}

type fakeCompleter struct {
	reply string
	err   error
	seen  []*ai.Message
}

func (f *fakeCompleter) Complete(_ context.Context, _ string, msgs []*ai.Message) (string, error) {
	f.seen = msgs
	return f.reply, f.err
}

type fakeConverser struct {
	threadID string
	reply    string
	err      error
}

func (f *fakeConverser) Invoke(_ context.Context, threadID, _ string) (string, error) {
	f.threadID = threadID
	return f.reply, f.err
}

type fakeRunner struct {
	sessionID string
	userID    string
	reply     string
	err       error
}

func (f *fakeRunner) Execute(_ context.Context, sessionID, userID, _ string) (string, error) {
	f.sessionID = sessionID
	f.userID = userID
	return f.reply, f.err
}

type fakeTasks struct {
	task *task.Task
	err  error
}

func (f *fakeTasks) RandomInProgress(context.Context, string) (*task.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.task, nil
}

type fakeEvents struct {
	ended    *event.Event
	upcoming *event.Event
}

func (f *fakeEvents) FindEndedWithin(context.Context, string, time.Time, time.Duration) (*event.Event, error) {
	if f.ended == nil {
		return nil, event.ErrNotFound
	}
	return f.ended, nil
}

func (f *fakeEvents) FindStartingWithin(context.Context, string, time.Time, time.Duration) (*event.Event, error) {
	if f.upcoming == nil {
		return nil, event.ErrNotFound
	}
	return f.upcoming, nil
}

type fakePub struct {
	events []struct {
		name    string
		payload any
	}
	err error
}

func (f *fakePub) Publish(name string, v any) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, struct {
		name    string
		payload any
	}{name, v})
	return nil
}

type fixture struct {
	chats     *fakeChats
	completer *fakeCompleter
	converser *fakeConverser
	runner    *fakeRunner
	tasks     *fakeTasks
	events    *fakeEvents
	pub       *fakePub
	assistant *Assistant
}

func newFixture() *fixture {
	f := &fixture{
		chats:     newFakeChats(),
		completer: &fakeCompleter{reply: "completion reply"},
		converser: &fakeConverser{reply: "graph reply"},
		runner:    &fakeRunner{reply: "agent reply"},
		tasks:     &fakeTasks{err: task.ErrNotFound},
		events:    &fakeEvents{},
		pub:       &fakePub{},
	}
	f.assistant = New(f.chats, f.completer, f.converser, f.runner, f.tasks, f.events, f.pub, log.NewNop())
	return f
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    Mode
		wantErr bool
	}{
		{input: "llm", want: ModeLLM},
		{input: "ask", want: ModeAsk},
		{input: "agent", want: ModeAgent},
		{input: "", want: ModeAsk},
		{input: "chat", wantErr: true},
		{input: "LLM", wantErr: true},
	}

	for _, tt := range tests {
		t.Run("mode "+tt.input, func(t *testing.T) {
			t.Parallel()
			got, err := ParseMode(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidMode) {
					t.Errorf("ParseMode(%q) error = %v, want ErrInvalidMode", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMode(%q): %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseMode(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestHandle_LLMModeFlattensTranscript(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.chats.rec.Turns = []chatlog.Turn{
		{Role: chatlog.RoleUser, Content: "earlier question"},
		{Role: chatlog.RoleBot, Content: "earlier answer"},
	}

	reply, err := f.assistant.Handle(context.Background(), "u1", "new question", ModeLLM)
	if err != nil {
		t.Fatalf("Handle(): %v", err)
	}
	if reply != "completion reply" {
		t.Errorf("reply = %q", reply)
	}

	// Prior transcript plus the new message.
	if len(f.completer.seen) != 3 {
		t.Fatalf("completer saw %d messages, want 3", len(f.completer.seen))
	}
	if f.completer.seen[1].Role != ai.RoleModel {
		t.Errorf("second message role = %v, want model", f.completer.seen[1].Role)
	}
	if got := f.completer.seen[2].Text(); got != "new question" {
		t.Errorf("last message = %q", got)
	}
}

func TestHandle_AskModeUsesThreadID(t *testing.T) {
	t.Parallel()

	f := newFixture()
	reply, err := f.assistant.Handle(context.Background(), "u1", "hello", ModeAsk)
	if err != nil {
		t.Fatal(err)
	}
	if reply != "graph reply" {
		t.Errorf("reply = %q", reply)
	}
	if want := f.chats.rec.ThreadID.String(); f.converser.threadID != want {
		t.Errorf("thread = %q, want %q", f.converser.threadID, want)
	}
}

func TestHandle_AgentModeFallsBackToUserID(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.chats.rec.ThreadID = uuid.Nil

	if _, err := f.assistant.Handle(context.Background(), "u1", "hello", ModeAgent); err != nil {
		t.Fatal(err)
	}
	if f.runner.sessionID != "u1" {
		t.Errorf("session = %q, want user ID fallback", f.runner.sessionID)
	}
	if f.runner.userID != "u1" {
		t.Errorf("user = %q, want u1", f.runner.userID)
	}
}

func TestHandle_AppendsTurnPairAfterSuccess(t *testing.T) {
	t.Parallel()

	f := newFixture()
	if _, err := f.assistant.Handle(context.Background(), "u1", "hello", ModeAsk); err != nil {
		t.Fatal(err)
	}

	if len(f.chats.appended) != 2 {
		t.Fatalf("appended %d turns, want 2", len(f.chats.appended))
	}
	if f.chats.appended[0].Role != chatlog.RoleUser || f.chats.appended[0].Content != "hello" {
		t.Errorf("user turn = %+v", f.chats.appended[0])
	}
	if f.chats.appended[1].Role != chatlog.RoleBot || f.chats.appended[1].Content != "graph reply" {
		t.Errorf("bot turn = %+v", f.chats.appended[1])
	}
	if f.chats.appended[1].Mode != string(ModeAsk) {
		t.Errorf("bot turn mode = %q, want ask", f.chats.appended[1].Mode)
	}
}

func TestHandle_FailedModeWritesNothing(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.converser.err = errors.New("model down")

	if _, err := f.assistant.Handle(context.Background(), "u1", "hello", ModeAsk); err == nil {
		t.Fatal("Handle() = nil, want error")
	}
	if len(f.chats.appended) != 0 {
		t.Errorf("appended %d turns after failure, want 0", len(f.chats.appended))
	}
}

func TestHandle_LLMAndAgentModesWriteNothing(t *testing.T) {
	t.Parallel()

	for _, mode := range []Mode{ModeLLM, ModeAgent} {
		t.Run(string(mode), func(t *testing.T) {
			t.Parallel()

			f := newFixture()
			if _, err := f.assistant.Handle(context.Background(), "u1", "hello", mode); err != nil {
				t.Fatal(err)
			}
			if len(f.chats.appended) != 0 {
				t.Errorf("appended %d turns, want 0 for %s mode", len(f.chats.appended), mode)
			}
		})
	}
}

func TestHandle_MissingChatRecord(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.chats.rec = nil

	_, err := f.assistant.Handle(context.Background(), "u1", "hello", ModeLLM)
	if !errors.Is(err, chatlog.ErrNotFound) {
		t.Errorf("Handle() = %v, want chatlog.ErrNotFound", err)
	}
}

func TestHandle_EmptyMessage(t *testing.T) {
	t.Parallel()

	f := newFixture()
	if _, err := f.assistant.Handle(context.Background(), "u1", "", ModeLLM); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("Handle(empty) = %v, want ErrEmptyMessage", err)
	}
}

func TestComposeGreeting_SubjectPriority(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

	ended := &event.Event{Title: "Dentist", Description: "Routine checkup visit", EndTime: now.Add(-2 * time.Hour)}
	upcoming := &event.Event{Title: "Flight", Description: "Trip to Berlin for work", StartTime: now.Add(3 * time.Hour)}
	inProgress := &task.Task{Title: "Tax return", Description: "File the annual tax return"}

	tests := []struct {
		name        string
		ended       *event.Event
		upcoming    *event.Event
		task        *task.Task
		wantMention string
		wantErr     error
	}{
		{name: "ended event wins", ended: ended, upcoming: upcoming, task: inProgress, wantMention: "Dentist"},
		{name: "upcoming event next", upcoming: upcoming, task: inProgress, wantMention: "Flight"},
		{name: "task last", task: inProgress, wantMention: "Tax return"},
		{name: "nothing to greet about", wantErr: ErrNoTasks},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture()
			f.assistant.now = func() time.Time { return now }
			f.events.ended = tt.ended
			f.events.upcoming = tt.upcoming
			if tt.task != nil {
				f.tasks = &fakeTasks{task: tt.task}
				f.assistant.tasks = f.tasks
			}
			f.completer.reply = "Fresh greeting!"

			greeting, err := f.assistant.ComposeGreeting(context.Background(), "u1")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ComposeGreeting() = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ComposeGreeting(): %v", err)
			}
			if greeting != "Fresh greeting!" {
				t.Errorf("greeting = %q", greeting)
			}

			// The prompt sent to the model must mention the subject.
			prompt := f.completer.seen[0].Text()
			if !strings.Contains(prompt, tt.wantMention) {
				t.Errorf("prompt %q does not mention %q", prompt, tt.wantMention)
			}
		})
	}
}

func TestComposeGreeting_ResetsThreadFirst(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.tasks = &fakeTasks{task: &task.Task{Title: "Tax return", Description: "File the annual return"}}
	f.assistant.tasks = f.tasks
	f.completer.reply = "Hi!"

	if _, err := f.assistant.ComposeGreeting(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}
	if f.chats.resetCount != 1 {
		t.Errorf("resets = %d, want 1", f.chats.resetCount)
	}
}

func TestComposeGreeting_PublishesSaveIntent(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.tasks = &fakeTasks{task: &task.Task{Title: "Tax return", Description: "File the annual return"}}
	f.assistant.tasks = f.tasks
	f.completer.reply = "Working on taxes, I see!"

	greeting, err := f.assistant.ComposeGreeting(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}

	if len(f.pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(f.pub.events))
	}
	if f.pub.events[0].name != intent.EventSaveInitialMessage {
		t.Errorf("event = %q", f.pub.events[0].name)
	}
	p := f.pub.events[0].payload.(intent.SaveInitialMessage)
	if p.Message != greeting {
		t.Errorf("payload message = %q, want %q", p.Message, greeting)
	}
}

func TestComposeGreeting_DuplicateSuppressed(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.tasks = &fakeTasks{task: &task.Task{Title: "Tax return", Description: "File the annual return"}}
	f.assistant.tasks = f.tasks
	f.chats.rec.LastGreeting = "Working on taxes, I see!"
	f.completer.reply = "Working on taxes, I see!"

	greeting, err := f.assistant.ComposeGreeting(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if greeting != FallbackGreeting {
		t.Errorf("greeting = %q, want fallback", greeting)
	}
	if len(f.pub.events) != 0 {
		t.Errorf("published %d events, want 0 for suppressed greeting", len(f.pub.events))
	}
}

func TestComposeGreeting_ModelFailureYieldsFallback(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.tasks = &fakeTasks{task: &task.Task{Title: "Tax return", Description: "File the annual return"}}
	f.assistant.tasks = f.tasks
	f.completer.err = errors.New("model down")

	greeting, err := f.assistant.ComposeGreeting(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if greeting != FallbackGreeting {
		t.Errorf("greeting = %q, want fallback", greeting)
	}
	if len(f.pub.events) != 0 {
		t.Errorf("published %d events, want 0 after model failure", len(f.pub.events))
	}
}


package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/stake-plus/agora/src/ai/core"
	"github.com/stake-plus/agora/src/types"
)

// recordingClient captures every prompt and replies with a scripted string.
type recordingClient struct {
	reply   string
	err     error
	prompts []string
	systems []string
}

func (c *recordingClient) Respond(ctx context.Context, input string, opts core.Options) (string, error) {
	c.prompts = append(c.prompts, input)
	c.systems = append(c.systems, opts.SystemPrompt)
	return c.reply, c.err
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{
			name: "bare object",
			raw:  `{"content":"adopt the plan","reasoning":"it works"}`,
			want: "adopt the plan",
		},
		{
			name: "code fence",
			raw:  "```json\n{\"content\":\"fenced\",\"reasoning\":\"r\"}\n```",
			want: "fenced",
		},
		{
			name: "embedded in prose",
			raw:  `Sure! Here is my answer: {"content":"embedded","reasoning":"r"} Hope that helps.`,
			want: "embedded",
		},
		{
			name: "surrounding whitespace",
			raw:  "\n\n  {\"content\":\"padded\",\"reasoning\":\"r\"}  \n",
			want: "padded",
		},
		{
			name:    "no JSON at all",
			raw:     "I decline to answer in the requested format.",
			wantErr: true,
		},
		{
			name:    "braces without valid JSON",
			raw:     "set {x} to {y}",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var reply ProposalReply
			err := decodeJSON(tt.raw, &reply)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("decodeJSON(%q) succeeded with %+v", tt.raw, reply)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeJSON(%q): %v", tt.raw, err)
			}
			if reply.Content != tt.want {
				t.Errorf("content = %q, want %q", reply.Content, tt.want)
			}
		})
	}
}

func TestAskAddsReminderOnRetryOnly(t *testing.T) {
	client := &recordingClient{reply: `{"content":"ok","reasoning":"r"}`}
	llm := NewLLM(client, core.Options{})
	pc := PersonaContext{ID: "p1", Persona: types.Persona{Name: "Quill"}}

	if _, err := llm.Propose(context.Background(), pc, "q", 1); err != nil {
		t.Fatal(err)
	}
	if _, err := llm.Propose(context.Background(), pc, "q", 2); err != nil {
		t.Fatal(err)
	}

	if len(client.prompts) != 2 {
		t.Fatalf("prompts = %d, want 2", len(client.prompts))
	}
	if strings.Contains(client.prompts[0], jsonReminder) {
		t.Error("first attempt must not carry the JSON reminder")
	}
	if !strings.HasSuffix(client.prompts[1], jsonReminder) {
		t.Errorf("retry prompt %q does not end with the JSON reminder", client.prompts[1])
	}
}

func TestProposeRejectsUnparsableReply(t *testing.T) {
	client := &recordingClient{reply: "I would rather chat."}
	llm := NewLLM(client, core.Options{})
	pc := PersonaContext{ID: "p1", Persona: types.Persona{Name: "Quill"}}

	if _, err := llm.Propose(context.Background(), pc, "q", 1); err == nil {
		t.Fatal("expected an unparsable-reply error")
	}
}

func TestProposeRejectsEmptyContent(t *testing.T) {
	client := &recordingClient{reply: `{"content":"  ","reasoning":"r"}`}
	llm := NewLLM(client, core.Options{})
	pc := PersonaContext{ID: "p1", Persona: types.Persona{Name: "Quill"}}

	if _, err := llm.Propose(context.Background(), pc, "q", 1); err == nil {
		t.Fatal("expected an empty-content error")
	}
}

func TestCastVoteDecodesAbstention(t *testing.T) {
	client := &recordingClient{reply: `{"choice":null,"reasoning":"none convinced me"}`}
	llm := NewLLM(client, core.Options{})
	pc := PersonaContext{ID: "p1", Persona: types.Persona{Name: "Quill"}}

	reply, err := llm.CastVote(context.Background(), pc, Ballot{Prompt: "q", Options: []string{"a", "b"}}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if reply.Choice != nil {
		t.Errorf("choice = %v, want nil abstention", *reply.Choice)
	}
	if reply.Reasoning == "" {
		t.Error("reasoning lost in decode")
	}
}

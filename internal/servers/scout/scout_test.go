package scout

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/motebus/Ultra-MCP-Servers/internal/config"
	"github.com/motebus/Ultra-MCP-Servers/internal/llm"
	"github.com/motebus/Ultra-MCP-Servers/internal/servers/servertest"
	"github.com/motebus/Ultra-MCP-Servers/storage/memory"
)

type staticConfig struct {
	cfg config.OpenAI
	err error
}

func (s staticConfig) OpenAI() (config.OpenAI, error) { return s.cfg, s.err }

func TestWebSearch(t *testing.T) {
	var got llm.Request
	store := memory.New()
	srv := New(Deps{
		Config: staticConfig{cfg: config.OpenAI{APIKey: "sk", Model: "gpt-4"}},
		Completer: llm.CompleterFunc(func(ctx context.Context, req llm.Request) (string, error) {
			got = req
			return "1. Go\n2. Rust", nil
		}),
		Searches: store,
	})
	sub := servertest.Subscribe(t, srv)

	text := servertest.OK(t, srv, "web-search", map[string]any{"query": "languages", "name": "langs"})
	if text != "Saved search results for 'langs': 1. Go\n2. Rust" {
		t.Fatalf("unexpected reply %q", text)
	}
	want := llm.Request{
		APIKey:    "sk",
		Model:     "gpt-4",
		Prompt:    "Web search results for: languages. Provide 5 concise, relevant results.",
		MaxTokens: 1000,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("request mismatch (-want +got):\n%s", diff)
	}
	if content, _ := store.Get(context.Background(), "langs"); content != "1. Go\n2. Rust" {
		t.Fatalf("search result not stored: %q", content)
	}
	select {
	case <-sub:
	default:
		t.Fatalf("web-search did not signal a resource change")
	}
}

func TestWebSearchMaxResultsRange(t *testing.T) {
	srv := New(Deps{
		Config: staticConfig{cfg: config.OpenAI{APIKey: "sk", Model: "gpt-4"}},
		Completer: llm.CompleterFunc(func(ctx context.Context, req llm.Request) (string, error) {
			t.Fatalf("completer must not run for invalid arguments")
			return "", nil
		}),
	})
	text := servertest.Fail(t, srv, "web-search", map[string]any{"query": "q", "name": "n", "max_results": 11})
	if text != "invalid arguments: invalid argument max_results: must be <= 10" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestWebSearchConfigError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "desktop.json")
	if err := os.WriteFile(path, []byte(`{"mcpServers": {"Scout": {"env": {"OPENAI_MODEL": "gpt-4o"}}}}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	srv := New(Deps{Config: config.NewDesktop(path, nil)})
	text := servertest.Fail(t, srv, "web-search", map[string]any{"query": "q", "name": "n"})
	if text != "Configuration error: Missing OPENAI_API_KEY in configuration" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestWebSearchUpstreamError(t *testing.T) {
	srv := New(Deps{
		Config: staticConfig{cfg: config.OpenAI{APIKey: "sk", Model: "gpt-4"}},
		Completer: llm.CompleterFunc(func(ctx context.Context, req llm.Request) (string, error) {
			return "", errors.New("429 rate limited")
		}),
	})
	text := servertest.Fail(t, srv, "web-search", map[string]any{"query": "q", "name": "n"})
	if text != "Error: OpenAI API error: 429 rate limited" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestSummarizeSearchAndResources(t *testing.T) {
	ctx := context.Background()
	searches := memory.New()
	_ = searches.Put(ctx, "go", "gophers")
	notes := memory.New()
	_ = notes.Put(ctx, "todo", "write tests")

	srv := New(Deps{Searches: searches, Notes: notes})

	got := servertest.PromptText(t, srv, "summarize-search", map[string]string{"style": "detailed"})
	if got != "Here are the current search results to summarize: Give extensive details.\n\n- go: gophers" {
		t.Fatalf("unexpected prompt %q", got)
	}

	res := servertest.Resources(t, srv)
	var names []string
	for _, r := range res {
		names = append(names, r.URI+" "+r.Name+" "+r.Description)
	}
	want := []string{
		"note://internal/todo Note: todo A simple note named todo",
		"search://result/go Search: go Web search result for query 'go'",
	}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("resources mismatch (-want +got):\n%s", diff)
	}

	contents, err := servertest.Read(t, srv, "search://result/go")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if contents[0].Text != "gophers" {
		t.Fatalf("unexpected contents %+v", contents)
	}
	if _, err := servertest.Read(t, srv, "search://result/missing"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found, got %v", err)
	}
}

// Package notes implements the notes server: a scratch pad of named text
// notes with a few transformation tools and a YouTube transcript importer.
package notes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/motebus/Ultra-MCP-Servers/internal/servers/storeres"
	"github.com/motebus/Ultra-MCP-Servers/mcp"
	"github.com/motebus/Ultra-MCP-Servers/mcpservice"
	"github.com/motebus/Ultra-MCP-Servers/storage"
)

const (
	serverName    = "notes"
	serverVersion = "0.1.0"
)

// Deps are the collaborators of the notes server.
type Deps struct {
	Store       storage.Store
	Transcripts TranscriptFetcher
	Log         *slog.Logger

	// Shuffle permutes words in place. Nil uses math/rand.
	Shuffle func(words []string)

	// LoggingLevel, when set, backs logging/setLevel.
	LoggingLevel *slog.LevelVar
}

type server struct {
	store       storage.Store
	transcripts TranscriptFetcher
	shuffle     func([]string)
}

// New builds the notes server.
func New(deps Deps) mcpservice.ServerCapabilities {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	resources := mcpservice.NewResourcesContainer(log)
	s := &server{
		store:       storage.WithNotifier(deps.Store, resources.Notifier()),
		transcripts: deps.Transcripts,
		shuffle:     deps.Shuffle,
	}
	if s.shuffle == nil {
		s.shuffle = func(words []string) {
			rand.Shuffle(len(words), func(i, j int) { words[i], words[j] = words[j], words[i] })
		}
	}
	if s.transcripts == nil {
		s.transcripts = NewYouTubeTranscripts(nil)
	}
	resources.Handle(storeres.NoteScheme.Scheme, storeres.Handler(s.store, storeres.NoteScheme))

	tools := mcpservice.NewToolsContainer(
		mcpservice.NewTool("add-note", s.addNote,
			mcpservice.WithToolDescription("Add a new note")),
		mcpservice.NewTool("randomize-note", s.randomizeNote,
			mcpservice.WithToolDescription("Create a randomized version of an existing note")),
		mcpservice.NewTool("word-count", s.wordCount,
			mcpservice.WithToolDescription("Count words in a note")),
		mcpservice.NewTool("tag-note", s.tagNote,
			mcpservice.WithToolDescription("Add tags to a note")),
		mcpservice.NewTool("get-youtube-transcript", s.youtubeTranscript,
			mcpservice.WithToolDescription("Fetch transcript for a YouTube video"),
			mcpservice.WithToolErrorPrefix("Error fetching transcript: ")),
	)
	prompts := mcpservice.NewStaticPrompts(storeres.SummaryPrompt(s.store, storeres.Summary{
		Name:              "summarize-notes",
		Description:       "Creates a summary of all notes",
		ResultDescription: "Summarize the current notes",
		Header:            "Here are the current notes to summarize:",
	}))

	opts := []mcpservice.ServerOption{
		mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: serverName, Version: serverVersion}),
		mcpservice.WithToolsCapability(tools),
		mcpservice.WithPromptsCapability(prompts),
		mcpservice.WithResourcesCapability(resources),
	}
	if deps.LoggingLevel != nil {
		opts = append(opts, mcpservice.WithLoggingCapability(mcpservice.NewSlogLevelVarLogging(deps.LoggingLevel)))
	}
	return mcpservice.NewServer(opts...)
}

var errMissingNote = errors.New("Missing name or content")

type addNoteArgs struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

func (s *server) addNote(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[addNoteArgs]) error {
	a := r.Args()
	if a.Name == "" || a.Content == "" {
		return errMissingNote
	}
	if err := s.store.Put(ctx, a.Name, a.Content); err != nil {
		return fmt.Errorf("save note: %w", err)
	}
	return w.AppendText(fmt.Sprintf("Added note '%s' with content: %s", a.Name, a.Content))
}

type randomizeArgs struct {
	NoteName          string `json:"note_name"`
	RandomizationType string `json:"randomization_type" jsonschema:"enum=shuffle,enum=reverse,enum=uppercase,enum=lowercase"`
}

func (s *server) randomizeNote(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[randomizeArgs]) error {
	a := r.Args()
	content, err := s.note(ctx, a.NoteName)
	if err != nil {
		return err
	}

	var out string
	switch a.RandomizationType {
	case "shuffle":
		words := strings.Fields(content)
		s.shuffle(words)
		out = strings.Join(words, " ")
	case "reverse":
		out = reverseRunes(content)
	case "uppercase":
		out = strings.ToUpper(content)
	case "lowercase":
		out = strings.ToLower(content)
	}

	newName := fmt.Sprintf("%s_randomized_%s", a.NoteName, a.RandomizationType)
	if err := s.store.Put(ctx, newName, out); err != nil {
		return fmt.Errorf("save note: %w", err)
	}
	return w.AppendText(fmt.Sprintf("Randomized note '%s' using %s. New note: %s", a.NoteName, a.RandomizationType, newName))
}

type noteNameArgs struct {
	NoteName string `json:"note_name"`
}

func (s *server) wordCount(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[noteNameArgs]) error {
	name := r.Args().NoteName
	content, err := s.note(ctx, name)
	if err != nil {
		return err
	}
	return w.AppendText(fmt.Sprintf("Word count for note '%s': %d words", name, len(strings.Fields(content))))
}

type tagArgs struct {
	NoteName string   `json:"note_name"`
	Tags     []string `json:"tags"`
}

func (s *server) tagNote(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[tagArgs]) error {
	a := r.Args()
	content, err := s.note(ctx, a.NoteName)
	if err != nil {
		return err
	}
	tagged := fmt.Sprintf("[TAGS: %s]\n%s", strings.Join(a.Tags, ", "), content)
	if err := s.store.Put(ctx, a.NoteName, tagged); err != nil {
		return fmt.Errorf("save note: %w", err)
	}
	return w.AppendText(fmt.Sprintf("Added tags %v to note '%s'", a.Tags, a.NoteName))
}

type transcriptArgs struct {
	VideoID  string `json:"video_id" jsonschema:"description=YouTube video ID"`
	Language string `json:"language,omitempty" jsonschema:"description=Language code (optional)"`
}

func (s *server) youtubeTranscript(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[transcriptArgs]) error {
	a := r.Args()
	lang := a.Language
	if lang == "" {
		lang = defaultLanguage
	}
	text, err := s.transcripts.Transcript(ctx, a.VideoID, lang)
	if err != nil {
		return err
	}
	noteName := "transcript_" + a.VideoID
	if err := s.store.Put(ctx, noteName, text); err != nil {
		return fmt.Errorf("save note: %w", err)
	}
	return w.AppendText(fmt.Sprintf("Transcript fetched for video %s. Saved as note '%s'. First 500 characters: %s...",
		a.VideoID, noteName, firstRunes(text, 500)))
}

func (s *server) note(ctx context.Context, name string) (string, error) {
	content, err := s.store.Get(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("Note '%s' not found", name)
	}
	return content, err
}

func reverseRunes(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

func firstRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

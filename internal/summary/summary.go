// Package summary maintains an incremental running summary of a live
// conversation so long sessions stay within the model's working context.
package summary

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/soyeahso/liverelay/internal/logging"
	"github.com/soyeahso/liverelay/internal/media"
)

// Injector pushes synthetic context into the live session. Implemented
// by the upstream adapter.
type Injector interface {
	InjectContext(texts []string, turnComplete bool) error
}

const defaultPrompt = "Condense the conversation below into a short running summary. " +
	"Keep names, decisions, and open threads. Merge with the previous summary when one is given."

const questionsPrompt = "Based on this conversation summary, ask the user one or two " +
	"thoughtful follow-up questions that move the conversation forward."

// Config tunes when compaction runs.
type Config struct {
	Interval time.Duration // minimum time between compactions
	MinChars int           // minimum new transcript text before compacting
	Prompt   string
}

type line struct {
	source media.TranscriptSource
	text   string
}

// Manager accumulates transcript fragments for one session and compacts
// them in the background. It satisfies the session layer's Summarizer
// contract; all methods are safe for concurrent use.
type Manager struct {
	cfg    Config
	gen    Generator
	inject Injector
	log    *logging.Logger

	mu       sync.Mutex
	pending  []line
	chars    int
	summary  string
	lastRun  time.Time
	inFlight bool
}

// NewManager creates a summary manager for one session.
func NewManager(cfg Config, gen Generator, inject Injector, log *logging.Logger) *Manager {
	if cfg.Prompt == "" {
		cfg.Prompt = defaultPrompt
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.MinChars <= 0 {
		cfg.MinChars = 400
	}
	return &Manager{
		cfg:    cfg,
		gen:    gen,
		inject: inject,
		log:    log.Sub("summary"),
	}
}

// AddTranscript buffers one transcription fragment.
func (m *Manager) AddTranscript(source media.TranscriptSource, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, line{source: source, text: text})
	m.chars += len(text)
}

// TurnComplete is the compaction trigger. When enough new text has
// accumulated and the interval has elapsed, a background compaction
// starts; at most one runs at a time.
func (m *Manager) TurnComplete(ctx context.Context) {
	m.mu.Lock()
	if m.inFlight || m.chars < m.cfg.MinChars || time.Since(m.lastRun) < m.cfg.Interval {
		m.mu.Unlock()
		return
	}
	m.inFlight = true
	previous := m.summary
	batch := m.pending
	m.pending = nil
	m.chars = 0
	m.mu.Unlock()

	go m.compact(context.WithoutCancel(ctx), previous, batch)
}

// Summary returns the current compacted summary.
func (m *Manager) Summary() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summary
}

func (m *Manager) compact(ctx context.Context, previous string, batch []line) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	result, err := m.gen.Generate(ctx, m.buildPrompt(previous, batch))
	if err != nil {
		m.log.Warn().Err(err).Msg("summary compaction failed")
		m.mu.Lock()
		// Put the batch back so the next trigger retries it.
		m.pending = append(batch, m.pending...)
		for _, l := range batch {
			m.chars += len(l.text)
		}
		m.inFlight = false
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	m.summary = result
	m.lastRun = time.Now()
	m.inFlight = false
	m.mu.Unlock()

	m.log.Debug().Int("chars", len(result)).Msg("conversation summary updated")

	// Feed the compact summary back so the live model keeps long-range
	// context without replaying the raw transcript.
	if err := m.inject.InjectContext([]string{"[conversation summary] " + result}, false); err != nil {
		m.log.Warn().Err(err).Msg("summary injection failed")
	}
}

func (m *Manager) buildPrompt(previous string, batch []line) string {
	var b strings.Builder
	b.WriteString(m.cfg.Prompt)
	b.WriteString("\n\n")
	if previous != "" {
		b.WriteString("Previous summary:\n")
		b.WriteString(previous)
		b.WriteString("\n\n")
	}
	b.WriteString("Conversation:\n")
	for _, l := range batch {
		role := "User"
		if l.source == media.TranscriptOutput {
			role = "Assistant"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, l.text)
	}
	return b.String()
}

// InjectQuestions asks the generator for follow-up questions grounded in
// the current summary and injects them as a generating turn. Used to
// nudge a stalled conversation.
func (m *Manager) InjectQuestions(ctx context.Context) error {
	m.mu.Lock()
	current := m.summary
	m.mu.Unlock()
	if current == "" {
		return fmt.Errorf("no summary available yet")
	}

	questions, err := m.gen.Generate(ctx, questionsPrompt+"\n\nSummary:\n"+current)
	if err != nil {
		return fmt.Errorf("generating questions: %w", err)
	}
	return m.inject.InjectContext([]string{questions}, true)
}

package summary

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/liverelay/internal/logging"
	"github.com/soyeahso/liverelay/internal/media"
)

type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	result  string
	err     error
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	return g.result, g.err
}

func (g *fakeGenerator) calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

type fakeInjector struct {
	mu       sync.Mutex
	injected [][]string
	turns    []bool
}

func (i *fakeInjector) InjectContext(texts []string, turnComplete bool) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.injected = append(i.injected, texts)
	i.turns = append(i.turns, turnComplete)
	return nil
}

func (i *fakeInjector) count() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.injected)
}

func (i *fakeInjector) last() ([]string, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.injected[len(i.injected)-1], i.turns[len(i.turns)-1]
}

func newManager(gen Generator, inj Injector, minChars int) *Manager {
	return NewManager(Config{
		Interval: time.Millisecond,
		MinChars: minChars,
	}, gen, inj, logging.New(nil, "silent"))
}

func TestCompactionBelowThresholdDoesNothing(t *testing.T) {
	gen := &fakeGenerator{result: "summary"}
	inj := &fakeInjector{}
	m := newManager(gen, inj, 100)

	m.AddTranscript(media.TranscriptInput, "short")
	m.TurnComplete(context.Background())

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, gen.calls())
	assert.Zero(t, inj.count())
	assert.Empty(t, m.Summary())
}

func TestCompactionUpdatesSummaryAndInjects(t *testing.T) {
	gen := &fakeGenerator{result: "they discussed the weather"}
	inj := &fakeInjector{}
	m := newManager(gen, inj, 10)

	m.AddTranscript(media.TranscriptInput, "what is the weather like today")
	m.AddTranscript(media.TranscriptOutput, "sunny with a light breeze")
	m.TurnComplete(context.Background())

	require.Eventually(t, func() bool { return inj.count() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "they discussed the weather", m.Summary())

	texts, turnComplete := inj.last()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "[conversation summary]")
	assert.False(t, turnComplete)

	prompts := gen.calls()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "User: what is the weather like today")
	assert.Contains(t, prompts[0], "Assistant: sunny with a light breeze")
}

func TestCompactionCarriesPreviousSummary(t *testing.T) {
	gen := &fakeGenerator{result: "first"}
	inj := &fakeInjector{}
	m := newManager(gen, inj, 10)

	m.AddTranscript(media.TranscriptInput, "opening line of conversation")
	m.TurnComplete(context.Background())
	require.Eventually(t, func() bool { return m.Summary() == "first" }, time.Second, 10*time.Millisecond)

	gen.mu.Lock()
	gen.result = "second"
	gen.mu.Unlock()

	time.Sleep(5 * time.Millisecond) // let the interval elapse
	m.AddTranscript(media.TranscriptInput, "a later remark worth keeping")
	m.TurnComplete(context.Background())
	require.Eventually(t, func() bool { return m.Summary() == "second" }, time.Second, 10*time.Millisecond)

	prompts := gen.calls()
	require.Len(t, prompts, 2)
	assert.Contains(t, prompts[1], "Previous summary:\nfirst")
}

func TestCompactionFailureRetainsTranscripts(t *testing.T) {
	gen := &fakeGenerator{err: assert.AnError}
	inj := &fakeInjector{}
	m := newManager(gen, inj, 10)

	m.AddTranscript(media.TranscriptInput, "text that should not be lost")
	m.TurnComplete(context.Background())
	require.Eventually(t, func() bool { return len(gen.calls()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Zero(t, inj.count())

	// The failed batch is retried on the next trigger.
	gen.mu.Lock()
	gen.err = nil
	gen.result = "recovered"
	gen.mu.Unlock()

	require.Eventually(t, func() bool {
		m.TurnComplete(context.Background())
		return m.Summary() == "recovered"
	}, time.Second, 10*time.Millisecond)
	assert.Contains(t, gen.calls()[len(gen.calls())-1], "text that should not be lost")
}

func TestInjectQuestions(t *testing.T) {
	gen := &fakeGenerator{result: "what happened next?"}
	inj := &fakeInjector{}
	m := newManager(gen, inj, 10)

	// No summary yet.
	require.Error(t, m.InjectQuestions(context.Background()))

	m.AddTranscript(media.TranscriptInput, "a long enough opening statement")
	m.TurnComplete(context.Background())
	require.Eventually(t, func() bool { return m.Summary() != "" }, time.Second, 10*time.Millisecond)

	require.NoError(t, m.InjectQuestions(context.Background()))
	texts, turnComplete := inj.last()
	assert.Equal(t, []string{"what happened next?"}, texts)
	assert.True(t, turnComplete)
}

func TestGeminiGenerator(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, ":generateContent")
		assert.Equal(t, "k-test", r.URL.Query().Get("key"))
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"hello "},{"text":"world"}]}}]}`))
	}))
	t.Cleanup(ts.Close)

	gen := NewGeminiGenerator(ts.URL, "k-test", "gemini-test", 256)
	out, err := gen.Generate(context.Background(), "say hello")
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestGeminiGeneratorAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"quota"}`, http.StatusTooManyRequests)
	}))
	t.Cleanup(ts.Close)

	gen := NewGeminiGenerator(ts.URL, "k", "m", 0)
	_, err := gen.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "429"))
}

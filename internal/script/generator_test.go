package script

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/MimeLyc/article-narrator/internal/document"
	"github.com/MimeLyc/article-narrator/internal/llm"
)

type mockCompleter struct {
	mock.Mock
}

func (m *mockCompleter) Complete(ctx context.Context, system, prompt string) (llm.Completion, error) {
	args := m.Called(ctx, system, prompt)
	return args.Get(0).(llm.Completion), args.Error(1)
}

func promptFor(id string) interface{} {
	return mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "## Section: "+id+"\n")
	})
}

func fenced(entries ...string) llm.Completion {
	return llm.Completion{Content: "```json\n{\"sections\": [" + strings.Join(entries, ",") + "]}\n```"}
}

type memCheckpoints struct {
	mu    sync.Mutex
	data  map[[2]int][]string
	saved int
}

func (m *memCheckpoints) Load(start, end int) ([]string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data[[2]int{start, end}]
	return s, ok
}

func (m *memCheckpoints) Save(_ context.Context, start, end int, scripts []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[[2]int][]string)
	}
	m.data[[2]int{start, end}] = scripts
	m.saved++
	return nil
}

func TestGenerate_ReassemblesBatchesInOrder(t *testing.T) {
	t.Parallel()

	sections := []document.Section{
		{ID: "section-0", Heading: "A", HeadingLevel: 1, TextContent: strings.Repeat("a", 50)},
		{ID: "section-1", Heading: "B", HeadingLevel: 1, TextContent: strings.Repeat("b", 50)},
		{ID: "section-2", Heading: "C", HeadingLevel: 1, TextContent: strings.Repeat("c", 50)},
	}

	m := &mockCompleter{}
	m.On("Complete", mock.Anything, mock.Anything, promptFor("section-0")).
		Return(fenced(`{"sectionId": "section-0", "script": "s0"}`), nil)
	m.On("Complete", mock.Anything, mock.Anything, promptFor("section-1")).
		Return(fenced(`{"sectionId": "section-1", "script": "s1"}`), nil)
	m.On("Complete", mock.Anything, mock.Anything, promptFor("section-2")).
		Return(fenced(`{"sectionId": "section-2", "script": "s2"}`), nil)

	g := NewGenerator(m, WithMaxChars(60), WithConcurrency(3), WithLanguage(language.English))
	res, err := g.Generate(context.Background(), sections)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Batches)
	assert.Equal(t, language.English, res.Language)
	assert.Equal(t, []string{"s0", "s1", "s2"}, scripts(res.Sections))
	assert.Empty(t, res.Warnings)
	m.AssertNumberOfCalls(t, "Complete", 3)
}

func TestGenerate_FailedBatchDegradesToText(t *testing.T) {
	t.Parallel()

	sections := []document.Section{
		{ID: "section-0", Heading: "A", HeadingLevel: 1, TextContent: strings.Repeat("a", 50)},
		{ID: "section-1", Heading: "B", HeadingLevel: 1, TextContent: strings.Repeat("b", 50)},
	}

	m := &mockCompleter{}
	m.On("Complete", mock.Anything, mock.Anything, promptFor("section-0")).
		Return(llm.Completion{}, errors.New("upstream down"))
	m.On("Complete", mock.Anything, mock.Anything, promptFor("section-1")).
		Return(llm.Completion{Content: "no json here"}, nil)

	res, err := NewGenerator(m, WithMaxChars(60)).Generate(context.Background(), sections)
	require.NoError(t, err)

	assert.Equal(t, []string{sections[0].TextContent, sections[1].TextContent}, scripts(res.Sections))
	require.Len(t, res.Warnings, 2)
	assert.Contains(t, res.Warnings[0], "upstream down")
	assert.Contains(t, res.Warnings[1], "not structured")
}

func TestGenerate_UsesAndWritesCheckpoints(t *testing.T) {
	t.Parallel()

	sections := []document.Section{
		{ID: "section-0", Heading: "A", HeadingLevel: 1, TextContent: strings.Repeat("a", 50)},
		{ID: "section-1", Heading: "B", HeadingLevel: 1, TextContent: strings.Repeat("b", 50)},
	}
	store := &memCheckpoints{data: map[[2]int][]string{{0, 1}: {"cached"}}}

	m := &mockCompleter{}
	m.On("Complete", mock.Anything, mock.Anything, promptFor("section-1")).
		Return(fenced(`{"sectionId": "section-1", "script": "fresh"}`), nil).Once()

	res, err := NewGenerator(m, WithMaxChars(60), WithCheckpoints(store)).Generate(context.Background(), sections)
	require.NoError(t, err)

	assert.Equal(t, []string{"cached", "fresh"}, scripts(res.Sections))
	assert.Equal(t, 1, store.saved)
	got, ok := store.Load(1, 2)
	require.True(t, ok)
	assert.Equal(t, []string{"fresh"}, got)
	m.AssertExpectations(t)
}

func TestGenerate_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := &mockCompleter{}
	_, err := NewGenerator(m).Generate(ctx, threeSections)
	require.ErrorIs(t, err, context.Canceled)
	m.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
}

func TestGenerate_DetectsLanguageForSystemPrompt(t *testing.T) {
	t.Parallel()

	sections := []document.Section{{
		ID: "section-0", Heading: "Overview", HeadingLevel: 1,
		TextContent: "This guide walks through every step needed to publish a narrated video from a blog article.",
	}}

	m := &mockCompleter{}
	m.On("Complete", mock.Anything, mock.MatchedBy(func(s string) bool {
		return strings.Contains(s, "Write the narration in English")
	}), mock.Anything).Return(fenced(`{"sectionId": "section-0", "script": "ok"}`), nil)

	res, err := NewGenerator(m).Generate(context.Background(), sections)
	require.NoError(t, err)
	assert.Equal(t, language.English, res.Language)
	m.AssertExpectations(t)
}

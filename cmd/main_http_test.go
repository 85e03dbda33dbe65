package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/article-narrator/internal/config"
	"github.com/MimeLyc/article-narrator/internal/document"
	"github.com/MimeLyc/article-narrator/internal/pipeline"
	"github.com/MimeLyc/article-narrator/internal/subtitle"
	"github.com/MimeLyc/article-narrator/internal/voicevox"
)

type fakeScheduler struct {
	called bool
	err    error
}

func (f *fakeScheduler) Schedule(context.Context) error {
	f.called = true
	return f.err
}

type fakeCron struct {
	started bool
	stopped bool
}

func (f *fakeCron) Start() {
	f.started = true
}

func (f *fakeCron) Stop() context.Context {
	f.stopped = true
	return context.Background()
}

type fakeHTTP struct {
	listenCalled chan struct{}
	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

func newFakeHTTP() *fakeHTTP {
	return &fakeHTTP{
		listenCalled: make(chan struct{}),
		shutdownCh:   make(chan struct{}),
	}
}

func (f *fakeHTTP) ListenAndServe(string) error {
	close(f.listenCalled)
	<-f.shutdownCh
	return http.ErrServerClosed
}

func (f *fakeHTTP) Shutdown(context.Context) error {
	f.shutdownOnce.Do(func() { close(f.shutdownCh) })
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		HTTP: config.HTTPConfig{Addr: "127.0.0.1:0"},
	}
}

func TestMain_StartsCronAndHTTP(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := &fakeScheduler{}
	cronEngine := &fakeCron{}
	httpSrv := newFakeHTTP()

	doneCh := make(chan error, 1)
	go func() {
		doneCh <- runWithComponents(ctx, testConfig(), scheduler, cronEngine, httpSrv)
	}()

	select {
	case <-httpSrv.listenCalled:
	case <-time.After(2 * time.Second):
		t.Fatal("http server did not start")
	}

	cancel()

	select {
	case err := <-doneCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runWithComponents did not exit after cancellation")
	}

	assert.True(t, scheduler.called)
	assert.True(t, cronEngine.started)
	assert.True(t, cronEngine.stopped)
}

func TestMain_WithoutWatchFolderSkipsCron(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cronEngine := &fakeCron{}
	httpSrv := newFakeHTTP()

	doneCh := make(chan error, 1)
	go func() {
		doneCh <- runWithComponents(ctx, testConfig(), nil, cronEngine, httpSrv)
	}()
	<-httpSrv.listenCalled
	cancel()

	require.NoError(t, <-doneCh)
	assert.False(t, cronEngine.started)
}

func TestMain_ScheduleFailureStopsStartup(t *testing.T) {
	scheduler := &fakeScheduler{err: errors.New("bad cron")}
	cronEngine := &fakeCron{}

	err := runWithComponents(context.Background(), testConfig(), scheduler, cronEngine, newFakeHTTP())
	require.Error(t, err)
	assert.False(t, cronEngine.started)
}

func TestWriteSegments(t *testing.T) {
	sections, err := document.Segment(`<h1>One</h1><p>alpha text</p><h2>Two</h2><p>bravo text</p>`)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeSegments(&buf, sections, 15))

	var out segmentOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out.Sections, 2)
	assert.Equal(t, 26, out.CharCount)
	assert.Equal(t, []batchOutput{{Start: 0, End: 1, Chars: 13}, {Start: 1, End: 2, Chars: 13}}, out.Batches)
	assert.Equal(t, 4, out.EstimatedSeconds)
}

type fakeProbe struct {
	up bool
}

func (f fakeProbe) CheckConnection(context.Context) bool { return f.up }

func (fakeProbe) Version(context.Context) (string, error) { return "0.20.0", nil }

func (fakeProbe) Speakers(context.Context) ([]voicevox.Speaker, error) {
	return []voicevox.Speaker{{Name: "ずんだもん", Styles: []voicevox.Style{{Name: "ノーマル", ID: 3}}}}, nil
}

func TestRunCheck(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, runCheck(context.Background(), &buf, fakeProbe{up: true}))
	assert.Equal(t, "VOICEVOX 0.20.0\n   3  ずんだもん (ノーマル)\n", buf.String())

	err := runCheck(context.Background(), &buf, fakeProbe{})
	require.Error(t, err)
	assert.True(t, pipeline.IsErrorType(err, pipeline.ErrNetwork))
}

func TestWriteSRTFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "post.srt")
	entries := []subtitle.Entry{
		{ID: "section-1-sub-0", Text: "こんにちは。", StartTime: 0, EndTime: 1.5, SectionID: "section-1"},
	}

	require.NoError(t, writeSRTFile(path, entries))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1\n00:00:00,000 --> 00:00:01,500\nこんにちは。\n\n", string(data))
}

package agent

import (
	"context"
	"errors"
	"sync"

	"github.com/capitalize-ai/realty-agent/internal/llm"
	"github.com/capitalize-ai/realty-agent/internal/model"
)

type step struct {
	reply *llm.Reply
	err   error
}

// fakeDialogue replays scripted replies for Send and SubmitToolResults in
// order and records what it was given.
type fakeDialogue struct {
	mu        sync.Mutex
	steps     []step
	sent      []string
	submitted [][]llm.ToolResult

	// entered and release, when set, hold Send until the test lets it go.
	entered chan struct{}
	release chan struct{}
}

func (d *fakeDialogue) next() (*llm.Reply, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.steps) == 0 {
		return nil, errors.New("script exhausted")
	}
	s := d.steps[0]
	d.steps = d.steps[1:]
	return s.reply, s.err
}

func (d *fakeDialogue) Send(ctx context.Context, text string) (*llm.Reply, error) {
	d.mu.Lock()
	d.sent = append(d.sent, text)
	d.mu.Unlock()

	if d.entered != nil {
		close(d.entered)
		<-d.release
	}
	return d.next()
}

func (d *fakeDialogue) SubmitToolResults(ctx context.Context, results []llm.ToolResult) (*llm.Reply, error) {
	d.mu.Lock()
	d.submitted = append(d.submitted, results)
	d.mu.Unlock()
	return d.next()
}

type fakeProvider struct {
	dialogue *fakeDialogue
	startErr error
	configs  []llm.DialogueConfig
}

func (p *fakeProvider) StartDialogue(ctx context.Context, cfg llm.DialogueConfig) (llm.Dialogue, error) {
	p.configs = append(p.configs, cfg)
	if p.startErr != nil {
		return nil, p.startErr
	}
	return p.dialogue, nil
}

func (p *fakeProvider) Name() string     { return "fake" }
func (p *fakeProvider) Models() []string { return []string{"fake-model"} }

func scripted(steps ...step) *fakeProvider {
	return &fakeProvider{dialogue: &fakeDialogue{steps: steps}}
}

func text(s string) step {
	return step{reply: &llm.Reply{Text: s, Model: "fake-model"}}
}

func calls(tc ...llm.ToolCall) step {
	return step{reply: &llm.Reply{ToolCalls: tc, Model: "fake-model"}}
}

func fail(err error) step {
	return step{err: err}
}

type searchFunc func(ctx context.Context, filter model.PropertySearchFilter, apiKey string) ([]model.Property, error)

type fakeSearcher struct {
	mu      sync.Mutex
	fn      searchFunc
	filters []model.PropertySearchFilter
}

func (s *fakeSearcher) Search(ctx context.Context, filter model.PropertySearchFilter, apiKey string) ([]model.Property, error) {
	s.mu.Lock()
	s.filters = append(s.filters, filter)
	s.mu.Unlock()
	return s.fn(ctx, filter, apiKey)
}

type fakeFetcher struct {
	snap  *model.HistorySnapshot
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context, locationID, token string) (*model.HistorySnapshot, error) {
	f.calls++
	return f.snap, f.err
}

package stages

import (
	"context"
	"encoding/json"

	"github.com/soochol/creativeflow/internal/llmprovider"
)

// fakeText is a scripted TextModel: each call pops the next queued response
// (or replays the last one if the queue is exhausted), mirroring the
// teacher's table-driven provider fakes.
type fakeText struct {
	name      string
	family    llmprovider.Family
	responses []string
	calls     int
	err       error
}

func (f *fakeText) Name() string             { return f.name }
func (f *fakeText) Family() llmprovider.Family { return f.family }

func (f *fakeText) Complete(_ context.Context, _, _ string) (string, llmprovider.Usage, error) {
	if f.err != nil {
		return "", llmprovider.Usage{}, f.err
	}
	f.calls++
	if len(f.responses) == 0 {
		return "{}", llmprovider.Usage{TotalTokens: 1}, nil
	}
	idx := f.calls - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], llmprovider.Usage{TotalTokens: 1}, nil
}

// capturingText wraps fakeText and records the last user prompt it saw, for
// tests that need to assert on prompt content rather than just the response.
type capturingText struct {
	fakeText
	captured *string
}

func (f *capturingText) Complete(ctx context.Context, system, user string) (string, llmprovider.Usage, error) {
	*f.captured = user
	return f.fakeText.Complete(ctx, system, user)
}

// fakeVision adds CompleteWithImage on top of fakeText's Complete.
type fakeVision struct {
	fakeText
}

func (f *fakeVision) CompleteWithImage(_ context.Context, _, _ string, _ []byte) (string, llmprovider.Usage, error) {
	if f.err != nil {
		return "", llmprovider.Usage{}, f.err
	}
	f.calls++
	if len(f.responses) == 0 {
		return "{}", llmprovider.Usage{TotalTokens: 1}, nil
	}
	idx := f.calls - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], llmprovider.Usage{TotalTokens: 1}, nil
}

// fakeImage is a scripted ImageModel.
type fakeImage struct {
	name    string
	family  llmprovider.Family
	pngOut  []byte
	err     error
	calls   int
}

func (f *fakeImage) Name() string               { return f.name }
func (f *fakeImage) Family() llmprovider.Family   { return f.family }

func (f *fakeImage) GenerateImage(_ context.Context, _ string, _ []byte) ([]byte, llmprovider.Usage, error) {
	f.calls++
	if f.err != nil {
		return nil, llmprovider.Usage{}, f.err
	}
	out := f.pngOut
	if out == nil {
		out = []byte("fake-png-bytes")
	}
	return out, llmprovider.Usage{TotalTokens: 1}, nil
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

func noRetry() llmprovider.RetryPolicy {
	return llmprovider.RetryPolicy{MaxRetries: 0}
}

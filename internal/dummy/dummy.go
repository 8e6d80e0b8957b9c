package dummy

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/stupiduntilnot/chatrelay/internal/model"
)

type action struct {
	kind string
	arg  string
}

var actionKinds = []string{"err", "sleep", "msg", "msgb64"}

// parseScript parses a comma separated action list such as
// "ok,err:provider_api,sleep:200,msg:hello,echo".
func parseScript(script string) ([]action, error) {
	if strings.TrimSpace(script) == "" {
		return []action{{kind: "ok"}}, nil
	}
	parts := strings.Split(script, ",")
	actions := make([]action, 0, len(parts))
	for _, p := range parts {
		token := strings.TrimSpace(p)
		if token == "" {
			continue
		}
		if token == "ok" || token == "echo" {
			actions = append(actions, action{kind: token})
			continue
		}
		parsed := false
		for _, kind := range actionKinds {
			if strings.HasPrefix(token, kind+":") {
				actions = append(actions, action{kind: kind, arg: strings.TrimPrefix(token, kind+":")})
				parsed = true
				break
			}
		}
		if !parsed {
			return nil, fmt.Errorf("invalid dummy action: %s", token)
		}
	}
	if len(actions) == 0 {
		actions = append(actions, action{kind: "ok"})
	}
	return actions, nil
}

type scriptRunner struct {
	actions []action
	index   int
}

func newRunner(script string) (*scriptRunner, error) {
	actions, err := parseScript(script)
	if err != nil {
		return nil, err
	}
	return &scriptRunner{actions: actions}, nil
}

// next returns the next action; the last action repeats once the script ends.
func (r *scriptRunner) next() action {
	if len(r.actions) == 0 {
		return action{kind: "ok"}
	}
	if r.index >= len(r.actions) {
		return r.actions[len(r.actions)-1]
	}
	a := r.actions[r.index]
	r.index++
	return a
}

// Provider is a scripted completion provider for tests and offline runs.
type Provider struct {
	mu     sync.Mutex
	model  string
	script *scriptRunner
	calls  [][]model.Message
}

func NewProvider(modelName, script string) (*Provider, error) {
	runner, err := newRunner(script)
	if err != nil {
		return nil, err
	}
	return &Provider{model: modelName, script: runner}, nil
}

// Model returns the configured model name.
func (p *Provider) Model() string {
	return p.model
}

// Calls returns a copy of every message list the provider received.
func (p *Provider) Calls() [][]model.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]model.Message, len(p.calls))
	for i, c := range p.calls {
		out[i] = append([]model.Message(nil), c...)
	}
	return out
}

func (p *Provider) ChatCompletion(ctx context.Context, messages []model.Message) (model.CompletionResponse, error) {
	p.mu.Lock()
	p.calls = append(p.calls, append([]model.Message(nil), messages...))
	a := p.script.next()
	p.mu.Unlock()

	switch a.kind {
	case "ok":
		return reply("dummy-ok"), nil
	case "echo":
		if len(messages) == 0 {
			return reply("dummy-ok"), nil
		}
		return reply(messages[len(messages)-1].Content), nil
	case "err":
		return model.CompletionResponse{}, fmt.Errorf("dummy provider error class=%s", emptyAs(a.arg, "provider_api"))
	case "sleep":
		ms, _ := strconv.Atoi(a.arg)
		if ms > 0 {
			timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return model.CompletionResponse{}, fmt.Errorf("dummy provider interrupted: %w", ctx.Err())
			case <-timer.C:
			}
		}
		return reply("dummy-after-sleep"), nil
	case "msg":
		return reply(a.arg), nil
	case "msgb64":
		raw, err := base64.StdEncoding.DecodeString(a.arg)
		if err != nil {
			return model.CompletionResponse{}, fmt.Errorf("dummy provider msgb64 decode failed: %w", err)
		}
		return reply(string(raw)), nil
	default:
		return reply("dummy-ok"), nil
	}
}

func reply(content string) model.CompletionResponse {
	return model.CompletionResponse{
		Content:      content,
		InputTokens:  1,
		OutputTokens: 1,
	}
}

func emptyAs(v string, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

package source

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/prdeck/prdeck/internal/inbox"
)

type fakeChat struct {
	channelID    string
	resolveCalls int32
	resolveErr   error

	messages  []Message
	lastSince *time.Time
}

func (f *fakeChat) ResolveChannelID(_ context.Context, name string) (string, error) {
	atomic.AddInt32(&f.resolveCalls, 1)
	if f.resolveErr != nil {
		return "", f.resolveErr
	}
	_ = name
	return f.channelID, nil
}

func (f *fakeChat) MessagesSince(_ context.Context, _ string, since *time.Time) ([]Message, error) {
	f.lastSince = since
	return f.messages, nil
}

type fakeDetails struct {
	calls   int32
	failFor map[string]error
}

func (f *fakeDetails) PRDetails(_ context.Context, owner, repo string, number int) (inbox.DiscoveredPR, error) {
	atomic.AddInt32(&f.calls, 1)
	id := inbox.PRID(owner, repo, number)
	if err, ok := f.failFor[id]; ok {
		return inbox.DiscoveredPR{}, err
	}
	return inbox.DiscoveredPR{Owner: owner, Repo: repo, Number: number, Title: "pr " + id, State: inbox.PRStateOpen}, nil
}

func channelSource() inbox.Source {
	return inbox.Source{ID: "src-ch", Name: "eng prs", Kind: inbox.SourceKindChannel, ChannelName: "eng-pull-requests", Enabled: true}
}

func TestChannelFetchExtractsAndResolvesLinks(t *testing.T) {
	chat := &fakeChat{
		channelID: "C123",
		messages: []Message{
			{Text: "please review https://github.com/acme/api/pull/7 today"},
			{Text: "two in one: https://github.com/acme/api/pull/8 and https://github.com/acme/web/pull/9"},
			{Text: "dup https://github.com/acme/api/pull/7 again"},
			{Text: "no links here"},
		},
	}
	details := &fakeDetails{}
	adapter := NewChannelAdapter(chat, details, zap.NewNop().Sugar())

	prs, err := adapter.Fetch(context.Background(), channelSource(), nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(prs) != 3 {
		t.Fatalf("expected 3 unique PRs, got %d", len(prs))
	}
	if got := atomic.LoadInt32(&details.calls); got != 3 {
		t.Fatalf("duplicate link triggered extra lookup: %d calls", got)
	}
	ids := map[string]bool{}
	for _, pr := range prs {
		ids[pr.ID()] = true
	}
	for _, want := range []string{"acme/api#7", "acme/api#8", "acme/web#9"} {
		if !ids[want] {
			t.Fatalf("missing %s in %v", want, ids)
		}
	}
}

func TestChannelFetchMemoizesChannelResolution(t *testing.T) {
	chat := &fakeChat{channelID: "C123"}
	adapter := NewChannelAdapter(chat, &fakeDetails{}, zap.NewNop().Sugar())

	for i := 0; i < 3; i++ {
		if _, err := adapter.Fetch(context.Background(), channelSource(), nil); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&chat.resolveCalls); got != 1 {
		t.Fatalf("expected 1 channel resolution, got %d", got)
	}
}

func TestChannelFetchDropsInaccessiblePRs(t *testing.T) {
	chat := &fakeChat{
		channelID: "C123",
		messages: []Message{
			{Text: "https://github.com/acme/api/pull/7 https://github.com/acme/private/pull/8"},
		},
	}
	details := &fakeDetails{failFor: map[string]error{
		"acme/private#8": errors.New("404 not found"),
	}}
	adapter := NewChannelAdapter(chat, details, zap.NewNop().Sugar())

	prs, err := adapter.Fetch(context.Background(), channelSource(), nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(prs) != 1 || prs[0].ID() != "acme/api#7" {
		t.Fatalf("inaccessible PR handling wrong: %+v", prs)
	}
}

func TestChannelFetchPassesSinceHint(t *testing.T) {
	chat := &fakeChat{channelID: "C123"}
	adapter := NewChannelAdapter(chat, &fakeDetails{}, zap.NewNop().Sugar())

	if _, err := adapter.Fetch(context.Background(), channelSource(), nil); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if chat.lastSince != nil {
		t.Fatalf("first poll should pass a nil since hint")
	}

	since := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	if _, err := adapter.Fetch(context.Background(), channelSource(), &since); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if chat.lastSince == nil || !chat.lastSince.Equal(since) {
		t.Fatalf("since hint not forwarded: %v", chat.lastSince)
	}
}

func TestChannelFetchEmptyChannelName(t *testing.T) {
	adapter := NewChannelAdapter(&fakeChat{}, &fakeDetails{}, zap.NewNop().Sugar())
	src := channelSource()
	src.ChannelName = "  "
	if _, err := adapter.Fetch(context.Background(), src, nil); err == nil {
		t.Fatalf("expected error for empty channel name")
	}
}

package source

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/prdeck/prdeck/internal/inbox"
)

// Message is one chat message scanned for embedded PR links.
type Message struct {
	Text      string
	Timestamp time.Time
}

// ChannelClient is the message-scraping capability of the chat platform.
type ChannelClient interface {
	ResolveChannelID(ctx context.Context, name string) (string, error)
	MessagesSince(ctx context.Context, channelID string, since *time.Time) ([]Message, error)
}

// DetailClient resolves a bare PR reference to full metadata.
type DetailClient interface {
	PRDetails(ctx context.Context, owner, repo string, number int) (inbox.DiscoveredPR, error)
}

// prLinkPattern matches hosting-platform PR URLs embedded in message text.
var prLinkPattern = regexp.MustCompile(`https?://[\w.-]+/([\w.-]+)/([\w.-]+)/pull/(\d+)`)

type prRef struct {
	owner  string
	repo   string
	number int
}

// ChannelAdapter scans a chat channel for PR links and resolves them to full
// metadata. Channel name→id resolution is memoized for the process lifetime;
// the mapping never changes upstream.
type ChannelAdapter struct {
	chat        ChannelClient
	details     DetailClient
	lookupLimit int
	log         *zap.SugaredLogger

	mu      sync.Mutex
	idCache map[string]string
}

const defaultLookupLimit = 5

func NewChannelAdapter(chat ChannelClient, details DetailClient, log *zap.SugaredLogger) *ChannelAdapter {
	return &ChannelAdapter{
		chat:        chat,
		details:     details,
		lookupLimit: defaultLookupLimit,
		log:         log,
		idCache:     map[string]string{},
	}
}

func (a *ChannelAdapter) Kind() inbox.SourceKind {
	return inbox.SourceKindChannel
}

func (a *ChannelAdapter) Fetch(ctx context.Context, src inbox.Source, sinceHint *time.Time) ([]inbox.DiscoveredPR, error) {
	name := strings.TrimSpace(src.ChannelName)
	if name == "" {
		return nil, fmt.Errorf("source %s has an empty channel name", src.ID)
	}
	channelID, err := a.resolveChannel(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("resolve channel %q: %w", name, err)
	}
	messages, err := a.chat.MessagesSince(ctx, channelID, sinceHint)
	if err != nil {
		return nil, fmt.Errorf("fetch messages for %q: %w", name, err)
	}
	refs := extractPRRefs(messages)
	if len(refs) == 0 {
		return []inbox.DiscoveredPR{}, nil
	}
	return a.resolveRefs(ctx, refs), nil
}

func (a *ChannelAdapter) resolveChannel(ctx context.Context, name string) (string, error) {
	a.mu.Lock()
	if id, ok := a.idCache[name]; ok {
		a.mu.Unlock()
		return id, nil
	}
	a.mu.Unlock()
	id, err := a.chat.ResolveChannelID(ctx, name)
	if err != nil {
		return "", err
	}
	a.mu.Lock()
	a.idCache[name] = id
	a.mu.Unlock()
	return id, nil
}

// extractPRRefs scans message bodies for PR URLs and deduplicates the
// extracted references, preserving a stable order.
func extractPRRefs(messages []Message) []prRef {
	seen := map[string]prRef{}
	order := []string{}
	for _, msg := range messages {
		for _, match := range prLinkPattern.FindAllStringSubmatch(msg.Text, -1) {
			number, err := strconv.Atoi(match[3])
			if err != nil || number <= 0 {
				continue
			}
			ref := prRef{owner: match[1], repo: match[2], number: number}
			key := inbox.PRID(ref.owner, ref.repo, ref.number)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = ref
			order = append(order, key)
		}
	}
	refs := make([]prRef, 0, len(seen))
	for _, key := range order {
		refs = append(refs, seen[key])
	}
	return refs
}

// resolveRefs looks up each unique reference with bounded concurrency.
// Lookups that fail are dropped: a single inaccessible PR must not block the
// rest of the channel.
func (a *ChannelAdapter) resolveRefs(ctx context.Context, refs []prRef) []inbox.DiscoveredPR {
	limit := a.lookupLimit
	if limit <= 0 {
		limit = defaultLookupLimit
	}
	sem := make(chan struct{}, limit)
	results := make([]*inbox.DiscoveredPR, len(refs))
	var wg sync.WaitGroup
	for i, ref := range refs {
		wg.Add(1)
		go func(i int, ref prRef) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			pr, err := a.details.PRDetails(ctx, ref.owner, ref.repo, ref.number)
			if err != nil {
				if a.log != nil {
					a.log.Warnw("dropping inaccessible pr from channel scan",
						"pr", inbox.PRID(ref.owner, ref.repo, ref.number), "error", err)
				}
				return
			}
			results[i] = &pr
		}(i, ref)
	}
	wg.Wait()

	discovered := make([]inbox.DiscoveredPR, 0, len(refs))
	for _, pr := range results {
		if pr != nil {
			discovered = append(discovered, *pr)
		}
	}
	sort.SliceStable(discovered, func(i, j int) bool {
		return discovered[i].ID() < discovered[j].ID()
	})
	return discovered
}

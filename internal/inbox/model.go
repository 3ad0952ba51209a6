// Package inbox holds the reconciled pull-request inbox document and the
// pure reconciliation operations over it.
package inbox

import (
	"fmt"
	"strings"
	"time"
)

// Column is the kanban lifecycle stage of a tracked PR.
type Column string

const (
	ColumnInbox          Column = "inbox"
	ColumnNeedsAttention Column = "needs-attention"
	ColumnReviewed       Column = "reviewed"
	ColumnDone           Column = "done"
)

// ValidColumn reports whether c is one of the four known columns.
func ValidColumn(c Column) bool {
	switch c {
	case ColumnInbox, ColumnNeedsAttention, ColumnReviewed, ColumnDone:
		return true
	}
	return false
}

// PRState is the open/closed/merged state reported by the hosting platform.
type PRState string

const (
	PRStateOpen   PRState = "open"
	PRStateClosed PRState = "closed"
	PRStateMerged PRState = "merged"
)

// SourceKind tags the two modeled source variants.
type SourceKind string

const (
	SourceKindQuery   SourceKind = "query"
	SourceKindChannel SourceKind = "channel"
	// SourceKindManual marks PRs added out of band, not tied to a configured
	// source.
	SourceKindManual SourceKind = "manual"
)

// Source is a configured origin of candidate PRs. Exactly one of Query or
// ChannelName is meaningful, selected by Kind.
type Source struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Kind        SourceKind `json:"kind"`
	Query       string     `json:"query,omitempty"`
	ChannelName string     `json:"channelName,omitempty"`
	Enabled     bool       `json:"enabled"`
}

// PR is one tracked pull request.
type PR struct {
	ID            string     `json:"id"`
	Owner         string     `json:"owner"`
	Repo          string     `json:"repo"`
	Number        int        `json:"number"`
	Title         string     `json:"title"`
	Author        string     `json:"author"`
	URL           string     `json:"url"`
	HeadSHA       string     `json:"headSha"`
	Column        Column     `json:"column"`
	Source        SourceKind `json:"source"`
	SourceID      string     `json:"sourceId"`
	AddedAt       time.Time  `json:"addedAt"`
	LastCheckedAt time.Time  `json:"lastCheckedAt"`
	ReviewedAt    *time.Time `json:"reviewedAt,omitempty"`
	DoneAt        *time.Time `json:"doneAt,omitempty"`
}

// DiscoveredPR is a raw PR record returned by an adapter before
// reconciliation. HeadSHA may be empty when the upstream listing does not
// carry head commit data; the status pass owns SHA freshness.
type DiscoveredPR struct {
	Owner   string  `json:"owner"`
	Repo    string  `json:"repo"`
	Number  int     `json:"number"`
	Title   string  `json:"title"`
	Author  string  `json:"author"`
	URL     string  `json:"url"`
	HeadSHA string  `json:"headSha"`
	State   PRState `json:"state"`
}

// ID returns the dedup identity key "{owner}/{repo}#{number}".
func (d DiscoveredPR) ID() string {
	return PRID(d.Owner, d.Repo, d.Number)
}

// PRID builds the stable identity key for a pull request.
func PRID(owner, repo string, number int) string {
	return fmt.Sprintf("%s/%s#%d", owner, repo, number)
}

// State is the aggregate inbox document. It is persisted as a single atomic
// unit; every mutation reads the full document, computes a new one, and
// writes it back.
type State struct {
	PRs            []PR                 `json:"prs"`
	Sources        []Source             `json:"sources"`
	LastPollAt     *time.Time           `json:"lastPollAt"`
	PollIntervalMs int                  `json:"pollIntervalMs"`
	IgnoredPRIDs   map[string]time.Time `json:"ignoredPRIds"`
}

// NewState returns an empty document with initialized collections.
func NewState() *State {
	return &State{
		PRs:          []PR{},
		Sources:      []Source{},
		IgnoredPRIDs: map[string]time.Time{},
	}
}

// Normalize fills nil collections on a document that came off disk.
func (s *State) Normalize() {
	if s.PRs == nil {
		s.PRs = []PR{}
	}
	if s.Sources == nil {
		s.Sources = []Source{}
	}
	if s.IgnoredPRIDs == nil {
		s.IgnoredPRIDs = map[string]time.Time{}
	}
}

// FindPR returns a pointer into s.PRs for the given identity key, or nil.
func (s *State) FindPR(id string) *PR {
	for i := range s.PRs {
		if s.PRs[i].ID == id {
			return &s.PRs[i]
		}
	}
	return nil
}

// FindSource returns a pointer into s.Sources for the given id, or nil.
func (s *State) FindSource(id string) *Source {
	for i := range s.Sources {
		if s.Sources[i].ID == id {
			return &s.Sources[i]
		}
	}
	return nil
}

// HasPRFromSource reports whether any tracked PR originated from the given
// source instance. Used to detect a source's first-ever poll.
func (s *State) HasPRFromSource(sourceID string) bool {
	for i := range s.PRs {
		if s.PRs[i].SourceID == sourceID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the document. Snapshots handed to observers
// must not alias the store's working copy.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	clone := &State{
		PRs:            make([]PR, len(s.PRs)),
		Sources:        make([]Source, len(s.Sources)),
		PollIntervalMs: s.PollIntervalMs,
		IgnoredPRIDs:   make(map[string]time.Time, len(s.IgnoredPRIDs)),
	}
	copy(clone.PRs, s.PRs)
	for i := range clone.PRs {
		if t := clone.PRs[i].ReviewedAt; t != nil {
			cp := *t
			clone.PRs[i].ReviewedAt = &cp
		}
		if t := clone.PRs[i].DoneAt; t != nil {
			cp := *t
			clone.PRs[i].DoneAt = &cp
		}
	}
	copy(clone.Sources, s.Sources)
	if s.LastPollAt != nil {
		cp := *s.LastPollAt
		clone.LastPollAt = &cp
	}
	for id, at := range s.IgnoredPRIDs {
		clone.IgnoredPRIDs[id] = at
	}
	return clone
}

// ParsePRID splits an identity key back into owner, repo and number.
func ParsePRID(id string) (owner, repo string, number int, err error) {
	slash := strings.Index(id, "/")
	hash := strings.LastIndex(id, "#")
	if slash <= 0 || hash <= slash+1 || hash == len(id)-1 {
		return "", "", 0, fmt.Errorf("malformed pr id %q", id)
	}
	owner = id[:slash]
	repo = id[slash+1 : hash]
	if _, err := fmt.Sscanf(id[hash+1:], "%d", &number); err != nil || number <= 0 {
		return "", "", 0, fmt.Errorf("malformed pr id %q", id)
	}
	return owner, repo, number, nil
}

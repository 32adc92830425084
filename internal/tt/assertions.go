package tt

import (
	"testing"

	"github.com/pmezard/go-difflib/difflib"
)

// AssertTextEqual fails the test with a unified diff when got differs from
// want. Plain equality messages are unreadable for multi-line sanitizer
// output; the diff shows exactly which repair misfired.
func AssertTextEqual(t *testing.T, want, got string) {
	t.Helper()
	if want == got {
		return
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(want),
		B:        difflib.SplitLines(got),
		FromFile: "want",
		ToFile:   "got",
		Context:  2,
	})
	if err != nil {
		t.Fatalf("text mismatch (diff failed: %v)\nwant: %q\ngot:  %q", err, want, got)
	}
	t.Errorf("text mismatch:\n%s", diff)
}

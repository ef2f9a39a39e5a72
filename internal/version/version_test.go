package version

import "testing"

func TestRevision_Stamped(t *testing.T) {
	orig := GitSHA
	defer func() { GitSHA = orig }()

	GitSHA = "abc1234"
	if got := Revision(); got != "abc1234" {
		t.Errorf("Revision() = %q, want abc1234", got)
	}
}

func TestRevision_Unstamped(t *testing.T) {
	orig := GitSHA
	defer func() { GitSHA = orig }()

	GitSHA = "unknown"
	if got := Revision(); got == "" {
		t.Error("Revision() returned an empty string")
	}
}

func TestString(t *testing.T) {
	origV, origSHA, origT := Version, GitSHA, BuildTime
	defer func() { Version, GitSHA, BuildTime = origV, origSHA, origT }()

	Version, GitSHA, BuildTime = "1.2.0", "abc1234", "2026-10-14T09:00:00Z"
	got := String()
	want := "posture 1.2.0 (git abc1234, built 2026-10-14T09:00:00Z)"
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

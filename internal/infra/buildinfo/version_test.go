package buildinfo

import (
	"runtime"
	"runtime/debug"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()

	if info.Version == "" {
		t.Error("Version should not be empty")
	}
	if info.Commit == "" {
		t.Error("Commit should not be empty")
	}
	if info.BuildTime == "" {
		t.Error("BuildTime should not be empty")
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q, want %q", info.GoVersion, runtime.Version())
	}
}

func TestFillFromVCS(t *testing.T) {
	var info Info
	fillFromVCS(&info, []debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef0123"},
		{Key: "vcs.time", Value: "2026-10-01T12:00:00Z"},
		{Key: "vcs.modified", Value: "true"},
	})
	if info.Commit != "0123456789ab" {
		t.Errorf("Commit = %q, want truncated revision", info.Commit)
	}
	if info.BuildTime != "2026-10-01T12:00:00Z" {
		t.Errorf("BuildTime = %q", info.BuildTime)
	}
	if !info.Modified {
		t.Error("Modified should be true")
	}

	// ldflags values win over the VCS stamp.
	info = Info{Commit: "release", BuildTime: "today"}
	fillFromVCS(&info, []debug.BuildSetting{{Key: "vcs.revision", Value: "abc"}, {Key: "vcs.time", Value: "t"}})
	if info.Commit != "release" || info.BuildTime != "today" {
		t.Errorf("ldflags values overwritten: %+v", info)
	}
}

func TestString(t *testing.T) {
	s := String()
	if !strings.HasPrefix(s, Get().Version+" (") {
		t.Errorf("String() = %q, want version prefix", s)
	}
	if !strings.Contains(s, "built at") {
		t.Errorf("String() = %q, want build time", s)
	}
}

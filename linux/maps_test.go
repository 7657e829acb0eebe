package linux

import (
	"os"
	"testing"
)

const sampleMaps = `55e7a1be0000-55e7a1c00000 r--p 00000000 fd:01 123456  /usr/bin/foo
55e7a1c00000-55e7a1d2b000 r-xp 00020000 fd:01 123456  /usr/bin/foo
55e7a1d2b000-55e7a1d80000 r--p 0014b000 fd:01 123456  /usr/bin/foo
7f2a00000000-7f2a00021000 rw-p 00000000 00:00 0
7f2a03c00000-7f2a03c25000 r-xp 00001000 fd:01 654321  /usr/lib/x86_64-linux-gnu/ld-linux-x86-64.so.2
7ffd1c500000-7ffd1c521000 rw-p 00000000 00:00 0       [stack]
`

func TestFindText(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		wantOK    bool
		wantStart uintptr
		wantLen   uintptr
	}{
		{
			name:      "executable segment of the named object",
			path:      "/usr/bin/foo",
			wantOK:    true,
			wantStart: 0x55e7a1c00000,
			wantLen:   0x55e7a1d2b000 - 0x55e7a1c00000,
		},
		{
			name:      "dynamic loader",
			path:      "/usr/lib/x86_64-linux-gnu/ld-linux-x86-64.so.2",
			wantOK:    true,
			wantStart: 0x7f2a03c00000,
			wantLen:   0x25000,
		},
		{
			name:   "no such object",
			path:   "/usr/bin/bar",
			wantOK: false,
		},
		{
			name:   "anonymous mappings never match",
			path:   "[stack]",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, ok := findText([]byte(sampleMaps), tt.path)
			if ok != tt.wantOK {
				t.Fatalf("findText ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if r.Start != tt.wantStart {
				t.Errorf("Start = %#x, want %#x", r.Start, tt.wantStart)
			}
			if r.Length != tt.wantLen {
				t.Errorf("Length = %#x, want %#x", r.Length, tt.wantLen)
			}
			if r.Path != tt.path {
				t.Errorf("Path = %q, want %q", r.Path, tt.path)
			}
		})
	}
}

func TestParseMapLine_Rejects(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"non-executable", "55e7a1be0000-55e7a1c00000 r--p 00000000 fd:01 1  /usr/bin/foo"},
		{"anonymous", "7f2a00000000-7f2a00021000 rw-p 00000000 00:00 0"},
		{"garbage addresses", "zzz-yyy r-xp 00000000 fd:01 1  /usr/bin/foo"},
		{"inverted range", "55e7a1d00000-55e7a1c00000 r-xp 00000000 fd:01 1  /usr/bin/foo"},
		{"short line", "r-xp"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := parseMapLine([]byte(tt.line)); ok {
				t.Errorf("parseMapLine(%q) accepted, want reject", tt.line)
			}
		})
	}
}

func TestTextRange_Contains(t *testing.T) {
	r := TextRange{Start: 0x1000, Length: 0x100}

	tests := []struct {
		addr uintptr
		want bool
	}{
		{0x0fff, false},
		{0x1000, true},
		{0x10ff, true},
		{0x1100, false},
	}

	for _, tt := range tests {
		if got := r.Contains(tt.addr); got != tt.want {
			t.Errorf("Contains(%#x) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

// TestSelfText_Live checks the real process: the running test binary must
// have an executable mapping.
func TestSelfText_Live(t *testing.T) {
	r, err := SelfText()
	if err != nil {
		t.Fatalf("SelfText() error: %v", err)
	}

	if r.Start == 0 || r.Length == 0 {
		t.Fatalf("SelfText() = %+v, want non-empty range", r)
	}

	exe, err := os.Readlink("/proc/self/exe")
	if err != nil {
		t.Fatalf("readlink /proc/self/exe: %v", err)
	}
	if r.Path != exe {
		t.Errorf("Path = %q, want %q", r.Path, exe)
	}
}

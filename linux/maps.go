package linux

import (
	"bytes"
	"os"
	"strconv"

	"sysfail-go/errors"
)

// TextRange describes an executable mapping of this process.
type TextRange struct {
	// Start is the base address of the mapping.
	Start uintptr
	// Length is the mapping size in bytes.
	Length uintptr
	// Path is the backing object's pathname.
	Path string
}

// End returns the first address past the mapping.
func (t TextRange) End() uintptr {
	return t.Start + t.Length
}

// Contains reports whether addr falls inside the mapping.
func (t TextRange) Contains(addr uintptr) bool {
	return addr >= t.Start && addr < t.End()
}

// SelfText locates the executable mapping of the object this library is
// loaded from, by matching /proc/self/maps entries against
// /proc/self/exe. The returned range is handed to the kernel as the
// Syscall User Dispatch exempt region, so syscalls issued from our own
// text (the forwarding path included) never trap.
func SelfText() (TextRange, error) {
	exe, err := os.Readlink("/proc/self/exe")
	if err != nil {
		return TextRange{}, errors.Wrap(err, errors.ErrMapUnavailable, "readlink")
	}

	data, err := os.ReadFile("/proc/self/maps")
	if err != nil {
		return TextRange{}, errors.Wrap(err, errors.ErrMapUnavailable, "maps")
	}

	r, ok := findText(data, exe)
	if !ok {
		return TextRange{}, errors.ErrNoTextMapping
	}
	return r, nil
}

// findText scans maps-formatted data for the first executable mapping whose
// pathname equals path. Lines look like:
//
//	55e7a1c00000-55e7a1d2b000 r-xp 00020000 fd:01 123456  /usr/bin/foo
func findText(data []byte, path string) (TextRange, bool) {
	for len(data) > 0 {
		line := data
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			line, data = data[:i], data[i+1:]
		} else {
			data = nil
		}

		r, ok := parseMapLine(line)
		if ok && r.Path == path {
			return r, true
		}
	}
	return TextRange{}, false
}

// parseMapLine parses a single maps line and returns it only if the mapping
// is executable and the line names a pathname. Pseudo-paths such as
// [vdso] count as pathnames here.
func parseMapLine(line []byte) (TextRange, bool) {
	fields := bytes.Fields(line)
	if len(fields) < 6 {
		return TextRange{}, false
	}

	perms := fields[1]
	if len(perms) < 3 || perms[2] != 'x' {
		return TextRange{}, false
	}

	addrs := bytes.SplitN(fields[0], []byte{'-'}, 2)
	if len(addrs) != 2 {
		return TextRange{}, false
	}
	start, err := strconv.ParseUint(string(addrs[0]), 16, 64)
	if err != nil {
		return TextRange{}, false
	}
	end, err := strconv.ParseUint(string(addrs[1]), 16, 64)
	if err != nil || end <= start {
		return TextRange{}, false
	}

	return TextRange{
		Start:  uintptr(start),
		Length: uintptr(end - start),
		Path:   string(fields[5]),
	}, true
}

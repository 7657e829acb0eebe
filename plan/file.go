package plan

import (
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/sys/unix"

	"sysfail-go/errors"
)

// File is the on-disk TOML form of a plan, consumed by the CLI:
//
//	poll_interval = "10ms"
//	selector = "all"
//
//	[syscalls.read]
//	fail = 0.33
//	errors = { EIO = 1.0 }
//
//	[syscalls.openat]
//	fail = 0.25
//	errors = { EINVAL = 1.0 }
//	delay = 0.5
//	max_delay = "10ms"
type File struct {
	// PollInterval configures ProcPoll discovery; empty selects the
	// default, "off" disables background discovery.
	PollInterval string `toml:"poll_interval"`

	// Selector is a thread-selection shorthand: "all" (default), "none",
	// "even" or "odd" (by tid parity).
	Selector string `toml:"selector"`

	// Syscalls maps syscall names to their outcomes.
	Syscalls map[string]FileOutcome `toml:"syscalls"`
}

// FileOutcome is one syscall's entry in a plan file.
type FileOutcome struct {
	Fail      float64            `toml:"fail"`
	FailAfter float64            `toml:"fail_after_bias"`
	Delay     float64            `toml:"delay"`
	MaxDelay  string             `toml:"max_delay"`
	Errors    map[string]float64 `toml:"errors"`
}

// Load reads and decodes a plan file.
func Load(path string) (*File, error) {
	var f File
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, errors.Wrap(err, errors.ErrInvalidPlan, "load")
	}
	return &f, nil
}

// Parse decodes a plan from TOML text.
func Parse(data string) (*File, error) {
	var f File
	if _, err := toml.Decode(data, &f); err != nil {
		return nil, errors.Wrap(err, errors.ErrInvalidPlan, "parse")
	}
	return &f, nil
}

// Plan resolves the file into a validated Plan.
func (f *File) Plan() (Plan, error) {
	outcomes := make(map[int]Outcome, len(f.Syscalls))
	for name, fo := range f.Syscalls {
		nr, err := SyscallNumber(name)
		if err != nil {
			return Plan{}, err
		}

		o := Outcome{}
		if o.Fail, err = NewProbability(fo.Fail, fo.FailAfter); err != nil {
			return Plan{}, errors.WrapWithDetail(err, errors.ErrInvalidPlan, "plan", name)
		}
		if o.Delay, err = NewProbability(fo.Delay, 0); err != nil {
			return Plan{}, errors.WrapWithDetail(err, errors.ErrInvalidPlan, "plan", name)
		}
		if fo.MaxDelay != "" {
			d, err := time.ParseDuration(fo.MaxDelay)
			if err != nil {
				return Plan{}, errors.Wrap(err, errors.ErrInvalidPlan, "max_delay")
			}
			o.MaxDelay = d
		}
		if len(fo.Errors) > 0 {
			o.ErrorWeights = make(map[unix.Errno]float64, len(fo.Errors))
			for ename, w := range fo.Errors {
				e, err := ErrnoByName(ename)
				if err != nil {
					return Plan{}, err
				}
				o.ErrorWeights[e] = w
			}
		}
		outcomes[nr] = o
	}

	selector, err := parseSelector(f.Selector)
	if err != nil {
		return Plan{}, err
	}

	discovery, err := f.discovery()
	if err != nil {
		return Plan{}, err
	}

	return New(outcomes, selector, discovery)
}

func parseSelector(s string) (Selector, error) {
	switch s {
	case "", "all":
		return SelectAll, nil
	case "none":
		return func(int) bool { return false }, nil
	case "even":
		return func(tid int) bool { return tid%2 == 0 }, nil
	case "odd":
		return func(tid int) bool { return tid%2 == 1 }, nil
	}
	return nil, errors.New(errors.ErrInvalidPlan, "selector", s)
}

func (f *File) discovery() (Discovery, error) {
	switch f.PollInterval {
	case "":
		return ProcPoll{}, nil
	case "off":
		return None{}, nil
	}
	d, err := time.ParseDuration(f.PollInterval)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInvalidPlan, "poll_interval")
	}
	return ProcPoll{Interval: d}, nil
}

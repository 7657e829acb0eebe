package plan

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"sysfail-go/errors"
)

func TestNewProbability(t *testing.T) {
	tests := []struct {
		name    string
		p       float64
		bias    float64
		wantErr bool
	}{
		{"zero", 0, 0, false},
		{"one", 1, 0, false},
		{"half with bias", 0.5, 1, false},
		{"negative p", -0.1, 0, true},
		{"p above one", 1.1, 0, true},
		{"negative bias", 0.5, -0.5, true},
		{"bias above one", 0.5, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pr, err := NewProbability(tt.p, tt.bias)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewProbability(%v, %v) error = %v, wantErr %v",
					tt.p, tt.bias, err, tt.wantErr)
			}
			if err != nil {
				if !errors.IsKind(err, errors.ErrInvalidProbability) {
					t.Errorf("error kind = %v, want ErrInvalidProbability", err)
				}
				return
			}
			if pr.P != tt.p || pr.AfterBias != tt.bias {
				t.Errorf("got %+v, want {%v %v}", pr, tt.p, tt.bias)
			}
		})
	}
}

func TestP_PanicsOutOfRange(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("P(1.5) should panic")
		}
	}()
	P(1.5)
}

func TestOutcome_Validate(t *testing.T) {
	tests := []struct {
		name    string
		outcome Outcome
		wantErr error
	}{
		{
			name:    "empty outcome",
			outcome: Outcome{},
		},
		{
			name: "failing outcome with weights",
			outcome: Outcome{
				Fail:         P(1),
				ErrorWeights: map[unix.Errno]float64{unix.EIO: 1},
			},
		},
		{
			name: "delay only needs no weights",
			outcome: Outcome{
				Delay:    P(0.5),
				MaxDelay: 10 * time.Millisecond,
			},
		},
		{
			name:    "failing outcome without weights",
			outcome: Outcome{Fail: P(0.5)},
			wantErr: errors.ErrNoErrorWeights,
		},
		{
			name: "negative weight",
			outcome: Outcome{
				Fail:         P(0.5),
				ErrorWeights: map[unix.Errno]float64{unix.EIO: -1},
			},
			wantErr: errors.ErrNegativeWeight,
		},
		{
			name:    "negative max delay",
			outcome: Outcome{MaxDelay: -time.Second},
			wantErr: &errors.FaultError{Kind: errors.ErrInvalidPlan},
		},
		{
			name:    "invalid fail probability",
			outcome: Outcome{Fail: Probability{P: 2}},
			wantErr: errors.ErrProbabilityRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.outcome.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestOutcome_ErrnosSorted(t *testing.T) {
	o := Outcome{
		ErrorWeights: map[unix.Errno]float64{
			unix.ENOSPC: 1,
			unix.EIO:    2,
			unix.EINVAL: 3,
		},
	}

	got := o.Errnos()
	want := []unix.Errno{unix.EIO, unix.EINVAL, unix.ENOSPC}

	if len(got) != len(want) {
		t.Fatalf("Errnos() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Errnos()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestPlan_Validate(t *testing.T) {
	bad := map[int]Outcome{
		0: {Fail: P(1)}, // no error weights
	}

	if _, err := New(bad, SelectAll, None{}); err == nil {
		t.Error("New should reject a failing outcome without weights")
	}

	good := map[int]Outcome{
		0: {Fail: P(1), ErrorWeights: map[unix.Errno]float64{unix.EIO: 1}},
	}
	p, err := New(good, SelectAll, ProcPoll{})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if !p.Selects(1234) {
		t.Error("SelectAll plan should select any tid")
	}
}

func TestPlan_NilSelectorSelectsNothing(t *testing.T) {
	var p Plan
	if p.Selects(1) {
		t.Error("zero plan should select no threads")
	}
}

func TestProcPoll_Itvl(t *testing.T) {
	if got := (ProcPoll{}).Itvl(); got != DefaultPollInterval {
		t.Errorf("default interval = %v, want %v", got, DefaultPollInterval)
	}
	if got := (ProcPoll{Interval: time.Second}).Itvl(); got != time.Second {
		t.Errorf("interval = %v, want 1s", got)
	}
}

func TestSyscallNumber(t *testing.T) {
	tests := []struct {
		name    string
		want    int
		wantErr bool
	}{
		{"read", 0, false},
		{"write", 1, false},
		{"openat", 257, false},
		{"clone3", 435, false},
		{"42", 42, false}, // numeric fallback
		{"frobnicate", 0, true},
		{"-1", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nr, err := SyscallNumber(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SyscallNumber(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if err == nil && nr != tt.want {
				t.Errorf("SyscallNumber(%q) = %d, want %d", tt.name, nr, tt.want)
			}
		})
	}
}

func TestSyscallName_RoundTrip(t *testing.T) {
	for name, nr := range map[string]int{"read": 0, "openat": 257, "clone3": 435} {
		if got := SyscallName(nr); got != name {
			t.Errorf("SyscallName(%d) = %q, want %q", nr, got, name)
		}
	}
	if got := SyscallName(9999); got != "9999" {
		t.Errorf("SyscallName(9999) = %q, want decimal fallback", got)
	}
}

func TestErrnoByName(t *testing.T) {
	e, err := ErrnoByName("EIO")
	if err != nil || e != unix.EIO {
		t.Errorf("ErrnoByName(EIO) = (%v, %v), want (EIO, nil)", e, err)
	}

	if _, err := ErrnoByName("EWHATEVER"); !errors.Is(err, errors.ErrUnknownErrno) {
		t.Errorf("ErrnoByName(EWHATEVER) error = %v, want ErrUnknownErrno", err)
	}
}

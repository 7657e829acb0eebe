package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"sysfail-go/linux"
	"sysfail-go/plan"
)

var checkCmd = &cobra.Command{
	Use:   "check <plan.toml>",
	Short: "Validate a plan file and print what it resolves to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck(args[0])
	},
}

func runCheck(path string) error {
	f, err := plan.Load(path)
	if err != nil {
		return err
	}
	p, err := f.Plan()
	if err != nil {
		return err
	}

	bold, reset := "", ""
	if term.IsTerminal(int(os.Stdout.Fd())) {
		bold, reset = "\033[1m", "\033[0m"
	}

	fmt.Printf("%splan %s: ok%s\n", bold, path, reset)
	if !linux.DispatchSupported() {
		fmt.Println("note: this kernel lacks syscall user dispatch; the plan cannot run here")
	}

	nrs := make([]int, 0, len(p.Outcomes))
	for nr := range p.Outcomes {
		nrs = append(nrs, nr)
	}
	sort.Ints(nrs)

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "SYSCALL\tFAIL\tDELAY\tMAX DELAY\tERRNOS")
	for _, nr := range nrs {
		o := p.Outcomes[nr]
		fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%s\t%s\n",
			plan.SyscallName(nr), o.Fail.P, o.Delay.P, o.MaxDelay, errnoList(o))
	}
	return w.Flush()
}

func errnoList(o plan.Outcome) string {
	if len(o.ErrorWeights) == 0 {
		return "-"
	}
	s := ""
	for i, e := range o.Errnos() {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%s:%g", unix.ErrnoName(e), o.ErrorWeights[e])
	}
	return s
}

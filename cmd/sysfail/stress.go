package main

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	sysfail "sysfail-go"
	"sysfail-go/logging"
	"sysfail-go/plan"
	"sysfail-go/utils"
)

var (
	stressOps     int
	stressWorkers int
)

var stressCmd = &cobra.Command{
	Use:   "stress <plan.toml>",
	Short: "Run a file I/O workload under the plan and report rates",
	Long: `stress installs the plan in this process, then hammers a temp file
with write+read pairs from several threads and reports how many
operations the injected faults failed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStress(args[0])
	},
}

func init() {
	stressCmd.Flags().IntVar(&stressOps, "ops", 1000, "operations per worker")
	stressCmd.Flags().IntVar(&stressWorkers, "workers", 4, "worker threads")
}

func runStress(path string) error {
	f, err := plan.Load(path)
	if err != nil {
		return err
	}
	p, err := f.Plan()
	if err != nil {
		return err
	}

	file, err := utils.NewTempFile()
	if err != nil {
		return err
	}
	defer file.Remove()
	if err := file.Write("foo bar baz quux"); err != nil {
		return err
	}

	s, err := sysfail.NewSession(p)
	if err != nil {
		return err
	}
	defer s.Close()

	var reads, readFails, writes, writeFails atomic.Int64

	var g errgroup.Group
	for w := 0; w < stressWorkers; w++ {
		g.Go(func() error {
			// Injection is per OS thread; pin the worker and enroll it.
			runtime.LockOSThread()
			tid := unix.Gettid()
			if err := s.AddThread(tid); err != nil {
				return err
			}
			logging.Debug("stress worker armed", "tid", tid)

			for i := 0; i < stressOps; i++ {
				writes.Add(1)
				if err := file.Write("foo bar baz quux"); err != nil {
					writeFails.Add(1)
				}
				reads.Add(1)
				if _, err := file.Read(); err != nil {
					readFails.Add(1)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	s.Close()

	fmt.Printf("workers:      %d\n", stressWorkers)
	fmt.Printf("writes:       %d (%d failed, %.1f%%)\n",
		writes.Load(), writeFails.Load(), pct(writeFails.Load(), writes.Load()))
	fmt.Printf("reads:        %d (%d failed, %.1f%%)\n",
		reads.Load(), readFails.Load(), pct(readFails.Load(), reads.Load()))
	return nil
}

func pct(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(part) / float64(total)
}

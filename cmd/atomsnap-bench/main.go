// Command atomsnap-bench is a throwaway benchmark harness for the gate,
// explicitly out of scope for the reclamation core itself (spec.md §1:
// "Benchmark harnesses, example programs, and comparison code... treated
// as external collaborators"). It exists only to exercise Gate from a
// multi-goroutine workload and print throughput, the way
// calvinalkan-agent-task uses github.com/spf13/pflag for its own CLI
// surface.
package main

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/pflag"

	"github.com/minseok127/atomsnap"
)

func main() {
	readers := pflag.IntP("readers", "r", 4, "number of concurrent reader goroutines")
	duration := pflag.DurationP("duration", "d", time.Second, "how long to run")
	pflag.Parse()

	var frees atomic.Int64
	gate, err := atomsnap.NewGate(atomsnap.Config{
		OnFree: func(object, freeContext any) {
			frees.Add(1)
		},
		OnArenaReclaimed: adviseArenaReclaimed,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "atomsnap-bench: init_gate failed:", err)
		os.Exit(1)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup

	for i := 0; i < *readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if v := gate.AcquireVersion(); v != nil {
					v.Release()
				}
			}
		}()
	}

	var seq int64
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-stop:
				return
			default:
			}
			seq++
			v, err := gate.MakeVersion()
			if err != nil {
				continue
			}
			v.SetObject(seq, nil)
			gate.ExchangeVersion(v)
		}
	}()

	time.Sleep(*duration)
	close(stop)
	wg.Wait()
	<-writerDone

	fmt.Printf("atomsnap-bench: %d exchanges, %d frees\n", seq, frees.Load())
}

package bench

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/upsync-dev/upsync/cmd/util"
	"github.com/upsync-dev/upsync/lib/lock"
	"github.com/upsync-dev/upsync/lib/sched"
)

var (
	// BenchCmd represents the bench command group
	BenchCmd = &cobra.Command{
		Use:     "bench",
		Short:   "Micro-benchmarks for the upsync primitives",
		RunE:    run,
		PreRunE: processBenchConfig,
	}

	benchNumThreads = 8
	benchSkip       = make([]string, 0)
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// add flags
	key := "threads"
	BenchCmd.PersistentFlags().Int(key, 8, util.WrapString("Number of goroutines to use for the contended benchmarks"))
	key = "skip"
	BenchCmd.PersistentFlags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. lock-many,trigger)"))
}

func processBenchConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	benchNumThreads = viper.GetInt("threads")
	benchSkip = strings.Split(viper.GetString("skip"), ",")
	return nil
}

func shouldSkip(name string) bool {
	for _, s := range benchSkip {
		if strings.TrimSpace(s) == name {
			return true
		}
	}
	return false
}

func run(_ *cobra.Command, _ []string) error {
	fmt.Println("upsync micro-benchmarks")
	fmt.Printf("Goroutines: %d\n", benchNumThreads)
	fmt.Println()

	results := make(map[string]testing.BenchmarkResult)

	if !shouldSkip("lock-many") {
		results["lock-many"] = benchLockMany()
	}
	if !shouldSkip("lock-one") {
		results["lock-one"] = benchLockOne()
	}
	if !shouldSkip("lock-mixed") {
		benchLockMixed()
	}
	if !shouldSkip("trigger") {
		results["trigger"] = benchTrigger()
	}
	if !shouldSkip("trigger-multi") {
		results["trigger-multi"] = benchTriggerMulti()
	}

	fmt.Println()
	for name, r := range results {
		fmt.Printf("%-15s %12d ops %12.1f ns/op\n", name, r.N, float64(r.T.Nanoseconds())/float64(r.N))
	}
	return nil
}

// benchLockMany measures uncontended Many-mode throughput across goroutines.
func benchLockMany() testing.BenchmarkResult {
	l := lock.New("bench-many")
	return testing.Benchmark(func(b *testing.B) {
		b.SetParallelism(benchNumThreads)
		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				l.WithMany(func() {})
			}
		})
	})
}

// benchLockOne measures sequential One-mode acquire/release cycles.
func benchLockOne() testing.BenchmarkResult {
	l := lock.New("bench-one")
	return testing.Benchmark(func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			l.WithOne(false, func() {})
		}
	})
}

// benchLockMixed runs steady Many traffic with periodic priority One-mode
// acquisitions and reports One-mode admission latency percentiles.
func benchLockMixed() {
	l := lock.New("bench-mixed")
	timer := gometrics.NewTimer()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < benchNumThreads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				l.WithMany(func() {})
			}
		}()
	}

	const rounds = 200
	for i := 0; i < rounds; i++ {
		start := time.Now()
		l.WithOne(true, func() {})
		timer.Update(time.Since(start))
		time.Sleep(time.Millisecond)
	}
	close(stop)
	wg.Wait()

	fmt.Printf("lock-mixed      One-mode admission under Many load (%d rounds)\n", rounds)
	fmt.Printf("                mean %.1fus p95 %.1fus p99 %.1fus max %.1fus\n",
		timer.Mean()/1e3,
		timer.Percentile(0.95)/1e3,
		timer.Percentile(0.99)/1e3,
		float64(timer.Max())/1e3,
	)
}

// benchTrigger measures Trigger merge throughput on a single Updater.
func benchTrigger() testing.BenchmarkResult {
	u := sched.NewUpdater("bench-trigger", func() error { return nil }, nil)
	defer u.Close()
	return testing.Benchmark(func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			u.TriggerPostpone(time.Hour)
		}
	})
}

// benchTriggerMulti measures concurrent keyed triggers on a MultiUpdater.
func benchTriggerMulti() testing.BenchmarkResult {
	m := sched.NewMultiUpdater[int]("bench-trigger-multi", func(int) error { return nil }, nil)
	defer m.Close()
	return testing.Benchmark(func(b *testing.B) {
		b.SetParallelism(benchNumThreads)
		var key int
		var mu sync.Mutex
		b.RunParallel(func(pb *testing.PB) {
			mu.Lock()
			key++
			k := key
			mu.Unlock()
			for pb.Next() {
				m.TriggerPostpone(k, time.Hour)
			}
		})
	})
}

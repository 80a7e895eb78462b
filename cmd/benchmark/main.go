// Command benchmark drives the segment-store engine through the
// workload-generation framework in common/benchmark, the way cmd/benchmark
// drove the teacher's hashindex/lsm engines through the same framework.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/intellect4all/kvdb/common/benchmark"
	"github.com/intellect4all/kvdb/kvengine"
)

func main() {
	quick := flag.Bool("quick", false, "Run quick benchmarks (shorter duration)")
	workload := flag.String("workload", "all", "Workload to run (all, write-heavy-uniform, read-heavy-zipfian, balanced-uniform, write-only-sequential)")
	duration := flag.Duration("duration", 0, "Override duration for each benchmark (0 keeps the workload default)")
	concurrency := flag.Int("concurrency", 0, "Override concurrent workers (0 keeps the workload default)")
	segmentSize := flag.Int64("segment-size", 64<<20, "engine segment size in bytes")
	buckets := flag.Uint("buckets", 1<<16, "engine hash index bucket capacity")
	flag.Parse()

	fmt.Println("kvdb Benchmark Suite")
	fmt.Println("====================")

	var configs []benchmark.Config
	if *quick {
		configs = benchmark.QuickWorkloads()
	} else {
		configs = benchmark.StandardWorkloads()
	}

	if *duration > 0 {
		for i := range configs {
			configs[i].Duration = *duration
		}
	}
	if *concurrency > 0 {
		for i := range configs {
			configs[i].Concurrency = *concurrency
		}
	}

	if *workload != "all" {
		filtered := make([]benchmark.Config, 0, 1)
		for _, config := range configs {
			if config.Name == *workload {
				filtered = append(filtered, config)
			}
		}
		if len(filtered) == 0 {
			fmt.Printf("Unknown workload: %s\n", *workload)
			os.Exit(1)
		}
		configs = filtered
	}

	dir, err := os.MkdirTemp("", "kvdb-benchmark-*")
	if err != nil {
		fmt.Printf("Failed to create temp dir: %v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(dir)

	cfg := kvengine.DefaultConfig()
	cfg.DevicePath = dir + "/bench.img"
	cfg.SegmentSize = *segmentSize
	cfg.BucketCapacity = uint32(*buckets)

	engine, err := kvengine.Open(cfg)
	if err != nil {
		fmt.Printf("Failed to open engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	results := make([]*benchmark.Result, 0, len(configs))
	for _, config := range configs {
		fmt.Printf("\n=== Running: %s ===\n", config.Name)

		bench := benchmark.NewBenchmark(engine, config)
		result, err := bench.Run()
		if err != nil {
			fmt.Printf("Benchmark failed: %v\n", err)
			continue
		}

		results = append(results, result)
		printResult(result)
	}

	printSummaryTable(results)
}

func printResult(r *benchmark.Result) {
	fmt.Printf("\n--- Results ---\n")
	fmt.Printf("Throughput: %.0f ops/sec\n", r.OpsPerSec)
	fmt.Printf("Total Ops: %d (writes: %d, reads: %d)\n",
		r.TotalOps, r.WriteOps, r.ReadOps)

	if r.WriteOps > 0 {
		fmt.Printf("\nWrite Latency:\n")
		fmt.Printf("  Min:  %8s\n", r.WriteLatency.Min)
		fmt.Printf("  Mean: %8s\n", r.WriteLatency.Mean)
		fmt.Printf("  P50:  %8s\n", r.WriteLatency.P50)
		fmt.Printf("  P95:  %8s\n", r.WriteLatency.P95)
		fmt.Printf("  P99:  %8s\n", r.WriteLatency.P99)
		fmt.Printf("  P999: %8s\n", r.WriteLatency.P999)
		fmt.Printf("  Max:  %8s\n", r.WriteLatency.Max)
	}

	if r.ReadOps > 0 {
		fmt.Printf("\nRead Latency:\n")
		fmt.Printf("  Min:  %8s\n", r.ReadLatency.Min)
		fmt.Printf("  Mean: %8s\n", r.ReadLatency.Mean)
		fmt.Printf("  P50:  %8s\n", r.ReadLatency.P50)
		fmt.Printf("  P95:  %8s\n", r.ReadLatency.P95)
		fmt.Printf("  P99:  %8s\n", r.ReadLatency.P99)
		fmt.Printf("  P999: %8s\n", r.ReadLatency.P999)
		fmt.Printf("  Max:  %8s\n", r.ReadLatency.Max)
	}

	fmt.Printf("\nLive Data Growth: %.2f MB\n", r.LiveDataGrowthMB)
	fmt.Printf("Element Count: %d (buckets: %d, segments: %d)\n",
		r.EngineStats.ElementCount, r.EngineStats.BucketCount, r.EngineStats.SegmentCount)
}

func printSummaryTable(results []*benchmark.Result) {
	if len(results) == 0 {
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("BENCHMARK SUMMARY")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Printf("\n%-25s %12s %12s %12s\n",
		"Workload", "Throughput", "Write P99", "Read P99")
	fmt.Println(strings.Repeat("-", 80))

	for _, r := range results {
		writeP99 := "N/A"
		if r.WriteOps > 0 {
			writeP99 = fmt.Sprintf("%s", r.WriteLatency.P99)
		}

		readP99 := "N/A"
		if r.ReadOps > 0 {
			readP99 = fmt.Sprintf("%s", r.ReadLatency.P99)
		}

		fmt.Printf("%-25s %10.0f/s %12s %12s\n",
			r.Config.Name,
			r.OpsPerSec,
			writeP99,
			readP99)
	}
}

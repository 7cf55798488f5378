package main

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/chaifeng/proxy.pac/internal/engine"
	"github.com/chaifeng/proxy.pac/internal/model"
	"github.com/chaifeng/proxy.pac/internal/parser"
)

var (
	hostsFile string
	outFile   string
	workers   int
)

var resultHeader = []string{"host", "directive", "action", "stage", "rule", "resolved_ip"}

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Classify every host of a file and write the decisions as CSV",
		RunE:  runBatch,
	}
	cmd.Flags().StringVar(&hostsFile, "hosts", "", "Hosts file: CSV with a 'Host' column or one host per line (required)")
	cmd.Flags().StringVar(&outFile, "out", "results.csv", "Output CSV file")
	cmd.Flags().IntVarP(&workers, "workers", "w", runtime.NumCPU(), "Number of concurrent workers")
	cmd.MarkFlagRequired("hosts")
	return cmd
}

func runBatch(cmd *cobra.Command, args []string) error {
	startTime := time.Now()

	evaluator, err := buildEvaluator()
	if err != nil {
		return err
	}

	hostsF, err := os.Open(hostsFile)
	if err != nil {
		slog.Error("Failed to open hosts file", "path", hostsFile, "error", err)
		return err
	}
	defer hostsF.Close()

	hosts, err := parser.ParseHosts(hostsF)
	if err != nil {
		slog.Error("Failed to parse hosts file", "path", hostsFile, "error", err)
		return err
	}
	slog.Info("Hosts parsed", "count", len(hosts))

	out, err := os.Create(outFile)
	if err != nil {
		slog.Error("Failed to create output file", "path", outFile, "error", err)
		return err
	}
	defer out.Close()

	total := uint64(len(hosts))
	var completed uint64
	progressDone := make(chan struct{})
	if total > 0 {
		go reportProgress(total, &completed, progressDone)
	}

	if workers < 1 {
		workers = 1
	}
	tasks := make(chan string, workers*100)
	results := make(chan model.Decision, workers*100)
	var wg sync.WaitGroup

	slog.Info("Starting result writer", "output_file", outFile)
	var writerWg sync.WaitGroup
	var writeErr error
	writerWg.Add(1)
	go func() {
		defer writerWg.Done()
		writeErr = resultWriter(results, csv.NewWriter(out), &completed)
	}()

	slog.Info("Starting evaluator workers", "count", workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go worker(&wg, i+1, evaluator, tasks, results)
	}

	go func() {
		for _, host := range hosts {
			tasks <- host
		}
		close(tasks)
		slog.Debug("Task producer finished", "total_tasks", len(hosts))
	}()

	wg.Wait()
	close(results)
	writerWg.Wait()
	close(progressDone)

	if writeErr != nil {
		slog.Error("Failed to write results", "path", outFile, "error", writeErr)
		return writeErr
	}
	slog.Info("Batch complete", "hosts", len(hosts), "duration", time.Since(startTime))
	return nil
}

func reportProgress(total uint64, completed *uint64, done <-chan struct{}) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	var lastLogged uint64
	for {
		select {
		case <-ticker.C:
			n := atomic.LoadUint64(completed)
			if n == lastLogged {
				continue
			}
			percent := float64(n) / float64(total) * 100
			slog.Info("Progress", "total_hosts", total, "completed_hosts", n, "percent", fmt.Sprintf("%.2f", percent))
			lastLogged = n
			if n >= total {
				return
			}
		case <-done:
			return
		}
	}
}

func worker(wg *sync.WaitGroup, id int, evaluator *engine.Evaluator, tasks <-chan string, results chan<- model.Decision) {
	defer wg.Done()
	slog.Debug("Worker started", "id", id)
	for host := range tasks {
		results <- evaluator.Evaluate(host)
	}
	slog.Debug("Worker finished", "id", id)
}

// resultWriter drains results even after a write error so workers never block.
func resultWriter(results <-chan model.Decision, w *csv.Writer, completed *uint64) error {
	var err error
	if err = w.Write(resultHeader); err != nil {
		err = fmt.Errorf("failed to write header: %w", err)
	}

	var written uint64
	for d := range results {
		if err == nil {
			err = w.Write([]string{d.Host, d.Directive, string(d.Action), string(d.Stage), d.Rule, d.ResolvedIP})
		}
		written++
		if written%1024 == 0 {
			atomic.StoreUint64(completed, written)
		}
	}
	atomic.StoreUint64(completed, written)

	w.Flush()
	if err == nil {
		err = w.Error()
	}
	slog.Debug("Result writer finished", "written", written)
	return err
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cecilphillip/shadowshop/internal/common"
)

type Options struct {
	URL         string
	Requests    int
	Concurrency int
	Timeout     time.Duration
}

func defaultOptions() Options {
	return Options{
		URL:         "http://localhost:8000/api/v1/checkouts",
		Requests:    2000,
		Concurrency: 500,
		Timeout:     5 * time.Second,
	}
}

type Report struct {
	Requests int
	Accepted int
	Rejected int
	Failed   int
	Elapsed  time.Duration
}

// Throughput is requests per second over the whole run.
func (r Report) Throughput() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Requests) / r.Elapsed.Seconds()
}

func (r Report) Print(w io.Writer) {
	fmt.Fprintf(w, "elapsed:    %v\n", r.Elapsed)
	fmt.Fprintf(w, "requests:   %d\n", r.Requests)
	fmt.Fprintf(w, "throughput: %.2f req/s\n", r.Throughput())
	fmt.Fprintf(w, "accepted:   %d\n", r.Accepted)
	fmt.Fprintf(w, "rejected:   %d\n", r.Rejected)
	fmt.Fprintf(w, "failed:     %d\n", r.Failed)
}

// Run posts opts.Requests checkout events with at most opts.Concurrency in
// flight. Each request carries a distinct session ID.
func Run(ctx context.Context, opts Options) (Report, error) {
	if opts.Requests <= 0 || opts.Concurrency <= 0 {
		return Report{}, errors.New("requests and concurrency must be positive")
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        opts.Concurrency,
			MaxIdleConnsPerHost: opts.Concurrency,
			IdleConnTimeout:     30 * time.Second,
		},
		Timeout: opts.Timeout,
	}
	runID := time.Now().UnixNano()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		report = Report{Requests: opts.Requests}
	)
	sem := make(chan struct{}, opts.Concurrency)
	start := time.Now()

	wg.Add(opts.Requests)
	for i := 0; i < opts.Requests; i++ {
		sem <- struct{}{}
		go func(i int) {
			defer func() {
				<-sem
				wg.Done()
			}()

			status, err := post(ctx, httpClient, opts.URL, common.FulfillOrder{
				SessionID: fmt.Sprintf("cs_load_%d_%d", runID, i),
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed++
			case status == http.StatusAccepted:
				report.Accepted++
			default:
				report.Rejected++
			}
		}(i)
	}
	wg.Wait()

	report.Elapsed = time.Since(start)
	return report, nil
}

func post(ctx context.Context, c *http.Client, url string, order common.FulfillOrder) (int, error) {
	body, err := json.Marshal(order)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

package main

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
)

const (
	baseURL       = "http://127.0.0.1:8095"
	numWorkers    = 50
	testDuration  = 10 * time.Second
	numIdentities = 200
)

// gatewayToken lets the load test assert identities like the chat gateway
// does. Without it every request is keyed by client address.
var gatewayToken = os.Getenv("WSD_GATEWAY_TOKEN")

var locations = []string{"Berlin", "New York", "Tokyo", "Sao Paulo", "Oslo", "Cape Town"}

var httpClient = &http.Client{
	Timeout: 35 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        200,
		MaxIdleConnsPerHost: 200,
		IdleConnTimeout:     30 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   2 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	},
}

type result struct {
	endpoint string
	status   int
	latency  time.Duration
	err      bool
}

type stats struct {
	count     int64
	errors    int64
	limited   int64
	latencies []time.Duration
}

func main() {
	fmt.Println("=== WSD Load Test ===")
	fmt.Printf("Workers: %d | Duration: %s | Identities: %d\n\n", numWorkers, testDuration, numIdentities)

	// Wait for server
	fmt.Print("Waiting for server... ")
	for i := 0; i < 30; i++ {
		resp, err := httpClient.Get(baseURL + "/health")
		if err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			break
		}
		if i == 29 {
			fmt.Println("FAILED: server not responding")
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	fmt.Println("OK")

	// Phase 1: settings writes, no upstream traffic for cached locations
	fmt.Println("\n--- Phase 1: Settings (SETGREET / SETCOLORS / INFO) ---")
	runPhase(testDuration, func(rng *rand.Rand) result {
		r := rng.Float64()
		switch {
		case r < 0.35:
			return doOption(rng, "/setgreet")
		case r < 0.70:
			return doOption(rng, "/setcolors")
		default:
			return doInfo(rng)
		}
	})

	// Phase 2: weather queries from many identities, exercising the throttle
	fmt.Println("\n--- Phase 2: Queries (WEATHER / FORECAST / channel triggers) ---")
	runPhase(testDuration, func(rng *rand.Rand) result {
		r := rng.Float64()
		switch {
		case r < 0.50:
			return doQuery(rng, "/weather")
		case r < 0.75:
			return doQuery(rng, "/forecast")
		case r < 0.95:
			return doMessage(rng)
		default:
			return doHelp()
		}
	})
}

func runPhase(duration time.Duration, workFn func(rng *rand.Rand) result) {
	results := make(chan result, 10000)
	var wg sync.WaitGroup
	var totalOps atomic.Int64
	stop := make(chan struct{})

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for {
				select {
				case <-stop:
					return
				default:
					r := workFn(rng)
					totalOps.Add(1)
					results <- r
				}
			}
		}(rand.Int63() + int64(i))
	}

	allResults := make(map[string]*stats)
	done := make(chan struct{})
	go func() {
		for r := range results {
			s, ok := allResults[r.endpoint]
			if !ok {
				s = &stats{}
				allResults[r.endpoint] = s
			}
			s.count++
			if r.err {
				s.errors++
			}
			if r.status == http.StatusTooManyRequests {
				s.limited++
			}
			s.latencies = append(s.latencies, r.latency)
		}
		close(done)
	}()

	time.Sleep(duration)
	close(stop)
	wg.Wait()
	close(results)
	<-done

	printResults(allResults, duration)
}

func printResults(allResults map[string]*stats, duration time.Duration) {
	var totalOps int64
	var totalErrors int64

	endpoints := make([]string, 0, len(allResults))
	for ep := range allResults {
		endpoints = append(endpoints, ep)
	}
	sort.Strings(endpoints)

	fmt.Printf("\n  %-22s %8s %6s %6s %10s %10s %10s %10s\n",
		"Endpoint", "Reqs", "Errs", "429s", "Avg", "P50", "P95", "P99")
	fmt.Println("  " + repeat("-", 95))

	for _, ep := range endpoints {
		s := allResults[ep]
		totalOps += s.count
		totalErrors += s.errors

		sort.Slice(s.latencies, func(i, j int) bool {
			return s.latencies[i] < s.latencies[j]
		})

		avg := avgDuration(s.latencies)
		p50 := percentile(s.latencies, 0.50)
		p95 := percentile(s.latencies, 0.95)
		p99 := percentile(s.latencies, 0.99)

		fmt.Printf("  %-22s %8d %6d %6d %10s %10s %10s %10s\n",
			ep, s.count, s.errors, s.limited, fmtDur(avg), fmtDur(p50), fmtDur(p95), fmtDur(p99))
	}

	rps := float64(totalOps) / duration.Seconds()
	fmt.Println("  " + repeat("-", 95))
	fmt.Printf("  Total: %d reqs | Errors: %d (%.1f%%) | RPS: %.0f\n",
		totalOps, totalErrors, float64(totalErrors)/float64(totalOps)*100, rps)
}

func identity(rng *rand.Rand) string {
	return fmt.Sprintf("user%d", rng.Intn(numIdentities))
}

func identify(req *http.Request, rng *rand.Rand) {
	req.Header.Set("X-Gateway-Token", gatewayToken)
	identify(req, rng)
}

// expected reports whether a status is a normal outcome under load: success,
// no content, throttled or an upstream failure passed through.
func expected(status int) bool {
	switch status {
	case http.StatusOK, http.StatusNoContent, http.StatusTooManyRequests,
		http.StatusBadGateway, http.StatusUnprocessableEntity, http.StatusServiceUnavailable:
		return true
	}
	return false
}

func send(endpoint string, req *http.Request) result {
	start := time.Now()
	resp, err := httpClient.Do(req)
	lat := time.Since(start)
	if err != nil {
		return result{endpoint, 0, lat, true}
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return result{endpoint, resp.StatusCode, lat, !expected(resp.StatusCode)}
}

func postJSON(rng *rand.Rand, path string, body map[string]string) result {
	data, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, baseURL+path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	identify(req, rng)
	return send("POST "+path, req)
}

func doOption(rng *rand.Rand, path string) result {
	option := "ON"
	if rng.Intn(2) == 0 {
		option = "OFF"
	}
	return postJSON(rng, path, map[string]string{"option": option})
}

func doMessage(rng *rand.Rand) result {
	triggers := []string{"!w", "!weather", "!f", "!forecast", "hello"}
	text := triggers[rng.Intn(len(triggers))] + " " + locations[rng.Intn(len(locations))]
	return postJSON(rng, "/message", map[string]string{"text": text})
}

func doQuery(rng *rand.Rand, path string) result {
	q := url.Values{"q": {locations[rng.Intn(len(locations))]}}
	req, _ := http.NewRequest(http.MethodGet, baseURL+path+"?"+q.Encode(), nil)
	identify(req, rng)
	return send("GET "+path, req)
}

func doInfo(rng *rand.Rand) result {
	req, _ := http.NewRequest(http.MethodGet, baseURL+"/info", nil)
	identify(req, rng)
	return send("GET /info", req)
}

func doHelp() result {
	req, _ := http.NewRequest(http.MethodGet, baseURL+"/help", nil)
	return send("GET /help", req)
}

func avgDuration(d []time.Duration) time.Duration {
	if len(d) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range d {
		sum += v
	}
	return sum / time.Duration(len(d))
}

func percentile(d []time.Duration, p float64) time.Duration {
	if len(d) == 0 {
		return 0
	}
	idx := int(float64(len(d)) * p)
	if idx >= len(d) {
		idx = len(d) - 1
	}
	return d[idx]
}

func fmtDur(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	return fmt.Sprintf("%.1fms", float64(d.Microseconds())/1000.0)
}

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}

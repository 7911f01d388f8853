// flaky-target is a development aid: an HTTP endpoint whose health flips
// between up, slow and down phases so the monitor's debounce, alerting and
// recovery paths can be exercised locally.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	phaseUp = iota
	phaseSlow
	phaseDown
)

func main() {
	addr := flag.String("addr", ":8099", "Listen address")
	phaseLen := flag.Duration("phase", 45*time.Second, "How long each health phase lasts")
	slowDelay := flag.Duration("slow-delay", 3*time.Second, "Response delay during the slow phase")
	rps := flag.Int("rps", 50, "Request rate limit before returning 429")
	flag.Parse()

	var phase atomic.Int32
	go func() {
		ticker := time.NewTicker(*phaseLen)
		defer ticker.Stop()
		for range ticker.C {
			next := rand.Int31n(3)
			phase.Store(next)
			log.Printf("entering phase %s", phaseName(next))
		}
	}()

	limiter := rate.NewLimiter(rate.Limit(*rps), *rps)
	var served atomic.Int64

	http.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		served.Add(1)

		switch phase.Load() {
		case phaseSlow:
			time.Sleep(*slowDelay)
			fmt.Fprintln(w, "ok (eventually)")
		case phaseDown:
			http.Error(w, "simulated outage", http.StatusServiceUnavailable)
		default:
			fmt.Fprintln(w, "ok")
		}
	})

	http.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "phase=%s served=%d\n", phaseName(phase.Load()), served.Load())
	})

	log.Printf("flaky target listening on %s (phase length %s)", *addr, *phaseLen)
	log.Fatal(http.ListenAndServe(*addr, nil))
}

func phaseName(p int32) string {
	switch p {
	case phaseSlow:
		return "slow"
	case phaseDown:
		return "down"
	default:
		return "up"
	}
}

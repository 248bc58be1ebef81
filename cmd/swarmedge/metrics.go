package main

import (
	"expvar"
	"fmt"
	"net"
	"net/http"
	"strings"
	"unicode"

	"github.com/anacrolix/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Converts an expvar name like "routerRoutedConns" to "swarmedge_router_routed_conns".
func prometheusName(expvarName string) string {
	var b strings.Builder
	b.WriteString("swarmedge_")
	for i, r := range expvarName {
		if unicode.IsUpper(r) {
			if i != 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Exposes every integer expvar, which covers the counters of all the components.
func expvarCollector() prometheus.Collector {
	exports := make(map[string]*prometheus.Desc)
	expvar.Do(func(kv expvar.KeyValue) {
		if _, ok := kv.Value.(*expvar.Int); !ok {
			return
		}
		exports[kv.Key] = prometheus.NewDesc(prometheusName(kv.Key), "expvar "+kv.Key, nil, nil)
	})
	return collectors.NewExpvarCollector(exports)
}

func newMetricsHandler() http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		expvarCollector(),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func serveMetrics(addr string, errs chan<- error) (*http.Server, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening for metrics on %q: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", newMetricsHandler())
	s := &http.Server{Handler: mux}
	go func() {
		err := s.Serve(l)
		if err != http.ErrServerClosed {
			errs <- err
		}
	}()
	log.Printf("serving metrics on http://%v/metrics", l.Addr())
	return s, nil
}

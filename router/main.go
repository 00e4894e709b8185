// Command router is a standalone load balancer for the realtime API
// replicas. It discovers replicas through swarm DNS, health-checks them
// against /healthz, and round-robins requests across the healthy set.
// Websocket upgrades pass through the reverse proxy, so a feed socket
// stays pinned to the replica that accepted it.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// replica is one discovered API instance.
type replica struct {
	IP        string    `json:"ip"`
	URL       string    `json:"url"`
	Healthy   bool      `json:"healthy"`
	LastCheck time.Time `json:"lastCheck"`
}

type manager struct {
	mu       sync.RWMutex
	replicas []*replica
	next     int

	serviceName    string
	servicePort    string
	healthPath     string
	updateInterval time.Duration
	healthTimeout  time.Duration
	logger         *zap.Logger
}

func newManager(serviceName, servicePort, healthPath string, updateInterval time.Duration, logger *zap.Logger) *manager {
	return &manager{
		serviceName:    serviceName,
		servicePort:    servicePort,
		healthPath:     healthPath,
		updateInterval: updateInterval,
		healthTimeout:  3 * time.Second,
		logger:         logger,
	}
}

func (m *manager) start(ctx context.Context) {
	m.discover()
	go m.discoveryLoop(ctx)
	go m.healthLoop(ctx)
}

func (m *manager) discoveryLoop(ctx context.Context) {
	ticker := time.NewTicker(m.updateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.discover()
		}
	}
}

// discover resolves the service name through swarm DNS; every returned
// IP is one replica. Replicas that drop out of DNS are removed.
func (m *manager) discover() {
	ips, err := net.LookupIP(m.serviceName)
	if err != nil {
		m.logger.Warn("dns lookup failed",
			zap.String("service", m.serviceName), zap.Error(err))
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current := make(map[string]bool, len(ips))
	for _, ip := range ips {
		ipStr := ip.String()
		current[ipStr] = true

		known := false
		for _, r := range m.replicas {
			if r.IP == ipStr {
				known = true
				break
			}
		}
		if !known {
			r := &replica{
				IP:        ipStr,
				URL:       fmt.Sprintf("http://%s:%s", ipStr, m.servicePort),
				LastCheck: time.Now(),
			}
			m.replicas = append(m.replicas, r)
			m.logger.Info("replica discovered", zap.String("url", r.URL))
		}
	}

	kept := m.replicas[:0]
	for _, r := range m.replicas {
		if current[r.IP] {
			kept = append(kept, r)
		} else {
			m.logger.Info("replica removed, no longer in dns", zap.String("url", r.URL))
		}
	}
	m.replicas = kept
}

func (m *manager) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkAll()
		}
	}
}

func (m *manager) checkAll() {
	m.mu.RLock()
	replicas := append([]*replica(nil), m.replicas...)
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, r := range replicas {
		wg.Add(1)
		go func(r *replica) {
			defer wg.Done()
			m.check(r)
		}(r)
	}
	wg.Wait()
}

func (m *manager) check(r *replica) {
	client := &http.Client{Timeout: m.healthTimeout}
	resp, err := client.Get(r.URL + m.healthPath)
	healthy := false
	if err == nil {
		healthy = resp.StatusCode == http.StatusOK
		resp.Body.Close()
	}

	// Health fields are read by status and nextHealthy under the same
	// lock.
	m.mu.Lock()
	was := r.Healthy
	r.Healthy = healthy
	r.LastCheck = time.Now()
	m.mu.Unlock()

	if was && !healthy {
		m.logger.Warn("replica unhealthy", zap.String("url", r.URL), zap.Error(err))
	}
	if !was && healthy {
		m.logger.Info("replica recovered", zap.String("url", r.URL))
	}
}

// nextHealthy returns the next healthy replica, round-robin.
func (m *manager) nextHealthy() *replica {
	m.mu.Lock()
	defer m.mu.Unlock()

	healthy := make([]*replica, 0, len(m.replicas))
	for _, r := range m.replicas {
		if r.Healthy {
			healthy = append(healthy, r)
		}
	}
	if len(healthy) == 0 {
		return nil
	}
	r := healthy[m.next%len(healthy)]
	m.next++
	return r
}

func (m *manager) proxy(w http.ResponseWriter, r *http.Request) {
	target := m.nextHealthy()
	if target == nil {
		http.Error(w, "Service Unavailable - no healthy replicas", http.StatusServiceUnavailable)
		return
	}

	targetURL, err := url.Parse(target.URL)
	if err != nil {
		m.logger.Error("bad replica url", zap.String("url", target.URL), zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	// httputil.ReverseProxy carries Upgrade requests through, which
	// keeps the feed websocket working across the balancer.
	proxy := httputil.NewSingleHostReverseProxy(targetURL)
	r.Header.Set("X-Forwarded-Host", r.Host)
	proxy.ServeHTTP(w, r)
}

type statusResponse struct {
	Service     string     `json:"service"`
	Total       int        `json:"total"`
	Healthy     int        `json:"healthy"`
	Replicas    []*replica `json:"replicas"`
	LastUpdated time.Time  `json:"lastUpdated"`
}

func (m *manager) status(w http.ResponseWriter, _ *http.Request) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	healthy := 0
	for _, r := range m.replicas {
		if r.Healthy {
			healthy++
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(statusResponse{
		Service:     m.serviceName,
		Total:       len(m.replicas),
		Healthy:     healthy,
		Replicas:    m.replicas,
		LastUpdated: time.Now(),
	})
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	serviceName := getEnv("SERVICE_NAME", "api")
	servicePort := getEnv("SERVICE_PORT", "3000")
	healthPath := getEnv("HEALTH_PATH", "/healthz")
	routerPort := getEnv("ROUTER_PORT", "8080")

	logger.Info("router starting",
		zap.String("service", serviceName),
		zap.String("servicePort", servicePort),
		zap.String("healthPath", healthPath),
		zap.String("routerPort", routerPort))

	m := newManager(serviceName, servicePort, healthPath, 10*time.Second, logger)
	m.start(context.Background())

	http.HandleFunc("/", m.proxy)
	http.HandleFunc("/router/status", m.status)
	http.HandleFunc("/router/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})

	addr := ":" + routerPort
	logger.Info("router listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, nil); err != nil {
		logger.Fatal("router stopped", zap.Error(err))
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

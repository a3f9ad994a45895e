package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

type record = map[string]any

func main() {
	now := time.Now()
	ts := func(ago time.Duration) float64 {
		return float64(now.Add(-ago).UnixMilli()) / 1000
	}

	data := map[string][]record{
		"flows": {
			{"ts": ts(4 * time.Minute), "gid": "box-1", "protocol": "tcp", "direction": "outbound", "block": false,
				"source": record{"ip": "192.168.1.10"}, "destination": record{"ip": "203.0.113.7", "name": "updates.example.com"},
				"device": record{"id": "aa:bb:cc:00:00:01", "ip": "192.168.1.10", "name": "office-nas", "network": record{"id": "lan-1"}},
				"region": "US", "category": "technology"},
			{"ts": ts(2 * time.Minute), "gid": "box-1", "protocol": "tcp", "direction": "outbound", "block": true,
				"source": record{"ip": "192.168.1.11"}, "destination": record{"ip": "198.51.100.23", "name": "tracker.example.net"},
				"device": record{"id": "aa:bb:cc:00:00:02", "ip": "192.168.1.11", "name": "living-room-tv", "network": record{"id": "lan-1"}},
				"region": "NL", "category": "ad"},
			{"ts": ts(90 * time.Second), "gid": "box-1", "protocol": "udp", "direction": "inbound", "block": false,
				"source": record{"ip": "10.0.0.5"}, "destination": record{"ip": "192.168.1.10"},
				"device": record{"id": "aa:bb:cc:00:00:01", "ip": "192.168.1.10", "name": "office-nas", "network": record{"id": "lan-1"}},
				"region": "DE", "category": "vpn"},
		},
		"alarms": {
			{"aid": 101, "ts": ts(3 * time.Minute), "gid": "box-1", "type": "8", "status": "active", "severity": "high", "direction": "outbound",
				"device": record{"id": "aa:bb:cc:00:00:02", "ip": "192.168.1.11", "name": "living-room-tv", "network": record{"id": "lan-1"}},
				"remote": record{"ip": "198.51.100.23", "domain": "tracker.example.net", "region": "NL", "category": "ad"}},
			{"aid": 102, "ts": ts(time.Minute), "gid": "box-1", "type": "1", "status": "active", "severity": "medium", "direction": "inbound",
				"device": record{"id": "aa:bb:cc:00:00:01", "ip": "192.168.1.10", "name": "office-nas", "network": record{"id": "lan-1"}},
				"remote": record{"ip": "10.0.0.5", "region": "DE", "category": "vpn"}},
		},
		"devices": {
			{"id": "aa:bb:cc:00:00:01", "gid": "box-1", "ip": "192.168.1.10", "mac": "aa:bb:cc:00:00:01", "name": "office-nas",
				"macVendor": "Synology", "online": true, "lastSeen": ts(30 * time.Second), "network": record{"id": "lan-1"}},
			{"id": "aa:bb:cc:00:00:02", "gid": "box-1", "ip": "192.168.1.11", "mac": "aa:bb:cc:00:00:02", "name": "living-room-tv",
				"macVendor": "Samsung", "online": true, "lastSeen": ts(45 * time.Second), "network": record{"id": "lan-1"}},
		},
		"rules": {
			{"id": "rule-1", "gid": "box-1", "ts": ts(24 * time.Hour), "action": "block", "direction": "outbound", "status": "active",
				"target": record{"type": "ip", "value": "198.51.100.23"}, "scope": record{"type": "device", "value": "aa:bb:cc:00:00:02"}},
			{"id": "rule-2", "gid": "box-1", "ts": ts(48 * time.Hour), "action": "block", "direction": "bidirection", "status": "active",
				"target": record{"type": "category", "value": "ad"}, "scope": record{"type": "network", "value": "lan-1"}},
		},
		"target-lists": {
			{"id": "tl-1", "name": "ad-trackers", "owner": "global", "category": "ad", "lastUpdated": ts(6 * time.Hour),
				"targets": []string{"tracker.example.net", "198.51.100.23"}},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	for name, records := range data {
		mux.HandleFunc("/v2/"+name, func(w http.ResponseWriter, r *http.Request) {
			if !enforceMethod(w, r, http.MethodGet) || !authorised(w, r) {
				return
			}
			limit := len(records)
			if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v < limit {
				limit = v
			}
			writeJSON(w, map[string]any{
				"count":       limit,
				"results":     records[:limit],
				"next_cursor": nil,
			})
		})
	}

	mux.HandleFunc("/v2/rules/", func(w http.ResponseWriter, r *http.Request) {
		if !enforceMethod(w, r, http.MethodPost) || !authorised(w, r) {
			return
		}
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/v2/rules/"), "/")
		if len(parts) != 2 || (parts[1] != "pause" && parts[1] != "resume") {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, map[string]any{"id": parts[0], "status": parts[1] + "d"})
	})

	addr := ":8081"
	if v := os.Getenv("MOCK_FIREWALL_ADDR"); v != "" {
		addr = v
	}
	logger := log.New(log.Writer(), "firewall-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    addr,
		Handler: logRequests(logger, mux),
	}

	logger.Printf("listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func enforceMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func authorised(w http.ResponseWriter, r *http.Request) bool {
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Token ") {
		w.WriteHeader(http.StatusUnauthorized)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

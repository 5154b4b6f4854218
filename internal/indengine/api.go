package indengine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mihakralj/QuanTAlib-sub003/internal/config"
	"github.com/mihakralj/QuanTAlib-sub003/internal/indicator"
	"github.com/mihakralj/QuanTAlib-sub003/internal/model"
)

// configChannel carries pipeline updates: either a JSON array of
// indicator.IndicatorConfig or the compact "SMA:20,EMA:9" form.
const configChannel = "config:indicators"

// handlers are mounted next to /metrics and /healthz.
func (svc *Service) handlers() map[string]http.Handler {
	return map[string]http.Handler{
		"/ws":      svc.hub,
		"/reload":  http.HandlerFunc(svc.handleReload),
		"/configs": http.HandlerFunc(svc.handleConfigs),
		"/values":  http.HandlerFunc(svc.handleValues),
	}
}

// ReloadSummary reports what a reload kept, built and dropped.
type ReloadSummary struct {
	Preserved int `json:"preserved"`
	Created   int `json:"created"`
	Removed   int `json:"removed"`
}

// Reload swaps the pipeline definition on the process loop. New nodes are
// bulk-bound to the bars already held by each symbol.
func (svc *Service) Reload(ctx context.Context, configs []indicator.IndicatorConfig) (ReloadSummary, error) {
	var (
		sum  ReloadSummary
		rerr error
		keys int
		outs int
	)
	err := svc.do(ctx, func(e *indicator.Engine) {
		sum.Preserved, sum.Created, sum.Removed, rerr = e.ReloadConfigs(configs)
		keys, outs = len(e.Keys()), len(e.Outputs())
	})
	if err == nil {
		err = rerr
	}
	if err != nil {
		svc.prom.ConfigReloads.WithLabelValues("error").Inc()
		return ReloadSummary{}, err
	}
	svc.prom.ConfigReloads.WithLabelValues("ok").Inc()
	svc.prom.Nodes.Set(float64(keys * outs))
	log.Printf("[indengine] reloaded: preserved=%d created=%d removed=%d", sum.Preserved, sum.Created, sum.Removed)
	return sum, nil
}

// handleReload handles POST /reload with a JSON array of indicator configs.
func (svc *Service) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var configs []indicator.IndicatorConfig
	if err := json.NewDecoder(r.Body).Decode(&configs); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	sum, err := svc.Reload(r.Context(), configs)
	if err != nil {
		http.Error(w, "reload: "+err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sum)
}

// handleConfigs serves GET /configs: the active pipeline definition.
func (svc *Service) handleConfigs(w http.ResponseWriter, r *http.Request) {
	var configs []indicator.IndicatorConfig
	if err := svc.do(r.Context(), func(e *indicator.Engine) {
		configs = append(configs, e.Configs()...)
	}); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(configs)
}

type point struct {
	TS    time.Time `json:"ts"`
	Value *float64  `json:"value"`
}

type valuesResponse struct {
	Name   string  `json:"name"`
	Symbol string  `json:"symbol"`
	TF     int     `json:"tf"`
	Hot    bool    `json:"hot"`
	Len    int     `json:"len"`
	Points []point `json:"points"`
}

// handleValues serves GET /values?symbol=BTC&name=SMA_20[&limit=100]: the
// newest samples of one node, oldest first.
func (svc *Service) handleValues(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	symbol, name := q.Get("symbol"), q.Get("name")
	if symbol == "" || name == "" {
		http.Error(w, "symbol and name are required", http.StatusBadRequest)
		return
	}
	limit := 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	resp := valuesResponse{Name: name, Symbol: symbol, TF: svc.cfg.TF}
	found := false
	err := svc.do(r.Context(), func(e *indicator.Engine) {
		n, ok := e.Node(symbol+":"+model.Itoa(svc.cfg.TF), name)
		if !ok {
			return
		}
		found = true
		resp.Hot = n.Hot()
		resp.Len = n.Len()
		for i := max(0, n.Len()-limit); i < n.Len(); i++ {
			smp := n.At(i)
			p := point{TS: smp.TS}
			if !math.IsNaN(smp.Value) && !math.IsInf(smp.Value, 0) {
				v := smp.Value
				p.Value = &v
			}
			resp.Points = append(resp.Points, p)
		}
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if !found {
		http.Error(w, fmt.Sprintf("no node %s for %s", name, symbol), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// subscribeConfigs applies pipeline updates published on configChannel.
func (svc *Service) subscribeConfigs(ctx context.Context) {
	pubsub := svc.publisher.Client().Subscribe(ctx, configChannel)
	defer pubsub.Close()
	log.Printf("[indengine] subscribed to %s for dynamic reload", configChannel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			configs, err := parseConfigPayload(msg.Payload)
			if err != nil {
				log.Printf("[indengine] bad config update: %v", err)
				continue
			}
			if _, err := svc.Reload(ctx, configs); err != nil {
				log.Printf("[indengine] config update rejected: %v", err)
			}
		}
	}
}

func parseConfigPayload(payload string) ([]indicator.IndicatorConfig, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "[") {
		var configs []indicator.IndicatorConfig
		if err := json.Unmarshal([]byte(payload), &configs); err != nil {
			return nil, fmt.Errorf("decode config payload: %w", err)
		}
		return configs, nil
	}
	if payload == "" {
		return nil, fmt.Errorf("empty config payload")
	}
	return config.ParseIndicatorSpecs(payload), nil
}

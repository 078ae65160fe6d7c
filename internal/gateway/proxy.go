// Package gateway is a small reverse proxy in front of the two services.
// It holds no saga state: routing is stateless apart from a round-robin
// counter over user-service instances.
package gateway

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/sony/gobreaker"
)

type Proxy struct {
	log      *slog.Logger
	client   *http.Client
	orderURL string
	userURLs []string
	counter  atomic.Uint64
	breakers map[string]*gobreaker.CircuitBreaker
}

func NewProxy(log *slog.Logger, client *http.Client, orderURL string, userURLs []string) (*Proxy, error) {
	if orderURL == "" {
		return nil, errors.New("gateway: order service url is empty")
	}
	if len(userURLs) == 0 {
		return nil, errors.New("gateway: no user service urls configured")
	}
	p := &Proxy{
		log:      log,
		client:   client,
		orderURL: orderURL,
		userURLs: userURLs,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
	for _, u := range append([]string{orderURL}, userURLs...) {
		p.breakers[u] = gobreaker.NewCircuitBreaker(gobreaker.Settings{Name: u})
	}
	return p, nil
}

func (p *Proxy) Routes() http.Handler {
	r := chi.NewRouter()
	r.HandleFunc("/users", p.toUserService)
	r.HandleFunc("/users/*", p.toUserService)
	r.HandleFunc("/orders", p.toOrderService)
	r.HandleFunc("/orders/*", p.toOrderService)
	return r
}

func (p *Proxy) toUserService(w http.ResponseWriter, r *http.Request) {
	idx := p.counter.Add(1) % uint64(len(p.userURLs))
	base := p.userURLs[idx]
	p.log.Debug("round-robin route", "base", base, "index", idx)
	p.forward(w, r, base)
}

func (p *Proxy) toOrderService(w http.ResponseWriter, r *http.Request) {
	p.forward(w, r, p.orderURL)
}

func (p *Proxy) forward(w http.ResponseWriter, r *http.Request, base string) {
	target := base + r.URL.Path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	out, err := http.NewRequestWithContext(r.Context(), r.Method, target, r.Body)
	if err != nil {
		http.Error(w, "gateway error: "+err.Error(), http.StatusBadGateway)
		return
	}
	for k, vv := range r.Header {
		if strings.EqualFold(k, "Host") || strings.EqualFold(k, "Content-Length") {
			continue
		}
		out.Header[k] = vv
	}

	res, err := p.breakers[base].Execute(func() (interface{}, error) {
		return p.client.Do(out)
	})
	if err != nil {
		p.log.Error("upstream request failed", "base", base, "err", err)
		http.Error(w, "gateway error: "+err.Error(), http.StatusBadGateway)
		return
	}
	resp := res.(*http.Response)
	defer resp.Body.Close()

	for k, vv := range resp.Header {
		if strings.EqualFold(k, "Content-Length") {
			continue
		}
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

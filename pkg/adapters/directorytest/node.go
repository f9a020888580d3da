// Package directorytest provides an in-process directory node speaking the
// same HTTP command protocol as a real node. It backs the adapter tests and
// the local demo command.
package directorytest

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/aretw0/parley/internal/logging"
)

type page struct {
	address      string
	declaredName string
	acknowledged bool
	services     map[string]string
}

// Node is a miniature directory service holding all state in memory.
type Node struct {
	logger    *slog.Logger
	available atomic.Bool

	mu        sync.Mutex
	pages     map[string]*page
	byAddress map[string]string
}

// NewNode creates an empty node. A nil logger disables logging.
func NewNode(logger *slog.Logger) *Node {
	if logger == nil {
		logger = logging.NewNop()
	}
	n := &Node{
		logger:    logger,
		pages:     make(map[string]*page),
		byAddress: make(map[string]string),
	}
	n.available.Store(true)
	return n
}

// SetAvailable toggles simulated outages; while unavailable every request is
// answered with 503.
func (n *Node) SetAvailable(up bool) { n.available.Store(up) }

// Registered reports whether the agent address currently holds a page.
func (n *Node) Registered(address string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.byAddress[address]
	return ok
}

// ServiceKey returns the registered value for an agent's service key.
func (n *Node) ServiceKey(address, key string) (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	pageAddr, ok := n.byAddress[address]
	if !ok {
		return "", false
	}
	v, ok := n.pages[pageAddr].services[key]
	return v, ok
}

// Handler returns the node's HTTP surface.
func (n *Node) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(n.gate)
	r.Get("/", n.handleRoot)
	r.Get("/{page}", n.handlePage)
	return r
}

func (n *Node) gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !n.available.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeXML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/xml")
	fmt.Fprintf(w, "<response>%s</response>", body)
}

func writeError(w http.ResponseWriter, msg string) {
	writeXML(w, "<error>"+msg+"</error>")
}

func (n *Node) handleRoot(w http.ResponseWriter, r *http.Request) {
	command := r.URL.Query().Get("command")
	if command == "" {
		writeXML(w, "")
		return
	}
	if command != "register" {
		writeError(w, "unknown root command "+command)
		return
	}

	address := r.URL.Query().Get("address")
	if address == "" {
		writeError(w, "register requires an address")
		return
	}

	n.mu.Lock()
	if old, ok := n.byAddress[address]; ok {
		delete(n.pages, old)
	}
	pageAddr := uuid.NewString()
	n.pages[pageAddr] = &page{
		address:      address,
		declaredName: r.URL.Query().Get("declared_name"),
		services:     make(map[string]string),
	}
	n.byAddress[address] = pageAddr
	n.mu.Unlock()

	n.logger.Debug("registered agent", "address", address, "page_address", pageAddr)
	writeXML(w, "<page_address>"+pageAddr+"</page_address>")
}

func (n *Node) handlePage(w http.ResponseWriter, r *http.Request) {
	pageAddr := chi.URLParam(r, "page")
	command := r.URL.Query().Get("command")

	n.mu.Lock()
	defer n.mu.Unlock()

	p, ok := n.pages[pageAddr]
	if !ok {
		writeError(w, "unknown page address")
		return
	}
	if !p.acknowledged && command != "acknowledge" {
		writeError(w, "page not acknowledged")
		return
	}

	switch command {
	case "acknowledge":
		p.acknowledged = true
		writeXML(w, "")
	case "ping":
		writeXML(w, "")
	case "bye", "unregister":
		delete(n.pages, pageAddr)
		delete(n.byAddress, p.address)
		writeXML(w, "")
	case "set_service_key":
		key := r.URL.Query().Get("key")
		if key == "" {
			writeError(w, "set_service_key requires a key")
			return
		}
		p.services[key] = r.URL.Query().Get("value")
		writeXML(w, "")
	case "remove_service_key":
		delete(p.services, r.URL.Query().Get("key"))
		writeXML(w, "")
	case "find_around_me":
		writeXML(w, n.findLocked(p, r))
	default:
		writeError(w, "unknown command "+command)
	}
}

// findLocked matches every other acknowledged agent against the caller's
// filters. With no filters everyone matches.
func (n *Node) findLocked(caller *page, r *http.Request) string {
	query := r.URL.Query()
	body := "<agents>"
	for _, p := range n.pages {
		if p.address == caller.address || !p.acknowledged {
			continue
		}
		if !matches(p, query) {
			continue
		}
		body += fmt.Sprintf(`<agent address=%q name=%q/>`, p.address, p.declaredName)
	}
	return body + "</agents>"
}

func matches(p *page, query map[string][]string) bool {
	for key, wanted := range query {
		if key == "command" || key == "range_in_km" {
			continue
		}
		have, ok := p.services[key]
		if !ok {
			return false
		}
		found := false
		for _, w := range wanted {
			if w == have {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

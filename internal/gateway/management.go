package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/milkpudding/gateway/internal/errors"
)

// Result is the management API response envelope.
type Result struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func writeResult(w http.ResponseWriter, status int, result Result) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(result)
}

func ok(w http.ResponseWriter, data any) {
	writeResult(w, http.StatusOK, Result{Code: 200, Message: "success", Data: data})
}

func (g *Gateway) managementMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", g.handleHealthz)
	mux.Handle("/metrics", g.metrics.Handler())
	mux.HandleFunc("/gateway/status", g.handleStatus)
	mux.HandleFunc("/gateway/routes", g.handleRoutes)
	mux.HandleFunc("/gateway/token/generate", g.handleTokenGenerate)
	mux.HandleFunc("/gateway/token/validate", g.handleTokenValidate)
	return mux
}

func (g *Gateway) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "ok")
}

func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		errors.ErrBadParams.WriteJSON(w)
		return
	}
	ok(w, map[string]any{
		"service":   "api-gateway",
		"status":    "running",
		"timestamp": time.Now().UnixMilli(),
		"version":   Version,
	})
}

type routeSummary struct {
	ID        string   `json:"id"`
	URI       string   `json:"uri"`
	Predicate string   `json:"predicate"`
	Filters   []string `json:"filters"`
	Order     int      `json:"order"`
}

func (g *Gateway) handleRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		errors.ErrBadParams.WriteJSON(w)
		return
	}

	snap := g.table.Snapshot()
	routes := make([]routeSummary, 0, snap.Len())
	for _, route := range snap.Routes() {
		predicate := "Path=" + route.Pattern
		if len(route.Methods) > 0 {
			predicate += " Method=" + strings.Join(route.Methods, ",")
		}
		filters := make([]string, len(route.Filters))
		for i, f := range route.Filters {
			filters[i] = f.Name
		}
		routes = append(routes, routeSummary{
			ID:        route.ID,
			URI:       route.URI,
			Predicate: predicate,
			Filters:   filters,
			Order:     route.Order,
		})
	}

	ok(w, map[string]any{
		"generation": snap.Generation(),
		"routes":     routes,
	})
}

type generateRequest struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

func (g *Gateway) handleTokenGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		errors.ErrBadParams.WriteJSON(w)
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.Username == "" {
		errors.ErrBadParams.WriteJSON(w)
		return
	}
	if req.Role == "" {
		req.Role = "user"
	}

	custom := map[string]any{"role": req.Role}
	if req.Email != "" {
		custom["email"] = req.Email
	}

	tok, err := g.codec.Issue(req.UserID, req.Username, custom)
	if err != nil {
		errors.ErrInternal.WriteJSON(w)
		return
	}

	ok(w, map[string]any{
		"token":     tok,
		"type":      "Bearer",
		"expiresIn": strconv.FormatInt(int64(g.codec.TTL().Seconds()), 10),
	})
}

type validateRequest struct {
	Token string `json:"token"`
}

func (g *Gateway) handleTokenValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		errors.ErrBadParams.WriteJSON(w)
		return
	}

	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		errors.ErrBadParams.WriteJSON(w)
		return
	}

	claims, err := g.codec.Parse(req.Token)
	if err != nil {
		writeResult(w, http.StatusUnauthorized, Result{Code: 401, Message: "Invalid token"})
		return
	}

	data := map[string]any{
		"userId":    claims.Subject,
		"username":  claims.Username,
		"issuedAt":  claims.IssuedAt,
		"expiresAt": claims.ExpiresAt,
	}
	for k, v := range claims.Custom {
		data[k] = v
	}
	ok(w, data)
}

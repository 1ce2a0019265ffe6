// Package fake provides a minimal in-memory Cloudflare v4 API for tests.
package fake

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// APIPrefix is the path the fake API is served under.
const APIPrefix = "/client/v4"

// Zone is a zone served by the fake.
type Zone struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Record is a DNS record held by the fake.
type Record struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
	Proxied bool   `json:"proxied"`
}

// Cloudflare is an http.Handler faking the subset of the Cloudflare API used
// by the provider. Fields other than the mutex may be set before serving.
type Cloudflare struct {
	Token string
	Zones []Zone

	// FailDeleteAfter, when positive, lets that many deletes succeed and
	// fails the rest.
	FailDeleteAfter int
	// FailCreate makes creates with matching content fail.
	FailCreate map[string]bool
	// StickyDeletes makes deletes report success without removing anything.
	StickyDeletes bool
	// PageSize caps the number of records returned per list call.
	PageSize int

	mu      sync.Mutex
	store   map[string]Record
	nextID  int
	deletes int
	calls   []string
}

// New returns a fake serving the given zones.
func New(token string, zones ...Zone) *Cloudflare {
	return &Cloudflare{
		Token:      token,
		Zones:      zones,
		FailCreate: map[string]bool{},
		store:      map[string]Record{},
	}
}

// Serve starts an httptest server for f. Callers must Close it.
func (f *Cloudflare) Serve() *httptest.Server {
	return httptest.NewServer(f)
}

// BaseURL returns the API base URL for a server started with Serve.
func BaseURL(srv *httptest.Server) string {
	return srv.URL + APIPrefix
}

// Seed inserts records directly, bypassing the API.
func (f *Cloudflare) Seed(records ...Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range records {
		if r.ID == "" {
			f.nextID++
			r.ID = fmt.Sprintf("rec-%d", f.nextID)
		}
		f.store[r.ID] = r
	}
}

// Records returns the stored records with the given name, sorted by content.
func (f *Cloudflare) Records(name string) []Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Record
	for _, r := range f.store {
		if r.Name == name {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Content < out[j].Content })
	return out
}

// Calls returns the method and path of every request served, in order.
func (f *Cloudflare) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *Cloudflare) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.calls = append(f.calls, r.Method+" "+r.URL.Path)
	f.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer "+f.Token {
		writeError(w, http.StatusForbidden, 10000, "Authentication error")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, APIPrefix)
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] == "zones" && r.Method == http.MethodGet:
		f.handleZones(w)
	case len(parts) == 3 && parts[2] == "dns_records" && r.Method == http.MethodGet:
		f.handleList(w, r, parts[1])
	case len(parts) == 3 && parts[2] == "dns_records" && r.Method == http.MethodPost:
		f.handleCreate(w, r, parts[1])
	case len(parts) == 4 && parts[2] == "dns_records" && r.Method == http.MethodDelete:
		f.handleDelete(w, parts[1], parts[3])
	default:
		writeError(w, http.StatusNotFound, 7003, "Could not route to "+r.URL.Path)
	}
}

func (f *Cloudflare) knownZone(id string) bool {
	for _, z := range f.Zones {
		if z.ID == id {
			return true
		}
	}
	return false
}

func (f *Cloudflare) handleZones(w http.ResponseWriter) {
	zones := f.Zones
	if zones == nil {
		zones = []Zone{}
	}
	writeResult(w, zones, len(zones), 50)
}

func (f *Cloudflare) handleList(w http.ResponseWriter, r *http.Request, zoneID string) {
	if !f.knownZone(zoneID) {
		writeError(w, http.StatusNotFound, 7003, "zone not found")
		return
	}
	q := r.URL.Query()
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	if f.PageSize > 0 && (perPage == 0 || f.PageSize < perPage) {
		perPage = f.PageSize
	}

	f.mu.Lock()
	matches := []Record{}
	for _, rec := range f.store {
		if q.Get("type") != "" && rec.Type != q.Get("type") {
			continue
		}
		if q.Get("name") != "" && rec.Name != q.Get("name") {
			continue
		}
		matches = append(matches, rec)
	}
	f.mu.Unlock()

	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
	total := len(matches)
	if perPage > 0 && len(matches) > perPage {
		matches = matches[:perPage]
	}
	writeResult(w, matches, total, perPage)
}

func (f *Cloudflare) handleCreate(w http.ResponseWriter, r *http.Request, zoneID string) {
	if !f.knownZone(zoneID) {
		writeError(w, http.StatusNotFound, 7003, "zone not found")
		return
	}
	var rec Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, 9207, err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailCreate[rec.Content] {
		writeError(w, http.StatusBadRequest, 81057, "record rejected")
		return
	}
	f.nextID++
	rec.ID = fmt.Sprintf("rec-%d", f.nextID)
	f.store[rec.ID] = rec
	writeResult(w, rec, 1, 0)
}

func (f *Cloudflare) handleDelete(w http.ResponseWriter, zoneID, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.knownZone(zoneID) {
		writeError(w, http.StatusNotFound, 7003, "zone not found")
		return
	}
	if _, ok := f.store[id]; !ok {
		writeError(w, http.StatusNotFound, 81044, "record not found")
		return
	}
	if f.FailDeleteAfter > 0 && f.deletes >= f.FailDeleteAfter {
		writeError(w, http.StatusBadRequest, 1000, "delete failed")
		return
	}
	f.deletes++
	if !f.StickyDeletes {
		delete(f.store, id)
	}
	writeResult(w, map[string]string{"id": id}, 1, 0)
}

func writeResult(w http.ResponseWriter, result interface{}, total, perPage int) {
	body := map[string]interface{}{
		"success":  true,
		"errors":   []interface{}{},
		"messages": []interface{}{},
		"result":   result,
	}
	if perPage > 0 {
		pages := (total + perPage - 1) / perPage
		body["result_info"] = map[string]int{
			"page":        1,
			"per_page":    perPage,
			"count":       min(total, perPage),
			"total_count": total,
			"total_pages": pages,
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":  false,
		"errors":   []map[string]interface{}{{"code": code, "message": msg}},
		"messages": []interface{}{},
		"result":   nil,
	})
}

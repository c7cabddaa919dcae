package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"sponsorcheck/internal/util"
)

const (
	minQueryLen  = 2
	maxPageBytes = 10 << 20
)

type searchResponse struct {
	Query string `json:"query"`
	// Checked is false when nothing was looked up: the query was too short
	// or no register has been stored yet.
	Checked   bool   `json:"checked"`
	Key       string `json:"key,omitempty"`
	IsSponsor bool   `json:"isSponsor"`
	Name      string `json:"name,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.db.Status(r.Context())
	if err != nil {
		s.log.Error("read status", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "status unavailable")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSetEnabled(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IsEnabled *bool `json:"isEnabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IsEnabled == nil {
		writeError(w, http.StatusBadRequest, "body must be {\"isEnabled\": bool}")
		return
	}
	if err := s.db.SetEnabled(r.Context(), *req.IsEnabled); err != nil {
		s.log.Error("persist enabled flag", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not save setting")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"isEnabled": *req.IsEnabled})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ok := s.refresher != nil && s.refresher.ForceRefresh(r.Context())
	writeJSON(w, http.StatusOK, map[string]bool{"success": ok})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	resp := searchResponse{Query: q}
	if utf8.RuneCountInString(q) < minQueryLen {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	st, err := s.db.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "status unavailable")
		return
	}
	if st.TotalCount == 0 {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	resp.Checked = true
	resp.Key = util.NormalizeCompanyName(q)
	if resp.Key != "" {
		rec, err := s.db.GetSponsor(r.Context(), resp.Key)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "lookup failed")
			return
		}
		if rec != nil {
			resp.IsSponsor = true
			resp.Name = rec.Name
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	key := util.NormalizeCompanyName(r.URL.Query().Get("name"))
	isSponsor := false
	if key != "" {
		rec, err := s.db.GetSponsor(r.Context(), key)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "lookup failed")
			return
		}
		isSponsor = rec != nil
	}
	writeJSON(w, http.StatusOK, map[string]bool{"isSponsor": isSponsor})
}

// handleAnnotate runs one scan pass over the posted HTML and returns the
// annotated document.
func (s *Server) handleAnnotate(w http.ResponseWriter, r *http.Request) {
	host := strings.TrimSpace(r.URL.Query().Get("host"))
	if host == "" {
		writeError(w, http.StatusBadRequest, "host is required")
		return
	}
	if !s.reg.Loaded() {
		writeError(w, http.StatusServiceUnavailable, "sponsor register not loaded")
		return
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(r.Body, maxPageBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not parse html")
		return
	}

	enabled, err := s.db.Enabled(r.Context())
	if err != nil {
		s.log.Warn("read enabled flag", zap.Error(err))
	}

	sponsors := 0
	if enabled {
		rep := s.scanner.Scan(doc, host, s.reg)
		sponsors = rep.Sponsors()
		w.Header().Set("X-Sponsor-Site", rep.Site)
	} else {
		s.scanner.Clear(doc)
	}

	out, err := doc.Html()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not render html")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Sponsor-Count", strconv.Itoa(sponsors))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, out)
}

// Copyright 2026 The Govisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/govisor/prefork"
)

// Pool is what the Handler needs from a supervisor.  *prefork.Supervisor
// implements it.
type Pool interface {
	GetInfo() *prefork.Info
	Workers() []prefork.WorkerInfo
	StopWorker(index int) error
	WatchSerial(old int64, expire time.Duration) int64
	GetLog(last int64) ([]prefork.LogRecord, int64)
	WatchLog(last int64, expire time.Duration) int64
}

// Handler wraps a Pool, adding http.Handler functionality.
type Handler struct {
	p    Pool
	r    *mux.Router
	user string
	hash []byte
	auth bool
}

// SetAuth requires HTTP Basic authentication.  The hash is a bcrypt hash
// of the password.
func (h *Handler) SetAuth(user string, hash []byte) {
	h.user = user
	h.hash = hash
	h.auth = true
}

func (h *Handler) internalError(w http.ResponseWriter, e error) {
	http.Error(w, e.Error(), http.StatusInternalServerError)
}

func (h *Handler) writeJson(w http.ResponseWriter, v interface{}, etag int64) {
	if b, e := json.Marshal(v); e != nil {
		h.internalError(w, e)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		if etag != 0 {
			w.Header().Set("Etag", formatEtag(etag))
		}
		w.Write(b)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, e *Error) {
	if b, err := json.Marshal(e); err != nil {
		h.internalError(w, err)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.WriteHeader(e.Code)
		w.Write(b)
	}
}

const pollStep = time.Second

func formatEtag(v int64) string {
	return "\"" + strconv.FormatInt(v, 16) + "\""
}

func parseEtag(s string) (int64, bool) {
	s = strings.Trim(strings.TrimPrefix(s, "W/"), "\"")
	v, e := strconv.ParseInt(s, 16, 64)
	return v, e == nil
}

// poll handles the conditional and long poll headers.  It returns the etag
// to use for the response, and false if the response should be 304.
func (h *Handler) poll(r *http.Request, cur int64, watch func(int64, time.Duration) int64) (int64, bool) {
	if old, ok := parseEtag(r.Header.Get(PollEtagHeader)); ok && old == cur {
		secs, _ := strconv.Atoi(r.Header.Get(PollTimeHeader))
		if secs > maxPollTime {
			secs = maxPollTime
		}
		// Wait in short steps, so that a client going away does not
		// leave us holding the request.
		ctx := r.Context()
		deadline := time.Now().Add(time.Duration(secs) * time.Second)
		for cur == old && ctx.Err() == nil {
			left := time.Until(deadline)
			if left <= 0 {
				break
			}
			if left > pollStep {
				left = pollStep
			}
			cur = watch(old, left)
		}
	}
	if old, ok := parseEtag(r.Header.Get("If-None-Match")); ok && old == cur {
		return cur, false
	}
	return cur, true
}

func (h *Handler) notModified(w http.ResponseWriter, etag int64) {
	w.Header().Set("Etag", formatEtag(etag))
	w.WriteHeader(http.StatusNotModified)
}

func (h *Handler) getInfo(w http.ResponseWriter, r *http.Request) {
	info := h.p.GetInfo()
	etag, changed := h.poll(r, info.Serial, h.p.WatchSerial)
	if !changed {
		h.notModified(w, etag)
		return
	}
	if etag != info.Serial {
		info = h.p.GetInfo()
	}
	h.writeJson(w, &PoolInfo{
		Name:       info.Name,
		Pid:        info.Pid,
		Workers:    info.Workers,
		Serial:     info.Serial,
		CreateTime: info.CreateTime,
		UpdateTime: info.UpdateTime,
	}, info.Serial)
}

func workerInfo(w prefork.WorkerInfo) WorkerInfo {
	return WorkerInfo{
		Index:    w.Index,
		Pid:      w.Pid,
		Started:  w.Started,
		Restarts: w.Restarts,
		Pending:  w.Pending,
	}
}

func (h *Handler) listWorkers(w http.ResponseWriter, r *http.Request) {
	serial := h.p.GetInfo().Serial
	etag, changed := h.poll(r, serial, h.p.WatchSerial)
	if !changed {
		h.notModified(w, etag)
		return
	}
	ws := h.p.Workers()
	l := make([]WorkerInfo, 0, len(ws))
	for _, wi := range ws {
		l = append(l, workerInfo(wi))
	}
	h.writeJson(w, l, etag)
}

func (h *Handler) findWorker(r *http.Request) (*prefork.WorkerInfo, int, *Error) {
	vars := mux.Vars(r)
	index, e := strconv.Atoi(vars["index"])
	if e != nil {
		return nil, -1, &Error{http.StatusBadRequest, "Bad worker index"}
	}
	for _, wi := range h.p.Workers() {
		if wi.Index == index {
			return &wi, index, nil
		}
	}
	return nil, index, &Error{http.StatusNotFound, "Worker not found"}
}

func (h *Handler) getWorker(w http.ResponseWriter, r *http.Request) {
	if wi, _, e := h.findWorker(r); e != nil {
		h.writeError(w, e)
	} else {
		h.writeJson(w, workerInfo(*wi), 0)
	}
}

func (h *Handler) stopWorker(w http.ResponseWriter, r *http.Request) {
	_, index, e := h.findWorker(r)
	if e != nil {
		h.writeError(w, e)
		return
	}
	switch err := h.p.StopWorker(index); err {
	case nil:
		h.writeJson(w, ok, 0)
	case prefork.ErrNoSuchWorker:
		h.writeError(w, &Error{http.StatusNotFound, err.Error()})
	case prefork.ErrNotRunning:
		h.writeError(w, &Error{http.StatusServiceUnavailable, err.Error()})
	default:
		h.writeError(w, &Error{http.StatusBadRequest, err.Error()})
	}
}

func (h *Handler) getLog(w http.ResponseWriter, r *http.Request) {
	etag, changed := h.poll(r, h.p.WatchLog(0, 0), h.p.WatchLog)
	if !changed {
		h.notModified(w, etag)
		return
	}
	recs, id := h.p.GetLog(0)
	l := make([]LogRecord, 0, len(recs))
	for _, rec := range recs {
		l = append(l, LogRecord{
			Id:     rec.Id,
			Time:   rec.Time,
			Worker: rec.Worker,
			Pid:    rec.Pid,
			Text:   rec.Text,
		})
	}
	h.writeJson(w, l, id)
}

func (h *Handler) authorized(r *http.Request) bool {
	if !h.auth {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if !ok || user != h.user {
		return false
	}
	return bcrypt.CompareHashAndPassword(h.hash, []byte(pass)) == nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if !h.authorized(req) {
		w.Header().Set("WWW-Authenticate", "Basic realm=\"prefork\"")
		h.writeError(w, &Error{http.StatusUnauthorized, "Unauthorized"})
		return
	}
	h.r.ServeHTTP(w, req)
}

func NewHandler(p Pool) *Handler {
	r := mux.NewRouter()
	h := &Handler{p: p, r: r}
	r.HandleFunc("/", h.getInfo).Methods("GET")
	r.HandleFunc("/workers", h.listWorkers).Methods("GET")
	r.HandleFunc("/workers/{index:[0-9]+}", h.getWorker).Methods("GET")
	r.HandleFunc("/workers/{index:[0-9]+}/stop", h.stopWorker).Methods("POST")
	r.HandleFunc("/log", h.getLog).Methods("GET")
	return h
}

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
	"io/ioutil"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/context"
	"golang.org/x/net/context/ctxhttp"
)

type LogInfo struct {
	etag    string
	Records []LogRecord
}

// WorkersInfo is the list of workers together with its etag.
type WorkersInfo struct {
	etag    string
	Workers []WorkerInfo
}

type Client struct {
	user   string // HTTP Basic-Auth
	pass   string
	base   string // URI to root of tree on server
	auth   bool
	client *http.Client
}

func (c *Client) SetAuth(user string, pass string) {
	c.user = user
	c.pass = pass
	c.auth = true
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.base, "/") + path
}

// poll issues an HTTP GET against the URL, optionally checking for a cache,
// including optionally issuing a long poll that tries to wait until the
// value changes.  The return values are the new Etag and any error.  If the
// value did not change, then the returned etag will be "", but the error will
// be nil.
func (c *Client) poll(ctx context.Context, url string, etag string, wait int, v interface{}) (string, error) {

	req, e := http.NewRequest("GET", url, nil)
	if e != nil {
		return "", e
	}
	if c.auth {
		req.SetBasicAuth(c.user, c.pass)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
		if wait > 0 {
			req.Header.Set(PollEtagHeader, etag)
			req.Header.Set(PollTimeHeader, strconv.Itoa(wait))
		}
	}

	res, e := ctxhttp.Do(ctx, c.client, req)
	if e != nil {
		return "", e
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotModified {
		return "", nil
	}
	body, e := ioutil.ReadAll(res.Body)
	if e != nil {
		return "", e
	}
	if res.StatusCode != http.StatusOK {
		return "", decodeError(res, body)
	}
	if e := json.Unmarshal(body, v); e != nil {
		return "", e
	}
	return res.Header.Get("Etag"), nil
}

func decodeError(res *http.Response, body []byte) error {
	e := &Error{}
	if json.Unmarshal(body, e) != nil || e.Code == 0 {
		return &Error{Code: res.StatusCode, Message: res.Status}
	}
	return e
}

func (c *Client) post(ctx context.Context, url string) error {
	req, e := http.NewRequest("POST", url, strings.NewReader(""))
	if e != nil {
		return e
	}
	req.Header.Set("Content-Type", "text/plain") // we don't really care
	if c.auth {
		req.SetBasicAuth(c.user, c.pass)
	}
	res, e := ctxhttp.Do(ctx, c.client, req)
	if e != nil {
		return e
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		body, _ := ioutil.ReadAll(res.Body)
		return decodeError(res, body)
	}
	return nil
}

func (c *Client) pollInfo(ctx context.Context, secs int, last *PoolInfo) (*PoolInfo, error) {
	otag := ""
	if last == nil {
		secs = 0
	} else {
		otag = last.etag
	}
	v := &PoolInfo{}
	etag, e := c.poll(ctx, c.url("/"), otag, secs, v)
	if e != nil {
		return nil, e
	}
	if etag == "" {
		return last, nil
	}
	v.etag = etag
	return v, nil
}

// GetInfo returns information about the pool.
func (c *Client) GetInfo() (*PoolInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return c.pollInfo(ctx, 0, nil)
}

// WatchInfo waits for the pool to change from last, and returns the new
// information.  If nothing changes before the server gives up, last is
// returned.
func (c *Client) WatchInfo(ctx context.Context, last *PoolInfo) (*PoolInfo, error) {
	return c.pollInfo(ctx, maxPollTime, last)
}

func (c *Client) pollWorkers(ctx context.Context, secs int, last *WorkersInfo) (*WorkersInfo, error) {
	otag := ""
	if last == nil {
		secs = 0
	} else {
		otag = last.etag
	}
	v := &WorkersInfo{}
	etag, e := c.poll(ctx, c.url("/workers"), otag, secs, &v.Workers)
	if e != nil {
		return nil, e
	}
	if etag == "" {
		return last, nil
	}
	v.etag = etag
	return v, nil
}

// Workers returns the workers in the pool, in slot order.
func (c *Client) Workers() ([]WorkerInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, e := c.pollWorkers(ctx, 0, nil)
	if e != nil {
		return nil, e
	}
	return v.Workers, nil
}

// WatchWorkers is the long polling form of Workers.
func (c *Client) WatchWorkers(ctx context.Context, last *WorkersInfo) (*WorkersInfo, error) {
	return c.pollWorkers(ctx, maxPollTime, last)
}

// GetWorker returns a single worker slot.
func (c *Client) GetWorker(index int) (*WorkerInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v := &WorkerInfo{}
	if _, e := c.poll(ctx, c.url("/workers/"+strconv.Itoa(index)), "", 0, v); e != nil {
		return nil, e
	}
	return v, nil
}

// StopWorker asks the worker in the slot to stop.  The supervisor will
// replace it.
func (c *Client) StopWorker(index int) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	return c.post(ctx, c.url("/workers/"+strconv.Itoa(index)+"/stop"))
}

func (c *Client) pollLog(ctx context.Context, secs int, last *LogInfo) (*LogInfo, error) {

	v := &LogInfo{}
	otag := ""

	if last == nil {
		secs = 0
	} else {
		otag = last.etag
	}

	etag, e := c.poll(ctx, c.url("/log"), otag, secs, &v.Records)
	if e != nil {
		return nil, e
	}
	if etag == "" {
		return last, nil
	}
	v.etag = etag

	return v, nil
}

func (c *Client) WatchLog(ctx context.Context, last *LogInfo) (*LogInfo, error) {

	// Let the poll wait for up to 300 secs (5 minutes).
	return c.pollLog(ctx, maxPollTime, last)
}

func (c *Client) GetLog() (*LogInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return c.pollLog(ctx, 0, nil)
}

// NewClient returns a Client handle.  The transport maybe nil to use
// a default transport, but it may also be adjusted to support additional
// options such as TLS.  baseURI is the base URL to use.
func NewClient(t *http.Transport, baseURI string) *Client {
	if t == nil {
		t = &http.Transport{}
	}
	c := &Client{
		base:   baseURI,
		client: &http.Client{Transport: t},
	}
	return c
}

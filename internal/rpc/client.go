// Package rpc calls remote content services that speak an XML request
// envelope over HTTP POST.
package rpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/BartekS5/cmigrate/pkg/logger"
)

var (
	// ErrStatus is a non-2xx response. Nothing is cached.
	ErrStatus = errors.New("rpc: unexpected status")
	// ErrMalformed is a body that is not well formed XML. A cached copy is
	// kept next to the cache entry with InvalidSuffix.
	ErrMalformed = errors.New("rpc: malformed response")
	// ErrFault is a well formed <fault> response.
	ErrFault = errors.New("rpc: fault")
	// ErrUnreachable is a failure to reach the endpoint at all.
	ErrUnreachable = errors.New("rpc: endpoint unreachable")
)

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Credentials struct {
	Username string
	Password string
}

type Param struct {
	Name  string
	Value string
}

type Client struct {
	endpoint string
	creds    Credentials
	http     Doer
	cache    *Cache
}

type Option func(*Client)

// WithDoer replaces the default HTTP client.
func WithDoer(d Doer) Option {
	return func(c *Client) { c.http = d }
}

// WithCache serves repeated calls of the same name from disk.
func WithCache(cache *Cache) Option {
	return func(c *Client) { c.cache = cache }
}

func NewClient(endpoint string, creds Credentials, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		creds:    creds,
		http:     &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Envelope renders the request document for method.
func (c *Client) Envelope(method string, params ...Param) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	req := doc.CreateElement("request")
	auth := req.CreateElement("authentication")
	auth.CreateElement("username").SetText(c.creds.Username)
	auth.CreateElement("password").SetText(c.creds.Password)
	req.CreateElement("method").SetText(method)
	ps := req.CreateElement("params")
	for _, p := range params {
		el := ps.CreateElement("param")
		el.CreateAttr("name", p.Name)
		el.SetText(p.Value)
	}
	return doc.WriteToBytes()
}

// Call runs method and returns the parsed response. name identifies the call
// in the cache; a cached response is returned without touching the network.
func (c *Client) Call(ctx context.Context, name, method string, params ...Param) (*etree.Document, error) {
	if c.cache != nil {
		body, ok, err := c.cache.Get(name)
		if err != nil {
			return nil, fmt.Errorf("rpc %s: read cache: %w", name, err)
		}
		if ok {
			return c.parse(name, body, true)
		}
	}

	body, err := c.post(ctx, method, params)
	if err != nil {
		return nil, fmt.Errorf("rpc %s: %w", name, err)
	}
	if c.cache != nil {
		if err := c.cache.Put(name, body); err != nil {
			logger.Warnf("rpc %s: write cache: %v", name, err)
			return c.parse(name, body, false)
		}
	}
	return c.parse(name, body, c.cache != nil)
}

func (c *Client) post(ctx context.Context, method string, params []Param) ([]byte, error) {
	envelope, err := c.Envelope(method, params...)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(envelope))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreachable, method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: read body: %v", ErrUnreachable, method, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Errorf("rpc %s: status %d", method, resp.StatusCode)
		return nil, fmt.Errorf("%w: %s returned %d", ErrStatus, method, resp.StatusCode)
	}
	return body, nil
}

// parse decodes body. A cached body that does not parse is quarantined; a
// fault is dropped from the cache so the next run asks again.
func (c *Client) parse(name string, body []byte, cached bool) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil || doc.Root() == nil {
		if err == nil {
			err = errors.New("no root element")
		}
		if cached {
			if path, qerr := c.cache.Quarantine(name); qerr == nil {
				logger.Errorf("rpc %s: malformed response kept at %s", name, path)
			}
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, name, err)
	}
	if root := doc.Root(); root.Tag == "fault" {
		if cached {
			c.cache.Remove(name)
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrFault, name, faultMessage(root))
	}
	return doc, nil
}

func faultMessage(root *etree.Element) string {
	for _, path := range []string{"faultString", "message", "string"} {
		if el := root.FindElement(path); el != nil {
			return strings.TrimSpace(el.Text())
		}
	}
	return strings.TrimSpace(root.Text())
}

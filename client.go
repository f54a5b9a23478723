package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

type Method int

const (
	GET Method = iota
	POST
)

func (m Method) String() string {
	switch m {
	case GET:
		return http.MethodGet
	case POST:
		return http.MethodPost
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// RequestOptions carries the optional parts of a request. JSON, when set,
// is marshaled as the body.
type RequestOptions struct {
	Name    string // statistics name; defaults to the endpoint
	Headers map[string]string
	JSON    interface{}
}

type Response struct {
	StatusCode    int
	ContentLength int64
	Duration      time.Duration
	Body          []byte
}

// Failed reports whether the status is a client or server error.
func (r *Response) Failed() bool {
	return r.StatusCode >= 400
}

// StatusError describes a response whose status was 4xx or 5xx. It is used
// for statistics and span status only; Do does not return it.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Client issues requests against the target host on behalf of one kind of
// user, recording every call in the statistics and, when manual spans are
// on, wrapping it in a span.
type Client struct {
	host        *url.URL
	http        *http.Client
	sender      Sender
	stats       *Stats
	userType    string
	manualSpans bool
}

// NewClient builds a client for host. The http client's transport should
// already carry whatever automatic instrumentation is wanted.
func NewClient(host *url.URL, hc *http.Client, sender Sender, stats *Stats, userType string, manualSpans bool) *Client {
	return &Client{
		host:        host,
		http:        hc,
		sender:      sender,
		stats:       stats,
		userType:    userType,
		manualSpans: manualSpans,
	}
}

// Sender returns the tracing handle the client was built with.
func (c *Client) Sender() Sender {
	return c.sender
}

func (c *Client) url(endpoint string) (string, error) {
	ref, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	return c.host.ResolveReference(ref).String(), nil
}

// Do sends one request. A 4xx or 5xx response is returned with a nil
// error; only failures to get a response at all are errors.
func (c *Client) Do(ctx context.Context, method Method, endpoint string, opts RequestOptions) (resp *Response, err error) {
	name := opts.Name
	if name == "" {
		name = endpoint
	}
	target, err := c.url(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}

	var span RequestSpan = DummySendable{}
	if c.manualSpans {
		ctx, span = c.sender.StartSpan(ctx, method.String()+" "+endpoint)
		span.AddField("http.method", method.String())
		span.AddField("http.url", target)
		span.AddField("user.type", c.userType)
		defer func() {
			if err != nil {
				span.RecordError(err)
			} else {
				span.AddField("http.status_code", resp.StatusCode)
				span.AddField("http.response_size", resp.ContentLength)
				if resp.Failed() {
					span.SetError((&StatusError{resp.StatusCode}).Error())
				}
			}
			span.Send()
		}()
	}

	start := time.Now()
	resp, err = c.roundTrip(ctx, method, target, opts)
	elapsed := time.Since(start)
	if err != nil {
		err = fmt.Errorf("%s %s: %w", method, endpoint, err)
		c.stats.Failure(method.String(), name, elapsed, 0, err)
		return nil, err
	}
	resp.Duration = elapsed
	if resp.Failed() {
		c.stats.Failure(method.String(), name, elapsed, resp.ContentLength, &StatusError{resp.StatusCode})
	} else {
		c.stats.Success(method.String(), name, elapsed, resp.ContentLength)
	}
	return resp, nil
}

func (c *Client) roundTrip(ctx context.Context, method Method, target string, opts RequestOptions) (*Response, error) {
	var body io.Reader
	if opts.JSON != nil {
		data, err := json.Marshal(opts.JSON)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method.String(), target, body)
	if err != nil {
		return nil, err
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	hresp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer hresp.Body.Close()
	data, err := io.ReadAll(hresp.Body)
	if err != nil {
		return nil, err
	}
	return &Response{
		StatusCode:    hresp.StatusCode,
		ContentLength: int64(len(data)),
		Body:          data,
	}, nil
}

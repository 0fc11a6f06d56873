package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPLocalConn is a concrete LocalConn forwarding a proxied request to one
// of this node's own IPC services over loopback HTTP (the §6.1 attrd/execd
// surface, or any other local service mounted behind baseURL+channel). It
// stands in for the real local IPC client connection §1 treats as an
// external collaborator.
type HTTPLocalConn struct {
	url    string
	client *http.Client
}

// DialHTTPLocalConn builds a LocalConn forwarding to baseURL+"/"+channel.
func DialHTTPLocalConn(baseURL, channel string) (LocalConn, error) {
	if baseURL == "" || channel == "" {
		return nil, fmt.Errorf("proxy: baseURL and channel are required")
	}
	return &HTTPLocalConn{url: baseURL + "/" + channel, client: &http.Client{Timeout: 30 * time.Second}}, nil
}

// Forward strips the newline-terminated node tag that session.go's
// tagWithNode prepends, posts the remaining payload, and carries the node
// name in the X-Cluster-Node header.
func (c *HTTPLocalConn) Forward(ctx context.Context, payload []byte) ([]byte, error) {
	node := ""
	if i := bytes.IndexByte(payload, '\n'); i >= 0 {
		node, payload = string(payload[:i]), payload[i+1:]
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Cluster-Node", node)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (c *HTTPLocalConn) Alive() bool { return c.client != nil }

func (c *HTTPLocalConn) Close() {}

var _ LocalConn = (*HTTPLocalConn)(nil)

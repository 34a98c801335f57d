package timequery

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"time"
)

const DefaultQueryTimeout = 2 * time.Second

// Query sends one DSYN request to addr and waits for the matching reply.
// Responses with a mismatched ID are discarded and the wait continues until
// the context deadline.
func Query(ctx context.Context, addr string) (Response, error) {
	raddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return Response{}, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.DialUDP("udp4", nil, raddr)
	if err != nil {
		return Response{}, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(DefaultQueryTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return Response{}, fmt.Errorf("set deadline: %w", err)
	}

	req := Request{ID: rand.Uint32()}
	if _, err := conn.Write(req.Marshal()); err != nil {
		return Response{}, fmt.Errorf("send query to %s: %w", addr, err)
	}

	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return Response{}, fmt.Errorf("read from %s: %w", addr, err)
		}
		resp, err := ParseResponse(buf[:n])
		if err != nil || resp.ID != req.ID {
			continue
		}
		return resp, nil
	}
}

package geo

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// GPSD reads fixes from a gpsd daemon over its JSON protocol. It
// implements Watcher, so the sampler runs push-based instead of
// polling when this source is configured.
type GPSD struct {
	// Addr is host:port, default localhost:2947.
	Addr string
	// Dial overridden in tests.
	Dial func(ctx context.Context, addr string) (net.Conn, error)
}

const gpsdDefaultAddr = "localhost:2947"

// tpv is gpsd's time-position-velocity report. Mode 2 and 3 are 2D/3D
// fixes; anything lower has no usable position.
type tpv struct {
	Class string  `json:"class"`
	Mode  int     `json:"mode"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	EPX   float64 `json:"epx"`
	Time  string  `json:"time"`
}

func (g *GPSD) addr() string {
	if g.Addr != "" {
		return g.Addr
	}
	return gpsdDefaultAddr
}

func (g *GPSD) dial(ctx context.Context) (net.Conn, error) {
	if g.Dial != nil {
		return g.Dial(ctx, g.addr())
	}
	var d net.Dialer
	return d.DialContext(ctx, "tcp", g.addr())
}

// Current connects, enables watch mode and returns the first fix.
func (g *GPSD) Current(ctx context.Context) (Position, error) {
	positions, errs := g.Watch(ctx)
	select {
	case <-ctx.Done():
		return Position{}, ErrTimeout
	case pos, ok := <-positions:
		if !ok {
			return Position{}, ErrUnavailable
		}
		return pos, nil
	case err := <-errs:
		return Position{}, err
	}
}

// Watch streams fixes until ctx is cancelled. The connection is closed
// on every exit path.
func (g *GPSD) Watch(ctx context.Context) (<-chan Position, <-chan error) {
	positions := make(chan Position, 1)
	errs := make(chan error, 1)

	go func() {
		defer close(positions)
		defer close(errs)

		conn, err := g.dial(ctx)
		if err != nil {
			errs <- fmt.Errorf("gpsd %s: %v: %w", g.addr(), err, ErrUnavailable)
			return
		}
		defer conn.Close()

		// unblock the read loop on cancellation
		go func() {
			<-ctx.Done()
			conn.Close()
		}()

		if _, err := fmt.Fprintf(conn, `?WATCH={"enable":true,"json":true};`+"\n"); err != nil {
			errs <- fmt.Errorf("gpsd watch: %v: %w", err, ErrUnavailable)
			return
		}

		scanner := bufio.NewScanner(conn)
		scanner.Buffer(make([]byte, 0, 64*1024), 64*1024)
		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}
			var report tpv
			if err := json.Unmarshal(scanner.Bytes(), &report); err != nil {
				continue
			}
			if report.Class != "TPV" || report.Mode < 2 {
				continue
			}
			pos := Position{
				Latitude:  report.Lat,
				Longitude: report.Lon,
				Accuracy:  report.EPX,
				Time:      time.Now(),
			}
			if t, err := time.Parse(time.RFC3339, report.Time); err == nil {
				pos.Time = t
			}
			select {
			case positions <- pos:
			case <-ctx.Done():
				return
			}
		}
		if ctx.Err() == nil {
			errs <- fmt.Errorf("gpsd stream ended: %w", ErrUnavailable)
		}
	}()

	return positions, errs
}

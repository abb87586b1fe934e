// Package discovery advertises the server on the local network over mDNS and
// lets clients find it without a configured URL.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"

	"github.com/irvifa/collaborative-editor/internal/logger"
)

// ErrNotFound is returned when browsing finds no server before the deadline.
var ErrNotFound = errors.New("discovery: no server found")

// pathKey prefixes the TXT entry carrying the websocket path.
const pathKey = "path="

// Advertise registers the service and blocks until ctx is cancelled.
func Advertise(ctx context.Context, log *slog.Logger, instance, service, domain string, port int, path string) error {
	if instance == "" {
		host, _ := os.Hostname()
		instance = fmt.Sprintf("CollabText-%s", host)
	}
	server, err := zeroconf.Register(instance, service, domain, port, []string{"txtv=1", pathKey + path}, nil)
	if err != nil {
		return fmt.Errorf("discovery: register %s: %w", service, err)
	}
	defer server.Shutdown()

	log.Info("mDNS service registered",
		slog.String("instance", instance),
		slog.String("service", service),
		slog.Int("port", port),
	)
	<-ctx.Done()
	return nil
}

// Browse returns the websocket URL of the first server found for service.
func Browse(ctx context.Context, log *slog.Logger, service, domain string) (string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", fmt.Errorf("discovery: init resolver: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(chan string, 1)
	go func() {
		for entry := range entries {
			url, ok := EntryURL(entry)
			if !ok {
				continue
			}
			log.Info("mDNS discovered server", slog.String("instance", entry.Instance), slog.String("url", url))
			select {
			case found <- url:
				cancel()
			default:
			}
		}
	}()

	if err := resolver.Browse(ctx, service, domain, entries); err != nil {
		return "", fmt.Errorf("discovery: browse %s: %w", service, err)
	}

	select {
	case url := <-found:
		return url, nil
	case <-ctx.Done():
		select {
		case url := <-found:
			return url, nil
		default:
		}
		log.Warn("mDNS browse finished without result", logger.Error(ctx.Err()))
		return "", ErrNotFound
	}
}

// EntryURL builds a websocket URL from a resolved entry.
func EntryURL(entry *zeroconf.ServiceEntry) (string, bool) {
	if entry == nil || entry.Port == 0 {
		return "", false
	}

	var host string
	switch {
	case len(entry.AddrIPv4) > 0:
		host = entry.AddrIPv4[0].String()
	case len(entry.AddrIPv6) > 0:
		host = entry.AddrIPv6[0].String()
	case entry.HostName != "":
		host = strings.TrimSuffix(entry.HostName, ".")
	default:
		return "", false
	}

	path := "/ws"
	for _, txt := range entry.Text {
		if p, ok := strings.CutPrefix(txt, pathKey); ok && strings.HasPrefix(p, "/") {
			path = p
		}
	}
	return "ws://" + net.JoinHostPort(host, strconv.Itoa(entry.Port)) + path, true
}

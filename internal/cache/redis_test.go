package cache

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"torrentstream/seedwarden/internal/domain"
)

// unreachableClient points at a port nothing listens on.
func unreachableClient(t *testing.T) *redis.Client {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
	t.Cleanup(func() { client.Close() })
	return client
}

// respServer answers the handful of RESP2 commands the cache sends. Anything
// else, including the HELLO handshake, gets an error reply.
type respServer struct {
	mu   sync.Mutex
	data map[string]string
	ln   net.Listener
}

func newRESPServer(t *testing.T) *respServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &respServer{data: make(map[string]string), ln: ln}
	t.Cleanup(func() { ln.Close() })
	go s.serve()
	return s
}

func (s *respServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *respServer) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		args, err := readCommand(r)
		if err != nil {
			return
		}
		if _, err := io.WriteString(conn, s.reply(args)); err != nil {
			return
		}
	}
}

func (s *respServer) reply(args []string) string {
	if len(args) == 0 {
		return "-ERR empty command\r\n"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch strings.ToUpper(args[0]) {
	case "PING":
		return "+PONG\r\n"
	case "GET":
		v, ok := s.data[args[1]]
		if !ok {
			return "$-1\r\n"
		}
		return fmt.Sprintf("$%d\r\n%s\r\n", len(v), v)
	case "SET":
		s.data[args[1]] = args[2]
		return "+OK\r\n"
	default:
		return "-ERR unknown command\r\n"
	}
}

func readCommand(r *bufio.Reader) ([]string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, "*") {
		return nil, fmt.Errorf("unexpected line %q", line)
	}
	n, err := strconv.Atoi(line[1:])
	if err != nil {
		return nil, err
	}
	args := make([]string, 0, n)
	for i := 0; i < n; i++ {
		header, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		size, err := strconv.Atoi(strings.TrimRight(header, "\r\n")[1:])
		if err != nil {
			return nil, err
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		args = append(args, string(buf[:size]))
	}
	return args, nil
}

func (s *respServer) client(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:            s.ln.Addr().String(),
		Protocol:        2,
		DisableIdentity: true,
		MaxRetries:      -1,
	})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisStatsCache_UnreachableReportsError(t *testing.T) {
	c := NewRedisStatsCache(unreachableClient(t), StatsKey("http://qbt:8080"))
	ctx := context.Background()

	if _, ok, err := c.Get(ctx); err == nil || ok {
		t.Fatalf("Get: ok=%v err=%v, want error", ok, err)
	}
	if err := c.Set(ctx, domain.TransferStats{Total: 1}, time.Second); err == nil {
		t.Fatal("Set: expected error")
	}
	if err := c.Ping(ctx); err == nil {
		t.Fatal("Ping: expected error")
	}
}

func TestRedisStatsCache_RoundTripIsPerClient(t *testing.T) {
	srv := newRESPServer(t)
	ctx := context.Background()
	first := NewRedisStatsCache(srv.client(t), StatsKey("http://qbt-a:8080"))
	second := NewRedisStatsCache(srv.client(t), StatsKey("http://qbt-b:8080"))

	if err := first.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if _, ok, err := first.Get(ctx); err != nil || ok {
		t.Fatalf("empty Get: ok=%v err=%v, want miss", ok, err)
	}

	collected := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	want := domain.TransferStats{Total: 3, Seeding: 2, TotalUploaded: 300, TotalDownloaded: 100, TotalRatio: 3, CollectedAt: collected}
	if err := first.Set(ctx, want, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok, err := first.Get(ctx)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.Total != want.Total || got.TotalRatio != want.TotalRatio || !got.CollectedAt.Equal(collected) {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	if _, ok, err := second.Get(ctx); err != nil || ok {
		t.Fatalf("other client's cache: ok=%v err=%v, want miss", ok, err)
	}
}

func TestStatsKey(t *testing.T) {
	tests := []struct {
		url, want string
	}{
		{"http://localhost:8080", "seedwarden:stats:localhost:8080"},
		{"http://QBT.lan:8080/", "seedwarden:stats:qbt.lan:8080"},
		{" https://seedbox.example/qbt/ ", "seedwarden:stats:seedbox.example/qbt"},
		{"qbt", "seedwarden:stats:qbt"},
	}
	for _, tt := range tests {
		if got := StatsKey(tt.url); got != tt.want {
			t.Errorf("StatsKey(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
	if StatsKey("http://a:8080") == StatsKey("http://b:8080") {
		t.Fatal("different clients must not share a key")
	}
}

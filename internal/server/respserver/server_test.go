package respserver

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/feoxd/internal/pubsub"
	"github.com/yndnr/feoxd/internal/registry"
	"github.com/yndnr/feoxd/internal/store"
	"github.com/yndnr/feoxd/internal/telemetry/metric"
)

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()

	st := store.New(store.WithSweepInterval(10 * time.Millisecond))
	hub := pubsub.New(EncodeMessage)
	reg := registry.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg.Addr = "127.0.0.1:0"
	srv := New(cfg, st, hub, reg, metric.New(), logger)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		_ = st.Close()
	})
	return srv
}

func dialServer(t *testing.T, srv *Server) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	return conn, bufio.NewReader(conn)
}

func send(t *testing.T, conn net.Conn, raw string) {
	t.Helper()
	if _, err := conn.Write([]byte(raw)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// cmd renders args as a RESP array frame.
func cmd(args ...string) string {
	var b strings.Builder
	b.WriteString("*")
	b.WriteString(itoa(len(args)))
	b.WriteString("\r\n")
	for _, a := range args {
		b.WriteString("$")
		b.WriteString(itoa(len(a)))
		b.WriteString("\r\n")
		b.WriteString(a)
		b.WriteString("\r\n")
	}
	return b.String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var d []byte
	for n > 0 {
		d = append([]byte{byte('0' + n%10)}, d...)
		n /= 10
	}
	if neg {
		d = append([]byte{'-'}, d...)
	}
	return string(d)
}

// readReply consumes one complete reply frame and returns it verbatim.
func readReply(t *testing.T, br *bufio.Reader) string {
	t.Helper()

	line, err := br.ReadString('\n')
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}

	switch line[0] {
	case '+', '-', ':':
		return line
	case '$':
		n := parseLen(t, line[1:])
		if n < 0 {
			return line
		}
		buf := make([]byte, n+2)
		if _, err := io.ReadFull(br, buf); err != nil {
			t.Fatalf("read bulk body: %v", err)
		}
		return line + string(buf)
	case '*':
		n := parseLen(t, line[1:])
		if n < 0 {
			return line
		}
		out := line
		for i := int64(0); i < n; i++ {
			out += readReply(t, br)
		}
		return out
	default:
		t.Fatalf("unexpected reply type %q", line)
		return ""
	}
}

func parseLen(t *testing.T, s string) int64 {
	t.Helper()
	s = strings.TrimSuffix(strings.TrimSuffix(s, "\n"), "\r")
	var n int64
	neg := false
	for i, c := range s {
		if i == 0 && c == '-' {
			neg = true
			continue
		}
		n = n*10 + int64(c-'0')
	}
	if neg {
		return -n
	}
	return n
}

func expectReply(t *testing.T, br *bufio.Reader, want string) {
	t.Helper()
	if got := readReply(t, br); got != want {
		t.Errorf("reply = %q, want %q", got, want)
	}
}

// ============================================================
// Wire Scenarios
// ============================================================

func TestScenarioSetGetDel(t *testing.T) {
	srv := newTestServer(t, Config{})
	conn, br := dialServer(t, srv)

	send(t, conn, "*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n")
	expectReply(t, br, "+OK\r\n")

	send(t, conn, "*2\r\n$3\r\nGET\r\n$1\r\nk\r\n")
	expectReply(t, br, "$1\r\nv\r\n")

	send(t, conn, "*2\r\n$3\r\nDEL\r\n$1\r\nk\r\n")
	expectReply(t, br, ":1\r\n")

	send(t, conn, "*2\r\n$3\r\nGET\r\n$1\r\nk\r\n")
	expectReply(t, br, "$-1\r\n")
}

func TestScenarioIncrFromSet(t *testing.T) {
	srv := newTestServer(t, Config{})
	conn, br := dialServer(t, srv)

	send(t, conn, cmd("SET", "K", "9"))
	expectReply(t, br, "+OK\r\n")
	send(t, conn, cmd("INCR", "K"))
	expectReply(t, br, ":10\r\n")
	send(t, conn, cmd("INCR", "K"))
	expectReply(t, br, ":11\r\n")
	send(t, conn, cmd("GET", "K"))
	expectReply(t, br, "$2\r\n11\r\n")
}

func TestScenarioWrongType(t *testing.T) {
	srv := newTestServer(t, Config{})
	conn, br := dialServer(t, srv)

	send(t, conn, cmd("SET", "K", "x"))
	expectReply(t, br, "+OK\r\n")

	send(t, conn, cmd("LPUSH", "K", "y"))
	got := readReply(t, br)
	if !strings.HasPrefix(got, "-WRONGTYPE") {
		t.Errorf("reply = %q, want WRONGTYPE error", got)
	}

	send(t, conn, cmd("GET", "K"))
	expectReply(t, br, "$1\r\nx\r\n")
}

func TestScenarioPubSubFanout(t *testing.T) {
	srv := newTestServer(t, Config{})
	sub, subBr := dialServer(t, srv)
	pub, pubBr := dialServer(t, srv)

	send(t, sub, cmd("SUBSCRIBE", "c1"))
	expectReply(t, subBr, "*3\r\n$9\r\nsubscribe\r\n$2\r\nc1\r\n:1\r\n")

	// Publish may race the subscription registration on a fresh
	// connection, so the confirmation above must be read first.
	send(t, pub, cmd("PUBLISH", "c1", "hi"))
	expectReply(t, pubBr, ":1\r\n")

	expectReply(t, subBr, "*3\r\n$7\r\nmessage\r\n$2\r\nc1\r\n$2\r\nhi\r\n")
}

func TestScenarioPatternFanout(t *testing.T) {
	srv := newTestServer(t, Config{})
	sub, subBr := dialServer(t, srv)
	pub, pubBr := dialServer(t, srv)

	send(t, sub, cmd("PSUBSCRIBE", "c*"))
	expectReply(t, subBr, "*3\r\n$10\r\npsubscribe\r\n$2\r\nc*\r\n:1\r\n")

	send(t, pub, cmd("PUBLISH", "c7", "m"))
	expectReply(t, pubBr, ":1\r\n")

	expectReply(t, subBr, "*4\r\n$8\r\npmessage\r\n$2\r\nc*\r\n$2\r\nc7\r\n$1\r\nm\r\n")
}

func TestScenarioAuthGate(t *testing.T) {
	srv := newTestServer(t, Config{Requirepass: "pw"})
	conn, br := dialServer(t, srv)

	send(t, conn, cmd("GET", "x"))
	expectReply(t, br, "-NOAUTH Authentication required.\r\n")

	send(t, conn, cmd("AUTH", "wrong"))
	expectReply(t, br, "-WRONGPASS invalid username-password pair or user is disabled.\r\n")

	// A failed AUTH leaves the connection unauthenticated.
	send(t, conn, cmd("GET", "x"))
	expectReply(t, br, "-NOAUTH Authentication required.\r\n")

	send(t, conn, cmd("AUTH", "pw"))
	expectReply(t, br, "+OK\r\n")

	send(t, conn, cmd("GET", "x"))
	expectReply(t, br, "$-1\r\n")
}

func TestScenarioPipelinedSets(t *testing.T) {
	srv := newTestServer(t, Config{})
	conn, br := dialServer(t, srv)

	send(t, conn, cmd("SET", "a", "1")+cmd("SET", "b", "2")+cmd("SET", "c", "3"))
	expectReply(t, br, "+OK\r\n")
	expectReply(t, br, "+OK\r\n")
	expectReply(t, br, "+OK\r\n")

	send(t, conn, cmd("MGET", "a", "b", "c"))
	expectReply(t, br, "*3\r\n$1\r\n1\r\n$1\r\n2\r\n$1\r\n3\r\n")
}

// ============================================================
// State Machine
// ============================================================

func TestInlineFirstCommand(t *testing.T) {
	srv := newTestServer(t, Config{})
	conn, br := dialServer(t, srv)

	send(t, conn, "PING\r\n")
	expectReply(t, br, "+PONG\r\n")
}

func TestUnknownCommand(t *testing.T) {
	srv := newTestServer(t, Config{})
	conn, br := dialServer(t, srv)

	send(t, conn, cmd("BOGUS", "x"))
	expectReply(t, br, "-ERR unknown command 'BOGUS'\r\n")

	// The connection survives command errors.
	send(t, conn, cmd("PING"))
	expectReply(t, br, "+PONG\r\n")
}

func TestArityError(t *testing.T) {
	srv := newTestServer(t, Config{})
	conn, br := dialServer(t, srv)

	send(t, conn, cmd("GET"))
	expectReply(t, br, "-ERR wrong number of arguments for 'GET'\r\n")

	send(t, conn, cmd("SET", "k"))
	expectReply(t, br, "-ERR wrong number of arguments for 'SET'\r\n")
}

func TestSubscribedModeRestriction(t *testing.T) {
	srv := newTestServer(t, Config{})
	conn, br := dialServer(t, srv)

	send(t, conn, cmd("SUBSCRIBE", "c1"))
	readReply(t, br)

	send(t, conn, cmd("GET", "k"))
	got := readReply(t, br)
	if !strings.HasPrefix(got, "-ERR Can't execute 'get'") {
		t.Errorf("reply = %q", got)
	}

	// PING stays legal and the subscription set is unchanged.
	send(t, conn, cmd("PING"))
	expectReply(t, br, "+PONG\r\n")

	send(t, conn, cmd("UNSUBSCRIBE"))
	expectReply(t, br, "*3\r\n$11\r\nunsubscribe\r\n$2\r\nc1\r\n:0\r\n")

	// Mode left Subscribed: data commands work again.
	send(t, conn, cmd("GET", "k"))
	expectReply(t, br, "$-1\r\n")
}

func TestQuit(t *testing.T) {
	srv := newTestServer(t, Config{})
	conn, br := dialServer(t, srv)

	send(t, conn, cmd("QUIT"))
	expectReply(t, br, "+OK\r\n")

	if _, err := br.ReadByte(); err != io.EOF {
		t.Errorf("after QUIT: err = %v, want EOF", err)
	}
}

func TestProtocolErrorIsFatal(t *testing.T) {
	srv := newTestServer(t, Config{})
	conn, br := dialServer(t, srv)

	// Valid frame, then garbage in array mode.
	send(t, conn, cmd("PING"))
	expectReply(t, br, "+PONG\r\n")
	send(t, conn, "GARBAGE\r\n")

	got := readReply(t, br)
	if !strings.HasPrefix(got, "-ERR Protocol error") {
		t.Errorf("reply = %q", got)
	}
	if _, err := br.ReadByte(); err != io.EOF {
		t.Errorf("connection survived protocol error: %v", err)
	}
}

func TestExpireEndToEnd(t *testing.T) {
	srv := newTestServer(t, Config{})
	conn, br := dialServer(t, srv)

	send(t, conn, cmd("SET", "k", "v"))
	expectReply(t, br, "+OK\r\n")
	send(t, conn, cmd("EXPIRE", "k", "10"))
	expectReply(t, br, ":1\r\n")
	send(t, conn, cmd("TTL", "k"))
	expectReply(t, br, ":10\r\n")

	send(t, conn, cmd("PEXPIRE", "k", "30"))
	expectReply(t, br, ":1\r\n")
	time.Sleep(80 * time.Millisecond)

	send(t, conn, cmd("GET", "k"))
	expectReply(t, br, "$-1\r\n")
	send(t, conn, cmd("EXISTS", "k"))
	expectReply(t, br, ":0\r\n")
}

// ============================================================
// CLIENT / Admin Commands
// ============================================================

func TestClientCommands(t *testing.T) {
	srv := newTestServer(t, Config{})
	conn, br := dialServer(t, srv)

	send(t, conn, cmd("CLIENT", "ID"))
	id := readReply(t, br)
	if !strings.HasPrefix(id, ":") {
		t.Errorf("CLIENT ID = %q", id)
	}

	send(t, conn, cmd("CLIENT", "GETNAME"))
	expectReply(t, br, "$0\r\n\r\n")

	send(t, conn, cmd("CLIENT", "SETNAME", "tester"))
	expectReply(t, br, "+OK\r\n")
	send(t, conn, cmd("CLIENT", "GETNAME"))
	expectReply(t, br, "$6\r\ntester\r\n")

	send(t, conn, cmd("CLIENT", "SETNAME", "has space"))
	got := readReply(t, br)
	if !strings.HasPrefix(got, "-ERR Client names") {
		t.Errorf("reply = %q", got)
	}

	send(t, conn, cmd("CLIENT", "LIST"))
	list := readReply(t, br)
	if !strings.Contains(list, "name=tester") || !strings.Contains(list, "cmd=client") {
		t.Errorf("CLIENT LIST = %q", list)
	}
}

func TestClientKill(t *testing.T) {
	srv := newTestServer(t, Config{})
	victim, victimBr := dialServer(t, srv)
	killer, killerBr := dialServer(t, srv)

	send(t, victim, cmd("CLIENT", "ID"))
	idReply := readReply(t, victimBr)
	id := strings.TrimSuffix(strings.TrimPrefix(idReply, ":"), "\r\n")

	send(t, killer, cmd("CLIENT", "KILL", "ID", id))
	expectReply(t, killerBr, ":1\r\n")

	// The victim's connection is closed asynchronously.
	_ = victim.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := victimBr.ReadByte(); err == nil {
		t.Error("victim connection still alive after CLIENT KILL")
	}
}

func TestClientPauseDefersWrites(t *testing.T) {
	srv := newTestServer(t, Config{})
	admin, adminBr := dialServer(t, srv)
	writer, writerBr := dialServer(t, srv)

	send(t, admin, cmd("CLIENT", "PAUSE", "300"))
	expectReply(t, adminBr, "+OK\r\n")

	start := time.Now()
	send(t, writer, cmd("SET", "k", "v"))
	expectReply(t, writerBr, "+OK\r\n")
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("write completed in %v during pause", elapsed)
	}

	// Reads proceed while paused.
	send(t, admin, cmd("CLIENT", "PAUSE", "300"))
	expectReply(t, adminBr, "+OK\r\n")
	start = time.Now()
	send(t, writer, cmd("GET", "k"))
	expectReply(t, writerBr, "$1\r\nv\r\n")
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Errorf("read took %v during pause", elapsed)
	}

	send(t, admin, cmd("CLIENT", "UNPAUSE"))
	expectReply(t, adminBr, "+OK\r\n")
	start = time.Now()
	send(t, writer, cmd("SET", "k2", "v"))
	expectReply(t, writerBr, "+OK\r\n")
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Errorf("write took %v after unpause", elapsed)
	}
}

func TestInfoFields(t *testing.T) {
	srv := newTestServer(t, Config{})
	conn, br := dialServer(t, srv)

	send(t, conn, cmd("INFO"))
	info := readReply(t, br)

	for _, field := range []string{
		"redis_version:", "redis_mode:standalone", "os:", "arch_bits:",
		"process_id:", "run_id:", "tcp_port:", "uptime_in_seconds:",
		"connected_clients:", "used_memory:", "total_commands_processed:",
		"role:master", "db0:keys=",
	} {
		if !strings.Contains(info, field) {
			t.Errorf("INFO missing %q", field)
		}
	}

	send(t, conn, cmd("INFO", "server"))
	section := readReply(t, br)
	if strings.Contains(section, "role:master") {
		t.Error("INFO server leaked replication section")
	}
}

func TestConfigGetSet(t *testing.T) {
	srv := newTestServer(t, Config{})
	conn, br := dialServer(t, srv)

	send(t, conn, cmd("CONFIG", "GET", "maxmemory"))
	expectReply(t, br, "*2\r\n$9\r\nmaxmemory\r\n$1\r\n0\r\n")

	send(t, conn, cmd("CONFIG", "SET", "maxmemory", "100mb"))
	expectReply(t, br, "+OK\r\n")

	send(t, conn, cmd("CONFIG", "GET", "maxmemory*"))
	got := readReply(t, br)
	if !strings.Contains(got, "100000000") && !strings.Contains(got, "104857600") {
		t.Errorf("CONFIG GET maxmemory* = %q", got)
	}

	send(t, conn, cmd("CONFIG", "GET", "nonexistent-thing"))
	expectReply(t, br, "*0\r\n")

	send(t, conn, cmd("CONFIG", "SET", "bogus", "1"))
	expectReply(t, br, "-ERR Unsupported CONFIG parameter\r\n")
}

func TestConfigSetRequirepass(t *testing.T) {
	srv := newTestServer(t, Config{})
	conn, br := dialServer(t, srv)

	send(t, conn, cmd("CONFIG", "SET", "requirepass", "newpw"))
	expectReply(t, br, "+OK\r\n")

	// The already-authenticated connection keeps working; a fresh one must
	// authenticate.
	send(t, conn, cmd("PING"))
	expectReply(t, br, "+PONG\r\n")

	fresh, freshBr := dialServer(t, srv)
	send(t, fresh, cmd("GET", "x"))
	expectReply(t, freshBr, "-NOAUTH Authentication required.\r\n")
	send(t, fresh, cmd("AUTH", "newpw"))
	expectReply(t, freshBr, "+OK\r\n")
}

func TestAuthWithoutPassword(t *testing.T) {
	srv := newTestServer(t, Config{})
	conn, br := dialServer(t, srv)

	send(t, conn, cmd("AUTH", "whatever"))
	expectReply(t, br, "-ERR Client sent AUTH, but no password is set\r\n")
}

func TestHello(t *testing.T) {
	srv := newTestServer(t, Config{})
	conn, br := dialServer(t, srv)

	send(t, conn, cmd("HELLO", "3"))
	got := readReply(t, br)
	if !strings.HasPrefix(got, "-NOPROTO") {
		t.Errorf("HELLO 3 = %q", got)
	}

	send(t, conn, cmd("HELLO"))
	got = readReply(t, br)
	if !strings.Contains(got, "feoxd") || !strings.Contains(got, "standalone") {
		t.Errorf("HELLO = %q", got)
	}
}

func TestReset(t *testing.T) {
	srv := newTestServer(t, Config{})
	conn, br := dialServer(t, srv)

	send(t, conn, cmd("SUBSCRIBE", "c1"))
	readReply(t, br)

	send(t, conn, cmd("RESET"))
	expectReply(t, br, "+RESET\r\n")

	// Subscriptions are gone; data commands are legal again.
	send(t, conn, cmd("GET", "k"))
	expectReply(t, br, "$-1\r\n")

	send(t, conn, cmd("PUBSUB", "CHANNELS"))
	expectReply(t, br, "*0\r\n")
}

func TestPubSubIntrospection(t *testing.T) {
	srv := newTestServer(t, Config{})
	sub, subBr := dialServer(t, srv)
	conn, br := dialServer(t, srv)

	send(t, sub, cmd("SUBSCRIBE", "news"))
	readReply(t, subBr)
	send(t, sub, cmd("PSUBSCRIBE", "n*"))
	readReply(t, subBr)

	send(t, conn, cmd("PUBSUB", "CHANNELS"))
	expectReply(t, br, "*1\r\n$4\r\nnews\r\n")

	send(t, conn, cmd("PUBSUB", "NUMSUB", "news", "other"))
	expectReply(t, br, "*4\r\n$4\r\nnews\r\n:1\r\n$5\r\nother\r\n:0\r\n")

	send(t, conn, cmd("PUBSUB", "NUMPAT"))
	expectReply(t, br, ":1\r\n")
}

func TestType(t *testing.T) {
	srv := newTestServer(t, Config{})
	conn, br := dialServer(t, srv)

	send(t, conn, cmd("SET", "s", "v"))
	expectReply(t, br, "+OK\r\n")
	send(t, conn, cmd("LPUSH", "l", "v"))
	expectReply(t, br, ":1\r\n")
	send(t, conn, cmd("HSET", "h", "f", "v"))
	expectReply(t, br, ":1\r\n")

	send(t, conn, cmd("TYPE", "s"))
	expectReply(t, br, "+string\r\n")
	send(t, conn, cmd("TYPE", "l"))
	expectReply(t, br, "+list\r\n")
	send(t, conn, cmd("TYPE", "h"))
	expectReply(t, br, "+hash\r\n")
	send(t, conn, cmd("TYPE", "missing"))
	expectReply(t, br, "+none\r\n")
}

func TestEcho(t *testing.T) {
	srv := newTestServer(t, Config{})
	conn, br := dialServer(t, srv)

	send(t, conn, cmd("ECHO", "hello"))
	expectReply(t, br, "$5\r\nhello\r\n")
}

func TestDBSizeAndFlush(t *testing.T) {
	srv := newTestServer(t, Config{})
	conn, br := dialServer(t, srv)

	send(t, conn, cmd("MSET", "a", "1", "b", "2"))
	expectReply(t, br, "+OK\r\n")
	send(t, conn, cmd("DBSIZE"))
	expectReply(t, br, ":2\r\n")

	send(t, conn, cmd("FLUSHDB"))
	expectReply(t, br, "+OK\r\n")
	send(t, conn, cmd("DBSIZE"))
	expectReply(t, br, ":0\r\n")
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, Config{RateLimit: 5})
	conn, br := dialServer(t, srv)

	limited := false
	for i := 0; i < 50; i++ {
		send(t, conn, cmd("PING"))
		if strings.HasPrefix(readReply(t, br), "-ERR rate limit") {
			limited = true
			break
		}
	}
	if !limited {
		t.Error("rate limit never triggered")
	}
}

func TestSetOptionsEndToEnd(t *testing.T) {
	srv := newTestServer(t, Config{})
	conn, br := dialServer(t, srv)

	send(t, conn, cmd("SET", "k", "v", "NX"))
	expectReply(t, br, "+OK\r\n")
	send(t, conn, cmd("SET", "k", "v2", "NX"))
	expectReply(t, br, "$-1\r\n")
	send(t, conn, cmd("SET", "other", "v", "XX"))
	expectReply(t, br, "$-1\r\n")
	send(t, conn, cmd("SET", "k", "v3", "XX"))
	expectReply(t, br, "+OK\r\n")
	send(t, conn, cmd("SET", "k", "v4", "NX", "XX"))
	expectReply(t, br, "-ERR syntax error\r\n")
	send(t, conn, cmd("SET", "k", "v4", "BOGUS"))
	expectReply(t, br, "-ERR syntax error\r\n")
	send(t, conn, cmd("SET", "k", "v5", "EX", "abc"))
	expectReply(t, br, "-ERR value is not an integer or out of range\r\n")
}

func TestListCommandsEndToEnd(t *testing.T) {
	srv := newTestServer(t, Config{})
	conn, br := dialServer(t, srv)

	send(t, conn, cmd("LPUSH", "l", "a", "b", "c"))
	expectReply(t, br, ":3\r\n")
	send(t, conn, cmd("LRANGE", "l", "0", "-1"))
	expectReply(t, br, "*3\r\n$1\r\nc\r\n$1\r\nb\r\n$1\r\na\r\n")

	send(t, conn, cmd("LPOP", "l"))
	expectReply(t, br, "$1\r\nc\r\n")
	send(t, conn, cmd("LPOP", "l", "2"))
	expectReply(t, br, "*2\r\n$1\r\nb\r\n$1\r\na\r\n")
	send(t, conn, cmd("LPOP", "l"))
	expectReply(t, br, "$-1\r\n")
}

func TestHashCommandsEndToEnd(t *testing.T) {
	srv := newTestServer(t, Config{})
	conn, br := dialServer(t, srv)

	send(t, conn, cmd("HSET", "h", "f1", "v1", "f2", "v2"))
	expectReply(t, br, ":2\r\n")
	send(t, conn, cmd("HSET", "h", "f1", "v1b", "f3", "v3"))
	expectReply(t, br, ":1\r\n")
	send(t, conn, cmd("HGET", "h", "f1"))
	expectReply(t, br, "$3\r\nv1b\r\n")
	send(t, conn, cmd("HLEN", "h"))
	expectReply(t, br, ":3\r\n")
	send(t, conn, cmd("HINCRBY", "h", "n", "7"))
	expectReply(t, br, ":7\r\n")
}

func TestCASAndJSONPatchEndToEnd(t *testing.T) {
	srv := newTestServer(t, Config{})
	conn, br := dialServer(t, srv)

	send(t, conn, cmd("SET", "k", "old"))
	expectReply(t, br, "+OK\r\n")
	send(t, conn, cmd("CAS", "k", "bad", "new"))
	expectReply(t, br, ":0\r\n")
	send(t, conn, cmd("CAS", "k", "old", "new"))
	expectReply(t, br, ":1\r\n")

	send(t, conn, cmd("SET", "doc", `{"a":1}`))
	expectReply(t, br, "+OK\r\n")
	send(t, conn, cmd("JSONPATCH", "doc", `[{"op":"replace","path":"/a","value":2}]`))
	expectReply(t, br, "+OK\r\n")
	send(t, conn, cmd("GET", "doc"))
	got := readReply(t, br)
	if !strings.Contains(got, `"a":2`) {
		t.Errorf("patched doc = %q", got)
	}
}

func TestScanEndToEnd(t *testing.T) {
	srv := newTestServer(t, Config{})
	conn, br := dialServer(t, srv)

	send(t, conn, cmd("MSET", "k1", "a", "k2", "b", "x1", "c"))
	expectReply(t, br, "+OK\r\n")

	seen := map[string]bool{}
	cursor := "0"
	for {
		send(t, conn, cmd("SCAN", cursor, "MATCH", "k*", "COUNT", "100"))
		reply := readReply(t, br)
		lines := strings.Split(reply, "\r\n")
		// lines[2] is the cursor payload; the key payloads are the
		// remaining lines that are not type headers.
		cursor = lines[2]
		for i := 3; i < len(lines); i++ {
			l := lines[i]
			if l == "" || l[0] == '$' || l[0] == '*' {
				continue
			}
			seen[l] = true
		}
		if cursor == "0" {
			break
		}
	}
	if len(seen) != 2 || !seen["k1"] || !seen["k2"] {
		t.Errorf("scan saw %v", seen)
	}
}

// Package scpitest provides an in-process fake instrument for tests.
package scpitest

import (
	"bufio"
	"net"
	"sync"
	"testing"

	"codeberg.org/mutker/psuctl/internal/scpi"
)

// Handler decides what the fake instrument writes back for a command.
// The returned data is written verbatim, so a well-formed reply must end
// in a newline. When hang is true nothing is written and the connection is
// held open until the server closes.
type Handler func(command string) (data string, hang bool)

// Fixed answers every command with line.
func Fixed(line string) Handler {
	return func(string) (string, bool) {
		return line + "\n", false
	}
}

// Table answers known commands from replies and acknowledges anything
// else with an empty line.
func Table(replies map[string]string) Handler {
	return func(command string) (string, bool) {
		return replies[command] + "\n", false
	}
}

// Silent never answers.
func Silent() Handler {
	return func(string) (string, bool) {
		return "", true
	}
}

// Server is a TCP listener speaking the line protocol. It records every
// command it receives.
type Server struct {
	ln   net.Listener
	done chan struct{}
	wg   sync.WaitGroup

	mu       sync.Mutex
	handler  Handler
	commands []string
	conns    int
}

// NewServer starts a fake instrument on a loopback port and registers its
// shutdown with t.
func NewServer(t testing.TB, h Handler) *Server {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("scpitest: listen: %v", err)
	}

	s := &Server{
		ln:      ln,
		handler: h,
		done:    make(chan struct{}),
	}

	s.wg.Add(1)
	go s.serve()
	t.Cleanup(s.Close)

	return s
}

// Endpoint returns the address clients should dial.
func (s *Server) Endpoint() scpi.Endpoint {
	addr := s.ln.Addr().(*net.TCPAddr)
	return scpi.Endpoint{Host: addr.IP.String(), Port: addr.Port}
}

// SetHandler replaces the handler for subsequent connections.
func (s *Server) SetHandler(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Commands returns the commands received so far, in arrival order.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Connections returns how many connections were accepted.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

// Close stops the listener and releases hanging connections.
func (s *Server) Close() {
	select {
	case <-s.done:
		return
	default:
	}
	close(s.done)
	s.ln.Close()
	s.wg.Wait()
}

func (s *Server) serve() {
	defer s.wg.Done()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		s.conns++
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	go func() {
		<-s.done
		conn.Close()
	}()

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return
	}
	command := line[:len(line)-1]

	s.mu.Lock()
	s.commands = append(s.commands, command)
	h := s.handler
	s.mu.Unlock()

	data, hang := h(command)
	if hang {
		<-s.done
		return
	}

	_, _ = conn.Write([]byte(data))
}

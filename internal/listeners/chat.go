package listeners

import (
	"context"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"api-prodmon/internal/config"
	"api-prodmon/internal/db"
	"api-prodmon/internal/models"
)

// ChatServer runs the TCP chat room for floor operators. The first payload
// from a new connection must be a LOGIN command; everything after a
// successful login is treated as a chat line and relayed to the room.
type ChatServer struct {
	host         string
	port         int
	shortSession time.Duration
	listener     net.Listener
	ctx          context.Context
	cancel       context.CancelFunc
	manager      *db.Manager
	sessions     *db.Sessions
	registry     *Registry
	now          func() time.Time
}

func NewChatServer(cfg config.ChatConfig, shortSession time.Duration, manager *db.Manager, sessions *db.Sessions, registry *Registry) *ChatServer {
	ctx, cancel := context.WithCancel(context.Background())
	return &ChatServer{
		host:         cfg.Host,
		port:         cfg.Port,
		shortSession: shortSession,
		ctx:          ctx,
		cancel:       cancel,
		manager:      manager,
		sessions:     sessions,
		registry:     registry,
		now:          time.Now,
	}
}

func (s *ChatServer) String() string {
	return fmt.Sprintf("ChatServer{host: %s, port: %d}", s.host, s.port)
}

// Start opens the TCP listener and accepts connections in the background.
func (s *ChatServer) Start() error {
	address := fmt.Sprintf("%s:%d", s.host, s.port)

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("error creating chat listener: %w", err)
	}

	s.listener = listener
	log.Printf("✓ ChatServer listening on %s\n", address)

	go s.acceptConnections()

	return nil
}

func (s *ChatServer) acceptConnections() {
	for {
		select {
		case <-s.ctx.Done():
			log.Println("ChatServer: stopping connection accept loop")
			return
		default:
			// Deadline so ctx cancellation is noticed within a second.
			s.listener.(*net.TCPListener).SetDeadline(time.Now().Add(1 * time.Second))

			conn, err := s.listener.Accept()
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				log.Printf("Error accepting chat connection: %v\n", err)
				continue
			}

			log.Printf("✓ New chat connection from: %s\n", conn.RemoteAddr().String())

			go s.handleConnection(conn)
		}
	}
}

// Stop cancels the accept loop and closes the listening socket.
func (s *ChatServer) Stop() {
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	log.Println("ChatServer stopped")
}

// handleConnection drives one client through login and then relays its
// chat lines. Messages arrive as plain UTF-8 payloads, one logical line
// per read, never larger than the 1KB buffer.
func (s *ChatServer) handleConnection(conn net.Conn) {
	defer conn.Close()

	clientIP, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		clientIP = conn.RemoteAddr().String()
	}

	buf := make([]byte, 1024)

	first, ok := s.readPayload(conn, buf)
	if !ok {
		return
	}

	loginAt := s.now()
	client := s.handleLogin(conn, clientIP, first)
	if client == nil {
		return
	}

	defer func() {
		s.registry.Remove(client)
		client.Close()

		cleanupCtx, cancelFn := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelFn()

		// Connections that bounce within the grace window leave no
		// trace in the login history.
		if s.now().Sub(loginAt) < s.shortSession {
			s.sessions.DeleteSessionHistory(cleanupCtx, client.sessionID)
		}
		s.sessions.CleanupSession(cleanupCtx, client.sessionID)
		log.Printf("[CHAT] %s disconnected (%s)", client.empNo, client.addr)
	}()

	for {
		text, ok := s.readPayload(conn, buf)
		if !ok {
			return
		}
		if text == "" {
			continue
		}
		s.relayMessage(client, text)
	}
}

// readPayload blocks for the next payload, honoring server shutdown via
// one-second read deadlines. ok=false means the connection is done.
func (s *ChatServer) readPayload(conn net.Conn, buf []byte) (string, bool) {
	for {
		select {
		case <-s.ctx.Done():
			log.Printf("Closing chat connection with %s\n", conn.RemoteAddr().String())
			return "", false
		default:
		}

		conn.SetReadDeadline(time.Now().Add(1 * time.Second))
		n, err := conn.Read(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			return "", false
		}
		return strings.TrimSpace(string(buf[:n])), true
	}
}

// handleLogin processes the first payload of a connection. Any failure
// closes the socket; returns the registered client on success.
func (s *ChatServer) handleLogin(conn net.Conn, clientIP, line string) *ChatClient {
	if !strings.HasPrefix(line, "LOGIN ") {
		conn.Write([]byte("SERVER: LOGIN 먼저 수행하세요. 형식: LOGIN <emp_no> <password>\n"))
		return nil
	}

	empNo, password, ok := parseLogin(line)
	if !ok {
		conn.Write([]byte("SERVER: 형식 오류. LOGIN <emp_no> <password>\n"))
		return nil
	}

	ctx, cancelFn := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancelFn()

	verified, role, sessionID := s.sessions.VerifyUser(ctx, empNo, password, clientIP, models.SessionTypeTCP)
	if !verified {
		conn.Write([]byte("SERVER: LOGIN_FAIL\n"))
		log.Printf("[AUTH] chat login failed for %s from %s", empNo, clientIP)
		return nil
	}

	client := &ChatClient{
		conn:      conn,
		addr:      conn.RemoteAddr().String(),
		empNo:     empNo,
		sessionID: sessionID,
	}

	// One chat socket per account: evict the previous holder first.
	s.registry.ForceDisconnectDuplicates(empNo, client)
	s.registry.Add(client)

	conn.Write([]byte(fmt.Sprintf("SERVER: 로그인 성공 %s %s\n", empNo, role)))
	conn.Write([]byte(fmt.Sprintf("SERVER: LOGIN_OK %s\n", role)))
	log.Printf("[AUTH] %s logged in to chat from %s (role=%s)", empNo, clientIP, role)
	return client
}

// relayMessage stamps, persists and broadcasts one chat line.
func (s *ChatServer) relayMessage(client *ChatClient, text string) {
	ctx, cancelFn := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelFn()

	s.sessions.UpdateActivity(ctx, client.sessionID)
	s.manager.SaveChatMessage(ctx, client.empNo, text)

	formatted := fmt.Sprintf("[%s] %s > %s", s.now().Format("15:04:05"), client.empNo, text)
	s.registry.Broadcast([]byte(formatted), client)
}

// parseLogin splits "LOGIN <emp_no> <password>". The password is the
// remainder of the line and may contain spaces.
func parseLogin(line string) (empNo, password string, ok bool) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 || parts[0] != "LOGIN" {
		return "", "", false
	}
	empNo = strings.TrimSpace(parts[1])
	password = parts[2]
	if empNo == "" || password == "" {
		return "", "", false
	}
	return empNo, password, true
}

// BroadcastSystem pushes a server-originated line to every connected
// client. The detection pipeline uses it to announce hits in the room.
func (s *ChatServer) BroadcastSystem(message string) {
	s.registry.Broadcast([]byte(message), nil)
}

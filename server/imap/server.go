package imap

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rovermail/rover/auth"
	"github.com/rovermail/rover/config"
	"github.com/rovermail/rover/logger"
	"github.com/rovermail/rover/midb"
	"github.com/rovermail/rover/pkg/metrics"
	serverPkg "github.com/rovermail/rover/server"
	"github.com/rovermail/rover/server/idgen"
)

// Server is the IMAP listener: it accepts connections, applies the
// connection cap and hands each connection to a session goroutine.
type Server struct {
	hostname string
	addr     string
	implicit bool // TLS from the first byte (imaps) rather than STARTTLS

	appCtx context.Context
	cancel context.CancelFunc

	client    midb.Client
	store     *auth.StaticStore
	limiter   *auth.Limiter
	tlsConfig *tls.Config

	maxConnections int
	idleTimeout    time.Duration
	maxMessageSize int64
	defaultLang    string
	enableID       bool

	counters serverPkg.Counters
	bcast    *broadcaster

	activeMu       sync.RWMutex
	activeSessions map[*session]struct{}
	sessionsWg     sync.WaitGroup
}

// Options carries the listener settings main.go assembles from config.
type Options struct {
	Hostname       string
	Addr           string
	ImplicitTLS    bool
	TLSCertFile    string
	TLSKeyFile     string
	MaxConnections int
	IdleTimeout    time.Duration
	MaxMessageSize int64
	DefaultLang    string
	EnableID       bool
	Limiter        auth.LimiterConfig
}

// OptionsFromConfig builds plain (STARTTLS-capable) listener options.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	idleTimeout, err := cfg.Server.GetIdleTimeout()
	if err != nil {
		return Options{}, fmt.Errorf("idle_timeout: %w", err)
	}
	return Options{
		Hostname:       cfg.Server.Hostname,
		Addr:           cfg.Server.Listen,
		TLSCertFile:    cfg.Server.TLSCertFile,
		TLSKeyFile:     cfg.Server.TLSKeyFile,
		MaxConnections: cfg.Server.MaxConnections,
		IdleTimeout:    idleTimeout,
		MaxMessageSize: cfg.Server.MaxMessageSize,
		DefaultLang:    cfg.Server.DefaultLang,
		EnableID:       true,
		Limiter:        cfg.Auth.Limiter,
	}, nil
}

func New(appCtx context.Context, client midb.Client, store *auth.StaticStore, opts Options) (*Server, error) {
	serverCtx, serverCancel := context.WithCancel(appCtx)

	s := &Server{
		hostname:       opts.Hostname,
		addr:           opts.Addr,
		implicit:       opts.ImplicitTLS,
		appCtx:         serverCtx,
		cancel:         serverCancel,
		client:         client,
		store:          store,
		limiter:        auth.NewLimiter(opts.Limiter),
		maxConnections: opts.MaxConnections,
		idleTimeout:    opts.IdleTimeout,
		maxMessageSize: opts.MaxMessageSize,
		defaultLang:    opts.DefaultLang,
		enableID:       opts.EnableID,
		bcast:          newBroadcaster(),
		activeSessions: make(map[*session]struct{}),
	}
	if s.idleTimeout <= 0 {
		s.idleTimeout = 30 * time.Minute
	}
	if s.defaultLang == "" {
		s.defaultLang = "en"
	}

	if opts.TLSCertFile != "" && opts.TLSKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(opts.TLSCertFile, opts.TLSKeyFile)
		if err != nil {
			serverCancel()
			return nil, fmt.Errorf("imap: load TLS certificate: %w", err)
		}
		s.tlsConfig = &tls.Config{
			Certificates:  []tls.Certificate{cert},
			MinVersion:    tls.VersionTLS12,
			ServerName:    opts.Hostname,
			NextProtos:    []string{"imap"},
			Renegotiation: tls.RenegotiateNever,
		}
	}
	if opts.ImplicitTLS && s.tlsConfig == nil {
		serverCancel()
		return nil, fmt.Errorf("imap: implicit TLS listener requires a certificate")
	}

	return s, nil
}

// Stats exposes the listener's connection counters.
func (s *Server) Stats() serverPkg.ConnStats {
	return &s.counters
}

func (s *Server) Start(errChan chan error) {
	var listener net.Listener
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.cancel()
		errChan <- fmt.Errorf("imap: listen %s: %w", s.addr, err)
		return
	}
	if s.implicit {
		listener = tls.NewListener(listener, s.tlsConfig)
	}
	defer listener.Close()
	logger.Info("IMAP server listening", "addr", s.addr, "tls", s.implicit)

	go func() {
		<-s.appCtx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.appCtx.Done():
				logger.Info("IMAP server stopped", "addr", s.addr)
				return
			default:
				errChan <- err
				return
			}
		}

		total := s.counters.AddConnection()
		if s.maxConnections > 0 && total > int64(s.maxConnections) {
			fmt.Fprintf(conn, "* %s\r\n", statusLine(codeBye))
			conn.Close()
			s.counters.RemoveConnection()
			logger.Warn("IMAP connection rejected, limit reached", "limit", s.maxConnections)
			continue
		}
		metrics.ConnectionsTotal.Inc()
		metrics.ConnectionsCurrent.Inc()

		sessionCtx, sessionCancel := context.WithCancel(s.appCtx)
		sess := &session{
			srv:      s,
			conn:     conn,
			reader:   bufio.NewReader(conn),
			writer:   bufio.NewWriter(conn),
			ctx:      sessionCtx,
			cancel:   sessionCancel,
			lang:     s.defaultLang,
			contents: newContents(),
		}
		sess.ID = idgen.New()
		sess.RemoteIP = remoteIP(conn)
		sess.Protocol = "IMAP"
		sess.Stats = &s.counters

		s.addSession(sess)
		s.sessionsWg.Add(1)
		go func() {
			defer s.sessionsWg.Done()
			sess.handleConnection()
		}()
	}
}

// Close drains active sessions, giving each a BYE before the listener
// context tears the connections down.
func (s *Server) Close() {
	s.activeMu.RLock()
	for sess := range s.activeSessions {
		fmt.Fprintf(sess.conn, "* %s\r\n", statusLine(codeBye))
	}
	s.activeMu.RUnlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.sessionsWg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Debug("IMAP sessions drained")
	case <-time.After(30 * time.Second):
		logger.Warn("IMAP session drain timed out")
	}
}

func (s *Server) addSession(sess *session) {
	s.activeMu.Lock()
	s.activeSessions[sess] = struct{}{}
	s.activeMu.Unlock()
}

func (s *Server) removeSession(sess *session) {
	s.activeMu.Lock()
	delete(s.activeSessions, sess)
	s.activeMu.Unlock()
}

func remoteIP(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}

package feed

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/crossflow/crossflow/internal/core/observability/log"
)

const feedALPN = "crossflow-feed"

// QUICServer streams the snapshot feed over QUIC: one unidirectional stream
// per connection carrying newline-delimited JSON frames.
type QUICServer struct {
	addr     string
	hub      *Hub
	listener *quic.Listener
	logger   log.Log
}

func NewQUICServer(addr string, hub *Hub, logger log.Log) *QUICServer {
	if logger == nil {
		logger = log.Discard()
	}
	return &QUICServer{
		addr:   addr,
		hub:    hub,
		logger: logger.With(log.String("transport", "quic")),
	}
}

// Start listens on the configured address and accepts connections in the
// background until the context ends.
func (s *QUICServer) Start(ctx context.Context) error {
	listener, err := quic.ListenAddr(s.addr, generateTLSConfig(), &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 15 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("quic listen on %s: %w", s.addr, err)
	}
	s.listener = listener
	s.logger.Info("feed listening", log.String("addr", listener.Addr().String()))

	go s.acceptLoop(ctx)
	return nil
}

// Addr returns the bound address, nil before Start.
func (s *QUICServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close stops accepting and tears down the listener.
func (s *QUICServer) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *QUICServer) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept(ctx)
		if err != nil {
			// Listener closed or context done.
			return
		}
		go s.serveConn(ctx, conn)
	}
}

func (s *QUICServer) serveConn(ctx context.Context, conn *quic.Conn) {
	stream, err := conn.OpenUniStreamSync(ctx)
	if err != nil {
		s.logger.Warn("open stream failed", log.Error(err))
		_ = conn.CloseWithError(1, "no stream")
		return
	}

	id, frames := s.hub.Subscribe()
	defer s.hub.Unsubscribe(id)
	defer conn.CloseWithError(0, "bye")

	s.logger.Info("peer connected",
		log.String("subscriber", id),
		log.String("remote", conn.RemoteAddr().String()))

	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Context().Done():
			return
		case buf, ok := <-frames:
			if !ok {
				return
			}
			if _, err := stream.Write(append(buf, '\n')); err != nil {
				s.logger.Debug("write failed, dropping subscriber",
					log.String("subscriber", id), log.Error(err))
				return
			}
		}
	}
}

// generateTLSConfig builds a throwaway self-signed certificate. The feed
// carries no secrets; clients are expected to skip verification.
func generateTLSConfig() *tls.Config {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"crossflow"},
		},
		NotBefore:   time.Now(),
		NotAfter:    time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:    x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses: []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
		DNSNames:    []string{"localhost"},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		panic(err)
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		panic(err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{tlsCert},
		NextProtos:   []string{feedALPN},
	}
}

package jetstream

import (
	"fmt"
	"time"

	server "github.com/nats-io/nats-server/v2/server"
	nats "github.com/nats-io/nats.go"
)

const readyTimeout = 5 * time.Second

// Server is an embedded, in-process JetStream server used as the wire tap's
// store. It does not listen on any network port.
type Server struct{ ns *server.Server }

func NewServer(storeDir string) (*Server, error) {
	ns, err := server.NewServer(&server.Options{
		ServerName: "threadstream-tap",
		DontListen: true,
		JetStream:  true,
		StoreDir:   storeDir,
		NoSigs:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedded nats: %w", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(readyTimeout) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded nats not ready after %s", readyTimeout)
	}
	return &Server{ns: ns}, nil
}

// Connect opens an in-process client connection.
func (s *Server) Connect() (*nats.Conn, error) {
	return nats.Connect(s.ns.ClientURL(), nats.InProcessServer(s.ns), nats.Name("threadstream"))
}

func (s *Server) Shutdown() {
	s.ns.Shutdown()
	s.ns.WaitForShutdown()
}

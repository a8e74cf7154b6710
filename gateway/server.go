package gateway

import (
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// streamTimeout bounds each GetMessageStream poll; it only governs how
// often the drain loop wakes to check stream.Context().Done(), not how
// long a client waits for a message.
const streamTimeout = 2 * time.Second

// Server implements WorkerStreamServer, draining a Manager-hosted worker's
// message stream into the RPC response stream.
type Server struct {
	manager *Manager
}

// NewServer builds a Server over manager and registers it on grpcServer.
func NewServer(manager *Manager, grpcServer *grpc.Server) *Server {
	s := &Server{manager: manager}
	grpcServer.RegisterService(&WorkerStream_ServiceDesc, s)
	return s
}

// Drain streams req.WorkerID's messages to the client until the client
// cancels the RPC or the worker's stream closes.
func (s *Server) Drain(req *DrainRequest, stream WorkerStream_DrainServer) error {
	w, ok := s.manager.Get(req.WorkerID)
	if !ok {
		return status.Errorf(codes.NotFound, "unknown worker %q", req.WorkerID)
	}

	ctx := stream.Context()
	messages := w.GetMessageStream(ctx, streamTimeout, true)

	for {
		select {
		case msg, open := <-messages:
			if !open {
				return nil
			}
			if msg.ID == "" {
				continue // liveness sentinel, not a real message
			}
			if err := stream.Send(&msg); err != nil {
				return status.Errorf(codes.Internal, "send message: %v", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

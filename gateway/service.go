package gateway

import (
	"google.golang.org/grpc"

	"github.com/sheetflow/sheetflow/model"
)

// DrainRequest names the worker whose in-process message queue a Drain
// call subscribes to.
type DrainRequest struct {
	WorkerID string `json:"worker_id"`
}

// WorkerStreamServer is the server-side contract for the WorkerStream
// service's one streaming RPC, hand-written in place of a protoc-generated
// interface.
type WorkerStreamServer interface {
	Drain(*DrainRequest, WorkerStream_DrainServer) error
}

// WorkerStream_DrainServer is the server-side stream handle for Drain,
// mirroring what protoc-gen-go-grpc would emit for a server-streaming RPC.
type WorkerStream_DrainServer interface {
	Send(*model.Message) error
	grpc.ServerStream
}

type workerStreamDrainServer struct {
	grpc.ServerStream
}

func (x *workerStreamDrainServer) Send(msg *model.Message) error {
	return x.ServerStream.SendMsg(msg)
}

func _WorkerStream_Drain_Handler(srv interface{}, stream grpc.ServerStream) error {
	req := new(DrainRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(WorkerStreamServer).Drain(req, &workerStreamDrainServer{stream})
}

// WorkerStream_ServiceDesc is the manually constructed grpc.ServiceDesc for
// the WorkerStream service, standing in for what protoc-gen-go-grpc would
// generate from a .proto file.
var WorkerStream_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "sheetflow.gateway.WorkerStream",
	HandlerType: (*WorkerStreamServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Drain",
			Handler:       _WorkerStream_Drain_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "gateway.proto",
}

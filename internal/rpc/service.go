package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const (
	SessionServiceName = "mixdesk.v1.SessionService"
	ChatServiceName    = "mixdesk.v1.ChatService"
)

// Full method names, as seen by interceptors.
const (
	SessionGetStatus   = "/" + SessionServiceName + "/GetStatus"
	SessionLogin       = "/" + SessionServiceName + "/Login"
	SessionLogout      = "/" + SessionServiceName + "/Logout"
	SessionWatchEvents = "/" + SessionServiceName + "/WatchEvents"

	ChatOpen         = "/" + ChatServiceName + "/OpenChat"
	ChatClose        = "/" + ChatServiceName + "/CloseChat"
	ChatGet          = "/" + ChatServiceName + "/GetChat"
	ChatSendMessage  = "/" + ChatServiceName + "/SendMessage"
	ChatListContacts = "/" + ChatServiceName + "/ListContacts"
)

// SessionServer is the session control service.
type SessionServer interface {
	GetStatus(context.Context, *GetStatusRequest) (*StatusResponse, error)
	Login(context.Context, *LoginRequest) (*LoginResponse, error)
	Logout(context.Context, *LogoutRequest) (*LogoutResponse, error)
	WatchEvents(*WatchEventsRequest, EventSender) error
}

// ChatServer is the conversation service.
type ChatServer interface {
	OpenChat(context.Context, *OpenChatRequest) (*ChatResponse, error)
	CloseChat(context.Context, *CloseChatRequest) (*ChatResponse, error)
	GetChat(context.Context, *GetChatRequest) (*ChatResponse, error)
	SendMessage(context.Context, *SendMessageRequest) (*SendMessageResponse, error)
	ListContacts(context.Context, *ListContactsRequest) (*ListContactsResponse, error)
}

// EventSender is the server side of WatchEvents.
type EventSender interface {
	Send(*Event) error
	grpc.ServerStream
}

type eventSender struct {
	grpc.ServerStream
}

func (s *eventSender) Send(e *Event) error {
	return s.ServerStream.SendMsg(e)
}

// unary builds a method descriptor that decodes Req and calls fn through the
// server's interceptor chain.
func unary[S any, Req any, Resp any](service, name string, fn func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return fn(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return fn(srv.(S), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var watchEventsStream = grpc.StreamDesc{
	StreamName: "WatchEvents",
	Handler: func(srv any, stream grpc.ServerStream) error {
		in := new(WatchEventsRequest)
		if err := stream.RecvMsg(in); err != nil {
			return err
		}
		return srv.(SessionServer).WatchEvents(in, &eventSender{stream})
	},
	ServerStreams: true,
}

// SessionServiceDesc describes SessionService for grpc.Server.RegisterService.
var SessionServiceDesc = grpc.ServiceDesc{
	ServiceName: SessionServiceName,
	HandlerType: (*SessionServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(SessionServiceName, "GetStatus", SessionServer.GetStatus),
		unary(SessionServiceName, "Login", SessionServer.Login),
		unary(SessionServiceName, "Logout", SessionServer.Logout),
	},
	Streams:  []grpc.StreamDesc{watchEventsStream},
	Metadata: "mixdesk/v1/session",
}

// ChatServiceDesc describes ChatService for grpc.Server.RegisterService.
var ChatServiceDesc = grpc.ServiceDesc{
	ServiceName: ChatServiceName,
	HandlerType: (*ChatServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(ChatServiceName, "OpenChat", ChatServer.OpenChat),
		unary(ChatServiceName, "CloseChat", ChatServer.CloseChat),
		unary(ChatServiceName, "GetChat", ChatServer.GetChat),
		unary(ChatServiceName, "SendMessage", ChatServer.SendMessage),
		unary(ChatServiceName, "ListContacts", ChatServer.ListContacts),
	},
	Metadata: "mixdesk/v1/chat",
}

func RegisterSessionServer(s grpc.ServiceRegistrar, srv SessionServer) {
	s.RegisterService(&SessionServiceDesc, srv)
}

func RegisterChatServer(s grpc.ServiceRegistrar, srv ChatServer) {
	s.RegisterService(&ChatServiceDesc, srv)
}

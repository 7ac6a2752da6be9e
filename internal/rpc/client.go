package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client wraps the gRPC connection to a profile's daemon.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the daemon's Unix domain socket. The connection is lazy:
// errors surface on the first call.
func Dial(socketPath string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}, opts...)
	conn, err := grpc.NewClient("unix://"+socketPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) GetStatus(ctx context.Context) (*StatusResponse, error) {
	out := new(StatusResponse)
	return out, c.conn.Invoke(ctx, SessionGetStatus, &GetStatusRequest{}, out)
}

func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	out := new(LoginResponse)
	return out, c.conn.Invoke(ctx, SessionLogin, &LoginRequest{Email: email, Password: password}, out)
}

func (c *Client) Logout(ctx context.Context) error {
	return c.conn.Invoke(ctx, SessionLogout, &LogoutRequest{}, new(LogoutResponse))
}

func (c *Client) OpenChat(ctx context.Context, peerID string) (*ChatResponse, error) {
	out := new(ChatResponse)
	return out, c.conn.Invoke(ctx, ChatOpen, &OpenChatRequest{PeerID: peerID}, out)
}

func (c *Client) CloseChat(ctx context.Context) (*ChatResponse, error) {
	out := new(ChatResponse)
	return out, c.conn.Invoke(ctx, ChatClose, &CloseChatRequest{}, out)
}

func (c *Client) GetChat(ctx context.Context) (*ChatResponse, error) {
	out := new(ChatResponse)
	return out, c.conn.Invoke(ctx, ChatGet, &GetChatRequest{}, out)
}

func (c *Client) SendMessage(ctx context.Context, peerID, text string) (*SendMessageResponse, error) {
	out := new(SendMessageResponse)
	return out, c.conn.Invoke(ctx, ChatSendMessage, &SendMessageRequest{PeerID: peerID, Text: text}, out)
}

func (c *Client) ListContacts(ctx context.Context, refresh bool) (*ListContactsResponse, error) {
	out := new(ListContactsResponse)
	return out, c.conn.Invoke(ctx, ChatListContacts, &ListContactsRequest{Refresh: refresh}, out)
}

// EventStream is the client side of WatchEvents.
type EventStream struct {
	stream grpc.ClientStream
}

// Recv blocks for the next event.
func (s *EventStream) Recv() (*Event, error) {
	evt := new(Event)
	if err := s.stream.RecvMsg(evt); err != nil {
		return nil, err
	}
	return evt, nil
}

// WatchEvents streams bus events until ctx is done.
func (c *Client) WatchEvents(ctx context.Context, namespaces ...string) (*EventStream, error) {
	stream, err := c.conn.NewStream(ctx, &watchEventsStream, SessionWatchEvents)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&WatchEventsRequest{Namespaces: namespaces}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &EventStream{stream: stream}, nil
}

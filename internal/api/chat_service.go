package api

import (
	"context"
	"strings"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/matheus3301/mixdesk/internal/chat"
	"github.com/matheus3301/mixdesk/internal/contacts"
	"github.com/matheus3301/mixdesk/internal/rpc"
)

// ChatService implements rpc.ChatServer over the Chat Store and the contacts
// directory. OpenChat and CloseChat bracket a conversation view: the live
// subscription exists only between them.
type ChatService struct {
	chat     *chat.Store
	contacts *contacts.Directory
}

// NewChatService creates a new chat service.
func NewChatService(store *chat.Store, dir *contacts.Directory) *ChatService {
	return &ChatService{chat: store, contacts: dir}
}

func (s *ChatService) OpenChat(ctx context.Context, req *rpc.OpenChatRequest) (*rpc.ChatResponse, error) {
	peerID := strings.TrimSpace(req.PeerID)
	if peerID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "peer id is required")
	}
	s.chat.SubscribeToLive()
	if err := s.chat.SelectPeer(ctx, peerID); err != nil {
		return nil, toStatus(err)
	}
	return &rpc.ChatResponse{Chat: s.chat.Snapshot()}, nil
}

func (s *ChatService) CloseChat(_ context.Context, _ *rpc.CloseChatRequest) (*rpc.ChatResponse, error) {
	s.chat.UnsubscribeFromLive()
	s.chat.ClearSelection()
	return &rpc.ChatResponse{Chat: s.chat.Snapshot()}, nil
}

func (s *ChatService) GetChat(_ context.Context, _ *rpc.GetChatRequest) (*rpc.ChatResponse, error) {
	return &rpc.ChatResponse{Chat: s.chat.Snapshot()}, nil
}

func (s *ChatService) SendMessage(ctx context.Context, req *rpc.SendMessageRequest) (*rpc.SendMessageResponse, error) {
	peerID := strings.TrimSpace(req.PeerID)
	if peerID == "" {
		peerID = s.chat.Snapshot().SelectedID
	}
	if peerID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "no peer given and no chat open")
	}
	msg, err := s.chat.SendMessage(ctx, peerID, req.Text)
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.SendMessageResponse{Message: msg}, nil
}

func (s *ChatService) ListContacts(ctx context.Context, req *rpc.ListContactsRequest) (*rpc.ListContactsResponse, error) {
	if req.Refresh {
		s.contacts.Invalidate()
	}
	peers, err := s.contacts.List(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.ListContactsResponse{Contacts: peers}, nil
}

package backend

import (
	"context"
	"net/http"
	"net/url"
)

const PathMessage = "message"

// PeerData returns display data for the user identified by peerID.
func (c *Client) PeerData(ctx context.Context, peerID string) (Peer, error) {
	var p Peer
	err := c.call(ctx, http.MethodGet, PathMessage+"/"+url.PathEscape(peerID)+"/user-data", nil, &p)
	return p, err
}

// History returns the conversation between selfID and peerID in send order.
func (c *Client) History(ctx context.Context, selfID, peerID string) ([]Message, error) {
	var msgs []Message
	err := c.call(ctx, http.MethodGet, PathMessage+"/"+url.PathEscape(selfID)+"/"+url.PathEscape(peerID), nil, &msgs)
	return msgs, err
}

// SendMessage posts a message and returns it as stored, with id and timestamp.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (Message, error) {
	var m Message
	err := c.call(ctx, http.MethodPost, PathMessage, req, &m)
	return m, err
}

// Contacts returns everyone selfID has exchanged messages with.
func (c *Client) Contacts(ctx context.Context, selfID string) ([]Peer, error) {
	var peers []Peer
	err := c.call(ctx, http.MethodGet, PathMessage+"/"+url.PathEscape(selfID)+"/contacts", nil, &peers)
	return peers, err
}

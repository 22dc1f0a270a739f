package msgclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/Windi-Fikriyansyah/pasar_tani/internal/catalog"
	"github.com/Windi-Fikriyansyah/pasar_tani/internal/messaging"
)

// Client talks to the marketplace messaging API. Every record it returns has
// been normalized; callers never see the wire shape.
type Client struct {
	HTTP    *http.Client
	BaseURL string
	Token   string
}

var (
	_ messaging.Store = (*Client)(nil)
	_ catalog.Source  = (*Client)(nil)
)

// New returns a client without a request timeout; cancellation is left to
// the caller's context.
func New(baseURL, token string) *Client {
	return &Client{
		HTTP:    &http.Client{},
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
	}
}

type sendBody struct {
	RecipientID int64  `json:"recipient_id"`
	Body        string `json:"body"`
	Subject     string `json:"subject,omitempty"`
	ProductID   *int64 `json:"product_id,omitempty"`
	ClientRef   string `json:"client_ref,omitempty"`
}

func (c *Client) FetchReceived(ctx context.Context) ([]messaging.Message, error) {
	data, err := c.do(ctx, "fetch received", http.MethodGet, "/api/messages/received", nil)
	if err != nil {
		return nil, err
	}
	return messaging.NormalizeMessages([]byte(data.Raw)), nil
}

func (c *Client) FetchSent(ctx context.Context) ([]messaging.Message, error) {
	data, err := c.do(ctx, "fetch sent", http.MethodGet, "/api/messages/sent", nil)
	if err != nil {
		return nil, err
	}
	return messaging.NormalizeMessages([]byte(data.Raw)), nil
}

func (c *Client) FetchConversation(ctx context.Context, peer messaging.Identity) ([]messaging.Message, error) {
	if peer <= 0 {
		return nil, fmt.Errorf("fetch conversation: %w: invalid peer %d", messaging.ErrValidation, peer)
	}
	data, err := c.do(ctx, "fetch conversation", http.MethodGet, fmt.Sprintf("/api/messages/conversation/%d", peer), nil)
	if err != nil {
		return nil, err
	}
	return messaging.NormalizeMessages([]byte(data.Raw)), nil
}

func (c *Client) Send(ctx context.Context, req messaging.SendRequest) (messaging.Message, error) {
	body := strings.TrimSpace(req.Body)
	switch {
	case req.PeerID <= 0:
		return messaging.Message{}, fmt.Errorf("send: %w: recipient is required", messaging.ErrValidation)
	case body == "":
		return messaging.Message{}, fmt.Errorf("send: %w: body is required", messaging.ErrValidation)
	}

	data, err := c.do(ctx, "send", http.MethodPost, "/api/messages", sendBody{
		RecipientID: int64(req.PeerID),
		Body:        body,
		Subject:     req.Subject,
		ProductID:   req.ProductID,
		ClientRef:   req.ClientRef,
	})
	if err != nil {
		return messaging.Message{}, err
	}

	msg, ok := messaging.NormalizeMessage([]byte(data.Raw))
	if !ok {
		return messaging.Message{}, &messaging.APIError{Op: "send", Kind: messaging.ErrServer, Message: "response carried no message"}
	}
	return msg, nil
}

func (c *Client) MarkRead(ctx context.Context, id int64) error {
	_, err := c.do(ctx, "mark read", http.MethodPatch, fmt.Sprintf("/api/messages/%d/read", id), nil)
	return err
}

func (c *Client) Delete(ctx context.Context, id int64) error {
	_, err := c.do(ctx, "delete", http.MethodDelete, fmt.Sprintf("/api/messages/%d", id), nil)
	return err
}

func (c *Client) CountUnread(ctx context.Context) (int, error) {
	data, err := c.do(ctx, "count unread", http.MethodGet, "/api/messages/unread-count", nil)
	if err != nil {
		return 0, err
	}
	if data.IsObject() {
		return int(data.Get("count").Int()), nil
	}
	return int(data.Int()), nil
}

// Me resolves the signed in user.
func (c *Client) Me(ctx context.Context) (messaging.User, error) {
	data, err := c.do(ctx, "me", http.MethodGet, "/api/me", nil)
	if err != nil {
		return messaging.User{}, err
	}
	u := messaging.User{
		ID:          messaging.Identity(data.Get("id").Int()),
		DisplayName: data.Get("name").String(),
		Email:       data.Get("email").String(),
		Role:        data.Get("role").String(),
	}
	if u.ID == 0 {
		return messaging.User{}, &messaging.APIError{Op: "me", Kind: messaging.ErrServer, Message: "response carried no user id"}
	}
	return u, nil
}

func (c *Client) Product(ctx context.Context, id int64) (catalog.Product, error) {
	data, err := c.do(ctx, "product", http.MethodGet, fmt.Sprintf("/api/products/%d", id), nil)
	if err != nil {
		return catalog.Product{}, err
	}
	return catalog.Product{
		ID:       data.Get("id").Int(),
		Title:    data.Get("title").String(),
		Category: data.Get("category").String(),
		Unit:     data.Get("unit").String(),
		Price:    data.Get("price").Int(),
		SellerID: data.Get("seller_id").Int(),
	}, nil
}

// do performs one request and returns the envelope's data member.
func (c *Client) do(ctx context.Context, op, method, path string, body any) (gjson.Result, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return gjson.Result{}, fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return gjson.Result{}, &messaging.APIError{Op: op, Kind: messaging.ErrNetwork, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, &messaging.APIError{Op: op, Status: resp.StatusCode, Kind: messaging.ErrNetwork, Err: err}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return gjson.Result{}, &messaging.APIError{
			Op:      op,
			Status:  resp.StatusCode,
			Kind:    kindForStatus(resp.StatusCode),
			Message: errorMessage(raw, resp.Status),
		}
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return gjson.Result{}, nil
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, &messaging.APIError{Op: op, Status: resp.StatusCode, Kind: messaging.ErrServer, Message: "invalid JSON response"}
	}

	root := gjson.ParseBytes(raw)
	if ok := root.Get("success"); ok.Exists() && !ok.Bool() {
		return gjson.Result{}, &messaging.APIError{
			Op:      op,
			Status:  resp.StatusCode,
			Kind:    messaging.ErrServer,
			Message: errorMessage(raw, "request failed"),
		}
	}
	if data := root.Get("data"); data.Exists() {
		return data, nil
	}
	return root, nil
}

func kindForStatus(code int) error {
	switch code {
	case http.StatusMethodNotAllowed, http.StatusNotImplemented:
		return messaging.ErrMethodNotSupported
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return messaging.ErrValidation
	case http.StatusNotFound:
		return messaging.ErrNotFound
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return messaging.ErrNetwork
	default:
		return messaging.ErrServer
	}
}

func errorMessage(raw []byte, fallback string) string {
	if gjson.ValidBytes(raw) {
		if m := gjson.GetBytes(raw, "message"); m.String() != "" {
			return m.String()
		}
		if m := gjson.GetBytes(raw, "error"); m.String() != "" {
			return m.String()
		}
	}
	return fallback
}

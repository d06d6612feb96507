package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// TokenUpdateFunc is a callback function that handles token updates
type TokenUpdateFunc func(token *oauth2.Token) error

// receiptQuery narrows the mailbox to messages that usually carry purchase data.
const receiptQuery = `(category:purchases OR subject:(receipt OR order OR invoice OR confirmation OR warranty OR subscription))`

// maxListPageSize is the Gmail API maximum for messages.list
const maxListPageSize = 500

// Message is the slice of a Gmail message the sync pipeline needs.
type Message struct {
	ID         string
	From       string
	Subject    string
	ReceivedAt time.Time
	Body       string // plain text; HTML bodies are flattened
}

type Service struct {
	oauthConfig *oauth2.Config
	logger      *zap.Logger
}

type notifyTokenSource struct {
	mu       sync.Mutex
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback TokenUpdateFunc
	logger   *zap.Logger
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.callback != nil && s.current.AccessToken != t.AccessToken {
		s.current = t
		// Block so the persisted tokens never lag behind the ones in use.
		if err := s.callback(t); err != nil {
			s.logger.Warn("failed to persist refreshed token", zap.Error(err))
		}
	}
	return t, nil
}

func NewService(clientID, clientSecret, redirectURI string, logger *zap.Logger) *Service {
	return &Service{
		oauthConfig: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Endpoint:     google.Endpoint,
			Scopes: []string{
				gmail.GmailReadonlyScope,
				"https://www.googleapis.com/auth/userinfo.email",
			},
		},
		logger: logger.Named("gmail"),
	}
}

// AuthCodeURL returns the consent page URL carrying state. Offline access with a forced
// consent prompt makes Google return a refresh token on every connection.
func (s *Service) AuthCodeURL(state string) string {
	return s.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for tokens.
func (s *Service) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := s.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("unable to exchange authorization code: %w", err)
	}
	return token, nil
}

// GetGmailService creates Gmail service with user's tokens
func (s *Service) GetGmailService(ctx context.Context, token *oauth2.Token, onTokenRefresh TokenUpdateFunc) (*gmail.Service, error) {
	if token.TokenType == "" {
		token.TokenType = "Bearer"
	}

	tokenSource := s.oauthConfig.TokenSource(ctx, token)

	// Wrap token source to detect refreshes
	wrappedSource := &notifyTokenSource{
		src:      tokenSource,
		current:  token,
		callback: onTokenRefresh,
		logger:   s.logger,
	}

	client := oauth2.NewClient(ctx, wrappedSource)

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}

	return srv, nil
}

// GetProfileEmail resolves the mailbox address the tokens belong to.
func (s *Service) GetProfileEmail(ctx context.Context, token *oauth2.Token) (string, error) {
	srv, err := s.GetGmailService(ctx, token, nil)
	if err != nil {
		return "", err
	}

	profile, err := srv.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to get profile: %w", err)
	}
	return profile.EmailAddress, nil
}

// MessageBatch is the oldest slice of the receipts matching a listing.
// Remaining counts matching messages newer than the batch that were not fetched.
type MessageBatch struct {
	Messages  []*Message
	Remaining int
}

// ListReceiptMessages pages through every receipt-like message received after since and fetches
// the oldest limit of them, oldest first. Callers that advance a cursor past the batch never skip mail.
func (s *Service) ListReceiptMessages(ctx context.Context, token *oauth2.Token, since time.Time, limit int, onTokenRefresh TokenUpdateFunc) (*MessageBatch, error) {
	srv, err := s.GetGmailService(ctx, token, onTokenRefresh)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 100
	}

	q := receiptQuery
	if !since.IsZero() {
		q += fmt.Sprintf(" after:%d", since.Unix())
	}

	// Gmail lists newest first; collect every id so the oldest can be fetched first
	var ids []string
	pageToken := ""
	for {
		call := srv.Users.Messages.List("me").Q(q).MaxResults(maxListPageSize).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		listResp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("unable to list messages: %w", err)
		}
		for _, ref := range listResp.Messages {
			ids = append(ids, ref.Id)
		}
		if listResp.NextPageToken == "" {
			break
		}
		pageToken = listResp.NextPageToken
	}

	oldest := oldestFirst(ids, limit)
	batch := &MessageBatch{
		Messages:  make([]*Message, 0, len(oldest)),
		Remaining: len(ids) - len(oldest),
	}
	for _, id := range oldest {
		full, err := srv.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("unable to retrieve message %s: %w", id, err)
		}
		batch.Messages = append(batch.Messages, convertGmailMessage(full))
	}
	sort.SliceStable(batch.Messages, func(i, j int) bool {
		return batch.Messages[i].ReceivedAt.Before(batch.Messages[j].ReceivedAt)
	})

	return batch, nil
}

// oldestFirst reverses a newest-first id listing and keeps at most limit ids
func oldestFirst(ids []string, limit int) []string {
	n := len(ids)
	if n > limit {
		n = limit
	}
	out := make([]string, 0, n)
	for i := len(ids) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, ids[i])
	}
	return out
}

// Watch sets up push notifications for the user's mailbox
func (s *Service) Watch(ctx context.Context, token *oauth2.Token, topicName string, onTokenRefresh TokenUpdateFunc) error {
	srv, err := s.GetGmailService(ctx, token, onTokenRefresh)
	if err != nil {
		return err
	}

	// Clears a previous registration; Gmail allows one push client per mailbox.
	_ = srv.Users.Stop("me").Context(ctx).Do()

	req := &gmail.WatchRequest{
		TopicName: topicName,
		LabelIds:  []string{"INBOX"},
	}

	resp, err := srv.Users.Watch("me", req).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to watch mailbox: %w", err)
	}
	s.logger.Info("mailbox watch started",
		zap.String("topic", topicName),
		zap.Int64("expiration", resp.Expiration),
		zap.Uint64("history_id", resp.HistoryId))

	return nil
}

// Helper functions

func convertGmailMessage(msg *gmail.Message) *Message {
	body, isHTML := getEmailBody(msg.Payload)
	if isHTML {
		body = HTMLToText(body)
	}

	return &Message{
		ID:         msg.Id,
		From:       getHeader(msg.Payload, "From"),
		Subject:    getHeader(msg.Payload, "Subject"),
		ReceivedAt: time.UnixMilli(msg.InternalDate),
		Body:       body,
	}
}

func getHeader(payload *gmail.MessagePart, name string) string {
	if payload == nil {
		return ""
	}
	for _, header := range payload.Headers {
		if strings.EqualFold(header.Name, name) {
			return header.Value
		}
	}
	return ""
}

func getEmailBody(payload *gmail.MessagePart) (string, bool) {
	if payload == nil {
		return "", false
	}

	// If the payload itself is the body
	if payload.Body != nil && payload.Body.Data != "" {
		if data, err := decodeBody(payload.Body.Data); err == nil {
			return data, payload.MimeType == "text/html"
		}
	}

	var htmlBody string
	var plainBody string

	var findBody func(parts []*gmail.MessagePart)
	findBody = func(parts []*gmail.MessagePart) {
		for _, part := range parts {
			if part.Body != nil && part.Body.Data != "" {
				switch part.MimeType {
				case "text/html":
					if data, err := decodeBody(part.Body.Data); err == nil {
						htmlBody = data
					}
				case "text/plain":
					if data, err := decodeBody(part.Body.Data); err == nil {
						plainBody = data
					}
				}
			}

			if len(part.Parts) > 0 {
				findBody(part.Parts)
			}
		}
	}

	findBody(payload.Parts)

	if htmlBody != "" {
		return htmlBody, true
	}
	return plainBody, false
}

// decodeBody accepts both padded and unpadded base64url, Gmail emits either.
func decodeBody(data string) (string, error) {
	decoded, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		decoded, err = base64.RawURLEncoding.DecodeString(data)
		if err != nil {
			return "", err
		}
	}
	return string(decoded), nil
}

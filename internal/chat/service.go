package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rowanvale/shopdesk/internal/db"
	"github.com/rowanvale/shopdesk/internal/llm"
	"github.com/rowanvale/shopdesk/internal/models"
	"go.uber.org/zap"
)

// Client-visible validation and lookup failures. Everything else that goes
// wrong in a send is an infrastructure fault.
var (
	ErrEmptyMessage         = errors.New("message must not be empty")
	ErrMessageTooLong       = errors.New("message exceeds the maximum length")
	ErrConversationNotFound = errors.New("conversation not found")
)

const (
	// Request validation bound, protecting the API surface. The generator
	// applies its own tighter truncation before the provider call.
	maxMessageRunes = 4000
	// Storage read cap for the context window; bounds the history query, not
	// what the generator ultimately submits.
	historyReadLimit = 20
)

// Store is the persistence surface the service needs. *db.Database satisfies
// it; tests may substitute an in-memory double.
type Store interface {
	CreateConversation(id string, createdAt time.Time) error
	AppendMessage(conversationID, sender, text string, createdAt time.Time) (int64, error)
	GetConversation(id string) (*models.Conversation, error)
	ListMessages(conversationID string, limit int) ([]models.Message, error)
}

type Service struct {
	store     Store
	generator llm.Generator
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

func NewService(store Store, generator llm.Generator, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		generator: generator,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

type SendResult struct {
	Reply     string
	SessionID string
}

// SendMessage runs one chat turn to completion: validate, resolve the session,
// persist the user turn, generate a reply against the bounded context window,
// persist the assistant turn. The user turn is durable before generation
// starts, and generation cannot fail, so every successful send appends exactly
// one user and one assistant message.
func (s *Service) SendMessage(ctx context.Context, sessionID, text string) (*SendResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > maxMessageRunes {
		return nil, ErrMessageTooLong
	}

	log := s.logger.With(zap.String("session_id", sessionID))

	if sessionID == "" {
		sessionID = s.newID()
		log = s.logger.With(zap.String("session_id", sessionID))
		if err := s.store.CreateConversation(sessionID, s.now()); err != nil {
			log.Error("failed to create conversation", zap.Error(err))
			return nil, fmt.Errorf("create conversation: %w", err)
		}
		log.Info("created conversation")
	} else if _, err := s.store.GetConversation(sessionID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		log.Error("failed to look up conversation", zap.Error(err))
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	userMsgID, err := s.store.AppendMessage(sessionID, models.SenderUser, text, s.now())
	if err != nil {
		log.Error("failed to persist user message", zap.Error(err))
		return nil, fmt.Errorf("append user message: %w", err)
	}

	history, err := s.buildContext(sessionID, userMsgID)
	if err != nil {
		// The user turn is already durable; answer from an empty context
		// rather than failing the request.
		log.Warn("failed to build context window, generating without history", zap.Error(err))
		history = nil
	}

	reply := s.generator.Reply(ctx, history, text)

	if _, err := s.store.AppendMessage(sessionID, models.SenderAI, reply, s.now()); err != nil {
		log.Error("failed to persist assistant message", zap.Error(err))
		return nil, fmt.Errorf("append assistant message: %w", err)
	}

	log.Info("chat turn completed", zap.Int("context_turns", len(history)))

	return &SendResult{Reply: reply, SessionID: sessionID}, nil
}

// buildContext assembles the generator context window: the most recent stored
// messages in ascending time order, mapped to generator roles. The turn being
// answered is excluded since it is handed to the generator separately.
func (s *Service) buildContext(sessionID string, excludeID int64) ([]llm.Turn, error) {
	messages, err := s.store.ListMessages(sessionID, historyReadLimit)
	if err != nil {
		return nil, err
	}

	turns := make([]llm.Turn, 0, len(messages))
	for _, msg := range messages {
		if msg.ID == excludeID {
			continue
		}
		role := llm.RoleUser
		if msg.Sender == models.SenderAI {
			role = llm.RoleAssistant
		}
		turns = append(turns, llm.Turn{Role: role, Text: msg.Text})
	}
	return turns, nil
}

// History returns the conversation metadata and its full ordered transcript.
// This path serves UI replay and applies no windowing.
func (s *Service) History(ctx context.Context, sessionID string) (*models.Conversation, []models.Message, error) {
	conv, err := s.store.GetConversation(sessionID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, nil, ErrConversationNotFound
		}
		s.logger.Error("failed to look up conversation",
			zap.String("session_id", sessionID), zap.Error(err))
		return nil, nil, fmt.Errorf("get conversation: %w", err)
	}

	messages, err := s.store.ListMessages(sessionID, 0)
	if err != nil {
		s.logger.Error("failed to list messages",
			zap.String("session_id", sessionID), zap.Error(err))
		return nil, nil, fmt.Errorf("list messages: %w", err)
	}
	return conv, messages, nil
}

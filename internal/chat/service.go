package chat

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/suPer8Hu/schoolhub/internal/ai"
	"github.com/suPer8Hu/schoolhub/internal/common"
	"github.com/suPer8Hu/schoolhub/internal/metrics"
	"github.com/suPer8Hu/schoolhub/internal/models"
	"go.uber.org/zap"
)

type Options struct {
	// EndSession summarises when message_count > SummaryMessageThreshold
	// or total_tokens > SummaryTokenThreshold.
	SummaryMessageThreshold int
	SummaryTokenThreshold   int
}

type Service struct {
	repo     *Repo
	provider ai.Provider
	log      *zap.Logger
	opts     Options
	locks    *sessionLocks
	now      func() time.Time
}

func NewService(repo *Repo, provider ai.Provider, log *zap.Logger, opts Options) *Service {
	if opts.SummaryMessageThreshold <= 0 {
		opts.SummaryMessageThreshold = 10
	}
	if opts.SummaryTokenThreshold <= 0 {
		opts.SummaryTokenThreshold = 5000
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		provider: provider,
		log:      log.Named("chat"),
		opts:     opts,
		locks:    newSessionLocks(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Exchange is the pair of turns persisted by one SendMessage.
type Exchange struct {
	UserMessage      *Message `json:"userMessage"`
	AssistantMessage *Message `json:"assistantMessage"`
}

// EstimateTokens approximates the cost of one exchange as ceil(chars/4).
func EstimateTokens(prompt, reply string) int {
	n := utf8.RuneCountInString(prompt) + utf8.RuneCountInString(reply)
	return (n + 3) / 4
}

func (s *Service) CreateSession(ctx context.Context, studentID uint64, courseID *uint64) (*Session, error) {
	sid, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	sess := &Session{
		SessionID: sid,
		StudentID: studentID,
		CourseID:  courseID,
		Status:    StatusActive,
		StartedAt: s.now(),
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) GetSession(ctx context.Context, sessionID string, studentID uint64) (*Session, error) {
	return s.repo.GetSession(ctx, sessionID, studentID)
}

func (s *Service) ListSessions(ctx context.Context, studentID uint64, f ListFilter, page common.Page) ([]Session, error) {
	return s.repo.ListSessions(ctx, studentID, f, page.Limit(), page.Offset())
}

// History returns the session's turns in replay order.
func (s *Service) History(ctx context.Context, sessionID string, studentID uint64) ([]Message, error) {
	if _, err := s.repo.GetSession(ctx, sessionID, studentID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, sessionID)
}

// SendMessage appends the user turn, asks the provider for a reply over the full
// history and persists the reply. The user turn stays persisted when the provider
// fails.
func (s *Service) SendMessage(ctx context.Context, sessionID string, studentID uint64, text string) (*Exchange, error) {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	sess, err := s.repo.GetSession(ctx, sessionID, studentID)
	if err != nil {
		return nil, err
	}
	if sess.Status != StatusActive {
		return nil, ErrSessionNotActive
	}

	history, err := s.repo.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	turns := make([]ai.Message, 0, len(history)+1)
	for _, m := range history {
		t := ai.Message{Role: m.Role, Content: m.Content}
		if m.Role == RoleAssistant && len(m.Reasoning) > 0 {
			t.Reasoning = []byte(m.Reasoning)
		}
		turns = append(turns, t)
	}
	turns = append(turns, ai.Message{Role: ai.RoleUser, Content: text})

	userMsg, err := NewMessage(sessionID, RoleUser, text, len(history), nil)
	if err != nil {
		return nil, err
	}
	if err := s.repo.InsertMessage(ctx, userMsg); err != nil {
		return nil, err
	}

	completion, err := s.provider.Chat(ctx, turns)
	if err != nil {
		s.log.Warn("completion failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return nil, err
	}

	assistantMsg, err := NewMessage(sessionID, RoleAssistant, completion.Content, len(history)+1, completion.Reasoning)
	if err != nil {
		return nil, err
	}

	tokens := EstimateTokens(text, completion.Content)

	var record *InteractionRecord
	if sess.CourseID != nil {
		role, found, err := s.repo.StudentRole(ctx, studentID)
		if err != nil {
			return nil, err
		}
		if found && role != models.RoleGuest {
			record = &InteractionRecord{
				StudentID:  studentID,
				CourseID:   *sess.CourseID,
				Prompt:     text,
				Response:   completion.Content,
				Reasoning:  assistantMsg.Reasoning,
				TokensUsed: tokens,
			}
		}
	}

	if err := s.repo.CompleteExchange(ctx, assistantMsg, tokens, record); err != nil {
		return nil, err
	}
	metrics.ChatTokens.Add(float64(tokens))

	return &Exchange{UserMessage: userMsg, AssistantMessage: assistantMsg}, nil
}

// EndSession completes an active session and, past the thresholds, attempts a
// summary. Summary failures are logged and the session is returned completed.
// Ending a session that already ended returns it unchanged.
func (s *Service) EndSession(ctx context.Context, sessionID string, studentID uint64) (*Session, error) {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	sess, err := s.repo.GetSession(ctx, sessionID, studentID)
	if err != nil {
		return nil, err
	}
	if sess.Terminal() {
		return sess, nil
	}

	if err := s.repo.MarkEnded(ctx, sessionID, s.now()); err != nil {
		return nil, err
	}

	if sess.MessageCount > s.opts.SummaryMessageThreshold || sess.TotalTokens > s.opts.SummaryTokenThreshold {
		if _, err := s.summarize(ctx, sess, "auto"); err != nil {
			s.log.Warn("auto summarization failed",
				zap.String("session_id", sessionID),
				zap.Int("message_count", sess.MessageCount),
				zap.Int("total_tokens", sess.TotalTokens),
				zap.Error(err),
			)
		}
	}

	return s.repo.GetSession(ctx, sessionID, studentID)
}

// SummarizeSession summarises the whole history. On provider failure the session
// is left completed and the error is returned.
func (s *Service) SummarizeSession(ctx context.Context, sessionID string, studentID uint64) (string, error) {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	sess, err := s.repo.GetSession(ctx, sessionID, studentID)
	if err != nil {
		return "", err
	}
	return s.summarize(ctx, sess, "explicit")
}

func (s *Service) summarize(ctx context.Context, sess *Session, trigger string) (string, error) {
	history, err := s.repo.ListMessages(ctx, sess.SessionID)
	if err != nil {
		return "", err
	}
	if len(history) == 0 {
		return "", ErrNoMessages
	}

	completion, err := s.provider.Chat(ctx, []ai.Message{
		{Role: ai.RoleUser, Content: summaryPrompt(history)},
	})
	if err != nil {
		metrics.ChatSummaries.WithLabelValues(trigger, "error").Inc()
		if serr := s.repo.SetStatus(ctx, sess.SessionID, StatusCompleted); serr != nil {
			s.log.Error("reset status after failed summary", zap.String("session_id", sess.SessionID), zap.Error(serr))
		}
		return "", fmt.Errorf("summarize session: %w", err)
	}

	if err := s.repo.SetSummary(ctx, sess.SessionID, completion.Content); err != nil {
		return "", err
	}
	metrics.ChatSummaries.WithLabelValues(trigger, "ok").Inc()
	return completion.Content, nil
}

func summaryPrompt(history []Message) string {
	lines := make([]string, 0, len(history))
	for _, m := range history {
		speaker := "Assistant"
		if m.Role == RoleUser {
			speaker = "Student"
		}
		lines = append(lines, speaker+": "+m.Content)
	}

	return "Please provide a concise summary of this student-teacher conversation. Include:\n" +
		"1. Key topics discussed\n" +
		"2. Student's main questions or concerns\n" +
		"3. Level of understanding demonstrated by the student\n" +
		"4. Any areas where the student might need additional help\n\n" +
		"Conversation:\n" + strings.Join(lines, "\n\n") + "\n\nSummary:"
}

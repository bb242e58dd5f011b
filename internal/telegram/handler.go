package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/daybreakhan/quorum/internal/crypto"
	"github.com/daybreakhan/quorum/internal/orchestrator"
	"github.com/daybreakhan/quorum/internal/store"
)

// Bot replies, Korean first like the pipeline placeholders.
const (
	msgStart          = "안녕! 웹앱에서 'Telegram 연결 코드'를 생성한 다음, 그 코드를 그대로 나에게 보내면 연결돼."
	msgCodeConsumed   = "이미 사용된 연결 코드야. 웹앱에서 새 코드를 생성해줘."
	msgCodeExpired    = "연결 코드가 만료됐어. 웹앱에서 새 코드를 생성해줘."
	msgAlreadyLinked  = "이미 연결되어 있어! 질문을 보내줘."
	msgCodeInvalid    = "연결 코드가 유효하지 않아. 웹앱에서 새 코드를 생성해줘."
	msgLinked         = "연결 완료! 이제 질문을 보내면 AI 단톡방이 답해줄게."
	msgNotLinked      = "아직 웹앱과 연결되지 않았어. 웹앱에서 연결 코드를 만든 뒤 그 코드를 보내줘. (/start)"
	msgEmptyAnswer    = "(빈 응답)"
	msgProcessingErr  = "처리 중 오류가 났어: %s"
	msgClarifyLeadIn  = "질문이 조금 모호해서 확인하고 싶어:"
	summaryMaxRunes   = 4000
	processingTimeout = 5 * time.Minute
)

// Store is the persistence surface the webhook handler needs.
type Store interface {
	UserByChat(ctx context.Context, chatID string) (*store.User, error)
	LinkCodeByCode(ctx context.Context, code string) (*store.LinkCode, error)
	ConsumeLinkCode(ctx context.Context, code string) (*store.LinkCode, error)
	ChatLinked(ctx context.Context, chatID string) (bool, error)
	LinkChat(ctx context.Context, userID int64, chatID string) error
	EnsureThread(ctx context.Context, userID int64, threadKey string) (*store.Thread, error)
	AppendMessage(ctx context.Context, threadID int64, role, content string) error
	UpdateThreadSummary(ctx context.Context, threadID int64, summary string) error
	APIKeys(ctx context.Context, userID int64) (map[string]string, error)
	PreferencesByUser(ctx context.Context, userID int64) (*store.Preferences, error)
	RecordUsage(ctx context.Context, events []store.UsageEvent) error
}

// Sender is the outbound message surface; *Client satisfies it.
type Sender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// Runner executes one pipeline invocation; *orchestrator.Orchestrator
// satisfies it.
type Runner interface {
	Run(ctx context.Context, req orchestrator.Request) orchestrator.Result
}

// Pipeline carries the per-deployment execution defaults applied to every
// invocation on top of the user's stored stage configuration.
type Pipeline struct {
	Exec       orchestrator.ExecConfig
	Budget     orchestrator.Budget
	UseLLMGate bool
	GateModel  string

	// ClarifyThreshold asks clarifying questions instead of running the
	// pipeline when the ambiguity score reaches it. Zero disables the check.
	ClarifyThreshold float64
}

// Handler serves the Telegram webhook. Updates are acknowledged immediately
// and processed on a background goroutine, as the Bot API retries slow
// webhooks aggressively.
type Handler struct {
	secret   string
	store    Store
	sender   Sender
	runner   Runner
	cipher   *crypto.Cipher
	pipeline Pipeline
	log      *slog.Logger

	// spawn runs the background processing step. Tests replace it to run
	// synchronously.
	spawn func(func())
}

// NewHandler builds the webhook handler. secret is the path segment that
// authenticates Telegram's calls.
func NewHandler(secret string, st Store, sender Sender, runner Runner, cipher *crypto.Cipher, pipeline Pipeline, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		secret:   secret,
		store:    st,
		sender:   sender,
		runner:   runner,
		cipher:   cipher,
		pipeline: pipeline,
		log:      log,
		spawn:    func(fn func()) { go fn() },
	}
}

// update mirrors the subset of the Bot API update payload Quorum reads.
type update struct {
	Message       *incomingMessage `json:"message"`
	EditedMessage *incomingMessage `json:"edited_message"`
}

type incomingMessage struct {
	Chat struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	Text string `json:"text"`
}

// Register adds the webhook route to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /tg/{secret}", h.ServeWebhook)
}

// ServeWebhook authenticates and parses one update, acknowledges it, and
// hands the message to background processing.
func (h *Handler) ServeWebhook(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("secret") != h.secret {
		http.NotFound(w, r)
		return
	}

	var u update
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		http.Error(w, `{"ok":false}`, http.StatusBadRequest)
		return
	}

	msg := u.Message
	if msg == nil {
		msg = u.EditedMessage
	}
	if msg != nil {
		chatID := fmt.Sprintf("%d", msg.Chat.ID)
		text := strings.TrimSpace(msg.Text)
		h.spawn(func() {
			ctx, cancel := context.WithTimeout(context.Background(), processingTimeout)
			defer cancel()
			h.process(ctx, chatID, text)
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"ok":true}`))
}

// process handles one inbound message end to end: command, link flow, or
// pipeline question. Every outcome ends with a reply to the chat.
func (h *Handler) process(ctx context.Context, chatID, text string) {
	if err := h.processErr(ctx, chatID, text); err != nil {
		h.log.Error("telegram update failed", "chat_id", chatID, "error", err)
		h.reply(ctx, chatID, fmt.Sprintf(msgProcessingErr, err.Error()))
	}
}

func (h *Handler) processErr(ctx context.Context, chatID, text string) error {
	if strings.HasPrefix(text, "/start") {
		h.reply(ctx, chatID, msgStart)
		return nil
	}

	if text != "" {
		handled, err := h.tryLinkCode(ctx, chatID, text)
		if err != nil {
			return err
		}
		if handled {
			return nil
		}
	}

	user, err := h.store.UserByChat(ctx, chatID)
	if errors.Is(err, store.ErrNotFound) {
		h.reply(ctx, chatID, msgNotLinked)
		return nil
	}
	if err != nil {
		return err
	}

	return h.answer(ctx, chatID, user, text)
}

// tryLinkCode treats text as a link code when one exists under its uppercased
// form. It reports whether the message was consumed by the link flow.
func (h *Handler) tryLinkCode(ctx context.Context, chatID, text string) (bool, error) {
	code := strings.ToUpper(text)
	lc, err := h.store.LinkCodeByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if lc.Status == store.LinkCodeConsumed {
		h.reply(ctx, chatID, msgCodeConsumed)
		return true, nil
	}
	if lc.Expired(time.Now()) {
		h.reply(ctx, chatID, msgCodeExpired)
		return true, nil
	}

	linked, err := h.store.ChatLinked(ctx, chatID)
	if err != nil {
		return false, err
	}
	if linked {
		h.reply(ctx, chatID, msgAlreadyLinked)
		return true, nil
	}

	consumed, err := h.store.ConsumeLinkCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		h.reply(ctx, chatID, msgCodeInvalid)
		return true, nil
	}
	if err != nil {
		return false, err
	}

	if err := h.store.LinkChat(ctx, consumed.UserID, chatID); err != nil {
		return false, err
	}
	h.reply(ctx, chatID, msgLinked)
	return true, nil
}

// answer runs the user's pipeline over one question and persists the turn.
func (h *Handler) answer(ctx context.Context, chatID string, user *store.User, question string) error {
	thread, err := h.store.EnsureThread(ctx, user.ID, "telegram:"+chatID)
	if err != nil {
		return err
	}
	if err := h.store.AppendMessage(ctx, thread.ID, "user", question); err != nil {
		return err
	}

	if h.pipeline.ClarifyThreshold > 0 {
		if c := orchestrator.AnalyzeClarity(question); c.Score >= h.pipeline.ClarifyThreshold {
			h.reply(ctx, chatID, clarifyReply(c))
			return nil
		}
	}

	keys, err := h.decryptedKeys(ctx, user.ID)
	if err != nil {
		return err
	}
	prefs, err := h.store.PreferencesByUser(ctx, user.ID)
	if err != nil {
		return err
	}

	result := h.runner.Run(ctx, h.buildRequest(question, thread.Summary, keys, prefs))

	answer := strings.TrimSpace(result.Final)
	if answer == "" {
		answer = msgEmptyAnswer
	}

	if err := h.store.RecordUsage(ctx, usageEvents(user.ID, result)); err != nil {
		h.log.Warn("usage events not recorded", "user_id", user.ID, "error", err)
	}
	if err := h.store.AppendMessage(ctx, thread.ID, "assistant", answer); err != nil {
		return err
	}
	if err := h.store.UpdateThreadSummary(ctx, thread.ID, rollSummary(thread.Summary, question, answer)); err != nil {
		return err
	}

	h.reply(ctx, chatID, answer)
	return nil
}

// buildRequest merges the user's stored stage configuration with the
// deployment-wide execution defaults.
func (h *Handler) buildRequest(question, summary string, keys map[string]string, prefs *store.Preferences) orchestrator.Request {
	stages := make([]orchestrator.StageSpec, 0, len(prefs.Stages))
	for _, s := range prefs.Stages {
		stages = append(stages, orchestrator.StageSpec{Name: s.Name, System: s.System, Model: s.Model})
	}
	return orchestrator.Request{
		Question:      question,
		ThreadSummary: summary,
		APIKeys:       keys,
		Stages:        stages,
		SynthModel:    prefs.SynthModel,
		Budget:        h.pipeline.Budget,
		UseLLMGate:    h.pipeline.UseLLMGate,
		GateModel:     h.pipeline.GateModel,
		Exec:          h.pipeline.Exec,
	}
}

// decryptedKeys loads and decrypts the user's API keys. Keys that fail to
// decrypt are skipped; a missing key surfaces as the orchestrator's own
// missing-key message.
func (h *Handler) decryptedKeys(ctx context.Context, userID int64) (map[string]string, error) {
	encrypted, err := h.store.APIKeys(ctx, userID)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]string, len(encrypted))
	for provider, enc := range encrypted {
		plain, err := h.cipher.Decrypt(enc)
		if err != nil {
			h.log.Warn("stored api key not decryptable", "user_id", userID, "provider", provider)
			continue
		}
		keys[provider] = plain
	}
	return keys, nil
}

// usageEvents flattens the result's usage map into store rows.
func usageEvents(userID int64, result orchestrator.Result) []store.UsageEvent {
	events := make([]store.UsageEvent, 0, len(result.Usage))
	for stage, u := range result.Usage {
		events = append(events, store.UsageEvent{
			UserID:       userID,
			Stage:        stage,
			Provider:     u.Provider,
			Model:        u.Model,
			InputTokens:  u.InputTokens,
			OutputTokens: u.OutputTokens,
			CostUSD:      u.CostUSD,
			Status:       u.Status,
		})
	}
	return events
}

// rollSummary appends one Q/A turn to the rolling summary, keeping the most
// recent summaryMaxRunes runes.
func rollSummary(prev, question, answer string) string {
	chunk := fmt.Sprintf("Q: %s\nA: %s\n", question, answer)
	next := strings.TrimSpace(prev + "\n" + chunk)
	runes := []rune(next)
	if len(runes) > summaryMaxRunes {
		runes = runes[len(runes)-summaryMaxRunes:]
	}
	return string(runes)
}

// clarifyReply formats the clarifier's follow-up questions for the chat.
func clarifyReply(c orchestrator.Clarification) string {
	var sb strings.Builder
	sb.WriteString(msgClarifyLeadIn)
	for _, q := range c.Questions {
		sb.WriteString("\n- ")
		sb.WriteString(q)
	}
	return sb.String()
}

// reply sends text to the chat, logging failures. Replies are best effort:
// the turn has already been persisted by the time one is sent.
func (h *Handler) reply(ctx context.Context, chatID, text string) {
	if err := h.sender.SendMessage(ctx, chatID, text); err != nil {
		h.log.Error("telegram send failed", "chat_id", chatID, "error", err)
	}
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"fundpilot/internal/config"
	"fundpilot/internal/logging"
	"fundpilot/internal/models"
	"fundpilot/internal/retrieval"
	"fundpilot/internal/tools"
)

var (
	// ErrUnknownSession marks a turn referencing a session id the ledger
	// has never seen. Client error, never retried.
	ErrUnknownSession = errors.New("unknown session")

	// ErrToolRoundsExceeded marks a turn whose model kept requesting tools
	// past the configured round cap.
	ErrToolRoundsExceeded = errors.New("tool-call round cap exceeded")
)

// fallbackAnswer is what the user sees once upstream retries are exhausted.
// The raw error never crosses into the response.
const fallbackAnswer = "Apologies, I'm unable to process your request at the moment. Please try again in a little while."

const systemPromptTemplate = `You are FundPilot, an assistant for mutual fund distributors and their investors.
Answer using the provided context and conversation history. Use the available tools when a question needs knowledge-base lookup or client/scheme/order data.
Keep answers under %d tokens. Today is %s.%s`

// AuthGateToggle reports whether an organization requires re-authentication
// for transactional turns. *OrgService implements it.
type AuthGateToggle interface {
	AuthGateEnabled(ctx context.Context, orgID string) (bool, error)
}

// Orchestrator drives one conversation turn end to end: session validation,
// credential lookup, context retrieval, the bounded model/tool loop, the
// summarization route, classification, and the authentication gate.
type Orchestrator struct {
	sessions  *SessionService
	pool      *KeyPool
	buffers   *BufferService
	store     *ConversationStore // nil without MongoDB
	orgs      AuthGateToggle     // nil without MongoDB
	retriever retrieval.Retriever
	llm       LLMClient
	summarize *Summarizer
	registry  *tools.Registry
	metrics   *Metrics

	model         string
	maxTokens     int
	maxToolRounds int
	authReset     time.Duration
	bufferTurns   int
}

// NewOrchestrator wires the turn orchestrator
func NewOrchestrator(
	cfg *config.Config,
	sessions *SessionService,
	pool *KeyPool,
	buffers *BufferService,
	store *ConversationStore,
	orgs AuthGateToggle,
	retriever retrieval.Retriever,
	llm LLMClient,
	summarizer *Summarizer,
	registry *tools.Registry,
	metrics *Metrics,
) *Orchestrator {
	maxRounds := cfg.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = 5
	}
	return &Orchestrator{
		sessions:      sessions,
		pool:          pool,
		buffers:       buffers,
		store:         store,
		orgs:          orgs,
		retriever:     retriever,
		llm:           llm,
		summarize:     summarizer,
		registry:      registry,
		metrics:       metrics,
		model:         cfg.LLMModel,
		maxTokens:     cfg.MaxTokens,
		maxToolRounds: maxRounds,
		authReset:     time.Duration(cfg.AuthResetMinutes) * time.Minute,
		bufferTurns:   cfg.BufferTurns,
	}
}

// RunTurn answers one question for a session
func (o *Orchestrator) RunTurn(ctx context.Context, sessionID, question string, userInfo map[string]string) (*models.TurnResult, error) {
	if o.metrics != nil {
		o.metrics.TurnRequests.Inc()
		start := time.Now()
		defer func() {
			o.metrics.TurnLatency.Observe(time.Since(start).Seconds())
		}()
	}

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("empty question")
	}

	// Start: the session must exist. Expiry does not block answering;
	// only the sweeper retires a session.
	if !o.sessions.IsValid(ctx, sessionID) {
		o.countError("unknown_session")
		return nil, ErrUnknownSession
	}
	session, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		o.countError("unknown_session")
		return nil, ErrUnknownSession
	}

	apiKey, ok := o.pool.KeyFor(sessionID)
	if !ok {
		// Re-assign after a restart or sweep; the ledger row outlives the mapping
		apiKey, err = o.pool.Assign(sessionID)
		if err != nil {
			o.countError("no_credential")
			return nil, ErrNoCredential
		}
	}

	turnCtx := &tools.TurnContext{
		SessionID: sessionID,
		OrgID:     session.OrgID,
		APIKey:    apiKey,
		UserInfo:  userInfo,
	}

	messages := o.buildMessages(ctx, session, question, userInfo)

	answer, usage, err := o.runModelLoop(ctx, turnCtx, messages)
	if err != nil {
		if errors.Is(err, ErrUpstreamUnavailable) || errors.Is(err, context.DeadlineExceeded) {
			// The user always gets an answer; the failure stays in the logs
			o.countError("upstream")
			log.Printf("❌ [ORCHESTRATOR] Upstream failure for session %s: %v", sessionID, err)
			answer = fallbackAnswer
			usage = models.ToolUsage{Label: models.ToolUsageNone}
		} else {
			o.countError("turn_failed")
			return nil, err
		}
	}

	// RouteCheck: long answers pass through the extractive summarizer
	if o.summarize != nil && o.summarize.NeedsSummary(answer) {
		summary, sumErr := o.summarize.Summarize(ctx, apiKey, answer)
		if sumErr != nil {
			// Better a long answer than no answer
			log.Printf("⚠️  [ORCHESTRATOR] Summarization failed for session %s: %v", sessionID, sumErr)
		} else {
			answer = summary
		}
	}

	authGate := o.evaluateAuthGate(ctx, session, usage.Label)

	messageID := uuid.NewString()
	o.buffers.Append(sessionID, question, answer)

	if o.store != nil {
		o.store.SaveTurnAsync(session.OrgID, &models.TurnRecord{
			SessionID: sessionID,
			Question:  question,
			Answer:    answer,
			MessageID: messageID,
			ToolLabel: string(usage.Label),
			Timestamp: time.Now().UTC(),
		})
	}

	turnLog := logging.WithTurn(logging.WithSession(sessionID, session.OrgID, session.UserID), messageID)
	turnLog.Info("turn completed",
		"tool_label", string(usage.Label),
		"auth_granted", authGate.Granted,
		"answer_words", WordCount(answer),
	)

	return &models.TurnResult{
		Answer:    answer,
		MessageID: messageID,
		ToolUsage: usage,
		AuthGate:  authGate,
	}, nil
}

// buildMessages assembles system instructions, retrieved context, the
// session's short-term history, and the new question.
func (o *Orchestrator) buildMessages(ctx context.Context, session *models.Session, question string, userInfo map[string]string) []map[string]interface{} {
	now := time.Now().Format("Monday, 02 January 2006, 03:04 PM")
	systemPrompt := fmt.Sprintf(systemPromptTemplate, o.maxTokens, now, userInfoPrompt(userInfo))

	messages := []map[string]interface{}{
		{"role": "system", "content": systemPrompt},
	}

	if o.retriever != nil {
		passages, err := o.retriever.Retrieve(ctx, session.OrgID, question)
		if err != nil {
			// Retrieval is best-effort at this stage; the model can still
			// reach the knowledge base through its tool
			log.Printf("⚠️  [ORCHESTRATOR] Context retrieval failed for session %s: %v", session.SessionID, err)
		} else if len(passages) > 0 {
			messages = append(messages, map[string]interface{}{
				"role":    "system",
				"content": "Context: " + strings.Join(passages, "\n"),
			})
		}
	}

	for _, entry := range o.history(ctx, session) {
		messages = append(messages, map[string]interface{}{
			"role":    entry.Role,
			"content": entry.Content,
		})
	}

	return append(messages, map[string]interface{}{
		"role":    "user",
		"content": question,
	})
}

// history returns the session's buffered turns, warming a cold buffer from
// the durable conversation log first.
func (o *Orchestrator) history(ctx context.Context, session *models.Session) []models.BufferEntry {
	entries := o.buffers.AsHistory(session.SessionID)
	if len(entries) > 0 || o.store == nil {
		return entries
	}

	records, err := o.store.RecentHistory(ctx, session.OrgID, session.SessionID, o.bufferTurns)
	if err != nil {
		log.Printf("⚠️  [ORCHESTRATOR] History reload failed for session %s: %v", session.SessionID, err)
		return entries
	}
	for _, rec := range records {
		o.buffers.Append(session.SessionID, rec.Question, rec.Answer)
	}
	return o.buffers.AsHistory(session.SessionID)
}

// runModelLoop is the ModelCall/ToolDispatch cycle. It terminates with a
// direct answer, a turn failure, or ErrToolRoundsExceeded once the model
// has requested tools maxToolRounds times.
func (o *Orchestrator) runModelLoop(ctx context.Context, turnCtx *tools.TurnContext, messages []map[string]interface{}) (string, models.ToolUsage, error) {
	retrievalUsed := make(map[string]bool)
	transactionalUsed := make(map[string]bool)

	req := &CompletionRequest{
		Model:       o.model,
		Messages:    messages,
		Tools:       o.registry.Specs(),
		MaxTokens:   o.maxTokens,
		Temperature: 0,
	}

	for round := 0; round <= o.maxToolRounds; round++ {
		completion, err := o.llm.Complete(ctx, turnCtx.APIKey, req)
		if err != nil {
			return "", classify(retrievalUsed, transactionalUsed), err
		}

		if len(completion.ToolCalls) == 0 {
			answer := strings.TrimSpace(completion.Text)
			if answer == "" {
				return "", classify(retrievalUsed, transactionalUsed), fmt.Errorf("%w: empty answer", ErrUpstreamUnavailable)
			}
			return answer, classify(retrievalUsed, transactionalUsed), nil
		}

		if round == o.maxToolRounds {
			break
		}

		log.Printf("🔧 [ORCHESTRATOR] Round %d/%d: model requested %d tool call(s)",
			round+1, o.maxToolRounds, len(completion.ToolCalls))

		// Echo the assistant's tool request into the transcript first
		toolCallsMsg := make([]map[string]interface{}, 0, len(completion.ToolCalls))
		for _, tc := range completion.ToolCalls {
			toolCallsMsg = append(toolCallsMsg, map[string]interface{}{
				"id":   tc.ID,
				"type": "function",
				"function": map[string]interface{}{
					"name":      tc.Name,
					"arguments": tc.Arguments,
				},
			})
		}
		assistantMsg := map[string]interface{}{
			"role":       "assistant",
			"tool_calls": toolCallsMsg,
		}
		if completion.Text != "" {
			assistantMsg["content"] = completion.Text
		}
		req.Messages = append(req.Messages, assistantMsg)

		for _, tc := range completion.ToolCalls {
			result, kind, err := o.registry.Dispatch(ctx, turnCtx, tc.Name, tc.Arguments)
			if err != nil {
				if kind == "" {
					// Unknown tool name: the turn fails rather than guessing
					return "", classify(retrievalUsed, transactionalUsed), err
				}
				// A failing known tool feeds its error back to the model
				log.Printf("⚠️  [ORCHESTRATOR] %v", err)
				result = fmt.Sprintf("Error: %v", err)
			}

			switch kind {
			case tools.KindRetrieval:
				retrievalUsed[tc.Name] = true
			case tools.KindTransactional:
				transactionalUsed[tc.Name] = true
			}
			if o.metrics != nil {
				o.metrics.ToolInvocations.WithLabelValues(tc.Name).Inc()
			}

			req.Messages = append(req.Messages, map[string]interface{}{
				"role":         "tool",
				"tool_call_id": tc.ID,
				"name":         tc.Name,
				"content":      result,
			})
		}
	}

	return "", classify(retrievalUsed, transactionalUsed),
		fmt.Errorf("%w (%d rounds)", ErrToolRoundsExceeded, o.maxToolRounds)
}

// evaluateAuthGate applies the re-authentication rule for transactional
// turns: gate enabled + transactional tool used + last grant absent or older
// than the reset window means this turn is granted and stamps the clock.
func (o *Orchestrator) evaluateAuthGate(ctx context.Context, session *models.Session, label models.ToolUsageLabel) *models.AuthGate {
	gate := &models.AuthGate{}

	transactional := label == models.ToolUsageTransactional || label == models.ToolUsageBoth
	if !transactional {
		return gate
	}

	enabled := false
	if o.orgs != nil {
		var err error
		enabled, err = o.orgs.AuthGateEnabled(ctx, session.OrgID)
		if err != nil {
			log.Printf("⚠️  [ORCHESTRATOR] Auth toggle lookup failed for org %s: %v", session.OrgID, err)
			return gate
		}
	}
	if !enabled {
		return gate
	}

	now := time.Now().UTC()
	lastAuth, err := o.sessions.LastAuthAt(ctx, session.SessionID)
	if err != nil {
		log.Printf("⚠️  [ORCHESTRATOR] Last-auth lookup failed for session %s: %v", session.SessionID, err)
		return gate
	}

	if lastAuth != nil {
		gate.MinutesSince = now.Sub(*lastAuth).Minutes()
	}

	if lastAuth == nil || now.Sub(*lastAuth) > o.authReset {
		gate.Granted = true
		if err := o.sessions.RecordAuthGrant(ctx, session.SessionID, now); err != nil {
			log.Printf("⚠️  [ORCHESTRATOR] Failed to record auth grant for session %s: %v", session.SessionID, err)
		}
	}
	return gate
}

// classify derives the turn's tool-usage label from the categories invoked
func classify(retrievalUsed, transactionalUsed map[string]bool) models.ToolUsage {
	usage := models.ToolUsage{
		Retrieval:     sortedKeys(retrievalUsed),
		Transactional: sortedKeys(transactionalUsed),
	}

	switch {
	case len(retrievalUsed) > 0 && len(transactionalUsed) > 0:
		usage.Label = models.ToolUsageBoth
	case len(retrievalUsed) > 0:
		usage.Label = models.ToolUsageRetrieval
	case len(transactionalUsed) > 0:
		usage.Label = models.ToolUsageTransactional
	default:
		usage.Label = models.ToolUsageNone
	}
	return usage
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func userInfoPrompt(userInfo map[string]string) string {
	if len(userInfo) == 0 {
		return ""
	}
	parts := make([]string, 0, len(userInfo))
	for _, k := range sortedStringMapKeys(userInfo) {
		parts = append(parts, fmt.Sprintf("%s: %s", k, userInfo[k]))
	}
	return "\nUser info: " + strings.Join(parts, ", ")
}

func sortedStringMapKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (o *Orchestrator) countError(errorType string) {
	if o.metrics != nil {
		o.metrics.TurnErrors.WithLabelValues(errorType).Inc()
	}
}

// RunTurnStream answers one question on the streaming path, pushing each
// model text fragment through onDelta. Tools are not available here; the
// context comes from retrieval up front, matching the non-agent ask flow.
func (o *Orchestrator) RunTurnStream(ctx context.Context, sessionID, question string, userInfo map[string]string, onDelta func(string)) (*models.TurnResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("empty question")
	}

	if !o.sessions.IsValid(ctx, sessionID) {
		o.countError("unknown_session")
		return nil, ErrUnknownSession
	}
	session, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		o.countError("unknown_session")
		return nil, ErrUnknownSession
	}

	apiKey, ok := o.pool.KeyFor(sessionID)
	if !ok {
		apiKey, err = o.pool.Assign(sessionID)
		if err != nil {
			o.countError("no_credential")
			return nil, ErrNoCredential
		}
	}

	req := &CompletionRequest{
		Model:       o.model,
		Messages:    o.buildMessages(ctx, session, question, userInfo),
		MaxTokens:   o.maxTokens,
		Temperature: 0,
	}

	answer, err := o.llm.CompleteStream(ctx, apiKey, req, onDelta)
	if err != nil {
		o.countError("upstream")
		return nil, err
	}

	messageID := uuid.NewString()
	o.buffers.Append(sessionID, question, answer)

	if o.store != nil {
		o.store.SaveTurnAsync(session.OrgID, &models.TurnRecord{
			SessionID: sessionID,
			Question:  question,
			Answer:    answer,
			MessageID: messageID,
			Timestamp: time.Now().UTC(),
		})
	}

	return &models.TurnResult{
		Answer:    answer,
		MessageID: messageID,
		ToolUsage: models.ToolUsage{Label: models.ToolUsageNone},
	}, nil
}

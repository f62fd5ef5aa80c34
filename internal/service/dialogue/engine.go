package dialogue

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/voralis/skycast/backend/internal/config"
	"github.com/voralis/skycast/backend/internal/model/chat"
	"github.com/voralis/skycast/backend/internal/service/ai"
	chatservice "github.com/voralis/skycast/backend/internal/service/chat"
	"github.com/voralis/skycast/backend/internal/tools"
)

// FallbackMessage is emitted when a turn cannot produce a real answer:
// the model failed, returned nothing, or kept requesting tools past the
// round limit.
const FallbackMessage = "I'm sorry, I couldn't process that request."

// ModelStreamer is the model capability boundary: full history in,
// incremental response out. The response either carries text content or
// requests tool calls; the engine treats both purely mechanically.
type ModelStreamer interface {
	Stream(ctx context.Context, history []*schema.Message) (*schema.StreamReader[*schema.Message], error)
}

// Engine drives one dialogue turn at a time per session: it replays
// history into the model, dispatches requested tool calls, and fans the
// model's text out to the caller as it arrives.
type Engine struct {
	chatSvc       *chatservice.Service
	model         ModelStreamer
	registry      *tools.Registry
	maxToolRounds int
	turnTimeout   time.Duration
	now           func() time.Time
}

// NewEngine wires the engine over the session store, model capability
// and tool registry.
func NewEngine(chatSvc *chatservice.Service, model ModelStreamer, registry *tools.Registry, cfg config.DialogueConfig) *Engine {
	return &Engine{
		chatSvc:       chatSvc,
		model:         model,
		registry:      registry,
		maxToolRounds: cfg.MaxToolRounds,
		turnTimeout:   cfg.TurnTimeout,
		now:           time.Now,
	}
}

// HandleTurn processes one user input to completion. The returned
// stream yields text fragments in generation order and is closed when
// the turn ends. A second call for the same session while a turn is in
// flight fails with chatservice.ErrSessionBusy.
//
// The turn itself runs on a detached context bounded by the turn
// timeout: if the caller goes away mid-stream, fragments stop being
// forwarded but the turn still finishes and persists its messages, so a
// dispatched tool call never ends up without its result in history.
func (e *Engine) HandleTurn(ctx context.Context, sessionID, userText string) (*schema.StreamReader[string], error) {
	if _, err := e.chatSvc.GetOrCreateSession(ctx, sessionID); err != nil {
		return nil, err
	}

	if err := e.chatSvc.BeginTurn(sessionID); err != nil {
		return nil, err
	}

	if err := e.chatSvc.AppendMessage(ctx, chat.Message{
		SessionID: sessionID,
		Role:      chat.RoleUser,
		Content:   userText,
	}); err != nil {
		e.chatSvc.EndTurn(sessionID)
		return nil, err
	}

	reader, writer := schema.Pipe[string](8)
	turnCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.turnTimeout)

	go func() {
		defer cancel()
		defer writer.Close()
		// Free the turn slot before the stream closes so a caller that
		// saw EOF can immediately start the next turn.
		defer e.chatSvc.EndTurn(sessionID)
		e.runTurn(turnCtx, sessionID, writer)
	}()

	return reader, nil
}

// runTurn executes the bounded model/tool loop. Nothing in the model
// capability contract guarantees termination, so the round limit
// converts a potentially endless tool-call chain into a deterministic
// worst case ending in the fallback message.
//
// The shown accumulator collects every fragment forwarded during the
// turn, across all rounds. The turn's final assistant message is
// persisted as exactly that accumulation, so a transcript always
// matches what the caller saw, even when the model prefaced a tool
// call with text or failed after streaming a partial answer.
func (e *Engine) runTurn(ctx context.Context, sessionID string, out *schema.StreamWriter[string]) {
	forwarding := true
	var shown strings.Builder

	for round := 0; round < e.maxToolRounds; round++ {
		history, err := e.buildHistory(ctx, sessionID)
		if err != nil {
			log.Printf("[dialogue] failed to build history for session=%s: %v", sessionID, err)
			e.finishWith(ctx, sessionID, out, &forwarding, &shown)
			return
		}

		stream, err := e.model.Stream(ctx, history)
		if err != nil {
			log.Printf("[dialogue] model call failed for session=%s: %v", sessionID, err)
			e.finishWith(ctx, sessionID, out, &forwarding, &shown)
			return
		}

		final, err := e.drainModelStream(stream, out, &forwarding, &shown)
		if err != nil {
			log.Printf("[dialogue] model stream failed for session=%s: %v", sessionID, err)
			e.finishWith(ctx, sessionID, out, &forwarding, &shown)
			return
		}

		if len(final.ToolCalls) > 0 {
			e.runToolCycle(ctx, sessionID, final)
			continue
		}

		if shown.Len() == 0 {
			log.Printf("[dialogue] model produced empty answer for session=%s", sessionID)
			e.finishWith(ctx, sessionID, out, &forwarding, &shown)
			return
		}

		e.appendMessage(ctx, chat.Message{
			SessionID: sessionID,
			Role:      chat.RoleAssistant,
			Content:   shown.String(),
		})
		return
	}

	log.Printf("[dialogue] tool-call round limit reached for session=%s", sessionID)
	e.finishWith(ctx, sessionID, out, &forwarding, &shown)
}

// drainModelStream forwards content chunks to the caller as they
// arrive and returns the concatenated message. Forwarded text is also
// written to the turn's shown accumulator; once the caller is gone the
// accumulator keeps filling so the persisted message stays complete.
func (e *Engine) drainModelStream(stream *schema.StreamReader[*schema.Message], out *schema.StreamWriter[string], forwarding *bool, shown *strings.Builder) (*schema.Message, error) {
	defer stream.Close()

	chunks := make([]*schema.Message, 0, 8)

	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return nil, recvErr
		}
		if chunk == nil {
			continue
		}

		chunks = append(chunks, chunk)
		if chunk.Content != "" {
			shown.WriteString(chunk.Content)
			if *forwarding {
				if closed := out.Send(chunk.Content, nil); closed {
					*forwarding = false
				}
			}
		}
	}

	if len(chunks) == 0 {
		return nil, errors.New("model returned no output")
	}

	return schema.ConcatMessages(chunks)
}

// runToolCycle persists the assistant's tool-call request and one tool
// message per call so the next round can incorporate the results. A
// failed dispatch still appends its result; the model self-corrects.
func (e *Engine) runToolCycle(ctx context.Context, sessionID string, request *schema.Message) {
	e.appendMessage(ctx, chat.Message{
		SessionID: sessionID,
		Role:      chat.RoleAssistant,
		Content:   request.Content,
		ToolCalls: request.ToolCalls,
	})

	for _, call := range request.ToolCalls {
		result := e.registry.Dispatch(ctx, call.Function.Name, call.Function.Arguments)
		if !result.OK() {
			log.Printf("[dialogue] tool %s failed for session=%s: %s", call.Function.Name, sessionID, result.Kind)
		}

		e.appendMessage(ctx, chat.Message{
			SessionID:  sessionID,
			Role:       chat.RoleTool,
			Content:    result.Content,
			ToolName:   call.Function.Name,
			ToolCallID: call.ID,
		})
	}
}

// buildHistory rebuilds the model-facing message sequence from the
// persisted transcript, fronted by the dated system prompt.
func (e *Engine) buildHistory(ctx context.Context, sessionID string) ([]*schema.Message, error) {
	transcript, err := e.chatSvc.LoadTranscript(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	history := make([]*schema.Message, 0, len(transcript)+1)
	history = append(history, schema.SystemMessage(ai.SystemPrompt(e.now())))

	for _, msg := range transcript {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			history = append(history, &schema.Message{
				Role:      schema.Assistant,
				Content:   msg.Content,
				ToolCalls: msg.ToolCalls,
			})
		case chat.RoleTool:
			history = append(history, schema.ToolMessage(msg.Content, msg.ToolCallID, schema.WithToolName(msg.ToolName)))
		}
	}

	return history, nil
}

// finishWith emits the fallback fragment and persists the whole turn's
// output, fallback included, as the final assistant message. Fragments
// streamed before the failure stay part of the persisted content.
func (e *Engine) finishWith(ctx context.Context, sessionID string, out *schema.StreamWriter[string], forwarding *bool, shown *strings.Builder) {
	if *forwarding {
		if closed := out.Send(FallbackMessage, nil); closed {
			*forwarding = false
		}
	}
	shown.WriteString(FallbackMessage)

	e.appendMessage(ctx, chat.Message{
		SessionID: sessionID,
		Role:      chat.RoleAssistant,
		Content:   shown.String(),
	})
}

func (e *Engine) appendMessage(ctx context.Context, message chat.Message) {
	if err := e.chatSvc.AppendMessage(ctx, message); err != nil {
		log.Printf("[dialogue] failed to append %s message for session=%s: %v", message.Role, message.SessionID, err)
	}
}

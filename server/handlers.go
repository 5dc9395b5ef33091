package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/KamdynS/promptline/embeddings"
	"github.com/KamdynS/promptline/llm"
	"github.com/KamdynS/promptline/prompt"
	"github.com/gin-gonic/gin"
)

// ChatRequest is the body of the chat endpoints. Message content uses the
// literal codec: a string or an array of strings.
type ChatRequest struct {
	Messages    []llm.ChatMessage `json:"messages" binding:"required,min=1"`
	Model       string            `json:"model,omitempty"`
	Temperature *float64          `json:"temperature,omitempty"`
	TopP        *float64          `json:"top_p,omitempty"`
	MaxTokens   int               `json:"max_tokens,omitempty" binding:"gte=0"`
	Stop        []string          `json:"stop,omitempty"`
}

// SessionRequest is the body of the session endpoints.
type SessionRequest struct {
	Message string `json:"message" binding:"required"`
}

// MessageView is the wire form of a chat message.
type MessageView struct {
	ID             string              `json:"id,omitempty"`
	Role           llm.Role            `json:"role"`
	Content        string              `json:"content,omitempty"`
	FunctionCall   *FunctionCallView   `json:"function_call,omitempty"`
	FunctionResult *FunctionResultView `json:"function_result,omitempty"`
}

type FunctionCallView struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type FunctionResultView struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ChatResponse is the body returned by POST /v1/chat.
type ChatResponse struct {
	Message    MessageView    `json:"message"`
	StopReason llm.StopReason `json:"stop_reason,omitempty"`
	Usage      *llm.Usage     `json:"usage,omitempty"`
}

// StopView is the data of the final "stop" stream event.
type StopView struct {
	StopReason llm.StopReason `json:"stop_reason,omitempty"`
	State      string         `json:"state"`
}

// EmbeddingsRequest asks for one vector per input string.
type EmbeddingsRequest struct {
	Input []string `json:"input" binding:"required,min=1"`
	Model string   `json:"model,omitempty"`
}

// EmbeddingView is one input and its vector.
type EmbeddingView struct {
	Index     int       `json:"index"`
	Text      string    `json:"text"`
	Embedding []float64 `json:"embedding"`
}

// EmbeddingsResponse lists vectors in input order.
type EmbeddingsResponse struct {
	Model string          `json:"model,omitempty"`
	Data  []EmbeddingView `json:"data"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

func viewOf(m llm.ChatMessage) MessageView {
	v := MessageView{ID: m.ID, Role: m.Role}
	payload, _ := m.Content.FunctionCallOrInvocation()
	switch p := payload.(type) {
	case prompt.FunctionCall:
		v.FunctionCall = &FunctionCallView{Name: p.Name, Arguments: p.Arguments}
		return v
	case prompt.FunctionInvocation:
		v.FunctionResult = &FunctionResultView{Name: p.Name, Value: p.Result.RawValue}
		return v
	}
	if text, err := m.Content.StripToText(); err == nil {
		v.Content = text
	}
	return v
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "model": s.deps.Services.Model(), "time": time.Now().UTC().Format(time.RFC3339)})
}

func (s *Server) bindChat(c *gin.Context) (*llm.ChatPrompt, *llm.ChatParameters, bool) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request: " + err.Error()})
		return nil, nil, false
	}
	p := llm.NewChatPrompt(req.Messages...)
	if req.Model != "" {
		if _, err := llm.ParseModelIdentifier(req.Model); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return nil, nil, false
		}
		p.Context = prompt.With(p.Context, prompt.ModelKey, req.Model)
	}
	params := &llm.ChatParameters{TokenLimit: req.MaxTokens, Temperature: req.Temperature, TopP: req.TopP, Stops: req.Stop}
	if err := params.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return nil, nil, false
	}
	return p, params, true
}

func (s *Server) chat(c *gin.Context) {
	p, params, ok := s.bindChat(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.config.RequestTimeout)
	defer cancel()
	cc, err := llm.CompleteChat(ctx, s.deps.Services, p, params)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ChatResponse{Message: viewOf(cc.Message), StopReason: cc.StopReason, Usage: cc.Usage})
}

// chatStream streams message snapshots as "message" events and ends with
// "stop" or "error". The upstream is canceled when the client goes away.
func (s *Server) chatStream(c *gin.Context) {
	p, params, ok := s.bindChat(c)
	if !ok {
		return
	}
	stream, err := s.deps.Services.StreamChat(c.Request.Context(), p, params)
	if err != nil {
		s.fail(c, err)
		return
	}
	events, err := stream.Events(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	w := newSSEWriter(c)
	for ev := range events {
		if ev.Message != nil {
			w.event("message", viewOf(*ev.Message))
		}
	}
	if _, err := stream.Wait(c.Request.Context()); err != nil {
		if c.Request.Context().Err() == nil {
			s.log.Warn().Err(err).Str("stream_id", stream.ID()).Msg("completion stream failed")
			w.event("error", ErrorResponse{Error: err.Error()})
		}
		return
	}
	w.event("stop", StopView{StopReason: stream.StopReason(), State: stream.State().String()})
}

func (s *Server) embed(c *gin.Context) {
	var req EmbeddingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request: " + err.Error()})
		return
	}
	var model *llm.ModelIdentifier
	if req.Model != "" {
		id, err := llm.ParseModelIdentifier(req.Model)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		model = &id
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.config.RequestTimeout)
	defer cancel()
	res, err := embeddings.TextEmbeddings(ctx, s.deps.Embeddings, model, req.Input...)
	if err != nil {
		s.fail(c, err)
		return
	}
	out := EmbeddingsResponse{Data: make([]EmbeddingView, len(res.Data))}
	if !res.Model.IsZero() {
		out.Model = res.Model.String()
	}
	for i, p := range res.Data {
		out.Data[i] = EmbeddingView{Index: i, Text: p.Text, Embedding: p.Vector}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) sessionMessage(c *gin.Context) {
	var req SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request: " + err.Error()})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.config.RequestTimeout)
	defer cancel()
	msg, err := s.deps.Agent.Run(ctx, c.Param("id"), llm.UserText(req.Message))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ChatResponse{Message: viewOf(msg)})
}

func (s *Server) sessionStream(c *gin.Context) {
	var req SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request: " + err.Error()})
		return
	}
	ctx := c.Request.Context()
	out := make(chan llm.ChatMessage)
	errc := make(chan error, 1)
	go func() { errc <- s.deps.Agent.RunStream(ctx, c.Param("id"), llm.UserText(req.Message), out) }()

	w := newSSEWriter(c)
	for m := range out {
		w.event("message", viewOf(m))
	}
	if err := <-errc; err != nil {
		if ctx.Err() == nil {
			w.event("error", ErrorResponse{Error: err.Error()})
		}
		return
	}
	w.event("stop", StopView{State: llm.StateCompleted.String()})
}

func (s *Server) sessionTranscript(c *gin.Context) {
	msgs, err := s.deps.Store.Messages(c.Request.Context(), c.Param("id"), 0)
	if err != nil {
		s.fail(c, err)
		return
	}
	views := make([]MessageView, len(msgs))
	for i, m := range msgs {
		views[i] = viewOf(m)
	}
	c.JSON(http.StatusOK, gin.H{"session_id": c.Param("id"), "messages": views})
}

func (s *Server) deleteSession(c *gin.Context) {
	if err := s.deps.Store.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// fail maps errors to status codes.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, llm.ErrUnsupportedPrompt), errors.Is(err, llm.ErrUnsupportedParameters),
		errors.Is(err, prompt.ErrIllegal), errors.Is(err, prompt.ErrConflictingContext):
		status = http.StatusBadRequest
	case errors.Is(err, embeddings.ErrModelMismatch):
		status = http.StatusBadRequest
	case errors.Is(err, prompt.ErrUnimplemented):
		status = http.StatusNotImplemented
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	s.log.Warn().Err(err).Int("status", status).Msg("request failed")
	c.JSON(status, ErrorResponse{Error: err.Error()})
}

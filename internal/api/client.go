package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mockmate/mockmate/internal/interview"
)

const defaultTimeout = 20 * time.Second

// Client is the typed REST client for the interview backend. Every call is
// bounded by the configured timeout, so a slow backend surfaces as a
// retryable error instead of a hang.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a client for the backend at baseURL. A non-positive
// timeout falls back to 20s.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// FetchInterviewDetail resolves the interview record, including its
// participant list, at session bootstrap.
func (c *Client) FetchInterviewDetail(ctx context.Context, interviewID string) (interview.Detail, error) {
	var detail interview.Detail
	err := c.do(ctx, http.MethodGet, "/interviews/"+url.PathEscape(interviewID), nil, &detail)
	if err != nil {
		return interview.Detail{}, fmt.Errorf("fetch interview detail: %w", err)
	}
	return detail, nil
}

// GetSession fetches an existing session by id.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*interview.Session, error) {
	var s interview.Session
	err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(sessionID), nil, &s)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}

// GenerateQuestions asks the AI backend for a fresh question set and returns
// the newly created session.
func (c *Client) GenerateQuestions(ctx context.Context, interviewID, memberInterviewID string) (*interview.Session, error) {
	path := fmt.Sprintf("/interviews/%s/members/%s/sessions",
		url.PathEscape(interviewID), url.PathEscape(memberInterviewID))
	var s interview.Session
	if err := c.do(ctx, http.MethodPost, path, struct{}{}, &s); err != nil {
		return nil, fmt.Errorf("generate questions: %w", err)
	}
	return &s, nil
}

// SaveAnswer persists a typed main-question answer. Voice answers are
// persisted incrementally by the transcription backend and skip this call.
func (c *Client) SaveAnswer(ctx context.Context, sessionID string, question int, answer string) error {
	path := fmt.Sprintf("/sessions/%s/questions/%d/answer", url.PathEscape(sessionID), question)
	body := struct {
		Answer string `json:"answer"`
	}{Answer: answer}
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("save answer: %w", err)
	}
	return nil
}

// GenerateFollowUps requests follow-up generation for an answered question and
// returns the updated session with the new follow-ups appended.
func (c *Client) GenerateFollowUps(ctx context.Context, sessionID string, question int) (*interview.Session, error) {
	path := fmt.Sprintf("/sessions/%s/questions/%d/follow-ups", url.PathEscape(sessionID), question)
	var s interview.Session
	if err := c.do(ctx, http.MethodPost, path, struct{}{}, &s); err != nil {
		return nil, fmt.Errorf("generate follow-ups: %w", err)
	}
	return &s, nil
}

// SaveFollowUpAnswer persists a typed follow-up answer.
func (c *Client) SaveFollowUpAnswer(ctx context.Context, sessionID string, question, followUp int, answer string) error {
	path := fmt.Sprintf("/sessions/%s/questions/%d/follow-ups/%d/answer",
		url.PathEscape(sessionID), question, followUp)
	body := struct {
		Answer string `json:"answer"`
	}{Answer: answer}
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("save follow-up answer: %w", err)
	}
	return nil
}

// GenerateFeedback requests per-question feedback once every follow-up for
// the question has been answered.
func (c *Client) GenerateFeedback(ctx context.Context, sessionID string, question int) error {
	path := fmt.Sprintf("/sessions/%s/questions/%d/feedback", url.PathEscape(sessionID), question)
	if err := c.do(ctx, http.MethodPost, path, struct{}{}, nil); err != nil {
		return fmt.Errorf("generate feedback: %w", err)
	}
	return nil
}

// GenerateFinalReport requests the session-wide report synthesis.
func (c *Client) GenerateFinalReport(ctx context.Context, sessionID string) (*interview.Report, error) {
	var report interview.Report
	if err := c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/report", struct{}{}, &report); err != nil {
		return nil, fmt.Errorf("generate final report: %w", err)
	}
	return &report, nil
}

// FetchGroupCursor reads the server-owned shared cursor for a group
// interview.
func (c *Client) FetchGroupCursor(ctx context.Context, interviewID string) (interview.GroupCursor, error) {
	var gc interview.GroupCursor
	if err := c.do(ctx, http.MethodGet, "/interviews/"+url.PathEscape(interviewID)+"/cursor", nil, &gc); err != nil {
		return interview.GroupCursor{}, fmt.Errorf("fetch group cursor: %w", err)
	}
	return gc, nil
}

// FetchAudio streams a remote audio resource. The caller owns the returned
// body and must close it. Safe to call concurrently for distinct paths.
func (c *Client) FetchAudio(ctx context.Context, remotePath string) (io.ReadCloser, error) {
	target := remotePath
	if !strings.HasPrefix(remotePath, "http://") && !strings.HasPrefix(remotePath, "https://") {
		target = c.baseURL + "/audio/" + url.PathEscape(remotePath)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch audio: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch audio: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		return nil, fmt.Errorf("fetch audio: %w", decodeError(resp))
	}
	return resp.Body, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	c.setHeaders(req)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return decodeError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{
		Status:    resp.StatusCode,
		RequestID: resp.Header.Get("X-Request-ID"),
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err == nil && len(raw) > 0 {
		// Best effort: keep the status-derived message if the body
		// isn't the expected envelope.
		_ = json.Unmarshal(raw, apiErr)
	}
	return apiErr
}

// Package transcription maintains the live speech-to-text channel: raw audio
// frames stream in, transcribed text streams out. Each connection is bound
// server-side to exactly one question or follow-up slot.
package transcription

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	readyPollInterval = 100 * time.Millisecond
	readyPollLimit    = 50
)

// ErrNotConnected is returned when audio is sent before the transport
// reports itself open.
var ErrNotConnected = errors.New("transcription channel not connected")

// ErrReadyTimeout is returned when the transport does not open within the
// bounded ready wait.
var ErrReadyTimeout = errors.New("transcription channel ready wait timed out")

// Params scope one connection. Changing the question or follow-up index means
// a different server-side slot, so the channel must reconnect.
type Params struct {
	InterviewID       string
	MemberInterviewID string
	SessionID         string
	QuestionIndex     int
	FollowUpIndex     int
}

type serverFrame struct {
	Text   string `json:"text,omitempty"`
	Status string `json:"status,omitempty"`
}

// Channel is the duplex transcription connection. All methods are safe for
// concurrent use.
type Channel struct {
	endpoint string
	dialer   *websocket.Dialer

	mu         sync.Mutex
	conn       *websocket.Conn
	params     Params
	gen        int
	open       bool
	dialing    bool
	processing bool
	transcript strings.Builder
}

// NewChannel builds a channel that dials the given ws:// or wss:// endpoint.
func NewChannel(endpoint string) *Channel {
	return &Channel{
		endpoint: endpoint,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Connect opens a connection scoped to params. Already connected (or
// connecting) with identical params it is a no-op; otherwise any existing
// connection is closed first so a stale slot can never leak transcript text
// into the new one. The dial completes in the background; use
// ConnectAndAwaitReady before sending audio.
func (c *Channel) Connect(params Params) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if (c.open || c.dialing) && c.params == params {
		return
	}

	c.closeLocked()
	c.params = params
	c.gen++
	c.dialing = true
	c.transcript.Reset()
	c.processing = false

	go c.dial(params, c.gen)
}

// ConnectAndAwaitReady connects for params and blocks until the transport
// reports itself open, polling at a bounded interval. Exceeding the bound is
// a failure, not an infinite wait.
func (c *Channel) ConnectAndAwaitReady(params Params) error {
	c.Connect(params)

	for i := 0; i < readyPollLimit; i++ {
		c.mu.Lock()
		open := c.open && c.params == params
		c.mu.Unlock()
		if open {
			return nil
		}
		time.Sleep(readyPollInterval)
	}
	return ErrReadyTimeout
}

// SendAudio streams one binary audio frame to the transcription backend.
func (c *Channel) SendAudio(frame []byte) error {
	c.mu.Lock()
	conn, open := c.conn, c.open
	c.mu.Unlock()

	if !open || conn == nil {
		return ErrNotConnected
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("send audio frame: %w", err)
	}
	return nil
}

// Transcript returns the text accumulated for the current slot.
func (c *Channel) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript.String()
}

// ResetTranscript clears the accumulated text, typically after a successful
// submit.
func (c *Channel) ResetTranscript() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transcript.Reset()
}

// Processing reports whether the backend is still transcribing buffered
// audio; submit controls should stay disabled while true.
func (c *Channel) Processing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processing
}

// Connected reports whether the transport is currently open.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Disconnect closes the connection. Idempotent, always safe.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	c.gen++
}

func (c *Channel) closeLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.open = false
	c.dialing = false
}

func (c *Channel) dial(params Params, gen int) {
	query := url.Values{}
	query.Set("interview_id", params.InterviewID)
	query.Set("member_interview_id", params.MemberInterviewID)
	query.Set("session_id", params.SessionID)
	query.Set("question_index", strconv.Itoa(params.QuestionIndex))
	query.Set("follow_up_index", strconv.Itoa(params.FollowUpIndex))

	conn, _, err := c.dialer.Dial(c.endpoint+"?"+query.Encode(), nil)

	c.mu.Lock()
	if c.gen != gen {
		// A newer Connect or Disconnect superseded this dial.
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	c.dialing = false
	if err != nil {
		c.mu.Unlock()
		log.Printf("transcription: dial %d_%d: %v", params.QuestionIndex, params.FollowUpIndex, err)
		return
	}
	c.conn = conn
	c.open = true
	c.mu.Unlock()

	go c.readLoop(conn, gen)
}

func (c *Channel) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if c.gen == gen {
				c.closeLocked()
			}
			c.mu.Unlock()
			return
		}

		var frame serverFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			log.Printf("transcription: malformed frame: %v", err)
			continue
		}
		c.apply(frame, gen)
	}
}

func (c *Channel) apply(frame serverFrame, gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Frames from a superseded connection must not touch the transcript.
	if c.gen != gen {
		return
	}

	switch {
	case frame.Text != "":
		if c.transcript.Len() > 0 {
			c.transcript.WriteString(" ")
		}
		c.transcript.WriteString(frame.Text)
		c.processing = false
	case frame.Status == "processing":
		c.processing = true
	case frame.Status == "end":
		c.processing = false
	}
}

package session

import (
	"context"

	"github.com/mockmate/mockmate/internal/interview"
	"github.com/mockmate/mockmate/internal/transcription"
)

// Backend is the interview backend's surface as the state machine consumes
// it. The REST client implements it; tests substitute mocks.
type Backend interface {
	FetchInterviewDetail(ctx context.Context, interviewID string) (interview.Detail, error)
	GetSession(ctx context.Context, sessionID string) (*interview.Session, error)
	GenerateQuestions(ctx context.Context, interviewID, memberInterviewID string) (*interview.Session, error)
	SaveAnswer(ctx context.Context, sessionID string, question int, answer string) error
	SaveFollowUpAnswer(ctx context.Context, sessionID string, question, followUp int, answer string) error
	GenerateFollowUps(ctx context.Context, sessionID string, question int) (*interview.Session, error)
	GenerateFeedback(ctx context.Context, sessionID string, question int) error
	GenerateFinalReport(ctx context.Context, sessionID string) (*interview.Report, error)
}

// AudioPrefetcher loads spoken-question audio ahead of playback.
type AudioPrefetcher interface {
	PrefetchSession(ctx context.Context, s *interview.Session)
	PrefetchFollowUps(ctx context.Context, s *interview.Session, question int)
}

// Transcriber is the live speech-to-text channel as the machine drives it:
// reconnected on every cursor move, read for auto-submit text.
type Transcriber interface {
	ConnectAndAwaitReady(params transcription.Params) error
	Transcript() string
	ResetTranscript()
	Disconnect()
}

// DraftStore preserves answer text across failed submits and restarts.
type DraftStore interface {
	Save(sessionID string, question, followUp int, text string) error
	Load(sessionID string, question, followUp int) (string, error)
	Clear(sessionID string, question, followUp int) error
}

// CursorFeed is the server-pushed shared cursor for group interviews.
type CursorFeed interface {
	FetchGroupCursor(ctx context.Context, interviewID string) (interview.GroupCursor, error)
}

// EventSink receives state-machine notifications for the presentation layer.
type EventSink interface {
	StatusChanged(status interview.ReadyStatus)
	CursorAdvanced(cursor interview.Cursor)
	TimerTick(remaining int)
	SubmittingChanged(submitting bool)
	ReportReady(report *interview.Report)
	Notice(message string)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) StatusChanged(interview.ReadyStatus) {}
func (NopSink) CursorAdvanced(interview.Cursor)     {}
func (NopSink) TimerTick(int)                       {}
func (NopSink) SubmittingChanged(bool)              {}
func (NopSink) ReportReady(*interview.Report)       {}
func (NopSink) Notice(string)                       {}

var _ EventSink = NopSink{}

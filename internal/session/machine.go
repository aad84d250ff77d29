// Package session drives one interview attempt from bootstrap to final
// report: it owns the session object, the cursor, the readiness phase and
// the answer countdown, and composes the audio cache, the transcription
// channel and the backend into the question/answer/follow-up/feedback flow.
package session

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/mockmate/mockmate/internal/interview"
	"github.com/mockmate/mockmate/internal/transcription"
)

const autoSubmitTimeout = 30 * time.Second

// Machine is the single-participant interview state machine. The session
// object is exclusively owned here; collaborators hand back patches through
// the submission results, never mutate it directly.
type Machine struct {
	backend     Backend
	audio       AudioPrefetcher
	transcriber Transcriber
	drafts      DraftStore
	events      EventSink
	timer       *Timer

	mu                sync.Mutex
	interviewID       string
	memberInterviewID string
	session           *interview.Session
	cursor            interview.Cursor
	status            interview.ReadyStatus
	draft             string
	submitting        bool
	reportInFlight    bool
}

// NewMachine wires the state machine. transcriber and drafts may be nil
// (typed-only answering, no draft persistence); events may be nil.
func NewMachine(backend Backend, audio AudioPrefetcher, transcriber Transcriber, drafts DraftStore, events EventSink, answerSeconds int) *Machine {
	if events == nil {
		events = NopSink{}
	}

	m := &Machine{
		backend:     backend,
		audio:       audio,
		transcriber: transcriber,
		drafts:      drafts,
		events:      events,
		status:      interview.StatusInit,
		cursor:      interview.Cursor{Question: 0, FollowUp: interview.MainQuestion},
	}
	m.timer = NewTimer(answerSeconds, events.TimerTick, m.autoSubmit)
	return m
}

// Start bootstraps the session: resolve the acting participant, get or
// create the session, preload the currently-known audio, then open for
// answering. A known sessionID makes bootstrap idempotent: the existing
// session is fetched, falling back to generation only if the fetch fails.
// Errors from Start are fatal; the caller should navigate away.
func (m *Machine) Start(ctx context.Context, interviewID, sessionID string) error {
	m.setStatus(interview.StatusFetchingDetail)

	detail, err := m.backend.FetchInterviewDetail(ctx, interviewID)
	if err != nil {
		m.setStatus(interview.StatusError)
		return err
	}
	if len(detail.Participants) == 0 {
		m.setStatus(interview.StatusError)
		return ErrNoParticipant
	}

	m.mu.Lock()
	m.interviewID = interviewID
	m.memberInterviewID = detail.Participants[0].MemberInterviewID
	member := m.memberInterviewID
	m.mu.Unlock()

	m.setStatus(interview.StatusGeneratingSession)

	var s *interview.Session
	if sessionID != "" {
		s, err = m.backend.GetSession(ctx, sessionID)
		if err != nil {
			log.Printf("session: fetch %s failed, generating a new session: %v", sessionID, err)
			s = nil
		}
	}
	if s == nil {
		s, err = m.backend.GenerateQuestions(ctx, interviewID, member)
		if err != nil {
			m.setStatus(interview.StatusError)
			return err
		}
	}

	m.mu.Lock()
	m.session = s
	m.cursor = s.Cursor
	cursor := m.cursor
	m.mu.Unlock()

	m.setStatus(interview.StatusPreloadingAudio)
	// Blocks only this initial entry; mid-interview loads happen in the
	// background.
	m.audio.PrefetchSession(ctx, s)

	if s.Finished(cursor) {
		m.checkFinished()
		return nil
	}

	m.setStatus(interview.StatusReady)
	m.restoreDraft()
	m.timer.Reset()
	m.syncChannel(cursor)
	return nil
}

// SubmitAnswer submits the main-question answer at the cursor. When the
// answer arrived through the transcription channel it was already persisted
// incrementally server-side, so persistedAsText is false and the save call
// is skipped. On success the cursor enters follow-up mode, or, when the
// backend generated no follow-ups, the question completes immediately with
// feedback generation.
func (m *Machine) SubmitAnswer(ctx context.Context, answer string, persistedAsText bool) error {
	sessionID, q, err := m.beginSubmit(true)
	if err != nil {
		return err
	}
	defer m.endSubmit()

	m.timer.Stop()

	if persistedAsText {
		if err := m.backend.SaveAnswer(ctx, sessionID, q, answer); err != nil {
			m.submitFailed(q, interview.MainQuestion, answer, "Could not save your answer. Please try again.")
			return err
		}
	}

	updated, err := m.backend.GenerateFollowUps(ctx, sessionID, q)
	if err != nil {
		m.submitFailed(q, interview.MainQuestion, answer, "Could not prepare follow-up questions. Please try again.")
		return err
	}

	m.mu.Lock()
	m.session = updated
	entry := updated.Entry(q)
	if entry != nil && entry.Answer == "" {
		entry.Answer = answer
	}
	hasFollowUps := entry != nil && len(entry.FollowUps) > 0
	if hasFollowUps {
		m.cursor.FollowUp = 0
	}
	m.mu.Unlock()

	m.clearDraft(q, interview.MainQuestion)

	if !hasFollowUps {
		// Zero follow-ups: submitting the main answer completes the
		// question, so feedback is generated right away instead of
		// waiting for follow-ups that will never arrive.
		return m.completeQuestion(ctx, q)
	}

	go m.audio.PrefetchFollowUps(context.Background(), updated, q)
	m.afterCursorMove()
	return nil
}

// SubmitFollowUpAnswer submits the follow-up answer at the cursor. The last
// follow-up of a question additionally triggers feedback generation before
// the cursor moves to the next question.
func (m *Machine) SubmitFollowUpAnswer(ctx context.Context, answer string, persistedAsText bool) error {
	sessionID, _, err := m.beginSubmit(false)
	if err != nil {
		return err
	}
	defer m.endSubmit()

	m.mu.Lock()
	q, f := m.cursor.Question, m.cursor.FollowUp
	entry := m.session.Entry(q)
	last := entry == nil || f >= len(entry.FollowUps)-1
	m.mu.Unlock()

	m.timer.Stop()

	if persistedAsText {
		if err := m.backend.SaveFollowUpAnswer(ctx, sessionID, q, f, answer); err != nil {
			m.submitFailed(q, f, answer, "Could not save your answer. Please try again.")
			return err
		}
	}

	m.mu.Lock()
	if entry := m.session.Entry(q); entry != nil && f < len(entry.FollowUps) {
		m.session.QAFlow[q].FollowUps[f].Answer = answer
	}
	m.mu.Unlock()

	m.clearDraft(q, f)

	if last {
		return m.completeQuestion(ctx, q)
	}

	m.mu.Lock()
	m.cursor.FollowUp++
	m.mu.Unlock()
	m.afterCursorMove()
	return nil
}

// RetryFinalReport re-arms the final-report watcher after a failed attempt.
// It never loops on its own; a user action drives each retry.
func (m *Machine) RetryFinalReport() {
	m.checkFinished()
}

// UpdateDraft records the typed answer text for the current slot so a failed
// submit or restart cannot lose it.
func (m *Machine) UpdateDraft(text string) {
	m.mu.Lock()
	m.draft = text
	sessionID := ""
	if m.session != nil {
		sessionID = m.session.SessionID
	}
	q, f := m.cursor.Question, m.cursor.FollowUp
	m.mu.Unlock()

	if m.drafts != nil && sessionID != "" {
		if err := m.drafts.Save(sessionID, q, f, text); err != nil {
			log.Printf("session: save draft: %v", err)
		}
	}
}

// Close stops the countdown and releases the transcription channel.
func (m *Machine) Close() {
	m.timer.Stop()
	if m.transcriber != nil {
		m.transcriber.Disconnect()
	}
}

// Status returns the current readiness phase.
func (m *Machine) Status() interview.ReadyStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Cursor returns the current interview position.
func (m *Machine) Cursor() interview.Cursor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor
}

// Submitting reports whether a submission is in flight.
func (m *Machine) Submitting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submitting
}

// Remaining returns the seconds left on the answer countdown.
func (m *Machine) Remaining() int {
	return m.timer.Remaining()
}

// Session returns the held session for read-only use by the presentation
// layer. The machine remains its exclusive owner.
func (m *Machine) Session() *interview.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Draft returns the preserved answer text for the current slot.
func (m *Machine) Draft() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.draft
}

// CurrentPrompt returns the question text and audio key at the cursor.
func (m *Machine) CurrentPrompt() (text, audioKey string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := m.session.Entry(m.cursor.Question)
	if entry == nil {
		return "", "", false
	}
	if m.cursor.OnMainQuestion() {
		return entry.Question, interview.AudioKey(m.cursor.Question, interview.MainQuestion), true
	}
	if m.cursor.FollowUp < len(entry.FollowUps) {
		fu := entry.FollowUps[m.cursor.FollowUp]
		return fu.Question, interview.AudioKey(m.cursor.Question, m.cursor.FollowUp), true
	}
	return "", "", false
}

func (m *Machine) beginSubmit(mainQuestion bool) (sessionID string, question int, err error) {
	m.mu.Lock()
	if m.status != interview.StatusReady {
		m.mu.Unlock()
		return "", 0, ErrNotReady
	}
	if m.cursor.OnMainQuestion() != mainQuestion {
		m.mu.Unlock()
		return "", 0, ErrWrongSlot
	}
	if m.submitting {
		m.mu.Unlock()
		return "", 0, ErrSubmitInFlight
	}
	m.submitting = true
	sessionID, question = m.session.SessionID, m.cursor.Question
	m.mu.Unlock()

	m.events.SubmittingChanged(true)
	return sessionID, question, nil
}

func (m *Machine) endSubmit() {
	m.mu.Lock()
	m.submitting = false
	m.mu.Unlock()
	m.events.SubmittingChanged(false)
}

// submitFailed reports a transient failure: the cursor stays put, the answer
// text is preserved, and the countdown restarts so the session never wedges.
func (m *Machine) submitFailed(question, followUp int, answer, notice string) {
	m.mu.Lock()
	m.draft = answer
	sessionID := ""
	if m.session != nil {
		sessionID = m.session.SessionID
	}
	m.mu.Unlock()

	if m.drafts != nil && sessionID != "" && answer != "" {
		if err := m.drafts.Save(sessionID, question, followUp, answer); err != nil {
			log.Printf("session: preserve draft: %v", err)
		}
	}
	m.events.Notice(notice)
	m.timer.Reset()
}

// completeQuestion generates feedback for a fully answered question, then
// advances the cursor past it. Feedback must complete (or visibly fail)
// before the cursor moves.
func (m *Machine) completeQuestion(ctx context.Context, question int) error {
	m.mu.Lock()
	sessionID := m.session.SessionID
	m.mu.Unlock()

	if err := m.backend.GenerateFeedback(ctx, sessionID, question); err != nil {
		m.submitFailed(question, interview.MainQuestion, "", "Could not generate feedback for this question. Please try again.")
		return err
	}

	m.mu.Lock()
	m.cursor = interview.Cursor{Question: question + 1, FollowUp: interview.MainQuestion}
	m.mu.Unlock()
	m.afterCursorMove()
	return nil
}

func (m *Machine) afterCursorMove() {
	m.mu.Lock()
	cursor := m.cursor
	finished := m.session.Finished(cursor)
	m.mu.Unlock()

	m.events.CursorAdvanced(cursor)

	if finished {
		m.timer.Stop()
		if m.transcriber != nil {
			m.transcriber.Disconnect()
		}
		m.checkFinished()
		return
	}

	m.restoreDraft()
	m.timer.Reset()
	m.syncChannel(cursor)
}

// checkFinished is the final-report watcher: the moment the cursor passes the
// last question, with no report yet and none in flight, generation fires
// exactly once. A session resumed with its report already generated goes
// straight to the finished phase; re-observing the same terminal cursor is a
// no-op.
func (m *Machine) checkFinished() {
	m.mu.Lock()
	s := m.session
	if s == nil || m.cursor.Question < len(s.QAFlow) {
		m.mu.Unlock()
		return
	}
	if report := s.FinalReport; report != nil {
		if m.status == interview.StatusFinished {
			m.mu.Unlock()
			return
		}
		m.status = interview.StatusFinished
		m.mu.Unlock()
		m.events.StatusChanged(interview.StatusFinished)
		m.events.ReportReady(report)
		return
	}
	if m.reportInFlight {
		m.mu.Unlock()
		return
	}
	m.reportInFlight = true
	sessionID := s.SessionID
	m.mu.Unlock()

	go m.generateReport(context.Background(), sessionID)
}

func (m *Machine) generateReport(ctx context.Context, sessionID string) {
	report, err := m.backend.GenerateFinalReport(ctx, sessionID)

	m.mu.Lock()
	m.reportInFlight = false
	if err != nil {
		m.mu.Unlock()
		log.Printf("session: final report: %v", err)
		m.events.Notice("Could not generate the final report.")
		return
	}
	// Report and status flip together so a concurrent terminal-cursor
	// observation can never surface the report twice.
	m.session.FinalReport = report
	m.status = interview.StatusFinished
	m.mu.Unlock()

	m.events.StatusChanged(interview.StatusFinished)
	m.events.ReportReady(report)
}

// autoSubmit fires when the answer countdown reaches zero: whatever text has
// accumulated, typed or transcribed, is submitted for the current slot.
func (m *Machine) autoSubmit() {
	m.mu.Lock()
	if m.status != interview.StatusReady || m.submitting {
		m.mu.Unlock()
		return
	}
	onMain := m.cursor.OnMainQuestion()
	text := m.draft
	m.mu.Unlock()

	persistedAsText := true
	if strings.TrimSpace(text) == "" && m.transcriber != nil {
		text = m.transcriber.Transcript()
		persistedAsText = false
	}

	ctx, cancel := context.WithTimeout(context.Background(), autoSubmitTimeout)
	defer cancel()

	var err error
	if onMain {
		err = m.SubmitAnswer(ctx, text, persistedAsText)
	} else {
		err = m.SubmitFollowUpAnswer(ctx, text, persistedAsText)
	}
	if err != nil {
		log.Printf("session: auto-submit: %v", err)
	}
}

func (m *Machine) setStatus(status interview.ReadyStatus) {
	m.mu.Lock()
	m.status = status
	m.mu.Unlock()
	m.events.StatusChanged(status)
}

// restoreDraft loads any preserved text for the slot the cursor now points
// at.
func (m *Machine) restoreDraft() {
	m.mu.Lock()
	sessionID := ""
	if m.session != nil {
		sessionID = m.session.SessionID
	}
	q, f := m.cursor.Question, m.cursor.FollowUp
	m.draft = ""
	m.mu.Unlock()

	if m.drafts == nil || sessionID == "" {
		return
	}
	text, err := m.drafts.Load(sessionID, q, f)
	if err != nil {
		log.Printf("session: load draft: %v", err)
		return
	}

	m.mu.Lock()
	if m.cursor.Question == q && m.cursor.FollowUp == f {
		m.draft = text
	}
	m.mu.Unlock()
}

func (m *Machine) clearDraft(question, followUp int) {
	m.mu.Lock()
	m.draft = ""
	sessionID := ""
	if m.session != nil {
		sessionID = m.session.SessionID
	}
	m.mu.Unlock()

	if m.drafts != nil && sessionID != "" {
		if err := m.drafts.Clear(sessionID, question, followUp); err != nil {
			log.Printf("session: clear draft: %v", err)
		}
	}
	if m.transcriber != nil {
		m.transcriber.ResetTranscript()
	}
}

// syncChannel points the transcription channel at the slot the cursor now
// occupies. The old connection is closed before the new one opens so a stale
// slot can never contaminate the next transcript.
func (m *Machine) syncChannel(cursor interview.Cursor) {
	if m.transcriber == nil {
		return
	}

	m.mu.Lock()
	params := transcription.Params{
		InterviewID:       m.interviewID,
		MemberInterviewID: m.memberInterviewID,
		SessionID:         m.session.SessionID,
		QuestionIndex:     cursor.Question,
		FollowUpIndex:     cursor.FollowUp,
	}
	m.mu.Unlock()

	go func() {
		if err := m.transcriber.ConnectAndAwaitReady(params); err != nil {
			log.Printf("session: transcription reconnect %d_%d: %v", cursor.Question, cursor.FollowUp, err)
			m.events.Notice("Voice transcription is unavailable right now.")
		}
	}()
}

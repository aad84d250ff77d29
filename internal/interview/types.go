package interview

// ReadyStatus is the coarse bootstrap phase of an interview session.
type ReadyStatus string

const (
	StatusInit              ReadyStatus = "init"
	StatusFetchingDetail    ReadyStatus = "fetching_interview_detail"
	StatusGeneratingSession ReadyStatus = "generating_session"
	StatusPreloadingAudio   ReadyStatus = "preloading_audio"
	StatusReady             ReadyStatus = "interview_ready"
	StatusFinished          ReadyStatus = "interview_finished"
	StatusError             ReadyStatus = "error"
)

// MainQuestion is the follow-up index reserved for a question's own slot.
const MainQuestion = -1

// Cursor is the interview's current position. FollowUp == MainQuestion means
// the main question is active and no follow-up has started yet.
type Cursor struct {
	Question int `json:"question_index"`
	FollowUp int `json:"follow_up_index"`
}

// OnMainQuestion reports whether the cursor points at a main question rather
// than one of its follow-ups.
func (c Cursor) OnMainQuestion() bool {
	return c.FollowUp == MainQuestion
}

// FollowUpEntry is a dynamically generated sub-question under a main question.
type FollowUpEntry struct {
	Question  string `json:"question"`
	AudioPath string `json:"audio_path,omitempty"`
	Answer    string `json:"answer,omitempty"`
}

// QuestionEntry is one top-level question and its lifecycle: answer, generated
// follow-ups, and per-question feedback once every follow-up is answered.
type QuestionEntry struct {
	Question       string          `json:"question"`
	AudioPath      string          `json:"audio_path,omitempty"`
	Answer         string          `json:"answer,omitempty"`
	FollowUpLength int             `json:"follow_up_length"`
	FollowUps      []FollowUpEntry `json:"follow_ups,omitempty"`
	Feedback       string          `json:"feedback,omitempty"`
}

// Report is the backend-synthesized final report across the whole session.
type Report struct {
	Summary string `json:"summary"`
	Score   int    `json:"score,omitempty"`
}

// Session is one interview attempt. The backend is the system of record; the
// client holds the latest server-returned copy and mutates it only through
// submission results.
type Session struct {
	InterviewID       string          `json:"interview_id"`
	MemberInterviewID string          `json:"member_interview_id"`
	SessionID         string          `json:"session_id"`
	Cursor            Cursor          `json:"cursor"`
	QuestionLength    int             `json:"question_length"`
	QAFlow            []QuestionEntry `json:"qa_flow"`
	FinalReport       *Report         `json:"final_report,omitempty"`
}

// Entry returns the question entry at index q, or nil if out of range.
func (s *Session) Entry(q int) *QuestionEntry {
	if s == nil || q < 0 || q >= len(s.QAFlow) {
		return nil
	}
	return &s.QAFlow[q]
}

// Finished reports whether the cursor has moved past the last question.
func (s *Session) Finished(c Cursor) bool {
	return s != nil && c.Question >= len(s.QAFlow)
}

// Participant identifies one interviewee within an interview.
type Participant struct {
	MemberInterviewID string `json:"member_interview_id"`
	MemberID          string `json:"member_id"`
	Name              string `json:"name,omitempty"`
}

// Detail is the backend's interview record, fetched once at bootstrap to
// resolve the acting participant.
type Detail struct {
	InterviewID  string        `json:"interview_id"`
	Title        string        `json:"title,omitempty"`
	IsGroup      bool          `json:"is_group,omitempty"`
	Participants []Participant `json:"participants"`
}

// GroupCursor is the server-pushed shared cursor for a group interview. The
// server owns it; clients reconcile toward it and never the reverse.
type GroupCursor struct {
	CurrentIndex        int            `json:"current_index"`
	ParticipantFollowUp map[string]int `json:"participant_follow_up_index"`
}

// FollowUpFor returns the server-assigned follow-up index for a participant,
// defaulting to MainQuestion when the participant has no entry yet.
func (g GroupCursor) FollowUpFor(participantID string) int {
	if idx, ok := g.ParticipantFollowUp[participantID]; ok {
		return idx
	}
	return MainQuestion
}

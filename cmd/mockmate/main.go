package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/joho/godotenv"

	"github.com/mockmate/mockmate/internal/api"
	"github.com/mockmate/mockmate/internal/audio"
	"github.com/mockmate/mockmate/internal/audiocache"
	"github.com/mockmate/mockmate/internal/config"
	"github.com/mockmate/mockmate/internal/drafts"
	"github.com/mockmate/mockmate/internal/interview"
	"github.com/mockmate/mockmate/internal/session"
	"github.com/mockmate/mockmate/internal/transcription"
)

const micFramesPerBuffer = 1024

// terminalSink renders machine events as terminal output.
type terminalSink struct {
	machine *session.Machine
}

func (s *terminalSink) StatusChanged(status interview.ReadyStatus) {
	log.Printf("status: %s", status)
}

func (s *terminalSink) CursorAdvanced(cursor interview.Cursor) {
	if s.machine == nil {
		return
	}
	text, _, ok := s.machine.CurrentPrompt()
	if !ok {
		return
	}
	if cursor.OnMainQuestion() {
		fmt.Printf("\nQuestion %d: %s\n> ", cursor.Question+1, text)
	} else {
		fmt.Printf("\nFollow-up %d.%d: %s\n> ", cursor.Question+1, cursor.FollowUp+1, text)
	}
}

func (s *terminalSink) TimerTick(remaining int) {
	if remaining > 0 && remaining%30 == 0 {
		fmt.Printf("\n(%ds remaining)\n> ", remaining)
	}
}

func (s *terminalSink) SubmittingChanged(submitting bool) {
	if submitting {
		fmt.Println("\nsubmitting...")
	}
}

func (s *terminalSink) ReportReady(report *interview.Report) {
	fmt.Printf("\n--- Final report ---\n%s\n", report.Summary)
	if report.Score > 0 {
		fmt.Printf("Score: %d\n", report.Score)
	}
}

func (s *terminalSink) Notice(message string) {
	fmt.Printf("\n! %s\n> ", message)
}

func main() {
	configPath := flag.String("config", "mockmate.yaml", "path to config file")
	interviewID := flag.String("interview", "", "interview id (required)")
	sessionID := flag.String("session", "", "existing session id to resume")
	group := flag.Bool("group", false, "group interview: follow the server's shared cursor")
	voice := flag.Bool("voice", false, "answer by voice through the transcription channel")
	flag.Parse()

	if *interviewID == "" {
		log.Fatal("usage: mockmate -interview <id> [-session <id>] [-group] [-voice]")
	}

	_ = godotenv.Load()

	cfg, warnings, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	for _, w := range warnings {
		log.Printf("config warning: %s", w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := api.NewClient(cfg.BackendURL, cfg.APIToken, cfg.ParsedAPITimeout())
	cache := audiocache.New(client, cfg.AudioCacheDir)

	draftStore, err := drafts.NewStore(cfg.DraftsDBPath)
	if err != nil {
		log.Printf("warning: draft persistence disabled: %v", err)
	} else {
		defer func() { _ = draftStore.Close() }()
	}

	var channel *transcription.Channel
	if *voice {
		if cfg.TranscriptionURL == "" {
			log.Fatal("voice mode needs transcription_url configured")
		}
		channel = transcription.NewChannel(cfg.TranscriptionURL)
	}

	sink := &terminalSink{}
	var transcriber session.Transcriber
	var store session.DraftStore
	if channel != nil {
		transcriber = channel
	}
	if draftStore != nil {
		store = draftStore
	}
	machine := session.NewMachine(client, cache, transcriber, store, sink, cfg.AnswerSeconds)
	sink.machine = machine
	defer machine.Close()

	if err := machine.Start(ctx, *interviewID, *sessionID); err != nil {
		log.Fatalf("could not start the interview: %v", err)
	}

	if *group {
		gm := session.NewGroupMachine(machine, client, cfg.ParsedGroupPollInterval())
		go gm.Run(ctx)
	}

	if channel != nil {
		go streamMic(ctx, cfg.MicSampleRate, channel)
	}

	if cursor := machine.Cursor(); !machine.Session().Finished(cursor) {
		sink.CursorAdvanced(cursor)
	}

	runAnswerLoop(ctx, machine, channel)
}

// runAnswerLoop reads answers line by line. With a transcription channel, an
// empty line submits the accumulated transcript; otherwise the typed line is
// the answer.
func runAnswerLoop(ctx context.Context, machine *session.Machine, channel *transcription.Channel) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for machine.Status() != interview.StatusFinished {
		if ctx.Err() != nil {
			return
		}
		if !scanner.Scan() {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		persistedAsText := true
		if channel != nil && line == "" {
			// Voice path: the transcription backend already persisted
			// the answer text incrementally, so only generation runs.
			line = channel.Transcript()
			persistedAsText = false
		} else {
			machine.UpdateDraft(line)
		}

		var err error
		if machine.Cursor().OnMainQuestion() {
			err = machine.SubmitAnswer(ctx, line, persistedAsText)
		} else {
			err = machine.SubmitFollowUpAnswer(ctx, line, persistedAsText)
		}
		if err != nil {
			log.Printf("submit: %v", err)
		}
	}
}

// streamMic forwards microphone frames to the channel, retrying while the
// channel reconnects between questions.
func streamMic(ctx context.Context, sampleRate int, channel *transcription.Channel) {
	if err := portaudio.Initialize(); err != nil {
		log.Printf("voice disabled: portaudio init: %v", err)
		return
	}
	defer func() { _ = portaudio.Terminate() }()

	mic, err := audio.NewMic(sampleRate, micFramesPerBuffer)
	if err != nil {
		log.Printf("voice disabled: open microphone: %v", err)
		return
	}
	defer func() { _ = mic.Close() }()

	if err := mic.Start(); err != nil {
		log.Printf("voice disabled: start microphone: %v", err)
		return
	}
	defer func() { _ = mic.Stop() }()

	for ctx.Err() == nil {
		if err := mic.StreamTo(ctx, channel); err != nil {
			if ctx.Err() != nil {
				return
			}
			// Mid-question reconnects surface here as send errors.
			time.Sleep(200 * time.Millisecond)
		}
	}
}

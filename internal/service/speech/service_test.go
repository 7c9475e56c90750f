package speech

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ssalazarv/voicegate/internal/config"
	speechmodel "github.com/ssalazarv/voicegate/internal/model/speech"
	"github.com/ssalazarv/voicegate/internal/model/voice"
)

type fakeEngine struct {
	recognizeCalls  int
	synthesizeCalls int

	lastRecognize  *speechmodel.RecognizeRequest
	lastSynthesize *speechmodel.SynthesizeRequest

	// blockUntilCtxDone 模拟挂起的上游：等到上下文超时为止。
	blockUntilCtxDone bool

	transcript map[string]string
}

func (f *fakeEngine) Recognize(ctx context.Context, req *speechmodel.RecognizeRequest) (*speechmodel.RecognizeResponse, error) {
	f.recognizeCalls++
	f.lastRecognize = req

	if f.blockUntilCtxDone {
		<-ctx.Done()
		return nil, wrapTransport(ctx.Err(), "recognize")
	}

	text := "hola"
	if f.transcript != nil {
		if t, ok := f.transcript[string(req.Audio)]; ok {
			text = t
		}
	}

	return &speechmodel.RecognizeResponse{
		SessionID:  req.SessionID,
		Text:       text,
		Confidence: 0.9,
	}, nil
}

func (f *fakeEngine) Synthesize(ctx context.Context, req *speechmodel.SynthesizeRequest) (*speechmodel.SynthesizeResponse, error) {
	f.synthesizeCalls++
	f.lastSynthesize = req

	if f.blockUntilCtxDone {
		<-ctx.Done()
		return nil, wrapTransport(ctx.Err(), "synthesize")
	}

	return &speechmodel.SynthesizeResponse{
		SessionID: req.SessionID,
		AudioData: []byte(req.Text),
		Format:    req.Format,
	}, nil
}

func newTestService(engine *fakeEngine, timeoutSeconds int) *Service {
	cfg := config.SpeechConfig{
		Provider: "google",
		Timeout:  timeoutSeconds,
		Language: "es-CO",
		TTSVoice: "es-CO-SalomeNeural",
		TTSSpeed: 1.0,
	}
	return NewService(cfg, engine, voice.NewMemoryStore(voice.Seed()), zap.NewNop())
}

func TestRecognizeRejectsEmptyAudioWithoutEngineCall(t *testing.T) {
	engine := &fakeEngine{}
	svc := newTestService(engine, 30)

	_, err := svc.Recognize(context.Background(), &speechmodel.RecognizeRequest{})
	if speechmodel.KindOf(err) != speechmodel.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if engine.recognizeCalls != 0 {
		t.Fatalf("engine must not be called, got %d calls", engine.recognizeCalls)
	}
}

func TestSynthesizeRejectsBlankTextWithoutEngineCall(t *testing.T) {
	engine := &fakeEngine{}
	svc := newTestService(engine, 30)

	_, err := svc.Synthesize(context.Background(), &speechmodel.SynthesizeRequest{Text: "   "})
	if speechmodel.KindOf(err) != speechmodel.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if engine.synthesizeCalls != 0 {
		t.Fatalf("engine must not be called, got %d calls", engine.synthesizeCalls)
	}
}

func TestRecognizeAppliesDefaults(t *testing.T) {
	engine := &fakeEngine{}
	svc := newTestService(engine, 30)

	resp, err := svc.Recognize(context.Background(), &speechmodel.RecognizeRequest{Audio: []byte("a")})
	if err != nil {
		t.Fatalf("Recognize err: %v", err)
	}

	if engine.lastRecognize.SessionID != "default" {
		t.Fatalf("unexpected session: %s", engine.lastRecognize.SessionID)
	}
	if engine.lastRecognize.Language != "es-CO" {
		t.Fatalf("unexpected language: %s", engine.lastRecognize.Language)
	}
	if engine.lastRecognize.Format != "wav" {
		t.Fatalf("unexpected format: %s", engine.lastRecognize.Format)
	}
	if resp.Text == "" {
		t.Fatal("expected transcript text")
	}
}

func TestSynthesizeResolvesVoiceAliasAndClampsSpeed(t *testing.T) {
	engine := &fakeEngine{}
	svc := newTestService(engine, 30)

	_, err := svc.Synthesize(context.Background(), &speechmodel.SynthesizeRequest{
		Text:  "hola",
		Voice: "salome",
		Speed: 9.0,
		Pitch: 200,
	})
	if err != nil {
		t.Fatalf("Synthesize err: %v", err)
	}

	if engine.lastSynthesize.Voice != "es-CO-SalomeNeural" {
		t.Fatalf("alias not resolved: %s", engine.lastSynthesize.Voice)
	}
	if engine.lastSynthesize.Speed != 2.0 {
		t.Fatalf("speed not clamped: %v", engine.lastSynthesize.Speed)
	}
	if engine.lastSynthesize.Pitch != 50 {
		t.Fatalf("pitch not clamped: %d", engine.lastSynthesize.Pitch)
	}
}

func TestSynthesizeUsesConfiguredDefaultVoice(t *testing.T) {
	engine := &fakeEngine{}
	svc := newTestService(engine, 30)

	if _, err := svc.Synthesize(context.Background(), &speechmodel.SynthesizeRequest{Text: "hola"}); err != nil {
		t.Fatalf("Synthesize err: %v", err)
	}
	if engine.lastSynthesize.Voice != "es-CO-SalomeNeural" {
		t.Fatalf("default voice not applied: %s", engine.lastSynthesize.Voice)
	}
}

func TestHungUpstreamFailsWithinTimeout(t *testing.T) {
	engine := &fakeEngine{blockUntilCtxDone: true}
	svc := newTestService(engine, 1)

	start := time.Now()
	_, err := svc.Recognize(context.Background(), &speechmodel.RecognizeRequest{Audio: []byte("a")})
	elapsed := time.Since(start)

	if speechmodel.KindOf(err) != speechmodel.KindUpstreamTimeout {
		t.Fatalf("expected upstream timeout, got %v", err)
	}
	if elapsed > 3*time.Second {
		t.Fatalf("call exceeded timeout bound: %v", elapsed)
	}
}

func TestSynthesizeRecognizeRoundTrip(t *testing.T) {
	engine := &fakeEngine{transcript: map[string]string{"buenos días": "buenos días"}}
	svc := newTestService(engine, 30)

	synth, err := svc.Synthesize(context.Background(), &speechmodel.SynthesizeRequest{Text: "buenos días"})
	if err != nil {
		t.Fatalf("Synthesize err: %v", err)
	}

	rec, err := svc.Recognize(context.Background(), &speechmodel.RecognizeRequest{Audio: synth.AudioData})
	if err != nil {
		t.Fatalf("Recognize err: %v", err)
	}
	if rec.Text != "buenos días" {
		t.Fatalf("round trip lost text: %q", rec.Text)
	}
}

func TestRecognizeStreamFlushesOnClose(t *testing.T) {
	engine := &fakeEngine{}
	svc := newTestService(engine, 30)

	audio := make(chan []byte, 4)
	results := make(chan *speechmodel.StreamingChunk, 4)

	audio <- []byte("chunk-1")
	audio <- []byte("chunk-2")
	close(audio)

	if err := svc.RecognizeStream(context.Background(), "sess", audio, results); err != nil {
		t.Fatalf("RecognizeStream err: %v", err)
	}

	if engine.recognizeCalls != 1 {
		t.Fatalf("expected one batched recognize call, got %d", engine.recognizeCalls)
	}

	select {
	case chunk := <-results:
		if !chunk.IsFinal {
			t.Fatal("expected final chunk")
		}
		if chunk.SessionID != "sess" {
			t.Fatalf("unexpected session: %s", chunk.SessionID)
		}
	default:
		t.Fatal("expected a result chunk")
	}
}

func TestRecognizeStreamFlushesAtThreshold(t *testing.T) {
	engine := &fakeEngine{}
	svc := newTestService(engine, 30)

	audio := make(chan []byte, 2)
	results := make(chan *speechmodel.StreamingChunk, 4)

	audio <- make([]byte, streamFlushThreshold)
	close(audio)

	if err := svc.RecognizeStream(context.Background(), "sess", audio, results); err != nil {
		t.Fatalf("RecognizeStream err: %v", err)
	}

	first := <-results
	if first.IsFinal {
		t.Fatal("threshold flush should not be final")
	}
}

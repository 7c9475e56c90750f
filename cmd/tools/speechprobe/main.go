package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ssalazarv/voicegate/internal/config"
	speechmodel "github.com/ssalazarv/voicegate/internal/model/speech"
	"github.com/ssalazarv/voicegate/internal/model/voice"
	"github.com/ssalazarv/voicegate/internal/service/credential"
	"github.com/ssalazarv/voicegate/internal/service/speech"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	mode := flag.String("mode", "", "测试模式: recognize 或 synthesize")
	audioPath := flag.String("audio", "", "识别输入音频文件路径")
	text := flag.String("text", "", "合成输入文本")
	outputPath := flag.String("out", "", "合成输出音频文件路径 (默认根据格式自动生成)")
	format := flag.String("format", "", "音频格式 (识别: 输入格式; 合成: 输出格式)")
	language := flag.String("lang", "", "语言代码，默认使用配置中的语言")
	voiceID := flag.String("voice", "", "合成声音 ID 或别名，默认使用配置中的 TTSVoice")
	session := flag.String("session", "", "自定义 sessionID，留空则自动生成")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")

	flag.Parse()

	if *mode != "recognize" && *mode != "synthesize" {
		flag.Usage()
		log.Fatal("请通过 -mode=recognize 或 -mode=synthesize 指定测试模式")
	}

	sessionID := *session
	if sessionID == "" {
		sessionID = fmt.Sprintf("probe-%d", time.Now().UnixNano())
	}

	logger := zap.NewNop()
	engine, err := buildEngine(cfg, logger)
	if err != nil {
		log.Fatalf("语音引擎初始化失败: %v", err)
	}

	svc := speech.NewService(cfg.Speech, engine, voice.NewMemoryStore(voice.Seed()), logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch *mode {
	case "recognize":
		runRecognize(ctx, svc, sessionID, *audioPath, *format, *language)
	case "synthesize":
		runSynthesize(ctx, svc, sessionID, *text, *voiceID, *format, *language, *outputPath)
	}
}

func buildEngine(cfg *config.Config, logger *zap.Logger) (speech.Engine, error) {
	if cfg.Speech.Provider == "azure" {
		source := credential.NewAzureProvider(cfg.Azure.SubscriptionKey, cfg.Azure.Region, logger)
		return speech.NewAzureClient(credential.NewCaching(source), cfg.Azure.Region, cfg.Azure.VerboseLogging, logger), nil
	}

	source, err := credential.NewGoogleProvider(cfg.Google.CredentialsFile, logger)
	if err != nil {
		return nil, err
	}
	return speech.NewGoogleClient(credential.NewCaching(source), logger), nil
}

func runRecognize(ctx context.Context, svc *speech.Service, sessionID, audioPath, format, language string) {
	if audioPath == "" {
		log.Fatal("识别模式需要通过 -audio 指定音频文件路径")
	}

	audio, err := os.ReadFile(audioPath)
	if err != nil {
		log.Fatalf("读取音频文件失败: %v", err)
	}

	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(audioPath)), ".")
		if format == "" {
			format = "wav"
		}
	}

	req := &speechmodel.RecognizeRequest{
		SessionID: sessionID,
		Audio:     audio,
		Format:    format,
		Language:  language,
	}

	log.Printf("开始识别测试: session=%s format=%s language=%s", sessionID, format, language)

	resp, err := svc.Recognize(ctx, req)
	if err != nil {
		log.Fatalf("识别调用失败 (%s): %v", speechmodel.KindOf(err), err)
	}

	log.Printf("识别成功: text=%q confidence=%.2f duration=%dms", resp.Text, resp.Confidence, resp.Duration)
}

func runSynthesize(ctx context.Context, svc *speech.Service, sessionID, text, voiceID, format, language, outputPath string) {
	if strings.TrimSpace(text) == "" {
		log.Fatal("合成模式需要通过 -text 提供待合成文本")
	}

	if format == "" {
		format = "mp3"
	}

	if outputPath == "" {
		outputPath = fmt.Sprintf("tts-output-%d.%s", time.Now().Unix(), format)
	}

	req := &speechmodel.SynthesizeRequest{
		SessionID: sessionID,
		Text:      text,
		Voice:     voiceID,
		Format:    format,
		Language:  language,
	}

	log.Printf("开始合成测试: session=%s voice=%s format=%s", sessionID, voiceID, format)

	resp, err := svc.Synthesize(ctx, req)
	if err != nil {
		log.Fatalf("合成调用失败 (%s): %v", speechmodel.KindOf(err), err)
	}

	if err := os.WriteFile(outputPath, resp.AudioData, 0o644); err != nil {
		log.Fatalf("写入音频文件失败: %v", err)
	}

	log.Printf("合成成功: 输出文件 %s, %d 字节", outputPath, len(resp.AudioData))
}

package speech

// RecognizeRequest 语音识别请求
type RecognizeRequest struct {
	SessionID  string `json:"sessionId"`
	Audio      []byte `json:"-"`
	Format     string `json:"format"`     // mp3, wav, webm, etc.
	Language   string `json:"language"`   // es-CO, en-US, etc.
	SampleRate int    `json:"sampleRate"` // Hz, 0 表示交由供应商探测
}

// SynthesizeRequest 语音合成请求
type SynthesizeRequest struct {
	SessionID string  `json:"sessionId"`
	Text      string  `json:"text"`
	Voice     string  `json:"voice"`    // 声音名称或别名
	Speed     float32 `json:"speed"`    // 语速倍率 0.5-2.0
	Pitch     int     `json:"pitch"`    // 音调百分比 -50..50
	Format    string  `json:"format"`   // mp3, wav, etc.
	Language  string  `json:"language"` // es-CO, en-US, etc.
}

package speech

import (
	"fmt"
	"html"
	"strings"
)

// 语速与音调的允许范围；越界取最近的边界值。
const (
	minSpeed = 0.5
	maxSpeed = 2.0
	minPitch = -50
	maxPitch = 50
)

// ClampSpeed 把语速倍率收敛到 0.5–2.0，零值取 1.0。
func ClampSpeed(speed float32) float32 {
	if speed == 0 {
		return 1.0
	}
	if speed < minSpeed {
		return minSpeed
	}
	if speed > maxSpeed {
		return maxSpeed
	}
	return speed
}

// ClampPitch 把音调百分比收敛到 -50..50。
func ClampPitch(pitch int) int {
	if pitch < minPitch {
		return minPitch
	}
	if pitch > maxPitch {
		return maxPitch
	}
	return pitch
}

// BuildSSML 生成两家供应商都接受的简单 SSML 文档。
func BuildSSML(text, voice, language string, speed float32, pitch int) string {
	return fmt.Sprintf(
		`<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xml:lang=%q><voice name=%q><prosody rate="%.2f" pitch="%+d%%">%s</prosody></voice></speak>`,
		language, voice, ClampSpeed(speed), ClampPitch(pitch), CleanText(text),
	)
}

// CleanText 为电话场景清洗文本：转义、展开常见缩写、在逗号与问句处
// 插入自然停顿。
func CleanText(text string) string {
	t := strings.TrimSpace(text)
	t = html.EscapeString(t)

	replacements := [][2]string{
		{"Dr.", "Doctor"},
		{"Dra.", "Doctora"},
		{"AM", "A M"},
		{"PM", "P M"},
	}
	for _, r := range replacements {
		t = strings.ReplaceAll(t, r[0], r[1])
	}

	t = strings.ReplaceAll(t, ",", `, <break time="200ms"/>`)
	if strings.Contains(t, "?") {
		t = strings.ReplaceAll(t, "?", ` <break time="250ms"/>?`)
	}

	return t
}

package voicevox

import "encoding/json"

// DefaultSpeaker is ずんだもん (normal style).
const DefaultSpeaker = 3

// Style is one voice style of a speaker; its ID is the speaker id used in
// synthesis requests.
type Style struct {
	Name string `json:"name"`
	ID   int    `json:"id"`
	Type string `json:"type,omitempty"`
}

// Speaker is one character exposed by GET /speakers.
type Speaker struct {
	Name        string  `json:"name"`
	SpeakerUUID string  `json:"speaker_uuid"`
	Styles      []Style `json:"styles"`
	Version     string  `json:"version"`
}

// AudioQuery is the synthesis parameter set returned by POST /audio_query
// and posted back to /synthesis. Accent phrases are passed through as-is.
type AudioQuery struct {
	AccentPhrases      json.RawMessage `json:"accent_phrases"`
	SpeedScale         float64         `json:"speedScale"`
	PitchScale         float64         `json:"pitchScale"`
	IntonationScale    float64         `json:"intonationScale"`
	VolumeScale        float64         `json:"volumeScale"`
	PrePhonemeLength   float64         `json:"prePhonemeLength"`
	PostPhonemeLength  float64         `json:"postPhonemeLength"`
	PauseLength        *float64        `json:"pauseLength,omitempty"`
	PauseLengthScale   *float64        `json:"pauseLengthScale,omitempty"`
	OutputSamplingRate int             `json:"outputSamplingRate"`
	OutputStereo       bool            `json:"outputStereo"`
	Kana               string          `json:"kana,omitempty"`
}

// PopularSpeaker is an entry of the quick-pick list.
type PopularSpeaker struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Style string `json:"style"`
}

// PopularSpeakers are commonly used speaker styles of the default engine.
var PopularSpeakers = []PopularSpeaker{
	{ID: 3, Name: "ずんだもん", Style: "ノーマル"},
	{ID: 1, Name: "ずんだもん", Style: "あまあま"},
	{ID: 2, Name: "四国めたん", Style: "ノーマル"},
	{ID: 8, Name: "春日部つむぎ", Style: "ノーマル"},
	{ID: 10, Name: "雨晴はう", Style: "ノーマル"},
	{ID: 14, Name: "冥鳴ひまり", Style: "ノーマル"},
	{ID: 16, Name: "九州そら", Style: "ノーマル"},
	{ID: 47, Name: "ナースロボ＿タイプＴ", Style: "ノーマル"},
}

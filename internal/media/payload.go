package media

import "fmt"

type Kind int

const (
	KindAudio Kind = iota
	KindImage
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindImage:
		return "image"
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

const (
	MIMEImageJPEG = "image/jpeg"
	MIMEAudioPCM  = "audio/pcm"
)

// Payload is one unit of media moving between producers and the model.
// It must not be mutated once pushed.
type Payload struct {
	Kind     Kind
	Data     []byte
	MIMEType string
	Text     string
}

// Audio wraps 16-bit little-endian mono PCM captured at sampleRate.
func Audio(data []byte, sampleRate int) Payload {
	mime := MIMEAudioPCM
	if sampleRate > 0 {
		mime = fmt.Sprintf("%s;rate=%d", MIMEAudioPCM, sampleRate)
	}
	return Payload{Kind: KindAudio, Data: data, MIMEType: mime}
}

func Image(jpeg []byte) Payload {
	return Payload{Kind: KindImage, Data: jpeg, MIMEType: MIMEImageJPEG}
}

func Text(text string) Payload {
	return Payload{Kind: KindText, Text: text}
}

func (p Payload) Size() int {
	if p.Kind == KindText {
		return len(p.Text)
	}
	return len(p.Data)
}

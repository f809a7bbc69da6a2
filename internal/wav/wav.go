package wav

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// Формат фиксирован контрактом провайдера: сырой линейный PCM,
// моно, 16 бит, 24 кГц по умолчанию.
const (
	DefaultSampleRate = 24000

	headerSize    = 44
	numChannels   = 1
	bitsPerSample = 16
)

// Encode упаковывает сырые PCM-сэмплы в контейнер WAV: 44-байтовый заголовок
// и данные как есть. Все многобайтовые поля — little-endian. Функция чистая и
// детерминированная: одинаковый вход даёт байт-в-байт одинаковый результат.
func Encode(pcm []byte, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	dataLen := uint32(len(pcm))
	byteRate := uint32(sampleRate * numChannels * bitsPerSample / 8)
	blockAlign := uint16(numChannels * bitsPerSample / 8)

	buf := &bytes.Buffer{}
	buf.Grow(headerSize + len(pcm))

	writes := []any{
		[]byte("RIFF"),
		uint32(36 + dataLen), // размер чанка = 36 + длина данных
		[]byte("WAVE"),
		[]byte("fmt "),
		uint32(16),            // размер fmt-подчанка
		uint16(1),             // формат: несжатый PCM
		uint16(numChannels),   // моно
		uint32(sampleRate),    //
		byteRate,              // rate × 2
		blockAlign,            //
		uint16(bitsPerSample), //
		[]byte("data"),
		dataLen,
		pcm,
	}
	for _, w := range writes {
		if err := binary.Write(buf, binary.LittleEndian, w); err != nil {
			return nil, fmt.Errorf("wav: write header: %w", err)
		}
	}

	return buf.Bytes(), nil
}

// EncodeBase64 декодирует base64-пейлоад провайдера и упаковывает его в WAV.
// Ошибка декодирования — терминальная: пейлоад непригоден, повтор не поможет.
func EncodeBase64(b64 string, sampleRate int) ([]byte, error) {
	pcm, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("wav: decode pcm payload: %w", err)
	}
	return Encode(pcm, sampleRate)
}

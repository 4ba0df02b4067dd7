package network

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/annel0/autotile/internal/world"
)

// MaxFrameSize ограничение сжатого тела кадра
const MaxFrameSize = 4 << 20

const headerSize = 4

var (
	// ErrFrameTooLarge заголовок объявляет кадр больше MaxFrameSize
	ErrFrameTooLarge = errors.New("network: frame too large")
	// ErrShortFrame кадр короче заголовка или объявленной длины
	ErrShortFrame = errors.New("network: short frame")
)

// RedrawBatch пакет перерисованных клеток одной карты
type RedrawBatch struct {
	Map   string             `json:"map"`
	Seq   uint64             `json:"seq"`
	Cells []world.CellUpdate `json:"cells"`
}

// Subscribe первый кадр клиента: карта и необязательный JWT
type Subscribe struct {
	Map   string `json:"map"`
	Token string `json:"token,omitempty"`
}

// Кодировщик и декодер zstd безопасны для параллельных EncodeAll/DecodeAll
var (
	encoder *zstd.Encoder
	decoder *zstd.Decoder
)

func init() {
	var err error
	encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic(fmt.Sprintf("zstd encoder: %v", err))
	}
	decoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(8*MaxFrameSize))
	if err != nil {
		panic(fmt.Sprintf("zstd decoder: %v", err))
	}
}

// EncodeFrame кодирует значение: 4 байта длины big-endian, затем zstd(JSON)
func EncodeFrame(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	body := encoder.EncodeAll(raw, make([]byte, headerSize, headerSize+len(raw)/2+16))
	size := len(body) - headerSize
	if size > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	binary.BigEndian.PutUint32(body[:headerSize], uint32(size))
	return body, nil
}

// DecodeFrame разбирает один полный кадр
func DecodeFrame(frame []byte, v interface{}) error {
	if len(frame) < headerSize {
		return ErrShortFrame
	}
	size := binary.BigEndian.Uint32(frame[:headerSize])
	if size > MaxFrameSize {
		return ErrFrameTooLarge
	}
	if int(size) != len(frame)-headerSize {
		return fmt.Errorf("%w: header %d, body %d", ErrShortFrame, size, len(frame)-headerSize)
	}
	return decodeBody(frame[headerSize:], v)
}

func decodeBody(body []byte, v interface{}) error {
	raw, err := decoder.DecodeAll(body, nil)
	if err != nil {
		return fmt.Errorf("decompression failed: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	return nil
}

// WriteFrame кодирует и пишет кадр целиком
func WriteFrame(w io.Writer, v interface{}) (int, error) {
	frame, err := EncodeFrame(v)
	if err != nil {
		return 0, err
	}
	return w.Write(frame)
}

// ReadFrame читает один кадр из потока
func ReadFrame(r io.Reader, v interface{}) error {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > MaxFrameSize {
		return ErrFrameTooLarge
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			return io.ErrUnexpectedEOF
		}
		return err
	}
	return decodeBody(body, v)
}

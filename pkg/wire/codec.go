// Package wire преобразует сообщения сигнализации и управления в байты
// и обратно. Грамматика ASN.1 PER не реализуется: кодек использует
// JSON-конверт с дискриминатором вида сообщения.
package wire

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/arzzra/h323phone/pkg/h225"
	"github.com/arzzra/h323phone/pkg/h245"
)

// ErrMalformed возвращается при невозможности разобрать PDU.
var ErrMalformed = errors.New("некорректный PDU")

// Codec кодек сообщений обоих семейств.
type Codec interface {
	EncodeSignal(msg *h225.Message) ([]byte, error)
	DecodeSignal(data []byte) (*h225.Message, error)
	EncodeControl(msg h245.Message) ([]byte, error)
	DecodeControl(data []byte) (h245.Message, error)
}

type jsonCodec struct{}

// NewJSONCodec создает кодек на основе JSON.
func NewJSONCodec() Codec {
	return jsonCodec{}
}

type controlEnvelope struct {
	Kind string          `json:"kind"`
	Body json.RawMessage `json:"body,omitempty"`
}

func (jsonCodec) EncodeSignal(msg *h225.Message) ([]byte, error) {
	if msg == nil {
		return nil, errors.New("пустое сообщение сигнализации")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrapf(err, "кодирование %s", msg.Type)
	}
	return data, nil
}

func (jsonCodec) DecodeSignal(data []byte) (*h225.Message, error) {
	var msg h225.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	return &msg, nil
}

func (jsonCodec) EncodeControl(msg h245.Message) ([]byte, error) {
	if msg == nil {
		return nil, errors.New("пустое сообщение управления")
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrapf(err, "кодирование %s", msg.Kind())
	}
	data, err := json.Marshal(controlEnvelope{Kind: msg.Kind().String(), Body: body})
	if err != nil {
		return nil, errors.Wrapf(err, "кодирование конверта %s", msg.Kind())
	}
	return data, nil
}

// DecodeControl разбирает PDU управления. Неизвестный вид дает
// h245.Unknown без ошибки, чтобы получатель мог ответить
// FunctionNotUnderstood.
func (jsonCodec) DecodeControl(data []byte) (h245.Message, error) {
	var env controlEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	kind := h245.KindFromString(env.Kind)
	if kind == h245.KindUnknown {
		return &h245.Unknown{Name: env.Kind}, nil
	}
	msg := h245.New(kind)
	if len(env.Body) > 0 {
		if err := json.Unmarshal(env.Body, msg); err != nil {
			return nil, errors.Wrapf(ErrMalformed, "%s: %v", env.Kind, err)
		}
	}
	return msg, nil
}

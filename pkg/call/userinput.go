package call

import (
	"log/slog"
	"time"

	"github.com/arzzra/h323phone/pkg/capability"
	"github.com/arzzra/h323phone/pkg/h225"
	"github.com/arzzra/h323phone/pkg/h245"
	"github.com/arzzra/h323phone/pkg/negotiator"
)

// SendUserInput отправляет пользовательский ввод: по каналу управления,
// если он начат, иначе в сообщении INFORMATION.
func (c *Connection) SendUserInput(input string) error {
	c.mu.Lock()
	defer c.unlock()
	if c.state == StateShuttingDown || c.signal == nil {
		return c.withToken(newError(ErrorCategoryState, CodeInvalidState, "вызов не активен", nil))
	}
	if c.controlStarted {
		c.writeControl(&h245.UserInputIndication{Alphanumeric: input})
		return nil
	}
	info := h225.New(h225.TypeInformation, c.callRef, !c.outgoing)
	info.Keypad = input
	c.writeSignal(info)
	return nil
}

// SendUserInputTone отправляет тон DTMF. Окончание тона сообщается
// отдельным обновлением по истечении длительности.
func (c *Connection) SendUserInputTone(tone rune, duration time.Duration) error {
	c.mu.Lock()
	defer c.unlock()
	if c.state == StateShuttingDown || !c.controlStarted {
		return c.withToken(newError(ErrorCategoryState, CodeInvalidState, "канал управления не начат", nil))
	}
	if duration <= 0 {
		duration = 100 * time.Millisecond
	}
	c.writeControl(&h245.UserInputIndication{
		Signal:   string(tone),
		Duration: uint(duration / time.Millisecond),
	})
	c.toneSignal = string(tone)
	c.toneDuration = duration
	c.toneEnd = time.Now().Add(duration)
	return nil
}

func (c *Connection) onUserInputIndication(m *h245.UserInputIndication) bool {
	switch {
	case m.Alphanumeric != "":
		c.handler.OnUserInput(c, m.Alphanumeric)
	case m.Signal != "" && !m.SignalUpdate:
		c.handler.OnUserInput(c, m.Signal)
	}
	return true
}

// onFlowControl ограничивает скорость собственного канала передачи.
func (c *Connection) onFlowControl(m *h245.FlowControlCommand) bool {
	ch := c.lc.Find(m.ChannelNumber, false)
	if ch == nil || ch.Direction != negotiator.DirectionTransmitter {
		c.logger.Debug("FlowControlCommand для неизвестного канала", slog.Int("channel", int(m.ChannelNumber)))
		return true
	}
	ch.BitRateLimit = m.MaximumBitRate
	c.logger.Info("ограничение скорости канала",
		slog.String("channel", ch.String()), slog.Int("max_bit_rate", int(m.MaximumBitRate)))
	return true
}

// SendFlowControl просит удаленную сторону ограничить скорость канала,
// который она передает.
func (c *Connection) SendFlowControl(channel uint, maxBitRate uint) error {
	c.mu.Lock()
	defer c.unlock()
	if c.lc.Find(channel, true) == nil {
		return c.withToken(newError(ErrorCategoryState, CodeInvalidState, "канал не найден", nil))
	}
	c.writeControl(&h245.FlowControlCommand{ChannelNumber: channel, MaximumBitRate: maxBitRate})
	return nil
}

// RequestModeChange просит удаленную сторону передавать в одном из
// форматов. Каждый элемент списка задает отдельный режим.
func (c *Connection) RequestModeChange(formatNames ...string) bool {
	c.mu.Lock()
	defer c.unlock()
	if c.state != StateEstablished {
		return false
	}
	var modes []h245.ModeDescription
	for _, name := range formatNames {
		lcap := c.local.FindByName(name, capability.DirectionUnknown)
		if lcap == nil {
			continue
		}
		e := lcap.ToWire()
		modes = append(modes, h245.ModeDescription{{
			MainType:      e.MainType,
			SubType:       e.SubType,
			Packetization: e.Packetization,
		}})
	}
	var ok bool
	c.withTunnel(func() { ok = c.rm.Start(modes) })
	return ok
}

// StartRoundTripDelay запускает измерение задержки на канале управления.
func (c *Connection) StartRoundTripDelay() bool {
	c.mu.Lock()
	defer c.unlock()
	if !c.controlStarted || c.state == StateShuttingDown {
		return false
	}
	var ok bool
	c.withTunnel(func() { ok = c.rtd.Start() })
	return ok
}

// CloseChannel закрывает логический канал.
func (c *Connection) CloseChannel(number uint, fromRemote bool) bool {
	c.mu.Lock()
	defer c.unlock()
	var ok bool
	c.withTunnel(func() { ok = c.lc.Close(number, fromRemote) })
	return ok
}

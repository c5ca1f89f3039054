package call

import (
	"log/slog"

	"github.com/arzzra/h323phone/pkg/capability"
	"github.com/arzzra/h323phone/pkg/h245"
	"github.com/arzzra/h323phone/pkg/negotiator"
)

// fastStartState состояние быстрого старта вызова.
type fastStartState int

const (
	fastStartDisabled fastStartState = iota
	fastStartProposed
	fastStartAcknowledged
)

func (s fastStartState) String() string {
	switch s {
	case fastStartProposed:
		return "proposed"
	case fastStartAcknowledged:
		return "acknowledged"
	}
	return "disabled"
}

// fastStartProposal предложение канала быстрого старта вместе с
// запросом, в котором оно передается.
type fastStartProposal struct {
	ch  *negotiator.LogicalChannel
	olc *h245.OpenLogicalChannel
}

// proposeFastStart строит предложения вызывающей стороны: для каждой
// аудио и видео возможности канал приема и канал передачи. Сессии не
// создаются, в предложениях только зарезервированные адреса.
func (c *Connection) proposeFastStart() [][]byte {
	var out [][]byte
	for _, mt := range []capability.MainType{capability.MainTypeAudio, capability.MainTypeVideo} {
		for _, lcap := range c.local.FindByMainType(mt) {
			sessionID := lcap.DefaultSessionID()
			addr, err := c.media.ReserveAddress(sessionID)
			if err != nil {
				c.logger.Warn("адрес для быстрого старта недоступен",
					slog.Int("session_id", int(sessionID)), slog.Any("error", err))
				continue
			}
			entry := lcap.ToWire()

			rx := &negotiator.LogicalChannel{
				Number:            c.lc.NextChannelNumber(),
				Direction:         negotiator.DirectionReceiver,
				SessionID:         sessionID,
				Capability:        lcap,
				FastStart:         true,
				LocalMediaAddress: addr,
			}
			rxReq := &h245.OpenLogicalChannel{
				ChannelNumber: rx.Number,
				Forward:       h245.ChannelParameters{DataType: h245.DataType{Null: true}, SessionID: sessionID},
				Reverse: &h245.ChannelParameters{
					DataType:     h245.DataType{Capability: &entry},
					SessionID:    sessionID,
					MediaAddress: addr,
				},
			}

			tx := &negotiator.LogicalChannel{
				Number:     c.lc.NextChannelNumber(),
				Direction:  negotiator.DirectionTransmitter,
				SessionID:  sessionID,
				Capability: lcap,
				FastStart:  true,
			}
			txReq := &h245.OpenLogicalChannel{
				ChannelNumber: tx.Number,
				Forward: h245.ChannelParameters{
					DataType:            h245.DataType{Capability: &entry},
					SessionID:           sessionID,
					MediaControlAddress: addr,
				},
			}

			for _, p := range []*fastStartProposal{{ch: rx, olc: rxReq}, {ch: tx, olc: txReq}} {
				data, err := c.codec.EncodeControl(p.olc)
				if err != nil {
					continue
				}
				c.fastStartProposals = append(c.fastStartProposals, p)
				out = append(out, data)
			}
		}
	}
	if len(out) > 0 {
		c.fastStart = fastStartProposed
	}
	c.logger.Debug("предложения быстрого старта", slog.Int("count", len(out)))
	return out
}

// receiveFastStart разбирает предложения вызывающей стороны. Предложения
// с форматами вне локальной таблицы отбрасываются.
func (c *Connection) receiveFastStart(raw [][]byte) {
	synthesize := !c.tcs.HasReceivedCapabilities()
	var dropped int
	for _, data := range raw {
		msg, err := c.codec.DecodeControl(data)
		olc, ok := msg.(*h245.OpenLogicalChannel)
		if err != nil || !ok {
			dropped++
			continue
		}
		p := c.matchProposal(olc, synthesize)
		if p == nil {
			dropped++
			continue
		}
		c.fastStartProposals = append(c.fastStartProposals, p)
	}
	if dropped > 0 {
		c.logger.Debug("предложения быстрого старта отброшены", slog.Int("dropped", dropped))
	}
	if len(c.fastStartProposals) > 0 {
		c.fastStart = fastStartProposed
	}
}

func (c *Connection) matchProposal(olc *h245.OpenLogicalChannel, synthesize bool) *fastStartProposal {
	switch {
	case !olc.Forward.DataType.Null && olc.Forward.DataType.Capability != nil:
		// удаленная сторона передает, локальная принимает
		entry := *olc.Forward.DataType.Capability
		local := c.local.FindByWire(entry)
		if local == nil {
			return nil
		}
		if synthesize {
			c.addRemoteCapability(entry)
		}
		sessionID := olc.Forward.SessionID
		if sessionID == 0 {
			sessionID = local.DefaultSessionID()
		}
		return &fastStartProposal{olc: olc, ch: &negotiator.LogicalChannel{
			Number:              olc.ChannelNumber,
			FromRemote:          true,
			Direction:           negotiator.DirectionReceiver,
			SessionID:           sessionID,
			Capability:          local,
			FastStart:           true,
			MediaControlAddress: olc.Forward.MediaControlAddress,
		}}

	case olc.Reverse != nil && olc.Reverse.DataType.Capability != nil:
		entry := *olc.Reverse.DataType.Capability
		local := c.local.FindByWire(entry)
		if local == nil || olc.Reverse.MediaAddress == "" {
			return nil
		}
		remote := c.remote.FindByWire(entry)
		if remote == nil {
			if synthesize {
				remote = c.addRemoteCapability(entry)
			}
			if remote == nil {
				remote = local
			}
		}
		sessionID := olc.Reverse.SessionID
		if sessionID == 0 {
			sessionID = local.DefaultSessionID()
		}
		return &fastStartProposal{olc: olc, ch: &negotiator.LogicalChannel{
			Number:             olc.ChannelNumber,
			Direction:          negotiator.DirectionTransmitter,
			SessionID:          sessionID,
			Capability:         remote,
			FastStart:          true,
			RemoteMediaAddress: olc.Reverse.MediaAddress,
		}}
	}
	return nil
}

// addRemoteCapability дополняет таблицу удаленной стороны форматом из
// предложения, пока ее набор возможностей не получен.
func (c *Connection) addRemoteCapability(entry h245.CapabilityEntry) *capability.Capability {
	if existing := c.remote.FindByWire(entry); existing != nil {
		return existing
	}
	rc, ok := capability.FromWire(c.registry, entry)
	if !ok {
		return nil
	}
	return c.remote.Add(rc)
}

// commitFastStart принимает по одному предложению каждого направления в
// каждой сессии и возвращает ответные запросы. Повторный вызов
// возвращает nil.
func (c *Connection) commitFastStart() [][]byte {
	if c.outgoing || c.fastStart != fastStartProposed {
		return nil
	}
	rx := make(map[uint]bool)
	tx := make(map[uint]bool)
	var echo [][]byte
	for _, p := range c.fastStartProposals {
		ch := p.ch
		chosen := rx
		if ch.Direction == negotiator.DirectionTransmitter {
			chosen = tx
		}
		if chosen[ch.SessionID] {
			continue
		}
		sess, err := c.media.UseSession(ch.SessionID, ch.Capability.Format().MediaType)
		if err != nil {
			c.logger.Warn("медиа сессия для быстрого старта недоступна",
				slog.Int("session_id", int(ch.SessionID)), slog.Any("error", err))
			continue
		}
		ch.Media = sess
		ch.LocalMediaAddress = sess.LocalAddress()

		reply := *p.olc
		if ch.Direction == negotiator.DirectionReceiver {
			reply.Forward.MediaAddress = sess.LocalAddress()
		} else {
			rev := *p.olc.Reverse
			rev.MediaControlAddress = sess.LocalAddress()
			reply.Reverse = &rev
		}
		data, err := c.codec.EncodeControl(&reply)
		if err != nil {
			continue
		}
		chosen[ch.SessionID] = true
		ch.State = negotiator.ChannelEstablished
		c.lc.Insert(ch)
		c.channelEstablished(ch)
		echo = append(echo, data)
	}
	c.fastStartProposals = nil

	if len(echo) == 0 {
		c.logger.Info("ни одно предложение быстрого старта не принято")
		c.fastStart = fastStartDisabled
		c.metrics.fastStart.WithLabelValues("refused").Inc()
		return nil
	}
	c.fastStart = fastStartAcknowledged
	c.metrics.fastStart.WithLabelValues("accepted").Inc()
	c.logger.Info("быстрый старт принят", slog.Int("channels", len(echo)))
	return echo
}

// acceptFastStart вызывающая сторона устанавливает каналы, подтвержденные
// ответом удаленной стороны, и только для них создает медиа сессии.
func (c *Connection) acceptFastStart(raw [][]byte) {
	byNumber := make(map[uint]*fastStartProposal, len(c.fastStartProposals))
	for _, p := range c.fastStartProposals {
		byNumber[p.ch.Number] = p
	}
	used := make(map[uint]bool)
	for _, data := range raw {
		msg, err := c.codec.DecodeControl(data)
		olc, ok := msg.(*h245.OpenLogicalChannel)
		if err != nil || !ok {
			continue
		}
		p := byNumber[olc.ChannelNumber]
		if p == nil {
			continue
		}
		delete(byNumber, olc.ChannelNumber)
		ch := p.ch
		if ch.Direction == negotiator.DirectionTransmitter {
			if olc.Forward.MediaAddress == "" {
				continue
			}
			ch.RemoteMediaAddress = olc.Forward.MediaAddress
		} else if olc.Reverse != nil {
			ch.MediaControlAddress = olc.Reverse.MediaControlAddress
		}
		sess, err := c.media.UseSession(ch.SessionID, ch.Capability.Format().MediaType)
		if err != nil {
			c.logger.Warn("медиа сессия для быстрого старта недоступна",
				slog.Int("session_id", int(ch.SessionID)), slog.Any("error", err))
			continue
		}
		ch.Media = sess
		ch.State = negotiator.ChannelEstablished
		c.lc.Insert(ch)
		c.channelEstablished(ch)
		used[ch.SessionID] = true
	}

	released := make(map[uint]bool)
	for _, p := range c.fastStartProposals {
		if sid := p.ch.SessionID; !used[sid] && !released[sid] {
			released[sid] = true
			c.media.ReleaseSession(sid)
		}
	}
	c.fastStartProposals = nil

	if len(used) == 0 {
		c.fastStart = fastStartDisabled
		c.metrics.fastStart.WithLabelValues("refused").Inc()
		return
	}
	c.fastStart = fastStartAcknowledged
	c.metrics.fastStart.WithLabelValues("accepted").Inc()
	c.logger.Info("быстрый старт подтвержден", slog.Int("sessions", len(used)))
}

// discardFastStart отказывается от непринятых предложений.
func (c *Connection) discardFastStart() {
	if c.fastStart != fastStartProposed {
		return
	}
	if c.outgoing {
		released := make(map[uint]bool)
		for _, p := range c.fastStartProposals {
			if sid := p.ch.SessionID; !released[sid] {
				released[sid] = true
				c.media.ReleaseSession(sid)
			}
		}
	}
	c.fastStartProposals = nil
	c.fastStart = fastStartDisabled
}

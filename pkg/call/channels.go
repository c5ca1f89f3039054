package call

import (
	"crypto/rand"
	"log/slog"
	"time"

	"github.com/arzzra/h323phone/pkg/capability"
	"github.com/arzzra/h323phone/pkg/h245"
	"github.com/arzzra/h323phone/pkg/mediafmt"
	"github.com/arzzra/h323phone/pkg/negotiator"
)

const mediaKeySize = 16

func newMediaKey() []byte {
	key := make([]byte, mediaKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil
	}
	return key
}

func (s *controlSide) IsMaster() bool {
	return s.c.msd.IsMaster()
}

func (s *controlSide) LocalCapabilities() *capability.Set {
	return s.c.local
}

// OnReceivedCapabilitySet пустой набор ставит вызов на удержание
// удаленной стороной, следующий непустой снимает удержание.
func (s *controlSide) OnReceivedCapabilitySet(remote *capability.Set, empty bool) bool {
	c := s.c
	c.controlStarted = true
	if empty {
		if !c.holdFromRemote {
			c.logger.Info("удаленная сторона поставила вызов на удержание")
			c.holdFromRemote = true
			c.pauseTransmitters(true)
			c.handler.OnHold(c, true, true)
		}
		return true
	}

	if c.holdFromRemote {
		c.logger.Info("удаленная сторона сняла удержание")
		c.holdFromRemote = false
		c.remote.RemoveAll()
		c.remote.Merge(remote)
		c.pauseTransmitters(c.holdToRemote)
		c.handler.OnHold(c, true, false)
		if c.quirks.NeedMSDAfterNonEmptyTCS {
			c.msd.Restart()
		}
		if c.quirks.NeedTCSAfterNonEmptyTCS && !c.holdToRemote {
			c.tcs.Start(false)
		}
		return true
	}

	if !c.remote.Merge(remote) {
		return false
	}
	if !c.tcs.HasSentCapabilities() && !c.tcs.IsAwaitingAck() && !c.holdToRemote {
		c.tcs.Start(false)
	}
	return true
}

// OnOpeningChannel выделяет медиа сессию исходящему каналу. Ведущая
// сторона формирует ключ шифрования.
func (s *controlSide) OnOpeningChannel(ch *negotiator.LogicalChannel, req *h245.OpenLogicalChannel) bool {
	c := s.c
	sess, err := c.media.UseSession(ch.SessionID, ch.Capability.Format().MediaType)
	if err != nil {
		c.logger.Warn("медиа сессия недоступна",
			slog.Int("session_id", int(ch.SessionID)),
			slog.Any("error", newError(ErrorCategoryCapability, CodeMediaFailed, ch.String(), err)))
		return false
	}
	ch.Media = sess
	ch.LocalMediaAddress = sess.LocalAddress()
	req.Forward.MediaControlAddress = sess.LocalAddress()

	local := c.local.FindMatching(ch.Capability)
	remote := c.remote.FindMatching(ch.Capability)
	if local == nil || remote == nil || len(local.CryptoSuites()) == 0 {
		return true
	}
	suite, ok := local.SelectCryptoSuite(remote)
	if !ok {
		return true
	}
	ch.CryptoSuite = suite
	req.CryptoSuite = suite
	if c.msd.IsMaster() {
		key := newMediaKey()
		ch.EncryptionKey = key
		req.EncryptionKey = key
		c.applyKey(ch, true)
	}
	return true
}

// OnOpenChannel выделяет медиа сессию входящему каналу.
func (s *controlSide) OnOpenChannel(ch *negotiator.LogicalChannel, req *h245.OpenLogicalChannel) (h245.OLCRejectCause, bool) {
	c := s.c
	sess, err := c.media.UseSession(ch.SessionID, ch.Capability.Format().MediaType)
	if err != nil {
		c.logger.Warn("медиа сессия недоступна",
			slog.Int("session_id", int(ch.SessionID)), slog.Any("error", err))
		return h245.OLCRejectInsufficientBandwidth, false
	}
	ch.Media = sess
	ch.LocalMediaAddress = sess.LocalAddress()

	if req.CryptoSuite == "" {
		return "", true
	}
	if !capabilityHasSuite(ch.Capability, req.CryptoSuite) {
		return h245.OLCRejectDataTypeALCombination, false
	}
	switch {
	case len(req.EncryptionKey) > 0:
		c.applyKey(ch, false)
	case c.msd.IsMaster():
		ch.EncryptionKey = newMediaKey()
		c.applyKey(ch, true)
	}
	return "", true
}

func capabilityHasSuite(c *capability.Capability, suite string) bool {
	for _, s := range c.CryptoSuites() {
		if s == suite {
			return true
		}
	}
	return false
}

func (c *Connection) applyKey(ch *negotiator.LogicalChannel, initiator bool) {
	if ch.Media == nil || ch.CryptoSuite == "" || len(ch.EncryptionKey) == 0 {
		return
	}
	if err := ch.Media.ApplyCryptoKey(ch.CryptoSuite, ch.EncryptionKey, initiator); err != nil {
		c.logger.Warn("не удалось применить ключ медиа",
			slog.String("channel", ch.String()), slog.Any("error", err))
	}
}

func (s *controlSide) OnChannelEstablished(ch *negotiator.LogicalChannel) {
	c := s.c
	if ch.Direction == negotiator.DirectionTransmitter && !ch.FromRemote && !c.msd.IsMaster() {
		c.applyKey(ch, false)
	}
	c.channelEstablished(ch)
}

// channelEstablished запускает передачу для установленного канала.
func (c *Connection) channelEstablished(ch *negotiator.LogicalChannel) {
	c.logger.Info("канал установлен", slog.String("channel", ch.String()), slog.Bool("fast_start", ch.FastStart))
	if ch.Direction != negotiator.DirectionTransmitter || ch.Media == nil {
		return
	}
	if ch.RemoteMediaAddress != "" {
		if err := ch.Media.Open(ch.RemoteMediaAddress); err != nil {
			c.logger.Warn("не удалось открыть медиа передачу",
				slog.String("channel", ch.String()), slog.Any("error", err))
		}
	}
	if c.holdToRemote || c.holdFromRemote {
		ch.Paused = true
		ch.Media.SetPaused(true)
	}
}

func (s *controlSide) OnChannelClosed(ch *negotiator.LogicalChannel) {
	c := s.c
	c.logger.Info("канал закрыт", slog.String("channel", ch.String()))
	if ch.Media != nil && !c.sessionInUse(ch) {
		c.media.ReleaseSession(ch.SessionID)
	}
	c.handler.OnClosedChannel(c, ch)
}

// sessionInUse другие каналы сессии еще не закрыты.
func (c *Connection) sessionInUse(closed *negotiator.LogicalChannel) bool {
	for _, ch := range c.lc.All() {
		if ch != closed && ch.SessionID == closed.SessionID &&
			ch.State != negotiator.ChannelReleased && ch.State != negotiator.ChannelAwaitingRelease {
			return true
		}
	}
	return false
}

// OnConflictingChannel открывает канал заново с форматом ведущего.
func (s *controlSide) OnConflictingChannel(sessionID uint, masterCap *capability.Capability) {
	c := s.c
	if c.state == StateShuttingDown {
		return
	}
	tx := masterCap
	if remote := c.remote.FindMatching(masterCap); remote != nil {
		tx = remote
	}
	if _, ok := c.lc.Open(tx, sessionID); !ok {
		c.logger.Warn("не удалось повторно открыть канал", slog.Int("session_id", int(sessionID)))
	}
}

// OnRequestModeChange принимает режим, все элементы которого есть в
// локальной таблице, и переоткрывает свой канал передачи.
func (s *controlSide) OnRequestModeChange(req *h245.RequestMode) (int, bool) {
	c := s.c
	for i, mode := range req.Modes {
		var caps []*capability.Capability
		for _, el := range mode {
			local := c.local.FindByWire(h245.CapabilityEntry{
				MainType:      el.MainType,
				SubType:       el.SubType,
				Packetization: el.Packetization,
			})
			if local == nil {
				caps = nil
				break
			}
			caps = append(caps, local)
		}
		if len(caps) == 0 {
			continue
		}
		for _, lcap := range caps {
			c.reopenTransmitter(lcap)
		}
		return i, true
	}
	return 0, false
}

// reopenTransmitter заменяет канал передачи сессии каналом с новым форматом.
func (c *Connection) reopenTransmitter(lcap *capability.Capability) {
	sessionID := lcap.DefaultSessionID()
	tx := lcap
	if remote := c.remote.FindMatching(lcap); remote != nil {
		tx = remote
	}
	for _, ch := range c.lc.FindBySession(sessionID, negotiator.DirectionTransmitter) {
		if ch.FromRemote || !ch.IsOpen() {
			continue
		}
		if ch.Capability != nil && ch.Capability.Matches(tx) {
			return
		}
		c.lc.Close(ch.Number, false)
	}
	c.lc.Open(tx, sessionID)
}

func (s *controlSide) OnModeChangeResult(accepted bool) {
	s.c.logger.Info("результат смены режима", slog.Bool("accepted", accepted))
}

func (s *controlSide) OnRoundTripDelay(rtt time.Duration) {
	s.c.metrics.roundTripDelay.Observe(rtt.Seconds())
	s.c.logger.Debug("задержка на канале управления", slog.Duration("rtt", rtt))
}

func (s *controlSide) OnRoundTripTimeout() {
	s.c.logger.Warn("нет ответа на измерение задержки")
	if s.c.cfg.ClearCallOnRoundTripFail {
		s.c.Release(EndedByTransportFail)
	}
}

// checkEstablishment проверяет условие установления и открывает каналы
// по умолчанию. Вызывается после обработки каждого сообщения.
func (c *Connection) checkEstablishment() {
	if c.holdToRemote || c.state == StateShuttingDown {
		return
	}
	if !c.established {
		controlReady := c.msd.IsDetermined() && c.tcs.HasSentCapabilities() && c.tcs.HasReceivedCapabilities()
		fastReady := c.fastStart == fastStartAcknowledged && c.lc.HasEstablished()
		if !controlReady && !fastReady {
			return
		}
		c.established = true
		c.logger.Debug("условие установления выполнено",
			slog.Bool("control", controlReady), slog.Bool("fast_start", fastReady))
	}
	if c.state < StateHasExecutedSignalConnect {
		return
	}
	if !c.defaultChannels && c.msd.IsDetermined() && c.tcs.HasReceivedCapabilities() {
		c.defaultChannels = true
		c.openDefaultChannel(mediafmt.MediaTypeAudio, capability.MainTypeAudio)
		if c.cfg.AutoStartVideo {
			c.openDefaultChannel(mediafmt.MediaTypeVideo, capability.MainTypeVideo)
		}
	}
	if c.state < StateEstablished && c.lc.HasEstablished() {
		c.state = StateEstablished
		c.establishedAt = time.Now()
		c.fire(eventEstablish)
		c.logger.Info("вызов установлен", slog.Duration("setup_time", c.establishedAt.Sub(c.startedAt)))
		c.handler.OnEstablished(c)
	}
}

// openDefaultChannel открывает канал передачи сессии по умолчанию первым
// локальным форматом, который поддерживает удаленная сторона.
func (c *Connection) openDefaultChannel(mt mediafmt.MediaType, main capability.MainType) {
	for _, lcap := range c.local.FindByMainType(main) {
		sessionID := lcap.DefaultSessionID()
		if len(c.lc.FindBySession(sessionID, negotiator.DirectionTransmitter)) > 0 {
			return
		}
		remote := c.remote.FindMatching(lcap)
		if remote == nil {
			continue
		}
		if _, ok := c.lc.Open(remote, sessionID); ok {
			c.logger.Debug("открыт канал по умолчанию",
				slog.String("media", string(mt)), slog.String("format", remote.FormatName()))
		}
		return
	}
	c.logger.Debug("нет общего формата для канала по умолчанию", slog.String("media", string(mt)))
}

// pauseTransmitters приостанавливает или возобновляет все каналы передачи.
func (c *Connection) pauseTransmitters(paused bool) {
	for _, ch := range c.lc.FindBySession(0, negotiator.DirectionTransmitter) {
		ch.Paused = paused
		if ch.Media != nil {
			ch.Media.SetPaused(paused)
		}
	}
}

// Hold ставит удаленную сторону на удержание пустым набором возможностей.
func (c *Connection) Hold() error {
	c.mu.Lock()
	defer c.unlock()
	if c.state != StateEstablished || c.holdToRemote {
		return c.withToken(newError(ErrorCategoryState, CodeInvalidState, "удержание невозможно", nil))
	}
	c.withTunnel(func() {
		c.tcs.Start(true)
		c.holdToRemote = true
		c.established = false
		c.pauseTransmitters(true)
	})
	c.logger.Info("вызов поставлен на удержание")
	c.handler.OnHold(c, false, true)
	return nil
}

// Retrieve снимает локальное удержание.
func (c *Connection) Retrieve() error {
	c.mu.Lock()
	defer c.unlock()
	if !c.holdToRemote || c.state == StateShuttingDown {
		return c.withToken(newError(ErrorCategoryState, CodeInvalidState, "вызов не на удержании", nil))
	}
	c.withTunnel(func() {
		c.holdToRemote = false
		c.tcs.Start(false)
		c.pauseTransmitters(c.holdFromRemote)
		c.checkEstablishment()
	})
	c.logger.Info("удержание снято")
	c.handler.OnHold(c, false, false)
	return nil
}

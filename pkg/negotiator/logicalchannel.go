package negotiator

import (
	"log/slog"
	"slices"
	"time"

	"github.com/arzzra/h323phone/pkg/capability"
	"github.com/arzzra/h323phone/pkg/h245"
)

// ChannelEvents сторона соединения, управляющая медиа каналов.
type ChannelEvents interface {
	IsMaster() bool
	LocalCapabilities() *capability.Set
	// OnOpeningChannel готовит исходящий канал (медиа сессия, адреса) и
	// дополняет запрос. false отменяет открытие.
	OnOpeningChannel(ch *LogicalChannel, req *h245.OpenLogicalChannel) bool
	// OnOpenChannel готовит входящий канал. При отказе возвращает причину.
	OnOpenChannel(ch *LogicalChannel, req *h245.OpenLogicalChannel) (h245.OLCRejectCause, bool)
	OnChannelEstablished(ch *LogicalChannel)
	OnChannelClosed(ch *LogicalChannel)
	// OnConflictingChannel вызывается на ведомой стороне: собственный
	// канал сессии уступает формату ведущего и должен быть открыт заново.
	OnConflictingChannel(sessionID uint, masterCapability *capability.Capability)
}

// LogicalChannelsConfig настройки процедуры логических каналов.
type LogicalChannelsConfig struct {
	// Timeout таймер T103
	Timeout time.Duration
	Logger  *slog.Logger
}

// LogicalChannels словарь логических каналов соединения.
type LogicalChannels struct {
	conn   Conn
	events ChannelEvents
	cfg    LogicalChannelsConfig
	logger *slog.Logger

	channels   map[ChannelKey]*LogicalChannel
	nextNumber uint
	// conflicts сессии, в которых ведущий отклонил наш канал до получения
	// его собственного запроса
	conflicts map[uint]bool
}

// NewLogicalChannels создает словарь каналов.
func NewLogicalChannels(conn Conn, events ChannelEvents, cfg LogicalChannelsConfig) *LogicalChannels {
	return &LogicalChannels{
		conn:       conn,
		events:     events,
		cfg:        cfg,
		logger:     componentLogger(cfg.Logger, "h245.lc"),
		channels:   make(map[ChannelKey]*LogicalChannel),
		nextNumber: 1,
		conflicts:  make(map[uint]bool),
	}
}

// NextChannelNumber выделяет номер для канала, открываемого локально.
func (lc *LogicalChannels) NextChannelNumber() uint {
	for {
		n := lc.nextNumber
		lc.nextNumber++
		if _, used := lc.channels[ChannelKey{Number: n}]; !used {
			return n
		}
	}
}

// Insert добавляет канал, открытый вне процедуры (быстрый старт).
func (lc *LogicalChannels) Insert(ch *LogicalChannel) {
	if ch.OpenedAt.IsZero() {
		ch.OpenedAt = time.Now()
	}
	lc.channels[ch.Key()] = ch
}

// Open отправляет OpenLogicalChannel для передаваемого канала.
func (lc *LogicalChannels) Open(c *capability.Capability, sessionID uint) (*LogicalChannel, bool) {
	if sessionID == 0 {
		sessionID = c.DefaultSessionID()
	}
	ch := &LogicalChannel{
		Number:     lc.NextChannelNumber(),
		Direction:  DirectionTransmitter,
		SessionID:  sessionID,
		Capability: c,
		State:      ChannelAwaitingEstablishment,
		timer:      timer{timeout: lc.cfg.Timeout},
		OpenedAt:   time.Now(),
	}
	entry := c.ToWire()
	req := &h245.OpenLogicalChannel{
		ChannelNumber: ch.Number,
		Forward: h245.ChannelParameters{
			DataType:  h245.DataType{Capability: &entry},
			SessionID: sessionID,
		},
	}
	if !lc.events.OnOpeningChannel(ch, req) {
		return nil, false
	}
	lc.channels[ch.Key()] = ch
	ch.timer.start()
	lc.logger.Debug("открытие канала", slog.String("channel", ch.String()))
	if !lc.conn.WriteControl(req) {
		delete(lc.channels, ch.Key())
		return nil, false
	}
	return ch, true
}

// HandleOpen обрабатывает OpenLogicalChannel удаленной стороны.
func (lc *LogicalChannels) HandleOpen(req *h245.OpenLogicalChannel) bool {
	key := ChannelKey{Number: req.ChannelNumber, FromRemote: true}
	if old, ok := lc.channels[key]; ok && old.State != ChannelReleased {
		lc.logger.Debug("повторное открытие канала, прежний закрывается", slog.String("channel", old.String()))
		lc.release(old)
	}

	reject := func(cause h245.OLCRejectCause) bool {
		lc.logger.Info("открытие канала отклонено",
			slog.Int("channel", int(req.ChannelNumber)),
			slog.String("cause", string(cause)))
		return lc.conn.WriteControl(&h245.OpenLogicalChannelReject{ChannelNumber: req.ChannelNumber, Cause: cause})
	}

	dt := req.Forward.DataType
	if dt.Null || dt.Capability == nil {
		return reject(h245.OLCRejectUnspecified)
	}
	local := lc.events.LocalCapabilities().FindByWire(*dt.Capability)
	if local == nil {
		return reject(h245.OLCRejectDataTypeNotSupported)
	}
	sessionID := req.Forward.SessionID
	if sessionID == 0 {
		sessionID = local.DefaultSessionID()
	}

	own := lc.conflictingTransmitter(sessionID, dt.Capability)
	if own != nil && lc.events.IsMaster() {
		return reject(h245.OLCRejectMasterSlaveConflict)
	}

	for _, other := range lc.FindBySession(0, DirectionReceiver) {
		if other.IsOpen() && other.Capability != nil && other.SessionID != sessionID &&
			!lc.events.LocalCapabilities().IsAllowed(local.Number(), other.Capability.Number()) {
			return reject(h245.OLCRejectDataTypeNotAvailable)
		}
	}

	ch := &LogicalChannel{
		Number:              req.ChannelNumber,
		FromRemote:          true,
		Direction:           DirectionReceiver,
		SessionID:           sessionID,
		Capability:          local,
		State:               ChannelAwaitingEstablishment,
		MediaControlAddress: req.Forward.MediaControlAddress,
		CryptoSuite:         req.CryptoSuite,
		EncryptionKey:       req.EncryptionKey,
		OpenedAt:            time.Now(),
	}
	if cause, ok := lc.events.OnOpenChannel(ch, req); !ok {
		return reject(cause)
	}

	lc.channels[key] = ch
	ch.State = ChannelEstablished
	ok := lc.conn.WriteControl(&h245.OpenLogicalChannelAck{
		ChannelNumber: ch.Number,
		SessionID:     ch.SessionID,
		MediaAddress:  ch.LocalMediaAddress,
		EncryptionKey: ch.EncryptionKey,
	})
	lc.events.OnChannelEstablished(ch)

	if own != nil || lc.conflicts[sessionID] {
		delete(lc.conflicts, sessionID)
		if own != nil {
			lc.logger.Info("конфликт каналов: уступаем формату ведущего", slog.String("channel", own.String()))
			lc.Close(own.Number, false)
		}
		lc.events.OnConflictingChannel(sessionID, local)
	}
	return ok
}

// conflictingTransmitter ищет собственный передаваемый канал сессии с
// форматом, отличным от предложенного удаленной стороной.
func (lc *LogicalChannels) conflictingTransmitter(sessionID uint, proposed *h245.CapabilityEntry) *LogicalChannel {
	for _, ch := range lc.channels {
		if ch.FromRemote || ch.FastStart || ch.Direction != DirectionTransmitter || ch.SessionID != sessionID {
			continue
		}
		if ch.State != ChannelAwaitingEstablishment && ch.State != ChannelEstablished {
			continue
		}
		if ch.Capability != nil && !ch.Capability.MatchesWire(*proposed) {
			return ch
		}
	}
	return nil
}

// HandleOpenAck обрабатывает подтверждение открытия.
func (lc *LogicalChannels) HandleOpenAck(ack *h245.OpenLogicalChannelAck) bool {
	ch, ok := lc.channels[ChannelKey{Number: ack.ChannelNumber}]
	if !ok || ch.State != ChannelAwaitingEstablishment {
		lc.logger.Debug("подтверждение для неизвестного канала", slog.Int("channel", int(ack.ChannelNumber)))
		return true
	}
	ch.timer.stop()
	ch.RemoteMediaAddress = ack.MediaAddress
	if len(ack.EncryptionKey) > 0 {
		ch.EncryptionKey = ack.EncryptionKey
	}
	if ack.MediaControlAddress != "" {
		ch.MediaControlAddress = ack.MediaControlAddress
	}
	ch.State = ChannelEstablished
	lc.logger.Debug("канал установлен", slog.String("channel", ch.String()))
	lc.events.OnChannelEstablished(ch)
	return true
}

// HandleOpenReject обрабатывает отказ в открытии.
func (lc *LogicalChannels) HandleOpenReject(rej *h245.OpenLogicalChannelReject) bool {
	ch, ok := lc.channels[ChannelKey{Number: rej.ChannelNumber}]
	if !ok || ch.State != ChannelAwaitingEstablishment {
		return true
	}
	lc.logger.Info("удаленная сторона отклонила канал",
		slog.String("channel", ch.String()),
		slog.String("cause", string(rej.Cause)))
	lc.release(ch)

	if rej.Cause != h245.OLCRejectMasterSlaveConflict || lc.events.IsMaster() {
		lc.conn.OnControlProtocolError(ProcLogicalChannel, string(rej.Cause))
		return true
	}
	for _, remote := range lc.FindBySession(ch.SessionID, DirectionReceiver) {
		if remote.IsOpen() && remote.Capability != nil {
			lc.events.OnConflictingChannel(ch.SessionID, remote.Capability)
			return true
		}
	}
	lc.conflicts[ch.SessionID] = true
	return true
}

// Close закрывает канал. Для собственного канала отправляется
// CloseLogicalChannel, для канала удаленной стороны RequestChannelClose.
func (lc *LogicalChannels) Close(number uint, fromRemote bool) bool {
	ch, ok := lc.channels[ChannelKey{Number: number, FromRemote: fromRemote}]
	if !ok || ch.State == ChannelReleased || ch.State == ChannelAwaitingRelease {
		return false
	}
	if fromRemote {
		return lc.conn.WriteControl(&h245.RequestChannelClose{ChannelNumber: number})
	}
	if ch.FastStart && ch.Direction == DirectionReceiver {
		lc.release(ch)
		return true
	}

	ch.State = ChannelAwaitingRelease
	ch.timer = timer{timeout: lc.cfg.Timeout}
	ch.timer.start()
	lc.events.OnChannelClosed(ch)
	return lc.conn.WriteControl(&h245.CloseLogicalChannel{ChannelNumber: number, Source: h245.CloseSourceUser})
}

// HandleClose обрабатывает CloseLogicalChannel удаленной стороны.
func (lc *LogicalChannels) HandleClose(req *h245.CloseLogicalChannel) bool {
	if ch, ok := lc.channels[ChannelKey{Number: req.ChannelNumber, FromRemote: true}]; ok {
		lc.release(ch)
	} else if ch, ok := lc.channels[ChannelKey{Number: req.ChannelNumber}]; ok && ch.FastStart && ch.Direction == DirectionReceiver {
		// канал быстрого старта, передаваемый удаленной стороной, нумеруется локально
		lc.release(ch)
	}
	return lc.conn.WriteControl(&h245.CloseLogicalChannelAck{ChannelNumber: req.ChannelNumber})
}

// HandleCloseAck завершает закрытие собственного канала.
func (lc *LogicalChannels) HandleCloseAck(ack *h245.CloseLogicalChannelAck) bool {
	key := ChannelKey{Number: ack.ChannelNumber}
	if ch, ok := lc.channels[key]; ok && ch.State == ChannelAwaitingRelease {
		ch.State = ChannelReleased
		delete(lc.channels, key)
	}
	return true
}

// HandleRequestClose обрабатывает просьбу закрыть собственный канал.
func (lc *LogicalChannels) HandleRequestClose(req *h245.RequestChannelClose) bool {
	ch, ok := lc.channels[ChannelKey{Number: req.ChannelNumber}]
	if !ok || ch.State != ChannelEstablished {
		return lc.conn.WriteControl(&h245.RequestChannelCloseReject{ChannelNumber: req.ChannelNumber})
	}
	if !lc.conn.WriteControl(&h245.RequestChannelCloseAck{ChannelNumber: req.ChannelNumber}) {
		return false
	}
	return lc.Close(req.ChannelNumber, false)
}

// HandleRequestCloseResponse обрабатывает ответы на RequestChannelClose.
func (lc *LogicalChannels) HandleRequestCloseResponse(msg h245.Message) bool {
	lc.logger.Debug("ответ на запрос закрытия канала", slog.String("kind", msg.Kind().String()))
	return true
}

// CheckTimeouts проверяет таймеры T103 ожидающих каналов.
func (lc *LogicalChannels) CheckTimeouts(now time.Time) {
	for _, ch := range lc.All() {
		if !ch.timer.expired(now) {
			continue
		}
		switch ch.State {
		case ChannelAwaitingEstablishment:
			lc.logger.Warn("таймаут открытия канала", slog.String("channel", ch.String()))
			lc.conn.WriteControl(&h245.CloseLogicalChannel{ChannelNumber: ch.Number, Source: h245.CloseSourceLCSE})
			lc.release(ch)
			lc.conn.OnControlProtocolError(ProcLogicalChannel, "таймаут открытия")
		case ChannelAwaitingRelease:
			ch.State = ChannelReleased
			delete(lc.channels, ch.Key())
		}
	}
}

// release переводит канал в Released и удаляет из словаря.
func (lc *LogicalChannels) release(ch *LogicalChannel) {
	wasClosing := ch.State == ChannelAwaitingRelease
	ch.State = ChannelReleased
	ch.timer.stop()
	delete(lc.channels, ch.Key())
	if !wasClosing {
		lc.events.OnChannelClosed(ch)
	}
}

// ReleaseAll закрывает все каналы без обмена сообщениями.
func (lc *LogicalChannels) ReleaseAll() {
	for _, ch := range lc.All() {
		lc.release(ch)
	}
	clear(lc.conflicts)
}

// Find ищет канал по номеру.
func (lc *LogicalChannels) Find(number uint, fromRemote bool) *LogicalChannel {
	return lc.channels[ChannelKey{Number: number, FromRemote: fromRemote}]
}

// FindBySession возвращает каналы направления в сессии; нулевая сессия
// означает любую.
func (lc *LogicalChannels) FindBySession(sessionID uint, dir ChannelDirection) []*LogicalChannel {
	var out []*LogicalChannel
	for _, ch := range lc.All() {
		if ch.Direction == dir && (sessionID == 0 || ch.SessionID == sessionID) {
			out = append(out, ch)
		}
	}
	return out
}

// All возвращает каналы в детерминированном порядке.
func (lc *LogicalChannels) All() []*LogicalChannel {
	out := make([]*LogicalChannel, 0, len(lc.channels))
	for _, ch := range lc.channels {
		out = append(out, ch)
	}
	slices.SortFunc(out, func(a, b *LogicalChannel) int {
		if a.FromRemote != b.FromRemote {
			if a.FromRemote {
				return 1
			}
			return -1
		}
		return int(a.Number) - int(b.Number)
	})
	return out
}

// HasEstablished есть хотя бы один установленный канал.
func (lc *LogicalChannels) HasEstablished() bool {
	for _, ch := range lc.channels {
		if ch.State == ChannelEstablished {
			return true
		}
	}
	return false
}

// HasPending есть каналы, ожидающие установления.
func (lc *LogicalChannels) HasPending() bool {
	for _, ch := range lc.channels {
		if ch.State == ChannelAwaitingEstablishment {
			return true
		}
	}
	return false
}

package negotiator

import (
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	"time"

	"github.com/arzzra/h323phone/pkg/h245"
)

const determinationMask = 0xFFFFFF

// MasterSlaveStatus результат определения.
type MasterSlaveStatus int

const (
	StatusIndeterminate MasterSlaveStatus = iota
	StatusMaster
	StatusSlave
)

func (s MasterSlaveStatus) String() string {
	switch s {
	case StatusMaster:
		return "master"
	case StatusSlave:
		return "slave"
	}
	return "indeterminate"
}

// MasterSlaveEvents уведомления процедуры определения ведущего.
type MasterSlaveEvents interface {
	OnMasterSlaveDetermined(master bool)
}

// MasterSlaveConfig настройки определения ведущего.
type MasterSlaveConfig struct {
	// TerminalType больший тип терминала становится ведущим
	TerminalType uint8
	// Retries предел повторов при совпадении номеров
	Retries int
	// Timeout таймер T106
	Timeout time.Duration
	// NumberSource источник номеров определения, по умолчанию crypto/rand
	NumberSource func() uint32
	Logger       *slog.Logger
}

type msdState int

const (
	msdIdle msdState = iota
	msdOutgoingAwaiting
	msdIncomingAwaiting
	msdDetermined
	msdFailed
)

// MasterSlave процедура определения ведущего/ведомого.
type MasterSlave struct {
	conn   Conn
	events MasterSlaveEvents
	cfg    MasterSlaveConfig
	logger *slog.Logger

	state   msdState
	status  MasterSlaveStatus
	number  uint32
	retries int
	timer   timer
}

// NewMasterSlave создает процедуру определения ведущего.
func NewMasterSlave(conn Conn, events MasterSlaveEvents, cfg MasterSlaveConfig) *MasterSlave {
	if cfg.NumberSource == nil {
		cfg.NumberSource = randomDeterminationNumber
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 1
	}
	return &MasterSlave{
		conn:   conn,
		events: events,
		cfg:    cfg,
		logger: componentLogger(cfg.Logger, "h245.msd"),
		timer:  timer{timeout: cfg.Timeout},
	}
}

func randomDeterminationNumber() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint32(time.Now().UnixNano())
	}
	return binary.BigEndian.Uint32(b[:])
}

// Start начинает определение. Повторный вызов во время процедуры или
// после ее завершения ничего не делает.
func (m *MasterSlave) Start() bool {
	if m.state == msdOutgoingAwaiting || m.state == msdIncomingAwaiting || m.state == msdDetermined {
		return true
	}
	m.retries = 0
	m.generateNumber()
	return m.sendDetermination()
}

// Restart сбрасывает результат и начинает определение заново.
func (m *MasterSlave) Restart() bool {
	m.Stop()
	return m.Start()
}

func (m *MasterSlave) generateNumber() {
	m.number = m.cfg.NumberSource() & determinationMask
}

func (m *MasterSlave) sendDetermination() bool {
	m.state = msdOutgoingAwaiting
	m.timer.start()
	m.logger.Debug("отправка MasterSlaveDetermination",
		slog.Int("terminal_type", int(m.cfg.TerminalType)),
		slog.Int("number", int(m.number)),
		slog.Int("retry", m.retries))
	return m.conn.WriteControl(&h245.MasterSlaveDetermination{
		TerminalType:        m.cfg.TerminalType,
		DeterminationNumber: m.number,
	})
}

func (m *MasterSlave) determine(pdu *h245.MasterSlaveDetermination) MasterSlaveStatus {
	switch {
	case pdu.TerminalType < m.cfg.TerminalType:
		return StatusMaster
	case pdu.TerminalType > m.cfg.TerminalType:
		return StatusSlave
	}
	diff := (pdu.DeterminationNumber - m.number) & determinationMask
	switch {
	case diff == 0 || diff == 0x800000:
		return StatusIndeterminate
	case diff < 0x800000:
		return StatusMaster
	}
	return StatusSlave
}

// HandleIncoming обрабатывает MasterSlaveDetermination удаленной стороны.
func (m *MasterSlave) HandleIncoming(pdu *h245.MasterSlaveDetermination) bool {
	if m.state == msdIdle || m.state == msdDetermined || m.state == msdFailed {
		if m.state != msdIdle {
			m.logger.Debug("удаленная сторона повторяет определение ведущего")
		}
		m.state = msdIdle
		m.generateNumber()
	}

	status := m.determine(pdu)
	if status == StatusIndeterminate {
		if m.state == msdOutgoingAwaiting {
			m.retries++
			if m.retries < m.cfg.Retries {
				m.generateNumber()
				return m.sendDetermination()
			}
			m.fail("превышено число повторов")
			return m.conn.WriteControl(&h245.MasterSlaveDeterminationReject{Cause: h245.MSDRejectMaxRetriesExceeded})
		}
		return m.conn.WriteControl(&h245.MasterSlaveDeterminationReject{Cause: h245.MSDRejectIdenticalNumbers})
	}

	m.status = status
	m.state = msdIncomingAwaiting
	m.timer.start()
	return m.conn.WriteControl(&h245.MasterSlaveDeterminationAck{Decision: peerDecision(status)})
}

// peerDecision решение, сообщаемое удаленной стороне, с ее точки зрения.
func peerDecision(local MasterSlaveStatus) h245.Decision {
	if local == StatusMaster {
		return h245.DecisionSlave
	}
	return h245.DecisionMaster
}

func statusFromDecision(d h245.Decision) MasterSlaveStatus {
	if d == h245.DecisionMaster {
		return StatusMaster
	}
	return StatusSlave
}

// HandleAck обрабатывает MasterSlaveDeterminationAck.
func (m *MasterSlave) HandleAck(pdu *h245.MasterSlaveDeterminationAck) bool {
	status := statusFromDecision(pdu.Decision)
	switch m.state {
	case msdOutgoingAwaiting:
		m.status = status
		ok := m.conn.WriteControl(&h245.MasterSlaveDeterminationAck{Decision: peerDecision(status)})
		m.determined()
		return ok
	case msdIncomingAwaiting:
		if status != m.status {
			m.fail("несогласованное решение")
			return true
		}
		m.determined()
	default:
		m.logger.Debug("подтверждение вне процедуры проигнорировано")
	}
	return true
}

// HandleReject обрабатывает MasterSlaveDeterminationReject.
func (m *MasterSlave) HandleReject(pdu *h245.MasterSlaveDeterminationReject) bool {
	switch m.state {
	case msdOutgoingAwaiting:
		m.retries++
		if m.retries < m.cfg.Retries {
			m.generateNumber()
			return m.sendDetermination()
		}
		m.fail("превышено число повторов")
		return m.conn.WriteControl(&h245.MasterSlaveDeterminationRelease{})
	case msdIncomingAwaiting:
		m.fail(string(pdu.Cause))
	}
	return true
}

// HandleRelease обрабатывает MasterSlaveDeterminationRelease.
func (m *MasterSlave) HandleRelease(*h245.MasterSlaveDeterminationRelease) bool {
	if m.state == msdOutgoingAwaiting || m.state == msdIncomingAwaiting {
		m.fail("удаленная сторона прервала процедуру")
		m.state = msdIdle
	}
	return true
}

// CheckTimeout проверяет таймер T106.
func (m *MasterSlave) CheckTimeout(now time.Time) {
	if (m.state == msdOutgoingAwaiting || m.state == msdIncomingAwaiting) && m.timer.expired(now) {
		m.conn.WriteControl(&h245.MasterSlaveDeterminationRelease{})
		m.fail("таймаут")
	}
}

// Stop прекращает процедуру и сбрасывает результат.
func (m *MasterSlave) Stop() {
	m.state = msdIdle
	m.status = StatusIndeterminate
	m.retries = 0
	m.timer.stop()
}

func (m *MasterSlave) determined() {
	m.state = msdDetermined
	m.timer.stop()
	m.logger.Info("определен ведущий/ведомый", slog.String("status", m.status.String()))
	m.events.OnMasterSlaveDetermined(m.status == StatusMaster)
}

func (m *MasterSlave) fail(reason string) {
	m.state = msdFailed
	m.status = StatusIndeterminate
	m.timer.stop()
	m.logger.Warn("определение ведущего не удалось", slog.String("reason", reason))
	m.conn.OnControlProtocolError(ProcMasterSlave, reason)
}

// IsDetermined определение завершено.
func (m *MasterSlave) IsDetermined() bool { return m.state == msdDetermined }

// IsMaster локальная сторона ведущая.
func (m *MasterSlave) IsMaster() bool { return m.state == msdDetermined && m.status == StatusMaster }

// Status текущий результат.
func (m *MasterSlave) Status() MasterSlaveStatus { return m.status }

// Retries число выполненных повторов.
func (m *MasterSlave) Retries() int { return m.retries }

// State обобщенное состояние процедуры.
func (m *MasterSlave) State() State {
	switch m.state {
	case msdOutgoingAwaiting, msdIncomingAwaiting:
		return StateAwaitingPeer
	case msdDetermined:
		return StateAcked
	case msdFailed:
		return StateReleased
	}
	return StateIdle
}

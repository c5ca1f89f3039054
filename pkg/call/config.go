package call

import (
	"fmt"
	"strings"
	"time"
)

// Quirks именованные поправки совместимости с конкретными реализациями.
// Проверяются в фиксированных точках обработки.
type Quirks struct {
	// NoMultipleTunnelledH245 не более одного PDU H.245 в сообщении сигнализации
	NoMultipleTunnelledH245 bool `mapstructure:"no_multiple_tunnelled_h245"`
	// NeedTCSAfterNonEmptyTCS повторно отправлять свой набор возможностей
	// после снятия удержания удаленной стороной
	NeedTCSAfterNonEmptyTCS bool `mapstructure:"need_tcs_after_non_empty_tcs"`
	// NeedMSDAfterNonEmptyTCS повторять определение ведущего после снятия удержания
	NeedMSDAfterNonEmptyTCS bool `mapstructure:"need_msd_after_non_empty_tcs"`
	// NoFastStartAckOnAlerting подтверждать быстрый старт только в Connect
	NoFastStartAckOnAlerting bool `mapstructure:"no_fast_start_ack_on_alerting"`
	// ForceTunnelingOff не туннелировать H.245 с данной реализацией
	ForceTunnelingOff bool `mapstructure:"force_tunneling_off"`
}

func (q Quirks) merge(other Quirks) Quirks {
	return Quirks{
		NoMultipleTunnelledH245:  q.NoMultipleTunnelledH245 || other.NoMultipleTunnelledH245,
		NeedTCSAfterNonEmptyTCS:  q.NeedTCSAfterNonEmptyTCS || other.NeedTCSAfterNonEmptyTCS,
		NeedMSDAfterNonEmptyTCS:  q.NeedMSDAfterNonEmptyTCS || other.NeedMSDAfterNonEmptyTCS,
		NoFastStartAckOnAlerting: q.NoFastStartAckOnAlerting || other.NoFastStartAckOnAlerting,
		ForceTunnelingOff:        q.ForceTunnelingOff || other.ForceTunnelingOff,
	}
}

// Timeouts таймеры вызова и процедур управления.
type Timeouts struct {
	// MasterSlave T106
	MasterSlave time.Duration `mapstructure:"master_slave"`
	// CapabilityExchange T101
	CapabilityExchange time.Duration `mapstructure:"capability_exchange"`
	// LogicalChannel T103
	LogicalChannel time.Duration `mapstructure:"logical_channel"`
	// RequestMode T109
	RequestMode time.Duration `mapstructure:"request_mode"`
	// RoundTripDelay T105
	RoundTripDelay time.Duration `mapstructure:"round_trip_delay"`
	// RoundTripDelayRate период измерения задержки, ноль отключает
	RoundTripDelayRate time.Duration `mapstructure:"round_trip_delay_rate"`
	// NoAnswer ожидание ответа вызываемой стороны
	NoAnswer time.Duration `mapstructure:"no_answer"`
	// MediaNegotiation ожидание первого медиа канала после Connect
	MediaNegotiation time.Duration `mapstructure:"media_negotiation"`
	// EndSession ожидание EndSessionCommand удаленной стороны при завершении
	EndSession time.Duration `mapstructure:"end_session"`
	// Admission ограничивает запрос допуска
	Admission time.Duration `mapstructure:"admission"`
	// Monitor период проверки таймеров читающей горутиной
	Monitor time.Duration `mapstructure:"monitor"`
	// SignalKeepAlive период StatusEnquiry без канала управления, ноль отключает
	SignalKeepAlive time.Duration `mapstructure:"signal_keep_alive"`
	// MaxCallDuration предельная длительность вызова, ноль снимает предел
	MaxCallDuration time.Duration `mapstructure:"max_call_duration"`
}

// Config настройки вызовов конечной точки.
type Config struct {
	// LocalAlias псевдоним локальной стороны
	LocalAlias  string `mapstructure:"local_alias"`
	DisplayName string `mapstructure:"display_name"`
	// Vendor идентификатор реализации, сообщаемый удаленной стороне
	Vendor string `mapstructure:"vendor"`
	// TerminalType тип терминала для определения ведущего
	TerminalType uint8 `mapstructure:"terminal_type"`
	// MasterSlaveRetries предел повторов определения ведущего
	MasterSlaveRetries int `mapstructure:"master_slave_retries"`

	// Formats имена форматов локальной таблицы возможностей в порядке
	// предпочтения
	Formats []string `mapstructure:"formats"`
	// PreferredFormats шаблоны порядка форматов перед отправкой набора
	PreferredFormats []string `mapstructure:"preferred_formats"`
	// CryptoSuites криптонаборы, добавляемые к медиа возможностям
	CryptoSuites []string `mapstructure:"crypto_suites"`

	FastStart bool `mapstructure:"fast_start"`
	Tunneling bool `mapstructure:"tunneling"`
	// H245InSetup начинать процедуры H.245 в сообщении SETUP
	H245InSetup bool `mapstructure:"h245_in_setup"`
	// AutoStartVideo открывать видео канал при установлении
	AutoStartVideo bool `mapstructure:"auto_start_video"`
	// ClearCallOnRoundTripFail завершать вызов без ответа на измерение задержки
	ClearCallOnRoundTripFail bool `mapstructure:"clear_call_on_round_trip_fail"`

	Timeouts Timeouts `mapstructure:"timeouts"`
	Quirks   Quirks   `mapstructure:"quirks"`
	// VendorQuirks поправки по подстроке идентификатора удаленной реализации
	VendorQuirks map[string]Quirks `mapstructure:"vendor_quirks"`
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		LocalAlias:         "h323phone",
		Vendor:             "arzzra h323phone",
		TerminalType:       50,
		MasterSlaveRetries: 5,
		Formats:            []string{"G.711-uLaw-64k", "G.711-ALaw-64k", "G.729A", "UserInput/dtmf"},
		FastStart:          true,
		Tunneling:          true,
		Timeouts: Timeouts{
			MasterSlave:        30 * time.Second,
			CapabilityExchange: 30 * time.Second,
			LogicalChannel:     30 * time.Second,
			RequestMode:        30 * time.Second,
			RoundTripDelay:     10 * time.Second,
			NoAnswer:           3 * time.Minute,
			MediaNegotiation:   30 * time.Second,
			EndSession:         3 * time.Second,
			Admission:          5 * time.Second,
			Monitor:            time.Second,
		},
	}
}

// Validate проверяет согласованность конфигурации
func (c *Config) Validate() error {
	if c.MasterSlaveRetries < 1 {
		return fmt.Errorf("master_slave_retries должен быть положительным: %d", c.MasterSlaveRetries)
	}
	if len(c.Formats) == 0 {
		return fmt.Errorf("не задано ни одного формата")
	}
	if c.Timeouts.Monitor <= 0 {
		return fmt.Errorf("период монитора должен быть положительным")
	}
	if c.Timeouts.EndSession < 0 {
		return fmt.Errorf("отрицательный таймаут end_session")
	}
	if c.H245InSetup && !c.Tunneling {
		return fmt.Errorf("h245_in_setup требует туннелирования")
	}
	return nil
}

// quirksFor поправки для реализации удаленной стороны.
func (c *Config) quirksFor(vendor string) Quirks {
	q := c.Quirks
	if vendor == "" {
		return q
	}
	lower := strings.ToLower(vendor)
	for key, vq := range c.VendorQuirks {
		if strings.Contains(lower, strings.ToLower(key)) {
			q = q.merge(vq)
		}
	}
	return q
}

package h245

// Направления возможности в таблице возможностей.
const (
	DirectionReceive            = "receive"
	DirectionTransmit           = "transmit"
	DirectionReceiveAndTransmit = "receiveAndTransmit"
)

// CapabilityEntry запись таблицы возможностей в представлении протокола.
type CapabilityEntry struct {
	Number        uint     `json:"number"`
	MainType      string   `json:"mainType"`
	SubType       string   `json:"subType"`
	Direction     string   `json:"direction,omitempty"`
	Packetization string   `json:"packetization,omitempty"`
	MaxFrames     uint     `json:"maxFrames,omitempty"`
	MaxBitRate    uint     `json:"maxBitRate,omitempty"`
	CryptoSuites  []string `json:"cryptoSuites,omitempty"`
}

// CapabilityDescriptor дескриптор: список одновременных наборов
// альтернатив, каждая альтернатива задана номером записи таблицы.
type CapabilityDescriptor struct {
	Number       uint     `json:"number"`
	Simultaneous [][]uint `json:"simultaneous"`
}

// DataType тип данных логического канала. Null означает отсутствие
// медиа в данном направлении.
type DataType struct {
	Null       bool             `json:"null,omitempty"`
	Capability *CapabilityEntry `json:"capability,omitempty"`
}

// ChannelParameters параметры одного направления логического канала.
type ChannelParameters struct {
	DataType            DataType `json:"dataType"`
	SessionID           uint     `json:"sessionID"`
	MediaAddress        string   `json:"mediaAddress,omitempty"`
	MediaControlAddress string   `json:"mediaControlAddress,omitempty"`
	DynamicPayloadType  uint8    `json:"dynamicPayloadType,omitempty"`
	Silence             bool     `json:"silenceSuppression,omitempty"`
}

// ModeElement элемент запрашиваемого режима.
type ModeElement struct {
	MainType      string `json:"mainType"`
	SubType       string `json:"subType"`
	Packetization string `json:"packetization,omitempty"`
}

// ModeDescription набор элементов, передаваемых одновременно.
type ModeDescription []ModeElement

// Package h225 описывает сообщения сигнализации H.225.0/Q.931 вместе с
// полями user-user информации, которые используются управлением вызовом.
package h225

import "fmt"

// MessageType тип сообщения Q.931. Используется только для диспетчеризации.
type MessageType int

const (
	TypeUnknown MessageType = iota
	TypeSetup
	TypeSetupAck
	TypeCallProceeding
	TypeAlerting
	TypeProgress
	TypeConnect
	TypeFacility
	TypeReleaseComplete
	TypeNotify
	TypeStatus
	TypeStatusEnquiry
	TypeInformation
)

var typeNames = map[MessageType]string{
	TypeUnknown:         "Unknown",
	TypeSetup:           "Setup",
	TypeSetupAck:        "SetupAcknowledge",
	TypeCallProceeding:  "CallProceeding",
	TypeAlerting:        "Alerting",
	TypeProgress:        "Progress",
	TypeConnect:         "Connect",
	TypeFacility:        "Facility",
	TypeReleaseComplete: "ReleaseComplete",
	TypeNotify:          "Notify",
	TypeStatus:          "Status",
	TypeStatusEnquiry:   "StatusEnquiry",
	TypeInformation:     "Information",
}

func (t MessageType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("MessageType(%d)", int(t))
}

// FacilityReason причина сообщения Facility.
type FacilityReason string

const (
	FacilityUndefined     FacilityReason = "undefinedReason"
	FacilityStartH245     FacilityReason = "startH245"
	FacilityCallForwarded FacilityReason = "callForwarded"
	FacilityRouteToGK     FacilityReason = "routeCallToGatekeeper"
)

// CallState состояние вызова Q.931, передаваемое в Status.
type CallState int

const (
	CallStateNull            CallState = 0
	CallStateCallInitiated   CallState = 1
	CallStateOutgoingProceed CallState = 3
	CallStateCallDelivered   CallState = 4
	CallStateCallPresent     CallState = 6
	CallStateCallReceived    CallState = 7
	CallStateConnectRequest  CallState = 8
	CallStateIncomingProceed CallState = 9
	CallStateActive          CallState = 10
	CallStateReleaseRequest  CallState = 19
)

// Message сообщение сигнализации. Поля user-user информации заполнены
// только если HasUserUser истинно.
type Message struct {
	Type          MessageType `json:"type"`
	CallReference uint16      `json:"callReference"`
	// FromDestination флаг направления ссылки вызова Q.931
	FromDestination bool `json:"fromDestination,omitempty"`

	Cause    Cause     `json:"cause,omitempty"`
	Display  string    `json:"display,omitempty"`
	Keypad   string    `json:"keypad,omitempty"`
	Calling  string    `json:"callingPartyNumber,omitempty"`
	Called   string    `json:"calledPartyNumber,omitempty"`
	State    CallState `json:"callState,omitempty"`
	Progress uint8     `json:"progressIndicator,omitempty"`

	HasUserUser    bool   `json:"hasUserUser"`
	CallIdentifier string `json:"callIdentifier,omitempty"`
	ConferenceID   string `json:"conferenceID,omitempty"`
	// H245Tunneling признак туннелирования H.245 в данном сообщении
	H245Tunneling bool     `json:"h245Tunnelling,omitempty"`
	H245Control   [][]byte `json:"h245Control,omitempty"`
	// H245Address адрес выделенного канала управления, если объявлен
	H245Address         string   `json:"h245Address,omitempty"`
	FastStart           [][]byte `json:"fastStart,omitempty"`
	FastConnectRefused  bool     `json:"fastConnectRefused,omitempty"`
	MediaWaitForConnect bool     `json:"mediaWaitForConnect,omitempty"`

	SourceAliases      []string `json:"sourceAddress,omitempty"`
	SourceSignal       string   `json:"sourceCallSignalAddress,omitempty"`
	DestinationAliases []string `json:"destinationAddress,omitempty"`
	DestinationSignal  string   `json:"destCallSignalAddress,omitempty"`
	Vendor             string   `json:"vendor,omitempty"`

	ReleaseReason      ReleaseReason  `json:"releaseReason,omitempty"`
	FacilityReason     FacilityReason `json:"facilityReason,omitempty"`
	AlternativeAddress string         `json:"alternativeAddress,omitempty"`
	AlternativeAlias   string         `json:"alternativeAliasAddress,omitempty"`
}

// New создает сообщение заданного типа с user-user информацией.
func New(t MessageType, callRef uint16, fromDestination bool) *Message {
	return &Message{
		Type:            t,
		CallReference:   callRef,
		FromDestination: fromDestination,
		HasUserUser:     true,
	}
}

// Setup создает сообщение SETUP.
func Setup(callRef uint16, callID, conferenceID string) *Message {
	m := New(TypeSetup, callRef, false)
	m.CallIdentifier = callID
	m.ConferenceID = conferenceID
	return m
}

// ReleaseComplete создает RELEASE COMPLETE с причиной.
func ReleaseComplete(callRef uint16, fromDestination bool, cause Cause, reason ReleaseReason) *Message {
	m := New(TypeReleaseComplete, callRef, fromDestination)
	m.Cause = cause
	m.ReleaseReason = reason
	return m
}

// Facility создает FACILITY с заданной причиной.
func Facility(callRef uint16, fromDestination bool, reason FacilityReason) *Message {
	m := New(TypeFacility, callRef, fromDestination)
	m.FacilityReason = reason
	return m
}

// HasTunnelledControl сообщает, несет ли сообщение туннелированные PDU H.245.
func (m *Message) HasTunnelledControl() bool {
	return len(m.H245Control) > 0
}

func (m *Message) String() string {
	return fmt.Sprintf("%s(ref=%d, tunnel=%t, h245=%d, fastStart=%d)",
		m.Type, m.CallReference, m.H245Tunneling, len(m.H245Control), len(m.FastStart))
}

// Package h245 описывает сообщения протокола управления H.245 в виде
// закрытого набора типов. Кодирование в байты выполняет пакет wire.
package h245

import "fmt"

// MessageKind дискриминатор сообщения, используемый только для диспетчеризации.
type MessageKind int

const (
	KindUnknown MessageKind = iota
	KindMasterSlaveDetermination
	KindMasterSlaveDeterminationAck
	KindMasterSlaveDeterminationReject
	KindMasterSlaveDeterminationRelease
	KindTerminalCapabilitySet
	KindTerminalCapabilitySetAck
	KindTerminalCapabilitySetReject
	KindTerminalCapabilitySetRelease
	KindOpenLogicalChannel
	KindOpenLogicalChannelAck
	KindOpenLogicalChannelReject
	KindOpenLogicalChannelConfirm
	KindCloseLogicalChannel
	KindCloseLogicalChannelAck
	KindRequestChannelClose
	KindRequestChannelCloseAck
	KindRequestChannelCloseReject
	KindRequestChannelCloseRelease
	KindRequestMode
	KindRequestModeAck
	KindRequestModeReject
	KindRequestModeRelease
	KindRoundTripDelayRequest
	KindRoundTripDelayResponse
	KindEndSessionCommand
	KindFlowControlCommand
	KindMiscellaneousCommand
	KindUserInputIndication
	KindFunctionNotUnderstood
)

var kindNames = map[MessageKind]string{
	KindUnknown:                         "Unknown",
	KindMasterSlaveDetermination:        "MasterSlaveDetermination",
	KindMasterSlaveDeterminationAck:     "MasterSlaveDeterminationAck",
	KindMasterSlaveDeterminationReject:  "MasterSlaveDeterminationReject",
	KindMasterSlaveDeterminationRelease: "MasterSlaveDeterminationRelease",
	KindTerminalCapabilitySet:           "TerminalCapabilitySet",
	KindTerminalCapabilitySetAck:        "TerminalCapabilitySetAck",
	KindTerminalCapabilitySetReject:     "TerminalCapabilitySetReject",
	KindTerminalCapabilitySetRelease:    "TerminalCapabilitySetRelease",
	KindOpenLogicalChannel:              "OpenLogicalChannel",
	KindOpenLogicalChannelAck:           "OpenLogicalChannelAck",
	KindOpenLogicalChannelReject:        "OpenLogicalChannelReject",
	KindOpenLogicalChannelConfirm:       "OpenLogicalChannelConfirm",
	KindCloseLogicalChannel:             "CloseLogicalChannel",
	KindCloseLogicalChannelAck:          "CloseLogicalChannelAck",
	KindRequestChannelClose:             "RequestChannelClose",
	KindRequestChannelCloseAck:          "RequestChannelCloseAck",
	KindRequestChannelCloseReject:       "RequestChannelCloseReject",
	KindRequestChannelCloseRelease:      "RequestChannelCloseRelease",
	KindRequestMode:                     "RequestMode",
	KindRequestModeAck:                  "RequestModeAck",
	KindRequestModeReject:               "RequestModeReject",
	KindRequestModeRelease:              "RequestModeRelease",
	KindRoundTripDelayRequest:           "RoundTripDelayRequest",
	KindRoundTripDelayResponse:          "RoundTripDelayResponse",
	KindEndSessionCommand:               "EndSessionCommand",
	KindFlowControlCommand:              "FlowControlCommand",
	KindMiscellaneousCommand:            "MiscellaneousCommand",
	KindUserInputIndication:             "UserInputIndication",
	KindFunctionNotUnderstood:           "FunctionNotUnderstood",
}

func (k MessageKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("MessageKind(%d)", int(k))
}

// KindFromString обратное отображение имени в дискриминатор.
func KindFromString(name string) MessageKind {
	for k, n := range kindNames {
		if n == name {
			return k
		}
	}
	return KindUnknown
}

// IsRequest сообщает, относится ли вид к запросам. На нераспознанный
// запрос отвечают FunctionNotUnderstood.
func (k MessageKind) IsRequest() bool {
	switch k {
	case KindMasterSlaveDetermination, KindTerminalCapabilitySet, KindOpenLogicalChannel,
		KindCloseLogicalChannel, KindRequestChannelClose, KindRequestMode, KindRoundTripDelayRequest:
		return true
	}
	return false
}

// Message сообщение управления H.245.
type Message interface {
	Kind() MessageKind
}

// Decision результат определения ведущего/ведомого.
type Decision string

const (
	DecisionMaster Decision = "master"
	DecisionSlave  Decision = "slave"
)

// MSDRejectCause причина отказа в определении ведущего.
type MSDRejectCause string

const (
	MSDRejectIdenticalNumbers   MSDRejectCause = "identicalNumbers"
	MSDRejectMaxRetriesExceeded MSDRejectCause = "maxNumberOfRetriesExceeded"
)

// TCSRejectCause причина отказа в наборе возможностей.
type TCSRejectCause string

const (
	TCSRejectUnspecified         TCSRejectCause = "unspecified"
	TCSRejectUndefinedTableEntry TCSRejectCause = "undefinedTableEntryUsed"
	TCSRejectDescriptorCapacity  TCSRejectCause = "descriptorCapacityExceeded"
	TCSRejectTableEntryCapacity  TCSRejectCause = "tableEntryCapacityExceeded"
)

// OLCRejectCause причина отказа в открытии логического канала.
type OLCRejectCause string

const (
	OLCRejectUnspecified             OLCRejectCause = "unspecified"
	OLCRejectUnsuitableReverse       OLCRejectCause = "unsuitableReverseParameters"
	OLCRejectDataTypeNotSupported    OLCRejectCause = "dataTypeNotSupported"
	OLCRejectDataTypeNotAvailable    OLCRejectCause = "dataTypeNotAvailable"
	OLCRejectDataTypeALCombination   OLCRejectCause = "dataTypeALCombinationNotSupported"
	OLCRejectMasterSlaveConflict     OLCRejectCause = "masterSlaveConflict"
	OLCRejectInsufficientBandwidth   OLCRejectCause = "insufficientBandwidth"
	OLCRejectInvalidSessionID        OLCRejectCause = "invalidSessionID"
	OLCRejectInvalidDependentChannel OLCRejectCause = "invalidDependentChannel"
)

// CloseSource инициатор закрытия канала.
type CloseSource string

const (
	CloseSourceUser CloseSource = "user"
	CloseSourceLCSE CloseSource = "lcse"
)

// RequestModeRejectCause причина отказа в смене режима.
type RequestModeRejectCause string

const (
	RequestModeUnavailable       RequestModeRejectCause = "modeUnavailable"
	RequestModeMultipointConstrt RequestModeRejectCause = "multipointConstraint"
	RequestModeRequestDenied     RequestModeRejectCause = "requestDenied"
)

package h245

type MasterSlaveDetermination struct {
	TerminalType        uint8  `json:"terminalType"`
	DeterminationNumber uint32 `json:"statusDeterminationNumber"`
}

type MasterSlaveDeterminationAck struct {
	Decision Decision `json:"decision"`
}

type MasterSlaveDeterminationReject struct {
	Cause MSDRejectCause `json:"cause"`
}

type MasterSlaveDeterminationRelease struct{}

type TerminalCapabilitySet struct {
	SequenceNumber uint8                  `json:"sequenceNumber"`
	Capabilities   []CapabilityEntry      `json:"capabilityTable,omitempty"`
	Descriptors    []CapabilityDescriptor `json:"capabilityDescriptors,omitempty"`
}

// IsEmpty пустой набор возможностей означает постановку на удержание.
func (m *TerminalCapabilitySet) IsEmpty() bool {
	return len(m.Capabilities) == 0 && len(m.Descriptors) == 0
}

type TerminalCapabilitySetAck struct {
	SequenceNumber uint8 `json:"sequenceNumber"`
}

type TerminalCapabilitySetReject struct {
	SequenceNumber uint8          `json:"sequenceNumber"`
	Cause          TCSRejectCause `json:"cause"`
}

type TerminalCapabilitySetRelease struct{}

// OpenLogicalChannel запрос на открытие канала. Forward описывает
// поток от отправителя запроса, Reverse (если задан) встречный поток.
type OpenLogicalChannel struct {
	ChannelNumber uint               `json:"forwardLogicalChannelNumber"`
	Forward       ChannelParameters  `json:"forwardLogicalChannelParameters"`
	Reverse       *ChannelParameters `json:"reverseLogicalChannelParameters,omitempty"`
	CryptoSuite   string             `json:"encryptionSync,omitempty"`
	// EncryptionKey ключ медиа, формируемый ведущей стороной
	EncryptionKey []byte `json:"encryptionKey,omitempty"`
}

type OpenLogicalChannelAck struct {
	ChannelNumber       uint   `json:"forwardLogicalChannelNumber"`
	SessionID           uint   `json:"sessionID,omitempty"`
	MediaAddress        string `json:"mediaChannel,omitempty"`
	MediaControlAddress string `json:"mediaControlChannel,omitempty"`
	EncryptionKey       []byte `json:"encryptionKey,omitempty"`
}

type OpenLogicalChannelReject struct {
	ChannelNumber uint           `json:"forwardLogicalChannelNumber"`
	Cause         OLCRejectCause `json:"cause"`
}

type OpenLogicalChannelConfirm struct {
	ChannelNumber uint `json:"forwardLogicalChannelNumber"`
}

type CloseLogicalChannel struct {
	ChannelNumber uint        `json:"forwardLogicalChannelNumber"`
	Source        CloseSource `json:"source"`
}

type CloseLogicalChannelAck struct {
	ChannelNumber uint `json:"forwardLogicalChannelNumber"`
}

type RequestChannelClose struct {
	ChannelNumber uint `json:"forwardLogicalChannelNumber"`
}

type RequestChannelCloseAck struct {
	ChannelNumber uint `json:"forwardLogicalChannelNumber"`
}

type RequestChannelCloseReject struct {
	ChannelNumber uint `json:"forwardLogicalChannelNumber"`
}

type RequestChannelCloseRelease struct {
	ChannelNumber uint `json:"forwardLogicalChannelNumber"`
}

type RequestMode struct {
	SequenceNumber uint8             `json:"sequenceNumber"`
	Modes          []ModeDescription `json:"requestedModes"`
}

type RequestModeAck struct {
	SequenceNumber uint8 `json:"sequenceNumber"`
}

type RequestModeReject struct {
	SequenceNumber uint8                  `json:"sequenceNumber"`
	Cause          RequestModeRejectCause `json:"cause"`
}

type RequestModeRelease struct{}

type RoundTripDelayRequest struct {
	SequenceNumber uint8 `json:"sequenceNumber"`
}

type RoundTripDelayResponse struct {
	SequenceNumber uint8 `json:"sequenceNumber"`
}

type EndSessionCommand struct{}

// FlowControlCommand ограничивает скорость канала. MaximumBitRate в
// единицах 100 бит/с, ноль снимает ограничение.
type FlowControlCommand struct {
	ChannelNumber  uint `json:"logicalChannelNumber"`
	MaximumBitRate uint `json:"maximumBitRate"`
}

type MiscellaneousCommand struct {
	ChannelNumber uint   `json:"logicalChannelNumber"`
	Command       string `json:"type"`
}

// UserInputIndication пользовательский ввод. Заполняется либо
// Alphanumeric, либо Signal с длительностью в миллисекундах.
type UserInputIndication struct {
	Alphanumeric string `json:"alphanumeric,omitempty"`
	Signal       string `json:"signal,omitempty"`
	Duration     uint   `json:"duration,omitempty"`
	SignalUpdate bool   `json:"signalUpdate,omitempty"`
}

type FunctionNotUnderstood struct {
	Request MessageKind `json:"request"`
}

// Unknown сообщение, которое не удалось отнести ни к одному виду.
type Unknown struct {
	Name string `json:"name"`
}

func (*MasterSlaveDetermination) Kind() MessageKind       { return KindMasterSlaveDetermination }
func (*MasterSlaveDeterminationAck) Kind() MessageKind    { return KindMasterSlaveDeterminationAck }
func (*MasterSlaveDeterminationReject) Kind() MessageKind { return KindMasterSlaveDeterminationReject }
func (*MasterSlaveDeterminationRelease) Kind() MessageKind {
	return KindMasterSlaveDeterminationRelease
}
func (*TerminalCapabilitySet) Kind() MessageKind        { return KindTerminalCapabilitySet }
func (*TerminalCapabilitySetAck) Kind() MessageKind     { return KindTerminalCapabilitySetAck }
func (*TerminalCapabilitySetReject) Kind() MessageKind  { return KindTerminalCapabilitySetReject }
func (*TerminalCapabilitySetRelease) Kind() MessageKind { return KindTerminalCapabilitySetRelease }
func (*OpenLogicalChannel) Kind() MessageKind           { return KindOpenLogicalChannel }
func (*OpenLogicalChannelAck) Kind() MessageKind        { return KindOpenLogicalChannelAck }
func (*OpenLogicalChannelReject) Kind() MessageKind     { return KindOpenLogicalChannelReject }
func (*OpenLogicalChannelConfirm) Kind() MessageKind    { return KindOpenLogicalChannelConfirm }
func (*CloseLogicalChannel) Kind() MessageKind          { return KindCloseLogicalChannel }
func (*CloseLogicalChannelAck) Kind() MessageKind       { return KindCloseLogicalChannelAck }
func (*RequestChannelClose) Kind() MessageKind          { return KindRequestChannelClose }
func (*RequestChannelCloseAck) Kind() MessageKind       { return KindRequestChannelCloseAck }
func (*RequestChannelCloseReject) Kind() MessageKind    { return KindRequestChannelCloseReject }
func (*RequestChannelCloseRelease) Kind() MessageKind   { return KindRequestChannelCloseRelease }
func (*RequestMode) Kind() MessageKind                  { return KindRequestMode }
func (*RequestModeAck) Kind() MessageKind               { return KindRequestModeAck }
func (*RequestModeReject) Kind() MessageKind            { return KindRequestModeReject }
func (*RequestModeRelease) Kind() MessageKind           { return KindRequestModeRelease }
func (*RoundTripDelayRequest) Kind() MessageKind        { return KindRoundTripDelayRequest }
func (*RoundTripDelayResponse) Kind() MessageKind       { return KindRoundTripDelayResponse }
func (*EndSessionCommand) Kind() MessageKind            { return KindEndSessionCommand }
func (*FlowControlCommand) Kind() MessageKind           { return KindFlowControlCommand }
func (*MiscellaneousCommand) Kind() MessageKind         { return KindMiscellaneousCommand }
func (*UserInputIndication) Kind() MessageKind          { return KindUserInputIndication }
func (*FunctionNotUnderstood) Kind() MessageKind        { return KindFunctionNotUnderstood }
func (*Unknown) Kind() MessageKind                      { return KindUnknown }

// New создает пустое сообщение заданного вида, используется декодером.
func New(kind MessageKind) Message {
	switch kind {
	case KindMasterSlaveDetermination:
		return &MasterSlaveDetermination{}
	case KindMasterSlaveDeterminationAck:
		return &MasterSlaveDeterminationAck{}
	case KindMasterSlaveDeterminationReject:
		return &MasterSlaveDeterminationReject{}
	case KindMasterSlaveDeterminationRelease:
		return &MasterSlaveDeterminationRelease{}
	case KindTerminalCapabilitySet:
		return &TerminalCapabilitySet{}
	case KindTerminalCapabilitySetAck:
		return &TerminalCapabilitySetAck{}
	case KindTerminalCapabilitySetReject:
		return &TerminalCapabilitySetReject{}
	case KindTerminalCapabilitySetRelease:
		return &TerminalCapabilitySetRelease{}
	case KindOpenLogicalChannel:
		return &OpenLogicalChannel{}
	case KindOpenLogicalChannelAck:
		return &OpenLogicalChannelAck{}
	case KindOpenLogicalChannelReject:
		return &OpenLogicalChannelReject{}
	case KindOpenLogicalChannelConfirm:
		return &OpenLogicalChannelConfirm{}
	case KindCloseLogicalChannel:
		return &CloseLogicalChannel{}
	case KindCloseLogicalChannelAck:
		return &CloseLogicalChannelAck{}
	case KindRequestChannelClose:
		return &RequestChannelClose{}
	case KindRequestChannelCloseAck:
		return &RequestChannelCloseAck{}
	case KindRequestChannelCloseReject:
		return &RequestChannelCloseReject{}
	case KindRequestChannelCloseRelease:
		return &RequestChannelCloseRelease{}
	case KindRequestMode:
		return &RequestMode{}
	case KindRequestModeAck:
		return &RequestModeAck{}
	case KindRequestModeReject:
		return &RequestModeReject{}
	case KindRequestModeRelease:
		return &RequestModeRelease{}
	case KindRoundTripDelayRequest:
		return &RoundTripDelayRequest{}
	case KindRoundTripDelayResponse:
		return &RoundTripDelayResponse{}
	case KindEndSessionCommand:
		return &EndSessionCommand{}
	case KindFlowControlCommand:
		return &FlowControlCommand{}
	case KindMiscellaneousCommand:
		return &MiscellaneousCommand{}
	case KindUserInputIndication:
		return &UserInputIndication{}
	case KindFunctionNotUnderstood:
		return &FunctionNotUnderstood{}
	}
	return &Unknown{}
}

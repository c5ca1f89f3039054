// Package gatekeeper описывает взаимодействие с регистратором (gatekeeper)
// в объеме, необходимом управлению вызовом: допуск и освобождение.
package gatekeeper

import (
	"context"
	"fmt"
)

// RejectReason причина отказа в допуске.
type RejectReason int

const (
	RejectUndefined RejectReason = iota
	RejectCalledPartyNotRegistered
	RejectRequestDenied
	RejectInvalidPermission
	RejectSecurityDenial
	RejectResourceUnavailable
	RejectInvalidEndpointIdentifier
	RejectTransportError
)

func (r RejectReason) String() string {
	switch r {
	case RejectCalledPartyNotRegistered:
		return "calledPartyNotRegistered"
	case RejectRequestDenied:
		return "requestDenied"
	case RejectInvalidPermission:
		return "invalidPermission"
	case RejectSecurityDenial:
		return "securityDenial"
	case RejectResourceUnavailable:
		return "resourceUnavailable"
	case RejectInvalidEndpointIdentifier:
		return "invalidEndpointIdentifier"
	case RejectTransportError:
		return "transportError"
	}
	return "undefinedReason"
}

// RejectError отказ регистратора в допуске вызова.
type RejectError struct {
	Reason RejectReason
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("допуск отклонен: %s", e.Reason)
}

// AdmissionRequest запрос допуска вызова.
type AdmissionRequest struct {
	CallIdentifier string
	ConferenceID   string
	Answering      bool
	SourceAlias    string
	Destination    string
	// Bandwidth запрашиваемая полоса в единицах 100 бит/с
	Bandwidth uint
}

// AdmissionResponse подтверждение допуска.
type AdmissionResponse struct {
	// Routed вызов маршрутизируется через регистратор
	Routed bool
	// Address адрес сигнализации, выделенный регистратором. Пустой адрес
	// оставляет адрес вызывающей стороны без изменений.
	Address   string
	Bandwidth uint
}

// DisengageRequest уведомление о завершении вызова.
type DisengageRequest struct {
	CallIdentifier string
	ConferenceID   string
	Answering      bool
	Reason         string
}

// Client регистратор. Методы могут блокироваться; вызывающий ограничивает
// их контекстом.
type Client interface {
	// Admit запрашивает допуск. Отказ возвращается как *RejectError.
	Admit(ctx context.Context, req AdmissionRequest) (*AdmissionResponse, error)
	// Disengage сообщает о завершении допущенного вызова.
	Disengage(ctx context.Context, req DisengageRequest) error
}

// Package apperr defines the error-kind taxonomy shared by both services.
//
// Every use case returns one of these kinds (never a bare error string) so
// that the web and RPC front ends can map failures to a transport-specific
// status without inspecting message text.
package apperr

import "fmt"

// Category groups kinds by the transport-status class they map to.
type Category int

const (
	CategoryInput Category = iota
	CategoryAuth
	CategoryNotFound
	CategoryConflict
	CategoryDependency
	CategoryIntegrity
	CategoryResource
)

type Kind string

const (
	InvalidInput        Kind = "InvalidInput"
	EmptyInputData      Kind = "EmptyInputData"
	InvalidJsonFormat   Kind = "InvalidJsonFormat"
	InvalidVersion      Kind = "InvalidVersion"
	InvalidQuantity     Kind = "InvalidQuantity"
	Omitted             Kind = "Omitted"
	ReservationExpired  Kind = "ReservationExpired"
	WarrantyExpired     Kind = "WarrantyExpired"
	QtyLimitExceed      Kind = "QtyLimitExceed"
	DuplicateReturn     Kind = "DuplicateReturn"
	ExceedingMaxLimit   Kind = "ExceedingMaxLimit"

	PermissionDenied     Kind = "PermissionDenied"
	InvalidMerchantStaff Kind = "InvalidMerchantStaff"
	OrderOwnerMismatch   Kind = "OrderOwnerMismatch"
	InvalidCredential    Kind = "InvalidCredential"

	MissingCharge     Kind = "MissingCharge"
	MissingMerchant   Kind = "MissingMerchant"
	ProductNotExist   Kind = "ProductNotExist"
	DataTableNotExist Kind = "DataTableNotExist"
	NotExist          Kind = "NotExist"

	LoadOrderConflict  Kind = "LoadOrderConflict"
	AcquireLockFailure Kind = "AcquireLockFailure"

	RpcRemoteUnavail     Kind = "RpcRemoteUnavail"
	RpcRemoteInvalidReply Kind = "RpcRemoteInvalidReply"
	RpcPublishFailure    Kind = "RpcPublishFailure"
	InvalidRoute         Kind = "InvalidRoute"
	LowLevelConn         Kind = "LowLevelConn"
	ReplyTimeout         Kind = "ReplyTimeout"
	ReplyCorrupted       Kind = "ReplyCorrupted"
	ThirdParty           Kind = "ThirdParty"
	PayInNotCompleted    Kind = "PayInNotCompleted"
	AmountNotEnough      Kind = "AmountNotEnough"

	DataCorruption       Kind = "DataCorruption"
	AmountMismatch       Kind = "AmountMismatch"
	CurrencyInconsistent Kind = "CurrencyInconsistent"

	DatabaseServerBusy Kind = "DatabaseServerBusy"
	NotImplemented     Kind = "NotImplemented"
	NotSupport         Kind = "NotSupport"
)

var categoryOf = map[Kind]Category{
	InvalidInput:      CategoryInput,
	EmptyInputData:    CategoryInput,
	InvalidJsonFormat: CategoryInput,
	InvalidVersion:    CategoryInput,
	InvalidQuantity:   CategoryInput,
	Omitted:           CategoryInput,
	ReservationExpired: CategoryInput,
	WarrantyExpired:    CategoryInput,
	QtyLimitExceed:     CategoryInput,
	DuplicateReturn:    CategoryInput,
	ExceedingMaxLimit:  CategoryInput,

	PermissionDenied:     CategoryAuth,
	InvalidMerchantStaff: CategoryAuth,
	OrderOwnerMismatch:   CategoryAuth,
	InvalidCredential:    CategoryAuth,

	MissingCharge:     CategoryNotFound,
	MissingMerchant:   CategoryNotFound,
	ProductNotExist:   CategoryNotFound,
	DataTableNotExist: CategoryNotFound,
	NotExist:          CategoryNotFound,

	LoadOrderConflict:  CategoryConflict,
	AcquireLockFailure: CategoryConflict,

	RpcRemoteUnavail:      CategoryDependency,
	RpcRemoteInvalidReply: CategoryDependency,
	RpcPublishFailure:     CategoryDependency,
	InvalidRoute:          CategoryDependency,
	LowLevelConn:          CategoryDependency,
	ReplyTimeout:          CategoryDependency,
	ReplyCorrupted:        CategoryDependency,
	ThirdParty:            CategoryDependency,
	PayInNotCompleted:     CategoryDependency,
	AmountNotEnough:       CategoryDependency,

	DataCorruption:       CategoryIntegrity,
	AmountMismatch:       CategoryIntegrity,
	CurrencyInconsistent: CategoryIntegrity,

	DatabaseServerBusy: CategoryResource,
	NotImplemented:     CategoryResource,
	NotSupport:         CategoryResource,
}

// Error is the concrete error type every port and use case returns.
type Error struct {
	Kind   Kind
	Detail string
	Cause  error
}

func New(k Kind, detail string) *Error { return &Error{Kind: k, Detail: detail} }

func Wrap(k Kind, detail string, cause error) *Error {
	return &Error{Kind: k, Detail: detail, Cause: cause}
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) CategoryOf() Category { return categoryOf[e.Kind] }

// As reports whether err (or something it wraps) is an *Error of kind k.
func As(err error, k Kind) bool {
	var ae *Error
	for err != nil {
		if a, ok := err.(*Error); ok {
			ae = a
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return ae != nil && ae.Kind == k
}

// HTTPStatus maps a category to its HTTP status class.
func (c Category) HTTPStatus() int {
	switch c {
	case CategoryInput:
		return 400
	case CategoryAuth:
		return 403
	case CategoryNotFound:
		return 404
	case CategoryConflict:
		return 429
	case CategoryDependency:
		return 503
	case CategoryIntegrity:
		return 500
	case CategoryResource:
		return 503
	default:
		return 500
	}
}

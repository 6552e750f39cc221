package native

import "fmt"

// Entity is a native entity handle. Positive values are live handles,
// negative values are return codes.
type Entity int32

// ReturnCode is a native status code.
type ReturnCode int32

const (
	RetOK                   ReturnCode = 0
	RetError                ReturnCode = -1
	RetUnsupported          ReturnCode = -2
	RetBadParameter         ReturnCode = -3
	RetPreconditionNotMet   ReturnCode = -4
	RetOutOfResources       ReturnCode = -5
	RetNotEnabled           ReturnCode = -6
	RetImmutablePolicy      ReturnCode = -7
	RetInconsistentPolicy   ReturnCode = -8
	RetAlreadyDeleted       ReturnCode = -9
	RetTimeout              ReturnCode = -10
	RetNoData               ReturnCode = -11
	RetIllegalOperation     ReturnCode = -12
	RetNotAllowedBySecurity ReturnCode = -13
)

var retCodeNames = map[ReturnCode]string{
	RetOK:                   "ok",
	RetError:                "error",
	RetUnsupported:          "unsupported",
	RetBadParameter:         "bad parameter",
	RetPreconditionNotMet:   "precondition not met",
	RetOutOfResources:       "out of resources",
	RetNotEnabled:           "not enabled",
	RetImmutablePolicy:      "immutable policy",
	RetInconsistentPolicy:   "inconsistent policy",
	RetAlreadyDeleted:       "already deleted",
	RetTimeout:              "timeout",
	RetNoData:               "no data",
	RetIllegalOperation:     "illegal operation",
	RetNotAllowedBySecurity: "not allowed by security",
}

func (rc ReturnCode) String() string {
	if s, ok := retCodeNames[rc]; ok {
		return s
	}
	return fmt.Sprintf("return code %d", int32(rc))
}

// Code extracts the return code carried by a failed entity creation.
func (e Entity) Code() ReturnCode {
	if e < 0 {
		return ReturnCode(e)
	}
	return RetOK
}

// Kind is the native entity kind.
type Kind int32

const (
	KindParticipant Kind = iota + 1
	KindTopic
	KindPublisher
	KindSubscriber
	KindWriter
	KindReader
	KindWaitset
	KindReadCondition
	KindGuardCondition
)

func (k Kind) String() string {
	switch k {
	case KindParticipant:
		return "participant"
	case KindTopic:
		return "topic"
	case KindPublisher:
		return "publisher"
	case KindSubscriber:
		return "subscriber"
	case KindWriter:
		return "writer"
	case KindReader:
		return "reader"
	case KindWaitset:
		return "waitset"
	case KindReadCondition:
		return "readcondition"
	case KindGuardCondition:
		return "guardcondition"
	default:
		return fmt.Sprintf("kind(%d)", int32(k))
	}
}

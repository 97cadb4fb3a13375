package billing

// ErrorClass groups response codes by how the engine reacts to them.
type ErrorClass int

const (
	// ClassNone is a successful response.
	ClassNone ErrorClass = iota
	// ClassTransient is a dropped service connection: notify and reconnect.
	ClassTransient
	// ClassUserCanceled is logged only.
	ClassUserCanceled
	// ClassUnavailable is surfaced to subscribers and not retried.
	ClassUnavailable
	// ClassAlreadyOwned means the local view is stale: reconcile again.
	ClassAlreadyOwned
	// ClassNotOwned means a consume or acknowledge target vanished. Logged only.
	ClassNotOwned
	// ClassConfiguration is a static misconfiguration. Logged only.
	ClassConfiguration
	// ClassGeneric covers everything else. Logged only.
	ClassGeneric
)

var classNames = map[ErrorClass]string{
	ClassNone:          "none",
	ClassTransient:     "transient",
	ClassUserCanceled:  "user_canceled",
	ClassUnavailable:   "unavailable",
	ClassAlreadyOwned:  "already_owned",
	ClassNotOwned:      "not_owned",
	ClassConfiguration: "configuration",
	ClassGeneric:       "generic",
}

// String returns the metric label for the class.
func (c ErrorClass) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return "generic"
}

// Surfaced reports whether subscribers are told about errors of this class.
func (c ErrorClass) Surfaced() bool {
	return c == ClassTransient || c == ClassUnavailable
}

// Classify maps a response code onto the engine's error taxonomy.
func Classify(code ResponseCode) ErrorClass {
	switch code {
	case CodeOK:
		return ClassNone
	case CodeServiceDisconnected:
		return ClassTransient
	case CodeUserCanceled:
		return ClassUserCanceled
	case CodeServiceUnavailable, CodeFeatureNotSupported:
		return ClassUnavailable
	case CodeItemAlreadyOwned:
		return ClassAlreadyOwned
	case CodeItemNotOwned:
		return ClassNotOwned
	case CodeDeveloperError, CodeBillingUnavailable:
		return ClassConfiguration
	default:
		return ClassGeneric
	}
}

// User-facing messages delivered to subscribers.
const (
	MessageServiceDisconnected      = "billing service disconnected, reconnecting"
	MessageServiceUnavailable       = "billing service unavailable, check your internet connection"
	MessageFeatureNotSupported      = "billing feature is not supported on this device"
	MessageSubscriptionsUnsupported = "subscriptions are not supported on this device"
)

// UserMessage returns the subscriber-facing message for a surfaced code,
// or "" when the code is not surfaced.
func UserMessage(code ResponseCode) string {
	switch code {
	case CodeServiceDisconnected:
		return MessageServiceDisconnected
	case CodeServiceUnavailable:
		return MessageServiceUnavailable
	case CodeFeatureNotSupported:
		return MessageFeatureNotSupported
	default:
		return ""
	}
}

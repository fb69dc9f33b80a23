package metrics

var kindLabels = map[ErrorKind]string{
	ErrorTimeout:            "Request timeout",
	ErrorResourceExhaustion: "Resource limit reached",
	ErrorNetwork:            "Network error",
	ErrorUnexpected:         "Unexpected error",
}

// Label returns a human-friendly name for the error kind.
func (k ErrorKind) Label() string {
	if k == ErrorNone {
		return "None"
	}
	if label, ok := kindLabels[k]; ok {
		return label
	}
	return string(k)
}

// FriendlyStatus returns the display label of a StatusBucket code.
func FriendlyStatus(code string) string {
	if label, ok := kindLabels[ErrorKind(code)]; ok {
		return label
	}
	return "HTTP " + code
}

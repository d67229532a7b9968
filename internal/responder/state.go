package responder

type State int

const (
	Idle State = iota
	Connecting
	Listing
	Fetching
	Extracting
	Completing
	Replying
	MarkingSeen
	Disconnecting
)

var stateNames = [...]string{
	Idle:          "idle",
	Connecting:    "connecting",
	Listing:       "listing",
	Fetching:      "fetching",
	Extracting:    "extracting",
	Completing:    "completing",
	Replying:      "replying",
	MarkingSeen:   "marking-seen",
	Disconnecting: "disconnecting",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

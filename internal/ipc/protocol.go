package ipc

// Command names accepted by the daemon control socket.
const (
	CommandStatus   = "status"
	CommandToggle   = "toggle"
	CommandCancel   = "cancel"
	CommandShutdown = "shutdown"
)

type Request struct {
	Command string `json:"command"`
}

type Response struct {
	OK      bool   `json:"ok"`
	State   string `json:"state,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

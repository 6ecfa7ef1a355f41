package model

// ProcessInfo identifies a process at snapshot time. Comm is the kernel's
// short command name, not the full command line.
type ProcessInfo struct {
	PID  int32
	UID  uint32
	Comm string
}

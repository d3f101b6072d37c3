package writer

import (
	"os"
	"os/user"
	"time"
)

// Environment supplies the host, user and clock recorded in written files.
type Environment struct {
	HostName string
	UserName string
	// Now returns the time stored as DateTime. A nil Now stores no time.
	Now func() time.Time
}

// DefaultEnvironment reads the host and user names of the running process.
func DefaultEnvironment() Environment {
	env := Environment{Now: time.Now}
	env.HostName, _ = os.Hostname()
	if u, err := user.Current(); err == nil {
		env.UserName = u.Username
	} else {
		env.UserName = os.Getenv("USER")
	}
	return env
}

func (e Environment) now() time.Time {
	if e.Now == nil {
		return time.Time{}
	}
	return e.Now()
}

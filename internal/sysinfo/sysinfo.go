package sysinfo

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/user"
	"runtime"
)

// Info describes the host the server runs on.
type Info struct {
	Username  string `json:"username"`
	Platform  string `json:"platform"`
	Processor string `json:"processor"`
	Hostname  string `json:"hostname,omitempty"`
	CPUs      int    `json:"cpus"`
}

// Collect gathers Info for the current process. Username is the account
// the process runs as.
func Collect() Info {
	info := Info{
		Platform:  runtime.GOOS + "-" + runtime.GOARCH + "-" + runtime.Version(),
		Processor: runtime.GOARCH,
		CPUs:      runtime.NumCPU(),
	}
	if u, err := user.Current(); err == nil {
		info.Username = u.Username
	}
	if h, err := os.Hostname(); err == nil {
		info.Hostname = h
	}
	return info
}

// Handler serves Info as JSON. When the request carries basic auth
// credentials, Username reports the user name sent by the caller; the
// password is not checked.
func Handler(logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := Collect()
		if name, _, ok := r.BasicAuth(); ok && name != "" {
			info.Username = name
		}

		w.Header().Set("Content-Type", "application/json; charset=UTF-8")
		if err := json.NewEncoder(w).Encode(info); err != nil {
			logger.Warn("failed to write system info", "error", err)
		}
	})
}

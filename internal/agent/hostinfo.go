package agent

import (
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/elastic/go-sysinfo"

	"github.com/EternisAI/silo-c2/internal/api/http/dto"
)

// HostInfoFunc returns the best-effort metadata reported on check-in.
type HostInfoFunc func() dto.HostMetadata

// SystemHostInfo reads hostname and OS from the host, falling back to the Go
// runtime when the platform is not supported by go-sysinfo.
func SystemHostInfo() dto.HostMetadata {
	meta := dto.HostMetadata{OSName: runtime.GOOS}

	host, err := sysinfo.Host()
	if err != nil {
		slog.Debug("Host information unavailable, using fallbacks", "error", err)
		if hostname, err := os.Hostname(); err == nil {
			meta.Hostname = hostname
		}
		return meta
	}

	info := host.Info()
	meta.Hostname = info.Hostname
	if info.OS != nil {
		if name := strings.TrimSpace(info.OS.Name + " " + info.OS.Version); name != "" {
			meta.OSName = name
		}
	}
	if meta.Hostname == "" {
		if hostname, err := os.Hostname(); err == nil {
			meta.Hostname = hostname
		}
	}
	return meta
}

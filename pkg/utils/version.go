// Package utils holds build metadata stamped in at link time.
package utils

// Set with -ldflags "-X github.com/papercomputeco/recall/pkg/utils.Version=...".
var (
	Version   = "dev"
	Sha       = "HEAD"
	Buildtime = "dev"
)

// UserAgent identifies recall in outgoing HTTP requests.
func UserAgent() string {
	return "recall/" + Version
}

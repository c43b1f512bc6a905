package version

// Version is the current version of the MeshCall CLI.
// This value can be overridden at build time using:
//   go build -ldflags="-X 'github.com/AmanBang/meshcall/internal/version.Version=v1.0.0'"
var Version = "dev"

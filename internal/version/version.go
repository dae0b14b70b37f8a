package version

// Version is stamped by the release build:
//
//	go build -ldflags "-X github.com/bnema/order-intake-bot/internal/version.Version=v1.0.0" ./cmd/intake
var Version = "dev"

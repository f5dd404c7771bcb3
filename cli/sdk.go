package cli

import "github.com/absmach/flcoord/pkg/sdk"

var (
	DefTLSVerification        = false
	DefCoordinatorURL         = "http://localhost:7070"
	defOffset          uint64 = 0
	defLimit           uint64 = 10
)

var fsdk sdk.SDK

func SetSDK(s sdk.SDK) {
	fsdk = s
}

package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ StrategyRegistry = (*ProviderStrategyRegistry)(nil)
	_ TokenService     = (*Service)(nil)
	_ AccountService   = (*Service)(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)

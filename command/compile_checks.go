package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-credentials/core"
)

var (
	_ gocmd.Commander[EnsureFreshMessage]   = (*EnsureFreshCommand)(nil)
	_ gocmd.Commander[LinkAccountMessage]   = (*LinkAccountCommand)(nil)
	_ gocmd.Commander[UnlinkAccountMessage] = (*UnlinkAccountCommand)(nil)

	_ TokenService   = (*core.Service)(nil)
	_ AccountService = (*core.Service)(nil)
)

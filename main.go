package main

import (
	"github.com/KimMachineGun/automemlimit/memlimit"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/driftsync/driftsync/cmd"
)

var version = "0.0.1"

func main() {
	_, _ = maxprocs.Set(maxprocs.Logger(nil))
	_, _ = memlimit.SetGoMemLimitWithOpts(memlimit.WithRatio(0.9))

	cmd.Execute(version)
}

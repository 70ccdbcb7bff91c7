package main

import (
	"github.com/bel-commons/bel-commons/internal/server"
	"github.com/bel-commons/bel-commons/internal/util"
	"github.com/bel-commons/bel-commons/pkg/logger"
	"github.com/bel-commons/bel-commons/pkg/logger/console"

	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	server.Init()
}

package main

import (
	"github.com/prayatna/fraudscreen/backend/internal/server"
	"github.com/prayatna/fraudscreen/backend/internal/util"
	"github.com/prayatna/fraudscreen/backend/pkg/logger"
	"github.com/prayatna/fraudscreen/backend/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  debug,
		Prefix: "server",
	})
	logger.Init(consoleLogger)

	server.Init()
}

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/unionhall/hall-app/hall/audit"
	"github.com/unionhall/hall-app/hall/utils"
	"github.com/unionhall/hall-app/hallworker/queueing"
	"github.com/unionhall/hall-app/log"
)

func main() {
	numWorkers := utils.GetEnvInt("HALL_WORKER_POOL_SIZE", 3)
	q := queueing.StartQue(numWorkers, audit.LogSink{})
	defer q.StopQue()

	log.Worker.Infof("audit worker started with %d workers", numWorkers)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Worker.Info("shutting down")
}

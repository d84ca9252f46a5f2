package log

import (
	"os"
	"path/filepath"

	"github.com/unionhall/hall-app/conf"
	"github.com/sirupsen/logrus"
)

var (
	Hall    logrus.FieldLogger
	Request logrus.FieldLogger
	Audit   logrus.FieldLogger

	Worker logrus.FieldLogger
)

func init() {
	Hall = Logger(logrus.New(), conf.GetEnv("HALL_ERROR_LOG"),
		"hall", conf.GetEnv("ENVIRONMENT"))
	Request = Logger(logrus.New(), conf.GetEnv("HALL_REQUEST_LOG"),
		"hall", conf.GetEnv("ENVIRONMENT"))
	Audit = Logger(logrus.New(), conf.GetEnv("HALL_AUDIT_LOG"),
		"hall", conf.GetEnv("ENVIRONMENT"))

	Worker = Logger(logrus.New(), conf.GetEnv("HALL_WORKER_ERROR_LOG"),
		"worker", conf.GetEnv("ENVIRONMENT"))
}

func Logger(logger *logrus.Logger, outputFile string,
	application, environment string) logrus.FieldLogger {

	if outputFile != "" {
		if file, err := os.OpenFile(filepath.Clean(outputFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640); err == nil {
			logger.SetOutput(file)
		} else {
			logger.Infof("Failed to open output file %s. Will use stderr. %s",
				outputFile, err.Error())
		}
	}

	return logger.WithFields(logrus.Fields{
		"application": application,
		"environment": environment})
}
